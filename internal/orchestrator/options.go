package orchestrator

import "runtime"

const (
	// DefaultPropensity is the starting collaboration propensity.
	DefaultPropensity = 0.3
	// MaxPropensity caps the propensity.
	MaxPropensity = 0.9
	// PropensityStep is added after every co-creation that produced a suggestion.
	PropensityStep = 0.1
)

// DefaultPrompts are the stock proactive prompt templates.
var DefaultPrompts = []string{
	"What would happen if we combined these concepts?",
	"How might we approach this from a different perspective?",
	"What underlying patterns connect these ideas?",
}

// Recorder receives orchestrator events. metrics.Metrics satisfies it.
type Recorder interface {
	ObserveCoCreation(module string)
	SetPropensity(p float64)
}

type noopRecorder struct{}

func (noopRecorder) ObserveCoCreation(string) {}
func (noopRecorder) SetPropensity(float64)    {}

type options struct {
	propensity  float64
	prompts     []string
	parallelism int
	recorder    Recorder
}

func defaultOptions() options {
	return options{
		propensity:  DefaultPropensity,
		prompts:     DefaultPrompts,
		parallelism: runtime.GOMAXPROCS(0),
		recorder:    noopRecorder{},
	}
}

// Option configures an Orchestrator.
type Option func(*options)

// WithPropensity sets the starting propensity.
func WithPropensity(p float64) Option {
	return func(o *options) { o.propensity = p }
}

// WithPrompts replaces the proactive prompt templates. The slice is copied.
func WithPrompts(prompts []string) Option {
	return func(o *options) { o.prompts = prompts }
}

// WithParallelism bounds how many modules RouteInput evaluates at once.
// Values below one mean GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}
