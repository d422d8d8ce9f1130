// Package orchestrator coordinates module agents: it routes input to the
// best module, runs the co-creation protocol between modules, and tracks the
// collaboration propensity used to pick proactive prompts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/iotaledger/hive.go/ds/orderedmap"
	"golang.org/x/sync/errgroup"

	"starweave/internal/concepts"
	"starweave/internal/logging"
	"starweave/internal/modules"
)

// ErrNotFound is returned when a named module is not registered.
var ErrNotFound = errors.New("module not found")

// Orchestrator owns the registered modules, keyed by name in registration order.
type Orchestrator struct {
	mu          sync.RWMutex
	modules     *orderedmap.OrderedMap[string, *modules.Agent]
	propensity  float64
	prompts     []string
	parallelism int
	recorder    Recorder
}

// New creates an orchestrator with no modules.
func New(opts ...Option) (*Orchestrator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if len(o.prompts) == 0 {
		return nil, fmt.Errorf("%w: at least one proactive prompt is required", concepts.ErrConfiguration)
	}
	if math.IsNaN(o.propensity) || o.propensity < 0 || o.propensity > MaxPropensity {
		return nil, fmt.Errorf("%w: propensity %v outside [0, %v]", concepts.ErrConfiguration, o.propensity, MaxPropensity)
	}

	orc := &Orchestrator{
		modules:     orderedmap.New[string, *modules.Agent](),
		propensity:  o.propensity,
		prompts:     append([]string(nil), o.prompts...),
		parallelism: o.parallelism,
		recorder:    o.recorder,
	}
	orc.recorder.SetPropensity(orc.propensity)

	logging.Orchestrator("Orchestrator created: propensity=%.2f prompts=%d parallelism=%d",
		orc.propensity, len(orc.prompts), orc.parallelism)
	return orc, nil
}

// RegisterModule adds a module under its name. Re-registering a name
// replaces the agent but keeps its original position.
func (o *Orchestrator) RegisterModule(m *modules.Agent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.modules.Has(m.Name()) {
		logging.OrchestratorWarn("Module %s re-registered, replacing previous agent", m.Name())
	}
	o.modules.Set(m.Name(), m)
	logging.Orchestrator("Registered module %s", m.Name())
}

// ordered returns the registered agents in registration order. Caller holds o.mu.
func (o *Orchestrator) ordered() []*modules.Agent {
	agents := make([]*modules.Agent, 0)
	o.modules.ForEach(func(_ string, a *modules.Agent) bool {
		agents = append(agents, a)
		return true
	})
	return agents
}

type routeResult struct {
	matched    bool
	similarity float64
}

// RouteInput returns the name of the module whose own best match is most
// similar to input. Modules are evaluated concurrently; the reduction walks
// them in registration order so the first-registered module wins ties.
// The bool is false when no module matched.
func (o *Orchestrator) RouteInput(ctx context.Context, input []float32) (string, bool, error) {
	o.mu.RLock()
	agents := o.ordered()
	o.mu.RUnlock()

	results := make([]routeResult, len(agents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, agent := range agents {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if m, ok := agent.Match(input); ok {
				results[i] = routeResult{matched: true, similarity: m.Similarity}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", false, fmt.Errorf("route input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("route input: %w", err)
	}

	best := -1
	for i, r := range results {
		if !r.matched {
			continue
		}
		if best < 0 || r.similarity > results[best].similarity {
			best = i
		}
	}
	if best < 0 {
		logging.OrchestratorDebug("RouteInput: no module matched")
		return "", false, nil
	}

	logging.OrchestratorDebug("RouteInput: %s wins (similarity=%.4f)", agents[best].Name(), results[best].similarity)
	return agents[best].Name(), true, nil
}

// Suggestion is one module's offer to the primary module.
type Suggestion struct {
	Module  string
	Concept string
}

// CoCreationResult is the outcome of one co-creation round.
type CoCreationResult struct {
	Primary     string
	Input       string
	Suggestions []Suggestion
}

// Empty reports whether no module offered a suggestion.
func (r CoCreationResult) Empty() bool {
	return len(r.Suggestions) == 0
}

// String renders the human-readable transcript.
func (r CoCreationResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Primary module '%s' processing: %s\n", r.Primary, r.Input)
	if r.Empty() {
		sb.WriteString("No co-creation suggestions available\n")
		return sb.String()
	}
	for _, s := range r.Suggestions {
		fmt.Fprintf(&sb, "Module '%s' suggests: %s\n", s.Module, s.Concept)
	}
	return sb.String()
}

// CoCreate asks every other module for a suggestion to the primary module.
// Each suggestion counts one co-creation for the suggester and one for the
// primary. Propensity rises by one step, capped, when any suggestion was made.
// An unknown primary returns ErrNotFound and changes nothing.
func (o *Orchestrator) CoCreate(primary, input string) (CoCreationResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	primaryAgent, ok := o.modules.Get(primary)
	if !ok {
		logging.OrchestratorWarn("CoCreate: primary module %q not found", primary)
		return CoCreationResult{}, fmt.Errorf("co-create %q: %w", primary, ErrNotFound)
	}

	result := CoCreationResult{Primary: primary, Input: input}
	suggesters := make([]*modules.Agent, 0)
	for _, agent := range o.ordered() {
		if agent.Name() == primary {
			continue
		}
		if c, ok := agent.SuggestConcept(primary); ok {
			result.Suggestions = append(result.Suggestions, Suggestion{Module: agent.Name(), Concept: c.Name})
			suggesters = append(suggesters, agent)
		}
	}

	for _, agent := range suggesters {
		agent.RecordCoCreation()
		primaryAgent.RecordCoCreation()
		o.recorder.ObserveCoCreation(agent.Name())
		o.recorder.ObserveCoCreation(primary)
	}

	if !result.Empty() {
		o.propensity = math.Min(o.propensity+PropensityStep, MaxPropensity)
		o.recorder.SetPropensity(o.propensity)
	}

	logging.Orchestrator("CoCreate %s: %d suggestions, propensity=%.2f", primary, len(result.Suggestions), o.propensity)
	return result, nil
}

// GenerateProactivePrompt picks a prompt by propensity: index
// floor(propensity * len(prompts)), falling back to the first prompt when
// that index is out of range.
func (o *Orchestrator) GenerateProactivePrompt() string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	idx := int(math.Floor(o.propensity * float64(len(o.prompts))))
	if idx < 0 || idx >= len(o.prompts) {
		idx = 0
	}
	return o.prompts[idx]
}

// Propensity returns the current collaboration propensity.
func (o *Orchestrator) Propensity() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.propensity
}

// RestorePropensity raises the propensity to p when loading a snapshot.
// Lower values are ignored and the cap still applies.
func (o *Orchestrator) RestorePropensity(p float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if math.IsNaN(p) || p <= o.propensity {
		return
	}
	o.propensity = math.Min(p, MaxPropensity)
	o.recorder.SetPropensity(o.propensity)
}

// Module returns the named module.
func (o *Orchestrator) Module(name string) (*modules.Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.modules.Get(name)
}

// ModuleNames returns module names in registration order.
func (o *Orchestrator) ModuleNames() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	names := make([]string, 0)
	o.modules.ForEach(func(name string, _ *modules.Agent) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Prompts returns a copy of the prompt templates.
func (o *Orchestrator) Prompts() []string {
	return append([]string(nil), o.prompts...)
}
