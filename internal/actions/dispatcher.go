// Package actions dispatches matched concepts to named handlers and keeps
// the agent's bounded working memory and action log.
package actions

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"starweave/internal/concepts"
	"starweave/internal/logging"
	"starweave/internal/orchestrator"
)

const (
	// DefaultMemoryCapacity bounds the working memory.
	DefaultMemoryCapacity = 100
	// DefaultLogCapacity bounds the action log.
	DefaultLogCapacity = 50

	minCuriosityBoost = 0.1
	maxCuriosityBoost = 0.5
)

// Log record prefixes.
const (
	PrefixCuriosity    = "[curiosity]"
	PrefixAesthetics   = "[aesthetics]"
	PrefixVerification = "[verification]"
	PrefixDefault      = "[default]"
	PrefixMode         = "[mode]"
)

// CoCreator runs a co-creation round. *orchestrator.Orchestrator satisfies it.
type CoCreator interface {
	CoCreate(primary, input string) (orchestrator.CoCreationResult, error)
}

// Record is one action log entry.
type Record struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Prefix   string    `json:"prefix"`
	Concept  string    `json:"concept,omitempty"`
	Input    string    `json:"input,omitempty"`
	Response string    `json:"response"`
}

// String renders the record as a single log line.
func (r Record) String() string {
	return r.Prefix + " " + r.Response
}

type handler struct {
	prefix  string
	respond func(input string) string
}

// Dispatcher turns a matched concept into a response.
type Dispatcher struct {
	mu         sync.Mutex
	memory     *boundedQueue[string]
	log        *boundedQueue[Record]
	handlers   map[string]handler
	fallback   handler
	coCreator  CoCreator
	coCreation bool
	now        func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMemoryCapacity sets the working memory bound. Values below one are ignored.
func WithMemoryCapacity(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.memory = newBoundedQueue[string](n)
		}
	}
}

// WithLogCapacity sets the action log bound. Values below one are ignored.
func WithLogCapacity(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.log = newBoundedQueue[Record](n)
		}
	}
}

// WithCoCreator sets the collaborator used while co-creation mode is on.
func WithCoCreator(c CoCreator) Option {
	return func(d *Dispatcher) { d.coCreator = c }
}

// WithCoCreationMode sets the initial co-creation flag.
func WithCoCreationMode(on bool) Option {
	return func(d *Dispatcher) { d.coCreation = on }
}

// WithNow overrides the timestamp source for log records.
func WithNow(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher with the stock handlers.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		memory: newBoundedQueue[string](DefaultMemoryCapacity),
		log:    newBoundedQueue[Record](DefaultLogCapacity),
		now:    time.Now,
	}
	d.handlers = map[string]handler{
		"Curiosity":    {prefix: PrefixCuriosity, respond: curiosityResponse},
		"Aesthetics":   {prefix: PrefixAesthetics, respond: aestheticsResponse},
		"Verification": {prefix: PrefixVerification, respond: verificationResponse},
	}
	d.fallback = handler{prefix: PrefixDefault, respond: defaultResponse}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CuriosityBoost scales with input length: runes/100 clamped to [0.1, 0.5].
func CuriosityBoost(input string) float64 {
	boost := float64(utf8.RuneCountInString(input)) / 100
	if boost < minCuriosityBoost {
		return minCuriosityBoost
	}
	if boost > maxCuriosityBoost {
		return maxCuriosityBoost
	}
	return boost
}

func curiosityResponse(input string) string {
	return fmt.Sprintf("Curiosity matched. Researching deeper aspects of: %s (boost %.2f)", input, CuriosityBoost(input))
}

func aestheticsResponse(input string) string {
	return "Aesthetics matched. Considering artistic interpretations for: " + input
}

func verificationResponse(input string) string {
	return "Verification matched. Cross-referencing facts about: " + input
}

func defaultResponse(string) string {
	return "Standard response generated."
}

// TriggerAction records input in memory, runs the handler registered for
// the concept name (or the default handler) and logs the result. With
// co-creation mode on, the concept name is used as the primary module and
// the round's transcript is appended to the response.
func (d *Dispatcher) TriggerAction(c concepts.ConceptVector, input string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.remember(input)

	h, ok := d.handlers[c.Name]
	if !ok {
		h = d.fallback
	}
	response := h.respond(input)

	if d.coCreation && d.coCreator != nil {
		response += "\n" + d.coCreate(c.Name, input)
	}

	d.append(h.prefix, c.Name, input, response)
	logging.Actions("%s dispatched for %s", h.prefix, c.Name)
	return response
}

// coCreate runs one round and renders its transcript. Caller holds d.mu.
func (d *Dispatcher) coCreate(primary, input string) string {
	result, err := d.coCreator.CoCreate(primary, input)
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		return "Primary module not found"
	case err != nil:
		logging.Get(logging.CategoryActions).Error("co-creation for %s failed: %v", primary, err)
		return "Co-creation failed: " + err.Error()
	}
	return strings.TrimRight(result.String(), "\n")
}

// Fallback handles input that matched no concept.
func (d *Dispatcher) Fallback(input string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.remember(input)
	response := fmt.Sprintf("I have processed your input about '%s'", input)
	d.append(PrefixDefault, "", input, response)
	logging.ActionsDebug("No concept matched, default response issued")
	return response
}

// IntegrateKnowledge adds information to working memory without dispatching.
func (d *Dispatcher) IntegrateKnowledge(info string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remember(info)
}

// ToggleCoCreation flips co-creation mode and returns the new state.
func (d *Dispatcher) ToggleCoCreation() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.coCreation = !d.coCreation
	state := "disabled"
	if d.coCreation {
		state = "enabled"
	}
	d.append(PrefixMode, "", "", "Co-creation mode "+state)
	logging.Actions("Co-creation mode %s", state)
	return d.coCreation
}

// CoCreationMode reports whether co-creation mode is on.
func (d *Dispatcher) CoCreationMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.coCreation
}

// Memory returns working memory, oldest first.
func (d *Dispatcher) Memory() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memory.snapshot()
}

// Log returns the action log, oldest first.
func (d *Dispatcher) Log() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.log.snapshot()
}

func (d *Dispatcher) remember(s string) {
	if d.memory.push(s) {
		logging.ActionsDebug("Working memory full (%d), oldest entry dropped", d.memory.len())
	}
}

func (d *Dispatcher) append(prefix, concept, input, response string) {
	d.log.push(Record{
		ID:       uuid.NewString(),
		At:       d.now(),
		Prefix:   prefix,
		Concept:  concept,
		Input:    input,
		Response: response,
	})
}
