// Package system wires the concept registry, state evolution, orchestrator,
// dispatcher, embedder, metrics and optional persistence into one agent core.
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"starweave/internal/actions"
	"starweave/internal/concepts"
	"starweave/internal/config"
	"starweave/internal/embedding"
	"starweave/internal/evolution"
	"starweave/internal/logging"
	"starweave/internal/metrics"
	"starweave/internal/modules"
	"starweave/internal/orchestrator"
	"starweave/internal/store"
)

// ErrPersistenceDisabled is returned by Save when no store is attached.
var ErrPersistenceDisabled = errors.New("persistence disabled")

// Core is a fully wired agent instance. Process calls are serialised.
type Core struct {
	mu sync.Mutex

	cfg       *config.Config
	workspace string
	sessionID string
	log       *logging.Logger
	audit     *logging.AuditLogger
	started   time.Time
	inputs    int
	closed    bool

	registry     *concepts.Registry
	orchestrator *orchestrator.Orchestrator
	dispatcher   *actions.Dispatcher
	gate         *evolution.ReflectionGate
	engine       embedding.Engine
	clock        evolution.Clock
	rng          evolution.RandomSource
	metrics      *metrics.Metrics

	store     *store.SnapshotStore
	ownsStore bool
}

// Outcome describes what happened to one processed input.
type Outcome struct {
	Input       string
	Matched     bool
	Concept     string
	Similarity  float64
	StateBefore [2]float64
	StateAfter  [2]float64
	Response    string
	// Reflection holds the proactive prompt when the reflection gate fired.
	Reflection string
	// EmbeddingFallback is set when the embedder failed and the zero vector was used.
	EmbeddingFallback bool
}

// New validates cfg and builds a Core. When persistence is enabled and no
// store was supplied, the store is opened and any saved snapshot restored.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Core, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "system.New")
	defer timer.Stop()

	if err := cfg.Validate(); err != nil {
		logging.BootError("Invalid configuration: %v", err)
		return nil, err
	}

	c := &Core{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		clock:     evolution.SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = evolution.NewRandomSource(cfg.Evolution.Seed)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.workspace == "" {
		c.workspace, _ = os.Getwd()
	}
	c.log = logging.WithRequestID(logging.CategorySession, c.sessionID)
	c.audit = logging.AuditWithSession(c.sessionID)
	c.started = time.Now()

	catalog, err := cfg.BuildConcepts(c.clock.Now())
	if err != nil {
		return nil, err
	}
	if c.registry, err = concepts.NewRegistry(catalog); err != nil {
		return nil, err
	}

	c.orchestrator, err = orchestrator.New(
		orchestrator.WithPropensity(cfg.Orchestrator.Propensity),
		orchestrator.WithPrompts(cfg.Orchestrator.Prompts),
		orchestrator.WithParallelism(cfg.Orchestrator.Parallelism),
		orchestrator.WithRecorder(c.metrics),
	)
	if err != nil {
		return nil, err
	}
	for _, mc := range cfg.Modules {
		subset, err := c.registry.Subset(mc.Concepts)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", mc.Name, err)
		}
		agent, err := modules.NewAgent(mc.Name, subset)
		if err != nil {
			return nil, err
		}
		c.orchestrator.RegisterModule(agent)
	}

	c.dispatcher = actions.NewDispatcher(
		actions.WithMemoryCapacity(cfg.Actions.MemoryCapacity),
		actions.WithLogCapacity(cfg.Actions.LogCapacity),
		actions.WithCoCreator(c.orchestrator),
		actions.WithCoCreationMode(cfg.Actions.CoCreation),
		actions.WithNow(func() time.Time { return time.Unix(c.clock.Now(), 0) }),
	)
	c.gate = evolution.NewReflectionGate(cfg.Evolution.ReflectionInterval)

	if c.engine == nil {
		if c.engine, err = embedding.NewEngine(cfg.Embedding); err != nil {
			return nil, err
		}
	}

	if c.store == nil && cfg.Store.Enabled {
		if c.store, err = store.Open(ctx, cfg.StorePath(c.workspace)); err != nil {
			return nil, err
		}
		c.ownsStore = true
	}
	if c.store != nil {
		snap, ok, err := c.store.Load(ctx)
		c.audit.Snapshot(logging.AuditSnapshotLoad, c.store.Path(), err)
		if err != nil {
			c.closeStore()
			return nil, err
		}
		if ok {
			c.restore(snap)
		}
	}

	c.audit.SessionStart(c.engine.Name())
	logging.Boot("Core ready: session=%s concepts=%d modules=%d engine=%s persistence=%v",
		c.sessionID, c.registry.Len(), len(c.orchestrator.ModuleNames()), c.engine.Name(), c.store != nil)
	return c, nil
}

// SessionID identifies this Core instance in logs.
func (c *Core) SessionID() string {
	return c.sessionID
}

// embed produces the input vector, substituting the zero vector on failure.
func (c *Core) embed(ctx context.Context, text string) ([]float32, bool) {
	vec, err := embedding.EmbedOrFallback(ctx, c.engine, text, c.registry.Dimensions())
	if err != nil {
		c.metrics.ObserveEmbeddingFallback()
		c.audit.EmbeddingFallback(c.engine.Name(), err)
		c.log.Warn("embedding fallback: %v", err)
		return vec, true
	}
	return vec, false
}

// Process runs one input through the pipeline: embed, match, evolve a copy
// of the matched concept, commit it, dispatch, and tick the reflection gate.
func (c *Core) Process(ctx context.Context, text string) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := logging.StartTimer(logging.CategorySession, "Process")
	defer timer.Stop()
	start := time.Now()
	c.inputs++

	out := Outcome{Input: text}
	vec, fallback := c.embed(ctx, text)
	out.EmbeddingFallback = fallback
	if err := ctx.Err(); err != nil {
		return out, err
	}

	if m, ok := c.registry.Match(vec); ok {
		evolved := m.Concept
		now := c.clock.Now()
		out.Matched = true
		out.Concept = evolved.Name
		out.Similarity = m.Similarity
		out.StateBefore = evolved.State

		evolution.UpdateState(&evolved, now, c.rng)
		c.registry.Commit(evolved)
		c.registry.RecordInteraction(evolved.Name, now)
		out.StateAfter = evolved.State

		out.Response = c.dispatcher.TriggerAction(evolved, text)
		c.metrics.ObserveMatch(evolved.Name)
		c.audit.ConceptMatch(evolved.Name, m.Similarity, time.Since(start).Milliseconds())
		c.log.Info("matched %s (similarity=%.3f)", evolved.Name, m.Similarity)
	} else {
		out.Response = c.dispatcher.Fallback(text)
		c.metrics.ObserveUnmatched()
		c.audit.ConceptMiss(fallback, time.Since(start).Milliseconds())
		c.log.Info("no concept matched")
	}

	if c.gate.ShouldTrigger() {
		out.Reflection = c.orchestrator.GenerateProactivePrompt()
		c.dispatcher.IntegrateKnowledge(out.Reflection)
		c.metrics.ObserveReflection()
		c.audit.Reflection(out.Reflection)
		c.log.Info("reflection: %s", out.Reflection)
	}

	if c.store != nil && c.cfg.Store.Autosave {
		if err := c.saveLocked(ctx); err != nil {
			return out, fmt.Errorf("autosave: %w", err)
		}
	}

	return out, nil
}

// Route returns the module best suited to text.
func (c *Core) Route(ctx context.Context, text string) (string, bool, error) {
	vec, _ := c.embed(ctx, text)
	return c.orchestrator.RouteInput(ctx, vec)
}

// Rank lists the k concepts most similar to text.
func (c *Core) Rank(ctx context.Context, text string, k int) []concepts.Ranked {
	vec, _ := c.embed(ctx, text)
	return c.registry.Rank(vec, k)
}

// CoCreate runs a co-creation round with primary as the lead module.
func (c *Core) CoCreate(primary, text string) (orchestrator.CoCreationResult, error) {
	result, err := c.orchestrator.CoCreate(primary, text)
	c.audit.CoCreation(primary, len(result.Suggestions), err)
	return result, err
}

// ToggleCoCreation flips the dispatcher's co-creation mode.
func (c *Core) ToggleCoCreation() bool {
	return c.dispatcher.ToggleCoCreation()
}

// ProactivePrompt returns the prompt selected by the current propensity.
func (c *Core) ProactivePrompt() string {
	return c.orchestrator.GenerateProactivePrompt()
}

// Memory returns working memory, oldest first.
func (c *Core) Memory() []string {
	return c.dispatcher.Memory()
}

// ActionLog returns the dispatcher's log, oldest first.
func (c *Core) ActionLog() []actions.Record {
	return c.dispatcher.Log()
}

// Metrics returns the metrics sink.
func (c *Core) Metrics() *metrics.Metrics {
	return c.metrics
}

// ModuleStatus is one module's entry in Status.
type ModuleStatus struct {
	Name            string
	CoCreationCount uint64
}

// Status is a point-in-time summary of the core.
type Status struct {
	SessionID      string
	Engine         string
	Concepts       []concepts.ConceptVector
	Modules        []ModuleStatus
	Propensity     float64
	CoCreationMode bool
	MemorySize     int
	LogSize        int
	UntilReflect   int
	Persistence    bool
}

// Status summarises the current state.
func (c *Core) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		SessionID:      c.sessionID,
		Engine:         c.engine.Name(),
		Concepts:       c.registry.Concepts(),
		Propensity:     c.orchestrator.Propensity(),
		CoCreationMode: c.dispatcher.CoCreationMode(),
		MemorySize:     len(c.dispatcher.Memory()),
		LogSize:        len(c.dispatcher.Log()),
		UntilReflect:   c.gate.Interval() - c.gate.Count(),
		Persistence:    c.store != nil,
	}
	for _, name := range c.orchestrator.ModuleNames() {
		if m, ok := c.orchestrator.Module(name); ok {
			st.Modules = append(st.Modules, ModuleStatus{Name: name, CoCreationCount: m.CoCreationCount()})
		}
	}
	return st
}

// Snapshot captures the persistable state.
func (c *Core) Snapshot() store.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Core) snapshot() store.Snapshot {
	snap := store.Snapshot{
		Version:    store.SchemaVersion,
		Concepts:   c.registry.Concepts(),
		Propensity: c.orchestrator.Propensity(),
	}
	for _, name := range c.orchestrator.ModuleNames() {
		if m, ok := c.orchestrator.Module(name); ok {
			snap.Modules = append(snap.Modules, store.ModuleRecord{Name: name, CoCreationCount: m.CoCreationCount()})
		}
	}
	return snap
}

// Restore applies a snapshot. Concepts and modules not present in the
// current configuration are skipped. Counters and propensity only rise.
func (c *Core) Restore(snap store.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restore(snap)
}

func (c *Core) restore(snap store.Snapshot) {
	restored := 0
	names := c.orchestrator.ModuleNames()
	for _, cv := range snap.Concepts {
		if !c.registry.Restore(cv) {
			logging.StoreDebug("Snapshot concept %s not configured, skipped", cv.Name)
			continue
		}
		restored++
		// Modules hold private copies; refresh those that carry the concept.
		for _, name := range names {
			if m, ok := c.orchestrator.Module(name); ok {
				m.Restore(cv)
			}
		}
	}
	for _, mr := range snap.Modules {
		if m, ok := c.orchestrator.Module(mr.Name); ok {
			m.RestoreCoCreationCount(mr.CoCreationCount)
		}
	}
	c.orchestrator.RestorePropensity(snap.Propensity)
	logging.Store("Restored snapshot: %d/%d concepts, propensity=%.2f", restored, len(snap.Concepts), c.orchestrator.Propensity())
}

// Save writes a snapshot to the attached store.
func (c *Core) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return ErrPersistenceDisabled
	}
	return c.saveLocked(ctx)
}

// saveLocked writes a snapshot. Caller holds c.mu and has checked c.store.
func (c *Core) saveLocked(ctx context.Context) error {
	err := c.store.Save(ctx, c.snapshot())
	c.audit.Snapshot(logging.AuditSnapshotSave, c.store.Path(), err)
	return err
}

// Close saves a final snapshot and releases the store when the Core opened it.
func (c *Core) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.store != nil {
		if err := c.saveLocked(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.closeStore(); err != nil {
		errs = append(errs, err)
	}
	c.audit.SessionEnd(c.inputs, time.Since(c.started).Milliseconds())
	logging.Session("Session %s closed", c.sessionID)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Core) closeStore() error {
	if !c.ownsStore || c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	c.ownsStore = false
	return err
}
