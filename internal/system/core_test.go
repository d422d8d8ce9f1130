package system

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starweave/internal/config"
	"starweave/internal/metrics"
	"starweave/internal/orchestrator"
	"starweave/internal/store"
)

const epoch = 1_700_000_000

var testVectors = map[string][]float32{
	"wonder": {0.9, -0.2, 0.5},
	"beauty": {0.2, 0.8, -0.1},
	"noise":  {0, 0, 0},
}

type harness struct {
	core    *Core
	clock   *fakeClock
	engine  *fakeEngine
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:   &fakeClock{now: epoch},
		engine:  newFakeEngine(testVectors),
		metrics: metrics.New(),
	}
	opts = append([]Option{
		WithClock(h.clock),
		WithRandom(fixedRandom(0.5)),
		WithEngine(h.engine),
		WithMetrics(h.metrics),
		WithWorkspace(t.TempDir()),
	}, opts...)

	core, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close(context.Background()) })
	h.core = core
	return h
}

func metricValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	samples, err := m.Gather()
	require.NoError(t, err)
	var total float64
	for _, s := range samples {
		if s.Name == name {
			total += s.Value
		}
	}
	return total
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Concepts = nil

	_, err := New(context.Background(), cfg, WithEngine(newFakeEngine(nil)))
	assert.Error(t, err)
}

func TestProcess_Matched(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())
	h.clock.Advance(3600)

	out, err := h.core.Process(context.Background(), "wonder")
	require.NoError(t, err)

	assert.True(t, out.Matched)
	assert.Equal(t, "Curiosity", out.Concept)
	assert.InDelta(t, 1.0, out.Similarity, 1e-6)
	assert.Equal(t, [2]float64{1, 0}, out.StateBefore)
	assert.Equal(t, [2]float64{1, 0}, out.StateAfter)
	assert.Contains(t, out.Response, "Curiosity matched. Researching deeper aspects of: wonder")
	assert.False(t, out.EmbeddingFallback)
	assert.Empty(t, out.Reflection)

	committed, ok := h.core.registry.Get("Curiosity")
	require.True(t, ok)
	assert.Equal(t, int64(epoch+3600), committed.LastInteraction)
	assert.InDelta(t, 0.5*math.Exp(-1), committed.CuriosityScore, 1e-9)

	untouched, _ := h.core.registry.Get("Aesthetics")
	assert.Equal(t, int64(epoch), untouched.LastInteraction)

	assert.Equal(t, []string{"wonder"}, h.core.Memory())
	log := h.core.ActionLog()
	require.Len(t, log, 1)
	assert.Equal(t, "[curiosity]", log[0].Prefix)
	assert.True(t, time.Unix(epoch+3600, 0).Equal(log[0].At), "records are stamped by the core clock")
	assert.Equal(t, 1.0, metricValue(t, h.metrics, "starweave_concept_matches_total"))
}

func TestProcess_Unmatched(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())

	out, err := h.core.Process(context.Background(), "noise")
	require.NoError(t, err)

	assert.False(t, out.Matched)
	assert.Empty(t, out.Concept)
	assert.Equal(t, "I have processed your input about 'noise'", out.Response)
	assert.False(t, out.EmbeddingFallback)
	assert.Equal(t, 1.0, metricValue(t, h.metrics, "starweave_unmatched_inputs_total"))

	for _, c := range h.core.registry.Concepts() {
		assert.Equal(t, int64(epoch), c.LastInteraction, c.Name)
	}
}

func TestProcess_EmbeddingFallback(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())

	out, err := h.core.Process(context.Background(), "something the engine cannot embed")
	require.NoError(t, err)

	assert.True(t, out.EmbeddingFallback)
	assert.False(t, out.Matched)
	assert.Equal(t, 1.0, metricValue(t, h.metrics, "starweave_embedding_fallbacks_total"))
	assert.Equal(t, 1.0, metricValue(t, h.metrics, "starweave_unmatched_inputs_total"))
}

func TestProcess_ReflectionEveryFifthInput(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())
	ctx := context.Background()

	inputs := []string{"wonder", "noise", "beauty", "noise", "wonder", "noise", "noise", "noise", "noise", "noise"}
	var reflections []int
	for i, in := range inputs {
		out, err := h.core.Process(ctx, in)
		require.NoError(t, err)
		if out.Reflection != "" {
			reflections = append(reflections, i+1)
			assert.Equal(t, orchestrator.DefaultPrompts[0], out.Reflection)
		}
	}

	assert.Equal(t, []int{5, 10}, reflections)
	assert.Equal(t, 2.0, metricValue(t, h.metrics, "starweave_reflections_total"))

	mem := h.core.Memory()
	assert.Equal(t, orchestrator.DefaultPrompts[0], mem[len(mem)-1])
	assert.Len(t, mem, len(inputs)+2)
}

func TestProcess_CoCreationMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Actions.CoCreation = true
	h := newHarness(t, cfg)

	out, err := h.core.Process(context.Background(), "wonder")
	require.NoError(t, err)

	assert.Contains(t, out.Response, "Primary module 'Curiosity' processing: wonder")
	assert.Contains(t, out.Response, "Module 'Aesthetics' suggests: Aesthetics")
	assert.Contains(t, out.Response, "Module 'Verification' suggests: Verification")

	st := h.core.Status()
	assert.InDelta(t, 0.4, st.Propensity, 1e-9)
	require.Len(t, st.Modules, 3)
	assert.Equal(t, ModuleStatus{Name: "Curiosity", CoCreationCount: 2}, st.Modules[0])
	assert.Equal(t, ModuleStatus{Name: "Aesthetics", CoCreationCount: 1}, st.Modules[1])
	assert.Equal(t, 4.0, metricValue(t, h.metrics, "starweave_co_creations_total"))
}

func TestProcess_CancelledContext(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.core.Process(ctx, "wonder")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.core.ActionLog())
}

func TestToggleCoCreation(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())

	assert.True(t, h.core.ToggleCoCreation())
	assert.True(t, h.core.Status().CoCreationMode)
	assert.False(t, h.core.ToggleCoCreation())

	log := h.core.ActionLog()
	require.Len(t, log, 2)
	assert.Equal(t, "[mode] Co-creation mode enabled", log[0].String())
	assert.Equal(t, "[mode] Co-creation mode disabled", log[1].String())
}

func TestRouteAndRank(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())
	ctx := context.Background()

	name, ok, err := h.core.Route(ctx, "wonder")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Curiosity", name)

	_, ok, err = h.core.Route(ctx, "noise")
	require.NoError(t, err)
	assert.False(t, ok)

	ranked := h.core.Rank(ctx, "beauty", 1)
	require.Len(t, ranked, 1)
	assert.Equal(t, "Aesthetics", ranked[0].Name)
	assert.True(t, ranked[0].Clears)
}

func TestCoCreate_UnknownModule(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())

	_, err := h.core.CoCreate("Humor", "jokes")
	assert.ErrorIs(t, err, orchestrator.ErrNotFound)
	assert.Equal(t, orchestrator.DefaultPropensity, h.core.Status().Propensity)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())
	_, err := h.core.Process(context.Background(), "wonder")
	require.NoError(t, err)

	st := h.core.Status()
	assert.Equal(t, h.core.SessionID(), st.SessionID)
	assert.Equal(t, "fake", st.Engine)
	assert.Len(t, st.Concepts, 3)
	assert.Equal(t, 1, st.MemorySize)
	assert.Equal(t, 1, st.LogSize)
	assert.Equal(t, 4, st.UntilReflect)
	assert.False(t, st.Persistence)
}

func TestSave_PersistenceDisabled(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())
	assert.ErrorIs(t, h.core.Save(context.Background()), ErrPersistenceDisabled)
}

func TestPersistence_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Actions.CoCreation = true
	cfg.Store.Enabled = true
	cfg.Store.Path = filepath.Join(t.TempDir(), "weave.db")

	first := newHarness(t, cfg)
	first.clock.Advance(3600)
	_, err := first.core.Process(ctx, "wonder")
	require.NoError(t, err)
	require.NoError(t, first.core.Close(ctx))

	second := newHarness(t, cfg)
	st := second.core.Status()
	assert.True(t, st.Persistence)
	assert.InDelta(t, 0.4, st.Propensity, 1e-9)
	assert.Equal(t, uint64(2), st.Modules[0].CoCreationCount)

	restored, ok := second.core.registry.Get("Curiosity")
	require.True(t, ok)
	assert.Equal(t, int64(epoch+3600), restored.LastInteraction)
	assert.InDelta(t, 0.5*math.Exp(-1), restored.CuriosityScore, 1e-9)
}

func TestWithStore_CallerKeepsOwnership(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "weave.db"))
	require.NoError(t, err)
	defer s.Close()

	h := newHarness(t, config.DefaultConfig(), WithStore(s))
	_, err = h.core.Process(ctx, "beauty")
	require.NoError(t, err)
	require.NoError(t, h.core.Save(ctx))
	require.NoError(t, h.core.Close(ctx))

	snap, ok, err := s.Load(ctx)
	require.NoError(t, err, "store must stay open after Close")
	require.True(t, ok)
	assert.Len(t, snap.Concepts, 3)
	assert.Len(t, snap.Modules, 3)
}

func TestRestore_SkipsUnknownAndNeverLowers(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())

	snap := h.core.Snapshot()
	snap.Concepts[0].State = [2]float64{0.4, 0.6}
	snap.Concepts = append(snap.Concepts, snap.Concepts[0])
	snap.Concepts[len(snap.Concepts)-1].Name = "Humor"
	snap.Modules = append(snap.Modules, store.ModuleRecord{Name: "Ghost", CoCreationCount: 9})
	snap.Propensity = 0.1

	h.core.Restore(snap)

	c, _ := h.core.registry.Get("Curiosity")
	assert.Equal(t, [2]float64{0.4, 0.6}, c.State)
	_, ok := h.core.registry.Get("Humor")
	assert.False(t, ok)
	assert.Equal(t, orchestrator.DefaultPropensity, h.core.Status().Propensity)
}

func TestRestore_ClampsAndRefreshesModules(t *testing.T) {
	h := newHarness(t, config.DefaultConfig())

	snap := h.core.Snapshot()
	snap.Concepts[0].State = [2]float64{5, -3}
	snap.Concepts[0].CuriosityScore = 42
	h.core.Restore(snap)

	c, _ := h.core.registry.Get("Curiosity")
	assert.Equal(t, [2]float64{1, 0}, c.State)
	assert.Equal(t, 1.0, c.CuriosityScore)

	// Curiosity now leads the Verification module's suggestions.
	m, ok := h.core.orchestrator.Module("Verification")
	require.True(t, ok)
	held := m.Concepts()
	require.Len(t, held, 2)
	assert.Equal(t, "Curiosity", held[1].Name)
	assert.Equal(t, 1.0, held[1].CuriosityScore)

	s, ok := m.SuggestConcept("Curiosity")
	require.True(t, ok)
	assert.Equal(t, "Curiosity", s.Name)
}
