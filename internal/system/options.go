package system

import (
	"starweave/internal/embedding"
	"starweave/internal/evolution"
	"starweave/internal/metrics"
	"starweave/internal/store"
)

// Option overrides a collaborator of the Core.
type Option func(*Core)

// WithClock sets the time source used for decay and interaction stamps.
func WithClock(c evolution.Clock) Option {
	return func(core *Core) { core.clock = c }
}

// WithRandom sets the random source used for state drift.
func WithRandom(r evolution.RandomSource) Option {
	return func(core *Core) { core.rng = r }
}

// WithEngine sets the embedding engine instead of building one from config.
func WithEngine(e embedding.Engine) Option {
	return func(core *Core) { core.engine = e }
}

// WithStore attaches an already open snapshot store. The caller keeps
// ownership and must close it.
func WithStore(s *store.SnapshotStore) Option {
	return func(core *Core) { core.store = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(core *Core) { core.metrics = m }
}

// WithWorkspace sets the directory relative store paths resolve against.
func WithWorkspace(dir string) Option {
	return func(core *Core) { core.workspace = dir }
}
