// Package evolution applies time decay and bounded stochastic drift to
// concept state, and gates periodic reflection.
package evolution

import (
	"math"
	"math/rand"
	"time"

	"starweave/internal/concepts"
	"starweave/internal/logging"
)

const (
	// DriftScale scales the zero-centred random step applied to each state component.
	DriftScale = 0.01
	// BoostScale converts the decayed curiosity score into a directional boost.
	BoostScale = 0.1
	// DefaultReflectionInterval is the reflection gate period when none is configured.
	DefaultReflectionInterval = 5

	secondsPerHour = 3600.0
)

// Clock returns wall-clock seconds since the Unix epoch.
type Clock interface {
	Now() int64
}

// RandomSource yields uniform samples in [0,1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns the current Unix time in seconds.
func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// NewRandomSource returns a seeded generator; seed 0 seeds from the clock.
func NewRandomSource(seed int64) RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// UpdateState evolves c in place: curiosity decays with the hours elapsed
// since the last interaction, then both state components take a small random
// step plus an anti-correlated curiosity boost. All values end inside their
// bounds. The result depends only on c, now and the samples drawn from rng.
func UpdateState(c *concepts.ConceptVector, now int64, rng RandomSource) {
	elapsed := now - c.LastInteraction
	if elapsed < 0 {
		elapsed = 0
	}
	elapsedHours := float64(elapsed) / secondsPerHour

	c.CuriosityScore *= math.Exp(-elapsedHours)
	boost := BoostScale * sanitize(c.CuriosityScore, concepts.MinCuriosity)

	r0, r1 := rng.Float64(), rng.Float64()
	c.State[0] += DriftScale*(r0-0.5) + boost
	c.State[1] += DriftScale*(r1-0.5) - boost

	c.State[0] = clamp(c.State[0], concepts.MinState, concepts.MaxState)
	c.State[1] = clamp(c.State[1], concepts.MinState, concepts.MaxState)
	c.CuriosityScore = clamp(c.CuriosityScore, concepts.MinCuriosity, concepts.MaxCuriosity)

	logging.EvolutionDebug("%s evolved after %.2fh: state=[%.4f, %.4f] curiosity=%.4f",
		c.Name, elapsedHours, c.State[0], c.State[1], c.CuriosityScore)
}

// clamp bounds v to [lo, hi]; NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func sanitize(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// ReflectionGate is a deterministic periodic gate: every interval-th call
// to ShouldTrigger returns true.
type ReflectionGate struct {
	interval int
	count    int
}

// NewReflectionGate creates a gate; a non-positive interval uses the default.
func NewReflectionGate(interval int) *ReflectionGate {
	if interval <= 0 {
		interval = DefaultReflectionInterval
	}
	return &ReflectionGate{interval: interval}
}

// ShouldTrigger counts a call and reports whether the interval was reached,
// resetting the counter when it was.
func (g *ReflectionGate) ShouldTrigger() bool {
	g.count++
	if g.count >= g.interval {
		g.count = 0
		logging.Evolution("Reflection triggered (interval=%d)", g.interval)
		return true
	}
	return false
}

// Count returns the calls seen since the last trigger.
func (g *ReflectionGate) Count() int {
	return g.count
}

// Interval returns the configured period.
func (g *ReflectionGate) Interval() int {
	return g.interval
}
