// Package concepts holds the concept registry: named feature vectors with
// evolving internal state, matched against input by cosine similarity.
package concepts

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfiguration marks an invalid concept set or concept definition.
// Callers are expected to validate at startup and fail fast.
var ErrConfiguration = errors.New("configuration error")

// State bounds.
const (
	MinState     = 0.0
	MaxState     = 1.0
	MinCuriosity = 0.1
	MaxCuriosity = 1.0
)

// ConceptVector is a named point in feature space with evolving internal state.
type ConceptVector struct {
	Name            string     `json:"name" yaml:"name"`
	Vector          []float32  `json:"vector" yaml:"vector"`
	State           [2]float64 `json:"stochastic_state" yaml:"stochastic_state"`
	Threshold       float64    `json:"threshold" yaml:"threshold"`
	LastInteraction int64      `json:"last_interaction_time" yaml:"last_interaction_time"`
	CuriosityScore  float64    `json:"curiosity_score" yaml:"curiosity_score"`
}

// Clone returns a deep copy; mutating it never touches the original.
func (c ConceptVector) Clone() ConceptVector {
	out := c
	out.Vector = append([]float32(nil), c.Vector...)
	return out
}

// Validate checks a single concept against its invariants.
func (c ConceptVector) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: concept name is empty", ErrConfiguration)
	}
	if len(c.Vector) == 0 {
		return fmt.Errorf("%w: concept %q has an empty vector", ErrConfiguration, c.Name)
	}
	if !inRange(c.Threshold, 0, 1) {
		return fmt.Errorf("%w: concept %q threshold %v outside [0,1]", ErrConfiguration, c.Name, c.Threshold)
	}
	for i, s := range c.State {
		if !inRange(s, MinState, MaxState) {
			return fmt.Errorf("%w: concept %q state[%d]=%v outside [0,1]", ErrConfiguration, c.Name, i, s)
		}
	}
	if !inRange(c.CuriosityScore, MinCuriosity, MaxCuriosity) {
		return fmt.Errorf("%w: concept %q curiosity %v outside [0.1,1]", ErrConfiguration, c.Name, c.CuriosityScore)
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// CosineSimilarity calculates dot(a,b) / (|a|*|b|).
// A zero-norm vector or a dimension mismatch yields 0.0 rather than an error.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, aMag, bMag float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		aMag += x * x
		bMag += y * y
	}

	if aMag == 0 || bMag == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(aMag) * math.Sqrt(bMag))
	// Rounding can push parallel vectors a hair past the unit interval.
	return math.Max(-1, math.Min(1, sim))
}

// DefaultCatalog returns the seed concepts of the stock agent.
func DefaultCatalog(now int64) []ConceptVector {
	return []ConceptVector{
		{
			Name:            "Curiosity",
			Vector:          []float32{0.9, -0.2, 0.5},
			State:           [2]float64{1.0, 0.0},
			Threshold:       0.7,
			LastInteraction: now,
			CuriosityScore:  0.5,
		},
		{
			Name:            "Aesthetics",
			Vector:          []float32{0.2, 0.8, -0.1},
			State:           [2]float64{1.0, 0.0},
			Threshold:       0.65,
			LastInteraction: now,
			CuriosityScore:  0.5,
		},
		{
			Name:            "Verification",
			Vector:          []float32{-0.3, 0.1, 0.9},
			State:           [2]float64{1.0, 0.0},
			Threshold:       0.75,
			LastInteraction: now,
			CuriosityScore:  0.5,
		},
	}
}
