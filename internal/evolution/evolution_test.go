package evolution

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starweave/internal/concepts"
)

// fixedSource returns the same sample every call.
type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

// sequenceSource replays samples in order.
type sequenceSource struct {
	samples []float64
	next    int
}

func (s *sequenceSource) Float64() float64 {
	v := s.samples[s.next%len(s.samples)]
	s.next++
	return v
}

func concept(state [2]float64, curiosity float64, last int64) concepts.ConceptVector {
	return concepts.ConceptVector{
		Name:            "probe",
		Vector:          []float32{1, 0, 0},
		State:           state,
		Threshold:       0.5,
		LastInteraction: last,
		CuriosityScore:  curiosity,
	}
}

func TestUpdateState_NoElapsedTime(t *testing.T) {
	c := concept([2]float64{0.5, 0.5}, 0.5, 1000)

	UpdateState(&c, 1000, fixedSource(0.5))

	// zero drift, boost = 0.1 * 0.5
	assert.InDelta(t, 0.55, c.State[0], 1e-9)
	assert.InDelta(t, 0.45, c.State[1], 1e-9)
	assert.InDelta(t, 0.5, c.CuriosityScore, 1e-9)
}

func TestUpdateState_DecayAfterOneHour(t *testing.T) {
	c := concept([2]float64{0.5, 0.5}, 1.0, 0)

	UpdateState(&c, 3600, fixedSource(0.5))

	want := math.Exp(-1)
	assert.InDelta(t, want, c.CuriosityScore, 1e-9)
	assert.InDelta(t, 0.5+0.1*want, c.State[0], 1e-9)
	assert.InDelta(t, 0.5-0.1*want, c.State[1], 1e-9)
}

func TestUpdateState_CuriosityFloor(t *testing.T) {
	c := concept([2]float64{0.5, 0.5}, 0.5, 0)

	UpdateState(&c, 100*3600, fixedSource(0.5))

	assert.Equal(t, concepts.MinCuriosity, c.CuriosityScore)
}

func TestUpdateState_NegativeElapsedTreatedAsZero(t *testing.T) {
	c := concept([2]float64{0.5, 0.5}, 0.8, 5000)

	UpdateState(&c, 1000, fixedSource(0.5))

	assert.InDelta(t, 0.8, c.CuriosityScore, 1e-9, "clock skew must not inflate curiosity")
}

func TestUpdateState_DriftDirection(t *testing.T) {
	c := concept([2]float64{0.5, 0.5}, 0.1, 0)
	rng := &sequenceSource{samples: []float64{1.0, 0.0}}

	UpdateState(&c, 0, rng)

	assert.InDelta(t, 0.5+0.005+0.01, c.State[0], 1e-9)
	assert.InDelta(t, 0.5-0.005-0.01, c.State[1], 1e-9)
	assert.Equal(t, 2, rng.next, "exactly two samples per update")
}

func TestUpdateState_Clamps(t *testing.T) {
	c := concept([2]float64{1.0, 0.0}, 1.0, 0)

	UpdateState(&c, 0, fixedSource(0.99))

	assert.Equal(t, 1.0, c.State[0])
	assert.Equal(t, 0.0, c.State[1])
}

func TestUpdateState_NonFiniteInput(t *testing.T) {
	c := concept([2]float64{math.NaN(), math.Inf(1)}, math.NaN(), 0)

	UpdateState(&c, 10, fixedSource(0.5))

	assert.False(t, math.IsNaN(c.State[0]))
	assert.Equal(t, 1.0, c.State[1])
	assert.Equal(t, concepts.MinCuriosity, c.CuriosityScore)
}

func TestUpdateState_BoundsUnderRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	src := NewRandomSource(99)

	for i := 0; i < 2000; i++ {
		c := concept(
			[2]float64{rng.Float64(), rng.Float64()},
			concepts.MinCuriosity+rng.Float64()*(concepts.MaxCuriosity-concepts.MinCuriosity),
			rng.Int63n(1_000_000),
		)
		now := rng.Int63n(2_000_000)

		UpdateState(&c, now, src)

		require.GreaterOrEqual(t, c.State[0], concepts.MinState)
		require.LessOrEqual(t, c.State[0], concepts.MaxState)
		require.GreaterOrEqual(t, c.State[1], concepts.MinState)
		require.LessOrEqual(t, c.State[1], concepts.MaxState)
		require.GreaterOrEqual(t, c.CuriosityScore, concepts.MinCuriosity)
		require.LessOrEqual(t, c.CuriosityScore, concepts.MaxCuriosity)
	}
}

func TestUpdateState_DeterministicForSeed(t *testing.T) {
	a := concept([2]float64{0.3, 0.7}, 0.6, 0)
	b := a

	UpdateState(&a, 1800, NewRandomSource(12345))
	UpdateState(&b, 1800, NewRandomSource(12345))

	assert.Equal(t, a, b)
}

func TestReflectionGate_DefaultInterval(t *testing.T) {
	g := NewReflectionGate(0)
	require.Equal(t, DefaultReflectionInterval, g.Interval())

	var fired []int
	for call := 1; call <= 15; call++ {
		if g.ShouldTrigger() {
			fired = append(fired, call)
		}
	}
	assert.Equal(t, []int{5, 10, 15}, fired)
	assert.Equal(t, 0, g.Count())
}

func TestReflectionGate_CustomInterval(t *testing.T) {
	g := NewReflectionGate(3)

	results := make([]bool, 0, 7)
	for i := 0; i < 7; i++ {
		results = append(results, g.ShouldTrigger())
	}
	assert.Equal(t, []bool{false, false, true, false, false, true, false}, results)
	assert.Equal(t, 1, g.Count())
}

func TestReflectionGate_IntervalOne(t *testing.T) {
	g := NewReflectionGate(1)
	for i := 0; i < 4; i++ {
		assert.True(t, g.ShouldTrigger())
	}
}

func TestSystemClock(t *testing.T) {
	assert.Greater(t, SystemClock{}.Now(), int64(1_600_000_000))
}
