package concepts

import (
	"fmt"
	"math"
	"sync"

	"starweave/internal/logging"
)

// Registry owns an insertion-ordered set of concepts and answers best-match
// queries. Matching always hands out owned copies; the authoritative
// instances change only through Commit and RecordInteraction.
type Registry struct {
	mu       sync.RWMutex
	concepts []ConceptVector
	index    map[string]int
	dim      int
}

// Match is a best-match result together with its similarity score.
type Match struct {
	Concept    ConceptVector
	Similarity float64
}

// NewRegistry validates the concept set and builds a registry over copies of it.
func NewRegistry(set []ConceptVector) (*Registry, error) {
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: concept set is empty", ErrConfiguration)
	}

	r := &Registry{
		concepts: make([]ConceptVector, 0, len(set)),
		index:    make(map[string]int, len(set)),
		dim:      len(set[0].Vector),
	}

	for _, c := range set {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.index[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate concept name %q", ErrConfiguration, c.Name)
		}
		if len(c.Vector) != r.dim {
			return nil, fmt.Errorf("%w: concept %q has dimension %d, expected %d",
				ErrConfiguration, c.Name, len(c.Vector), r.dim)
		}
		r.index[c.Name] = len(r.concepts)
		r.concepts = append(r.concepts, c.Clone())
	}

	logging.ConceptsDebug("Registry created: %d concepts, dimension %d", len(r.concepts), r.dim)
	return r, nil
}

// Dimensions returns the shared vector dimension of the registry.
func (r *Registry) Dimensions() int {
	return r.dim
}

// Len returns the number of concepts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.concepts)
}

// FindBestMatch returns an owned copy of the concept with the highest
// similarity among those whose similarity strictly exceeds their own
// threshold. Exact ties go to the earliest concept in registry order.
func (r *Registry) FindBestMatch(input []float32) (ConceptVector, bool) {
	m, ok := r.Match(input)
	if !ok {
		return ConceptVector{}, false
	}
	return m.Concept, true
}

// Match is FindBestMatch plus the winning similarity.
func (r *Registry) Match(input []float32) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(input) != r.dim {
		logging.ConceptsWarn("Input dimension %d does not match registry dimension %d", len(input), r.dim)
	}

	best := -1
	var bestSim float64
	for i := range r.concepts {
		sim := CosineSimilarity(r.concepts[i].Vector, input)
		if sim <= r.concepts[i].Threshold {
			continue
		}
		if best < 0 || sim > bestSim {
			best, bestSim = i, sim
		}
	}

	if best < 0 {
		logging.ConceptsDebug("No concept cleared its threshold")
		return Match{}, false
	}

	logging.ConceptsDebug("Best match: %s (similarity=%.4f)", r.concepts[best].Name, bestSim)
	return Match{Concept: r.concepts[best].Clone(), Similarity: bestSim}, true
}

// Ranked is one entry of a similarity ranking.
type Ranked struct {
	Name       string
	Similarity float64
	Clears     bool
}

// Rank returns the k most similar concepts, most similar first. Concepts with
// equal similarity keep registry order. k <= 0 ranks everything.
func (r *Registry) Rank(input []float32, k int) []Ranked {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]Ranked, 0, len(r.concepts))
	for _, c := range r.concepts {
		sim := CosineSimilarity(c.Vector, input)
		results = append(results, Ranked{Name: c.Name, Similarity: sim, Clears: sim > c.Threshold})
	}

	// Insertion sort keeps equal elements in their original order.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Similarity > results[j-1].Similarity; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// RecordInteraction stamps the named concept's last interaction time.
// Unknown names are ignored.
func (r *Registry) RecordInteraction(name string, now int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[name]
	if !ok {
		logging.ConceptsDebug("RecordInteraction: unknown concept %q ignored", name)
		return
	}
	r.concepts[i].LastInteraction = now
}

// Commit writes an evolved copy's state and curiosity back to the
// authoritative instance of the same name.
func (r *Registry) Commit(c ConceptVector) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[c.Name]
	if !ok {
		return false
	}
	r.concepts[i].State = c.State
	r.concepts[i].CuriosityScore = c.CuriosityScore
	logging.ConceptsDebug("Committed %s: state=[%.3f, %.3f] curiosity=%.3f",
		c.Name, c.State[0], c.State[1], c.CuriosityScore)
	return true
}

// Restore replaces every mutable field of the named concept, including the
// last interaction time. Used when loading a snapshot. Out-of-range state
// and curiosity are clamped into bounds.
func (r *Registry) Restore(c ConceptVector) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[c.Name]
	if !ok {
		return false
	}
	state := [2]float64{
		clampTo(c.State[0], MinState, MaxState),
		clampTo(c.State[1], MinState, MaxState),
	}
	curiosity := clampTo(c.CuriosityScore, MinCuriosity, MaxCuriosity)
	if state != c.State || curiosity != c.CuriosityScore {
		logging.ConceptsWarn("Restore %s: out-of-range values clamped (state=%v curiosity=%v)",
			c.Name, c.State, c.CuriosityScore)
	}
	r.concepts[i].State = state
	r.concepts[i].CuriosityScore = curiosity
	r.concepts[i].LastInteraction = c.LastInteraction
	return true
}

// clampTo bounds v to [lo, hi]. NaN maps to lo.
func clampTo(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Get returns an owned copy of the named concept.
func (r *Registry) Get(name string) (ConceptVector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[name]
	if !ok {
		return ConceptVector{}, false
	}
	return r.concepts[i].Clone(), true
}

// Concepts returns owned copies of every concept in registry order.
func (r *Registry) Concepts() []ConceptVector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConceptVector, len(r.concepts))
	for i, c := range r.concepts {
		out[i] = c.Clone()
	}
	return out
}

// Subset returns owned copies of the named concepts in the order given.
// Repeated names are kept once.
func (r *Registry) Subset(names []string) ([]ConceptVector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(names))
	out := make([]ConceptVector, 0, len(names))
	for _, n := range names {
		i, ok := r.index[n]
		if !ok {
			return nil, fmt.Errorf("%w: unknown concept %q", ErrConfiguration, n)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, r.concepts[i].Clone())
	}
	return out, nil
}
