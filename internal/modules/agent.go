// Package modules implements module agents: named, isolated concept
// sub-registries that take part in routing and co-creation.
package modules

import (
	"fmt"
	"sync"

	"starweave/internal/concepts"
	"starweave/internal/logging"
)

// Agent is a named module owning a private registry. It never shares
// concept instances with the global registry or with other agents.
type Agent struct {
	mu              sync.Mutex
	name            string
	registry        *concepts.Registry
	coCreationCount uint64
}

// NewAgent builds an agent over owned copies of the given concepts.
func NewAgent(name string, set []concepts.ConceptVector) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: module name is empty", concepts.ErrConfiguration)
	}
	registry, err := concepts.NewRegistry(set)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}

	logging.Modules("Module %s created with %d concepts", name, registry.Len())
	return &Agent{name: name, registry: registry}, nil
}

// Name returns the agent's unique name.
func (a *Agent) Name() string {
	return a.name
}

// ProcessInput finds the best match within this agent's own concepts.
func (a *Agent) ProcessInput(input []float32) (concepts.ConceptVector, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.registry.FindBestMatch(input)
	if ok {
		logging.ModulesDebug("%s matched %s", a.name, c.Name)
	}
	return c, ok
}

// Match is ProcessInput plus the winning similarity.
func (a *Agent) Match(input []float32) (concepts.Match, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Match(input)
}

// SuggestConcept offers the agent's most curious concept to a peer.
// The peer name does not influence the choice. Ties go to the first concept.
func (a *Agent) SuggestConcept(peer string) (concepts.ConceptVector, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := a.registry.Concepts()
	if len(all) == 0 {
		return concepts.ConceptVector{}, false
	}

	best := 0
	for i := 1; i < len(all); i++ {
		if all[i].CuriosityScore > all[best].CuriosityScore {
			best = i
		}
	}

	logging.ModulesDebug("%s suggests %s to %s (curiosity=%.3f)",
		a.name, all[best].Name, peer, all[best].CuriosityScore)
	return all[best], true
}

// RecordCoCreation counts one co-creation event involving this agent.
func (a *Agent) RecordCoCreation() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.coCreationCount++
}

// CoCreationCount returns the number of co-creation events so far.
func (a *Agent) CoCreationCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coCreationCount
}

// RestoreCoCreationCount raises the counter to n when loading a snapshot.
// The counter never decreases.
func (a *Agent) RestoreCoCreationCount(n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > a.coCreationCount {
		a.coCreationCount = n
	}
}

// Concepts returns owned copies of the agent's concepts.
func (a *Agent) Concepts() []concepts.ConceptVector {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Concepts()
}

// Restore overwrites the named concept's mutable fields from a snapshot.
func (a *Agent) Restore(c concepts.ConceptVector) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Restore(c)
}
