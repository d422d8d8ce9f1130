// Package metrics exposes agent activity as Prometheus metrics on a
// private registry.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "starweave"

// Metrics groups the agent's collectors. All methods are safe for
// concurrent use and safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	matches            *prometheus.CounterVec
	unmatched          prometheus.Counter
	coCreations        *prometheus.CounterVec
	propensity         prometheus.Gauge
	reflections        prometheus.Counter
	embeddingFallbacks prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concept_matches_total",
			Help:      "Inputs matched to a concept, by concept name.",
		}, []string{"concept"}),
		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_inputs_total",
			Help:      "Inputs that cleared no concept threshold.",
		}),
		coCreations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "co_creations_total",
			Help:      "Co-creation events recorded, by module.",
		}, []string{"module"}),
		propensity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "co_creation_propensity",
			Help:      "Current propensity to co-create.",
		}),
		reflections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reflections_total",
			Help:      "Reflection gate triggers.",
		}),
		embeddingFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_fallbacks_total",
			Help:      "Embedding failures replaced by the fallback vector.",
		}),
	}

	m.registry.MustRegister(m.matches, m.unmatched, m.coCreations, m.propensity, m.reflections, m.embeddingFallbacks)
	return m
}

// Registry returns the private registry, e.g. for promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveMatch counts a match for concept.
func (m *Metrics) ObserveMatch(concept string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(concept).Inc()
}

// ObserveUnmatched counts an input that matched nothing.
func (m *Metrics) ObserveUnmatched() {
	if m == nil {
		return
	}
	m.unmatched.Inc()
}

// ObserveCoCreation counts one co-creation event for module.
func (m *Metrics) ObserveCoCreation(module string) {
	if m == nil {
		return
	}
	m.coCreations.WithLabelValues(module).Inc()
}

// SetPropensity records the current propensity.
func (m *Metrics) SetPropensity(p float64) {
	if m == nil {
		return
	}
	m.propensity.Set(p)
}

// ObserveReflection counts a reflection trigger.
func (m *Metrics) ObserveReflection() {
	if m == nil {
		return
	}
	m.reflections.Inc()
}

// ObserveEmbeddingFallback counts a fallback vector substitution.
func (m *Metrics) ObserveEmbeddingFallback() {
	if m == nil {
		return
	}
	m.embeddingFallbacks.Inc()
}

// Sample is one gathered metric value.
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

// String renders the sample in exposition style.
func (s Sample) String() string {
	if s.Labels == "" {
		return fmt.Sprintf("%s %g", s.Name, s.Value)
	}
	return fmt.Sprintf("%s{%s} %g", s.Name, s.Labels, s.Value)
}

// Gather returns every counter and gauge value sorted by name and labels.
func (m *Metrics) Gather() ([]Sample, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var out []Sample
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			out = append(out, Sample{
				Name:   mf.GetName(),
				Labels: labelString(metric.GetLabel()),
				Value:  value(mf.GetType(), metric),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Labels < out[j].Labels
	})
	return out, nil
}

func labelString(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, lp := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	return strings.Join(parts, ",")
}

func value(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return 0
	}
}
