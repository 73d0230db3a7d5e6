// Package metrics exposes Prometheus counters for the generation engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the engine's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsDecoded     *prometheus.CounterVec
	recordsSkipped    prometheus.Counter
	generations       *prometheus.CounterVec
	reviewMutations   *prometheus.CounterVec
	activeGenerations prometheus.Gauge
	connections       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qgen_stream_events_total",
			Help: "Generation events decoded from backend streams, by type.",
		}, []string{"type"}),
		recordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qgen_stream_records_skipped_total",
			Help: "Stream records dropped because they were malformed or of an unknown type.",
		}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qgen_generations_total",
			Help: "Finished generations, by outcome.",
		}, []string{"outcome"}),
		reviewMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qgen_review_mutations_total",
			Help: "Review mutations, by operation and outcome.",
		}, []string{"op", "outcome"}),
		activeGenerations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qgen_active_generations",
			Help: "Generations currently streaming.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qgen_gateway_connections",
			Help: "Open gateway websocket connections.",
		}),
	}
	m.registry.MustRegister(m.eventsDecoded, m.recordsSkipped, m.generations, m.reviewMutations, m.activeGenerations, m.connections)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) EventDecoded(eventType string) {
	if m == nil {
		return
	}
	m.eventsDecoded.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordSkipped() {
	if m == nil {
		return
	}
	m.recordsSkipped.Inc()
}

func (m *Metrics) GenerationStarted() {
	if m == nil {
		return
	}
	m.activeGenerations.Inc()
}

func (m *Metrics) GenerationFinished(outcome string) {
	if m == nil {
		return
	}
	m.activeGenerations.Dec()
	m.generations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReviewMutation(op, outcome string) {
	if m == nil {
		return
	}
	m.reviewMutations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
