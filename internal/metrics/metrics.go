// Package metrics defines the Prometheus collectors kisan exports.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn modes.
const (
	ModeStream = "stream"
	ModeBlock  = "block"
)

// Turn outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeModel   = "model_error"
	OutcomeAborted = "aborted"
	OutcomeError   = "error"
)

// Learning failure stages.
const (
	StageStore = "store"
)

// Metrics holds every kisan collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	Turns           *prometheus.CounterVec
	TurnDuration    *prometheus.HistogramVec
	FactsLearned    prometheus.Counter
	LearningErrors  *prometheus.CounterVec
	LearningDropped prometheus.Counter
	CacheSessions   prometheus.Gauge
}

// New registers the kisan collectors plus the Go runtime and process
// collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kisan",
			Name:      "turns_total",
			Help:      "Conversation turns handled, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kisan",
			Name:      "turn_duration_seconds",
			Help:      "Time from turn start to durable append.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"}),
		FactsLearned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kisan",
			Name:      "facts_learned_total",
			Help:      "Facts extracted and written to the fact store.",
		}),
		LearningErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kisan",
			Name:      "learning_errors_total",
			Help:      "Background learning failures, by stage.",
		}, []string{"stage"}),
		LearningDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kisan",
			Name:      "learning_dropped_total",
			Help:      "Learning jobs dropped because the queue was full.",
		}),
		CacheSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kisan",
			Name:      "fact_cache_sessions",
			Help:      "Sessions with a populated fact cache entry.",
		}),
	}

	reg.MustRegister(
		m.Turns,
		m.TurnDuration,
		m.FactsLearned,
		m.LearningErrors,
		m.LearningDropped,
		m.CacheSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
