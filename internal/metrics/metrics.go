// Package metrics provides Prometheus metrics for tripbot turns, tool
// invocations and model calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes.
const (
	OutcomeReplied   = "replied"
	OutcomeClarified = "clarified"
	OutcomeFailed    = "failed"
)

// Metrics holds all tripbot collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal      *prometheus.CounterVec
	TurnDuration    *prometheus.HistogramVec
	ToolInvocations *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
	ModelCallsTotal *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	ServerStartTime time.Time
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry:        reg,
		ServerStartTime: time.Now(),

		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripbot_turns_total",
				Help: "Total number of processed turns",
			},
			[]string{"branch", "outcome"},
		),
		TurnDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tripbot_turn_duration_seconds",
				Help:    "Duration of a whole turn in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"branch"},
		),
		ToolInvocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripbot_tool_invocations_total",
				Help: "Total number of tool invocations",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tripbot_tool_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		ModelCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripbot_model_calls_total",
				Help: "Total number of language model calls",
			},
			[]string{"status"},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "tripbot_active_sessions",
				Help: "Number of conversations held in memory",
			},
		),
	}
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(branch, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(branch, outcome).Inc()
	m.TurnDuration.WithLabelValues(branch).Observe(d.Seconds())
}

// ObserveTool records one tool invocation. It satisfies tool.Observer.
func (m *Metrics) ObserveTool(name, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolInvocations.WithLabelValues(name, status).Inc()
	m.ToolDuration.WithLabelValues(name).Observe(d.Seconds())
}

// ObserveModel records one language model call; status is "ok" or "error".
func (m *Metrics) ObserveModel(status string) {
	if m == nil {
		return
	}
	m.ModelCallsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
