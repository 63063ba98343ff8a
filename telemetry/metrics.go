package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the fixed set of Prometheus counters/histograms named in
// SPEC_FULL.md's DOMAIN STACK table, registered against a private Registry so
// multiple Metrics instances (e.g. per test) never collide on the global
// default registry. cmd/flatagentsd's runner updates the Executions*
// counters; nothing in this module updates Retries, Launches or StepDuration.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsStarted  prometheus.Counter
	ExecutionsFinished prometheus.Counter
	ExecutionsFailed   *prometheus.CounterVec
	Retries            prometheus.Counter
	Launches           *prometheus.CounterVec
	StepDuration       prometheus.Histogram
}

// NewMetrics constructs and registers every instrument.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ExecutionsStarted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "flatagents_executions_started_total",
			Help: "Number of machine executions started.",
		}),
		ExecutionsFinished: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "flatagents_executions_finished_total",
			Help: "Number of machine executions reaching a final state.",
		}),
		ExecutionsFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "flatagents_executions_failed_total",
			Help: "Number of machine executions entering the Failed state, by error type.",
		}, []string{"error_type"}),
		Retries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "flatagents_retries_total",
			Help: "Number of retry-strategy attempts beyond the first.",
		}),
		Launches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "flatagents_launches_total",
			Help: "Number of child-machine launches, by machine name.",
		}, []string{"machine"}),
		StepDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "flatagents_step_duration_seconds",
			Help:    "Wall-clock duration of one interpreter step (dispatch + transition).",
			Buckets: prometheus.DefBuckets,
		}),
	}
	return m
}

// Handler exposes the registered instruments at the conventional
// `/metrics` path (§6, wired by httpapi).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
