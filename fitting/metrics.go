package fitting

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as the outcome label.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics records estimator runs on its own registry.
type Metrics struct {
	registry   *prometheus.Registry
	runs       *prometheus.CounterVec
	iterations *prometheus.HistogramVec
	inliers    *prometheus.GaugeVec
}

// NewMetrics creates and registers the run metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lomsac_runs_total",
				Help: "Estimator runs by model kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		iterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lomsac_run_iterations",
				Help:    "Sampling iterations performed per run",
				Buckets: prometheus.ExponentialBuckets(10, 4, 8),
			},
			[]string{"kind"},
		),
		inliers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lomsac_inlier_ratio",
				Help: "Inlier ratio of the most recent run",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(m.runs, m.iterations, m.inliers)
	return m
}

// Observe records a finished run.
func (m *Metrics) Observe(res *Result) {
	kind := string(res.Kind)
	outcome := OutcomeNotFound
	if res.Valid() {
		outcome = OutcomeFound
	}
	m.runs.WithLabelValues(kind, outcome).Inc()
	m.iterations.WithLabelValues(kind).Observe(float64(res.NumIterations))
	m.inliers.WithLabelValues(kind).Set(res.InlierRatio)
}

// ObserveError records a run that failed before estimating.
func (m *Metrics) ObserveError(kind Kind) {
	if kind == "" {
		kind = "unknown"
	}
	m.runs.WithLabelValues(string(kind), OutcomeError).Inc()
}

// Registry exposes the registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
