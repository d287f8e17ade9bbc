package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the Orchestration Façade.
// Grounded on the pack's infrastructure/metrics.Metrics shape (named
// collectors registered once, passed by reference) but scoped down to what
// a single evolve_step invocation can actually report.
type Metrics struct {
	StepsTotal      *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	Similarity      prometheus.Gauge
	DriftScore      prometheus.Gauge
	GenerationGauge prometheus.Gauge
}

// NewMetrics registers the orchestrator's collectors against registerer.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the
// global DefaultRegisterer across parallel test binaries.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symbiogen",
			Name:      "evolve_steps_total",
			Help:      "Total evolve_step invocations by terminal action.",
		}, []string{"action"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "symbiogen",
			Name:      "evolve_step_duration_seconds",
			Help:      "Wall-clock duration of a single evolve_step call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		Similarity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "symbiogen",
			Name:      "last_similarity",
			Help:      "Similarity to the previous generation's effective concepts from the most recent step.",
		}),
		DriftScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "symbiogen",
			Name:      "last_drift_score",
			Help:      "Composite drift score from the most recent step.",
		}),
		GenerationGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "symbiogen",
			Name:      "last_generation",
			Help:      "Generation number produced by the most recent step.",
		}),
	}
	registerer.MustRegister(m.StepsTotal, m.StepDuration, m.Similarity, m.DriftScore, m.GenerationGauge)
	return m
}

// observe records the outcome of one evolve_step call. Safe to call with a
// nil receiver so Metrics remains an optional Dependencies field.
func (m *Metrics) observe(result StepResult, durationSeconds float64) {
	if m == nil {
		return
	}
	action := string(result.Action)
	m.StepsTotal.WithLabelValues(action).Inc()
	m.StepDuration.WithLabelValues(action).Observe(durationSeconds)
	m.Similarity.Set(result.Similarity)
	m.DriftScore.Set(result.Drift)
	m.GenerationGauge.Set(float64(result.Generation))
}
