package parfor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "parfor"

// PrometheusMetrics is a MetricsPolicy that exports scheduler counters as
// Prometheus collectors.
type PrometheusMetrics struct {
	submitted prometheus.Counter
	completed prometheus.Counter
	stolen    prometheus.Counter
	recycled  prometheus.Counter
	panicked  prometheus.Counter
	live      prometheus.Gauge
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_submitted_total",
			Help:      "Parallel-for jobs submitted to the scheduler.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "iterations_completed_total",
			Help:      "Loop iterations credited as completed.",
		}),
		stolen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "steals_total",
			Help:      "Ranges stolen from another slot.",
		}),
		recycled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_recycled_total",
			Help:      "Finished jobs returned to the pool by the sweep.",
		}),
		panicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "iteration_panics_total",
			Help:      "Iterations whose callback panicked.",
		}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "live_jobs",
			Help:      "Jobs held by the priority buckets after the last sweep.",
		}),
	}
	reg.MustRegister(m.submitted, m.completed, m.stolen, m.recycled, m.panicked, m.live)
	return m
}

func (m *PrometheusMetrics) IncSubmitted()        { m.submitted.Inc() }
func (m *PrometheusMetrics) AddCompleted(n int64) { m.completed.Add(float64(n)) }
func (m *PrometheusMetrics) IncStolen()           { m.stolen.Inc() }
func (m *PrometheusMetrics) IncRecycled()         { m.recycled.Inc() }
func (m *PrometheusMetrics) IncPanicked()         { m.panicked.Inc() }
func (m *PrometheusMetrics) SetLiveJobs(n int)    { m.live.Set(float64(n)) }
