package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scheduler.
type Metrics struct {
	Registry    *prometheus.Registry
	JobsTotal   *prometheus.CounterVec
	JobDuration prometheus.Histogram
	Inflight    prometheus.Gauge
	Waiting     prometheus.Gauge
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xray_scheduler_jobs_total",
			Help: "Fetch jobs seen by the scheduler, by phase.",
		},
		[]string{"phase"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "xray_scheduler_job_duration_seconds",
			Help:    "Time from dispatch to driver response.",
			Buckets: prometheus.DefBuckets,
		},
	)
	inflight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xray_scheduler_inflight_jobs",
			Help: "Jobs dispatched and awaiting a response.",
		},
	)
	waiting := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xray_scheduler_waiting_jobs",
			Help: "Jobs admitted and waiting for a slot, the throttle or their delay.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xray_scheduler_errors_total",
			Help: "Failed jobs and error statuses by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(jobs, duration, inflight, waiting, errorsTotal)

	return &Metrics{
		Registry:    registry,
		JobsTotal:   jobs,
		JobDuration: duration,
		Inflight:    inflight,
		Waiting:     waiting,
		ErrorsTotal: errorsTotal,
	}
}

// IncJob increments the jobs counter for a phase.
func (m *Metrics) IncJob(phase string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a dispatch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.JobDuration.Observe(d.Seconds())
}

func (m *Metrics) addInflight(delta float64) {
	if m == nil {
		return
	}
	m.Inflight.Add(delta)
}

func (m *Metrics) addWaiting(delta float64) {
	if m == nil {
		return
	}
	m.Waiting.Add(delta)
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
