package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the cron scheduler.
type Metrics struct {
	JobsFired     prometheus.Counter
	JobsSucceeded prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsSkipped   prometheus.Counter
	JobDuration   prometheus.Histogram
}

// NewMetrics creates and registers scheduler metrics.
// Returns nil if reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		JobsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asecn",
			Subsystem: "scheduler",
			Name:      "jobs_fired_total",
			Help:      "Total cron jobs fired.",
		}),
		JobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asecn",
			Subsystem: "scheduler",
			Name:      "jobs_succeeded_total",
			Help:      "Total cron jobs whose task finished with status success.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asecn",
			Subsystem: "scheduler",
			Name:      "jobs_failed_total",
			Help:      "Total cron jobs that errored or finished with status error.",
		}),
		JobsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asecn",
			Subsystem: "scheduler",
			Name:      "jobs_skipped_total",
			Help:      "Total cron firings skipped because the previous run was still in flight.",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "asecn",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of each cron job run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		}),
	}

	reg.MustRegister(
		m.JobsFired,
		m.JobsSucceeded,
		m.JobsFailed,
		m.JobsSkipped,
		m.JobDuration,
	)

	return m
}

func (m *Metrics) fired() {
	if m != nil {
		m.JobsFired.Inc()
	}
}

func (m *Metrics) succeeded() {
	if m != nil {
		m.JobsSucceeded.Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.JobsFailed.Inc()
	}
}

func (m *Metrics) skipped() {
	if m != nil {
		m.JobsSkipped.Inc()
	}
}

func (m *Metrics) observe(d time.Duration) {
	if m != nil {
		m.JobDuration.Observe(d.Seconds())
	}
}
