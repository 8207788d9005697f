package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the orchestrator's Prometheus metrics under asecn_orchestrator_.
type Metrics struct {
	TasksTotal         *prometheus.CounterVec
	TaskDuration       *prometheus.HistogramVec
	ActionsTotal       *prometheus.CounterVec
	ValidationWarnings prometheus.Counter
	AffinityMagnitude  *prometheus.GaugeVec
	ActiveTasks        prometheus.Gauge
}

// NewMetrics creates and registers orchestrator metrics on reg.
// Returns nil if reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asecn",
			Subsystem: "orchestrator",
			Name:      "tasks_total",
			Help:      "Total tasks by workflow and final status.",
		}, []string{"workflow", "status"}),

		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "asecn",
			Subsystem: "orchestrator",
			Name:      "task_duration_seconds",
			Help:      "Task duration in seconds by workflow.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"workflow"}),

		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asecn",
			Subsystem: "orchestrator",
			Name:      "actions_total",
			Help:      "Total dispatched sub-actions by outcome (ok, error).",
		}, []string{"status"}),

		ValidationWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asecn",
			Subsystem: "orchestrator",
			Name:      "validation_warnings_total",
			Help:      "Result sets that were empty or entirely failed.",
		}),

		AffinityMagnitude: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "asecn",
			Subsystem: "orchestrator",
			Name:      "affinity_magnitude",
			Help:      "Affinity magnitude of the last task per workflow.",
		}, []string{"workflow"}),

		ActiveTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "asecn",
			Subsystem: "orchestrator",
			Name:      "active_tasks",
			Help:      "Number of tasks currently executing.",
		}),
	}

	reg.MustRegister(
		m.TasksTotal,
		m.TaskDuration,
		m.ActionsTotal,
		m.ValidationWarnings,
		m.AffinityMagnitude,
		m.ActiveTasks,
	)

	return m
}
