package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the monitoring loop's Prometheus metrics.
type Metrics struct {
	CyclesTotal *prometheus.CounterVec
	Interval    prometheus.Gauge
}

// NewMetrics creates and registers monitor metrics. Returns nil if reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asecn",
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Monitoring cycles by outcome.",
		}, []string{"status"}),
		Interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "asecn",
			Subsystem: "monitor",
			Name:      "interval_seconds",
			Help:      "Current wait before the next monitoring cycle.",
		}),
	}
	reg.MustRegister(m.CyclesTotal, m.Interval)
	return m
}

func (m *Metrics) observe(status string, interval time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.Interval.Set(interval.Seconds())
}
