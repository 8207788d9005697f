package observability

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/asecn/asecn/internal/config"
)

const (
	defaultAnomalyWindow     = 300 * time.Second
	defaultAnomalyThreshold  = 0.5
	defaultAnomalyMinSamples = 5
)

// AnomalyDetector flags operations whose error rate over a sliding window
// crosses a threshold. Operations are free-form keys such as "llm_request"
// or "task:memory_analysis".
type AnomalyDetector struct {
	mu        sync.Mutex
	errors    map[string]*slidingWindow
	successes map[string]*slidingWindow
	flagged   map[string]bool
	window    time.Duration
	threshold float64
	min       float64
	metrics   *MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

type slidingWindow struct {
	entries []time.Time
	window  time.Duration
}

// NewAnomalyDetector creates an anomaly detector from config. metrics may be nil.
func NewAnomalyDetector(cfg *config.AnomalyConfig, metrics *MetricsCollector, logger *slog.Logger) *AnomalyDetector {
	a := &AnomalyDetector{
		errors:    make(map[string]*slidingWindow),
		successes: make(map[string]*slidingWindow),
		flagged:   make(map[string]bool),
		window:    defaultAnomalyWindow,
		threshold: defaultAnomalyThreshold,
		min:       defaultAnomalyMinSamples,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
	if cfg != nil {
		if cfg.WindowSeconds > 0 {
			a.window = time.Duration(cfg.WindowSeconds) * time.Second
		}
		if cfg.ErrorRateThreshold > 0 {
			a.threshold = cfg.ErrorRateThreshold
		}
		if cfg.MinSamples > 0 {
			a.min = float64(cfg.MinSamples)
		}
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a
}

// RecordError records a failed operation and checks the error rate.
func (a *AnomalyDetector) RecordError(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.windowFor(a.errors, operation).add(a.now())
	a.check(operation)
}

// RecordSuccess records a successful operation.
func (a *AnomalyDetector) RecordSuccess(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.windowFor(a.successes, operation).add(a.now())
	a.check(operation)
}

// Record dispatches to RecordError or RecordSuccess.
func (a *AnomalyDetector) Record(operation string, failed bool) {
	if failed {
		a.RecordError(operation)
		return
	}
	a.RecordSuccess(operation)
}

// ErrorRate returns the current error rate of an operation and the sample count.
func (a *AnomalyDetector) ErrorRate(operation string) (rate float64, samples int) {
	if a == nil {
		return 0, 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	errs, total := a.counts(operation)
	if total == 0 {
		return 0, 0
	}
	return errs / total, int(total)
}

// Anomalous reports whether the operation is currently above threshold.
func (a *AnomalyDetector) Anomalous(operation string) bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flagged[operation]
}

func (a *AnomalyDetector) counts(operation string) (errs, total float64) {
	now := a.now()
	errs = float64(a.windowFor(a.errors, operation).count(now))
	total = errs + float64(a.windowFor(a.successes, operation).count(now))
	return errs, total
}

// check updates the flagged state and reports transitions. Must be called with a.mu held.
func (a *AnomalyDetector) check(operation string) {
	errs, total := a.counts(operation)
	if total < a.min {
		return
	}
	rate := errs / total
	was := a.flagged[operation]
	over := rate > a.threshold
	a.flagged[operation] = over

	switch {
	case over && !was:
		if a.metrics != nil {
			a.metrics.AnomaliesTotal.WithLabelValues(operation).Inc()
		}
		a.logger.Warn("anomaly detected: high error rate",
			slog.String("operation", operation),
			slog.Float64("error_rate", rate),
			slog.Float64("threshold", a.threshold),
			slog.Float64("errors", errs),
			slog.Float64("total", total),
		)
	case was && !over:
		a.logger.Info("anomaly cleared",
			slog.String("operation", operation),
			slog.Float64("error_rate", rate),
		)
	}
}

func (a *AnomalyDetector) windowFor(m map[string]*slidingWindow, key string) *slidingWindow {
	w, ok := m[key]
	if !ok {
		w = &slidingWindow{window: a.window}
		m[key] = w
	}
	return w
}

func (w *slidingWindow) add(t time.Time) {
	w.entries = append(w.entries, t)
	w.prune(t)
}

func (w *slidingWindow) count(now time.Time) int {
	w.prune(now)
	return len(w.entries)
}

// prune removes entries older than the window duration.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}
