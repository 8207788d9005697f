// Package monitor runs the continuous monitoring cycle: a fixed task is
// executed through the orchestrator and the loop then sleeps for an interval
// derived from the task's affinity state.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/orchestrator"
)

const (
	DefaultTask         = "Monitor system state with pattern detection"
	DefaultWorkflow     = "environment_perception"
	DefaultBaseInterval = 300 * time.Second
	DefaultFallback     = 60 * time.Second
)

// TaskExecutor is the part of the orchestrator the loop needs.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, req orchestrator.TaskRequest) (*orchestrator.TaskResult, error)
}

// Config configures the loop. Zero values select the defaults above.
type Config struct {
	Task         string
	Workflow     string
	Context      map[string]any
	BaseInterval time.Duration
	Fallback     time.Duration
}

func (c Config) task() string {
	if c.Task != "" {
		return c.Task
	}
	return DefaultTask
}

func (c Config) workflow() string {
	if c.Workflow != "" {
		return c.Workflow
	}
	return DefaultWorkflow
}

func (c Config) baseInterval() time.Duration {
	if c.BaseInterval > 0 {
		return c.BaseInterval
	}
	return DefaultBaseInterval
}

func (c Config) fallback() time.Duration {
	if c.Fallback > 0 {
		return c.Fallback
	}
	return DefaultFallback
}

// Loop is the monitoring cycle.
type Loop struct {
	exec    TaskExecutor
	config  Config
	metrics *Metrics
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a loop. metrics may be nil.
func New(exec TaskExecutor, config Config, metrics *Metrics, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loop{
		exec:    exec,
		config:  config,
		metrics: metrics,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Run cycles until ctx is cancelled and then returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.logger.InfoContext(ctx, "monitoring loop started",
		slog.String("workflow", l.config.workflow()),
		slog.Duration("base_interval", l.config.baseInterval()),
	)
	for {
		interval, err := l.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.ErrorContext(ctx, "monitoring cycle failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", interval),
			)
		}
		if err := l.sleep(ctx, interval); err != nil {
			l.logger.InfoContext(ctx, "monitoring loop stopped")
			return err
		}
	}
}

// Cycle runs one monitoring task and returns how long to wait before the
// next one. On failure it returns the fallback interval with the error.
func (l *Loop) Cycle(ctx context.Context) (interval time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			interval = l.config.fallback()
			l.metrics.observe("error", interval)
		}
	}()

	actx := make(map[string]any, len(l.config.Context)+1)
	for k, v := range l.config.Context {
		actx[k] = v
	}
	fresh := affinity.New()
	actx["affinity_state"] = fresh.Metrics()

	res, err := l.exec.ExecuteTask(ctx, orchestrator.TaskRequest{
		Description: l.config.task(),
		Workflow:    l.config.workflow(),
		Context:     actx,
	})
	if err != nil {
		return 0, err
	}

	state := fresh
	if res.Status == orchestrator.StatusSuccess {
		state = res.Affinity.State()
	}
	interval = affinity.AdaptiveInterval(state, l.config.baseInterval())
	l.metrics.observe(res.Status, interval)

	l.logger.DebugContext(ctx, "monitoring cycle finished",
		slog.String("status", res.Status),
		slog.Float64("magnitude", state.Magnitude),
		slog.Duration("next_in", interval),
	)
	return interval, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
