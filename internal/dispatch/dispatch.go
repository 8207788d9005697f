// Package dispatch fans a sub-action plan out to a command executor and
// joins the results back in plan order.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/asecn/asecn/internal/affinity"
)

// ActionResult is the outcome of one sub-action.
type ActionResult struct {
	Error    bool            `json:"error"`
	Message  string          `json:"message,omitempty"`
	Command  string          `json:"command"`
	Output   string          `json:"output,omitempty"`
	Affinity *affinity.State `json:"affinity,omitempty"`
	Duration time.Duration   `json:"duration_ns"`
}

// Failed builds an error result for command.
func Failed(command, message string) ActionResult {
	return ActionResult{Error: true, Message: message, Command: command}
}

// Executor performs a single sub-action. Implementations must reject
// denylisted commands with an error result instead of running them.
type Executor interface {
	Execute(ctx context.Context, action string, actx map[string]any) (ActionResult, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, action string, actx map[string]any) (ActionResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, action string, actx map[string]any) (ActionResult, error) {
	return f(ctx, action, actx)
}

// Dispatcher runs every action of a plan concurrently.
type Dispatcher struct {
	executor Executor
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher bound to executor.
func NewDispatcher(executor Executor, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{executor: executor, logger: logger}
}

// Dispatch submits all actions at once and returns one result per action in
// input order. A failing or panicking action only fills its own slot with an
// error result. Actions that have not started when ctx is cancelled are
// recorded as cancelled. An empty plan yields an empty, non-nil slice.
func (d *Dispatcher) Dispatch(ctx context.Context, actions []string, actx map[string]any) []ActionResult {
	results := make([]ActionResult, len(actions))
	if len(actions) == 0 {
		return results
	}

	var wg sync.WaitGroup
	for i, action := range actions {
		wg.Add(1)
		go func(i int, action string) {
			defer wg.Done()
			results[i] = d.run(ctx, action, actx)
		}(i, action)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) run(ctx context.Context, action string, actx map[string]any) (res ActionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "sub-action panicked",
				slog.String("command", action),
				slog.Any("panic", r),
			)
			res = Failed(action, fmt.Sprintf("panic: %v", r))
		}
		res.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		return Failed(action, fmt.Sprintf("cancelled: %v", err))
	}

	out, err := d.executor.Execute(ctx, action, actx)
	if err != nil {
		d.logger.WarnContext(ctx, "sub-action failed",
			slog.String("command", action),
			slog.String("error", err.Error()),
		)
		return Failed(action, err.Error())
	}
	if out.Command == "" {
		out.Command = action
	}
	return out
}
