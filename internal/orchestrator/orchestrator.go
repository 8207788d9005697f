// Package orchestrator ties workflow selection, planning, dispatch and
// affinity aggregation together into task execution.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/dispatch"
	"github.com/asecn/asecn/internal/workflow"
)

// Deps are the collaborators an Orchestrator drives. Sink, Pool, Metrics and
// Tracer are optional.
type Deps struct {
	Directory    AgentDirectory
	Selector     WorkflowSelector
	Conversation ConversationBackend
	Dispatcher   ActionDispatcher
	Sink         PersistenceSink
	Pool         *dispatch.Pool
	Metrics      *Metrics
	Tracer       trace.Tracer
}

// Orchestrator executes tasks and owns the process-wide affinity map.
type Orchestrator struct {
	deps   Deps
	config Config
	logger *slog.Logger
	tracer trace.Tracer
	states *stateMap
	now    func() time.Time

	mu        sync.RWMutex
	observers []ResultObserver

	shutdown sync.Once
}

// New creates an orchestrator. Directory, Selector, Conversation and
// Dispatcher are required.
func New(deps Deps, config Config, logger *slog.Logger) (*Orchestrator, error) {
	switch {
	case deps.Directory == nil:
		return nil, errors.New("orchestrator: agent directory is required")
	case deps.Selector == nil:
		return nil, errors.New("orchestrator: workflow selector is required")
	case deps.Conversation == nil:
		return nil, errors.New("orchestrator: conversation backend is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("orchestrator: dispatcher is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Orchestrator{
		deps:   deps,
		config: config,
		logger: logger,
		tracer: tracer,
		states: newStateMap(),
		now:    time.Now,
	}, nil
}

// Observe registers fn to be called with every task result.
func (o *Orchestrator) Observe(fn ResultObserver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, fn)
}

// ExecuteTask runs one task end to end. The only error returned is a
// *workflow.UnknownWorkflowError, in which case the affinity map is left
// untouched. Every other failure is reported as a result with status "error".
func (o *Orchestrator) ExecuteTask(ctx context.Context, req TaskRequest) (*TaskResult, error) {
	start := o.now()
	res := &TaskResult{
		TaskID:      uuid.New(),
		Description: req.Description,
		Workflow:    req.Workflow,
		Results:     []dispatch.ActionResult{},
		StartedAt:   start.UTC(),
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.ExecuteTask",
		trace.WithAttributes(attribute.String("task.id", res.TaskID.String())),
	)
	defer span.End()

	if res.Workflow == "" {
		res.Workflow = o.deps.Selector.Select(req.Description)
	}
	span.SetAttributes(attribute.String("workflow", res.Workflow))

	def, err := o.deps.Directory.Resolve(res.Workflow)
	if err != nil {
		var unknown *workflow.UnknownWorkflowError
		if errors.As(err, &unknown) {
			span.SetStatus(codes.Error, err.Error())
			if o.deps.Metrics != nil {
				o.deps.Metrics.TasksTotal.WithLabelValues("unknown", "rejected").Inc()
			}
			return nil, err
		}
		o.fail(ctx, res, fmt.Errorf("resolving workflow: %w", err))
		o.finish(ctx, span, res, start)
		return res, nil
	}

	// The state is committed only after the workflow resolved.
	prior := affinity.New()
	o.states.put(req.Description, prior)

	if o.deps.Metrics != nil {
		o.deps.Metrics.ActiveTasks.Inc()
		defer o.deps.Metrics.ActiveTasks.Dec()
	}

	o.logger.InfoContext(ctx, "task started",
		slog.String("task_id", res.TaskID.String()),
		slog.String("workflow", def.Name),
		slog.String("description", req.Description),
	)

	o.run(ctx, req, def, prior, res)
	o.finish(ctx, span, res, start)
	return res, nil
}

// run performs planning, dispatch, validation and aggregation. A panic in
// any collaborator becomes an error result.
func (o *Orchestrator) run(ctx context.Context, req TaskRequest, def workflow.Definition, prior affinity.State, res *TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, res, fmt.Errorf("panic: %v", r))
		}
	}()

	plan, err := o.deps.Conversation.Plan(ctx, def, req.Description)
	if err != nil {
		o.fail(ctx, res, fmt.Errorf("planning: %w", err))
		return
	}

	dctx, span := o.tracer.Start(ctx, "orchestrator.Dispatch",
		trace.WithAttributes(attribute.Int("actions", len(plan))),
	)
	results := o.deps.Dispatcher.Dispatch(dctx, plan, req.Context)
	span.End()
	if results == nil {
		results = []dispatch.ActionResult{}
	}
	res.Results = results
	o.countActions(results)

	if reason := validate(plan, results); reason != "" {
		if o.deps.Metrics != nil {
			o.deps.Metrics.ValidationWarnings.Inc()
		}
		o.logger.WarnContext(ctx, "task results failed validation",
			slog.String("task_id", res.TaskID.String()),
			slog.String("workflow", def.Name),
			slog.String("reason", reason),
			slog.String("policy", string(o.config.validation())),
		)
		if o.config.validation() == ValidationEnforce {
			res.Status = StatusError
			res.Error = "validation failed: " + reason
		}
	}

	states := make([]affinity.State, 0, len(results)+1)
	states = append(states, prior)
	for _, r := range results {
		if r.Affinity != nil {
			states = append(states, *r.Affinity)
			continue
		}
		states = append(states, prior)
	}
	final := affinity.Combine(states...)
	o.states.put(req.Description, final)
	res.Affinity = final.Metrics()

	if res.Status == "" {
		res.Status = StatusSuccess
	}
	if !o.config.OmitHistory {
		res.History = o.deps.Conversation.History()
	}
}

// validate returns a non-empty reason when the result set is invalid: empty
// for a non-empty plan, or every entry failed.
func validate(plan []string, results []dispatch.ActionResult) string {
	if len(results) == 0 {
		if len(plan) > 0 {
			return "no results for a non-empty plan"
		}
		return ""
	}
	for _, r := range results {
		if !r.Error {
			return ""
		}
	}
	return fmt.Sprintf("all %d actions failed", len(results))
}

func (o *Orchestrator) fail(ctx context.Context, res *TaskResult, err error) {
	res.Status = StatusError
	res.Error = err.Error()
	o.logger.ErrorContext(ctx, "task execution failed",
		slog.String("task_id", res.TaskID.String()),
		slog.String("workflow", res.Workflow),
		slog.String("error", err.Error()),
	)
}

func (o *Orchestrator) countActions(results []dispatch.ActionResult) {
	if o.deps.Metrics == nil {
		return
	}
	for _, r := range results {
		status := "ok"
		if r.Error {
			status = "error"
		}
		o.deps.Metrics.ActionsTotal.WithLabelValues(status).Inc()
	}
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, res *TaskResult, start time.Time) {
	res.Duration = o.now().Sub(start)

	if res.Status == StatusError {
		span.SetStatus(codes.Error, res.Error)
	}
	if m := o.deps.Metrics; m != nil {
		m.TasksTotal.WithLabelValues(res.Workflow, res.Status).Inc()
		m.TaskDuration.WithLabelValues(res.Workflow).Observe(res.Duration.Seconds())
		if res.Status == StatusSuccess {
			m.AffinityMagnitude.WithLabelValues(res.Workflow).Set(res.Affinity.Magnitude)
		}
	}

	o.logger.InfoContext(ctx, "task finished",
		slog.String("task_id", res.TaskID.String()),
		slog.String("workflow", res.Workflow),
		slog.String("status", res.Status),
		slog.Int("actions", len(res.Results)),
		slog.Float64("magnitude", res.Affinity.Magnitude),
		slog.Duration("duration", res.Duration),
	)

	o.mu.RLock()
	observers := o.observers
	o.mu.RUnlock()
	for _, fn := range observers {
		o.notify(ctx, fn, res)
	}
}

// notify runs one observer. A panicking observer is logged and skipped.
func (o *Orchestrator) notify(ctx context.Context, fn ResultObserver, res *TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "result observer panicked",
				slog.String("task_id", res.TaskID.String()),
				slog.Any("panic", r),
			)
		}
	}()
	fn(ctx, res)
}

// State returns the current affinity state stored for description.
func (o *Orchestrator) State(description string) (affinity.State, bool) {
	return o.states.get(description)
}

// Snapshot projects every stored state.
func (o *Orchestrator) Snapshot() map[string]affinity.Metrics {
	return o.states.snapshot()
}

// Shutdown flushes the affinity snapshot and the conversation dump to the
// sink and closes the worker pool. It runs once; failures are logged and
// never returned.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutdown.Do(func() {
		if o.deps.Sink != nil {
			tasks := o.states.len()
			snapshot := o.states.snapshot()
			if err := o.deps.Sink.SaveAffinity(ctx, snapshot); err != nil {
				o.logger.ErrorContext(ctx, "saving affinity snapshot",
					slog.String("error", err.Error()),
				)
			} else {
				o.states.clear()
				o.logger.InfoContext(ctx, "affinity snapshot saved", slog.Int("tasks", tasks))
			}
			if err := o.deps.Sink.SaveConversation(ctx, o.deps.Conversation.Dump()); err != nil {
				o.logger.ErrorContext(ctx, "saving conversation history",
					slog.String("error", err.Error()),
				)
			}
		}
		if o.deps.Pool != nil {
			o.deps.Pool.Close()
		}
		o.logger.InfoContext(ctx, "orchestrator shut down")
	})
	return nil
}
