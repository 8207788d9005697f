// Package scheduler runs configured tasks on cron schedules. Each firing
// goes through the orchestrator exactly like an API-submitted task.
// A job still running when its next firing comes due is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/asecn/asecn/internal/orchestrator"
)

// ErrJobRunning is returned by RunNow when the job is already in flight.
var ErrJobRunning = errors.New("job already running")

// ErrUnknownJob is returned by RunNow for a name that is not scheduled.
var ErrUnknownJob = errors.New("unknown job")

// TaskExecutor runs one task.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, req orchestrator.TaskRequest) (*orchestrator.TaskResult, error)
}

// Job is one scheduled task.
type Job struct {
	Name        string
	Schedule    string // Standard 5-field cron expression.
	Description string
	Workflow    string
	Context     map[string]any
}

// JobStatus describes a scheduled job for listing.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Workflow string    `json:"workflow,omitempty"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitempty"`
	Running  bool      `json:"running"`
}

type entry struct {
	job     Job
	id      cron.EntryID
	running atomic.Bool
}

// Scheduler fires jobs through a TaskExecutor.
type Scheduler struct {
	exec    TaskExecutor
	cron    *cron.Cron
	entries map[string]*entry
	order   []string
	metrics *Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	wg      sync.WaitGroup
}

// New validates every job's schedule and registers it. Nothing fires until Start.
func New(exec TaskExecutor, jobs []Job, metrics *Metrics, logger *slog.Logger) (*Scheduler, error) {
	if exec == nil {
		return nil, fmt.Errorf("scheduler: task executor is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Scheduler{
		exec:    exec,
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		entries: make(map[string]*entry, len(jobs)),
		metrics: metrics,
		logger:  logger,
		baseCtx: context.Background(),
	}
	for _, j := range jobs {
		if j.Name == "" {
			return nil, fmt.Errorf("scheduler: job name is required")
		}
		if _, dup := s.entries[j.Name]; dup {
			return nil, fmt.Errorf("scheduler: duplicate job %q", j.Name)
		}
		e := &entry{job: j}
		id, err := s.cron.AddFunc(j.Schedule, func() { s.fire(e) })
		if err != nil {
			return nil, fmt.Errorf("scheduler: job %q: invalid cron expression %q: %w", j.Name, j.Schedule, err)
		}
		e.id = id
		s.entries[j.Name] = e
		s.order = append(s.order, j.Name)
	}
	return s, nil
}

// Start begins firing jobs. The returned function stops the scheduler and
// waits for in-flight jobs to finish.
func (s *Scheduler) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.InfoContext(ctx, "cron scheduler started", slog.Int("jobs", len(s.entries)))

	return func() {
		<-s.cron.Stop().Done()
		cancel()
		s.wg.Wait()
		s.logger.Info("cron scheduler stopped")
	}
}

// RunNow fires a job immediately and waits for its result.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*orchestrator.TaskResult, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

// Jobs lists scheduled jobs in declaration order.
func (s *Scheduler) Jobs() []JobStatus {
	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		ce := s.cron.Entry(e.id)
		out = append(out, JobStatus{
			Name:     name,
			Schedule: e.job.Schedule,
			Workflow: e.job.Workflow,
			Next:     ce.Next,
			Prev:     ce.Prev,
			Running:  e.running.Load(),
		})
	}
	return out
}

// fire is the cron callback.
func (s *Scheduler) fire(e *entry) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	_, _ = s.run(ctx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) (*orchestrator.TaskResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		s.metrics.skipped()
		s.logger.WarnContext(ctx, "cron job still running, skipping", slog.String("job", e.job.Name))
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, e.job.Name)
	}
	defer e.running.Store(false)

	s.metrics.fired()
	s.logger.InfoContext(ctx, "firing cron job",
		slog.String("job", e.job.Name),
		slog.String("workflow", e.job.Workflow),
	)

	start := time.Now()
	res, err := s.exec.ExecuteTask(ctx, orchestrator.TaskRequest{
		Description: e.job.Description,
		Workflow:    e.job.Workflow,
		Context:     jobContext(e.job),
	})
	s.metrics.observe(time.Since(start))

	switch {
	case err != nil:
		s.metrics.failed()
		s.logger.ErrorContext(ctx, "cron job failed", slog.String("job", e.job.Name), slog.String("error", err.Error()))
		return nil, err
	case res.Status != orchestrator.StatusSuccess:
		s.metrics.failed()
		s.logger.WarnContext(ctx, "cron job finished with error",
			slog.String("job", e.job.Name),
			slog.String("task_id", res.TaskID.String()),
			slog.String("error", res.Error),
		)
	default:
		s.metrics.succeeded()
		s.logger.InfoContext(ctx, "cron job completed",
			slog.String("job", e.job.Name),
			slog.String("task_id", res.TaskID.String()),
			slog.Int("actions", len(res.Results)),
		)
	}
	return res, nil
}

// jobContext copies the job's context and tags it with the job name.
func jobContext(j Job) map[string]any {
	out := make(map[string]any, len(j.Context)+1)
	for k, v := range j.Context {
		out[k] = v
	}
	out["cron_job"] = j.Name
	return out
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ComputeNextRunFrom computes the next run time of expr after from.
func ComputeNextRunFrom(expr string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(from), nil
}
