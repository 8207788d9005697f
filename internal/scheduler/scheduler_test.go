package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/asecn/asecn/internal/orchestrator"
)

type fakeExecutor struct {
	mu      sync.Mutex
	reqs    []orchestrator.TaskRequest
	status  string
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeExecutor) ExecuteTask(ctx context.Context, req orchestrator.TaskRequest) (*orchestrator.TaskResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == "" {
		status = orchestrator.StatusSuccess
	}
	return &orchestrator.TaskResult{TaskID: uuid.New(), Description: req.Description, Status: status}, nil
}

func counter(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestNew_RejectsBadJobs(t *testing.T) {
	exec := &fakeExecutor{}
	tests := []struct {
		name string
		jobs []Job
	}{
		{"invalid schedule", []Job{{Name: "a", Schedule: "not cron"}}},
		{"missing name", []Job{{Schedule: "* * * * *"}}},
		{"duplicate", []Job{{Name: "a", Schedule: "* * * * *"}, {Name: "a", Schedule: "@daily"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(exec, tt.jobs, nil, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil executor")
	}
}

func TestRunNow_SubmitsTask(t *testing.T) {
	exec := &fakeExecutor{}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s, err := New(exec, []Job{{
		Name:        "nightly",
		Schedule:    "0 3 * * *",
		Description: "optimize memory layout",
		Workflow:    "system_evolution",
		Context:     map[string]any{"scope": "all"},
	}}, m, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := s.RunNow(context.Background(), "nightly")
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if res.Status != orchestrator.StatusSuccess {
		t.Errorf("status = %q", res.Status)
	}
	if len(exec.reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(exec.reqs))
	}
	req := exec.reqs[0]
	if req.Description != "optimize memory layout" || req.Workflow != "system_evolution" {
		t.Errorf("request = %+v", req)
	}
	if req.Context["scope"] != "all" || req.Context["cron_job"] != "nightly" {
		t.Errorf("context = %v", req.Context)
	}
	if counter(t, m.JobsFired) != 1 || counter(t, m.JobsSucceeded) != 1 {
		t.Errorf("fired=%v succeeded=%v", counter(t, m.JobsFired), counter(t, m.JobsSucceeded))
	}
}

func TestRunNow_Failures(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	errExec := &fakeExecutor{err: errors.New("boom")}
	s, _ := New(errExec, []Job{{Name: "a", Schedule: "@hourly", Description: "x"}}, m, nil)
	if _, err := s.RunNow(context.Background(), "a"); err == nil {
		t.Error("expected executor error")
	}

	statusExec := &fakeExecutor{status: orchestrator.StatusError}
	s, _ = New(statusExec, []Job{{Name: "b", Schedule: "@hourly", Description: "x"}}, NewMetrics(prometheus.NewRegistry()), nil)
	res, err := s.RunNow(context.Background(), "b")
	if err != nil || res.Status != orchestrator.StatusError {
		t.Errorf("res = %+v, err = %v", res, err)
	}

	if counter(t, m.JobsFailed) != 1 {
		t.Errorf("failed = %v, want 1", counter(t, m.JobsFailed))
	}
	if _, err := s.RunNow(context.Background(), "ghost"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
}

func TestRunNow_SkipsOverlap(t *testing.T) {
	exec := &fakeExecutor{block: make(chan struct{}), started: make(chan struct{}, 1)}
	m := NewMetrics(prometheus.NewRegistry())
	s, _ := New(exec, []Job{{Name: "slow", Schedule: "@hourly", Description: "x"}}, m, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunNow(context.Background(), "slow")
	}()
	<-exec.started

	if _, err := s.RunNow(context.Background(), "slow"); !errors.Is(err, ErrJobRunning) {
		t.Errorf("err = %v, want ErrJobRunning", err)
	}
	if !s.Jobs()[0].Running {
		t.Error("job should report running")
	}
	close(exec.block)
	<-done

	if counter(t, m.JobsSkipped) != 1 {
		t.Errorf("skipped = %v, want 1", counter(t, m.JobsSkipped))
	}
	if s.Jobs()[0].Running {
		t.Error("job should no longer be running")
	}
}

func TestStart_PopulatesNextRun(t *testing.T) {
	s, _ := New(&fakeExecutor{}, []Job{{Name: "a", Schedule: "@daily", Description: "x"}}, nil, nil)
	stop := s.Start(context.Background())
	defer stop()

	jobs := s.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	if jobs[0].Next.IsZero() {
		t.Error("next run should be set once started")
	}
}

func TestComputeNextRunFrom(t *testing.T) {
	from := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 3 * * *", time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 1, 1, 12, 45, 0, 0, time.UTC)},
		{"@hourly", time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ComputeNextRunFrom(tt.expr, from)
		if err != nil {
			t.Fatalf("%s: %v", tt.expr, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("%s: next = %v, want %v", tt.expr, got, tt.want)
		}
	}
	if _, err := ComputeNextRunFrom("bad", from); err == nil {
		t.Error("expected error for bad expression")
	}
}

func TestNewMetrics_NilRegistry(t *testing.T) {
	if NewMetrics(nil) != nil {
		t.Error("expected nil metrics for nil registry")
	}
	var m *Metrics
	m.fired()
	m.observe(time.Second)
}
