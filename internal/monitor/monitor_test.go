package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/orchestrator"
)

type scriptedExecutor struct {
	steps []func() (*orchestrator.TaskResult, error)
	reqs  []orchestrator.TaskRequest
}

func (s *scriptedExecutor) ExecuteTask(_ context.Context, req orchestrator.TaskRequest) (*orchestrator.TaskResult, error) {
	s.reqs = append(s.reqs, req)
	i := len(s.reqs) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i]()
}

func success(magnitude float64) func() (*orchestrator.TaskResult, error) {
	return func() (*orchestrator.TaskResult, error) {
		return &orchestrator.TaskResult{
			Status:   orchestrator.StatusSuccess,
			Affinity: affinity.Metrics{Magnitude: magnitude},
		}, nil
	}
}

func TestCycle_AdaptiveInterval(t *testing.T) {
	exec := &scriptedExecutor{steps: []func() (*orchestrator.TaskResult, error){success(2.0)}}
	l := New(exec, Config{}, nil, nil)

	got, err := l.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != 900*time.Second {
		t.Errorf("interval = %v, want 15m", got)
	}

	req := exec.reqs[0]
	if req.Description != DefaultTask || req.Workflow != "environment_perception" {
		t.Errorf("request = %+v", req)
	}
	if m, ok := req.Context["affinity_state"].(affinity.Metrics); !ok || m.Magnitude != 1 {
		t.Errorf("context affinity_state = %#v", req.Context["affinity_state"])
	}
}

func TestCycle_ErrorStatusUsesFreshState(t *testing.T) {
	exec := &scriptedExecutor{steps: []func() (*orchestrator.TaskResult, error){
		func() (*orchestrator.TaskResult, error) {
			return &orchestrator.TaskResult{Status: orchestrator.StatusError, Error: "boom"}, nil
		},
	}}
	got, err := New(exec, Config{BaseInterval: time.Minute}, nil, nil).Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != 2*time.Minute {
		t.Errorf("interval = %v, want 2m", got)
	}
}

func TestCycle_FallbackOnErrorAndPanic(t *testing.T) {
	tests := []struct {
		name string
		step func() (*orchestrator.TaskResult, error)
	}{
		{"error", func() (*orchestrator.TaskResult, error) { return nil, errors.New("unknown workflow") }},
		{"panic", func() (*orchestrator.TaskResult, error) { panic("nil map") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExecutor{steps: []func() (*orchestrator.TaskResult, error){tt.step}}
			got, err := New(exec, Config{}, nil, nil).Cycle(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if got != DefaultFallback {
				t.Errorf("interval = %v, want %v", got, DefaultFallback)
			}
		})
	}
}

func TestCycle_CustomConfig(t *testing.T) {
	exec := &scriptedExecutor{steps: []func() (*orchestrator.TaskResult, error){success(0)}}
	l := New(exec, Config{Task: "probe", Workflow: "memory_analysis", Context: map[string]any{"node": "n1"}}, nil, nil)
	if _, err := l.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	req := exec.reqs[0]
	if req.Description != "probe" || req.Workflow != "memory_analysis" || req.Context["node"] != "n1" {
		t.Errorf("request = %+v", req)
	}
}

func TestRun_SleepsAndStopsOnCancel(t *testing.T) {
	exec := &scriptedExecutor{steps: []func() (*orchestrator.TaskResult, error){
		success(1),
		func() (*orchestrator.TaskResult, error) { return nil, errors.New("transient") },
		success(3),
	}}
	reg := prometheus.NewRegistry()
	l := New(exec, Config{}, NewMetrics(reg), nil)

	ctx, cancel := context.WithCancel(context.Background())
	var sleeps []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	err := l.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	want := []time.Duration{600 * time.Second, 60 * time.Second, 1200 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v", sleeps)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], want[i])
		}
	}

	var m dto.Metric
	if err := l.metrics.CyclesTotal.WithLabelValues("error").Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.Counter.GetValue() != 1 {
		t.Errorf("error cycles = %v, want 1", m.Counter.GetValue())
	}
	if err := l.metrics.Interval.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.Gauge.GetValue() != 1200 {
		t.Errorf("interval gauge = %v", m.Gauge.GetValue())
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext = %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext = %v", err)
	}
}
