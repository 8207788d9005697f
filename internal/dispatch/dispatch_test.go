package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func echoExecutor() Executor {
	return ExecutorFunc(func(_ context.Context, action string, _ map[string]any) (ActionResult, error) {
		return ActionResult{Command: action, Output: "done: " + action}, nil
	})
}

func TestDispatch_Empty(t *testing.T) {
	d := NewDispatcher(echoExecutor(), nil)
	got := d.Dispatch(context.Background(), nil, nil)
	if got == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

func TestDispatch_PreservesOrderUnderRandomDelays(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		n := 1 + rng.Intn(25)
		actions := make([]string, n)
		delays := make(map[string]time.Duration, n)
		for i := range actions {
			actions[i] = fmt.Sprintf("action-%d-%d", trial, i)
			delays[actions[i]] = time.Duration(rng.Intn(5)) * time.Millisecond
		}

		exec := ExecutorFunc(func(ctx context.Context, action string, _ map[string]any) (ActionResult, error) {
			time.Sleep(delays[action])
			return ActionResult{Output: strings.ToUpper(action)}, nil
		})

		got := NewDispatcher(exec, nil).Dispatch(context.Background(), actions, nil)
		if len(got) != n {
			t.Fatalf("trial %d: len = %d, want %d", trial, len(got), n)
		}
		for i, r := range got {
			if r.Command != actions[i] {
				t.Fatalf("trial %d slot %d: command = %q, want %q", trial, i, r.Command, actions[i])
			}
			if r.Output != strings.ToUpper(actions[i]) {
				t.Fatalf("trial %d slot %d: output = %q", trial, i, r.Output)
			}
		}
	}
}

func TestDispatch_RunsConcurrently(t *testing.T) {
	var active, peak int32
	exec := ExecutorFunc(func(_ context.Context, action string, _ map[string]any) (ActionResult, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return ActionResult{}, nil
	})

	NewDispatcher(exec, nil).Dispatch(context.Background(), []string{"a", "b", "c", "d"}, nil)
	if atomic.LoadInt32(&peak) < 2 {
		t.Errorf("peak concurrency = %d, expected actions to overlap", peak)
	}
}

func TestDispatch_IsolatesFailures(t *testing.T) {
	exec := ExecutorFunc(func(_ context.Context, action string, _ map[string]any) (ActionResult, error) {
		switch action {
		case "boom":
			return ActionResult{}, errors.New("exploded")
		case "panic":
			panic("bad executor")
		}
		return ActionResult{Output: "ok"}, nil
	})

	got := NewDispatcher(exec, nil).Dispatch(context.Background(), []string{"first", "boom", "panic", "last"}, nil)

	tests := []struct {
		idx     int
		wantErr bool
		msg     string
	}{
		{0, false, ""},
		{1, true, "exploded"},
		{2, true, "panic: bad executor"},
		{3, false, ""},
	}
	for _, tt := range tests {
		r := got[tt.idx]
		if r.Error != tt.wantErr {
			t.Errorf("slot %d: Error = %v, want %v", tt.idx, r.Error, tt.wantErr)
		}
		if tt.msg != "" && r.Message != tt.msg {
			t.Errorf("slot %d: Message = %q, want %q", tt.idx, r.Message, tt.msg)
		}
		if tt.wantErr && r.Command == "" {
			t.Errorf("slot %d: error result must carry the command", tt.idx)
		}
	}
}

func TestDispatch_CancelledContext(t *testing.T) {
	var calls int32
	exec := ExecutorFunc(func(_ context.Context, action string, _ map[string]any) (ActionResult, error) {
		atomic.AddInt32(&calls, 1)
		return ActionResult{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := NewDispatcher(exec, nil).Dispatch(ctx, []string{"x", "y"}, nil)
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("executor called %d times after cancellation", calls)
	}
	for i, r := range got {
		if !r.Error || !strings.HasPrefix(r.Message, "cancelled") {
			t.Errorf("slot %d = %+v, want cancelled error", i, r)
		}
	}
}

func TestDispatch_PassesContext(t *testing.T) {
	exec := ExecutorFunc(func(_ context.Context, action string, actx map[string]any) (ActionResult, error) {
		return ActionResult{Output: fmt.Sprint(actx["env"])}, nil
	})
	got := NewDispatcher(exec, nil).Dispatch(context.Background(), []string{"a"}, map[string]any{"env": "prod"})
	if got[0].Output != "prod" {
		t.Errorf("output = %q, want prod", got[0].Output)
	}
}

// --- Pool ---

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	var active, peak int32
	done := make(chan struct{}, 6)
	for i := 0; i < 6; i++ {
		err := p.Go(context.Background(), func(context.Context) {
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			done <- struct{}{}
		})
		if err != nil {
			t.Fatalf("Go: %v", err)
		}
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	if peak > 2 {
		t.Errorf("peak = %d, want <= 2", peak)
	}
}

func TestPool_DefaultSize(t *testing.T) {
	if got := NewPool(0).Size(); got != DefaultPoolSize {
		t.Errorf("Size() = %d, want %d", got, DefaultPoolSize)
	}
}

func TestPool_RunReturnsError(t *testing.T) {
	p := NewPool(1)
	want := errors.New("nope")
	if err := p.Run(context.Background(), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("Run err = %v, want %v", err, want)
	}
}

func TestPool_Closed(t *testing.T) {
	p := NewPool(1)
	p.Close()
	p.Close()

	err := p.Run(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Run after Close = %v, want ErrPoolClosed", err)
	}
	if err := p.Go(context.Background(), func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Go after Close = %v, want ErrPoolClosed", err)
	}
}

func TestPool_RunHonoursContext(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Go(context.Background(), func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Run(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
	close(release)
}
