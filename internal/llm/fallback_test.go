package llm

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	name  string
	reply string
	err   error
	calls int
}

func (s *stubProvider) SendMessage(_ context.Context, _ *Request) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Content: s.reply, StopReason: "end_turn"}, nil
}

func (s *stubProvider) Name() string { return s.name }

func TestFallback_FirstSucceeds(t *testing.T) {
	a := &stubProvider{name: "a", reply: "from a"}
	b := &stubProvider{name: "b", reply: "from b"}
	f, err := NewFallbackProvider([]Provider{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := f.SendMessage(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Content != "from a" || b.calls != 0 {
		t.Errorf("content=%q b.calls=%d", resp.Content, b.calls)
	}
	if f.Name() != "a+b" {
		t.Errorf("Name() = %q", f.Name())
	}
}

func TestFallback_UsesNext(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("down")}
	b := &stubProvider{name: "b", reply: "from b"}
	f, _ := NewFallbackProvider([]Provider{a, b}, nil)

	resp, err := f.SendMessage(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Content != "from b" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestFallback_AllFail(t *testing.T) {
	last := errors.New("also down")
	f, _ := NewFallbackProvider([]Provider{
		&stubProvider{name: "a", err: errors.New("down")},
		&stubProvider{name: "b", err: last},
	}, nil)

	_, err := f.SendMessage(context.Background(), &Request{})
	if !errors.Is(err, last) {
		t.Fatalf("err = %v, want wrapping %v", err, last)
	}
}

func TestFallback_RequiresProvider(t *testing.T) {
	if _, err := NewFallbackProvider(nil, nil); err == nil {
		t.Fatal("expected error for empty provider list")
	}
}

func TestFallback_StopsOnCancelledContext(t *testing.T) {
	a := &stubProvider{name: "a", reply: "x"}
	f, _ := NewFallbackProvider([]Provider{a}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.SendMessage(ctx, &Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if a.calls != 0 {
		t.Errorf("provider called after cancellation")
	}
}
