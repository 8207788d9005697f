package affinity

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

const tolerance = 1e-9

func TestNew(t *testing.T) {
	s := New()
	if s.Magnitude != 1.0 || s.Phase != 0.0 || len(s.Links) != 0 {
		t.Fatalf("New() = %+v, want magnitude 1, phase 0, no links", s)
	}
}

func TestCombine_EmptyEqualsNew(t *testing.T) {
	got := Combine()
	want := New()
	if got.Magnitude != want.Magnitude || got.Phase != want.Phase || len(got.Links) != 0 {
		t.Fatalf("Combine() = %+v, want %+v", got, want)
	}
}

func TestCombine_Single(t *testing.T) {
	got := Combine(State{Magnitude: 2, Phase: 0.5, Links: []Link{{A: "a", B: "b"}}})
	if math.Abs(got.Magnitude-2) > tolerance {
		t.Errorf("magnitude = %f, want 2", got.Magnitude)
	}
	if math.Abs(got.Phase-0.5) > tolerance {
		t.Errorf("phase = %f, want 0.5", got.Phase)
	}
	if len(got.Links) != 0 {
		t.Errorf("links should be reset, got %d", len(got.Links))
	}
}

func TestCombine_Interference(t *testing.T) {
	tests := []struct {
		name          string
		states        []State
		wantMagnitude float64
		wantPhase     float64
	}{
		{
			name:          "two aligned unit states",
			states:        []State{New(), New()},
			wantMagnitude: 2 / math.Sqrt(2),
			wantPhase:     0,
		},
		{
			name:          "opposed phases cancel",
			states:        []State{{Magnitude: 1, Phase: 0}, {Magnitude: 1, Phase: math.Pi}},
			wantMagnitude: 0,
			wantPhase:     math.Pi / 2,
		},
		{
			name:          "four aligned unit states",
			states:        []State{New(), New(), New(), New()},
			wantMagnitude: 2,
			wantPhase:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.states...)
			if math.Abs(got.Magnitude-tt.wantMagnitude) > tolerance {
				t.Errorf("magnitude = %f, want %f", got.Magnitude, tt.wantMagnitude)
			}
			if math.Abs(got.Phase-tt.wantPhase) > tolerance {
				t.Errorf("phase = %f, want %f", got.Phase, tt.wantPhase)
			}
			if got.Magnitude < 0 {
				t.Errorf("magnitude must not be negative: %f", got.Magnitude)
			}
		})
	}
}

func TestCombine_OrderInsensitive(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 100; iter++ {
		n := 1 + rng.Intn(8)
		states := make([]State, n)
		for i := range states {
			states[i] = State{
				Magnitude: rng.Float64() * 3,
				Phase:     (rng.Float64() - 0.5) * 4 * math.Pi,
			}
		}
		base := Combine(states...)

		perm := make([]State, n)
		for i, j := range rng.Perm(n) {
			perm[i] = states[j]
		}
		got := Combine(perm...)

		if math.Abs(got.Magnitude-base.Magnitude) > 1e-6 {
			t.Fatalf("iteration %d: magnitude %f != %f after permutation", iter, got.Magnitude, base.Magnitude)
		}
		if math.Abs(got.Phase-base.Phase) > 1e-6 {
			t.Fatalf("iteration %d: phase %f != %f after permutation", iter, got.Phase, base.Phase)
		}
	}
}

func TestMetrics(t *testing.T) {
	s := State{Magnitude: 1.5, Phase: -0.25, Links: []Link{{A: "x", B: "y"}, {A: "y", B: "z"}}}
	m := s.Metrics()
	if m.Magnitude != 1.5 || m.Phase != -0.25 || m.LinkCount != 2 {
		t.Fatalf("Metrics() = %+v", m)
	}
}

func TestAdaptiveInterval(t *testing.T) {
	got := AdaptiveInterval(State{Magnitude: 2.0}, 300*time.Second)
	if got != 900*time.Second {
		t.Fatalf("AdaptiveInterval = %s, want 900s", got)
	}

	got = AdaptiveInterval(New(), 300*time.Second)
	if got != 600*time.Second {
		t.Fatalf("AdaptiveInterval(New()) = %s, want 600s", got)
	}
}
