// Package affinity implements the per-task affinity state used to weight
// workflow feedback and pace the monitoring loop.
//
// A state is a magnitude/phase pair. Combining states sums the complex values
// m·e^{iφ} they describe and normalizes by sqrt(n), so aligned phases reinforce
// each other and opposed phases cancel. The arithmetic is deterministic.
package affinity

import (
	"math"
	"math/cmplx"
	"time"
)

// Link pairs two task descriptions whose states are coupled.
type Link struct {
	A string `json:"a"`
	B string `json:"b"`
}

// State is the affinity state of a single task.
type State struct {
	Magnitude float64 `json:"magnitude"` // Modulus of the accumulated value. Never negative.
	Phase     float64 `json:"phase"`     // Radians, unconstrained.
	Links     []Link  `json:"links,omitempty"`
}

// Metrics is a read-only projection of a State.
type Metrics struct {
	Magnitude float64 `json:"magnitude" yaml:"magnitude"`
	Phase     float64 `json:"phase" yaml:"phase"`
	LinkCount int     `json:"link_count" yaml:"link_count"`
}

// New returns the initial state: magnitude 1, phase 0, no links.
func New() State {
	return State{Magnitude: 1.0, Phase: 0.0}
}

// Value reconstructs the complex value m·e^{iφ}.
func (s State) Value() complex128 {
	return cmplx.Rect(s.Magnitude, s.Phase)
}

// Metrics projects the state.
func (s State) Metrics() Metrics {
	return Metrics{
		Magnitude: s.Magnitude,
		Phase:     s.Phase,
		LinkCount: len(s.Links),
	}
}

// Combine interferes the given states. With no input it returns New().
// The result magnitude is |Σ m·e^{iφ}| / sqrt(n); the result phase is the
// arithmetic mean of the input phases; links are reset.
func Combine(states ...State) State {
	if len(states) == 0 {
		return New()
	}

	var sum complex128
	var phaseSum float64
	for _, s := range states {
		sum += s.Value()
		phaseSum += s.Phase
	}
	n := float64(len(states))
	normalized := sum / complex(math.Sqrt(n), 0)

	return State{
		Magnitude: cmplx.Abs(normalized),
		Phase:     phaseSum / n,
	}
}

// State rebuilds a link-free state from its metrics.
func (m Metrics) State() State {
	return State{Magnitude: m.Magnitude, Phase: m.Phase}
}

// AdaptiveInterval scales a base interval by (1 + magnitude).
func AdaptiveInterval(s State, base time.Duration) time.Duration {
	return time.Duration(float64(base) * (1 + s.Magnitude))
}
