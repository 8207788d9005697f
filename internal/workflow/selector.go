package workflow

import (
	"strings"
)

// Keywords maps one workflow to the keywords that vote for it.
type Keywords struct {
	Workflow string   `json:"workflow" yaml:"workflow"`
	Words    []string `json:"words" yaml:"words"`
}

// DefaultKeywords is the built-in keyword table. Declaration order breaks ties.
var DefaultKeywords = []Keywords{
	{Workflow: "memory_analysis", Words: []string{"memory", "recall", "store", "retrieve"}},
	{Workflow: "environment_perception", Words: []string{"monitor", "observe", "detect", "oracle"}},
	{Workflow: "action_execution", Words: []string{"transfer", "deploy", "mint", "transaction"}},
	{Workflow: "system_evolution", Words: []string{"upgrade", "evolve", "improve", "optimize"}},
}

// Score is the normalized selection weight of one workflow.
type Score struct {
	Workflow string  `json:"workflow"`
	Hits     int     `json:"hits"`
	Weight   float64 `json:"weight"`
}

// Selector picks a workflow for a task by keyword overlap.
// It is pure: the same text and table always yield the same workflow.
type Selector struct {
	table    []Keywords
	fallback string
}

// NewSelector creates a selector over table. An empty fallback means DefaultWorkflow.
func NewSelector(table []Keywords, fallback string) *Selector {
	if fallback == "" {
		fallback = DefaultWorkflow
	}
	t := make([]Keywords, len(table))
	for i, kw := range table {
		words := make([]string, len(kw.Words))
		for j, w := range kw.Words {
			words[j] = strings.ToLower(w)
		}
		t[i] = Keywords{Workflow: kw.Workflow, Words: words}
	}
	return &Selector{table: t, fallback: fallback}
}

// Fallback returns the workflow used when nothing matches.
func (s *Selector) Fallback() string { return s.fallback }

// Scores returns the normalized weight of every workflow in table order.
// Each workflow's raw weight is the square of its keyword hit count; weights
// are normalized to sum to 1 when any keyword hit.
func (s *Selector) Scores(text string) []Score {
	lower := strings.ToLower(text)
	scores := make([]Score, len(s.table))

	var total float64
	for i, kw := range s.table {
		hits := 0
		for _, w := range kw.Words {
			if w != "" && strings.Contains(lower, w) {
				hits++
			}
		}
		weight := float64(hits * hits)
		scores[i] = Score{Workflow: kw.Workflow, Hits: hits, Weight: weight}
		total += weight
	}

	if total > 0 {
		for i := range scores {
			scores[i].Weight /= total
		}
	}
	return scores
}

// Select returns the highest-weighted workflow, the first declared on ties,
// or the fallback when no keyword matches.
func (s *Selector) Select(text string) string {
	best := -1
	bestWeight := 0.0
	for i, sc := range s.Scores(text) {
		if sc.Weight > bestWeight {
			best = i
			bestWeight = sc.Weight
		}
	}
	if best < 0 {
		return s.fallback
	}
	return s.table[best].Workflow
}
