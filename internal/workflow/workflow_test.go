package workflow

import (
	"errors"
	"math"
	"testing"
)

func testAgents() []Agent {
	return []Agent{
		{ID: "memory_agent", Name: "MemoryAgent"},
		{ID: "perception_agent", Name: "PerceptionAgent"},
		{ID: "orchestrator", Name: "Orchestrator"},
	}
}

// --- Selector ---

func TestSelect_DefaultOnNoMatch(t *testing.T) {
	s := NewSelector(DefaultKeywords, "")
	if got := s.Select("hello world"); got != "memory_analysis" {
		t.Fatalf("Select(hello world) = %q, want memory_analysis", got)
	}
}

func TestSelect_Perception(t *testing.T) {
	s := NewSelector(DefaultKeywords, "")
	got := s.Select("please monitor and observe the oracle feed")
	if got != "environment_perception" {
		t.Fatalf("Select = %q, want environment_perception", got)
	}

	for _, sc := range s.Scores("please monitor and observe the oracle feed") {
		switch sc.Workflow {
		case "environment_perception":
			if sc.Hits != 3 {
				t.Errorf("perception hits = %d, want 3", sc.Hits)
			}
			if math.Abs(sc.Weight-1) > 1e-9 {
				t.Errorf("perception weight = %f, want 1", sc.Weight)
			}
		default:
			if sc.Hits != 0 {
				t.Errorf("%s hits = %d, want 0", sc.Workflow, sc.Hits)
			}
		}
	}
}

func TestSelect_CaseInsensitive(t *testing.T) {
	s := NewSelector(DefaultKeywords, "")
	if got := s.Select("DEPLOY the contract and MINT a token"); got != "action_execution" {
		t.Fatalf("Select = %q, want action_execution", got)
	}
}

func TestSelect_TieBreaksByDeclarationOrder(t *testing.T) {
	s := NewSelector(DefaultKeywords, "")
	// One hit each for memory_analysis ("recall") and system_evolution ("upgrade").
	if got := s.Select("upgrade then recall"); got != "memory_analysis" {
		t.Fatalf("Select = %q, want memory_analysis (declared first)", got)
	}

	reversed := []Keywords{DefaultKeywords[3], DefaultKeywords[0]}
	s = NewSelector(reversed, "")
	if got := s.Select("upgrade then recall"); got != "system_evolution" {
		t.Fatalf("Select = %q, want system_evolution (declared first)", got)
	}
}

func TestSelect_SquaredWeighting(t *testing.T) {
	s := NewSelector(DefaultKeywords, "")
	scores := s.Scores("optimize and improve memory")
	var mem, evo float64
	for _, sc := range scores {
		switch sc.Workflow {
		case "memory_analysis":
			mem = sc.Weight
		case "system_evolution":
			evo = sc.Weight
		}
	}
	// 1² vs 2² → 0.2 vs 0.8.
	if math.Abs(mem-0.2) > 1e-9 || math.Abs(evo-0.8) > 1e-9 {
		t.Fatalf("weights mem=%f evo=%f, want 0.2/0.8", mem, evo)
	}
	if got := s.Select("optimize and improve memory"); got != "system_evolution" {
		t.Fatalf("Select = %q, want system_evolution", got)
	}
}

func TestSelect_Deterministic(t *testing.T) {
	s := NewSelector(DefaultKeywords, "")
	texts := []string{"store and retrieve", "detect transfer", "evolve", "", "nothing here"}
	for _, text := range texts {
		first := s.Select(text)
		for i := 0; i < 50; i++ {
			if got := s.Select(text); got != first {
				t.Fatalf("Select(%q) changed between calls: %q then %q", text, first, got)
			}
		}
	}
}

func TestSelect_CustomFallback(t *testing.T) {
	s := NewSelector(DefaultKeywords, "system_evolution")
	if got := s.Select("xyz"); got != "system_evolution" {
		t.Fatalf("Select = %q, want custom fallback", got)
	}
}

// --- Directory ---

func TestDirectory_Resolve(t *testing.T) {
	d, err := NewDirectory(testAgents(), []Definition{
		{Name: "memory_analysis", AgentIDs: []string{"memory_agent", "orchestrator"}},
	})
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}

	wf, err := d.Resolve("memory_analysis")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(wf.AgentIDs) != 2 || wf.AgentIDs[1] != "orchestrator" {
		t.Errorf("agents = %v", wf.AgentIDs)
	}

	// Mutating the returned copy must not affect the directory.
	wf.AgentIDs[0] = "mutated"
	again, _ := d.Resolve("memory_analysis")
	if again.AgentIDs[0] != "memory_agent" {
		t.Errorf("directory mutated through returned definition")
	}
}

func TestDirectory_Unknown(t *testing.T) {
	d, err := NewDirectory(testAgents(), nil)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	_, err = d.Resolve("does_not_exist")
	if err == nil {
		t.Fatal("expected error")
	}
	var uwe *UnknownWorkflowError
	if !errors.As(err, &uwe) || uwe.Name != "does_not_exist" {
		t.Errorf("expected *UnknownWorkflowError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrUnknownWorkflow) {
		t.Errorf("errors.Is(err, ErrUnknownWorkflow) = false")
	}
}

func TestDirectory_Validation(t *testing.T) {
	tests := []struct {
		name      string
		agents    []Agent
		workflows []Definition
	}{
		{"empty agent list", testAgents(), []Definition{{Name: "x"}}},
		{"unknown agent", testAgents(), []Definition{{Name: "x", AgentIDs: []string{"ghost"}}}},
		{"duplicate workflow", testAgents(), []Definition{
			{Name: "x", AgentIDs: []string{"orchestrator"}},
			{Name: "x", AgentIDs: []string{"orchestrator"}},
		}},
		{"duplicate agent", []Agent{{ID: "a"}, {ID: "a"}}, nil},
		{"missing name", testAgents(), []Definition{{AgentIDs: []string{"orchestrator"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDirectory(tt.agents, tt.workflows); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDirectory_WorkflowsOrder(t *testing.T) {
	d, err := NewDirectory(testAgents(), []Definition{
		{Name: "b", AgentIDs: []string{"orchestrator"}},
		{Name: "a", AgentIDs: []string{"memory_agent", "orchestrator"}},
	})
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	wfs := d.Workflows()
	if len(wfs) != 2 || wfs[0].Name != "b" || wfs[1].Name != "a" {
		t.Fatalf("Workflows() = %+v, want declaration order", wfs)
	}
	agents, err := d.Agents(wfs[1])
	if err != nil || len(agents) != 2 || agents[0].Name != "MemoryAgent" {
		t.Fatalf("Agents() = %+v, %v", agents, err)
	}
}
