// Package workflow holds the static workflow definitions, the agent
// directory that resolves them, and the keyword-based workflow selector.
package workflow

import (
	"errors"
	"fmt"
)

// DefaultWorkflow is selected when no keyword matches a task.
const DefaultWorkflow = "memory_analysis"

// OrchestratorAgent is the conventional last agent of every workflow.
const OrchestratorAgent = "orchestrator"

// ErrUnknownWorkflow is matched by errors.Is on any *UnknownWorkflowError.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// UnknownWorkflowError is returned when a workflow name cannot be resolved.
type UnknownWorkflowError struct {
	Name string
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("unknown workflow: %s", e.Name)
}

func (e *UnknownWorkflowError) Is(target error) bool {
	return target == ErrUnknownWorkflow
}

// Agent describes one specialized agent.
type Agent struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	SystemMessage string   `json:"system_message" yaml:"system_message"`
	Modules       []string `json:"modules,omitempty" yaml:"modules,omitempty"`
}

// Definition is a named, ordered list of agents.
type Definition struct {
	Name     string   `json:"name" yaml:"name"`
	AgentIDs []string `json:"agents" yaml:"agents"`
}

// Validate checks the definition is usable.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(d.AgentIDs) == 0 {
		return fmt.Errorf("workflow %q must list at least one agent", d.Name)
	}
	return nil
}
