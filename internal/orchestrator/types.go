package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/conversation"
	"github.com/asecn/asecn/internal/dispatch"
)

// Task statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TaskRequest is one task submission.
type TaskRequest struct {
	Description string         `json:"description"`
	Workflow    string         `json:"workflow,omitempty"` // Empty = select by keywords.
	Context     map[string]any `json:"context,omitempty"`
}

// TaskResult is the outcome of ExecuteTask. It is owned by the caller.
type TaskResult struct {
	TaskID      uuid.UUID               `json:"task_id"`
	Description string                  `json:"description"`
	Status      string                  `json:"status"`
	Workflow    string                  `json:"workflow,omitempty"`
	Results     []dispatch.ActionResult `json:"results"`
	Affinity    affinity.Metrics        `json:"affinity_metrics"`
	History     conversation.History    `json:"history"`
	Error       string                  `json:"error,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	Duration    time.Duration           `json:"duration_ns"`
}

// ValidationPolicy decides what an invalid result set does to a task.
type ValidationPolicy string

const (
	// ValidationWarn logs invalid result sets and still reports success.
	ValidationWarn ValidationPolicy = "warn"
	// ValidationEnforce turns invalid result sets into an error status.
	ValidationEnforce ValidationPolicy = "enforce"
)

// Config tunes the orchestrator. The zero value is usable.
type Config struct {
	Validation ValidationPolicy
	// OmitHistory leaves the conversation history off successful results.
	OmitHistory bool
}

func (c Config) validation() ValidationPolicy {
	if c.Validation == ValidationEnforce {
		return ValidationEnforce
	}
	return ValidationWarn
}
