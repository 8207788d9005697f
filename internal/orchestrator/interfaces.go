package orchestrator

import (
	"context"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/conversation"
	"github.com/asecn/asecn/internal/dispatch"
	"github.com/asecn/asecn/internal/workflow"
)

// AgentDirectory resolves workflow names. Unknown names yield a
// *workflow.UnknownWorkflowError.
type AgentDirectory interface {
	Resolve(name string) (workflow.Definition, error)
}

// WorkflowSelector picks a workflow for a task description.
type WorkflowSelector interface {
	Select(text string) string
}

// ConversationBackend turns a workflow and a task into an ordered
// sub-action plan and keeps the conversation it produced.
type ConversationBackend interface {
	Plan(ctx context.Context, def workflow.Definition, task string) ([]string, error)
	History() conversation.History
	Dump() string
}

// ActionDispatcher runs a plan and returns results in plan order.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, actions []string, actx map[string]any) []dispatch.ActionResult
}

// PersistenceSink receives the state flushed at shutdown.
type PersistenceSink interface {
	SaveAffinity(ctx context.Context, snapshot map[string]affinity.Metrics) error
	SaveConversation(ctx context.Context, dump string) error
}

// ResultObserver is notified of every finished task.
type ResultObserver func(ctx context.Context, res *TaskResult)
