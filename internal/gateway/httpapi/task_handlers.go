package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/orchestrator"
	"github.com/asecn/asecn/internal/storage"
	"github.com/asecn/asecn/internal/workflow"
)

// TaskStore is the read side of the task history. storage.Store satisfies it.
type TaskStore interface {
	GetTask(ctx context.Context, id uuid.UUID) (*orchestrator.TaskResult, error)
	ListTasks(ctx context.Context, limit int) ([]*orchestrator.TaskResult, error)
	LatestAffinity(ctx context.Context) (map[string]affinity.Metrics, error)
}

// TaskRequest is the JSON body for POST /v1/tasks.
type TaskRequest struct {
	Description string         `json:"description"`
	Workflow    string         `json:"workflow,omitempty"` // Empty = keyword selection.
	Context     map[string]any `json:"context,omitempty"`
}

// WorkflowResponse describes one workflow definition.
type WorkflowResponse struct {
	Name   string   `json:"name"`
	Agents []string `json:"agents"`
}

// SelectRequest is the JSON body for POST /v1/workflows/select.
type SelectRequest struct {
	Description string `json:"description"`
}

// SelectResponse carries the selected workflow and every workflow's score.
type SelectResponse struct {
	Workflow string           `json:"workflow"`
	Scores   []workflow.Score `json:"scores"`
}

func (g *Gateway) handleTaskSubmit(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.config.RateLimiter.Allow(userID); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}

	var req TaskRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Description == "" {
		return c.AbortBadRequest("description is required")
	}

	correlationID := newCorrelationID()
	g.logger.Info("http task",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
		slog.String("workflow", req.Workflow),
	)

	res, err := g.deps.Tasks.ExecuteTask(c.Context(), orchestrator.TaskRequest{
		Description: req.Description,
		Workflow:    req.Workflow,
		Context:     req.Context,
	})
	if err != nil {
		if errors.Is(err, workflow.ErrUnknownWorkflow) {
			return c.JSON(http.StatusUnprocessableEntity, ErrorBody{Error: err.Error()})
		}
		g.logger.Error("task execution failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("task execution failed")
	}
	return c.OK(res)
}

func (g *Gateway) handleAffinity(c *okapi.Context) error {
	return c.OK(g.deps.Tasks.Snapshot())
}

func (g *Gateway) handleAffinityLatest(c *okapi.Context) error {
	snap, err := g.deps.Store.LatestAffinity(c.Context())
	if err != nil {
		g.logger.Error("loading affinity snapshot", slog.String("error", err.Error()))
		return c.AbortInternalServerError("loading affinity snapshot failed")
	}
	return c.OK(snap)
}

func (g *Gateway) handleWorkflows(c *okapi.Context) error {
	defs := g.deps.Directory.Workflows()
	resp := make([]WorkflowResponse, len(defs))
	for i, d := range defs {
		resp[i] = WorkflowResponse{Name: d.Name, Agents: d.AgentIDs}
	}
	return c.OK(resp)
}

func (g *Gateway) handleWorkflowSelect(c *okapi.Context) error {
	var req SelectRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Description == "" {
		return c.AbortBadRequest("description is required")
	}
	return c.OK(SelectResponse{
		Workflow: g.deps.Selector.Select(req.Description),
		Scores:   g.deps.Selector.Scores(req.Description),
	})
}

func (g *Gateway) handleTaskList(c *okapi.Context) error {
	limit := 0
	if raw := c.Request().URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.AbortBadRequest("limit must be an integer")
		}
		limit = n
	}
	tasks, err := g.deps.Store.ListTasks(c.Context(), storage.Limit(limit))
	if err != nil {
		g.logger.Error("listing tasks", slog.String("error", err.Error()))
		return c.AbortInternalServerError("listing tasks failed")
	}
	if tasks == nil {
		tasks = []*orchestrator.TaskResult{}
	}
	return c.OK(tasks)
}

func (g *Gateway) handleTaskGet(c *okapi.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid task ID")
	}
	res, err := g.deps.Store.GetTask(c.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorBody{Error: "task not found"})
		}
		g.logger.Error("loading task", slog.String("task_id", id.String()), slog.String("error", err.Error()))
		return c.AbortInternalServerError("loading task failed")
	}
	return c.OK(res)
}
