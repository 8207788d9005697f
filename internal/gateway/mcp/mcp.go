// Package mcp exposes the orchestrator as MCP (Model Context Protocol) tools
// so that MCP-capable assistants can submit tasks and inspect workflows.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/orchestrator"
	"github.com/asecn/asecn/internal/workflow"
)

// Tool names.
const (
	ToolExecuteTask    = "execute_task"
	ToolSelectWorkflow = "select_workflow"
	ToolListWorkflows  = "list_workflows"
	ToolAffinity       = "affinity_snapshot"
)

// TaskService runs tasks and exposes the live affinity map.
type TaskService interface {
	ExecuteTask(ctx context.Context, req orchestrator.TaskRequest) (*orchestrator.TaskResult, error)
	Snapshot() map[string]affinity.Metrics
}

// Server wraps an MCP server whose tools drive a TaskService.
type Server struct {
	tasks    TaskService
	dir      *workflow.Directory
	selector *workflow.Selector
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// NewServer builds the MCP server and registers its tools.
func NewServer(tasks TaskService, dir *workflow.Directory, selector *workflow.Selector, version string, logger *slog.Logger) (*Server, error) {
	if tasks == nil || dir == nil || selector == nil {
		return nil, fmt.Errorf("mcp: task service, directory and selector are required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		tasks:    tasks,
		dir:      dir,
		selector: selector,
		logger:   logger,
		mcp: server.NewMCPServer("asecn", version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	s.mcp.AddTool(mcp.NewTool(ToolExecuteTask,
		mcp.WithDescription("Run a task through an agent workflow and return the task result as JSON."),
		mcp.WithString("description", mcp.Required(), mcp.Description("What the task should accomplish.")),
		mcp.WithString("workflow", mcp.Description("Workflow name. Omit to select one from the description's keywords.")),
	), s.handleExecuteTask)

	s.mcp.AddTool(mcp.NewTool(ToolSelectWorkflow,
		mcp.WithDescription("Report which workflow a task description would be routed to, with per-workflow scores."),
		mcp.WithString("description", mcp.Required(), mcp.Description("Task description to classify.")),
	), s.handleSelectWorkflow)

	s.mcp.AddTool(mcp.NewTool(ToolListWorkflows,
		mcp.WithDescription("List the configured workflows and their agents."),
	), s.handleListWorkflows)

	s.mcp.AddTool(mcp.NewTool(ToolAffinity,
		mcp.WithDescription("Return the current affinity metrics keyed by task description."),
	), s.handleAffinity)

	return s, nil
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP over stdin/stdout until ctx is canceled or stdin closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) handleExecuteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := req.RequireString("description")
	if err != nil || description == "" {
		return mcp.NewToolResultError("description is required"), nil
	}
	name := req.GetString("workflow", "")

	s.logger.InfoContext(ctx, "mcp task", slog.String("workflow", name))

	res, err := s.tasks.ExecuteTask(ctx, orchestrator.TaskRequest{
		Description: description,
		Workflow:    name,
	})
	if err != nil {
		if errors.Is(err, workflow.ErrUnknownWorkflow) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("executing task: %w", err)
	}

	out, err := jsonResult(res)
	if err != nil {
		return nil, err
	}
	out.IsError = res.Status != orchestrator.StatusSuccess
	return out, nil
}

// SelectResult is the JSON body of select_workflow.
type SelectResult struct {
	Workflow string           `json:"workflow"`
	Scores   []workflow.Score `json:"scores"`
}

func (s *Server) handleSelectWorkflow(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := req.RequireString("description")
	if err != nil || description == "" {
		return mcp.NewToolResultError("description is required"), nil
	}
	return jsonResult(SelectResult{
		Workflow: s.selector.Select(description),
		Scores:   s.selector.Scores(description),
	})
}

func (s *Server) handleListWorkflows(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.dir.Workflows())
}

func (s *Server) handleAffinity(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.tasks.Snapshot())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
