package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asecn/asecn/internal/orchestrator"
	"github.com/asecn/asecn/internal/workflow"
)

// Exit codes for one-shot runs.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

var runWorkflow string

var runCmd = &cobra.Command{
	Use:   "run <task...>",
	Short: "Execute one task and print its result",
	Long: `Execute a single task through its workflow and print the result as JSON.
The affinity snapshot and conversation dump are flushed on exit.

Examples:
  asecn run "optimize memory allocation for the cache tier"
  asecn run --workflow action_execution 'list the files in /tmp'

Exit codes:
  0  task status is success
  1  task failed or could not be executed`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

var selectCmd = &cobra.Command{
	Use:   "select <task...>",
	Short: "Show which workflow a task would be routed to",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSelect,
}

func init() {
	runCmd.Flags().StringVar(&runWorkflow, "workflow", "", "run this workflow instead of selecting one")
}

func runTask(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := sc.Orchestrator.ExecuteTask(ctx, orchestrator.TaskRequest{
		Description: strings.Join(args, " "),
		Workflow:    runWorkflow,
	})
	if err != nil {
		return err
	}
	if err := printJSON(res); err != nil {
		return err
	}
	if res.Status != orchestrator.StatusSuccess {
		sc.Cleanup()
		os.Exit(ExitFailure)
	}
	return nil
}

// SelectOutput is what the select command prints.
type SelectOutput struct {
	Workflow string           `json:"workflow"`
	Agents   []string         `json:"agents"`
	Scores   []workflow.Score `json:"scores"`
}

// runSelect only needs the configuration: no model client or storage is opened.
func runSelect(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir, err := workflow.NewDirectory(cfg.Agents, cfg.Workflows)
	if err != nil {
		return fmt.Errorf("building workflow directory: %w", err)
	}
	selector := workflow.NewSelector(cfg.Keywords, cfg.ConfiguredWorkflow())

	text := strings.Join(args, " ")
	name := selector.Select(text)
	out := SelectOutput{Workflow: name, Scores: selector.Scores(text)}
	if def, err := dir.Resolve(name); err == nil {
		out.Agents = def.AgentIDs
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
