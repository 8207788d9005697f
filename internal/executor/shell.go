package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/asecn/asecn/internal/dispatch"
	"github.com/asecn/asecn/internal/sandbox"
)

// Shell runs sub-actions as sandboxed shell commands on the worker pool.
type Shell struct {
	sandbox sandbox.Sandbox
	guard   *Guard
	pool    *dispatch.Pool
	logger  *slog.Logger
}

// NewShell creates a shell executor. pool may be nil to run unbounded.
func NewShell(sb sandbox.Sandbox, guard *Guard, pool *dispatch.Pool, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Shell{sandbox: sb, guard: guard, pool: pool, logger: logger}
}

// Execute runs action with sh -c. String values in actx are exported as
// ASECN_<KEY> environment variables. A non-zero exit status is an error result.
func (s *Shell) Execute(ctx context.Context, action string, actx map[string]any) (dispatch.ActionResult, error) {
	if err := s.guard.CheckCommand(action); err != nil {
		s.logger.WarnContext(ctx, "unsafe command rejected",
			slog.String("command", action),
			slog.String("error", err.Error()),
		)
		return dispatch.Failed(action, err.Error()), nil
	}

	req := sandbox.Request{
		Command: []string{"sh", "-c", action},
		Env:     contextEnv(actx),
	}

	var res *sandbox.Result
	run := func(ctx context.Context) error {
		var err error
		res, err = s.sandbox.Execute(ctx, req)
		return err
	}
	var err error
	if s.pool != nil {
		err = s.pool.Run(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return dispatch.ActionResult{}, fmt.Errorf("shell: %w", err)
	}

	out := dispatch.ActionResult{
		Command:  action,
		Output:   res.Stdout,
		Duration: res.Duration,
	}
	if res.ExitCode != 0 {
		out.Error = true
		out.Message = fmt.Sprintf("exit status %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return out, nil
}

func contextEnv(actx map[string]any) map[string]string {
	env := make(map[string]string)
	for k, v := range actx {
		s, ok := v.(string)
		if !ok {
			continue
		}
		key := strings.ToUpper(strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
				return r
			}
			return '_'
		}, k))
		env["ASECN_"+key] = s
	}
	return env
}

// ShellPrefix marks a sub-action as a literal shell command for Router.
const ShellPrefix = "$ "

// Router sends "$ "-prefixed actions to the shell and everything else to the
// interpreter. Either side may be nil, in which case the other handles all
// actions.
type Router struct {
	Shell       dispatch.Executor
	Interpreter dispatch.Executor
}

func (r *Router) Execute(ctx context.Context, action string, actx map[string]any) (dispatch.ActionResult, error) {
	if cmd, ok := strings.CutPrefix(action, ShellPrefix); ok && r.Shell != nil {
		res, err := r.Shell.Execute(ctx, cmd, actx)
		res.Command = action
		return res, err
	}
	if r.Interpreter != nil {
		return r.Interpreter.Execute(ctx, action, actx)
	}
	if r.Shell != nil {
		return r.Shell.Execute(ctx, action, actx)
	}
	return dispatch.ActionResult{}, fmt.Errorf("no executor configured")
}

var (
	_ dispatch.Executor = (*Shell)(nil)
	_ dispatch.Executor = (*Router)(nil)
)
