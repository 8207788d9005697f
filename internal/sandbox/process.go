package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ProcessConfig configures the process sandbox.
type ProcessConfig struct {
	DefaultTimeout time.Duration
	DefaultLimits  Limits
}

// ProcessSandbox runs each command as its own process group in a scratch
// directory, with a minimal environment and ulimit-enforced limits.
type ProcessSandbox struct {
	timeout time.Duration
	limits  Limits
	logger  *slog.Logger
}

// NewProcessSandbox creates a process sandbox.
func NewProcessSandbox(cfg ProcessConfig, logger *slog.Logger) *ProcessSandbox {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limits := Limits{MaxCPUSeconds: defaultCPUSeconds, MaxMemoryMB: defaultMemoryMB}.merge(cfg.DefaultLimits)
	return &ProcessSandbox{timeout: timeout, limits: limits, logger: logger}
}

// Execute runs req and returns its output. A non-zero exit status is a
// result, not an error.
func (s *ProcessSandbox) Execute(ctx context.Context, req Request) (*Result, error) {
	if len(req.Command) == 0 {
		return nil, errors.New("empty command")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	scratch, err := os.MkdirTemp("", "asecn-exec-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			s.logger.WarnContext(ctx, "removing scratch dir",
				slog.String("dir", scratch),
				slog.String("error", err.Error()),
			)
		}
	}()

	limits := s.limits.merge(req.Limits)

	// The command is passed as positional parameters and never interpolated
	// into the script.
	script := fmt.Sprintf("ulimit -v %d 2>/dev/null; ulimit -t %d 2>/dev/null; exec \"$@\"",
		limits.MaxMemoryMB*1024, limits.MaxCPUSeconds)
	args := append([]string{"-c", script, "_"}, req.Command...)

	cmd := exec.CommandContext(ctx, "/bin/sh", args...)
	cmd.Dir = scratch
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.Env = baseEnv(scratch, req.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &cappedWriter{w: &stdout, remaining: maxOutputBytes}
	cmd.Stderr = &cappedWriter{w: &stderr, remaining: maxOutputBytes}

	s.logger.DebugContext(ctx, "process sandbox executing",
		slog.Any("command", req.Command),
		slog.String("dir", cmd.Dir),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execution timed out after %s", timeout)
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("execution failed: %w", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: elapsed,
	}, nil
}

// baseEnv never inherits the parent environment.
func baseEnv(home string, extra map[string]string) []string {
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + home,
		"TMPDIR=" + home,
		"LANG=en_US.UTF-8",
		"TERM=dumb",
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
