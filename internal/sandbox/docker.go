package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	defaultContainerImage = "alpine:3"
	defaultContainerPIDs  = 64
	defaultContainerCPUs  = 1.0
)

// DockerConfig configures the container sandbox.
type DockerConfig struct {
	Image          string        `json:"image" yaml:"image"`
	DefaultTimeout time.Duration `json:"timeout" yaml:"timeout"`
	MemoryMB       int           `json:"memory_mb" yaml:"memory_mb"`
	CPUs           float64       `json:"cpus" yaml:"cpus"`
	PIDsLimit      int           `json:"pids_limit" yaml:"pids_limit"`
	Network        bool          `json:"network" yaml:"network"`
}

// DockerSandbox runs each command in a throwaway, locked-down container.
type DockerSandbox struct {
	cfg    DockerConfig
	logger *slog.Logger
}

// NewDockerSandbox creates a container sandbox driven by the docker CLI.
func NewDockerSandbox(cfg DockerConfig, logger *slog.Logger) *DockerSandbox {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Image == "" {
		cfg.Image = defaultContainerImage
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = defaultMemoryMB
	}
	if cfg.CPUs <= 0 {
		cfg.CPUs = defaultContainerCPUs
	}
	if cfg.PIDsLimit <= 0 {
		cfg.PIDsLimit = defaultContainerPIDs
	}
	return &DockerSandbox{cfg: cfg, logger: logger}
}

// Execute runs req inside a new container and removes it afterwards.
func (s *DockerSandbox) Execute(ctx context.Context, req Request) (*Result, error) {
	if len(req.Command) == 0 {
		return nil, errors.New("empty command")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := "asecn-exec-" + uuid.NewString()[:8]
	args := append(s.runArgs(name, req), req.Command...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &cappedWriter{w: &stdout, remaining: maxOutputBytes}
	cmd.Stderr = &cappedWriter{w: &stderr, remaining: maxOutputBytes}

	s.logger.DebugContext(ctx, "container sandbox executing",
		slog.String("container", name),
		slog.String("image", s.cfg.Image),
		slog.Any("command", req.Command),
	)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	s.remove(name)

	exitCode := 0
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execution timed out after %s", timeout)
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("docker execution failed: %w", runErr)
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

// runArgs builds the docker run flags up to and including the image.
func (s *DockerSandbox) runArgs(name string, req Request) []string {
	memory := s.cfg.MemoryMB
	if req.Limits.MaxMemoryMB > 0 {
		memory = req.Limits.MaxMemoryMB
	}
	mem := strconv.Itoa(memory) + "m"

	network := "--network=none"
	if s.cfg.Network {
		network = "--network=bridge"
	}
	workdir := "/work"
	if req.WorkingDir != "" {
		workdir = req.WorkingDir
	}

	args := []string{
		"run", "--rm", "--name", name,
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--read-only",
		"--user=65534:65534",
		"--memory=" + mem,
		"--memory-swap=" + mem,
		"--cpus=" + strconv.FormatFloat(s.cfg.CPUs, 'f', 2, 64),
		"--pids-limit=" + strconv.Itoa(s.cfg.PIDsLimit),
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=64m",
		"--tmpfs", "/work:rw,noexec,nosuid,size=64m",
		network,
		"--workdir", workdir,
		"--env", "HOME=/work",
		"--env", "PATH=/usr/local/bin:/usr/bin:/bin",
	}
	for k, v := range req.Env {
		args = append(args, "--env", k+"="+v)
	}
	return append(args, s.cfg.Image)
}

// remove force-deletes the container in case --rm did not fire.
func (s *DockerSandbox) remove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "docker", "rm", "-f", name).CombinedOutput()
	if err != nil && !bytes.Contains(out, []byte("No such container")) {
		s.logger.Warn("docker rm failed",
			slog.String("container", name),
			slog.String("error", err.Error()),
		)
	}
}
