// Package sandbox runs shell sub-actions in an isolated process or an
// ephemeral container.
package sandbox

import (
	"context"
	"io"
	"time"
)

const (
	maxOutputBytes = 1 << 20

	defaultTimeout    = 30 * time.Second
	defaultCPUSeconds = 60
	defaultMemoryMB   = 512
)

// Sandbox executes commands in an isolated environment.
type Sandbox interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Request describes one command execution.
type Request struct {
	// Command is the program and its arguments.
	Command []string
	// WorkingDir overrides the isolated scratch directory.
	WorkingDir string
	// Env is merged over the minimal base environment.
	Env     map[string]string
	Timeout time.Duration
	Limits  Limits
}

// Limits constrains the sandboxed process. Zero values use the sandbox defaults.
type Limits struct {
	MaxCPUSeconds int `json:"max_cpu_seconds" yaml:"max_cpu_seconds"`
	MaxMemoryMB   int `json:"max_memory_mb" yaml:"max_memory_mb"`
}

func (l Limits) merge(override Limits) Limits {
	if override.MaxCPUSeconds > 0 {
		l.MaxCPUSeconds = override.MaxCPUSeconds
	}
	if override.MaxMemoryMB > 0 {
		l.MaxMemoryMB = override.MaxMemoryMB
	}
	return l
}

// Result captures the outcome of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// cappedWriter discards everything past its byte budget.
type cappedWriter struct {
	w         io.Writer
	remaining int
}

func (cw *cappedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if cw.remaining <= 0 {
		return n, nil
	}
	if len(p) > cw.remaining {
		p = p[:cw.remaining]
	}
	written, err := cw.w.Write(p)
	cw.remaining -= written
	if err != nil {
		return written, err
	}
	return n, nil
}
