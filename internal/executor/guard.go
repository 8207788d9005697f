// Package executor implements the command executors that sub-actions are
// dispatched to: a model-driven interpreter and a sandboxed shell, both
// behind the same unsafe-command guard.
package executor

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultDenylist holds the destructive command fragments rejected by default.
var DefaultDenylist = []string{"rm -rf", "deltree", "format"}

var (
	// ErrUnsafeCommand is returned for commands matching the denylist.
	ErrUnsafeCommand = errors.New("potentially dangerous command detected")
	// ErrUnsafePath is returned for paths outside every safe directory.
	ErrUnsafePath = errors.New("path outside safe directories")
)

// Guard rejects denylisted commands and writes outside safe directories.
type Guard struct {
	denylist  []string
	safePaths []string
}

// NewGuard creates a guard. A nil denylist selects DefaultDenylist; an empty
// non-nil one disables command checks. Safe paths are made absolute.
func NewGuard(denylist, safePaths []string) (*Guard, error) {
	if denylist == nil {
		denylist = DefaultDenylist
	}
	g := &Guard{denylist: make([]string, 0, len(denylist))}
	for _, d := range denylist {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			g.denylist = append(g.denylist, d)
		}
	}
	for _, p := range safePaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving safe path %q: %w", p, err)
		}
		g.safePaths = append(g.safePaths, filepath.Clean(abs))
	}
	return g, nil
}

// CheckCommand reports whether command contains a denylisted fragment,
// ignoring case.
func (g *Guard) CheckCommand(command string) error {
	lower := strings.ToLower(command)
	for _, d := range g.denylist {
		if strings.Contains(lower, d) {
			return fmt.Errorf("%w: matches %q", ErrUnsafeCommand, d)
		}
	}
	return nil
}

// ValidatePath accepts only paths strictly inside one of the safe directories.
// With no safe directories configured every path is rejected.
func (g *Guard) ValidatePath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", path, err)
	}
	abs = filepath.Clean(abs)
	for _, safe := range g.safePaths {
		rel, err := filepath.Rel(safe, abs)
		if err != nil || rel == "." {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsafePath, abs)
}

// SafePaths returns the configured safe directories.
func (g *Guard) SafePaths() []string {
	out := make([]string, len(g.safePaths))
	copy(out, g.safePaths)
	return out
}
