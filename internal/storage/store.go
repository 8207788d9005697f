// Package storage defines the Store interface that persists affinity
// snapshots, conversation dumps, and task results.
// Three backends are provided: file (default, zero-config), SQLite, and PostgreSQL.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/orchestrator"
)

// Driver names.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface shared by all backends. It receives
// the orchestrator's shutdown flush and records every finished task.
type Store interface {
	orchestrator.PersistenceSink

	// SaveTask records a finished task. Saving the same TaskID twice replaces it.
	SaveTask(ctx context.Context, res *orchestrator.TaskResult) error
	// GetTask returns a recorded task or ErrNotFound.
	GetTask(ctx context.Context, id uuid.UUID) (*orchestrator.TaskResult, error)
	// ListTasks returns the most recent tasks, newest first.
	ListTasks(ctx context.Context, limit int) ([]*orchestrator.TaskResult, error)
	// LatestAffinity returns the most recently flushed snapshot, or an empty map.
	LatestAffinity(ctx context.Context) (map[string]affinity.Metrics, error)

	// Lifecycle.
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// DefaultListLimit bounds ListTasks when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Limit normalizes a caller-supplied list limit.
func Limit(n int) int {
	if n <= 0 || n > 1000 {
		return DefaultListLimit
	}
	return n
}

// TaskRecorder returns an orchestrator observer that saves every finished
// task to store. Failures are reported through onErr, which may be nil.
func TaskRecorder(store Store, onErr func(error)) orchestrator.ResultObserver {
	return func(ctx context.Context, res *orchestrator.TaskResult) {
		if res == nil {
			return
		}
		if err := store.SaveTask(context.WithoutCancel(ctx), res); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
