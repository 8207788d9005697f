// Package file implements storage.Store on plain files: the affinity snapshot
// as JSON, the conversation dump as text, and task results as JSON lines.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/orchestrator"
	"github.com/asecn/asecn/internal/storage"
)

// File names inside the store directory.
const (
	AffinityFile     = "affinity_states.json"
	ConversationFile = "final_conversation.txt"
	TasksFile        = "tasks.jsonl"
)

// PathValidator rejects paths outside the allowed directories.
type PathValidator interface {
	ValidatePath(path string) error
}

// Store writes into one directory. Every path is checked by the validator
// before it is opened for writing.
type Store struct {
	dir       string
	validator PathValidator
	logger    *slog.Logger
	mu        sync.Mutex
}

// Open prepares dir for writing. validator may be nil to allow any path.
func Open(dir string, validator PathValidator, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store directory is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", abs, err)
	}
	logger.Info("file store opened", slog.String("dir", abs))
	return &Store{dir: abs, validator: validator, logger: logger}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) (string, error) {
	p := filepath.Join(s.dir, name)
	if s.validator != nil {
		if err := s.validator.ValidatePath(p); err != nil {
			return "", err
		}
	}
	return p, nil
}

// SaveAffinity replaces the snapshot file.
func (s *Store) SaveAffinity(_ context.Context, snapshot map[string]affinity.Metrics) error {
	if snapshot == nil {
		snapshot = map[string]affinity.Metrics{}
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding affinity snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(AffinityFile, data)
}

// LatestAffinity reads the snapshot file. A missing file yields an empty map.
func (s *Store) LatestAffinity(_ context.Context) (map[string]affinity.Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]affinity.Metrics{}
	data, err := os.ReadFile(filepath.Join(s.dir, AffinityFile))
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading affinity snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding affinity snapshot: %w", err)
	}
	return out, nil
}

// SaveConversation replaces the conversation dump file.
func (s *Store) SaveConversation(_ context.Context, dump string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(ConversationFile, []byte(dump))
}

// SaveTask appends one JSON line. GetTask returns the last line for an ID.
func (s *Store) SaveTask(_ context.Context, res *orchestrator.TaskResult) error {
	line, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", res.TaskID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.path(TasksFile)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("opening %s: %w", p, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending task %s: %w", res.TaskID, err)
	}
	return nil
}

// GetTask scans the task log for id.
func (s *Store) GetTask(_ context.Context, id uuid.UUID) (*orchestrator.TaskResult, error) {
	tasks, err := s.readTasks()
	if err != nil {
		return nil, err
	}
	res, ok := tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return res, nil
}

// ListTasks returns the newest tasks first.
func (s *Store) ListTasks(_ context.Context, limit int) ([]*orchestrator.TaskResult, error) {
	tasks, err := s.readTasks()
	if err != nil {
		return nil, err
	}
	out := make([]*orchestrator.TaskResult, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if n := storage.Limit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *Store) readTasks() (map[uuid.UUID]*orchestrator.TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make(map[uuid.UUID]*orchestrator.TaskResult)
	f, err := os.Open(filepath.Join(s.dir, TasksFile))
	if errors.Is(err, os.ErrNotExist) {
		return tasks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening task log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var res orchestrator.TaskResult
		if err := json.Unmarshal(line, &res); err != nil {
			s.logger.Warn("skipping corrupt task record", slog.Int("line", n), slog.String("error", err.Error()))
			continue
		}
		tasks[res.TaskID] = &res
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading task log: %w", err)
	}
	return tasks, nil
}

// writeAtomic writes via a temp file and rename. Caller holds s.mu.
func (s *Store) writeAtomic(name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("replacing %s: %w", p, err)
	}
	s.logger.Debug("file written", slog.String("path", p), slog.Int("bytes", len(data)))
	return nil
}

// Ping checks the directory is still writable.
func (s *Store) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// Driver returns "file".
func (s *Store) Driver() string { return storage.DriverFile }

// Close is a no-op; every write is self-contained.
func (s *Store) Close() error { return nil }

var _ storage.Store = (*Store)(nil)
