// Package conversation implements the group-chat backend that turns a
// workflow and a task into an ordered sub-action plan, and the shared
// conversation log that is dumped at shutdown.
package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultMaxEntries caps the number of entries a Log retains.
const DefaultMaxEntries = 1000

// Entry is one message in the conversation log.
type Entry struct {
	Speaker string    `json:"speaker"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// History is a point-in-time copy of the conversation log.
type History []Entry

// Log is the process-wide conversation history shared by the group chat and
// the interpreter. It is safe for concurrent use and keeps the most recent
// entries only.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
	now     func() time.Time
}

// NewLog creates a log retaining at most max entries (<= 0 means DefaultMaxEntries).
func NewLog(max int) *Log {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Log{max: max, now: time.Now}
}

// Append records a message.
func (l *Log) Append(speaker, role, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		Speaker: speaker,
		Role:    role,
		Content: content,
		Time:    l.now().UTC(),
	})
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// History returns a copy of the retained entries, oldest first.
func (l *Log) History() History {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(History, len(l.entries))
	copy(out, l.entries)
	return out
}

// Dump renders the log as plain text, one block per entry.
func (l *Log) Dump() string {
	return l.History().String()
}

func (h History) String() string {
	var b strings.Builder
	for _, e := range h {
		fmt.Fprintf(&b, "[%s] %s (%s):\n%s\n\n", e.Time.Format(time.RFC3339), e.Speaker, e.Role, e.Content)
	}
	return b.String()
}
