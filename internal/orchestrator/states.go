package orchestrator

import (
	"sync"

	"github.com/asecn/asecn/internal/affinity"
)

// stateMap is the description → affinity state map. Writes are last-write-wins.
type stateMap struct {
	mu     sync.RWMutex
	states map[string]affinity.State
}

func newStateMap() *stateMap {
	return &stateMap{states: make(map[string]affinity.State)}
}

func (m *stateMap) put(key string, s affinity.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = s
}

func (m *stateMap) get(key string) (affinity.State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[key]
	return s, ok
}

func (m *stateMap) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

func (m *stateMap) snapshot() map[string]affinity.Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]affinity.Metrics, len(m.states))
	for k, s := range m.states {
		out[k] = s.Metrics()
	}
	return out
}

func (m *stateMap) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]affinity.State)
}
