package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const logPrefix = "session:manager"

// Manager indexes live sessions by connection id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Open creates the session for a freshly handshaken connection.
func (m *Manager) Open(info Info) (*Session, error) {
	if info.ConnID == "" {
		return nil, fmt.Errorf("%s - connection id is required", logPrefix)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[info.ConnID]; exists {
		return nil, fmt.Errorf("%s - session %s already open", logPrefix, info.ConnID)
	}
	s := newSession(info, m.now())
	m.sessions[info.ConnID] = s
	slog.Debug(fmt.Sprintf("%s - opened session %s (%s %s)", logPrefix, info.ConnID, info.Transport, info.Remote))
	return s, nil
}

// Get returns the session for connID, or nil.
func (m *Manager) Get(connID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[connID]
}

// Close removes the session and cancels its submitted requests.
// It returns the cancelled entries and is a no-op for unknown ids.
func (m *Manager) Close(connID string) []*Pending {
	m.mu.Lock()
	s, ok := m.sessions[connID]
	delete(m.sessions, connID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	cancelled := s.close()
	slog.Debug(fmt.Sprintf("%s - closed session %s, cancelled %d pending", logPrefix, connID, len(cancelled)))
	return cancelled
}

// Subscribers returns the sessions whose subscriptions cover topic.
func (m *Manager) Subscribers(topic string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.Matches(topic) {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Snapshots returns every live session, oldest first.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ConnID < out[j].ConnID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}
