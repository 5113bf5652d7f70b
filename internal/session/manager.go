package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// Manager is the process-wide registry of live sessions. The transport
// registers a session per accepted connection; shutdown closes whatever is
// still registered.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager constructs an empty registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// NewID returns a fresh session identifier.
func NewID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("session id entropy unavailable: %v", err))
	}
	return hex.EncodeToString(buf[:])
}

// Register adds a live session. Registration after shutdown is rejected so
// connections accepted during drain are refused cleanly.
func (m *Manager) Register(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("session manager is shut down")
	}
	if _, dup := m.sessions[s.ID()]; dup {
		return fmt.Errorf("session %s is already registered", s.ID())
	}
	m.sessions[s.ID()] = s
	return nil
}

// Unregister removes a session after its connection ends.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every live session and rejects further registration.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	pending := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		pending = append(pending, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range pending {
		s.Close()
	}
}
