package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/benchbook/benchbook/internal/storage"
)

// Manager tracks the one session being viewed at a time. Selecting a run
// closes the previous session first, so a stale debounce or ticker can
// never write into a different run's state.
type Manager struct {
	store storage.Store
	cfg   Config

	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager opening sessions against the given store.
func NewManager(store storage.Store, cfg Config) *Manager {
	return &Manager{store: store, cfg: cfg}
}

// Select closes the current session, if any, and opens the given run.
// On open failure no session is current.
func (m *Manager) Select(ctx context.Context, runID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Close()
		m.current = nil
	}

	s, err := Open(ctx, m.store, runID, m.cfg)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Current returns the selected session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close closes the current session, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
