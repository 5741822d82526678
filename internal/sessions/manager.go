// Package sessions owns per-conversation state: step, captured attributes,
// bounded history and the human handoff window.
package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/store"
)

const persistTimeout = 5 * time.Second

// Manager is the in-memory session table. It is authoritative for the process
// lifetime; every mutation is written through to the backing store.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*store.SessionData
	timers   map[string]*time.Timer
	backend  store.SessionStore // nil disables persistence

	now func() time.Time
}

func NewManager(backend store.SessionStore) *Manager {
	return &Manager{
		sessions: make(map[string]*store.SessionData),
		timers:   make(map[string]*time.Timer),
		backend:  backend,
		now:      time.Now,
	}
}

// Load reads persisted sessions into memory and re-arms handoff timers for
// windows that are still open. Expired windows are left for lazy expiry.
func (m *Manager) Load(ctx context.Context) error {
	if m.backend == nil {
		return nil
	}
	all, err := m.backend.LoadAll(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for i := range all {
		s := all[i]
		if s.History == nil {
			s.History = []store.Turn{}
		}
		m.sessions[s.Key] = &s
		if s.HandoffActive && now.Before(s.HandoffUntil) {
			m.scheduleClearLocked(s.Key, s.HandoffUntil)
		}
	}
	slog.Info("sessions loaded", "count", len(all))
	return nil
}

// GetOrCreate returns a snapshot of the session, creating it on first use.
func (m *Manager) GetOrCreate(key string) store.SessionData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(key).Clone()
}

// Get returns a snapshot of an existing session.
func (m *Manager) Get(key string) (store.SessionData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return store.SessionData{}, false
	}
	return s.Clone(), true
}

// Update applies fn to the session, refreshes lastSeen and persists.
// The returned value is a snapshot taken after the mutation.
func (m *Manager) Update(key string, fn func(s *store.SessionData)) store.SessionData {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getOrCreateLocked(key)
	if fn != nil {
		fn(s)
	}
	s.LastSeen = m.now()
	m.persistLocked(s)
	return s.Clone()
}

// AppendTurn adds a turn and keeps only the newest limit turns (limit <= 0 keeps all).
func (m *Manager) AppendTurn(key string, turn store.Turn, limit int) store.SessionData {
	if turn.At.IsZero() {
		turn.At = m.now()
	}
	return m.Update(key, func(s *store.SessionData) {
		s.History = append(s.History, turn)
		if limit > 0 && len(s.History) > limit {
			trimmed := make([]store.Turn, limit)
			copy(trimmed, s.History[len(s.History)-limit:])
			s.History = trimmed
		}
	})
}

// Count returns the number of known sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops pending handoff timers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, t := range m.timers {
		t.Stop()
		delete(m.timers, key)
	}
}

func (m *Manager) getOrCreateLocked(key string) *store.SessionData {
	if s, ok := m.sessions[key]; ok {
		return s
	}
	now := m.now()
	s := &store.SessionData{
		Key:      key,
		Step:     store.StepIdle,
		History:  []store.Turn{},
		Created:  now,
		LastSeen: now,
	}
	m.sessions[key] = s
	return s
}

// persistLocked writes s through to the backend. Errors are logged, never returned.
func (m *Manager) persistLocked(s *store.SessionData) {
	if m.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.backend.Save(ctx, s.Clone()); err != nil {
		slog.Warn("session persist failed", "session", s.Key, "error", err)
	}
}
