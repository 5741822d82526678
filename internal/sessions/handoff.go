package sessions

import (
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/store"
)

// SetHandoff pauses automated replies for key until now+d. Calling it again
// while paused replaces the window and its timer.
func (m *Manager) SetHandoff(key string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getOrCreateLocked(key)
	now := m.now()
	s.HandoffActive = true
	s.HandoffUntil = now.Add(d)
	s.LastSeen = now
	m.persistLocked(s)
	m.scheduleClearLocked(key, s.HandoffUntil)

	slog.Info("handoff started", "session", key, "until", s.HandoffUntil.Format(time.RFC3339))
}

// IsHandedOff reports whether key is inside an open handoff window.
// An expired window is cleared here so a lost timer cannot pause a chat forever.
func (m *Manager) IsHandedOff(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok || !s.HandoffActive {
		return false
	}
	if m.now().Before(s.HandoffUntil) {
		return true
	}
	m.clearLocked(s)
	slog.Info("handoff expired", "session", key)
	return false
}

// ResetHandoff clears any handoff window for key. Safe to call repeatedly.
func (m *Manager) ResetHandoff(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok || !s.HandoffActive {
		m.stopTimerLocked(key)
		return
	}
	m.clearLocked(s)
}

func (m *Manager) clearLocked(s *store.SessionData) {
	m.stopTimerLocked(s.Key)
	s.HandoffActive = false
	s.HandoffUntil = time.Time{}
	s.LastSeen = m.now()
	m.persistLocked(s)
}

func (m *Manager) stopTimerLocked(key string) {
	if t, ok := m.timers[key]; ok {
		t.Stop()
		delete(m.timers, key)
	}
}

func (m *Manager) scheduleClearLocked(key string, until time.Time) {
	m.stopTimerLocked(key)
	delay := until.Sub(m.now())
	if delay < 0 {
		delay = 0
	}
	m.timers[key] = time.AfterFunc(delay, func() { m.expire(key, until) })
}

// expire runs from the timer. It only clears the window it was armed for.
func (m *Manager) expire(key string, until time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok || !s.HandoffActive || !s.HandoffUntil.Equal(until) {
		return
	}
	delete(m.timers, key)
	s.HandoffActive = false
	s.HandoffUntil = time.Time{}
	s.LastSeen = m.now()
	m.persistLocked(s)
	slog.Info("handoff ended, AI resumed", "session", key)
}
