// Package session tracks the lifecycle of the voice session. At most one
// session is live at a time; a new one can only start once the previous one
// has closed or failed.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseNegotiating Phase = "negotiating"
	PhaseConnected   Phase = "connected"
	PhaseClosed      Phase = "closed"
	PhaseFailed      Phase = "failed"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrSessionActive = errors.New("a session is already active")
)

type Session struct {
	ID             string    `json:"session_id"`
	Phase          Phase     `json:"phase"`
	FailureStage   string    `json:"failure_stage,omitempty"`
	ToolCalls      int       `json:"tool_calls"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
}

func (s *Session) live() bool {
	return s.Phase == PhaseNegotiating || s.Phase == PhaseConnected
}

type Manager struct {
	mu                sync.RWMutex
	current           *Session
	inactivityTimeout time.Duration
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{inactivityTimeout: inactivityTimeout}
}

// Begin starts a new session record. It fails while another session is still
// negotiating or connected.
func (m *Manager) Begin() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.live() {
		return nil, ErrSessionActive
	}
	now := time.Now().UTC()
	m.current = &Session{
		ID:             uuid.NewString(),
		Phase:          PhaseNegotiating,
		StartedAt:      now,
		LastActivityAt: now,
	}
	return clone(m.current), nil
}

// Current returns the most recent session record, live or not.
func (m *Manager) Current() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, false
	}
	return clone(m.current), true
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.ID != sessionID {
		return nil, ErrNotFound
	}
	return clone(m.current), nil
}

func (m *Manager) MarkConnected(sessionID string) error {
	return m.update(sessionID, func(s *Session) {
		s.Phase = PhaseConnected
		s.LastActivityAt = time.Now().UTC()
	})
}

func (m *Manager) MarkClosed(sessionID string) error {
	return m.update(sessionID, func(s *Session) {
		s.Phase = PhaseClosed
		s.EndedAt = time.Now().UTC()
	})
}

func (m *Manager) MarkFailed(sessionID, stage string) error {
	return m.update(sessionID, func(s *Session) {
		s.Phase = PhaseFailed
		s.FailureStage = stage
		s.EndedAt = time.Now().UTC()
	})
}

// Touch records activity, deferring the inactivity expiry.
func (m *Manager) Touch(sessionID string) error {
	return m.update(sessionID, func(s *Session) {
		s.LastActivityAt = time.Now().UTC()
	})
}

// RecordToolCall bumps the session's tool call counter.
func (m *Manager) RecordToolCall(sessionID string) error {
	return m.update(sessionID, func(s *Session) {
		s.ToolCalls++
		s.LastActivityAt = time.Now().UTC()
	})
}

// IdleExpired reports whether the live session has been inactive past the
// configured timeout.
func (m *Manager) IdleExpired(now time.Time) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || !m.current.live() {
		return "", false
	}
	if now.Sub(m.current.LastActivityAt) < m.inactivityTimeout {
		return "", false
	}
	return m.current.ID, true
}

func (m *Manager) update(sessionID string, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ID != sessionID {
		return ErrNotFound
	}
	fn(m.current)
	return nil
}

func clone(s *Session) *Session {
	cp := *s
	return &cp
}
