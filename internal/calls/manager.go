package calls

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound   = errors.New("call session not found")
	ErrRoomActive = errors.New("room already has an active call session")
)

// Session records one dispatched call handled by the worker. It is
// bookkeeping only: the media and AI work happens in the pipeline.
type Session struct {
	ID                string    `json:"session_id"`
	RoomName          string    `json:"room_name"`
	AgentID           string    `json:"agent_id"`
	AgentIdentity     string    `json:"agent_identity"`
	CallerIdentity    string    `json:"caller_identity"`
	Language          string    `json:"language"`
	Voice             string    `json:"voice"`
	Status            Status    `json:"status"`
	TurnCount         int       `json:"turn_count"`
	InterruptionCount int       `json:"interruption_count"`
	StartedAt         time.Time `json:"started_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

// Manager tracks the worker's active call sessions. Sessions are isolated;
// the manager only answers "what is running" and expires stuck entries.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	sessionByRoom     map[string]string
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 5 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		sessionByRoom:     make(map[string]string),
		inactivityTimeout: inactivityTimeout,
	}
}

// SetExpireHook registers a callback invoked for sessions ended by the janitor.
func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(roomName, agentID, agentIdentity, callerIdentity, language, voice string) (*Session, error) {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		RoomName:       roomName,
		AgentID:        agentID,
		AgentIdentity:  agentIdentity,
		CallerIdentity: callerIdentity,
		Language:       language,
		Voice:          voice,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.sessionByRoom[roomName]; ok {
		if existing := m.sessions[existingID]; existing != nil && existing.Status == StatusActive {
			return nil, ErrRoomActive
		}
	}
	m.sessions[s.ID] = s
	m.sessionByRoom[roomName] = s.ID
	return clone(s), nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// RecordTurn bumps the turn counter after an assistant turn completes.
func (m *Manager) RecordTurn(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.TurnCount++
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// RecordInterruption bumps the barge-in counter.
func (m *Manager) RecordInterruption(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.InterruptionCount++
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	if current, ok := m.sessionByRoom[s.RoomName]; ok && current == s.ID {
		delete(m.sessionByRoom, s.RoomName)
	}
	return clone(s), nil
}

// StartJanitor ends sessions without activity past the inactivity timeout.
// A relay disconnect normally ends a session promptly; the janitor is the
// backstop that keeps a wedged pipeline from holding its slot forever.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
		if current, ok := m.sessionByRoom[s.RoomName]; ok && current == s.ID {
			delete(m.sessionByRoom, s.RoomName)
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
