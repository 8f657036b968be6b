package marketplace

import (
	"context"
	"sync"
	"time"
)

// Session is an authenticated marketplace session of one seller
type Session struct {
	Handle        string    `json:"handle"`
	AllegroUserID int64     `json:"allegro_user_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Valid reports whether the session can still be used at now
func (s Session) Valid(now time.Time) bool {
	return s.Handle != "" && now.Before(s.ExpiresAt)
}

// SessionStore keeps session handles keyed by local user id
type SessionStore interface {
	Get(ctx context.Context, userID uint) (Session, bool, error)
	Set(ctx context.Context, userID uint, session Session) error
	Delete(ctx context.Context, userID uint) error
}

// MemorySessionStore is a process-local SessionStore
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[uint]Session
}

// NewMemorySessionStore creates an empty in-memory store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[uint]Session)}
}

func (m *MemorySessionStore) Get(_ context.Context, userID uint) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok, nil
}

func (m *MemorySessionStore) Set(_ context.Context, userID uint, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = session
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
