package session

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryStore constructs an in-memory Store implementation for tests and
// development.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[int64]Session)}
}

// Get returns the stored session, or a fresh idle one if absent.
func (m *memoryStore) Get(_ context.Context, userID int64) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}
	return New(userID), nil
}

// Set overwrites the stored snapshot.
func (m *memoryStore) Set(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Sessions are value snapshots; copy the slice so the caller's later
	// mutations cannot leak into the store.
	if len(s.PendingDeletions) > 0 {
		s.PendingDeletions = append([]int(nil), s.PendingDeletions...)
	}
	m.sessions[s.UserID] = s
	return nil
}
