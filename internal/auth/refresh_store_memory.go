package auth

import (
	"context"
	"sync"
)

// NewInMemoryRefreshStore returns a RefreshStore backed by an in-memory map.
func NewInMemoryRefreshStore() *InMemoryRefreshStore {
	return &InMemoryRefreshStore{sessions: make(map[string]Session)}
}

// InMemoryRefreshStore implements RefreshStore for tests and local development.
type InMemoryRefreshStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// Save stores the session record, overwriting any previous one for the user.
func (s *InMemoryRefreshStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	s.sessions[session.UserID] = session
	s.mu.Unlock()
	return nil
}

// Find retrieves the live session for a user.
func (s *InMemoryRefreshStore) Find(_ context.Context, userID string) (Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session for the user.
func (s *InMemoryRefreshStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}
