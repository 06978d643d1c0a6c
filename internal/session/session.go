package session

import (
	"context"
	"sync"
)

// AuthContext holds the AgroSense API credentials of the signed-in operator.
// It is read on every authenticated request, written on sign-in and cleared
// on logout.
type AuthContext interface {
	Token(ctx context.Context) (string, error)
	Role(ctx context.Context) (string, error)
	SetSession(ctx context.Context, token, role string) error
	ClearSession(ctx context.Context) error
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
	role  string
}

// NewMemoryStore returns an empty in-memory session.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Token returns the stored token, empty when signed out.
func (s *MemoryStore) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Role returns the stored role, empty when signed out.
func (s *MemoryStore) Role(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role, nil
}

// SetSession replaces the stored credentials.
func (s *MemoryStore) SetSession(_ context.Context, token, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.role = role
	return nil
}

// ClearSession forgets the stored credentials.
func (s *MemoryStore) ClearSession(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.role = ""
	return nil
}
