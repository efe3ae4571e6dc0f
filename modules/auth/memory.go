package auth

import (
	"context"
	"sync"
	"time"
)

var _ SessionStore = (*MemoryStore)(nil)

type memorySession struct {
	userID    int64
	expiresAt time.Time
	revoked   bool
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memorySession)}
}

// Add registers a session for the raw token.
func (s *MemoryStore) Add(rawToken string, userID int64, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[HashToken(rawToken)] = memorySession{userID: userID, expiresAt: expiresAt}
}

func (s *MemoryStore) Revoke(rawToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[HashToken(rawToken)]; ok {
		sess.revoked = true
		s.sessions[HashToken(rawToken)] = sess
	}
}

func (s *MemoryStore) LookupSession(_ context.Context, tokenHash string, now time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[tokenHash]
	if !ok || sess.revoked || !sess.expiresAt.After(now) {
		return 0, ErrNoSession
	}
	return sess.userID, nil
}
