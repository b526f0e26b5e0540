package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tagbox/internal/models"
)

// SessionStore holds active logins in memory, keyed by token. It is safe
// for concurrent use.
type SessionStore struct {
	mu     sync.RWMutex
	logins map[string]*models.Login
}

func NewSessionStore() *SessionStore {
	return &SessionStore{logins: make(map[string]*models.Login)}
}

func (s *SessionStore) Put(login *models.Login) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins[login.Token] = login
}

// Get returns the stored login for token, expired or not, or nil.
func (s *SessionStore) Get(token string) *models.Login {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logins[token]
}

// Drop forgets token. Dropping an unknown token is a no-op.
func (s *SessionStore) Drop(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logins, token)
}

// Sweep removes every login that is no longer valid at now and returns
// how many were removed.
func (s *SessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, login := range s.logins {
		if !login.Valid(now) {
			delete(s.logins, token)
			n++
		}
	}
	return n
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logins)
}

// RunSweeper sweeps expired logins every interval until ctx is done.
func (s *SessionStore) RunSweeper(ctx context.Context, interval time.Duration, now func() time.Time, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(now()); n > 0 {
				logger.Debug("swept expired sessions", "count", n)
			}
		}
	}
}
