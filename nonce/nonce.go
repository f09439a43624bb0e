// Package nonce issues one-time challenge tokens for registration requests.
// A token is valid for a single Consume call within its TTL; the store is
// process-scoped and holds nothing across restarts.
package nonce

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store hands out nonces and tracks which are still unconsumed.
type Store struct {
	mu     sync.Mutex
	ttl    time.Duration
	issued map[string]time.Time
	now    func() time.Time
}

// NewStore creates a store whose nonces expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:    ttl,
		issued: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Issue returns a fresh nonce valid until the TTL elapses.
func (s *Store) Issue() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()

	token := uuid.New().String()
	s.issued[token] = s.now().Add(s.ttl)
	return token
}

// Consume spends a nonce. It returns true exactly once per issued token,
// and false for unknown, expired, or already-consumed tokens.
func (s *Store) Consume(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.issued[token]
	if !ok {
		return false
	}
	delete(s.issued, token)
	return s.now().Before(expiry)
}

// Pending reports how many unconsumed nonces are outstanding.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()
	return len(s.issued)
}

func (s *Store) purgeLocked() {
	now := s.now()
	for token, expiry := range s.issued {
		if !now.Before(expiry) {
			delete(s.issued, token)
		}
	}
}
