package fakebackend

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// grant is an issued refresh token.
type grant struct {
	Token     string
	UID       string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// grantStore tracks issued refresh tokens.
type grantStore struct {
	mu     sync.RWMutex
	grants map[string]grant // key: token
	ttl    time.Duration
	now    func() time.Time
}

func newGrantStore(ttl time.Duration, now func() time.Time) *grantStore {
	return &grantStore{grants: make(map[string]grant), ttl: ttl, now: now}
}

// issue creates a refresh token for uid.
func (s *grantStore) issue(uid string) grant {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	g := grant{
		Token:     uuid.New().String(),
		UID:       uid,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.grants[g.Token] = g

	s.cleanupExpiredLocked()

	return g
}

// lookup returns the live grant for token.
func (s *grantStore) lookup(token string) (grant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, exists := s.grants[token]
	if !exists {
		return grant{}, false
	}
	if s.now().UTC().After(g.ExpiresAt) {
		return grant{}, false
	}
	return g, true
}

// revokeUser removes every grant held by uid.
func (s *grantStore) revokeUser(uid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for token, g := range s.grants {
		if g.UID == uid {
			delete(s.grants, token)
			n++
		}
	}
	return n
}

// cleanupExpiredLocked removes expired grants (caller must hold write lock)
func (s *grantStore) cleanupExpiredLocked() {
	now := s.now().UTC()
	for token, g := range s.grants {
		if now.After(g.ExpiresAt) {
			delete(s.grants, token)
		}
	}
}
