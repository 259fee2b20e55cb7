package client

import (
	"sync"
	"time"
)

// Session holds the current identity and credential tuple. All four fields
// are swapped together under one lock, so readers never see a mix of old
// and new values. Only the token manager and SignOut mutate it.
type Session struct {
	mu    sync.RWMutex
	state Snapshot
	now   func() time.Time

	identityObservers    registry[*Identity]
	credentialsObservers registry[Snapshot]
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{now: time.Now}
}

// CurrentIdentity returns a copy of the signed-in identity, or nil.
func (s *Session) CurrentIdentity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyIdentity(s.state.Identity)
}

// IsSignedIn is computed on every call: identity and access token are
// present and the token has not expired.
func (s *Session) IsSignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.signedIn(s.now())
}

// Snapshot returns a consistent copy of the session tuple.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// SignOut clears every field and notifies observers with a nil identity,
// even if the session was already empty.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.state = Snapshot{}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap, true)
}

// OnIdentityChanged registers fn for identity changes (sign-in, sign-up,
// restore and sign-out). The returned func unregisters it.
func (s *Session) OnIdentityChanged(fn func(*Identity)) func() {
	return s.identityObservers.add(fn)
}

// OnCredentialsChanged registers fn for every mutation of the tuple,
// including token refreshes.
func (s *Session) OnCredentialsChanged(fn func(Snapshot)) func() {
	return s.credentialsObservers.add(fn)
}

func (s *Session) applyAuth(identity Identity, accessToken, refreshToken string, expiresIn time.Duration) {
	s.mu.Lock()
	s.state = Snapshot{
		Identity:     &identity,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    s.now().Add(expiresIn),
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap, true)
}

// updateCredentials replaces the credential triple while keeping the
// identity. It is a no-op returning false when uid is no longer signed in.
func (s *Session) updateCredentials(uid, accessToken, refreshToken string, expiresIn time.Duration) bool {
	s.mu.Lock()
	if s.state.Identity == nil || s.state.Identity.UID != uid {
		s.mu.Unlock()
		return false
	}
	s.state = Snapshot{
		Identity:     s.state.Identity,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    s.now().Add(expiresIn),
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap, false)
	return true
}

func (s *Session) restore(snap Snapshot) {
	s.mu.Lock()
	s.state = Snapshot{
		Identity:     copyIdentity(snap.Identity),
		AccessToken:  snap.AccessToken,
		RefreshToken: snap.RefreshToken,
		ExpiresAt:    snap.ExpiresAt,
	}
	applied := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(applied, true)
}

func (s *Session) snapshotLocked() Snapshot {
	out := s.state
	out.Identity = copyIdentity(s.state.Identity)
	return out
}

// notify runs after the mutation is visible and outside the lock. snap is
// the state the mutation produced.
func (s *Session) notify(snap Snapshot, identityChanged bool) {
	if identityChanged {
		for _, fn := range s.identityObservers.list() {
			fn(copyIdentity(snap.Identity))
		}
	}
	for _, fn := range s.credentialsObservers.list() {
		fn(snap)
	}
}

func copyIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// registry is an ordered observer list. Delivery iterates a copy taken at
// notification time, so (un)registering during delivery is safe.
type registry[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

func (r *registry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscription[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.subs {
		if sub.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

func (r *registry[T]) list() []func(T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]func(T), len(r.subs))
	for i, sub := range r.subs {
		out[i] = sub.fn
	}
	return out
}
