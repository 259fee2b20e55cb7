package credstore

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/erauner12/firerest/pkg/client"
)

// MemoryStore keeps snapshots in process. Useful for tests and for sharing
// a session between clients in one process.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore returns a store whose entries expire after ttl; zero keeps
// them until cleared.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryStore{c: gocache.New(ttl, time.Minute)}
}

// Load returns a copy of the snapshot stored under key.
func (m *MemoryStore) Load(_ context.Context, key string) (client.Snapshot, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return client.Snapshot{}, ErrNotFound
	}
	snap, _ := v.(client.Snapshot)
	return cloneSnapshot(snap), nil
}

// Save stores a copy of snap under key.
func (m *MemoryStore) Save(_ context.Context, key string, snap client.Snapshot) error {
	m.c.Set(key, cloneSnapshot(snap), gocache.DefaultExpiration)
	return nil
}

// Clear removes key. Missing keys are not an error.
func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func cloneSnapshot(s client.Snapshot) client.Snapshot {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}
