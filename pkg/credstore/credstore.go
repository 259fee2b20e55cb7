// Package credstore persists a client's session tuple so a process can
// resume a sign-in after restart.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erauner12/firerest/pkg/client"
)

// ErrNotFound is returned by Store.Load when nothing is stored under key.
var ErrNotFound = errors.New("credstore: no stored credentials")

// saveTimeout bounds a single Save or Clear issued from a session change.
const saveTimeout = 5 * time.Second

// Store persists snapshots by key. Implementations must be safe for
// concurrent use.
type Store interface {
	Load(ctx context.Context, key string) (client.Snapshot, error)
	Save(ctx context.Context, key string, snap client.Snapshot) error
	Clear(ctx context.Context, key string) error
}

// Key is the storage key for a client: one session per project and API key.
func Key(c *client.Client) string {
	s := c.Settings()
	return s.ProjectID + ":" + s.APIKey
}

// Attach restores any stored session into c and keeps store in sync with
// every later session change. The returned func stops syncing.
//
// A stored snapshot that cannot be restored is cleared, not returned as an
// error. Saves run synchronously on the goroutine that changed the session.
// Each write persists the session's current state under a lock, so
// deliveries arriving out of order cannot resurrect a signed-out session.
func Attach(ctx context.Context, c *client.Client, store Store) (func(), error) {
	key := Key(c)
	logger := c.Logger().With().Str("component", "credstore").Logger()

	snap, err := store.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Debug().Msg("no stored credentials")
	case err != nil:
		return nil, fmt.Errorf("load credentials: %w", err)
	default:
		if err := c.Tokens().Restore(snap); err != nil {
			logger.Warn().Err(err).Msg("discarding unusable stored credentials")
			if err := store.Clear(ctx, key); err != nil {
				return nil, fmt.Errorf("clear credentials: %w", err)
			}
		}
	}

	var mu sync.Mutex
	detach := c.Session().OnCredentialsChanged(func(client.Snapshot) {
		mu.Lock()
		defer mu.Unlock()

		saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		s := c.Session().Snapshot()
		var err error
		if s.Identity == nil {
			err = store.Clear(saveCtx, key)
		} else {
			err = store.Save(saveCtx, key, s)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to persist credentials")
		}
	})
	return detach, nil
}
