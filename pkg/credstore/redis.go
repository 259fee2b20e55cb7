package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erauner12/firerest/pkg/client"
)

// DefaultRefreshLifetime is how long a refresh token is assumed usable after
// the access token expires.
const DefaultRefreshLifetime = 30 * 24 * time.Hour

const redisKeyPrefix = "firerest:credentials:"

// RedisStore keeps snapshots in Redis with a TTL covering the refresh
// token's remaining life.
type RedisStore struct {
	rdb             *redis.Client
	refreshLifetime time.Duration
}

// NewRedisStore connects to redisURL and pings it before returning.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb, refreshLifetime: DefaultRefreshLifetime}, nil
}

// WithRefreshLifetime overrides DefaultRefreshLifetime.
func (s *RedisStore) WithRefreshLifetime(d time.Duration) *RedisStore {
	s.refreshLifetime = d
	return s
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Load reads and decodes the snapshot stored under key.
func (s *RedisStore) Load(ctx context.Context, key string) (client.Snapshot, error) {
	data, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return client.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return client.Snapshot{}, err
	}
	var snap client.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return client.Snapshot{}, fmt.Errorf("decode credentials: %w", err)
	}
	return snap, nil
}

// Save writes snap under key. The entry outlives the access token by the
// refresh lifetime.
func (s *RedisStore) Save(ctx context.Context, key string, snap client.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	ttl := time.Until(snap.ExpiresAt)
	if ttl < 0 {
		ttl = 0
	}
	ttl += s.refreshLifetime
	return s.rdb.Set(ctx, redisKeyPrefix+key, data, ttl).Err()
}

// Clear deletes key.
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, redisKeyPrefix+key).Err()
}
