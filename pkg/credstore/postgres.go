package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erauner12/firerest/pkg/client"
)

const schema = `
CREATE TABLE IF NOT EXISTS firerest_credentials (
	key        TEXT PRIMARY KEY,
	snapshot   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps one row per key.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool for databaseURL and pings it.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the credentials table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Load reads the snapshot row for key.
func (s *PostgresStore) Load(ctx context.Context, key string) (client.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM firerest_credentials WHERE key = $1`, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
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

// Save upserts the snapshot row for key.
func (s *PostgresStore) Save(ctx context.Context, key string, snap client.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO firerest_credentials (key, snapshot, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = now()`,
		key, data)
	return err
}

// Clear deletes the row for key.
func (s *PostgresStore) Clear(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM firerest_credentials WHERE key = $1`, key)
	return err
}
