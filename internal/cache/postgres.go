package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool used by PostgresStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS station_cache (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ
)`

const createIndexSQL = `CREATE INDEX IF NOT EXISTS station_cache_expires_at_idx
	ON station_cache (expires_at) WHERE expires_at IS NOT NULL`

const getSQL = `SELECT value FROM station_cache
	WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`

const setSQL = `INSERT INTO station_cache (key, value, expires_at) VALUES ($1, $2, $3)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

const deleteSQL = `DELETE FROM station_cache WHERE key = ANY($1)`

const purgeSQL = `DELETE FROM station_cache WHERE expires_at IS NOT NULL AND expires_at <= now()`

// PostgresStore keeps values in the station_cache table.
type PostgresStore struct {
	db  DBTX
	now func() time.Time
}

// NewPostgresStore wraps a pool. Call EnsureSchema once at startup.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// EnsureSchema creates the cache table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create station_cache: %w", err)
	}
	if _, err := s.db.Exec(ctx, createIndexSQL); err != nil {
		return fmt.Errorf("create station_cache index: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, getSQL, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := s.now().Add(ttl)
		expiresAt = &t
	}
	if _, err := s.db.Exec(ctx, setSQL, key, value, expiresAt); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, deleteSQL, keys); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, purgeSQL)
	if err != nil {
		return 0, fmt.Errorf("purge station_cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
