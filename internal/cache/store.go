// Package cache holds the station's local persistent state: carts, checkout
// forms, session tokens and image previews. Values live in a pluggable
// key-value Store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Store.Get for a missing or expired key.
var ErrNotFound = errors.New("cache: key not found")

// Store is a byte-oriented key-value store with per-key expiry.
// A ttl <= 0 means the key never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Backend names accepted by CACHE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ValidateBackend rejects unknown backend names.
func ValidateBackend(name string) error {
	switch name {
	case BackendMemory, BackendRedis, BackendPostgres:
		return nil
	}
	return fmt.Errorf("unknown cache backend %q", name)
}
