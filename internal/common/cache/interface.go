// Package cache wraps the key-value store shared by the judge service.
package cache

import (
	"context"
	"time"
)

// Cache is the store used for run status and rate limiting.
type Cache interface {
	BasicOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key. A missing key yields "" and no error.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair. A zero ttl never expires.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error

	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns -1 for a key without expiration and -2 for a missing key.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Incr(ctx context.Context, key string) (int64, error)
}
