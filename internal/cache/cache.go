// Package cache defines the byte-level store used to mirror ready job
// outcomes. The default backend is an in-memory map; a Redis backend lets
// poll requests collect results from a replica that did not run the job.
// Encoding is left to the caller.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache abstracts a key-value store with TTL support. All operations are
// safe for concurrent use.
type Cache interface {
	// Get retrieves the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL means the entry
	// does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies connectivity to the backend.
	Ping(ctx context.Context) error

	// Close releases all resources held by the backend.
	Close() error
}
