// Package storage defines the durable tier shared by every cache process.
package storage

import (
	"context"
	"time"
)

// Durable is a shared key-value store with native TTL support.
// Implementations must be safe for concurrent use.
type Durable interface {
	// Get returns the value and its expiry (zero if unknown).
	// Returns tiercache.ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, time.Time, error)
	// Put stores val for ttl. A non-positive ttl stores without expiry.
	Put(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every live key starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close() error
}

// Purger is implemented by durable stores that do not expire rows on their
// own and need periodic cleanup.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}
