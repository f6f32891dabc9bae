// Package storage provides the durable key/value persistence layer shared
// by the cache manager and the rate limiter.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested key does not exist in the store.
	ErrNotFound = errors.New("key not found")

	// ErrQuotaExceeded indicates the backend refused a write because its
	// storage quota is exhausted. Callers may free space and retry.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Store is the persistence backend for cache entries and rate limiter state.
//
// The store provides no atomicity across a read-modify-write cycle: two
// processes sharing the same backend can race on the same key, and the last
// writer wins. Both consumers of this interface accept that limitation.
type Store interface {
	// Get retrieves the raw value for a key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under a key. A ttl of 0 means no backend-side
	// expiry. Returns ErrQuotaExceeded when the backend is out of space.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys beginning with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
