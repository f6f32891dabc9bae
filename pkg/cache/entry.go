package cache

import (
	"encoding/json"
	"time"
)

// Entry is the persisted record for a single cache key.
type Entry struct {
	// Data is the serialized payload handed over by the caller.
	Data json.RawMessage `json:"data"`

	// CachedAt is when the entry was written.
	CachedAt time.Time `json:"timestamp"`

	// Expires is when the entry becomes stale (CachedAt + TTL).
	Expires time.Time `json:"expires"`

	// LastAccessed is updated on every successful read and drives the
	// recency half of the eviction order. Zero until first read.
	LastAccessed time.Time `json:"lastAccessed,omitempty"`

	// Priority is the retention class; higher survives eviction longer.
	Priority int `json:"priority"`

	// Size is the byte size of Data, computed at write time.
	Size int64 `json:"size"`

	// Version is a schema tag; reads requesting a different version
	// invalidate the entry.
	Version string `json:"version,omitempty"`

	// Tags and Metadata carry caller annotations, opaque to the cache.
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsExpired reports whether the entry is stale at the given instant.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.Expires)
}

// TTL returns the remaining time until expiry at the given instant.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.Expires.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// recency returns the timestamp used for the recency half of the eviction
// order: LastAccessed when the entry has been read, CachedAt otherwise.
func (e *Entry) recency() time.Time {
	if !e.LastAccessed.IsZero() {
		return e.LastAccessed
	}
	return e.CachedAt
}
