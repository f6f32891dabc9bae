package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process store backed by a map.
//
// It is used by unit tests and as a degraded fallback when no Redis is
// available. MaxBytes, when positive, caps the cumulative size of stored
// values; writes beyond the cap fail with ErrQuotaExceeded, mirroring a
// backend with a hard storage quota.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string]memoryItem
	maxBytes int64
	used     int64
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an in-memory store.
// maxBytes of 0 means unbounded.
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]memoryItem),
		maxBytes: maxBytes,
	}
}

// Get retrieves the raw value for a key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	item, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		_ = s.Delete(ctx, key)
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate stored bytes.
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

// Set stores a value under a key with an optional TTL.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newUsed := s.used + int64(len(value))
	if old, ok := s.data[key]; ok {
		newUsed -= int64(len(old.value))
	}
	if s.maxBytes > 0 && newUsed > s.maxBytes {
		return ErrQuotaExceeded
	}

	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	s.data[key] = item
	s.used = newUsed
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.data[key]; ok {
		s.used -= int64(len(item.value))
		delete(s.data, key)
	}
	return nil
}

// Keys returns all keys beginning with the given prefix.
func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// UsedBytes returns the cumulative size of stored values (for tests).
func (s *MemoryStore) UsedBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}
