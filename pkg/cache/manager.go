package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/orbitaldata/nasa-client/pkg/storage"
)

var (
	// ErrCacheMiss indicates the requested key was not found, was expired,
	// or was invalidated. It is a normal negative result, not a failure.
	ErrCacheMiss = errors.New("cache miss")

	// ErrStoreFull indicates a write could not be persisted even after a
	// low-priority sweep and retry. The value is simply not cached.
	ErrStoreFull = errors.New("cache store full")
)

// DefaultBudget is the byte budget applied when none is configured.
const DefaultBudget = 5 << 20 // 5 MiB

// evictTargetRatio is the fill level eviction drives the cache down to.
// Stopping below the budget avoids re-evicting on every subsequent write.
const evictTargetRatio = 0.8

// Manager is the bounded priority cache over a storage backend.
//
// All operations are synchronous and never perform network I/O themselves.
// Storage failures degrade to miss (reads) or a reported non-fatal error
// (writes); the manager never panics across its boundary.
type Manager struct {
	store  storage.Store
	budget int64
	logger zerolog.Logger

	// now is replaceable in tests to simulate time.
	now func() time.Time
}

// Config holds cache manager configuration.
type Config struct {
	// Store is the persistence backend (required).
	Store storage.Store

	// Budget is the global byte budget across all live entries.
	// Defaults to DefaultBudget when zero.
	Budget int64

	// Logger is the structured logger for cache events.
	Logger zerolog.Logger
}

// SetOptions controls a single write.
type SetOptions struct {
	// TTL is the entry lifetime. When zero, the default TTL for the
	// key's category applies.
	TTL time.Duration

	// Priority overrides the category-derived retention priority when
	// positive.
	Priority int

	// Version is a schema tag stored with the entry.
	Version string

	// Tags and Metadata are opaque caller annotations.
	Tags     []string
	Metadata map[string]string
}

// GetOptions controls a single read.
type GetOptions struct {
	// Version, when non-empty, must match the stored entry's version;
	// a mismatch invalidates the entry and reads as a miss.
	Version string
}

// NewManager creates a cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if cfg.Budget < 0 {
		return nil, fmt.Errorf("budget must not be negative (got %d)", cfg.Budget)
	}
	if cfg.Budget == 0 {
		cfg.Budget = DefaultBudget
	}

	return &Manager{
		store:  cfg.Store,
		budget: cfg.Budget,
		logger: cfg.Logger,
		now:    time.Now,
	}, nil
}

// Set writes a value under the given key and enforces the byte budget.
//
// A quota failure at the backend triggers one low-priority sweep and one
// retry; if that also fails the value is not cached and ErrStoreFull is
// returned. Every error from Set is recoverable: the caller loses caching
// for this value, nothing more.
func (m *Manager) Set(ctx context.Context, key Key, value any, opts SetOptions) error {
	data, err := json.Marshal(value)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal value: %w", err)
	}

	now := m.now()

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTLFor(key.Category)
	}

	priority := opts.Priority
	if priority <= 0 {
		priority = PriorityFor(key.Category)
	}

	entry := Entry{
		Data:     data,
		CachedAt: now,
		Expires:  now.Add(ttl),
		Priority: priority,
		Size:     int64(len(data)),
		Version:  opts.Version,
		Tags:     opts.Tags,
		Metadata: opts.Metadata,
	}

	raw, err := json.Marshal(&entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	storeKey := key.String()
	if err := m.store.Set(ctx, storeKey, raw, ttl); err != nil {
		if !errors.Is(err, storage.ErrQuotaExceeded) {
			cacheErrors.WithLabelValues("set").Inc()
			return fmt.Errorf("store set: %w", err)
		}

		// Backend quota exhausted: sweep low-priority entries and retry once.
		freed := m.sweepLowPriority(ctx, entry.Size)
		m.logger.Warn().
			Str("key", storeKey).
			Int64("freed_bytes", freed).
			Msg("Store quota exceeded, swept low-priority entries")

		if err := m.store.Set(ctx, storeKey, raw, ttl); err != nil {
			cacheErrors.WithLabelValues("set").Inc()
			m.logger.Warn().Err(err).Str("key", storeKey).Msg("Cache write failed after sweep")
			return fmt.Errorf("%w: %v", ErrStoreFull, err)
		}
	}

	m.logger.Debug().
		Str("key", storeKey).
		Int("priority", priority).
		Dur("ttl", ttl).
		Int64("size", entry.Size).
		Msg("Cached value")

	m.enforceBudget(ctx)
	return nil
}

// Get retrieves the entry stored under key.
//
// Returns ErrCacheMiss if the key is absent, the entry is expired or
// version-mismatched (both deleted as a side effect), the stored record is
// corrupt (also deleted), or the backend is unavailable. On a hit the
// entry's LastAccessed timestamp is updated and written back best-effort.
func (m *Manager) Get(ctx context.Context, key Key, opts GetOptions) (*Entry, error) {
	storeKey := key.String()

	raw, err := m.store.Get(ctx, storeKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			// Backend unavailable: degrade to miss.
			cacheErrors.WithLabelValues("get").Inc()
			m.logger.Debug().Err(err).Str("key", storeKey).Msg("Cache read degraded to miss")
		}
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Corrupt record: delete and report miss, never an error.
		_ = m.store.Delete(ctx, storeKey)
		cacheInvalidations.WithLabelValues("corrupt").Inc()
		cacheMisses.Inc()
		m.logger.Warn().Str("key", storeKey).Msg("Removed corrupt cache entry")
		return nil, ErrCacheMiss
	}

	now := m.now()

	if entry.IsExpired(now) {
		_ = m.store.Delete(ctx, storeKey)
		cacheInvalidations.WithLabelValues("expired").Inc()
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if opts.Version != "" && entry.Version != opts.Version {
		_ = m.store.Delete(ctx, storeKey)
		cacheInvalidations.WithLabelValues("version").Inc()
		cacheMisses.Inc()
		m.logger.Debug().
			Str("key", storeKey).
			Str("stored", entry.Version).
			Str("requested", opts.Version).
			Msg("Cache entry invalidated by version mismatch")
		return nil, ErrCacheMiss
	}

	// Record the read for recency-based eviction. Write-back is
	// best-effort and preserves the remaining TTL.
	entry.LastAccessed = now
	if raw, err := json.Marshal(&entry); err == nil {
		_ = m.store.Set(ctx, storeKey, raw, entry.TTL(now))
	}

	cacheHits.Inc()
	return &entry, nil
}

// GetValue retrieves the entry under key and unmarshals its payload into out.
func (m *Manager) GetValue(ctx context.Context, key Key, opts GetOptions, out any) error {
	entry, err := m.Get(ctx, key, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(entry.Data, out); err != nil {
		return fmt.Errorf("unmarshal cached value: %w", err)
	}
	return nil
}

// Delete removes the entry under key. Deleting an absent key is not an error.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.store.Delete(ctx, key.String()); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("store delete: %w", err)
	}
	return nil
}

// Clear removes all entries, or only those whose key contains pattern when
// pattern is non-empty. Returns the number of entries removed.
func (m *Manager) Clear(ctx context.Context, pattern string) (int, error) {
	keys, err := m.store.Keys(ctx, KeyPrefix)
	if err != nil {
		cacheErrors.WithLabelValues("clear").Inc()
		return 0, fmt.Errorf("store keys: %w", err)
	}

	removed := 0
	for _, storeKey := range keys {
		if pattern != "" && !strings.Contains(strings.TrimPrefix(storeKey, KeyPrefix), pattern) {
			continue
		}
		if err := m.store.Delete(ctx, storeKey); err != nil {
			cacheErrors.WithLabelValues("clear").Inc()
			continue
		}
		removed++
	}

	m.logger.Info().Str("pattern", pattern).Int("removed", removed).Msg("Cleared cache entries")
	return removed, nil
}

// EntryInfo describes one live entry for diagnostics.
type EntryInfo struct {
	Key          string    `json:"key"`
	Priority     int       `json:"priority"`
	Size         int64     `json:"size"`
	CachedAt     time.Time `json:"cached_at"`
	LastAccessed time.Time `json:"last_accessed,omitempty"`
	Expires      time.Time `json:"expires"`
}

// StorageInfo summarizes cache occupancy against the budget.
type StorageInfo struct {
	TotalBytes int64 `json:"total_bytes"`
	ItemCount  int   `json:"item_count"`
	Budget     int64 `json:"budget"`

	// Utilization is TotalBytes divided by Budget, a 0-1 ratio
	// (1.0 means the budget is fully used).
	Utilization float64 `json:"utilization_ratio"`

	// Entries is sorted in eviction order: ascending by priority, then by
	// least-recent access.
	Entries []EntryInfo `json:"entries"`
}

// StorageInfo reports occupancy and a priority-sorted listing of all live
// entries.
func (m *Manager) StorageInfo(ctx context.Context) (*StorageInfo, error) {
	loaded, err := m.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	sortEvictionOrder(loaded)

	info := &StorageInfo{
		Budget:  m.budget,
		Entries: make([]EntryInfo, 0, len(loaded)),
	}
	for _, le := range loaded {
		info.TotalBytes += le.entry.Size
		info.Entries = append(info.Entries, EntryInfo{
			Key:          le.storeKey,
			Priority:     le.entry.Priority,
			Size:         le.entry.Size,
			CachedAt:     le.entry.CachedAt,
			LastAccessed: le.entry.LastAccessed,
			Expires:      le.entry.Expires,
		})
	}
	info.ItemCount = len(loaded)
	if m.budget > 0 {
		info.Utilization = float64(info.TotalBytes) / float64(m.budget)
	}

	cacheSize.Set(float64(info.TotalBytes))
	return info, nil
}

// CleanupExpired scans all entries and deletes any past their expiry.
// Returns the number of entries removed. Called at initialization and safe
// to call periodically.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	loaded, err := m.loadAll(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	removed := 0
	for _, le := range loaded {
		if !le.entry.IsExpired(now) {
			continue
		}
		if err := m.store.Delete(ctx, le.storeKey); err != nil {
			continue
		}
		cacheInvalidations.WithLabelValues("expired").Inc()
		removed++
	}

	if removed > 0 {
		m.logger.Info().Int("removed", removed).Msg("Cleaned up expired cache entries")
	}
	return removed, nil
}

// loadedEntry pairs a store key with its parsed entry.
type loadedEntry struct {
	storeKey string
	entry    Entry
}

// loadAll reads and parses every live cache entry. Corrupt records are
// deleted and skipped.
func (m *Manager) loadAll(ctx context.Context) ([]loadedEntry, error) {
	keys, err := m.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("store keys: %w", err)
	}

	loaded := make([]loadedEntry, 0, len(keys))
	for _, storeKey := range keys {
		raw, err := m.store.Get(ctx, storeKey)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			_ = m.store.Delete(ctx, storeKey)
			cacheInvalidations.WithLabelValues("corrupt").Inc()
			continue
		}
		loaded = append(loaded, loadedEntry{storeKey: storeKey, entry: entry})
	}
	return loaded, nil
}

// sortEvictionOrder sorts entries ascending by (priority, recency): the
// first element is the first eviction candidate.
func sortEvictionOrder(loaded []loadedEntry) {
	sort.SliceStable(loaded, func(i, j int) bool {
		if loaded[i].entry.Priority != loaded[j].entry.Priority {
			return loaded[i].entry.Priority < loaded[j].entry.Priority
		}
		return loaded[i].entry.recency().Before(loaded[j].entry.recency())
	})
}

// enforceBudget evicts entries until total size is at or below 80% of the
// budget. Best-effort and synchronous: if a single oversized entry exceeds
// the whole budget it removes everything it can and returns.
func (m *Manager) enforceBudget(ctx context.Context) {
	loaded, err := m.loadAll(ctx)
	if err != nil {
		cacheErrors.WithLabelValues("evict").Inc()
		return
	}

	var total int64
	for _, le := range loaded {
		total += le.entry.Size
	}
	cacheSize.Set(float64(total))

	if total <= m.budget {
		return
	}

	target := int64(float64(m.budget) * evictTargetRatio)
	sortEvictionOrder(loaded)

	evicted := 0
	for _, le := range loaded {
		if total <= target {
			break
		}
		if err := m.store.Delete(ctx, le.storeKey); err != nil {
			continue
		}
		total -= le.entry.Size
		cacheInvalidations.WithLabelValues("budget").Inc()
		evicted++
	}

	cacheSize.Set(float64(total))
	m.logger.Info().
		Int("evicted", evicted).
		Int64("total_bytes", total).
		Int64("budget", m.budget).
		Msg("Evicted cache entries to enforce budget")
}

// sweepLowPriority removes entries in eviction order until at least need
// bytes are freed or nothing evictable remains. Returns the bytes freed.
func (m *Manager) sweepLowPriority(ctx context.Context, need int64) int64 {
	loaded, err := m.loadAll(ctx)
	if err != nil {
		return 0
	}

	sortEvictionOrder(loaded)

	var freed int64
	for _, le := range loaded {
		if freed >= need {
			break
		}
		if err := m.store.Delete(ctx, le.storeKey); err != nil {
			continue
		}
		freed += le.entry.Size
		cacheInvalidations.WithLabelValues("budget").Inc()
	}
	return freed
}
