// Package cache provides the bounded priority cache backing the spacedata
// client.
//
// Entries carry an expiry, a retention priority derived from an explicit
// category tag, and the byte size of their serialized payload. The manager
// enforces a global byte budget: whenever a write pushes the total over the
// budget, entries are evicted in ascending (priority, last-accessed) order
// until occupancy falls to 80% of the budget. Stopping below the budget
// avoids re-running eviction on every subsequent write.
//
// # Basic Usage
//
//	store := storage.NewRedisStore(redisClient)
//	manager, err := cache.NewManager(cache.Config{
//		Store:  store,
//		Budget: 5 << 20,
//		Logger: logger,
//	})
//
//	key := cache.Key{
//		Dataset:  "apod",
//		Params:   map[string]string{"date": "2026-08-24"},
//		Category: cache.CategoryAPOD,
//	}
//
//	err = manager.Set(ctx, key, picture, cache.SetOptions{})
//
//	entry, err := manager.Get(ctx, key, cache.GetOptions{})
//	if err == cache.ErrCacheMiss {
//		// fetch from upstream
//	}
//
// # Failure semantics
//
// Expected negative outcomes (absent key, expiry, version mismatch, corrupt
// record) all read as ErrCacheMiss; expired, mismatched, and corrupt entries
// are deleted on the read path. Backend quota failures on write trigger one
// low-priority sweep and one retry before reporting ErrStoreFull. A cache
// that cannot reach its backend degrades to miss/no-op; it never takes the
// calling feature down with it.
//
// # Metrics
//
//   - spacedata_cache_hits_total
//   - spacedata_cache_misses_total
//   - spacedata_cache_invalidations_total{reason}
//   - spacedata_cache_size_bytes
//   - spacedata_cache_errors_total{operation}
package cache
