package cache

import (
	"fmt"
	"sort"
	"strings"
)

// KeyPrefix namespaces cache entries in the shared store, separating them
// from rate limiter state and any other persisted application data.
const KeyPrefix = "spacedata:cache:"

// Key identifies a cached value.
type Key struct {
	// Dataset is the logical dataset name (e.g. "apod", "neo/feed").
	Dataset string

	// Params are the request parameters that distinguish one record of
	// the dataset from another (e.g. {"date": "2026-08-24"}).
	Params map[string]string

	// Category is the retention class tag; it selects the priority and
	// default TTL for writes under this key.
	Category Category
}

// String generates a deterministic store key.
// Format: spacedata:cache:dataset:param1=val1:param2=val2
//
// Example:
//
//	spacedata:cache:neo/feed:end_date=2026-08-25:start_date=2026-08-24
func (k Key) String() string {
	parts := []string{strings.Trim(k.Dataset, "/")}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	return KeyPrefix + strings.Join(parts, ":")
}
