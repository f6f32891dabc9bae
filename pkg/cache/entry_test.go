package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expires  time.Time
		now      time.Time
		expected bool
	}{
		{
			name:     "fresh entry",
			expires:  base.Add(time.Hour),
			now:      base,
			expected: false,
		},
		{
			name:     "expired entry",
			expires:  base.Add(time.Hour),
			now:      base.Add(2 * time.Hour),
			expected: true,
		},
		{
			name:     "exactly at expiry",
			expires:  base,
			now:      base,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			if got := entry.IsExpired(tt.now); got != tt.expected {
				t.Errorf("IsExpired() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	entry := &Entry{Expires: base.Add(time.Hour)}
	if got := entry.TTL(base); got != time.Hour {
		t.Errorf("TTL() = %v, want 1h", got)
	}

	// Already expired: TTL floors at 0.
	if got := entry.TTL(base.Add(2 * time.Hour)); got != 0 {
		t.Errorf("TTL() on expired entry = %v, want 0", got)
	}
}

func TestEntry_Recency(t *testing.T) {
	cachedAt := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	accessed := cachedAt.Add(30 * time.Minute)

	entry := &Entry{CachedAt: cachedAt}
	if got := entry.recency(); !got.Equal(cachedAt) {
		t.Errorf("recency() before first read = %v, want CachedAt %v", got, cachedAt)
	}

	entry.LastAccessed = accessed
	if got := entry.recency(); !got.Equal(accessed) {
		t.Errorf("recency() after read = %v, want LastAccessed %v", got, accessed)
	}
}
