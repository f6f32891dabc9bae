package cache

import (
	"strings"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name     string
		key      Key
		expected string
	}{
		{
			name:     "dataset only",
			key:      Key{Dataset: "apod"},
			expected: "spacedata:cache:apod",
		},
		{
			name: "dataset with params",
			key: Key{
				Dataset: "apod",
				Params:  map[string]string{"date": "2026-08-24"},
			},
			expected: "spacedata:cache:apod:date=2026-08-24",
		},
		{
			name: "params sorted for determinism",
			key: Key{
				Dataset: "neo/feed",
				Params: map[string]string{
					"start_date": "2026-08-24",
					"end_date":   "2026-08-25",
				},
			},
			expected: "spacedata:cache:neo/feed:end_date=2026-08-25:start_date=2026-08-24",
		},
		{
			name:     "dataset slashes trimmed",
			key:      Key{Dataset: "/mars-photos/"},
			expected: "spacedata:cache:mars-photos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestKey_String_Deterministic(t *testing.T) {
	key := Key{
		Dataset: "rover-photos",
		Params: map[string]string{
			"rover": "curiosity",
			"sol":   "4100",
			"page":  "2",
		},
	}

	first := key.String()
	for i := 0; i < 10; i++ {
		if got := key.String(); got != first {
			t.Fatalf("String() not deterministic: %q vs %q", got, first)
		}
	}
}

func TestKey_String_Namespaced(t *testing.T) {
	key := Key{Dataset: "donki/flares"}
	if !strings.HasPrefix(key.String(), KeyPrefix) {
		t.Errorf("String() = %q, missing namespace prefix %q", key.String(), KeyPrefix)
	}
}

func TestKey_CategoryNotInKey(t *testing.T) {
	// The category selects priority/TTL but must not change identity:
	// the same dataset+params is the same cached record.
	a := Key{Dataset: "apod", Category: CategoryAPOD}
	b := Key{Dataset: "apod", Category: CategoryDataset}
	if a.String() != b.String() {
		t.Errorf("keys differ by category: %q vs %q", a.String(), b.String())
	}
}
