// Package ratelimit implements a sliding-window request gate. It tracks the
// timestamps of recent outbound requests against a per-quota-class window
// and answers whether a new request is currently permitted, and how long
// until capacity frees up.
//
// The limiter is advisory and local: it does not coordinate with other
// processes sharing the same credential and is not the upstream service's
// source of truth. Its job is to fail a fetch attempt before wasting a
// request the upstream would reject anyway.
package ratelimit

import (
	"encoding/json"
	"time"
)

// Quota is one rate-limit class: a request count per trailing window.
type Quota struct {
	// Name distinguishes quota classes in the store and in metrics.
	Name string

	// MaxRequests is the number of requests allowed per Window.
	MaxRequests int

	// Window is the sliding window length.
	Window time.Duration
}

// DemoKeyQuota is the low-quota shared-credential class (DEMO_KEY).
func DemoKeyQuota() Quota {
	return Quota{Name: "demo", MaxRequests: 30, Window: time.Hour}
}

// PersonalKeyQuota is the high-quota per-user credential class.
func PersonalKeyQuota() Quota {
	return Quota{Name: "personal", MaxRequests: 1000, Window: time.Hour}
}

// State is the recorded request history for one quota class, ordered
// oldest first. It serializes as a flat array of unix-millisecond
// timestamps.
type State struct {
	Timestamps []time.Time
}

// MarshalJSON encodes the state as a JSON array of millisecond timestamps.
func (s State) MarshalJSON() ([]byte, error) {
	millis := make([]int64, len(s.Timestamps))
	for i, ts := range s.Timestamps {
		millis[i] = ts.UnixMilli()
	}
	return json.Marshal(millis)
}

// UnmarshalJSON decodes a JSON array of millisecond timestamps.
func (s *State) UnmarshalJSON(data []byte) error {
	var millis []int64
	if err := json.Unmarshal(data, &millis); err != nil {
		return err
	}
	s.Timestamps = make([]time.Time, len(millis))
	for i, ms := range millis {
		s.Timestamps[i] = time.UnixMilli(ms)
	}
	return nil
}

// Prune drops timestamps that have fallen out of the trailing window.
// Insertion order is chronological, so surviving entries form a suffix.
func (s *State) Prune(now time.Time, window time.Duration) {
	cut := 0
	for cut < len(s.Timestamps) && now.Sub(s.Timestamps[cut]) >= window {
		cut++
	}
	s.Timestamps = s.Timestamps[cut:]
}

// Count returns the number of recorded requests.
func (s *State) Count() int {
	return len(s.Timestamps)
}

// Remaining returns how many requests are left before the quota is
// exhausted, never negative.
func (s *State) Remaining(max int) int {
	remaining := max - len(s.Timestamps)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeUntilReset returns how long until the oldest counted request falls
// out of the window, freeing one slot. Returns 0 when no requests are
// recorded or the oldest is already outside the window.
func (s *State) TimeUntilReset(now time.Time, window time.Duration) time.Duration {
	if len(s.Timestamps) == 0 {
		return 0
	}
	until := window - now.Sub(s.Timestamps[0])
	if until < 0 {
		return 0
	}
	return until
}
