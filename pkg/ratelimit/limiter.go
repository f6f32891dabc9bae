package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/orbitaldata/nasa-client/pkg/storage"
)

// StateKeyPrefix namespaces limiter state in the shared store, one key per
// quota class.
const StateKeyPrefix = "spacedata:ratelimit:"

// Prometheus metrics for rate limit gating.
var (
	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacedata_ratelimit_blocks_total",
		Help: "Total number of requests denied by the local rate limiter",
	}, []string{"class"})

	rateLimitRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacedata_ratelimit_requests_recorded_total",
		Help: "Total number of outbound requests recorded against the quota",
	}, []string{"class"})

	rateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spacedata_ratelimit_remaining",
		Help: "Requests remaining in the current sliding window",
	}, []string{"class"})
)

// Limiter gates outbound requests against one quota class.
//
// State is persisted in the shared store under a fixed per-class key with
// last-writer-wins semantics; two processes sharing the store can lose
// updates to each other. The limiter accepts this because it is advisory.
// When the store is unreachable the limiter degrades open: requests are
// allowed and recording becomes a no-op.
type Limiter struct {
	store  storage.Store
	quota  Quota
	key    string
	logger zerolog.Logger

	// now is replaceable in tests to simulate time.
	now func() time.Time
}

// NewLimiter creates a limiter for the given quota class.
func NewLimiter(store storage.Store, quota Quota, logger zerolog.Logger) *Limiter {
	if store == nil {
		panic("storage backend cannot be nil")
	}
	return &Limiter{
		store:  store,
		quota:  quota,
		key:    StateKeyPrefix + quota.Name,
		logger: logger,
		now:    time.Now,
	}
}

// Quota returns the quota class this limiter enforces.
func (l *Limiter) Quota() Quota {
	return l.quota
}

// CanMakeRequest reports whether a new outbound request is currently
// permitted. Stale timestamps are pruned before counting.
func (l *Limiter) CanMakeRequest(ctx context.Context) bool {
	state := l.load(ctx)
	state.Prune(l.now(), l.quota.Window)

	remaining := state.Remaining(l.quota.MaxRequests)
	rateLimitRemaining.WithLabelValues(l.quota.Name).Set(float64(remaining))

	if remaining == 0 {
		rateLimitBlocksTotal.WithLabelValues(l.quota.Name).Inc()
		l.logger.Warn().
			Str("class", l.quota.Name).
			Int("max_requests", l.quota.MaxRequests).
			Dur("reset_in", state.TimeUntilReset(l.now(), l.quota.Window)).
			Msg("Request quota exhausted")
		return false
	}
	return true
}

// RecordRequest appends the current time to the request history and
// persists it. Call after the limiter has permitted a request.
func (l *Limiter) RecordRequest(ctx context.Context) error {
	now := l.now()

	state := l.load(ctx)
	state.Prune(now, l.quota.Window)
	state.Timestamps = append(state.Timestamps, now)

	if err := l.persist(ctx, state); err != nil {
		// Advisory limiter: losing one recorded request is preferable to
		// failing the caller's fetch.
		l.logger.Warn().Err(err).Str("class", l.quota.Name).Msg("Failed to persist rate limit state")
		return nil
	}

	rateLimitRecordedTotal.WithLabelValues(l.quota.Name).Inc()
	rateLimitRemaining.WithLabelValues(l.quota.Name).Set(float64(state.Remaining(l.quota.MaxRequests)))

	l.logger.Debug().
		Str("class", l.quota.Name).
		Int("used", state.Count()).
		Int("max_requests", l.quota.MaxRequests).
		Msg("Recorded outbound request")
	return nil
}

// RemainingRequests returns how many requests are left in the current
// window, never negative.
func (l *Limiter) RemainingRequests(ctx context.Context) int {
	state := l.load(ctx)
	state.Prune(l.now(), l.quota.Window)
	return state.Remaining(l.quota.MaxRequests)
}

// TimeUntilReset returns how long until the oldest counted request falls
// out of the window. Returns 0 when the window is empty.
func (l *Limiter) TimeUntilReset(ctx context.Context) time.Duration {
	now := l.now()
	state := l.load(ctx)
	state.Prune(now, l.quota.Window)
	return state.TimeUntilReset(now, l.quota.Window)
}

// load reads the persisted state. Absent, corrupt, or unreachable state
// all yield an empty history; corrupt records are deleted.
func (l *Limiter) load(ctx context.Context) *State {
	raw, err := l.store.Get(ctx, l.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			l.logger.Debug().Err(err).Str("class", l.quota.Name).Msg("Rate limit state unavailable, assuming empty")
		}
		return &State{}
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		_ = l.store.Delete(ctx, l.key)
		l.logger.Warn().Str("class", l.quota.Name).Msg("Removed corrupt rate limit state")
		return &State{}
	}
	return &state
}

// persist writes the state back with a backend TTL of one window; a fully
// aged-out history can simply disappear from the store.
func (l *Limiter) persist(ctx context.Context, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return l.store.Set(ctx, l.key, raw, l.quota.Window)
}
