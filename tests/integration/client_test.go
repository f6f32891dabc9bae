//go:build integration
// +build integration

// Package integration contains end-to-end tests running against a real
// Redis instance via testcontainers, exercising the full stack: storage,
// cache manager, rate limiter, and client against a mock upstream.
//
// Run with: go test -tags=integration ./tests/integration/
package integration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/orbitaldata/nasa-client/internal/testutil"
	"github.com/orbitaldata/nasa-client/pkg/cache"
	"github.com/orbitaldata/nasa-client/pkg/client"
	"github.com/orbitaldata/nasa-client/pkg/logging"
	"github.com/orbitaldata/nasa-client/pkg/ratelimit"
	"github.com/orbitaldata/nasa-client/pkg/storage"
)

func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		redisC.Terminate(ctx)
	}

	return redisClient, cleanup
}

type stack struct {
	store   *storage.RedisStore
	cache   *cache.Manager
	limiter *ratelimit.Limiter
	client  *client.Client
}

func newStack(t *testing.T, redisClient *redis.Client, upstream *testutil.MockAPI, quota ratelimit.Quota, budget int64) *stack {
	t.Helper()

	store := storage.NewRedisStore(redisClient)

	cacheManager, err := cache.NewManager(cache.Config{
		Store:  store,
		Budget: budget,
		Logger: logging.NewLogger("cache"),
	})
	if err != nil {
		t.Fatalf("Failed to create cache manager: %v", err)
	}

	limiter := ratelimit.NewLimiter(store, quota, logging.NewLogger("ratelimit"))

	dataClient, err := client.New(client.Config{
		Cache:     cacheManager,
		Limiter:   limiter,
		BaseURL:   upstream.URL(),
		APIKey:    "TEST_KEY",
		UserAgent: "integration-test/1.0",
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	return &stack{store: store, cache: cacheManager, limiter: limiter, client: dataClient}
}

func apodRequest() client.Request {
	return client.Request{
		Path:  "/planetary/apod",
		Query: nil,
		Key: cache.Key{
			Dataset:  "planetary/apod",
			Category: cache.CategoryAPOD,
		},
	}
}

func TestIntegration_CacheHitSkipsUpstream(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	upstream := testutil.NewMockAPI()
	defer upstream.Close()
	upstream.SetJSON("/planetary/apod", `{"title":"Test Nebula"}`, 999)

	s := newStack(t, redisClient, upstream, ratelimit.PersonalKeyQuota(), cache.DefaultBudget)
	defer s.client.Close()

	ctx := context.Background()

	first, err := s.client.Fetch(ctx, apodRequest())
	if err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}
	second, err := s.client.Fetch(ctx, apodRequest())
	if err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("Cached payload differs: %s vs %s", first, second)
	}
	if upstream.Requests() != 1 {
		t.Errorf("Upstream calls = %d, want 1", upstream.Requests())
	}
	// Only the upstream fetch consumed quota; the cache hit did not.
	remaining := s.limiter.RemainingRequests(ctx)
	if want := ratelimit.PersonalKeyQuota().MaxRequests - 1; remaining != want {
		t.Errorf("Remaining = %d, want %d", remaining, want)
	}
}

func TestIntegration_QuotaEnforcement(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	upstream := testutil.NewMockAPI()
	defer upstream.Close()
	upstream.SetJSON("/neo/rest/v1/feed", `{"element_count":3}`, 999)

	quota := ratelimit.Quota{Name: "tiny", MaxRequests: 2, Window: time.Hour}
	s := newStack(t, redisClient, upstream, quota, cache.DefaultBudget)
	defer s.client.Close()

	ctx := context.Background()

	// Two distinct requests use up the quota; a third must fail fast.
	for _, page := range []string{"1", "2"} {
		req := client.Request{
			Path: "/neo/rest/v1/feed",
			Key: cache.Key{
				Dataset:  "neo/feed",
				Params:   map[string]string{"a": page},
				Category: cache.CategoryNEO,
			},
		}
		if _, err := s.client.Fetch(ctx, req); err != nil {
			t.Fatalf("Fetch page %s failed: %v", page, err)
		}
	}

	blocked := client.Request{
		Path: "/neo/rest/v1/feed",
		Key: cache.Key{
			Dataset:  "neo/feed",
			Params:   map[string]string{"a": "3"},
			Category: cache.CategoryNEO,
		},
	}
	_, err := s.client.Fetch(ctx, blocked)
	var rlErr *client.RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("Fetch should be blocked by quota, got err = %v", err)
	}
	if rlErr.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", rlErr.RetryAfter)
	}
	if upstream.Requests() != 2 {
		t.Errorf("Upstream calls = %d, want 2 (blocked fetch made no network call)", upstream.Requests())
	}
}

func TestIntegration_StatePersistsAcrossRestart(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	upstream := testutil.NewMockAPI()
	defer upstream.Close()
	upstream.SetJSON("/planetary/apod", `{"title":"Persistent"}`, 999)

	quota := ratelimit.DemoKeyQuota()

	// First "process" fetches once.
	s1 := newStack(t, redisClient, upstream, quota, cache.DefaultBudget)
	ctx := context.Background()
	if _, err := s1.client.Fetch(ctx, apodRequest()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	s1.client.Close()

	// Second "process" over the same Redis sees the cached entry and the
	// consumed quota slot.
	s2 := newStack(t, redisClient, upstream, quota, cache.DefaultBudget)
	defer s2.client.Close()

	if _, err := s2.client.Fetch(ctx, apodRequest()); err != nil {
		t.Fatalf("Fetch after restart failed: %v", err)
	}
	if upstream.Requests() != 1 {
		t.Errorf("Upstream calls = %d, want 1 (restart served from cache)", upstream.Requests())
	}
	if remaining := s2.limiter.RemainingRequests(ctx); remaining != quota.MaxRequests-1 {
		t.Errorf("Remaining after restart = %d, want %d", remaining, quota.MaxRequests-1)
	}
}

func TestIntegration_BudgetEviction(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	upstream := testutil.NewMockAPI()
	defer upstream.Close()

	// Budget small enough that the third write forces eviction.
	s := newStack(t, redisClient, upstream, ratelimit.PersonalKeyQuota(), 2048)
	defer s.client.Close()

	ctx := context.Background()
	payload := strings.Repeat("x", 900)

	keys := []cache.Key{
		{Dataset: "prefs/user", Category: cache.CategoryPreference},
		{Dataset: "datasets/a", Category: cache.CategoryDataset},
		{Dataset: "datasets/b", Category: cache.CategoryDataset},
	}
	for _, key := range keys {
		if err := s.cache.Set(ctx, key, payload, cache.SetOptions{}); err != nil {
			t.Fatalf("Set %s failed: %v", key.Dataset, err)
		}
	}

	info, err := s.cache.StorageInfo(ctx)
	if err != nil {
		t.Fatalf("StorageInfo failed: %v", err)
	}

	if info.TotalBytes > 2048 {
		t.Errorf("TotalBytes = %d, want <= budget 2048", info.TotalBytes)
	}

	// The high-priority preference entry must survive eviction.
	if _, err := s.cache.Get(ctx, keys[0], cache.GetOptions{}); err != nil {
		t.Errorf("Preference entry evicted: %v", err)
	}
}
