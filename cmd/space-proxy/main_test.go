package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
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

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
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

// setupTestClient wires cache, limiter, and client over the given Redis
// instance and a local mock upstream.
func setupTestClient(t *testing.T, redisClient *redis.Client, upstream *testutil.MockAPI) *client.Client {
	t.Helper()

	store := storage.NewRedisStore(redisClient)

	cacheManager, err := cache.NewManager(cache.Config{
		Store:  store,
		Budget: cache.DefaultBudget,
		Logger: logging.NewLogger("cache"),
	})
	if err != nil {
		t.Fatalf("Failed to create cache manager: %v", err)
	}

	limiter := ratelimit.NewLimiter(store, ratelimit.PersonalKeyQuota(), logging.NewLogger("ratelimit"))

	dataClient, err := client.New(client.Config{
		Cache:     cacheManager,
		Limiter:   limiter,
		BaseURL:   upstream.URL(),
		APIKey:    "TEST_KEY",
		UserAgent: "space-proxy-test/1.0",
	})
	if err != nil {
		t.Fatalf("Failed to create spacedata client: %v", err)
	}

	return dataClient
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	handler := readyHandler(redisClient)

	t.Run("ready", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		resp := w.Result()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}

		if string(body) != "OK" {
			t.Errorf("Expected body 'OK', got %s", string(body))
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		// Close Redis to simulate failure
		redisClient.Close()

		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		resp := w.Result()

		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler := promhttp.Handler()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)

	// Just verify we get prometheus output format
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}

	// The upstream remaining gauge registers at import time even before
	// any request is made.
	if !strings.Contains(bodyStr, "spacedata_upstream_ratelimit_remaining") {
		t.Error("Expected metrics output to contain spacedata_upstream_ratelimit_remaining")
	}

	t.Logf("Metrics endpoint returned %d bytes of data", len(bodyStr))
}

func TestProxyHandler_Integration(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	upstream := testutil.NewMockAPI()
	defer upstream.Close()
	upstream.SetJSON("/planetary/apod", `{"title":"Pillars of Creation","date":"2026-08-24"}`, 950)

	dataClient := setupTestClient(t, redisClient, upstream)
	defer dataClient.Close()

	handler := proxyHandler(dataClient)

	t.Run("fetch_and_cache", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/nasa/planetary/apod?date=2026-08-24", nil)
		w := httptest.NewRecorder()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req = req.WithContext(ctx)

		handler(w, req)

		resp := w.Result()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
		}
		if !strings.Contains(string(body), "Pillars of Creation") {
			t.Errorf("Unexpected body: %s", body)
		}

		// Second identical request is served from cache.
		w2 := httptest.NewRecorder()
		handler(w2, req)
		if w2.Result().StatusCode != http.StatusOK {
			t.Errorf("Expected cached status 200, got %d", w2.Result().StatusCode)
		}
		if upstream.Requests() != 1 {
			t.Errorf("Upstream calls = %d, want 1 (second request cached)", upstream.Requests())
		}
	})

	t.Run("unknown_endpoint", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/nasa/unknown/endpoint", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", resp.StatusCode)
		}
	})
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		path string
		want cache.Category
	}{
		{"/planetary/apod", cache.CategoryAPOD},
		{"/neo/rest/v1/feed", cache.CategoryNEO},
		{"/DONKI/FLR", cache.CategoryDONKI},
		{"/insight_weather/", cache.CategoryMarsWeather},
		{"/mars-photos/api/v1/rovers/curiosity/photos", cache.CategoryRoverPhotos},
		{"/exoplanets/query", cache.CategoryExoplanet},
		{"/something/else", cache.CategoryDataset},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := categoryFor(tt.path); got != tt.want {
				t.Errorf("categoryFor(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestFlattenQuery(t *testing.T) {
	query := url.Values{
		"date":    []string{"2026-08-24"},
		"api_key": []string{"secret"},
	}

	params := flattenQuery(query)

	if params["date"] != "2026-08-24" {
		t.Errorf("date = %q, want 2026-08-24", params["date"])
	}
	if _, ok := params["api_key"]; ok {
		t.Error("api_key must not be part of the cache identity")
	}
	if flattenQuery(url.Values{}) != nil {
		t.Error("empty query should flatten to nil")
	}
}
