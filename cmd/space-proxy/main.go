// Command space-proxy is a caching proxy for public space-agency data.
// It fronts the upstream API with the bounded priority cache and the
// sliding-window rate limiter, and exposes health, readiness, cache
// diagnostics, and Prometheus metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/orbitaldata/nasa-client/pkg/cache"
	"github.com/orbitaldata/nasa-client/pkg/client"
	"github.com/orbitaldata/nasa-client/pkg/logging"
	"github.com/orbitaldata/nasa-client/pkg/ratelimit"
	"github.com/orbitaldata/nasa-client/pkg/storage"
)

func main() {
	// Configuration from environment
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	port := getEnv("PORT", "8080")
	apiKey := getEnv("NASA_API_KEY", "DEMO_KEY")
	budget := getEnvInt64("CACHE_BUDGET_BYTES", cache.DefaultBudget)
	logLevel := getEnv("LOG_LEVEL", "info")

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Pretty: getEnv("LOG_PRETTY", "") != "",
		Output: os.Stderr,
	})

	// Setup Redis-backed storage
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", redisURL).Msg("Connected to Redis")

	store := storage.NewRedisStore(redisClient)

	// Cache manager
	cacheManager, err := cache.NewManager(cache.Config{
		Store:  store,
		Budget: budget,
		Logger: logging.NewLogger("cache"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create cache manager")
	}

	if removed, err := cacheManager.CleanupExpired(ctx); err != nil {
		logger.Warn().Err(err).Msg("Startup cache cleanup failed")
	} else if removed > 0 {
		logger.Info().Int("removed", removed).Msg("Startup cache cleanup complete")
	}

	// Rate limiter: DEMO_KEY gets the shared low quota, a personal key
	// the high one.
	quota := ratelimit.PersonalKeyQuota()
	if apiKey == "DEMO_KEY" {
		quota = ratelimit.DemoKeyQuota()
	}
	limiter := ratelimit.NewLimiter(store, quota, logging.NewLogger("ratelimit"))

	// Spacedata client
	dataClient, err := client.New(client.Config{
		Cache:     cacheManager,
		Limiter:   limiter,
		BaseURL:   getEnv("UPSTREAM_URL", client.DefaultBaseURL),
		APIKey:    apiKey,
		UserAgent: getEnv("USER_AGENT", "space-proxy/0.1.0"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create spacedata client")
	}
	defer dataClient.Close()

	// HTTP Server
	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/ready", readyHandler(redisClient))
	http.HandleFunc("/cache/info", cacheInfoHandler(cacheManager))
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/nasa/", proxyHandler(dataClient))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("quota_class", quota.Name).
		Int64("cache_budget", budget).
		Msg("Starting space-proxy")

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports readiness based on Redis connectivity.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// cacheInfoHandler exposes cache occupancy diagnostics as JSON.
func cacheInfoHandler(cacheManager *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := cacheManager.StorageInfo(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("storage info: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			http.Error(w, fmt.Sprintf("encode: %v", err), http.StatusInternalServerError)
		}
	}
}

// proxyHandler forwards /nasa/<path> to the upstream through cache and
// rate limiter.
func proxyHandler(dataClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Example: /nasa/planetary/apod?date=2026-08-24 -> /planetary/apod
		path := strings.TrimPrefix(r.URL.Path, "/nasa")

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		data, err := dataClient.Fetch(ctx, client.Request{
			Path:  path,
			Query: r.URL.Query(),
			Key: cache.Key{
				Dataset:  strings.Trim(path, "/"),
				Params:   flattenQuery(r.URL.Query()),
				Category: categoryFor(path),
			},
		})
		if err != nil {
			writeFetchError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// writeFetchError maps client errors to proxy responses. A local quota
// denial becomes a 429 with Retry-After; upstream errors pass their status
// through.
func writeFetchError(w http.ResponseWriter, err error) {
	var rlErr *client.RateLimitError
	if errors.As(err, &rlErr) {
		w.Header().Set("Retry-After", strconv.Itoa(int(rlErr.RetryAfter.Seconds())+1))
		http.Error(w, "request quota exhausted", http.StatusTooManyRequests)
		return
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		http.Error(w, apiErr.Message, apiErr.StatusCode)
		return
	}

	http.Error(w, fmt.Sprintf("upstream fetch failed: %v", err), http.StatusBadGateway)
}

// categoryFor maps an upstream path to its retention category.
func categoryFor(path string) cache.Category {
	trimmed := strings.TrimPrefix(path, "/")
	switch {
	case strings.HasPrefix(trimmed, "planetary/apod"):
		return cache.CategoryAPOD
	case strings.HasPrefix(trimmed, "neo/"):
		return cache.CategoryNEO
	case strings.HasPrefix(trimmed, "DONKI/"):
		return cache.CategoryDONKI
	case strings.HasPrefix(trimmed, "insight_weather/"):
		return cache.CategoryMarsWeather
	case strings.HasPrefix(trimmed, "mars-photos/"):
		return cache.CategoryRoverPhotos
	case strings.HasPrefix(trimmed, "exoplanets/"):
		return cache.CategoryExoplanet
	default:
		return cache.CategoryDataset
	}
}

// flattenQuery reduces multi-valued query parameters to their first value
// for cache identity, dropping the credential.
func flattenQuery(query url.Values) map[string]string {
	if len(query) == 0 {
		return nil
	}
	params := make(map[string]string, len(query))
	for name := range query {
		if name == "api_key" {
			continue
		}
		params[name] = query.Get(name)
	}
	return params
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
