// Package client composes the cache manager and rate limiter into a fetch
// layer for public space-agency data: cache hit short-circuits, a denied
// quota fails fast with a retry-after estimate, and successful fetches are
// written back to the cache with category-derived priority and TTL.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/orbitaldata/nasa-client/pkg/cache"
	"github.com/orbitaldata/nasa-client/pkg/ratelimit"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacedata_requests_total",
		Help: "Total fetches by dataset and outcome",
	}, []string{"dataset", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spacedata_request_duration_seconds",
		Help:    "Fetch duration in seconds by dataset",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"dataset"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacedata_errors_total",
		Help: "Total fetch errors by class",
	}, []string{"class"})

	upstreamRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spacedata_upstream_ratelimit_remaining",
		Help: "Requests remaining as reported by the upstream X-RateLimit-Remaining header",
	})
)

// DefaultBaseURL is the upstream API root.
const DefaultBaseURL = "https://api.nasa.gov"

// Client fetches space-agency data through the cache and rate limiter.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger

	// retryConfigFor is replaceable in tests to avoid real backoff waits.
	retryConfigFor func(ErrorClass) RetryConfig
}

// Config holds the client configuration. Cache and Limiter are constructed
// once at application start and passed in by handle; the client holds no
// hidden global state.
type Config struct {
	// Cache is the bounded priority cache (required).
	Cache *cache.Manager

	// Limiter gates outbound requests (required).
	Limiter *ratelimit.Limiter

	// BaseURL is the upstream API root. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is appended to every request as the api_key query parameter.
	APIKey string

	// UserAgent identifies this client to the upstream service.
	UserAgent string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(cacheManager *cache.Manager, limiter *ratelimit.Limiter, apiKey string) Config {
	return Config{
		Cache:     cacheManager,
		Limiter:   limiter,
		BaseURL:   DefaultBaseURL,
		APIKey:    apiKey,
		UserAgent: "spacedata-client/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// Request describes one dataset fetch.
type Request struct {
	// Path is the upstream endpoint path (e.g. "/planetary/apod").
	Path string

	// Query are the request query parameters (api_key is added by the client).
	Query url.Values

	// Key is the cache identity for the result; its Category selects the
	// retention priority and default TTL.
	Key cache.Key

	// TTL overrides the category default when positive.
	TTL time.Duration

	// Version is the schema tag stored with, and required from, the
	// cached result.
	Version string
}

// New creates a new spacedata client.
func New(cfg Config) (*Client, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache manager is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:          cfg.Cache,
		limiter:        cfg.Limiter,
		config:         cfg,
		logger:         log.With().Str("component", "spacedata-client").Logger(),
		retryConfigFor: RetryConfigForErrorClass,
	}, nil
}

// Fetch returns the payload for a request, from cache when fresh, from the
// upstream otherwise. A miss that the limiter will not permit fails fast
// with a RateLimitError carrying the retry-after estimate; no network call
// is made in that case.
func (c *Client) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	dataset := req.Key.Dataset

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(dataset).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Cache
	entry, err := c.cache.Get(ctx, req.Key, cache.GetOptions{Version: req.Version})
	if err == nil {
		c.logger.Debug().
			Str("dataset", dataset).
			Bool("cache_hit", true).
			Msg("Serving from cache")
		requestsTotal.WithLabelValues(dataset, "cache_hit").Inc()
		return entry.Data, nil
	}

	// Step 2: Rate limit gate
	if !c.limiter.CanMakeRequest(ctx) {
		retryAfter := c.limiter.TimeUntilReset(ctx)
		c.logger.Warn().
			Str("dataset", dataset).
			Dur("retry_after", retryAfter).
			Msg("Fetch blocked by rate limiter")
		requestsTotal.WithLabelValues(dataset, "rate_limited").Inc()
		errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}

	// Step 3: Upstream fetch with retry
	c.logger.Debug().
		Str("dataset", dataset).
		Str("path", req.Path).
		Msg("Fetching from upstream")

	var body []byte
	retryErr := retryWithBackoff(ctx, c.retryConfigFor, func() error {
		// Every attempt reaching the upstream consumes a quota slot, so
		// the gate is re-checked before each one, not just the first.
		if !c.limiter.CanMakeRequest(ctx) {
			return &RateLimitError{RetryAfter: c.limiter.TimeUntilReset(ctx)}
		}
		var attemptErr error
		body, attemptErr = c.doAttempt(ctx, req)
		return attemptErr
	})
	if retryErr != nil {
		errorsTotal.WithLabelValues(string(classify(retryErr))).Inc()
		requestsTotal.WithLabelValues(dataset, "error").Inc()
		return nil, retryErr
	}

	requestsTotal.WithLabelValues(dataset, "ok").Inc()

	// Step 4: Cache write-back. Failure costs the next fetch, nothing more.
	setErr := c.cache.Set(ctx, req.Key, json.RawMessage(body), cache.SetOptions{
		TTL:     req.TTL,
		Version: req.Version,
	})
	if setErr != nil {
		c.logger.Warn().Err(setErr).Str("dataset", dataset).Msg("Failed to cache response")
	}

	return body, nil
}

// FetchJSON fetches the payload and unmarshals it into out.
func (c *Client) FetchJSON(ctx context.Context, req Request, out any) error {
	data, err := c.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// totalPagesKey is the entry metadata key under which FetchPage stores the
// page count, so cached pages answer without a network call.
const totalPagesKey = "total_pages"

// FetchPage fetches one page of a paginated dataset, through the same cache
// and rate limiter gate as Fetch. The total page count is read from the
// X-Total-Pages response header when present, 1 otherwise, and is cached
// with the page. The signature matches pagination.PageFetcher.
func (c *Client) FetchPage(ctx context.Context, endpoint string, pageNum int) ([]byte, int, error) {
	req := Request{
		Path:  endpoint,
		Query: url.Values{"page": []string{strconv.Itoa(pageNum)}},
		Key: cache.Key{
			Dataset:  endpoint,
			Params:   map[string]string{"page": strconv.Itoa(pageNum)},
			Category: cache.CategoryRoverPhotos,
		},
	}

	// A cached page consumes no quota.
	if entry, err := c.cache.Get(ctx, req.Key, cache.GetOptions{}); err == nil {
		requestsTotal.WithLabelValues(req.Key.Dataset, "cache_hit").Inc()
		return entry.Data, totalPagesFromMetadata(entry.Metadata), nil
	}

	if !c.limiter.CanMakeRequest(ctx) {
		retryAfter := c.limiter.TimeUntilReset(ctx)
		c.logger.Warn().
			Str("dataset", req.Key.Dataset).
			Int("page", pageNum).
			Dur("retry_after", retryAfter).
			Msg("Page fetch blocked by rate limiter")
		requestsTotal.WithLabelValues(req.Key.Dataset, "rate_limited").Inc()
		errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return nil, 0, &RateLimitError{RetryAfter: retryAfter}
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch page %d: %w", pageNum, err)
	}
	defer resp.Body.Close()

	_ = c.limiter.RecordRequest(ctx)
	c.observeUpstreamHeaders(resp.Header)

	if resp.StatusCode != http.StatusOK {
		return nil, 0, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read page %d body: %w", pageNum, err)
	}

	totalPages := 1
	if totalStr := resp.Header.Get("X-Total-Pages"); totalStr != "" {
		if total, err := strconv.Atoi(totalStr); err == nil && total > 0 {
			totalPages = total
		}
	}

	setErr := c.cache.Set(ctx, req.Key, json.RawMessage(body), cache.SetOptions{
		Metadata: map[string]string{totalPagesKey: strconv.Itoa(totalPages)},
	})
	if setErr != nil {
		c.logger.Warn().Err(setErr).Str("dataset", req.Key.Dataset).Int("page", pageNum).Msg("Failed to cache page")
	}

	return body, totalPages, nil
}

// totalPagesFromMetadata recovers the page count stored with a cached page.
func totalPagesFromMetadata(metadata map[string]string) int {
	if total, err := strconv.Atoi(metadata[totalPagesKey]); err == nil && total > 0 {
		return total
	}
	return 1
}

// doAttempt performs one HTTP attempt and consumes one quota slot.
func (c *Client) doAttempt(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Str("path", req.Path).Msg("HTTP request failed")
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	// The attempt reached the upstream, so it counts against the quota
	// whatever the status code.
	_ = c.limiter.RecordRequest(ctx)
	c.observeUpstreamHeaders(resp.Header)

	if resp.StatusCode != http.StatusOK {
		errClass := classifyStatus(resp.StatusCode)
		c.logger.Warn().
			Str("path", req.Path).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Upstream request error")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// buildRequest assembles the upstream HTTP request with query parameters,
// API key, and identification headers.
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	u, err := url.Parse(c.config.BaseURL + req.Path)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	query := url.Values{}
	for name, values := range req.Query {
		for _, value := range values {
			query.Add(name, value)
		}
	}
	if c.config.APIKey != "" {
		query.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	return httpReq, nil
}

// observeUpstreamHeaders records the upstream's own rate limit accounting.
// The local limiter stays authoritative for gating; this is observability
// only.
func (c *Client) observeUpstreamHeaders(headers http.Header) {
	remainStr := headers.Get("X-RateLimit-Remaining")
	if remainStr == "" {
		return
	}
	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return
	}

	upstreamRemaining.Set(float64(remain))
	if remain < 10 {
		c.logger.Warn().
			Int("upstream_remaining", remain).
			Msg("Upstream rate limit nearly exhausted")
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Close releases client resources. The cache and limiter are owned by the
// caller and are not closed here.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
