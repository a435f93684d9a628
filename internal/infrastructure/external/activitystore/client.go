// Package activitystore implements an HTTP client for the platform's
// activity service. It is the remote flavor of activity.Store: deployments
// that keep play tracking, reviews, forum posts, and friend lists behind a
// service boundary use this client instead of the postgres read models.
// Requests are rate limited, circuit broken, and retried.
package activitystore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/activity"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
	"github.com/sam399/gamehub-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the activity service client.
type ClientConfig struct {
	// BaseURL is the activity service base URL
	BaseURL string

	// APIKey authenticates the engine against the service
	APIKey string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// RateLimiterConfig for request rate limiting
	RateLimiterConfig RateLimiterConfig

	// CircuitBreakerConfig for fault tolerance
	CircuitBreakerConfig CircuitBreakerConfig

	// RetryConfig for retry behavior
	RetryConfig RetryConfig

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables per-request debug logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:              baseURL,
		Timeout:              30 * time.Second,
		RateLimiterConfig:    DefaultRateLimiterConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
		RetryConfig:          DefaultRetryConfig(),
	}
}

// CircuitBreakerConfig tunes the breaker guarding the activity service.
type CircuitBreakerConfig struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int

	// SuccessThreshold is how many half-open successes close it again.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// HalfOpenMaxRetries caps requests allowed while half-open.
	HalfOpenMaxRetries int
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:   5,
		SuccessThreshold:   2,
		Timeout:            30 * time.Second,
		HalfOpenMaxRetries: 3,
	}
}

// newBreaker builds the activity service breaker. Local rate-limit waits and
// caller cancellation stay out of the failure count: neither says anything
// about the service's health. Timeouts do count.
func newBreaker(cfg CircuitBreakerConfig) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New(
		"activity-service",
		circuitbreaker.WithFailureThreshold(cfg.FailureThreshold),
		circuitbreaker.WithSuccessThreshold(cfg.SuccessThreshold),
		circuitbreaker.WithTimeout(cfg.Timeout),
		circuitbreaker.WithMaxHalfOpenRequests(cfg.HalfOpenMaxRetries),
		circuitbreaker.WithIsFailure(func(err error) bool {
			var rateLimitErr *RateLimitError
			if errors.As(err, &rateLimitErr) {
				return false
			}
			return !errors.Is(err, context.Canceled)
		}),
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the activity service HTTP client. It implements activity.Store.
type Client struct {
	config         ClientConfig
	httpClient     *http.Client
	logger         *slog.Logger
	rateLimiter    *RateLimiter
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewClient creates a new activity service client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:         config.Logger,
		rateLimiter:    NewRateLimiter(config.RateLimiterConfig),
		circuitBreaker: newBreaker(config.CircuitBreakerConfig),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAY TRACKING
// ══════════════════════════════════════════════════════════════════════════════

// ListPlayTracking returns play records, optionally filtered by user and game.
func (c *Client) ListPlayTracking(ctx context.Context, userID shared.UserID, gameID shared.GameID) ([]activity.PlayRecord, error) {
	params := url.Values{}
	if !userID.IsEmpty() {
		params.Set("user_id", userID.String())
	}
	if !gameID.IsEmpty() {
		params.Set("game_id", gameID.String())
	}

	path := "/play-tracking"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response APIResponse[[]PlayTrackingDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, fmt.Errorf("list play tracking: %w", err)
	}
	if !response.Success {
		return nil, fmt.Errorf("api error: %s", response.Error)
	}

	records := make([]activity.PlayRecord, 0, len(response.Data))
	for _, dto := range response.Data {
		records = append(records, playRecordFromDTO(dto))
	}
	return records, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEWS
// ══════════════════════════════════════════════════════════════════════════════

// ListActiveReviews returns active reviews, optionally filtered by user and game.
func (c *Client) ListActiveReviews(ctx context.Context, userID shared.UserID, gameID shared.GameID) ([]activity.ReviewRecord, error) {
	params := url.Values{}
	params.Set("is_active", "true")
	if !userID.IsEmpty() {
		params.Set("user_id", userID.String())
	}
	if !gameID.IsEmpty() {
		params.Set("game_id", gameID.String())
	}

	path := "/reviews?" + params.Encode()

	var response APIResponse[[]ReviewDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, fmt.Errorf("list active reviews: %w", err)
	}
	if !response.Success {
		return nil, fmt.Errorf("api error: %s", response.Error)
	}

	records := make([]activity.ReviewRecord, 0, len(response.Data))
	for _, dto := range response.Data {
		rec := reviewRecordFromDTO(dto)
		if !rec.IsActive {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FORUM POSTS
// ══════════════════════════════════════════════════════════════════════════════

// CountActivePosts returns the number of active forum posts for one user.
func (c *Client) CountActivePosts(ctx context.Context, userID shared.UserID) (int, error) {
	path := fmt.Sprintf("/forum-posts/count/%s", url.PathEscape(userID.String()))

	var response APIResponse[CountDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return 0, fmt.Errorf("count active posts for %s: %w", userID, err)
	}
	if !response.Success {
		return 0, fmt.Errorf("api error: %s", response.Error)
	}
	return response.Data.Count, nil
}

// ListActivePostCounts returns active post counts grouped by user.
func (c *Client) ListActivePostCounts(ctx context.Context) ([]activity.UserCount, error) {
	var response APIResponse[[]UserCountDTO]
	if err := c.doRequest(ctx, http.MethodGet, "/forum-posts/counts", nil, &response); err != nil {
		return nil, fmt.Errorf("list post counts: %w", err)
	}
	if !response.Success {
		return nil, fmt.Errorf("api error: %s", response.Error)
	}
	return userCountsFromDTO(response.Data), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FRIEND LISTS
// ══════════════════════════════════════════════════════════════════════════════

// FriendCount returns the size of one user's friend list.
func (c *Client) FriendCount(ctx context.Context, userID shared.UserID) (int, error) {
	path := fmt.Sprintf("/friends/count/%s", url.PathEscape(userID.String()))

	var response APIResponse[CountDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return 0, fmt.Errorf("friend count for %s: %w", userID, err)
	}
	if !response.Success {
		return 0, fmt.Errorf("api error: %s", response.Error)
	}
	return response.Data.Count, nil
}

// ListFriendCounts returns friend-list sizes grouped by user.
func (c *Client) ListFriendCounts(ctx context.Context) ([]activity.UserCount, error) {
	var response APIResponse[[]UserCountDTO]
	if err := c.doRequest(ctx, http.MethodGet, "/friends/counts", nil, &response); err != nil {
		return nil, fmt.Errorf("list friend counts: %w", err)
	}
	if !response.Success {
		return nil, fmt.Errorf("api error: %s", response.Error)
	}
	return userCountsFromDTO(response.Data), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs an HTTP request with rate limiting, circuit breaking,
// and retries. The breaker wraps the whole retry cycle: one exhausted cycle
// is one failure against a dependency, however many attempts it took.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	return c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var lastErr error
		for attempt := 0; attempt <= c.config.RetryConfig.MaxRetries; attempt++ {
			if attempt > 0 {
				backoff := c.config.RetryConfig.CalculateBackoff(attempt)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}
			}

			if err := c.rateLimiter.Allow(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}

			err := c.doSingleRequest(ctx, method, path, body, result)
			if err == nil {
				return nil
			}

			lastErr = err

			if !c.isRetryable(err) {
				return err
			}

			var rateLimitErr *RateLimitError
			if errors.As(err, &rateLimitErr) {
				c.rateLimiter.RecordRateLimitHit(rateLimitErr.RetryAfter)
			}
		}

		return fmt.Errorf("request failed after %d retries: %w", c.config.RetryConfig.MaxRetries, lastErr)
	})
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("activity service request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 60 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{
			RetryAfter: retryAfter,
			Message:    "rate limit exceeded",
		}
	}

	if resp.StatusCode >= 400 {
		var apiErr APIErrorDTO
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// isRetryable checks if an error is retryable.
func (c *Client) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		return apiErr.Code == "SERVER_ERROR" || apiErr.Code == "TEMPORARILY_UNAVAILABLE"
	}

	errStr := err.Error()
	for _, marker := range []string{"timeout", "connection refused", "temporary", "reset", "EOF"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// IsHealthy checks if the activity service is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	var response APIResponse[map[string]interface{}]
	err := c.doSingleRequest(ctx, http.MethodGet, "/health", nil, &response)
	return err == nil && response.Success
}

// ClientStatus describes the current state of the client's protections.
type ClientStatus struct {
	RateLimiter    RateLimiterStatus
	CircuitBreaker CircuitBreakerStatus
	IsHealthy      bool
}

// CircuitBreakerStatus is a snapshot of the breaker guarding this client.
type CircuitBreakerStatus struct {
	State  circuitbreaker.State
	Counts circuitbreaker.Counts
}

// Status returns the current status of the client.
func (c *Client) Status(ctx context.Context) ClientStatus {
	return ClientStatus{
		RateLimiter: c.rateLimiter.Status(),
		CircuitBreaker: CircuitBreakerStatus{
			State:  c.circuitBreaker.State(),
			Counts: c.circuitBreaker.Counts(),
		},
		IsHealthy: c.IsHealthy(ctx),
	}
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.circuitBreaker.Reset()
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRY POLICY
// ══════════════════════════════════════════════════════════════════════════════

// RetryConfig shapes the in-request retry loop.
type RetryConfig struct {
	// MaxRetries is how many times a failed attempt is retried.
	// Zero means a single attempt.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// BackoffMultiplier is the growth factor per retry.
	BackoffMultiplier float64

	// Jitter spreads retries out: 0 is none, 1 is up to a full backoff.
	Jitter float64
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// CalculateBackoff returns the wait before the given retry attempt, growing
// exponentially with a deterministic jitter so two workers retrying the same
// window do not hammer the service in lockstep.
func (c RetryConfig) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return c.InitialBackoff
	}

	backoff := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt))
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}

	if c.Jitter > 0 {
		spread := backoff * c.Jitter
		offset := spread * float64((attempt*37)%100) / 100.0
		backoff = backoff - spread/2 + offset
	}

	return time.Duration(backoff)
}
