package activitystore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
	"github.com/sam399/gamehub-engine/pkg/circuitbreaker"
)

func testClientConfig(baseURL string) ClientConfig {
	config := DefaultClientConfig(baseURL)
	config.Timeout = 2 * time.Second
	config.RateLimiterConfig = RateLimiterConfig{
		RequestsPerSecond: 1000,
		BurstSize:         1000,
		WaitTimeout:       time.Second,
		RetryAfter:        time.Second,
	}
	config.RetryConfig.MaxRetries = 0
	return config
}

func TestClient_ListPlayTracking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/play-tracking", r.URL.Path)
		assert.Equal(t, "game-1", r.URL.Query().Get("game_id"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(APIResponse[[]PlayTrackingDTO]{
			Success: true,
			Data: []PlayTrackingDTO{
				{UserID: "user-1", GameID: "game-1", HoursPlayed: 12.5},
				{UserID: "user-2", GameID: "game-1", HoursPlayed: 3, IsDeleted: true},
			},
		})
	}))
	defer server.Close()

	config := testClientConfig(server.URL)
	config.APIKey = "secret"
	client := NewClient(config)

	records, err := client.ListPlayTracking(context.Background(), "", shared.GameID("game-1"))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, shared.UserID("user-1"), records[0].UserID)
	assert.Equal(t, 12.5, records[0].HoursPlayed)
	assert.True(t, records[0].IsActive())

	// Soft-deleted rows come through the wire but never count toward scores.
	assert.False(t, records[1].IsActive())
}

func TestClient_ListActiveReviews_FiltersInactive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reviews", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("is_active"))

		json.NewEncoder(w).Encode(APIResponse[[]ReviewDTO]{
			Success: true,
			Data: []ReviewDTO{
				{UserID: "user-1", GameID: "game-1", Rating: 5, IsActive: true},
				{UserID: "user-1", GameID: "game-2", Rating: 2, IsActive: false},
			},
		})
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))

	records, err := client.ListActiveReviews(context.Background(), shared.UserID("user-1"), "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, shared.Rating(5), records[0].Rating)
}

func TestClient_CountActivePosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forum-posts/count/user-1", r.URL.Path)
		json.NewEncoder(w).Encode(APIResponse[CountDTO]{Success: true, Data: CountDTO{Count: 42}})
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))

	count, err := client.CountActivePosts(context.Background(), shared.UserID("user-1"))
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(APIErrorDTO{Code: "BAD_REQUEST", Message: "unknown user"})
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))

	_, err := client.FriendCount(context.Background(), shared.UserID("missing"))
	require.Error(t, err)

	var apiErr *APIErrorDTO
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "BAD_REQUEST", apiErr.Code)
}

func TestClient_CircuitBreakerOpensAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(APIErrorDTO{Code: "BAD_REQUEST", Message: "nope"})
	}))
	defer server.Close()

	config := testClientConfig(server.URL)
	config.CircuitBreakerConfig.FailureThreshold = 2
	client := NewClient(config)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.ListFriendCounts(ctx)
		require.Error(t, err)
	}

	_, err := client.ListFriendCounts(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestClient_RateLimitResponseDoesNotTripBreaker(t *testing.T) {
	var sent429 atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sent429.CompareAndSwap(false, true) {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(APIResponse[[]UserCountDTO]{Success: true})
	}))
	defer server.Close()

	config := testClientConfig(server.URL)
	config.CircuitBreakerConfig.FailureThreshold = 1
	config.RetryConfig.InitialBackoff = time.Millisecond
	client := NewClient(config)

	ctx := context.Background()
	_, err := client.ListFriendCounts(ctx)
	require.Error(t, err, "the first call sees the 429")

	client.rateLimiter.Reset()

	// A threshold-1 breaker would be open now if the 429 counted as a failure.
	_, err = client.ListFriendCounts(ctx)
	require.NoError(t, err)
}
