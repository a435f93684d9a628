// Package redis implements the Redis edge of GameHub: the optimistic rank
// hint (sorted sets), the top-N cache and the leaderboard-updated broadcast.
// Redis is optional at runtime; without it the engine serves reads from
// PostgreSQL only.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrCacheConnection    = errors.New("cache: connection failed")
	ErrCacheSerialization = errors.New("cache: serialization failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYSPACE
// ══════════════════════════════════════════════════════════════════════════════

// PrefixNotification namespaces the per-user activity feed lists.
const PrefixNotification = "notification:"

// TTLs for the two cached shapes. The rank hint TTL is generous: the hint is
// rebuilt on every refresh anyway, the TTL only reaps hints of leaderboards
// that stopped refreshing.
const (
	TTLRankHint = 48 * time.Hour
	TTLTopCache = 5 * time.Minute
)

// HintKey is the sorted-set key of a leaderboard's rank hint.
func HintKey(leaderboardID string) string {
	return "leaderboard:hint:" + leaderboardID
}

// TopKey is the key of a leaderboard's cached top-N page.
func TopKey(leaderboardID string) string {
	return "leaderboard:top:" + leaderboardID
}

// PubSubChannel names the broadcast channel for an event type.
func PubSubChannel(eventType string) string {
	return "pubsub:" + eventType
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the connection settings. MinIdleConns keeps warm sockets
// around so a refresh burst does not pay the dial cost.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// DefaultConfig returns settings for a local single-node Redis.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Cache wraps the Redis client with the handful of operations the engine
// needs: JSON get/set for top-N pages, string get for the hint direction
// marker, delete for invalidation and pub/sub for the updated broadcast.
// The sorted-set commands of the rank hint go through Client() directly.
type Cache struct {
	client *redis.Client
	config Config
}

// NewCache connects and verifies the connection with a ping.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return &Cache{client: client, config: cfg}, nil
}

// Client exposes the underlying Redis client for sorted-set and pipeline
// commands the generic methods do not cover.
func (c *Cache) Client() *redis.Client { return c.client }

func (c *Cache) Close() error { return c.client.Close() }

// Set stores value as JSON under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get loads key into dest. A missing key is ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// GetString loads a raw string value, bypassing JSON.
func (c *Cache) GetString(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Delete removes keys. A nil or empty list is a no-op.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Publish sends message as JSON on channel.
func (c *Cache) Publish(ctx context.Context, channel string, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Publish(ctx, channel, data).Err()
}

// Subscribe opens a subscription on channels. The caller owns the returned
// PubSub and must close it.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}
