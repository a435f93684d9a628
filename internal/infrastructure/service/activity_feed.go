// Package service provides infrastructure adapters for the outbound
// contracts of the notification domain: the activity feed, the
// notification dispatcher, and ID generation. The feed and dispatcher
// come in a Redis-backed flavor and a log-only stub, so the engine runs
// with or without Redis.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	gameredis "github.com/sam399/gamehub-engine/internal/infrastructure/persistence/redis"

	"github.com/sam399/gamehub-engine/internal/domain/notification"
	"github.com/sam399/gamehub-engine/pkg/circuitbreaker"
)

// feedMaxEntries caps the per-user feed list so it cannot grow unbounded.
const feedMaxEntries = 200

// RedisActivityFeed appends activity entries to a per-user Redis list.
// The feed itself is owned by the surrounding platform; this adapter only
// pushes entries where the platform's feed reader expects them.
type RedisActivityFeed struct {
	cache   *gameredis.Cache
	breaker *circuitbreaker.CircuitBreaker
}

func NewRedisActivityFeed(cache *gameredis.Cache) *RedisActivityFeed {
	return &RedisActivityFeed{
		cache:   cache,
		breaker: circuitbreaker.RedisBreaker(nil),
	}
}

// AppendActivity pushes the entry to the head of the user's feed list and
// trims the tail. Best-effort: the caller must not roll back state on error.
func (f *RedisActivityFeed) AppendActivity(ctx context.Context, entry *notification.ActivityEntry) error {
	data, err := json.Marshal(feedRecord{
		ID:         entry.ID,
		UserID:     entry.UserID,
		Type:       entry.Type.String(),
		Data:       entry.Data,
		Visibility: string(entry.Visibility),
		CreatedAt:  entry.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal activity entry: %w", err)
	}

	key := feedKey(entry.UserID)
	err = f.breaker.Execute(ctx, func(ctx context.Context) error {
		pipe := f.cache.Client().TxPipeline()
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, feedMaxEntries-1)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("append activity for user %s: %w", entry.UserID, err)
	}
	return nil
}

// feedRecord is the wire shape of one feed entry.
type feedRecord struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Visibility string                 `json:"visibility"`
	CreatedAt  int64                  `json:"created_at"`
}

func feedKey(userID string) string {
	return gameredis.PrefixNotification + "feed:" + userID
}

// LogActivityFeed is a stub feed for deployments without Redis. Entries are
// logged and dropped.
type LogActivityFeed struct {
	logger *slog.Logger
}

func NewLogActivityFeed(logger *slog.Logger) *LogActivityFeed {
	return &LogActivityFeed{logger: logger}
}

func (f *LogActivityFeed) AppendActivity(ctx context.Context, entry *notification.ActivityEntry) error {
	f.logger.Info("activity feed entry",
		"user_id", entry.UserID,
		"type", entry.Type.String(),
		"visibility", string(entry.Visibility),
	)
	return nil
}
