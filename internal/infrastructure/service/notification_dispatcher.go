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

// ChannelNotifications is the pub/sub channel delivery workers listen on.
const ChannelNotifications = "notification.dispatch"

// RedisNotificationDispatcher publishes notifications to a Redis pub/sub
// channel for the platform's delivery workers to pick up. Fire-and-forget:
// there is no queue and no redelivery. A circuit breaker keeps a dead Redis
// from slowing every dispatch down to the connection timeout.
type RedisNotificationDispatcher struct {
	cache   *gameredis.Cache
	breaker *circuitbreaker.CircuitBreaker
}

func NewRedisNotificationDispatcher(cache *gameredis.Cache) *RedisNotificationDispatcher {
	return &RedisNotificationDispatcher{
		cache:   cache,
		breaker: circuitbreaker.RedisBreaker(nil),
	}
}

// Notify publishes one notification. Best-effort, no retries.
func (d *RedisNotificationDispatcher) Notify(ctx context.Context, n *notification.Notification) error {
	data, err := json.Marshal(notificationRecord{
		ID:        n.ID,
		UserID:    n.UserID,
		Kind:      n.Kind.String(),
		Title:     n.Title,
		Body:      n.Body,
		Payload:   n.Payload,
		CreatedAt: n.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	channel := gameredis.PubSubChannel(ChannelNotifications)
	err = d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.cache.Publish(ctx, channel, data)
	})
	if err != nil {
		return fmt.Errorf("dispatch notification %s: %w", n.ID, err)
	}
	return nil
}

// notificationRecord is the wire shape of one dispatched notification.
type notificationRecord struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Kind      string                 `json:"kind"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt int64                  `json:"created_at"`
}

// LogNotificationDispatcher is a stub dispatcher for deployments without
// Redis. Notifications are logged and dropped.
type LogNotificationDispatcher struct {
	logger *slog.Logger
}

func NewLogNotificationDispatcher(logger *slog.Logger) *LogNotificationDispatcher {
	return &LogNotificationDispatcher{logger: logger}
}

func (d *LogNotificationDispatcher) Notify(ctx context.Context, n *notification.Notification) error {
	d.logger.Info("notification",
		"user_id", n.UserID,
		"kind", n.Kind.String(),
		"title", n.Title,
	)
	return nil
}
