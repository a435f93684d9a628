// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Transition events (new high score, achievement unlocked)
// are the two kinds the notifier consumes; the rest are informational.
const (
	// Leaderboard events
	EventNewHighScore       EventType = "leaderboard.new_high_score"
	EventLeaderboardUpdated EventType = "leaderboard.updated"
	EventRefreshCompleted   EventType = "leaderboard.refresh_completed"
	EventRefreshFailed      EventType = "leaderboard.refresh_failed"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"
	EventProgressUpdated     EventType = "achievement.progress_updated"

	// Notification events
	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboard Events
// ═══════════════════════════════════════════════════════════════════════════

// NewHighScoreEvent is emitted when a user strictly improves their score on a
// leaderboard, or appears on it for the first time.
type NewHighScoreEvent struct {
	BaseEvent
	LeaderboardID   string  `json:"leaderboard_id"`
	LeaderboardName string  `json:"leaderboard_name"`
	UserID          string  `json:"user_id"`
	Score           float64 `json:"score"`
	PreviousScore   float64 `json:"previous_score"`
	Rank            int     `json:"rank"`
	FirstEntry      bool    `json:"first_entry"`
}

// Payload implements Event interface.
func (e NewHighScoreEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"leaderboard_id":   e.LeaderboardID,
		"leaderboard_name": e.LeaderboardName,
		"user_id":          e.UserID,
		"score":            e.Score,
		"previous_score":   e.PreviousScore,
		"rank":             e.Rank,
		"first_entry":      e.FirstEntry,
	}
}

// NewNewHighScoreEvent creates a new NewHighScoreEvent.
func NewNewHighScoreEvent(leaderboardID, leaderboardName, userID string, score, previousScore float64, rank int, firstEntry bool) NewHighScoreEvent {
	return NewHighScoreEvent{
		BaseEvent:       NewBaseEvent(EventNewHighScore, leaderboardID),
		LeaderboardID:   leaderboardID,
		LeaderboardName: leaderboardName,
		UserID:          userID,
		Score:           score,
		PreviousScore:   previousScore,
		Rank:            rank,
		FirstEntry:      firstEntry,
	}
}

// LeaderboardUpdatedEvent is a broadcast signal that a leaderboard's ranked
// set changed. External dashboards subscribe to it; delivery is best-effort.
type LeaderboardUpdatedEvent struct {
	BaseEvent
	LeaderboardID string `json:"leaderboard_id"`
	EntryCount    int    `json:"entry_count"`
}

// Payload implements Event interface.
func (e LeaderboardUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"leaderboard_id": e.LeaderboardID,
		"entry_count":    e.EntryCount,
	}
}

// NewLeaderboardUpdatedEvent creates a new LeaderboardUpdatedEvent.
func NewLeaderboardUpdatedEvent(leaderboardID string, entryCount int) LeaderboardUpdatedEvent {
	return LeaderboardUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventLeaderboardUpdated, leaderboardID),
		LeaderboardID: leaderboardID,
		EntryCount:    entryCount,
	}
}

// RefreshCompletedEvent is emitted after a successful refresh cycle.
type RefreshCompletedEvent struct {
	BaseEvent
	LeaderboardID string        `json:"leaderboard_id"`
	EntryCount    int           `json:"entry_count"`
	Transitions   int           `json:"transitions"`
	Duration      time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e RefreshCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"leaderboard_id": e.LeaderboardID,
		"entry_count":    e.EntryCount,
		"transitions":    e.Transitions,
		"duration":       e.Duration.String(),
	}
}

// NewRefreshCompletedEvent creates a new RefreshCompletedEvent.
func NewRefreshCompletedEvent(leaderboardID string, entryCount, transitions int, duration time.Duration) RefreshCompletedEvent {
	return RefreshCompletedEvent{
		BaseEvent:     NewBaseEvent(EventRefreshCompleted, leaderboardID),
		LeaderboardID: leaderboardID,
		EntryCount:    entryCount,
		Transitions:   transitions,
		Duration:      duration,
	}
}

// RefreshFailedEvent is emitted when a refresh tick is abandoned.
// The scheduler keeps ticking; this event exists for observability only.
type RefreshFailedEvent struct {
	BaseEvent
	LeaderboardID string `json:"leaderboard_id"`
	Step          string `json:"step"`
	Reason        string `json:"reason"`
}

// Payload implements Event interface.
func (e RefreshFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"leaderboard_id": e.LeaderboardID,
		"step":           e.Step,
		"reason":         e.Reason,
	}
}

// NewRefreshFailedEvent creates a new RefreshFailedEvent.
func NewRefreshFailedEvent(leaderboardID, step, reason string) RefreshFailedEvent {
	return RefreshFailedEvent{
		BaseEvent:     NewBaseEvent(EventRefreshFailed, leaderboardID),
		LeaderboardID: leaderboardID,
		Step:          step,
		Reason:        reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted exactly once, at the moment a user's
// progress first reaches 100 percent for an achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID          string    `json:"user_id"`
	AchievementID   string    `json:"achievement_id"`
	AchievementName string    `json:"achievement_name"`
	Points          int       `json:"points"`
	Rarity          string    `json:"rarity"`
	UnlockedAt      time.Time `json:"unlocked_at"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"achievement_id":   e.AchievementID,
		"achievement_name": e.AchievementName,
		"points":           e.Points,
		"rarity":           e.Rarity,
		"unlocked_at":      e.UnlockedAt,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, achievementName string, points int, rarity string, unlockedAt time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:          userID,
		AchievementID:   achievementID,
		AchievementName: achievementName,
		Points:          points,
		Rarity:          rarity,
		UnlockedAt:      unlockedAt,
	}
}

// ProgressUpdatedEvent is emitted when an existing progress record advances
// without unlocking.
type ProgressUpdatedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	Current       int    `json:"current"`
	Target        int    `json:"target"`
	Percentage    int    `json:"percentage"`
}

// Payload implements Event interface.
func (e ProgressUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"current":        e.Current,
		"target":         e.Target,
		"percentage":     e.Percentage,
	}
}

// NewProgressUpdatedEvent creates a new ProgressUpdatedEvent.
func NewProgressUpdatedEvent(userID, achievementID string, current, target, percentage int) ProgressUpdatedEvent {
	return ProgressUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventProgressUpdated, userID),
		UserID:        userID,
		AchievementID: achievementID,
		Current:       current,
		Target:        target,
		Percentage:    percentage,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Notification Events
// ═══════════════════════════════════════════════════════════════════════════

// NotificationFailedEvent records a dispatch failure. There is no durable
// retry queue; the miss is accepted and only observable through this event.
type NotificationFailedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Payload implements Event interface.
func (e NotificationFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"kind":    e.Kind,
		"reason":  e.Reason,
	}
}

// NewNotificationFailedEvent creates a new NotificationFailedEvent.
func NewNotificationFailedEvent(userID, kind, reason string) NotificationFailedEvent {
	return NotificationFailedEvent{
		BaseEvent: NewBaseEvent(EventNotificationFailed, userID),
		UserID:    userID,
		Kind:      kind,
		Reason:    reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
