// Package notifier contains the transition notifier: it consumes new-high-
// score and achievement-unlocked transitions and performs, per transition,
// exactly one activity-feed append followed by exactly one notification
// dispatch. Both effects are best-effort; a failure is logged and never
// rolled back into score or progress state, and is never retried.
package notifier

import (
	"context"
	"fmt"

	"github.com/sam399/gamehub-engine/internal/domain/achievement"
	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/notification"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
	"github.com/sam399/gamehub-engine/pkg/logger"
)

// Config controls notifier behavior.
type Config struct {
	// ActivityVisibility is the visibility applied to appended feed
	// entries.
	ActivityVisibility notification.Visibility
}

// DefaultConfig returns the default notifier configuration.
func DefaultConfig() Config {
	return Config{ActivityVisibility: notification.VisibilityPublic}
}

// Notifier dispatches transition effects.
type Notifier struct {
	feed       notification.ActivityFeed
	dispatcher notification.Dispatcher
	ids        notification.IDGenerator
	publisher  shared.EventPublisher
	config     Config
	log        *logger.Logger
}

// New creates a transition notifier.
func New(
	feed notification.ActivityFeed,
	dispatcher notification.Dispatcher,
	ids notification.IDGenerator,
	publisher shared.EventPublisher,
	config Config,
	log *logger.Logger,
) *Notifier {
	if config.ActivityVisibility == "" {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Notifier{
		feed:       feed,
		dispatcher: dispatcher,
		ids:        ids,
		publisher:  publisher,
		config:     config,
		log:        log.With(logger.Component("notifier")),
	}
}

// Result counts the effects of one dispatch batch.
type Result struct {
	Dispatched   int
	FeedFailures int
	SendFailures int
}

// NotifyHighScores dispatches one activity append and one notification per
// new-high-score transition. Errors are contained per transition: a failed
// feed append still attempts the notification, and a failed transition never
// blocks the rest of the batch.
func (n *Notifier) NotifyHighScores(ctx context.Context, transitions []leaderboard.Transition) Result {
	var res Result
	for _, t := range transitions {
		data := map[string]interface{}{
			"leaderboard_id":   t.LeaderboardID,
			"leaderboard_name": t.LeaderboardName,
			"score":            t.Score.Float64(),
			"rank":             int(t.Rank),
			"first_entry":      t.FirstEntry,
		}

		title := "New high score!"
		body := fmt.Sprintf("You scored %s on %s and now hold rank %s.",
			t.Score, t.LeaderboardName, t.Rank)
		if t.FirstEntry {
			title = "You made the leaderboard!"
			body = fmt.Sprintf("You entered %s at rank %s with a score of %s.",
				t.LeaderboardName, t.Rank, t.Score)
		}

		n.dispatchOne(ctx, &res, t.UserID.String(), notification.KindNewHighScore, title, body, data)
	}
	return res
}

// NotifyUnlocks dispatches one activity append and one notification per
// unlock transition.
func (n *Notifier) NotifyUnlocks(ctx context.Context, transitions []achievement.UnlockTransition, defs map[string]*achievement.Definition) Result {
	var res Result
	for _, t := range transitions {
		def := defs[t.AchievementID]
		name, points := t.AchievementID, 0
		if def != nil {
			name, points = def.Name, def.Points
		}

		data := map[string]interface{}{
			"achievement_id":   t.AchievementID,
			"achievement_name": name,
			"points":           points,
			"unlocked_at":      t.UnlockedAt,
		}
		title := "Achievement unlocked!"
		body := fmt.Sprintf("You unlocked %q", name)
		if points > 0 {
			body = fmt.Sprintf("You unlocked %q (+%d points)", name, points)
		}

		n.dispatchOne(ctx, &res, t.UserID.String(), notification.KindAchievementUnlocked, title, body, data)
	}
	return res
}

// dispatchOne performs the two effects for one transition, in order.
func (n *Notifier) dispatchOne(
	ctx context.Context,
	res *Result,
	userID string,
	kind notification.Kind,
	title, body string,
	data map[string]interface{},
) {
	res.Dispatched++

	entry, err := notification.NewActivityEntry(n.ids.NewID(), userID, kind, data, n.config.ActivityVisibility)
	if err == nil {
		err = n.feed.AppendActivity(ctx, entry)
	}
	if err != nil {
		res.FeedFailures++
		n.log.Warn("activity feed append failed",
			logger.UserID(userID),
			logger.String("kind", kind.String()),
			logger.Err(err),
		)
	}

	note, err := notification.NewNotification(n.ids.NewID(), userID, kind, title, body, data)
	if err == nil {
		err = n.dispatcher.Notify(ctx, note)
	}
	if err != nil {
		res.SendFailures++
		n.log.Warn("notification dispatch failed",
			logger.UserID(userID),
			logger.String("kind", kind.String()),
			logger.Err(err),
		)
		if n.publisher != nil {
			_ = n.publisher.Publish(shared.NewNotificationFailedEvent(userID, kind.String(), err.Error()))
		}
	}
}
