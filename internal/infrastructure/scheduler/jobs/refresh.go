// Package jobs contains the executable units the refresh scheduler runs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sam399/gamehub-engine/internal/application/command"
	"github.com/sam399/gamehub-engine/internal/application/notifier"
	"github.com/sam399/gamehub-engine/internal/domain/achievement"
	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH JOB
// ══════════════════════════════════════════════════════════════════════════════

// RefreshJob is the scheduler's tick body: it runs one refresh cycle for a
// leaderboard and dispatches the resulting transitions. The refresh handler
// returns transitions as values; this job is the single place they turn into
// activity entries, notifications and achievement evaluations.
type RefreshJob struct {
	refresh  *command.RefreshLeaderboardHandler
	evaluate *command.EvaluateAchievementsHandler
	notifier *notifier.Notifier
	logger   *slog.Logger

	lastStats atomic.Value // *RefreshRunStats
}

// RefreshRunStats contains statistics from a refresh run.
type RefreshRunStats struct {
	LeaderboardID    string
	StartedAt        time.Time
	Duration         time.Duration
	EntryCount       int
	Transitions      int
	UsersEvaluated   int
	Unlocks          int
	DispatchFailures int
	Skipped          bool
}

// NewRefreshJob creates a refresh job.
func NewRefreshJob(
	refresh *command.RefreshLeaderboardHandler,
	evaluate *command.EvaluateAchievementsHandler,
	n *notifier.Notifier,
	logger *slog.Logger,
) *RefreshJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshJob{
		refresh:  refresh,
		evaluate: evaluate,
		notifier: n,
		logger:   logger,
	}
}

// RunRefresh executes one refresh cycle. A refresh error is returned as-is
// so the scheduler records the failed tick; dispatch and evaluation failures
// after a successful refresh are contained here and never fail the tick.
func (j *RefreshJob) RunRefresh(ctx context.Context, leaderboardID string) error {
	startedAt := time.Now()
	stats := &RefreshRunStats{
		LeaderboardID: leaderboardID,
		StartedAt:     startedAt,
	}
	defer func() {
		stats.Duration = time.Since(startedAt)
		j.lastStats.Store(stats)
	}()

	res, err := j.refresh.Handle(ctx, command.RefreshLeaderboardCommand{LeaderboardID: leaderboardID})
	if err != nil {
		return fmt.Errorf("refresh %s: %w", leaderboardID, err)
	}
	if res.Skipped {
		stats.Skipped = true
		return nil
	}
	stats.EntryCount = res.EntryCount
	stats.Transitions = len(res.Transitions)

	if len(res.Transitions) > 0 {
		dispatched := j.notifier.NotifyHighScores(ctx, res.Transitions)
		stats.DispatchFailures += dispatched.FeedFailures + dispatched.SendFailures
	}

	// A new high score is fresh activity; re-evaluate achievements for the
	// affected users while the stats are hot. A per-user failure is logged
	// and skipped.
	for _, userID := range affectedUsers(res.Transitions) {
		stats.UsersEvaluated++

		evalRes, err := j.evaluate.Handle(ctx, command.EvaluateAchievementsCommand{
			UserID: userID,
			GameID: res.GameID,
		})
		if err != nil {
			j.logger.Warn("achievement evaluation failed after refresh",
				"leaderboard_id", leaderboardID,
				"user_id", userID,
				"error", err,
			)
			continue
		}

		if len(evalRes.Unlocked) > 0 {
			stats.Unlocks += len(evalRes.Unlocked)
			transitions, defs := splitUnlocks(evalRes.Unlocked)
			dispatched := j.notifier.NotifyUnlocks(ctx, transitions, defs)
			stats.DispatchFailures += dispatched.FeedFailures + dispatched.SendFailures
		}
	}

	return nil
}

// LastStats returns statistics from the most recent run.
func (j *RefreshJob) LastStats() *RefreshRunStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RefreshRunStats)
}

// affectedUsers extracts the unique user IDs of a transition batch,
// preserving first-seen order.
func affectedUsers(transitions []leaderboard.Transition) []string {
	seen := make(map[string]struct{}, len(transitions))
	users := make([]string, 0, len(transitions))
	for _, t := range transitions {
		id := t.UserID.String()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	return users
}

// splitUnlocks converts unlock results into the notifier's input shape.
func splitUnlocks(unlocked []command.UnlockedAchievement) ([]achievement.UnlockTransition, map[string]*achievement.Definition) {
	transitions := make([]achievement.UnlockTransition, 0, len(unlocked))
	defs := make(map[string]*achievement.Definition, len(unlocked))
	for _, u := range unlocked {
		transitions = append(transitions, u.Transition)
		defs[u.Transition.AchievementID] = u.Definition
	}
	return transitions, defs
}
