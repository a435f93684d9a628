package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sam399/gamehub-engine/internal/application/command"
	"github.com/sam399/gamehub-engine/internal/application/notifier"
	"github.com/sam399/gamehub-engine/internal/domain/activity"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE SWEEP JOB
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateSweepJob periodically evaluates achievement progress for every user
// with recorded activity. The refresh job already re-evaluates users who just
// set a high score; the sweep is the catch-all for progress that advances
// without a leaderboard transition (reviews, posts, friends).
type EvaluateSweepJob struct {
	evaluate *command.EvaluateAchievementsHandler
	store    activity.Store
	notifier *notifier.Notifier
	config   EvaluateSweepConfig
	logger   *slog.Logger

	lastStats atomic.Value // *SweepStats
}

// EvaluateSweepConfig contains configuration for the sweep.
type EvaluateSweepConfig struct {
	// Interval between sweeps.
	Interval time.Duration

	// BatchPause is an optional pause between users, to spread load.
	BatchPause time.Duration

	// Timeout bounds one full sweep.
	Timeout time.Duration
}

// DefaultEvaluateSweepConfig returns sensible defaults.
func DefaultEvaluateSweepConfig() EvaluateSweepConfig {
	return EvaluateSweepConfig{
		Interval: time.Hour,
		Timeout:  10 * time.Minute,
	}
}

// SweepStats contains statistics from one sweep run.
type SweepStats struct {
	StartedAt      time.Time
	Duration       time.Duration
	UsersEvaluated int
	UsersFailed    int
	Unlocks        int
}

// NewEvaluateSweepJob creates an evaluation sweep job.
func NewEvaluateSweepJob(
	evaluate *command.EvaluateAchievementsHandler,
	store activity.Store,
	n *notifier.Notifier,
	config EvaluateSweepConfig,
	logger *slog.Logger,
) *EvaluateSweepJob {
	if config.Interval <= 0 {
		config = DefaultEvaluateSweepConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluateSweepJob{
		evaluate: evaluate,
		store:    store,
		notifier: n,
		config:   config,
		logger:   logger,
	}
}

// Interval returns the configured sweep interval.
func (j *EvaluateSweepJob) Interval() time.Duration {
	return j.config.Interval
}

// Run executes one full sweep. Per-user failures are counted and skipped;
// the sweep fails only when the user set cannot be enumerated.
func (j *EvaluateSweepJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &SweepStats{StartedAt: startedAt}
	defer func() {
		stats.Duration = time.Since(startedAt)
		j.lastStats.Store(stats)
	}()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	users, err := j.collectUsers(ctx)
	if err != nil {
		return fmt.Errorf("evaluate sweep: collect users: %w", err)
	}

	j.logger.Info("achievement sweep started", "users", len(users))

	for _, userID := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := j.evaluate.Handle(ctx, command.EvaluateAchievementsCommand{UserID: userID})
		if err != nil {
			stats.UsersFailed++
			j.logger.Warn("sweep evaluation failed",
				"user_id", userID,
				"error", err,
			)
			continue
		}
		stats.UsersEvaluated++

		if len(res.Unlocked) > 0 {
			stats.Unlocks += len(res.Unlocked)
			transitions, defs := splitUnlocks(res.Unlocked)
			j.notifier.NotifyUnlocks(ctx, transitions, defs)
		}

		if j.config.BatchPause > 0 {
			time.Sleep(j.config.BatchPause)
		}
	}

	j.logger.Info("achievement sweep completed",
		"users_evaluated", stats.UsersEvaluated,
		"users_failed", stats.UsersFailed,
		"unlocks", stats.Unlocks,
		"duration", time.Since(startedAt).String(),
	)
	return nil
}

// LastStats returns statistics from the most recent sweep.
func (j *EvaluateSweepJob) LastStats() *SweepStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*SweepStats)
}

// collectUsers enumerates every user with any recorded activity: play
// tracking, forum posts or a friend list. The union is sorted so sweeps are
// deterministic.
func (j *EvaluateSweepJob) collectUsers(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	records, err := j.store.ListPlayTracking(ctx, shared.UserID(""), shared.GameID(""))
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.IsActive() {
			seen[r.UserID.String()] = struct{}{}
		}
	}

	posts, err := j.store.ListActivePostCounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range posts {
		seen[c.UserID.String()] = struct{}{}
	}

	friends, err := j.store.ListFriendCounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range friends {
		seen[c.UserID.String()] = struct{}{}
	}

	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}
