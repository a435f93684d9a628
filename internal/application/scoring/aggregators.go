package scoring

import (
	"context"
	"sort"

	"github.com/sam399/gamehub-engine/internal/domain/achievement"
	"github.com/sam399/gamehub-engine/internal/domain/activity"
	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
	"github.com/sam399/gamehub-engine/pkg/retry"
	"github.com/sam399/gamehub-engine/pkg/timeutil"
)

// Metadata keys shared by the aggregators.
const (
	metaGamesPlayed   = "games_played"
	metaHoursPlayed   = "hours_played"
	metaCount         = "count"
	metaPoints        = "points"
	metaAverageRating = "average_rating"
)

// scopeGame returns the game restriction for a definition: per-game scope
// restricts every source query to that game, any other scope applies none.
func scopeGame(def *leaderboard.Definition) shared.GameID {
	if def.Scope == leaderboard.ScopePerGame {
		return def.GameID
	}
	return ""
}

// windowPlayRecords restricts play records to the definition's window for
// time-windowed scope: a record counts when its last play falls inside
// [from, to]. Any other scope passes records through unchanged.
func windowPlayRecords(def *leaderboard.Definition, records []activity.PlayRecord) []activity.PlayRecord {
	if def.Scope != leaderboard.ScopeTimeWindowed {
		return records
	}
	// Fresh slice: the input belongs to the store and may be shared.
	out := make([]activity.PlayRecord, 0, len(records))
	for _, rec := range records {
		if timeutil.InRange(rec.LastPlayed, def.Window.From, def.Window.To) {
			out = append(out, rec)
		}
	}
	return out
}

// windowReviews restricts reviews to the definition's window by creation
// time, mirroring windowPlayRecords.
func windowReviews(def *leaderboard.Definition, records []activity.ReviewRecord) []activity.ReviewRecord {
	if def.Scope != leaderboard.ScopeTimeWindowed {
		return records
	}
	out := make([]activity.ReviewRecord, 0, len(records))
	for _, rec := range records {
		if timeutil.InRange(rec.CreatedAt, def.Window.From, def.Window.To) {
			out = append(out, rec)
		}
	}
	return out
}

// sortRows keeps aggregator output deterministic for tests and diffing.
// Ranking order is decided later by the ranking engine.
func sortRows(rows leaderboard.ScoreSet) leaderboard.ScoreSet {
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return rows
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAY TRACKING AGGREGATORS
// ══════════════════════════════════════════════════════════════════════════════

// gamesPlayedAggregator counts tracked games per user.
type gamesPlayedAggregator struct {
	store activity.Store
}

func (a *gamesPlayedAggregator) Metric() leaderboard.Metric {
	return leaderboard.MetricGamesPlayed
}

func (a *gamesPlayedAggregator) Aggregate(ctx context.Context, def *leaderboard.Definition) (leaderboard.ScoreSet, error) {
	stats, err := loadPlayStats(ctx, a.store, def)
	if err != nil {
		return nil, err
	}
	rows := make(leaderboard.ScoreSet, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, leaderboard.ScoreRow{
			UserID: s.UserID,
			Score:  shared.Score(s.GamesPlayed),
			Metadata: leaderboard.Metadata{
				metaGamesPlayed: float64(s.GamesPlayed),
				metaHoursPlayed: s.HoursPlayed,
			},
		})
	}
	return sortRows(rows), nil
}

// hoursPlayedAggregator sums play hours per user.
type hoursPlayedAggregator struct {
	store activity.Store
}

func (a *hoursPlayedAggregator) Metric() leaderboard.Metric {
	return leaderboard.MetricHoursPlayed
}

func (a *hoursPlayedAggregator) Aggregate(ctx context.Context, def *leaderboard.Definition) (leaderboard.ScoreSet, error) {
	stats, err := loadPlayStats(ctx, a.store, def)
	if err != nil {
		return nil, err
	}
	rows := make(leaderboard.ScoreSet, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, leaderboard.ScoreRow{
			UserID: s.UserID,
			Score:  shared.Score(s.HoursPlayed),
			Metadata: leaderboard.Metadata{
				metaHoursPlayed: s.HoursPlayed,
				metaGamesPlayed: float64(s.GamesPlayed),
			},
		})
	}
	return sortRows(rows), nil
}

// loadPlayStats reads play records with retry, applies the definition's
// window, and reduces them per user.
func loadPlayStats(ctx context.Context, store activity.Store, def *leaderboard.Definition) (map[shared.UserID]activity.PlayStats, error) {
	records, err := retry.DoWithData(ctx, func(ctx context.Context) ([]activity.PlayRecord, error) {
		return store.ListPlayTracking(ctx, "", scopeGame(def))
	}, retryOptions()...)
	if err != nil {
		return nil, err
	}
	return activity.ReducePlayRecords(windowPlayRecords(def, records)), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// achievementsAggregator counts unlocked achievements per user, with the sum
// of unlocked definition points as metadata.
type achievementsAggregator struct {
	progress achievement.ProgressRepository
}

func (a *achievementsAggregator) Metric() leaderboard.Metric {
	return leaderboard.MetricAchievements
}

func (a *achievementsAggregator) Aggregate(ctx context.Context, def *leaderboard.Definition) (leaderboard.ScoreSet, error) {
	stats, err := retry.DoWithData(ctx, func(ctx context.Context) ([]achievement.UnlockedStats, error) {
		return a.progress.ListUnlockedStats(ctx, scopeGame(def))
	}, retryOptions()...)
	if err != nil {
		return nil, err
	}
	rows := make(leaderboard.ScoreSet, 0, len(stats))
	for _, s := range stats {
		if s.Count == 0 {
			continue
		}
		rows = append(rows, leaderboard.ScoreRow{
			UserID: s.UserID,
			Score:  shared.Score(s.Count),
			Metadata: leaderboard.Metadata{
				metaCount:  float64(s.Count),
				metaPoints: float64(s.Points),
			},
		})
	}
	return sortRows(rows), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// reviewCountAggregator counts active reviews per user, with the average
// rating as metadata.
type reviewCountAggregator struct {
	store activity.Store
}

func (a *reviewCountAggregator) Metric() leaderboard.Metric {
	return leaderboard.MetricReviewCount
}

func (a *reviewCountAggregator) Aggregate(ctx context.Context, def *leaderboard.Definition) (leaderboard.ScoreSet, error) {
	records, err := retry.DoWithData(ctx, func(ctx context.Context) ([]activity.ReviewRecord, error) {
		return a.store.ListActiveReviews(ctx, "", scopeGame(def))
	}, retryOptions()...)
	if err != nil {
		return nil, err
	}
	stats := activity.ReduceReviewRecords(windowReviews(def, records))
	rows := make(leaderboard.ScoreSet, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, leaderboard.ScoreRow{
			UserID: s.UserID,
			Score:  shared.Score(s.ReviewCount),
			Metadata: leaderboard.Metadata{
				metaCount:         float64(s.ReviewCount),
				metaAverageRating: s.AverageRating,
			},
		})
	}
	return sortRows(rows), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FORUM AND FRIENDS AGGREGATORS
// ══════════════════════════════════════════════════════════════════════════════

// forumPostsAggregator counts active forum posts per user.
// Forum posts are platform-wide; per-game scope yields the same stream, and
// the counts come pre-reduced, so a time window cannot restrict them either.
type forumPostsAggregator struct {
	store activity.Store
}

func (a *forumPostsAggregator) Metric() leaderboard.Metric {
	return leaderboard.MetricForumPosts
}

func (a *forumPostsAggregator) Aggregate(ctx context.Context, def *leaderboard.Definition) (leaderboard.ScoreSet, error) {
	counts, err := retry.DoWithData(ctx, func(ctx context.Context) ([]activity.UserCount, error) {
		return a.store.ListActivePostCounts(ctx)
	}, retryOptions()...)
	if err != nil {
		return nil, err
	}
	return countRows(counts), nil
}

// friendsCountAggregator scores users by friend-list size.
type friendsCountAggregator struct {
	store activity.Store
}

func (a *friendsCountAggregator) Metric() leaderboard.Metric {
	return leaderboard.MetricFriendsCount
}

func (a *friendsCountAggregator) Aggregate(ctx context.Context, def *leaderboard.Definition) (leaderboard.ScoreSet, error) {
	counts, err := retry.DoWithData(ctx, func(ctx context.Context) ([]activity.UserCount, error) {
		return a.store.ListFriendCounts(ctx)
	}, retryOptions()...)
	if err != nil {
		return nil, err
	}
	return countRows(counts), nil
}

// countRows converts user counts into score rows, dropping zero counts.
func countRows(counts []activity.UserCount) leaderboard.ScoreSet {
	rows := make(leaderboard.ScoreSet, 0, len(counts))
	for _, c := range counts {
		if c.Count == 0 {
			continue
		}
		rows = append(rows, leaderboard.ScoreRow{
			UserID:   c.UserID,
			Score:    shared.Score(c.Count),
			Metadata: leaderboard.Metadata{metaCount: float64(c.Count)},
		})
	}
	return sortRows(rows)
}

// ══════════════════════════════════════════════════════════════════════════════
// CUSTOM AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// customAggregator serves leaderboard-defined formulas. Deferred: it always
// returns an empty score set, so custom leaderboards rank nobody.
type customAggregator struct{}

func (customAggregator) Metric() leaderboard.Metric {
	return leaderboard.MetricCustom
}

func (customAggregator) Aggregate(ctx context.Context, def *leaderboard.Definition) (leaderboard.ScoreSet, error) {
	return leaderboard.ScoreSet{}, nil
}

// retryOptions is the shared backoff profile for activity store reads.
func retryOptions() []retry.Option {
	return retry.ActivityStoreOptions()
}
