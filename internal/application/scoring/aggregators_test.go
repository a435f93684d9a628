package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam399/gamehub-engine/internal/domain/achievement"
	"github.com/sam399/gamehub-engine/internal/domain/activity"
	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ──────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────

type fakeActivityStore struct {
	play    []activity.PlayRecord
	reviews []activity.ReviewRecord
	posts   []activity.UserCount
	friends []activity.UserCount

	lastPlayGameID   shared.GameID
	lastReviewGameID shared.GameID
}

func (f *fakeActivityStore) ListPlayTracking(_ context.Context, userID shared.UserID, gameID shared.GameID) ([]activity.PlayRecord, error) {
	f.lastPlayGameID = gameID
	var out []activity.PlayRecord
	for _, r := range f.play {
		if userID != "" && r.UserID != userID {
			continue
		}
		if gameID != "" && r.GameID != gameID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeActivityStore) ListActiveReviews(_ context.Context, userID shared.UserID, gameID shared.GameID) ([]activity.ReviewRecord, error) {
	f.lastReviewGameID = gameID
	var out []activity.ReviewRecord
	for _, r := range f.reviews {
		if !r.IsActive {
			continue
		}
		if userID != "" && r.UserID != userID {
			continue
		}
		if gameID != "" && r.GameID != gameID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeActivityStore) CountActivePosts(_ context.Context, userID shared.UserID) (int, error) {
	for _, c := range f.posts {
		if c.UserID == userID {
			return c.Count, nil
		}
	}
	return 0, nil
}

func (f *fakeActivityStore) ListActivePostCounts(_ context.Context) ([]activity.UserCount, error) {
	return f.posts, nil
}

func (f *fakeActivityStore) FriendCount(_ context.Context, userID shared.UserID) (int, error) {
	for _, c := range f.friends {
		if c.UserID == userID {
			return c.Count, nil
		}
	}
	return 0, nil
}

func (f *fakeActivityStore) ListFriendCounts(_ context.Context) ([]activity.UserCount, error) {
	return f.friends, nil
}

type fakeProgressRepo struct {
	stats      []achievement.UnlockedStats
	lastGameID shared.GameID
}

func (f *fakeProgressRepo) GetProgress(context.Context, shared.UserID, string) (*achievement.Progress, error) {
	return nil, shared.ErrProgressNotFound
}

func (f *fakeProgressRepo) ListByUser(context.Context, shared.UserID) ([]*achievement.Progress, error) {
	return nil, nil
}

func (f *fakeProgressRepo) CountUnlocked(context.Context, shared.UserID, shared.GameID) (int, error) {
	return 0, nil
}

func (f *fakeProgressRepo) SumUnlockedPoints(context.Context, shared.UserID, shared.GameID) (int, error) {
	return 0, nil
}

func (f *fakeProgressRepo) ListUnlockedStats(_ context.Context, gameID shared.GameID) ([]achievement.UnlockedStats, error) {
	f.lastGameID = gameID
	return f.stats, nil
}

func (f *fakeProgressRepo) Save(_ context.Context, p *achievement.Progress) (*achievement.Progress, error) {
	return p, nil
}

// ──────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────

func testCalculator(t *testing.T, store activity.Store, progress achievement.ProgressRepository) *Calculator {
	t.Helper()
	if store == nil {
		store = &fakeActivityStore{}
	}
	if progress == nil {
		progress = &fakeProgressRepo{}
	}
	return NewCalculator(store, progress, nil)
}

func metricDefinition(t *testing.T, metric leaderboard.Metric, scope leaderboard.Scope, gameID shared.GameID) *leaderboard.Definition {
	t.Helper()
	def, err := leaderboard.NewDefinition(
		"lb-test", "Test Board", scope, gameID,
		metric, leaderboard.DirectionHighestWins, leaderboard.RefreshHourly,
	)
	require.NoError(t, err)
	return def
}

func scoreByUser(rows leaderboard.ScoreSet) map[shared.UserID]shared.Score {
	out := make(map[shared.UserID]shared.Score, len(rows))
	for _, r := range rows {
		out[r.UserID] = r.Score
	}
	return out
}

// ──────────────────────────────────────────────
// Play tracking
// ──────────────────────────────────────────────

func TestComputeScores_GamesPlayed(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeActivityStore{play: []activity.PlayRecord{
		{UserID: "alice", GameID: "g1", HoursPlayed: 10, LastPlayed: now},
		{UserID: "alice", GameID: "g2", HoursPlayed: 5, LastPlayed: now},
		{UserID: "bob", GameID: "g1", HoursPlayed: 3, LastPlayed: now},
	}}
	calc := testCalculator(t, store, nil)

	def := metricDefinition(t, leaderboard.MetricGamesPlayed, leaderboard.ScopeGlobal, "")
	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	byUser := scoreByUser(scores)
	assert.Len(t, byUser, 2)
	assert.Equal(t, shared.Score(2), byUser["alice"])
	assert.Equal(t, shared.Score(1), byUser["bob"])
}

func TestComputeScores_ExcludesUsersWithoutQualifyingRecords(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeActivityStore{play: []activity.PlayRecord{
		{UserID: "alice", GameID: "g1", HoursPlayed: 10, LastPlayed: now},
		// bob's only record is soft-deleted, carol's has a corrupt reading.
		{UserID: "bob", GameID: "g1", HoursPlayed: 20, LastPlayed: now, IsDeleted: true},
		{UserID: "carol", GameID: "g1", HoursPlayed: -1, LastPlayed: now},
	}}
	calc := testCalculator(t, store, nil)

	def := metricDefinition(t, leaderboard.MetricHoursPlayed, leaderboard.ScopeGlobal, "")
	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	require.Len(t, scores, 1, "users without a single active record must not appear at all")
	assert.Equal(t, shared.UserID("alice"), scores[0].UserID)
	assert.Equal(t, shared.Score(10), scores[0].Score)
}

func TestComputeScores_PerGameScopeRestrictsSourceQuery(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeActivityStore{play: []activity.PlayRecord{
		{UserID: "alice", GameID: "g1", HoursPlayed: 10, LastPlayed: now},
		{UserID: "alice", GameID: "g2", HoursPlayed: 90, LastPlayed: now},
		{UserID: "bob", GameID: "g2", HoursPlayed: 40, LastPlayed: now},
	}}
	calc := testCalculator(t, store, nil)

	def := metricDefinition(t, leaderboard.MetricHoursPlayed, leaderboard.ScopePerGame, "g1")
	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, shared.GameID("g1"), store.lastPlayGameID)
	byUser := scoreByUser(scores)
	assert.Len(t, byUser, 1)
	assert.Equal(t, shared.Score(10), byUser["alice"])
}

func TestComputeScores_GlobalScopeAppliesNoGameFilter(t *testing.T) {
	store := &fakeActivityStore{}
	calc := testCalculator(t, store, nil)

	def := metricDefinition(t, leaderboard.MetricGamesPlayed, leaderboard.ScopeGlobal, "")
	_, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, shared.GameID(""), store.lastPlayGameID)
}

func TestComputeScores_TimeWindowFiltersPlayRecords(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC)
	store := &fakeActivityStore{play: []activity.PlayRecord{
		{UserID: "alice", GameID: "g1", HoursPlayed: 10, LastPlayed: from.Add(24 * time.Hour)},
		{UserID: "alice", GameID: "g2", HoursPlayed: 50, LastPlayed: from.Add(-time.Hour)},
		{UserID: "bob", GameID: "g1", HoursPlayed: 7, LastPlayed: to.Add(time.Hour)},
	}}
	calc := testCalculator(t, store, nil)

	def := metricDefinition(t, leaderboard.MetricHoursPlayed, leaderboard.ScopeTimeWindowed, "")
	def.Window = shared.TimeRange{From: from, To: to}

	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	byUser := scoreByUser(scores)
	require.Len(t, byUser, 1, "records outside the window must not score")
	assert.Equal(t, shared.Score(10), byUser["alice"])
}

// ──────────────────────────────────────────────
// Reviews
// ──────────────────────────────────────────────

func TestComputeScores_ReviewCountWithAverageRating(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeActivityStore{reviews: []activity.ReviewRecord{
		{UserID: "alice", GameID: "g1", Rating: 5, CreatedAt: now, IsActive: true},
		{UserID: "alice", GameID: "g2", Rating: 4, CreatedAt: now, IsActive: true},
		{UserID: "alice", GameID: "g3", Rating: 1, CreatedAt: now, IsActive: false},
		{UserID: "bob", GameID: "g1", Rating: 3, CreatedAt: now, IsActive: true},
	}}
	calc := testCalculator(t, store, nil)

	def := metricDefinition(t, leaderboard.MetricReviewCount, leaderboard.ScopeGlobal, "")
	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	require.Len(t, scores, 2)
	byUser := make(map[shared.UserID]leaderboard.ScoreRow, len(scores))
	for _, row := range scores {
		byUser[row.UserID] = row
	}
	assert.Equal(t, shared.Score(2), byUser["alice"].Score)
	assert.InDelta(t, 4.5, byUser["alice"].Metadata["average_rating"], 0.0001)
	assert.Equal(t, shared.Score(1), byUser["bob"].Score)
	assert.InDelta(t, 3.0, byUser["bob"].Metadata["average_rating"], 0.0001)
}

func TestComputeScores_TimeWindowFiltersReviews(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeActivityStore{reviews: []activity.ReviewRecord{
		{UserID: "alice", GameID: "g1", Rating: 5, CreatedAt: from.Add(time.Hour), IsActive: true},
		{UserID: "alice", GameID: "g2", Rating: 2, CreatedAt: from.Add(-time.Hour), IsActive: true},
	}}
	calc := testCalculator(t, store, nil)

	def := metricDefinition(t, leaderboard.MetricReviewCount, leaderboard.ScopeTimeWindowed, "")
	def.Window = shared.TimeRange{From: from}

	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	require.Len(t, scores, 1)
	assert.Equal(t, shared.Score(1), scores[0].Score)
	assert.InDelta(t, 5.0, scores[0].Metadata["average_rating"], 0.0001)
}

// ──────────────────────────────────────────────
// Achievements
// ──────────────────────────────────────────────

func TestComputeScores_AchievementsCountWithPoints(t *testing.T) {
	progress := &fakeProgressRepo{stats: []achievement.UnlockedStats{
		{UserID: "alice", Count: 3, Points: 75},
		{UserID: "bob", Count: 0, Points: 0},
	}}
	calc := testCalculator(t, nil, progress)

	def := metricDefinition(t, leaderboard.MetricAchievements, leaderboard.ScopeGlobal, "")
	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	require.Len(t, scores, 1, "zero-unlock users must be excluded")
	assert.Equal(t, shared.UserID("alice"), scores[0].UserID)
	assert.Equal(t, shared.Score(3), scores[0].Score)
	assert.InDelta(t, 75.0, scores[0].Metadata["points"], 0.0001)
}

func TestComputeScores_AchievementsPerGameScoped(t *testing.T) {
	progress := &fakeProgressRepo{}
	calc := testCalculator(t, nil, progress)

	def := metricDefinition(t, leaderboard.MetricAchievements, leaderboard.ScopePerGame, "g7")
	_, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, shared.GameID("g7"), progress.lastGameID)
}

// ──────────────────────────────────────────────
// Forum and friends
// ──────────────────────────────────────────────

func TestComputeScores_ForumPostsDropsZeroCounts(t *testing.T) {
	store := &fakeActivityStore{posts: []activity.UserCount{
		{UserID: "alice", Count: 12},
		{UserID: "bob", Count: 0},
	}}
	calc := testCalculator(t, store, nil)

	def := metricDefinition(t, leaderboard.MetricForumPosts, leaderboard.ScopeGlobal, "")
	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	require.Len(t, scores, 1)
	assert.Equal(t, shared.Score(12), scores[0].Score)
}

func TestComputeScores_FriendsCount(t *testing.T) {
	store := &fakeActivityStore{friends: []activity.UserCount{
		{UserID: "alice", Count: 4},
		{UserID: "bob", Count: 9},
	}}
	calc := testCalculator(t, store, nil)

	def := metricDefinition(t, leaderboard.MetricFriendsCount, leaderboard.ScopeGlobal, "")
	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)

	byUser := scoreByUser(scores)
	assert.Equal(t, shared.Score(4), byUser["alice"])
	assert.Equal(t, shared.Score(9), byUser["bob"])
}

// ──────────────────────────────────────────────
// Dispatch
// ──────────────────────────────────────────────

func TestComputeScores_CustomMetricYieldsEmptySet(t *testing.T) {
	calc := testCalculator(t, nil, nil)

	def := metricDefinition(t, leaderboard.MetricCustom, leaderboard.ScopeGlobal, "")
	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestComputeScores_UnknownMetricDegradesToEmptySet(t *testing.T) {
	calc := testCalculator(t, nil, nil)

	def := metricDefinition(t, leaderboard.MetricGamesPlayed, leaderboard.ScopeGlobal, "")
	def.Metric = leaderboard.Metric("not_a_metric")

	scores, err := calc.ComputeScores(context.Background(), def)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestComputeScores_NilDefinition(t *testing.T) {
	calc := testCalculator(t, nil, nil)

	_, err := calc.ComputeScores(context.Background(), nil)
	assert.Error(t, err)
}

func TestWindowFilters_LeaveSourceSliceIntact(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	def := metricDefinition(t, leaderboard.MetricHoursPlayed, leaderboard.ScopeTimeWindowed, "")
	def.Window = shared.TimeRange{From: from, To: to}

	play := []activity.PlayRecord{
		{UserID: "alice", GameID: "g1", LastPlayed: from.Add(-time.Hour)},
		{UserID: "bob", GameID: "g1", LastPlayed: from.Add(time.Hour)},
		{UserID: "carol", GameID: "g1", LastPlayed: to.Add(time.Hour)},
	}
	playOrig := append([]activity.PlayRecord(nil), play...)

	filtered := windowPlayRecords(def, play)
	require.Len(t, filtered, 1)
	assert.Equal(t, shared.UserID("bob"), filtered[0].UserID)
	assert.Equal(t, playOrig, play, "the store's slice must survive filtering untouched")

	reviews := []activity.ReviewRecord{
		{UserID: "alice", GameID: "g1", CreatedAt: from.Add(-time.Hour), IsActive: true},
		{UserID: "bob", GameID: "g1", CreatedAt: from.Add(time.Hour), IsActive: true},
	}
	reviewsOrig := append([]activity.ReviewRecord(nil), reviews...)

	filteredReviews := windowReviews(def, reviews)
	require.Len(t, filteredReviews, 1)
	assert.Equal(t, shared.UserID("bob"), filteredReviews[0].UserID)
	assert.Equal(t, reviewsOrig, reviews, "the store's slice must survive filtering untouched")
}

func TestSupportedMetrics(t *testing.T) {
	calc := testCalculator(t, nil, nil)
	metrics := calc.SupportedMetrics()

	assert.Contains(t, metrics, leaderboard.MetricGamesPlayed)
	assert.Contains(t, metrics, leaderboard.MetricHoursPlayed)
	assert.Contains(t, metrics, leaderboard.MetricAchievements)
	assert.Contains(t, metrics, leaderboard.MetricReviewCount)
	assert.Contains(t, metrics, leaderboard.MetricForumPosts)
	assert.Contains(t, metrics, leaderboard.MetricFriendsCount)
}
