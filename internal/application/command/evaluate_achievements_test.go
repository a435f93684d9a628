package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam399/gamehub-engine/internal/domain/achievement"
	"github.com/sam399/gamehub-engine/internal/domain/activity"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ──────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────

type memAchievementDefRepo struct {
	defs []*achievement.Definition
}

func (r *memAchievementDefRepo) GetByID(_ context.Context, id string) (*achievement.Definition, error) {
	for _, d := range r.defs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, shared.ErrAchievementNotFound
}

func (r *memAchievementDefRepo) ListActive(_ context.Context, _ shared.GameID) ([]*achievement.Definition, error) {
	var out []*achievement.Definition
	for _, d := range r.defs {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

// memProgressRepo mimics the guarded upsert of the PostgreSQL repository:
// once a pair is stored unlocked, later saves keep the stored unlock moment.
type memProgressRepo struct {
	records map[string]*achievement.Progress
	points  map[string]int // achievement ID -> definition points

	saveErrFor map[string]error
	// concurrentUnlockAt simulates a racing writer that unlocked the pair
	// first: every save lands on an already-unlocked stored record.
	concurrentUnlockAt time.Time
}

func newMemProgressRepo() *memProgressRepo {
	return &memProgressRepo{
		records:    make(map[string]*achievement.Progress),
		points:     make(map[string]int),
		saveErrFor: make(map[string]error),
	}
}

func progressKey(userID shared.UserID, achievementID string) string {
	return string(userID) + "|" + achievementID
}

func (r *memProgressRepo) GetProgress(_ context.Context, userID shared.UserID, achievementID string) (*achievement.Progress, error) {
	p, ok := r.records[progressKey(userID, achievementID)]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProgressRepo) ListByUser(_ context.Context, userID shared.UserID) ([]*achievement.Progress, error) {
	var out []*achievement.Progress
	for _, p := range r.records {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memProgressRepo) CountUnlocked(_ context.Context, userID shared.UserID, _ shared.GameID) (int, error) {
	n := 0
	for _, p := range r.records {
		if p.UserID == userID && p.IsUnlocked {
			n++
		}
	}
	return n, nil
}

func (r *memProgressRepo) SumUnlockedPoints(_ context.Context, userID shared.UserID, _ shared.GameID) (int, error) {
	sum := 0
	for _, p := range r.records {
		if p.UserID == userID && p.IsUnlocked {
			sum += r.points[p.AchievementID]
		}
	}
	return sum, nil
}

func (r *memProgressRepo) ListUnlockedStats(_ context.Context, _ shared.GameID) ([]achievement.UnlockedStats, error) {
	byUser := make(map[shared.UserID]*achievement.UnlockedStats)
	for _, p := range r.records {
		if !p.IsUnlocked {
			continue
		}
		s, ok := byUser[p.UserID]
		if !ok {
			s = &achievement.UnlockedStats{UserID: p.UserID}
			byUser[p.UserID] = s
		}
		s.Count++
		s.Points += r.points[p.AchievementID]
	}
	out := make([]achievement.UnlockedStats, 0, len(byUser))
	for _, s := range byUser {
		out = append(out, *s)
	}
	return out, nil
}

func (r *memProgressRepo) Save(_ context.Context, p *achievement.Progress) (*achievement.Progress, error) {
	if err := r.saveErrFor[p.AchievementID]; err != nil {
		return nil, err
	}
	key := progressKey(p.UserID, p.AchievementID)
	merged := *p

	if !r.concurrentUnlockAt.IsZero() {
		merged.IsUnlocked = true
		merged.UnlockedAt = r.concurrentUnlockAt
		merged.Percentage = 100
	}
	if prev, ok := r.records[key]; ok && prev.IsUnlocked {
		merged.IsUnlocked = true
		merged.UnlockedAt = prev.UnlockedAt
		merged.Percentage = 100
		if merged.Current < prev.Current {
			merged.Current = prev.Current
		}
	}

	r.records[key] = &merged
	cp := merged
	return &cp, nil
}

// ──────────────────────────────────────────────
// Fixture
// ──────────────────────────────────────────────

type evaluateFixture struct {
	handler      *EvaluateAchievementsHandler
	defRepo      *memAchievementDefRepo
	progressRepo *memProgressRepo
	store        *stubActivitySnapshot
	publisher    *memPublisher
}

// stubActivitySnapshot serves fixed per-user activity for snapshot building.
type stubActivitySnapshot struct {
	plays   []activity.PlayRecord
	reviews []activity.ReviewRecord
	posts   map[shared.UserID]int
	friends map[shared.UserID]int
}

func (s *stubActivitySnapshot) ListPlayTracking(_ context.Context, userID shared.UserID, gameID shared.GameID) ([]activity.PlayRecord, error) {
	var out []activity.PlayRecord
	for _, r := range s.plays {
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

func (s *stubActivitySnapshot) ListActiveReviews(_ context.Context, userID shared.UserID, gameID shared.GameID) ([]activity.ReviewRecord, error) {
	var out []activity.ReviewRecord
	for _, r := range s.reviews {
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

func (s *stubActivitySnapshot) CountActivePosts(_ context.Context, userID shared.UserID) (int, error) {
	return s.posts[userID], nil
}

func (s *stubActivitySnapshot) ListActivePostCounts(context.Context) ([]activity.UserCount, error) {
	return nil, nil
}

func (s *stubActivitySnapshot) FriendCount(_ context.Context, userID shared.UserID) (int, error) {
	return s.friends[userID], nil
}

func (s *stubActivitySnapshot) ListFriendCounts(context.Context) ([]activity.UserCount, error) {
	return nil, nil
}

func newEvaluateFixture(t *testing.T, defs ...*achievement.Definition) *evaluateFixture {
	t.Helper()
	f := &evaluateFixture{
		defRepo:      &memAchievementDefRepo{defs: defs},
		progressRepo: newMemProgressRepo(),
		store: &stubActivitySnapshot{
			posts:   make(map[shared.UserID]int),
			friends: make(map[shared.UserID]int),
		},
		publisher: &memPublisher{},
	}
	for _, d := range defs {
		f.progressRepo.points[d.ID] = d.Points
	}
	f.handler = NewEvaluateAchievementsHandler(
		f.defRepo, f.progressRepo, f.store, f.publisher, nil,
	)
	return f
}

func reviewDefinition(t *testing.T, id string, target int) *achievement.Definition {
	t.Helper()
	def, err := achievement.NewDefinition(
		id, "Critic", achievement.CategoryContent, "",
		achievement.Criteria{
			StatType:   achievement.StatReviewCount,
			Target:     target,
			Comparison: achievement.ComparisonGreaterThan,
		},
		25, achievement.RarityUncommon,
	)
	require.NoError(t, err)
	return def
}

func gameDefinition(t *testing.T, id string, gameID shared.GameID, target int) *achievement.Definition {
	t.Helper()
	def, err := achievement.NewDefinition(
		id, "Marathon", achievement.CategoryGameSpecific, gameID,
		achievement.Criteria{
			StatType:   achievement.StatHoursPlayed,
			Target:     target,
			Comparison: achievement.ComparisonGreaterThan,
		},
		50, achievement.RarityRare,
	)
	require.NoError(t, err)
	return def
}

func (f *evaluateFixture) addReviews(userID shared.UserID, n int) {
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		f.store.reviews = append(f.store.reviews, activity.ReviewRecord{
			UserID: userID, GameID: "g1", Rating: 4, CreatedAt: now, IsActive: true,
		})
	}
}

func (f *evaluateFixture) evaluate(t *testing.T, userID, gameID string) *EvaluateAchievementsResult {
	t.Helper()
	res, err := f.handler.Handle(context.Background(), EvaluateAchievementsCommand{
		UserID: userID,
		GameID: gameID,
	})
	require.NoError(t, err)
	return res
}

// ──────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────

func TestEvaluateAchievements_UnlocksExactlyOnce(t *testing.T) {
	f := newEvaluateFixture(t, reviewDefinition(t, "ach-critic", 3))
	f.addReviews("alice", 5)

	res := f.evaluate(t, "alice", "")
	assert.Equal(t, 1, res.Tracked)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, "ach-critic", res.Unlocked[0].Transition.AchievementID)

	// Re-running the evaluation must not fire the unlock again.
	res = f.evaluate(t, "alice", "")
	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, res.Unlocked)

	counts := f.publisher.typeCounts()
	assert.Equal(t, 1, counts[shared.EventAchievementUnlocked])
}

func TestEvaluateAchievements_TracksBelowTarget(t *testing.T) {
	f := newEvaluateFixture(t, reviewDefinition(t, "ach-critic", 10))
	f.addReviews("alice", 3)

	res := f.evaluate(t, "alice", "")
	assert.Equal(t, 1, res.Tracked)
	assert.Empty(t, res.Unlocked)

	p, err := f.progressRepo.GetProgress(context.Background(), "alice", "ach-critic")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Current)
	assert.Equal(t, 30, p.Percentage)
	assert.False(t, p.IsUnlocked)
}

func TestEvaluateAchievements_GameScopedEligibility(t *testing.T) {
	f := newEvaluateFixture(t, gameDefinition(t, "ach-marathon", "game-1", 10))
	now := time.Now().UTC()
	f.store.plays = append(f.store.plays,
		activity.PlayRecord{UserID: "alice", GameID: "game-1", HoursPlayed: 40, LastPlayed: now},
		activity.PlayRecord{UserID: "alice", GameID: "game-2", HoursPlayed: 40, LastPlayed: now},
	)

	// Evaluating in the context of another game never touches the
	// game-1 achievement, no matter the user's stats there.
	res := f.evaluate(t, "alice", "game-2")
	assert.Zero(t, res.Eligible)
	assert.Empty(t, res.Unlocked)

	// Same for a non-game evaluation pass.
	res = f.evaluate(t, "alice", "")
	assert.Zero(t, res.Eligible)

	// Only the matching game context unlocks it.
	res = f.evaluate(t, "alice", "game-1")
	assert.Equal(t, 1, res.Eligible)
	require.Len(t, res.Unlocked, 1)
}

func TestEvaluateAchievements_RacingUnlockIsNotOwned(t *testing.T) {
	f := newEvaluateFixture(t, reviewDefinition(t, "ach-critic", 3))
	f.addReviews("alice", 5)
	// A concurrent evaluation committed the unlock a minute ago.
	f.progressRepo.concurrentUnlockAt = time.Now().UTC().Add(-time.Minute)

	res := f.evaluate(t, "alice", "")
	assert.Equal(t, 1, res.Tracked)
	assert.Empty(t, res.Unlocked, "the racing loser must not notify")
	assert.Zero(t, f.publisher.typeCounts()[shared.EventAchievementUnlocked])
}

func TestEvaluateAchievements_PerDefinitionFailureContained(t *testing.T) {
	f := newEvaluateFixture(t,
		reviewDefinition(t, "ach-broken", 3),
		reviewDefinition(t, "ach-critic", 3),
	)
	f.addReviews("alice", 5)
	f.progressRepo.saveErrFor["ach-broken"] = errors.New("constraint violation")

	res := f.evaluate(t, "alice", "")
	assert.Equal(t, 2, res.Eligible)
	require.Len(t, res.Unlocked, 1, "the healthy definition still evaluates")
	assert.Equal(t, "ach-critic", res.Unlocked[0].Transition.AchievementID)
}

func TestEvaluateAchievements_SnapshotAssembled(t *testing.T) {
	f := newEvaluateFixture(t)
	now := time.Now().UTC()
	f.store.plays = append(f.store.plays,
		activity.PlayRecord{UserID: "alice", GameID: "g1", HoursPlayed: 12, LastPlayed: now},
		activity.PlayRecord{UserID: "alice", GameID: "g2", HoursPlayed: 8, LastPlayed: now},
	)
	f.addReviews("alice", 2)
	f.store.posts["alice"] = 7
	f.store.friends["alice"] = 4

	res := f.evaluate(t, "alice", "")
	assert.Equal(t, 2, res.Snapshot.GamesPlayed)
	assert.InDelta(t, 20.0, res.Snapshot.HoursPlayed, 0.0001)
	assert.Equal(t, 2, res.Snapshot.ReviewCount)
	assert.Equal(t, 7, res.Snapshot.ForumPosts)
	assert.Equal(t, 4, res.Snapshot.FriendsCount)
}

func TestEvaluateAchievements_UnlockFeedsAchievementStats(t *testing.T) {
	f := newEvaluateFixture(t, reviewDefinition(t, "ach-critic", 3))
	f.addReviews("alice", 5)
	f.evaluate(t, "alice", "")

	// The next snapshot sees the unlock, which is what lets
	// meta-achievements over achievements_unlocked chain.
	res := f.evaluate(t, "alice", "")
	assert.Equal(t, 1, res.Snapshot.AchievementsUnlocked)
	assert.Equal(t, 25, res.Snapshot.TotalPoints)
}

func TestEvaluateAchievements_ProgressAdvanceEmitsEvent(t *testing.T) {
	f := newEvaluateFixture(t, reviewDefinition(t, "ach-critic", 10))
	f.addReviews("alice", 3)
	f.evaluate(t, "alice", "")
	assert.Zero(t, f.publisher.typeCounts()[shared.EventProgressUpdated],
		"creating the record is tracking, not an advance")

	f.addReviews("alice", 2)
	res := f.evaluate(t, "alice", "")
	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, res.Unlocked)
	require.Equal(t, 1, f.publisher.typeCounts()[shared.EventProgressUpdated])

	var event shared.ProgressUpdatedEvent
	for _, e := range f.publisher.events {
		if pe, ok := e.(shared.ProgressUpdatedEvent); ok {
			event = pe
		}
	}
	assert.Equal(t, "ach-critic", event.AchievementID)
	assert.Equal(t, 5, event.Current)
	assert.Equal(t, 50, event.Percentage)

	// A cycle that moves nothing stays silent.
	f.evaluate(t, "alice", "")
	assert.Equal(t, 1, f.publisher.typeCounts()[shared.EventProgressUpdated])
}

func TestEvaluateAchievements_Validation(t *testing.T) {
	f := newEvaluateFixture(t)

	_, err := f.handler.Handle(context.Background(), EvaluateAchievementsCommand{})
	assert.Error(t, err)
}
