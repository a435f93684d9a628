package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAchievement(t *testing.T, target int) *Definition {
	t.Helper()
	def, err := NewDefinition("ach-reviews", "Critic", CategoryContent, "", Criteria{
		StatType:   StatReviewCount,
		Target:     target,
		Comparison: ComparisonGreaterThan,
	}, 25, RarityUncommon)
	require.NoError(t, err)
	return def
}

func TestNewProgress_ImmediateUnlock(t *testing.T) {
	def := testAchievement(t, 10)
	now := time.Now().UTC()

	p, transition, err := NewProgress("alice", def, 12, now)
	require.NoError(t, err)
	require.NotNil(t, transition)

	assert.True(t, p.IsUnlocked)
	assert.Equal(t, now, p.UnlockedAt)
	assert.Equal(t, 100, p.Percentage)
	assert.Equal(t, "ach-reviews", transition.AchievementID)
}

func TestNewProgress_BelowTarget(t *testing.T) {
	def := testAchievement(t, 10)
	now := time.Now().UTC()

	p, transition, err := NewProgress("alice", def, 3, now)
	require.NoError(t, err)
	assert.Nil(t, transition)
	assert.False(t, p.IsUnlocked)
	assert.Equal(t, 30, p.Percentage)
	assert.True(t, p.UnlockedAt.IsZero())
}

func TestProgress_UnlockIsOneShot(t *testing.T) {
	def := testAchievement(t, 10)
	now := time.Now().UTC()

	p, _, err := NewProgress("alice", def, 8, now)
	require.NoError(t, err)

	transition := p.Update(10, now.Add(time.Minute))
	require.NotNil(t, transition, "crossing the target must fire the transition")
	unlockedAt := p.UnlockedAt

	// Every later update with a full bar is silent and UnlockedAt is frozen.
	for i := 2; i < 5; i++ {
		tr := p.Update(10+i, now.Add(time.Duration(i)*time.Minute))
		assert.Nil(t, tr)
		assert.True(t, p.IsUnlocked)
		assert.Equal(t, unlockedAt, p.UnlockedAt)
		assert.Equal(t, 100, p.Percentage)
	}
}

func TestProgress_UnlockIsMonotonic(t *testing.T) {
	def := testAchievement(t, 10)
	now := time.Now().UTC()

	p, transition, err := NewProgress("alice", def, 15, now)
	require.NoError(t, err)
	require.NotNil(t, transition)

	// A stale lower reading must not regress the bar or revert the unlock.
	tr := p.Update(4, now.Add(time.Minute))
	assert.Nil(t, tr)
	assert.True(t, p.IsUnlocked)
	assert.Equal(t, 15, p.Current, "current never decreases")
	assert.Equal(t, 100, p.Percentage)
	assert.Equal(t, now, p.UnlockedAt)
	require.NoError(t, p.Validate())
}

func TestProgress_PercentageClamped(t *testing.T) {
	def := testAchievement(t, 50)
	now := time.Now().UTC()

	p, _, err := NewProgress("alice", def, 75, now)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Percentage, "75/50 clamps to 100, not 150")

	tests := []struct {
		current int
		target  int
		want    int
	}{
		{0, 50, 0},
		{25, 50, 50},
		{49, 50, 98},
		{50, 50, 100},
		{200, 50, 100},
		{1, 3, 33},
		{2, 3, 67},
		{10, 0, 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, clampPercentage(tc.current, tc.target),
			"clampPercentage(%d, %d)", tc.current, tc.target)
	}
}

func TestDefinition_EligibilityScoping(t *testing.T) {
	gameScoped, err := NewDefinition("ach-g1", "G1 Master", CategoryGameSpecific, "game-1", Criteria{
		StatType:   StatHoursPlayed,
		Target:     100,
		Comparison: ComparisonGreaterThan,
	}, 50, RarityRare)
	require.NoError(t, err)

	assert.True(t, gameScoped.IsEligibleFor("game-1"))
	assert.False(t, gameScoped.IsEligibleFor("game-2"), "game-scoped definition is never eligible for another game")
	assert.False(t, gameScoped.IsEligibleFor(""), "platform-wide evaluation excludes game-scoped definitions")

	global, err := NewDefinition("ach-global", "Socialite", CategorySocial, "", Criteria{
		StatType:   StatFriendsCount,
		Target:     10,
		Comparison: ComparisonGreaterThan,
	}, 10, RarityCommon)
	require.NoError(t, err)

	assert.True(t, global.IsEligibleFor(""))
	assert.True(t, global.IsEligibleFor("game-2"))

	global.IsActive = false
	assert.False(t, global.IsEligibleFor(""), "inactive definitions are never eligible")
}

func TestDefinition_CustomCriteriaNotEvaluable(t *testing.T) {
	def := &Definition{
		ID:       "ach-custom",
		Name:     "Mystery",
		Category: CategorySpecial,
		Criteria: Criteria{StatType: StatReviewCount, Target: 5, Comparison: ComparisonCustom},
		Rarity:   RarityLegendary,
		IsActive: true,
	}
	assert.False(t, def.IsEligibleFor(""), "custom comparison cannot be evaluated automatically")
}

func TestComparison_Apply(t *testing.T) {
	assert.True(t, ComparisonGreaterThan.Apply(10, 10), "greater_than is inclusive")
	assert.True(t, ComparisonGreaterThan.Apply(11, 10))
	assert.False(t, ComparisonGreaterThan.Apply(9, 10))

	assert.True(t, ComparisonEquals.Apply(10, 10))
	assert.False(t, ComparisonEquals.Apply(11, 10))

	assert.True(t, ComparisonLessThan.Apply(10, 10), "less_than is inclusive")
	assert.True(t, ComparisonLessThan.Apply(9, 10))
	assert.False(t, ComparisonLessThan.Apply(11, 10))

	assert.False(t, ComparisonCustom.Apply(10, 10))
}
