package projections

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

func viewDefinition(t *testing.T) *leaderboard.Definition {
	t.Helper()
	def, err := leaderboard.NewDefinition(
		"lb-hours", "Most Hours Played",
		leaderboard.ScopeGlobal, "",
		leaderboard.MetricHoursPlayed,
		leaderboard.DirectionHighestWins,
		leaderboard.RefreshHourly,
	)
	require.NoError(t, err)
	return def
}

// rankedEntries builds n entries with contiguous ranks and descending scores.
func rankedEntries(n int) []*leaderboard.Entry {
	now := time.Now().UTC()
	out := make([]*leaderboard.Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &leaderboard.Entry{
			LeaderboardID: "lb-hours",
			UserID:        shared.UserID(fmt.Sprintf("user-%02d", i+1)),
			Score:         shared.Score(100 - i),
			Rank:          leaderboard.Rank(i + 1),
			Metadata:      leaderboard.Metadata{"hours_played": float64(100 - i)},
			FirstScoredAt: now,
			LastUpdatedAt: now,
		})
	}
	return out
}

func TestLeaderboardView_ApplyAndGetTop(t *testing.T) {
	view := NewLeaderboardView()
	require.NoError(t, view.Apply(viewDefinition(t), rankedEntries(5)))

	top, ok := view.GetTop("lb-hours", 3)
	require.True(t, ok)
	require.Len(t, top, 3)
	assert.Equal(t, "user-01", top[0].UserID)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, 100.0, top[0].Score)
	assert.Equal(t, 3, top[2].Rank)
}

func TestLeaderboardView_GetTopUnknownBoard(t *testing.T) {
	view := NewLeaderboardView()
	_, ok := view.GetTop("nope", 10)
	assert.False(t, ok)
}

func TestLeaderboardView_ReadsReturnCopies(t *testing.T) {
	view := NewLeaderboardView()
	require.NoError(t, view.Apply(viewDefinition(t), rankedEntries(2)))

	top, ok := view.GetTop("lb-hours", 1)
	require.True(t, ok)
	top[0].Score = -1
	top[0].Metadata["hours_played"] = -1

	again, ok := view.GetTop("lb-hours", 1)
	require.True(t, ok)
	assert.Equal(t, 100.0, again[0].Score)
	assert.Equal(t, 100.0, again[0].Metadata["hours_played"])
}

func TestLeaderboardView_GetPage(t *testing.T) {
	view := NewLeaderboardView()
	require.NoError(t, view.Apply(viewDefinition(t), rankedEntries(25)))

	page, ok := view.GetPage("lb-hours", shared.Pagination{Page: 2, PageSize: 10})
	require.True(t, ok)
	require.Len(t, page.Entries, 10)
	assert.Equal(t, 11, page.Entries[0].Rank)
	assert.Equal(t, 25, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)

	// Last partial page.
	page, ok = view.GetPage("lb-hours", shared.Pagination{Page: 3, PageSize: 10})
	require.True(t, ok)
	assert.Len(t, page.Entries, 5)

	// Past the end: empty, not an error.
	page, ok = view.GetPage("lb-hours", shared.Pagination{Page: 9, PageSize: 10})
	require.True(t, ok)
	assert.Empty(t, page.Entries)
}

func TestLeaderboardView_GetUserEntry(t *testing.T) {
	view := NewLeaderboardView()
	require.NoError(t, view.Apply(viewDefinition(t), rankedEntries(5)))

	entry, ok := view.GetUserEntry("lb-hours", "user-04")
	require.True(t, ok)
	assert.Equal(t, 4, entry.Rank)

	_, ok = view.GetUserEntry("lb-hours", "stranger")
	assert.False(t, ok)
}

func TestLeaderboardView_GetNeighbors(t *testing.T) {
	view := NewLeaderboardView()
	require.NoError(t, view.Apply(viewDefinition(t), rankedEntries(10)))

	// Middle of the board: full window.
	neighbors, ok := view.GetNeighbors("lb-hours", "user-05", 2)
	require.True(t, ok)
	require.Len(t, neighbors, 5)
	assert.Equal(t, 3, neighbors[0].Rank)
	assert.Equal(t, 7, neighbors[4].Rank)

	// Top of the board: window clipped at rank 1.
	neighbors, ok = view.GetNeighbors("lb-hours", "user-01", 2)
	require.True(t, ok)
	require.Len(t, neighbors, 3)
	assert.Equal(t, 1, neighbors[0].Rank)

	// Bottom of the board: window clipped at rank N.
	neighbors, ok = view.GetNeighbors("lb-hours", "user-10", 2)
	require.True(t, ok)
	require.Len(t, neighbors, 3)
	assert.Equal(t, 10, neighbors[2].Rank)

	_, ok = view.GetNeighbors("lb-hours", "stranger", 2)
	assert.False(t, ok)
}

func TestLeaderboardView_VersionAdvancesPerApply(t *testing.T) {
	view := NewLeaderboardView()
	def := viewDefinition(t)

	require.NoError(t, view.Apply(def, rankedEntries(3)))
	meta, ok := view.Metadata("lb-hours")
	require.True(t, ok)
	assert.Equal(t, int64(1), meta.Version)
	assert.Equal(t, 3, meta.EntryCount)

	require.NoError(t, view.Apply(def, rankedEntries(4)))
	meta, ok = view.Metadata("lb-hours")
	require.True(t, ok)
	assert.Equal(t, int64(2), meta.Version)
	assert.Equal(t, 4, meta.EntryCount)
}

func TestLeaderboardView_Remove(t *testing.T) {
	view := NewLeaderboardView()
	require.NoError(t, view.Apply(viewDefinition(t), rankedEntries(3)))

	view.Remove("lb-hours")
	_, ok := view.GetTop("lb-hours", 10)
	assert.False(t, ok)
	assert.Empty(t, view.Boards())
}

func TestLeaderboardView_ApplyNilDefinition(t *testing.T) {
	view := NewLeaderboardView()
	assert.ErrorIs(t, view.Apply(nil, nil), ErrNilDefinition)
}
