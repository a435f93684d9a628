package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReducePlayRecords_ExcludesInactiveAndZeroRecordUsers(t *testing.T) {
	now := time.Now().UTC()
	records := []PlayRecord{
		{UserID: "alice", GameID: "g1", HoursPlayed: 10, LastPlayed: now},
		{UserID: "alice", GameID: "g2", HoursPlayed: 5, LastPlayed: now},
		{UserID: "bob", GameID: "g1", HoursPlayed: 3, LastPlayed: now, IsDeleted: true},
		{UserID: "carol", GameID: "g1", HoursPlayed: -1, LastPlayed: now},
	}

	stats := ReducePlayRecords(records)

	require.Len(t, stats, 1, "only users with at least one active record appear")
	alice := stats["alice"]
	assert.Equal(t, 2, alice.GamesPlayed)
	assert.InDelta(t, 15.0, alice.HoursPlayed, 1e-9)

	_, ok := stats["bob"]
	assert.False(t, ok, "soft-deleted records yield no stats")
	_, ok = stats["carol"]
	assert.False(t, ok, "negative hour readings yield no stats")
}

func TestReducePlayRecords_Empty(t *testing.T) {
	stats := ReducePlayRecords(nil)
	assert.Empty(t, stats)
}

func TestReduceReviewRecords(t *testing.T) {
	now := time.Now().UTC()
	records := []ReviewRecord{
		{UserID: "alice", GameID: "g1", Rating: 4, CreatedAt: now, IsActive: true},
		{UserID: "alice", GameID: "g2", Rating: 5, CreatedAt: now, IsActive: true},
		{UserID: "alice", GameID: "g3", Rating: 1, CreatedAt: now, IsActive: false},
		{UserID: "bob", GameID: "g1", Rating: 3, CreatedAt: now, IsActive: true},
	}

	stats := ReduceReviewRecords(records)

	require.Len(t, stats, 2)
	alice := stats["alice"]
	assert.Equal(t, 2, alice.ReviewCount, "inactive reviews do not count")
	assert.InDelta(t, 4.5, alice.AverageRating, 1e-9)

	bob := stats["bob"]
	assert.Equal(t, 1, bob.ReviewCount)
	assert.InDelta(t, 3.0, bob.AverageRating, 1e-9)
}

func TestPlayRecord_IsActive(t *testing.T) {
	assert.True(t, PlayRecord{HoursPlayed: 0}.IsActive(), "zero hours is a valid tracked game")
	assert.False(t, PlayRecord{HoursPlayed: 1, IsDeleted: true}.IsActive())
	assert.False(t, PlayRecord{HoursPlayed: -0.5}.IsActive())
}
