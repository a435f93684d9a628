package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserID_NormalizesCaseAndWhitespace(t *testing.T) {
	id, err := NewUserID("  0B7E2C4A-91D3-4F6E-8A25-C1D9E0F3B7A2 ")

	require.NoError(t, err)
	assert.Equal(t, UserID("0b7e2c4a-91d3-4f6e-8a25-c1d9e0f3b7a2"), id)
}

func TestNewUserID_RejectsNonUUID(t *testing.T) {
	_, err := NewUserID("player-42")

	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestGameID_EmptyMeansNotGameScoped(t *testing.T) {
	assert.True(t, GameID("").IsEmpty())
	assert.False(t, GameID("").IsValid())

	_, err := NewGameID("")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestNewScore_RejectsNegativeValues(t *testing.T) {
	_, err := NewScore(-1)
	assert.ErrorIs(t, err, ErrNegativeValue)

	s, err := NewScore(12.5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, s.Float64())
}

func TestScore_StringDropsIntegralFraction(t *testing.T) {
	assert.Equal(t, "1500", Score(1500).String())
	assert.Equal(t, "12.50", Score(12.5).String())
}

func TestNewRating_EnforcesStarRange(t *testing.T) {
	_, err := NewRating(0)
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = NewRating(6)
	assert.ErrorIs(t, err, ErrInvalidRating)

	r, err := NewRating(4)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Int())
}

func TestTimeRange_OpenEndedContainsAnyLaterTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := TimeRange{From: start}

	assert.True(t, tr.IsOpenEnded())
	assert.True(t, tr.Contains(start.AddDate(10, 0, 0)))
	assert.False(t, tr.Contains(start.Add(-time.Second)))
	assert.Zero(t, tr.Duration())
}

func TestNewTimeRange_RejectsInvertedBounds(t *testing.T) {
	now := time.Now()

	_, err := NewTimeRange(now, now.Add(-time.Hour))

	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPagination_ZeroValueReadsFirstDefaultPage(t *testing.T) {
	var p Pagination

	assert.Equal(t, 0, p.Offset())
	assert.Equal(t, DefaultPageSize, p.Limit())
}

func TestPagination_ClampsOversizedPages(t *testing.T) {
	p := NewPagination(3, 500)

	assert.Equal(t, MaxPageSize, p.Limit())
	assert.Equal(t, 2*MaxPageSize, p.Offset())
}
