package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_MatchesItsKind(t *testing.T) {
	assert.ErrorIs(t, ErrLeaderboardNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrDuplicateEntry, ErrAlreadyExists)
	assert.ErrorIs(t, ErrUnknownMetric, ErrInvalidInput)
	assert.ErrorIs(t, ErrInvalidRating, ErrValueOutOfRange)
}

func TestDomainError_WrappedCauseStaysMatchable(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError("leaderboard", "Refresh", ErrExternalService, "store read failed", cause)

	assert.ErrorIs(t, err, ErrExternalService)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "leaderboard.Refresh")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDomainError_SurvivesFurtherWrapping(t *testing.T) {
	err := fmt.Errorf("tick failed: %w", ErrProgressNotFound)

	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(errors.New("unrelated")))
}
