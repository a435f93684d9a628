package achievement

import (
	"context"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// DefinitionRepository reads achievement reference data. Definitions are
// administrator-owned; the engine only lists them.
type DefinitionRepository interface {
	// GetByID returns one definition.
	GetByID(ctx context.Context, id string) (*Definition, error)

	// ListActive returns active definitions, optionally narrowed to one
	// game (empty gameID = all). Game-scoped definitions for other games
	// are still returned; eligibility filtering happens in the evaluator.
	ListActive(ctx context.Context, gameID shared.GameID) ([]*Definition, error)
}

// ProgressRepository stores per-user progress records.
//
// Implementations must serialize writes per (user, achievement): the upsert
// guards the unlock columns with WHERE NOT is_unlocked so that two racing
// evaluations commit the unlock row transition at most once.
type ProgressRepository interface {
	// GetProgress returns the record for one (user, achievement) pair.
	GetProgress(ctx context.Context, userID shared.UserID, achievementID string) (*Progress, error)

	// ListByUser returns all progress records of a user.
	ListByUser(ctx context.Context, userID shared.UserID) ([]*Progress, error)

	// CountUnlocked returns the number of unlocked achievements for a user,
	// optionally narrowed to one game via the definition's scope.
	CountUnlocked(ctx context.Context, userID shared.UserID, gameID shared.GameID) (int, error)

	// SumUnlockedPoints returns the total definition points a user has
	// unlocked. Feeds the achievements metric aggregator.
	SumUnlockedPoints(ctx context.Context, userID shared.UserID, gameID shared.GameID) (int, error)

	// ListUnlockedStats returns, per user, the count of unlocked
	// achievements and the sum of their definition points, optionally
	// narrowed to one game. Batch input of the achievements aggregator.
	ListUnlockedStats(ctx context.Context, gameID shared.GameID) ([]UnlockedStats, error)

	// Save upserts a progress record. Returns the persisted state: if a
	// concurrent writer already unlocked the pair, the stored unlock wins
	// and the caller must treat its own transition as lost.
	Save(ctx context.Context, p *Progress) (*Progress, error)
}

// UnlockedStats is a per-user reduction of unlocked achievements.
type UnlockedStats struct {
	UserID shared.UserID
	Count  int
	Points int
}
