// Package activity contains read models over the external activity stores:
// play tracking, reviews, forum posts and friend lists. The engine only
// reads these streams; mutation belongs to the surrounding platform.
// This is a pure domain layer with zero external dependencies beyond shared.
package activity

import (
	"errors"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// Domain errors for activity package.
var (
	ErrEmptyUserID   = errors.New("activity: user ID cannot be empty")
	ErrNegativeHours = errors.New("activity: hours played cannot be negative")
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAY TRACKING
// ══════════════════════════════════════════════════════════════════════════════

// PlayRecord is one user's tracked playtime for one game.
type PlayRecord struct {
	UserID      shared.UserID
	GameID      shared.GameID
	HoursPlayed float64
	LastPlayed  time.Time
	IsDeleted   bool
}

// IsActive reports whether the record counts toward scores.
// Soft-deleted records and negative hour readings are excluded.
func (p PlayRecord) IsActive() bool {
	return !p.IsDeleted && p.HoursPlayed >= 0
}

// PlayStats is a per-user reduction of play records.
type PlayStats struct {
	UserID      shared.UserID
	GamesPlayed int
	HoursPlayed float64
}

// ReducePlayRecords groups play records by user, skipping inactive ones.
// A user with zero active records yields no PlayStats at all, which is how
// they stay off count-based leaderboards until their first tracked game.
func ReducePlayRecords(records []PlayRecord) map[shared.UserID]PlayStats {
	out := make(map[shared.UserID]PlayStats)
	for _, r := range records {
		if !r.IsActive() {
			continue
		}
		s := out[r.UserID]
		s.UserID = r.UserID
		s.GamesPlayed++
		s.HoursPlayed += r.HoursPlayed
		out[r.UserID] = s
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEWS
// ══════════════════════════════════════════════════════════════════════════════

// ReviewRecord is one review written by a user. Inactive reviews (removed
// by moderation or by the author) do not count toward scores.
type ReviewRecord struct {
	UserID    shared.UserID
	GameID    shared.GameID
	Rating    shared.Rating
	CreatedAt time.Time
	IsActive  bool
}

// ReviewStats is a per-user reduction of review records.
type ReviewStats struct {
	UserID        shared.UserID
	ReviewCount   int
	AverageRating float64
}

// ReduceReviewRecords groups active reviews by user.
func ReduceReviewRecords(records []ReviewRecord) map[shared.UserID]ReviewStats {
	sums := make(map[shared.UserID]int)
	counts := make(map[shared.UserID]int)
	for _, r := range records {
		if !r.IsActive {
			continue
		}
		sums[r.UserID] += r.Rating.Int()
		counts[r.UserID]++
	}
	out := make(map[shared.UserID]ReviewStats, len(counts))
	for uid, n := range counts {
		out[uid] = ReviewStats{
			UserID:        uid,
			ReviewCount:   n,
			AverageRating: float64(sums[uid]) / float64(n),
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SOCIAL COUNTS
// ══════════════════════════════════════════════════════════════════════════════

// UserCount pairs a user with a scalar count (forum posts, friends).
type UserCount struct {
	UserID shared.UserID
	Count  int
}
