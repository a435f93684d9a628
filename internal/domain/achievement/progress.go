package achievement

import (
	"errors"
	"math"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER ACHIEVEMENT PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress tracks one user's advancement toward one achievement.
// At most one record exists per (user, achievement) pair.
//
// Unlock is monotonic: once IsUnlocked is true it never reverts, and
// UnlockedAt is written exactly once, the first time percentage reaches 100.
type Progress struct {
	UserID        shared.UserID
	AchievementID string
	Current       int
	Target        int
	Percentage    int
	IsUnlocked    bool
	UnlockedAt    time.Time // zero until unlocked
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UnlockTransition is returned when an Update call crosses the unlock
// boundary. The caller (evaluate cycle) dispatches the notification; the
// state change itself carries no side effects.
type UnlockTransition struct {
	UserID        shared.UserID
	AchievementID string
	UnlockedAt    time.Time
}

// Event converts the transition into a domain event using the definition
// for display fields.
func (t UnlockTransition) Event(def *Definition) shared.AchievementUnlockedEvent {
	name, points, rarity := "", 0, ""
	if def != nil {
		name, points, rarity = def.Name, def.Points, string(def.Rarity)
	}
	return shared.NewAchievementUnlockedEvent(
		t.UserID.String(),
		t.AchievementID,
		name,
		points,
		rarity,
		t.UnlockedAt,
	)
}

// NewProgress creates the first progress record for a (user, achievement)
// pair. The unlock condition is evaluated immediately against the comparison
// so that already-satisfied criteria unlock on creation.
func NewProgress(userID shared.UserID, def *Definition, current int, now time.Time) (*Progress, *UnlockTransition, error) {
	if userID.IsEmpty() {
		return nil, nil, ErrEmptyProgressUser
	}
	if def == nil {
		return nil, nil, ErrEmptyAchievementID
	}
	if current < 0 {
		current = 0
	}

	p := &Progress{
		UserID:        userID,
		AchievementID: def.ID,
		Current:       current,
		Target:        def.Criteria.Target,
		Percentage:    clampPercentage(current, def.Criteria.Target),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var transition *UnlockTransition
	if def.Criteria.Comparison.Apply(current, def.Criteria.Target) {
		p.IsUnlocked = true
		p.UnlockedAt = now
		p.Percentage = 100
		transition = &UnlockTransition{UserID: userID, AchievementID: def.ID, UnlockedAt: now}
	}
	return p, transition, nil
}

// Update applies a new current value, recomputes the clamped percentage and
// performs the one-shot unlock. Returns a non-nil transition only on the
// refresh where percentage first reaches 100; later calls with a full bar
// are no-ops with respect to notification.
//
// Current never decreases: stats are cumulative, and a lower reading (stale
// replica, partial source outage) must not regress the bar or re-arm the
// unlock.
func (p *Progress) Update(current int, now time.Time) *UnlockTransition {
	if current < p.Current {
		current = p.Current
	}
	p.Current = current
	p.UpdatedAt = now

	if p.IsUnlocked {
		// Already unlocked: percentage stays pinned, UnlockedAt untouched.
		p.Percentage = 100
		return nil
	}

	p.Percentage = clampPercentage(current, p.Target)
	if p.Percentage < 100 {
		return nil
	}

	p.IsUnlocked = true
	p.UnlockedAt = now
	return &UnlockTransition{UserID: p.UserID, AchievementID: p.AchievementID, UnlockedAt: now}
}

// Validate checks progress invariants.
func (p *Progress) Validate() error {
	if p.UserID.IsEmpty() {
		return ErrEmptyProgressUser
	}
	if p.AchievementID == "" {
		return ErrEmptyAchievementID
	}
	if p.Target <= 0 {
		return ErrNonPositiveTarget
	}
	if p.Current < 0 {
		return ErrNegativeCurrent
	}
	if p.Percentage < 0 || p.Percentage > 100 {
		return ErrPercentageOutOfRange
	}
	if p.IsUnlocked && p.UnlockedAt.IsZero() {
		return ErrUnlockedAtMissing
	}
	if !p.IsUnlocked && !p.UnlockedAt.IsZero() {
		return ErrUnlockedAtMissing
	}
	return nil
}

// Key returns the uniqueness key of the record.
func (p *Progress) Key() string {
	return p.UserID.String() + ":" + p.AchievementID
}

// clampPercentage computes min(100, round(current/target*100)).
func clampPercentage(current, target int) int {
	if target <= 0 {
		return 0
	}
	pct := int(math.Round(float64(current) / float64(target) * 100))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

var (
	ErrEmptyProgressUser    = errors.New("progress user ID cannot be empty")
	ErrNegativeCurrent      = errors.New("progress current cannot be negative")
	ErrPercentageOutOfRange = errors.New("progress percentage must be within 0..100")
	ErrUnlockedAtMissing    = errors.New("unlockedAt must be set exactly when unlocked")
)
