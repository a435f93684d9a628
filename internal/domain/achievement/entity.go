// Package achievement contains the achievement domain model: static
// definitions with unlock criteria, and per-user progress records with a
// monotonic unlock transition.
package achievement

import (
	"errors"
	"strings"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Category classifies an achievement definition.
type Category string

const (
	CategoryGameSpecific Category = "game_specific"
	CategorySocial       Category = "social"
	CategoryContent      Category = "content"
	CategoryProgression  Category = "progression"
	CategorySpecial      Category = "special"
)

// IsValid checks if the category is known.
func (c Category) IsValid() bool {
	switch c {
	case CategoryGameSpecific, CategorySocial, CategoryContent, CategoryProgression, CategorySpecial:
		return true
	}
	return false
}

// Rarity describes how rare an achievement is.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// IsValid checks if the rarity is known.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// StatType names the user statistic an achievement's criteria reads.
type StatType string

const (
	StatGamesPlayed   StatType = "games_played"
	StatHoursPlayed   StatType = "hours_played"
	StatAchievements  StatType = "achievements_unlocked"
	StatReviewCount   StatType = "review_count"
	StatForumPosts    StatType = "forum_posts"
	StatFriendsCount  StatType = "friends_count"
	StatTotalPoints   StatType = "total_points"
	StatCustomDerived StatType = "custom"
)

// IsValid checks if the stat type is known.
func (s StatType) IsValid() bool {
	switch s {
	case StatGamesPlayed, StatHoursPlayed, StatAchievements, StatReviewCount,
		StatForumPosts, StatFriendsCount, StatTotalPoints, StatCustomDerived:
		return true
	}
	return false
}

// Comparison is the operator applied to (current, target).
type Comparison string

const (
	// ComparisonGreaterThan succeeds when current >= target.
	ComparisonGreaterThan Comparison = "greater_than"
	// ComparisonEquals succeeds when current == target.
	ComparisonEquals Comparison = "equals"
	// ComparisonLessThan succeeds when current <= target.
	ComparisonLessThan Comparison = "less_than"
	// ComparisonCustom marks criteria that cannot be evaluated
	// automatically. Definitions carrying it are excluded from eligibility.
	ComparisonCustom Comparison = "custom"
)

// IsValid checks if the comparison is known.
func (c Comparison) IsValid() bool {
	switch c {
	case ComparisonGreaterThan, ComparisonEquals, ComparisonLessThan, ComparisonCustom:
		return true
	}
	return false
}

// IsEvaluable reports whether the comparison can be computed by the engine.
func (c Comparison) IsEvaluable() bool {
	return c.IsValid() && c != ComparisonCustom
}

// Apply evaluates the comparison for the given current and target values.
// greater_than and less_than are inclusive.
func (c Comparison) Apply(current, target int) bool {
	switch c {
	case ComparisonGreaterThan:
		return current >= target
	case ComparisonEquals:
		return current == target
	case ComparisonLessThan:
		return current <= target
	default:
		return false
	}
}

// Criteria is the unlock condition of an achievement definition.
type Criteria struct {
	StatType   StatType
	Target     int
	Comparison Comparison
}

// IsEvaluable reports whether the criteria can be checked automatically.
func (c Criteria) IsEvaluable() bool {
	return c.StatType.IsValid() && c.StatType != StatCustomDerived && c.Comparison.IsEvaluable()
}

// Validate checks criteria invariants.
func (c Criteria) Validate() error {
	if !c.StatType.IsValid() {
		return ErrInvalidStatType
	}
	if !c.Comparison.IsValid() {
		return ErrInvalidComparison
	}
	if c.Target <= 0 {
		return ErrNonPositiveTarget
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STAT SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// StatSnapshot is a point-in-time view of one user's statistics, built from
// the external activity stores right before evaluation.
type StatSnapshot struct {
	UserID               shared.UserID
	GamesPlayed          int
	HoursPlayed          float64
	AchievementsUnlocked int
	ReviewCount          int
	ForumPosts           int
	FriendsCount         int
	TotalPoints          int
	TakenAt              time.Time
}

// Get returns the value for a stat type. Fractional hours are truncated:
// criteria targets are whole numbers.
func (s StatSnapshot) Get(stat StatType) (int, error) {
	switch stat {
	case StatGamesPlayed:
		return s.GamesPlayed, nil
	case StatHoursPlayed:
		return int(s.HoursPlayed), nil
	case StatAchievements:
		return s.AchievementsUnlocked, nil
	case StatReviewCount:
		return s.ReviewCount, nil
	case StatForumPosts:
		return s.ForumPosts, nil
	case StatFriendsCount:
		return s.FriendsCount, nil
	case StatTotalPoints:
		return s.TotalPoints, nil
	default:
		return 0, shared.ErrStatTypeUnknown
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition is static reference data describing one unlockable milestone.
// Changed only by administrators; the engine never mutates it.
type Definition struct {
	ID          string
	Name        string
	Description string
	Category    Category
	GameID      shared.GameID // empty when not game-scoped
	Criteria    Criteria
	Points      int
	Rarity      Rarity
	IsActive    bool
	CreatedAt   time.Time
}

// NewDefinition creates a definition with validation.
func NewDefinition(id, name string, category Category, gameID shared.GameID, criteria Criteria, points int, rarity Rarity) (*Definition, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyAchievementID
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyAchievementName
	}
	if !category.IsValid() {
		return nil, ErrInvalidCategory
	}
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	if points < 0 {
		return nil, ErrNegativePoints
	}
	if !rarity.IsValid() {
		return nil, ErrInvalidRarity
	}
	return &Definition{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Category:  category,
		GameID:    gameID,
		Criteria:  criteria,
		Points:    points,
		Rarity:    rarity,
		IsActive:  true,
		CreatedAt: time.Now(),
	}, nil
}

// IsGameScoped reports whether the definition is bound to one game.
func (d *Definition) IsGameScoped() bool {
	return !d.GameID.IsEmpty()
}

// IsEligibleFor reports whether the definition should be considered when
// evaluating a user's statistics for gameID (empty gameID = platform-wide
// evaluation). A definition is eligible only if it is active, its criteria
// are evaluable, and it is either not game-scoped or scoped to this game.
func (d *Definition) IsEligibleFor(gameID shared.GameID) bool {
	if !d.IsActive {
		return false
	}
	if !d.Criteria.IsEvaluable() {
		return false
	}
	if d.IsGameScoped() {
		return d.GameID == gameID
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrEmptyAchievementID   = errors.New("achievement ID cannot be empty")
	ErrEmptyAchievementName = errors.New("achievement name cannot be empty")
	ErrInvalidCategory      = errors.New("invalid achievement category")
	ErrInvalidRarity        = errors.New("invalid achievement rarity")
	ErrInvalidStatType      = errors.New("invalid criteria stat type")
	ErrInvalidComparison    = errors.New("invalid criteria comparison")
	ErrNonPositiveTarget    = errors.New("criteria target must be positive")
	ErrNegativePoints       = errors.New("achievement points cannot be negative")
)
