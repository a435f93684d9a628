package shared

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Identifiers
// ═══════════════════════════════════════════════════════════════════════════

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// normalizeUUID trims and lowercases raw, rejecting anything that is not a
// UUID. Both ID types funnel through here so they validate identically.
func normalizeUUID(raw, op, message string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if !uuidPattern.MatchString(id) {
		return "", NewDomainError("shared", op, ErrInvalidID, message)
	}
	return id, nil
}

// UserID identifies a platform user. Always a lowercased UUID.
type UserID string

func (u UserID) IsValid() bool  { return uuidPattern.MatchString(string(u)) }
func (u UserID) String() string { return string(u) }
func (u UserID) IsEmpty() bool  { return u == "" }

// NewUserID validates and normalizes a raw user ID.
func NewUserID(id string) (UserID, error) {
	s, err := normalizeUUID(id, "NewUserID", "invalid user ID format")
	return UserID(s), err
}

// GameID identifies a game. Empty means "not game-scoped": global
// leaderboards and platform-wide achievements carry no game.
type GameID string

func (g GameID) IsValid() bool  { return uuidPattern.MatchString(string(g)) }
func (g GameID) String() string { return string(g) }
func (g GameID) IsEmpty() bool  { return g == "" }

// NewGameID validates and normalizes a raw game ID.
func NewGameID(id string) (GameID, error) {
	s, err := normalizeUUID(id, "NewGameID", "invalid game ID format")
	return GameID(s), err
}

// ═══════════════════════════════════════════════════════════════════════════
// Score
// ═══════════════════════════════════════════════════════════════════════════

// Score is a leaderboard score. Non-negative; fractional values occur for
// hour-based metrics.
type Score float64

func (s Score) IsValid() bool                { return s >= 0 }
func (s Score) Float64() float64             { return float64(s) }
func (s Score) GreaterThan(other Score) bool { return s > other }

// String drops the fractional part of integral scores.
func (s Score) String() string {
	if whole := int64(s); s == Score(whole) {
		return fmt.Sprintf("%d", whole)
	}
	return fmt.Sprintf("%.2f", float64(s))
}

// NewScore rejects negative values.
func NewScore(value float64) (Score, error) {
	if value < 0 {
		return 0, NewDomainError("shared", "NewScore", ErrNegativeValue, "score cannot be negative")
	}
	return Score(value), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Rating
// ═══════════════════════════════════════════════════════════════════════════

// Rating is a review star rating.
type Rating int

const (
	MinRating Rating = 1
	MaxRating Rating = 5
)

func (r Rating) IsValid() bool { return r >= MinRating && r <= MaxRating }
func (r Rating) Int() int      { return int(r) }

// NewRating rejects values outside 1-5.
func NewRating(value int) (Rating, error) {
	r := Rating(value)
	if !r.IsValid() {
		return 0, ErrInvalidRating
	}
	return r, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange is a period with a mandatory start. A zero To leaves the range
// open-ended, which is how event leaderboards without a declared end behave.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && (t.To.IsZero() || !t.From.After(t.To))
}

func (t TimeRange) IsOpenEnded() bool { return t.To.IsZero() }

// Duration is zero for open-ended ranges.
func (t TimeRange) Duration() time.Duration {
	if t.IsOpenEnded() {
		return 0
	}
	return t.To.Sub(t.From)
}

// Contains reports whether tm falls inside the range, bounds inclusive.
func (t TimeRange) Contains(tm time.Time) bool {
	if tm.Before(t.From) {
		return false
	}
	return t.IsOpenEnded() || !tm.After(t.To)
}

// NewTimeRange rejects a start after the end.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	tr := TimeRange{From: from, To: to}
	if !tr.IsValid() {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrInvalidInput, "'from' must be before 'to'")
	}
	return tr, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination
// ═══════════════════════════════════════════════════════════════════════════

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination is a 1-based page request. The zero value reads as the first
// default-sized page.
type Pagination struct {
	Page     int
	PageSize int
}

// Limit clamps PageSize into [1, MaxPageSize], defaulting when unset.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	}
	return p.PageSize
}

// Offset converts the page number into a row offset.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// NewPagination clamps both knobs into range.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	p := Pagination{Page: page, PageSize: pageSize}
	p.PageSize = p.Limit()
	return p
}
