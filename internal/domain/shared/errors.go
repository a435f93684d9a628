// Package shared holds the domain vocabulary every other domain package
// builds on: identifiers, scores, events, and the error taxonomy. It imports
// nothing outside the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Repositories and handlers match on these with
// errors.Is rather than on the named errors below.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrInvalidState           = errors.New("invalid state")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrExternalService        = errors.New("external service error")
)

// DomainError ties an error to the domain and operation it came from.
// Kind carries the sentinel for errors.Is matching; Err, when set, is the
// wrapped cause.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches against both the kind and the wrapped cause, so a repository
// error stays matchable as its sentinel even after wrapping.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError builds a DomainError without a wrapped cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError builds a DomainError around an underlying error.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Named errors returned by the leaderboard domain.
var (
	ErrLeaderboardNotFound     = NewDomainError("leaderboard", "Find", ErrNotFound, "leaderboard not found")
	ErrEntryNotFound           = NewDomainError("leaderboard", "FindEntry", ErrNotFound, "leaderboard entry not found")
	ErrDuplicateEntry          = NewDomainError("leaderboard", "Upsert", ErrAlreadyExists, "entry already exists for this user")
	ErrUnknownMetric           = NewDomainError("leaderboard", "ComputeScores", ErrInvalidInput, "unknown leaderboard metric")
	ErrInvalidScoringDirection = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid scoring direction")
)

// Named errors returned by the achievement domain.
var (
	ErrAchievementNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement definition not found")
	ErrProgressNotFound    = NewDomainError("achievement", "FindProgress", ErrNotFound, "progress record not found")
	ErrInvalidRating       = NewDomainError("achievement", "Validate", ErrValueOutOfRange, "rating must be between 1 and 5")
)

// Named errors returned by the activity read layer.
var (
	ErrStatTypeUnknown = NewDomainError("activity", "Snapshot", ErrInvalidInput, "unknown stat type")
)

// IsNotFound reports whether err means a missing entity, at any wrap depth.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
