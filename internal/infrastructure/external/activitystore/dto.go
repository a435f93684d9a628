package activitystore

import (
	"fmt"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/activity"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the standard envelope of the activity service.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta carries pagination info for list endpoints.
type Meta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// APIErrorDTO is the error body of the activity service.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	return fmt.Sprintf("activity service error %s: %s", e.Code, e.Message)
}

// PlayTrackingDTO is one play-tracking row on the wire.
type PlayTrackingDTO struct {
	UserID      string     `json:"user_id"`
	GameID      string     `json:"game_id"`
	HoursPlayed float64    `json:"hours_played"`
	LastPlayed  *time.Time `json:"last_played,omitempty"`
	IsDeleted   bool       `json:"is_deleted"`
}

// ReviewDTO is one review row on the wire.
type ReviewDTO struct {
	UserID    string    `json:"user_id"`
	GameID    string    `json:"game_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// UserCountDTO is one grouped per-user count on the wire.
type UserCountDTO struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// CountDTO is a single scalar count payload.
type CountDTO struct {
	Count int `json:"count"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func playRecordFromDTO(dto PlayTrackingDTO) activity.PlayRecord {
	rec := activity.PlayRecord{
		UserID:      shared.UserID(dto.UserID),
		GameID:      shared.GameID(dto.GameID),
		HoursPlayed: dto.HoursPlayed,
		IsDeleted:   dto.IsDeleted,
	}
	if dto.LastPlayed != nil {
		rec.LastPlayed = *dto.LastPlayed
	}
	return rec
}

func reviewRecordFromDTO(dto ReviewDTO) activity.ReviewRecord {
	return activity.ReviewRecord{
		UserID:    shared.UserID(dto.UserID),
		GameID:    shared.GameID(dto.GameID),
		Rating:    shared.Rating(dto.Rating),
		CreatedAt: dto.CreatedAt,
		IsActive:  dto.IsActive,
	}
}

func userCountsFromDTO(dtos []UserCountDTO) []activity.UserCount {
	out := make([]activity.UserCount, len(dtos))
	for i, dto := range dtos {
		out[i] = activity.UserCount{
			UserID: shared.UserID(dto.UserID),
			Count:  dto.Count,
		}
	}
	return out
}
