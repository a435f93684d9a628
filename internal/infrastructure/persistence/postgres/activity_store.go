// Package postgres implements the PostgreSQL persistence layer for GameHub.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sam399/gamehub-engine/internal/domain/activity"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ActivityStore implements activity.Store over the platform's read models:
// play tracking, reviews, forum posts and friend lists. All queries exclude
// soft-deleted and inactive source rows; an empty filter means no
// restriction.
type ActivityStore struct {
	conn *Connection
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(conn *Connection) *ActivityStore {
	return &ActivityStore{conn: conn}
}

// ──────────────────────────────────────────────────────────────────────────────
// PLAY TRACKING
// ──────────────────────────────────────────────────────────────────────────────

// ListPlayTracking returns play records, optionally filtered by user and/or
// game.
func (s *ActivityStore) ListPlayTracking(ctx context.Context, userID shared.UserID, gameID shared.GameID) ([]activity.PlayRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT user_id, game_id, hours_played, last_played, is_deleted
		FROM play_tracking
		WHERE NOT is_deleted
		  AND ($1::uuid IS NULL OR user_id = $1)
		  AND ($2::uuid IS NULL OR game_id = $2)
		ORDER BY user_id, game_id
	`, nullString(userID.String()), nullString(gameID.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to list play tracking: %w", err)
	}
	defer rows.Close()

	records := make([]activity.PlayRecord, 0)
	for rows.Next() {
		var (
			r        activity.PlayRecord
			user, gm string
		)
		if err := rows.Scan(&user, &gm, &r.HoursPlayed, &r.LastPlayed, &r.IsDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan play record: %w", err)
		}
		r.UserID = shared.UserID(user)
		r.GameID = shared.GameID(gm)
		records = append(records, r)
	}

	return records, rows.Err()
}

// ──────────────────────────────────────────────────────────────────────────────
// REVIEWS
// ──────────────────────────────────────────────────────────────────────────────

// ListActiveReviews returns active reviews, optionally filtered by user
// and/or game.
func (s *ActivityStore) ListActiveReviews(ctx context.Context, userID shared.UserID, gameID shared.GameID) ([]activity.ReviewRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT user_id, game_id, rating, created_at, is_active
		FROM reviews
		WHERE is_active
		  AND ($1::uuid IS NULL OR user_id = $1)
		  AND ($2::uuid IS NULL OR game_id = $2)
		ORDER BY user_id, created_at
	`, nullString(userID.String()), nullString(gameID.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	records := make([]activity.ReviewRecord, 0)
	for rows.Next() {
		var (
			r        activity.ReviewRecord
			user, gm string
			rating   int
		)
		if err := rows.Scan(&user, &gm, &rating, &r.CreatedAt, &r.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan review record: %w", err)
		}
		r.UserID = shared.UserID(user)
		r.GameID = shared.GameID(gm)
		r.Rating = shared.Rating(rating)
		records = append(records, r)
	}

	return records, rows.Err()
}

// ──────────────────────────────────────────────────────────────────────────────
// FORUM POSTS
// ──────────────────────────────────────────────────────────────────────────────

// CountActivePosts returns the number of active forum posts for one user.
func (s *ActivityStore) CountActivePosts(ctx context.Context, userID shared.UserID) (int, error) {
	var count int
	err := s.conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM forum_posts WHERE is_active AND user_id = $1
	`, userID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count forum posts: %w", err)
	}

	return count, nil
}

// ListActivePostCounts returns active post counts grouped by user.
func (s *ActivityStore) ListActivePostCounts(ctx context.Context) ([]activity.UserCount, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT user_id, COUNT(*)
		FROM forum_posts
		WHERE is_active
		GROUP BY user_id
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list post counts: %w", err)
	}
	defer rows.Close()

	return collectUserCounts(rows)
}

// ──────────────────────────────────────────────────────────────────────────────
// FRIEND LISTS
// ──────────────────────────────────────────────────────────────────────────────

// FriendCount returns the size of one user's friend list.
func (s *ActivityStore) FriendCount(ctx context.Context, userID shared.UserID) (int, error) {
	var count int
	err := s.conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM friends WHERE user_id = $1
	`, userID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count friends: %w", err)
	}

	return count, nil
}

// ListFriendCounts returns friend-list sizes grouped by user.
func (s *ActivityStore) ListFriendCounts(ctx context.Context) ([]activity.UserCount, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT user_id, COUNT(*)
		FROM friends
		GROUP BY user_id
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend counts: %w", err)
	}
	defer rows.Close()

	return collectUserCounts(rows)
}

// ──────────────────────────────────────────────────────────────────────────────
// SCANNING
// ──────────────────────────────────────────────────────────────────────────────

func collectUserCounts(rows pgx.Rows) ([]activity.UserCount, error) {
	counts := make([]activity.UserCount, 0)
	for rows.Next() {
		var (
			user string
			c    activity.UserCount
		)
		if err := rows.Scan(&user, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan user count: %w", err)
		}
		c.UserID = shared.UserID(user)
		counts = append(counts, c)
	}

	return counts, rows.Err()
}
