// Package activity contains read models over the external activity stores.
package activity

import (
	"context"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// Store defines the read-only interface over the external activity stores.
// This interface is implemented by the infrastructure layer; the domain
// layer has no knowledge of the actual storage mechanism.
//
// Every method excludes soft-deleted and inactive source records. An empty
// userID or gameID filter means "no restriction".
type Store interface {
	// Play-tracking operations

	// ListPlayTracking returns play records, optionally filtered by user
	// and/or game.
	ListPlayTracking(ctx context.Context, userID shared.UserID, gameID shared.GameID) ([]PlayRecord, error)

	// Review operations

	// ListActiveReviews returns active reviews, optionally filtered by
	// user and/or game.
	ListActiveReviews(ctx context.Context, userID shared.UserID, gameID shared.GameID) ([]ReviewRecord, error)

	// Forum operations

	// CountActivePosts returns the number of active forum posts for one user.
	CountActivePosts(ctx context.Context, userID shared.UserID) (int, error)

	// ListActivePostCounts returns active post counts grouped by user.
	// Batch form used by the forum-posts aggregator.
	ListActivePostCounts(ctx context.Context) ([]UserCount, error)

	// Friend-list operations

	// FriendCount returns the size of one user's friend list.
	FriendCount(ctx context.Context, userID shared.UserID) (int, error)

	// ListFriendCounts returns friend-list sizes grouped by user.
	// Batch form used by the friends-count aggregator.
	ListFriendCounts(ctx context.Context) ([]UserCount, error)
}
