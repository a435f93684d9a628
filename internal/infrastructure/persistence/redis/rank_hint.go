// Package redis implements the Redis edge of GameHub.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANK HINT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// RankHintCache implements leaderboard.RankHintCache with one sorted set per
// leaderboard. It is NOT a source of truth: the set is rebuilt from the
// persisted ranked set on every refresh, and the OnScoreWrite narrow path
// only nudges a single member's score until the next full recompute.
//
// A direction marker is stored next to each sorted set so reads know which
// end of the set is rank 1.
type RankHintCache struct {
	cache *Cache
}

// NewRankHintCache creates a rank hint cache on top of a Cache.
func NewRankHintCache(cache *Cache) *RankHintCache {
	return &RankHintCache{cache: cache}
}

func hintDirKey(leaderboardID string) string {
	return HintKey(leaderboardID) + ":dir"
}

const (
	dirDescending = "desc"
	dirAscending  = "asc"
)

// RebuildHint rewrites the sorted set from a full recompute result. The old
// set is dropped and rebuilt in one pipeline so readers never observe a
// half-built hint.
func (r *RankHintCache) RebuildHint(ctx context.Context, set *leaderboard.RankedSet) error {
	if set == nil {
		return nil
	}

	key := HintKey(set.LeaderboardID)
	// Rank 1 sits at the head of set.Entries; the marker records which end
	// of the sorted set that is.
	dir := dirDescending
	if len(set.Entries) > 1 && set.Entries[0].Score.Float64() < set.Entries[len(set.Entries)-1].Score.Float64() {
		dir = dirAscending
	}

	members := make([]redis.Z, 0, len(set.Entries))
	for _, entry := range set.Entries {
		members = append(members, redis.Z{
			Score:  entry.Score.Float64(),
			Member: entry.UserID.String(),
		})
	}

	pipe := r.cache.Client().TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
	pipe.Set(ctx, hintDirKey(set.LeaderboardID), dir, TTLRankHint)
	pipe.Expire(ctx, key, TTLRankHint)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to rebuild rank hint: %w", err)
	}

	return nil
}

// OnScoreWrite updates a single member's score in the hint. Narrow path
// outside the full recompute; reconciled against the truth on the next
// scheduled refresh.
func (r *RankHintCache) OnScoreWrite(ctx context.Context, leaderboardID string, userID shared.UserID, score shared.Score) error {
	err := r.cache.Client().ZAdd(ctx, HintKey(leaderboardID), redis.Z{
		Score:  score.Float64(),
		Member: userID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to write score hint: %w", err)
	}

	return nil
}

// GetHintTop returns the cached top-N as bare entries (user, score, rank).
// Returns nil when the hint is empty.
func (r *RankHintCache) GetHintTop(ctx context.Context, leaderboardID string, n int) ([]*leaderboard.Entry, error) {
	if n <= 0 {
		n = 10
	}

	key := HintKey(leaderboardID)
	desc, err := r.isDescending(ctx, leaderboardID)
	if err != nil {
		return nil, err
	}

	var members []redis.Z
	if desc {
		members, err = r.cache.Client().ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	} else {
		members, err = r.cache.Client().ZRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rank hint top: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	entries := make([]*leaderboard.Entry, 0, len(members))
	for i, m := range members {
		userID, _ := m.Member.(string)
		entries = append(entries, &leaderboard.Entry{
			LeaderboardID: leaderboardID,
			UserID:        shared.UserID(userID),
			Score:         shared.Score(m.Score),
			Rank:          leaderboard.Rank(i + 1),
		})
	}

	return entries, nil
}

// GetHintRank returns the hinted rank of one player, Unranked when absent.
func (r *RankHintCache) GetHintRank(ctx context.Context, leaderboardID string, userID shared.UserID) (leaderboard.Rank, error) {
	key := HintKey(leaderboardID)
	desc, err := r.isDescending(ctx, leaderboardID)
	if err != nil {
		return leaderboard.Unranked, err
	}

	var pos int64
	if desc {
		pos, err = r.cache.Client().ZRevRank(ctx, key, userID.String()).Result()
	} else {
		pos, err = r.cache.Client().ZRank(ctx, key, userID.String()).Result()
	}
	if errors.Is(err, redis.Nil) {
		return leaderboard.Unranked, nil
	}
	if err != nil {
		return leaderboard.Unranked, fmt.Errorf("failed to read rank hint: %w", err)
	}

	return leaderboard.Rank(pos + 1), nil
}

// Invalidate drops a leaderboard's hint.
func (r *RankHintCache) Invalidate(ctx context.Context, leaderboardID string) error {
	return r.cache.Delete(ctx, HintKey(leaderboardID), hintDirKey(leaderboardID), TopKey(leaderboardID))
}

// isDescending reads the direction marker; descending is the default when
// the marker is missing.
func (r *RankHintCache) isDescending(ctx context.Context, leaderboardID string) (bool, error) {
	dir, err := r.cache.GetString(ctx, hintDirKey(leaderboardID))
	if errors.Is(err, ErrCacheMiss) {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("failed to read hint direction: %w", err)
	}

	return dir != dirAscending, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TOP PAGE CACHE
// ══════════════════════════════════════════════════════════════════════════════

// topEntry is the JSON shape of one cached top row.
type topEntry struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// SetTopPage caches a leaderboard's top page as JSON with a short TTL.
func (r *RankHintCache) SetTopPage(ctx context.Context, leaderboardID string, entries []*leaderboard.Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLTopCache
	}

	rows := make([]topEntry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, topEntry{
			UserID: e.UserID.String(),
			Score:  e.Score.Float64(),
			Rank:   int(e.Rank),
		})
	}

	return r.cache.Set(ctx, TopKey(leaderboardID), rows, ttl)
}

// GetTopPage returns the cached top page, nil on a miss.
func (r *RankHintCache) GetTopPage(ctx context.Context, leaderboardID string) ([]*leaderboard.Entry, error) {
	var rows []topEntry
	err := r.cache.Get(ctx, TopKey(leaderboardID), &rows)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make([]*leaderboard.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, &leaderboard.Entry{
			LeaderboardID: leaderboardID,
			UserID:        shared.UserID(row.UserID),
			Score:         shared.Score(row.Score),
			Rank:          leaderboard.Rank(row.Rank),
		})
	}

	return entries, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BROADCASTER
// ══════════════════════════════════════════════════════════════════════════════

// ChannelLeaderboardUpdated is the pub/sub channel of the refresh broadcast.
const ChannelLeaderboardUpdated = "leaderboard.updated"

// Broadcaster implements leaderboard.Broadcaster over Redis pub/sub.
// Best-effort: there are no delivery guarantees and no retries.
type Broadcaster struct {
	cache *Cache
}

// NewBroadcaster creates a broadcaster on top of a Cache.
func NewBroadcaster(cache *Cache) *Broadcaster {
	return &Broadcaster{cache: cache}
}

// PublishLeaderboardUpdated publishes the refresh signal. The payload is the
// leaderboard ID; subscribers re-read state through the query side.
func (b *Broadcaster) PublishLeaderboardUpdated(ctx context.Context, leaderboardID string) error {
	err := b.cache.Client().Publish(ctx, PubSubChannel(ChannelLeaderboardUpdated), leaderboardID).Err()
	if err != nil {
		return fmt.Errorf("failed to publish leaderboard update: %w", err)
	}

	return nil
}

// SubscribeLeaderboardUpdated subscribes to the refresh signal. The caller
// owns the returned PubSub and must close it.
func (b *Broadcaster) SubscribeLeaderboardUpdated(ctx context.Context) *redis.PubSub {
	return b.cache.Subscribe(ctx, PubSubChannel(ChannelLeaderboardUpdated))
}
