package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
	"github.com/sam399/gamehub-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD SCORE WRITE COMMAND
// The narrow per-write path invoked when a single user's score changes
// outside a full refresh. It is an optimistic UI hint only: the rank hint
// cache is updated, nothing else. The full recompute at the next scheduled
// refresh remains the single source of truth and reconciles any divergence.
// ══════════════════════════════════════════════════════════════════════════════

// RecordScoreWriteCommand updates one user's score hint on one leaderboard.
type RecordScoreWriteCommand struct {
	LeaderboardID string
	UserID        string
	NewScore      float64
}

// Validate validates the command.
func (c RecordScoreWriteCommand) Validate() error {
	if c.LeaderboardID == "" {
		return errors.New("record_score_write: leaderboard_id is required")
	}
	if c.UserID == "" {
		return errors.New("record_score_write: user_id is required")
	}
	if c.NewScore < 0 {
		return errors.New("record_score_write: score cannot be negative")
	}
	return nil
}

// RecordScoreWriteResult reports the hinted rank after the write.
type RecordScoreWriteResult struct {
	LeaderboardID string
	UserID        string
	// HintedRank is the optimistic rank from the cache; Unranked when the
	// cache has no answer. Never authoritative.
	HintedRank leaderboard.Rank
}

// RecordScoreWriteHandler handles the narrow score-write path.
type RecordScoreWriteHandler struct {
	hintCache leaderboard.RankHintCache
	log       *logger.Logger
}

// NewRecordScoreWriteHandler creates a new RecordScoreWriteHandler.
func NewRecordScoreWriteHandler(hintCache leaderboard.RankHintCache, log *logger.Logger) *RecordScoreWriteHandler {
	if log == nil {
		log = logger.Default()
	}
	return &RecordScoreWriteHandler{
		hintCache: hintCache,
		log:       log.With(logger.Component("score_write")),
	}
}

// Handle applies the optimistic hint update. Without a hint cache the
// command is a no-op; the next scheduled refresh picks the score up anyway.
func (h *RecordScoreWriteHandler) Handle(ctx context.Context, cmd RecordScoreWriteCommand) (*RecordScoreWriteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result := &RecordScoreWriteResult{
		LeaderboardID: cmd.LeaderboardID,
		UserID:        cmd.UserID,
		HintedRank:    leaderboard.Unranked,
	}
	if h.hintCache == nil {
		return result, nil
	}

	userID := shared.UserID(cmd.UserID)
	if err := h.hintCache.OnScoreWrite(ctx, cmd.LeaderboardID, userID, shared.Score(cmd.NewScore)); err != nil {
		return nil, fmt.Errorf("record_score_write: %w", err)
	}

	rank, err := h.hintCache.GetHintRank(ctx, cmd.LeaderboardID, userID)
	if err != nil {
		// The hint was written; a failed read-back only costs the caller
		// the optimistic rank display.
		h.log.Debug("hint rank read-back failed",
			logger.LeaderboardID(cmd.LeaderboardID), logger.Err(err))
		return result, nil
	}
	result.HintedRank = rank
	return result, nil
}
