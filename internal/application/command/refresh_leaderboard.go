// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sam399/gamehub-engine/internal/application/scoring"
	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
	"github.com/sam399/gamehub-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH LEADERBOARD COMMAND
// One refresh cycle: compute scores -> rank -> persist entries -> advance
// lastRefreshedAt -> rebuild cache hint. Transition effects are NOT emitted
// here: the handler returns transition values and the caller dispatches them,
// so the core stays testable without a live notification transport.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshLeaderboardCommand requests one refresh cycle for one leaderboard.
type RefreshLeaderboardCommand struct {
	// LeaderboardID is the leaderboard to refresh.
	LeaderboardID string

	// Force refreshes even when the leaderboard is outside its active
	// window. Used by administrative tooling only.
	Force bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RefreshLeaderboardCommand) Validate() error {
	if c.LeaderboardID == "" {
		return errors.New("refresh_leaderboard: leaderboard_id is required")
	}
	return nil
}

// RefreshLeaderboardResult contains the outcome of one refresh cycle.
type RefreshLeaderboardResult struct {
	// LeaderboardID is the refreshed leaderboard.
	LeaderboardID string

	// GameID is the game restriction of a per-game leaderboard, empty
	// otherwise. Carried so the caller can scope achievement evaluation.
	GameID string

	// EntryCount is the size of the persisted ranked set.
	EntryCount int

	// Transitions are the detected new-high-score transitions. The caller
	// dispatches each one exactly once through the transition notifier.
	Transitions []leaderboard.Transition

	// Changed reports whether the observable ranked set differs from the
	// previous refresh (digest comparison). When false the broadcast
	// signal is skipped.
	Changed bool

	// Skipped is true when the cycle ran against an inactive or
	// out-of-window leaderboard and did nothing.
	Skipped bool

	// Events contains informational domain events generated by the cycle.
	Events []shared.Event

	// RefreshedAt is when the cycle completed.
	RefreshedAt time.Time

	// Duration is how long the cycle took.
	Duration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RefreshLeaderboardHandler executes refresh cycles.
//
// Refreshes for one leaderboard are serialized through a per-leaderboard
// mutex: a scheduled tick and an on-demand refresh of the same leaderboard
// never interleave their read-rank-write sequences, which is what keeps the
// persisted rank set free of gaps and duplicates. Different leaderboards
// refresh fully in parallel.
type RefreshLeaderboardHandler struct {
	defRepo     leaderboard.DefinitionRepository
	entryRepo   leaderboard.EntryRepository
	calculator  *scoring.Calculator
	hintCache   leaderboard.RankHintCache // optional
	broadcaster leaderboard.Broadcaster   // optional
	publisher   shared.EventPublisher
	log         *logger.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	digests map[string][32]byte
}

// NewRefreshLeaderboardHandler creates a new RefreshLeaderboardHandler.
// hintCache and broadcaster may be nil; the cycle then skips those steps.
func NewRefreshLeaderboardHandler(
	defRepo leaderboard.DefinitionRepository,
	entryRepo leaderboard.EntryRepository,
	calculator *scoring.Calculator,
	hintCache leaderboard.RankHintCache,
	broadcaster leaderboard.Broadcaster,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *RefreshLeaderboardHandler {
	if log == nil {
		log = logger.Default()
	}
	return &RefreshLeaderboardHandler{
		defRepo:     defRepo,
		entryRepo:   entryRepo,
		calculator:  calculator,
		hintCache:   hintCache,
		broadcaster: broadcaster,
		publisher:   publisher,
		log:         log.With(logger.Component("refresh")),
		locks:       make(map[string]*sync.Mutex),
		digests:     make(map[string][32]byte),
	}
}

// Handle executes one refresh cycle.
//
// Any failure abandons the cycle: entries are not partially written (the
// ranking replace is transactional) and lastRefreshedAt is not advanced.
// The error is returned for logging; callers must not cancel timers on it.
func (h *RefreshLeaderboardHandler) Handle(ctx context.Context, cmd RefreshLeaderboardCommand) (*RefreshLeaderboardResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	lock := h.lockFor(cmd.LeaderboardID)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()

	def, err := h.defRepo.GetByID(ctx, cmd.LeaderboardID)
	if err != nil {
		return nil, &RefreshError{LeaderboardID: cmd.LeaderboardID, Step: "load_definition", Err: err}
	}

	now := time.Now().UTC()
	if !def.IsRefreshable(now) && !cmd.Force {
		h.log.Debug("leaderboard not refreshable, skipping",
			logger.LeaderboardID(def.ID),
			logger.Bool("active", def.IsActive),
		)
		return &RefreshLeaderboardResult{
			LeaderboardID: def.ID,
			GameID:        def.GameID.String(),
			Skipped:       true,
			RefreshedAt:   now,
		}, nil
	}

	// 1. Aggregate scores. A source-store failure abandons the tick here;
	//    lastRefreshedAt stays frozen.
	scores, err := h.calculator.ComputeScores(ctx, def)
	if err != nil {
		return nil, &RefreshError{LeaderboardID: def.ID, Step: "compute_scores", Err: err}
	}

	// 2. Full recompute over the persisted entry set. The persisted set
	//    carries FirstScoredAt, which makes tie-breaks reproducible.
	persisted, err := h.entryRepo.ListByLeaderboard(ctx, def.ID)
	if err != nil {
		return nil, &RefreshError{LeaderboardID: def.ID, Step: "load_entries", Err: err}
	}

	set, transitions, err := leaderboard.Rebuild(def, persisted, scores, now)
	if err != nil {
		return nil, &RefreshError{LeaderboardID: def.ID, Step: "rank", Err: err}
	}

	// 3. Persist the ranked set atomically.
	if err := h.entryRepo.ReplaceRanking(ctx, set); err != nil {
		return nil, &RefreshError{LeaderboardID: def.ID, Step: "persist_ranking", Err: err}
	}

	// 4. Only now does the cycle count as successful.
	if err := h.defRepo.MarkRefreshed(ctx, def.ID, now); err != nil {
		return nil, &RefreshError{LeaderboardID: def.ID, Step: "mark_refreshed", Err: err}
	}

	changed := h.updateDigest(def.ID, set)

	// Cache hint and broadcast are best-effort from here on.
	if h.hintCache != nil {
		if err := h.hintCache.RebuildHint(ctx, set); err != nil {
			h.log.Warn("rank hint rebuild failed",
				logger.LeaderboardID(def.ID), logger.Err(err))
		}
	}
	if h.broadcaster != nil && changed {
		if err := h.broadcaster.PublishLeaderboardUpdated(ctx, def.ID); err != nil {
			h.log.Warn("leaderboard update broadcast failed",
				logger.LeaderboardID(def.ID), logger.Err(err))
		}
	}

	duration := time.Since(started)
	result := &RefreshLeaderboardResult{
		LeaderboardID: def.ID,
		GameID:        def.GameID.String(),
		EntryCount:    set.Len(),
		Transitions:   transitions,
		Changed:       changed,
		RefreshedAt:   now,
		Duration:      duration,
		Events: []shared.Event{
			shared.NewRefreshCompletedEvent(def.ID, set.Len(), len(transitions), duration),
		},
	}
	if changed {
		result.Events = append(result.Events,
			shared.NewLeaderboardUpdatedEvent(def.ID, set.Len()))
	}
	for _, t := range transitions {
		result.Events = append(result.Events, t.Event())
	}

	if h.publisher != nil {
		for _, event := range result.Events {
			_ = h.publisher.Publish(event)
		}
	}

	h.log.Info("leaderboard refreshed",
		logger.LeaderboardID(def.ID),
		logger.Metric(def.Metric.String()),
		logger.Int("entries", set.Len()),
		logger.Int("transitions", len(transitions)),
		logger.Bool("changed", changed),
		logger.Latency(duration),
	)
	return result, nil
}

// lockFor returns the serialization mutex of one leaderboard.
func (h *RefreshLeaderboardHandler) lockFor(leaderboardID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.locks[leaderboardID]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[leaderboardID] = lock
	}
	return lock
}

// updateDigest stores the ranked-set digest and reports whether it changed
// since the previous successful refresh of this leaderboard.
func (h *RefreshLeaderboardHandler) updateDigest(leaderboardID string, set *leaderboard.RankedSet) bool {
	digest := set.Digest()
	h.mu.Lock()
	defer h.mu.Unlock()
	prev, seen := h.digests[leaderboardID]
	h.digests[leaderboardID] = digest
	return !seen || prev != digest
}

// ══════════════════════════════════════════════════════════════════════════════
// DEACTIVATE LEADERBOARD COMMAND
// Deactivation is the only path that deletes entries. The caller must also
// untrack the leaderboard in the refresh scheduler.
// ══════════════════════════════════════════════════════════════════════════════

// DeactivateLeaderboardCommand turns a leaderboard off.
type DeactivateLeaderboardCommand struct {
	LeaderboardID string

	// DropEntries also deletes the persisted entry set.
	DropEntries bool
}

// DeactivateLeaderboardResult reports the deactivation outcome.
type DeactivateLeaderboardResult struct {
	LeaderboardID  string
	EntriesDropped int
}

// DeactivateLeaderboardHandler handles leaderboard deactivation.
type DeactivateLeaderboardHandler struct {
	defRepo   leaderboard.DefinitionRepository
	entryRepo leaderboard.EntryRepository
	hintCache leaderboard.RankHintCache // optional
	log       *logger.Logger
}

// NewDeactivateLeaderboardHandler creates a new DeactivateLeaderboardHandler.
func NewDeactivateLeaderboardHandler(
	defRepo leaderboard.DefinitionRepository,
	entryRepo leaderboard.EntryRepository,
	hintCache leaderboard.RankHintCache,
	log *logger.Logger,
) *DeactivateLeaderboardHandler {
	if log == nil {
		log = logger.Default()
	}
	return &DeactivateLeaderboardHandler{
		defRepo:   defRepo,
		entryRepo: entryRepo,
		hintCache: hintCache,
		log:       log.With(logger.Component("refresh")),
	}
}

// Handle deactivates a leaderboard and optionally drops its entries.
func (h *DeactivateLeaderboardHandler) Handle(ctx context.Context, cmd DeactivateLeaderboardCommand) (*DeactivateLeaderboardResult, error) {
	if cmd.LeaderboardID == "" {
		return nil, errors.New("deactivate_leaderboard: leaderboard_id is required")
	}

	if err := h.defRepo.SetActive(ctx, cmd.LeaderboardID, false); err != nil {
		return nil, fmt.Errorf("deactivate_leaderboard: %w", err)
	}

	result := &DeactivateLeaderboardResult{LeaderboardID: cmd.LeaderboardID}
	if cmd.DropEntries {
		dropped, err := h.entryRepo.DeleteByLeaderboard(ctx, cmd.LeaderboardID)
		if err != nil {
			return nil, fmt.Errorf("deactivate_leaderboard: drop entries: %w", err)
		}
		result.EntriesDropped = dropped
	}
	if h.hintCache != nil {
		if err := h.hintCache.Invalidate(ctx, cmd.LeaderboardID); err != nil {
			h.log.Warn("hint invalidation failed",
				logger.LeaderboardID(cmd.LeaderboardID), logger.Err(err))
		}
	}

	h.log.Info("leaderboard deactivated",
		logger.LeaderboardID(cmd.LeaderboardID),
		logger.Int("entries_dropped", result.EntriesDropped),
	)
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// RefreshError reports which step of a refresh cycle failed. The scheduler
// logs the step and leaves the timer armed.
type RefreshError struct {
	LeaderboardID string
	Step          string
	Err           error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh_leaderboard %s: %s: %v", e.LeaderboardID, e.Step, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
