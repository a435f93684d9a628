package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/achievement"
	"github.com/sam399/gamehub-engine/internal/domain/activity"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
	"github.com/sam399/gamehub-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE ACHIEVEMENTS COMMAND
// Runs on demand after a user action: builds the user's stat snapshot,
// selects eligible definitions, creates missing progress records and updates
// tracked ones. Unlock transitions are returned for the caller to dispatch.
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateAchievementsCommand requests evaluation for one user.
type EvaluateAchievementsCommand struct {
	// UserID is the user whose statistics are evaluated.
	UserID string

	// GameID optionally narrows evaluation to one game. Game-scoped
	// definitions for other games are never eligible.
	GameID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EvaluateAchievementsCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("evaluate_achievements: user_id is required")
	}
	return nil
}

// UnlockedAchievement pairs an unlock transition with its definition so the
// notifier can render names, points and rarity without another lookup.
type UnlockedAchievement struct {
	Transition achievement.UnlockTransition
	Definition *achievement.Definition
}

// EvaluateAchievementsResult contains the outcome of one evaluation cycle.
type EvaluateAchievementsResult struct {
	// UserID is the evaluated user.
	UserID string

	// Eligible is the number of definitions considered.
	Eligible int

	// Tracked is the number of progress records created this cycle.
	Tracked int

	// Updated is the number of existing records that advanced.
	Updated int

	// Unlocked are the one-shot unlock transitions detected this cycle.
	// Each must be dispatched exactly once through the transition notifier.
	Unlocked []UnlockedAchievement

	// Snapshot is the stat snapshot the evaluation ran against.
	Snapshot achievement.StatSnapshot

	// Events contains informational domain events generated.
	Events []shared.Event

	// EvaluatedAt is when the cycle completed.
	EvaluatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateAchievementsHandler handles the EvaluateAchievementsCommand.
//
// Serialization per (user, achievement) pair is delegated to the progress
// repository's guarded upsert: when two evaluations race, the stored unlock
// wins and the loser's transition is discarded, so notification still fires
// at most once per unlock.
type EvaluateAchievementsHandler struct {
	defRepo      achievement.DefinitionRepository
	progressRepo achievement.ProgressRepository
	store        activity.Store
	publisher    shared.EventPublisher
	log          *logger.Logger
}

// NewEvaluateAchievementsHandler creates a new EvaluateAchievementsHandler.
func NewEvaluateAchievementsHandler(
	defRepo achievement.DefinitionRepository,
	progressRepo achievement.ProgressRepository,
	store activity.Store,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *EvaluateAchievementsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &EvaluateAchievementsHandler{
		defRepo:      defRepo,
		progressRepo: progressRepo,
		store:        store,
		publisher:    publisher,
		log:          log.With(logger.Component("evaluate")),
	}
}

// Handle executes the evaluation cycle for one user.
func (h *EvaluateAchievementsHandler) Handle(ctx context.Context, cmd EvaluateAchievementsCommand) (*EvaluateAchievementsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	userID := shared.UserID(cmd.UserID)
	gameID := shared.GameID(cmd.GameID)
	now := time.Now().UTC()

	snapshot, err := h.buildSnapshot(ctx, userID, gameID, now)
	if err != nil {
		return nil, fmt.Errorf("evaluate_achievements: build snapshot: %w", err)
	}

	defs, err := h.defRepo.ListActive(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("evaluate_achievements: list definitions: %w", err)
	}

	result := &EvaluateAchievementsResult{
		UserID:      cmd.UserID,
		Snapshot:    snapshot,
		EvaluatedAt: now,
	}

	for _, def := range defs {
		if !def.IsEligibleFor(gameID) {
			continue
		}
		result.Eligible++

		current, err := snapshot.Get(def.Criteria.StatType)
		if err != nil {
			// Unknown stat type is a configuration error: skip the
			// definition this cycle, never fail the whole evaluation.
			h.log.Warn("criteria stat not in snapshot",
				logger.AchievementID(def.ID),
				logger.String("stat_type", string(def.Criteria.StatType)),
			)
			continue
		}

		if err := h.evaluateOne(ctx, def, userID, current, now, result); err != nil {
			// Per-definition failures stay contained: the remaining
			// definitions still get their chance this cycle.
			h.log.Error("definition evaluation failed",
				logger.UserID(cmd.UserID),
				logger.AchievementID(def.ID),
				logger.Err(err),
			)
		}
	}

	for _, u := range result.Unlocked {
		result.Events = append(result.Events, u.Transition.Event(u.Definition))
	}
	if h.publisher != nil {
		for _, event := range result.Events {
			_ = h.publisher.Publish(event)
		}
	}

	h.log.Info("achievements evaluated",
		logger.UserID(cmd.UserID),
		logger.Int("eligible", result.Eligible),
		logger.Int("tracked", result.Tracked),
		logger.Int("updated", result.Updated),
		logger.Int("unlocked", len(result.Unlocked)),
	)
	return result, nil
}

// evaluateOne creates or updates the progress record for one definition.
func (h *EvaluateAchievementsHandler) evaluateOne(
	ctx context.Context,
	def *achievement.Definition,
	userID shared.UserID,
	current int,
	now time.Time,
	result *EvaluateAchievementsResult,
) error {
	existing, err := h.progressRepo.GetProgress(ctx, userID, def.ID)
	switch {
	case err == nil:
		before := existing.Current
		transition := existing.Update(current, now)
		saved, err := h.progressRepo.Save(ctx, existing)
		if err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		result.Updated++
		switch {
		case transition != nil && ownsUnlock(saved, *transition):
			result.Unlocked = append(result.Unlocked, UnlockedAchievement{
				Transition: *transition,
				Definition: def,
			})
		case transition == nil && saved != nil && !saved.IsUnlocked && saved.Current > before:
			result.Events = append(result.Events, shared.NewProgressUpdatedEvent(
				userID.String(), def.ID, saved.Current, saved.Target, saved.Percentage,
			))
		}
		return nil

	case shared.IsNotFound(err):
		progress, transition, err := achievement.NewProgress(userID, def, current, now)
		if err != nil {
			return fmt.Errorf("create progress: %w", err)
		}
		saved, err := h.progressRepo.Save(ctx, progress)
		if err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		result.Tracked++
		if transition != nil && ownsUnlock(saved, *transition) {
			result.Unlocked = append(result.Unlocked, UnlockedAchievement{
				Transition: *transition,
				Definition: def,
			})
		}
		return nil

	default:
		return fmt.Errorf("load progress: %w", err)
	}
}

// ownsUnlock reports whether this evaluation's transition is the one the
// store committed. A racing evaluation may have unlocked first; the guarded
// upsert keeps the earlier UnlockedAt, and the loser must not notify.
func ownsUnlock(saved *achievement.Progress, t achievement.UnlockTransition) bool {
	return saved != nil && saved.IsUnlocked && saved.UnlockedAt.Equal(t.UnlockedAt)
}

// buildSnapshot assembles the user's statistics from the activity stores.
func (h *EvaluateAchievementsHandler) buildSnapshot(
	ctx context.Context,
	userID shared.UserID,
	gameID shared.GameID,
	now time.Time,
) (achievement.StatSnapshot, error) {
	snapshot := achievement.StatSnapshot{UserID: userID, TakenAt: now}

	plays, err := h.store.ListPlayTracking(ctx, userID, gameID)
	if err != nil {
		return snapshot, fmt.Errorf("play tracking: %w", err)
	}
	for _, s := range activity.ReducePlayRecords(plays) {
		snapshot.GamesPlayed = s.GamesPlayed
		snapshot.HoursPlayed = s.HoursPlayed
	}

	reviews, err := h.store.ListActiveReviews(ctx, userID, gameID)
	if err != nil {
		return snapshot, fmt.Errorf("reviews: %w", err)
	}
	for _, s := range activity.ReduceReviewRecords(reviews) {
		snapshot.ReviewCount = s.ReviewCount
	}

	posts, err := h.store.CountActivePosts(ctx, userID)
	if err != nil {
		return snapshot, fmt.Errorf("forum posts: %w", err)
	}
	snapshot.ForumPosts = posts

	friends, err := h.store.FriendCount(ctx, userID)
	if err != nil {
		return snapshot, fmt.Errorf("friends: %w", err)
	}
	snapshot.FriendsCount = friends

	unlocked, err := h.progressRepo.CountUnlocked(ctx, userID, gameID)
	if err != nil {
		return snapshot, fmt.Errorf("unlocked count: %w", err)
	}
	snapshot.AchievementsUnlocked = unlocked

	points, err := h.progressRepo.SumUnlockedPoints(ctx, userID, gameID)
	if err != nil {
		return snapshot, fmt.Errorf("unlocked points: %w", err)
	}
	snapshot.TotalPoints = points

	return snapshot, nil
}
