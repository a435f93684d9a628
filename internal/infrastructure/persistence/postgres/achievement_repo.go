// Package postgres implements the PostgreSQL persistence layer for GameHub.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sam399/gamehub-engine/internal/domain/achievement"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT DEFINITION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementDefinitionRepository implements achievement.DefinitionRepository
// for PostgreSQL. Definitions are administrator-owned reference data; the
// engine only reads them.
type AchievementDefinitionRepository struct {
	conn *Connection
}

// NewAchievementDefinitionRepository creates a new repository.
func NewAchievementDefinitionRepository(conn *Connection) *AchievementDefinitionRepository {
	return &AchievementDefinitionRepository{conn: conn}
}

const achievementColumns = `
	id, name, description, category, game_id, stat_type, target, comparison,
	points, rarity, is_active, created_at
`

// GetByID returns one definition.
func (r *AchievementDefinitionRepository) GetByID(ctx context.Context, id string) (*achievement.Definition, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+achievementColumns+`
		FROM achievement_definitions
		WHERE id = $1
	`, id)

	def, err := scanAchievementDefinition(row)
	if IsNoRows(err) {
		return nil, shared.ErrAchievementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get achievement definition: %w", err)
	}

	return def, nil
}

// ListActive returns active definitions. A non-empty gameID narrows the
// result to platform-wide definitions plus those scoped to that game;
// final eligibility filtering stays in the evaluator.
func (r *AchievementDefinitionRepository) ListActive(ctx context.Context, gameID shared.GameID) ([]*achievement.Definition, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+achievementColumns+`
		FROM achievement_definitions
		WHERE is_active
		  AND ($1::uuid IS NULL OR game_id IS NULL OR game_id = $1)
		ORDER BY created_at
	`, nullString(gameID.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to list achievement definitions: %w", err)
	}
	defer rows.Close()

	defs := make([]*achievement.Definition, 0)
	for rows.Next() {
		def, err := scanAchievementDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement definition: %w", err)
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

func scanAchievementDefinition(row pgx.Row) (*achievement.Definition, error) {
	var (
		def        achievement.Definition
		category   string
		gameID     *string
		statType   string
		comparison string
		rarity     string
	)

	err := row.Scan(
		&def.ID,
		&def.Name,
		&def.Description,
		&category,
		&gameID,
		&statType,
		&def.Criteria.Target,
		&comparison,
		&def.Points,
		&rarity,
		&def.IsActive,
		&def.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	def.Category = achievement.Category(category)
	def.Criteria.StatType = achievement.StatType(statType)
	def.Criteria.Comparison = achievement.Comparison(comparison)
	def.Rarity = achievement.Rarity(rarity)
	if gameID != nil {
		def.GameID = shared.GameID(*gameID)
	}

	return &def, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements achievement.ProgressRepository for PostgreSQL.
//
// The upsert keeps current and percentage monotonic and guards the unlock
// columns: once is_unlocked is set, later writes cannot clear it or move
// unlocked_at. Two racing evaluations therefore commit the unlock row
// transition at most once, and Save returns the state that actually won.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

const progressColumns = `
	user_id, achievement_id, current, target, percentage, is_unlocked,
	unlocked_at, created_at, updated_at
`

// GetProgress returns the record for one (user, achievement) pair.
func (r *ProgressRepository) GetProgress(ctx context.Context, userID shared.UserID, achievementID string) (*achievement.Progress, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+progressColumns+`
		FROM user_achievement_progress
		WHERE user_id = $1 AND achievement_id = $2
	`, userID.String(), achievementID)

	p, err := scanProgress(row)
	if IsNoRows(err) {
		return nil, shared.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	return p, nil
}

// ListByUser returns all progress records of a user.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID shared.UserID) ([]*achievement.Progress, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+progressColumns+`
		FROM user_achievement_progress
		WHERE user_id = $1
		ORDER BY created_at
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	return collectProgress(rows)
}

// CountUnlocked returns the number of unlocked achievements for a user.
func (r *ProgressRepository) CountUnlocked(ctx context.Context, userID shared.UserID, gameID shared.GameID) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM user_achievement_progress p
		JOIN achievement_definitions d ON d.id = p.achievement_id
		WHERE p.user_id = $1 AND p.is_unlocked
		  AND ($2::uuid IS NULL OR d.game_id = $2)
	`, userID.String(), nullString(gameID.String())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unlocked achievements: %w", err)
	}

	return count, nil
}

// SumUnlockedPoints returns the total definition points a user has unlocked.
func (r *ProgressRepository) SumUnlockedPoints(ctx context.Context, userID shared.UserID, gameID shared.GameID) (int, error) {
	var points int
	err := r.conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(d.points), 0)
		FROM user_achievement_progress p
		JOIN achievement_definitions d ON d.id = p.achievement_id
		WHERE p.user_id = $1 AND p.is_unlocked
		  AND ($2::uuid IS NULL OR d.game_id = $2)
	`, userID.String(), nullString(gameID.String())).Scan(&points)
	if err != nil {
		return 0, fmt.Errorf("failed to sum unlocked points: %w", err)
	}

	return points, nil
}

// ListUnlockedStats returns, per user, the count of unlocked achievements
// and the sum of their definition points.
func (r *ProgressRepository) ListUnlockedStats(ctx context.Context, gameID shared.GameID) ([]achievement.UnlockedStats, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT p.user_id, COUNT(*), COALESCE(SUM(d.points), 0)
		FROM user_achievement_progress p
		JOIN achievement_definitions d ON d.id = p.achievement_id
		WHERE p.is_unlocked
		  AND ($1::uuid IS NULL OR d.game_id = $1)
		GROUP BY p.user_id
		ORDER BY p.user_id
	`, nullString(gameID.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocked stats: %w", err)
	}
	defer rows.Close()

	stats := make([]achievement.UnlockedStats, 0)
	for rows.Next() {
		var (
			userID string
			s      achievement.UnlockedStats
		)
		if err := rows.Scan(&userID, &s.Count, &s.Points); err != nil {
			return nil, fmt.Errorf("failed to scan unlocked stats: %w", err)
		}
		s.UserID = shared.UserID(userID)
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// Save upserts a progress record and returns the persisted state. The guard
// keeps a stored unlock immutable: current/percentage only grow, is_unlocked
// never resets, unlocked_at keeps its first value.
func (r *ProgressRepository) Save(ctx context.Context, p *achievement.Progress) (*achievement.Progress, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	row := r.conn.QueryRow(ctx, `
		INSERT INTO user_achievement_progress
		(user_id, achievement_id, current, target, percentage, is_unlocked,
		 unlocked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			current = GREATEST(user_achievement_progress.current, EXCLUDED.current),
			percentage = GREATEST(user_achievement_progress.percentage, EXCLUDED.percentage),
			is_unlocked = user_achievement_progress.is_unlocked OR EXCLUDED.is_unlocked,
			unlocked_at = COALESCE(user_achievement_progress.unlocked_at, EXCLUDED.unlocked_at),
			updated_at = EXCLUDED.updated_at
		RETURNING `+progressColumns+`
	`,
		p.UserID.String(),
		p.AchievementID,
		p.Current,
		p.Target,
		p.Percentage,
		p.IsUnlocked,
		nullTime(p.UnlockedAt),
		p.CreatedAt,
		p.UpdatedAt,
	)

	saved, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("failed to save progress: %w", err)
	}

	return saved, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// PROGRESS SCANNING
// ──────────────────────────────────────────────────────────────────────────────

func scanProgress(row pgx.Row) (*achievement.Progress, error) {
	var (
		p          achievement.Progress
		userID     string
		unlockedAt *time.Time
	)

	err := row.Scan(
		&userID,
		&p.AchievementID,
		&p.Current,
		&p.Target,
		&p.Percentage,
		&p.IsUnlocked,
		&unlockedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.UserID = shared.UserID(userID)
	if unlockedAt != nil {
		p.UnlockedAt = *unlockedAt
	}

	return &p, nil
}

func collectProgress(rows pgx.Rows) ([]*achievement.Progress, error) {
	records := make([]*achievement.Progress, 0)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		records = append(records, p)
	}

	return records, rows.Err()
}
