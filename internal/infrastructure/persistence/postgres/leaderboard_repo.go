// Package postgres implements the PostgreSQL persistence layer for GameHub.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// DefinitionRepository implements leaderboard.DefinitionRepository for PostgreSQL.
type DefinitionRepository struct {
	conn *Connection
}

// NewDefinitionRepository creates a new DefinitionRepository.
func NewDefinitionRepository(conn *Connection) *DefinitionRepository {
	return &DefinitionRepository{conn: conn}
}

const definitionColumns = `
	id, name, description, scope, game_id, metric, direction,
	window_from, window_to, refresh_interval, is_active, is_public,
	last_refreshed_at, created_at
`

// Save inserts or updates a definition.
func (r *DefinitionRepository) Save(ctx context.Context, def *leaderboard.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO leaderboard_definitions
		(id, name, description, scope, game_id, metric, direction,
		 window_from, window_to, refresh_interval, is_active, is_public,
		 last_refreshed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			scope = EXCLUDED.scope,
			game_id = EXCLUDED.game_id,
			metric = EXCLUDED.metric,
			direction = EXCLUDED.direction,
			window_from = EXCLUDED.window_from,
			window_to = EXCLUDED.window_to,
			refresh_interval = EXCLUDED.refresh_interval,
			is_active = EXCLUDED.is_active,
			is_public = EXCLUDED.is_public
	`,
		def.ID,
		def.Name,
		def.Description,
		string(def.Scope),
		nullString(def.GameID.String()),
		string(def.Metric),
		string(def.Direction),
		nullTime(def.Window.From),
		nullTime(def.Window.To),
		string(def.RefreshInterval),
		def.IsActive,
		def.IsPublic,
		nullTime(def.LastRefreshedAt),
		def.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save leaderboard definition: %w", err)
	}

	return nil
}

// GetByID returns a definition by ID.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*leaderboard.Definition, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+definitionColumns+`
		FROM leaderboard_definitions
		WHERE id = $1
	`, id)

	def, err := scanDefinition(row)
	if IsNoRows(err) {
		return nil, shared.ErrLeaderboardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard definition: %w", err)
	}

	return def, nil
}

// ListActive returns all active definitions.
func (r *DefinitionRepository) ListActive(ctx context.Context) ([]*leaderboard.Definition, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+definitionColumns+`
		FROM leaderboard_definitions
		WHERE is_active
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active leaderboards: %w", err)
	}
	defer rows.Close()

	return collectDefinitions(rows)
}

// ListScheduled returns active definitions with a non-manual refresh interval.
func (r *DefinitionRepository) ListScheduled(ctx context.Context) ([]*leaderboard.Definition, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+definitionColumns+`
		FROM leaderboard_definitions
		WHERE is_active AND refresh_interval != 'manual'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled leaderboards: %w", err)
	}
	defer rows.Close()

	return collectDefinitions(rows)
}

// MarkRefreshed advances last_refreshed_at. Called only after a fully
// successful refresh cycle.
func (r *DefinitionRepository) MarkRefreshed(ctx context.Context, id string, at time.Time) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE leaderboard_definitions
		SET last_refreshed_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark leaderboard refreshed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrLeaderboardNotFound
	}

	return nil
}

// SetActive toggles a leaderboard on or off.
func (r *DefinitionRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE leaderboard_definitions
		SET is_active = $2
		WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("failed to set leaderboard active state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrLeaderboardNotFound
	}

	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// DEFINITION SCANNING
// ──────────────────────────────────────────────────────────────────────────────

func scanDefinition(row pgx.Row) (*leaderboard.Definition, error) {
	var (
		def             leaderboard.Definition
		scope, metric   string
		direction       string
		interval        string
		gameID          *string
		windowFrom      *time.Time
		windowTo        *time.Time
		lastRefreshedAt *time.Time
	)

	err := row.Scan(
		&def.ID,
		&def.Name,
		&def.Description,
		&scope,
		&gameID,
		&metric,
		&direction,
		&windowFrom,
		&windowTo,
		&interval,
		&def.IsActive,
		&def.IsPublic,
		&lastRefreshedAt,
		&def.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	def.Scope = leaderboard.Scope(scope)
	def.Metric = leaderboard.Metric(metric)
	def.Direction = leaderboard.ScoringDirection(direction)
	def.RefreshInterval = leaderboard.RefreshInterval(interval)
	if gameID != nil {
		def.GameID = shared.GameID(*gameID)
	}
	if windowFrom != nil {
		def.Window.From = *windowFrom
	}
	if windowTo != nil {
		def.Window.To = *windowTo
	}
	if lastRefreshedAt != nil {
		def.LastRefreshedAt = *lastRefreshedAt
	}

	return &def, nil
}

func collectDefinitions(rows pgx.Rows) ([]*leaderboard.Definition, error) {
	defs := make([]*leaderboard.Definition, 0)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard definition: %w", err)
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EntryRepository implements leaderboard.EntryRepository for PostgreSQL.
// Entry uniqueness per (leaderboard, user) is enforced by the primary key;
// ranks are rewritten wholesale inside one transaction per refresh.
type EntryRepository struct {
	conn *Connection
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(conn *Connection) *EntryRepository {
	return &EntryRepository{conn: conn}
}

const entryColumns = `
	leaderboard_id, user_id, score, rank, metadata, first_scored_at, last_updated_at
`

// ListByLeaderboard returns every entry of a leaderboard, rank order.
func (r *EntryRepository) ListByLeaderboard(ctx context.Context, leaderboardID string) ([]*leaderboard.Entry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE leaderboard_id = $1
		ORDER BY rank
	`, leaderboardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// GetEntry returns one player's entry.
func (r *EntryRepository) GetEntry(ctx context.Context, leaderboardID string, userID shared.UserID) (*leaderboard.Entry, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE leaderboard_id = $1 AND user_id = $2
	`, leaderboardID, userID.String())

	entry, err := scanEntry(row)
	if IsNoRows(err) {
		return nil, shared.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard entry: %w", err)
	}

	return entry, nil
}

// ReplaceRanking atomically persists the result of a full recompute: every
// entry of the set is upserted with its new score and rank in one
// transaction. Entries absent from the set are left untouched.
func (r *EntryRepository) ReplaceRanking(ctx context.Context, set *leaderboard.RankedSet) error {
	if set == nil || len(set.Entries) == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, entry := range set.Entries {
			meta, err := json.Marshal(entry.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal entry metadata: %w", err)
			}

			batch.Queue(`
				INSERT INTO leaderboard_entries
				(leaderboard_id, user_id, score, rank, metadata, first_scored_at, last_updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (leaderboard_id, user_id) DO UPDATE SET
					score = EXCLUDED.score,
					rank = EXCLUDED.rank,
					metadata = EXCLUDED.metadata,
					last_updated_at = EXCLUDED.last_updated_at
			`,
				entry.LeaderboardID,
				entry.UserID.String(),
				entry.Score.Float64(),
				int(entry.Rank),
				meta,
				entry.FirstScoredAt,
				entry.LastUpdatedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range set.Entries {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to upsert entry: %w", err)
			}
		}

		return nil
	})
}

// GetTop returns the first n entries by rank.
func (r *EntryRepository) GetTop(ctx context.Context, leaderboardID string, n int) ([]*leaderboard.Entry, error) {
	if n <= 0 {
		n = 10
	}

	rows, err := r.conn.Query(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE leaderboard_id = $1 AND rank > 0
		ORDER BY rank
		LIMIT $2
	`, leaderboardID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get top entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// GetPage returns one page of entries by rank.
func (r *EntryRepository) GetPage(ctx context.Context, leaderboardID string, p shared.Pagination) ([]*leaderboard.Entry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE leaderboard_id = $1 AND rank > 0
		ORDER BY rank
		LIMIT $2 OFFSET $3
	`, leaderboardID, p.Limit(), p.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to get entry page: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// CountByLeaderboard returns the number of entries.
func (r *EntryRepository) CountByLeaderboard(ctx context.Context, leaderboardID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM leaderboard_entries WHERE leaderboard_id = $1
	`, leaderboardID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}

	return count, nil
}

// DeleteByLeaderboard removes every entry of a leaderboard. The only legal
// path here is leaderboard deactivation.
func (r *EntryRepository) DeleteByLeaderboard(ctx context.Context, leaderboardID string) (int, error) {
	tag, err := r.conn.Exec(ctx, `
		DELETE FROM leaderboard_entries WHERE leaderboard_id = $1
	`, leaderboardID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ENTRY SCANNING
// ──────────────────────────────────────────────────────────────────────────────

func scanEntry(row pgx.Row) (*leaderboard.Entry, error) {
	var (
		entry  leaderboard.Entry
		userID string
		score  float64
		rank   int
		meta   []byte
	)

	err := row.Scan(
		&entry.LeaderboardID,
		&userID,
		&score,
		&rank,
		&meta,
		&entry.FirstScoredAt,
		&entry.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.UserID = shared.UserID(userID)
	entry.Score = shared.Score(score)
	entry.Rank = leaderboard.Rank(rank)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry metadata: %w", err)
		}
	}

	return &entry, nil
}

func collectEntries(rows pgx.Rows) ([]*leaderboard.Entry, error) {
	entries := make([]*leaderboard.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// ──────────────────────────────────────────────────────────────────────────────
// NULLABLE HELPERS
// ──────────────────────────────────────────────────────────────────────────────

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
