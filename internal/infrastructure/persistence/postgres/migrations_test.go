package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ──────────────────────────────────────────────────────────────────────────────
// EMBEDDED SCHEMA
// ──────────────────────────────────────────────────────────────────────────────

func TestGetMigrations_VersionsAreOrderedAndUnique(t *testing.T) {
	migs := GetMigrations()
	require.NotEmpty(t, migs)

	seen := make(map[int]bool)
	prev := 0
	for _, m := range migs {
		assert.Greater(t, m.Version, prev, "versions must be ascending")
		assert.False(t, seen[m.Version], "version %d appears twice", m.Version)
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, m.UpSQL, "migration %d has no SQL to apply", m.Version)
		seen[m.Version] = true
		prev = m.Version
	}
}

func TestGetMigrations_SchemaCoversEveryReadModel(t *testing.T) {
	var all string
	for _, m := range GetMigrations() {
		all += m.UpSQL
	}

	for _, table := range []string{
		"leaderboard_definitions",
		"leaderboard_entries",
		"achievement_definitions",
		"user_achievement_progress",
		"play_tracking",
		"reviews",
		"forum_posts",
		"friends",
	} {
		assert.Contains(t, all, table, "table %s missing from embedded schema", table)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// ERROR HELPERS
// ──────────────────────────────────────────────────────────────────────────────

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.True(t, IsNoRows(fmt.Errorf("load entry: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("connection reset")))
	assert.False(t, IsNoRows(nil))
}
