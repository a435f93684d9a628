// Package postgres implements the PostgreSQL persistence layer for GameHub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE LEADERBOARDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create leaderboard tables
-- Version: 001

CREATE TABLE IF NOT EXISTS leaderboard_definitions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    scope VARCHAR(20) NOT NULL,
    game_id UUID,
    metric VARCHAR(30) NOT NULL,
    direction VARCHAR(20) NOT NULL,
    window_from TIMESTAMP WITH TIME ZONE,
    window_to TIMESTAMP WITH TIME ZONE,
    refresh_interval VARCHAR(20) NOT NULL DEFAULT 'manual',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    is_public BOOLEAN NOT NULL DEFAULT TRUE,
    last_refreshed_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_scope CHECK (scope IN ('global', 'per_game', 'time_windowed', 'event_bound')),
    CONSTRAINT valid_metric CHECK (metric IN ('games_played', 'hours_played', 'achievements', 'review_count', 'forum_posts', 'friends_count', 'custom')),
    CONSTRAINT valid_direction CHECK (direction IN ('highest_wins', 'lowest_wins', 'accumulative')),
    CONSTRAINT valid_refresh_interval CHECK (refresh_interval IN ('manual', 'realtime', 'hourly', 'daily', 'weekly')),
    CONSTRAINT per_game_requires_game CHECK (scope != 'per_game' OR game_id IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_leaderboard_definitions_active ON leaderboard_definitions(is_active) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_leaderboard_definitions_scope ON leaderboard_definitions(scope);
CREATE INDEX IF NOT EXISTS idx_leaderboard_definitions_game ON leaderboard_definitions(game_id) WHERE game_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_leaderboard_definitions_scheduled ON leaderboard_definitions(refresh_interval) WHERE is_active AND refresh_interval != 'manual';

-- One entry per (leaderboard, user). Ranks are rewritten wholesale on every
-- refresh inside one transaction, never mutated row by row.
CREATE TABLE IF NOT EXISTS leaderboard_entries (
    leaderboard_id UUID NOT NULL REFERENCES leaderboard_definitions(id) ON DELETE CASCADE,
    user_id UUID NOT NULL,
    score DOUBLE PRECISION NOT NULL DEFAULT 0,
    rank INTEGER NOT NULL DEFAULT 0,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    first_scored_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    last_updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (leaderboard_id, user_id),
    CONSTRAINT valid_score CHECK (score >= 0),
    CONSTRAINT valid_rank CHECK (rank >= 0)
);

CREATE INDEX IF NOT EXISTS idx_leaderboard_entries_rank ON leaderboard_entries(leaderboard_id, rank);
CREATE INDEX IF NOT EXISTS idx_leaderboard_entries_user ON leaderboard_entries(user_id);
`


// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create achievement tables
-- Version: 002

CREATE TABLE IF NOT EXISTS achievement_definitions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category VARCHAR(20) NOT NULL,
    game_id UUID,
    stat_type VARCHAR(30) NOT NULL,
    target INTEGER NOT NULL,
    comparison VARCHAR(20) NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    rarity VARCHAR(20) NOT NULL DEFAULT 'common',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_category CHECK (category IN ('game_specific', 'social', 'content', 'progression', 'special')),
    CONSTRAINT valid_comparison CHECK (comparison IN ('greater_than', 'equals', 'less_than', 'custom')),
    CONSTRAINT valid_rarity CHECK (rarity IN ('common', 'uncommon', 'rare', 'epic', 'legendary')),
    CONSTRAINT valid_target CHECK (target > 0),
    CONSTRAINT valid_points CHECK (points >= 0)
);

CREATE INDEX IF NOT EXISTS idx_achievement_definitions_active ON achievement_definitions(is_active) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_achievement_definitions_game ON achievement_definitions(game_id) WHERE game_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_achievement_definitions_stat ON achievement_definitions(stat_type);

-- One progress row per (user, achievement). is_unlocked is monotonic: the
-- upsert folds new values in with GREATEST/OR/COALESCE so current never
-- regresses and an unlock, once written, sticks.
CREATE TABLE IF NOT EXISTS user_achievement_progress (
    user_id UUID NOT NULL,
    achievement_id UUID NOT NULL REFERENCES achievement_definitions(id) ON DELETE CASCADE,
    current INTEGER NOT NULL DEFAULT 0,
    target INTEGER NOT NULL,
    percentage INTEGER NOT NULL DEFAULT 0,
    is_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
    unlocked_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, achievement_id),
    CONSTRAINT valid_percentage CHECK (percentage >= 0 AND percentage <= 100),
    CONSTRAINT unlock_has_timestamp CHECK (NOT is_unlocked OR unlocked_at IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_progress_user ON user_achievement_progress(user_id);
CREATE INDEX IF NOT EXISTS idx_progress_unlocked ON user_achievement_progress(user_id) WHERE is_unlocked;
CREATE INDEX IF NOT EXISTS idx_progress_achievement ON user_achievement_progress(achievement_id);
`


// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE ACTIVITY READ MODELS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create activity read models consumed by the score aggregators
-- Version: 003

CREATE TABLE IF NOT EXISTS play_tracking (
    user_id UUID NOT NULL,
    game_id UUID NOT NULL,
    hours_played DOUBLE PRECISION NOT NULL DEFAULT 0,
    last_played TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,

    PRIMARY KEY (user_id, game_id),
    CONSTRAINT valid_hours CHECK (hours_played >= 0)
);

CREATE INDEX IF NOT EXISTS idx_play_tracking_user ON play_tracking(user_id) WHERE NOT is_deleted;
CREATE INDEX IF NOT EXISTS idx_play_tracking_game ON play_tracking(game_id) WHERE NOT is_deleted;

CREATE TABLE IF NOT EXISTS reviews (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    game_id UUID NOT NULL,
    rating INTEGER NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_rating CHECK (rating >= 1 AND rating <= 5)
);

CREATE INDEX IF NOT EXISTS idx_reviews_user ON reviews(user_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_reviews_game ON reviews(game_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS forum_posts (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_forum_posts_user ON forum_posts(user_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS friends (
    user_id UUID NOT NULL,
    friend_id UUID NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, friend_id),
    CONSTRAINT no_self_friend CHECK (user_id != friend_id)
);

CREATE INDEX IF NOT EXISTS idx_friends_user ON friends(user_id);
`

