package config

import (
	"errors"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Feature flag names, grouped by subsystem.
const (
	FeatureLeaderboardRankHint       = "leaderboard.rank_hint"       // Redis sorted-set rank hints
	FeatureLeaderboardRealtimeEvents = "leaderboard.realtime_events" // publish leaderboard.updated after refresh
	FeatureLeaderboardNeighbors      = "leaderboard.neighbors"       // neighbor window in rank queries

	FeatureAchievementEvaluation = "achievement.evaluation" // evaluate unlocks on score writes
	FeatureAchievementSweep      = "achievement.sweep"      // periodic full-population sweep

	FeatureNotifyUnlock    = "notify.achievement_unlocked"
	FeatureNotifyHighscore = "notify.new_highscore"
	FeatureActivityFeed    = "notify.activity_feed"

	FeatureExperimentalRemoteActivity = "experimental.remote_activity" // HTTP activity store instead of postgres
	FeatureExperimentalMetrics        = "experimental.metrics"         // dispatcher/bus metrics collection
)

var (
	ErrFeatureNotFound       = errors.New("feature not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be 0-100")
)

// Feature is one toggle. RolloutPercent below 100 gates the flag per user:
// each user hashes into a stable 0-99 bucket and the flag is on for buckets
// below the percentage. EnabledFrom/EnabledUntil bound the flag in time.
type Feature struct {
	Name           string
	Description    string
	Enabled        bool
	RolloutPercent int
	EnabledFrom    *time.Time
	EnabledUntil   *time.Time
}

// FeatureContext carries who is asking. Nil means a global check.
type FeatureContext struct {
	UserID  string
	IsAdmin bool // admins see every flag as on
}

// defaultFeatures seeds the registry. Everything ships on except the
// experimental flags.
var defaultFeatures = []Feature{
	{Name: FeatureLeaderboardRankHint, Description: "Maintain Redis rank hints between recomputes", Enabled: true, RolloutPercent: 100},
	{Name: FeatureLeaderboardRealtimeEvents, Description: "Publish leaderboard.updated events after refresh", Enabled: true, RolloutPercent: 100},
	{Name: FeatureLeaderboardNeighbors, Description: "Include neighbor window in user rank queries", Enabled: true, RolloutPercent: 100},
	{Name: FeatureAchievementEvaluation, Description: "Evaluate achievement unlocks on score writes", Enabled: true, RolloutPercent: 100},
	{Name: FeatureAchievementSweep, Description: "Run the periodic full-population sweep", Enabled: true, RolloutPercent: 100},
	{Name: FeatureNotifyUnlock, Description: "Notify on achievement unlock", Enabled: true, RolloutPercent: 100},
	{Name: FeatureNotifyHighscore, Description: "Notify on new personal best", Enabled: true, RolloutPercent: 100},
	{Name: FeatureActivityFeed, Description: "Append unlock/highscore entries to activity feeds", Enabled: true, RolloutPercent: 100},
	{Name: FeatureExperimentalRemoteActivity, Description: "Read activity data from the remote service"},
	{Name: FeatureExperimentalMetrics, Description: "Collect dispatcher and event bus metrics"},
}

// FeatureFlags is the flag registry. Evaluation order in IsEnabled:
// per-user override, then admin, then the flag's own state.
type FeatureFlags struct {
	mu            sync.RWMutex
	features      map[string]*Feature
	userOverrides map[string]map[string]bool
}

// LoadFeatureFlags builds the registry from the defaults and applies any
// FEATURE_* environment overrides on top.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature, len(defaultFeatures)),
		userOverrides: make(map[string]map[string]bool),
	}
	for i := range defaultFeatures {
		f := defaultFeatures[i]
		ff.features[f.Name] = &f
	}
	ff.applyEnvOverrides()
	return ff
}

// applyEnvOverrides reads FEATURE_<NAME>=true|false|<percent> for every
// known flag. "leaderboard.rank_hint" maps to FEATURE_LEADERBOARD_RANK_HINT.
func (ff *FeatureFlags) applyEnvOverrides() {
	for name, f := range ff.features {
		val := os.Getenv(envKeyFor(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			f.Enabled = b
			f.RolloutPercent = 0
			if b {
				f.RolloutPercent = 100
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			f.Enabled = p > 0
			f.RolloutPercent = p
		}
	}
}

func envKeyFor(name string) string {
	return "FEATURE_" + strings.ReplaceAll(strings.ToUpper(name), ".", "_")
}

// IsEnabled evaluates a flag for the given context. Unknown flags are off.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.UserID != "" {
		if enabled, ok := ff.userOverrides[ctx.UserID][featureName]; ok {
			return enabled
		}
	}

	f, ok := ff.features[featureName]
	if !ok {
		return false
	}
	if ctx != nil && ctx.IsAdmin {
		return true
	}
	if !f.Enabled {
		return false
	}

	now := time.Now()
	if f.EnabledFrom != nil && now.Before(*f.EnabledFrom) {
		return false
	}
	if f.EnabledUntil != nil && now.After(*f.EnabledUntil) {
		return false
	}

	if f.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return rolloutBucket(featureName, ctx.UserID) < f.RolloutPercent
	}
	return f.RolloutPercent > 0
}

// rolloutBucket hashes user+flag into 0-99. The same pair always lands in
// the same bucket, so a user's flag state survives restarts.
func rolloutBucket(featureName, userID string) int {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

// SetUserOverride pins a flag on or off for one user, bypassing rollout.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.userOverrides[userID] == nil {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides drops every pinned flag for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent changes a flag's rollout live. Zero disables the flag,
// anything above zero enables it at that percentage.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	f.RolloutPercent = percent
	f.Enabled = percent > 0
	return nil
}

// EnableFeature turns a flag fully on.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature turns a flag fully off.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a snapshot of every flag.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make(map[string]*Feature, len(ff.features))
	for name, f := range ff.features {
		c := *f
		out[name] = &c
	}
	return out
}

// NotificationsEnabled reports whether any notification flag is on for ctx.
func (ff *FeatureFlags) NotificationsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureNotifyUnlock, ctx) ||
		ff.IsEnabled(FeatureNotifyHighscore, ctx) ||
		ff.IsEnabled(FeatureActivityFeed, ctx)
}
