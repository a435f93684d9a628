// Package scoring contains the score calculator: it dispatches a
// leaderboard's configured metric to the matching aggregator and returns the
// full candidate score set for one refresh cycle.
package scoring

import (
	"context"
	"fmt"

	"github.com/sam399/gamehub-engine/internal/domain/achievement"
	"github.com/sam399/gamehub-engine/internal/domain/activity"
	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/pkg/logger"
)

// Aggregator reduces one external activity stream to per-user scores for one
// metric. Implementations exclude soft-deleted/inactive source records and
// never emit rows for users without at least one qualifying record.
type Aggregator interface {
	// Metric returns the metric this aggregator serves.
	Metric() leaderboard.Metric

	// Aggregate produces the score set for one leaderboard definition.
	// For per-game scope the source query is restricted to the
	// definition's game; for global scope no restriction applies.
	Aggregate(ctx context.Context, def *leaderboard.Definition) (leaderboard.ScoreSet, error)
}

// Calculator dispatches on the closed metric enum. Every built-in metric has
// a registered aggregator; an unregistered metric degrades to an empty score
// set for that cycle (configuration error, logged, never fatal).
type Calculator struct {
	aggregators map[leaderboard.Metric]Aggregator
	log         *logger.Logger
}

// NewCalculator creates a calculator with all built-in aggregators wired to
// the given stores.
func NewCalculator(store activity.Store, progress achievement.ProgressRepository, log *logger.Logger) *Calculator {
	if log == nil {
		log = logger.Default()
	}
	c := &Calculator{
		aggregators: make(map[leaderboard.Metric]Aggregator),
		log:         log.With(logger.Component("scoring")),
	}
	c.register(
		&gamesPlayedAggregator{store: store},
		&hoursPlayedAggregator{store: store},
		&achievementsAggregator{progress: progress},
		&reviewCountAggregator{store: store},
		&forumPostsAggregator{store: store},
		&friendsCountAggregator{store: store},
		customAggregator{},
	)
	return c
}

func (c *Calculator) register(aggs ...Aggregator) {
	for _, a := range aggs {
		c.aggregators[a.Metric()] = a
	}
}

// ComputeScores returns the candidate score set for one leaderboard.
//
// Dispatch is purely on the metric. A metric without an aggregator yields an
// empty set, so the refresh simply upserts nothing that cycle. Source-store
// read failures propagate: the caller abandons the tick without advancing
// lastRefreshedAt.
func (c *Calculator) ComputeScores(ctx context.Context, def *leaderboard.Definition) (leaderboard.ScoreSet, error) {
	if def == nil {
		return nil, leaderboard.ErrEmptyLeaderboardID
	}

	agg, ok := c.aggregators[def.Metric]
	if !ok {
		c.log.Warn("no aggregator for metric, returning empty score set",
			logger.String("leaderboard_id", def.ID),
			logger.String("metric", def.Metric.String()),
		)
		return leaderboard.ScoreSet{}, nil
	}

	scores, err := agg.Aggregate(ctx, def)
	if err != nil {
		return nil, fmt.Errorf("scoring: aggregate %s for leaderboard %s: %w", def.Metric, def.ID, err)
	}

	c.log.Debug("score set computed",
		logger.String("leaderboard_id", def.ID),
		logger.String("metric", def.Metric.String()),
		logger.Int("candidates", len(scores)),
	)
	return scores, nil
}

// SupportedMetrics returns the metrics with a registered aggregator.
func (c *Calculator) SupportedMetrics() []leaderboard.Metric {
	out := make([]leaderboard.Metric, 0, len(c.aggregators))
	for m := range c.aggregators {
		out = append(out, m)
	}
	return out
}
