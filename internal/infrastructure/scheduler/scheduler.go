// Package scheduler implements background refresh scheduling for GameHub.
// Every scheduled leaderboard owns its own cancelable timer; ticks of the
// same leaderboard are serialized while distinct leaderboards refresh in
// parallel.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sam399/gamehub-engine/internal/application/command"
	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUNNER INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// RefreshRunner executes one full refresh cycle for a leaderboard and
// dispatches the resulting transitions. A tick error is reported back to the
// scheduler for bookkeeping only; the timer stays armed regardless.
type RefreshRunner interface {
	RunRefresh(ctx context.Context, leaderboardID string) error
}

// TickResult contains the result of one timer tick.
type TickResult struct {
	LeaderboardID string
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	Success       bool
	Error         error
}

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// RefreshScheduler owns one timer per tracked leaderboard. Tracking is keyed
// by leaderboard ID; re-tracking a leaderboard replaces its timer, and
// untracking cancels it. A tick failure never disarms the timer.
type RefreshScheduler struct {
	mu sync.RWMutex

	// Configuration
	logger *slog.Logger
	config Config

	// Dependencies
	runner  RefreshRunner
	defRepo leaderboard.DefinitionRepository

	// State
	timers    map[string]*timerHandle
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	// History
	metrics  *Metrics
	lastRuns map[string]*TickResult
}

// timerHandle is one leaderboard's armed timer.
type timerHandle struct {
	leaderboardID string
	interval      time.Duration
	cancel        context.CancelFunc
	armedAt       time.Time
	tickCount     int64
	failCount     int64
}

// Config contains configuration for the RefreshScheduler.
type Config struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// TickTimeout bounds a single refresh cycle. Zero means no timeout.
	TickTimeout time.Duration

	// RealtimeOverride replaces the realtime interval when positive.
	// Useful for load shedding without touching definitions.
	RealtimeOverride time.Duration

	// Publisher receives a refresh_failed event for every abandoned tick.
	// Optional; nil disables the signal.
	Publisher shared.EventPublisher
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Logger:      slog.Default(),
		TickTimeout: 2 * time.Minute,
	}
}

// NewRefreshScheduler creates a scheduler. The definition repository is used
// by Start to arm every active leaderboard with a scheduled interval.
func NewRefreshScheduler(runner RefreshRunner, defRepo leaderboard.DefinitionRepository, config Config) *RefreshScheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RefreshScheduler{
		logger:   config.Logger,
		config:   config,
		runner:   runner,
		defRepo:  defRepo,
		timers:   make(map[string]*timerHandle),
		metrics:  NewMetrics(),
		lastRuns: make(map[string]*TickResult),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start arms a timer for every active leaderboard whose refresh interval is
// scheduled. Manual leaderboards are never armed.
func (s *RefreshScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	defs, err := s.defRepo.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled leaderboards: %w", err)
	}

	armed := 0
	for _, def := range defs {
		if err := s.Track(def); err != nil {
			s.logger.Warn("failed to arm leaderboard timer",
				"leaderboard_id", def.ID,
				"error", err,
			)
			continue
		}
		armed++
	}

	s.logger.Info("refresh scheduler started", "timers_armed", armed)
	return nil
}

// Stop cancels every timer and waits for in-flight ticks to complete.
func (s *RefreshScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	for id, h := range s.timers {
		h.cancel()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Info("refresh scheduler stopped",
		"uptime", time.Since(s.startedAt).String(),
	)
	return nil
}

// IsRunning returns true while the scheduler holds armed timers.
func (s *RefreshScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKING
// ══════════════════════════════════════════════════════════════════════════════

// Track arms a timer for the given definition. An existing timer for the
// same leaderboard is replaced. Manual and unknown intervals never arm.
func (s *RefreshScheduler) Track(def *leaderboard.Definition) error {
	if def == nil {
		return ErrNilDefinition
	}

	interval := def.RefreshInterval.Duration()
	if def.RefreshInterval == leaderboard.RefreshRealtime && s.config.RealtimeOverride > 0 {
		interval = s.config.RealtimeOverride
	}
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrNotSchedulable, def.RefreshInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrSchedulerNotRunning
	}

	if existing, ok := s.timers[def.ID]; ok {
		existing.cancel()
		delete(s.timers, def.ID)
	}

	tickCtx, cancel := context.WithCancel(s.ctx)
	h := &timerHandle{
		leaderboardID: def.ID,
		interval:      interval,
		cancel:        cancel,
		armedAt:       time.Now(),
	}
	s.timers[def.ID] = h

	s.wg.Add(1)
	go s.runTimer(tickCtx, h)

	s.logger.Info("leaderboard timer armed",
		"leaderboard_id", def.ID,
		"interval", interval.String(),
	)
	return nil
}

// Untrack cancels and removes a leaderboard's timer.
func (s *RefreshScheduler) Untrack(leaderboardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.timers[leaderboardID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, leaderboardID)
	}

	h.cancel()
	delete(s.timers, leaderboardID)
	s.logger.Info("leaderboard timer disarmed", "leaderboard_id", leaderboardID)
	return nil
}

// Tracked returns the IDs of all leaderboards with armed timers.
func (s *RefreshScheduler) Tracked() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	return ids
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMER LOOP
// ══════════════════════════════════════════════════════════════════════════════

// runTimer ticks one leaderboard at its interval until canceled. An error
// during a tick is recorded and logged; the loop keeps ticking.
func (s *RefreshScheduler) runTimer(ctx context.Context, h *timerHandle) {
	defer s.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(h)
		}
	}
}

// tick runs one refresh cycle and records the result. The cycle runs on its
// own context, detached from the timer's: untracking or stopping disarms the
// timer but lets a tick already in flight finish, and Stop waits for it.
func (s *RefreshScheduler) tick(h *timerHandle) {
	startedAt := time.Now()

	ctx := context.Background()
	if s.config.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.TickTimeout)
		defer cancel()
	}

	err := s.runner.RunRefresh(ctx, h.leaderboardID)
	completedAt := time.Now()

	result := &TickResult{
		LeaderboardID: h.leaderboardID,
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
		Duration:      completedAt.Sub(startedAt),
		Success:       err == nil,
		Error:         err,
	}

	s.metrics.RecordTick(h.leaderboardID, result.Duration, err == nil)

	s.mu.Lock()
	h.tickCount++
	if err != nil {
		h.failCount++
	}
	s.lastRuns[h.leaderboardID] = result
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("leaderboard refresh tick failed",
			"leaderboard_id", h.leaderboardID,
			"duration", result.Duration.String(),
			"error", err,
		)
		s.publishRefreshFailed(h.leaderboardID, err)
		return
	}

	s.logger.Debug("leaderboard refresh tick completed",
		"leaderboard_id", h.leaderboardID,
		"duration", result.Duration.String(),
	)
}

// publishRefreshFailed emits the observability signal for an abandoned tick.
// The refresh pipeline tags its errors with the step that failed; anything
// else reports as a plain tick failure.
func (s *RefreshScheduler) publishRefreshFailed(leaderboardID string, err error) {
	if s.config.Publisher == nil {
		return
	}

	step := "tick"
	var refreshErr *command.RefreshError
	if errors.As(err, &refreshErr) {
		step = refreshErr.Step
	}

	if pubErr := s.config.Publisher.Publish(shared.NewRefreshFailedEvent(leaderboardID, step, err.Error())); pubErr != nil {
		s.logger.Warn("refresh_failed event publish failed",
			"leaderboard_id", leaderboardID,
			"error", pubErr,
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RefreshNow immediately refreshes a leaderboard, bypassing its timer. The
// refresh handler serializes against a concurrently firing tick of the same
// leaderboard, so the two never interleave.
func (s *RefreshScheduler) RefreshNow(ctx context.Context, leaderboardID string) (*TickResult, error) {
	startedAt := time.Now()
	s.logger.Info("manual refresh started", "leaderboard_id", leaderboardID)

	err := s.runner.RunRefresh(ctx, leaderboardID)
	completedAt := time.Now()

	result := &TickResult{
		LeaderboardID: leaderboardID,
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
		Duration:      completedAt.Sub(startedAt),
		Success:       err == nil,
		Error:         err,
	}

	s.metrics.RecordTick(leaderboardID, result.Duration, err == nil)

	s.mu.Lock()
	s.lastRuns[leaderboardID] = result
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("manual refresh failed",
			"leaderboard_id", leaderboardID,
			"duration", result.Duration.String(),
			"error", err,
		)
		return result, err
	}

	s.logger.Info("manual refresh completed",
		"leaderboard_id", leaderboardID,
		"duration", result.Duration.String(),
	)
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// TimerInfo contains information about one armed timer.
type TimerInfo struct {
	LeaderboardID string
	Interval      time.Duration
	ArmedAt       time.Time
	TickCount     int64
	FailCount     int64
	LastResult    *TickResult
}

// ListTimers returns information about every armed timer.
func (s *RefreshScheduler) ListTimers() []TimerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]TimerInfo, 0, len(s.timers))
	for id, h := range s.timers {
		infos = append(infos, TimerInfo{
			LeaderboardID: id,
			Interval:      h.interval,
			ArmedAt:       h.armedAt,
			TickCount:     h.tickCount,
			FailCount:     h.failCount,
			LastResult:    s.lastRuns[id],
		})
	}
	return infos
}

// GetMetrics returns scheduler metrics.
func (s *RefreshScheduler) GetMetrics() *Metrics {
	return s.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics tracks tick counts and durations.
type Metrics struct {
	mu sync.RWMutex

	TotalTicks     int64
	TotalSuccesses int64
	TotalFailures  int64
	TotalDuration  time.Duration

	TicksByLeaderboard    map[string]int64
	FailuresByLeaderboard map[string]int64
}

// NewMetrics creates a metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{
		TicksByLeaderboard:    make(map[string]int64),
		FailuresByLeaderboard: make(map[string]int64),
	}
}

// RecordTick records one refresh execution.
func (m *Metrics) RecordTick(leaderboardID string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalTicks++
	m.TotalDuration += duration
	m.TicksByLeaderboard[leaderboardID]++

	if success {
		m.TotalSuccesses++
	} else {
		m.TotalFailures++
		m.FailuresByLeaderboard[leaderboardID]++
	}
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avgDuration time.Duration
	if m.TotalTicks > 0 {
		avgDuration = m.TotalDuration / time.Duration(m.TotalTicks)
	}

	var successRate float64
	if m.TotalTicks > 0 {
		successRate = float64(m.TotalSuccesses) / float64(m.TotalTicks)
	}

	return MetricsSnapshot{
		TotalTicks:      m.TotalTicks,
		TotalSuccesses:  m.TotalSuccesses,
		TotalFailures:   m.TotalFailures,
		SuccessRate:     successRate,
		AverageDuration: avgDuration,
	}
}

// MetricsSnapshot is a point-in-time snapshot of scheduler metrics.
type MetricsSnapshot struct {
	TotalTicks      int64
	TotalSuccesses  int64
	TotalFailures   int64
	SuccessRate     float64
	AverageDuration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilDefinition is returned when tracking a nil definition.
	ErrNilDefinition = fmt.Errorf("definition cannot be nil")

	// ErrNotSchedulable is returned for manual or unknown refresh intervals.
	ErrNotSchedulable = fmt.Errorf("refresh interval is not schedulable")

	// ErrNotTracked is returned when untracking a leaderboard with no timer.
	ErrNotTracked = fmt.Errorf("leaderboard is not tracked")

	// ErrSchedulerAlreadyRunning is returned when Start is called twice.
	ErrSchedulerAlreadyRunning = fmt.Errorf("scheduler is already running")

	// ErrSchedulerNotRunning is returned when the scheduler is stopped.
	ErrSchedulerNotRunning = fmt.Errorf("scheduler is not running")
)
