package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam399/gamehub-engine/internal/application/command"
	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ──────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────

type countingRunner struct {
	mu       sync.Mutex
	runs     map[string]int
	fail     bool
	failWith error
	runCh    chan string
}

func newCountingRunner() *countingRunner {
	return &countingRunner{
		runs:  make(map[string]int),
		runCh: make(chan string, 64),
	}
}

func (r *countingRunner) RunRefresh(_ context.Context, leaderboardID string) error {
	r.mu.Lock()
	r.runs[leaderboardID]++
	r.mu.Unlock()
	select {
	case r.runCh <- leaderboardID:
	default:
	}
	if r.fail {
		if r.failWith != nil {
			return r.failWith
		}
		return errors.New("refresh blew up")
	}
	return nil
}

func (r *countingRunner) count(leaderboardID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[leaderboardID]
}

type schedDefRepo struct {
	defs []*leaderboard.Definition
}

func (r *schedDefRepo) Save(context.Context, *leaderboard.Definition) error { return nil }

func (r *schedDefRepo) GetByID(_ context.Context, id string) (*leaderboard.Definition, error) {
	for _, d := range r.defs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, shared.ErrLeaderboardNotFound
}

func (r *schedDefRepo) ListActive(context.Context) ([]*leaderboard.Definition, error) {
	return r.defs, nil
}

func (r *schedDefRepo) ListScheduled(context.Context) ([]*leaderboard.Definition, error) {
	var out []*leaderboard.Definition
	for _, d := range r.defs {
		if d.RefreshInterval != leaderboard.RefreshManual {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *schedDefRepo) MarkRefreshed(context.Context, string, time.Time) error { return nil }
func (r *schedDefRepo) SetActive(context.Context, string, bool) error          { return nil }

// ──────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────

func schedDefinition(t *testing.T, id string, interval leaderboard.RefreshInterval) *leaderboard.Definition {
	t.Helper()
	def, err := leaderboard.NewDefinition(
		id, "Board "+id,
		leaderboard.ScopeGlobal, "",
		leaderboard.MetricHoursPlayed,
		leaderboard.DirectionHighestWins,
		interval,
	)
	require.NoError(t, err)
	return def
}

func fastConfig() Config {
	return Config{
		TickTimeout:      time.Second,
		RealtimeOverride: 15 * time.Millisecond,
	}
}

func awaitRun(t *testing.T, runner *countingRunner, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case id := <-runner.runCh:
			if id == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a tick of %s", want)
		}
	}
}

// blockingRunner parks inside RunRefresh until released and records the
// context state seen at completion.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}

	mu      sync.Mutex
	ctxErrs []error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) RunRefresh(ctx context.Context, _ string) error {
	r.started <- struct{}{}
	<-r.release
	r.mu.Lock()
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.mu.Unlock()
	return nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	ch     chan shared.Event
}

func newCapturingPublisher() *capturingPublisher {
	return &capturingPublisher{ch: make(chan shared.Event, 64)}
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	select {
	case p.ch <- event:
	default:
	}
	return nil
}

// ──────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────

func TestScheduler_StartArmsScheduledBoards(t *testing.T) {
	runner := newCountingRunner()
	repo := &schedDefRepo{defs: []*leaderboard.Definition{
		schedDefinition(t, "lb-fast", leaderboard.RefreshRealtime),
		schedDefinition(t, "lb-manual", leaderboard.RefreshManual),
	}}
	s := NewRefreshScheduler(runner, repo, fastConfig())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.ElementsMatch(t, []string{"lb-fast"}, s.Tracked(), "manual boards never arm")
	awaitRun(t, runner, "lb-fast")
}

func TestScheduler_TickFailureKeepsTimerArmed(t *testing.T) {
	runner := newCountingRunner()
	runner.fail = true
	repo := &schedDefRepo{defs: []*leaderboard.Definition{
		schedDefinition(t, "lb-fast", leaderboard.RefreshRealtime),
	}}
	s := NewRefreshScheduler(runner, repo, fastConfig())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	awaitRun(t, runner, "lb-fast")
	awaitRun(t, runner, "lb-fast")
	assert.GreaterOrEqual(t, runner.count("lb-fast"), 2, "the timer keeps ticking after failures")

	timers := s.ListTimers()
	require.Len(t, timers, 1)
	assert.GreaterOrEqual(t, timers[0].FailCount, int64(1))
}

func TestScheduler_UntrackDisarms(t *testing.T) {
	runner := newCountingRunner()
	repo := &schedDefRepo{defs: []*leaderboard.Definition{
		schedDefinition(t, "lb-fast", leaderboard.RefreshRealtime),
	}}
	s := NewRefreshScheduler(runner, repo, fastConfig())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, s.Untrack("lb-fast"))
	assert.Empty(t, s.Tracked())

	assert.ErrorIs(t, s.Untrack("lb-fast"), ErrNotTracked)
}

func TestScheduler_TrackRequiresRunning(t *testing.T) {
	s := NewRefreshScheduler(newCountingRunner(), &schedDefRepo{}, fastConfig())
	err := s.Track(schedDefinition(t, "lb-x", leaderboard.RefreshRealtime))
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestScheduler_ManualIntervalNotSchedulable(t *testing.T) {
	s := NewRefreshScheduler(newCountingRunner(), &schedDefRepo{}, fastConfig())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	err := s.Track(schedDefinition(t, "lb-manual", leaderboard.RefreshManual))
	assert.ErrorIs(t, err, ErrNotSchedulable)
	assert.ErrorIs(t, s.Track(nil), ErrNilDefinition)
}

func TestScheduler_DoubleStart(t *testing.T) {
	s := NewRefreshScheduler(newCountingRunner(), &schedDefRepo{}, fastConfig())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
}

func TestScheduler_StopCancelsTimers(t *testing.T) {
	runner := newCountingRunner()
	repo := &schedDefRepo{defs: []*leaderboard.Definition{
		schedDefinition(t, "lb-fast", leaderboard.RefreshRealtime),
	}}
	s := NewRefreshScheduler(runner, repo, fastConfig())

	require.NoError(t, s.Start(context.Background()))
	awaitRun(t, runner, "lb-fast")
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	before := runner.count("lb-fast")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, runner.count("lb-fast"), "no ticks fire after Stop")

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_InFlightTickSurvivesUntrackAndStop(t *testing.T) {
	runner := newBlockingRunner()
	repo := &schedDefRepo{defs: []*leaderboard.Definition{
		schedDefinition(t, "lb-fast", leaderboard.RefreshRealtime),
	}}
	s := NewRefreshScheduler(runner, repo, fastConfig())

	require.NoError(t, s.Start(context.Background()))

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the tick to start")
	}

	// Disarm the timer while its tick is mid-flight, then shut down. Stop
	// must block until the tick completes, and the tick must never see a
	// canceled context.
	require.NoError(t, s.Untrack("lb-fast"))

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after the tick completed")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.NotEmpty(t, runner.ctxErrs)
	for _, err := range runner.ctxErrs {
		assert.NoError(t, err, "a tick in flight runs to completion")
	}
}

func TestScheduler_FailedTickPublishesEvent(t *testing.T) {
	runner := newCountingRunner()
	runner.fail = true
	repo := &schedDefRepo{defs: []*leaderboard.Definition{
		schedDefinition(t, "lb-fast", leaderboard.RefreshRealtime),
	}}
	publisher := newCapturingPublisher()
	cfg := fastConfig()
	cfg.Publisher = publisher
	s := NewRefreshScheduler(runner, repo, cfg)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case event := <-publisher.ch:
		failed, ok := event.(shared.RefreshFailedEvent)
		require.True(t, ok, "the failed tick emits a refresh_failed event")
		assert.Equal(t, "lb-fast", failed.LeaderboardID)
		assert.Equal(t, "tick", failed.Step, "an untagged error reports the generic step")
		assert.Contains(t, failed.Reason, "refresh blew up")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the refresh_failed event")
	}
}

func TestScheduler_FailedTickEventCarriesPipelineStep(t *testing.T) {
	runner := newCountingRunner()
	runner.fail = true
	runner.failWith = fmt.Errorf("refresh lb-fast: %w", &command.RefreshError{
		LeaderboardID: "lb-fast",
		Step:          "compute_scores",
		Err:           errors.New("store unavailable"),
	})
	repo := &schedDefRepo{defs: []*leaderboard.Definition{
		schedDefinition(t, "lb-fast", leaderboard.RefreshRealtime),
	}}
	publisher := newCapturingPublisher()
	cfg := fastConfig()
	cfg.Publisher = publisher
	s := NewRefreshScheduler(runner, repo, cfg)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case event := <-publisher.ch:
		failed, ok := event.(shared.RefreshFailedEvent)
		require.True(t, ok)
		assert.Equal(t, "compute_scores", failed.Step)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the refresh_failed event")
	}
}

func TestScheduler_RefreshNow(t *testing.T) {
	runner := newCountingRunner()
	s := NewRefreshScheduler(runner, &schedDefRepo{}, fastConfig())

	res, err := s.RefreshNow(context.Background(), "lb-any")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, runner.count("lb-any"))

	runner.fail = true
	res, err = s.RefreshNow(context.Background(), "lb-any")
	require.Error(t, err)
	assert.False(t, res.Success)
}

func TestSchedulerMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordTick("lb-a", 10*time.Millisecond, true)
	m.RecordTick("lb-a", 30*time.Millisecond, false)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalTicks)
	assert.Equal(t, int64(1), snap.TotalSuccesses)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.InDelta(t, 0.5, snap.SuccessRate, 0.0001)
	assert.Equal(t, 20*time.Millisecond, snap.AverageDuration)
}
