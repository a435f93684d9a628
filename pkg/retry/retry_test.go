package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastOptions() []Option {
	return []Option{
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2 * time.Millisecond),
		WithJitter(0),
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := New(fastOptions()...).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastErrorWhenAttemptsSpent(t *testing.T) {
	calls := 0
	err := New(fastOptions()...).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorFailsFast(t *testing.T) {
	calls := 0
	err := New(fastOptions()...).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
	assert.False(t, IsPermanent(err), "marker must be stripped from the returned error")
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := New(fastOptions()...).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDoWithData_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errFlaky
		}
		return 42, nil
	}, fastOptions()...)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestNew_OutOfRangeOptionsFallBackToDefaults(t *testing.T) {
	r := New(WithMaxAttempts(-1), WithMultiplier(0.5), WithJitter(2.0))

	def := DefaultConfig()
	assert.Equal(t, def.MaxAttempts, r.config.MaxAttempts)
	assert.Equal(t, def.Multiplier, r.config.Multiplier)
	assert.Equal(t, def.JitterFactor, r.config.JitterFactor)
}

func TestDelay_GrowsAndStaysCapped(t *testing.T) {
	r := New(
		WithInitialDelay(10*time.Millisecond),
		WithMaxDelay(40*time.Millisecond),
		WithMultiplier(2.0),
		WithJitter(0),
	)

	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 40*time.Millisecond, r.delay(3))
	assert.Equal(t, 40*time.Millisecond, r.delay(6))
}
