package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	// 2026-08-15 was a Saturday.
	in := time.Date(2026, 8, 15, 17, 42, 13, 999, time.UTC)
	got := StartOfDay(in)
	assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestStartOfDay_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+6", 6*3600)
	// 03:00 local on the 15th is still the 14th in UTC.
	in := time.Date(2026, 8, 15, 3, 0, 0, 0, loc)
	got := StartOfDay(in)
	assert.Equal(t, time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC), got)
}

func TestEndOfDay(t *testing.T) {
	in := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	got := EndOfDay(in)
	assert.Equal(t, 15, got.Day())
	assert.Equal(t, 23, got.Hour())
	assert.True(t, got.Before(time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC)))
}

func TestStartOfWeek_MondayStart(t *testing.T) {
	monday := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   time.Time
	}{
		{"monday itself", time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)},
		{"midweek", time.Date(2026, 8, 12, 23, 59, 0, 0, time.UTC)},
		{"sunday belongs to the preceding monday", time.Date(2026, 8, 16, 1, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, monday, StartOfWeek(tc.in))
		})
	}
}

func TestEndOfWeek(t *testing.T) {
	in := time.Date(2026, 8, 12, 12, 0, 0, 0, time.UTC)
	got := EndOfWeek(in)
	assert.Equal(t, time.Sunday, got.Weekday())
	assert.Equal(t, 16, got.Day())
}

func TestMonthBounds(t *testing.T) {
	in := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), StartOfMonth(in))

	end := EndOfMonth(in)
	assert.Equal(t, 28, end.Day(), "2026 is not a leap year")
	assert.Equal(t, time.February, end.Month())
}

func TestDayWindowContainsItsInput(t *testing.T) {
	in := time.Date(2026, 8, 15, 17, 0, 0, 0, time.UTC)
	from, to := DayWindow(in)
	assert.True(t, InRange(in, from, to))
	assert.False(t, InRange(in.AddDate(0, 0, 1), from, to))
	assert.False(t, InRange(in.AddDate(0, 0, -1), from, to))
}

func TestInRange(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	assert.True(t, InRange(from, from, to), "bounds are inclusive")
	assert.True(t, InRange(to, from, to))
	assert.True(t, InRange(from.AddDate(0, 0, 10), from, to))
	assert.False(t, InRange(from.Add(-time.Nanosecond), from, to))
	assert.False(t, InRange(to.Add(time.Nanosecond), from, to))
}

func TestInRange_OpenBounds(t *testing.T) {
	anchor := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	// Zero to: open-ended window.
	assert.True(t, InRange(anchor.AddDate(10, 0, 0), anchor, time.Time{}))
	assert.False(t, InRange(anchor.Add(-time.Hour), anchor, time.Time{}))

	// Zero from: no lower bound.
	assert.True(t, InRange(anchor.AddDate(-10, 0, 0), time.Time{}, anchor))

	// Both zero: everything matches.
	assert.True(t, InRange(anchor, time.Time{}, time.Time{}))
}

func TestIsSameDay(t *testing.T) {
	a := time.Date(2026, 8, 15, 0, 0, 1, 0, time.UTC)
	b := time.Date(2026, 8, 15, 23, 59, 59, 0, time.UTC)
	assert.True(t, IsSameDay(a, b))
	assert.False(t, IsSameDay(a, b.Add(time.Second)))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 8, 15, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 8, 17, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, DaysBetween(a, b))
	assert.Equal(t, 2, DaysBetween(b, a), "order must not matter")
	assert.Equal(t, 0, DaysBetween(a, a))
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatDuration(tc.in))
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-08-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("15.08.2026")
	assert.Error(t, err)
}

func TestParseDateTime(t *testing.T) {
	got, err := ParseDateTime("2026-08-15 17:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 15, 17, 30, 0, 0, time.UTC), got)
}
