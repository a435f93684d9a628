// Package timeutil provides UTC window and truncation helpers for
// time-windowed leaderboards. All boundaries are computed in UTC; the
// engine never deals in local time.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// TRUNCATION
// ══════════════════════════════════════════════════════════════════════════════

// StartOfDay returns midnight UTC of the given day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of the given day in UTC.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfWeek returns midnight UTC of the Monday of the given week.
func StartOfWeek(t time.Time) time.Time {
	u := StartOfDay(t)
	weekday := int(u.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the preceding Monday's week
	}
	return u.AddDate(0, 0, -(weekday - 1))
}

// EndOfWeek returns the last nanosecond of the Sunday of the given week.
func EndOfWeek(t time.Time) time.Time {
	return StartOfWeek(t).AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// StartOfMonth returns midnight UTC of the first day of the given month.
func StartOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last nanosecond of the given month.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// ══════════════════════════════════════════════════════════════════════════════
// WINDOWS
// ══════════════════════════════════════════════════════════════════════════════

// DayWindow returns the [from, to] bounds of the day containing t.
func DayWindow(t time.Time) (time.Time, time.Time) {
	return StartOfDay(t), EndOfDay(t)
}

// WeekWindow returns the [from, to] bounds of the week containing t.
func WeekWindow(t time.Time) (time.Time, time.Time) {
	return StartOfWeek(t), EndOfWeek(t)
}

// MonthWindow returns the [from, to] bounds of the month containing t.
func MonthWindow(t time.Time) (time.Time, time.Time) {
	return StartOfMonth(t), EndOfMonth(t)
}

// InRange reports whether t falls inside [from, to]. A zero from means the
// window has no lower bound; a zero to means it is open-ended.
func InRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// DAY ARITHMETIC
// ══════════════════════════════════════════════════════════════════════════════

// IsSameDay checks if two times are on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	u1, u2 := t1.UTC(), t2.UTC()
	return u1.Year() == u2.Year() && u1.YearDay() == u2.YearDay()
}

// DaysBetween calculates the number of whole days between two times.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// DaysSince calculates the number of days since the given time.
func DaysSince(t time.Time) int {
	return DaysBetween(t, time.Now())
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMATTING
// ══════════════════════════════════════════════════════════════════════════════

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in UTC.
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// FormatDateTimeStr formats a time as a datetime string in UTC.
func FormatDateTimeStr(t time.Time) string {
	return t.UTC().Format(FormatDateTime)
}

// FormatDuration renders a duration in a compact human form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// ParseDate parses a date string (YYYY-MM-DD) as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, time.UTC)
}

// ParseDateTime parses a datetime string as UTC.
func ParseDateTime(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDateTime, value, time.UTC)
}
