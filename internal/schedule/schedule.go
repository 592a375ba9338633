package schedule

// Package schedule answers the two questions at the bottom of every
// scheduling decision: does a candidate interval collide with the calendar,
// and if so, where else could it go.
//
// Both operations are pure queries against the meeting store.

import "time"

// Working-day window used for conflict alternatives and slot scanning.
const (
	WorkdayStartHour = 9
	WorkdayEndHour   = 17

	// ScanStep is the granularity of the alternative-slot scan.
	ScanStep = 30 * time.Minute

	// DefaultDaysAhead bounds how far SuggestAlternatives looks by default.
	DefaultDaysAhead = 7

	maxPerDay = 3
	maxTotal  = 10
)

// IsWorkday reports whether t falls on a weekday.
func IsWorkday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// WorkdayWindow returns the [09:00, 17:00) window of t's calendar day,
// in t's location.
func WorkdayWindow(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, WorkdayStartHour, 0, 0, 0, t.Location())
	end = time.Date(y, m, d, WorkdayEndHour, 0, 0, 0, t.Location())
	return start, end
}
