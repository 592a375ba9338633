package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("meeting not found")
)

// Config configures the meeting store.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": in-process store (lost on close)
//
// If Driver is empty, "sqlite" is assumed when Path is set, else "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RecurrencePattern enumerates supported recurrence cadences.
type RecurrencePattern string

const (
	RecurNone     RecurrencePattern = ""
	RecurWeekly   RecurrencePattern = "weekly"
	RecurBiweekly RecurrencePattern = "biweekly"
	RecurMonthly  RecurrencePattern = "monthly"
)

// Interval returns the gap between two occurrences, or 0 for non-recurring
// and monthly patterns (months are added calendar-wise, not as a duration).
func (p RecurrencePattern) Interval() time.Duration {
	switch p {
	case RecurWeekly:
		return 7 * 24 * time.Hour
	case RecurBiweekly:
		return 14 * 24 * time.Hour
	default:
		return 0
	}
}

func (p RecurrencePattern) Valid() bool {
	switch p {
	case RecurNone, RecurWeekly, RecurBiweekly, RecurMonthly:
		return true
	}
	return false
}

// Meeting is a booked calendar interval [Start, End).
//
// The scheduling core treats meetings as immutable inputs; mutation happens
// only through store operations.
type Meeting struct {
	ID           int64
	Title        string
	Description  string
	Start        time.Time
	End          time.Time
	Participants []string
	Location     string

	Recurring     bool
	RecurPattern  RecurrencePattern
	RecurrenceEnd time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Duration is the meeting length. End > Start is a store invariant.
func (m Meeting) Duration() time.Duration { return m.End.Sub(m.Start) }

// Overlaps reports half-open overlap with [start, end).
// Touching endpoints do not overlap.
func (m Meeting) Overlaps(start, end time.Time) bool {
	return m.Start.Before(end) && m.End.After(start)
}

// Patch carries partial updates. Nil fields are left untouched.
type Patch struct {
	Title        *string
	Description  *string
	Start        *time.Time
	End          *time.Time
	Participants *[]string
	Location     *string
	Recurring    *bool
	RecurPattern *RecurrencePattern
}

// validateInterval enforces the end-after-start invariant shared by all drivers.
func validateInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return errors.New("meeting start and end are required")
	}
	if !end.After(start) {
		return errors.New("meeting end must be after start")
	}
	return nil
}
