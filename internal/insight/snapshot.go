package insight

import "time"

// TimeOfDay is the half-of-day preference derived from meeting history.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
)

// Matches reports whether t falls into this half of the day.
func (p TimeOfDay) Matches(t time.Time) bool {
	if p == Morning {
		return t.Hour() < 12
	}
	return t.Hour() >= 12
}

// TimingPattern summarizes when the user tends to meet.
type TimingPattern struct {
	PreferredTimeOfDay TimeOfDay
	MostCommonDay      time.Weekday
	AverageDuration    time.Duration
}

// PreferredHour is the concrete hour used when a request carries no start
// time: 9 for morning-leaning calendars, 14 otherwise.
func (p TimingPattern) PreferredHour() int {
	if p.PreferredTimeOfDay == Morning {
		return 9
	}
	return 14
}

// MoodIndicators are heuristic stress signals derived from the trailing
// week of calendar churn. All values are in [0, 1].
type MoodIndicators struct {
	StressLevel  float64
	Productivity float64
	BalanceScore float64
}

// Snapshot is the point-in-time bundle of calendar signals feeding slot
// scoring and request normalization.
//
// Snapshots are values: recomputed when needed, never mutated in place.
// All probability/score fields are clamped to [0, 1].
type Snapshot struct {
	TakenAt time.Time
	Weekday time.Weekday
	Hour    int

	// Availability maps ISO dates (next 14 days) to per-hour busy scores
	// for working hours: 1.0 busy, 0.0 free.
	Availability map[string]map[int]float64

	ConflictProbability float64
	Timing              TimingPattern
	Mood                MoodIndicators
	CalendarStress      float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
