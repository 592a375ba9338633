package schedule

import (
	"context"
	"time"
)

// Finder proposes conflict-free start times near a desired slot.
//
// The scan is greedy and deterministic: earliest-first within working hours
// on weekdays, 30-minute steps, at most 3 suggestions per day and 10 total.
type Finder struct {
	detector *Detector
}

func NewFinder(detector *Detector) *Finder {
	return &Finder{detector: detector}
}

// SuggestAlternatives scans [desiredStart's date, +daysAhead) for start
// times where [t, t+duration) fits inside the working window with zero
// conflicts. daysAhead <= 0 means DefaultDaysAhead. excludeID is passed
// through to conflict checks.
func (f *Finder) SuggestAlternatives(ctx context.Context, desiredStart time.Time, duration time.Duration, daysAhead int, excludeID int64) ([]time.Time, error) {
	if daysAhead <= 0 {
		daysAhead = DefaultDaysAhead
	}
	if duration <= 0 {
		duration = time.Hour
	}

	var out []time.Time
	for offset := 0; offset < daysAhead && len(out) < maxTotal; offset++ {
		day := desiredStart.AddDate(0, 0, offset)
		if !IsWorkday(day) {
			continue
		}
		slots, err := f.daySlots(ctx, day, duration, excludeID, maxPerDay, maxTotal-len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, slots...)
	}
	return out, nil
}

func (f *Finder) daySlots(ctx context.Context, day time.Time, duration time.Duration, excludeID int64, perDay, remaining int) ([]time.Time, error) {
	limit := perDay
	if remaining < limit {
		limit = remaining
	}

	dayStart, dayEnd := WorkdayWindow(day)
	var slots []time.Time
	for t := dayStart; !t.Add(duration).After(dayEnd) && len(slots) < limit; t = t.Add(ScanStep) {
		conflicts, err := f.detector.FindConflicts(ctx, t, t.Add(duration), excludeID)
		if err != nil {
			return nil, err
		}
		if len(conflicts) == 0 {
			slots = append(slots, t)
		}
	}
	return slots, nil
}
