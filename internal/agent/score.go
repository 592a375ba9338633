package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"calagent/internal/insight"
)

// Slot scan bounds: two weeks of on-the-hour working-hour starts.
const (
	scanDays      = 14
	scanStartHour = 9
	scanEndHour   = 17 // exclusive: last candidate starts at 16:00

	minSlotScore  = 0.3
	maxCandidates = 10
)

// Score weights. Conflict-freedom dominates; urgency only nudges.
const (
	weightConflict   = 0.4
	weightPreference = 0.3
	weightStress     = 0.2
	weightUrgency    = 0.1
)

// scoreSlot combines four factors into a [0, 1] confidence score for
// booking [slot, slot+duration).
func (s *Session) scoreSlot(ctx context.Context, slot time.Time, req Request, snap insight.Snapshot, excludeID int64) (float64, error) {
	conflicts, err := s.detector.FindConflicts(ctx, slot, slot.Add(req.Duration), excludeID)
	if err != nil {
		return 0, fmt.Errorf("score slot: %w", err)
	}
	conflictScore := 1.0
	if len(conflicts) > 0 {
		conflictScore = 0.0
	}

	preference := 0.5
	if snap.Timing.PreferredTimeOfDay.Matches(slot) {
		preference = 0.8
	}

	stress := 0.8
	if snap.CalendarStress >= 0.6 {
		stress = 0.3
	}

	urgency := urgencyFactor(req.Priority, calendarDaysBetween(s.now(), slot))

	return weightConflict*conflictScore +
		weightPreference*preference +
		weightStress*stress +
		weightUrgency*urgency, nil
}

// urgencyFactor expresses how the request's flexibility values slot
// distance: critical prefers sooner, flexible prefers later, everything
// else decays gently.
func urgencyFactor(p Priority, daysFromNow int) float64 {
	d := float64(daysFromNow)
	switch p {
	case PriorityCritical:
		v := 1.0 - d*0.2
		if v < 0 {
			return 0
		}
		return v
	case PriorityFlexible:
		if d < 0 {
			return 0
		}
		return d * 0.1
	default:
		return 1.0 / (1.0 + d*0.2)
	}
}

// candidates scans the next two weeks of working hours and returns the
// top-scored slots, descending, ties broken by earlier start.
func (s *Session) candidates(ctx context.Context, req Request, snap insight.Snapshot) ([]Slot, error) {
	now := s.now()
	var out []Slot
	for offset := 0; offset < scanDays; offset++ {
		day := now.AddDate(0, 0, offset)
		for hour := scanStartHour; hour < scanEndHour; hour++ {
			slot := atHour(day, hour)
			score, err := s.scoreSlot(ctx, slot, req, snap, 0)
			if err != nil {
				return nil, err
			}
			if score > minSlotScore {
				out = append(out, Slot{Start: slot, Score: score})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out, nil
}

// calendarDaysBetween counts whole calendar days from a to b, ignoring
// clock time.
func calendarDaysBetween(a, b time.Time) int {
	am := atHour(a, 0)
	bm := atHour(b.In(a.Location()), 0)
	return int(bm.Sub(am).Hours() / 24)
}
