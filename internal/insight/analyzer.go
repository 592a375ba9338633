package insight

// Package insight derives scheduling signals from the stored calendar:
// availability, density, timing habits, and stress heuristics.
//
// Everything here is a read-only computation over store queries. Calling
// the analyzer twice without an intervening store mutation yields identical
// snapshots.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"calagent/internal/storage"
)

const (
	availabilityDays = 14
	stressDays       = 30
	workdayHours     = 8

	// Thin history falls back to fixed defaults rather than noisy estimates.
	minMeetingsForProbability = 10
	minMeetingsForTiming      = 5
	minRecentForMood          = 3
)

type Analyzer struct {
	store storage.Store
}

func NewAnalyzer(store storage.Store) *Analyzer {
	return &Analyzer{store: store}
}

// Snapshot computes the full signal bundle as of now.
func (a *Analyzer) Snapshot(ctx context.Context, now time.Time) (Snapshot, error) {
	meetings, err := a.store.Meetings(ctx, time.Time{}, time.Time{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load meetings: %w", err)
	}

	return Snapshot{
		TakenAt:             now,
		Weekday:             now.Weekday(),
		Hour:                now.Hour(),
		Availability:        availability(meetings, now),
		ConflictProbability: conflictProbability(meetings, now),
		Timing:              timingPattern(meetings),
		Mood:                moodIndicators(meetings, now),
		CalendarStress:      calendarStress(meetings, now),
	}, nil
}

// TimingPattern recomputes only the timing habits; the normalizer uses this
// without paying for a full snapshot.
func (a *Analyzer) TimingPattern(ctx context.Context) (TimingPattern, error) {
	meetings, err := a.store.Meetings(ctx, time.Time{}, time.Time{})
	if err != nil {
		return TimingPattern{}, fmt.Errorf("load meetings: %w", err)
	}
	return timingPattern(meetings), nil
}

// PreferredLocation returns the most frequently used past location,
// canonicalized, or the given default when history is empty.
func (a *Analyzer) PreferredLocation(ctx context.Context, def string) (string, error) {
	meetings, err := a.store.Meetings(ctx, time.Time{}, time.Time{})
	if err != nil {
		return "", fmt.Errorf("load meetings: %w", err)
	}

	counts := map[string]int{}
	best, bestN := "", 0
	for _, m := range meetings {
		loc := strings.TrimSpace(m.Location)
		if loc == "" {
			continue
		}
		counts[loc]++
		if counts[loc] > bestN {
			best, bestN = loc, counts[loc]
		}
	}
	if best == "" {
		return def, nil
	}
	return canonicalLocation(best), nil
}

func canonicalLocation(loc string) string {
	lower := strings.ToLower(loc)
	switch {
	case strings.Contains(lower, "virtual") || strings.Contains(lower, "zoom"):
		return "Virtual Meeting"
	case strings.Contains(lower, "conference"):
		return "Conference Room A"
	default:
		return loc
	}
}

// availability marks each working hour of the next 14 days 1.0 when any
// stored meeting occupies it, else 0.0.
func availability(meetings []storage.Meeting, now time.Time) map[string]map[int]float64 {
	out := make(map[string]map[int]float64, availabilityDays)
	for offset := 0; offset < availabilityDays; offset++ {
		day := now.AddDate(0, 0, offset)
		dayKey := day.Format("2006-01-02")

		busy := map[int]bool{}
		for _, m := range meetings {
			if !sameDate(m.Start, day) {
				continue
			}
			for h := m.Start.Hour(); h <= m.End.Hour(); h++ {
				busy[h] = true
			}
		}

		hours := make(map[int]float64, workdayHours+1)
		for h := 9; h <= 17; h++ {
			if busy[h] {
				hours[h] = 1.0
			} else {
				hours[h] = 0.0
			}
		}
		out[dayKey] = hours
	}
	return out
}

// conflictProbability estimates how likely a fresh request is to collide.
// Density is busy time over the 30-day working span. (The system this
// derives from divided busy hours by themselves, pinning the estimate at
// the cap; the ratio here makes the estimate follow actual load.)
func conflictProbability(meetings []storage.Meeting, now time.Time) float64 {
	if len(meetings) < minMeetingsForProbability {
		return 0.3
	}
	busy := busyDuration(meetings, now, stressDays)
	span := time.Duration(stressDays*workdayHours) * time.Hour
	density := float64(busy) / float64(span)
	p := density * 1.5
	if p > 0.9 {
		p = 0.9
	}
	return clamp01(p)
}

func timingPattern(meetings []storage.Meeting) TimingPattern {
	if len(meetings) < minMeetingsForTiming {
		return TimingPattern{
			PreferredTimeOfDay: Morning,
			MostCommonDay:      time.Friday,
			AverageDuration:    time.Hour,
		}
	}

	morning := 0
	var total time.Duration
	counts := map[time.Weekday]int{}
	bestDay, bestN := time.Friday, 0
	for _, m := range meetings {
		if m.Start.Hour() < 12 {
			morning++
		}
		total += m.Duration()
		wd := m.Start.Weekday()
		counts[wd]++
		// strictly-greater keeps the first weekday to reach the max
		if counts[wd] > bestN {
			bestDay, bestN = wd, counts[wd]
		}
	}

	pref := Afternoon
	if float64(morning)/float64(len(meetings)) > 0.5 {
		pref = Morning
	}
	return TimingPattern{
		PreferredTimeOfDay: pref,
		MostCommonDay:      bestDay,
		AverageDuration:    total / time.Duration(len(meetings)),
	}
}

// moodIndicators looks at meetings created in the trailing 7 days.
func moodIndicators(meetings []storage.Meeting, now time.Time) MoodIndicators {
	cutoff := now.AddDate(0, 0, -7)
	var recent []storage.Meeting
	for _, m := range meetings {
		if m.CreatedAt.After(cutoff) {
			recent = append(recent, m)
		}
	}
	if len(recent) < minRecentForMood {
		return MoodIndicators{StressLevel: 0.3, Productivity: 0.7, BalanceScore: 0.6}
	}

	cancels, stressed := 0, 0
	for _, m := range recent {
		isCancel := strings.Contains(strings.ToLower(m.Title), "cancel")
		if isCancel {
			cancels++
		}
		if isCancel ||
			strings.Contains(strings.ToLower(m.Description), "urgent") ||
			m.Duration() > 2*time.Hour {
			stressed++
		}
	}

	n := float64(len(recent))
	stress := clamp01(float64(stressed) / n)
	productivity := 1.0 - clamp01(float64(cancels)/n*2)
	balance := 1.0 - stress*0.5
	if balance < 0 {
		balance = 0
	}
	return MoodIndicators{
		StressLevel:  stress,
		Productivity: clamp01(productivity),
		BalanceScore: clamp01(balance),
	}
}

// calendarStress is booked time over available working time for the next
// 30 days, capped at 1.0.
func calendarStress(meetings []storage.Meeting, now time.Time) float64 {
	busy := busyDuration(meetings, now, stressDays)
	capacity := time.Duration(stressDays*workdayHours) * time.Hour
	return clamp01(float64(busy) / float64(capacity))
}

func busyDuration(meetings []storage.Meeting, now time.Time, days int) time.Duration {
	var busy time.Duration
	for offset := 0; offset < days; offset++ {
		day := now.AddDate(0, 0, offset)
		for _, m := range meetings {
			if sameDate(m.Start, day) {
				busy += m.Duration()
			}
		}
	}
	return busy
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
