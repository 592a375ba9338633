package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"calagent/internal/insight"
)

// Report summarizes the agent's state and learned signals.
type Report struct {
	UserID    string
	Mode      Mode
	Threshold float64

	Interactions       int
	LearningConfidence int
	LastInteraction    time.Time
	SuccessRate        float64

	Timing         insight.TimingPattern
	CalendarStress float64
}

// Advice bundles the learned-pattern recommendations surfaced to the user.
type Advice struct {
	Timing              insight.TimingPattern
	Mood                insight.MoodIndicators
	CalendarStress      float64
	ConflictProbability float64
	AverageDuration     time.Duration
	Suggestions         []string
}

// Report builds a point-in-time agent report.
func (s *Session) Report(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.analyzer.Snapshot(ctx, s.now())
	if err != nil {
		return Report{}, fmt.Errorf("analyze context: %w", err)
	}
	interactions, confidence, last := s.memory.Stats()

	return Report{
		UserID:             s.userID,
		Mode:               s.mode,
		Threshold:          s.threshold,
		Interactions:       interactions,
		LearningConfidence: confidence,
		LastInteraction:    last,
		SuccessRate:        s.memory.SuccessRate(),
		Timing:             snap.Timing,
		CalendarStress:     snap.CalendarStress,
	}, nil
}

// Recommendations derives personalized scheduling advice from the current
// context snapshot.
func (s *Session) Recommendations(ctx context.Context) (Advice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.analyzer.Snapshot(ctx, s.now())
	if err != nil {
		return Advice{}, fmt.Errorf("analyze context: %w", err)
	}

	return Advice{
		Timing:              snap.Timing,
		Mood:                snap.Mood,
		CalendarStress:      snap.CalendarStress,
		ConflictProbability: snap.ConflictProbability,
		AverageDuration:     snap.Timing.AverageDuration,
		Suggestions:         personalizedSuggestions(snap),
	}, nil
}

func personalizedSuggestions(snap insight.Snapshot) []string {
	var out []string

	if snap.CalendarStress > 0.7 {
		out = append(out,
			"Consider scheduling more meetings in your preferred morning slots",
			"Reduce meeting duration by 15 minutes for better productivity")
	}
	if snap.Timing.PreferredTimeOfDay == insight.Morning {
		out = append(out, "You tend to prefer mornings - consider scheduling more early meetings")
	}
	if day, ok := mostAvailableDay(snap.Availability); ok {
		out = append(out, fmt.Sprintf("%s appears to be your most available day", day))
	}
	return out
}

// mostAvailableDay finds the day with the most free working hours in the
// availability horizon, earliest date winning ties.
func mostAvailableDay(avail map[string]map[int]float64) (string, bool) {
	dates := make([]string, 0, len(avail))
	for d := range avail {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	best, bestFree := "", -1.0
	for _, d := range dates {
		free := 0.0
		for _, busy := range avail[d] {
			free += 1 - busy
		}
		if free > bestFree {
			best, bestFree = d, free
		}
	}
	if best == "" {
		return "", false
	}
	t, err := time.Parse("2006-01-02", best)
	if err != nil {
		return "", false
	}
	return t.Weekday().String(), true
}
