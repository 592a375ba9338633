package agent

import (
	"context"
	"testing"
	"time"

	"calagent/internal/insight"
	"calagent/internal/storage"
)

// monday is a fixed anchor inside a working week.
var monday = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, mode Mode, store storage.Store) *Session {
	t.Helper()
	if store == nil {
		store = storage.NewMemory()
	}
	s, err := NewSession(Options{
		UserID: "test-user",
		Mode:   mode,
		Store:  store,
		Now:    func() time.Time { return monday },
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func seed(t *testing.T, store storage.Store, title string, start, end time.Time) storage.Meeting {
	t.Helper()
	m, err := store.CreateMeeting(context.Background(), storage.Meeting{Title: title, Start: start, End: end})
	if err != nil {
		t.Fatalf("seed %q: %v", title, err)
	}
	return m
}

func TestAutonomousCommitsExplicitRequest(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	s := newTestSession(t, ModeAutonomous, store)

	start := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC) // tomorrow 10:00
	out, err := s.ScheduleMeeting(context.Background(), Request{
		Title:    "Design Review",
		Start:    start,
		Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("ScheduleMeeting: %v", err)
	}
	if !out.Success || out.Action != ActionAutonomousScheduling {
		t.Fatalf("outcome = %+v, want autonomous success", out)
	}
	if out.Meeting == nil || !out.Meeting.Start.Equal(start) || !out.Meeting.End.Equal(start.Add(time.Hour)) {
		t.Fatalf("booked meeting = %+v, want [10:00, 11:00)", out.Meeting)
	}
	if out.DecisionID == "" {
		t.Fatal("missing decision id")
	}

	stored, err := store.Meetings(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Meetings: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d meetings, want 1", len(stored))
	}
}

func TestExplicitConflictReturnsAlternatives(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	tomorrow10 := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	seed(t, store, "Team Standup", tomorrow10, tomorrow10.Add(time.Hour))

	s := newTestSession(t, ModeAutonomous, store)
	out, err := s.ScheduleMeeting(context.Background(), Request{
		Title:    "Overlap",
		Start:    tomorrow10.Add(30 * time.Minute),
		Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("ScheduleMeeting: %v", err)
	}
	if out.Success || out.Action != ActionConflictDetected {
		t.Fatalf("outcome = %+v, want conflict detection", out)
	}
	if len(out.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(out.Conflicts))
	}
	if want := "overlaps start of 'Team Standup'"; out.Conflicts[0].Description != want {
		t.Fatalf("description = %q, want %q", out.Conflicts[0].Description, want)
	}
	if len(out.Suggestions) == 0 {
		t.Fatal("expected alternative suggestions")
	}
	for _, sug := range out.Suggestions {
		if sug.Equal(tomorrow10) || (sug.After(tomorrow10) && sug.Before(tomorrow10.Add(time.Hour))) {
			t.Fatalf("suggestion %v lands on the busy slot", sug)
		}
	}
}

func TestAutonomousOpenRequestPicksTopSlot(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	s := newTestSession(t, ModeAutonomous, store)

	out, err := s.Schedule(context.Background(), "quick sync with Ana")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !out.Success || out.Action != ActionAutonomousScheduling {
		t.Fatalf("outcome = %+v, want autonomous success", out)
	}
	// Empty history defaults to a morning preference, so the top slot is
	// the earliest morning slot on the anchor day.
	want := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	if !out.Meeting.Start.Equal(want) {
		t.Fatalf("booked at %v, want %v", out.Meeting.Start, want)
	}
	if got := out.Meeting.End.Sub(out.Meeting.Start); got != 30*time.Minute {
		t.Fatalf("duration = %v, want 30m for a quick sync", got)
	}
	if len(out.NextSuggestions) == 0 {
		t.Fatal("expected runner-up suggestions")
	}
}

func TestBalancedModeRecommendsInsteadOfBooking(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	s := newTestSession(t, ModeBalanced, store)

	out, err := s.Schedule(context.Background(), "meeting about roadmap")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if out.Success {
		t.Fatal("balanced mode must not auto-commit")
	}
	if out.Action != ActionRecommendSlots {
		t.Fatalf("action = %q, want %q", out.Action, ActionRecommendSlots)
	}
	if len(out.Recommendations) == 0 || len(out.Recommendations) > 5 {
		t.Fatalf("got %d recommendations, want 1..5", len(out.Recommendations))
	}
	for _, r := range out.Recommendations {
		if r.Reasoning == "" {
			t.Fatalf("recommendation %v has no reasoning", r.Start)
		}
	}
	if out.SuggestedAutoSchedule == nil && out.Recommendations[0].Score > 0.8 {
		t.Fatal("top slot above 0.8 should populate the auto-schedule hint")
	}

	stored, err := store.Meetings(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Meetings: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("balanced mode booked %d meetings", len(stored))
	}
}

func TestModeSwitchFlipsDecision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestSession(t, ModeBalanced, nil)
	cands := []Slot{{Start: monday.AddDate(0, 0, 1), Score: 0.65}}
	req := Request{Title: "Borderline", Duration: time.Hour}

	out, err := s.decide(ctx, req, cands, insight.Snapshot{})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if out.Success || out.Action == ActionAutonomousScheduling {
		t.Fatalf("balanced decision = %+v, want recommendation", out)
	}

	if err := s.SetMode(ModeAutonomous); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if got := s.Threshold(); got != 0.6 {
		t.Fatalf("threshold = %v, want 0.6 after autonomous switch", got)
	}

	out, err = s.decide(ctx, req, cands, insight.Snapshot{})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !out.Success || out.Action != ActionAutonomousScheduling {
		t.Fatalf("autonomous decision = %+v, want committed booking", out)
	}
}

func TestRaisingThresholdNeverAddsCommits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cands := []Slot{{Start: monday.AddDate(0, 0, 1), Score: 0.65}}
	req := Request{Title: "Monotonic", Duration: time.Hour}

	committed := true
	for _, threshold := range []float64{0.3, 0.5, 0.64, 0.65, 0.7, 0.9} {
		s := newTestSession(t, ModeAutonomous, nil)
		s.SetThreshold(threshold)

		out, err := s.decide(ctx, req, cands, insight.Snapshot{})
		if err != nil {
			t.Fatalf("decide at %v: %v", threshold, err)
		}
		if out.Success && !committed {
			t.Fatalf("threshold %v commits after a lower one refused", threshold)
		}
		committed = out.Success
	}
}

func TestNoCandidatesExpandsSearch(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, ModeAutonomous, nil)
	out, err := s.decide(context.Background(), Request{Title: "None"}, nil, insight.Snapshot{})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if out.Success || out.Action != ActionSearchExpanded {
		t.Fatalf("outcome = %+v, want search expansion", out)
	}
}

func TestRescheduleAroundConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemory()
	tue9 := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	tue11 := time.Date(2026, time.March, 3, 11, 0, 0, 0, time.UTC)
	target := seed(t, store, "Movable", tue9, tue9.Add(time.Hour))
	seed(t, store, "Fixed", tue11, tue11.Add(time.Hour))

	s := newTestSession(t, ModeBalanced, store)

	// Moving onto the other meeting surfaces the conflict.
	out, err := s.Reschedule(ctx, target.ID, tue11.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if out.Success || out.Action != ActionConflictDetected {
		t.Fatalf("outcome = %+v, want conflict", out)
	}

	// Moving back onto its own old slot is fine: the meeting is excluded
	// from its own conflict check.
	out, err = s.Reschedule(ctx, target.ID, tue9.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !out.Success || out.Action != ActionRescheduled {
		t.Fatalf("outcome = %+v, want reschedule", out)
	}
	if !out.Meeting.Start.Equal(tue9.Add(30 * time.Minute)) {
		t.Fatalf("new start = %v", out.Meeting.Start)
	}
	if got := out.Meeting.End.Sub(out.Meeting.Start); got != time.Hour {
		t.Fatalf("duration changed to %v", got)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemory()
	m := seed(t, store, "Doomed", monday.Add(2*time.Hour), monday.Add(3*time.Hour))
	s := newTestSession(t, ModeBalanced, store)

	deleted, err := s.Cancel(ctx, m.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !deleted {
		t.Fatal("expected deletion")
	}
	deleted, err = s.Cancel(ctx, m.ID)
	if err != nil {
		t.Fatalf("Cancel again: %v", err)
	}
	if deleted {
		t.Fatal("second cancel should report missing")
	}
}

func TestThresholdClamping(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, ModeBalanced, nil)
	s.SetThreshold(0.05)
	if got := s.Threshold(); got != 0.3 {
		t.Fatalf("threshold = %v, want clamp to 0.3", got)
	}
	s.SetThreshold(1.5)
	if got := s.Threshold(); got != 0.9 {
		t.Fatalf("threshold = %v, want clamp to 0.9", got)
	}
}
