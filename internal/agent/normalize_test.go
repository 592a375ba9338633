package agent

import (
	"context"
	"testing"
	"time"

	"calagent/internal/insight"
)

func TestInferDuration(t *testing.T) {
	t.Parallel()

	learned := insight.TimingPattern{AverageDuration: time.Hour}
	tests := []struct {
		name string
		text string
		want time.Duration
	}{
		{"explicit minutes", "sync for 45 min", 45 * time.Minute},
		{"fractional hours", "1.5 hour planning block", 90 * time.Minute},
		{"whole hours", "2 hour workshop", 2 * time.Hour},
		{"minutes win over hours wording", "90 min review", 90 * time.Minute},
		{"quick keyword caps at half hour", "quick sync on launch", 30 * time.Minute},
		{"planning keyword raises the floor", "planning session", 2 * time.Hour},
		{"plain text falls back to average", "chat about onboarding", time.Hour},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := inferDuration(tt.text, learned); got != tt.want {
				t.Fatalf("inferDuration(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestInferDurationKeywordsRespectLearnedBase(t *testing.T) {
	t.Parallel()

	// A 20-minute habit is already under the quick-meeting cap; the
	// keyword must not lengthen it.
	short := insight.TimingPattern{AverageDuration: 20 * time.Minute}
	if got := inferDuration("quick sync", short); got != 20*time.Minute {
		t.Fatalf("got %v, want learned 20m", got)
	}

	// A 3-hour habit already exceeds the planning floor.
	long := insight.TimingPattern{AverageDuration: 3 * time.Hour}
	if got := inferDuration("deep dive review", long); got != 3*time.Hour {
		t.Fatalf("got %v, want learned 3h", got)
	}
}

func TestInferPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want Priority
	}{
		{"urgent: board prep asap", PriorityCritical},
		{"deadline review", PriorityCritical},
		{"whenever works for you", PriorityFlexible},
		{"any time next week", PriorityFlexible},
		{"sync about hiring", PriorityMedium},
	}
	for _, tt := range tests {
		if got := inferPriority(tt.text); got != tt.want {
			t.Fatalf("inferPriority(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestInferStart(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC) // Monday

	tests := []struct {
		name   string
		timing insight.TimingPattern
		want   time.Time
	}{
		{
			name:   "next learned weekday at morning hour",
			timing: insight.TimingPattern{PreferredTimeOfDay: insight.Morning, MostCommonDay: time.Wednesday},
			want:   time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC),
		},
		{
			name:   "afternoon preference uses 14:00",
			timing: insight.TimingPattern{PreferredTimeOfDay: insight.Afternoon, MostCommonDay: time.Thursday},
			want:   time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "same weekday means a week out, not today",
			timing: insight.TimingPattern{
				PreferredTimeOfDay: insight.Morning,
				MostCommonDay:      time.Monday,
			},
			want: time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := inferStart(tt.timing, now)
			if !got.Equal(tt.want) {
				t.Fatalf("inferStart = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeFillsEveryGap(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, ModeBalanced, nil)
	snap := insight.Snapshot{
		Timing: insight.TimingPattern{
			PreferredTimeOfDay: insight.Morning,
			MostCommonDay:      time.Friday,
			AverageDuration:    time.Hour,
		},
	}

	req := s.normalize(context.Background(), Request{RawText: "catch up"}, snap)
	if req.Title != "Meeting" {
		t.Fatalf("title = %q", req.Title)
	}
	if req.Start.IsZero() {
		t.Fatal("start not inferred")
	}
	if req.Duration != time.Hour {
		t.Fatalf("duration = %v", req.Duration)
	}
	if req.Location != "Virtual Meeting" {
		t.Fatalf("location = %q", req.Location)
	}
	if req.Priority != PriorityMedium {
		t.Fatalf("priority = %v", req.Priority)
	}
}

func TestNormalizeKeepsProvidedFields(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, ModeBalanced, nil)
	start := time.Date(2026, time.March, 5, 11, 0, 0, 0, time.UTC)
	in := Request{
		Title:    "1:1",
		Start:    start,
		Duration: 25 * time.Minute,
		Location: "Room 4",
		Priority: PriorityHigh,
	}
	out := s.normalize(context.Background(), in, insight.Snapshot{})
	if out.Title != in.Title || !out.Start.Equal(start) || out.Duration != in.Duration ||
		out.Location != in.Location || out.Priority != in.Priority {
		t.Fatalf("normalize mutated provided fields: %+v", out)
	}
}
