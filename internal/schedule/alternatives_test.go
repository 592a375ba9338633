package schedule

import (
	"context"
	"testing"
	"time"

	"calagent/internal/storage"
)

func TestSuggestAlternativesInvariants(t *testing.T) {
	t.Parallel()

	st := storage.NewMemory()
	// Fill most of Monday morning so the scan has to work around it.
	seedMeeting(t, st, "Planning", at(t, monday, 9, 0), at(t, monday, 12, 0))
	f := NewFinder(NewDetector(st))

	got, err := f.SuggestAlternatives(context.Background(), at(t, monday, 10, 0), time.Hour, 7, 0)
	if err != nil {
		t.Fatalf("SuggestAlternatives error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no suggestions for a mostly free week")
	}
	if len(got) > 10 {
		t.Fatalf("suggestions = %d, want <= 10", len(got))
	}

	perDay := map[string]int{}
	var prev time.Time
	for i, slot := range got {
		if !IsWorkday(slot) {
			t.Fatalf("slot %d falls on %s", i, slot.Weekday())
		}
		dayStart, dayEnd := WorkdayWindow(slot)
		if slot.Before(dayStart) || slot.Add(time.Hour).After(dayEnd) {
			t.Fatalf("slot %d (%v) outside working window", i, slot)
		}
		conflicts, err := NewDetector(st).FindConflicts(context.Background(), slot, slot.Add(time.Hour), 0)
		if err != nil {
			t.Fatalf("conflict check: %v", err)
		}
		if len(conflicts) != 0 {
			t.Fatalf("slot %d (%v) conflicts with stored calendar", i, slot)
		}
		if i > 0 && slot.Before(prev) {
			t.Fatalf("slots not earliest-first: %v before %v", slot, prev)
		}
		prev = slot
		perDay[slot.Format("2006-01-02")]++
	}
	for day, n := range perDay {
		if n > 3 {
			t.Fatalf("day %s has %d suggestions, want <= 3", day, n)
		}
	}

	// First suggestion works around the seeded block: 12:00 is the earliest
	// free full hour on Monday.
	if want := at(t, monday, 12, 0); !got[0].Equal(want) {
		t.Fatalf("first suggestion = %v, want %v", got[0], want)
	}
}

func TestSuggestAlternativesSkipsWeekend(t *testing.T) {
	t.Parallel()

	friday := monday.AddDate(0, 0, 4)
	f := NewFinder(NewDetector(storage.NewMemory()))

	got, err := f.SuggestAlternatives(context.Background(), at(t, friday, 9, 0), time.Hour, 4, 0)
	if err != nil {
		t.Fatalf("SuggestAlternatives error: %v", err)
	}
	for _, slot := range got {
		if wd := slot.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("suggestion on weekend: %v", slot)
		}
	}
	// Friday contributes 3 and the weekend is skipped; Monday picks up next.
	if len(got) != 6 {
		t.Fatalf("suggestions = %d, want 6 (3 Friday + 3 following Monday)", len(got))
	}
	if day := got[3].Weekday(); day != time.Monday {
		t.Fatalf("fourth suggestion on %s, want Monday", day)
	}
}

func TestSuggestAlternativesRespectsDuration(t *testing.T) {
	t.Parallel()

	st := storage.NewMemory()
	f := NewFinder(NewDetector(st))

	// A 8h meeting only fits exactly at 09:00.
	got, err := f.SuggestAlternatives(context.Background(), at(t, monday, 9, 0), 8*time.Hour, 1, 0)
	if err != nil {
		t.Fatalf("SuggestAlternatives error: %v", err)
	}
	if len(got) != 1 || !got[0].Equal(at(t, monday, 9, 0)) {
		t.Fatalf("got %v, want exactly [09:00]", got)
	}
}
