package sweeper

import (
	"context"
	"testing"
	"time"

	"calagent/internal/eventbus"
	"calagent/internal/storage"

	logx "calagent/pkg/logx"
)

var sweepNow = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC) // Monday

func newTestService(t *testing.T, store storage.Store, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(Config{Enabled: true}, store, bus, logx.Nop())
	s.now = func() time.Time { return sweepNow }
	return s
}

func create(t *testing.T, store storage.Store, m storage.Meeting) storage.Meeting {
	t.Helper()
	created, err := store.CreateMeeting(context.Background(), m)
	if err != nil {
		t.Fatalf("create %q: %v", m.Title, err)
	}
	return created
}

func TestMissingLocationAlert(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	create(t, store, storage.Meeting{
		Title: "Soon, nowhere",
		Start: sweepNow.Add(30 * time.Minute),
		End:   sweepNow.Add(90 * time.Minute),
	})
	// Same gap but located: no alert.
	create(t, store, storage.Meeting{
		Title:    "Soon, placed",
		Start:    sweepNow.Add(3 * time.Hour),
		End:      sweepNow.Add(4 * time.Hour),
		Location: "Room 1",
	})

	s := newTestService(t, store, nil)
	alerts, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1: %+v", len(alerts), alerts)
	}
	a := alerts[0]
	if a.Type != AlertMissingLocation || a.Urgency != "HIGH" {
		t.Fatalf("alert = %+v", a)
	}
	if want := "Meeting 'Soon, nowhere' starts in 30 minutes but has no location"; a.Message != want {
		t.Fatalf("message = %q, want %q", a.Message, want)
	}
}

func TestBackToBackAlert(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	first := create(t, store, storage.Meeting{
		Title:    "First",
		Start:    sweepNow.Add(2 * time.Hour),
		End:      sweepNow.Add(3 * time.Hour),
		Location: "A",
	})
	// Starts exactly when the first ends: inside the 5-minute buffer.
	create(t, store, storage.Meeting{
		Title:    "Second",
		Start:    sweepNow.Add(3 * time.Hour),
		End:      sweepNow.Add(4 * time.Hour),
		Location: "B",
	})
	// Far away: clean.
	create(t, store, storage.Meeting{
		Title:    "Lonely",
		Start:    sweepNow.Add(30 * time.Hour),
		End:      sweepNow.Add(31 * time.Hour),
		Location: "C",
	})

	s := newTestService(t, store, nil)
	alerts, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	var backToBack []Alert
	for _, a := range alerts {
		if a.Type == AlertBackToBack {
			backToBack = append(backToBack, a)
		}
	}
	// Both members of the pair are flagged, the lonely one is not.
	if len(backToBack) != 2 {
		t.Fatalf("got %d back-to-back alerts, want 2: %+v", len(backToBack), alerts)
	}
	for _, a := range backToBack {
		if a.MeetingID != first.ID && a.Title != "Second" {
			t.Fatalf("unexpected alert target: %+v", a)
		}
	}
}

func TestAlertsPublishedOnBus(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	create(t, store, storage.Meeting{
		Title: "No room",
		Start: sweepNow.Add(10 * time.Minute),
		End:   sweepNow.Add(40 * time.Minute),
	})

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s := newTestService(t, store, bus)
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	select {
	case e := <-events:
		if e.Type != eventbus.TypeSweepAlert {
			t.Fatalf("event type = %q", e.Type)
		}
		if _, ok := e.Data.(Alert); !ok {
			t.Fatalf("event data = %T", e.Data)
		}
	default:
		t.Fatal("no sweep.alert event published")
	}
}

func TestRecurringMeetingRollsForward(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	// Weekly meeting whose last occurrence was last Wednesday.
	lastWed := time.Date(2026, time.February, 25, 10, 0, 0, 0, time.UTC)
	m := create(t, store, storage.Meeting{
		Title:        "Weekly review",
		Start:        lastWed,
		End:          lastWed.Add(time.Hour),
		Location:     "Room 2",
		Recurring:    true,
		RecurPattern: storage.RecurWeekly,
	})

	s := newTestService(t, store, nil)
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	rolled, err := store.MeetingByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("MeetingByID: %v", err)
	}
	want := lastWed.AddDate(0, 0, 7) // Wednesday March 4, after sweepNow
	if !rolled.Start.Equal(want) {
		t.Fatalf("rolled to %v, want %v", rolled.Start, want)
	}
	if !rolled.Recurring {
		t.Fatal("meeting lost its recurring flag")
	}
}

func TestRecurringRollSkipsConflicts(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	lastWed := time.Date(2026, time.February, 25, 10, 0, 0, 0, time.UTC)
	m := create(t, store, storage.Meeting{
		Title:        "Weekly review",
		Start:        lastWed,
		End:          lastWed.Add(time.Hour),
		Recurring:    true,
		RecurPattern: storage.RecurWeekly,
	})
	// The next occurrence slot is taken.
	nextWed := lastWed.AddDate(0, 0, 7)
	create(t, store, storage.Meeting{
		Title: "Squatter",
		Start: nextWed.Add(-30 * time.Minute),
		End:   nextWed.Add(30 * time.Minute),
	})

	s := newTestService(t, store, nil)
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	rolled, err := store.MeetingByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("MeetingByID: %v", err)
	}
	if want := nextWed.AddDate(0, 0, 7); !rolled.Start.Equal(want) {
		t.Fatalf("rolled to %v, want the week after the conflict %v", rolled.Start, want)
	}
}

func TestRecurrenceEndStopsRolling(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	lastWed := time.Date(2026, time.February, 25, 10, 0, 0, 0, time.UTC)
	m := create(t, store, storage.Meeting{
		Title:         "Winding down",
		Start:         lastWed,
		End:           lastWed.Add(time.Hour),
		Recurring:     true,
		RecurPattern:  storage.RecurWeekly,
		RecurrenceEnd: lastWed.Add(48 * time.Hour), // before the next occurrence
	})

	s := newTestService(t, store, nil)
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	done, err := store.MeetingByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("MeetingByID: %v", err)
	}
	if done.Recurring {
		t.Fatal("recurring flag should clear past the recurrence end")
	}
	if !done.Start.Equal(lastWed) {
		t.Fatalf("meeting moved to %v despite ended recurrence", done.Start)
	}
}

func TestApplyRestartsOnCadenceChange(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	s := newTestService(t, store, nil)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.Apply(ctx, Config{Enabled: true, Every: time.Minute}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	s.mu.Lock()
	every := s.cfg.Every
	running := s.c != nil
	s.mu.Unlock()
	if every != time.Minute || !running {
		t.Fatalf("apply did not take: every=%v running=%v", every, running)
	}

	if err := s.Apply(ctx, Config{Enabled: false}); err != nil {
		t.Fatalf("Apply disable: %v", err)
	}
	s.mu.Lock()
	running = s.c != nil
	s.mu.Unlock()
	if running {
		t.Fatal("sweeper still running after disable")
	}
}
