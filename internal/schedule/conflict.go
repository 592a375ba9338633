package schedule

import (
	"context"
	"fmt"
	"time"

	"calagent/internal/storage"
)

// Conflict pairs an overlapping meeting with a human-readable description
// of how the candidate interval collides with it.
type Conflict struct {
	Meeting     storage.Meeting
	Description string
}

// Detector finds and classifies collisions between a candidate interval
// and stored meetings. It has no side effects.
type Detector struct {
	store storage.Store
}

func NewDetector(store storage.Store) *Detector {
	return &Detector{store: store}
}

// FindConflicts returns every stored meeting overlapping [start, end),
// half-open: touching endpoints do not conflict. excludeID removes one
// meeting from consideration (rescheduling a meeting against itself).
func (d *Detector) FindConflicts(ctx context.Context, start, end time.Time, excludeID int64) ([]Conflict, error) {
	overlapping, err := d.store.FindOverlapping(ctx, start, end, excludeID)
	if err != nil {
		return nil, fmt.Errorf("find overlapping: %w", err)
	}

	out := make([]Conflict, 0, len(overlapping))
	for _, m := range overlapping {
		out = append(out, Conflict{Meeting: m, Description: classify(start, end, m)})
	}
	return out, nil
}

// classify names the overlap shape relative to the candidate. Order
// matters: start-overlap first, then end-overlap, then full coverage, else
// the generic fallback. Identical intervals resolve to "completely covered".
func classify(start, end time.Time, m storage.Meeting) string {
	switch {
	case startsWithin(start, m) && end.After(m.End):
		// candidate begins inside the meeting and extends past it
		return fmt.Sprintf("overlaps start of '%s'", m.Title)
	case endsWithin(end, m) && start.Before(m.Start):
		// candidate ends inside the meeting, having begun before it
		return fmt.Sprintf("overlaps end of '%s'", m.Title)
	case !m.Start.After(start) && !m.End.Before(end):
		return fmt.Sprintf("completely covered by '%s'", m.Title)
	default:
		return fmt.Sprintf("partially overlaps '%s'", m.Title)
	}
}

// startsWithin reports t ∈ [m.Start, m.End).
func startsWithin(t time.Time, m storage.Meeting) bool {
	return !t.Before(m.Start) && t.Before(m.End)
}

// endsWithin reports t ∈ (m.Start, m.End]. The candidate's end instant is
// exclusive on the candidate side.
func endsWithin(t time.Time, m storage.Meeting) bool {
	return t.After(m.Start) && !t.After(m.End)
}
