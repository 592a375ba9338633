package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memStore keeps meetings in a map guarded by a mutex. Query results are
// copies; callers never observe internal state.
type memStore struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]Meeting
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memStore{nextID: 1, items: map[int64]Meeting{}}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) CreateMeeting(ctx context.Context, m Meeting) (Meeting, error) {
	_ = ctx
	if err := validateInterval(m.Start, m.End); err != nil {
		return Meeting{}, err
	}
	if !m.RecurPattern.Valid() {
		return Meeting{}, fmt.Errorf("invalid recurrence pattern %q", m.RecurPattern)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.ID = s.nextID
	s.nextID++
	s.items[m.ID] = m
	return m, nil
}

func (s *memStore) Meetings(ctx context.Context, from, to time.Time) ([]Meeting, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Meeting, 0, len(s.items))
	for _, m := range s.items {
		if !from.IsZero() && m.Start.Before(from) {
			continue
		}
		if !to.IsZero() && m.Start.After(to) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *memStore) MeetingByID(ctx context.Context, id int64) (Meeting, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.items[id]
	if !ok {
		return Meeting{}, ErrNotFound
	}
	return m, nil
}

func (s *memStore) UpdateMeeting(ctx context.Context, id int64, p Patch) (Meeting, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[id]
	if !ok {
		return Meeting{}, ErrNotFound
	}
	next := applyPatch(cur, p)
	if err := validateInterval(next.Start, next.End); err != nil {
		return Meeting{}, err
	}
	if !next.RecurPattern.Valid() {
		return Meeting{}, fmt.Errorf("invalid recurrence pattern %q", next.RecurPattern)
	}
	next.UpdatedAt = time.Now().UTC()
	s.items[id] = next
	return next, nil
}

func (s *memStore) DeleteMeeting(ctx context.Context, id int64) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

func (s *memStore) FindOverlapping(ctx context.Context, start, end time.Time, excludeID int64) ([]Meeting, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Meeting
	for _, m := range s.items {
		if excludeID > 0 && m.ID == excludeID {
			continue
		}
		if m.Overlaps(start, end) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
