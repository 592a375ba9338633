package sweeper

// Package sweeper runs the proactive calendar sweep: on a fixed cadence it
// looks over the coming days for meetings that need attention (no location
// shortly before start, back-to-back chains) and rolls recurring meetings
// forward to their next occurrence. Findings are published on the event
// bus; the sweeper never blocks the scheduling path.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"calagent/internal/eventbus"
	"calagent/internal/schedule"
	"calagent/internal/storage"

	logx "calagent/pkg/logx"
)

const (
	defaultEvery       = 15 * time.Minute
	defaultHorizonDays = 7

	// Meetings starting within this window without a location are flagged.
	locationWarnWindow = time.Hour

	// Buffer around a meeting for back-to-back detection.
	backToBackBuffer = 5 * time.Minute

	// How many occurrences ahead a recurring meeting may skip past
	// conflicts before the sweep gives up until next time.
	maxRollAttempts = 12
)

// Alert types.
const (
	AlertMissingLocation = "MISSING_LOCATION"
	AlertBackToBack      = "BACK_TO_BACK"
)

// Alert is one finding from a sweep, published as sweep.alert event data.
type Alert struct {
	Type      string `json:"type"`
	Urgency   string `json:"urgency"`
	MeetingID int64  `json:"meeting_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

type Config struct {
	Enabled     bool
	Every       time.Duration
	HorizonDays int
}

func (c Config) withDefaults() Config {
	if c.Every <= 0 {
		c.Every = defaultEvery
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	return c
}

// Service owns the sweep schedule. Start/Stop bracket a cron runner;
// Apply swaps the cadence at runtime.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc

	store    storage.Store
	detector *schedule.Detector
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time
}

func New(cfg Config, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		store:    store,
		detector: schedule.NewDetector(store),
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		s.log.Debug("sweeper disabled")
		return nil
	}
	if s.c != nil {
		return nil
	}
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.Every)
	if _, err := c.AddFunc(spec, func() { s.runScheduled(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("sweeper schedule %q: %w", spec, err)
	}
	c.Start()
	s.c = c
	s.runCtx = runCtx
	s.cancel = cancel
	s.log.Info("sweeper started", logx.Duration("every", s.cfg.Every), logx.Int("horizon_days", s.cfg.HorizonDays))

	// First pass right away so a fresh process surfaces imminent issues
	// before the first tick.
	go s.runScheduled(runCtx)
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	s.cancel()
	stopCtx := s.c.Stop()
	// Bounded wait for an in-flight sweep.
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn("sweeper stop timed out waiting for running job")
	}
	s.c = nil
	s.cancel = nil
	s.runCtx = nil
	s.log.Info("sweeper stopped")
}

// Apply swaps the configuration, restarting the schedule when the cadence
// or enablement changed. Safe to call while running.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg == s.cfg {
		return nil
	}
	old := s.cfg
	s.cfg = cfg

	running := s.c != nil
	if running && (!cfg.Enabled || cfg.Every != old.Every) {
		s.stopLocked()
		running = false
	}
	if cfg.Enabled && !running {
		return s.startLocked(ctx)
	}
	return nil
}

func (s *Service) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error("sweep failed", logx.Err(err))
	}
}

// RunOnce executes a single sweep and returns its alerts.
func (s *Service) RunOnce(ctx context.Context) ([]Alert, error) {
	s.mu.Lock()
	horizon := s.cfg.HorizonDays
	s.mu.Unlock()

	now := s.now()
	if err := s.rollRecurring(ctx, now); err != nil {
		return nil, err
	}

	meetings, err := s.store.Meetings(ctx, now, now.AddDate(0, 0, horizon))
	if err != nil {
		return nil, fmt.Errorf("load upcoming meetings: %w", err)
	}

	var alerts []Alert
	for _, m := range meetings {
		alerts = append(alerts, s.checkMeeting(ctx, m, now)...)
	}
	for _, a := range alerts {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSweepAlert, Data: a})
		s.log.Warn("sweep alert",
			logx.String("type", a.Type),
			logx.String("urgency", a.Urgency),
			logx.Int64("meeting_id", a.MeetingID),
			logx.String("message", a.Message))
	}
	return alerts, nil
}

func (s *Service) checkMeeting(ctx context.Context, m storage.Meeting, now time.Time) []Alert {
	var alerts []Alert

	untilStart := m.Start.Sub(now)
	if untilStart > 0 && untilStart < locationWarnWindow && m.Location == "" {
		alerts = append(alerts, Alert{
			Type:      AlertMissingLocation,
			Urgency:   "HIGH",
			MeetingID: m.ID,
			Title:     m.Title,
			Message:   fmt.Sprintf("Meeting '%s' starts in %d minutes but has no location", m.Title, int(untilStart/time.Minute)),
		})
	}

	neighbors, err := s.detector.FindConflicts(ctx, m.Start.Add(-backToBackBuffer), m.End.Add(backToBackBuffer), m.ID)
	if err != nil {
		s.log.Error("back-to-back check failed", logx.Int64("meeting_id", m.ID), logx.Err(err))
		return alerts
	}
	if len(neighbors) > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertBackToBack,
			Urgency:   "MEDIUM",
			MeetingID: m.ID,
			Title:     m.Title,
			Message:   fmt.Sprintf("Meeting '%s' runs back-to-back with %d other meeting(s) - consider rescheduling", m.Title, len(neighbors)),
		})
	}
	return alerts
}

// rollRecurring advances recurring meetings whose latest occurrence has
// passed, skipping occurrences that would conflict. A meeting past its
// recurrence end loses the recurring flag instead.
func (s *Service) rollRecurring(ctx context.Context, now time.Time) error {
	meetings, err := s.store.Meetings(ctx, time.Time{}, now)
	if err != nil {
		return fmt.Errorf("load past meetings: %w", err)
	}

	for _, m := range meetings {
		if !m.Recurring || !m.RecurPattern.Valid() || m.RecurPattern == storage.RecurNone {
			continue
		}
		if !m.End.Before(now) {
			continue
		}
		if err := s.rollMeeting(ctx, m, now); err != nil {
			s.log.Error("roll recurring meeting failed", logx.Int64("meeting_id", m.ID), logx.Err(err))
		}
	}
	return nil
}

func (s *Service) rollMeeting(ctx context.Context, m storage.Meeting, now time.Time) error {
	duration := m.Duration()

	// Catch up to the first occurrence in the future.
	next := m.Start
	for !next.After(now) {
		next = nextOccurrence(next, m.RecurPattern)
		if next.IsZero() {
			return nil
		}
	}

	for attempt := 0; attempt < maxRollAttempts; attempt++ {
		if !m.RecurrenceEnd.IsZero() && next.After(m.RecurrenceEnd) {
			off := false
			_, err := s.store.UpdateMeeting(ctx, m.ID, storage.Patch{Recurring: &off})
			return err
		}

		conflicts, err := s.detector.FindConflicts(ctx, next, next.Add(duration), m.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			next = nextOccurrence(next, m.RecurPattern)
			continue
		}

		end := next.Add(duration)
		updated, err := s.store.UpdateMeeting(ctx, m.ID, storage.Patch{Start: &next, End: &end})
		if err != nil {
			return err
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeMeetingRescheduled, Data: map[string]any{
			"meeting_id": updated.ID,
			"title":      updated.Title,
			"start":      updated.Start,
			"recurrence": string(m.RecurPattern),
		}})
		s.log.Info("recurring meeting rolled forward",
			logx.Int64("meeting_id", m.ID),
			logx.String("pattern", string(m.RecurPattern)),
			logx.Time("next", next))
		return nil
	}
	return nil
}

func nextOccurrence(after time.Time, p storage.RecurrencePattern) time.Time {
	switch p {
	case storage.RecurWeekly, storage.RecurBiweekly:
		return after.Add(p.Interval())
	case storage.RecurMonthly:
		return after.AddDate(0, 1, 0)
	}
	return time.Time{}
}
