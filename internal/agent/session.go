package agent

// Package agent hosts the scheduling session: request normalization, slot
// scoring, and the mode-driven decision policy.
//
// A Session serializes its operations with a mutex because every decision
// is read-then-act: snapshot the calendar, score, commit. Interleaved
// decisions for the same calendar could race past each other's conflict
// checks, so callers get one decision in flight per session.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"calagent/internal/eventbus"
	"calagent/internal/insight"
	"calagent/internal/parser"
	"calagent/internal/schedule"
	"calagent/internal/storage"

	logx "calagent/pkg/logx"
)

const (
	minThreshold = 0.3
	maxThreshold = 0.9
)

// MeetingEvent is the payload published on meeting.* bus events.
type MeetingEvent struct {
	MeetingID int64     `json:"meeting_id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// DecisionEvent is the payload published on decision.made bus events.
type DecisionEvent struct {
	DecisionID string  `json:"decision_id"`
	UserID     string  `json:"user_id"`
	Action     string  `json:"action"`
	Success    bool    `json:"success"`
	Confidence float64 `json:"confidence"`
}

// Options configures a Session. Store is required; everything else has a
// usable default.
type Options struct {
	UserID    string
	Mode      Mode
	Threshold float64 // 0 means the mode's default
	Store     storage.Store
	Parser    parser.Parser
	Memory    *Memory
	Bus       eventbus.Bus
	Logger    logx.Logger
	Now       func() time.Time
}

// Session is one user's scheduling agent: explicit state, documented
// setters, no package-level globals, so sessions for different users can
// coexist in one process.
type Session struct {
	mu sync.Mutex

	userID    string
	mode      Mode
	threshold float64

	store    storage.Store
	detector *schedule.Detector
	finder   *schedule.Finder
	analyzer *insight.Analyzer
	parser   parser.Parser
	memory   *Memory
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time
}

func NewSession(opts Options) (*Session, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("agent: store is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModeBalanced
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("agent: unknown mode %q", opts.Mode)
	}
	if opts.Parser == nil {
		opts.Parser = parser.NewRules()
	}
	if opts.Memory == nil {
		opts.Memory = OpenMemory("", opts.UserID, opts.Logger)
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.New()
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	detector := schedule.NewDetector(opts.Store)
	s := &Session{
		userID:    opts.UserID,
		mode:      opts.Mode,
		threshold: 0.7,
		store:     opts.Store,
		detector:  detector,
		finder:    schedule.NewFinder(detector),
		analyzer:  insight.NewAnalyzer(opts.Store),
		parser:    opts.Parser,
		memory:    opts.Memory,
		bus:       opts.Bus,
		log:       opts.Logger.With(logx.String("user", opts.UserID)),
		now:       opts.Now,
	}
	if t, ok := opts.Mode.Threshold(); ok {
		s.threshold = t
	}
	if opts.Threshold != 0 {
		s.threshold = clampThreshold(opts.Threshold)
	}
	return s, nil
}

// SetMode switches the operating mode. Modes with a threshold mapping
// update the confidence threshold immediately; reserved modes keep it.
func (s *Session) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("agent: unknown mode %q", m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
	if t, ok := m.Threshold(); ok {
		s.threshold = t
	}
	s.log.Info("agent mode changed", logx.String("mode", string(m)), logx.Float64("threshold", s.threshold))
	return nil
}

// SetThreshold overrides the confidence threshold, clamped to [0.3, 0.9].
func (s *Session) SetThreshold(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = clampThreshold(v)
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// Schedule runs the full pipeline on a free-form request: parse,
// normalize, score, decide. Parser failures degrade to an empty draft;
// normalization fills the gaps.
func (s *Session) Schedule(ctx context.Context, text string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, err := s.parser.Parse(ctx, text)
	if err != nil {
		s.log.Warn("parse failed, continuing with empty draft", logx.Err(err))
		draft = parser.Draft{}
	}
	s.memory.RecordParse(draft)

	return s.schedule(ctx, requestFromDraft(draft, text))
}

// ScheduleMeeting runs the pipeline on an already-structured request.
func (s *Session) ScheduleMeeting(ctx context.Context, req Request) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule(ctx, req)
}

func (s *Session) schedule(ctx context.Context, req Request) (Outcome, error) {
	snap, err := s.analyzer.Snapshot(ctx, s.now())
	if err != nil {
		return Outcome{}, fmt.Errorf("analyze context: %w", err)
	}

	// An explicit start pins the decision to the requested slot; only
	// fully open requests go through the two-week scan.
	explicit := !req.Start.IsZero()
	req = s.normalize(ctx, req, snap)

	var cands []Slot
	if explicit {
		conflicts, err := s.detector.FindConflicts(ctx, req.Start, req.Start.Add(req.Duration), 0)
		if err != nil {
			return Outcome{}, err
		}
		if len(conflicts) > 0 {
			return s.conflictOutcome(ctx, req.Start, req.Duration, 0, conflicts)
		}
		score, err := s.scoreSlot(ctx, req.Start, req, snap, 0)
		if err != nil {
			return Outcome{}, err
		}
		cands = []Slot{{Start: req.Start, Score: score}}
	} else {
		cands, err = s.candidates(ctx, req, snap)
		if err != nil {
			return Outcome{}, err
		}
	}

	out, err := s.decide(ctx, req, cands, snap)
	if err != nil {
		return Outcome{}, err
	}

	s.memory.RecordDecision(DecisionRecord{
		Time:            s.now(),
		Title:           req.Title,
		Start:           req.Start,
		DurationMinutes: int(req.Duration / time.Minute),
		Confidence:      out.Confidence,
		Success:         out.Success,
		CalendarStress:  snap.CalendarStress,
	})
	s.publishDecision(out)
	return out, nil
}

// Reschedule moves an existing meeting to a new start, keeping its
// duration. Conflicts against other meetings surface with alternatives.
func (s *Session) Reschedule(ctx context.Context, id int64, newStart time.Time) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.store.MeetingByID(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("load meeting %d: %w", id, err)
	}
	newEnd := newStart.Add(old.Duration())

	conflicts, err := s.detector.FindConflicts(ctx, newStart, newEnd, id)
	if err != nil {
		return Outcome{}, err
	}
	if len(conflicts) > 0 {
		return s.conflictOutcome(ctx, newStart, old.Duration(), id, conflicts)
	}

	updated, err := s.store.UpdateMeeting(ctx, id, storage.Patch{Start: &newStart, End: &newEnd})
	if err != nil {
		return Outcome{}, fmt.Errorf("update meeting %d: %w", id, err)
	}

	s.bus.Publish(eventbus.Event{Type: eventbus.TypeMeetingRescheduled, Data: MeetingEvent{
		MeetingID: updated.ID, Title: updated.Title, Start: updated.Start, End: updated.End,
	}})
	out := Outcome{
		DecisionID: s.newDecisionID(),
		Success:    true,
		Action:     ActionRescheduled,
		Meeting:    &updated,
	}
	s.publishDecision(out)
	return out, nil
}

// Cancel deletes a meeting; the returned bool reports whether it existed.
func (s *Session) Cancel(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.store.DeleteMeeting(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete meeting %d: %w", id, err)
	}
	if deleted {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeMeetingCanceled, Data: MeetingEvent{MeetingID: id}})
		s.log.Info("meeting canceled", logx.Int64("meeting_id", id))
	}
	return deleted, nil
}

// commit is the booking step shared by the decision paths. It re-checks
// conflicts just before writing: the calendar may have changed since
// scoring.
func (s *Session) commit(ctx context.Context, req Request, start time.Time) (storage.Meeting, []schedule.Conflict, error) {
	end := start.Add(req.Duration)
	conflicts, err := s.detector.FindConflicts(ctx, start, end, 0)
	if err != nil {
		return storage.Meeting{}, nil, err
	}
	if len(conflicts) > 0 {
		return storage.Meeting{}, conflicts, nil
	}

	created, err := s.store.CreateMeeting(ctx, storage.Meeting{
		Title:        req.Title,
		Start:        start,
		End:          end,
		Participants: req.Participants,
		Location:     req.Location,
		Recurring:    req.Recurring,
		RecurPattern: req.RecurPattern,
	})
	if err != nil {
		return storage.Meeting{}, nil, fmt.Errorf("create meeting: %w", err)
	}

	s.bus.Publish(eventbus.Event{Type: eventbus.TypeMeetingScheduled, Data: MeetingEvent{
		MeetingID: created.ID, Title: created.Title, Start: created.Start, End: created.End,
	}})
	return created, nil, nil
}

func (s *Session) conflictOutcome(ctx context.Context, start time.Time, duration time.Duration, excludeID int64, conflicts []schedule.Conflict) (Outcome, error) {
	suggestions, err := s.finder.SuggestAlternatives(ctx, start, duration, 0, excludeID)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{
		DecisionID:  s.newDecisionID(),
		Action:      ActionConflictDetected,
		Reason:      "requested time conflicts with existing meetings",
		Conflicts:   conflicts,
		Suggestions: truncateTimes(suggestions, 5),
	}
	s.publishDecision(out)
	return out, nil
}

func (s *Session) publishDecision(out Outcome) {
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeDecisionMade, Data: DecisionEvent{
		DecisionID: out.DecisionID,
		UserID:     s.userID,
		Action:     out.Action,
		Success:    out.Success,
		Confidence: out.Confidence,
	}})
}

func (s *Session) newDecisionID() string { return uuid.NewString() }

func clampThreshold(v float64) float64 {
	if v < minThreshold {
		return minThreshold
	}
	if v > maxThreshold {
		return maxThreshold
	}
	return v
}
