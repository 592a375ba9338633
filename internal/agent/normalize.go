package agent

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"calagent/internal/insight"
	"calagent/internal/parser"
	"calagent/internal/storage"

	logx "calagent/pkg/logx"
)

const (
	defaultTitle    = "Meeting"
	defaultLocation = "Virtual Meeting"
	defaultDuration = time.Hour

	shortMeetingCap  = 30 * time.Minute
	longMeetingFloor = 2 * time.Hour
)

var (
	minutesRe    = regexp.MustCompile(`(?i)(\d+)\s*min`)
	fracHoursRe  = regexp.MustCompile(`(?i)(\d+\.\d+)\s*hour`)
	wholeHoursRe = regexp.MustCompile(`(?i)(\d+)\s*hour`)

	urgentKeywords   = []string{"urgent", "asap", "immediately", "critical", "important", "deadline"}
	flexibleKeywords = []string{"whenever", "flexible", "open", "any time"}
	shortKeywords    = []string{"standup", "brief", "quick", "sync"}
	longKeywords     = []string{"planning", "review", "deep", "brainstorm"}
)

// requestFromDraft lifts a parser draft into a Request, keeping the raw
// text around for keyword inference.
func requestFromDraft(d parser.Draft, text string) Request {
	req := Request{
		Title:        d.Title,
		Participants: d.Participants,
		Location:     d.Location,
		Recurring:    d.Recurring,
		RawText:      text,
	}
	if d.Start != nil {
		req.Start = *d.Start
	}
	if d.Duration != nil {
		req.Duration = *d.Duration
	}
	if d.RecurPattern != "" {
		req.RecurPattern = parseRecurrence(d.RecurPattern)
	}
	return req
}

// normalize fills every gap in req from the context snapshot. It never
// fails: inference errors degrade to defaults.
func (s *Session) normalize(ctx context.Context, req Request, snap insight.Snapshot) Request {
	if req.Title == "" {
		req.Title = defaultTitle
	}
	if req.Start.IsZero() {
		req.Start = inferStart(snap.Timing, s.now())
	}
	if req.Duration <= 0 {
		req.Duration = inferDuration(req.RawText, snap.Timing)
	}
	if req.Location == "" {
		loc, err := s.analyzer.PreferredLocation(ctx, defaultLocation)
		if err != nil {
			s.log.Warn("infer location", logx.Err(err))
			loc = defaultLocation
		}
		req.Location = loc
	}
	if req.Priority == "" {
		req.Priority = inferPriority(req.RawText)
	}
	return req
}

// inferStart picks the next day within a week matching the learned common
// weekday, at the learned preferred hour; failing that, tomorrow.
func inferStart(timing insight.TimingPattern, now time.Time) time.Time {
	hour := timing.PreferredHour()
	for offset := 1; offset <= 7; offset++ {
		day := now.AddDate(0, 0, offset)
		if day.Weekday() == timing.MostCommonDay {
			return atHour(day, hour)
		}
	}
	return atHour(now.AddDate(0, 0, 1), hour)
}

// inferDuration reads explicit duration mentions out of the raw text,
// falling back to the learned average. Brief-style keywords cap the result
// at 30 minutes; planning-style keywords raise the floor to 2 hours.
func inferDuration(text string, timing insight.TimingPattern) time.Duration {
	if m := minutesRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	if m := fracHoursRe.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil && f > 0 {
			return time.Duration(f * 60 * float64(time.Minute))
		}
	}
	if m := wholeHoursRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return time.Duration(n) * time.Hour
		}
	}

	base := timing.AverageDuration
	if base <= 0 {
		base = defaultDuration
	}
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, shortKeywords):
		if base > shortMeetingCap {
			return shortMeetingCap
		}
	case containsAny(lower, longKeywords):
		if base < longMeetingFloor {
			return longMeetingFloor
		}
	}
	return base
}

func inferPriority(text string) Priority {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, urgentKeywords):
		return PriorityCritical
	case containsAny(lower, flexibleKeywords):
		return PriorityFlexible
	}
	return PriorityMedium
}

func parseRecurrence(s string) storage.RecurrencePattern {
	p := storage.RecurrencePattern(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return storage.RecurNone
	}
	return p
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func atHour(day time.Time, hour int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, day.Location())
}
