package parser

import (
	"context"
	"regexp"
	"strings"
	"time"
)

var (
	titleRe        = regexp.MustCompile(`(?i)(?:meeting|call|session)\s+(?:with|for|about)\s+([^.,!?]+)`)
	participantsRe = regexp.MustCompile(`(?i)\bwith\s+([A-Za-z ,]+?)(?:\s+at|\s+on|\s+next|\s+tomorrow|$)`)
	locationRe     = regexp.MustCompile(`(?i)\bin\s+(?:the\s+)?((?:conference\s+)?room\s+[A-Za-z0-9]+)`)
	tomorrowRe     = regexp.MustCompile(`(?i)\btomorrow\b(?:\s+at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?)?`)
)

// Rules is the built-in keyword/regex driver. It extracts what it can and
// leaves the rest for the normalizer.
type Rules struct {
	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

func NewRules() *Rules { return &Rules{} }

func (r *Rules) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Rules) Parse(ctx context.Context, text string) (Draft, error) {
	_ = ctx
	var d Draft

	if m := titleRe.FindStringSubmatch(text); m != nil {
		d.Title = strings.TrimSpace(m[1])
	}
	if m := participantsRe.FindStringSubmatch(text); m != nil {
		d.Participants = splitNames(m[1])
	}
	if m := locationRe.FindStringSubmatch(text); m != nil {
		d.Location = strings.TrimSpace(m[1])
	}

	if m := tomorrowRe.FindStringSubmatch(text); m != nil {
		start := r.tomorrowAt(m[1], m[2], m[3])
		d.Start = &start
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "biweekly") || strings.Contains(lower, "every other week"):
		d.Recurring, d.RecurPattern = true, "biweekly"
	case strings.Contains(lower, "weekly") || strings.Contains(lower, "every week"):
		d.Recurring, d.RecurPattern = true, "weekly"
	case strings.Contains(lower, "monthly") || strings.Contains(lower, "every month"):
		d.Recurring, d.RecurPattern = true, "monthly"
	}

	return d, nil
}

// tomorrowAt builds tomorrow's date at the mentioned clock time, defaulting
// to 09:00 when the text only says "tomorrow".
func (r *Rules) tomorrowAt(hourStr, minStr, ampm string) time.Time {
	now := r.now()
	day := now.AddDate(0, 0, 1)

	hour, minute := 9, 0
	if hourStr != "" {
		hour = atoiDefault(hourStr, 9)
		minute = atoiDefault(minStr, 0)
		switch strings.ToLower(ampm) {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
}

func splitNames(s string) []string {
	s = strings.ReplaceAll(s, " and ", ",")
	var out []string
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	return out
}

func atoiDefault(s string, def int) int {
	n := 0
	if s == "" {
		return def
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}
