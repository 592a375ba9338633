package agent

import (
	"strings"
	"time"

	"calagent/internal/schedule"
	"calagent/internal/storage"
)

// Mode selects how aggressively the session commits bookings without
// external confirmation.
type Mode string

const (
	ModeConservative Mode = "conservative"
	ModeAggressive   Mode = "aggressive"
	ModeBalanced     Mode = "balanced"
	ModeLearning     Mode = "learning"
	ModeAutonomous   Mode = "autonomous"
)

// Threshold returns the confidence threshold the mode maps to. LEARNING
// and AGGRESSIVE are reserved values with no mapping; switching to them
// keeps whatever threshold is currently set.
func (m Mode) Threshold() (float64, bool) {
	switch m {
	case ModeAutonomous:
		return 0.6, true
	case ModeConservative:
		return 0.8, true
	case ModeBalanced:
		return 0.7, true
	}
	return 0, false
}

func (m Mode) Valid() bool {
	switch m {
	case ModeConservative, ModeAggressive, ModeBalanced, ModeLearning, ModeAutonomous:
		return true
	}
	return false
}

// ParseMode is case-insensitive; empty input means balanced.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return ModeBalanced, true
	}
	return m, m.Valid()
}

// Priority orders requests by flexibility. CRITICAL is the least flexible.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityFlexible Priority = "flexible"
)

// Request is one scheduling ask, possibly partial. Zero-valued fields are
// filled by normalization before scoring. RawText keeps the free-form
// request so keyword inference can run even on pre-structured requests.
type Request struct {
	Title        string
	Participants []string
	Start        time.Time
	Duration     time.Duration
	Location     string
	Priority     Priority

	Recurring    bool
	RecurPattern storage.RecurrencePattern

	RawText string
}

// Slot is one candidate start time with its confidence score.
type Slot struct {
	Start time.Time
	Score float64
}

// Recommendation annotates a slot with human-readable reasoning.
type Recommendation struct {
	Slot
	Reasoning string
}

// Actions reported on an Outcome.
const (
	ActionAutonomousScheduling = "AUTONOMOUS_SCHEDULING"
	ActionRequestConfirmation  = "REQUEST_CONFIRMATION"
	ActionRecommendSlots       = "RECOMMEND_SLOTS"
	ActionSearchExpanded       = "SEARCH_EXPANDED"
	ActionConflictDetected     = "CONFLICT_DETECTED"
	ActionRescheduled          = "RESCHEDULED"
	ActionCanceled             = "CANCELED"
)

// Outcome is the structured result of one scheduling decision. Failures
// are ordinary outcomes with Success false and the relevant payload set;
// errors are reserved for collaborator failures.
type Outcome struct {
	DecisionID string
	Success    bool
	Action     string
	Reason     string
	Confidence float64

	// Booked or mutated meeting, when the operation committed.
	Meeting *storage.Meeting

	// Conflict payload (CONFLICT_DETECTED).
	Conflicts   []schedule.Conflict
	Suggestions []time.Time

	// Candidate payloads.
	Candidates            []Slot
	RecommendedSlot       *Slot
	Recommendations       []Recommendation
	SuggestedAutoSchedule *Recommendation
	NextSuggestions       []Slot
}
