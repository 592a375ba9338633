package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"calagent/internal/insight"

	logx "calagent/pkg/logx"
)

// decide runs the policy for the session's current mode over ranked
// candidates. Only AUTONOMOUS mode may commit a booking; every other mode
// returns ranked recommendations for external confirmation.
func (s *Session) decide(ctx context.Context, req Request, cands []Slot, snap insight.Snapshot) (Outcome, error) {
	out := Outcome{DecisionID: s.newDecisionID()}

	if len(cands) == 0 {
		out.Action = ActionSearchExpanded
		out.Reason = "no suitable time slots found"
		return out, nil
	}

	if s.mode == ModeAutonomous {
		return s.decideAutonomous(ctx, out, req, cands, snap)
	}
	return s.decideRecommend(out, cands, snap), nil
}

func (s *Session) decideAutonomous(ctx context.Context, out Outcome, req Request, cands []Slot, snap insight.Snapshot) (Outcome, error) {
	best := cands[0]
	if best.Score <= s.threshold {
		out.Action = ActionRequestConfirmation
		out.Reason = "confidence too low for autonomous scheduling"
		out.Confidence = best.Score
		out.Candidates = cands
		out.RecommendedSlot = &cands[0]
		return out, nil
	}

	meeting, conflicts, err := s.commit(ctx, req, best.Start)
	if err != nil {
		return Outcome{}, err
	}
	if len(conflicts) > 0 {
		// The calendar changed between scoring and commit.
		out.Action = ActionConflictDetected
		out.Reason = "slot was taken before commit"
		out.Conflicts = conflicts
		suggestions, serr := s.finder.SuggestAlternatives(ctx, best.Start, req.Duration, 0, 0)
		if serr != nil {
			return Outcome{}, serr
		}
		out.Suggestions = truncateTimes(suggestions, 5)
		return out, nil
	}

	out.Success = true
	out.Action = ActionAutonomousScheduling
	out.Confidence = best.Score
	out.Meeting = &meeting
	out.Reason = fmt.Sprintf("autonomous scheduling: selected optimal slot with %.2f confidence", best.Score)
	if len(cands) > 1 {
		out.NextSuggestions = cands[1:min(len(cands), 5)]
	}

	s.log.Info("autonomous booking committed",
		logx.String("decision_id", out.DecisionID),
		logx.Int64("meeting_id", meeting.ID),
		logx.Float64("confidence", best.Score))
	return out, nil
}

func (s *Session) decideRecommend(out Outcome, cands []Slot, snap insight.Snapshot) Outcome {
	top := cands
	if len(top) > 5 {
		top = top[:5]
	}
	recs := make([]Recommendation, 0, len(top))
	for _, c := range top {
		recs = append(recs, Recommendation{Slot: c, Reasoning: s.reasoning(c, snap)})
	}

	out.Action = ActionRecommendSlots
	out.Recommendations = recs
	out.Confidence = recs[0].Score
	if recs[0].Score > 0.8 {
		out.SuggestedAutoSchedule = &recs[0]
	}
	return out
}

// reasoning builds the human-readable justification attached to a
// recommended slot.
func (s *Session) reasoning(slot Slot, snap insight.Snapshot) string {
	var parts []string

	if slot.Score > 0.8 {
		parts = append(parts, "High confidence recommendation")
	}
	switch {
	case snap.Timing.PreferredTimeOfDay == insight.Morning && slot.Start.Hour() < 12:
		parts = append(parts, "Matches your morning preference")
	case snap.Timing.PreferredTimeOfDay == insight.Afternoon && slot.Start.Hour() >= 12:
		parts = append(parts, "Aligns with your afternoon schedule")
	}
	if snap.CalendarStress < 0.5 {
		parts = append(parts, "Calendar has good availability")
	}
	if sameDate(slot.Start, s.now().AddDate(0, 0, 1)) {
		parts = append(parts, "Tomorrow - good balance of planning vs urgency")
	}

	if len(parts) == 0 {
		return "Meets basic scheduling criteria"
	}
	return strings.Join(parts, " • ")
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

func truncateTimes(ts []time.Time, n int) []time.Time {
	if len(ts) > n {
		return ts[:n]
	}
	return ts
}
