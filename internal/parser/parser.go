package parser

// Package parser turns free-form scheduling text into a partial request
// draft. Drafts are allowed to be mostly empty: absent fields mean "infer
// from context", never an error. Implementations may be rule-based or
// model-backed; callers must tolerate failure and fall back to an empty
// draft.

import (
	"context"
	"time"
)

// Draft is the partially-specified result of parsing. Nil/empty fields
// were not present in the text.
type Draft struct {
	Title        string
	Participants []string
	Start        *time.Time
	Duration     *time.Duration
	Location     string

	Recurring    bool
	RecurPattern string // "weekly", "biweekly", "monthly"
}

// Parser is the text-understanding collaborator contract.
type Parser interface {
	Parse(ctx context.Context, text string) (Draft, error)
}
