package parser

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// limited wraps a Parser with a token-bucket rate limit and an optional
// per-call timeout. Model-backed drivers are quota-bound; bounding the
// rule-based driver too keeps behavior uniform across drivers.
type limited struct {
	inner   Parser
	lim     *rate.Limiter
	timeout time.Duration
}

// Limited bounds p to ratePerSec calls per second (burst = ratePerSec) and
// timeout per call. ratePerSec <= 0 disables limiting; timeout <= 0
// disables the deadline.
func Limited(p Parser, ratePerSec int, timeout time.Duration) Parser {
	if ratePerSec <= 0 && timeout <= 0 {
		return p
	}
	var lim *rate.Limiter
	if ratePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return &limited{inner: p, lim: lim, timeout: timeout}
}

func (l *limited) Parse(ctx context.Context, text string) (Draft, error) {
	if l.lim != nil {
		if err := l.lim.Wait(ctx); err != nil {
			return Draft{}, fmt.Errorf("parser rate limit: %w", err)
		}
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.inner.Parse(ctx, text)
}
