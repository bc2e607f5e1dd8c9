// Package schedule runs the service's timed work: bounded confirmation
// polls and the cancellable background poller.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/starford/folio/internal/apperr"
)

// Policy bounds a confirmation poll.
type Policy struct {
	Attempts int
	Interval time.Duration
}

// DefaultPolicy returns six checks thirty seconds apart: three minutes.
func DefaultPolicy() Policy {
	return Policy{Attempts: 6, Interval: 30 * time.Second}
}

// CheckFunc reports whether the awaited state is visible yet.
type CheckFunc func(ctx context.Context) (bool, error)

// Confirm runs check immediately and waits one interval after every miss,
// so the whole budget spans Attempts × Interval before it gives up. The last
// wait gives the remote a final interval before the caller acts on the
// timeout. Check errors count as a miss. When the budget runs out the result
// wraps apperr.ErrEventualConsistencyTimeout. The returned count is the
// number of checks performed.
func Confirm(ctx context.Context, clk clock.Clock, p Policy, check CheckFunc) (int, error) {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		ok, err := check(ctx)
		if err == nil && ok {
			return attempt, nil
		}
		if err != nil {
			lastErr = err
		}

		t := clk.Timer(p.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return attempt, ctx.Err()
		case <-t.C:
		}
	}
	if lastErr != nil {
		return p.Attempts, fmt.Errorf("%w after %d checks: %v", apperr.ErrEventualConsistencyTimeout, p.Attempts, lastErr)
	}
	return p.Attempts, fmt.Errorf("%w after %d checks", apperr.ErrEventualConsistencyTimeout, p.Attempts)
}
