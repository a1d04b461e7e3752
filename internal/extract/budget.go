package extract

import (
	"context"
	"math"
	"time"
)

// Budget is the wall-clock allowance for one extraction call. It measures
// with the clock it was created with; time.Now carries a monotonic reading,
// so wall-clock jumps do not affect it.
type Budget struct {
	start time.Time
	limit time.Duration
	now   func() time.Time
}

// NewBudget starts a budget of limit. A non-positive limit never expires.
func NewBudget(limit time.Duration, now func() time.Time) Budget {
	if now == nil {
		now = time.Now
	}
	return Budget{start: now(), limit: limit, now: now}
}

// Elapsed returns the time spent since the budget started.
func (b Budget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

// Remaining returns the time left, never negative.
func (b Budget) Remaining() time.Duration {
	if b.limit <= 0 {
		return time.Duration(math.MaxInt64)
	}
	return max(b.limit-b.Elapsed(), 0)
}

// Expired reports whether no time is left.
func (b Budget) Expired() bool {
	return b.limit > 0 && b.Remaining() == 0
}

// Context derives a context that is cancelled when the remaining budget runs
// out.
func (b Budget) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if b.limit <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, b.Remaining())
}
