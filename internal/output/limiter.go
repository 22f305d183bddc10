package output

import (
	"context"

	"golang.org/x/time/rate"
)

// newLimiter returns a limiter allowing perSecond items with an equal burst,
// or nil when perSecond is not positive.
func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

// waitN blocks until n items may be sent. A nil limiter never blocks.
// Requests larger than the burst are split.
func waitN(ctx context.Context, l *rate.Limiter, n int) error {
	if l == nil {
		return nil
	}
	burst := l.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := l.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
