package ingestion_engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

var ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

// RetryPolicy is exponential backoff with jitter.
//
// MaxAttempts: total attempts including the first one.
// BaseDelay:   delay before the second attempt; doubles on each retry.
// MaxDelay:    cap on a single delay (0 means uncapped).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Backoff returns the jittered delay to wait after the given failed attempt
// (1-based). The delay lies in [d/2, d] where d = BaseDelay * 2^(attempt-1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1)
}

// RetryWithBackoff runs op until it returns a non-transient result or the
// attempts run out. The last result is returned; a transient result therefore
// means the retries were exhausted.
func RetryWithBackoff(ctx context.Context, policy RetryPolicy, op func(attempt int) Result) Result {
	if policy.MaxAttempts <= 0 {
		return Result{Outcome: OutcomeUnrecoverable, Err: ErrInvalidMaxAttempts}
	}

	var last Result
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Outcome: OutcomeTransient, Err: err}
		}

		last = op(attempt)
		if last.Outcome != OutcomeTransient {
			return last
		}
		if attempt == policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(policy.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Outcome: OutcomeTransient, Err: errors.Join(last.Err, ctx.Err())}
		case <-timer.C:
		}
	}
	return last
}
