// Package retry implements the bounded exponential backoff loop used for
// transient backend failures. The loop is explicit and deadline-aware: the
// context deadline, derived from the latency budget, wins over remaining
// attempts.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Jitter adds randomness to a computed delay. Nil enables the default
	// half-delay jitter; tests inject a deterministic one.
	Jitter func(time.Duration) time.Duration
	// OnRetry is invoked before each re-attempt, for metrics.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, the error is not retryable, attempts run out,
// or the context is done. A context expiry is returned as ctx.Err() wrapped
// around the last attempt's error so callers can distinguish a deadline from
// a hard rejection.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(context.Context) error) error {
	backoff := p.BaseBackoff
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt >= attempts {
			return err
		}

		delay := backoff
		if p.Jitter != nil {
			delay += p.Jitter(backoff)
		} else {
			delay += rand.N(backoff/2 + 1)
		}
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			delay = p.MaxBackoff
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		select {
		case <-time.After(delay):
			backoff *= 2
		case <-ctx.Done():
			return &DeadlineError{Cause: err, CtxErr: ctx.Err()}
		}
	}
}

// DeadlineError marks a retry loop abandoned because the context expired.
type DeadlineError struct {
	Cause  error
	CtxErr error
}

func (e *DeadlineError) Error() string {
	return "retry abandoned: " + e.CtxErr.Error() + " (last error: " + e.Cause.Error() + ")"
}

func (e *DeadlineError) Unwrap() error { return e.Cause }
