// ABOUTME: Retry execution with exponential backoff for transient failures.
// ABOUTME: Consults the error classifier so critical failures abort immediately instead of burning attempts.
package recovery

import (
	"context"
	"time"
)

// Policy configures retry behavior for a single Run invocation.
type Policy struct {
	// MaxRetries is the number of retry attempts after the initial call.
	// Zero means exactly one attempt with no waiting.
	MaxRetries int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Factor controls exponential growth of the delay. Must be > 1 for
	// the backoff to actually back off.
	Factor float64

	// OnAttempt is an optional observer invoked after every failed
	// attempt with the 1-based attempt index and the failure's
	// classification. Successful attempts invoke it with a zero
	// Classification and nil error.
	OnAttempt func(attempt int, c Classification, err error)
}

// DefaultPolicy returns the policy used for pipeline stage calls:
// 3 retries, 1s initial delay, 60s cap, doubling backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Factor:       2.0,
	}
}

// NextDelay returns the delay that follows the given one under the
// policy's exponential schedule, capped at MaxDelay.
func (p Policy) NextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * p.Factor)
	if next > p.MaxDelay {
		return p.MaxDelay
	}
	return next
}

// Run executes work with exponential backoff. On each failure the error
// is classified: critical errors are returned immediately without
// retrying, everything else is retried until MaxRetries+1 total attempts
// have been made. The context cancels the backoff sleep; a cancelled
// context returns the last observed error.
func Run[T any](ctx context.Context, policy Policy, work func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := policy.InitialDelay

	for attempt := 1; attempt <= policy.MaxRetries+1; attempt++ {
		result, err := work()
		if err == nil {
			if policy.OnAttempt != nil {
				policy.OnAttempt(attempt, Classification{}, nil)
			}
			return result, nil
		}

		lastErr = err
		c := Classify(err)
		if policy.OnAttempt != nil {
			policy.OnAttempt(attempt, c, err)
		}

		// Critical failures are a fatal abort, not a retry exhaustion.
		if c.Severity == SeverityCritical {
			return zero, err
		}

		if attempt == policy.MaxRetries+1 {
			return zero, err
		}

		if !sleep(ctx, delay) {
			return zero, lastErr
		}
		delay = policy.NextDelay(delay)
	}

	return zero, lastErr
}

// sleep waits for d, returning false if the context was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
