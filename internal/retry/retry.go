// Package retry runs an operation against a staged backoff schedule.
// Callers classify each error as retryable or fatal; the schedule bounds
// the total number of attempts.
package retry

import (
	"context"
	"errors"
	"time"
)

// Decision is the classification of one failed attempt.
type Decision struct {
	Retry bool
	// After overrides the scheduled delay when > 0 (Retry-After, fixed overload wait).
	After time.Duration
}

// Classifier maps an error to a Decision.
type Classifier func(err error) Decision

// Always retries every error on the schedule.
func Always(error) Decision { return Decision{Retry: true} }

// Policy is a staged backoff schedule. The operation runs at most
// len(Delays)+1 times; Delays[i] is the wait before attempt i+2.
type Policy struct {
	Delays []time.Duration

	// OnRetry is called before each wait. Optional.
	OnRetry func(attempt int, err error, wait time.Duration)

	// Sleep waits for d or until ctx is done. Defaults to a timer sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Attempts returns the maximum number of calls the policy allows.
func (p Policy) Attempts() int { return len(p.Delays) + 1 }

// Do calls fn until it succeeds, the classifier declares the error fatal,
// the schedule is exhausted or ctx is cancelled. The last error is returned.
func Do[T any](ctx context.Context, p Policy, classify Classifier, fn func(ctx context.Context) (T, error)) (T, error) {
	if classify == nil {
		classify = Always
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var zero T
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, errors.Join(lastErr, err)
			}
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt > len(p.Delays) {
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}
		d := classify(err)
		if !d.Retry {
			return zero, err
		}
		wait := p.Delays[attempt-1]
		if d.After > 0 {
			wait = d.After
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, errors.Join(lastErr, err)
		}
	}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExhaustedError reports that every scheduled attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return "retries exhausted: " + e.Err.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Err }
