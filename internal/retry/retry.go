package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/obafela/doc-pipeline/internal/common"
)

// Policy controls how a fallible operation is retried. MaxAttempts counts
// the initial attempt, so the default of 3 means one try plus two retries.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
}

// DefaultPolicy mirrors the service defaults.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, BackoffMultiplier: 2.0}
}

// Normalized returns the policy with out-of-range fields replaced by
// defaults.
func (p Policy) Normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = 2.0
	}
	return p
}

// delay returns the sleep before retry number attempt+1 (zero-based
// attempt index of the failure that just happened).
func (p Policy) delay(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt)))
}

// ExhaustedError is returned when every attempt allowed by the policy
// failed with a transient error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Sleeper suspends only the calling goroutine, honoring ctx cancellation.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op under the policy and returns its value plus the number of
// attempts actually made. Only transient errors (service unavailable,
// rate limited) are retried; anything else escalates immediately. The
// executor re-invokes op and nothing else, so side effects are exactly
// those of the operation itself.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, int, error) {
	return DoWithSleep(ctx, p, sleepContext, op)
}

// DoWithSleep is Do with an injectable sleep primitive.
func DoWithSleep[T any](ctx context.Context, p Policy, sleep Sleeper, op func(context.Context) (T, error)) (T, int, error) {
	p = p.Normalized()
	if sleep == nil {
		sleep = sleepContext
	}

	var zero T
	var last error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, attempt + 1, nil
		}
		last = err

		if !common.IsTransient(err) {
			return zero, attempt + 1, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		if err := sleep(ctx, p.delay(attempt)); err != nil {
			return zero, attempt + 1, err
		}
	}
	return zero, p.MaxAttempts, &ExhaustedError{Attempts: p.MaxAttempts, Last: last}
}
