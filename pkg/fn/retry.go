package fn

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOpts configures retry behavior. MaxAttempts counts the first call, so
// MaxAttempts 2 means one retry.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Retryable reports whether an error is worth another attempt. Nil retries
	// every error.
	Retryable func(error) bool
	// OnRetry is called before each sleep with the failed attempt number.
	OnRetry func(attempt int, err error)
}

// DefaultRetry makes one extra attempt two seconds after a failure.
var DefaultRetry = RetryOpts{
	MaxAttempts: 2,
	InitialWait: 2 * time.Second,
	MaxWait:     30 * time.Second,
}

// Retry calls f until it succeeds, returns a non-retryable error, or the
// attempts run out. Waits double after every failure up to MaxWait.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = opts.InitialWait
	}
	var result Result[T]
	wait := opts.InitialWait

	for attempt := 1; ; attempt++ {
		result = f(ctx)
		if result.IsOk() || attempt >= opts.MaxAttempts {
			return result
		}
		if opts.Retryable != nil && !opts.Retryable(result.err) {
			return result
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, result.err)
		}

		sleep := wait
		if opts.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if sleep > opts.MaxWait {
			sleep = opts.MaxWait
		}
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return Err[T](ctx.Err())
		case <-t.C:
		}

		wait *= 2
		if wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
}
