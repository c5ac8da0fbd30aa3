// Package poll provides a bounded retry-until-condition primitive used to
// wait out replication lag on eventually-consistent read paths.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
)

// ErrFetchFailed wraps a fetch error that aborted polling.
var ErrFetchFailed = errors.New("poll fetch failed")

var (
	// errPending marks an attempt whose result did not satisfy the predicate.
	errPending = errors.New("condition not yet satisfied")
	// errExhausted stops the retrier once the attempt budget is spent.
	errExhausted = errors.New("poll attempts exhausted")
)

// Config bounds a poll.
type Config struct {
	// MaxAttempts is the maximum number of fetches.
	MaxAttempts int
	// Delay is the fixed pause between fetches.
	Delay time.Duration
}

// DefaultConfig returns the bound used when saving interaction policies:
// five fetches one second apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Delay:       time.Second,
	}
}

// Report describes how a poll ended.
type Report struct {
	// Attempts is the number of fetches performed.
	Attempts int
	// Converged is true when the predicate held for the last fetch.
	Converged bool
}

// Exhausted reports whether every attempt was used without the predicate
// holding.
func (r Report) Exhausted() bool {
	return !r.Converged
}

// AwaitCondition fetches until predicate holds or cfg.MaxAttempts fetches
// were made, and returns the last fetch result. Exhaustion is not an error.
// A fetch error aborts polling immediately and is returned wrapped in
// ErrFetchFailed. Cancelling ctx abandons the poll.
func AwaitCondition[T any](ctx context.Context, cfg Config, predicate func(T) bool, fetch func(context.Context) (T, error)) (T, error) {
	result, _, err := AwaitConditionReport(ctx, cfg, predicate, fetch)
	return result, err
}

// AwaitConditionReport is AwaitCondition that also reports whether the
// predicate was observed to hold.
func AwaitConditionReport[T any](ctx context.Context, cfg Config, predicate func(T) bool, fetch func(context.Context) (T, error)) (T, Report, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var (
		last     T
		report   Report
		fetchErr error
	)

	r := retry.New[T](retry.Config{
		MaxAttempts:        cfg.MaxAttempts,
		InitialDelay:       retryDelay(cfg.Delay),
		BackoffPolicy:      retry.BackoffConstant,
		NonRetryableErrors: []error{ErrFetchFailed, errExhausted, context.Canceled, context.DeadlineExceeded},
	})

	_, err := r.Do(ctx, func(ctx context.Context) (T, error) {
		// Once a fetch failed, never fetch again.
		if fetchErr != nil {
			return last, fetchErr
		}
		if report.Attempts >= cfg.MaxAttempts {
			return last, errExhausted
		}
		if err := ctx.Err(); err != nil {
			return last, err
		}

		report.Attempts++
		res, err := fetch(ctx)
		if err != nil {
			fetchErr = fmt.Errorf("%w: %w", ErrFetchFailed, err)
			return last, fetchErr
		}

		last = res
		if predicate(res) {
			report.Converged = true
			return res, nil
		}
		return res, errPending
	})

	switch {
	case fetchErr != nil:
		return last, report, fetchErr
	case report.Converged, report.Attempts >= cfg.MaxAttempts:
		return last, report, nil
	case ctx.Err() != nil:
		return last, report, ctx.Err()
	case err != nil && !errors.Is(err, errPending) && !errors.Is(err, errExhausted):
		return last, report, err
	}
	return last, report, nil
}

// retryDelay maps a poll delay onto the retrier. The retrier replaces a zero
// delay with its own default, so back-to-back polling uses the smallest
// positive delay instead.
func retryDelay(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}
