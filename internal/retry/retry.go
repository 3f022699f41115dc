// Package retry runs outbound lookups a bounded number of times with a timeout on every attempt.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/periodize/internal/errors"
)

var (
	// ErrLookupUnavailable is returned when every attempt failed.
	ErrLookupUnavailable = errors.NewSentinel("lookup unavailable")
	// ErrLookupTimeout is returned when an attempt ran past its timeout. Timeouts are not retried.
	ErrLookupTimeout = errors.NewSentinel("lookup timed out")
)

// Policy bounds a retried lookup.
type Policy struct {
	// Attempts is the total number of tries. Values below one mean a single try.
	Attempts int
	// Timeout applies to each attempt. Zero disables it.
	Timeout time.Duration
	// Backoff is the wait after the first failure. It doubles after every further failure.
	Backoff time.Duration
}

// DefaultPolicy is used when nothing else is configured.
var DefaultPolicy = Policy{Attempts: 3, Timeout: 2 * time.Second, Backoff: 50 * time.Millisecond} //nolint:mnd // defaults.

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do calls op until it succeeds, fails permanently, times out or runs out of attempts.
func Do[T any](ctx context.Context, logger *slog.Logger, name string, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.Attempts, 1)
	backoff := p.Backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", name, err)
		}

		v, err := try(ctx, p.Timeout, op)
		if err == nil {
			return v, nil
		}

		var permanent permanentError
		switch {
		case errors.As(err, &permanent):
			return zero, permanent.err
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return zero, errors.Wrap(errors.Join(ErrLookupTimeout, err), name,
				slog.Int("attempt", attempt), slog.Duration("timeout", p.Timeout))
		case ctx.Err() != nil:
			return zero, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		logger.LogAttrs(ctx, slog.LevelWarn, "lookup failed, retrying",
			slog.String("lookup", name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("sleep", backoff),
			errors.SlogError(err))
		if err = sleep(ctx, backoff); err != nil {
			return zero, fmt.Errorf("%s: %w", name, err)
		}
		backoff *= 2
	}

	return zero, errors.Wrap(errors.Join(ErrLookupUnavailable, lastErr), name, slog.Int("attempts", attempts))
}

func try[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return op(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
