// Package retry runs an operation under a bounded, fixed-delay retry policy
// and reports the outcome as a value instead of a panic-style error path.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrExhausted marks a result whose every attempt failed.
var ErrExhausted = errors.New("all retries failed")

// Policy describes how many times to attempt an operation and how long to
// wait between attempts.
type Policy struct {
	Attempts int
	Delay    time.Duration
	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
	// Name labels the operation in logs.
	Name string
}

// DefaultPolicy is three attempts two seconds apart.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: 2 * time.Second}
}

// Result carries either the operation's value or the terminal failure.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// OK reports whether the operation eventually succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Unwrap returns the value and the terminal error.
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}

// Do calls op until it succeeds or the policy's attempts are used up. The
// terminal error wraps ErrExhausted and the last attempt's error. A cancelled
// context stops the loop early with the context error.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) Result[T] {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		value, err := op()
		if err == nil {
			return Result[T]{Value: value, Attempts: i}
		}
		lastErr = err
		log.Error("attempt failed",
			slog.String("op", p.Name),
			slog.Int("attempt", i),
			slog.Int("max_attempts", attempts),
			slog.Any("error", err),
		)
		if i == attempts {
			break
		}
		if err := sleep(ctx, p.Delay); err != nil {
			var zero T
			return Result[T]{Value: zero, Err: err, Attempts: i}
		}
	}
	var zero T
	return Result[T]{
		Value:    zero,
		Err:      fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr),
		Attempts: attempts,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
