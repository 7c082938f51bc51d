package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietPolicy(attempts int, delays *[]time.Duration) Policy {
	return Policy{
		Attempts: attempts,
		Delay:    2 * time.Second,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	calls := 0
	res := Do(context.Background(), quietPolicy(3, &delays), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if !res.OK() || res.Value != "ok" {
		t.Fatalf("unexpected result: %#v", res)
	}
	if res.Attempts != 3 || calls != 3 {
		t.Fatalf("attempts = %d calls = %d, want 3", res.Attempts, calls)
	}
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected delays: %v", delays)
	}
}

func TestDoExhausted(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	cause := errors.New("boom")
	calls := 0
	res := Do(context.Background(), quietPolicy(3, &delays), func() (int, error) {
		calls++
		return 0, cause
	})
	if res.OK() {
		t.Fatalf("expected failure")
	}
	if !errors.Is(res.Err, ErrExhausted) || !errors.Is(res.Err, cause) {
		t.Fatalf("expected exhausted wrapping cause, got %v", res.Err)
	}
	if calls != 3 || len(delays) != 2 {
		t.Fatalf("calls = %d delays = %d", calls, len(delays))
	}
	if _, err := res.Unwrap(); err == nil {
		t.Fatalf("Unwrap should return the terminal error")
	}
}

func TestDoStopsOnCancelledSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	res := Do(ctx, Policy{Attempts: 3, Delay: time.Hour, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, func() (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.Err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	calls := 0
	res := Do(context.Background(), quietPolicy(0, &delays), func() (bool, error) {
		calls++
		return true, nil
	})
	if !res.OK() || calls != 1 {
		t.Fatalf("unexpected: %#v calls=%d", res, calls)
	}
}
