package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"tabula/internal/utils"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestRetryWithResultSucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if got != 42 || err != nil {
		t.Fatalf("RetryWithResult = (%d, %v), want (42, nil)", got, err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestRetryWithResultRetriesTransient(t *testing.T) {
	calls := 0
	got, err := RetryWithResultAndLog(context.Background(), fastRetryConfig(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("connection reset"))
		}
		return "ok", nil
	}, utils.NewNopLogger())
	if got != "ok" || err != nil {
		t.Fatalf("RetryWithResultAndLog = (%q, %v), want (\"ok\", nil)", got, err)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestRetryWithResultStopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := RetryWithResultAndLog(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, NewPermanentError(errors.New("bad request"))
	}, utils.NewNopLogger())

	var permanent *PermanentError
	if !errors.As(err, &permanent) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestRetryWithResultExhaustsAttempts(t *testing.T) {
	config := fastRetryConfig()
	calls := 0
	_, err := RetryWithResultAndLog(context.Background(), config, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("still down"))
	}, utils.NewNopLogger())

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("exhaustion error should wrap the last failure: %v", err)
	}
	if want := config.MaxAttempts + 1; calls != want {
		t.Fatalf("fn called %d times, want %d", calls, want)
	}
}

func TestRetryWithResultHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithResult(ctx, fastRetryConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("fn called %d times, want 0", calls)
	}
}

func TestCalculateBackoffGrowsAndCaps(t *testing.T) {
	config := RetryConfig{
		BaseDelay:    10 * time.Millisecond,
		MaxDelay:     25 * time.Millisecond,
		JitterFactor: 0,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{2, 25 * time.Millisecond},
		{5, 25 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := calculateBackoff(tc.attempt, config); got != tc.want {
			t.Fatalf("calculateBackoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestCalculateBackoffJitterStaysBounded(t *testing.T) {
	config := RetryConfig{
		BaseDelay:    10 * time.Millisecond,
		MaxDelay:     time.Second,
		JitterFactor: 0.25,
	}
	for i := 0; i < 100; i++ {
		got := calculateBackoff(0, config)
		if got < 7500*time.Microsecond || got > 12500*time.Microsecond {
			t.Fatalf("jittered delay %v outside [7.5ms, 12.5ms]", got)
		}
	}
}
