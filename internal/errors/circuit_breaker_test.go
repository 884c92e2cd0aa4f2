package errors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failingCall(ctx context.Context) error {
	return errors.New("boom")
}

func okCall(ctx context.Context) error {
	return nil
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("scanner", CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, failingCall); err == nil {
			t.Fatal("expected failure to propagate")
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	err := cb.Execute(ctx, okCall)
	if !IsCircuitOpen(err) {
		t.Fatalf("open circuit returned %v, want CircuitOpenError", err)
	}
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker("scanner", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, okCall); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after recovery", cb.State())
	}
}

func TestCircuitBreakerReopensOnProbeFailure(t *testing.T) {
	cb := NewCircuitBreaker("scanner", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	time.Sleep(15 * time.Millisecond)

	_ = cb.Execute(ctx, failingCall)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", cb.State())
	}
}

func TestExecuteFuncReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker("scanner", DefaultCircuitBreakerConfig())

	got, err := ExecuteFunc(cb, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("ExecuteFunc = (%d, %v), want (42, nil)", got, err)
	}

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}
