package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExploreErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("net::ERR_CONNECTION_REFUSED")
	err := NewNavigation("https://app.example.com", cause)

	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if KindOf(err) != Navigation {
		t.Errorf("KindOf = %v, want Navigation", KindOf(err))
	}
	if !IsRetryable(err) {
		t.Error("navigation error should be retryable")
	}
}

func TestScenarioErrorCarriesStepIndex(t *testing.T) {
	err := NewScenario("https://app.example.com/login", 3, fmt.Errorf("selector not found"))
	if got := StepIndexOf(err); got != 3 {
		t.Errorf("StepIndexOf = %d, want 3", got)
	}
	if IsRetryable(err) {
		t.Error("scenario error should not be retryable")
	}
}

func TestKindRetryability(t *testing.T) {
	tests := []struct {
		kind      Kind
		retryable bool
	}{
		{Navigation, true},
		{Interaction, false},
		{Scenario, false},
		{QueueItem, false},
		{Session, false},
		{Collaborator, false},
		{Cancelled, false},
		{Unknown, false},
	}
	for _, tt := range tests {
		if got := tt.kind.IsRetryable(); got != tt.retryable {
			t.Errorf("%v.IsRetryable() = %t, want %t", tt.kind, got, tt.retryable)
		}
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	a := NewInteraction("https://a.example.com", "#submit", fmt.Errorf("gone"))
	b := NewInteraction("https://b.example.com", "#other", fmt.Errorf("also gone"))
	if !errors.Is(a, b) {
		t.Error("errors of the same kind should match via Is")
	}
	c := NewNavigation("https://a.example.com", fmt.Errorf("down"))
	if errors.Is(a, c) {
		t.Error("errors of different kinds should not match")
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(NewCancelled("https://app.example.com", "crawl")) {
		t.Error("IsCancelled = false for cancelled error")
	}
	if IsCancelled(NewNavigation("u", fmt.Errorf("x"))) {
		t.Error("IsCancelled = true for navigation error")
	}
	if !IsCancelled(fmt.Errorf("wrapped: %w", context.Canceled)) {
		t.Error("IsCancelled = false for context.Canceled chain")
	}
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, Delay: time.Millisecond}
	attempts := 0
	err := Retry(context.Background(), cfg, "navigate", "https://app.example.com", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return NewNavigation("https://app.example.com", fmt.Errorf("timeout"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, Delay: time.Millisecond}
	attempts := 0
	err := Retry(context.Background(), cfg, "click", "https://app.example.com", func(ctx context.Context) error {
		attempts++
		return NewInteraction("https://app.example.com", "#submit", fmt.Errorf("gone"))
	})
	if err == nil {
		t.Fatal("Retry swallowed a non-retryable error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, Delay: time.Millisecond}
	attempts := 0
	err := Retry(context.Background(), cfg, "navigate", "u", func(ctx context.Context) error {
		attempts++
		return NewNavigation("u", fmt.Errorf("still down"))
	})
	if err == nil {
		t.Fatal("Retry succeeded, want exhaustion")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", attempts)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, RetryConfig{MaxRetries: 5, Delay: time.Second}, "navigate", "u", func(ctx context.Context) error {
		attempts++
		return NewNavigation("u", fmt.Errorf("down"))
	})
	if err == nil {
		t.Fatal("Retry succeeded under cancelled context")
	}
	if !IsCancelled(err) {
		t.Errorf("error = %v, want cancelled", err)
	}
	if attempts > 1 {
		t.Errorf("attempts = %d, want at most 1", attempts)
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})

	for i := 0; i < 2; i++ {
		if !cb.Allow() {
			t.Fatalf("Allow = false before threshold at attempt %d", i)
		}
		cb.RecordFailure()
	}
	if cb.State() != Open {
		t.Errorf("state = %v, want open", cb.State())
	}
	if cb.Allow() {
		t.Error("Allow = true on open circuit")
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Millisecond,
	})
	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("Allow = false after timeout, want half-open probe")
	}
	cb.RecordSuccess()
	if cb.State() != Closed {
		t.Errorf("state = %v, want closed after successful probe", cb.State())
	}
}

func TestCircuitBreakerExecute(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})

	if err := cb.Execute(func() error { return fmt.Errorf("backend down") }); err == nil {
		t.Fatal("Execute swallowed the call error")
	}

	err := cb.Execute(func() error { return nil })
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("error = %v, want CircuitOpenError on open circuit", err)
	}
}
