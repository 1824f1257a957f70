package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type permanentNetErr struct{}

func (permanentNetErr) Error() string   { return "connection refused" }
func (permanentNetErr) Timeout() bool   { return false }
func (permanentNetErr) Temporary() bool { return false }

// TestShouldRetryClassification checks which error classes are retried.
func TestShouldRetryClassification(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy()

	if p.ShouldRetry(nil, 0) {
		t.Fatal("nil error must not retry")
	}
	if p.ShouldRetry(context.Canceled, 0) || p.ShouldRetry(context.DeadlineExceeded, 0) {
		t.Fatal("context errors must not retry")
	}
	if p.ShouldRetry(ErrAbsent, 0) {
		t.Fatal("a definitively absent resource must not retry")
	}
	if p.ShouldRetry(fmt.Errorf("classify: %w", ErrQuotaExhausted), 0) {
		t.Fatal("quota exhaustion must never retry, even wrapped")
	}
	if !p.ShouldRetry(timeoutErr{}, 0) {
		t.Fatal("a network timeout must retry")
	}
	if p.ShouldRetry(permanentNetErr{}, 0) {
		t.Fatal("a non-timeout network error must not retry")
	}
	if !p.ShouldRetry(errors.New("transient"), 0) {
		t.Fatal("a generic error must retry")
	}
	if p.ShouldRetry(errors.New("transient"), p.MaxAttempts()) {
		t.Fatal("the attempt budget must cap retries")
	}
}

// TestBackoffBounds verifies growth and the max-delay cap including jitter.
func TestBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5, 100*time.Millisecond, time.Second)

	for attempt := 0; attempt < 5; attempt++ {
		d := p.Backoff(attempt)
		if d <= 0 {
			t.Fatalf("attempt %d: expected positive backoff, got %v", attempt, d)
		}
		if d > time.Second {
			t.Fatalf("attempt %d: backoff %v exceeds the cap", attempt, d)
		}
	}
}

// TestNewRetryPolicyDefaults checks the guard rails on bad inputs.
func TestNewRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(0, -1, 0)
	if p.MaxAttempts() != 3 {
		t.Fatalf("expected default attempt budget of 3, got %d", p.MaxAttempts())
	}
	if d := p.Backoff(0); d <= 0 {
		t.Fatalf("expected usable backoff from defaulted policy, got %v", d)
	}
}
