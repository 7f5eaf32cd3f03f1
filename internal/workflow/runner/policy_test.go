package runner

import (
	"math"
	"testing"
	"time"
)

func TestExponentialBackoffCaps(t *testing.T) {
	backoff := ExponentialBackoff(100*time.Millisecond, time.Second)
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, expected := range want {
		if got := backoff(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, expected, got)
		}
	}
	if got := backoff(0); got != 100*time.Millisecond {
		t.Fatalf("attempt 0 should clamp to first delay, got %s", got)
	}
}

func TestExponentialBackoffUncappedSaturates(t *testing.T) {
	backoff := ExponentialBackoff(time.Second, 0)
	for _, attempt := range []int{64, 200, 5000} {
		if got := backoff(attempt); got != time.Duration(math.MaxInt64) {
			t.Fatalf("attempt %d: expected saturation at the largest duration, got %s", attempt, got)
		}
	}
	if got := backoff(3); got != 4*time.Second {
		t.Fatalf("small attempts stay exact, got %s", got)
	}
}

func TestConstantAndNoBackoff(t *testing.T) {
	if got := ConstantBackoff(time.Second)(7); got != time.Second {
		t.Fatalf("constant backoff: %s", got)
	}
	if got := NoBackoff()(3); got != 0 {
		t.Fatalf("no backoff: %s", got)
	}
}

func TestPolicyWithDefaults(t *testing.T) {
	p := Policy{}.WithDefaults()
	def := DefaultPolicy()
	if p.Timeout != def.Timeout || p.MaxAttempts != def.MaxAttempts || p.Backoff == nil {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if p.CircuitBreaker != def.CircuitBreaker {
		t.Fatalf("unexpected breaker defaults: %+v", p.CircuitBreaker)
	}
	disabled := Policy{CircuitBreaker: BreakerPolicy{FailureThreshold: -1}}.WithDefaults()
	if disabled.CircuitBreaker.FailureThreshold != -1 {
		t.Fatalf("negative threshold must be preserved, got %d", disabled.CircuitBreaker.FailureThreshold)
	}
}
