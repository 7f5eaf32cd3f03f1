package runner

import (
	"math"
	"time"
)

// BackoffFunc returns the delay to wait after the given failed attempt
// (1-based) before the next one starts.
type BackoffFunc func(attempt int) time.Duration

// BreakerPolicy configures the per-node circuit breaker.
type BreakerPolicy struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Zero means the default threshold once WithDefaults runs; a
	// negative value disables the breaker.
	FailureThreshold int
	// RecoveryWindow is how long an open breaker rejects calls before letting
	// a single half-open trial through.
	RecoveryWindow time.Duration
}

// Policy bounds a single Run invocation.
type Policy struct {
	Timeout        time.Duration
	MaxAttempts    int
	Backoff        BackoffFunc
	CircuitBreaker BreakerPolicy
}

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultBackoffBase    = 200 * time.Millisecond
	defaultBackoffMax     = 5 * time.Second
	defaultFailureLimit   = 5
	defaultRecoveryWindow = 30 * time.Second
)

// DefaultPolicy returns the policy used when a project does not override it.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     defaultTimeout,
		MaxAttempts: defaultMaxAttempts,
		Backoff:     ExponentialBackoff(defaultBackoffBase, defaultBackoffMax),
		CircuitBreaker: BreakerPolicy{
			FailureThreshold: defaultFailureLimit,
			RecoveryWindow:   defaultRecoveryWindow,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultPolicy. A zero
// FailureThreshold becomes the default; a negative one survives and disables
// the breaker.
func (p Policy) WithDefaults() Policy {
	def := DefaultPolicy()
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = def.Backoff
	}
	if p.CircuitBreaker.FailureThreshold == 0 {
		p.CircuitBreaker.FailureThreshold = def.CircuitBreaker.FailureThreshold
	}
	if p.CircuitBreaker.RecoveryWindow <= 0 {
		p.CircuitBreaker.RecoveryWindow = def.CircuitBreaker.RecoveryWindow
	}
	return p
}

// NoBackoff retries immediately.
func NoBackoff() BackoffFunc {
	return func(int) time.Duration { return 0 }
}

// ConstantBackoff waits delay between every attempt.
func ConstantBackoff(delay time.Duration) BackoffFunc {
	return func(int) time.Duration { return delay }
}

// ExponentialBackoff doubles base after every failed attempt, capped at max.
// A max <= 0 leaves the delay uncapped up to the largest time.Duration.
func ExponentialBackoff(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := float64(base) * math.Pow(2, float64(attempt-1))
		if max > 0 && delay > float64(max) {
			return max
		}
		if delay >= math.MaxInt64 {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(delay)
	}
}
