package runner

import (
	"sort"
	"sync"
	"time"

	"github.com/kingrea/storyline/internal/execerr"
)

// BreakerState enumerates circuit breaker phases.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerSnapshot is a point-in-time copy of one node's breaker.
type BreakerSnapshot struct {
	NodeName            string       `json:"node_name" yaml:"node_name"`
	State               BreakerState `json:"state" yaml:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures" yaml:"consecutive_failures"`
	OpenedAt            time.Time    `json:"opened_at,omitempty" yaml:"opened_at,omitempty"`
}

// BreakerRegistry owns breaker state keyed by node name. It is shared by every
// invocation routed through the same Runner, so concurrent callers of one node
// observe the same counters.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewBreakerRegistry returns an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: map[string]*breaker{}}
}

func (r *BreakerRegistry) get(nodeName string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[nodeName]
	if !ok {
		b = &breaker{state: BreakerClosed}
		r.breakers[nodeName] = b
	}
	return b
}

// Snapshot returns the breaker state for nodeName. Unknown nodes report a
// closed breaker.
func (r *BreakerRegistry) Snapshot(nodeName string) BreakerSnapshot {
	r.mu.Lock()
	b, ok := r.breakers[nodeName]
	r.mu.Unlock()
	if !ok {
		return BreakerSnapshot{NodeName: nodeName, State: BreakerClosed}
	}
	return b.snapshot(nodeName)
}

// Reset forgets all state for nodeName.
func (r *BreakerRegistry) Reset(nodeName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, nodeName)
}

// Names lists nodes with recorded breaker state, sorted.
func (r *BreakerRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type breaker struct {
	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// acquire gates an invocation. trial is true when the caller holds the single
// half-open trial for this node.
func (b *breaker) acquire(nodeName string, policy BreakerPolicy, now time.Time) (trial bool, err *execerr.Error) {
	if policy.FailureThreshold <= 0 {
		return false, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		elapsed := now.Sub(b.openedAt)
		if elapsed < policy.RecoveryWindow {
			return false, execerr.CircuitOpen(nodeName, b.failures, policy.RecoveryWindow-elapsed)
		}
		b.state = BreakerHalfOpen
		b.trialInFlight = true
		return true, nil
	case BreakerHalfOpen:
		if b.trialInFlight {
			return false, execerr.CircuitOpen(nodeName, b.failures, 0)
		}
		b.trialInFlight = true
		return true, nil
	default:
		return false, nil
	}
}

// success records a completed invocation. Only the trial holder closes a
// breaker that has left the closed state.
func (b *breaker) success(trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !trial && b.state != BreakerClosed {
		return
	}
	b.failures = 0
	b.state = BreakerClosed
	b.openedAt = time.Time{}
	b.trialInFlight = false
}

// failure records one failed attempt and reports whether it opened the
// breaker. Outside the closed state only the trial holder moves the breaker;
// other callers just add to the count.
func (b *breaker) failure(trial bool, policy BreakerPolicy, now time.Time) bool {
	if policy.FailureThreshold <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	switch b.state {
	case BreakerHalfOpen:
		if !trial {
			return false
		}
		b.state = BreakerOpen
		b.openedAt = now
		b.trialInFlight = false
		return true
	case BreakerClosed:
		if b.failures >= policy.FailureThreshold {
			b.state = BreakerOpen
			b.openedAt = now
			return true
		}
	}
	return false
}

// abandon returns an unfinished trial so another caller may run one.
func (b *breaker) abandon(trial bool) {
	if !trial {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen && b.trialInFlight {
		b.state = BreakerOpen
		b.trialInFlight = false
	}
}

func (b *breaker) snapshot(nodeName string) BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		NodeName:            nodeName,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
	}
}
