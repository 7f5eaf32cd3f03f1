// Package runner executes named units of work under a failure-isolation
// policy: a per-attempt timeout, bounded sequential retries with backoff and a
// circuit breaker keyed by node name.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/kingrea/storyline/internal/execerr"
)

// Attempt is the execution context handed to work. It is created fresh for
// every attempt and never shared between nodes.
type Attempt struct {
	NodeName  string
	Number    int
	StartedAt time.Time
	Deadline  time.Time
	// Trial is set when the attempt runs as the half-open breaker trial.
	Trial bool
}

// Work is a unit of execution. ctx is cancelled when the attempt times out or
// the caller cancels; well-behaved work should return promptly once it is
// done.
type Work func(ctx context.Context, attempt Attempt) (any, error)

// Runner executes work under a Policy. A Runner is safe for concurrent use.
type Runner struct {
	breakers *BreakerRegistry
	clock    func() time.Time
	logger   *zap.Logger
}

// Option customizes the runner instance.
type Option func(*Runner)

// WithClock injects a deterministic clock for breaker bookkeeping (primarily
// for tests). Timeouts and backoff always use real timers.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger routes runner events to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBreakers shares an existing breaker registry, e.g. between runners
// built for different work items of one process.
func WithBreakers(registry *BreakerRegistry) Option {
	return func(r *Runner) {
		if registry != nil {
			r.breakers = registry
		}
	}
}

// New builds a runner with its own breaker registry unless one is supplied.
func New(opts ...Option) *Runner {
	r := &Runner{
		breakers: NewBreakerRegistry(),
		clock:    time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Breakers exposes the registry backing this runner.
func (r *Runner) Breakers() *BreakerRegistry {
	return r.breakers
}

// Breaker returns the current breaker state for nodeName.
func (r *Runner) Breaker(nodeName string) BreakerSnapshot {
	return r.breakers.Snapshot(nodeName)
}

// Run executes work as nodeName under policy.
//
// The breaker for nodeName is consulted first; an open breaker fails the call
// with CIRCUIT_OPEN without consuming an attempt or any timeout budget. Each
// attempt races work against policy.Timeout. Failures and timeouts are
// retried up to policy.MaxAttempts with policy.Backoff between attempts, then
// reported as RETRY_EXHAUSTED. With MaxAttempts == 1 RETRY_EXHAUSTED never
// appears: the failure itself (for example NODE_TIMEOUT) is returned. Caller
// cancellation is reported as NODE_CANCELLED and never retried.
//
// Callers own idempotency: a failed attempt may have performed side effects
// before failing and will be run again. Cancellation is cooperative: the
// runner stops waiting but cannot stop work that ignores ctx, so such work may
// keep running in the background after a timeout or cancellation is reported.
func (r *Runner) Run(ctx context.Context, nodeName string, work Work, policy Policy) (Outcome, error) {
	policy = policy.WithDefaults()
	out := Outcome{
		RunID:     ulid.Make().String(),
		NodeName:  nodeName,
		StartedAt: r.clock(),
	}
	log := r.logger.With(zap.String("node", nodeName), zap.String("run_id", out.RunID))
	if work == nil {
		return r.finish(log, out, StatusFailed, execerr.Validation("work", "work function is required").WithNode(nodeName))
	}
	if err := ctx.Err(); err != nil {
		return r.finish(log, out, StatusCancelled, execerr.Cancelled(nodeName, err))
	}
	br := r.breakers.get(nodeName)
	trial, openErr := br.acquire(nodeName, policy.CircuitBreaker, r.clock())
	if openErr != nil {
		return r.finish(log, out, StatusRejected, openErr)
	}
	if trial {
		log.Info("circuit half-open; running trial")
	}

	var last *execerr.Error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		out.Attempts = attempt
		value, err := r.attempt(ctx, nodeName, attempt, trial, work, policy.Timeout)
		if err == nil {
			br.success(trial)
			out.Value = value
			return r.finish(log, out, StatusSucceeded, nil)
		}
		if err.Code == execerr.CodeCancelled {
			br.abandon(trial)
			return r.finish(log, out, StatusCancelled, err)
		}
		last = err
		held := trial
		trial = false
		log.Warn("attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.String("code", string(err.Code)),
			zap.String("error", err.Message))
		if br.failure(held, policy.CircuitBreaker, r.clock()) {
			log.Warn("circuit opened", zap.Int("failures", br.snapshot(nodeName).ConsecutiveFailures))
		}
		if attempt < policy.MaxAttempts {
			if sleepErr := sleep(ctx, policy.Backoff(attempt)); sleepErr != nil {
				return r.finish(log, out, StatusCancelled, execerr.Cancelled(nodeName, sleepErr))
			}
		}
	}
	if policy.MaxAttempts == 1 {
		return r.finish(log, out, StatusFailed, last)
	}
	return r.finish(log, out, StatusFailed, execerr.RetryExhausted(nodeName, policy.MaxAttempts, last))
}

type attemptResult struct {
	value any
	err   error
}

func (r *Runner) attempt(ctx context.Context, nodeName string, number int, trial bool, work Work, timeout time.Duration) (any, *execerr.Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	deadline, _ := attemptCtx.Deadline()
	info := Attempt{
		NodeName:  nodeName,
		Number:    number,
		StartedAt: time.Now(),
		Deadline:  deadline,
		Trial:     trial,
	}
	// Buffered so a late result never blocks the orphaned goroutine.
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- attemptResult{err: fmt.Errorf("panic: %s", execerr.Normalize(rec).Message)}
			}
		}()
		value, err := work(attemptCtx, info)
		done <- attemptResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		// A result observed after the deadline still counts as a timeout.
		if attemptCtx.Err() == nil {
			if res.err == nil {
				return res.value, nil
			}
			return nil, attribute(execerr.Normalize(res.err), nodeName)
		}
	case <-attemptCtx.Done():
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, execerr.Cancelled(nodeName, ctxErr)
	}
	return nil, execerr.Timeout(nodeName, timeout)
}

func (r *Runner) finish(log *zap.Logger, out Outcome, status Status, err *execerr.Error) (Outcome, error) {
	out.Status = status
	out.FinishedAt = r.clock()
	if err == nil {
		log.Info("node succeeded", zap.Int("attempts", out.Attempts), zap.Duration("elapsed", out.FinishedAt.Sub(out.StartedAt)))
		return out, nil
	}
	out.Err = err
	log.Error("node failed",
		zap.String("status", string(status)),
		zap.String("code", string(err.Code)),
		zap.Int("attempts", out.Attempts),
		zap.String("error", err.Message))
	return out, err
}

// attribute names the node on errors that arrived without one. Errors already
// attributed (for example from a nested runner) keep their origin.
func attribute(err *execerr.Error, nodeName string) *execerr.Error {
	if err.NodeName != "" {
		return err
	}
	return err.WithNode(nodeName)
}

func sleep(ctx context.Context, d time.Duration) error {
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
