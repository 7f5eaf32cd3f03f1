package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/execerr"
	"github.com/kingrea/storyline/internal/workflow/runner"
)

const defaultMaxParallel = 4

// Engine runs node graphs through a runner while persisting state.
type Engine struct {
	runner      *runner.Runner
	repo        StateStore
	clock       func() time.Time
	logger      *zap.Logger
	maxParallel int
	policy      runner.Policy
	stackOpts   []execerr.StackOption
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger routes engine events to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxParallel caps how many nodes of one wave run at once.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithDefaultPolicy sets the policy nodes inherit for fields they leave zero.
func WithDefaultPolicy(policy runner.Policy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithStackOptions controls how error stacks are sanitized before persisting.
func WithStackOptions(opts ...execerr.StackOption) Option {
	return func(e *Engine) {
		e.stackOpts = append([]execerr.StackOption(nil), opts...)
	}
}

// New wires an engine to a runner and a state store.
func New(r *runner.Runner, repo StateStore, opts ...Option) (*Engine, error) {
	if r == nil {
		return nil, fmt.Errorf("workflow engine: runner is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("workflow engine: state store is required")
	}
	engine := &Engine{
		runner:      r,
		repo:        repo,
		clock:       time.Now,
		logger:      zap.NewNop(),
		maxParallel: defaultMaxParallel,
		policy:      runner.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Execute runs nodes for item. Nodes are grouped into dependency waves; a
// wave starts once the previous one has settled, and a node whose
// dependencies did not all succeed is skipped. State is saved after every
// wave. Node failures are reported in the returned State; the error is
// reserved for invalid graphs and persistence failures.
func (e *Engine) Execute(ctx context.Context, item artifact.WorkItem, nodes []Node) (State, error) {
	g, err := buildGraph(nodes)
	if err != nil {
		return State{}, err
	}
	waves, err := g.waves()
	if err != nil {
		return State{}, err
	}
	now := e.now()
	state := State{
		RunID:     ulid.Make().String(),
		Item:      item,
		Status:    EngineStatusRunning,
		StartedAt: now,
		UpdatedAt: now,
		Nodes:     make([]NodeStatus, 0, len(g.order)),
	}
	index := make(map[string]int, len(g.order))
	for i, name := range g.order {
		index[name] = i
		state.Nodes = append(state.Nodes, NodeStatus{
			Name:      name,
			DependsOn: cloneStrings(g.node(name).DependsOn),
			State:     NodeStatePending,
		})
	}
	log := e.logger.With(zap.String("item", item.String()), zap.String("run_id", state.RunID))
	if err := e.repo.Save(state); err != nil {
		return state, err
	}

	var mu sync.Mutex
	for number, wave := range waves {
		var runnable []Node
		for _, name := range wave {
			status := &state.Nodes[index[name]]
			if ctx.Err() != nil {
				status.State = NodeStateCancelled
				continue
			}
			if blocked := unmetDependencies(state, index, status.DependsOn); len(blocked) > 0 {
				status.State = NodeStateSkipped
				status.BlockedBy = blocked
				log.Info("node skipped", zap.String("node", name), zap.Strings("blocked_by", blocked))
				continue
			}
			runnable = append(runnable, g.node(name))
		}
		if len(runnable) > 0 {
			log.Debug("wave started", zap.Int("wave", number+1), zap.Int("nodes", len(runnable)))
		}
		var group errgroup.Group
		group.SetLimit(e.maxParallel)
		for _, node := range runnable {
			group.Go(func() error {
				out, _ := e.runner.Run(ctx, node.Name, node.Work, e.policyFor(node))
				record := out.Record(e.stackOpts...)
				mu.Lock()
				defer mu.Unlock()
				status := &state.Nodes[index[node.Name]]
				status.State = nodeStateFor(out.Status)
				status.Outcome = &record
				return nil
			})
		}
		_ = group.Wait()
		state.UpdatedAt = e.now()
		if err := e.repo.Save(state); err != nil {
			return state, err
		}
	}

	state.Status, state.StatusReason = deriveStatus(state.Nodes)
	state.UpdatedAt = e.now()
	if err := e.repo.Save(state); err != nil {
		return state, err
	}
	log.Info("run finished", zap.String("status", string(state.Status)), zap.String("reason", state.StatusReason))
	return state, nil
}

// Load returns the last persisted state for item, or ErrNoOutcome.
func (e *Engine) Load(item artifact.WorkItem) (State, error) {
	return e.repo.Load(item)
}

// policyFor fills the node's zero policy fields from the engine default.
func (e *Engine) policyFor(node Node) runner.Policy {
	p := node.Policy
	if p.Timeout <= 0 {
		p.Timeout = e.policy.Timeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = e.policy.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = e.policy.Backoff
	}
	if p.CircuitBreaker.FailureThreshold == 0 {
		p.CircuitBreaker.FailureThreshold = e.policy.CircuitBreaker.FailureThreshold
	}
	if p.CircuitBreaker.RecoveryWindow <= 0 {
		p.CircuitBreaker.RecoveryWindow = e.policy.CircuitBreaker.RecoveryWindow
	}
	return p
}

func unmetDependencies(state State, index map[string]int, deps []string) []string {
	var blocked []string
	for _, dep := range deps {
		if state.Nodes[index[dep]].State != NodeStateSucceeded {
			blocked = append(blocked, dep)
		}
	}
	return blocked
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now().UTC()
	}
	return e.clock().UTC()
}
