package engine

import (
	"fmt"
	"time"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/workflow/runner"
)

// EngineStatus enumerates coarse execution phases.
type EngineStatus string

const (
	EngineStatusRunning   EngineStatus = "running"
	EngineStatusComplete  EngineStatus = "complete"
	EngineStatusFailed    EngineStatus = "failed"
	EngineStatusCancelled EngineStatus = "cancelled"
)

// NodeState is the engine's view of one node within a run.
type NodeState string

const (
	NodeStatePending   NodeState = "pending"
	NodeStateSucceeded NodeState = "succeeded"
	NodeStateFailed    NodeState = "failed"
	NodeStateRejected  NodeState = "rejected"
	NodeStateCancelled NodeState = "cancelled"
	// NodeStateSkipped marks nodes never started because a dependency did not
	// succeed.
	NodeStateSkipped NodeState = "skipped"
)

// State captures the persisted snapshot of a run.
type State struct {
	RunID  string            `json:"run_id" yaml:"run_id"`
	Item   artifact.WorkItem `json:"item" yaml:"item"`
	Status EngineStatus      `json:"status" yaml:"status"`
	// StatusReason provides human readable explanation for non-complete states.
	StatusReason string       `json:"status_reason,omitempty" yaml:"status_reason,omitempty"`
	Nodes        []NodeStatus `json:"nodes" yaml:"nodes"`
	StartedAt    time.Time    `json:"started_at" yaml:"started_at"`
	UpdatedAt    time.Time    `json:"updated_at" yaml:"updated_at"`
}

// NodeStatus records one node's dependencies and last outcome.
type NodeStatus struct {
	Name      string                `json:"name" yaml:"name"`
	DependsOn []string              `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	State     NodeState             `json:"state" yaml:"state"`
	BlockedBy []string              `json:"blocked_by,omitempty" yaml:"blocked_by,omitempty"`
	Outcome   *runner.OutcomeRecord `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// Node returns the status of name.
func (s State) Node(name string) (NodeStatus, bool) {
	for _, node := range s.Nodes {
		if node.Name == name {
			return node, true
		}
	}
	return NodeStatus{}, false
}

// Counts tallies nodes per state.
func (s State) Counts() map[NodeState]int {
	counts := make(map[NodeState]int, len(s.Nodes))
	for _, node := range s.Nodes {
		counts[node.State]++
	}
	return counts
}

func nodeStateFor(status runner.Status) NodeState {
	switch status {
	case runner.StatusSucceeded:
		return NodeStateSucceeded
	case runner.StatusCancelled:
		return NodeStateCancelled
	case runner.StatusRejected:
		return NodeStateRejected
	default:
		return NodeStateFailed
	}
}

func deriveStatus(nodes []NodeStatus) (EngineStatus, string) {
	for _, node := range nodes {
		if node.State == NodeStateCancelled {
			return EngineStatusCancelled, fmt.Sprintf("%s was cancelled", node.Name)
		}
	}
	for _, node := range nodes {
		switch node.State {
		case NodeStateFailed:
			return EngineStatusFailed, fmt.Sprintf("%s failed", node.Name)
		case NodeStateRejected:
			return EngineStatusFailed, fmt.Sprintf("%s rejected by open circuit", node.Name)
		}
	}
	for _, node := range nodes {
		if node.State != NodeStateSucceeded {
			return EngineStatusRunning, fmt.Sprintf("%s is %s", node.Name, node.State)
		}
	}
	return EngineStatusComplete, ""
}
