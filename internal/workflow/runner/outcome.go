package runner

import (
	"time"

	"github.com/kingrea/storyline/internal/execerr"
)

// Status summarizes how a Run invocation ended.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	// StatusRejected marks calls refused by an open circuit breaker.
	StatusRejected Status = "rejected"
)

// Outcome is the result of one Run invocation.
type Outcome struct {
	RunID      string
	NodeName   string
	Status     Status
	Attempts   int
	Value      any
	Err        *execerr.Error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the node produced a value.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// OutcomeRecord is the persisted form of an Outcome. The work value is not
// recorded; nodes that need to persist results write their own artifacts.
type OutcomeRecord struct {
	RunID      string                `json:"run_id" yaml:"run_id"`
	NodeName   string                `json:"node_name" yaml:"node_name"`
	Status     Status                `json:"status" yaml:"status"`
	Attempts   int                   `json:"attempts" yaml:"attempts"`
	StartedAt  time.Time             `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time             `json:"finished_at" yaml:"finished_at"`
	Error      *execerr.Serializable `json:"error,omitempty" yaml:"error,omitempty"`
}

// Record converts o for persistence. opts control stack sanitization of the
// attached error.
func (o Outcome) Record(opts ...execerr.StackOption) OutcomeRecord {
	rec := OutcomeRecord{
		RunID:      o.RunID,
		NodeName:   o.NodeName,
		Status:     o.Status,
		Attempts:   o.Attempts,
		StartedAt:  o.StartedAt.UTC(),
		FinishedAt: o.FinishedAt.UTC(),
	}
	if o.Err != nil {
		s := o.Err.ToSerializable(opts...)
		rec.Error = &s
	}
	return rec
}
