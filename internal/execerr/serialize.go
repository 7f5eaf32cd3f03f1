package execerr

import "time"

// Serializable is the plain form of an *Error that may cross process or
// transport boundaries. It holds no live references and its stack is
// sanitized.
type Serializable struct {
	Name      string `json:"name" yaml:"name"`
	Message   string `json:"message" yaml:"message"`
	Code      Code   `json:"code" yaml:"code"`
	NodeName  string `json:"nodeName,omitempty" yaml:"node_name,omitempty"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Stack     string `json:"stack,omitempty" yaml:"stack,omitempty"`

	TimeoutMs      *int64        `json:"timeoutMs,omitempty" yaml:"timeout_ms,omitempty"`
	FailureCount   *int          `json:"failureCount,omitempty" yaml:"failure_count,omitempty"`
	RecoveryTimeMs *int64        `json:"recoveryTimeMs,omitempty" yaml:"recovery_time_ms,omitempty"`
	Attempts       *int          `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	LastError      *Serializable `json:"lastError,omitempty" yaml:"last_error,omitempty"`
	Field          string        `json:"field,omitempty" yaml:"field,omitempty"`
}

// ToSerializable flattens e, dispatching on its detail for the
// code-specific fields. Stack options are forwarded to SanitizeStackTrace and
// apply to nested errors too.
func (e *Error) ToSerializable(opts ...StackOption) Serializable {
	if e == nil {
		return Serializable{}
	}
	out := Serializable{
		Name:      e.Name(),
		Message:   e.Message,
		Code:      e.Code,
		NodeName:  e.NodeName,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Stack:     SanitizeStackTrace(e.Stack, opts...),
	}
	switch d := e.Detail.(type) {
	case TimeoutDetail:
		ms := d.Timeout.Milliseconds()
		out.TimeoutMs = &ms
	case CircuitOpenDetail:
		count := d.FailureCount
		ms := d.RecoveryTime.Milliseconds()
		out.FailureCount = &count
		out.RecoveryTimeMs = &ms
	case RetryExhaustedDetail:
		attempts := d.Attempts
		out.Attempts = &attempts
		if d.LastError != nil {
			nested := d.LastError.ToSerializable(opts...)
			out.LastError = &nested
		}
	case ValidationDetail:
		out.Field = d.Field
	}
	return out
}

// Report is the operator-facing subset of a failure: code, node, timestamp
// and message, ready for display or a log line.
func (e *Error) Report() map[string]string {
	if e == nil {
		return nil
	}
	return map[string]string{
		"code":      string(e.Code),
		"nodeName":  e.NodeName,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"message":   e.Message,
	}
}
