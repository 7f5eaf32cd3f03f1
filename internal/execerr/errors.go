// Package execerr defines the typed failures produced while executing
// pipeline nodes. Every failure is a single *Error value tagged with a Code;
// kind-specific fields live in Detail so serialization can dispatch on the
// tag instead of on a type hierarchy.
package execerr

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Code identifies the failure category.
type Code string

const (
	CodeTimeout        Code = "NODE_TIMEOUT"
	CodeCancelled      Code = "NODE_CANCELLED"
	CodeCircuitOpen    Code = "CIRCUIT_OPEN"
	CodeRetryExhausted Code = "RETRY_EXHAUSTED"
	CodeValidation     Code = "VALIDATION_FAILED"
	CodeUnknown        Code = "UNKNOWN_ERROR"
)

// Sentinels usable with errors.Is; matching is by code only.
var (
	ErrTimeout        = &Error{Code: CodeTimeout}
	ErrCancelled      = &Error{Code: CodeCancelled}
	ErrCircuitOpen    = &Error{Code: CodeCircuitOpen}
	ErrRetryExhausted = &Error{Code: CodeRetryExhausted}
	ErrValidation     = &Error{Code: CodeValidation}
	ErrUnknown        = &Error{Code: CodeUnknown}
)

// Detail carries the fields that only one code uses.
type Detail interface {
	code() Code
}

// TimeoutDetail accompanies CodeTimeout.
type TimeoutDetail struct {
	Timeout time.Duration
}

// CircuitOpenDetail accompanies CodeCircuitOpen.
type CircuitOpenDetail struct {
	FailureCount int
	RecoveryTime time.Duration
}

// RetryExhaustedDetail accompanies CodeRetryExhausted.
type RetryExhaustedDetail struct {
	Attempts  int
	LastError *Error
}

// ValidationDetail accompanies CodeValidation and names the offending field.
type ValidationDetail struct {
	Field string
}

func (TimeoutDetail) code() Code        { return CodeTimeout }
func (CircuitOpenDetail) code() Code    { return CodeCircuitOpen }
func (RetryExhaustedDetail) code() Code { return CodeRetryExhausted }
func (ValidationDetail) code() Code     { return CodeValidation }

// Error is the execution failure shared by the runner, the scope validator
// and anything that normalizes foreign errors.
type Error struct {
	Code      Code
	NodeName  string
	Message   string
	Timestamp time.Time
	Stack     string
	Detail    Detail

	cause error
}

// Error implements error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Name returns the stable variant name used in serialized payloads.
func (e *Error) Name() string {
	switch e.Code {
	case CodeTimeout:
		return "NodeTimeoutError"
	case CodeCancelled:
		return "NodeCancellationError"
	case CodeCircuitOpen:
		return "NodeCircuitOpenError"
	case CodeRetryExhausted:
		return "NodeRetryExhaustedError"
	case CodeValidation:
		return "ValidationError"
	default:
		return "NodeExecutionError"
	}
}

// Timeout reports that nodeName did not finish within timeout.
func Timeout(nodeName string, timeout time.Duration) *Error {
	return newError(CodeTimeout, nodeName, TimeoutDetail{Timeout: timeout}, nil)
}

// Cancelled reports that nodeName observed cancellation. cause is usually the
// context error and may be nil.
func Cancelled(nodeName string, cause error) *Error {
	return newError(CodeCancelled, nodeName, nil, cause)
}

// CircuitOpen reports that the breaker for nodeName rejected the call.
func CircuitOpen(nodeName string, failureCount int, recoveryTime time.Duration) *Error {
	return newError(CodeCircuitOpen, nodeName, CircuitOpenDetail{
		FailureCount: failureCount,
		RecoveryTime: recoveryTime,
	}, nil)
}

// RetryExhausted reports that every attempt failed. last is normalized so the
// nested error is always serializable.
func RetryExhausted(nodeName string, attempts int, last error) *Error {
	var lastErr *Error
	if last != nil {
		lastErr = Normalize(last)
	}
	var cause error
	if lastErr != nil {
		cause = lastErr
	}
	return newError(CodeRetryExhausted, nodeName, RetryExhaustedDetail{
		Attempts:  attempts,
		LastError: lastErr,
	}, cause)
}

// Validation reports a malformed document or identifier. field names the
// offending field; reason is appended to the generated message.
func Validation(field, reason string) *Error {
	err := newError(CodeValidation, "", ValidationDetail{Field: field}, nil)
	if reason != "" {
		err.Message = fmt.Sprintf("%s: %s", err.Message, reason)
	}
	return err
}

// Wrap builds a CodeUnknown error attributed to nodeName around cause.
func Wrap(nodeName string, cause error) *Error {
	return newError(CodeUnknown, nodeName, nil, cause)
}

// WithNode returns a copy of e attributed to nodeName. The original is left
// untouched so callers sharing it never observe the change.
func (e *Error) WithNode(nodeName string) *Error {
	if e == nil || e.NodeName == nodeName {
		return e
	}
	clone := *e
	clone.NodeName = nodeName
	if clone.Code != CodeUnknown && clone.Code != CodeValidation {
		clone.Message = message(clone.Code, nodeName, clone.Detail, clone.cause)
	}
	return &clone
}

func newError(code Code, nodeName string, detail Detail, cause error) *Error {
	return &Error{
		Code:      code,
		NodeName:  nodeName,
		Message:   message(code, nodeName, detail, cause),
		Timestamp: time.Now().UTC(),
		Stack:     string(debug.Stack()),
		Detail:    detail,
		cause:     cause,
	}
}

// message is the single table deriving human text from (code, node, detail).
func message(code Code, nodeName string, detail Detail, cause error) string {
	node := nodeName
	if node == "" {
		node = "<unnamed>"
	}
	switch code {
	case CodeTimeout:
		d, _ := detail.(TimeoutDetail)
		return fmt.Sprintf("node %q timed out after %dms", node, d.Timeout.Milliseconds())
	case CodeCancelled:
		return fmt.Sprintf("node %q was cancelled", node)
	case CodeCircuitOpen:
		d, _ := detail.(CircuitOpenDetail)
		return fmt.Sprintf("circuit breaker open for node %q after %d failures; recovery in %dms",
			node, d.FailureCount, d.RecoveryTime.Milliseconds())
	case CodeRetryExhausted:
		d, _ := detail.(RetryExhaustedDetail)
		last := "unknown error"
		if d.LastError != nil {
			last = d.LastError.Message
		}
		return fmt.Sprintf("node %q failed after %d attempts: %s", node, d.Attempts, last)
	case CodeValidation:
		d, _ := detail.(ValidationDetail)
		return fmt.Sprintf("validation failed for field %q", d.Field)
	default:
		if cause != nil {
			return safeMessage(cause)
		}
		return fmt.Sprintf("node %q failed", node)
	}
}
