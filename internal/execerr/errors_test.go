package execerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryDetail(t *testing.T) {
	timeout := Timeout("lint", 50*time.Millisecond)
	assert.Equal(t, CodeTimeout, timeout.Code)
	assert.Equal(t, "NodeTimeoutError", timeout.Name())
	assert.Equal(t, `node "lint" timed out after 50ms`, timeout.Message)
	assert.False(t, timeout.Timestamp.IsZero())

	open := CircuitOpen("lint", 5, 30*time.Second)
	assert.Equal(t, "NodeCircuitOpenError", open.Name())
	assert.Contains(t, open.Message, "after 5 failures")
	assert.Contains(t, open.Message, "30000ms")

	cancelled := Cancelled("lint", context.Canceled)
	assert.Equal(t, "NodeCancellationError", cancelled.Name())
	assert.ErrorIs(t, cancelled, context.Canceled)
}

func TestMessagesAreStablePerCode(t *testing.T) {
	a := Timeout("build", time.Second)
	b := Timeout("build", time.Second)
	assert.Equal(t, a.Message, b.Message)

	other := Timeout("test", time.Second)
	assert.Equal(t,
		strings.Replace(a.Message, `"build"`, `"test"`, 1),
		other.Message)
}

func TestRetryExhaustedNestsLastError(t *testing.T) {
	err := RetryExhausted("deploy", 3, errors.New("connection refused"))
	detail, ok := err.Detail.(RetryExhaustedDetail)
	require.True(t, ok)
	assert.Equal(t, 3, detail.Attempts)
	require.NotNil(t, detail.LastError)
	assert.Equal(t, "connection refused", detail.LastError.Message)
	assert.Equal(t, `node "deploy" failed after 3 attempts: connection refused`, err.Message)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("runner: %w", Timeout("x", time.Millisecond))
	assert.ErrorIs(t, wrapped, ErrTimeout)
	assert.NotErrorIs(t, wrapped, ErrCancelled)
}

func TestValidationNamesField(t *testing.T) {
	err := Validation("schema", "expected 1, got 2")
	assert.Equal(t, `validation failed for field "schema": expected 1, got 2`, err.Message)
	s := err.ToSerializable()
	assert.Equal(t, "schema", s.Field)
	assert.Equal(t, "ValidationError", s.Name)
}

func TestWithNodeLeavesOriginalUntouched(t *testing.T) {
	base := Timeout("", time.Second)
	named := base.WithNode("fetch")
	assert.Equal(t, "", base.NodeName)
	assert.Equal(t, "fetch", named.NodeName)
	assert.Contains(t, named.Message, `"fetch"`)
}

func TestToSerializableIsPlainJSON(t *testing.T) {
	err := RetryExhausted("plan", 2, Timeout("plan", 50*time.Millisecond))
	s := err.ToSerializable()
	require.NotNil(t, s.Attempts)
	assert.Equal(t, 2, *s.Attempts)
	require.NotNil(t, s.LastError)
	require.NotNil(t, s.LastError.TimeoutMs)
	assert.Equal(t, int64(50), *s.LastError.TimeoutMs)

	data, marshalErr := json.Marshal(s)
	require.NoError(t, marshalErr)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "RETRY_EXHAUSTED", decoded["code"])
	assert.Equal(t, "plan", decoded["nodeName"])
	assert.NotEmpty(t, decoded["timestamp"])
	nested, ok := decoded["lastError"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "NodeTimeoutError", nested["name"])
}

func TestReportCarriesOperatorFields(t *testing.T) {
	report := CircuitOpen("sync", 3, time.Second).Report()
	assert.Equal(t, "CIRCUIT_OPEN", report["code"])
	assert.Equal(t, "sync", report["nodeName"])
	assert.NotEmpty(t, report["timestamp"])
	assert.NotEmpty(t, report["message"])
}
