package execerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type label string

func (l label) String() string { return "label:" + string(l) }

type panicky struct{}

func (*panicky) Error() string { panic("boom") }

func TestNormalizePassesTypedErrorsThrough(t *testing.T) {
	for _, err := range []*Error{
		Timeout("a", time.Second),
		Cancelled("a", nil),
		CircuitOpen("a", 1, time.Second),
		RetryExhausted("a", 2, errors.New("x")),
	} {
		assert.Same(t, err, Normalize(err))
	}
}

func TestNormalizeUnwrapsTypedErrorFromChain(t *testing.T) {
	inner := Timeout("a", time.Second)
	assert.Same(t, inner, Normalize(fmt.Errorf("outer: %w", inner)))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []any{nil, errors.New("plain"), "text", 42, map[string]any{"message": "m"}, struct{ A int }{1}}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Same(t, once, twice, "input %#v", in)
		assert.Equal(t, once.Code, twice.Code)
		assert.Equal(t, once.Message, twice.Message)
	}
}

func TestNormalizeShapes(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: "unknown error (nil)"},
		{name: "typed nil", in: (*Error)(nil), want: "unknown error (nil)"},
		{name: "native", in: errors.New("disk full"), want: "disk full"},
		{name: "message map", in: map[string]any{"message": "bad gateway", "status": 502}, want: "bad gateway"},
		{name: "string map", in: map[string]string{"message": "nope"}, want: "nope"},
		{name: "stringer", in: label("x"), want: "label:x"},
		{name: "string", in: "raw failure", want: "raw failure"},
		{name: "number", in: 7, want: "7"},
		{name: "bool", in: false, want: "false"},
		{name: "struct", in: struct {
			Status int `json:"status"`
		}{Status: 500}, want: `{"status":500}`},
		{name: "map without message", in: map[string]any{"status": 404}, want: `{"status":404}`},
		{name: "empty string", in: "", want: "unknown error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.in)
			require.NotNil(t, got)
			assert.Equal(t, CodeUnknown, got.Code)
			assert.Equal(t, tc.want, got.Message)
		})
	}
}

func TestNormalizeKeepsNativeCause(t *testing.T) {
	sentinel := errors.New("sentinel")
	got := Normalize(fmt.Errorf("wrapped: %w", sentinel))
	assert.ErrorIs(t, got, sentinel)
	assert.Equal(t, "wrapped: sentinel", got.Message)
}

func TestNormalizeNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		got := Normalize(&panicky{})
		assert.True(t, strings.HasPrefix(got.Message, "unprintable error"))
	})
	assert.NotPanics(t, func() {
		ch := make(chan int)
		got := Normalize(ch)
		assert.NotEmpty(t, got.Message)
	})
}
