package execerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// shape tags the inputs Normalize knows how to convert.
type shape int

const (
	shapeNullish shape = iota
	shapeNative
	shapeMessage
	shapePrimitive
)

func classify(x any) shape {
	switch v := x.(type) {
	case nil:
		return shapeNullish
	case error:
		if isNilError(v) {
			return shapeNullish
		}
		return shapeNative
	case map[string]any:
		if _, ok := v["message"].(string); ok {
			return shapeMessage
		}
	case map[string]string:
		if _, ok := v["message"]; ok {
			return shapeMessage
		}
	case fmt.Stringer:
		return shapeMessage
	}
	return shapePrimitive
}

// Normalize converts anything a unit of work may fail with (an error, a
// recovered panic value, a map carrying a message, a primitive, nil) into an
// *Error. An *Error anywhere in an error chain is returned unchanged, which
// makes Normalize idempotent. Normalize never panics.
func Normalize(x any) *Error {
	switch classify(x) {
	case shapeNullish:
		return newError(CodeUnknown, "", nil, nil).withMessage("unknown error (nil)")
	case shapeNative:
		err := x.(error)
		var typed *Error
		if errors.As(err, &typed) && typed != nil {
			return typed
		}
		return newError(CodeUnknown, "", nil, err)
	case shapeMessage:
		return newError(CodeUnknown, "", nil, nil).withMessage(messageField(x))
	default:
		return newError(CodeUnknown, "", nil, nil).withMessage(primitiveText(x))
	}
}

func (e *Error) withMessage(msg string) *Error {
	if strings.TrimSpace(msg) == "" {
		msg = "unknown error"
	}
	e.Message = msg
	return e
}

func messageField(x any) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("unprintable value of type %T", x)
		}
	}()
	switch v := x.(type) {
	case map[string]any:
		return v["message"].(string)
	case map[string]string:
		return v["message"]
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

func primitiveText(x any) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprintf("unprintable value of type %T", x)
		}
	}()
	if s, ok := x.(string); ok {
		return s
	}
	switch x.(type) {
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(x)
	}
	encoded, err := json.Marshal(x)
	if err != nil {
		return fmt.Sprintf("%+v", x)
	}
	return string(encoded)
}

// safeMessage calls Error() on arbitrary errors, some of which panic on nil
// receivers.
func safeMessage(err error) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("unprintable error of type %T", err)
		}
	}()
	return err.Error()
}

func isNilError(err error) (isNil bool) {
	defer func() {
		if recover() != nil {
			isNil = true
		}
	}()
	if e, ok := err.(*Error); ok {
		return e == nil
	}
	return false
}
