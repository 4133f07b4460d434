package envelope

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
)

// Normalize maps an arbitrary worker return value (or error) to exactly one
// Outcome. It recognizes a closed set of shapes: errors, pre-built results,
// text, raw bytes, byte streams, and JSON-serializable values, with a final
// generic serialization fallback. Normalize never fails; a value it cannot
// represent becomes an execution error envelope.
func Normalize(v any, err error) Outcome {
	if err != nil {
		return Outcome{Err: FromError(err)}
	}

	switch val := v.(type) {
	case Outcome:
		return val
	case *Result:
		if val.ContentType == "" {
			val.ContentType = "application/octet-stream"
		}
		return Outcome{Result: val}
	case Result:
		return Normalize(&val, nil)
	case *ExecError:
		return Outcome{Err: val}
	case string:
		return Outcome{Result: &Result{ContentType: "text/plain", Content: []byte(val), Raw: val}}
	case []byte:
		return Outcome{Result: &Result{ContentType: "application/octet-stream", Content: val, Raw: val}}
	case json.RawMessage:
		return Outcome{Result: &Result{ContentType: "application/json", Content: val, Raw: val}}
	case io.Reader:
		// Streams are drained in full before the outcome is final; a
		// partial read must never be stored.
		data, rerr := io.ReadAll(val)
		if rerr != nil {
			return Outcome{Err: &ExecError{
				Schema: ErrorSchema,
				Error:  fmt.Sprintf("reading result stream: %v", rerr),
				Type:   typeName(rerr),
			}}
		}
		if c, ok := val.(io.Closer); ok {
			c.Close()
		}
		return Outcome{Result: &Result{ContentType: "application/octet-stream", Content: data}}
	default:
		data, merr := json.Marshal(v)
		if merr != nil {
			return Outcome{Err: &ExecError{
				Schema: ErrorSchema,
				Error:  fmt.Sprintf("cannot serialize result of type %T: %v", v, merr),
				Type:   typeName(merr),
			}}
		}
		return Outcome{Result: &Result{ContentType: "application/json", Content: data, Raw: v}}
	}
}

// FromError converts a worker error into an error envelope. The error kind
// is the bare Go type name of the error value.
func FromError(err error) *ExecError {
	return &ExecError{
		Schema: ErrorSchema,
		Error:  err.Error(),
		Type:   typeName(err),
	}
}

// Run invokes fn and normalizes whatever comes back, including panics. A
// panic is captured with its stack trace as an execution error envelope, so
// the caller never observes a raw failure.
func Run(fn func() (any, error)) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: &ExecError{
				Schema:    ErrorSchema,
				Error:     fmt.Sprint(r),
				Type:      typeName(r),
				Traceback: string(debug.Stack()),
			}}
		}
	}()
	return Normalize(fn())
}
