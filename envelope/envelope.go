// Package envelope defines the two wire shapes a job can resolve to: a
// successful payload with a content type, or a structured execution error.
// Every worker return value is normalized into one of them before it crosses
// a process boundary (job cache, HTTP response, result push).
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorSchema tags an ExecError so downstream consumers can tell it apart
// from a legitimate payload that happens to look like one.
const ErrorSchema = "urn:ivcap:schema.ai-tool.error.1"

// Result is a successful job payload.
type Result struct {
	ContentType string
	Content     []byte
	// Raw is the decoded value the worker returned, kept for in-process
	// reuse on the fast path. It does not survive serialization.
	Raw any
}

// ExecError is the wire envelope for a failed execution.
type ExecError struct {
	Schema    string `json:"$schema"`
	Error     string `json:"error"`
	Type      string `json:"type"`
	Traceback string `json:"traceback,omitempty"`
}

// Outcome is the normalized result of one job. Exactly one of Result or Err
// is set. Outcomes are immutable once stored and safe to share between
// concurrent readers.
type Outcome struct {
	Result *Result
	Err    *ExecError
}

// IsError reports whether the outcome is an execution error envelope.
func (o Outcome) IsError() bool { return o.Err != nil }

// ContentType returns the content type that accompanies Body on the wire.
func (o Outcome) ContentType() string {
	if o.Err != nil {
		return "application/json"
	}
	if o.Result != nil {
		return o.Result.ContentType
	}
	return "text/plain"
}

// Body returns the bytes that cross every process boundary: the payload
// content for a success, the JSON error envelope for a failure.
func (o Outcome) Body() []byte {
	if o.Err != nil {
		data, err := json.Marshal(o.Err)
		if err != nil {
			// ExecError is plain strings, this cannot fail in practice.
			return []byte(fmt.Sprintf(`{"$schema":%q,"error":"failed to encode error envelope","type":"InternalError"}`, ErrorSchema))
		}
		return data
	}
	if o.Result != nil {
		return o.Result.Content
	}
	return nil
}

// InvalidInputError marks a worker failure caused by the caller's input
// rather than the execution itself. The HTTP adapter maps it to a 400
// instead of a stored error envelope with status 200.
type InvalidInputError struct {
	Msg string
}

func (e *InvalidInputError) Error() string { return e.Msg }

// InvalidInput builds an InvalidInputError with a formatted message.
func InvalidInput(format string, args ...any) error {
	return &InvalidInputError{Msg: fmt.Sprintf(format, args...)}
}

// invalidInputType is the error kind recorded for InvalidInputError values.
const invalidInputType = "InvalidInputError"

// IsInvalidInput reports whether the error envelope records a
// validation-class failure.
func (e *ExecError) IsInvalidInput() bool {
	return e != nil && e.Type == invalidInputType
}

// typeName returns the bare Go type name of v, without package path.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	name := fmt.Sprintf("%T", v)
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// wireOutcome is the serialized form used when an outcome is mirrored
// through a byte cache backend.
type wireOutcome struct {
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
	IsError     bool   `json:"is_error"`
}

// Encode serializes the outcome for storage in a byte cache. The decoded
// Raw value is not preserved.
func (o Outcome) Encode() ([]byte, error) {
	w := wireOutcome{
		ContentType: o.ContentType(),
		Content:     o.Body(),
		IsError:     o.IsError(),
	}
	return json.Marshal(w)
}

// Decode reconstructs an outcome previously serialized with Encode.
func Decode(data []byte) (Outcome, error) {
	var w wireOutcome
	if err := json.Unmarshal(data, &w); err != nil {
		return Outcome{}, fmt.Errorf("decode outcome: %w", err)
	}
	if w.IsError {
		var ee ExecError
		if err := json.Unmarshal(w.Content, &ee); err != nil {
			return Outcome{}, fmt.Errorf("decode error envelope: %w", err)
		}
		return Outcome{Err: &ee}, nil
	}
	return Outcome{Result: &Result{ContentType: w.ContentType, Content: w.Content}}, nil
}
