// Package tooldef declares what a tool route serves: its worker entry
// point, input factory, and input/output schemas. The descriptor is written
// out by the integrator rather than inferred at runtime, and doubles as the
// tool description document agents fetch from the route.
package tooldef

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/oriys/pulsar/envelope"
)

// DefinitionSchema tags the tool description document.
const DefinitionSchema = "urn:sd-core:schema:ai-tool.1"

// Tool describes one tool route.
type Tool struct {
	// Name is the tool's identifier, used in descriptions and metrics.
	Name string

	// Summary is a one-line description; Description may be longer.
	Summary     string
	Description string

	// NewInput returns a fresh pointer to the worker's input type, used to
	// decode request bodies. When nil the worker receives the raw JSON.
	NewInput func() any

	// Worker is the tool's entry point.
	Worker func(ctx context.Context, in any) (any, error)

	// Input and Output document the worker's parameter and result shapes.
	Input  *openapi3.Schema
	Output *openapi3.Schema
}

// Definition is the description document served at the tool route and
// printed by the describe command.
type Definition struct {
	Schema      string           `json:"$schema"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	FnSignature string           `json:"fn_signature,omitempty"`
	Input       *openapi3.Schema `json:"input,omitempty"`
	Output      *openapi3.Schema `json:"output,omitempty"`
}

// Definition builds the tool description document.
func (t *Tool) Definition() *Definition {
	desc := t.Description
	if desc == "" {
		desc = t.Summary
	}
	return &Definition{
		Schema:      DefinitionSchema,
		Name:        t.Name,
		Description: desc,
		FnSignature: t.signature(),
		Input:       t.Input,
		Output:      t.Output,
	}
}

func (t *Tool) signature() string {
	in, out := "any", "any"
	if t.Input != nil && t.Input.Title != "" {
		in = t.Input.Title
	}
	if t.Output != nil && t.Output.Title != "" {
		out = t.Output.Title
	}
	return fmt.Sprintf("%s(%s) -> %s", t.Name, in, out)
}

// DecodeInput parses a JSON request or job body into the worker's input
// type. A malformed body is a caller error, not an execution failure.
func (t *Tool) DecodeInput(data []byte) (any, error) {
	if t.NewInput == nil {
		return json.RawMessage(data), nil
	}
	in := t.NewInput()
	if err := json.Unmarshal(data, in); err != nil {
		return nil, envelope.InvalidInput("invalid input for %s: %v", t.Name, err)
	}
	return in, nil
}
