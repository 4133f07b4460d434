package tooldef

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/pulsar/envelope"
)

type addInput struct {
	A int `json:"a"`
	B int `json:"b"`
}

func addTool() *Tool {
	return &Tool{
		Name:     "adder",
		Summary:  "Adds two integers.",
		NewInput: func() any { return &addInput{} },
		Worker: func(ctx context.Context, in any) (any, error) {
			p := in.(*addInput)
			return p.A + p.B, nil
		},
		Input:  openapi3.NewObjectSchema().WithProperty("a", openapi3.NewIntegerSchema()).WithProperty("b", openapi3.NewIntegerSchema()),
		Output: openapi3.NewIntegerSchema(),
	}
}

func TestTool_Definition(t *testing.T) {
	def := addTool().Definition()

	assert.Equal(t, DefinitionSchema, def.Schema)
	assert.Equal(t, "adder", def.Name)
	assert.Equal(t, "Adds two integers.", def.Description)

	data, err := json.Marshal(def)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, DefinitionSchema, doc["$schema"])
	assert.Contains(t, doc, "input")
	assert.Contains(t, doc, "output")
}

func TestTool_DecodeInput(t *testing.T) {
	tool := addTool()

	in, err := tool.DecodeInput([]byte(`{"a": 2, "b": 3}`))
	require.NoError(t, err)
	assert.Equal(t, &addInput{A: 2, B: 3}, in)

	_, err = tool.DecodeInput([]byte(`{"a": "not a number"}`))
	require.Error(t, err)
	var iie *envelope.InvalidInputError
	assert.True(t, errors.As(err, &iie), "decode failure should be a caller error")
}

func TestTool_DecodeInputRawFallback(t *testing.T) {
	tool := &Tool{Name: "raw"}
	in, err := tool.DecodeInput([]byte(`{"anything": true}`))
	require.NoError(t, err)
	assert.IsType(t, json.RawMessage{}, in)
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: renamed
maxWait: 250ms
refreshInterval: 2s
maxConcurrent: 4
`), 0644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "renamed", m.Name)

	tool := addTool()
	m.Apply(tool)
	assert.Equal(t, "renamed", tool.Name)

	opts, err := m.ExecutorOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 3)
}

func TestManifest_BadDuration(t *testing.T) {
	m := &Manifest{MaxWait: "five seconds"}
	_, err := m.ExecutorOptions()
	require.Error(t, err)
}
