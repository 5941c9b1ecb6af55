package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/xgrammar/earley"
	"github.com/jmorganca/xgrammar/grammar"
)

func mustCompileJSONSchema(t *testing.T, schemaJSON string, opts JSONSchemaOptions) *grammar.Grammar {
	t.Helper()
	g, err := CompileJSONSchema([]byte(schemaJSON), opts)
	require.NoError(t, err)

	b := grammar.WrapBuilder(g)
	require.NoError(t, grammar.Normalize(b))
	require.NoError(t, grammar.Optimize(b, grammar.OptimizeOptions{BuildFSM: true}))
	return b.Grammar()
}

func TestCompileJSONSchemaObjectProperties(t *testing.T) {
	g := mustCompileJSONSchema(t, `{
		"type": "object",
		"properties": {"name": {"type": "string"}, "age": {"type": "integer"}}
	}`, JSONSchemaOptions{})

	assert.True(t, acceptsFully(earley.New(g), `{"name":"bob","age":5}`))
}

func TestCompileJSONSchemaObjectRejectsExtraWhitespaceByDefault(t *testing.T) {
	g := mustCompileJSONSchema(t, `{
		"type": "object",
		"properties": {"name": {"type": "string"}}
	}`, JSONSchemaOptions{})

	assert.False(t, acceptsFully(earley.New(g), `{"name": "bob"}`))
}

func TestCompileJSONSchemaArrayOfStrings(t *testing.T) {
	g := mustCompileJSONSchema(t, `{"type": "array", "items": {"type": "string"}}`, JSONSchemaOptions{})

	assert.True(t, acceptsFully(earley.New(g), "[]"))
	assert.True(t, acceptsFully(earley.New(g), `["a","b","c"]`))
	assert.False(t, acceptsFully(earley.New(g), `["a", "b"]`))
}

func TestCompileJSONSchemaStringPattern(t *testing.T) {
	g := mustCompileJSONSchema(t, `{"type": "string", "pattern": "^[a-z]+$"}`, JSONSchemaOptions{})

	assert.True(t, acceptsFully(earley.New(g), `"abc"`))
	assert.False(t, acceptsFully(earley.New(g), `"ABC"`))
}

func TestCompileJSONSchemaEnum(t *testing.T) {
	g := mustCompileJSONSchema(t, `{"enum": ["red", "green", "blue"]}`, JSONSchemaOptions{})

	assert.True(t, acceptsFully(earley.New(g), `"red"`))
	assert.False(t, acceptsFully(earley.New(g), `"purple"`))
}

func TestCompileJSONSchemaAnyOf(t *testing.T) {
	g := mustCompileJSONSchema(t, `{"anyOf": [{"type": "string"}, {"type": "number"}]}`, JSONSchemaOptions{})

	assert.True(t, acceptsFully(earley.New(g), `"hi"`))
	assert.True(t, acceptsFully(earley.New(g), "42"))
	assert.False(t, acceptsFully(earley.New(g), "true"))
}

func TestCompileJSONSchemaRefResolvesAgainstDefs(t *testing.T) {
	g := mustCompileJSONSchema(t, `{
		"type": "object",
		"properties": {"child": {"$ref": "#/$defs/node"}},
		"$defs": {"node": {"type": "string"}}
	}`, JSONSchemaOptions{})

	assert.True(t, acceptsFully(earley.New(g), `{"child":"hello"}`))
}

func TestCompileJSONSchemaInvalidJSONErrors(t *testing.T) {
	_, err := CompileJSONSchema([]byte(`{`), JSONSchemaOptions{})
	assert.Error(t, err)
}
