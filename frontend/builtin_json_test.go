package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/xgrammar/earley"
	"github.com/jmorganca/xgrammar/grammar"
)

func mustCompileBuiltinJSON(t *testing.T) *grammar.Grammar {
	t.Helper()
	g, err := CompileBuiltinJSONGrammar()
	require.NoError(t, err)

	b := grammar.WrapBuilder(g)
	require.NoError(t, grammar.Normalize(b))
	require.NoError(t, grammar.Optimize(b, grammar.OptimizeOptions{BuildFSM: true}))
	return b.Grammar()
}

func TestBuiltinJSONGrammarAcceptsLiterals(t *testing.T) {
	g := mustCompileBuiltinJSON(t)

	for _, s := range []string{"true", "false", "null"} {
		assert.True(t, acceptsFully(earley.New(g), s), "expected %q to be accepted", s)
	}
}

func TestBuiltinJSONGrammarAcceptsNumbers(t *testing.T) {
	g := mustCompileBuiltinJSON(t)

	for _, s := range []string{"0", "-12", "3.14", "1e10", "-2.5E-3"} {
		assert.True(t, acceptsFully(earley.New(g), s), "expected %q to be accepted", s)
	}
}

func TestBuiltinJSONGrammarRejectsLeadingZeroDigits(t *testing.T) {
	g := mustCompileBuiltinJSON(t)
	assert.False(t, acceptsFully(earley.New(g), "01"))
}

func TestBuiltinJSONGrammarAcceptsString(t *testing.T) {
	g := mustCompileBuiltinJSON(t)
	assert.True(t, acceptsFully(earley.New(g), `"hello"`))
	assert.True(t, acceptsFully(earley.New(g), `"line\nbreak"`))
	assert.True(t, acceptsFully(earley.New(g), `"é"`))
}

func TestBuiltinJSONGrammarRejectsUnescapedQuote(t *testing.T) {
	g := mustCompileBuiltinJSON(t)
	assert.False(t, acceptsFully(earley.New(g), `"a"b"`))
}

func TestBuiltinJSONGrammarAcceptsArray(t *testing.T) {
	g := mustCompileBuiltinJSON(t)
	assert.True(t, acceptsFully(earley.New(g), "[]"))
	assert.True(t, acceptsFully(earley.New(g), "[1, 2, 3]"))
	assert.True(t, acceptsFully(earley.New(g), `["a", true, null]`))
}

func TestBuiltinJSONGrammarAcceptsObject(t *testing.T) {
	g := mustCompileBuiltinJSON(t)
	assert.True(t, acceptsFully(earley.New(g), "{}"))
	assert.True(t, acceptsFully(earley.New(g), `{"a": 1, "b": [2, 3]}`))
}

func TestBuiltinJSONGrammarRejectsTrailingComma(t *testing.T) {
	g := mustCompileBuiltinJSON(t)
	assert.False(t, acceptsFully(earley.New(g), "[1,]"))
}
