package frontend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/xgrammar/earley"
	"github.com/jmorganca/xgrammar/grammar"
)

// TestSpliceGrammarPreservesAcceptedLanguage embeds an independently compiled
// grammar (the builtin JSON grammar, chosen because its many interlinked
// rules exercise spliceExpr's RuleRef/Sequence/Choices remapping) inside a
// larger one wrapped around a literal prefix and suffix, mirroring how
// CompileJSONSchema and CompileStructuralTag splice sub-grammars together.
func TestSpliceGrammarPreservesAcceptedLanguage(t *testing.T) {
	src, err := CompileBuiltinJSONGrammar()
	require.NoError(t, err)

	b := grammar.NewBuilder()
	jsonRoot := spliceGrammar(b, src, "j")
	root := b.AddRuleWithHint("root", b.AddSequence([]grammar.ExprID{
		b.AddByteString([]byte("DATA:")),
		b.AddRuleRef(jsonRoot),
	}))
	b.SetRoot(root)
	require.NoError(t, grammar.Normalize(b))
	require.NoError(t, grammar.Optimize(b, grammar.OptimizeOptions{BuildFSM: true}))
	g := b.Grammar()

	assert.True(t, acceptsFully(earley.New(g), `DATA:{"a":[1,2,3]}`))
	assert.True(t, acceptsFully(earley.New(g), "DATA:null"))
	assert.False(t, acceptsFully(earley.New(g), `{"a":1}`), "missing the DATA: prefix")
	assert.False(t, acceptsFully(earley.New(g), "DATA:{"), "truncated JSON")
}

// TestSpliceGrammarPrefixesRuleNames confirms every spliced-in rule is
// renamed under namePrefix, so two splices of the same source grammar into
// one builder can never collide.
func TestSpliceGrammarPrefixesRuleNames(t *testing.T) {
	src, err := CompileBuiltinJSONGrammar()
	require.NoError(t, err)

	b := grammar.NewBuilder()
	spliceGrammar(b, src, "first")
	spliceGrammar(b, src, "second")
	root := b.AddEmptyRule("root")
	b.UpdateRuleBody(root, b.AddEmptyStr())
	b.SetRoot(root)
	g := b.Grammar()

	var sawFirstValue, sawSecondValue bool
	for i := range g.Rules {
		switch g.Rules[i].Name {
		case "first_value":
			sawFirstValue = true
		case "second_value":
			sawSecondValue = true
		}
	}
	assert.True(t, sawFirstValue)
	assert.True(t, sawSecondValue)

	for i := range g.Rules {
		name := g.Rules[i].Name
		if name == "root" {
			continue
		}
		assert.True(t, strings.HasPrefix(name, "first_") || strings.HasPrefix(name, "second_"),
			"unexpected unprefixed rule name %q", name)
	}
}
