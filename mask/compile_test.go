package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/xgrammar/grammar"
	"github.com/jmorganca/xgrammar/vocab"
	"github.com/jmorganca/xgrammar/xgcache"
)

func buildLiteralChoiceGrammar(lits ...string) *grammar.Grammar {
	b := grammar.NewBuilder()
	var alts []grammar.ExprID
	for _, l := range lits {
		alts = append(alts, b.AddSequence([]grammar.ExprID{b.AddByteString([]byte(l))}))
	}
	root := b.AddRuleWithHint("root", b.AddChoices(alts))
	b.SetRoot(root)
	if err := grammar.Normalize(b); err != nil {
		panic(err)
	}
	if err := grammar.Optimize(b, grammar.OptimizeOptions{BuildFSM: true}); err != nil {
		panic(err)
	}
	return b.Grammar()
}

// TestCompileRuleMasksRootChoiceScenario exercises the root ::= "a" | "b"
// over vocabulary {"a","b","c","ab"} scenario: "a"/"b" are fully accepted,
// "c" never matches a first byte, and "ab" over-runs the rule's completed
// position (so it's rejected at the root rather than left uncertain).
func TestCompileRuleMasksRootChoiceScenario(t *testing.T) {
	g := buildLiteralChoiceGrammar("a", "b")
	v := vocab.New([]string{"a", "b", "c", "ab"}, nil)

	masks, err := CompileRuleMasks(g, Options{Tokenizer: v, Workers: 1})
	require.NoError(t, err)

	rootFSM := *g.RuleByID(g.Root).FSM
	key := StateKey{Rule: int32(g.Root), State: int32(rootFSM.Start())}
	m, ok := masks[key]
	require.True(t, ok)

	assert.Equal(t, xgcache.LayoutAccepted, m.Layout)
	assert.ElementsMatch(t, []int32{0, 1}, m.Accepted)
	assert.Empty(t, m.Uncertain)
}

func TestCompileRuleMasksEmptyVocabReturnsEmptyMap(t *testing.T) {
	g := buildLiteralChoiceGrammar("a")
	v := vocab.New(nil, nil)

	masks, err := CompileRuleMasks(g, Options{Tokenizer: v, Workers: 1})
	require.NoError(t, err)
	assert.Empty(t, masks)
}

func TestCompileRuleMasksNonRootUncertainWhenPrefixOfLonger(t *testing.T) {
	// A non-root rule that only partially consumes a longer token leaves it
	// uncertain rather than rejecting it outright, since a later sibling rule
	// might still continue the match.
	b := grammar.NewBuilder()
	sub := b.AddRuleWithHint("sub", b.AddChoices([]grammar.ExprID{
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("a"))}),
	}))
	marker := b.AddByteString([]byte("m"))
	// marker keeps the RuleRef out of first position so inlineRules (which
	// only inlines a first-position reference) leaves sub as its own rule,
	// and sub sits last so analyzeLookahead doesn't synthesize an implicit
	// lookahead assertion for it (that only happens for non-last occurrences).
	root := b.AddRuleWithHint("root", b.AddChoices([]grammar.ExprID{
		b.AddSequence([]grammar.ExprID{marker, b.AddRuleRef(sub)}),
	}))
	b.SetRoot(root)
	require.NoError(t, grammar.Normalize(b))
	require.NoError(t, grammar.Optimize(b, grammar.OptimizeOptions{BuildFSM: true}))
	g := b.Grammar()

	v := vocab.New([]string{"a", "ab"}, nil)
	masks, err := CompileRuleMasks(g, Options{Tokenizer: v, Workers: 1})
	require.NoError(t, err)

	subFSM := *g.RuleByID(sub).FSM
	key := StateKey{Rule: int32(sub), State: int32(subFSM.Start())}
	m, ok := masks[key]
	require.True(t, ok)

	// "a" completes sub exactly -> accepted. "ab" completes sub on its first
	// byte then has a leftover byte sub itself can't consume -> uncertain,
	// since sub is not the root rule.
	assert.Contains(t, m.Accepted, int32(0))
	assert.Contains(t, m.Uncertain, int32(1))
}
