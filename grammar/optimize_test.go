package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizeFusesConsecutiveByteStrings(t *testing.T) {
	b := NewBuilder()
	seq := b.AddSequence([]ExprID{
		b.AddByteString([]byte("ab")),
		b.AddByteString([]byte("cd")),
	})
	root := buildRawRule(b, "root", b.AddChoices([]ExprID{seq}))
	b.SetRoot(root)
	require.NoError(t, Normalize(b))

	require.NoError(t, Optimize(b, OptimizeOptions{}))

	g := b.Grammar()
	alts := g.ChoicesValue(g.Rules[root].Body)
	require.Len(t, alts, 1)
	elems := g.SequenceValue(alts[0])
	require.Len(t, elems, 1)
	assert.Equal(t, "abcd", string(g.ByteStringValue(elems[0])))
}

func TestOptimizeEliminatesDeadRulesAndRemapsRefs(t *testing.T) {
	b := NewBuilder()
	unreachable := buildRawRule(b, "unreachable", b.AddByteString([]byte("dead")))
	_ = unreachable

	target := buildRawRule(b, "target", b.AddByteString([]byte("live")))
	marker := b.AddByteString([]byte("m"))
	// Keep the RuleRef out of first position: inlineRules only inlines a
	// first-position reference, and this test wants to exercise dead-rule
	// elimination's RuleID remapping instead.
	seq := b.AddSequence([]ExprID{marker, b.AddRuleRef(target)})
	root := buildRawRule(b, "root", b.AddChoices([]ExprID{seq}))
	b.SetRoot(root)

	require.NoError(t, Normalize(b))
	require.NoError(t, Optimize(b, OptimizeOptions{}))

	g := b.Grammar()
	for _, r := range g.Rules {
		assert.NotEqual(t, "unreachable", r.Name)
	}

	alts := g.ChoicesValue(g.Rules[g.Root].Body)
	elems := g.SequenceValue(alts[0])
	require.Len(t, elems, 2)
	refTarget := g.RuleRefValue(elems[1])
	assert.Equal(t, "target", g.Rules[refTarget].Name)
}

func TestOptimizeEmptyRuleAnalysis(t *testing.T) {
	b := NewBuilder()
	emptyRule := buildRawRule(b, "maybe_empty", b.AddChoices([]ExprID{b.AddEmptyStr()}))
	root := buildRawRule(b, "root", b.AddChoices([]ExprID{
		b.AddSequence([]ExprID{b.AddRuleRef(emptyRule)}),
	}))
	b.SetRoot(root)

	require.NoError(t, Normalize(b))
	require.NoError(t, Optimize(b, OptimizeOptions{}))

	g := b.Grammar()
	assert.True(t, g.IsEmptyCapable(emptyRule))
	assert.True(t, g.IsEmptyCapable(root))
}

func TestOptimizeRepetitionNormalizationForcesMinZeroWhenEmptyCapable(t *testing.T) {
	b := NewBuilder()
	inner := buildRawRule(b, "inner", b.AddChoices([]ExprID{b.AddEmptyStr()}))
	repeat := b.AddRepeat(inner, 1, Unbounded)
	root := buildRawRule(b, "root", b.AddChoices([]ExprID{b.AddSequence([]ExprID{repeat})}))
	b.SetRoot(root)

	require.NoError(t, Normalize(b))
	require.NoError(t, Optimize(b, OptimizeOptions{}))

	g := b.Grammar()
	_, min, _ := g.RepeatValue(repeat)
	assert.Equal(t, 0, min)
	assert.True(t, g.Rules[inner].IsExactLookahead)
}

func TestOptimizeLookaheadDetectionFromUniqueNonLastOccurrence(t *testing.T) {
	b := NewBuilder()
	sub := buildRawRule(b, "sub", b.AddByteString([]byte("s")))
	head := b.AddByteString([]byte("head"))
	tail := b.AddByteString([]byte("tail"))
	root := buildRawRule(b, "root", b.AddChoices([]ExprID{
		// sub sits non-last and non-first, so the rule-inlining pass (which
		// only inlines a RuleRef in first position) leaves this reference
		// alone for the lookahead-analysis pass to find.
		b.AddSequence([]ExprID{head, b.AddRuleRef(sub), tail}),
	}))
	b.SetRoot(root)

	require.NoError(t, Normalize(b))
	require.NoError(t, Optimize(b, OptimizeOptions{}))

	g := b.Grammar()
	la := g.Rules[sub].LookaheadAssertion
	require.NotEqual(t, NoExprID, la)
	assert.True(t, g.Rules[sub].IsExactLookahead)
	elems := g.SequenceValue(la)
	require.Len(t, elems, 1)
	assert.Equal(t, "tail", string(g.ByteStringValue(elems[0])))
}
