package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAltOfLiterals(b *Builder, name string, lits ...string) RuleID {
	var alts []ExprID
	for _, l := range lits {
		alts = append(alts, b.AddSequence([]ExprID{b.AddByteString([]byte(l))}))
	}
	return buildRawRule(b, name, b.AddChoices(alts))
}

func TestBuildFSMsCompilesChoicesOfLiterals(t *testing.T) {
	b := NewBuilder()
	root := buildAltOfLiterals(b, "root", "a", "b")
	b.SetRoot(root)
	require.NoError(t, Normalize(b))
	require.NoError(t, Optimize(b, OptimizeOptions{BuildFSM: true}))

	g := b.Grammar()
	require.NotNil(t, g.Rules[root].FSM)
	require.NotNil(t, g.CompleteFSM)
}

func TestBuildFSMsLeavesRepeatRuleWithoutFSM(t *testing.T) {
	b := NewBuilder()
	inner := buildAltOfLiterals(b, "inner", "x")
	repeat := b.AddRepeat(inner, 0, Unbounded)
	root := buildRawRule(b, "root", b.AddChoices([]ExprID{b.AddSequence([]ExprID{repeat})}))
	b.SetRoot(root)
	require.NoError(t, Normalize(b))
	require.NoError(t, Optimize(b, OptimizeOptions{BuildFSM: true}))

	g := b.Grammar()
	assert.Nil(t, g.Rules[root].FSM)
	// inner itself is a plain Choices of literals, so it still gets one.
	assert.NotNil(t, g.Rules[inner].FSM)
}

func TestBuildFSMsLowersTagDispatch(t *testing.T) {
	b := NewBuilder()
	dispatchTarget := buildAltOfLiterals(b, "dispatch_target", "y")
	td := b.AddTagDispatch(TagDispatch{
		Tags:    []TagRule{{Tag: "<tag>", RuleID: dispatchTarget}},
		StopEOS: true,
	})
	root := buildRawRule(b, "root", td)
	b.SetRoot(root)
	require.NoError(t, Normalize(b))
	require.NoError(t, Optimize(b, OptimizeOptions{BuildFSM: true}))

	g := b.Grammar()
	require.NotNil(t, g.Rules[root].FSM)
}

func TestHashFSMsAgreesForStructurallyIdenticalRules(t *testing.T) {
	b := NewBuilder()
	r1 := buildAltOfLiterals(b, "r1", "a", "b")
	r2 := buildAltOfLiterals(b, "r2", "a", "b")
	// A leading literal keeps each RuleRef out of first position, so
	// inlineRules leaves r1 and r2 as rules of their own for HashFSMs.
	x := b.AddByteString([]byte("x"))
	root := buildRawRule(b, "root", b.AddChoices([]ExprID{
		b.AddSequence([]ExprID{x, b.AddRuleRef(r1)}),
		b.AddSequence([]ExprID{x, b.AddRuleRef(r2)}),
	}))
	b.SetRoot(root)
	require.NoError(t, Normalize(b))
	require.NoError(t, Optimize(b, OptimizeOptions{BuildFSM: true, EnableCaching: true}))

	g := b.Grammar()
	require.True(t, g.Rules[r1].HasFSMHash)
	require.True(t, g.Rules[r2].HasFSMHash)
	assert.Equal(t, g.Rules[r1].FSMHash, g.Rules[r2].FSMHash)
}

func TestHashFSMsDiffersForStructurallyDifferentRules(t *testing.T) {
	b := NewBuilder()
	r1 := buildAltOfLiterals(b, "r1", "a", "b")
	r2 := buildAltOfLiterals(b, "r2", "a", "c")
	// See TestHashFSMsAgreesForStructurallyIdenticalRules for the leading literal.
	x := b.AddByteString([]byte("x"))
	root := buildRawRule(b, "root", b.AddChoices([]ExprID{
		b.AddSequence([]ExprID{x, b.AddRuleRef(r1)}),
		b.AddSequence([]ExprID{x, b.AddRuleRef(r2)}),
	}))
	b.SetRoot(root)
	require.NoError(t, Normalize(b))
	require.NoError(t, Optimize(b, OptimizeOptions{BuildFSM: true, EnableCaching: true}))

	g := b.Grammar()
	require.True(t, g.Rules[r1].HasFSMHash)
	require.True(t, g.Rules[r2].HasFSMHash)
	assert.NotEqual(t, g.Rules[r1].FSMHash, g.Rules[r2].FSMHash)
}

func TestBuildExprFSMOnSingleElement(t *testing.T) {
	b := NewBuilder()
	lit := b.AddByteString([]byte("z"))
	root := buildRawRule(b, "root", b.AddChoices([]ExprID{b.AddSequence([]ExprID{lit})}))
	b.SetRoot(root)
	require.NoError(t, Normalize(b))

	g := b.Grammar()
	f, ok := BuildExprFSM(g, lit)
	require.True(t, ok)
	require.NotNil(t, f)
}
