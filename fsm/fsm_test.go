package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func literalFSM(s string) *FSM {
	f := New()
	cur := f.Start
	for i := 0; i < len(s); i++ {
		next := f.AddState()
		f.AddEdge(cur, next, s[i], s[i])
		cur = next
	}
	f.SetAccept(cur, true)
	return f
}

// runCompact walks c from its start state consuming s, returning whether it
// ends in an accepting state. Assumes a DFA (at most one matching edge per
// byte at each state).
func runCompact(c *CompactFSM, s string) bool {
	state := c.Start()
	for i := 0; i < len(s); i++ {
		next := c.Step(state, s[i])
		if len(next) == 0 {
			return false
		}
		state = next[0]
	}
	return c.IsAccepting(state)
}

func TestCompactFSMAcceptsExactLiteral(t *testing.T) {
	f := literalFSM("ab")
	c := Compact(f)

	assert.True(t, runCompact(c, "ab"))
	assert.False(t, runCompact(c, "a"))
	assert.False(t, runCompact(c, "abc"))
	assert.False(t, runCompact(c, "ba"))
}

func TestUnionOfLiteralsAcceptsEither(t *testing.T) {
	a := literalFSM("a")
	b := literalFSM("b")

	u := Union([]*FSM{a, b})
	u = SimplifyEpsilon(u)
	u = MergeEquivalentSuccessors(u)
	dfa := ToDFA(u)
	min, ok := MinimizeDFA(dfa)
	require.True(t, ok)

	c := Compact(min)
	assert.True(t, runCompact(c, "a"))
	assert.True(t, runCompact(c, "b"))
	assert.False(t, runCompact(c, "c"))
	assert.False(t, runCompact(c, "ab"))
}

func TestConcatAcceptsSequenceOfParts(t *testing.T) {
	a := literalFSM("ab")
	b := literalFSM("cd")
	cat := Concat([]*FSM{a, b})
	cat = SimplifyEpsilon(cat)
	dfa := ToDFA(cat)

	c := Compact(dfa)
	assert.True(t, runCompact(c, "abcd"))
	assert.False(t, runCompact(c, "ab"))
	assert.False(t, runCompact(c, "cd"))
}

func TestIntersectRejectsRuleEdges(t *testing.T) {
	a := New()
	next := a.AddState()
	a.AddRuleEdge(a.Start, next, RuleID(1))
	a.SetAccept(next, true)

	b := literalFSM("x")

	_, ok := Intersect(a, b)
	assert.False(t, ok)
}

func TestIntersectComputesProduct(t *testing.T) {
	// a accepts any single byte in [a-z]; b accepts any single byte in [m-z].
	a := New()
	na := a.AddState()
	a.AddEdge(a.Start, na, 'a', 'z')
	a.SetAccept(na, true)

	b := New()
	nb := b.AddState()
	b.AddEdge(b.Start, nb, 'm', 'z')
	b.SetAccept(nb, true)

	inter, ok := Intersect(a, b)
	require.True(t, ok)
	c := Compact(inter)

	assert.True(t, runCompact(c, "m"))
	assert.True(t, runCompact(c, "z"))
	assert.False(t, runCompact(c, "a"))
}

func TestAddToCompleteFSMPreservesAcceptance(t *testing.T) {
	complete := New()
	complete.States = complete.States[:0]
	complete.Ends = make(map[int]bool)

	f := literalFSM("hi")
	newStart, newEnds, mapping := AddToCompleteFSM(complete, f)

	assert.Equal(t, mapping[f.Start], newStart)
	require.Len(t, newEnds, 1)
	for e := range newEnds {
		assert.True(t, complete.States[e].Accept)
	}
}

func TestAddUTF8RangeMatchesASCIIRange(t *testing.T) {
	f := New()
	next := f.AddState()
	AddUTF8Range(f, f.Start, next, 'a', 'z')
	f.SetAccept(next, true)
	dfa := ToDFA(SimplifyEpsilon(f))
	c := Compact(dfa)

	assert.True(t, runCompact(c, "m"))
	assert.False(t, runCompact(c, "A"))
}

func TestAddUTF8RangeMatchesMultiByteCodepoint(t *testing.T) {
	f := New()
	next := f.AddState()
	// U+00E9 (é) encodes as 0xC3 0xA9 in UTF-8.
	AddUTF8Range(f, f.Start, next, 0x00E9, 0x00E9)
	f.SetAccept(next, true)
	dfa := ToDFA(SimplifyEpsilon(f))
	c := Compact(dfa)

	assert.True(t, runCompact(c, "é"))
	assert.False(t, runCompact(c, "e"))
}

func TestAddNegatedASCIIThenUnicodeExcludesGivenRanges(t *testing.T) {
	f := New()
	next := f.AddState()
	AddNegatedASCIIThenUnicode(f, f.Start, next, []struct{ Lo, Hi byte }{{Lo: 'a', Hi: 'z'}})
	f.SetAccept(next, true)
	dfa := ToDFA(SimplifyEpsilon(f))
	c := Compact(dfa)

	assert.False(t, runCompact(c, "m"))
	assert.True(t, runCompact(c, "M"))
	assert.True(t, runCompact(c, "é"))
}

func TestHashRulesAgreesForIsomorphicFSMs(t *testing.T) {
	order := []RuleID{0, 1}
	set := ruleSet{0: literalFSM("ab"), 1: literalFSM("ab")}
	results := HashRules(order, set, map[RuleID][]RuleID{0: nil, 1: nil})

	require.True(t, results[0].Resolved)
	require.True(t, results[1].Resolved)
	assert.Equal(t, results[0].Hash, results[1].Hash)
}

func TestHashRulesDiffersForDifferentFSMs(t *testing.T) {
	order := []RuleID{0, 1}
	set := ruleSet{0: literalFSM("ab"), 1: literalFSM("ac")}
	results := HashRules(order, set, map[RuleID][]RuleID{0: nil, 1: nil})

	assert.NotEqual(t, results[0].Hash, results[1].Hash)
}

func TestHashRulesResolvesSelfReferenceViaSelfFlag(t *testing.T) {
	f := New()
	loop := f.AddState()
	f.AddEdge(f.Start, loop, 'a', 'a')
	f.AddRuleEdge(loop, f.Start, RuleID(0))
	f.SetAccept(loop, true)

	order := []RuleID{0}
	set := ruleSet{0: f}
	results := HashRules(order, set, map[RuleID][]RuleID{0: nil})
	assert.True(t, results[0].Resolved)
}

type ruleSet map[RuleID]*FSM

func (s ruleSet) FSM(r RuleID) *FSM { return s[r] }
