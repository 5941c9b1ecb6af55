package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDeduplicatesLiterals(t *testing.T) {
	b := NewBuilder()

	a1 := b.AddByteString([]byte("hi"))
	a2 := b.AddByteString([]byte("hi"))
	assert.Equal(t, a1, a2)

	c1 := b.AddCharacterClass([]ByteRange{{Lo: 'a', Hi: 'z'}}, false)
	c2 := b.AddCharacterClass([]ByteRange{{Lo: 'a', Hi: 'z'}}, false)
	assert.Equal(t, c1, c2)

	// Negation is part of the identity.
	c3 := b.AddCharacterClass([]ByteRange{{Lo: 'a', Hi: 'z'}}, true)
	assert.NotEqual(t, c1, c3)

	e1 := b.AddEmptyStr()
	e2 := b.AddEmptyStr()
	assert.Equal(t, e1, e2)
}

func TestBuilderCompositeNodesNotDeduped(t *testing.T) {
	b := NewBuilder()
	lit := b.AddByteString([]byte("x"))
	s1 := b.AddSequence([]ExprID{lit})
	s2 := b.AddSequence([]ExprID{lit})
	assert.NotEqual(t, s1, s2)
}

func TestAddRuleWithHintDeterministicSuffix(t *testing.T) {
	b := NewBuilder()
	body := b.AddEmptyStr()

	r1 := b.AddRuleWithHint("tag", body)
	r2 := b.AddRuleWithHint("tag", body)
	r3 := b.AddRuleWithHint("tag", body)

	g := b.Grammar()
	assert.Equal(t, "tag", g.Rules[r1].Name)
	assert.Equal(t, "tag_1", g.Rules[r2].Name)
	assert.Equal(t, "tag_2", g.Rules[r3].Name)
}

func TestWrapBuilderSeedsDedupAndNameState(t *testing.T) {
	b := NewBuilder()
	lit := b.AddByteString([]byte("seed"))
	root := b.AddEmptyRule("root")
	b.UpdateRuleBody(root, b.AddChoices([]ExprID{b.AddSequence([]ExprID{lit})}))
	b.SetRoot(root)
	g := b.Grammar()

	wrapped := WrapBuilder(g)

	// The same literal added again through the wrapped builder must reuse
	// the original node, not create a duplicate.
	again := wrapped.AddByteString([]byte("seed"))
	assert.Equal(t, lit, again)

	// A rule named "root" already exists, so AddRuleWithHint must disambiguate.
	newRule := wrapped.AddRuleWithHint("root", wrapped.AddEmptyStr())
	require.NotEqual(t, "root", g.Rules[newRule].Name)
	assert.Equal(t, "root_1", g.Rules[newRule].Name)
}

func TestSetRootAndRuleAccessors(t *testing.T) {
	b := NewBuilder()
	seq := b.AddSequence([]ExprID{b.AddByteString([]byte("a"))})
	choices := b.AddChoices([]ExprID{seq})
	root := b.AddRuleWithHint("root", choices)
	b.SetRoot(root)

	g := b.Grammar()
	assert.Equal(t, root, g.Root)
	assert.Equal(t, KindChoices, g.Kind(g.Rules[root].Body))
}
