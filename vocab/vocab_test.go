package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoVocabSizeAndSpecial(t *testing.T) {
	v := New([]string{"a", "b", "c"}, []int32{1})
	assert.Equal(t, 3, v.VocabSize())
	assert.True(t, v.SpecialTokenIds()[1])
	assert.False(t, v.SpecialTokenIds()[0])
}

func TestSortedDecodedVocabIsByteLexOrdered(t *testing.T) {
	v := New([]string{"b", "a", "ab", "c"}, nil)
	sorted := v.SortedDecodedVocab()
	require.Len(t, sorted, 4)
	var tokens []string
	for _, e := range sorted {
		tokens = append(tokens, e.Token)
	}
	assert.Equal(t, []string{"a", "ab", "b", "c"}, tokens)
	// TokenID must track the original index, not the sorted position.
	assert.Equal(t, int32(1), sorted[0].TokenID) // "a"
	assert.Equal(t, int32(2), sorted[1].TokenID) // "ab"
}

func TestTrieSubtreeNodesRangeCoversPrefixSubtree(t *testing.T) {
	// sorted order: a, ab, abc, b
	v := New([]string{"abc", "b", "a", "ab"}, nil)
	sorted := v.SortedDecodedVocab()
	require.Equal(t, []string{"a", "ab", "abc", "b"}, tokensOf(sorted))

	// "a"'s subtree covers ab and abc too, up to (but excluding) "b".
	assert.EqualValues(t, 3, v.TrieSubtreeNodesRange(0))
	// "ab"'s subtree covers abc only.
	assert.EqualValues(t, 3, v.TrieSubtreeNodesRange(1))
	// "abc" has no further descendants.
	assert.EqualValues(t, 3, v.TrieSubtreeNodesRange(2))
	// "b" has no descendants either.
	assert.EqualValues(t, 4, v.TrieSubtreeNodesRange(3))
}

func TestTokenizerHashStableAndSensitiveToContent(t *testing.T) {
	a := New([]string{"x", "y"}, []int32{0})
	b := New([]string{"x", "y"}, []int32{0})
	c := New([]string{"x", "z"}, []int32{0})

	assert.Equal(t, a.TokenizerHash(), b.TokenizerHash())
	assert.NotEqual(t, a.TokenizerHash(), c.TokenizerHash())

	// Calling twice must not recompute a different value (sync.Once).
	assert.Equal(t, a.TokenizerHash(), a.TokenizerHash())
}

func TestEmptyVocabulary(t *testing.T) {
	v := New(nil, nil)
	assert.Equal(t, 0, v.VocabSize())
	assert.Empty(t, v.SortedDecodedVocab())
}

func tokensOf(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Token
	}
	return out
}
