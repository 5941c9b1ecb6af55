// Package vocab implements the TokenizerInfo contract (spec.md §3): a frozen,
// per-vocabulary artifact the mask compiler (C8) and FSM hasher (C6) key
// their caches on.
package vocab

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

// Entry pairs a vocabulary index with its decoded byte string.
type Entry struct {
	TokenID int32
	Token   string
}

// Info is a frozen TokenizerInfo. Build one with New and do not mutate the
// slices passed in afterward; Info computes its derived views lazily and
// caches them behind sync.Once.
type Info struct {
	decoded []string // index = token id
	special map[int32]bool

	sortOnce sync.Once
	sorted   []Entry
	subtree  []int32

	hashOnce sync.Once
	hash     uint64
}

// New builds an Info over decoded (index = token id, already-decoded byte
// strings — tokens that decode identically must already be merged by the
// caller, per spec.md §3) and specialIDs (e.g. BOS/EOS/control tokens,
// excluded from mask bitsets per §4.7 step 6).
func New(decoded []string, specialIDs []int32) *Info {
	special := make(map[int32]bool, len(specialIDs))
	for _, id := range specialIDs {
		special[id] = true
	}
	return &Info{decoded: decoded, special: special}
}

// VocabSize returns the number of tokens.
func (v *Info) VocabSize() int { return len(v.decoded) }

// SpecialTokenIds reports whether id is a special (non-maskable) token.
func (v *Info) SpecialTokenIds() map[int32]bool { return v.special }

// SortedDecodedVocab returns the vocabulary ordered byte-lexicographically by
// decoded string.
func (v *Info) SortedDecodedVocab() []Entry {
	v.ensureSorted()
	return v.sorted
}

// TrieSubtreeNodesRange returns, for the i-th entry in SortedDecodedVocab,
// the index strictly greater than all j>=i whose token is prefixed by entry
// i's token — i.e. [i+1, range) is exactly i's prefix subtree in the sorted
// order, letting the mask sweep skip an entire rejected prefix in one step.
func (v *Info) TrieSubtreeNodesRange(i int) int32 {
	v.ensureSorted()
	return v.subtree[i]
}

func (v *Info) ensureSorted() {
	v.sortOnce.Do(func() {
		sorted := make([]Entry, len(v.decoded))
		for i, s := range v.decoded {
			sorted[i] = Entry{TokenID: int32(i), Token: s}
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Token < sorted[j].Token })
		v.sorted = sorted

		n := len(sorted)
		rng := make([]int32, n)
		for i := n - 1; i >= 0; i-- {
			rng[i] = int32(i + 1)
			for int(rng[i]) < n && strings.HasPrefix(sorted[rng[i]].Token, sorted[i].Token) {
				rng[i] = rng[rng[i]]
			}
		}
		v.subtree = rng
	})
}

// TokenizerHash returns a stable 64-bit fingerprint of the sorted vocabulary
// and special-token set, used as part of C9's cache key so two compiled
// grammars over the same tokenizer can share mask work.
func (v *Info) TokenizerHash() uint64 {
	v.hashOnce.Do(func() {
		v.ensureSorted()
		h := fnv.New64a()
		for _, e := range v.sorted {
			h.Write([]byte(e.Token))
			h.Write([]byte{0})
		}
		ids := make([]int32, 0, len(v.special))
		for id := range v.special {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			h.Write([]byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24)})
		}
		v.hash = h.Sum64()
	})
	return v.hash
}
