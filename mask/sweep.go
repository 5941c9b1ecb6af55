package mask

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"sort"

	"github.com/jmorganca/xgrammar/fsm"
	"github.com/jmorganca/xgrammar/grammar"
	"github.com/jmorganca/xgrammar/vocab"
	"github.com/jmorganca/xgrammar/xgcache"
)

// computeStateMask runs the per-state algorithm of spec.md §4.7 steps 1-7
// for one scannable FSM state (step 4's speculative shortcuts are omitted —
// they are pure performance optimizations over the same sweep below, not a
// change in the resulting mask).
func computeStateMask(
	g *grammar.Grammar,
	cfsm *fsm.CompactFSM,
	rule grammar.RuleID,
	state int,
	isRoot bool,
	sortedVocab []vocab.Entry,
	vidx *vocabIndex,
	laFSMs map[grammar.RuleID]*fsm.FSM,
	opts Options,
) xgcache.Mask {
	r := g.RuleByID(rule)
	hasLookahead := r.LookaheadAssertion != grammar.NoExprID
	laFSM := laFSMs[rule]

	cacheOK := opts.CacheEnabled && opts.Crossing != nil && r.HasFSMHash
	var tokHash uint64
	if cacheOK {
		tokHash = opts.Tokenizer.TokenizerHash()
		if hasLookahead {
			refined := combineLookaheadHash(r.FSMHash, lookaheadStructHash(g, rule), r.IsExactLookahead)
			if m, ok := opts.Crossing.Get(xgcache.CrossingKey{FSMHash: refined, NodeID: int32(state), TokenizerHash: tokHash}); ok {
				return m
			}
		}
		if m, ok := opts.Crossing.Get(xgcache.CrossingKey{FSMHash: r.FSMHash, NodeID: int32(state), TokenizerHash: tokHash}); ok {
			if hasLookahead {
				return adaptWithLookahead(g, rule, state, isRoot, m, laFSM, opts)
			}
			return m
		}
	}

	var firstChar [256]bool
	hasRuleEdge := false
	for _, e := range cfsm.StateEdges(state) {
		switch e.Kind {
		case fsm.EdgeByteRange:
			for b := int(e.Min); b <= int(e.Max); b++ {
				firstChar[b] = true
			}
		case fsm.EdgeRule:
			hasRuleEdge = true
		}
	}
	if hasRuleEdge {
		// A rule-ref edge's first legal byte is whatever the referenced
		// rule's own first-character set is, which can recurse arbitrarily;
		// approximate by not prefiltering on first byte at all when one is
		// present. The per-token parser sweep below still gives an exact
		// verdict — this mask is only a prefilter.
		for b := range firstChar {
			firstChar[b] = true
		}
	}

	sweep := newSweepResult()
	special := opts.Tokenizer.SpecialTokenIds()

	classify := func(id int32, tokenBytes []byte) {
		if special[id] {
			return
		}
		matched, lastCompletedAt := runTrial(g, rule, state, tokenBytes)
		switch {
		case matched == len(tokenBytes):
			sweep.accepted[id] = true
		case lastCompletedAt >= 0 && matched > 0:
			accepted, completed := true, true
			if hasLookahead && laFSM != nil {
				accepted, completed = lookaheadCheck(laFSM, tokenBytes, lastCompletedAt)
			}
			switch {
			case accepted && (completed || !r.IsExactLookahead):
				if isRoot {
					sweep.rejected[id] = true
				} else {
					sweep.uncertain[id] = true
				}
			case accepted && !completed && r.IsExactLookahead:
				sweep.accepted[id] = true
				sweep.acceptedByLookahead[id] = true
			default:
				sweep.rejected[id] = true
				sweep.rejectedByLookahead[id] = true
			}
		default:
			sweep.rejected[id] = true
		}
	}

	for b := 0; b < 256; b++ {
		if !firstChar[b] {
			continue
		}
		rng := vidx.groups[byte(b)]
		for i := rng.from; i < rng.to; i++ {
			e := sortedVocab[i]
			classify(e.TokenID, []byte(e.Token))
		}
	}
	for _, i := range vidx.emptyIdx {
		e := sortedVocab[i]
		classify(e.TokenID, []byte(e.Token))
	}

	m := buildMask(sweep, opts.Tokenizer, opts.threshold())

	if cacheOK {
		if !hasLookahead && !isRoot {
			opts.Crossing.Add(xgcache.CrossingKey{FSMHash: r.FSMHash, NodeID: int32(state), TokenizerHash: tokHash}, m)
		} else {
			basic := demoteLookaheadSensitive(sweep)
			basicMask := buildMask(basic, opts.Tokenizer, opts.threshold())
			opts.Crossing.Add(xgcache.CrossingKey{FSMHash: r.FSMHash, NodeID: int32(state), TokenizerHash: tokHash}, basicMask)
			refined := combineLookaheadHash(r.FSMHash, lookaheadStructHash(g, rule), r.IsExactLookahead)
			opts.Crossing.Add(xgcache.CrossingKey{FSMHash: refined, NodeID: int32(state), TokenizerHash: tokHash}, m)
		}
	}
	return m
}

type sweepResult struct {
	accepted            map[int32]bool
	rejected            map[int32]bool
	uncertain           map[int32]bool
	acceptedByLookahead map[int32]bool
	rejectedByLookahead map[int32]bool
}

func newSweepResult() *sweepResult {
	return &sweepResult{
		accepted:            map[int32]bool{},
		rejected:            map[int32]bool{},
		uncertain:           map[int32]bool{},
		acceptedByLookahead: map[int32]bool{},
		rejectedByLookahead: map[int32]bool{},
	}
}

// demoteLookaheadSensitive produces the "basic" mask cached under the plain
// fsm_hash key: every token whose classification depended on the lookahead
// assertion is demoted to uncertain, per spec.md §4.7 step 7.
func demoteLookaheadSensitive(s *sweepResult) *sweepResult {
	out := newSweepResult()
	for id := range s.accepted {
		if !s.acceptedByLookahead[id] {
			out.accepted[id] = true
		}
	}
	for id := range s.rejected {
		if !s.rejectedByLookahead[id] {
			out.rejected[id] = true
		}
	}
	for id := range s.uncertain {
		out.uncertain[id] = true
	}
	for id := range s.acceptedByLookahead {
		out.uncertain[id] = true
	}
	for id := range s.rejectedByLookahead {
		out.uncertain[id] = true
	}
	return out
}

func buildMask(s *sweepResult, tok *vocab.Info, threshold int) xgcache.Mask {
	accepted := sortedKeys(s.accepted)
	rejected := sortedKeys(s.rejected)
	uncertain := sortedKeys(s.uncertain)
	return layoutMask(accepted, rejected, uncertain, tok, threshold)
}

func layoutMask(accepted, rejected, uncertain []int32, tok *vocab.Info, threshold int) xgcache.Mask {
	m := xgcache.Mask{Uncertain: uncertain}
	switch {
	case len(accepted) <= threshold:
		m.Layout = xgcache.LayoutAccepted
		m.Accepted = accepted
	case len(rejected) <= threshold:
		m.Layout = xgcache.LayoutRejected
		m.Rejected = rejected
	default:
		m.Layout = xgcache.LayoutAcceptedBitset
		words := (tok.VocabSize() + 63) / 64
		bitset := make([]uint64, words)
		for _, id := range accepted {
			bitset[id/64] |= 1 << uint(id%64)
		}
		m.Bitset = bitset
	}
	return m
}

func sortedKeys(m map[int32]bool) []int32 {
	out := make([]int32, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// adaptWithLookahead re-walks a cached basic mask's uncertain set under
// rule's lookahead assertion, splitting each into accepted/rejected/
// uncertain and re-deciding the layout (spec.md §4.7's "Adapt with
// lookahead").
func adaptWithLookahead(g *grammar.Grammar, rule grammar.RuleID, state int, isRoot bool, basic xgcache.Mask, laFSM *fsm.FSM, opts Options) xgcache.Mask {
	if laFSM == nil || len(basic.Uncertain) == 0 {
		return basic
	}
	r := g.RuleByID(rule)
	accepted := map[int32]bool{}
	for _, id := range basic.Accepted {
		accepted[id] = true
	}
	rejected := map[int32]bool{}
	for _, id := range basic.Rejected {
		rejected[id] = true
	}
	uncertain := map[int32]bool{}

	byID := make(map[int32]string, opts.Tokenizer.VocabSize())
	for _, e := range opts.Tokenizer.SortedDecodedVocab() {
		byID[e.TokenID] = e.Token
	}

	for _, id := range basic.Uncertain {
		tokenBytes := []byte(byID[id])
		matched, lastCompletedAt := runTrial(g, rule, state, tokenBytes)
		switch {
		case matched == len(tokenBytes):
			accepted[id] = true
		case lastCompletedAt >= 0 && matched > 0:
			acc, completed := lookaheadCheck(laFSM, tokenBytes, lastCompletedAt)
			switch {
			case acc && (completed || !r.IsExactLookahead):
				if isRoot {
					rejected[id] = true
				} else {
					uncertain[id] = true
				}
			case acc && !completed && r.IsExactLookahead:
				accepted[id] = true
			default:
				rejected[id] = true
			}
		default:
			rejected[id] = true
		}
	}

	return layoutMask(sortedKeys(accepted), sortedKeys(rejected), sortedKeys(uncertain), opts.Tokenizer, opts.threshold())
}

func combineLookaheadHash(fsmHash, laHash uint64, exact bool) uint64 {
	h := fnv.New64a()
	var buf [17]byte
	binary.LittleEndian.PutUint64(buf[0:8], fsmHash)
	binary.LittleEndian.PutUint64(buf[8:16], laHash)
	if exact {
		buf[16] = 1
	}
	h.Write(buf[:])
	return h.Sum64()
}

// lookaheadStructHash fingerprints the shape of rule's lookahead assertion
// expression, so the same assertion structure always combines to the same
// refined cache key.
func lookaheadStructHash(g *grammar.Grammar, rule grammar.RuleID) uint64 {
	r := g.RuleByID(rule)
	h := fnv.New64a()
	hashExpr(g, r.LookaheadAssertion, h)
	var flag byte
	if r.IsExactLookahead {
		flag = 1
	}
	h.Write([]byte{flag})
	return h.Sum64()
}

func hashExpr(g *grammar.Grammar, id grammar.ExprID, h hash.Hash64) {
	if id == grammar.NoExprID {
		h.Write([]byte{0})
		return
	}
	switch g.Kind(id) {
	case grammar.KindEmptyStr:
		h.Write([]byte{1})
	case grammar.KindByteString:
		h.Write([]byte{2})
		h.Write(g.ByteStringValue(id))
	case grammar.KindCharacterClass, grammar.KindCharacterClassStar:
		h.Write([]byte{3})
		ranges, negated := g.CharacterClassValue(id)
		if negated {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		for _, r := range ranges {
			writeInt32(h, r.Lo)
			writeInt32(h, r.Hi)
		}
	case grammar.KindRuleRef:
		h.Write([]byte{4})
		writeInt32(h, int32(g.RuleRefValue(id)))
	case grammar.KindRepeat:
		h.Write([]byte{5})
		target, min, max := g.RepeatValue(id)
		writeInt32(h, int32(target))
		writeInt32(h, int32(min))
		writeInt32(h, int32(max))
	case grammar.KindSequence:
		h.Write([]byte{6})
		for _, e := range g.SequenceValue(id) {
			hashExpr(g, e, h)
		}
	case grammar.KindChoices:
		h.Write([]byte{7})
		for _, e := range g.ChoicesValue(id) {
			hashExpr(g, e, h)
		}
	case grammar.KindTagDispatch:
		h.Write([]byte{8})
		td := g.TagDispatchValue(id)
		for _, t := range td.Tags {
			h.Write([]byte(t.Tag))
			writeInt32(h, int32(t.RuleID))
		}
	}
}

func writeInt32(h hash.Hash64, v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	h.Write(b[:])
}
