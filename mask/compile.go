package mask

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jmorganca/xgrammar/earley"
	"github.com/jmorganca/xgrammar/fsm"
	"github.com/jmorganca/xgrammar/grammar"
	"github.com/jmorganca/xgrammar/types/syncmap"
	"github.com/jmorganca/xgrammar/vocab"
	"github.com/jmorganca/xgrammar/xgcache"
)

type job struct {
	rule  grammar.RuleID
	state int
}

// CompileRuleMasks computes an AdaptiveTokenMask for every scannable,
// FSM-backed state of g (spec.md §4.7). If opts.Workers > 1, states are
// compiled concurrently through an errgroup-backed pool; results accumulate
// in a SyncMap so worker goroutines never contend on anything but the map
// itself, matching §5's concurrency model.
func CompileRuleMasks(g *grammar.Grammar, opts Options) (map[StateKey]xgcache.Mask, error) {
	if opts.Tokenizer == nil || opts.Tokenizer.VocabSize() == 0 {
		return map[StateKey]xgcache.Mask{}, nil
	}
	cfsm, ok := g.CompleteFSM.(*fsm.CompactFSM)
	if !ok || cfsm == nil {
		return map[StateKey]xgcache.Mask{}, nil
	}

	laFSMs := buildLookaheadFSMs(g)
	sortedVocab := opts.Tokenizer.SortedDecodedVocab()
	vidx := buildVocabIndex(sortedVocab)

	var jobs []job
	for i := range g.Rules {
		rid := grammar.RuleID(i)
		r := g.RuleByID(rid)
		if r.FSM == nil {
			continue
		}
		start := (*r.FSM).Start()
		for _, s := range reachableStates(cfsm, start) {
			if !cfsm.IsScannable(s) {
				continue
			}
			jobs = append(jobs, job{rule: rid, state: s})
		}
	}

	result := syncmap.NewSyncMap[StateKey, xgcache.Mask]()
	compute := func(j job) error {
		m := computeStateMask(g, cfsm, j.rule, j.state, j.rule == g.Root, sortedVocab, vidx, laFSMs, opts)
		result.Store(StateKey{Rule: int32(j.rule), State: int32(j.state)}, m)
		return nil
	}

	if opts.Workers <= 1 {
		for _, j := range jobs {
			if err := compute(j); err != nil {
				return nil, err
			}
		}
		return result.Items(), nil
	}

	eg, _ := errgroup.WithContext(context.Background())
	eg.SetLimit(opts.Workers)
	for _, j := range jobs {
		j := j
		eg.Go(func() error { return compute(j) })
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return result.Items(), nil
}

func reachableStates(cfsm *fsm.CompactFSM, start int) []int {
	seen := map[int]bool{start: true}
	queue := []int{start}
	order := []int{start}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, e := range cfsm.StateEdges(s) {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
				order = append(order, e.To)
			}
		}
	}
	return order
}

// vocabIndex groups the sorted vocabulary by first byte, exploiting the fact
// that a byte-lexicographic sort already places every first-byte group in a
// contiguous run — spec.md §4.7 step 3's "binary search on the sorted vocab"
// reduces to one scan per first byte.
type vocabIndex struct {
	groups   [256]struct{ from, to int32 }
	emptyIdx []int32 // tokens that decode to the empty string, swept unconditionally
}

func buildVocabIndex(sorted []vocab.Entry) *vocabIndex {
	idx := &vocabIndex{}
	n := len(sorted)
	i := 0
	for i < n {
		if len(sorted[i].Token) == 0 {
			idx.emptyIdx = append(idx.emptyIdx, int32(i))
			i++
			continue
		}
		b := sorted[i].Token[0]
		j := i
		for j < n && len(sorted[j].Token) > 0 && sorted[j].Token[0] == b {
			j++
		}
		idx.groups[b] = struct{ from, to int32 }{int32(i), int32(j)}
		i = j
	}
	return idx
}

func buildLookaheadFSMs(g *grammar.Grammar) map[grammar.RuleID]*fsm.FSM {
	out := make(map[grammar.RuleID]*fsm.FSM)
	for i := range g.Rules {
		rid := grammar.RuleID(i)
		r := g.RuleByID(rid)
		if r.LookaheadAssertion == grammar.NoExprID {
			continue
		}
		if f, ok := grammar.BuildExprFSM(g, r.LookaheadAssertion); ok {
			out[rid] = f
		}
	}
	return out
}

// runTrial drives a fresh parser from (rule, state) through tokenBytes,
// returning how many bytes matched and the longest matched prefix length at
// which the rule was in a completed position (-1 if never).
func runTrial(g *grammar.Grammar, rule grammar.RuleID, state int, tokenBytes []byte) (matched, lastCompletedAt int) {
	d := earley.NewFSMState(g, rule, state)
	lastCompletedAt = -1
	if d.IsCompleted() {
		lastCompletedAt = 0
	}
	for i, b := range tokenBytes {
		if !d.Advance(b) {
			return matched, lastCompletedAt
		}
		matched = i + 1
		if d.IsCompleted() {
			lastCompletedAt = matched
		}
	}
	return matched, lastCompletedAt
}

func lookaheadCheck(f *fsm.FSM, tokenBytes []byte, from int) (accepted, completed bool) {
	state := f.Start
	for i := from; i < len(tokenBytes); i++ {
		b := tokenBytes[i]
		next := -1
		for _, e := range f.States[state].Edges {
			if e.Kind == fsm.EdgeByteRange && b >= e.Min && b <= e.Max {
				next = e.To
				break
			}
		}
		if next == -1 {
			return false, false
		}
		state = next
	}
	return true, f.States[state].Accept
}
