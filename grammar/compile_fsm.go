package grammar

import (
	"sort"

	"github.com/jmorganca/xgrammar/fsm"
)

// ruleFSMHandle is the narrow CompiledFSM view exposed on Rule.FSM: just the
// rule's start/accepting states in the complete FSM's numbering. Edge
// traversal goes through Grammar.CompleteFSM, which owns the shared state
// pool.
type ruleFSMHandle struct {
	start int
	ends  []int
}

func (h ruleFSMHandle) Start() int   { return h.start }
func (h ruleFSMHandle) Ends() []int  { return h.ends }

// BuildFSMs implements C5: build a per-rule automaton for every rule whose
// body lowers cleanly (TagDispatch or a Choices of Sequences over
// ByteString/CharacterClass(Star)/RuleRef elements), then copy every built
// automaton into one shared complete FSM and compact it (spec.md §4.5).
// Rules that don't lower are left with a nil FSM; the parser driver (C7)
// walks those element-by-element at runtime instead.
func BuildFSMs(g *Grammar) error {
	g.fsmsByRule = make(map[RuleID]*fsm.FSM)

	for i := range g.Rules {
		rid := RuleID(i)
		built, ok := buildRuleFSM(g, rid)
		if !ok || built == nil {
			continue
		}
		g.fsmsByRule[rid] = built
	}

	complete := fsm.New()
	complete.States = complete.States[:0]
	complete.Ends = make(map[int]bool)

	// Deterministic iteration order so the complete FSM's numbering (and
	// therefore any fingerprint over it) doesn't depend on map order.
	var ids []RuleID
	for rid := range g.fsmsByRule {
		ids = append(ids, rid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, rid := range ids {
		newStart, newEnds, _ := fsm.AddToCompleteFSM(complete, g.fsmsByRule[rid])
		var ends []int
		for e := range newEnds {
			ends = append(ends, e)
		}
		sort.Ints(ends)
		var cf CompiledFSM = ruleFSMHandle{start: newStart, ends: ends}
		g.Rules[rid].FSM = &cf
	}

	g.CompleteFSM = fsm.Compact(complete)
	return nil
}

func buildRuleFSM(g *Grammar, rid RuleID) (*fsm.FSM, bool) {
	rule := &g.Rules[rid]
	switch g.Kind(rule.Body) {
	case KindTagDispatch:
		return buildTagDispatchFSM(g.TagDispatchValue(rule.Body)), true
	case KindChoices:
		return buildChoicesFSM(g, rule.Body)
	default:
		return nil, false
	}
}

func buildChoicesFSM(g *Grammar, choicesID ExprID) (*fsm.FSM, bool) {
	alts := g.ChoicesValue(choicesID)
	if len(alts) == 0 {
		return nil, false
	}
	var parts []*fsm.FSM
	for _, altID := range alts {
		switch g.Kind(altID) {
		case KindEmptyStr:
			p := fsm.New()
			p.SetAccept(p.Start, true)
			parts = append(parts, p)
		case KindSequence:
			seqFSM, ok := buildSequenceFSM(g, altID)
			if !ok {
				return nil, false
			}
			parts = append(parts, seqFSM)
		default:
			return nil, false
		}
	}

	u := fsm.Union(parts)
	u = fsm.SimplifyEpsilon(u)
	u = fsm.MergeEquivalentSuccessors(u)
	dfa := fsm.ToDFA(u)
	if minimized, ok := fsm.MinimizeDFA(dfa); ok {
		return minimized, true
	}
	return dfa, true
}

func buildSequenceFSM(g *Grammar, seqID ExprID) (*fsm.FSM, bool) {
	elems := g.SequenceValue(seqID)
	f := fsm.New()
	if len(elems) == 0 {
		f.SetAccept(f.Start, true)
		return f, true
	}

	cur := f.Start
	for _, e := range elems {
		switch g.Kind(e) {
		case KindByteString:
			for _, b := range g.ByteStringValue(e) {
				next := f.AddState()
				f.AddEdge(cur, next, b, b)
				cur = next
			}
		case KindCharacterClass:
			ranges, negated := g.CharacterClassValue(e)
			next := f.AddState()
			addCharacterClassEdges(f, cur, next, ranges, negated)
			cur = next
		case KindCharacterClassStar:
			ranges, negated := g.CharacterClassValue(e)
			addCharacterClassEdges(f, cur, cur, ranges, negated)
		case KindRuleRef:
			next := f.AddState()
			f.AddRuleEdge(cur, next, fsm.RuleID(g.RuleRefValue(e)))
			cur = next
		default:
			return nil, false
		}
	}
	f.SetAccept(cur, true)
	return f, true
}

// BuildSingleElementFSM builds a standalone one-shot automaton matching
// exactly one Sequence element (ByteString, CharacterClass(Star), or
// RuleRef), for use by the parser driver (C7) when walking a rule that has
// no whole-rule FSM (e.g. one containing a Repeat, which §4.5's lowering
// list intentionally excludes) element-by-element.
func BuildSingleElementFSM(g *Grammar, elemID ExprID) (*fsm.FSM, bool) {
	f := fsm.New()
	switch g.Kind(elemID) {
	case KindByteString:
		cur := f.Start
		for _, b := range g.ByteStringValue(elemID) {
			next := f.AddState()
			f.AddEdge(cur, next, b, b)
			cur = next
		}
		f.SetAccept(cur, true)
		return f, true
	case KindCharacterClass:
		ranges, negated := g.CharacterClassValue(elemID)
		next := f.AddState()
		addCharacterClassEdges(f, f.Start, next, ranges, negated)
		f.SetAccept(next, true)
		return f, true
	case KindCharacterClassStar:
		ranges, negated := g.CharacterClassValue(elemID)
		addCharacterClassEdges(f, f.Start, f.Start, ranges, negated)
		f.SetAccept(f.Start, true)
		return f, true
	case KindRuleRef:
		next := f.AddState()
		f.AddRuleEdge(f.Start, next, fsm.RuleID(g.RuleRefValue(elemID)))
		f.SetAccept(next, true)
		return f, true
	default:
		return nil, false
	}
}

// BuildExprFSM builds a standalone automaton for an arbitrary expression
// node — a Choices, a Sequence, or a single element — reusing the same
// lowering as BuildFSMs. The mask compiler (C8) uses this to turn a rule's
// lookahead assertion into a byte-level matcher without needing a RuleID for
// it.
func BuildExprFSM(g *Grammar, id ExprID) (*fsm.FSM, bool) {
	switch g.Kind(id) {
	case KindChoices:
		return buildChoicesFSM(g, id)
	case KindSequence:
		return buildSequenceFSM(g, id)
	default:
		return BuildSingleElementFSM(g, id)
	}
}

func addCharacterClassEdges(f *fsm.FSM, from, to int, ranges []ByteRange, negated bool) {
	if negated {
		conv := make([]struct{ Lo, Hi byte }, len(ranges))
		for i, r := range ranges {
			conv[i] = struct{ Lo, Hi byte }{byte(r.Lo), byte(r.Hi)}
		}
		fsm.AddNegatedASCIIThenUnicode(f, from, to, conv)
		return
	}
	for _, r := range ranges {
		fsm.AddUTF8Range(f, from, to, rune(r.Lo), rune(r.Hi))
	}
}

// buildTagDispatchFSM implements spec.md §4.5's TagDispatch lowering: an
// Aho-Corasick-style trie over the tag (and stop/exclude) strings, with
// trie-end states for a tag taking a rule-ref edge to the dispatched rule —
// back to the trie root if LoopAfterDispatch, else to a fresh accept state.
func buildTagDispatchFSM(td *TagDispatch) *fsm.FSM {
	f := fsm.New()
	root := f.Start
	children := map[int]map[byte]int{root: {}}

	insert := func(s string) int {
		cur := root
		for i := 0; i < len(s); i++ {
			b := s[i]
			next, ok := children[cur][b]
			if !ok {
				next = f.AddState()
				children[next] = map[byte]int{}
				f.AddEdge(cur, next, b, b)
				children[cur][b] = next
			}
			cur = next
		}
		return cur
	}

	tagEnds := make(map[int]RuleID, len(td.Tags))
	for _, t := range td.Tags {
		tagEnds[insert(t.Tag)] = t.RuleID
	}
	stopEnds := make(map[int]bool, len(td.StopStrs))
	for _, s := range td.StopStrs {
		stopEnds[insert(s)] = true
	}
	for _, s := range td.ExcludeStrs {
		insert(s)
	}

	for end, rid := range tagEnds {
		target := root
		if !td.LoopAfterDispatch {
			target = f.AddState()
			f.SetAccept(target, true)
		}
		f.AddRuleEdge(end, target, fsm.RuleID(rid))
	}

	if td.StopEOS {
		for id := range f.States {
			if _, isTagEnd := tagEnds[id]; isTagEnd {
				continue
			}
			f.SetAccept(id, true)
		}
	} else {
		for end := range stopEnds {
			f.SetAccept(end, true)
		}
	}
	return f
}

// HashFSMs implements C6: compute a canonical fingerprint for every rule that
// has a standalone automaton, using the dependency-ordered/simple-cycle
// algorithm in the fsm package, and records each rule's BFS renumbering for
// C9's lookups.
func HashFSMs(g *Grammar) {
	if len(g.fsmsByRule) == 0 {
		return
	}

	order := make([]fsm.RuleID, len(g.Rules))
	for i := range g.Rules {
		order[i] = fsm.RuleID(i)
	}

	refs := make(map[fsm.RuleID][]fsm.RuleID, len(g.fsmsByRule))
	for rid, f := range g.fsmsByRule {
		seen := map[fsm.RuleID]bool{}
		var deps []fsm.RuleID
		for _, s := range f.States {
			for _, e := range s.Edges {
				if e.Kind != fsm.EdgeRule {
					continue
				}
				if !seen[e.Rule] {
					seen[e.Rule] = true
					deps = append(deps, e.Rule)
				}
			}
		}
		refs[fsm.RuleID(rid)] = deps
	}

	results := fsm.HashRules(order, ruleFSMSet(g.fsmsByRule), refs)
	for rid, res := range results {
		r := RuleID(rid)
		if !res.Resolved {
			continue
		}
		g.Rules[r].FSMHash = res.Hash
		g.Rules[r].HasFSMHash = true
		g.Rules[r].Renumbering = res.Renumbering
	}
}

type ruleFSMSet map[RuleID]*fsm.FSM

func (s ruleFSMSet) FSM(r fsm.RuleID) *fsm.FSM { return s[RuleID(r)] }
