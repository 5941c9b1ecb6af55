package grammar

import (
	"log/slog"
	"sort"
)

// OptimizeOptions controls which of C4's passes (beyond the always-run
// structural ones) execute.
type OptimizeOptions struct {
	// BuildFSM runs C5 (per-rule FSM construction) as the final pass.
	BuildFSM bool
	// EnableCaching additionally runs C6 (FSM hashing) after BuildFSM, per
	// spec.md §4.4 step 7 ("If caching is enabled, run §4.6 afterwards").
	EnableCaching bool
}

// Optimize runs the ordered C4 passes over b's grammar: byte-string fusion,
// rule inlining, dead-code elimination, lookahead-assertion analysis, empty-
// rule analysis, repetition normalization, and (optionally) FSM build/hash.
func Optimize(b *Builder, opts OptimizeOptions) error {
	g := b.g

	fuseByteStrings(b)
	inlineRules(b)
	eliminateDeadRules(b)
	analyzeLookahead(b)
	analyzeEmptyRules(b)
	normalizeRepetition(b)

	if opts.BuildFSM {
		if err := BuildFSMs(g); err != nil {
			return err
		}
		if opts.EnableCaching {
			HashFSMs(g)
		}
	}
	return nil
}

// --- Pass 1: ByteString fusion ---------------------------------------------

// fuseByteStrings merges consecutive ByteString elements within every
// Sequence into one, in place, across the whole arena.
func fuseByteStrings(b *Builder) {
	g := b.g
	for id := range g.exprs {
		e := &g.exprs[id]
		if e.kind != KindSequence {
			continue
		}
		e.ids = fuseSequence(g, e.ids)
	}
}

func fuseSequence(g *Grammar, ids []ExprID) []ExprID {
	if len(ids) < 2 {
		return ids
	}
	out := make([]ExprID, 0, len(ids))
	i := 0
	for i < len(ids) {
		if g.Kind(ids[i]) == KindByteString {
			merged := append([]byte(nil), g.ByteStringValue(ids[i])...)
			j := i + 1
			for j < len(ids) && g.Kind(ids[j]) == KindByteString {
				merged = append(merged, g.ByteStringValue(ids[j])...)
				j++
			}
			if j > i+1 {
				newID := ExprID(len(g.exprs))
				g.exprs = append(g.exprs, expr{kind: KindByteString, bytes: merged})
				out = append(out, newID)
			} else {
				out = append(out, ids[i])
			}
			i = j
			continue
		}
		out = append(out, ids[i])
		i++
	}
	return out
}

// --- Pass 2: Rule inlining ---------------------------------------------------

// inlineRules inlines a RuleRef appearing as the first element of a sequence
// when the referenced rule is a Choices of non-empty Sequences with no
// RuleRef elements (spec.md §4.4 step 2): `Ref(r) . rest` becomes
// `|_{choice in r} choice . rest`.
func inlineRules(b *Builder) {
	g := b.g
	for id := range g.exprs {
		e := &g.exprs[id]
		if e.kind != KindChoices {
			continue
		}
		changed := false
		var newAlts []ExprID
		for _, altID := range e.ids {
			if g.Kind(altID) != KindSequence {
				newAlts = append(newAlts, altID)
				continue
			}
			elems := g.SequenceValue(altID)
			if len(elems) == 0 || g.Kind(elems[0]) != KindRuleRef {
				newAlts = append(newAlts, altID)
				continue
			}
			target := g.RuleRefValue(elems[0])
			if !inlinable(g, target) {
				newAlts = append(newAlts, altID)
				continue
			}
			changed = true
			rest := elems[1:]
			for _, choice := range g.ChoicesValue(g.Rules[target].Body) {
				choiceElems := g.SequenceValue(choice)
				combined := append(append([]ExprID(nil), choiceElems...), rest...)
				newAlts = append(newAlts, b.AddSequence(combined))
			}
		}
		if changed {
			e.ids = newAlts
		}
	}
}

func inlinable(g *Grammar, rule RuleID) bool {
	body := g.Rules[rule].Body
	if g.Kind(body) != KindChoices {
		return false
	}
	for _, alt := range g.ChoicesValue(body) {
		if g.Kind(alt) != KindSequence {
			return false
		}
		elems := g.SequenceValue(alt)
		if len(elems) == 0 {
			return false
		}
		for _, e := range elems {
			if g.Kind(e) == KindRuleRef {
				return false
			}
		}
	}
	return true
}

// --- Pass 3: Dead-code elimination -------------------------------------------

// eliminateDeadRules computes the transitive closure of rules reachable from
// root via RuleRef/Repeat/TagDispatch and rebuilds the grammar keeping only
// reachable rules, remapping RuleIDs.
func eliminateDeadRules(b *Builder) {
	g := b.g
	if g.Root == NoRuleID {
		return
	}
	reachable := make(map[RuleID]bool)
	var walk func(RuleID)
	walk = func(r RuleID) {
		if reachable[r] {
			return
		}
		reachable[r] = true
		walkExpr(g, g.Rules[r].Body, walk)
		if la := g.Rules[r].LookaheadAssertion; la != NoExprID {
			walkExpr(g, la, walk)
		}
	}
	walk(g.Root)

	if len(reachable) == len(g.Rules) {
		return
	}

	remap := make(map[RuleID]RuleID, len(reachable))
	var kept []Rule
	for old := range g.Rules {
		oid := RuleID(old)
		if !reachable[oid] {
			continue
		}
		remap[oid] = RuleID(len(kept))
		kept = append(kept, g.Rules[old])
	}
	slog.Debug("dead-code elimination", "kept", len(kept), "dropped", len(g.Rules)-len(kept))

	for id := range g.exprs {
		remapExprRuleRefs(&g.exprs[id], remap)
	}
	g.Root = remap[g.Root]
	g.Rules = kept
}

func walkExpr(g *Grammar, id ExprID, visitRule func(RuleID)) {
	if id == NoExprID {
		return
	}
	switch g.Kind(id) {
	case KindRuleRef:
		visitRule(g.RuleRefValue(id))
	case KindRepeat:
		r, _, _ := g.RepeatValue(id)
		visitRule(r)
	case KindSequence:
		for _, e := range g.SequenceValue(id) {
			walkExpr(g, e, visitRule)
		}
	case KindChoices:
		for _, e := range g.ChoicesValue(id) {
			walkExpr(g, e, visitRule)
		}
	case KindTagDispatch:
		td := g.TagDispatchValue(id)
		for _, t := range td.Tags {
			visitRule(t.RuleID)
		}
	}
}

func remapExprRuleRefs(e *expr, remap map[RuleID]RuleID) {
	switch e.kind {
	case KindRuleRef, KindRepeat:
		if nr, ok := remap[e.ruleRef]; ok {
			e.ruleRef = nr
		}
	case KindTagDispatch:
		for i := range e.tagDispatch.Tags {
			if nr, ok := remap[e.tagDispatch.Tags[i].RuleID]; ok {
				e.tagDispatch.Tags[i].RuleID = nr
			}
		}
	}
}

// --- Pass 4: Lookahead-assertion analysis ------------------------------------

// analyzeLookahead classifies/derives each non-root rule's lookahead
// assertion per spec.md §4.4 step 4.
func analyzeLookahead(b *Builder) {
	g := b.g

	// nonLastOccurrence/lastOccurrence count how many (sequence) positions
	// reference a rule non-last / as-the-last-element, across the whole
	// grammar, to decide uniqueness of right context.
	type occurrence struct {
		seq   ExprID
		index int
		owner RuleID
	}
	var lastOcc, nonLastOcc = map[RuleID][]occurrence{}, map[RuleID][]occurrence{}

	for rid := range g.Rules {
		owner := RuleID(rid)
		body := g.Rules[rid].Body
		if g.Kind(body) != KindChoices {
			continue
		}
		for _, alt := range g.ChoicesValue(body) {
			if g.Kind(alt) != KindSequence {
				continue
			}
			elems := g.SequenceValue(alt)
			for i, e := range elems {
				if g.Kind(e) != KindRuleRef {
					continue
				}
				target := g.RuleRefValue(e)
				if i == len(elems)-1 {
					lastOcc[target] = append(lastOcc[target], occurrence{alt, i, owner})
				} else {
					nonLastOcc[target] = append(nonLastOcc[target], occurrence{alt, i, owner})
				}
			}
		}
	}

	for rid := range g.Rules {
		r := RuleID(rid)
		if r == g.Root {
			continue
		}
		rule := &g.Rules[rid]
		if g.Kind(rule.Body) == KindTagDispatch || selfReferences(g, r) {
			continue
		}

		if rule.LookaheadAssertion != NoExprID {
			// Exact iff this rule is the last element of exactly one
			// sequence in exactly one rule.
			rule.IsExactLookahead = len(lastOcc[r]) == 1
			continue
		}

		occs := nonLastOcc[r]
		if len(occs) != 1 {
			continue
		}
		o := occs[0]
		elems := g.SequenceValue(o.seq)
		suffix := append([]ExprID(nil), elems[o.index+1:]...)
		if len(suffix) == 0 {
			continue
		}
		rule.LookaheadAssertion = b.AddSequence(suffix)
		rule.IsExactLookahead = true
	}
}

func selfReferences(g *Grammar, r RuleID) bool {
	found := false
	walkExpr(g, g.Rules[r].Body, func(t RuleID) {
		if t == r {
			found = true
		}
	})
	return found
}

// --- Pass 5: Empty-rule analysis ---------------------------------------------

// analyzeEmptyRules computes the fixed point of rules that can derive ε, per
// spec.md §4.4 step 5, storing the sorted result on the grammar.
func analyzeEmptyRules(b *Builder) {
	g := b.g
	emptyCapable := make(map[RuleID]bool)

	initiallyEmpty := func(r RuleID) bool {
		body := g.Rules[r].Body
		if g.Kind(body) != KindChoices {
			return false
		}
		alts := g.ChoicesValue(body)
		if len(alts) > 0 && g.Kind(alts[0]) == KindEmptyStr {
			return true
		}
		for _, alt := range alts {
			if g.Kind(alt) != KindSequence {
				continue
			}
			elems := g.SequenceValue(alt)
			if len(elems) == 0 {
				continue
			}
			allStar := true
			for _, e := range elems {
				if g.Kind(e) != KindCharacterClassStar {
					allStar = false
					break
				}
			}
			if allStar {
				return true
			}
		}
		return false
	}

	for rid := range g.Rules {
		r := RuleID(rid)
		if initiallyEmpty(r) {
			emptyCapable[r] = true
		}
	}

	choiceEmptyCapable := func(alt ExprID) bool {
		if g.Kind(alt) == KindEmptyStr {
			return true
		}
		if g.Kind(alt) != KindSequence {
			return false
		}
		for _, e := range g.SequenceValue(alt) {
			switch g.Kind(e) {
			case KindCharacterClassStar:
				continue
			case KindRuleRef:
				if !emptyCapable[g.RuleRefValue(e)] {
					return false
				}
			case KindRepeat:
				r, min, _ := g.RepeatValue(e)
				if min == 0 {
					continue
				}
				if !emptyCapable[r] {
					return false
				}
			default:
				return false
			}
		}
		return true
	}

	for {
		changed := false
		for rid := range g.Rules {
			r := RuleID(rid)
			if emptyCapable[r] {
				continue
			}
			body := g.Rules[rid].Body
			if g.Kind(body) != KindChoices {
				continue
			}
			for _, alt := range g.ChoicesValue(body) {
				if choiceEmptyCapable(alt) {
					emptyCapable[r] = true
					changed = true
					break
				}
			}
		}
		if !changed {
			break
		}
	}

	var ids []RuleID
	for r, ok := range emptyCapable {
		if ok {
			ids = append(ids, r)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	g.AllowEmptyRuleIDs = ids
}

// IsEmptyCapable reports whether rule is recorded in AllowEmptyRuleIDs.
func (g *Grammar) IsEmptyCapable(rule RuleID) bool {
	i := sort.Search(len(g.AllowEmptyRuleIDs), func(i int) bool { return g.AllowEmptyRuleIDs[i] >= rule })
	return i < len(g.AllowEmptyRuleIDs) && g.AllowEmptyRuleIDs[i] == rule
}

// --- Pass 6: Repetition normalization ----------------------------------------

// normalizeRepetition implements spec.md §4.4 step 6: every Repeat(r,min,max)
// flags r as exact-lookahead and, if r can derive ε, forces min to 0. Only
// expressions reachable from a rule body or lookahead assertion are visited;
// arena nodes orphaned by dead-code elimination may name dropped rule ids.
func normalizeRepetition(b *Builder) {
	g := b.g
	var visit func(ExprID)
	visit = func(id ExprID) {
		if id == NoExprID {
			return
		}
		e := &g.exprs[id]
		switch e.kind {
		case KindRepeat:
			g.Rules[e.ruleRef].IsExactLookahead = true
			if g.IsEmptyCapable(e.ruleRef) {
				e.min = 0
			}
		case KindSequence, KindChoices:
			for _, c := range e.ids {
				visit(c)
			}
		}
	}
	for i := range g.Rules {
		visit(g.Rules[i].Body)
		visit(g.Rules[i].LookaheadAssertion)
	}
}
