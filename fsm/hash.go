package fsm

import "sort"

// Flags reserved in the alphabet-token stream (spec.md §4.6), chosen well
// outside the byte range [0,255] so they can't collide with a real
// (min,max) byte-range token.
const (
	endFlag     uint64 = 1 << 40
	notEndFlag  uint64 = 2 << 40
	selfFlag    uint64 = 3 << 40
	cycleFlag   uint64 = 4 << 40
	unknownFlag uint64 = 5 << 40
)

// combine folds v into acc with a fixed, non-zero-absorbing combiner
// (splitmix64's mixing step, applied after an additive fold so that acc==0
// doesn't swallow the next token).
func combine(acc, v uint64) uint64 {
	acc += v + 0x9E3779B97F4A7C15
	acc ^= acc >> 30
	acc *= 0xBF58476D1CE4E5B9
	acc ^= acc >> 27
	acc *= 0x94D049BB133111EB
	acc ^= acc >> 31
	return acc
}

// RuleFSMs is the per-grammar set of already-built per-rule automata, keyed
// by rule id, as seen by the hasher. RuleRefTarget resolves which rule a
// rule-ref edge's Rule field names.
type RuleFSMs interface {
	// FSM returns the (unhashed) automaton for rule, or nil if rule has no
	// FSM (e.g. it failed to build).
	FSM(rule RuleID) *FSM
}

// HashResult is one rule's outcome from HashRules.
type HashResult struct {
	Hash        uint64
	Partial     bool // true if hashed via the single-UNKNOWN_FLAG fallback
	Resolved    bool // false if the rule contains an unresolvable construct
	Renumbering map[int]int // BFS old state id -> new state id
}

// HashRules computes canonical fingerprints for every rule named in order,
// resolving inter-rule references via rules.FSM. It implements spec.md
// §4.6's dependency-ordered hashing: rules whose referees are all already
// hashed are hashed first; a stuck dependency graph is resolved by finding
// one simple cycle and hashing its members with a rotational combination;
// rules with an unresolved construct at the start state (e.g. Repeat) may
// be partially hashed with at most one UNKNOWN_FLAG edge.
//
// order is the grammar's rule ids, 0..n-1 in grammar order (BuildFSMs
// assigns these); refs[r] lists the rule ids r's FSM can reference via a
// rule-ref edge. A self-reference in refs[r] is skipped as a dependency and
// emitted as SELF_FLAG.
func HashRules(order []RuleID, rules RuleFSMs, refs map[RuleID][]RuleID) map[RuleID]HashResult {
	results := make(map[RuleID]HashResult, len(order))
	pending := make(map[RuleID]bool, len(order))
	for _, r := range order {
		pending[r] = true
	}

	progress := true
	for len(pending) > 0 && progress {
		progress = false
		for _, r := range order {
			if !pending[r] {
				continue
			}
			if allResolved(refs[r], r, results) {
				results[r] = hashOneRule(r, rules.FSM(r), refs[r], results, false, nil)
				delete(pending, r)
				progress = true
			}
		}
	}
	if len(pending) == 0 {
		return results
	}

	// Stuck: look for one simple cycle among the remaining rules and hash
	// its members together, then continue the dependency-ordered pass.
	for len(pending) > 0 {
		cycle := findSimpleCycle(pending, refs)
		if cycle == nil {
			// No cycle and no resolvable rule: fall back to partial
			// hashing (at most one UNKNOWN_FLAG edge at the start state)
			// for every remaining rule independently.
			for r := range pending {
				results[r] = hashPartial(r, rules.FSM(r), refs[r], results)
				delete(pending, r)
			}
			break
		}
		hashCycle(cycle, rules, refs, results)
		for _, r := range cycle {
			delete(pending, r)
		}

		progress = true
		for progress {
			progress = false
			for _, r := range order {
				if !pending[r] {
					continue
				}
				if allResolved(refs[r], r, results) {
					results[r] = hashOneRule(r, rules.FSM(r), refs[r], results, false, nil)
					delete(pending, r)
					progress = true
				}
			}
		}
	}
	return results
}

func allResolved(deps []RuleID, self RuleID, results map[RuleID]HashResult) bool {
	for _, d := range deps {
		if d == self {
			continue
		}
		if _, ok := results[d]; !ok {
			return false
		}
	}
	return true
}

// findSimpleCycle looks for a strongly-connected chain within pending where
// each member has exactly one unhashed referee and that referee is the next
// member in the chain, per spec.md §4.6.
func findSimpleCycle(pending map[RuleID]bool, refs map[RuleID][]RuleID) []RuleID {
	next := make(map[RuleID]RuleID)
	for r := range pending {
		var unresolved []RuleID
		for _, d := range refs[r] {
			if d == r {
				continue
			}
			if pending[d] {
				unresolved = append(unresolved, d)
			}
		}
		if len(unresolved) != 1 {
			return nil
		}
		next[r] = unresolved[0]
	}
	// Walk from an arbitrary member until we revisit one: that's the cycle.
	var start RuleID
	for r := range pending {
		start = r
		break
	}
	visited := map[RuleID]int{}
	order := []RuleID{}
	cur := start
	for {
		if i, ok := visited[cur]; ok {
			return order[i:]
		}
		visited[cur] = len(order)
		order = append(order, cur)
		cur = next[cur]
	}
}

// hashCycle hashes every member of cycle once, treating in-cycle edges as
// CYCLE_FLAG, then combines the per-member hashes rotationally so each
// member's final hash starts the cyclic sum at itself.
func hashCycle(cycle []RuleID, rules RuleFSMs, refs map[RuleID][]RuleID, results map[RuleID]HashResult) {
	inCycle := make(map[RuleID]bool, len(cycle))
	for _, r := range cycle {
		inCycle[r] = true
	}
	raw := make(map[RuleID]HashResult, len(cycle))
	for _, r := range cycle {
		raw[r] = hashOneRule(r, rules.FSM(r), refs[r], results, false, inCycle)
	}
	n := len(cycle)
	for i, r := range cycle {
		acc := uint64(0)
		for k := 0; k < n; k++ {
			acc = combine(acc, raw[cycle[(i+k)%n]].Hash)
		}
		results[r] = HashResult{Hash: acc, Resolved: raw[r].Resolved, Renumbering: raw[r].Renumbering}
	}
}

func hashPartial(r RuleID, f *FSM, deps []RuleID, results map[RuleID]HashResult) HashResult {
	return hashOneRule(r, f, deps, results, true, nil)
}

// hashOneRule implements the single-FSM hash: BFS renumbering from start,
// then folding (new_id,END/NOT_END) and per-edge tokens into a 64-bit
// accumulator in canonical order (byte-range edges in stored order, then
// rule-ref edges sorted by referenced fingerprint).
//
// allowUnknown permits at most one rule-ref edge out of the start state to
// reference a not-yet-hashed rule (tagged UNKNOWN_FLAG); more than one
// disqualifies the rule (spec.md §9 open question 2, decided: reject).
// inCycle, when non-nil, marks rule ids whose edges should be tagged
// CYCLE_FLAG instead of resolved to a fingerprint.
func hashOneRule(self RuleID, f *FSM, deps []RuleID, results map[RuleID]HashResult, allowUnknown bool, inCycle map[RuleID]bool) HashResult {
	if f == nil || len(f.States) == 0 {
		// No automaton to fingerprint: the rule stays unhashed.
		return HashResult{Hash: 0, Resolved: false}
	}

	order, renumber := bfsRenumber(f)
	var acc uint64
	unknownUsed := false

	for newID, old := range order {
		s := f.States[old]
		if s.Accept {
			acc = combine(acc, endFlag)
		} else {
			acc = combine(acc, notEndFlag)
		}
		acc = combine(acc, uint64(newID))

		edges := append([]Edge(nil), s.Edges...)
		var byteEdges, ruleEdges []Edge
		for _, e := range edges {
			if e.Kind == EdgeByteRange {
				byteEdges = append(byteEdges, e)
			} else if e.Kind == EdgeRule {
				ruleEdges = append(ruleEdges, e)
			}
		}

		for _, e := range byteEdges {
			acc = combine(acc, uint64(e.Min)<<8|uint64(e.Max))
			acc = combine(acc, uint64(renumber[e.To]))
		}

		type ruleTok struct {
			tok uint64
			to  int
		}
		toks := make([]ruleTok, 0, len(ruleEdges))
		for _, e := range ruleEdges {
			rid := RuleID(e.Rule)
			switch {
			case rid == self:
				toks = append(toks, ruleTok{selfFlag, renumber[e.To]})
			case inCycle != nil && inCycle[rid]:
				toks = append(toks, ruleTok{cycleFlag, renumber[e.To]})
			default:
				if res, ok := results[rid]; ok && res.Resolved {
					toks = append(toks, ruleTok{res.Hash, renumber[e.To]})
				} else if allowUnknown && old == f.Start && !unknownUsed {
					unknownUsed = true
					toks = append(toks, ruleTok{unknownFlag, renumber[e.To]})
				} else {
					// Unresolvable: rule is not hashable at all.
					return HashResult{Hash: 0, Resolved: false}
				}
			}
		}
		sort.Slice(toks, func(i, j int) bool { return toks[i].tok < toks[j].tok })
		for _, t := range toks {
			acc = combine(acc, t.tok)
			acc = combine(acc, uint64(t.to))
		}
	}

	return HashResult{Hash: acc, Partial: unknownUsed, Resolved: true, Renumbering: renumber}
}

// bfsRenumber walks f from its start state in BFS discovery order, returning
// that order (order[i] is the old id of new state i) and the old->new map.
func bfsRenumber(f *FSM) (order []int, renumber map[int]int) {
	renumber = make(map[int]int, len(f.States))
	renumber[f.Start] = 0
	order = []int{f.Start}
	queue := []int{f.Start}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, e := range f.States[s].Edges {
			if _, seen := renumber[e.To]; !seen {
				renumber[e.To] = len(order)
				order = append(order, e.To)
				queue = append(queue, e.To)
			}
		}
	}
	return order, renumber
}
