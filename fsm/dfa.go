package fsm

import (
	"sort"
	"strconv"
	"strings"
)

// alphabetSymbol is either a byte-range atom (used by subset construction
// after the full byte range space has been split at every edge boundary) or
// a rule-reference symbol, keyed by rule id. Rule-ref edges are treated as
// opaque alphabet symbols per spec.md §4.2.
type alphabetSymbol struct {
	isRule   bool
	lo, hi   byte // meaningful when !isRule
	rule     RuleID
}

// ToDFA determinizes f (which must already be epsilon-free; call
// SimplifyEpsilon first) via subset construction. The alphabet is the set of
// byte ranges, refined to atomic non-overlapping intervals at every edge
// boundary, plus one opaque symbol per distinct referenced rule id.
func ToDFA(f *FSM) *FSM {
	symbols := computeAlphabet(f)

	type subset struct {
		states []int
		key    string
	}
	keyOf := func(states []int) string {
		cp := append([]int(nil), states...)
		sort.Ints(cp)
		var sb strings.Builder
		for i, s := range cp {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(s))
		}
		return sb.String()
	}

	out := New()
	out.States = out.States[:0]
	out.Ends = make(map[int]bool)

	seen := make(map[string]int)
	start := []int{f.Start}
	startKey := keyOf(start)
	startID := out.AddState()
	seen[startKey] = startID
	out.Start = startID
	setAcceptFromMembers(out, startID, f, start)

	queue := []subset{{states: start, key: startKey}}
	idOf := map[string]int{startKey: startID}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curID := idOf[cur.key]

		for _, sym := range symbols {
			var move []int
			moveSet := make(map[int]bool)
			for _, s := range cur.states {
				for _, e := range f.States[s].Edges {
					if sym.isRule {
						if e.Kind == EdgeRule && e.Rule == sym.rule {
							if !moveSet[e.To] {
								moveSet[e.To] = true
								move = append(move, e.To)
							}
						}
					} else if e.Kind == EdgeByteRange && e.Min <= sym.lo && e.Max >= sym.hi {
						if !moveSet[e.To] {
							moveSet[e.To] = true
							move = append(move, e.To)
						}
					}
				}
			}
			if len(move) == 0 {
				continue
			}
			mk := keyOf(move)
			nid, ok := idOf[mk]
			if !ok {
				nid = out.AddState()
				idOf[mk] = nid
				seen[mk] = nid
				setAcceptFromMembers(out, nid, f, move)
				queue = append(queue, subset{states: move, key: mk})
			}
			if sym.isRule {
				out.AddRuleEdge(curID, nid, sym.rule)
			} else {
				out.AddEdge(curID, nid, sym.lo, sym.hi)
			}
		}
	}
	return out
}

func setAcceptFromMembers(out *FSM, id int, f *FSM, members []int) {
	for _, m := range members {
		if f.States[m].Accept {
			out.SetAccept(id, true)
			return
		}
	}
}

// computeAlphabet returns the atomic byte-range symbols (split at every
// observed edge boundary) plus one symbol per distinct rule id.
func computeAlphabet(f *FSM) []alphabetSymbol {
	var bounds []int
	ruleSeen := make(map[RuleID]bool)
	var rules []RuleID
	for _, s := range f.States {
		for _, e := range s.Edges {
			switch e.Kind {
			case EdgeByteRange:
				bounds = append(bounds, int(e.Min), int(e.Max)+1)
			case EdgeRule:
				if !ruleSeen[e.Rule] {
					ruleSeen[e.Rule] = true
					rules = append(rules, e.Rule)
				}
			}
		}
	}
	sort.Ints(bounds)
	bounds = dedupInts(bounds)

	var symbols []alphabetSymbol
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]-1
		if lo > 255 {
			break
		}
		if hi > 255 {
			hi = 255
		}
		symbols = append(symbols, alphabetSymbol{lo: byte(lo), hi: byte(hi)})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i] < rules[j] })
	for _, r := range rules {
		symbols = append(symbols, alphabetSymbol{isRule: true, rule: r})
	}
	return symbols
}

func dedupInts(s []int) []int {
	if len(s) == 0 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
