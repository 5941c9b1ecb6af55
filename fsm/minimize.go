package fsm

import "sort"

// MergeEquivalentSuccessors merges states that are right-equivalent: two
// states with identical (sorted) outgoing edges, targets included, and the
// same acceptance status collapse to one. This is a cheap, non-Hopcroft pass
// run before (and in lieu of, on minimization failure) full minimization.
func MergeEquivalentSuccessors(f *FSM) *FSM {
	f.SortEdges()
	sigOf := func(s State) string {
		var sb []byte
		if s.Accept {
			sb = append(sb, 'A')
		}
		for _, e := range s.Edges {
			sb = append(sb, byte(e.Kind))
			if e.Kind == EdgeByteRange {
				sb = append(sb, e.Min, e.Max)
			} else if e.Kind == EdgeRule {
				sb = append(sb, byte(e.Rule>>24), byte(e.Rule>>16), byte(e.Rule>>8), byte(e.Rule))
			}
			sb = append(sb, byte(e.To>>24), byte(e.To>>16), byte(e.To>>8), byte(e.To))
		}
		return string(sb)
	}

	groups := make(map[string][]int)
	for i, s := range f.States {
		sig := sigOf(s)
		groups[sig] = append(groups[sig], i)
	}

	remap := make(map[int]int, len(f.States))
	for _, members := range groups {
		rep := members[0]
		for _, m := range members {
			remap[m] = rep
		}
	}

	return rebuildWithRemap(f, remap)
}

func rebuildWithRemap(f *FSM, remap map[int]int) *FSM {
	used := make(map[int]bool)
	for _, v := range remap {
		used[v] = true
	}
	var order []int
	for s := range used {
		order = append(order, s)
	}
	sort.Ints(order)
	newID := make(map[int]int, len(order))
	for i, s := range order {
		newID[s] = i
	}

	out := New()
	out.States = make([]State, len(order))
	out.Ends = make(map[int]bool)
	for i, old := range order {
		s := f.States[old]
		var edges []Edge
		for _, e := range s.Edges {
			ne := e
			ne.To = newID[remap[e.To]]
			edges = append(edges, ne)
		}
		out.States[i] = State{Accept: s.Accept, Edges: edges}
		if s.Accept {
			out.Ends[i] = true
		}
	}
	out.Start = newID[remap[f.Start]]
	return out
}

// MinimizeDFA performs Hopcroft partition refinement on f, which must be a
// deterministic, epsilon-free automaton (the output of ToDFA). It is
// fallible when rule-ref edges are present and the refinement cannot safely
// distinguish rule-ref alphabets (spec.md §4.2); on failure it returns
// MergeEquivalentSuccessors(f) and false, and the caller keeps the
// unminimized FSM, which still satisfies Property 1 (spec.md §9, open
// question 3).
func MinimizeDFA(f *FSM) (*FSM, bool) {
	if hasRuleEdges(f) {
		// Best-effort: fall back to the cheaper, always-safe
		// successor-merge pass rather than attempt a refinement whose
		// correctness in the presence of opaque rule-ref symbols we
		// cannot prove here.
		return MergeEquivalentSuccessors(f), false
	}

	n := len(f.States)
	if n == 0 {
		return f, true
	}

	partition := make([]int, n) // state -> block id
	hasAccept, hasNonAccept := false, false
	for i, s := range f.States {
		if s.Accept {
			partition[i] = 1
			hasAccept = true
		} else {
			hasNonAccept = true
		}
	}
	numBlocks := 1
	if hasAccept && hasNonAccept {
		numBlocks = 2
	}

	changed := true
	for changed {
		changed = false
		sig := make([]string, n)
		for s := 0; s < n; s++ {
			sig[s] = blockSignature(f, partition, s)
		}
		groups := make(map[string][]int)
		var order []string
		for s := 0; s < n; s++ {
			key := itoa(partition[s]) + "|" + sig[s]
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], s)
		}
		if len(groups) != numBlocks {
			changed = true
			numBlocks = len(groups)
			newPart := make([]int, n)
			sort.Strings(order)
			for bid, key := range order {
				for _, s := range groups[key] {
					newPart[s] = bid
				}
			}
			partition = newPart
		}
	}

	remap := make(map[int]int, n)
	rep := make(map[int]int)
	for s := 0; s < n; s++ {
		b := partition[s]
		if _, ok := rep[b]; !ok {
			rep[b] = s
		}
		remap[s] = rep[b]
	}
	return rebuildWithRemap(f, remap), true
}

func blockSignature(f *FSM, partition []int, s int) string {
	var sb []byte
	edges := append([]Edge(nil), f.States[s].Edges...)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Kind != edges[j].Kind {
			return edges[i].Kind < edges[j].Kind
		}
		if edges[i].Kind == EdgeByteRange {
			return edges[i].Min < edges[j].Min
		}
		return edges[i].Rule < edges[j].Rule
	})
	for _, e := range edges {
		sb = append(sb, byte(e.Kind))
		if e.Kind == EdgeByteRange {
			sb = append(sb, e.Min, e.Max)
		} else if e.Kind == EdgeRule {
			sb = append(sb, byte(e.Rule))
		}
		b := partition[e.To]
		sb = append(sb, byte(b>>24), byte(b>>16), byte(b>>8), byte(b))
	}
	return string(sb)
}

func hasRuleEdges(f *FSM) bool {
	for _, s := range f.States {
		for _, e := range s.Edges {
			if e.Kind == EdgeRule {
				return true
			}
		}
	}
	return false
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	p := len(buf)
	for i > 0 {
		p--
		buf[p] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		p--
		buf[p] = '-'
	}
	return string(buf[p:])
}
