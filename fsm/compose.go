package fsm

// Concat concatenates a non-empty list of FSMs by epsilon-linking the ends of
// fsm[i] to the start of fsm[i+1] (spec.md §4.2).
func Concat(parts []*FSM) *FSM {
	if len(parts) == 0 {
		panic("fsm: Concat requires a non-empty list")
	}
	out := New()
	out.States = out.States[:0]
	out.Ends = make(map[int]bool)

	starts := make([]int, len(parts))
	endsPerPart := make([][]int, len(parts))
	for i, p := range parts {
		_, newEnds, mapping := AddToCompleteFSM(out, p)
		starts[i] = mapping[p.Start]
		for e := range newEnds {
			endsPerPart[i] = append(endsPerPart[i], e)
		}
	}
	out.Start = starts[0]
	for i := 0; i < len(parts)-1; i++ {
		for _, e := range endsPerPart[i] {
			out.AddEpsilonEdge(e, starts[i+1])
			out.SetAccept(e, false)
		}
	}
	for _, e := range endsPerPart[len(parts)-1] {
		out.SetAccept(e, true)
	}
	return out
}

// Union adds a fresh start state with epsilon edges to each child's start
// (spec.md §4.2).
func Union(parts []*FSM) *FSM {
	out := New()
	out.States = out.States[:0]
	out.Ends = make(map[int]bool)
	newStart := out.AddState()
	out.Start = newStart

	for _, p := range parts {
		_, newEnds, mapping := AddToCompleteFSM(out, p)
		out.AddEpsilonEdge(newStart, mapping[p.Start])
		for e := range newEnds {
			out.SetAccept(e, true)
		}
	}
	return out
}

// Intersect computes the product-construction intersection of a and b, which
// must both be DFAs (determinize with ToDFA first). Intersect fails
// (returns nil, false) if either input contains rule-ref edges, since the
// product construction over opaque rule-ref symbols is not well-defined
// across two independently-built automata (spec.md §4.2).
func Intersect(a, b *FSM) (*FSM, bool) {
	if hasRuleEdges(a) || hasRuleEdges(b) {
		return nil, false
	}

	type pair struct{ a, b int }
	out := New()
	out.States = out.States[:0]
	out.Ends = make(map[int]bool)

	ids := make(map[pair]int)
	startPair := pair{a.Start, b.Start}
	startID := out.AddState()
	ids[startPair] = startID
	out.Start = startID
	if a.States[a.Start].Accept && b.States[b.Start].Accept {
		out.SetAccept(startID, true)
	}

	queue := []pair{startPair}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		curID := ids[p]

		for _, ea := range a.States[p.a].Edges {
			if ea.Kind != EdgeByteRange {
				continue
			}
			for _, eb := range b.States[p.b].Edges {
				if eb.Kind != EdgeByteRange {
					continue
				}
				lo, hi := maxByte(ea.Min, eb.Min), minByte(ea.Max, eb.Max)
				if lo > hi {
					continue
				}
				np := pair{ea.To, eb.To}
				nid, ok := ids[np]
				if !ok {
					nid = out.AddState()
					ids[np] = nid
					if a.States[np.a].Accept && b.States[np.b].Accept {
						out.SetAccept(nid, true)
					}
					queue = append(queue, np)
				}
				out.AddEdge(curID, nid, lo, hi)
			}
		}
	}
	return out, true
}

func maxByte(a, b byte) byte {
	if a > b {
		return a
	}
	return b
}

func minByte(a, b byte) byte {
	if a < b {
		return a
	}
	return b
}
