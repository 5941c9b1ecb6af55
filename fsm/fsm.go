// Package fsm implements the finite-state-automaton library the grammar
// compiler builds per-rule automata with: NFA/DFA over byte ranges with
// side-band "rule-reference" edges, epsilon-elimination, determinization,
// minimization, and the composition operators (concat/union/intersect) used
// to lower Sequence/Choices/Repeat expressions.
package fsm

import "sort"

// RuleID mirrors grammar.RuleID without importing the grammar package (fsm
// is a leaf package with no dependency on grammar, per the teacher's layering
// where lower-level packages never import their callers).
type RuleID int32

// EdgeKind distinguishes a byte-range edge from a rule-reference edge.
type EdgeKind uint8

const (
	EdgeByteRange EdgeKind = iota
	EdgeRule
	EdgeEpsilon
)

// Edge is one outgoing transition from a state.
type Edge struct {
	Kind EdgeKind
	// Min/Max are meaningful when Kind == EdgeByteRange (inclusive byte range).
	Min, Max byte
	// Rule is meaningful when Kind == EdgeRule.
	Rule RuleID
	To   int
}

// State is one automaton node.
type State struct {
	Edges    []Edge
	Accept   bool
}

// FSM is a mutable automaton under construction.
type FSM struct {
	States []State
	Start  int
	Ends   map[int]bool
}

// New returns an FSM with a single, non-accepting start state.
func New() *FSM {
	f := &FSM{Ends: make(map[int]bool)}
	f.Start = f.AddState()
	return f
}

// AddState appends a new state and returns its id.
func (f *FSM) AddState() int {
	id := len(f.States)
	f.States = append(f.States, State{})
	return id
}

// AddEdge adds a byte-range edge from -> to.
func (f *FSM) AddEdge(from, to int, min, max byte) {
	f.States[from].Edges = append(f.States[from].Edges, Edge{Kind: EdgeByteRange, Min: min, Max: max, To: to})
}

// AddRuleEdge adds a rule-reference edge from -> to, labeled with rule.
func (f *FSM) AddRuleEdge(from, to int, rule RuleID) {
	f.States[from].Edges = append(f.States[from].Edges, Edge{Kind: EdgeRule, Rule: rule, To: to})
}

// AddEpsilonEdge adds an epsilon edge from -> to.
func (f *FSM) AddEpsilonEdge(from, to int) {
	f.States[from].Edges = append(f.States[from].Edges, Edge{Kind: EdgeEpsilon, To: to})
}

// SetAccept marks state as accepting/non-accepting and keeps Ends in sync.
func (f *FSM) SetAccept(state int, accept bool) {
	f.States[state].Accept = accept
	if accept {
		f.Ends[state] = true
	} else {
		delete(f.Ends, state)
	}
}

// IsScannable reports whether state has at least one byte-range or
// rule-reference outgoing edge (spec.md §3's "scannable state").
func (f *FSM) IsScannable(state int) bool {
	for _, e := range f.States[state].Edges {
		if e.Kind == EdgeByteRange || e.Kind == EdgeRule {
			return true
		}
	}
	return false
}

// SortEdges canonicalizes each state's outgoing edge order: byte-range edges
// first (by Min then Max), then rule edges sorted by Rule id. This is the
// order the hasher (C6) and the mask compiler rely on being stable.
func (f *FSM) SortEdges() {
	for i := range f.States {
		edges := f.States[i].Edges
		sort.SliceStable(edges, func(a, b int) bool {
			ea, eb := edges[a], edges[b]
			if ea.Kind != eb.Kind {
				return ea.Kind < eb.Kind
			}
			switch ea.Kind {
			case EdgeByteRange:
				if ea.Min != eb.Min {
					return ea.Min < eb.Min
				}
				return ea.Max < eb.Max
			case EdgeRule:
				return ea.Rule < eb.Rule
			default:
				return false
			}
		})
	}
}

// Clone returns a deep copy of f.
func (f *FSM) Clone() *FSM {
	out := &FSM{Start: f.Start, Ends: make(map[int]bool, len(f.Ends))}
	out.States = make([]State, len(f.States))
	for i, s := range f.States {
		out.States[i] = State{Accept: s.Accept, Edges: append([]Edge(nil), s.Edges...)}
	}
	for k, v := range f.Ends {
		out.Ends[k] = v
	}
	return out
}

// CompactFSM is a read-only, CSR-style (compressed sparse row) view of an
// FSM: edges are stored in one flat slice, with Offsets[i]:Offsets[i+1]
// delimiting state i's (sorted) outgoing edges.
type CompactFSM struct {
	Offsets []int32
	Edges   []Edge
	start   int
	ends    []int
}

// Compact builds a CompactFSM from f. f should have no epsilon edges left
// (call SimplifyEpsilon first).
func Compact(f *FSM) *CompactFSM {
	f.SortEdges()
	c := &CompactFSM{Offsets: make([]int32, len(f.States)+1), start: f.Start}
	total := int32(0)
	for i, s := range f.States {
		c.Offsets[i] = total
		total += int32(len(s.Edges))
	}
	c.Offsets[len(f.States)] = total
	c.Edges = make([]Edge, 0, total)
	for _, s := range f.States {
		c.Edges = append(c.Edges, s.Edges...)
	}
	for e := range f.Ends {
		c.ends = append(c.ends, e)
	}
	sort.Ints(c.ends)
	return c
}

// Start returns the automaton's initial state.
func (c *CompactFSM) Start() int { return c.start }

// Ends returns the sorted accepting states.
func (c *CompactFSM) Ends() []int { return c.ends }

// NumStates returns the number of states.
func (c *CompactFSM) NumStates() int { return len(c.Offsets) - 1 }

// StateEdges returns state's outgoing edges (sorted per SortEdges' order).
func (c *CompactFSM) StateEdges(state int) []Edge {
	return c.Edges[c.Offsets[state]:c.Offsets[state+1]]
}

// IsAccepting reports whether state is one of the automaton's ends.
func (c *CompactFSM) IsAccepting(state int) bool {
	i := sort.SearchInts(c.ends, state)
	return i < len(c.ends) && c.ends[i] == state
}

// IsScannable reports whether state has at least one outgoing byte-range or
// rule-reference edge.
func (c *CompactFSM) IsScannable(state int) bool {
	for _, e := range c.StateEdges(state) {
		if e.Kind == EdgeByteRange || e.Kind == EdgeRule {
			return true
		}
	}
	return false
}

// Step advances from state on input byte b, returning the reachable states
// via byte-range edges (a DFA has at most one; an NFA may have several).
func (c *CompactFSM) Step(state int, b byte) []int {
	var out []int
	for _, e := range c.StateEdges(state) {
		if e.Kind == EdgeByteRange && b >= e.Min && b <= e.Max {
			out = append(out, e.To)
		}
	}
	return out
}

// AddToCompleteFSM copies f's states, edges, acceptance flags and ends into
// complete, and returns f's start and ends in complete's numbering together
// with the old->new state mapping (spec.md §4.2's bulk-move operation).
func AddToCompleteFSM(complete *FSM, f *FSM) (newStart int, newEnds map[int]bool, mapping map[int]int) {
	mapping = make(map[int]int, len(f.States))
	for old := range f.States {
		mapping[old] = complete.AddState()
	}
	for old, s := range f.States {
		nw := mapping[old]
		complete.States[nw].Accept = s.Accept
		for _, e := range s.Edges {
			ne := e
			ne.To = mapping[e.To]
			complete.States[nw].Edges = append(complete.States[nw].Edges, ne)
		}
	}
	newEnds = make(map[int]bool, len(f.Ends))
	for e := range f.Ends {
		nw := mapping[e]
		newEnds[nw] = true
		complete.Ends[nw] = true
	}
	newStart = mapping[f.Start]
	return
}
