// Package earley implements the parser driver contract (C7): a byte-at-a-
// time automaton over a normalized Grammar that drives C8's adaptive
// token-mask sweep. Rules with a precompiled FSM (C5) step through the
// grammar's shared complete FSM; rules without one (bodies containing a
// Repeat, which §4.5's lowering list excludes) are walked element-by-element.
//
// The driver keeps a stack of frames mirroring nested rule descents, the way
// a pushdown automaton does. PushStateAndExpand/PopLastStates expose that
// stack directly so the mask compiler can checkpoint before a tentative
// advance (e.g. a lookahead-assertion trial) and cheaply roll back.
package earley

import (
	"github.com/jmorganca/xgrammar/fsm"
	"github.com/jmorganca/xgrammar/grammar"
)

// Driver is the C7 contract the mask compiler drives.
type Driver interface {
	// Advance consumes one byte, applying it to the current position
	// (cascading through any rule-ref descents required to find a matching
	// edge). Reports whether the byte was accepted.
	Advance(b byte) bool
	// IsCompleted reports whether the root rule is in an accepting position
	// with nothing left on the stack below it.
	IsCompleted() bool
	// PushStateAndExpand checkpoints the current stack and switches the
	// driver's active position to state.
	PushStateAndExpand(state ParserState)
	// PopLastStates undoes the last n PushStateAndExpand calls, restoring
	// the stack each one had checkpointed.
	PopLastStates(n int)
}

// ParserState is an opaque snapshot of the driver's frame stack, usable with
// PushStateAndExpand. Obtain one via (*driver).Snapshot or NewRuleState.
type ParserState struct {
	frames []frame
}

// frame is one pending rule match: either stepping a precompiled FSM, or
// (when the rule has none) walking its chosen alternative element by
// element.
type frame struct {
	rule grammar.RuleID

	hasFSM   bool
	fsmState int

	altIdx      int // -1: undecided, try every alternative on the next byte
	elemIdx     int
	repeatCount int // progress through a Repeat element's min/max bound

	elemFSM   *fsm.FSM // lazily built single-element automaton, see below
	elemState int

	hasReturn   bool
	retFSM      bool
	retFSMState int
	retAltIdx   int
	retElemIdx  int
}

func newFrame(g *grammar.Grammar, rule grammar.RuleID) frame {
	r := g.RuleByID(rule)
	if r.FSM != nil {
		return frame{rule: rule, hasFSM: true, fsmState: (*r.FSM).Start()}
	}
	return frame{rule: rule, altIdx: -1}
}

func (f frame) clone() frame {
	cp := f
	return cp
}

type driver struct {
	g    *grammar.Grammar
	cfsm *fsm.CompactFSM
	root grammar.RuleID

	stack   []frame
	history [][]frame
}

// New returns a Driver positioned at g's root rule.
func New(g *grammar.Grammar) Driver {
	d := &driver{g: g, root: g.Root}
	if cfsm, ok := g.CompleteFSM.(*fsm.CompactFSM); ok {
		d.cfsm = cfsm
	}
	d.stack = []frame{newFrame(g, g.Root)}
	return d
}

// NewFSMState returns a Driver seeded at an arbitrary state within rule's
// precompiled FSM, for C8's per-state mask sweep (which starts a fresh trial
// driver at every scannable state rather than walking from the grammar
// root).
func NewFSMState(g *grammar.Grammar, rule grammar.RuleID, fsmState int) Driver {
	d := &driver{g: g, root: rule}
	if cfsm, ok := g.CompleteFSM.(*fsm.CompactFSM); ok {
		d.cfsm = cfsm
	}
	d.stack = []frame{{rule: rule, hasFSM: true, fsmState: fsmState}}
	return d
}

// NewRuleState builds a ParserState that starts fresh at rule, for use with
// PushStateAndExpand (the lookahead-assertion trial in C8's step 5).
func (d *driver) NewRuleState(rule grammar.RuleID) ParserState {
	return ParserState{frames: []frame{newFrame(d.g, rule)}}
}

func (d *driver) Snapshot() ParserState {
	return ParserState{frames: cloneFrames(d.stack)}
}

func cloneFrames(fs []frame) []frame {
	cp := make([]frame, len(fs))
	for i, f := range fs {
		cp[i] = f.clone()
	}
	return cp
}

func (d *driver) PushStateAndExpand(state ParserState) {
	d.history = append(d.history, cloneFrames(d.stack))
	d.stack = cloneFrames(state.frames)
}

func (d *driver) PopLastStates(n int) {
	for i := 0; i < n && len(d.history) > 0; i++ {
		d.stack = d.history[len(d.history)-1]
		d.history = d.history[:len(d.history)-1]
	}
}

// IsCompleted reports whether the stack could collapse to the root in an
// accepting position right now. A frame that just matched its last byte
// isn't popped until the next Advance needs to fall back past it (see
// popCompleted), so completion has to be checked by hypothetically folding
// each accepting frame into its parent, the same way popCompleted would,
// without mutating the real stack.
func (d *driver) IsCompleted() bool {
	if len(d.stack) == 0 {
		return false
	}
	top := len(d.stack) - 1
	cur := d.stack[top].clone()
	for {
		if !d.frameAcceptingState(&cur) {
			return false
		}
		if top == 0 {
			return true
		}
		child := cur
		top--
		cur = d.stack[top].clone()
		if child.hasReturn {
			if child.retFSM {
				cur.fsmState = child.retFSMState
			} else {
				cur.altIdx = child.retAltIdx
				cur.elemIdx = child.retElemIdx
				cur.elemFSM = nil
				cur.elemState = 0
			}
		}
	}
}

// Advance consumes b, cascading through rule-ref descents and completed-
// frame pops until a byte-range edge fires or no progress is possible.
func (d *driver) Advance(b byte) bool {
	for {
		if len(d.stack) == 0 {
			return false
		}
		top := len(d.stack) - 1
		if d.matchByte(top, b) {
			return true
		}
		if d.descendRuleRef(top) {
			continue
		}
		if top > 0 && d.frameAccepting(top) {
			d.popCompleted(top)
			continue
		}
		return false
	}
}

func (d *driver) popCompleted(idx int) {
	child := d.stack[idx]
	d.stack = d.stack[:idx]
	parent := &d.stack[idx-1]
	if !child.hasReturn {
		return
	}
	if child.retFSM {
		parent.fsmState = child.retFSMState
	} else {
		parent.altIdx = child.retAltIdx
		parent.elemIdx = child.retElemIdx
		parent.elemFSM = nil
		parent.elemState = 0
	}
}

func (d *driver) frameAccepting(idx int) bool {
	return d.frameAcceptingState(&d.stack[idx])
}

func (d *driver) frameAcceptingState(f *frame) bool {
	if f.hasFSM {
		if d.cfsm == nil {
			return false
		}
		return d.cfsm.IsAccepting(f.fsmState)
	}
	r := d.g.RuleByID(f.rule)
	if f.altIdx == -1 {
		return d.g.IsEmptyCapable(f.rule)
	}
	elems := d.g.SequenceValue(d.g.ChoicesValue(r.Body)[f.altIdx])
	if f.elemIdx >= len(elems) {
		return true
	}
	if f.elemIdx == len(elems)-1 && d.g.Kind(elems[f.elemIdx]) == grammar.KindRepeat {
		_, min, _ := d.g.RepeatValue(elems[f.elemIdx])
		return f.repeatCount >= min
	}
	return false
}

// matchByte attempts to consume b at the top frame directly (no rule-ref
// descent). It mutates the frame in place on success.
func (d *driver) matchByte(idx int, b byte) bool {
	f := &d.stack[idx]
	if f.hasFSM {
		if d.cfsm == nil {
			return false
		}
		for _, e := range d.cfsm.StateEdges(f.fsmState) {
			if e.Kind == fsm.EdgeByteRange && b >= e.Min && b <= e.Max {
				f.fsmState = e.To
				return true
			}
		}
		return false
	}

	r := d.g.RuleByID(f.rule)
	alts := d.g.ChoicesValue(r.Body)
	if f.altIdx == -1 {
		for ai, alt := range alts {
			if d.g.Kind(alt) == grammar.KindEmptyStr {
				continue
			}
			snapshot := *f
			f.altIdx = ai
			if d.matchElementByte(f, alts, b) {
				return true
			}
			*f = snapshot
		}
		return false
	}
	return d.matchElementByte(f, alts, b)
}

func (d *driver) matchElementByte(f *frame, alts []grammar.ExprID, b byte) bool {
	elems := d.g.SequenceValue(alts[f.altIdx])
	if f.elemIdx >= len(elems) {
		return false
	}
	eid := elems[f.elemIdx]

	if d.g.Kind(eid) == grammar.KindRepeat {
		_, min, _ := d.g.RepeatValue(eid)
		if f.repeatCount >= min && f.elemIdx+1 <= len(elems) {
			// Try treating the bound as satisfied and matching the next
			// element instead of unrolling another repetition (stop-early
			// reading of the quantifier; repeating is attempted afterwards
			// by descendRuleRef if this fails).
			snapshot := *f
			f.elemIdx++
			f.repeatCount = 0
			if f.elemIdx < len(elems) && d.matchElementByte(f, alts, b) {
				return true
			}
			*f = snapshot
		}
		return false
	}

	if d.g.Kind(eid) == grammar.KindRuleRef {
		return false // handled by descendRuleRef
	}

	if f.elemFSM == nil {
		built, ok := grammar.BuildSingleElementFSM(d.g, eid)
		if !ok {
			return false
		}
		f.elemFSM = built
		f.elemState = built.Start
	}
	for _, e := range f.elemFSM.States[f.elemState].Edges {
		if e.Kind == fsm.EdgeByteRange && b >= e.Min && b <= e.Max {
			f.elemState = e.To
			if d.g.Kind(eid) == grammar.KindCharacterClassStar {
				return true // self-loop state never advances elemIdx here
			}
			if f.elemFSM.States[f.elemState].Accept {
				f.elemFSM = nil
				f.elemState = 0
				f.elemIdx++
			}
			return true
		}
	}
	return false
}

// descendRuleRef pushes a child frame for a rule-ref reachable from the top
// frame without consuming a byte (either a rule-ref FSM edge, a RuleRef
// sequence element, or one more unrolling of a Repeat element), recording
// how to resume the parent once the child completes.
func (d *driver) descendRuleRef(idx int) bool {
	f := &d.stack[idx]
	if f.hasFSM {
		if d.cfsm == nil {
			return false
		}
		for _, e := range d.cfsm.StateEdges(f.fsmState) {
			if e.Kind == fsm.EdgeRule {
				child := newFrame(d.g, grammar.RuleID(e.Rule))
				child.hasReturn = true
				child.retFSM = true
				child.retFSMState = e.To
				d.stack = append(d.stack, child)
				return true
			}
		}
		return false
	}

	r := d.g.RuleByID(f.rule)
	alts := d.g.ChoicesValue(r.Body)
	if f.altIdx == -1 {
		// matchByte's undetermined-alt trial always restores altIdx to -1 on
		// failure, even when the failure was "this alt needs a descent, not
		// a byte", so an alt whose first element is a RuleRef/Repeat never
		// gets a chance there. Try each alt here the same way.
		for ai, alt := range alts {
			if d.g.Kind(alt) == grammar.KindEmptyStr {
				continue
			}
			f.altIdx = ai
			f.elemIdx = 0
			if d.descendElem(f, alts) {
				return true
			}
		}
		f.altIdx = -1
		f.elemIdx = 0
		return false
	}
	return d.descendElem(f, alts)
}

func (d *driver) descendElem(f *frame, alts []grammar.ExprID) bool {
	elems := d.g.SequenceValue(alts[f.altIdx])
	if f.elemIdx >= len(elems) {
		return false
	}
	eid := elems[f.elemIdx]

	switch d.g.Kind(eid) {
	case grammar.KindRuleRef:
		child := newFrame(d.g, d.g.RuleRefValue(eid))
		child.hasReturn = true
		child.retAltIdx = f.altIdx
		child.retElemIdx = f.elemIdx + 1
		d.stack = append(d.stack, child)
		return true
	case grammar.KindRepeat:
		target, _, max := d.g.RepeatValue(eid)
		if max != grammar.Unbounded && f.repeatCount >= max {
			return false
		}
		f.repeatCount++
		child := newFrame(d.g, target)
		child.hasReturn = true
		child.retAltIdx = f.altIdx
		child.retElemIdx = f.elemIdx // stay on the same Repeat element
		d.stack = append(d.stack, child)
		return true
	default:
		return false
	}
}
