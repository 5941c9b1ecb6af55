// Package grammar implements the grammar intermediate representation (IR):
// an arena-and-index store for rules and rule-body expressions, plus the
// normalizer and optimizer passes that lower a raw IR into the canonical
// shape the FSM builder and mask compiler expect.
package grammar

import (
	"fmt"

	"github.com/jmorganca/xgrammar/fsm"
)

// RuleID identifies a rule within a Grammar's rule table.
type RuleID int32

// ExprID identifies an expression node within a Grammar's expression arena.
type ExprID int32

// NoRuleID is the sentinel "no rule" value, used where a rule reference is
// optional (e.g. a rule with no lookahead assertion).
const NoRuleID RuleID = -1

// NoExprID is the sentinel "no expression" value.
const NoExprID ExprID = -1

// Unbounded marks a Repeat's max as unbounded ("infinity").
const Unbounded = -1

// Kind tags the variant of an expression node.
type Kind uint8

const (
	KindEmptyStr Kind = iota
	KindByteString
	KindCharacterClass
	KindCharacterClassStar
	KindRuleRef
	KindRepeat
	KindSequence
	KindChoices
	KindTagDispatch
)

func (k Kind) String() string {
	switch k {
	case KindEmptyStr:
		return "EmptyStr"
	case KindByteString:
		return "ByteString"
	case KindCharacterClass:
		return "CharacterClass"
	case KindCharacterClassStar:
		return "CharacterClassStar"
	case KindRuleRef:
		return "RuleRef"
	case KindRepeat:
		return "Repeat"
	case KindSequence:
		return "Sequence"
	case KindChoices:
		return "Choices"
	case KindTagDispatch:
		return "TagDispatch"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ByteRange is an inclusive [Lo,Hi] range of codepoints (or raw bytes, for
// already-byte-level classes).
type ByteRange struct {
	Lo, Hi int32
}

// TagRule pairs a literal tag string with the rule it dispatches to.
type TagRule struct {
	Tag    string
	RuleID RuleID
}

// TagDispatch is the payload of a KindTagDispatch expression.
type TagDispatch struct {
	Tags             []TagRule
	StopEOS          bool
	StopStrs         []string
	LoopAfterDispatch bool
	ExcludeStrs      []string
}

// expr is the tagged-union payload for one arena slot. Only the fields
// relevant to Kind are meaningful; this mirrors the teacher's preference for
// a small set of plain structs over a double-dispatch visitor hierarchy.
type expr struct {
	kind Kind

	// ByteString
	bytes []byte

	// CharacterClass / CharacterClassStar
	negated bool
	ranges  []ByteRange

	// RuleRef / Repeat (ruleRef also used as Repeat's target)
	ruleRef RuleID
	min     int
	max     int // Unbounded == -1

	// Sequence / Choices
	ids []ExprID

	// TagDispatch
	tagDispatch *TagDispatch
}

// Rule is one named production.
type Rule struct {
	Name                string
	Body                ExprID
	LookaheadAssertion  ExprID // NoExprID if none
	IsExactLookahead    bool

	// Filled in by later stages (C4/C5/C6); zero values mean "not yet computed".
	FSM          *CompiledFSM
	FSMHash      uint64
	HasFSMHash   bool
	Renumbering  map[int]int // standalone-FSM state id -> BFS canonical id (set by HashFSMs)
}

// CompiledFSM is a narrow read-only view of a compiled automaton: its start
// state and accepting states. Rule.FSM holds the per-rule handle BuildFSMs
// creates (state ids in the complete FSM's numbering); Grammar.CompleteFSM
// holds the *fsm.CompactFSM itself.
type CompiledFSM interface {
	Start() int
	Ends() []int
}

// Grammar owns an ordered list of rules and a shared expression arena.
type Grammar struct {
	Rules []Rule
	exprs []expr

	Root RuleID

	// AllowEmptyRuleIDs is filled in by the empty-rule analysis pass (C4 step 5),
	// stored sorted ascending.
	AllowEmptyRuleIDs []RuleID

	// CompleteFSM is assembled by the per-rule FSM builder (C5) once every
	// rule's FSM has been added to a shared state pool.
	CompleteFSM CompiledFSM

	// fsmsByRule holds each rule's standalone (pre-merge) automaton, keyed by
	// rule id, set by BuildFSMs and consumed by HashFSMs. A rule absent from
	// this map had no FSM built for it (spec.md §4.5's "left empty" fallback).
	fsmsByRule map[RuleID]*fsm.FSM
}

func (g *Grammar) expr(id ExprID) *expr {
	return &g.exprs[id]
}

// Kind returns the expression kind for id.
func (g *Grammar) Kind(id ExprID) Kind { return g.exprs[id].kind }

// ByteStringValue returns the byte payload of a ByteString node.
func (g *Grammar) ByteStringValue(id ExprID) []byte { return g.exprs[id].bytes }

// CharacterClassValue returns the ranges and negation flag of a
// CharacterClass/CharacterClassStar node.
func (g *Grammar) CharacterClassValue(id ExprID) (ranges []ByteRange, negated bool) {
	e := g.expr(id)
	return e.ranges, e.negated
}

// RuleRefValue returns the target rule of a RuleRef node.
func (g *Grammar) RuleRefValue(id ExprID) RuleID { return g.exprs[id].ruleRef }

// RepeatValue returns the target rule and bounds of a Repeat node.
func (g *Grammar) RepeatValue(id ExprID) (rule RuleID, min, max int) {
	e := g.expr(id)
	return e.ruleRef, e.min, e.max
}

// SequenceValue returns the element ids of a Sequence node.
func (g *Grammar) SequenceValue(id ExprID) []ExprID { return g.exprs[id].ids }

// ChoicesValue returns the choice ids of a Choices node.
func (g *Grammar) ChoicesValue(id ExprID) []ExprID { return g.exprs[id].ids }

// TagDispatchValue returns the payload of a TagDispatch node.
func (g *Grammar) TagDispatchValue(id ExprID) *TagDispatch { return g.exprs[id].tagDispatch }

// RuleByID returns a pointer to the rule's stored record so callers (e.g. C4,
// C5, C6) can update FSM/hash fields in place.
func (g *Grammar) RuleByID(id RuleID) *Rule { return &g.Rules[id] }

// IsNullableChoices reports whether a Choices node's first alternative is
// EmptyStr, per spec.md §3's "first element is EmptyStr iff nullable" rule.
func (g *Grammar) IsNullableChoices(id ExprID) bool {
	ids := g.ChoicesValue(id)
	return len(ids) > 0 && g.Kind(ids[0]) == KindEmptyStr
}
