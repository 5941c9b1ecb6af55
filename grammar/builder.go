package grammar

import (
	"fmt"
	"strings"
)

// Builder accumulates rules and expressions into a Grammar under
// construction. Literal nodes (ByteString, CharacterClass(Star), EmptyStr)
// are deduplicated by structural equality; composite nodes are not required
// to dedupe, matching spec.md §4.1.
//
// The dedup table and the rule-name-uniqueness counter play the role the
// teacher's grammar.builder plays for its own EBNF-text emission (define/q/u):
// here we append typed arena nodes instead of writing text.
type Builder struct {
	g *Grammar

	literalIndex map[string]ExprID
	nameCounts   map[string]int
}

// NewBuilder starts a new, empty grammar.
func NewBuilder() *Builder {
	return &Builder{
		g:            &Grammar{Root: NoRuleID},
		literalIndex: make(map[string]ExprID),
		nameCounts:   make(map[string]int),
	}
}

// Grammar returns the grammar built so far. The returned pointer remains
// valid and mutable through further Builder calls.
func (b *Builder) Grammar() *Grammar { return b.g }

// WrapBuilder returns a Builder over an already-built Grammar (e.g. one
// returned by a frontend Compile* call), so Normalize/Optimize can append
// further rules/exprs to it. The literal-dedup table and rule-name counters
// are seeded from g's existing contents so further Add* calls stay
// consistent with what's already there.
func WrapBuilder(g *Grammar) *Builder {
	b := &Builder{
		g:            g,
		literalIndex: make(map[string]ExprID),
		nameCounts:   make(map[string]int),
	}
	for id := range g.exprs {
		e := &g.exprs[id]
		switch e.kind {
		case KindEmptyStr:
			b.recordLiteral(KindEmptyStr, false, nil, nil, ExprID(id))
		case KindByteString:
			b.recordLiteral(KindByteString, false, e.bytes, nil, ExprID(id))
		case KindCharacterClass:
			b.recordLiteral(KindCharacterClass, e.negated, nil, e.ranges, ExprID(id))
		case KindCharacterClassStar:
			b.recordLiteral(KindCharacterClassStar, e.negated, nil, e.ranges, ExprID(id))
		}
	}
	for i := range g.Rules {
		b.nameCounts[g.Rules[i].Name]++
	}
	return b
}

func (b *Builder) add(e expr) ExprID {
	id := ExprID(len(b.g.exprs))
	b.g.exprs = append(b.g.exprs, e)
	return id
}

func literalKey(kind Kind, negated bool, bytesVal []byte, ranges []ByteRange) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%v|", kind, negated)
	sb.Write(bytesVal)
	for _, r := range ranges {
		fmt.Fprintf(&sb, "|%d-%d", r.Lo, r.Hi)
	}
	return sb.String()
}

func (b *Builder) dedupLiteral(kind Kind, negated bool, bytesVal []byte, ranges []ByteRange) (ExprID, bool) {
	key := literalKey(kind, negated, bytesVal, ranges)
	if id, ok := b.literalIndex[key]; ok {
		return id, true
	}
	return 0, false
}

func (b *Builder) recordLiteral(kind Kind, negated bool, bytesVal []byte, ranges []ByteRange, id ExprID) {
	key := literalKey(kind, negated, bytesVal, ranges)
	b.literalIndex[key] = id
}

// AddEmptyStr returns (creating once) the EmptyStr node.
func (b *Builder) AddEmptyStr() ExprID {
	if id, ok := b.dedupLiteral(KindEmptyStr, false, nil, nil); ok {
		return id
	}
	id := b.add(expr{kind: KindEmptyStr})
	b.recordLiteral(KindEmptyStr, false, nil, nil, id)
	return id
}

// AddByteString adds (or reuses) a literal byte-string node.
func (b *Builder) AddByteString(bs []byte) ExprID {
	cp := append([]byte(nil), bs...)
	if id, ok := b.dedupLiteral(KindByteString, false, cp, nil); ok {
		return id
	}
	id := b.add(expr{kind: KindByteString, bytes: cp})
	b.recordLiteral(KindByteString, false, cp, nil, id)
	return id
}

// AddCharacterClass adds (or reuses) a character-class node.
func (b *Builder) AddCharacterClass(ranges []ByteRange, negated bool) ExprID {
	cp := append([]ByteRange(nil), ranges...)
	if id, ok := b.dedupLiteral(KindCharacterClass, negated, nil, cp); ok {
		return id
	}
	id := b.add(expr{kind: KindCharacterClass, negated: negated, ranges: cp})
	b.recordLiteral(KindCharacterClass, negated, nil, cp, id)
	return id
}

// AddCharacterClassStar adds (or reuses) a Kleene-star character-class node.
func (b *Builder) AddCharacterClassStar(ranges []ByteRange, negated bool) ExprID {
	cp := append([]ByteRange(nil), ranges...)
	if id, ok := b.dedupLiteral(KindCharacterClassStar, negated, nil, cp); ok {
		return id
	}
	id := b.add(expr{kind: KindCharacterClassStar, negated: negated, ranges: cp})
	b.recordLiteral(KindCharacterClassStar, negated, nil, cp, id)
	return id
}

// AddRuleRef adds a reference to rule. Composite nodes are not deduplicated.
func (b *Builder) AddRuleRef(rule RuleID) ExprID {
	return b.add(expr{kind: KindRuleRef, ruleRef: rule})
}

// AddRepeat adds a Repeat(rule, min, max) node. max == Unbounded means unbounded.
func (b *Builder) AddRepeat(rule RuleID, min, max int) ExprID {
	return b.add(expr{kind: KindRepeat, ruleRef: rule, min: min, max: max})
}

// AddSequence adds an ordered sequence of expression ids.
func (b *Builder) AddSequence(ids []ExprID) ExprID {
	return b.add(expr{kind: KindSequence, ids: append([]ExprID(nil), ids...)})
}

// AddChoices adds an ordered list of sequence-or-emptystr alternative ids.
func (b *Builder) AddChoices(seqIDs []ExprID) ExprID {
	return b.add(expr{kind: KindChoices, ids: append([]ExprID(nil), seqIDs...)})
}

// AddTagDispatch adds a TagDispatch macro node.
func (b *Builder) AddTagDispatch(td TagDispatch) ExprID {
	cp := td
	cp.Tags = append([]TagRule(nil), td.Tags...)
	cp.StopStrs = append([]string(nil), td.StopStrs...)
	cp.ExcludeStrs = append([]string(nil), td.ExcludeStrs...)
	return b.add(expr{kind: KindTagDispatch, tagDispatch: &cp})
}

// AddEmptyRule declares a new rule named name with no body yet (UpdateRuleBody
// must be called before the grammar is used). Returns the rule's id.
func (b *Builder) AddEmptyRule(name string) RuleID {
	id := RuleID(len(b.g.Rules))
	b.g.Rules = append(b.g.Rules, Rule{
		Name:               name,
		Body:               NoExprID,
		LookaheadAssertion: NoExprID,
	})
	b.nameCounts[name]++
	return id
}

// AddRuleWithHint declares a new rule whose body is body, with a name derived
// from namePrefix, made unique by appending a deterministic counter suffix
// when namePrefix collides with an existing rule name. Determinism (rather
// than e.g. a random/UUID suffix) is required for Property 7 (idempotence).
func (b *Builder) AddRuleWithHint(namePrefix string, body ExprID) RuleID {
	name := namePrefix
	if n := b.nameCounts[namePrefix]; n > 0 {
		name = fmt.Sprintf("%s_%d", namePrefix, n)
	}
	b.nameCounts[namePrefix]++

	id := RuleID(len(b.g.Rules))
	b.g.Rules = append(b.g.Rules, Rule{
		Name:               name,
		Body:               body,
		LookaheadAssertion: NoExprID,
	})
	return id
}

// UpdateRuleBody replaces rule's body expression.
func (b *Builder) UpdateRuleBody(rule RuleID, body ExprID) {
	b.g.Rules[rule].Body = body
}

// UpdateLookaheadAssertion sets rule's lookahead-assertion expression (must be
// a Sequence(elt)* per spec.md §4.3; the normalizer enforces this).
func (b *Builder) UpdateLookaheadAssertion(rule RuleID, assertion ExprID) {
	b.g.Rules[rule].LookaheadAssertion = assertion
}

// UpdateLookaheadExact sets rule's is_exact_lookahead flag.
func (b *Builder) UpdateLookaheadExact(rule RuleID, exact bool) {
	b.g.Rules[rule].IsExactLookahead = exact
}

// SetRoot designates rule as the grammar's root rule.
func (b *Builder) SetRoot(rule RuleID) {
	b.g.Root = rule
}
