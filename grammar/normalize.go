package grammar

import (
	"fmt"
	"log/slog"
)

// Normalize rewrites g in place to the canonical shape required by spec.md
// §4.3: every rule body becomes Choices(Sequence(elt)*), optionally leading
// with EmptyStr, or a TagDispatch; lookahead assertions are always flat
// Sequence(elt)* (never Choices/EmptyStr/TagDispatch); nested TagDispatch is
// lifted to a fresh rule; nested Choices are flattened.
//
// Dispatch is a plain type switch over Kind rather than a double-dispatched
// visitor, per spec.md §9's re-architecture guidance.
func Normalize(b *Builder) error {
	n := &normalizer{b: b, g: b.g}
	// Rules are appended to during lifting; iterate by index so newly
	// appended rules are visited too.
	for i := 0; i < len(n.g.Rules); i++ {
		rid := RuleID(i)
		body := n.g.Rules[rid].Body
		if body == NoExprID {
			continue
		}
		newBody, err := n.normalizeRuleBody(rid, body)
		if err != nil {
			return err
		}
		n.g.Rules[rid].Body = newBody

		if la := n.g.Rules[rid].LookaheadAssertion; la != NoExprID {
			flat, err := n.normalizeLookahead(rid, la)
			if err != nil {
				return err
			}
			n.g.Rules[rid].LookaheadAssertion = flat
		}
	}
	return nil
}

type normalizer struct {
	b *Builder
	g *Grammar
}

// normalizeRuleBody produces Choices(Sequence*) or TagDispatch for a rule
// body expressed in any pre-normalization shape.
func (n *normalizer) normalizeRuleBody(owner RuleID, id ExprID) (ExprID, error) {
	switch n.g.Kind(id) {
	case KindTagDispatch:
		return id, nil
	case KindChoices:
		return n.normalizeChoices(owner, id)
	case KindSequence:
		seq, err := n.normalizeSequence(owner, id)
		if err != nil {
			return 0, err
		}
		return n.b.AddChoices([]ExprID{seq}), nil
	case KindEmptyStr:
		return n.b.AddChoices([]ExprID{id}), nil
	default:
		// A single element (ByteString/CharacterClass(Star)/RuleRef/Repeat)
		// used directly as a rule body: Choices(Sequence(x)) collapses to
		// Choices(x) per the "single-element-expression elimination" rule,
		// so wrap it as a one-element sequence then as the sole choice.
		seq := n.b.AddSequence([]ExprID{id})
		return n.b.AddChoices([]ExprID{seq}), nil
	}
}

// normalizeChoices flattens nested Choices and lifts nested TagDispatch.
func (n *normalizer) normalizeChoices(owner RuleID, id ExprID) (ExprID, error) {
	var out []ExprID
	leadingEmpty := false

	var walk func(ExprID) error
	walk = func(cid ExprID) error {
		for i, alt := range n.g.ChoicesValue(cid) {
			switch n.g.Kind(alt) {
			case KindEmptyStr:
				if i == 0 {
					leadingEmpty = true
				}
				continue
			case KindChoices:
				// Nested choices flatten; their own leading EmptyStr
				// collapses into the enclosing nullability flag.
				if err := walk(alt); err != nil {
					return err
				}
			case KindSequence:
				seq, err := n.normalizeSequence(owner, alt)
				if err != nil {
					return err
				}
				out = append(out, seq)
			default:
				seq, err := n.liftSingleElement(owner, alt)
				if err != nil {
					return err
				}
				out = append(out, seq)
			}
		}
		return nil
	}
	if err := walk(id); err != nil {
		return 0, err
	}

	if leadingEmpty {
		out = append([]ExprID{n.b.AddEmptyStr()}, out...)
	}
	return n.b.AddChoices(out), nil
}

// liftSingleElement lifts a bare element that appeared directly as a choice
// alternative into a one-element Sequence, lifting any nested TagDispatch
// it contains first.
func (n *normalizer) liftSingleElement(owner RuleID, id ExprID) (ExprID, error) {
	lifted, err := n.liftNestedTagDispatch(owner, id)
	if err != nil {
		return 0, err
	}
	return n.b.AddSequence([]ExprID{lifted}), nil
}

// normalizeSequence lifts any nested TagDispatch elements within seq to
// freshly named rules (replaced by RuleRef), using owner's name as the
// naming prefix. EmptyStr elements are dropped and nested Sequence elements
// are spliced in place, so the result holds only elements.
func (n *normalizer) normalizeSequence(owner RuleID, id ExprID) (ExprID, error) {
	elems := n.g.SequenceValue(id)
	newElems := make([]ExprID, 0, len(elems))
	for _, e := range elems {
		switch n.g.Kind(e) {
		case KindEmptyStr:
			continue
		case KindSequence:
			inner, err := n.normalizeSequence(owner, e)
			if err != nil {
				return 0, err
			}
			newElems = append(newElems, n.g.SequenceValue(inner)...)
			continue
		}
		lifted, err := n.liftNestedTagDispatch(owner, e)
		if err != nil {
			return 0, err
		}
		newElems = append(newElems, lifted)
	}
	return n.b.AddSequence(newElems), nil
}

func (n *normalizer) liftNestedTagDispatch(owner RuleID, id ExprID) (ExprID, error) {
	if n.g.Kind(id) != KindTagDispatch {
		return id, nil
	}
	name := fmt.Sprintf("%s_tag", n.g.Rules[owner].Name)
	rid := n.b.AddRuleWithHint(name, id)
	slog.Debug("lifted nested tag dispatch to rule", "owner", n.g.Rules[owner].Name, "rule", n.g.Rules[rid].Name)
	return n.b.AddRuleRef(rid), nil
}

// normalizeLookahead enforces that lookahead assertions are flat
// Sequence(elt)*: Choices/EmptyStr/TagDispatch are rejected per spec.md §4.3.
func (n *normalizer) normalizeLookahead(owner RuleID, id ExprID) (ExprID, error) {
	switch n.g.Kind(id) {
	case KindSequence:
		return n.normalizeSequence(owner, id)
	case KindChoices, KindEmptyStr, KindTagDispatch:
		return 0, &InvalidGrammarError{
			Reason: fmt.Sprintf("rule %q: lookahead assertion must be Sequence(elt)*, got %s", n.g.Rules[owner].Name, n.g.Kind(id)),
		}
	default:
		return n.b.AddSequence([]ExprID{id}), nil
	}
}

// InvalidGrammarError reports a front-end-produced IR that violates §3's
// invariants after normalization.
type InvalidGrammarError struct {
	Reason string
}

func (e *InvalidGrammarError) Error() string {
	return fmt.Sprintf("invalid grammar: %s", e.Reason)
}
