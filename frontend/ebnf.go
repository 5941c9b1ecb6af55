// Package frontend implements the five front ends of spec.md §6's external
// interface: CompileEBNF, CompileJSONSchema, CompileRegex, CompileStructuralTag,
// and CompileBuiltinJSONGrammar, each producing a grammar.Grammar IR instance.
package frontend

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/ebnf"

	"github.com/jmorganca/xgrammar/grammar"
)

// CompileEBNF parses text as an EBNF grammar (golang.org/x/exp/ebnf's dialect:
// quoted literal tokens, "a" … "z" character ranges, "|" alternation, "( )"
// grouping, "[ ]" optionality, "{ }" zero-or-more repetition) and lowers it to
// a grammar.Grammar rooted at rootRule.
func CompileEBNF(text, rootRule string) (*grammar.Grammar, error) {
	g, err := ebnf.Parse("grammar.ebnf", strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("frontend: parse ebnf: %w", err)
	}
	if err := ebnf.Verify(g, rootRule); err != nil {
		return nil, fmt.Errorf("frontend: verify ebnf: %w", err)
	}

	b := grammar.NewBuilder()

	// Names sorted for deterministic rule ordering (Property 7, idempotence).
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make(map[string]grammar.RuleID, len(names))
	for _, name := range names {
		rules[name] = b.AddEmptyRule(name)
	}

	l := &ebnfLowerer{b: b, rules: rules}
	for _, name := range names {
		body := l.lowerTopLevel(g[name].Expr)
		b.UpdateRuleBody(rules[name], body)
	}

	root, ok := rules[rootRule]
	if !ok {
		return nil, fmt.Errorf("frontend: root rule %q not found", rootRule)
	}
	b.SetRoot(root)
	return b.Grammar(), nil
}

// ebnfLowerer walks an ebnf.Expression tree, emitting grammar.Builder calls.
// Composite shapes with no direct IR equivalent (Group/Option/Repetition) are
// flattened into a synthesized "group" rule plus a RuleRef/Repeat element,
// the same shape the normalizer (C3) would itself reduce nested composites
// to — so the output is already in the normal form C5's FSM builder expects.
type ebnfLowerer struct {
	b     *grammar.Builder
	rules map[string]grammar.RuleID
}

// lowerTopLevel lowers a production's right-hand side (or any nested
// expression standing in for one) into a Choices node.
func (l *ebnfLowerer) lowerTopLevel(e ebnf.Expression) grammar.ExprID {
	var alts []ebnf.Expression
	if alt, ok := e.(ebnf.Alternative); ok {
		alts = alt
	} else {
		alts = []ebnf.Expression{e}
	}
	seqs := make([]grammar.ExprID, len(alts))
	for i, a := range alts {
		seqs[i] = l.lowerSequence(a)
	}
	return l.b.AddChoices(seqs)
}

// lowerSequence lowers e (already inside one alternative) into a single
// Sequence (or EmptyStr) node.
func (l *ebnfLowerer) lowerSequence(e ebnf.Expression) grammar.ExprID {
	switch x := e.(type) {
	case ebnf.Sequence:
		elems := make([]grammar.ExprID, len(x))
		for i, sub := range x {
			elems[i] = l.lowerElement(sub)
		}
		return l.b.AddSequence(elems)
	case nil:
		return l.b.AddEmptyStr()
	default:
		return l.b.AddSequence([]grammar.ExprID{l.lowerElement(e)})
	}
}

// lowerElement lowers one sequence element to an ExprID valid inside a
// Sequence (ByteString, CharacterClass(Star), RuleRef, or Repeat).
func (l *ebnfLowerer) lowerElement(e ebnf.Expression) grammar.ExprID {
	switch x := e.(type) {
	case *ebnf.Token:
		return l.b.AddByteString([]byte(unquoteToken(x.String)))
	case *ebnf.Range:
		lo := []byte(unquoteToken(x.Begin.String))
		hi := []byte(unquoteToken(x.End.String))
		if len(lo) == 1 && len(hi) == 1 {
			return l.b.AddCharacterClass([]grammar.ByteRange{{Lo: int32(lo[0]), Hi: int32(hi[0])}}, false)
		}
		// A multi-byte range endpoint isn't expressible by a single
		// CharacterClass range; fall back to a two-alternative choice rule
		// over the literal endpoints.
		seqs := []grammar.ExprID{
			l.b.AddSequence([]grammar.ExprID{l.b.AddByteString(lo)}),
			l.b.AddSequence([]grammar.ExprID{l.b.AddByteString(hi)}),
		}
		return l.b.AddRuleRef(l.b.AddRuleWithHint("range", l.b.AddChoices(seqs)))
	case *ebnf.Name:
		rid, ok := l.rules[x.String]
		if !ok {
			rid = l.b.AddEmptyRule(x.String)
			l.rules[x.String] = rid
		}
		return l.b.AddRuleRef(rid)
	case *ebnf.Group:
		return l.groupRuleRef(x.Body)
	case *ebnf.Option:
		bodyChoices := l.lowerTopLevel(x.Body)
		bodyRule := l.b.AddRuleWithHint("group", bodyChoices)
		optChoices := l.b.AddChoices([]grammar.ExprID{
			l.b.AddEmptyStr(),
			l.b.AddSequence([]grammar.ExprID{l.b.AddRuleRef(bodyRule)}),
		})
		return l.b.AddRuleRef(l.b.AddRuleWithHint("opt", optChoices))
	case *ebnf.Repetition:
		bodyChoices := l.lowerTopLevel(x.Body)
		bodyRule := l.b.AddRuleWithHint("group", bodyChoices)
		return l.b.AddRepeat(bodyRule, 0, grammar.Unbounded)
	case ebnf.Alternative:
		return l.groupRuleRef(x)
	default:
		// Unrecognized node (e.g. ebnf.Bad): an empty match rather than a
		// panic, so one malformed production doesn't take down the compile.
		return l.b.AddEmptyStr()
	}
}

// groupRuleRef synthesizes a "group" rule from body's Choices lowering and
// returns a RuleRef element pointing at it.
func (l *ebnfLowerer) groupRuleRef(body ebnf.Expression) grammar.ExprID {
	choices := l.lowerTopLevel(body)
	return l.b.AddRuleRef(l.b.AddRuleWithHint("group", choices))
}

func unquoteToken(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}
