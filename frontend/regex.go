package frontend

import (
	"fmt"

	"github.com/dlclark/regexp2"

	"github.com/jmorganca/xgrammar/grammar"
)

// CompileRegex lowers pattern to a grammar matching exactly the strings
// pattern matches, for a practical subset of regex syntax: literals, ".",
// bracket character classes (with ranges and negation), "*"/"+"/"?"/"{m,n}"
// quantifiers, alternation, and (non-)capturing groups. Anchors ("^", "$")
// are accepted but have no effect, since a compiled grammar always matches
// the whole token span anyway.
//
// pattern is first validated with regexp2 (the library model's BPE
// pre-tokenizer also depends on, _examples/ollama-ollama/model/bytepairencoding.go)
// so a syntactically invalid pattern is rejected before the hand-rolled
// lowering below runs.
func CompileRegex(pattern string) (*grammar.Grammar, error) {
	if _, err := regexp2.Compile(pattern, regexp2.RE2); err != nil {
		return nil, fmt.Errorf("frontend: invalid regex: %w", err)
	}

	b := grammar.NewBuilder()
	p := &regexParser{src: []rune(pattern), b: b}
	body := p.parseAlternation()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("frontend: regex: unexpected %q at %d", string(p.src[p.pos:]), p.pos)
	}
	root := b.AddRuleWithHint("root", body)
	b.SetRoot(root)
	return b.Grammar(), nil
}

type regexParser struct {
	src []rune
	pos int
	b   *grammar.Builder
}

func (p *regexParser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *regexParser) next() rune {
	r := p.peek()
	p.pos++
	return r
}

// parseAlternation = sequence ("|" sequence)* .
func (p *regexParser) parseAlternation() grammar.ExprID {
	alts := []grammar.ExprID{p.parseSequence()}
	for p.peek() == '|' {
		p.next()
		alts = append(alts, p.parseSequence())
	}
	if len(alts) == 1 {
		return alts[0]
	}
	return p.b.AddChoices(alts)
}

// parseSequence = quantified* .
func (p *regexParser) parseSequence() grammar.ExprID {
	var elems []grammar.ExprID
	for {
		c := p.peek()
		if c == 0 || c == '|' || c == ')' {
			break
		}
		if c == '^' || c == '$' {
			// Anchors have no effect: a compiled grammar always matches the
			// whole token span, so they're consumed and dropped rather than
			// lowered to an EmptyStr element (which a Sequence can't hold).
			p.next()
			continue
		}
		elems = append(elems, p.parseQuantified())
	}
	return p.b.AddSequence(elems)
}

// parseQuantified = atom ( "*" | "+" | "?" | "{" m ("," n?)? "}" )? .
func (p *regexParser) parseQuantified() grammar.ExprID {
	atom := p.parseAtom()
	switch p.peek() {
	case '*':
		p.next()
		return p.b.AddRepeat(p.ruleFor(atom), 0, grammar.Unbounded)
	case '+':
		p.next()
		return p.b.AddRepeat(p.ruleFor(atom), 1, grammar.Unbounded)
	case '?':
		p.next()
		return p.wrapGroup(p.b.AddChoices([]grammar.ExprID{
			p.b.AddEmptyStr(),
			p.b.AddSequence([]grammar.ExprID{atom}),
		}))
	case '{':
		save := p.pos
		p.next()
		min, _ := p.parseInt()
		max := min
		if p.peek() == ',' {
			p.next()
			if p.peek() == '}' {
				max = grammar.Unbounded
			} else if m, ok := p.parseInt(); ok {
				max = m
			}
		}
		if p.peek() == '}' {
			p.next()
			return p.b.AddRepeat(p.ruleFor(atom), min, max)
		}
		p.pos = save // not actually a repeat-count; treat '{' as a literal
	}
	return atom
}

func (p *regexParser) parseInt() (int, bool) {
	start := p.pos
	for p.peek() >= '0' && p.peek() <= '9' {
		p.next()
	}
	if p.pos == start {
		return 0, false
	}
	n := 0
	for _, r := range p.src[start:p.pos] {
		n = n*10 + int(r-'0')
	}
	return n, true
}

// ruleFor wraps atom (a Sequence-valid element) in a synthesized rule, since
// Repeat targets a RuleID rather than an arbitrary sub-expression.
func (p *regexParser) ruleFor(atom grammar.ExprID) grammar.RuleID {
	return p.b.AddRuleWithHint("re_group", p.b.AddSequence([]grammar.ExprID{atom}))
}

func (p *regexParser) wrapGroup(choices grammar.ExprID) grammar.ExprID {
	return p.b.AddRuleRef(p.b.AddRuleWithHint("re_group", choices))
}

// parseAtom = "." | "[" class "]" | "(" alternation ")" | escape | literal .
func (p *regexParser) parseAtom() grammar.ExprID {
	c := p.next()
	switch c {
	case '.':
		return p.b.AddCharacterClass([]grammar.ByteRange{{Lo: 0, Hi: 0xFF}}, false)
	case '(':
		if p.peek() == '?' {
			// Non-capturing group "(?:...)"; other "(?...)" forms
			// (lookaround, named groups) are not supported and are treated
			// the same as a plain group.
			save := p.pos
			p.next()
			if p.peek() == ':' {
				p.next()
			} else {
				p.pos = save
			}
		}
		inner := p.parseAlternation()
		if p.peek() == ')' {
			p.next()
		}
		return p.b.AddRuleRef(p.b.AddRuleWithHint("re_group", inner))
	case '[':
		return p.parseClass()
	case '\\':
		return p.parseEscape()
	default:
		return p.b.AddByteString([]byte(string(c)))
	}
}

func (p *regexParser) parseClass() grammar.ExprID {
	negated := false
	if p.peek() == '^' {
		negated = true
		p.next()
	}
	var ranges []grammar.ByteRange
	for p.peek() != ']' && p.peek() != 0 {
		lo := p.classChar()
		if p.peek() == '-' && !p.atClassEnd(1) {
			p.next()
			hi := p.classChar()
			ranges = append(ranges, grammar.ByteRange{Lo: lo, Hi: hi})
		} else {
			ranges = append(ranges, grammar.ByteRange{Lo: lo, Hi: lo})
		}
	}
	if p.peek() == ']' {
		p.next()
	}
	return p.b.AddCharacterClass(ranges, negated)
}

func (p *regexParser) atClassEnd(offset int) bool {
	i := p.pos + offset
	return i >= len(p.src) || p.src[i] == ']'
}

func (p *regexParser) classChar() int32 {
	c := p.next()
	if c == '\\' {
		return escapeByte(p.next())
	}
	return int32(c)
}

func (p *regexParser) parseEscape() grammar.ExprID {
	c := p.next()
	switch c {
	case 'd':
		return p.b.AddCharacterClass([]grammar.ByteRange{{Lo: '0', Hi: '9'}}, false)
	case 'D':
		return p.b.AddCharacterClass([]grammar.ByteRange{{Lo: '0', Hi: '9'}}, true)
	case 'w':
		return p.b.AddCharacterClass([]grammar.ByteRange{
			{Lo: 'a', Hi: 'z'}, {Lo: 'A', Hi: 'Z'}, {Lo: '0', Hi: '9'}, {Lo: '_', Hi: '_'},
		}, false)
	case 'W':
		return p.b.AddCharacterClass([]grammar.ByteRange{
			{Lo: 'a', Hi: 'z'}, {Lo: 'A', Hi: 'Z'}, {Lo: '0', Hi: '9'}, {Lo: '_', Hi: '_'},
		}, true)
	case 's':
		return p.b.AddCharacterClass([]grammar.ByteRange{
			{Lo: ' ', Hi: ' '}, {Lo: '\t', Hi: '\t'}, {Lo: '\n', Hi: '\n'}, {Lo: '\r', Hi: '\r'},
		}, false)
	case 'S':
		return p.b.AddCharacterClass([]grammar.ByteRange{
			{Lo: ' ', Hi: ' '}, {Lo: '\t', Hi: '\t'}, {Lo: '\n', Hi: '\n'}, {Lo: '\r', Hi: '\r'},
		}, true)
	default:
		return p.b.AddByteString([]byte{byte(escapeByte(c))})
	}
}

func escapeByte(c rune) int32 {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return int32(c)
	}
}
