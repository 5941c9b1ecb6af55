package frontend

import "github.com/jmorganca/xgrammar/grammar"

// BuiltinJSONGrammarEBNF is the RFC 7159 JSON grammar text CompileBuiltinJSONGrammar
// builds directly (see that function's doc comment for why it isn't routed
// through CompileEBNF). Kept for documentation and for callers that want to
// feed it to their own EBNF tooling.
const BuiltinJSONGrammarEBNF = `
root       = value .
value      = object | array | string | number | "true" | "false" | "null" .
object     = "{" ws ( member { "," ws member } )? ws "}" .
member     = string ws ":" ws value .
array      = "[" ws ( value ws { "," ws value ws } )? "]" .
string     = "\"" { unescaped | escape } "\"" .
unescaped  = ? any byte except '"', '\', and control characters < 0x20 ? .
escape     = "\\" ( "\"" | "\\" | "/" | "b" | "f" | "n" | "r" | "t" | "u" hex hex hex hex ) .
hex        = "0" … "9" | "a" … "f" | "A" … "F" .
number     = "-"? int frac? exp? .
int        = "0" | "1" … "9" { "0" … "9" } .
frac       = "." "0" … "9" { "0" … "9" } .
exp        = ( "e" | "E" ) ( "+" | "-" )? "0" … "9" { "0" … "9" } .
ws         = { " " | "\t" | "\n" | "\r" } .
`

// CompileBuiltinJSONGrammar returns the precompiled RFC 7159 JSON grammar
// (spec.md §6).
//
// This is built directly via grammar.Builder calls rather than piped through
// CompileEBNF: golang.org/x/exp/ebnf's dialect supports only quoted tokens and
// "a" … "z" ranges, with no bracket character classes and no repeat-count
// shorthand, so BuiltinJSONGrammarEBNF's hex/escape productions (and the
// broader grammar this mirrors) cannot round-trip through that parser. The
// rule shapes below follow BuiltinJSONGrammarEBNF one-for-one.
func CompileBuiltinJSONGrammar() (*grammar.Grammar, error) {
	b := grammar.NewBuilder()

	digit := []grammar.ByteRange{{Lo: '0', Hi: '9'}}
	nonzero := []grammar.ByteRange{{Lo: '1', Hi: '9'}}
	hexRanges := []grammar.ByteRange{{Lo: '0', Hi: '9'}, {Lo: 'a', Hi: 'f'}, {Lo: 'A', Hi: 'F'}}
	wsRanges := []grammar.ByteRange{{Lo: ' ', Hi: ' '}, {Lo: '\t', Hi: '\t'}, {Lo: '\n', Hi: '\n'}, {Lo: '\r', Hi: '\r'}}
	unescapedRanges := []grammar.ByteRange{{Lo: 0x20, Hi: 0x21}, {Lo: 0x23, Hi: 0x5B}, {Lo: 0x5D, Hi: 0xFF}}

	wsElem := b.AddCharacterClassStar(wsRanges, false)

	root := b.AddEmptyRule("root")
	value := b.AddEmptyRule("value")
	object := b.AddEmptyRule("object")
	member := b.AddEmptyRule("member")
	memberRest := b.AddEmptyRule("member_rest")
	array := b.AddEmptyRule("array")
	arrayRest := b.AddEmptyRule("array_rest")
	str := b.AddEmptyRule("string")
	char := b.AddEmptyRule("char")
	number := b.AddEmptyRule("number")
	intPart := b.AddEmptyRule("int")
	fracPart := b.AddEmptyRule("frac")
	expPart := b.AddEmptyRule("exp")

	// value = object | array | string | number | "true" | "false" | "null" .
	b.UpdateRuleBody(value, b.AddChoices([]grammar.ExprID{
		b.AddSequence([]grammar.ExprID{b.AddRuleRef(object)}),
		b.AddSequence([]grammar.ExprID{b.AddRuleRef(array)}),
		b.AddSequence([]grammar.ExprID{b.AddRuleRef(str)}),
		b.AddSequence([]grammar.ExprID{b.AddRuleRef(number)}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("true"))}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("false"))}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("null"))}),
	}))

	// member = string ws ":" ws value .
	b.UpdateRuleBody(member, b.AddSequence([]grammar.ExprID{
		b.AddRuleRef(str), wsElem, b.AddByteString([]byte(":")), wsElem, b.AddRuleRef(value),
	}))
	// member_rest = "," ws member .
	b.UpdateRuleBody(memberRest, b.AddSequence([]grammar.ExprID{
		b.AddByteString([]byte(",")), wsElem, b.AddRuleRef(member),
	}))
	// object = "{" ws ( member member_rest* )? ws "}" .
	objBody := b.AddChoices([]grammar.ExprID{
		b.AddEmptyStr(),
		b.AddSequence([]grammar.ExprID{b.AddRuleRef(member), b.AddRepeat(memberRest, 0, grammar.Unbounded)}),
	})
	b.UpdateRuleBody(object, b.AddSequence([]grammar.ExprID{
		b.AddByteString([]byte("{")), wsElem, b.AddRuleRef(b.AddRuleWithHint("object_body", objBody)), wsElem, b.AddByteString([]byte("}")),
	}))

	// array_rest = "," ws value .
	b.UpdateRuleBody(arrayRest, b.AddSequence([]grammar.ExprID{
		b.AddByteString([]byte(",")), wsElem, b.AddRuleRef(value),
	}))
	// array = "[" ws ( value array_rest* )? ws "]" .
	arrBody := b.AddChoices([]grammar.ExprID{
		b.AddEmptyStr(),
		b.AddSequence([]grammar.ExprID{b.AddRuleRef(value), b.AddRepeat(arrayRest, 0, grammar.Unbounded)}),
	})
	b.UpdateRuleBody(array, b.AddSequence([]grammar.ExprID{
		b.AddByteString([]byte("[")), wsElem, b.AddRuleRef(b.AddRuleWithHint("array_body", arrBody)), wsElem, b.AddByteString([]byte("]")),
	}))

	// char = unescaped | "\\" ( <simple escapes> | "u" hex hex hex hex ) .
	unicodeEscape := b.AddSequence([]grammar.ExprID{
		b.AddByteString([]byte("u")),
		b.AddCharacterClass(hexRanges, false),
		b.AddCharacterClass(hexRanges, false),
		b.AddCharacterClass(hexRanges, false),
		b.AddCharacterClass(hexRanges, false),
	})
	simpleEscapes := b.AddChoices([]grammar.ExprID{
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte(`"`))}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte(`\`))}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("/"))}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("b"))}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("f"))}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("n"))}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("r"))}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("t"))}),
		unicodeEscape,
	})
	b.UpdateRuleBody(char, b.AddChoices([]grammar.ExprID{
		b.AddSequence([]grammar.ExprID{b.AddCharacterClass(unescapedRanges, false)}),
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte(`\`)), b.AddRuleRef(b.AddRuleWithHint("escape_body", simpleEscapes))}),
	}))

	// string = "\"" char* "\"" .
	b.UpdateRuleBody(str, b.AddSequence([]grammar.ExprID{
		b.AddByteString([]byte(`"`)), b.AddRepeat(char, 0, grammar.Unbounded), b.AddByteString([]byte(`"`)),
	}))

	// int = "0" | "1"…"9" digit* .
	b.UpdateRuleBody(intPart, b.AddChoices([]grammar.ExprID{
		b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("0"))}),
		b.AddSequence([]grammar.ExprID{b.AddCharacterClass(nonzero, false), b.AddCharacterClassStar(digit, false)}),
	}))
	// frac = "." digit digit* .
	b.UpdateRuleBody(fracPart, b.AddSequence([]grammar.ExprID{
		b.AddByteString([]byte(".")), b.AddCharacterClass(digit, false), b.AddCharacterClassStar(digit, false),
	}))
	// exp = ("e"|"E") ("+"|"-")? digit digit* .
	expSign := b.AddChoices([]grammar.ExprID{
		b.AddEmptyStr(),
		b.AddSequence([]grammar.ExprID{b.AddCharacterClass([]grammar.ByteRange{{Lo: '+', Hi: '+'}, {Lo: '-', Hi: '-'}}, false)}),
	})
	b.UpdateRuleBody(expPart, b.AddSequence([]grammar.ExprID{
		b.AddCharacterClass([]grammar.ByteRange{{Lo: 'e', Hi: 'e'}, {Lo: 'E', Hi: 'E'}}, false),
		b.AddRuleRef(b.AddRuleWithHint("exp_sign", expSign)),
		b.AddCharacterClass(digit, false), b.AddCharacterClassStar(digit, false),
	}))
	// number = "-"? int frac? exp? .
	optFrac := b.AddChoices([]grammar.ExprID{b.AddEmptyStr(), b.AddSequence([]grammar.ExprID{b.AddRuleRef(fracPart)})})
	optExp := b.AddChoices([]grammar.ExprID{b.AddEmptyStr(), b.AddSequence([]grammar.ExprID{b.AddRuleRef(expPart)})})
	optMinus := b.AddChoices([]grammar.ExprID{b.AddEmptyStr(), b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("-"))})})
	b.UpdateRuleBody(number, b.AddSequence([]grammar.ExprID{
		b.AddRuleRef(b.AddRuleWithHint("number_sign", optMinus)),
		b.AddRuleRef(intPart),
		b.AddRuleRef(b.AddRuleWithHint("number_frac", optFrac)),
		b.AddRuleRef(b.AddRuleWithHint("number_exp", optExp)),
	}))

	// root = value .
	b.UpdateRuleBody(root, b.AddSequence([]grammar.ExprID{b.AddRuleRef(value)}))
	b.SetRoot(root)

	return b.Grammar(), nil
}
