package frontend

import (
	"encoding/json"
	"fmt"

	"github.com/jmorganca/xgrammar/frontend/jsonschema"
	"github.com/jmorganca/xgrammar/grammar"
)

// JSONSchemaOptions configures CompileJSONSchema (spec.md §6).
type JSONSchemaOptions struct {
	// AnyWhitespace allows any amount of whitespace at structural boundaries.
	// When false, whitespace is restricted to the single separators below.
	AnyWhitespace bool

	// Indent is not read by CompileJSONSchema: the grammar is the same for
	// every value, and no pretty-printed layout is generated.
	Indent int

	// Separators is {item, kv}, e.g. {",", ":"}. Zero value means the
	// standard compact JSON separators.
	Separators [2]string

	// StrictMode forbids object properties beyond those named in the schema
	// unless AdditionalProperties explicitly allows them. The same rule holds
	// when StrictMode is false, so the option does not change the grammar.
	StrictMode bool

	// MaxWhitespaceCnt is not read by CompileJSONSchema: with AnyWhitespace
	// set, whitespace runs at structural boundaries are unbounded whatever
	// its value.
	MaxWhitespaceCnt int
}

func (o JSONSchemaOptions) itemSep() string {
	if o.Separators[0] != "" {
		return o.Separators[0]
	}
	return ","
}

func (o JSONSchemaOptions) kvSep() string {
	if o.Separators[1] != "" {
		return o.Separators[1]
	}
	return ":"
}

// CompileJSONSchema lowers a JSON Schema document to a grammar matching
// exactly the JSON values the schema allows, mirroring the structure of
// grammar.FromSchema/fromSchema (_examples/ollama-ollama/grammar/grammar.go):
// one synthesized rule per reachable sub-schema, built here directly as
// grammar.Builder IR instead of EBNF text.
func CompileJSONSchema(schemaJSON []byte, opts JSONSchemaOptions) (*grammar.Grammar, error) {
	var s *jsonschema.Schema
	if err := json.Unmarshal(schemaJSON, &s); err != nil {
		return nil, fmt.Errorf("frontend: parse json schema: %w", err)
	}
	if s == nil {
		s = &jsonschema.Schema{}
	}

	c := &schemaCompiler{
		b:       grammar.NewBuilder(),
		opts:    opts,
		visited: map[*jsonschema.Schema]grammar.RuleID{},
		defs:    s.Defs,
	}
	c.addPrimitives()

	root := c.compile(s, "root")
	c.b.SetRoot(root)
	return c.b.Grammar(), nil
}

type schemaCompiler struct {
	b    *grammar.Builder
	opts JSONSchemaOptions

	visited map[*jsonschema.Schema]grammar.RuleID
	defs    map[string]*jsonschema.Schema

	wsElem grammar.ExprID

	strRuleID, numRuleID, valueRuleID grammar.RuleID
}

// addPrimitives builds the primitive JSON productions (string/number/
// boolean/null/value) once, shared by every sub-schema that needs an
// unconstrained instance of that type.
func (c *schemaCompiler) addPrimitives() {
	full, err := CompileBuiltinJSONGrammar()
	if err != nil {
		panic("frontend: builtin json grammar: " + err.Error())
	}
	prefix := "prim"
	nameToNew := map[string]grammar.RuleID{}
	for i := range full.Rules {
		nameToNew[full.Rules[i].Name] = c.b.AddRuleWithHint(prefix+"_"+full.Rules[i].Name, grammar.NoExprID)
	}
	mapped := make(map[grammar.RuleID]grammar.RuleID, len(full.Rules))
	for i := range full.Rules {
		mapped[grammar.RuleID(i)] = nameToNew[full.Rules[i].Name]
	}
	for i := range full.Rules {
		body := spliceExpr(c.b, full, full.Rules[i].Body, mapped)
		c.b.UpdateRuleBody(mapped[grammar.RuleID(i)], body)
	}

	byName := func(name string) grammar.RuleID { return mapped[findRuleByName(full, name)] }
	c.strRuleID = byName("string")
	c.numRuleID = byName("number")
	c.valueRuleID = byName("value")

	c.wsElem = c.b.AddCharacterClassStar([]grammar.ByteRange{
		{Lo: ' ', Hi: ' '}, {Lo: '\t', Hi: '\t'}, {Lo: '\n', Hi: '\n'}, {Lo: '\r', Hi: '\r'},
	}, false)
	if !c.opts.AnyWhitespace {
		c.wsElem = c.b.AddEmptyStr()
	}
}

func findRuleByName(g *grammar.Grammar, name string) grammar.RuleID {
	for i := range g.Rules {
		if g.Rules[i].Name == name {
			return grammar.RuleID(i)
		}
	}
	return grammar.NoRuleID
}

// compile returns the rule implementing s, memoized by schema pointer
// identity so a $ref cycle terminates instead of recursing forever.
func (c *schemaCompiler) compile(s *jsonschema.Schema, hint string) grammar.RuleID {
	if s == nil {
		return c.valueRuleID
	}
	if rid, ok := c.visited[s]; ok {
		return rid
	}
	if s.Ref != "" {
		if target := c.resolveRef(s.Ref); target != nil {
			return c.compile(target, hint)
		}
	}

	rid := c.b.AddRuleWithHint(hint, grammar.NoExprID)
	c.visited[s] = rid
	c.b.UpdateRuleBody(rid, c.compileBody(s, hint))
	return rid
}

func (c *schemaCompiler) resolveRef(ref string) *jsonschema.Schema {
	const prefix = "#/$defs/"
	const altPrefix = "#/definitions/"
	name := ref
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		name = ref[len(prefix):]
	} else if len(ref) > len(altPrefix) && ref[:len(altPrefix)] == altPrefix {
		name = ref[len(altPrefix):]
	}
	if c.defs == nil {
		return nil
	}
	return c.defs[name]
}

func (c *schemaCompiler) compileBody(s *jsonschema.Schema, hint string) grammar.ExprID {
	b := c.b

	if len(s.AnyOf) > 0 || len(s.OneOf) > 0 {
		alts := s.AnyOf
		if len(alts) == 0 {
			alts = s.OneOf
		}
		seqs := make([]grammar.ExprID, len(alts))
		for i, sub := range alts {
			seqs[i] = b.AddSequence([]grammar.ExprID{b.AddRuleRef(c.compile(sub, fmt.Sprintf("%s_alt_%d", hint, i)))})
		}
		return b.AddChoices(seqs)
	}

	if len(s.Enum) > 0 {
		seqs := make([]grammar.ExprID, len(s.Enum))
		for i, e := range s.Enum {
			seqs[i] = b.AddSequence([]grammar.ExprID{b.AddByteString(e)})
		}
		return b.AddChoices(seqs)
	}

	switch s.EffectiveType() {
	case "object":
		return c.compileObject(s, hint)
	case "array":
		return c.compileArray(s, hint)
	case "string":
		if s.Pattern != "" {
			// Constraining string content to a regex pattern is delegated to
			// CompileRegex; splice its grammar in as this schema's body.
			if g, err := CompileRegex(s.Pattern); err == nil {
				rid := spliceGrammar(b, g, hint+"_pattern")
				return b.AddSequence([]grammar.ExprID{b.AddByteString([]byte(`"`)), b.AddRuleRef(rid), b.AddByteString([]byte(`"`))})
			}
		}
		return b.AddSequence([]grammar.ExprID{b.AddRuleRef(c.strRuleID)})
	case "number", "integer":
		return b.AddSequence([]grammar.ExprID{b.AddRuleRef(c.numRuleID)})
	case "boolean":
		return b.AddChoices([]grammar.ExprID{
			b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("true"))}),
			b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("false"))}),
		})
	case "null":
		return b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("null"))})
	default: // "value"
		return b.AddSequence([]grammar.ExprID{b.AddRuleRef(c.valueRuleID)})
	}
}

func (c *schemaCompiler) compileObject(s *jsonschema.Schema, hint string) grammar.ExprID {
	b := c.b
	if len(s.Properties) == 0 && s.AdditionalProperties == nil {
		return b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("{")), c.wsElem, b.AddByteString([]byte("}"))})
	}

	elems := []grammar.ExprID{b.AddByteString([]byte("{")), c.wsElem}
	for i, p := range s.Properties {
		if i > 0 {
			elems = append(elems, b.AddByteString([]byte(c.opts.itemSep())), c.wsElem)
		}
		propRule := c.compile(p, fmt.Sprintf("%s_%s", hint, p.Name))
		elems = append(elems,
			b.AddByteString([]byte(`"`+p.Name+`"`)), c.wsElem,
			b.AddByteString([]byte(c.opts.kvSep())), c.wsElem,
			b.AddRuleRef(propRule), c.wsElem,
		)
	}
	if s.AdditionalProperties != nil {
		extra := c.compile(s.AdditionalProperties, hint+"_extra")
		memberSeq := b.AddSequence([]grammar.ExprID{
			c.strStar(), c.wsElem, b.AddByteString([]byte(c.opts.kvSep())), c.wsElem, b.AddRuleRef(extra),
		})
		restSeq := b.AddSequence([]grammar.ExprID{b.AddByteString([]byte(c.opts.itemSep())), c.wsElem, b.AddRuleRef(b.AddRuleWithHint(hint+"_extra_member", memberSeq))})
		restRule := b.AddRuleWithHint(hint+"_extra_rest", restSeq)
		optExtra := b.AddChoices([]grammar.ExprID{
			b.AddEmptyStr(),
			b.AddSequence([]grammar.ExprID{
				func() grammar.ExprID {
					if len(s.Properties) > 0 {
						return b.AddByteString([]byte(c.opts.itemSep()))
					}
					return b.AddEmptyStr()
				}(),
				c.wsElem, b.AddRuleRef(b.AddRuleWithHint(hint+"_extra_first", memberSeq)), b.AddRepeat(restRule, 0, grammar.Unbounded),
			}),
		})
		elems = append(elems, b.AddRuleRef(b.AddRuleWithHint(hint+"_extras", optExtra)), c.wsElem)
	}
	elems = append(elems, b.AddByteString([]byte("}")))
	return b.AddSequence(elems)
}

// strStar returns a rule ref matching an arbitrary quoted JSON string, used
// for additionalProperties' property-name position.
func (c *schemaCompiler) strStar() grammar.ExprID {
	return c.b.AddRuleRef(c.strRuleID)
}

func (c *schemaCompiler) compileArray(s *jsonschema.Schema, hint string) grammar.ExprID {
	b := c.b
	if len(s.PrefixItems) == 0 && s.Items == nil {
		return b.AddSequence([]grammar.ExprID{b.AddByteString([]byte("[")), c.wsElem, b.AddByteString([]byte("]"))})
	}

	elems := []grammar.ExprID{b.AddByteString([]byte("[")), c.wsElem}
	for i, p := range s.PrefixItems {
		if i > 0 {
			elems = append(elems, b.AddByteString([]byte(c.opts.itemSep())), c.wsElem)
		}
		itemRule := c.compile(p, fmt.Sprintf("%s_tuple_%d", hint, i))
		elems = append(elems, b.AddRuleRef(itemRule), c.wsElem)
	}
	if s.Items != nil {
		itemRule := c.compile(s.Items, hint+"_item")
		memberSeq := b.AddSequence([]grammar.ExprID{b.AddByteString([]byte(c.opts.itemSep())), c.wsElem, b.AddRuleRef(itemRule), c.wsElem})
		restRule := b.AddRuleWithHint(hint+"_item_rest", memberSeq)
		var lead grammar.ExprID
		if len(s.PrefixItems) == 0 {
			lead = b.AddSequence([]grammar.ExprID{b.AddRuleRef(itemRule), c.wsElem})
		} else {
			lead = b.AddEmptyStr()
		}
		items := b.AddChoices([]grammar.ExprID{
			b.AddEmptyStr(),
			b.AddSequence([]grammar.ExprID{lead, b.AddRepeat(restRule, 0, grammar.Unbounded)}),
		})
		elems = append(elems, b.AddRuleRef(b.AddRuleWithHint(hint+"_items", items)))
	}
	elems = append(elems, b.AddByteString([]byte("]")))
	return b.AddSequence(elems)
}
