package frontend

import (
	"encoding/json"
	"fmt"

	"github.com/jmorganca/xgrammar/grammar"
)

// structuralTagDoc is the JSON shape CompileStructuralTag accepts:
//
//	{
//	  "format": "triggered_tags",
//	  "tags": [
//	    {"begin": "<tool_call>", "schema": {...json schema...}, "end": "</tool_call>"}
//	  ],
//	  "triggers": ["<tool_call>"]
//	}
//
// Each tag's schema is compiled independently (via CompileJSONSchema) and
// wrapped begin...end; tag selection is keyed on each tag's begin string, and
// the triggers list is handed to the dispatch as its stop strings.
type structuralTagDoc struct {
	Format   string            `json:"format"`
	Tags     []structuralTagOp `json:"tags"`
	Triggers []string          `json:"triggers"`
}

type structuralTagOp struct {
	Begin  string          `json:"begin"`
	Schema json.RawMessage `json:"schema"`
	End    string          `json:"end"`
}

// CompileStructuralTag lowers a structural-tag document (tagJSON) to a
// grammar whose root is a TagDispatch macro: generation runs unconstrained
// until one of the tags' begin strings is produced, at which point the
// matching tag's schema/end sub-grammar takes over. doc.Triggers becomes the
// dispatch's stop strings.
func CompileStructuralTag(tagJSON []byte) (*grammar.Grammar, error) {
	var doc structuralTagDoc
	if err := json.Unmarshal(tagJSON, &doc); err != nil {
		return nil, fmt.Errorf("frontend: parse structural tag: %w", err)
	}
	if len(doc.Tags) == 0 {
		return nil, fmt.Errorf("frontend: structural tag has no tags")
	}

	b := grammar.NewBuilder()
	root := b.AddEmptyRule("root")

	tags := make([]grammar.TagRule, 0, len(doc.Tags))
	for i, t := range doc.Tags {
		schemaGrammar, err := CompileJSONSchema(t.Schema, JSONSchemaOptions{})
		if err != nil {
			return nil, fmt.Errorf("frontend: tag %d schema: %w", i, err)
		}
		bodyRule := spliceGrammar(b, schemaGrammar, fmt.Sprintf("tag_%d_body", i))

		// The dispatch FSM's trie already consumes t.Begin before taking the
		// rule edge into this rule, so the rule itself only needs to cover
		// what comes after: the schema body, then t.End.
		seq := b.AddSequence([]grammar.ExprID{
			b.AddRuleRef(bodyRule),
			b.AddByteString([]byte(t.End)),
		})
		tagRule := b.AddRuleWithHint(fmt.Sprintf("tag_%d", i), seq)
		tags = append(tags, grammar.TagRule{Tag: t.Begin, RuleID: tagRule})
	}

	b.UpdateRuleBody(root, b.AddTagDispatch(grammar.TagDispatch{
		Tags:     tags,
		StopEOS:  true,
		StopStrs: doc.Triggers,
	}))
	b.SetRoot(root)
	return b.Grammar(), nil
}
