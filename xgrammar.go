// Package xgrammar compiles grammars (EBNF, JSON Schema, regex, structural
// tags, or the builtin JSON grammar) against a fixed tokenizer vocabulary
// into CompiledGrammar values carrying a precomputed adaptive-token-mask
// table, per spec.md's three-subsystem pipeline: IR + normalize/optimize
// (grammar), per-rule FSM construction and hashing (grammar/fsm), and the
// mask compiler (mask), backed by the two bounded caches in xgcache.
package xgrammar

import (
	"github.com/jmorganca/xgrammar/grammar"
	"github.com/jmorganca/xgrammar/mask"
	"github.com/jmorganca/xgrammar/xgcache"
)

// CompiledGrammar is the output of every Compile* entry point: a grammar IR
// ready for use by a generation loop, plus the table of precomputed masks
// keyed by (rule, FSM state).
type CompiledGrammar struct {
	Grammar *grammar.Grammar
	Masks   map[mask.StateKey]xgcache.Mask
}
