// Package mask implements the adaptive token-mask compiler (C8): for every
// scannable parser state, decide which vocabulary entries the model may
// legally emit next, caching results in the crossing-grammar cache (C9) when
// a rule's FSM has a stable fingerprint (C6).
//
// Scope reduction: mask compilation here only covers FSM-backed rule states
// (those with a precompiled automaton from grammar.BuildFSMs). The parser
// driver (earley) still walks element-by-element rules at generation time;
// a mask for those finer-grained (rule, sequence, element, sub-element)
// positions is left uncomputed (treated as a full vocabulary sweep at
// generation time instead of a precomputed table). This is recorded as an
// accepted approximation rather than attempted lazily per call, since the
// overwhelming majority of rule bodies (everything except a bare Repeat)
// lower to an FSM.
package mask

import (
	"github.com/jmorganca/xgrammar/vocab"
	"github.com/jmorganca/xgrammar/xgcache"
)

// StateKey identifies one scannable state: a rule and a state id in the
// complete FSM's numbering (spec.md §4.7's "new_state_id").
type StateKey struct {
	Rule  int32
	State int32
}

// DefaultUseBitsetThreshold is the default storage-layout threshold
// (spec.md §3's USE_BITSET_THRESHOLD).
const DefaultUseBitsetThreshold = 1024

// Options configures a mask-compilation run.
type Options struct {
	Tokenizer *vocab.Info
	Crossing  *xgcache.Crossing

	CacheEnabled       bool
	UseBitsetThreshold int // 0 means DefaultUseBitsetThreshold
	Workers            int // <=1 runs inline with no pool
}

func (o Options) threshold() int {
	if o.UseBitsetThreshold > 0 {
		return o.UseBitsetThreshold
	}
	return DefaultUseBitsetThreshold
}
