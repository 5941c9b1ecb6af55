package frontend

import "github.com/jmorganca/xgrammar/grammar"

// spliceGrammar rebuilds src's rules inside b, with every rule renamed under
// namePrefix to avoid collisions, and returns the rule id standing in for
// src.Root. Used to embed one independently compiled grammar (e.g. a
// structural tag's JSON-schema body) inside another.
func spliceGrammar(b *grammar.Builder, src *grammar.Grammar, namePrefix string) grammar.RuleID {
	ruleMap := make(map[grammar.RuleID]grammar.RuleID, len(src.Rules))
	for i := range src.Rules {
		rid := grammar.RuleID(i)
		ruleMap[rid] = b.AddRuleWithHint(namePrefix+"_"+src.Rules[i].Name, grammar.NoExprID)
	}
	for i := range src.Rules {
		rid := grammar.RuleID(i)
		newID := ruleMap[rid]
		body := spliceExpr(b, src, src.Rules[i].Body, ruleMap)
		b.UpdateRuleBody(newID, body)
		if la := src.Rules[i].LookaheadAssertion; la != grammar.NoExprID {
			b.UpdateLookaheadAssertion(newID, spliceExpr(b, src, la, ruleMap))
			b.UpdateLookaheadExact(newID, src.Rules[i].IsExactLookahead)
		}
	}
	return ruleMap[src.Root]
}

func spliceExpr(b *grammar.Builder, src *grammar.Grammar, id grammar.ExprID, ruleMap map[grammar.RuleID]grammar.RuleID) grammar.ExprID {
	if id == grammar.NoExprID {
		return b.AddEmptyStr()
	}
	switch src.Kind(id) {
	case grammar.KindEmptyStr:
		return b.AddEmptyStr()
	case grammar.KindByteString:
		return b.AddByteString(src.ByteStringValue(id))
	case grammar.KindCharacterClass:
		ranges, negated := src.CharacterClassValue(id)
		return b.AddCharacterClass(ranges, negated)
	case grammar.KindCharacterClassStar:
		ranges, negated := src.CharacterClassValue(id)
		return b.AddCharacterClassStar(ranges, negated)
	case grammar.KindRuleRef:
		return b.AddRuleRef(ruleMap[src.RuleRefValue(id)])
	case grammar.KindRepeat:
		target, min, max := src.RepeatValue(id)
		return b.AddRepeat(ruleMap[target], min, max)
	case grammar.KindSequence:
		elems := src.SequenceValue(id)
		out := make([]grammar.ExprID, len(elems))
		for i, e := range elems {
			out[i] = spliceExpr(b, src, e, ruleMap)
		}
		return b.AddSequence(out)
	case grammar.KindChoices:
		alts := src.ChoicesValue(id)
		out := make([]grammar.ExprID, len(alts))
		for i, e := range alts {
			out[i] = spliceExpr(b, src, e, ruleMap)
		}
		return b.AddChoices(out)
	case grammar.KindTagDispatch:
		td := src.TagDispatchValue(id)
		tags := make([]grammar.TagRule, len(td.Tags))
		for i, t := range td.Tags {
			tags[i] = grammar.TagRule{Tag: t.Tag, RuleID: ruleMap[t.RuleID]}
		}
		return b.AddTagDispatch(grammar.TagDispatch{
			Tags:              tags,
			StopEOS:           td.StopEOS,
			StopStrs:          td.StopStrs,
			LoopAfterDispatch: td.LoopAfterDispatch,
			ExcludeStrs:       td.ExcludeStrs,
		})
	default:
		return b.AddEmptyStr()
	}
}
