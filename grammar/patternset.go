package grammar

import "github.com/cairnlang/cairn/rx"

// PatternSet is the flattened, cached list of leaf rules (Match,
// BeginEnd, or BeginWhile — never a bare container) reachable from a
// container's pattern list, with includes already inlined. The regex
// engine underneath (regexp2) has no batch "regex set" primitive the way
// Oniguruma's RegSet does, so FindAt simply tries every member pattern and
// applies TextMate's own tie-break by hand; see DESIGN.md for why that
// substitution is faithful to the same observable behavior.
type PatternSet struct {
	owner      *CompiledGrammar
	candidates []candidate
}

type candidate struct {
	grammar *CompiledGrammar
	ruleID  RuleID
}

type flatKey struct {
	grammar *CompiledGrammar
	ruleID  RuleID
}

// PatternSetOf returns the (cached) PatternSet for the child patterns of
// rule ruleID within g, building it on first request. For a begin/end or
// begin/while rule this is the set active inside its span; a match rule has
// no child patterns, so its set is empty. The rule itself is not marked
// visited up front, so a span whose patterns include it again (directly or
// via `$self`) can open nested copies of itself.
func PatternSetOf(g *CompiledGrammar, ruleID RuleID) *PatternSet {
	g.patternSetOnce[ruleID].Do(func() {
		rule := g.Rule(ruleID)
		var candidates []candidate
		visited := map[flatKey]bool{}
		flattenPatterns(rule.Patterns, g, visited, &candidates)
		g.patternSetVal[ruleID] = &PatternSet{owner: g, candidates: candidates}
	})
	return g.patternSetVal[ruleID]
}

// flattenPatterns walks refs, inlining any container rule's own patterns
// in place, stopping at rules that actually match text (KindMatch,
// KindBeginEnd, KindBeginWhile). visited guards against infinite descent
// through self-referential includes such as `$self`.
func flattenPatterns(refs []PatternRef, owner *CompiledGrammar, visited map[flatKey]bool, out *[]candidate) {
	for _, ref := range refs {
		g := ref.Grammar
		if g == nil {
			g = owner
		}
		key := flatKey{g, ref.Rule}
		if visited[key] {
			continue
		}
		visited[key] = true

		rule := g.Rule(ref.Rule)
		if rule.Kind == KindContainer {
			flattenPatterns(rule.Patterns, g, visited, out)
			continue
		}
		*out = append(*out, candidate{grammar: g, ruleID: ref.Rule})
	}
}

// PatternSetMatch is the winning match from a PatternSet.FindAt call,
// together with enough identity to look the rule back up.
type PatternSetMatch struct {
	Grammar *CompiledGrammar
	RuleID  RuleID
	Match   *rx.Match
}

// FindAt returns the winning match, at or after byte offset at in text,
// among every candidate pattern in the set, applying TextMate's full
// three-way tie-break: earliest start wins; on a tied start, the longest
// match wins; on a further tie, declaration order (the order candidates
// were flattened into the set) wins.
func (ps *PatternSet) FindAt(text string, at int) (PatternSetMatch, bool) {
	var (
		best  PatternSetMatch
		bestM *rx.Match
		found bool
	)
	for _, cand := range ps.candidates {
		pat := matchablePattern(cand.grammar.Rule(cand.ruleID))
		if pat == nil {
			continue
		}
		compiled, err := pat.Get()
		if err != nil || compiled == nil {
			continue
		}
		m, ok := compiled.FindAt(text, at)
		if !ok {
			continue
		}
		wins := !found ||
			m.Start() < bestM.Start() ||
			(m.Start() == bestM.Start() && m.End() > bestM.End())
		if !wins {
			continue
		}
		found = true
		bestM = m
		best = PatternSetMatch{Grammar: cand.grammar, RuleID: cand.ruleID, Match: m}
	}
	return best, found
}

// matchablePattern returns the regex that decides whether rule starts
// matching at a position: the match pattern for a KindMatch rule, or the
// begin pattern for a span rule. Container rules have none.
func matchablePattern(rule *Rule) *rx.Lazy {
	switch rule.Kind {
	case KindMatch:
		return rule.Match
	case KindBeginEnd, KindBeginWhile:
		return rule.Begin
	default:
		return nil
	}
}
