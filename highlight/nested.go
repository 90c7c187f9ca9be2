package highlight

import (
	"github.com/cairnlang/cairn/grammar"
	"github.com/cairnlang/cairn/scope"
	"github.com/cairnlang/cairn/token"
)

// scanNested tokenizes the text spanned by [lo, hi) in line against
// containerID's own pattern list, rooted at scopes rather than the
// grammar's default root scope. It backs a capture's nested pattern list
// (SPEC_FULL.md §4.6): captures are single-match artifacts, so unlike the
// top-level line scan this never opens a span that can outlive the
// capture — a begin/end or begin/while leaf encountered here is skipped
// as a candidate rather than opened, which is the one deliberate
// simplification from full recursive tokenization (see DESIGN.md).
func scanNested(g *grammar.CompiledGrammar, containerID grammar.RuleID, line string, lo, hi int, scopes scope.Stack) []piece {
	sub := line[lo:hi]
	ps := grammar.PatternSetOf(g, containerID)
	acc := token.NewAccumulator(len(sub))
	pos := 0

	for pos <= len(sub) {
		m, ok := ps.FindAt(sub, pos)
		if !ok {
			_ = acc.Emit(len(sub), scopes)
			break
		}
		rule := m.Grammar.Rule(m.RuleID)
		if rule.Kind != grammar.KindMatch {
			next := advanceOneRune(sub, m.Match.Start())
			if next <= pos || next > len(sub) {
				_ = acc.Emit(len(sub), scopes)
				break
			}
			pos = next
			continue
		}
		if err := acc.Emit(m.Match.Start(), scopes); err != nil {
			return nil
		}
		if err := applyMatch(acc, m.Grammar, sub, m.Match, rule.Captures, scopes, rule.Name, 0); err != nil {
			return nil
		}
		newPos := m.Match.End()
		if newPos == pos {
			newPos = advanceOneRune(sub, pos)
			if newPos > len(sub) {
				_ = acc.Emit(len(sub), scopes)
				break
			}
			if err := acc.Emit(newPos, scopes); err != nil {
				return nil
			}
		}
		pos = newPos
	}

	tokens, err := acc.Produce()
	if err != nil {
		return nil
	}
	out := make([]piece, len(tokens))
	for i, t := range tokens {
		out[i] = piece{start: t.Start + lo, end: t.End + lo, scopes: t.Scopes}
	}
	return out
}
