package highlight

import (
	"sort"

	"github.com/cairnlang/cairn/grammar"
	"github.com/cairnlang/cairn/rx"
	"github.com/cairnlang/cairn/scope"
	"github.com/cairnlang/cairn/token"
)

// piece is one still-mutable sub-span of a match being carved up by
// capture groups before it is committed to the accumulator.
type piece struct {
	start, end int
	scopes     scope.Stack
}

// captureSpan is a single capture group's participation in a match,
// carrying enough to paint it onto the piece list in the right order.
type captureSpan struct {
	index      int
	start, end int
	target     grammar.CaptureTarget
}

// applyMatch paints a whole match (or begin/end delimiter) into acc,
// splitting it by capture group the way TextMate layers a capture's scope
// (and optional nested pattern list) on top of whatever the enclosing
// match already assigned. g/grammar and offset let nested captures
// recursively tokenize their own text.
func applyMatch(acc *token.Accumulator, g *grammar.CompiledGrammar, line string, m *rx.Match, captures []grammar.CaptureTarget, baseScopes scope.Stack, ownName scope.ID, offset int) error {
	matchScopes := baseScopes
	if ownName != scope.None {
		matchScopes = matchScopes.Push(ownName)
	}

	pieces := []piece{{start: m.Start() + offset, end: m.End() + offset, scopes: matchScopes}}
	if m.End() == m.Start() {
		return nil // a zero-width match paints nothing; caller still advances pos.
	}

	spans := collectCaptureSpans(m, captures, offset)
	for _, cs := range spans {
		pieces = paintCapture(pieces, cs, g, line)
	}

	for _, p := range pieces {
		if err := acc.Emit(p.end, p.scopes); err != nil {
			return err
		}
	}
	return nil
}

// collectCaptureSpans gathers every capture group that participated in m
// and has a target (a scope, a nested pattern list, or both), sorted so
// outer groups are painted before the inner groups nested within them.
func collectCaptureSpans(m *rx.Match, captures []grammar.CaptureTarget, offset int) []captureSpan {
	var spans []captureSpan
	for i, target := range captures {
		if !target.HasScope && target.Nested < 0 {
			continue
		}
		start, end, present := groupBounds(m, i, offset)
		if !present || end <= start {
			continue
		}
		spans = append(spans, captureSpan{index: i, start: start, end: end, target: target})
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return (spans[i].end - spans[i].start) > (spans[j].end - spans[j].start)
	})
	return spans
}

// groupBounds resolves a capture group's absolute byte range using
// regexp2's own per-capture offsets (rx.Match.GroupRange), shifted by
// offset for captures nested inside an already-offset sub-tokenization.
func groupBounds(m *rx.Match, i, offset int) (start, end int, ok bool) {
	s, e, present := m.GroupRange(i)
	if !present {
		return 0, 0, false
	}
	return s + offset, e + offset, true
}

// paintCapture splits whichever piece(s) in pieces overlap cs's span,
// pushing the capture's scope (if any) and/or substituting the nested
// pattern list's own tokenization (if any) over that sub-range.
func paintCapture(pieces []piece, cs captureSpan, g *grammar.CompiledGrammar, line string) []piece {
	var out []piece
	for _, p := range pieces {
		if cs.end <= p.start || cs.start >= p.end {
			out = append(out, p)
			continue
		}
		lo, hi := max(p.start, cs.start), min(p.end, cs.end)
		if p.start < lo {
			out = append(out, piece{start: p.start, end: lo, scopes: p.scopes})
		}
		out = append(out, paintedSubPieces(p, cs, g, line, lo, hi)...)
		if hi < p.end {
			out = append(out, piece{start: hi, end: p.end, scopes: p.scopes})
		}
	}
	return out
}

func paintedSubPieces(p piece, cs captureSpan, g *grammar.CompiledGrammar, line string, lo, hi int) []piece {
	scopes := p.scopes
	if cs.target.HasScope {
		scopes = scopes.Push(cs.target.Scope)
	}
	if cs.target.Nested < 0 {
		return []piece{{start: lo, end: hi, scopes: scopes}}
	}
	// Recursively tokenize the captured text against its nested pattern
	// list, rooted at `scopes` rather than the grammar's root.
	sub := scanNested(g, cs.target.Nested, line, lo, hi, scopes)
	if len(sub) == 0 {
		return []piece{{start: lo, end: hi, scopes: scopes}}
	}
	return sub
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
