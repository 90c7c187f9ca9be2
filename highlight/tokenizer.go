// Package highlight implements the stateful, line-oriented TextMate
// tokenizer: given a compiled grammar and the state left over from the
// previous line, it produces the current line's tokens and the state to
// carry into the next one.
package highlight

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/cairnlang/cairn/grammar"
	"github.com/cairnlang/cairn/rx"
	"github.com/cairnlang/cairn/scope"
	"github.com/cairnlang/cairn/state"
	"github.com/cairnlang/cairn/token"
)

// Tokenizer tokenizes lines against one compiled grammar. It holds no
// per-document state itself — state.Stack is threaded explicitly through
// TokenizeLine calls — so a single Tokenizer can be shared across any
// number of concurrently-tokenized documents.
type Tokenizer struct {
	Grammar *grammar.CompiledGrammar
	log     *slog.Logger
}

// NewTokenizer wraps g for line-oriented tokenization, logging runtime
// degradation notices (e.g. a span hitting the depth cap) to log, or
// slog.Default() if log is nil.
func NewTokenizer(g *grammar.CompiledGrammar, log *slog.Logger) *Tokenizer {
	if log == nil {
		log = slog.Default()
	}
	return &Tokenizer{Grammar: g, log: log}
}

// Result is one line's tokenization output.
type Result struct {
	Tokens   []token.Token
	NextState state.Stack
	// Overflowed counts how many times this line attempted to open a span
	// beyond state.MaxDepth. The line still tokenizes completely — the
	// offending span is treated as plain content instead of being opened —
	// but a grammar (or input) that overflows repeatedly is worth
	// surfacing to a caller.
	Overflowed int
}

func (g *Tokenizer) rootScopes() scope.Stack {
	if g.Grammar.ScopeID == scope.None {
		return nil
	}
	return scope.Stack{g.Grammar.ScopeID}
}

// TokenizeLine tokenizes one line (not including any trailing newline —
// splitting a document into lines is TokenizeDocument's job) against prev,
// the state.Stack left over from the previous line (an empty Stack for the
// first line of a document).
func (tk *Tokenizer) TokenizeLine(prev state.Stack, line string) (Result, error) {
	stack, anchor, consumed, err := tk.checkWhileConditions(prev, line)
	if err != nil {
		return Result{}, err
	}

	acc := token.NewAccumulator(len(line))
	overflowed := 0
	pos := anchor

	for _, c := range consumed {
		if err := applyMatch(acc, c.frame.Grammar, line, c.match, c.frame.Rule().WhileCaptures, c.frame.Scopes, scope.None, 0); err != nil {
			return Result{}, err
		}
		if acc.Cursor() < c.match.End() {
			if err := acc.Emit(c.match.End(), c.frame.Scopes); err != nil {
				return Result{}, err
			}
		}
	}

	for {
		frame := stack.Top()
		containerGrammar, containerID, currentScopes := tk.currentContainer(frame)

		ps := grammar.PatternSetOf(containerGrammar, containerID)
		psMatch, havePS := ps.FindAt(line, pos)

		var endMatch *rx.Match
		haveEnd := false
		if frame != nil && frame.Rule().Kind == grammar.KindBeginEnd {
			endPattern, err := compileResolved(frame.Rule().EndStatic, frame.ResolvedEnd())
			if err == nil {
				if m, ok := endPattern.FindAt(line, pos); ok {
					endMatch, haveEnd = m, true
				}
			}
		}

		switch {
		case !havePS && !haveEnd:
			if err := acc.Emit(len(line), currentScopes); err != nil {
				return Result{}, err
			}
			goto done

		case haveEnd && (!havePS || endWins(endMatch, psMatch.Match, frame.Rule().ApplyEndPatternLast)):
			if err := acc.Emit(endMatch.Start(), currentScopes); err != nil {
				return Result{}, err
			}
			if err := applyMatch(acc, frame.Grammar, line, endMatch, frame.Rule().EndCaptures, frame.Scopes, scope.None, 0); err != nil {
				return Result{}, err
			}
			newPos := endMatch.End()
			stack = stack.Pop()
			if newPos == pos {
				newPos = advanceOneRune(line, pos)
				if newPos > len(line) {
					if err := acc.Emit(len(line), currentScopes); err != nil {
						return Result{}, err
					}
					goto done
				}
				if err := acc.Emit(newPos, currentScopes); err != nil {
					return Result{}, err
				}
			}
			pos = newPos

		default:
			rule := psMatch.Grammar.Rule(psMatch.RuleID)
			if err := acc.Emit(psMatch.Match.Start(), currentScopes); err != nil {
				return Result{}, err
			}

			switch rule.Kind {
			case grammar.KindMatch:
				if err := applyMatch(acc, psMatch.Grammar, line, psMatch.Match, rule.Captures, currentScopes, rule.Name, 0); err != nil {
					return Result{}, err
				}
				newPos := psMatch.Match.End()
				if newPos == pos {
					newPos = advanceOneRune(line, pos)
					if newPos > len(line) {
						newPos = len(line)
					}
					if err := acc.Emit(newPos, currentScopes); err != nil {
						return Result{}, err
					}
				}
				pos = newPos

			default: // KindBeginEnd or KindBeginWhile: open a new span.
				newScopes := currentScopes
				if rule.Name != scope.None {
					newScopes = newScopes.Push(rule.Name)
				}
				if err := applyMatch(acc, psMatch.Grammar, line, psMatch.Match, rule.BeginCaptures, newScopes, scope.None, 0); err != nil {
					return Result{}, err
				}
				contentScopes := newScopes
				if rule.ContentName != scope.None {
					contentScopes = contentScopes.Push(rule.ContentName)
				}
				f := state.NewFrame(psMatch.Grammar, psMatch.RuleID, newScopes, contentScopes, func(i int) (string, bool) {
					return psMatch.Match.Group(i)
				})
				next, pushErr := stack.Push(f)
				newPos := psMatch.Match.End()
				if pushErr != nil {
					overflowed++
					tk.log.Warn("span stack depth exceeded, degrading to content",
						"rule_kind", rule.Kind, "max_depth", state.MaxDepth)
				} else {
					stack = next
				}
				if newPos == pos {
					newPos = advanceOneRune(line, pos)
					if newPos > len(line) {
						newPos = len(line)
					}
					if err := acc.Emit(newPos, currentScopes); err != nil {
						return Result{}, err
					}
				}
				pos = newPos
			}
		}

		if pos > len(line) {
			break
		}
	}

done:
	tokens, err := acc.Produce()
	if err != nil {
		return Result{}, fmt.Errorf("highlight: %w: %v", ErrInvariantViolation, err)
	}
	return Result{Tokens: tokens, NextState: stack, Overflowed: overflowed}, nil
}

// currentContainer returns the grammar/rule id whose pattern list is
// active (the innermost open frame's own patterns, or the grammar root
// when no frame is open) and the scope stack content matched against it
// should carry.
func (tk *Tokenizer) currentContainer(frame *state.Frame) (*grammar.CompiledGrammar, grammar.RuleID, scope.Stack) {
	if frame == nil {
		return tk.Grammar, 0, tk.rootScopes()
	}
	return frame.Grammar, frame.RuleID, frame.ContentScopes
}

// checkWhileConditions implements the per-line "while gate": walking the
// open span stack outermost-to-innermost, it tests each begin/while
// frame's while pattern at the current anchor position and pops that
// frame (and everything nested inside it) the first time one fails to
// match there. A frame's while pattern that does match may itself consume
// characters (e.g. a blockquote's leading "> " marker), advancing the
// anchor for every frame checked after it.
type whileConsumption struct {
	frame *state.Frame
	match *rx.Match
}

func (tk *Tokenizer) checkWhileConditions(stack state.Stack, line string) (state.Stack, int, []whileConsumption, error) {
	pos := 0
	var consumed []whileConsumption
	for i := 0; i < stack.Depth(); i++ {
		frame := stack[i]
		if frame.Rule().Kind != grammar.KindBeginWhile {
			continue
		}
		pattern, err := compileResolved(frame.Rule().WhileStatic, frame.ResolvedWhile())
		if err != nil {
			return stack[:i], pos, consumed, nil
		}
		m, ok := pattern.FindAt(line, pos)
		if !ok || m.Start() != pos {
			return stack[:i], pos, consumed, nil
		}
		if m.End() > m.Start() {
			consumed = append(consumed, whileConsumption{frame: frame, match: m})
		}
		pos = m.End()
	}
	return stack, pos, consumed, nil
}

// compileResolved returns static's compiled form if static is non-nil
// (the common case: an end/while pattern with no backreferences, compiled
// once and shared), or compiles resolved fresh otherwise (a
// backreferencing end/while pattern, specific to one open span).
func compileResolved(static *rx.Lazy, resolved string) (*rx.Pattern, error) {
	if static != nil {
		return static.Get()
	}
	return rx.Compile(resolved)
}

// endWins applies the tie-break between an end-pattern match and a
// pattern-set match that start at the same position: the end pattern wins
// unless the rule was declared with applyEndPatternLast, in which case the
// nested pattern gets first refusal. When the two matches start at
// different positions the earlier one always wins regardless of this
// flag.
func endWins(end, ps *rx.Match, applyEndPatternLast bool) bool {
	if end.Start() != ps.Start() {
		return end.Start() < ps.Start()
	}
	return !applyEndPatternLast
}

// advanceOneRune returns the byte offset just past the rune starting at
// pos, or len(s)+1 if pos is already at or past the end of s. It is the
// tokenizer's zero-width-match safety valve: every winning match that
// consumes no characters still forces the scan position strictly forward
// by one Unicode scalar, guaranteeing termination.
func advanceOneRune(s string, pos int) int {
	if pos >= len(s) {
		return pos + 1
	}
	_, size := utf8.DecodeRuneInString(s[pos:])
	if size == 0 {
		size = 1
	}
	return pos + size
}
