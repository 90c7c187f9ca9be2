// Package state owns the tokenizer's runtime stack of open begin/end and
// begin/while spans: the immutable Stack of Frames, the depth cap that
// guards against runaway recursive grammars, and backreference
// substitution for end/while patterns captured from a span's begin match.
package state

import (
	"fmt"
	"strings"

	"github.com/cairnlang/cairn/grammar"
	"github.com/cairnlang/cairn/scope"
)

// MaxDepth caps how many nested spans may be open at once. Stack.Push
// refuses a frame beyond it; the tokenizer then leaves that span unopened,
// counts it in highlight.Result.Overflowed and keeps tokenizing the line
// rather than recursing (or allocating) without bound. A pathological or
// adversarial grammar with an
// unconditionally-matching begin pattern and no matching end is the
// canonical trigger.
const MaxDepth = 100

// capturedGroup is one group captured by a span's begin match, retained so
// its end/while pattern (if it contains numeric backreferences) can be
// resolved once per frame rather than once per line.
type capturedGroup struct {
	text    string
	present bool
}

// Frame is one open span on the tokenizer's state stack: which rule opened
// it, in which grammar, the scope stack in effect inside it, and (for
// backreferencing end/while patterns) the text captured by the begin
// match.
type Frame struct {
	Grammar *grammar.CompiledGrammar
	RuleID  grammar.RuleID

	// Scopes is the scope stack as of entering this frame, including the
	// rule's own Name (but not yet its ContentName).
	Scopes scope.Stack
	// ContentScopes additionally includes the rule's ContentName, and is
	// what content matched strictly between begin and end/while is
	// annotated with.
	ContentScopes scope.Stack

	beginCaptures [10]capturedGroup

	// resolvedEnd/resolvedWhile are the rule's end/while source text with any
	// numeric backreferences already substituted against beginCaptures.
	// For a rule whose end/while has no backreferences these equal the
	// rule's static source and are computed once; resolved lazily by
	// ResolvedEnd/ResolvedWhile below.
	resolvedEnd   string
	haveEnd       bool
	resolvedWhile string
	haveWhile     bool
}

// NewFrame builds a Frame for entering ruleID in g, given the scope stack
// to enter with and the begin match's captured groups (get returns the
// text and participation of group i; pass a function that always reports
// !present for a rule with no begin captures, e.g. a bare container).
func NewFrame(g *grammar.CompiledGrammar, ruleID grammar.RuleID, scopes, contentScopes scope.Stack, get func(i int) (string, bool)) *Frame {
	f := &Frame{Grammar: g, RuleID: ruleID, Scopes: scopes, ContentScopes: contentScopes}
	for i := 0; i <= 9; i++ {
		text, present := get(i)
		f.beginCaptures[i] = capturedGroup{text: text, present: present}
	}
	return f
}

// Rule returns the rule this frame is an open invocation of.
func (f *Frame) Rule() *grammar.Rule { return f.Grammar.Rule(f.RuleID) }

// ResolvedEnd returns this frame's end pattern with any `\1`-`\9`
// backreferences substituted against the begin match's captures.
func (f *Frame) ResolvedEnd() string {
	if !f.haveEnd {
		rule := f.Rule()
		if rule.EndHasBackrefs {
			f.resolvedEnd = SubstituteBackrefs(rule.EndSource, f.groupAt)
		} else {
			f.resolvedEnd = rule.EndSource
		}
		f.haveEnd = true
	}
	return f.resolvedEnd
}

// ResolvedWhile returns this frame's while pattern with backreferences
// substituted the same way ResolvedEnd does for the end pattern.
func (f *Frame) ResolvedWhile() string {
	if !f.haveWhile {
		rule := f.Rule()
		if rule.WhileHasBackrefs {
			f.resolvedWhile = SubstituteBackrefs(rule.WhileSource, f.groupAt)
		} else {
			f.resolvedWhile = rule.WhileSource
		}
		f.haveWhile = true
	}
	return f.resolvedWhile
}

func (f *Frame) groupAt(i int) (string, bool) {
	if i < 0 || i > 9 {
		return "", false
	}
	g := f.beginCaptures[i]
	return g.text, g.present
}

// Stack is the tokenizer's open-span stack, outermost frame first. A Stack
// value is treated as immutable: Push copies into a new backing array and
// Pop returns a shorter slice of the receiver's, never writing to it, the same
// persistent-snapshot discipline scope.Stack uses, so a tokenizer can hold
// onto a Stack from an earlier line (e.g. to resume tokenizing after an
// edit) without it being mutated out from under it.
type Stack []*Frame

// Push returns a new Stack with f on top, or an error if doing so would
// exceed MaxDepth.
func (s Stack) Push(f *Frame) (Stack, error) {
	if len(s) >= MaxDepth {
		return s, fmt.Errorf("state: stack depth would exceed %d", MaxDepth)
	}
	out := make(Stack, len(s)+1)
	copy(out, s)
	out[len(s)] = f
	return out, nil
}

// Pop returns a new Stack with the top frame removed. Popping an empty
// Stack returns it unchanged.
func (s Stack) Pop() Stack {
	if len(s) == 0 {
		return s
	}
	return s[:len(s)-1]
}

// Top returns the innermost open frame, or nil if the stack is empty (the
// tokenizer is at the grammar's root).
func (s Stack) Top() *Frame {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// Depth returns the number of open frames.
func (s Stack) Depth() int { return len(s) }

// SubstituteBackrefs replaces every `\1`-`\9` backreference marker in
// pattern with the raw text get reports for that group number (empty
// string if the group didn't participate in the match), leaving every
// other character — including other regex metacharacters and escapes —
// untouched. The captured text is substituted as-is, with no
// metacharacter escaping: this mirrors `tokenizer.rs`'s
// `resolve_backreferences`, which does a plain text substitution and
// relies on the captured text being re-compiled as part of the resulting
// pattern exactly like TextMate's own reference implementation does.
func SubstituteBackrefs(pattern string, get func(i int) (string, bool)) string {
	var out strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '\\' || i+1 >= len(pattern) {
			out.WriteByte(c)
			continue
		}
		next := pattern[i+1]
		if next == '\\' {
			// An escaped backslash: copy it whole so a following digit
			// stays a literal digit (see grammar's containsBackref).
			out.WriteString(`\\`)
			i++
			continue
		}
		if next < '1' || next > '9' {
			out.WriteByte(c)
			continue
		}
		text, _ := get(int(next - '0'))
		out.WriteString(text)
		i++ // consume the digit too
	}
	return out.String()
}
