package grammar

import (
	"github.com/cairnlang/cairn/rx"
	"github.com/cairnlang/cairn/scope"
)

// RuleID indexes into a CompiledGrammar's Rules slice. RuleID 0 is always
// the grammar's root container (its top-level `patterns` list), and is what
// both `$self` and `$base` resolve to (see DESIGN.md: grammar injection
// beyond include resolution is out of scope, so a grammar's own base is
// always its own root).
type RuleID int32

// noRule marks the absence of a rule reference (e.g. a capture with no
// nested patterns).
const noRule RuleID = -1

// Kind distinguishes the shapes a compiled Rule can take.
type Kind int

const (
	// KindContainer is a bare list of child patterns with no regex of its
	// own: the grammar root, an include target, or a capture's nested
	// pattern list.
	KindContainer Kind = iota
	// KindMatch is a single-line `match` rule.
	KindMatch
	// KindBeginEnd is a `begin`/`end` multi-line span rule.
	KindBeginEnd
	// KindBeginWhile is a `begin`/`while` multi-line span rule.
	KindBeginWhile
)

// CaptureTarget describes what happens to the text spanned by one capture
// group: it can carry its own scope, recursively tokenize with a nested
// pattern list, or both at once.
type CaptureTarget struct {
	HasScope bool
	Scope    scope.ID
	Nested   RuleID // noRule if there is no nested pattern list
}

// PatternRef is a resolved child pattern: either a rule in the owning
// grammar, or (for cross-grammar `include`s) a rule in another grammar
// entirely. Resolution happens once, at compile time, in Compile.
type PatternRef struct {
	Grammar *CompiledGrammar // nil means "this grammar"
	Rule    RuleID
}

// Rule is one node of a compiled grammar's pattern graph. Which fields are
// meaningful depends on Kind; see the Kind constants.
type Rule struct {
	ID   RuleID
	Kind Kind

	Name        scope.ID // scope pushed for the whole match/span; None if unset
	ContentName scope.ID // scope pushed for a begin/end span's inner content; None if unset

	// KindMatch
	Match    *rx.Lazy
	Captures []CaptureTarget // index by capture group number, len = highest index present + 1

	// KindBeginEnd / KindBeginWhile
	Begin              *rx.Lazy
	BeginCaptures      []CaptureTarget
	EndSource          string // raw end pattern text, pre-backreference-substitution
	EndHasBackrefs     bool
	EndStatic          *rx.Lazy // populated iff !EndHasBackrefs
	EndCaptures        []CaptureTarget
	WhileSource        string
	WhileHasBackrefs   bool
	WhileStatic        *rx.Lazy // populated iff !WhileHasBackrefs
	WhileCaptures      []CaptureTarget
	ApplyEndPatternLast bool

	// Child patterns, already flattened one level of `include` (see
	// patternset.go for the further include-following done at match time).
	Patterns []PatternRef
}

// isSpan reports whether r opens a multi-line span (begin/end or
// begin/while), as opposed to a single-line match or a plain container.
func (r *Rule) isSpan() bool {
	return r.Kind == KindBeginEnd || r.Kind == KindBeginWhile
}
