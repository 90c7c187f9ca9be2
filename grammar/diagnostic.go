package grammar

import "fmt"

// DiagnosticKind classifies a non-fatal problem found while compiling a
// grammar. Compile never aborts on these; it degrades the offending rule
// (usually to an empty container) and keeps going, per spec.md's
// "compilation is best-effort" requirement.
type DiagnosticKind int

const (
	// MalformedGrammar covers a rule whose shape doesn't parse: a begin
	// with neither end nor while, an end or while with no begin, and a
	// rule carrying both match and begin.
	MalformedGrammar DiagnosticKind = iota
	// RegexCompileError covers a pattern string that failed to compile
	// under the regex engine (see rx.Compile).
	RegexCompileError
	// UnresolvedInclude covers an `include` target — local `#name` or
	// cross-grammar `scope`/`scope#name` — that could not be found.
	// `$self` and `$base` always resolve to the grammar's root.
	UnresolvedInclude
)

func (k DiagnosticKind) String() string {
	switch k {
	case MalformedGrammar:
		return "malformed-grammar"
	case RegexCompileError:
		return "regex-compile-error"
	case UnresolvedInclude:
		return "unresolved-include"
	default:
		return "unknown"
	}
}

// Diagnostic reports one problem found during Compile, with enough context
// to locate it in the source grammar.
type Diagnostic struct {
	Kind    DiagnosticKind
	Path    string // dotted path to the offending rule, e.g. "repository.strings.patterns[2]"
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Kind, d.Path, d.Message)
}
