package grammar

// ExternalResolver looks up another grammar by scope name (and, optionally,
// a named rule within it) so that `include` references of the form
// "source.python" or "text.html.basic#tag-name" can be resolved across
// grammar boundaries at compile time. Implementations are expected to
// memoize: Compile may call Resolve once per distinct external include.
type ExternalResolver interface {
	// Resolve returns the compiled grammar registered under scopeName, or
	// ok=false if none is known. Compile treats a false result the same way
	// it treats a NopResolver: the include is dropped and a Diagnostic of
	// kind UnresolvedInclude is recorded.
	Resolve(scopeName string) (g *CompiledGrammar, ok bool)
}

// NopResolver never resolves an external grammar. It is the zero-effort
// default for callers that compile grammars standalone, without a
// registry of sibling grammars to cross-reference.
type NopResolver struct{}

// Resolve always reports ok=false.
func (NopResolver) Resolve(string) (*CompiledGrammar, bool) { return nil, false }
