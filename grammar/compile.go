package grammar

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cairnlang/cairn/rx"
	"github.com/cairnlang/cairn/scope"
)

// CompiledGrammar is the output of Compile: a flat, indexable graph of
// Rules with every local and resolvable cross-grammar `include` already
// turned into a direct PatternRef. It is safe for concurrent read-only use
// by any number of Tokenizers (see highlight.Tokenizer); the only mutation
// after Compile returns is the lazily-built PatternSet cache, which is
// guarded by patternSetOnce.
type CompiledGrammar struct {
	Name           string
	ScopeName      string
	ScopeID        scope.ID
	FileTypes      []string
	FirstLineMatch *rx.Lazy

	// Repository maps a `#name` include target to its compiled rule. Only
	// the grammar's root-level `repository` object populates this; nested
	// repository objects on non-root rules are not supported (see
	// DESIGN.md).
	Repository map[string]RuleID

	Rules []Rule // index 0 is always the root container

	patternSetOnce []sync.Once
	patternSetVal  []*PatternSet
}

// Root returns the grammar's root rule (RuleID 0), the pattern list that
// `$self` and `$base` both resolve to.
func (g *CompiledGrammar) Root() *Rule { return &g.Rules[0] }

// Rule returns the rule at id. Callers within this package only ever pass
// IDs obtained from the same grammar's compilation, so id is always valid.
func (g *CompiledGrammar) Rule(id RuleID) *Rule { return &g.Rules[id] }

type compiler struct {
	grammar   *CompiledGrammar
	interner  *scope.Interner
	resolver  ExternalResolver
	log       *slog.Logger
	rawRepo   RawRepository
	named     map[string]RuleID
	diags     []Diagnostic
	emptyRule RuleID
	haveEmpty bool
}

// Compile turns a decoded RawGrammar into a CompiledGrammar, resolving
// every include it can and recording a Diagnostic for every one it can't.
// It never returns a nil grammar and never errors outright: a malformed
// grammar compiles to a (possibly mostly-empty) CompiledGrammar plus
// diagnostics describing what was wrong, per spec.md's best-effort
// compilation contract. Every diagnostic is also logged to log (or
// slog.Default() if log is nil) as it's recorded, so a caller that only
// wants the CompiledGrammar and doesn't inspect the returned slice still
// sees compile problems on its configured log sink.
func Compile(raw RawGrammar, interner *scope.Interner, resolver ExternalResolver, log *slog.Logger) (*CompiledGrammar, []Diagnostic) {
	if resolver == nil {
		resolver = NopResolver{}
	}
	if log == nil {
		log = slog.Default()
	}
	g := &CompiledGrammar{
		Name:       raw.Name,
		ScopeName:  raw.ScopeName,
		FileTypes:  raw.FileTypes,
		Repository: make(map[string]RuleID, len(raw.Repository)),
	}
	if raw.ScopeName != "" {
		g.ScopeID = interner.MustIntern(raw.ScopeName)
	}
	if raw.FirstLineMatch != "" {
		g.FirstLineMatch = rx.NewLazy(raw.FirstLineMatch)
	}

	c := &compiler{
		grammar:   g,
		interner:  interner,
		resolver:  resolver,
		log:       log,
		rawRepo:   raw.Repository,
		named:     make(map[string]RuleID, len(raw.Repository)),
		emptyRule: -1,
	}

	rootID := c.allocRule()
	if rootID != 0 {
		panic("grammar: root rule must be allocated first")
	}
	g.Rules[0] = Rule{ID: 0, Kind: KindContainer}
	g.Rules[0].Patterns = c.compilePatternList(raw.Patterns, "patterns")

	// Compile every repository entry, even ones no reachable include
	// ultimately references, so a direct-by-name lookup still works and so
	// regex-compile diagnostics surface for dead repository entries too
	// (mirrors vscode-textmate's eager validation).
	for name := range raw.Repository {
		c.compileNamed(name, fmt.Sprintf("repository.%s", name))
	}
	for name, id := range c.named {
		g.Repository[name] = id
	}

	g.patternSetOnce = make([]sync.Once, len(g.Rules))
	g.patternSetVal = make([]*PatternSet, len(g.Rules))

	return g, c.diags
}

func (c *compiler) allocRule() RuleID {
	id := RuleID(len(c.grammar.Rules))
	c.grammar.Rules = append(c.grammar.Rules, Rule{ID: id, Kind: KindContainer})
	return id
}

func (c *compiler) diagnose(kind DiagnosticKind, path, message string) {
	d := Diagnostic{Kind: kind, Path: path, Message: message}
	c.diags = append(c.diags, d)
	c.log.Warn("grammar compile diagnostic", "kind", kind.String(), "path", path, "message", message)
}

// emptyContainer returns a shared, cached rule with no patterns, used as
// the degraded stand-in for an include that could not be resolved.
func (c *compiler) emptyContainer() RuleID {
	if !c.haveEmpty {
		c.emptyRule = c.allocRule()
		c.haveEmpty = true
	}
	return c.emptyRule
}

// compileNamed compiles (once) and caches the repository entry called
// name, allocating its RuleID before recursing into its body so that a
// cyclic include (A includes B, B includes A) resolves to the correct
// rule instead of looping forever.
func (c *compiler) compileNamed(name, path string) RuleID {
	if id, ok := c.named[name]; ok {
		return id
	}
	raw, ok := c.rawRepo[name]
	if !ok {
		return noRule
	}
	id := c.allocRule()
	c.named[name] = id
	c.compileRuleInto(id, raw, path)
	return id
}

// compilePatternList compiles a `patterns` array into PatternRefs, one per
// entry (an `include` entry resolves to a reference; any other entry
// compiles to an inline rule).
func (c *compiler) compilePatternList(patterns []RawRule, path string) []PatternRef {
	if len(patterns) == 0 {
		return nil
	}
	out := make([]PatternRef, 0, len(patterns))
	for i, raw := range patterns {
		out = append(out, c.compilePatternRef(raw, fmt.Sprintf("%s[%d]", path, i)))
	}
	return out
}

// compilePatternRef resolves a single pattern-list entry to a PatternRef,
// either by following its `include` target or by compiling it inline.
func (c *compiler) compilePatternRef(raw RawRule, path string) PatternRef {
	if raw.Include != "" {
		return c.resolveInclude(raw.Include, path)
	}
	id := c.allocRule()
	c.compileRuleInto(id, raw, path)
	return PatternRef{Rule: id}
}

// resolveInclude resolves `$self`, `$base`, a local `#name`, or a
// cross-grammar `scopeName` / `scopeName#name` include target.
func (c *compiler) resolveInclude(ref, path string) PatternRef {
	switch {
	case ref == "$self" || ref == "$base":
		return PatternRef{Rule: 0}
	case strings.HasPrefix(ref, "#"):
		name := ref[1:]
		id := c.compileNamed(name, fmt.Sprintf("repository.%s", name))
		if id == noRule {
			c.diagnose(UnresolvedInclude, path, fmt.Sprintf("no repository entry named %q", name))
			return PatternRef{Rule: c.emptyContainer()}
		}
		return PatternRef{Rule: id}
	default:
		scopeName, ruleName := splitInclude(ref)
		external, ok := c.resolver.Resolve(scopeName)
		if !ok {
			c.diagnose(UnresolvedInclude, path, fmt.Sprintf("unknown external grammar %q", scopeName))
			return PatternRef{Rule: c.emptyContainer()}
		}
		if ruleName == "" {
			return PatternRef{Grammar: external, Rule: 0}
		}
		id, ok := external.Repository[ruleName]
		if !ok {
			c.diagnose(UnresolvedInclude, path, fmt.Sprintf("grammar %q has no repository entry named %q", scopeName, ruleName))
			return PatternRef{Rule: c.emptyContainer()}
		}
		return PatternRef{Grammar: external, Rule: id}
	}
}

// splitInclude splits "scopeName#ruleName" into its two parts; ruleName is
// "" when there is no "#".
func splitInclude(ref string) (scopeName, ruleName string) {
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// compileRuleInto fills in grammar.Rules[id] from raw, dispatching on which
// of Include/Begin+End/Begin+While/Match/bare-container shape raw has.
// Begin wins over Match when both are set (diagnosed below); a bare End or
// While with no Begin, and a bare Begin with neither, are each diagnosed
// and treated as a container (of the rule's own patterns for End/While, of
// nothing for Begin) rather than failing the whole grammar.
func (c *compiler) compileRuleInto(id RuleID, raw RawRule, path string) {
	g := c.grammar
	// Compiling captures and child patterns allocates further rules and may
	// grow g.Rules, so the rule is built here and stored once at the end.
	rule := &Rule{}
	rule.ID = id
	rule.Name = c.internOrNone(raw.Name)
	rule.ContentName = c.internOrNone(raw.ContentName)

	if raw.Match != "" && raw.Begin != "" {
		c.diagnose(MalformedGrammar, path, "rule has both \"match\" and \"begin\"; \"match\" is ignored")
	}

	switch {
	case raw.Include != "":
		rule.Kind = KindContainer
		rule.Patterns = []PatternRef{c.resolveInclude(raw.Include, path)}

	case raw.Begin != "" && raw.End != "":
		rule.Kind = KindBeginEnd
		rule.Begin = c.compilePattern(raw.Begin, path+".begin")
		rule.BeginCaptures = c.compileCaptures(raw.BeginCaptures, path+".beginCaptures")
		rule.EndSource = raw.End
		rule.EndHasBackrefs = containsBackref(raw.End)
		if !rule.EndHasBackrefs {
			rule.EndStatic = c.compilePattern(raw.End, path+".end")
		}
		rule.EndCaptures = c.compileCaptures(raw.EndCaptures, path+".endCaptures")
		rule.ApplyEndPatternLast = bool(raw.ApplyEndPatternLast)
		rule.Patterns = c.compilePatternList(raw.Patterns, path+".patterns")

	case raw.Begin != "" && raw.While != "":
		rule.Kind = KindBeginWhile
		rule.Begin = c.compilePattern(raw.Begin, path+".begin")
		rule.BeginCaptures = c.compileCaptures(raw.BeginCaptures, path+".beginCaptures")
		rule.WhileSource = raw.While
		rule.WhileHasBackrefs = containsBackref(raw.While)
		if !rule.WhileHasBackrefs {
			rule.WhileStatic = c.compilePattern(raw.While, path+".while")
		}
		rule.WhileCaptures = c.compileCaptures(raw.WhileCaptures, path+".whileCaptures")
		rule.Patterns = c.compilePatternList(raw.Patterns, path+".patterns")

	case raw.Begin != "":
		c.diagnose(MalformedGrammar, path, "rule has \"begin\" but neither \"end\" nor \"while\"")
		rule.Kind = KindContainer

	case raw.Match != "":
		rule.Kind = KindMatch
		rule.Match = c.compilePattern(raw.Match, path+".match")
		rule.Captures = c.compileCaptures(raw.Captures, path+".captures")

	case raw.End != "":
		c.diagnose(MalformedGrammar, path, "rule has \"end\" but no \"begin\"")
		rule.Kind = KindContainer
		rule.Patterns = c.compilePatternList(raw.Patterns, path+".patterns")

	case raw.While != "":
		c.diagnose(MalformedGrammar, path, "rule has \"while\" but no \"begin\"")
		rule.Kind = KindContainer
		rule.Patterns = c.compilePatternList(raw.Patterns, path+".patterns")

	default:
		rule.Kind = KindContainer
		rule.Patterns = c.compilePatternList(raw.Patterns, path+".patterns")
	}
	g.Rules[id] = *rule
}

// compilePattern compiles source into a lazily-shared regex, recording a
// RegexCompileError diagnostic (and degrading to an always-failing
// placeholder rather than a nil) if source doesn't parse.
func (c *compiler) compilePattern(source, path string) *rx.Lazy {
	lz := rx.NewLazy(source)
	if _, err := lz.Get(); err != nil {
		c.diagnose(RegexCompileError, path, err.Error())
	}
	return lz
}

func (c *compiler) internOrNone(name string) scope.ID {
	if name == "" {
		return scope.None
	}
	return c.interner.MustIntern(name)
}

func (c *compiler) compileCaptures(raw RawCaptures, path string) []CaptureTarget {
	size := raw.maxIndex() + 1
	if size <= 0 {
		return nil
	}
	out := make([]CaptureTarget, size)
	for i := range out {
		out[i] = CaptureTarget{Nested: noRule}
	}
	for _, idx := range raw.sortedIndices() {
		sub := raw[idx]
		target := CaptureTarget{Nested: noRule}
		if sub.Name != "" {
			target.HasScope = true
			target.Scope = c.interner.MustIntern(sub.Name)
		}
		if len(sub.Patterns) > 0 {
			nestedID := c.allocRule()
			c.grammar.Rules[nestedID].Kind = KindContainer
			c.grammar.Rules[nestedID].Patterns = c.compilePatternList(sub.Patterns, fmt.Sprintf("%s[%d].patterns", path, idx))
			target.Nested = nestedID
		}
		out[idx] = target
	}
	return out
}

// containsBackref reports whether source contains a numeric backreference
// marker (\1 through \9) that must be substituted against the begin
// match's captures before the pattern can be compiled (see
// state.SubstituteBackrefs and SPEC_FULL.md §4.5).
func containsBackref(source string) bool {
	for i := 0; i+1 < len(source); i++ {
		if source[i] != '\\' {
			continue
		}
		// Count preceding backslashes so \\1 (escaped backslash, literal
		// "1") is not mistaken for a backreference.
		backslashes := 0
		for j := i; j >= 0 && source[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			continue
		}
		if source[i+1] >= '1' && source[i+1] <= '9' {
			return true
		}
	}
	return false
}
