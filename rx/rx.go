// Package rx is a thin façade over an Oniguruma-semantics-compatible regex
// engine (github.com/dlclark/regexp2), giving the grammar compiler and
// tokenizer the lookaround, backreference, and \G anchoring behavior real
// TextMate grammars depend on. It also owns lazy, shared compilation: a
// rule stores a pattern source string, and the first caller to ask for the
// compiled form pays the cost for everyone.
package rx

import (
	"fmt"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultTimeout bounds how long a single match attempt may run before
// regexp2 aborts it. It guards against catastrophic backtracking in
// malformed or adversarial grammars; it is a backstop, not the primary
// safety mechanism (that's the tokenizer's zero-width and stack-depth
// guards — see highlight.Tokenizer).
var DefaultTimeout = 2 * time.Second

// DefaultOptions mirrors the feature set real-world TextMate grammars
// expect: Unicode character classes, with regexp2's default (non-RE2)
// syntax, which allows the backreferences and lookaround that RE2 mode
// does not.
const DefaultOptions = regexp2.Unicode

// Pattern is a compiled regular expression.
type Pattern struct {
	source string
	re     *regexp2.Regexp
}

// Source returns the original pattern text this Pattern was compiled from.
func (p *Pattern) Source() string { return p.source }

// Compile parses source into a Pattern. A compile failure is a normal,
// reportable error — callers (typically grammar.Compile) record it as a
// diagnostic rather than aborting.
func Compile(source string) (*Pattern, error) {
	re, err := regexp2.Compile(source, DefaultOptions)
	if err != nil {
		return nil, fmt.Errorf("rx: compile %q: %w", source, err)
	}
	re.MatchTimeout = DefaultTimeout
	return &Pattern{source: source, re: re}, nil
}

// Match is a single regex match with capture groups 0..9 (group 0 is the
// whole match).
type Match struct {
	start, end int
	groups     [10]group
}

type group struct {
	text       string
	start, end int
	present    bool
}

// Start returns the byte offset of the match's start.
func (m *Match) Start() int { return m.start }

// End returns the byte offset just past the match (half-open).
func (m *Match) End() int { return m.end }

// Group returns the text captured by group i (0 is the whole match) and
// whether that group participated in the match. Indices outside 0..9
// always report not-present.
func (m *Match) Group(i int) (string, bool) {
	if i < 0 || i > 9 {
		return "", false
	}
	g := m.groups[i]
	return g.text, g.present
}

// GroupRange returns the byte offsets, within the text FindAt was called
// on, of group i's capture (0 is the whole match), and whether that group
// participated in the match. This is the native offset regexp2 itself
// reports per capture — callers needing a group's span use this directly
// rather than re-deriving it by searching for the group's text within the
// match.
func (m *Match) GroupRange(i int) (start, end int, ok bool) {
	if i < 0 || i > 9 {
		return 0, 0, false
	}
	g := m.groups[i]
	return g.start, g.end, g.present
}

// FindAt returns the first match of p at or after byte offset `at` in
// text, or (nil, false) if there is none. Matching is anchored to scan
// forward from `at`, not to require the match to start exactly at `at` —
// callers that need an exact-position match (e.g. the scan loop choosing
// between a begin and an end pattern) compare Match.Start() against the
// position they asked for.
func (p *Pattern) FindAt(text string, at int) (*Match, bool) {
	if at > len(text) {
		return nil, false
	}
	m, err := p.re.FindStringMatchStartingAt(text, at)
	if err != nil || m == nil {
		return nil, false
	}
	out := &Match{start: m.Index, end: m.Index + m.Length}
	for i := 0; i <= 9; i++ {
		g := m.GroupByNumber(i)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		out.groups[i] = group{text: g.String(), start: g.Index, end: g.Index + g.Length, present: true}
	}
	return out, true
}

// Lazy holds a pattern source and compiles it at most once, sharing the
// result (or the compile failure) across every concurrent caller of Get.
// This is the "lazy compilation is shared" requirement from §4.2/§5: a
// rule's end/while pattern, or a match pattern with no backreferences, is
// compiled once and reused for the lifetime of the owning CompiledGrammar.
type Lazy struct {
	source string
	once   sync.Once
	cached *Pattern
	err    error
}

// NewLazy wraps source for deferred compilation.
func NewLazy(source string) *Lazy {
	return &Lazy{source: source}
}

// Get compiles the pattern on first call and returns the cached result on
// every subsequent call, including the cached error if compilation failed.
func (l *Lazy) Get() (*Pattern, error) {
	l.once.Do(func() {
		l.cached, l.err = Compile(l.source)
	})
	return l.cached, l.err
}

// Source returns the wrapped pattern text without forcing compilation.
func (l *Lazy) Source() string { return l.source }
