package highlight

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/cairnlang/cairn/grammar"
	"github.com/cairnlang/cairn/scope"
)

// Language pairs a compiled grammar with the file-association metadata
// Registry uses to find it.
type Language struct {
	ScopeName   string
	DisplayName string
	Grammar     *grammar.CompiledGrammar
	FileTypes   []string // extensions without the leading dot, e.g. "rs", "go"

	// Interner is the scope.Interner the grammar was compiled with. A
	// caller that needs to turn a token's scope.Stack back into scope name
	// strings (e.g. livepreview, serializing tokens as JSON) uses this
	// rather than a separate registry of interners.
	Interner *scope.Interner
}

// Registry is a lookup table of compiled grammars by scope name, file
// extension, and shebang, the same three ways a real editor resolves
// "which grammar applies to this buffer." It also implements
// grammar.ExternalResolver, so one Registry can supply cross-grammar
// `include` resolution for every grammar registered in it.
type Registry struct {
	mu         sync.RWMutex
	byScope    map[string]*Language
	byExt      map[string]*Language
	shebangs   []shebangRule
}

type shebangRule struct {
	interpreter string
	lang        *Language
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byScope: make(map[string]*Language),
		byExt:   make(map[string]*Language),
	}
}

// Register adds lang, indexing it by scope name and every file extension
// it declares. A later Register call for the same scope name replaces the
// earlier one.
func (r *Registry) Register(lang *Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byScope[lang.ScopeName] = lang
	for _, ext := range lang.FileTypes {
		r.byExt[strings.ToLower(ext)] = lang
	}
}

// RegisterShebang associates a shebang interpreter name (e.g. "python3")
// with an already-registered language, for files detected by their #!
// line rather than their extension.
func (r *Registry) RegisterShebang(interpreter string, lang *Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shebangs = append(r.shebangs, shebangRule{interpreter: interpreter, lang: lang})
}

// DetectByExtension returns the language registered for path's extension,
// if any.
func (r *Registry) DetectByExtension(path string) (*Language, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.byExt[ext]
	return lang, ok
}

// DetectByShebang inspects a file's first line for a "#!" interpreter
// directive and returns the language registered for that interpreter, if
// any.
func (r *Registry) DetectByShebang(firstLine string) (*Language, bool) {
	if !strings.HasPrefix(firstLine, "#!") {
		return nil, false
	}
	fields := strings.Fields(firstLine[2:])
	if len(fields) == 0 {
		return nil, false
	}
	interpreter := filepath.Base(fields[0])
	if interpreter == "env" && len(fields) > 1 {
		interpreter = fields[1]
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.shebangs {
		if rule.interpreter == interpreter {
			return rule.lang, true
		}
	}
	return nil, false
}

// AllLanguages returns every registered language, in no particular order.
func (r *Registry) AllLanguages() []*Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Language, 0, len(r.byScope))
	for _, lang := range r.byScope {
		out = append(out, lang)
	}
	return out
}

// Resolve implements grammar.ExternalResolver by scope name, so Registry
// can be passed directly to grammar.Compile when compiling one grammar in
// the context of every other grammar already registered.
func (r *Registry) Resolve(scopeName string) (*grammar.CompiledGrammar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.byScope[scopeName]
	if !ok {
		return nil, false
	}
	return lang.Grammar, true
}
