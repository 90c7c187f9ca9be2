package highlight

import (
	"strings"
	"testing"

	"github.com/cairnlang/cairn/grammar"
	"github.com/cairnlang/cairn/scope"
	"github.com/cairnlang/cairn/token"
)

func compileTestGrammar(t *testing.T, src string) (*grammar.CompiledGrammar, *scope.Interner) {
	t.Helper()
	raw, err := grammar.ParseRawGrammar([]byte(src))
	if err != nil {
		t.Fatalf("ParseRawGrammar: %v", err)
	}
	in := scope.New()
	g, diags := grammar.Compile(raw, in, grammar.NopResolver{}, nil)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	return g, in
}

func TestTokenizeSimpleMatch(t *testing.T) {
	g, in := compileTestGrammar(t, `{
		"scopeName": "source.test",
		"patterns": [{"match": "\\bif\\b", "name": "keyword.control.if"}]
	}`)
	tk := NewTokenizer(g, nil)
	res, err := tk.TokenizeLine(nil, "if x")
	if err != nil {
		t.Fatalf("TokenizeLine: %v", err)
	}
	src := in.MustIntern("source.test")
	kw := in.MustIntern("keyword.control.if")

	if len(res.Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d: %+v", len(res.Tokens), res.Tokens)
	}
	if res.Tokens[0].Start != 0 || res.Tokens[0].End != 2 {
		t.Fatalf("token 0 span = [%d,%d)", res.Tokens[0].Start, res.Tokens[0].End)
	}
	wantScopes := scope.Stack{src, kw}
	if !stacksEqual(res.Tokens[0].Scopes, wantScopes) {
		t.Fatalf("token 0 scopes = %v, want %v", res.Tokens[0].Scopes, wantScopes)
	}
	if res.Tokens[1].Start != 2 || res.Tokens[1].End != 4 {
		t.Fatalf("token 1 span = [%d,%d)", res.Tokens[1].Start, res.Tokens[1].End)
	}
	if !stacksEqual(res.Tokens[1].Scopes, scope.Stack{src}) {
		t.Fatalf("token 1 scopes = %v, want %v", res.Tokens[1].Scopes, scope.Stack{src})
	}
	if res.NextState.Depth() != 0 {
		t.Fatalf("expected no open spans, got depth %d", res.NextState.Depth())
	}
}

func TestTokenizeBeginEndAcrossLines(t *testing.T) {
	g, _ := compileTestGrammar(t, `{
		"scopeName": "source.test",
		"patterns": [
			{"begin": "\"", "end": "\"", "name": "string.quoted.double"}
		]
	}`)
	tk := NewTokenizer(g, nil)

	line1, err := tk.TokenizeLine(nil, `"abc`)
	if err != nil {
		t.Fatalf("line1: %v", err)
	}
	if line1.NextState.Depth() != 1 {
		t.Fatalf("expected an open string span after line 1, got depth %d", line1.NextState.Depth())
	}
	if got := coveredLength(line1.Tokens); got != len(`"abc`) {
		t.Fatalf("line1 coverage = %d, want %d", got, len(`"abc`))
	}

	line2, err := tk.TokenizeLine(line1.NextState, `def"`)
	if err != nil {
		t.Fatalf("line2: %v", err)
	}
	if line2.NextState.Depth() != 0 {
		t.Fatalf("expected the string span to close on line 2, got depth %d", line2.NextState.Depth())
	}
	if got := coveredLength(line2.Tokens); got != len(`def"`) {
		t.Fatalf("line2 coverage = %d, want %d", got, len(`def"`))
	}
}

func TestTokenizeBeginEndBackreference(t *testing.T) {
	g, _ := compileTestGrammar(t, `{
		"scopeName": "source.test",
		"patterns": [
			{
				"begin": "(['\"])",
				"end": "\\1",
				"name": "string.quoted"
			}
		]
	}`)
	tk := NewTokenizer(g, nil)
	res, err := tk.TokenizeLine(nil, `'it''s'`)
	if err != nil {
		t.Fatalf("TokenizeLine: %v", err)
	}
	if res.NextState.Depth() != 0 {
		t.Fatalf("expected the span to close on its matching quote, got depth %d", res.NextState.Depth())
	}
	if got := coveredLength(res.Tokens); got != len(`'it''s'`) {
		t.Fatalf("coverage = %d, want %d", got, len(`'it''s'`))
	}
}

func TestTokenizeBeginWhileContinuation(t *testing.T) {
	g, in := compileTestGrammar(t, `{
		"scopeName": "source.test",
		"patterns": [
			{"begin": "^> ", "while": "^> ", "name": "markup.quote"}
		]
	}`)
	tk := NewTokenizer(g, nil)

	line1, err := tk.TokenizeLine(nil, "> hello")
	if err != nil {
		t.Fatalf("line1: %v", err)
	}
	if line1.NextState.Depth() != 1 {
		t.Fatal("expected the blockquote span to stay open after line 1")
	}
	if got := coveredLength(line1.Tokens); got != len("> hello") {
		t.Fatalf("line1 coverage = %d, want %d", got, len("> hello"))
	}

	line2, err := tk.TokenizeLine(line1.NextState, "> continued")
	if err != nil {
		t.Fatalf("line2: %v", err)
	}
	if line2.NextState.Depth() != 1 {
		t.Fatal("expected the blockquote span to stay open across a continuation line")
	}
	if got := coveredLength(line2.Tokens); got != len("> continued") {
		t.Fatalf("line2 coverage = %d, want %d", got, len("> continued"))
	}

	line3, err := tk.TokenizeLine(line2.NextState, "not quoted")
	if err != nil {
		t.Fatalf("line3: %v", err)
	}
	if line3.NextState.Depth() != 0 {
		t.Fatal("expected the blockquote span to close once the while condition fails")
	}
	if got := coveredLength(line3.Tokens); got != len("not quoted") {
		t.Fatalf("line3 coverage = %d, want %d", got, len("not quoted"))
	}
	markup := in.MustIntern("markup.quote")
	found := false
	for _, tok := range line3.Tokens {
		for _, s := range tok.Scopes {
			if s == markup {
				found = true
			}
		}
	}
	if found {
		t.Fatal("the closed-out line must not carry the blockquote scope")
	}
}

func TestTokenizeCapturesWithNestedScope(t *testing.T) {
	g, in := compileTestGrammar(t, `{
		"scopeName": "source.test",
		"patterns": [
			{
				"match": "(\\d+)",
				"name": "constant.numeric",
				"captures": {
					"1": {"name": "constant.numeric.value"}
				}
			}
		]
	}`)
	tk := NewTokenizer(g, nil)
	res, err := tk.TokenizeLine(nil, "42")
	if err != nil {
		t.Fatalf("TokenizeLine: %v", err)
	}
	if got := coveredLength(res.Tokens); got != 2 {
		t.Fatalf("coverage = %d, want 2", got)
	}
	value := in.MustIntern("constant.numeric.value")
	last := res.Tokens[len(res.Tokens)-1]
	if !stackContains(last.Scopes, value) {
		t.Fatalf("expected capture scope %v in %v", value, last.Scopes)
	}
}

func TestTokenizeCapturesWithRepeatedText(t *testing.T) {
	g, in := compileTestGrammar(t, `{
		"scopeName": "source.test",
		"patterns": [
			{
				"match": "(a)(a)",
				"captures": {
					"1": {"name": "entity.one"},
					"2": {"name": "entity.two"}
				}
			}
		]
	}`)
	tk := NewTokenizer(g, nil)
	res, err := tk.TokenizeLine(nil, "aa")
	if err != nil {
		t.Fatalf("TokenizeLine: %v", err)
	}
	if got := coveredLength(res.Tokens); got != 2 {
		t.Fatalf("coverage = %d, want 2", got)
	}
	one := in.MustIntern("entity.one")
	two := in.MustIntern("entity.two")

	var gotOne, gotTwo bool
	for _, tok := range res.Tokens {
		if tok.Start == 0 && tok.End == 1 && stackContains(tok.Scopes, one) {
			gotOne = true
		}
		if tok.Start == 1 && tok.End == 2 && stackContains(tok.Scopes, two) {
			gotTwo = true
		}
	}
	if !gotOne {
		t.Fatalf("expected entity.one on [0,1), got %+v", res.Tokens)
	}
	if !gotTwo {
		t.Fatalf("expected entity.two on [1,2), got %+v", res.Tokens)
	}
}

func TestTokenizeStackOverflowDegradesGracefully(t *testing.T) {
	g, _ := compileTestGrammar(t, `{
		"scopeName": "source.test",
		"patterns": [
			{"begin": "(?=x)", "end": "(?!)", "name": "meta.recursive", "patterns": [{"include": "$self"}]}
		]
	}`)
	tk := NewTokenizer(g, nil)
	line := strings.Repeat("x", 150)
	res, err := tk.TokenizeLine(nil, line)
	if err != nil {
		t.Fatalf("TokenizeLine: %v", err)
	}
	if res.Overflowed == 0 {
		t.Fatal("expected a zero-width self-recursive span to hit the depth cap")
	}
	if got := coveredLength(res.Tokens); got != len(line) {
		t.Fatalf("coverage = %d, want full line despite overflow", got)
	}
}

func coveredLength(tokens []token.Token) int {
	total := 0
	for _, t := range tokens {
		total += t.Len()
	}
	return total
}

func stacksEqual(a, b scope.Stack) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stackContains(s scope.Stack, id scope.ID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}
