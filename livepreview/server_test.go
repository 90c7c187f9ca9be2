package livepreview

import (
	"encoding/json"
	"testing"

	"github.com/cairnlang/cairn/grammar"
	"github.com/cairnlang/cairn/highlight"
	"github.com/cairnlang/cairn/scope"
)

func testRegistry(t *testing.T) *highlight.Registry {
	t.Helper()
	raw, err := grammar.ParseRawGrammar([]byte(`{
		"scopeName": "source.test",
		"patterns": [{"match": "\\bif\\b", "name": "keyword.control.if"}]
	}`))
	if err != nil {
		t.Fatalf("ParseRawGrammar: %v", err)
	}
	in := scope.New()
	g, diags := grammar.Compile(raw, in, grammar.NopResolver{}, nil)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	r := highlight.NewRegistry()
	r.Register(&highlight.Language{
		ScopeName:   "source.test",
		DisplayName: "Test",
		Grammar:     g,
		FileTypes:   []string{"test"},
		Interner:    in,
	})
	return r
}

func TestDispatchTokenize(t *testing.T) {
	s := NewServer(testRegistry(t), nil)
	params, _ := json.Marshal(tokenizeParams{ScopeName: "source.test", Text: "if x"})
	resp := s.dispatch(rpcRequest{ID: float64(1), Method: "tokenize", Params: params})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	lines, ok := resp.Result.([]lineJSON)
	if !ok || len(lines) != 1 {
		t.Fatalf("expected one line of results, got %#v", resp.Result)
	}
	if len(lines[0].Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(lines[0].Tokens))
	}
	if lines[0].Tokens[0].Scopes[len(lines[0].Tokens[0].Scopes)-1] != "keyword.control.if" {
		t.Fatalf("expected resolved scope name, got %v", lines[0].Tokens[0].Scopes)
	}
}

func TestDispatchTokenizeUnknownLanguage(t *testing.T) {
	s := NewServer(testRegistry(t), nil)
	params, _ := json.Marshal(tokenizeParams{ScopeName: "source.unknown", Text: "x"})
	resp := s.dispatch(rpcRequest{ID: float64(2), Method: "tokenize", Params: params})
	if resp.Error == nil {
		t.Fatal("expected an error for an unregistered scope name")
	}
}

func TestDispatchListLanguages(t *testing.T) {
	s := NewServer(testRegistry(t), nil)
	resp := s.dispatch(rpcRequest{ID: float64(3), Method: "listLanguages"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	langs, ok := resp.Result.([]languageJSON)
	if !ok || len(langs) != 1 {
		t.Fatalf("expected one registered language, got %#v", resp.Result)
	}
	if langs[0].ScopeName != "source.test" {
		t.Fatalf("unexpected scope name %q", langs[0].ScopeName)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	s := NewServer(testRegistry(t), nil)
	resp := s.dispatch(rpcRequest{ID: float64(4), Method: "bogus"})
	if resp.Error == nil {
		t.Fatal("expected an error for an unknown method")
	}
}
