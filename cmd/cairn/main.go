// Command cairn compiles a TextMate grammar and tokenizes a source file
// with it, either printing the resulting tokens to stdout or serving them
// over the live-preview WebSocket protocol.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/cairnlang/cairn/grammar"
	"github.com/cairnlang/cairn/highlight"
	"github.com/cairnlang/cairn/livepreview"
	"github.com/cairnlang/cairn/scope"
)

func main() {
	grammarPath := flag.String("grammar", "", "path to a TextMate grammar JSON file")
	web := flag.String("web", "", "serve the live-preview protocol on this address (e.g. :8080) instead of printing to stdout")
	flag.Parse()

	args := flag.Args()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *grammarPath, *web, args); err != nil {
		fmt.Fprintf(os.Stderr, "cairn: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, grammarPath, webAddr string, args []string) error {
	if grammarPath == "" {
		return fmt.Errorf("-grammar is required")
	}

	lang, err := loadLanguage(grammarPath)
	if err != nil {
		return err
	}

	if webAddr != "" {
		return serveWeb(ctx, webAddr, lang)
	}

	if len(args) != 1 {
		return fmt.Errorf("usage: cairn -grammar <grammar.json> <source-file>")
	}
	return printTokens(lang, args[0])
}

func loadLanguage(grammarPath string) (*highlight.Language, error) {
	data, err := os.ReadFile(grammarPath)
	if err != nil {
		return nil, fmt.Errorf("reading grammar: %w", err)
	}
	raw, err := grammar.ParseRawGrammar(data)
	if err != nil {
		return nil, fmt.Errorf("parsing grammar: %w", err)
	}

	in := scope.New()
	g, diags := grammar.Compile(raw, in, grammar.NopResolver{}, nil)
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "cairn: %s\n", d)
	}

	return &highlight.Language{
		ScopeName:   raw.ScopeName,
		DisplayName: raw.DisplayName,
		Grammar:     g,
		FileTypes:   raw.FileTypes,
		Interner:    in,
	}, nil
}

func printTokens(lang *highlight.Language, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()

	tk := highlight.NewTokenizer(lang.Grammar, nil)
	var prev highlight.Result
	lineNo := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		res, err := tk.TokenizeLine(prev.NextState, scanner.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		for _, t := range res.Tokens {
			names := make([]string, len(t.Scopes))
			for i, id := range t.Scopes {
				names[i] = lang.Interner.NameOf(id)
			}
			fmt.Printf("%d:%d-%d\t%s\n", lineNo+1, t.Start, t.End, strings.Join(names, " "))
		}
		prev = res
		lineNo++
	}
	return scanner.Err()
}

func serveWeb(ctx context.Context, addr string, lang *highlight.Language) error {
	registry := highlight.NewRegistry()
	registry.Register(lang)

	srv := livepreview.NewServer(registry, slog.Default())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.ServeHTTP)

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	fmt.Printf("cairn live-preview: ws://localhost%s/ws\n", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
