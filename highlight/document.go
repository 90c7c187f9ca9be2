package highlight

import "github.com/cairnlang/cairn/state"

// LineResult is one line's tokenization within a TokenizeDocument call,
// carrying the line's own byte offset within the document. Result.Tokens'
// Start/End are already document-relative — shifted by Offset — so a
// caller reconstructing the whole document's token stream can concatenate
// every LineResult's Tokens directly without adding Offset itself; Offset
// remains exposed for callers that want to know which line a token came
// from.
type LineResult struct {
	Offset int
	Result
}

// TokenizeDocument tokenizes an entire document line by line, threading
// state.Stack from each line into the next and starting from an empty
// stack. Each line handed to TokenizeLine excludes its terminator; the
// tokens on the returned LineResult are shifted from line-relative to
// document-relative offsets before being handed back, so that
// concatenating every LineResult's Tokens in order reproduces the same
// token stream (positions included) a single document-relative pass would
// have produced — this is what makes per-line and per-document
// tokenization composable, matching the guarantee TokenizeLine's own
// state-threading already gives one line to the next.
func (tk *Tokenizer) TokenizeDocument(text string) ([]LineResult, error) {
	var (
		results []LineResult
		stack   state.Stack
		offset  int
	)
	for _, span := range splitLines(text) {
		body := trimTerminator(span)
		res, err := tk.TokenizeLine(stack, body)
		if err != nil {
			return results, err
		}
		for i := range res.Tokens {
			res.Tokens[i].Start += offset
			res.Tokens[i].End += offset
		}
		results = append(results, LineResult{Offset: offset, Result: res})
		stack = res.NextState
		offset += len(span)
	}
	return results, nil
}

// splitLines splits text into consecutive spans each ending at (and
// including) its line terminator, except possibly the last. It recognizes
// "\n" and "\r\n"; a lone "\r" is treated as ordinary content, matching
// how most TextMate grammars and the editors that host them behave.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' {
			continue
		}
		out = append(out, text[start:i+1])
		start = i + 1
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// trimTerminator strips a trailing "\r\n" or "\n" from a line span.
func trimTerminator(span string) string {
	n := len(span)
	if n == 0 {
		return span
	}
	if span[n-1] == '\n' {
		n--
		if n > 0 && span[n-1] == '\r' {
			n--
		}
	}
	return span[:n]
}
