package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
)

// RawGrammar mirrors the TextMate JSON grammar dialect described in
// spec.md §6: the subset of vscode-textmate's `.tmLanguage.json` shape this
// engine understands. It is decoded as-is from JSON and then compiled into
// a CompiledGrammar by Compile.
type RawGrammar struct {
	Name              string             `json:"name"`
	DisplayName       string             `json:"displayName"`
	ScopeName         string             `json:"scopeName"`
	FileTypes         []string           `json:"fileTypes"`
	FirstLineMatch    string             `json:"firstLineMatch"`
	FoldingStartMarker string            `json:"foldingStartMarker"`
	FoldingStopMarker  string            `json:"foldingStopMarker"`
	Patterns          []RawRule          `json:"patterns"`
	Repository        RawRepository      `json:"repository"`
	// InjectionSelector and Injections are accepted so grammars that carry
	// them still decode cleanly, but the core does not act on them
	// (injection beyond include resolution is out of scope, per spec.md §1).
	InjectionSelector string                   `json:"injectionSelector"`
	Injections        map[string]json.RawMessage `json:"injections"`
}

// RawRepository decodes a grammar's `repository` object. Most grammars map
// each name directly to a rule object; a few non-conformant grammars map a
// name to an array of rule objects instead, which is treated as an
// anonymous container rule whose patterns are that array (see SPEC_FULL.md
// §3, grounded on original_source's deserialize_repository_map).
type RawRepository map[string]RawRule

// UnmarshalJSON implements the single-rule-or-array-of-rules tolerance
// described above. It also walks the object's keys in document order
// (rather than unmarshaling straight into a map, which would silently
// collapse a repeated key to its last occurrence) so a duplicate
// repository entry can be logged rather than disappearing unremarked;
// the last occurrence still wins, matching encoding/json's own behavior
// for a duplicate map key.
func (r *RawRepository) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("grammar: repository must be a JSON object")
	}

	out := make(RawRepository)
	seen := make(map[string]bool)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name := keyTok.(string)
		if seen[name] {
			slog.Default().Warn("duplicate repository key", "name", name)
		}
		seen[name] = true

		var entry json.RawMessage
		if err := dec.Decode(&entry); err != nil {
			return err
		}
		var rule RawRule
		if err := json.Unmarshal(entry, &rule); err == nil {
			out[name] = rule
			continue
		}
		var asArray []RawRule
		if err := json.Unmarshal(entry, &asArray); err != nil {
			return err
		}
		out[name] = RawRule{Patterns: asArray}
	}
	*r = out
	return nil
}

// RawRule is a single recursive grammar pattern. Which fields are set
// determines its shape: Include, Match, Begin+End, Begin+While, or a bare
// container of Patterns/Repository. compileRuleInto (compile.go) dispatches on
// that shape the same way vscode-textmate does.
type RawRule struct {
	Include     string `json:"include"`
	Name        string `json:"name"`
	ContentName string `json:"contentName"`

	Match    string      `json:"match"`
	Captures RawCaptures `json:"captures"`

	Begin         string      `json:"begin"`
	BeginCaptures RawCaptures `json:"beginCaptures"`

	End         string      `json:"end"`
	EndCaptures RawCaptures `json:"endCaptures"`

	While         string      `json:"while"`
	WhileCaptures RawCaptures `json:"whileCaptures"`

	Patterns   []RawRule     `json:"patterns"`
	Repository RawRepository `json:"repository"`

	ApplyEndPatternLast boolOrNumber `json:"applyEndPatternLast"`
}

// boolOrNumber decodes a JSON value that is conventionally a boolean but
// which some real-world grammars encode as the integer 0 or 1 (see
// SPEC_FULL.md §3).
type boolOrNumber bool

func (b *boolOrNumber) UnmarshalJSON(data []byte) error {
	var asBool bool
	if err := json.Unmarshal(data, &asBool); err == nil {
		*b = boolOrNumber(asBool)
		return nil
	}
	var asNumber int
	if err := json.Unmarshal(data, &asNumber); err == nil {
		*b = boolOrNumber(asNumber != 0)
		return nil
	}
	// Unrecognized encoding: degrade to false rather than failing the
	// whole grammar over one cosmetic field.
	*b = false
	return nil
}

// RawCaptures decodes a TextMate `captures`/`beginCaptures`/`endCaptures`
// object: string-keyed ("0".."9", occasionally higher) map of capture index
// to a nested RawRule describing the scope and/or sub-patterns for that
// group. Non-numeric keys are dropped rather than erroring the grammar
// (observed in a handful of XML-flavored grammars; see SPEC_FULL.md §3).
type RawCaptures map[int]RawRule

// UnmarshalJSON parses the decimal-string-keyed object form.
func (c *RawCaptures) UnmarshalJSON(data []byte) error {
	var raw map[string]RawRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(RawCaptures, len(raw))
	for key, rule := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out[idx] = rule
	}
	*c = out
	return nil
}

// sortedIndices returns the capture indices in ascending order, for
// deterministic compilation (stable RuleID assignment across runs on the
// same grammar).
func (c RawCaptures) sortedIndices() []int {
	out := make([]int, 0, len(c))
	for idx := range c {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// maxIndex returns the highest capture index present, or -1 if c is empty.
func (c RawCaptures) maxIndex() int {
	max := -1
	for idx := range c {
		if idx > max {
			max = idx
		}
	}
	return max
}

// ParseRawGrammar decodes a single TextMate grammar JSON document. Loading
// it from a file, archive, or network location is an external-collaborator
// concern (spec.md §1); this function only turns bytes already in memory
// into a RawGrammar.
func ParseRawGrammar(data []byte) (RawGrammar, error) {
	var g RawGrammar
	if err := json.Unmarshal(data, &g); err != nil {
		return RawGrammar{}, err
	}
	return g, nil
}
