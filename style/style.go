// Package style is the seam between a token's scope stack and how it gets
// painted: it defines the Resolver interface a caller (an editor, a
// terminal renderer, the livepreview server) implements to turn scopes
// into colors, without this module needing to know anything about themes.
package style

import "github.com/cairnlang/cairn/scope"

// ID identifies a resolved visual style (a foreground color, weight, and
// so on) in whatever scheme the Resolver's owner uses. It is opaque here
// by design — this module never interprets it.
type ID int32

// Resolver maps a token's scope stack to a style. Implementations
// typically walk the stack from innermost to outermost looking for the
// most specific matching rule in a theme, the same way a real TextMate
// theme's scope selectors are matched; that policy lives entirely on the
// Resolver side; this interface only names the seam.
type Resolver interface {
	Resolve(scopes scope.Stack) ID
}

// NopResolver resolves every scope stack to the zero ID. It is useful for
// callers that only want token boundaries and scope names (e.g. exporting
// a token stream as JSON) and have no theme to apply.
type NopResolver struct{}

// Resolve always returns ID(0).
func (NopResolver) Resolve(scope.Stack) ID { return 0 }
