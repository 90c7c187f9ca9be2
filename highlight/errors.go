package highlight

import "errors"

// ErrInvariantViolation is returned if the tokenizer's own output would
// violate the coverage/contiguity guarantee it promises (see
// token.Accumulator) — a defect in the engine itself, never something a
// malformed grammar alone can trigger, since every degraded path (failed
// include, failed regex, stack overflow) still falls back to emitting
// plain content rather than emitting nothing.
var ErrInvariantViolation = errors.New("highlight: tokenizer output violates coverage invariant")

// overflow is not exported as an error value because it is not fatal: a
// line that overflows the state-stack depth cap still tokenizes
// completely, just without opening the span that would have exceeded the
// cap. Tokenizer.TokenizeLine reports it through the Overflowed count on
// the returned Result instead of as an error.
