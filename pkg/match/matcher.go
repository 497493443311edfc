package match

import "errors"

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid pattern")

// Matcher reports whether a candidate string matches a pattern.
type Matcher interface {
	Matches(candidate string) bool
}
