package match

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PathMatcher matches repository-relative file paths against a glob pattern.
// Supported syntax is the doublestar dialect: `*` within a segment, `**`
// across segments, and exact segments. Matching is case-sensitive.
type PathMatcher struct {
	pattern string
}

func NewPathMatcher(pattern string) (*PathMatcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty path pattern: %w", ErrInvalidPattern)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("path pattern %q: %w", pattern, ErrInvalidPattern)
	}
	return &PathMatcher{pattern: pattern}, nil
}

func (m *PathMatcher) Pattern() string {
	return m.pattern
}

func (m *PathMatcher) Matches(candidate string) bool {
	ok, err := doublestar.Match(m.pattern, NormalizePath(candidate))
	return err == nil && ok
}

// NormalizePath converts a candidate path to the repository-relative form
// patterns are written against: forward slashes, no leading "./" or "/".
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}
