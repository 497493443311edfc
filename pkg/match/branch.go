package match

import (
	"fmt"
	"strings"
)

// BranchMatcher matches branch names against a list of protected entries.
// An entry is either an exact name ("main") or a prefix pattern ending in
// "/*" ("release/*").
type BranchMatcher struct {
	exact    map[string]string // name -> original entry
	prefixes []string          // entries ending in "/*", stored without the "*"
	entries  []string
}

func NewBranchMatcher(entries []string) (*BranchMatcher, error) {
	m := &BranchMatcher{
		exact:   make(map[string]string, len(entries)),
		entries: append([]string(nil), entries...),
	}
	for _, entry := range entries {
		if entry == "" {
			return nil, fmt.Errorf("empty branch entry: %w", ErrInvalidPattern)
		}
		if strings.HasSuffix(entry, "/*") {
			prefix := strings.TrimSuffix(entry, "*")
			if strings.Contains(prefix, "*") {
				return nil, fmt.Errorf("branch entry %q: %w", entry, ErrInvalidPattern)
			}
			m.prefixes = append(m.prefixes, prefix)
			continue
		}
		if strings.Contains(entry, "*") {
			return nil, fmt.Errorf("branch entry %q: wildcard only allowed as trailing \"/*\": %w", entry, ErrInvalidPattern)
		}
		m.exact[entry] = entry
	}
	return m, nil
}

func (m *BranchMatcher) Matches(branch string) bool {
	_, ok := m.Match(branch)
	return ok
}

// Match returns the protected entry the branch matched, if any.
func (m *BranchMatcher) Match(branch string) (string, bool) {
	if entry, ok := m.exact[branch]; ok {
		return entry, true
	}
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(branch, prefix) {
			return prefix + "*", true
		}
	}
	return "", false
}

// SuggestAlternative derives a non-protected branch name from a protected
// one, for use as a suggested alternative in denial messages.
func (m *BranchMatcher) SuggestAlternative(branch string) string {
	candidate := "agents/" + branch
	if !m.Matches(candidate) {
		return candidate
	}
	candidate = branch + "-draft"
	if !m.Matches(candidate) {
		return candidate
	}
	return ""
}
