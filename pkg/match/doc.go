// Package match provides the pattern-matching primitives used by permission
// policies: glob matching for repository paths, verb and substring matching
// for shell commands, and exact/prefix matching for branch names.
//
// All matchers validate their patterns at construction time. A malformed
// pattern is a policy-load error, never a silent no-op at match time.
package match
