package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathMatcher(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		candidate string
		want      bool
	}{
		{
			name:      "exact match",
			pattern:   "go.mod",
			candidate: "go.mod",
			want:      true,
		},
		{
			name:      "single star within segment",
			pattern:   "*.env",
			candidate: "prod.env",
			want:      true,
		},
		{
			name:      "single star does not cross segments",
			pattern:   "*.env",
			candidate: "config/prod.env",
			want:      false,
		},
		{
			name:      "double star crosses segments",
			pattern:   "secrets/**",
			candidate: "secrets/prod/api.key",
			want:      true,
		},
		{
			name:      "double star matches direct child",
			pattern:   "secrets/**",
			candidate: "secrets/api.key",
			want:      true,
		},
		{
			name:      "no match outside prefix",
			pattern:   "secrets/**",
			candidate: "src/secrets.go",
			want:      false,
		},
		{
			name:      "leading slash normalized",
			pattern:   "secrets/**",
			candidate: "/secrets/api.key",
			want:      true,
		},
		{
			name:      "dot-slash prefix normalized",
			pattern:   "go.sum",
			candidate: "./go.sum",
			want:      true,
		},
		{
			name:      "backslashes normalized",
			pattern:   "secrets/**",
			candidate: "secrets\\api.key",
			want:      true,
		},
		{
			name:      "case sensitive",
			pattern:   "Makefile",
			candidate: "makefile",
			want:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewPathMatcher(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Matches(tt.candidate))
		})
	}
}

func TestNewPathMatcherInvalid(t *testing.T) {
	for _, pattern := range []string{"", "secrets/[a-"} {
		_, err := NewPathMatcher(pattern)
		assert.ErrorIs(t, err, ErrInvalidPattern, "pattern %q", pattern)
	}
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "a/b.txt", NormalizePath("./a/b.txt"))
	assert.Equal(t, "a/b.txt", NormalizePath("/a/b.txt"))
	assert.Equal(t, "a/b.txt", NormalizePath("a\\b.txt"))
	assert.Equal(t, "b.txt", NormalizePath("a/../b.txt"))
}
