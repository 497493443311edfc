package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchMatcher(t *testing.T) {
	m, err := NewBranchMatcher([]string{"main", "master", "release/*"})
	require.NoError(t, err)

	tests := []struct {
		branch    string
		want      bool
		wantEntry string
	}{
		{branch: "main", want: true, wantEntry: "main"},
		{branch: "master", want: true, wantEntry: "master"},
		{branch: "release/1.2", want: true, wantEntry: "release/*"},
		{branch: "release/1.2/hotfix", want: true, wantEntry: "release/*"},
		{branch: "release", want: false},
		{branch: "mainline", want: false},
		{branch: "feature/main", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.branch, func(t *testing.T) {
			entry, ok := m.Match(tt.branch)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.wantEntry, entry)
			assert.Equal(t, tt.want, m.Matches(tt.branch))
		})
	}
}

func TestNewBranchMatcherInvalid(t *testing.T) {
	for _, entries := range [][]string{
		{""},
		{"release/*/hotfix"},
		{"*"},
		{"rel*ase/*"},
	} {
		_, err := NewBranchMatcher(entries)
		assert.ErrorIs(t, err, ErrInvalidPattern, "entries %v", entries)
	}
}

func TestBranchMatcherSuggestAlternative(t *testing.T) {
	m, err := NewBranchMatcher([]string{"main", "release/*"})
	require.NoError(t, err)

	assert.Equal(t, "agents/main", m.SuggestAlternative("main"))
	assert.Equal(t, "agents/release/1.2", m.SuggestAlternative("release/1.2"))

	guarded, err := NewBranchMatcher([]string{"main", "agents/*"})
	require.NoError(t, err)
	assert.Equal(t, "main-draft", guarded.SuggestAlternative("main"))
}
