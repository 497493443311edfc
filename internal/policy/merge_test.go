package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentgate/pkg/cerr"
)

func basePolicy(t *testing.T) *PermissionPolicy {
	t.Helper()
	p, err := GetDefaultPermissions(AgentTypeContributor)
	require.NoError(t, err)
	return p
}

func TestApplyOverrideNarrows(t *testing.T) {
	base := basePolicy(t)
	merged, err := applyOverride(base, &Override{
		Scope:               "acme",
		BlockedCommands:     append(append([]string(nil), base.BlockedCommands...), "dd"),
		AllowedTools:        []string{"read_file", "grep"},
		ResourceLimits:      map[string]int64{"filesWritten": 10, "tokensSpent": 100000},
		ApprovalRequiredFor: []string{"branch-push"},
	})
	require.NoError(t, err)

	assert.Contains(t, merged.BlockedCommands, "dd")
	assert.Equal(t, []string{"read_file", "grep"}, merged.AllowedTools)
	assert.Equal(t, int64(10), merged.ResourceLimits["filesWritten"])
	assert.Equal(t, int64(100000), merged.ResourceLimits["tokensSpent"])
	assert.ElementsMatch(t, []string{"force-push", "branch-push"}, merged.ApprovalRequiredFor)
}

func TestApplyOverrideNilInherits(t *testing.T) {
	base := basePolicy(t)
	merged, err := applyOverride(base, &Override{Scope: "acme"})
	require.NoError(t, err)
	assert.Equal(t, base, merged)
}

func TestApplyOverrideRejectsWidening(t *testing.T) {
	base := basePolicy(t)

	tests := []struct {
		name     string
		override *Override
	}{
		{
			name: "drops a blocked command",
			override: &Override{
				Scope:           "acme",
				BlockedCommands: []string{"sudo"}, // drops "rm -rf" and "git push --force"
			},
		},
		{
			name: "unprotects a branch",
			override: &Override{
				Scope:             "acme",
				ProtectedBranches: []string{"release/*"},
			},
		},
		{
			name: "grants an unknown tool",
			override: &Override{
				Scope:        "acme",
				AllowedTools: append(append([]string(nil), base.AllowedTools...), "deploy"),
			},
		},
		{
			name: "raises a resource limit",
			override: &Override{
				Scope:          "acme",
				ResourceLimits: map[string]int64{"filesWritten": 10000},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applyOverride(base, tt.override)
			require.Error(t, err)
			assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
		})
	}
}

func TestApplyOverrideWideningDiffNamesDroppedEntry(t *testing.T) {
	base := basePolicy(t)
	_, err := applyOverride(base, &Override{
		Scope:           "acme",
		BlockedCommands: []string{"sudo", "git push --force"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rm -rf")
	assert.Contains(t, err.Error(), "blocked_commands")
}
