package policy

import (
	"fmt"
	"sort"

	"github.com/kazz187/agentgate/pkg/cerr"
)

// defaults is the built-in agent-type table. It is never mutated after
// package init; accessors hand out copies.
var defaults = map[AgentType]*PermissionPolicy{
	AgentTypeReadOnly: {
		AgentType:     AgentTypeReadOnly,
		AllowedTools:  []string{"read_file", "grep", "list_files"},
		ReadOnlyTools: []string{"read_file", "grep", "list_files"},
		BlockedFilePatterns: []string{
			"secrets/**",
			"**/*.pem",
			"**/*.key",
			".env*",
		},
		BlockedCommands:   []string{"rm", "mv", "chmod", "curl", "git push"},
		ProtectedBranches: []string{"main", "master", "release/*"},
		ResourceLimits: map[string]int64{
			"filesWritten": 0,
			"commandsRun":  50,
		},
		ApprovalRequiredFor: []string{},
	},
	AgentTypeContributor: {
		AgentType: AgentTypeContributor,
		AllowedTools: []string{
			"read_file", "grep", "list_files",
			"write_file", "edit_file", "run_command",
		},
		ReadOnlyTools: []string{"read_file", "grep", "list_files"},
		BlockedFilePatterns: []string{
			"secrets/**",
			"**/*.pem",
			"**/*.key",
			".env*",
		},
		BlockedCommands:   []string{"rm -rf", "sudo", "git push --force"},
		ProtectedBranches: []string{"main", "master", "release/*"},
		ResourceLimits: map[string]int64{
			"filesWritten": 200,
			"commandsRun":  500,
			"branchPushes": 10,
		},
		ApprovalRequiredFor: []string{"force-push"},
	},
	AgentTypeMaintainer: {
		AgentType: AgentTypeMaintainer,
		AllowedTools: []string{
			"read_file", "grep", "list_files",
			"write_file", "edit_file", "run_command",
			"push_branch", "merge",
		},
		ReadOnlyTools: []string{"read_file", "grep", "list_files"},
		BlockedFilePatterns: []string{
			"secrets/**",
			"**/*.pem",
		},
		BlockedCommands:   []string{"rm -rf /", "sudo"},
		ProtectedBranches: []string{"release/*"},
		ResourceLimits: map[string]int64{
			"filesWritten": 1000,
			"commandsRun":  2000,
			"branchPushes": 50,
		},
		ApprovalRequiredFor: []string{"force-push"},
	},
}

// GetDefaultPermissions returns a copy of the built-in policy for an agent
// type.
func GetDefaultPermissions(agentType AgentType) (*PermissionPolicy, error) {
	p, ok := defaults[agentType]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "unknown agent type", fmt.Errorf("unknown agent type %q", agentType))
	}
	return p.Clone(), nil
}

// AllDefaultPermissions returns copies of every built-in policy keyed by
// agent type.
func AllDefaultPermissions() map[AgentType]*PermissionPolicy {
	out := make(map[AgentType]*PermissionPolicy, len(defaults))
	for agentType, p := range defaults {
		out[agentType] = p.Clone()
	}
	return out
}

// AgentTypes returns the known agent types in sorted order.
func AgentTypes() []AgentType {
	types := make([]AgentType, 0, len(defaults))
	for agentType := range defaults {
		types = append(types, agentType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
