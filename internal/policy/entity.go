package policy

import (
	"maps"
	"slices"
	"time"
)

// AgentType identifies a built-in permission profile.
type AgentType string

const (
	AgentTypeReadOnly    AgentType = "read-only"
	AgentTypeContributor AgentType = "contributor"
	AgentTypeMaintainer  AgentType = "maintainer"
)

// PermissionPolicy is the full rule set governing what an agent may do.
// Instances handed out by the store are copies; callers never share one.
type PermissionPolicy struct {
	AgentType           AgentType        `yaml:"agent_type" json:"agent_type"`
	AllowedTools        []string         `yaml:"allowed_tools" json:"allowed_tools"`
	ReadOnlyTools       []string         `yaml:"read_only_tools" json:"read_only_tools"`
	BlockedFilePatterns []string         `yaml:"blocked_file_patterns" json:"blocked_file_patterns"`
	BlockedCommands     []string         `yaml:"blocked_commands" json:"blocked_commands"`
	ProtectedBranches   []string         `yaml:"protected_branches" json:"protected_branches"`
	ResourceLimits      map[string]int64 `yaml:"resource_limits" json:"resource_limits"`
	ApprovalRequiredFor []string         `yaml:"approval_required_for" json:"approval_required_for"`
}

// Clone returns a deep copy.
func (p *PermissionPolicy) Clone() *PermissionPolicy {
	return &PermissionPolicy{
		AgentType:           p.AgentType,
		AllowedTools:        slices.Clone(p.AllowedTools),
		ReadOnlyTools:       slices.Clone(p.ReadOnlyTools),
		BlockedFilePatterns: slices.Clone(p.BlockedFilePatterns),
		BlockedCommands:     slices.Clone(p.BlockedCommands),
		ProtectedBranches:   slices.Clone(p.ProtectedBranches),
		ResourceLimits:      maps.Clone(p.ResourceLimits),
		ApprovalRequiredFor: slices.Clone(p.ApprovalRequiredFor),
	}
}

// Override narrows a policy for one scope (an organization name or a session
// ID). A nil list means "inherit from the layer below"; a non-nil list
// replaces it and must not widen what the lower layer permits: blocked
// pattern lists may only grow, allowed tool lists may only shrink, resource
// limits may only drop, approval categories may only be added.
type Override struct {
	Scope               string           `yaml:"scope" json:"scope"`
	AllowedTools        []string         `yaml:"allowed_tools,omitempty" json:"allowed_tools,omitempty"`
	ReadOnlyTools       []string         `yaml:"read_only_tools,omitempty" json:"read_only_tools,omitempty"`
	BlockedFilePatterns []string         `yaml:"blocked_file_patterns,omitempty" json:"blocked_file_patterns,omitempty"`
	BlockedCommands     []string         `yaml:"blocked_commands,omitempty" json:"blocked_commands,omitempty"`
	ProtectedBranches   []string         `yaml:"protected_branches,omitempty" json:"protected_branches,omitempty"`
	ResourceLimits      map[string]int64 `yaml:"resource_limits,omitempty" json:"resource_limits,omitempty"`
	ApprovalRequiredFor []string         `yaml:"approval_required_for,omitempty" json:"approval_required_for,omitempty"`
	UpdatedAt           time.Time        `yaml:"updated_at" json:"updated_at"`
}

// IsZero reports whether the override changes nothing.
func (o *Override) IsZero() bool {
	return o.AllowedTools == nil &&
		o.ReadOnlyTools == nil &&
		o.BlockedFilePatterns == nil &&
		o.BlockedCommands == nil &&
		o.ProtectedBranches == nil &&
		len(o.ResourceLimits) == 0 &&
		len(o.ApprovalRequiredFor) == 0
}
