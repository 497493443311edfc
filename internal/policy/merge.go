package policy

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/kazz187/agentgate/pkg/cerr"
)

// applyOverride layers an override onto a base policy and returns the merged
// copy. A non-nil override list replaces the base list but may never widen
// what the base permits:
//
//   - blocked patterns, blocked commands and protected branches must keep
//     every base entry (deny never loosens);
//   - allowed and read-only tool lists must be subsets of the base;
//   - resource limits may be added or lowered, never raised;
//   - approval categories are unioned with the base.
//
// A widening override fails with InvalidArgument carrying a unified diff of
// the attempted removal.
func applyOverride(base *PermissionPolicy, o *Override) (*PermissionPolicy, error) {
	merged := base.Clone()
	if o == nil || o.IsZero() {
		return merged, nil
	}

	if o.BlockedFilePatterns != nil {
		if err := requireSuperset(o.Scope, "blocked_file_patterns", base.BlockedFilePatterns, o.BlockedFilePatterns); err != nil {
			return nil, err
		}
		merged.BlockedFilePatterns = append([]string(nil), o.BlockedFilePatterns...)
	}
	if o.BlockedCommands != nil {
		if err := requireSuperset(o.Scope, "blocked_commands", base.BlockedCommands, o.BlockedCommands); err != nil {
			return nil, err
		}
		merged.BlockedCommands = append([]string(nil), o.BlockedCommands...)
	}
	if o.ProtectedBranches != nil {
		if err := requireSuperset(o.Scope, "protected_branches", base.ProtectedBranches, o.ProtectedBranches); err != nil {
			return nil, err
		}
		merged.ProtectedBranches = append([]string(nil), o.ProtectedBranches...)
	}
	if o.AllowedTools != nil {
		if err := requireSubset(o.Scope, "allowed_tools", base.AllowedTools, o.AllowedTools); err != nil {
			return nil, err
		}
		merged.AllowedTools = append([]string(nil), o.AllowedTools...)
	}
	if o.ReadOnlyTools != nil {
		if err := requireSubset(o.Scope, "read_only_tools", base.ReadOnlyTools, o.ReadOnlyTools); err != nil {
			return nil, err
		}
		merged.ReadOnlyTools = append([]string(nil), o.ReadOnlyTools...)
	}
	for resource, limit := range o.ResourceLimits {
		if baseLimit, ok := base.ResourceLimits[resource]; ok && limit > baseLimit {
			return nil, invalidPolicy(o.Scope, fmt.Sprintf(
				"resource limit %s raised from %d to %d", resource, baseLimit, limit), "")
		}
		if merged.ResourceLimits == nil {
			merged.ResourceLimits = map[string]int64{}
		}
		merged.ResourceLimits[resource] = limit
	}
	for _, category := range o.ApprovalRequiredFor {
		if !contains(merged.ApprovalRequiredFor, category) {
			merged.ApprovalRequiredFor = append(merged.ApprovalRequiredFor, category)
		}
	}
	return merged, nil
}

// requireSuperset fails when the override drops a base entry from a blocked
// list.
func requireSuperset(scope, field string, base, override []string) error {
	var dropped []string
	for _, entry := range base {
		if !contains(override, entry) {
			dropped = append(dropped, entry)
		}
	}
	if len(dropped) == 0 {
		return nil
	}
	return invalidPolicy(scope,
		fmt.Sprintf("override removes %s entries %v", field, dropped),
		unifiedDiff(field, base, override))
}

// requireSubset fails when the override grants a tool the base does not.
func requireSubset(scope, field string, base, override []string) error {
	var added []string
	for _, entry := range override {
		if !contains(base, entry) {
			added = append(added, entry)
		}
	}
	if len(added) == 0 {
		return nil
	}
	return invalidPolicy(scope,
		fmt.Sprintf("override adds %s entries %v", field, added),
		unifiedDiff(field, base, override))
}

func invalidPolicy(scope, reason, diff string) error {
	msg := fmt.Sprintf("invalid policy override %q: %s", scope, reason)
	if diff != "" {
		msg += "\n" + diff
	}
	return cerr.NewError(cerr.InvalidArgument, "invalid policy override", fmt.Errorf("%s", msg))
}

func unifiedDiff(field string, base, override []string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(base, "\n") + "\n"),
		B:        difflib.SplitLines(strings.Join(override, "\n") + "\n"),
		FromFile: field + " (base)",
		ToFile:   field + " (override)",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return diff
}

func contains(list []string, s string) bool {
	for _, entry := range list {
		if entry == s {
			return true
		}
	}
	return false
}
