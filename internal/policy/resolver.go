package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/kazz187/agentgate/pkg/cerr"
	"github.com/kazz187/agentgate/pkg/match"
)

// ResolvedPolicy is a merged policy with all of its patterns compiled. It is
// immutable and safe for concurrent use; a malformed pattern surfaces here,
// at session start, never in the middle of enforcement.
type ResolvedPolicy struct {
	Policy *PermissionPolicy

	filePatterns []*match.PathMatcher
	commands     []*match.CommandMatcher
	branches     *match.BranchMatcher
	allowed      map[string]struct{}
	readOnly     map[string]struct{}
	approval     map[string]struct{}
}

func compile(p *PermissionPolicy) (*ResolvedPolicy, error) {
	rp := &ResolvedPolicy{
		Policy:   p,
		allowed:  make(map[string]struct{}, len(p.AllowedTools)),
		readOnly: make(map[string]struct{}, len(p.ReadOnlyTools)),
		approval: make(map[string]struct{}, len(p.ApprovalRequiredFor)),
	}
	for _, pattern := range p.BlockedFilePatterns {
		m, err := match.NewPathMatcher(pattern)
		if err != nil {
			return nil, cerr.NewError(cerr.InvalidArgument, "invalid policy pattern",
				fmt.Errorf("blocked file pattern %q: %w", pattern, err))
		}
		rp.filePatterns = append(rp.filePatterns, m)
	}
	for _, pattern := range p.BlockedCommands {
		m, err := match.NewCommandMatcher(pattern)
		if err != nil {
			return nil, cerr.NewError(cerr.InvalidArgument, "invalid policy pattern",
				fmt.Errorf("blocked command %q: %w", pattern, err))
		}
		rp.commands = append(rp.commands, m)
	}
	branches, err := match.NewBranchMatcher(p.ProtectedBranches)
	if err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid policy pattern",
			fmt.Errorf("protected branches: %w", err))
	}
	rp.branches = branches
	for _, tool := range p.AllowedTools {
		rp.allowed[tool] = struct{}{}
	}
	for _, tool := range p.ReadOnlyTools {
		rp.readOnly[tool] = struct{}{}
	}
	for _, category := range p.ApprovalRequiredFor {
		rp.approval[category] = struct{}{}
	}
	return rp, nil
}

// BlockedFileRule returns the first blocked pattern the path matches.
func (rp *ResolvedPolicy) BlockedFileRule(path string) (string, bool) {
	for _, m := range rp.filePatterns {
		if m.Matches(path) {
			return m.Pattern(), true
		}
	}
	return "", false
}

// BlockedCommandRule returns the first blocked pattern the command matches.
func (rp *ResolvedPolicy) BlockedCommandRule(command string) (string, bool) {
	for _, m := range rp.commands {
		if m.Matches(command) {
			return m.Pattern(), true
		}
	}
	return "", false
}

// ProtectedBranchRule returns the protected entry the branch matches.
func (rp *ResolvedPolicy) ProtectedBranchRule(branch string) (string, bool) {
	return rp.branches.Match(branch)
}

// SuggestBranch derives a non-protected branch name, "" if none is found.
func (rp *ResolvedPolicy) SuggestBranch(branch string) string {
	return rp.branches.SuggestAlternative(branch)
}

func (rp *ResolvedPolicy) ToolAllowed(tool string) bool {
	_, ok := rp.allowed[tool]
	return ok
}

func (rp *ResolvedPolicy) ToolReadOnly(tool string) bool {
	_, ok := rp.readOnly[tool]
	return ok
}

func (rp *ResolvedPolicy) RequiresApproval(category string) bool {
	_, ok := rp.approval[category]
	return ok
}

// Limit returns the ceiling for a resource, false when the resource is
// unbudgeted.
func (rp *ResolvedPolicy) Limit(resource string) (int64, bool) {
	limit, ok := rp.Policy.ResourceLimits[resource]
	return limit, ok
}

// Resolver merges defaults with org and session overrides and caches the
// compiled result. The cache is keyed by the store's override version; any
// override write or on-disk change starts a fresh generation.
type Resolver struct {
	store *Store

	mu           sync.RWMutex
	cacheVersion uint64
	cache        map[resolveKey]*ResolvedPolicy
}

type resolveKey struct {
	agentType AgentType
	org       string
	session   string
}

func NewResolver(store *Store) *Resolver {
	return &Resolver{
		store: store,
		cache: make(map[resolveKey]*ResolvedPolicy),
	}
}

// Resolve returns the compiled policy for an agent type under the given org
// and session override scopes. Either scope may be empty.
func (r *Resolver) Resolve(ctx context.Context, agentType AgentType, orgScope, sessionScope string) (*ResolvedPolicy, error) {
	version := r.store.Version()
	key := resolveKey{agentType: agentType, org: orgScope, session: sessionScope}

	r.mu.RLock()
	if r.cacheVersion == version {
		if rp, ok := r.cache[key]; ok {
			r.mu.RUnlock()
			return rp, nil
		}
	}
	r.mu.RUnlock()

	merged, err := r.store.Defaults(agentType)
	if err != nil {
		return nil, err
	}
	for _, scope := range []string{orgScope, sessionScope} {
		if scope == "" {
			continue
		}
		o, err := r.store.Override(ctx, scope)
		if err != nil {
			return nil, err
		}
		merged, err = applyOverride(merged, o)
		if err != nil {
			return nil, err
		}
	}
	rp, err := compile(merged)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if version > r.cacheVersion {
		r.cache = make(map[resolveKey]*ResolvedPolicy)
		r.cacheVersion = version
	}
	// Skip inserting results computed against an already-superseded version.
	if version == r.cacheVersion {
		r.cache[key] = rp
	}
	r.mu.Unlock()
	return rp, nil
}
