package enforce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/agentgate/internal/action"
	"github.com/kazz187/agentgate/internal/eventlog"
	"github.com/kazz187/agentgate/internal/policy"
)

// readOnlyVariants maps mutating tools to the read-only tool that covers the
// same ground, for suggested alternatives in denials.
var readOnlyVariants = map[string]string{
	"write_file": "read_file",
	"edit_file":  "read_file",
}

// BranchAuthority answers whether a branch is protected according to the
// source-control provider, beyond the policy's static pattern list.
type BranchAuthority interface {
	BranchProtected(ctx context.Context, branch string) (bool, error)
}

// Enforcer gates every action one session proposes. Evaluation order, first
// match wins: blocked patterns, then approval categories, then resource
// limits. One instance per session; its counters are owned by that session
// alone. A counter increment is never rolled back, even when the increment
// itself trips the limit.
type Enforcer struct {
	policy      *policy.ResolvedPolicy
	counter     *ResourceUsageCounter
	approvals   *ApprovalRegistry
	store       eventlog.Store
	issueNumber int
	authority   BranchAuthority
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithBranchAuthority adds an authoritative branch-protection check on top
// of the policy's static protected-branch patterns. An authority failure
// denies the push; governance fails closed.
func WithBranchAuthority(a BranchAuthority) Option {
	return func(e *Enforcer) {
		e.authority = a
	}
}

func NewEnforcer(rp *policy.ResolvedPolicy, approvals *ApprovalRegistry, store eventlog.Store, issueNumber int, opts ...Option) *Enforcer {
	e := &Enforcer{
		policy:      rp,
		counter:     NewResourceUsageCounter(),
		approvals:   approvals,
		store:       store,
		issueNumber: issueNumber,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Usage exposes the session's counters.
func (e *Enforcer) Usage() *ResourceUsageCounter {
	return e.counter
}

// RestoreUsage replays committed action-allowed events into the counters,
// used when a session is reconstructed after a restart. Limits are not
// re-checked: those actions already executed.
func (e *Enforcer) RestoreUsage(events []*eventlog.EngineEvent) {
	for _, event := range events {
		if event.Type != eventlog.EventActionAllowed {
			continue
		}
		resource, ok := event.Payload["resource"].(string)
		if !ok || resource == "" {
			continue
		}
		e.counter.Increment(resource)
	}
}

// Evaluate decides one action. The returned error is infrastructural (event
// store failure); policy outcomes are always expressed in the Decision.
func (e *Enforcer) Evaluate(ctx context.Context, act action.Action) (*Decision, error) {
	if denial := e.blockedRule(ctx, act); denial != nil {
		decision := denied(denial)
		if err := e.recordDenied(ctx, act, denial.Rule, denial.Explanation); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "action denied",
			"issue", e.issueNumber, "category", act.Category(), "rule", denial.Rule)
		return decision, nil
	}

	category := act.Category()
	if e.policy.RequiresApproval(category) && !e.approvals.ConsumeGrant(e.issueNumber, category) {
		req, err := e.approvals.Create(ctx, e.issueNumber, category, act)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "action suspended for approval",
			"issue", e.issueNumber, "category", category, "request_id", req.ID)
		return suspended(&ApprovalRequiredError{RequestID: req.ID, Category: category}), nil
	}

	resource := act.Resource()
	if resource != "" {
		current := e.counter.Increment(resource)
		if limit, ok := e.policy.Limit(resource); ok && current > limit {
			exceeded := &ResourceLimitExceededError{Resource: resource, Limit: limit, Current: current}
			if err := e.recordDenied(ctx, act, resource, exceeded.Error()); err != nil {
				return nil, err
			}
			slog.InfoContext(ctx, "action denied",
				"issue", e.issueNumber, "category", category, "resource", resource,
				"limit", limit, "current", current)
			return limitExceeded(exceeded), nil
		}
	}

	payload := map[string]any{
		"category": category,
		"target":   act.Target(),
	}
	if resource != "" {
		payload["resource"] = resource
	}
	if _, err := e.store.Record(ctx, eventlog.EventActionAllowed, e.issueNumber, payload); err != nil {
		return nil, err
	}
	return allowed(), nil
}

// blockedRule checks the action's target against the policy's blocked
// patterns and returns the denial, nil when nothing matched.
func (e *Enforcer) blockedRule(ctx context.Context, act action.Action) *PermissionDeniedError {
	switch act.Kind {
	case action.KindFileWrite, action.KindFileRead:
		if rule, ok := e.policy.BlockedFileRule(act.Path); ok {
			return &PermissionDeniedError{
				Rule:        rule,
				Input:       act.Path,
				Explanation: fmt.Sprintf("path matches blocked pattern %q", rule),
			}
		}
	case action.KindCommand:
		if rule, ok := e.policy.BlockedCommandRule(act.Command); ok {
			return &PermissionDeniedError{
				Rule:        rule,
				Input:       act.Command,
				Explanation: fmt.Sprintf("command matches blocked pattern %q", rule),
			}
		}
	case action.KindBranchPush:
		if rule, ok := e.policy.ProtectedBranchRule(act.Branch); ok {
			return &PermissionDeniedError{
				Rule:                 rule,
				Input:                act.Branch,
				Explanation:          fmt.Sprintf("branch %q is protected by %q", act.Branch, rule),
				SuggestedAlternative: e.policy.SuggestBranch(act.Branch),
			}
		}
		if e.authority != nil {
			protected, err := e.authority.BranchProtected(ctx, act.Branch)
			if err != nil {
				return &PermissionDeniedError{
					Rule:        "source-control",
					Input:       act.Branch,
					Explanation: fmt.Sprintf("failed to verify branch protection: %v", err),
				}
			}
			if protected {
				return &PermissionDeniedError{
					Rule:                 "source-control",
					Input:                act.Branch,
					Explanation:          fmt.Sprintf("branch %q is protected on the remote", act.Branch),
					SuggestedAlternative: e.policy.SuggestBranch(act.Branch),
				}
			}
		}
	case action.KindToolUse:
		if !e.policy.ToolAllowed(act.Tool) {
			denial := &PermissionDeniedError{
				Rule:        "allowed_tools",
				Input:       act.Tool,
				Explanation: fmt.Sprintf("tool %q is not in the allowed tool set", act.Tool),
			}
			if variant, ok := readOnlyVariants[act.Tool]; ok && e.policy.ToolReadOnly(variant) {
				denial.SuggestedAlternative = variant
			}
			return denial
		}
	}
	return nil
}

func (e *Enforcer) recordDenied(ctx context.Context, act action.Action, rule, explanation string) error {
	_, err := e.store.Record(ctx, eventlog.EventActionDenied, e.issueNumber, map[string]any{
		"category":    act.Category(),
		"target":      act.Target(),
		"rule":        rule,
		"explanation": explanation,
	})
	return err
}
