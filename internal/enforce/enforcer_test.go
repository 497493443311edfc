package enforce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentgate/internal/action"
	"github.com/kazz187/agentgate/internal/eventlog"
	"github.com/kazz187/agentgate/internal/policy"
	"github.com/kazz187/agentgate/internal/policy/repositoryimpl"
	"github.com/kazz187/agentgate/pkg/storage"
)

type fixture struct {
	store     *eventlog.MemoryStore
	policies  *policy.Store
	resolver  *policy.Resolver
	approvals *ApprovalRegistry
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	events := eventlog.NewMemoryStore()
	policies := policy.NewStore(repositoryimpl.NewYAMLRepository(local))
	return &fixture{
		store:     events,
		policies:  policies,
		resolver:  policy.NewResolver(policies),
		approvals: NewApprovalRegistry(events, ttl),
	}
}

func (f *fixture) enforcer(t *testing.T, agentType policy.AgentType, sessionScope string, issueNumber int) *Enforcer {
	t.Helper()
	rp, err := f.resolver.Resolve(context.Background(), agentType, "", sessionScope)
	require.NoError(t, err)
	return NewEnforcer(rp, f.approvals, f.store, issueNumber)
}

func (f *fixture) eventTypes(t *testing.T, issueNumber int) []eventlog.EventType {
	t.Helper()
	events, err := f.store.Events(context.Background(), issueNumber)
	require.NoError(t, err)
	types := make([]eventlog.EventType, len(events))
	for i, event := range events {
		types[i] = event.Type
	}
	return types
}

func TestEvaluateBlockedCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	e := f.enforcer(t, policy.AgentTypeContributor, "", 1)

	decision, err := e.Evaluate(ctx, action.Command("rm -rf /"))
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, decision.Verdict)
	require.NotNil(t, decision.Denied)
	assert.Equal(t, "rm -rf", decision.Denied.Rule)
	assert.Equal(t, "rm -rf /", decision.Denied.Input)

	assert.Equal(t, []eventlog.EventType{eventlog.EventActionDenied}, f.eventTypes(t, 1))
}

func TestEvaluateBlockPrecedesCounters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	e := f.enforcer(t, policy.AgentTypeContributor, "", 1)

	decision, err := e.Evaluate(ctx, action.FileWrite("secrets/prod/api.key"))
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, decision.Verdict)
	require.NotNil(t, decision.Denied)
	assert.Equal(t, "secrets/**", decision.Denied.Rule)

	// A blocked action never touches the counters.
	assert.Equal(t, int64(0), e.Usage().Total("filesWritten"))
}

func TestEvaluateResourceLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	require.NoError(t, f.policies.SetOverride(ctx, &policy.Override{
		Scope:          "session/limit",
		ResourceLimits: map[string]int64{"filesWritten": 2},
	}))
	e := f.enforcer(t, policy.AgentTypeContributor, "session/limit", 2)

	for i, path := range []string{"a.go", "b.go"} {
		decision, err := e.Evaluate(ctx, action.FileWrite(path))
		require.NoError(t, err)
		assert.Equal(t, VerdictAllow, decision.Verdict, "write %d", i+1)
	}

	decision, err := e.Evaluate(ctx, action.FileWrite("c.go"))
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, decision.Verdict)
	require.NotNil(t, decision.Limit)
	assert.Equal(t, "filesWritten", decision.Limit.Resource)
	assert.Equal(t, int64(2), decision.Limit.Limit)
	assert.Equal(t, int64(3), decision.Limit.Current)

	// The counter is not rolled back past the ceiling.
	assert.Equal(t, int64(3), e.Usage().Total("filesWritten"))

	assert.Equal(t, []eventlog.EventType{
		eventlog.EventActionAllowed,
		eventlog.EventActionAllowed,
		eventlog.EventActionDenied,
	}, f.eventTypes(t, 2))
}

func TestEvaluateApprovalRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	e := f.enforcer(t, policy.AgentTypeContributor, "", 3)

	push := action.BranchPush("feature/auth", true)

	decision, err := e.Evaluate(ctx, push)
	require.NoError(t, err)
	assert.Equal(t, VerdictSuspend, decision.Verdict)
	require.NotNil(t, decision.Approval)
	requestID := decision.Approval.RequestID
	require.NotEmpty(t, requestID)
	assert.Equal(t, "force-push", decision.Approval.Category)

	assert.Equal(t, []eventlog.EventType{eventlog.EventApprovalRequested}, f.eventTypes(t, 3))

	require.NoError(t, f.approvals.Resolve(ctx, requestID, true, "looks fine"))

	// The grant admits exactly one re-evaluation.
	decision, err = e.Evaluate(ctx, push)
	require.NoError(t, err)
	assert.Equal(t, VerdictAllow, decision.Verdict)

	decision, err = e.Evaluate(ctx, push)
	require.NoError(t, err)
	assert.Equal(t, VerdictSuspend, decision.Verdict)
	assert.NotEqual(t, requestID, decision.Approval.RequestID)
}

func TestResolveDeniedApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	e := f.enforcer(t, policy.AgentTypeContributor, "", 4)

	decision, err := e.Evaluate(ctx, action.BranchPush("feature/auth", true))
	require.NoError(t, err)
	require.Equal(t, VerdictSuspend, decision.Verdict)

	require.NoError(t, f.approvals.Resolve(ctx, decision.Approval.RequestID, false, "not on a friday"))

	// No grant: the same action suspends again.
	decision, err = e.Evaluate(ctx, action.BranchPush("feature/auth", true))
	require.NoError(t, err)
	assert.Equal(t, VerdictSuspend, decision.Verdict)
}

func TestApprovalZeroTTLExpiresImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	e := f.enforcer(t, policy.AgentTypeContributor, "", 5)

	decision, err := e.Evaluate(ctx, action.BranchPush("feature/auth", true))
	require.NoError(t, err)
	require.Equal(t, VerdictSuspend, decision.Verdict)

	events, err := f.store.Events(ctx, 5)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventlog.EventApprovalRequested, events[0].Type)
	assert.Equal(t, eventlog.EventApprovalResolved, events[1].Type)
	assert.Equal(t, false, events[1].Payload["approved"])
	assert.Equal(t, ReasonExpired, events[1].Payload["reason"])

	// Expired requests cannot be resolved.
	err = f.approvals.Resolve(ctx, decision.Approval.RequestID, true, "")
	require.Error(t, err)
}

func TestEvaluateProtectedBranchSuggestsAlternative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	e := f.enforcer(t, policy.AgentTypeContributor, "", 6)

	decision, err := e.Evaluate(ctx, action.BranchPush("main", false))
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, decision.Verdict)
	require.NotNil(t, decision.Denied)
	assert.Equal(t, "main", decision.Denied.Rule)
	assert.Equal(t, "agents/main", decision.Denied.SuggestedAlternative)
}

func TestEvaluateToolUseSuggestsReadOnlyVariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	e := f.enforcer(t, policy.AgentTypeReadOnly, "", 7)

	decision, err := e.Evaluate(ctx, action.ToolUse("write_file"))
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, decision.Verdict)
	require.NotNil(t, decision.Denied)
	assert.Equal(t, "read_file", decision.Denied.SuggestedAlternative)

	decision, err = e.Evaluate(ctx, action.ToolUse("grep"))
	require.NoError(t, err)
	assert.Equal(t, VerdictAllow, decision.Verdict)
}

func TestRestoreUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	require.NoError(t, f.policies.SetOverride(ctx, &policy.Override{
		Scope:          "session/restore",
		ResourceLimits: map[string]int64{"filesWritten": 2},
	}))

	first := f.enforcer(t, policy.AgentTypeContributor, "session/restore", 8)
	_, err := first.Evaluate(ctx, action.FileWrite("a.go"))
	require.NoError(t, err)
	_, err = first.Evaluate(ctx, action.FileWrite("b.go"))
	require.NoError(t, err)

	// Rebuild the session from the log, as after a restart.
	events, err := f.store.Events(ctx, 8)
	require.NoError(t, err)
	second := f.enforcer(t, policy.AgentTypeContributor, "session/restore", 8)
	second.RestoreUsage(events)
	assert.Equal(t, int64(2), second.Usage().Total("filesWritten"))

	decision, err := second.Evaluate(ctx, action.FileWrite("c.go"))
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, decision.Verdict)
	require.NotNil(t, decision.Limit)
	assert.Equal(t, int64(3), decision.Limit.Current)
}

func TestDecisionErr(t *testing.T) {
	d := denied(&PermissionDeniedError{Rule: "rm -rf", Input: "rm -rf /", Explanation: "blocked"})
	require.Error(t, d.Err())
	assert.Nil(t, allowed().Err())
}
