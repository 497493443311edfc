package enforce

import "github.com/kazz187/agentgate/pkg/cerr"

// Verdict is the outcome of evaluating one action.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictDeny
	VerdictSuspend
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictDeny:
		return "deny"
	case VerdictSuspend:
		return "suspend"
	}
	return "unknown"
}

// Decision carries a verdict plus the detail explaining it. Callers branch
// on Verdict; the error views exist for surfaces that need one.
type Decision struct {
	Verdict  Verdict
	Denied   *PermissionDeniedError
	Approval *ApprovalRequiredError
	Limit    *ResourceLimitExceededError
}

func allowed() *Decision {
	return &Decision{Verdict: VerdictAllow}
}

func denied(err *PermissionDeniedError) *Decision {
	return &Decision{Verdict: VerdictDeny, Denied: err}
}

func limitExceeded(err *ResourceLimitExceededError) *Decision {
	return &Decision{Verdict: VerdictDeny, Limit: err}
}

func suspended(err *ApprovalRequiredError) *Decision {
	return &Decision{Verdict: VerdictSuspend, Approval: err}
}

// Err converts the decision to a coded error, nil for Allow.
func (d *Decision) Err() error {
	switch {
	case d.Denied != nil:
		return cerr.NewErrorWithDetails(cerr.PermissionDenied, "action denied", d.Denied, []any{d.Denied})
	case d.Limit != nil:
		return cerr.NewErrorWithDetails(cerr.ResourceExhausted, "resource limit exceeded", d.Limit, []any{d.Limit})
	case d.Approval != nil:
		return cerr.NewErrorWithDetails(cerr.FailedPrecondition, "approval required", d.Approval, []any{d.Approval})
	}
	return nil
}
