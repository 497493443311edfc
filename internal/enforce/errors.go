package enforce

import "fmt"

// PermissionDeniedError explains a Deny verdict: which rule matched, what the
// action targeted, and, when computable, what to do instead.
type PermissionDeniedError struct {
	Rule                 string `json:"rule"`
	Input                string `json:"input"`
	Explanation          string `json:"explanation"`
	SuggestedAlternative string `json:"suggested_alternative,omitempty"`
}

func (e *PermissionDeniedError) Error() string {
	msg := fmt.Sprintf("permission denied: %s (rule %q, input %q)", e.Explanation, e.Rule, e.Input)
	if e.SuggestedAlternative != "" {
		msg += fmt.Sprintf("; try %q instead", e.SuggestedAlternative)
	}
	return msg
}

// ApprovalRequiredError marks a Suspend verdict. The caller must park the
// task until the request with RequestID is resolved.
type ApprovalRequiredError struct {
	RequestID string `json:"request_id"`
	Category  string `json:"category"`
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("approval required for %s (request %s)", e.Category, e.RequestID)
}

// ResourceLimitExceededError marks a Deny verdict caused by a counter passing
// its ceiling. Non-retryable for that resource within the session.
type ResourceLimitExceededError struct {
	Resource string `json:"resource"`
	Limit    int64  `json:"limit"`
	Current  int64  `json:"current"`
}

func (e *ResourceLimitExceededError) Error() string {
	return fmt.Sprintf("resource limit exceeded: %s used %d of %d", e.Resource, e.Current, e.Limit)
}
