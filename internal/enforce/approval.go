package enforce

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/agentgate/internal/action"
	"github.com/kazz187/agentgate/internal/eventlog"
	"github.com/kazz187/agentgate/pkg/cerr"
)

const ReasonExpired = "expired"

// ApprovalRequest is a pending human decision about one suspended action.
type ApprovalRequest struct {
	ID          string        `json:"id"`
	IssueNumber int           `json:"issue_number"`
	Category    string        `json:"category"`
	Action      action.Action `json:"action"`
	CreatedAt   time.Time     `json:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

type grantKey struct {
	issueNumber int
	category    string
}

// ApprovalRegistry tracks pending approval requests and the grants produced
// by approving them. A grant is keyed (issue, category) and is consumed by
// exactly one re-evaluation; further actions of the same category suspend
// again.
//
// Requests expire after the registry's TTL: expiry resolves the request as
// denied with reason "expired" and records an approval-resolved event, same
// as an explicit denial. A zero TTL expires requests at creation.
type ApprovalRegistry struct {
	store eventlog.Store
	ttl   time.Duration

	mu      sync.Mutex
	pending map[string]*ApprovalRequest
	timers  map[string]*time.Timer
	grants  map[grantKey]struct{}
}

func NewApprovalRegistry(store eventlog.Store, ttl time.Duration) *ApprovalRegistry {
	return &ApprovalRegistry{
		store:   store,
		ttl:     ttl,
		pending: make(map[string]*ApprovalRequest),
		timers:  make(map[string]*time.Timer),
		grants:  make(map[grantKey]struct{}),
	}
}

// Create registers a request, records its approval-requested event, and
// schedules expiry.
func (r *ApprovalRegistry) Create(ctx context.Context, issueNumber int, category string, act action.Action) (*ApprovalRequest, error) {
	now := time.Now().UTC()
	req := &ApprovalRequest{
		ID:          ulid.Make().String(),
		IssueNumber: issueNumber,
		Category:    category,
		Action:      act,
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.ttl),
	}

	r.mu.Lock()
	r.pending[req.ID] = req
	r.mu.Unlock()

	if _, err := r.store.Record(ctx, eventlog.EventApprovalRequested, issueNumber, map[string]any{
		"request_id": req.ID,
		"category":   category,
		"target":     act.Target(),
		"expires_at": req.ExpiresAt.Format(time.RFC3339),
	}); err != nil {
		r.mu.Lock()
		delete(r.pending, req.ID)
		r.mu.Unlock()
		return nil, err
	}

	if r.ttl <= 0 {
		r.expire(req.ID)
		return req, nil
	}
	r.mu.Lock()
	if _, ok := r.pending[req.ID]; ok {
		r.timers[req.ID] = time.AfterFunc(r.ttl, func() { r.expire(req.ID) })
	}
	r.mu.Unlock()
	return req, nil
}

// Resolve settles a pending request. Approving stores a one-shot grant for
// the request's (issue, category).
func (r *ApprovalRegistry) Resolve(ctx context.Context, requestID string, approved bool, reason string) error {
	r.mu.Lock()
	req, ok := r.pending[requestID]
	if !ok {
		r.mu.Unlock()
		return cerr.NewError(cerr.NotFound, "approval request not found",
			fmt.Errorf("approval request %q is not pending", requestID))
	}
	delete(r.pending, requestID)
	if timer, ok := r.timers[requestID]; ok {
		timer.Stop()
		delete(r.timers, requestID)
	}
	if approved {
		r.grants[grantKey{issueNumber: req.IssueNumber, category: req.Category}] = struct{}{}
	}
	r.mu.Unlock()

	_, err := r.store.Record(ctx, eventlog.EventApprovalResolved, req.IssueNumber, map[string]any{
		"request_id": requestID,
		"approved":   approved,
		"reason":     reason,
	})
	return err
}

// ConsumeGrant removes the grant for (issue, category) and reports whether
// one existed.
func (r *ApprovalRegistry) ConsumeGrant(issueNumber int, category string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := grantKey{issueNumber: issueNumber, category: category}
	if _, ok := r.grants[key]; !ok {
		return false
	}
	delete(r.grants, key)
	return true
}

// PendingRequests returns every open request, oldest first.
func (r *ApprovalRegistry) PendingRequests() []*ApprovalRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ApprovalRequest, 0, len(r.pending))
	for _, req := range r.pending {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Pending returns the request with the given ID if it is still open.
func (r *ApprovalRegistry) Pending(requestID string) (*ApprovalRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[requestID]
	return req, ok
}

func (r *ApprovalRegistry) expire(requestID string) {
	r.mu.Lock()
	req, ok := r.pending[requestID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.pending, requestID)
	delete(r.timers, requestID)
	r.mu.Unlock()

	ctx := context.Background()
	if _, err := r.store.Record(ctx, eventlog.EventApprovalResolved, req.IssueNumber, map[string]any{
		"request_id": requestID,
		"approved":   false,
		"reason":     ReasonExpired,
	}); err != nil {
		slog.Error("failed to record approval expiry", "request_id", requestID, "error", err)
	}
}
