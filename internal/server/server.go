package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/cors"

	"github.com/kazz187/agentgate/internal/config"
	"github.com/kazz187/agentgate/internal/coordinator"
	"github.com/kazz187/agentgate/internal/enforce"
	"github.com/kazz187/agentgate/internal/eventlog"
	"github.com/kazz187/agentgate/internal/policy"
	"github.com/kazz187/agentgate/internal/pool"
	"github.com/kazz187/agentgate/internal/subscription"
	"github.com/kazz187/agentgate/pkg/cerr"
	"github.com/kazz187/agentgate/pkg/clog"
)

// Server exposes the governance surface over HTTP: resolving approvals,
// querying the event log, inspecting policies, and managing push
// subscriptions.
type Server struct {
	server      *http.Server
	env         *config.Env
	approvals   *enforce.ApprovalRegistry
	events      eventlog.Store
	policies    *policy.Store
	subs        subscription.Repository
	coordinator *coordinator.Coordinator

	// baseCtx outlives individual requests; submitted tasks run on it.
	baseCtx context.Context
}

func NewServer(
	env *config.Env,
	approvals *enforce.ApprovalRegistry,
	events eventlog.Store,
	policies *policy.Store,
	subs subscription.Repository,
	c *coordinator.Coordinator,
) *Server {
	return &Server{
		env:         env,
		approvals:   approvals,
		events:      events,
		policies:    policies,
		subs:        subs,
		coordinator: c,
	}
}

// ListenAndServe starts the HTTP server. The provided context is the base
// context for all incoming requests, so cancelling it on shutdown also
// cancels in-flight handlers.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.baseCtx = ctx

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
		r.Get("/approvals", s.listApprovals)
		r.Post("/approvals/{requestID}", s.resolveApproval)
		r.Get("/events", s.listEvents)
		r.Get("/agent-types", s.listAgentTypes)
		r.Get("/policies/{agentType}", s.getPolicy)
		r.Put("/overrides/*", s.putOverride)
		r.Post("/subscriptions", s.createSubscription)
		r.Delete("/subscriptions", s.deleteSubscription)
		r.Post("/tasks", s.submitTask)
		r.Delete("/tasks/{issueNumber}", s.cancelTask)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/api/", r)

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(mux)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type resolveApprovalRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) resolveApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi.URLParam(r, "requestID")

	var req resolveApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if err := s.approvals.Resolve(ctx, requestID, req.Approved, req.Reason); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{
		"request_id": requestID,
		"approved":   req.Approved,
	})
}

func (s *Server) listApprovals(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), map[string]any{
		"approvals": s.approvals.PendingRequests(),
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issue := 0
	if raw := r.URL.Query().Get("issue"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid issue number", err)
			return
		}
		issue = parsed
	}
	events, err := s.events.Events(ctx, issue)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"events": events})
}

func (s *Server) listAgentTypes(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), map[string]any{
		"agent_types": policy.AgentTypes(),
	})
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.policies.Defaults(policy.AgentType(chi.URLParam(r, "agentType")))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, p)
}

func (s *Server) putOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := chi.URLParam(r, "*")
	if scope == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "missing override scope", nil)
		return
	}

	var o policy.Override
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	o.Scope = scope
	o.UpdatedAt = time.Now().UTC()

	if err := s.policies.SetOverride(ctx, &o); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &o)
}

type createSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.Endpoint == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "missing endpoint", nil)
		return
	}

	sub := &subscription.Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  req.Endpoint,
		P256dhKey: req.Keys.P256dh,
		AuthKey:   req.Keys.Auth,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, sub)
}

type submitTaskRequest struct {
	IssueNumber  int    `json:"issue_number"`
	Title        string `json:"title"`
	AgentType    string `json:"agent_type"`
	OrgScope     string `json:"org_scope,omitempty"`
	SessionScope string `json:"session_scope,omitempty"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.IssueNumber <= 0 {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "issue_number must be positive", nil)
		return
	}
	if _, err := policy.GetDefaultPermissions(policy.AgentType(req.AgentType)); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	// The task outlives this request; run it on the server's base context.
	if !s.coordinator.Submit(s.baseCtx, pool.Task{
		IssueNumber:  req.IssueNumber,
		Title:        req.Title,
		AgentType:    policy.AgentType(req.AgentType),
		OrgScope:     req.OrgScope,
		SessionScope: req.SessionScope,
	}) {
		cerr.SetNewJSONError(ctx, cerr.AlreadyExists, "task already in flight", nil)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"issue_number": req.IssueNumber, "submitted": true})
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issue, err := strconv.Atoi(chi.URLParam(r, "issueNumber"))
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid issue number", err)
		return
	}
	if !s.coordinator.Cancel(issue) {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "task not running", nil)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"issue_number": issue, "cancelled": true})
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req deleteSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if err := s.subs.DeleteByEndpoint(ctx, req.Endpoint); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"deleted": true})
}
