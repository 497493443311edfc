package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kazz187/agentgate/internal/enforce"
	"github.com/kazz187/agentgate/internal/eventlog"
)

// Client provides client operations against a running agentgate server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Events fetches the event log, filtered to one issue when issue > 0.
func (c *Client) Events(ctx context.Context, issue int) ([]*eventlog.EngineEvent, error) {
	path := "/api/events"
	if issue > 0 {
		path = fmt.Sprintf("%s?issue=%d", path, issue)
	}
	var res struct {
		Events []*eventlog.EngineEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return res.Events, nil
}

// PendingApprovals lists open approval requests.
func (c *Client) PendingApprovals(ctx context.Context) ([]*enforce.ApprovalRequest, error) {
	var res struct {
		Approvals []*enforce.ApprovalRequest `json:"approvals"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/approvals", nil, &res); err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return res.Approvals, nil
}

// ResolveApproval approves or denies a pending request.
func (c *Client) ResolveApproval(ctx context.Context, requestID string, approved bool, reason string) error {
	body := map[string]any{"approved": approved}
	if reason != "" {
		body["reason"] = reason
	}
	if err := c.do(ctx, http.MethodPost, "/api/approvals/"+requestID, body, nil); err != nil {
		return fmt.Errorf("failed to resolve approval: %w", err)
	}
	return nil
}

// AgentTypes lists the agent types the server knows about.
func (c *Client) AgentTypes(ctx context.Context) ([]string, error) {
	var res struct {
		AgentTypes []string `json:"agent_types"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/agent-types", nil, &res); err != nil {
		return nil, fmt.Errorf("failed to list agent types: %w", err)
	}
	return res.AgentTypes, nil
}

// SubmitTask dispatches a governed task for an issue.
func (c *Client) SubmitTask(ctx context.Context, issue int, agentType, title, org, session string) error {
	body := map[string]any{
		"issue_number": issue,
		"agent_type":   agentType,
	}
	if title != "" {
		body["title"] = title
	}
	if org != "" {
		body["org_scope"] = org
	}
	if session != "" {
		body["session_scope"] = session
	}
	if err := c.do(ctx, http.MethodPost, "/api/tasks", body, nil); err != nil {
		return fmt.Errorf("failed to submit task: %w", err)
	}
	return nil
}

// CancelTask aborts a running task.
func (c *Client) CancelTask(ctx context.Context, issue int) error {
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", issue), nil, nil); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	return nil
}
