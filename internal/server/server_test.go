package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentgate/internal/action"
	"github.com/kazz187/agentgate/internal/config"
	"github.com/kazz187/agentgate/internal/coordinator"
	"github.com/kazz187/agentgate/internal/enforce"
	"github.com/kazz187/agentgate/internal/eventbus"
	"github.com/kazz187/agentgate/internal/eventlog"
	"github.com/kazz187/agentgate/internal/policy"
	"github.com/kazz187/agentgate/internal/policy/repositoryimpl"
	"github.com/kazz187/agentgate/internal/pool"
	subscriptionrepo "github.com/kazz187/agentgate/internal/subscription/repositoryimpl"
	"github.com/kazz187/agentgate/pkg/storage"
)

type serverRig struct {
	ts        *httptest.Server
	store     eventlog.Store
	approvals *enforce.ApprovalRegistry
	policies  *policy.Store
}

func newServerRig(t *testing.T, engines ...pool.Engine) *serverRig {
	t.Helper()

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	bus := eventbus.New()
	store := eventbus.NewStorePublisher(eventlog.NewMemoryStore(), bus)
	approvals := enforce.NewApprovalRegistry(store, time.Hour)
	policies := policy.NewStore(repositoryimpl.NewYAMLRepository(local))
	resolver := policy.NewResolver(policies)
	subs := subscriptionrepo.NewYAMLRepository(local)

	coord := coordinator.New(coordinator.Config{
		Pool:                 pool.New(engines...),
		Store:                store,
		Bus:                  bus,
		Resolver:             resolver,
		Approvals:            approvals,
		Executor:             coordinator.LogExecutor{},
		ExecutorMaxAttempts:  1,
		RetryInitialInterval: time.Millisecond,
	})

	srv := NewServer(&config.Env{}, approvals, store, policies, subs, coord)
	srv.baseCtx = context.Background()

	ts := httptest.NewServer(srv.handler())
	t.Cleanup(func() {
		ts.Close()
		coord.Wait()
	})
	return &serverRig{ts: ts, store: store, approvals: approvals, policies: policies}
}

func (rig *serverRig) doJSON(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, rig.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestResolveApprovalEndpoint(t *testing.T) {
	rig := newServerRig(t)
	req, err := rig.approvals.Create(context.Background(), 1, "force-push", action.BranchPush("main", true))
	require.NoError(t, err)

	resp := rig.doJSON(t, http.MethodPost, "/api/approvals/"+req.ID, map[string]any{"approved": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.True(t, rig.approvals.ConsumeGrant(1, "force-push"))

	last, err := rig.store.LastEvent(context.Background(), 1, eventlog.EventApprovalResolved)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, true, last.Payload["approved"])
}

func TestResolveApprovalEndpointUnknownRequest(t *testing.T) {
	rig := newServerRig(t)

	resp := rig.doJSON(t, http.MethodPost, "/api/approvals/nope", map[string]any{"approved": true})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListEventsFiltersByIssue(t *testing.T) {
	rig := newServerRig(t)
	ctx := context.Background()
	_, err := rig.store.Record(ctx, eventlog.EventTaskStarted, 1, nil)
	require.NoError(t, err)
	_, err = rig.store.Record(ctx, eventlog.EventTaskStarted, 2, nil)
	require.NoError(t, err)

	resp := rig.doJSON(t, http.MethodGet, "/api/events?issue=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res struct {
		Events []*eventlog.EngineEvent `json:"events"`
	}
	decodeBody(t, resp, &res)
	require.Len(t, res.Events, 1)
	assert.Equal(t, 1, res.Events[0].IssueNumber)
}

func TestAgentTypesEndpoint(t *testing.T) {
	rig := newServerRig(t)

	resp := rig.doJSON(t, http.MethodGet, "/api/agent-types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res struct {
		AgentTypes []string `json:"agent_types"`
	}
	decodeBody(t, resp, &res)
	assert.Contains(t, res.AgentTypes, "contributor")
}

func TestGetPolicyUnknownAgentType(t *testing.T) {
	rig := newServerRig(t)

	resp := rig.doJSON(t, http.MethodGet, "/api/policies/wizard", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutOverridePersists(t *testing.T) {
	rig := newServerRig(t)

	resp := rig.doJSON(t, http.MethodPut, "/api/overrides/org/acme", map[string]any{
		"blocked_commands": []string{"rm -rf", "sudo", "git push --force", "curl"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	o, err := rig.policies.Override(context.Background(), "org/acme")
	require.NoError(t, err)
	assert.Contains(t, o.BlockedCommands, "curl")
}

func TestSubmitTaskUnknownAgentType(t *testing.T) {
	rig := newServerRig(t)

	resp := rig.doJSON(t, http.MethodPost, "/api/tasks", map[string]any{
		"issue_number": 1,
		"agent_type":   "wizard",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitTaskRunsToCompletion(t *testing.T) {
	engine := pool.NewScriptedEngine("e1", action.FileWrite("a.go"))
	rig := newServerRig(t, engine)

	resp := rig.doJSON(t, http.MethodPost, "/api/tasks", map[string]any{
		"issue_number": 7,
		"agent_type":   "contributor",
		"title":        "fix flaky test",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		last, err := rig.store.LastEvent(context.Background(), 7, eventlog.EventTaskCompleted)
		require.NoError(t, err)
		if last != nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("task 7 never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitTaskDuplicateRejected(t *testing.T) {
	// No engines: the first task parks in Acquire and stays in flight.
	rig := newServerRig(t)
	body := map[string]any{"issue_number": 9, "agent_type": "contributor"}

	resp := rig.doJSON(t, http.MethodPost, "/api/tasks", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = rig.doJSON(t, http.MethodPost, "/api/tasks", body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = rig.doJSON(t, http.MethodDelete, "/api/tasks/9", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
