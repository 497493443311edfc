package pool

import (
	"context"
	"io"
	"sync"

	"github.com/kazz187/agentgate/internal/action"
	"github.com/kazz187/agentgate/internal/policy"
)

// Task is one unit of work dispatched to an engine.
type Task struct {
	IssueNumber  int
	Title        string
	AgentType    policy.AgentType
	OrgScope     string
	SessionScope string
}

// ActionSource streams the actions an engine proposes while working a task.
// Next returns io.EOF when the engine considers the task done.
type ActionSource interface {
	Next(ctx context.Context) (action.Action, error)
}

// Engine hosts one task at a time. Real engines wrap an external agent
// runtime; scripted engines replay fixed action lists. The coordinator is
// agnostic to which it gets.
type Engine interface {
	ID() string
	StartTask(ctx context.Context, task Task) (ActionSource, error)
}

// ScriptedEngine proposes a fixed sequence of actions, in order, every time
// a task starts. It backs tests and dry runs.
type ScriptedEngine struct {
	id      string
	actions []action.Action
}

func NewScriptedEngine(id string, actions ...action.Action) *ScriptedEngine {
	return &ScriptedEngine{id: id, actions: actions}
}

func (e *ScriptedEngine) ID() string {
	return e.id
}

func (e *ScriptedEngine) StartTask(_ context.Context, _ Task) (ActionSource, error) {
	return &scriptedSource{actions: e.actions}, nil
}

type scriptedSource struct {
	mu      sync.Mutex
	actions []action.Action
	next    int
}

func (s *scriptedSource) Next(ctx context.Context) (action.Action, error) {
	if err := ctx.Err(); err != nil {
		return action.Action{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.actions) {
		return action.Action{}, io.EOF
	}
	act := s.actions[s.next]
	s.next++
	return act, nil
}
