package pool

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/agentgate/internal/action"
	"github.com/kazz187/agentgate/pkg/cerr"
	"github.com/kazz187/agentgate/pkg/storage"
)

const plansPrefix = "plans"

// PlanEngine proposes the actions of a pre-authored plan document stored as
// YAML keyed by issue number. It is the engine backing deployments where the
// agent runtime writes a plan first and the gate replays it under
// governance.
type PlanEngine struct {
	id      string
	storage storage.Storage
}

type planDocument struct {
	Actions []action.Action `yaml:"actions"`
}

func NewPlanEngine(id string, s storage.Storage) *PlanEngine {
	return &PlanEngine{id: id, storage: s}
}

func (e *PlanEngine) ID() string {
	return e.id
}

func (e *PlanEngine) StartTask(ctx context.Context, task Task) (ActionSource, error) {
	path := fmt.Sprintf("%s/%d.yaml", plansPrefix, task.IssueNumber)
	data, err := e.storage.Read(ctx, path)
	if err != nil {
		return nil, cerr.WrapStorageReadError("plan", err)
	}
	var doc planDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal plan %s: %w", path, err))
	}
	return &scriptedSource{actions: doc.Actions}, nil
}
