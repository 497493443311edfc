package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/agentgate/internal/policy"
	"github.com/kazz187/agentgate/pkg/cerr"
	"github.com/kazz187/agentgate/pkg/storage"
)

const overridesPrefix = "overrides"

// YAMLRepository stores policy overrides as YAML files keyed by scope.
type YAMLRepository struct {
	storage storage.Storage
}

// NewYAMLRepository creates a new YAML-backed override repository.
func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(scope string) string {
	return fmt.Sprintf("%s/%s.yaml", overridesPrefix, scope)
}

// Get returns the override for a scope.
// Returns an empty Override (not an error) if none exists yet.
func (r *YAMLRepository) Get(ctx context.Context, scope string) (*policy.Override, error) {
	exists, err := r.storage.Exists(ctx, path(scope))
	if err != nil {
		return nil, cerr.WrapStorageReadError("override", err)
	}
	if !exists {
		return &policy.Override{
			Scope: scope,
		}, nil
	}
	data, err := r.storage.Read(ctx, path(scope))
	if err != nil {
		return nil, cerr.WrapStorageReadError("override", err)
	}
	var o policy.Override
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal override: %w", err))
	}
	return &o, nil
}

// Upsert creates or replaces the override for a scope.
func (r *YAMLRepository) Upsert(ctx context.Context, o *policy.Override) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal override: %w", err))
	}
	if err := r.storage.Write(ctx, path(o.Scope), data); err != nil {
		return cerr.WrapStorageWriteError("override", err)
	}
	return nil
}
