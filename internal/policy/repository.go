package policy

import "context"

// Repository provides persistence for override documents.
type Repository interface {
	// Get returns the override for a scope.
	// Returns an empty Override (not an error) if none exists yet.
	Get(ctx context.Context, scope string) (*Override, error)

	// Upsert creates or replaces the override for a scope.
	Upsert(ctx context.Context, o *Override) error
}
