package policy

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store serves the built-in defaults and the override documents layered on
// top of them. It tracks an override version that every write (and every
// observed change on disk) bumps, so resolver caches can tell stale merges
// from fresh ones.
type Store struct {
	repo    Repository
	version atomic.Uint64
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Defaults returns the built-in policy for an agent type.
func (s *Store) Defaults(agentType AgentType) (*PermissionPolicy, error) {
	return GetDefaultPermissions(agentType)
}

// Override returns the override document for a scope, empty if none exists.
func (s *Store) Override(ctx context.Context, scope string) (*Override, error) {
	return s.repo.Get(ctx, scope)
}

// SetOverride persists an override and bumps the version.
func (s *Store) SetOverride(ctx context.Context, o *Override) error {
	if err := s.repo.Upsert(ctx, o); err != nil {
		return err
	}
	s.version.Add(1)
	return nil
}

// Version returns the current override version.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Invalidate bumps the version without a write, forcing resolvers to merge
// fresh on their next lookup.
func (s *Store) Invalidate() {
	s.version.Add(1)
}

// Watch bumps the version whenever a YAML file under dir changes. It blocks
// until ctx is done. Operators may edit override files directly; watching
// the directory catches atomic replaces (write temp file, rename) that
// change the inode.
func (s *Store) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	slog.InfoContext(ctx, "watching override directory", "dir", dir)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".yaml" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			slog.InfoContext(ctx, "override changed on disk", "file", event.Name, "op", event.Op.String())
			s.Invalidate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "override watcher error", "error", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
