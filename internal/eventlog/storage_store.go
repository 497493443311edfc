package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kazz187/agentgate/pkg/cerr"
	"github.com/kazz187/agentgate/pkg/storage"
)

const eventsPrefix = "events"

// StorageStore persists each event as one object keyed by its ULID. Storage
// List returns keys sorted lexicographically and ULIDs are monotonic, so
// listed order is append order without an index file.
type StorageStore struct {
	storage storage.Storage

	// mu serializes Record so ID order matches commit order.
	mu sync.Mutex
}

func NewStorageStore(s storage.Storage) *StorageStore {
	return &StorageStore{storage: s}
}

func eventPath(id string) string {
	return fmt.Sprintf("%s/%s.json", eventsPrefix, id)
}

func (s *StorageStore) Record(ctx context.Context, eventType EventType, issueNumber int, payload map[string]any) (*EngineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	event := &EngineEvent{
		ID:          NewID(now),
		Timestamp:   now,
		Type:        eventType,
		IssueNumber: issueNumber,
		Payload:     payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal event: %w", err))
	}
	if err := s.storage.Write(ctx, eventPath(event.ID), data); err != nil {
		return nil, cerr.WrapStorageWriteError("event", err)
	}
	return event, nil
}

func (s *StorageStore) Events(ctx context.Context, issueNumber int) ([]*EngineEvent, error) {
	keys, err := s.storage.List(ctx, eventsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("event", err)
	}
	events := make([]*EngineEvent, 0, len(keys))
	for _, key := range keys {
		data, err := s.storage.Read(ctx, key)
		if err != nil {
			return nil, cerr.WrapStorageReadError("event", err)
		}
		var event EngineEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal event %s: %w", key, err))
		}
		if issueNumber > 0 && event.IssueNumber != issueNumber {
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}

func (s *StorageStore) LastEvent(ctx context.Context, issueNumber int, types ...EventType) (*EngineEvent, error) {
	events, err := s.Events(ctx, issueNumber)
	if err != nil {
		return nil, err
	}
	for i := len(events) - 1; i >= 0; i-- {
		if len(types) == 0 || containsType(types, events[i].Type) {
			return events[i], nil
		}
	}
	return nil, nil
}

func (s *StorageStore) Clear(ctx context.Context) error {
	keys, err := s.storage.List(ctx, eventsPrefix)
	if err != nil {
		return cerr.WrapStorageReadError("event", err)
	}
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			return cerr.WrapStorageDeleteError("event", err)
		}
	}
	return nil
}
