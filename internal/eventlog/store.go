package eventlog

import (
	"context"
	"sync"
	"time"
)

// Store is the append-only event log. Record is safe for concurrent callers;
// per-issue causal order follows call order.
type Store interface {
	// Record appends an event and returns it with ID and timestamp assigned.
	Record(ctx context.Context, eventType EventType, issueNumber int, payload map[string]any) (*EngineEvent, error)

	// Events returns events in append order. issueNumber > 0 filters to one
	// issue; 0 returns everything.
	Events(ctx context.Context, issueNumber int) ([]*EngineEvent, error)

	// LastEvent returns the most recent event for an issue, optionally
	// restricted to the given types. Returns nil (not an error) when no
	// event matches.
	LastEvent(ctx context.Context, issueNumber int, types ...EventType) (*EngineEvent, error)

	// Clear drops all recorded events.
	Clear(ctx context.Context) error
}

// MemoryStore keeps events in memory. It backs tests and single-process
// deployments that do not need durability.
type MemoryStore struct {
	mu     sync.Mutex
	events []*EngineEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(_ context.Context, eventType EventType, issueNumber int, payload map[string]any) (*EngineEvent, error) {
	now := time.Now().UTC()
	event := &EngineEvent{
		ID:          NewID(now),
		Timestamp:   now,
		Type:        eventType,
		IssueNumber: issueNumber,
		Payload:     payload,
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return event, nil
}

func (s *MemoryStore) Events(_ context.Context, issueNumber int) ([]*EngineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*EngineEvent, 0, len(s.events))
	for _, event := range s.events {
		if issueNumber > 0 && event.IssueNumber != issueNumber {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

func (s *MemoryStore) LastEvent(_ context.Context, issueNumber int, types ...EventType) (*EngineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if issueNumber > 0 && event.IssueNumber != issueNumber {
			continue
		}
		if len(types) == 0 || containsType(types, event.Type) {
			return event, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
	return nil
}

func containsType(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
