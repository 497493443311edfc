package eventbus

import (
	"context"

	"github.com/kazz187/agentgate/internal/eventlog"
)

// StorePublisher wraps an event store so that every committed event is also
// published on the bus. Publication happens after the store accepts the
// event; a publish never precedes its durable record.
type StorePublisher struct {
	store eventlog.Store
	bus   *Bus
}

var _ eventlog.Store = (*StorePublisher)(nil)

func NewStorePublisher(store eventlog.Store, bus *Bus) *StorePublisher {
	return &StorePublisher{store: store, bus: bus}
}

func (p *StorePublisher) Record(ctx context.Context, eventType eventlog.EventType, issueNumber int, payload map[string]any) (*eventlog.EngineEvent, error) {
	event, err := p.store.Record(ctx, eventType, issueNumber, payload)
	if err != nil {
		return nil, err
	}
	p.bus.Publish(event)
	return event, nil
}

func (p *StorePublisher) Events(ctx context.Context, issueNumber int) ([]*eventlog.EngineEvent, error) {
	return p.store.Events(ctx, issueNumber)
}

func (p *StorePublisher) LastEvent(ctx context.Context, issueNumber int, types ...eventlog.EventType) (*eventlog.EngineEvent, error) {
	return p.store.LastEvent(ctx, issueNumber, types...)
}

func (p *StorePublisher) Clear(ctx context.Context) error {
	return p.store.Clear(ctx)
}
