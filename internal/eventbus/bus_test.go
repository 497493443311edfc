package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentgate/internal/eventlog"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(4)
	defer bus.Unsubscribe(id)

	event := &eventlog.EngineEvent{ID: "01TEST", Type: eventlog.EventTaskStarted, IssueNumber: 1}
	bus.Publish(event)

	select {
	case got := <-ch:
		assert.Equal(t, event, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	defer bus.Unsubscribe(id)

	bus.Publish(&eventlog.EngineEvent{ID: "01A"})
	bus.Publish(&eventlog.EngineEvent{ID: "01B"}) // dropped, buffer full

	got := <-ch
	assert.Equal(t, "01A", got.ID)
	select {
	case extra := <-ch:
		t.Fatalf("expected second event dropped, got %s", extra.ID)
	default:
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	bus.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(&eventlog.EngineEvent{ID: "01C"})
}

func TestStorePublisherPublishesRecordedEvents(t *testing.T) {
	ctx := context.Background()
	bus := New()
	store := NewStorePublisher(eventlog.NewMemoryStore(), bus)

	id, ch := bus.Subscribe(4)
	defer bus.Unsubscribe(id)

	recorded, err := store.Record(ctx, eventlog.EventApprovalRequested, 9, map[string]any{"request_id": "01REQ"})
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, recorded, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}

	events, err := store.Events(ctx, 9)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, recorded.ID, events[0].ID)
}
