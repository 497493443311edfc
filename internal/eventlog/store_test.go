package eventlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentgate/pkg/storage"
)

func TestMemoryStoreOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	types := []EventType{
		EventTaskStarted,
		EventActionAllowed,
		EventActionAllowed,
		EventActionDenied,
		EventTaskFailed,
	}
	for _, eventType := range types {
		_, err := store.Record(ctx, eventType, 42, nil)
		require.NoError(t, err)
	}

	events, err := store.Events(ctx, 42)
	require.NoError(t, err)
	require.Len(t, events, len(types))
	for i, event := range events {
		assert.Equal(t, types[i], event.Type)
		assert.Equal(t, 42, event.IssueNumber)
		if i > 0 {
			assert.Greater(t, event.ID, events[i-1].ID, "ULIDs must preserve append order")
		}
	}
}

func TestMemoryStoreFilterAndLastEvent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Record(ctx, EventTaskStarted, 1, nil)
	require.NoError(t, err)
	_, err = store.Record(ctx, EventTaskStarted, 2, nil)
	require.NoError(t, err)
	_, err = store.Record(ctx, EventTaskCompleted, 1, nil)
	require.NoError(t, err)

	events, err := store.Events(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)

	last, err := store.LastEvent(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, EventTaskCompleted, last.Type)
	assert.True(t, last.Type.Terminal())

	last, err = store.LastEvent(ctx, 2, EventTaskCompleted, EventTaskFailed)
	require.NoError(t, err)
	assert.Nil(t, last)

	last, err = store.LastEvent(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestStorageStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := NewStorageStore(local)

	_, err = store.Record(ctx, EventTaskStarted, 7, map[string]any{"agent_type": "contributor"})
	require.NoError(t, err)
	_, err = store.Record(ctx, EventActionAllowed, 7, map[string]any{"category": "file-write"})
	require.NoError(t, err)
	_, err = store.Record(ctx, EventTaskCompleted, 7, nil)
	require.NoError(t, err)

	events, err := store.Events(ctx, 7)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventTaskStarted, events[0].Type)
	assert.Equal(t, EventActionAllowed, events[1].Type)
	assert.Equal(t, "file-write", events[1].Payload["category"])
	assert.Equal(t, EventTaskCompleted, events[2].Type)

	last, err := store.LastEvent(ctx, 7, EventTaskCompleted, EventTaskFailed)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, EventTaskCompleted, last.Type)

	require.NoError(t, store.Clear(ctx))
	events, err = store.Events(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}
