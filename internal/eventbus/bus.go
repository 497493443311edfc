package eventbus

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/agentgate/internal/eventlog"
)

// Bus fans recorded events out to in-process subscribers. Publish never
// blocks: a subscriber that falls behind loses events rather than stalling
// the recorder.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *eventlog.EngineEvent
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *eventlog.EngineEvent),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *eventlog.EngineEvent) {
	id := ulid.Make().String()
	ch := make(chan *eventlog.EngineEvent, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *eventlog.EngineEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}
