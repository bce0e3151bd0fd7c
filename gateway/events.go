package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies registry lifecycle events.
type EventType string

const (
	EventResourceRegistered  EventType = "resource_registered"
	EventResourceUpdated     EventType = "resource_updated"
	EventResourceRemoved     EventType = "resource_removed"
	EventResourceActivated   EventType = "resource_activated"
	EventResourceDeactivated EventType = "resource_deactivated"
)

// Event is a registry lifecycle notification.
type Event struct {
	Type       EventType `json:"type"`
	ResourceID string    `json:"resource_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventHandler receives events. Handlers run synchronously on the mutating
// goroutine and must not block.
type EventHandler func(Event)

type eventBus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[string]EventHandler)}
}

func (b *eventBus) subscribe(h EventHandler) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.handlers[id] = h
	b.mu.Unlock()
	return id
}

func (b *eventBus) unsubscribe(id string) {
	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
}

func (b *eventBus) emit(ev Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
