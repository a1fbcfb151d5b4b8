package engine

import (
	"sync"
	"time"
)

type EventType int

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// EventBus fans engine events out to handlers registered per event type.
// Handlers run synchronously on the emitting goroutine, which for engine
// events is the event loop, so they must not block or call Engine.Do.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]func(Event)
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[EventType][]func(Event))}
}

// SubscribeTypes registers fn for each of types.
func (eb *EventBus) SubscribeTypes(fn func(Event), types ...EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for _, t := range types {
		eb.handlers[t] = append(eb.handlers[t], fn)
	}
}

// Emit calls the handlers of evt.Type in registration order.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	fns := eb.handlers[evt.Type]
	eb.mu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
}
