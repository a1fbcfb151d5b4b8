package www

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"ffcentral/engine"
)

type SSEEvent struct {
	Event string
	Data  string
}

const sseKeepalive = 30 * time.Second

// EventHub fans events out to connected SSE clients. Slow clients miss events
// instead of holding up the engine loop.
type EventHub struct {
	mu      sync.Mutex
	clients map[chan SSEEvent]struct{}
	closed  bool
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[chan SSEEvent]struct{})}
}

func (h *EventHub) Broadcast(event, data string) {
	evt := SSEEvent{Event: event, Data: data}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *EventHub) BroadcastJSON(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("sse: encode %s: %v", event, err)
		return
	}
	h.Broadcast(event, string(data))
}

// AddClient registers a client. After Close it returns a closed channel.
func (h *EventHub) AddClient() chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.clients[ch] = struct{}{}
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

type orderUpdate struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
	State   string `json:"state"`
	Reason  string `json:"reason,omitempty"`
}

// SetupEngineListeners wires engine events to SSE broadcasts.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	orderEvent := func(kind string) func(engine.Event) {
		return func(evt engine.Event) {
			o := evt.Payload.(engine.OrderEvent).Order
			h.BroadcastJSON("order-update", orderUpdate{Type: kind, OrderID: o.OrderID, State: string(o.State)})
		}
	}
	eng.Events.SubscribeTypes(orderEvent("received"), engine.EventOrderReceived)
	eng.Events.SubscribeTypes(orderEvent("started"), engine.EventOrderStarted)
	eng.Events.SubscribeTypes(orderEvent("completed"), engine.EventOrderCompleted)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.OrderCancelledEvent)
		h.BroadcastJSON("order-update", orderUpdate{Type: "cancelled", OrderID: ev.Order.OrderID, State: string(ev.Order.State), Reason: ev.Reason})
	}, engine.EventOrderCancelled)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.StepChangedEvent)
		h.BroadcastJSON("step-update", map[string]any{"orderId": ev.Order.OrderID, "step": ev.Step})
	}, engine.EventStepChanged)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.BroadcastJSON("pairing-update", evt.Payload.(engine.PairingChangedEvent).Snapshot)
	}, engine.EventPairingChanged)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.LayoutChangedEvent)
		h.BroadcastJSON("layout-update", map[string]int{"nodes": ev.Nodes, "edges": ev.Edges})
	}, engine.EventLayoutChanged)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.FactoryResetEvent)
		h.BroadcastJSON("system-status", map[string]any{"reset": true, "withStorage": ev.WithStorage})
	}, engine.EventFactoryReset)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast("system-status", `{"messaging":"connected"}`)
	}, engine.EventMessagingConnected)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast("system-status", `{"messaging":"disconnected"}`)
	}, engine.EventMessagingDisconnected)
}

// SSEHandler streams hub events until the client goes away or the hub closes.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := h.AddClient()
	defer h.RemoveClient(ch)
	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			_, err = io.WriteString(w, ": keepalive\n\n")
		case evt, open := <-ch:
			if !open {
				return
			}
			_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
		}
		if err != nil {
			log.Printf("sse: write error: %v", err)
			return
		}
		flusher.Flush()
	}
}
