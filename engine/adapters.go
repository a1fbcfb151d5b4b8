package engine

import (
	"ffcentral/orders"
)

// orderEmitter bridges the order manager's emitter interface to the EventBus.
type orderEmitter struct {
	bus *EventBus
}

func (e *orderEmitter) EmitOrderReceived(o *orders.Order) {
	e.bus.Emit(Event{Type: EventOrderReceived, Payload: OrderEvent{Order: o}})
}

func (e *orderEmitter) EmitOrderStarted(o *orders.Order) {
	e.bus.Emit(Event{Type: EventOrderStarted, Payload: OrderEvent{Order: o}})
}

func (e *orderEmitter) EmitStepChanged(o *orders.Order, s *orders.Step) {
	e.bus.Emit(Event{Type: EventStepChanged, Payload: StepChangedEvent{Order: o, Step: s}})
}

func (e *orderEmitter) EmitOrderCompleted(o *orders.Order) {
	e.bus.Emit(Event{Type: EventOrderCompleted, Payload: OrderEvent{Order: o}})
}

func (e *orderEmitter) EmitOrderCancelled(o *orders.Order, reason string) {
	e.bus.Emit(Event{Type: EventOrderCancelled, Payload: OrderCancelledEvent{Order: o, Reason: reason}})
}

func (e *orderEmitter) EmitSnapshot(active, completed []*orders.Order) {
	e.bus.Emit(Event{Type: EventOrdersSnapshot, Payload: OrdersSnapshotEvent{Active: active, Completed: completed}})
}

// PairingChanged marks the device snapshot dirty. The loop publishes it once
// the current work item is done.
func (e *Engine) PairingChanged() {
	e.pairingDirty = true
}
