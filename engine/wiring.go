package engine

import (
	"encoding/json"
	"fmt"

	"ffcentral/metrics"
	"ffcentral/orders"
	"ffcentral/protocol"
)

const snapshotQoS = 2

func (e *Engine) wireEventHandlers() {
	// Admission: audit and acknowledge on ccu/order/response
	e.Events.SubscribeTypes(func(evt Event) {
		o := evt.Payload.(OrderEvent).Order
		e.audit(o.OrderID, "received", fmt.Sprintf("%s %s", o.OrderType, o.Type))
		e.sendJSON(protocol.TopicOrderResponse, &protocol.OrderResponse{
			OrderID:    o.OrderID,
			OrderType:  string(o.OrderType),
			Type:       o.Type,
			State:      string(o.State),
			ReceivedAt: o.ReceivedAt,
		}, false)
	}, EventOrderReceived)

	e.Events.SubscribeTypes(func(evt Event) {
		o := evt.Payload.(OrderEvent).Order
		e.audit(o.OrderID, "started", "stock "+o.StockLocation)
	}, EventOrderStarted)

	// Step timing and failures
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StepChangedEvent)
		s := ev.Step
		switch s.State {
		case orders.Finished:
			if s.StartedAt != nil && s.StoppedAt != nil {
				metrics.StepDuration.WithLabelValues(string(s.Type)).Observe(s.StoppedAt.Sub(*s.StartedAt).Seconds())
			}
		case orders.Error:
			e.audit(ev.Order.OrderID, "step_failed", fmt.Sprintf("%s %s %s%s", s.ID, s.Type, s.Module, s.Target))
		}
	}, EventStepChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		o := evt.Payload.(OrderEvent).Order
		e.logFn("engine: order %s completed", o.OrderID)
		e.audit(o.OrderID, "completed", "")
		metrics.OrdersFinishedTotal.WithLabelValues(string(o.State), string(o.OrderType)).Inc()
	}, EventOrderCompleted)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderCancelledEvent)
		e.logFn("engine: order %s %s: %s", ev.Order.OrderID, ev.Order.State, ev.Reason)
		e.audit(ev.Order.OrderID, "cancelled", ev.Reason)
		metrics.OrdersFinishedTotal.WithLabelValues(string(ev.Order.State), string(ev.Order.OrderType)).Inc()
	}, EventOrderCancelled)

	// Retained snapshots for dashboards and late subscribers
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrdersSnapshotEvent)
		e.sendJSON(protocol.TopicOrderActive, ev.Active, true)
		e.sendJSON(protocol.TopicOrderCompleted, ev.Completed, true)
	}, EventOrdersSnapshot)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(PairingChangedEvent)
		e.sendJSON(protocol.TopicPairingState, ev.Snapshot, true)
	}, EventPairingChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(LayoutChangedEvent)
		if err := e.db.AppendAudit("layout", "factory", "updated", fmt.Sprintf("%d nodes, %d edges", ev.Nodes, ev.Edges), "system"); err != nil {
			e.logFn("engine: audit layout: %v", err)
		}
	}, EventLayoutChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(FactoryResetEvent)
		if err := e.db.AppendAudit("factory", "factory", "reset", fmt.Sprintf("with storage: %v", ev.WithStorage), ev.Actor); err != nil {
			e.logFn("engine: audit reset: %v", err)
		}
	}, EventFactoryReset)

	// Republish retained state after the bus comes back
	e.Events.SubscribeTypes(func(evt Event) {
		e.logFn("engine: %s", evt.Payload.(ConnectionEvent).Detail)
		e.orders.Publish()
		e.PairingChanged()
	}, EventMessagingConnected)

	e.Events.SubscribeTypes(func(evt Event) {
		e.logFn("engine: %s", evt.Payload.(ConnectionEvent).Detail)
	}, EventMessagingDisconnected)
}

func (e *Engine) audit(orderID, action, detail string) {
	if err := e.db.AppendAudit("order", orderID, action, detail, "system"); err != nil {
		e.logFn("engine: audit %s %s: %v", orderID, action, err)
	}
}

// sendJSON publishes through the outbox so a broker outage does not lose it.
func (e *Engine) sendJSON(topic string, v any, retain bool) {
	data, err := json.Marshal(v)
	if err != nil {
		e.logFn("engine: encode %s: %v", topic, err)
		return
	}
	if err := e.outbox.Send(topic, data, snapshotQoS, retain); err != nil {
		e.logFn("engine: send %s: %v", topic, err)
	}
}
