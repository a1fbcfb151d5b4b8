package engine

import (
	"ffcentral/orders"
	"ffcentral/pairing"
)

const (
	EventOrderReceived EventType = iota + 1
	EventOrderStarted
	EventStepChanged
	EventOrderCompleted
	EventOrderCancelled
	EventOrdersSnapshot
	EventPairingChanged
	EventLayoutChanged
	EventFactoryReset
	EventMessagingConnected
	EventMessagingDisconnected
)

// --- Event payloads ---

// OrderEvent carries a copy of the order at the time of the event.
type OrderEvent struct {
	Order *orders.Order
}

type StepChangedEvent struct {
	Order *orders.Order
	Step  *orders.Step
}

type OrderCancelledEvent struct {
	Order  *orders.Order
	Reason string
}

type OrdersSnapshotEvent struct {
	Active    []*orders.Order
	Completed []*orders.Order
}

type PairingChangedEvent struct {
	Snapshot pairing.Snapshot
}

type LayoutChangedEvent struct {
	Nodes int
	Edges int
}

type FactoryResetEvent struct {
	WithStorage bool
	Actor       string
}

type ConnectionEvent struct {
	Detail string
}
