package engine

import (
	"errors"
	"fmt"
	"time"

	"ffcentral/navigation"
	"ffcentral/orders"
	"ffcentral/pairing"
	"ffcentral/protocol"
)

// ErrStopped is returned by the public operations once the engine has stopped.
var ErrStopped = errors.New("engine stopped")

func (e *Engine) requestOrder(orderType orders.OrderType, workpieceType, workpieceID string) (*orders.Order, error) {
	switch orderType {
	case orders.Production, orders.Storage:
	default:
		return nil, fmt.Errorf("unknown order type %q", orderType)
	}
	if workpieceType == "" {
		return nil, fmt.Errorf("workpiece type is required")
	}
	return e.orders.RequestOrder(orderType, workpieceType, workpieceID)
}

func (e *Engine) charge(serial string, start bool) error {
	if e.fts.Fts(serial) == nil {
		return fmt.Errorf("%w: %s", pairing.ErrUnknownDevice, serial)
	}
	if start {
		return e.charging.TriggerChargeOrderForFts(serial, true)
	}
	return e.charging.StopCharging(serial)
}

// pairFts places a vehicle at a module. nodeID overrides the node when the
// vehicle stands next to rather than on the module node.
func (e *Engine) pairFts(serial, moduleSerial, nodeID string) {
	e.fts.PairAt(serial, moduleSerial)
	if nodeID != "" && nodeID != moduleSerial {
		rec := e.fts.Fts(serial)
		e.fts.UpdateAvailability(serial, pairing.FtsUpdate{State: rec.Available, NodeID: nodeID})
	}
	e.logFn("engine: paired %s at %s", serial, moduleSerial)
	e.orders.RetriggerFTSSteps()
}

// factoryReset cancels all work and returns every device and reservation to
// its idle state. withStorage also empties the warehouse.
func (e *Engine) factoryReset(withStorage bool, actor string) {
	e.logFn("engine: factory reset (with storage: %v)", withStorage)
	e.orders.CancelAll()

	if withStorage {
		if err := e.db.ClearStock(); err != nil {
			e.logFn("engine: clear stock: %v", err)
		}
	} else if err := e.db.ClearReservations(); err != nil {
		e.logFn("engine: clear stock reservations: %v", err)
	}

	e.charging.Reset()
	e.nav.Reset()
	e.bays.Reset()

	for _, rec := range e.fts.All() {
		e.fts.ResetFts(rec.SerialNumber)
		if pos := rec.Position(); pos != "" {
			e.nav.ReserveNode(rec.SerialNumber, pos)
		}
		if !rec.Connected {
			continue
		}
		if err := e.cmd.ResetDevice(protocol.KindFts, rec.SerialNumber); err != nil {
			e.logFn("engine: reset %s: %v", rec.SerialNumber, err)
		}
	}
	for _, rec := range e.modules.All() {
		if rec.Passive {
			e.modules.UpdateAvailability(rec.SerialNumber, pairing.Ready, pairing.Bind(""))
			continue
		}
		e.modules.ClearOrder(rec.SerialNumber, "")
		if !rec.Connected {
			continue
		}
		if err := e.cmd.ResetDevice(protocol.KindModule, rec.SerialNumber); err != nil {
			e.logFn("engine: reset %s: %v", rec.SerialNumber, err)
		}
	}

	e.nodeState.Reset()
	e.PairingChanged()
	e.orders.Publish()
	e.Events.Emit(Event{Type: EventFactoryReset, Payload: FactoryResetEvent{WithStorage: withStorage, Actor: actor}})
}

// applyLayout replaces the navigation graph, declares new modules and saves
// the layout so it survives a restart.
func (e *Engine) applyLayout(layout *protocol.Layout) error {
	g, err := navigation.NewFactoryGraph(layout)
	if err != nil {
		return err
	}
	e.nav.Reconfigure(g)
	// vehicles keep their own node even if the new layout dropped it
	for _, rec := range e.fts.All() {
		if pos := rec.Position(); pos != "" && g.HasNode(pos) {
			e.nav.ReserveNode(rec.SerialNumber, pos)
		}
	}
	e.declareModules()
	if path := e.cfg.Layout.Path; path != "" {
		if err := navigation.SaveLayout(path, layout); err != nil {
			e.logFn("engine: save layout: %v", err)
		}
	}
	e.Events.Emit(Event{Type: EventLayoutChanged, Payload: LayoutChangedEvent{Nodes: len(layout.Nodes), Edges: len(layout.Edges)}})
	e.orders.RetriggerFTSSteps()
	return nil
}

// --- loop-safe operations for the HTTP layer ---

func (e *Engine) RequestOrder(orderType orders.OrderType, workpieceType, workpieceID string) (*orders.Order, error) {
	var o *orders.Order
	var err error
	if !e.Do(func() { o, err = e.requestOrder(orderType, workpieceType, workpieceID) }) {
		return nil, ErrStopped
	}
	return o, err
}

func (e *Engine) CancelOrders(ids []string) error {
	if !e.Do(func() { e.orders.CancelOrders(ids) }) {
		return ErrStopped
	}
	return nil
}

func (e *Engine) FactoryReset(withStorage bool, actor string) error {
	if !e.Do(func() { e.factoryReset(withStorage, actor) }) {
		return ErrStopped
	}
	return nil
}

func (e *Engine) Charge(serial string, start bool) error {
	var err error
	if !e.Do(func() { err = e.charge(serial, start) }) {
		return ErrStopped
	}
	return err
}

func (e *Engine) PairFts(serial, moduleSerial, nodeID string) error {
	if !e.Do(func() { e.pairFts(serial, moduleSerial, nodeID) }) {
		return ErrStopped
	}
	return nil
}

func (e *Engine) ApplyLayout(layout *protocol.Layout) error {
	var err error
	if !e.Do(func() { err = e.applyLayout(layout) }) {
		return ErrStopped
	}
	return err
}

// OrderLists returns copies of the active and completed orders.
func (e *Engine) OrderLists() (active, completed []*orders.Order) {
	e.Do(func() {
		active = e.orders.ActiveOrders()
		completed = e.orders.CompletedOrders()
	})
	return active, completed
}

// Order returns a copy of one order, or nil.
func (e *Engine) Order(id string) *orders.Order {
	var o *orders.Order
	e.Do(func() { o = e.orders.Order(id) })
	return o
}

// ChargingStatus lists vehicles waiting for a charger and the chargers with their state.
type ChargingStatus struct {
	Pending  []string               `json:"pending"`
	Chargers []pairing.ModuleRecord `json:"chargers"`
}

func (e *Engine) ChargingStatus() ChargingStatus {
	var st ChargingStatus
	e.Do(func() {
		st.Pending = e.charging.PendingSerials()
		for _, c := range e.modules.OfType(pairing.ModuleCharger) {
			st.Chargers = append(st.Chargers, *c)
		}
	})
	return st
}

// Health is a point-in-time summary of the engine.
type Health struct {
	Messaging bool      `json:"messaging"`
	Queued    int       `json:"queued"`
	Active    int       `json:"active"`
	Completed int       `json:"completed"`
	Nodes     int       `json:"nodes"`
	Time      time.Time `json:"time"`
}

func (e *Engine) Health() Health {
	h := Health{Time: time.Now().UTC(), Messaging: e.msgClient.IsConnected()}
	e.Do(func() {
		h.Queued, h.Active, h.Completed = e.orders.Counts()
		h.Nodes = len(e.nav.Graph().Nodes())
	})
	return h
}
