package orders

import (
	"fmt"
	"log"
	"sort"
	"time"

	"ffcentral/navigation"
	"ffcentral/pairing"
	"ffcentral/protocol"

	"github.com/google/uuid"
)

// Commander sends instructions to vehicles and modules.
type Commander interface {
	SendFtsOrder(order *protocol.FtsOrder) error
	SendModuleOrder(order *protocol.ModuleOrder) error
}

// StockService gates admission on warehouse contents. Reserve calls return ""
// when nothing suitable is available.
type StockService interface {
	ReserveWorkpiece(orderID, workpieceType string) (string, error)
	ReserveEmptyBay(orderID, workpieceType string) (string, error)
	RemoveReservation(orderID string) error
	CompleteRemoval(orderID string) error
	CompleteStorage(orderID, workpieceType, workpieceID string) error
}

// OrderStore persists orders across restarts.
type OrderStore interface {
	SaveOrder(o *Order) error
}

// Emitter receives order lifecycle notifications. Orders passed to it are copies.
type Emitter interface {
	EmitOrderReceived(o *Order)
	EmitOrderStarted(o *Order)
	EmitStepChanged(o *Order, s *Step)
	EmitOrderCompleted(o *Order)
	EmitOrderCancelled(o *Order, reason string)
	EmitSnapshot(active, completed []*Order)
}

type Config struct {
	MaxActive int
	Plans     map[string][]string
}

type stepRef struct {
	orderID string
	stepID  string
}

// Manager owns every order and drives its steps. It is not safe for concurrent use.
type Manager struct {
	cfg     Config
	fts     *pairing.FtsPairing
	modules *pairing.ModulePairing
	nav     *navigation.Navigator
	cmd     Commander
	stock   StockService
	store   OrderStore
	emit    Emitter

	queued    []*Order
	active    []*Order
	completed []*Order

	navRetry    []stepRef
	moduleRetry []stepRef

	now func() time.Time
}

func NewManager(cfg Config, fts *pairing.FtsPairing, modules *pairing.ModulePairing, nav *navigation.Navigator,
	cmd Commander, stock StockService, store OrderStore, emit Emitter) *Manager {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 3
	}
	return &Manager{
		cfg:     cfg,
		fts:     fts,
		modules: modules,
		nav:     nav,
		cmd:     cmd,
		stock:   stock,
		store:   store,
		emit:    emit,
		now:     time.Now,
	}
}

func (m *Manager) timestamp() *time.Time {
	t := m.now().UTC()
	return &t
}

// RequestOrder queues a new order and tries to start it.
func (m *Manager) RequestOrder(orderType OrderType, workpieceType, workpieceID string) (*Order, error) {
	var plan []string
	if orderType == Production {
		p, ok := m.cfg.Plans[workpieceType]
		if !ok {
			return nil, fmt.Errorf("no production plan for workpiece type %q", workpieceType)
		}
		plan = p
	}
	steps, err := BuildSteps(orderType, plan)
	if err != nil {
		return nil, err
	}
	o := &Order{
		OrderID:     uuid.New().String(),
		OrderType:   orderType,
		Type:        workpieceType,
		WorkpieceID: workpieceID,
		State:       Enqueued,
		ReceivedAt:  m.now().UTC(),
		Steps:       steps,
	}
	m.queued = append(m.queued, o)
	m.save(o)
	log.Printf("orders: received %s order %s for %s", orderType, o.OrderID, workpieceType)
	m.emit.EmitOrderReceived(o.clone())
	m.publish()
	m.StartNextOrder()
	return o.clone(), nil
}

// StartNextOrder promotes queued orders in arrival order while there is
// capacity and their stock reservation succeeds.
func (m *Manager) StartNextOrder() {
	for len(m.active) < m.cfg.MaxActive && len(m.queued) > 0 {
		o := m.queued[0]
		location, err := m.reserve(o)
		if err != nil {
			log.Printf("orders: reserve stock for %s: %v", o.OrderID, err)
			return
		}
		if location == "" {
			return
		}
		m.queued = m.queued[1:]
		o.State = InProgress
		o.StartedAt = m.timestamp()
		o.StockLocation = location
		m.active = append(m.active, o)
		m.save(o)
		log.Printf("orders: started %s (stock %s), %d active", o.OrderID, location, len(m.active))
		m.emit.EmitOrderStarted(o.clone())
		m.publish()
		if err := m.TriggerIndependentActions(o, ""); err != nil {
			log.Printf("orders: start %s: %v", o.OrderID, err)
		}
	}
}

func (m *Manager) reserve(o *Order) (string, error) {
	switch o.OrderType {
	case Production:
		return m.stock.ReserveWorkpiece(o.OrderID, o.Type)
	case Storage:
		return m.stock.ReserveEmptyBay(o.OrderID, o.Type)
	}
	return "", fmt.Errorf("unknown order type %q", o.OrderType)
}

// CancelOrders cancels queued and active orders. Unknown ids are ignored.
func (m *Manager) CancelOrders(ids []string) {
	for _, id := range ids {
		if i := indexOf(m.queued, id); i >= 0 {
			o := m.queued[i]
			m.queued = append(m.queued[:i], m.queued[i+1:]...)
			m.cancelSteps(o)
			o.State = Cancelled
			o.StoppedAt = m.timestamp()
			m.completed = append(m.completed, o)
			m.save(o)
			log.Printf("orders: cancelled queued order %s", id)
			m.emit.EmitOrderCancelled(o.clone(), "cancelled while queued")
			continue
		}
		if o := m.activeOrder(id); o != nil {
			m.cancelSteps(o)
			m.finishOrder(o, Cancelled, "cancelled")
		}
	}
	m.publish()
	m.StartNextOrder()
}

// CancelAll cancels every queued and active order.
func (m *Manager) CancelAll() {
	var ids []string
	for _, o := range m.queued {
		ids = append(ids, o.OrderID)
	}
	for _, o := range m.active {
		ids = append(ids, o.OrderID)
	}
	m.CancelOrders(ids)
}

func (m *Manager) cancelSteps(o *Order) {
	for _, s := range o.Steps {
		if !s.State.Terminal() {
			s.State = Cancelled
			s.StoppedAt = m.timestamp()
		}
	}
}

// finishOrder moves an active order to the completed list and frees what it held.
func (m *Manager) finishOrder(o *Order, state State, reason string) {
	i := indexOf(m.active, o.OrderID)
	if i < 0 {
		return
	}
	m.active = append(m.active[:i], m.active[i+1:]...)
	o.State = state
	o.StoppedAt = m.timestamp()
	m.completed = append(m.completed, o)

	if err := m.stock.RemoveReservation(o.OrderID); err != nil {
		log.Printf("orders: remove stock reservation of %s: %v", o.OrderID, err)
	}
	m.fts.Bays().ClearOrder(o.OrderID)
	m.fts.ClearOrderEverywhere(o.OrderID)
	m.modules.ClearOrderEverywhere(o.OrderID)
	m.dropRetries(o.OrderID)
	m.save(o)

	log.Printf("orders: order %s %s", o.OrderID, state)
	if state == Finished {
		m.emit.EmitOrderCompleted(o.clone())
	} else {
		m.emit.EmitOrderCancelled(o.clone(), reason)
	}
	m.publish()
}

// Restore reloads orders saved before a restart.
func (m *Manager) Restore(orders []*Order) {
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].ReceivedAt.Before(orders[j].ReceivedAt) })
	for _, o := range orders {
		switch {
		case o.State == Enqueued:
			m.queued = append(m.queued, o)
		case o.State == InProgress:
			m.active = append(m.active, o)
		default:
			m.completed = append(m.completed, o)
		}
	}
	log.Printf("orders: restored %d queued, %d active, %d completed", len(m.queued), len(m.active), len(m.completed))
	m.Reconcile()
	m.publish()
}

func (m *Manager) save(o *Order) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveOrder(o); err != nil {
		log.Printf("orders: save %s: %v", o.OrderID, err)
	}
}

// publish sends the active and completed snapshots.
func (m *Manager) publish() {
	m.emit.EmitSnapshot(m.ActiveOrders(), m.CompletedOrders())
}

// Publish re-sends the snapshots without changing anything.
func (m *Manager) Publish() { m.publish() }

func (m *Manager) activeOrder(id string) *Order {
	if i := indexOf(m.active, id); i >= 0 {
		return m.active[i]
	}
	return nil
}

// Order returns a copy of the order with id from any list, or nil.
func (m *Manager) Order(id string) *Order {
	for _, list := range [][]*Order{m.active, m.queued, m.completed} {
		if i := indexOf(list, id); i >= 0 {
			return list[i].clone()
		}
	}
	return nil
}

// ActiveOrders returns copies of the queued and in-progress orders.
func (m *Manager) ActiveOrders() []*Order {
	out := make([]*Order, 0, len(m.active)+len(m.queued))
	for _, o := range m.active {
		out = append(out, o.clone())
	}
	for _, o := range m.queued {
		out = append(out, o.clone())
	}
	return out
}

func (m *Manager) CompletedOrders() []*Order {
	out := make([]*Order, 0, len(m.completed))
	for _, o := range m.completed {
		out = append(out, o.clone())
	}
	return out
}

// Counts returns the number of queued, in-progress and completed orders.
func (m *Manager) Counts() (queued, active, completed int) {
	return len(m.queued), len(m.active), len(m.completed)
}

// IsTracked reports whether orderID belongs to a queued or active order.
func (m *Manager) IsTracked(orderID string) bool {
	return indexOf(m.active, orderID) >= 0 || indexOf(m.queued, orderID) >= 0
}

func indexOf(list []*Order, id string) int {
	for i, o := range list {
		if o.OrderID == id {
			return i
		}
	}
	return -1
}
