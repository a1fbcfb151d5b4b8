package orders

import (
	"fmt"
	"log"

	"ffcentral/pairing"
	"ffcentral/protocol"
)

// HandleActionUpdate applies a reported action state to step actionID of
// orderID. Updates for unknown orders or already terminal steps are ignored.
func (m *Manager) HandleActionUpdate(orderID, actionID, state, result string) error {
	o := m.activeOrder(orderID)
	if o == nil {
		return nil
	}
	s := o.Step(actionID)
	if s == nil {
		return fmt.Errorf("order %s has no step %s", orderID, actionID)
	}
	if s.State.Terminal() {
		return nil
	}
	switch state {
	case protocol.ActionFinished:
		return m.finishStep(o, s, result)
	case protocol.ActionFailed:
		m.failStep(o, s, fmt.Sprintf("step %s (%s) failed", s.ID, describe(s)))
	}
	return nil
}

func describe(s *Step) string {
	if s.Type == Navigation {
		return "navigation to " + s.Target
	}
	return s.Module + " " + s.Command
}

func (m *Manager) finishStep(o *Order, s *Step, result string) error {
	s.Result = result
	switch s.Type {
	case Navigation:
		if s.VehicleSerial != "" {
			m.nav.ReleaseAllExcept(s.VehicleSerial, s.ModuleSerial)
		}
	case Manufacture:
		if s.Command == protocol.CommandCheckQuality && result == protocol.QualityFailed {
			m.failQuality(o, s)
			return nil
		}
		m.releaseModule(o, s)
		m.settleCargo(o, s)
	}
	m.setStepState(o, s, Finished)

	if o.Done() {
		m.finishOrder(o, Finished, "")
		m.StartNextOrder()
		return nil
	}
	return m.TriggerIndependentActions(o, s.ID)
}

// settleCargo updates bays and stock after a workpiece moved between a module
// and a vehicle.
func (m *Manager) settleCargo(o *Order, s *Step) {
	switch s.Command {
	case protocol.CommandPick:
		if s.VehicleSerial != "" {
			m.fts.Bays().ClearLoadingBayForOrder(s.VehicleSerial, o.OrderID)
			m.fts.ClearOrder(s.VehicleSerial, o.OrderID)
		}
		if s.Module == pairing.ModuleHBW && o.OrderType == Storage {
			if err := m.stock.CompleteStorage(o.OrderID, o.Type, o.WorkpieceID); err != nil {
				log.Printf("orders: store workpiece of %s: %v", o.OrderID, err)
			}
		}
	case protocol.CommandDrop:
		if s.Module == pairing.ModuleHBW && o.OrderType == Production {
			if err := m.stock.CompleteRemoval(o.OrderID); err != nil {
				log.Printf("orders: remove workpiece of %s from stock: %v", o.OrderID, err)
			}
		}
	}
}

// releaseModule unbinds the module of s unless the workpiece stays there for a
// later DROP of the same visit.
func (m *Manager) releaseModule(o *Order, s *Step) {
	if s.ModuleSerial == "" || workpieceStays(o, s) {
		return
	}
	m.modules.ClearOrder(s.ModuleSerial, o.OrderID)
}

func workpieceStays(o *Order, s *Step) bool {
	for n := o.Successor(s); n != nil; n = o.Successor(n) {
		if n.Type != Manufacture {
			continue
		}
		if n.Module != s.Module {
			return false
		}
		if n.Command == protocol.CommandDrop {
			return true
		}
	}
	return false
}

func (m *Manager) cancelDependents(o *Order, s *Step) {
	for n := o.Successor(s); n != nil; n = o.Successor(n) {
		if !n.State.Terminal() {
			n.State = Cancelled
			n.StoppedAt = m.timestamp()
		}
	}
}

// failStep errors s, cancels what depends on it and fails the order.
func (m *Manager) failStep(o *Order, s *Step, reason string) {
	if s.Type == Navigation && s.VehicleSerial != "" {
		if rec := m.fts.Fts(s.VehicleSerial); rec != nil && rec.Position() != "" {
			m.nav.ReleaseAllExcept(s.VehicleSerial, rec.Position())
		}
	}
	if s.Type == Manufacture && s.ModuleSerial != "" {
		m.modules.ClearOrder(s.ModuleSerial, o.OrderID)
	}
	m.cancelDependents(o, s)
	m.setStepState(o, s, Error)
	log.Printf("orders: %s: %s", o.OrderID, reason)
	m.finishOrder(o, Error, reason)
	m.StartNextOrder()
}

// failQuality ends an order whose workpiece failed inspection and requests a
// replacement of the same type.
func (m *Manager) failQuality(o *Order, s *Step) {
	s.Result = protocol.QualityFailed
	m.failStep(o, s, "quality check failed")
	replacement, err := m.RequestOrder(Production, o.Type, "")
	if err != nil {
		log.Printf("orders: replacement for %s: %v", o.OrderID, err)
		return
	}
	log.Printf("orders: requested replacement %s for rejected %s", replacement.OrderID, o.OrderID)
}
