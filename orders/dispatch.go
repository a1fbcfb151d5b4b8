package orders

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"ffcentral/loadingbay"
	"ffcentral/navigation"
	"ffcentral/pairing"
	"ffcentral/protocol"
)

// TriggerIndependentActions dispatches every enqueued step of o that depends
// on finishedID. An empty finishedID selects the steps without a dependency.
func (m *Manager) TriggerIndependentActions(o *Order, finishedID string) error {
	steps := append([]*Step(nil), o.Steps...)
	var errs []error
	for _, s := range steps {
		if s.State != Enqueued || s.DependentActionID != finishedID {
			continue
		}
		if err := m.triggerStep(o, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) triggerStep(o *Order, s *Step) error {
	switch s.Type {
	case Navigation:
		return m.triggerNavigationStep(o, s)
	case Manufacture:
		return m.triggerManufactureStep(o, s)
	}
	return fmt.Errorf("step %s has unknown type %q", s.ID, s.Type)
}

// setStepState records a step transition, persists it and republishes.
func (m *Manager) setStepState(o *Order, s *Step, state State) {
	s.State = state
	switch state {
	case Enqueued:
		s.StartedAt = nil
	case InProgress:
		s.StartedAt = m.timestamp()
	default:
		s.StoppedAt = m.timestamp()
		if s.StartedAt == nil {
			s.StartedAt = s.StoppedAt
		}
	}
	m.save(o)
	sc := *s
	m.emit.EmitStepChanged(o.clone(), &sc)
	m.publish()
}

// isDropAt reports whether s is a DROP on a module of moduleType.
func isDropAt(s *Step, moduleType string) bool {
	return s != nil && s.Type == Manufacture && s.Command == protocol.CommandDrop && s.Module == moduleType
}

func (m *Manager) triggerNavigationStep(o *Order, s *Step) error {
	target := m.resolveTargetModule(o, s)
	if target == "" {
		m.queueNav(o, s)
		return nil
	}
	succ := o.Successor(s)
	if isDropAt(succ, s.Target) {
		if handled, err := m.trySkipNavigation(o, s, succ, target); handled {
			return err
		}
	}

	rec := m.chooseReadyFtsForStep(o, s, target)
	if rec == nil {
		m.queueNav(o, s)
		return nil
	}
	serial := rec.SerialNumber
	start := rec.Position()
	bays := m.fts.Bays()

	var newBay loadingbay.Bay
	if isDropAt(succ, s.Target) && bays.BayForOrder(serial, o.OrderID) == "" {
		b := bays.GetOpenLoadingBay(serial)
		if b == "" {
			m.queueNav(o, s)
			return nil
		}
		if err := bays.SetLoadingBay(serial, b, o.OrderID); err != nil {
			m.queueNav(o, s)
			return err
		}
		newBay = b
	}
	revertBay := func() {
		if newBay != "" {
			bays.ClearLoadingBayForOrder(serial, o.OrderID)
		}
	}

	order, path, err := m.nav.Order(navigation.OrderRequest{
		Start:         start,
		Target:        target,
		OrderID:       o.OrderID,
		OrderUpdateID: o.OrderUpdateID + 1,
		Vehicle:       serial,
		ActionID:      s.ID,
		Dock: &protocol.ActionMetadata{
			LoadType:     o.Type,
			LoadID:       o.WorkpieceID,
			LoadPosition: string(bays.BayForOrder(serial, o.OrderID)),
		},
	})
	if err != nil {
		revertBay()
		m.queueNav(o, s)
		return fmt.Errorf("route step %s of %s: %w", s.ID, o.OrderID, err)
	}

	prevState, prevOrder := rec.Available, rec.OrderID
	m.fts.UpdateAvailability(serial, pairing.FtsUpdate{State: pairing.Busy, OrderID: pairing.Bind(o.OrderID)})
	m.nav.BlockPath(serial, path.Nodes)

	if err := m.cmd.SendFtsOrder(order); err != nil {
		m.fts.UpdateAvailability(serial, pairing.FtsUpdate{State: prevState, OrderID: pairing.Bind(prevOrder)})
		m.nav.ReleaseAllExcept(serial, start)
		revertBay()
		m.queueNav(o, s)
		return fmt.Errorf("send navigation %s to %s: %w", s.ID, serial, err)
	}
	o.OrderUpdateID++
	s.VehicleSerial = serial
	s.ModuleSerial = target
	log.Printf("orders: %s driving %s -> %s for %s (step %s, %.1f)", serial, start, target, o.OrderID, s.ID, path.Distance)
	m.setStepState(o, s, InProgress)
	return nil
}

// resolveTargetModule picks the concrete module a navigation step drives to.
func (m *Manager) resolveTargetModule(o *Order, s *Step) string {
	if s.ModuleSerial != "" {
		return s.ModuleSerial
	}
	if succ := o.Successor(s); succ != nil && succ.ModuleSerial != "" && succ.Module == s.Target {
		return succ.ModuleSerial
	}
	// returning to a module that still holds the workpiece
	for _, p := range o.Steps {
		if p == s {
			break
		}
		if p.Type == Manufacture && p.Module == s.Target && p.ModuleSerial != "" && p.Command != protocol.CommandDrop {
			return p.ModuleSerial
		}
	}
	if rec := m.modules.GetReadyOfType(s.Target, o.OrderID); rec != nil {
		return rec.SerialNumber
	}
	return ""
}

// trySkipNavigation finishes s without driving when a vehicle already stands
// at target. It reports whether s was handled.
func (m *Manager) trySkipNavigation(o *Order, s, drop *Step, target string) (bool, error) {
	bays := m.fts.Bays()
	if m.fts.IsFtsWaitingAtPosition(o.OrderID, target) {
		serial := bays.HolderOf(o.OrderID)
		if !m.fts.IsReadyForOrder(serial, o.OrderID) {
			m.queueNav(o, s)
			return true, nil
		}
		m.adoptVehicle(serial, o.OrderID)
		m.finishWithoutDriving(o, s, serial, target)
		return true, m.triggerManufactureStep(o, drop)
	}

	rec := m.fts.GetFtsAtPosition(target, o.OrderID)
	if rec == nil {
		return false, nil
	}
	serial := rec.SerialNumber
	if bays.BayForOrder(serial, o.OrderID) == "" {
		// the last open bay is only taken when a pickup empties one again
		if bays.OpenBayCount(serial) == 1 && !m.pickupGuaranteed(o, s) {
			if s.Injected {
				return false, nil
			}
			m.finishWithoutDriving(o, s, "", target)
			m.injectNavigation(o, s, drop, target)
			return true, nil
		}
		if err := bays.SetLoadingBay(serial, bays.GetOpenLoadingBay(serial), o.OrderID); err != nil {
			m.queueNav(o, s)
			return true, err
		}
	}
	m.adoptVehicle(serial, o.OrderID)
	m.finishWithoutDriving(o, s, serial, target)
	log.Printf("orders: %s already docked at %s, skipping navigation %s", serial, target, s.ID)
	return true, m.triggerManufactureStep(o, drop)
}

func (m *Manager) adoptVehicle(serial, orderID string) {
	rec := m.fts.Fts(serial)
	if rec == nil {
		return
	}
	m.fts.UpdateAvailability(serial, pairing.FtsUpdate{State: rec.Available, OrderID: pairing.Bind(orderID)})
}

func (m *Manager) finishWithoutDriving(o *Order, s *Step, serial, target string) {
	s.VehicleSerial = serial
	s.ModuleSerial = target
	m.setStepState(o, s, Finished)
}

// injectNavigation places a fresh navigation to target between s and drop and
// queues it. The injected step is dispatched like any other navigation and
// never injects again.
func (m *Manager) injectNavigation(o *Order, s, drop *Step, target string) {
	n := &Step{
		ID:                newStepID(),
		Type:              Navigation,
		State:             Enqueued,
		DependentActionID: s.ID,
		Source:            s.Source,
		Target:            s.Target,
		ModuleSerial:      target,
		Injected:          true,
	}
	o.insertAfter(s, n)
	drop.DependentActionID = n.ID
	log.Printf("orders: injected navigation %s before %s of %s", n.ID, drop.ID, o.OrderID)
	m.save(o)
	m.queueNav(o, n)
}

// chooseReadyFtsForStep picks the vehicle for a navigation step: the vehicle
// already serving the order when it is ready, else the nearest free one that
// keeps a bay open unless an immediate pickup empties it again.
func (m *Manager) chooseReadyFtsForStep(o *Order, s *Step, target string) *pairing.FtsRecord {
	if rec := m.fts.GetForOrder(o.OrderID); rec != nil {
		if !m.fts.IsReadyForOrder(rec.SerialNumber, o.OrderID) || rec.Position() == "" {
			return nil
		}
		if m.nav.Path(rec.Position(), target, rec.SerialNumber) == nil {
			return nil
		}
		return rec
	}

	loads := isDropAt(o.Successor(s), s.Target)
	type candidate struct {
		rec      *pairing.FtsRecord
		distance float64
	}
	var cands []candidate
	for _, rec := range m.fts.GetAllReadyUnassigned() {
		start := rec.Position()
		if start == "" {
			continue
		}
		p := m.nav.Path(start, target, rec.SerialNumber)
		if p == nil {
			continue
		}
		cands = append(cands, candidate{rec: rec, distance: p.Distance})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].distance < cands[j].distance })

	bays := m.fts.Bays()
	for _, c := range cands {
		if !loads {
			return c.rec
		}
		switch open := bays.OpenBayCount(c.rec.SerialNumber); {
		case open == 0:
			continue
		case open == 1 && !m.pickupGuaranteed(o, s):
			continue
		}
		return c.rec
	}
	return nil
}

// pickupGuaranteed reports whether the first manufacture step after the DROP
// following s is a PICK a ready module can run now.
func (m *Manager) pickupGuaranteed(o *Order, s *Step) bool {
	drop := o.Successor(s)
	if !isDropAt(drop, s.Target) {
		return true
	}
	for n := o.Successor(drop); n != nil; n = o.Successor(n) {
		if n.Type != Manufacture {
			continue
		}
		return n.Command == protocol.CommandPick && m.modules.GetReadyOfType(n.Module, o.OrderID) != nil
	}
	return false
}

// resolveModule finds the module a manufacture step runs on: the one its
// preceding steps on the same module type already used, else a ready one.
func (m *Manager) resolveModule(o *Order, s *Step) string {
	if s.ModuleSerial != "" {
		return s.ModuleSerial
	}
	for p := o.Predecessor(s); p != nil; p = o.Predecessor(p) {
		same := (p.Type == Navigation && p.Target == s.Module) || (p.Type == Manufacture && p.Module == s.Module)
		if !same {
			break
		}
		if p.ModuleSerial != "" {
			return p.ModuleSerial
		}
	}
	if rec := m.modules.GetReadyOfType(s.Module, o.OrderID); rec != nil {
		return rec.SerialNumber
	}
	return ""
}

func (m *Manager) triggerManufactureStep(o *Order, s *Step) error {
	serial := m.resolveModule(o, s)
	if serial == "" || !m.modules.IsReadyForOrder(serial, o.OrderID) {
		m.queueModule(o, s)
		return nil
	}
	meta := &protocol.ModuleMetadata{Type: o.Type, WorkpieceID: o.WorkpieceID}

	var vehicle string
	var newBay loadingbay.Bay
	bays := m.fts.Bays()
	if s.Command == protocol.CommandPick || s.Command == protocol.CommandDrop {
		rec := m.fts.GetForOrder(o.OrderID)
		if rec == nil || rec.Position() != serial {
			m.queueModule(o, s)
			return nil
		}
		vehicle = rec.SerialNumber
		bay := bays.BayForOrder(vehicle, o.OrderID)
		if bay == "" {
			if s.Command == protocol.CommandPick {
				m.queueModule(o, s)
				return &pairing.NotReadyError{Serial: vehicle, Reason: "no loading bay holds order " + o.OrderID}
			}
			bay = bays.GetOpenLoadingBay(vehicle)
			if bay == "" {
				m.queueModule(o, s)
				return nil
			}
			if err := bays.SetLoadingBay(vehicle, bay, o.OrderID); err != nil {
				m.queueModule(o, s)
				return err
			}
			newBay = bay
		}
		meta.LoadPosition = string(bay)
		meta.FtsSerial = vehicle
	}

	mod := m.modules.Module(serial)
	prevState, prevOrder := mod.Available, mod.OrderID
	m.modules.UpdateAvailability(serial, pairing.Busy, pairing.Bind(o.OrderID))

	order := &protocol.ModuleOrder{
		Timestamp:     m.now().UTC(),
		SerialNumber:  serial,
		OrderID:       o.OrderID,
		OrderUpdateID: o.OrderUpdateID,
		Action:        protocol.ModuleAction{ID: s.ID, Command: s.Command, Metadata: meta},
	}
	if err := m.cmd.SendModuleOrder(order); err != nil {
		m.modules.UpdateAvailability(serial, prevState, pairing.Bind(prevOrder))
		if newBay != "" {
			bays.ClearLoadingBayForOrder(vehicle, o.OrderID)
		}
		m.queueModule(o, s)
		return fmt.Errorf("send %s to %s: %w", s.Command, serial, err)
	}
	s.ModuleSerial = serial
	s.VehicleSerial = vehicle
	log.Printf("orders: %s %s for %s (step %s)", serial, s.Command, o.OrderID, s.ID)
	m.setStepState(o, s, InProgress)
	return nil
}
