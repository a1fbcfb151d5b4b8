package charging

import (
	"fmt"
	"log"
	"math"

	"ffcentral/navigation"
	"ffcentral/pairing"
	"ffcentral/protocol"

	"github.com/google/uuid"
)

// Commander sends vehicle instructions.
type Commander interface {
	SendFtsOrder(order *protocol.FtsOrder) error
	SendFtsInstantAction(serial string, actions ...protocol.InstantAction) error
}

type Config struct {
	Enabled          bool
	ThresholdPercent float64
}

type orderKind int

const (
	kindCharge orderKind = iota + 1
	kindVacate
)

type untrackedOrder struct {
	kind    orderKind
	serial  string
	charger string
}

// Orchestrator sends vehicles with low batteries to chargers and evicts idle
// vehicles from chargers that others need. It is not safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	fts       *pairing.FtsPairing
	modules   *pairing.ModulePairing
	nav       *navigation.Navigator
	cmd       Commander
	pending   []string
	forced    map[string]bool // pending vehicles queued by an operator request
	untracked map[string]untrackedOrder
}

func New(cfg Config, fts *pairing.FtsPairing, modules *pairing.ModulePairing, nav *navigation.Navigator, cmd Commander) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		fts:       fts,
		modules:   modules,
		nav:       nav,
		cmd:       cmd,
		forced:    make(map[string]bool),
		untracked: make(map[string]untrackedOrder),
	}
}

// IsBatteryLow reports whether a numeric battery percentage is at or below the threshold.
func (o *Orchestrator) IsBatteryLow(state *protocol.FtsState) bool {
	if state == nil || state.BatteryState == nil || state.BatteryState.Percentage == nil {
		return false
	}
	pct := *state.BatteryState.Percentage
	if math.IsNaN(pct) {
		return false
	}
	return pct <= o.cfg.ThresholdPercent
}

// HandleChargingUpdate mirrors the charging flag. When charging stops the
// vehicle is unbound and its charger becomes available again.
func (o *Orchestrator) HandleChargingUpdate(serial string, state *protocol.FtsState) {
	was := o.fts.IsCharging(serial)
	now := state.Charging()
	var voltage float64
	var pct *float64
	if state.BatteryState != nil {
		voltage = state.BatteryState.CurrentVoltage
		pct = state.BatteryState.Percentage
	}
	o.fts.UpdateCharge(serial, now, voltage, pct)
	if !was || now {
		return
	}
	log.Printf("charging: %s stopped charging", serial)
	o.fts.ClearOrder(serial, "")
	if rec := o.fts.Fts(serial); rec != nil {
		if m := o.modules.Module(rec.Position()); m != nil && m.Type == pairing.ModuleCharger {
			o.modules.UpdateAvailability(m.SerialNumber, pairing.Ready, pairing.Bind(""))
		}
	}
}

func (o *Orchestrator) addPending(serial, reason string) {
	for _, s := range o.pending {
		if s == serial {
			return
		}
	}
	log.Printf("charging: %s queued for charging retry: %s", serial, reason)
	o.pending = append(o.pending, serial)
}

func (o *Orchestrator) removePending(serial string) {
	delete(o.forced, serial)
	for i, s := range o.pending {
		if s == serial {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return
		}
	}
}

// PendingSerials returns the vehicles waiting for a charger.
func (o *Orchestrator) PendingSerials() []string {
	out := make([]string, len(o.pending))
	copy(out, o.pending)
	return out
}

// TriggerChargeOrderForFts sends serial to the nearest ready charger. Unmet
// preconditions queue the vehicle for retry and return nil.
func (o *Orchestrator) TriggerChargeOrderForFts(serial string, force bool) error {
	if !o.cfg.Enabled && !force {
		return nil
	}
	if force {
		o.forced[serial] = true
	}
	rec := o.fts.Fts(serial)
	if rec == nil {
		o.addPending(serial, "unknown vehicle")
		return nil
	}
	if rec.Charging {
		o.removePending(serial)
		return nil
	}
	if !o.fts.IsReadyForOrder(serial, "") {
		o.addPending(serial, "vehicle not ready")
		return nil
	}
	start := rec.Position()
	if start == "" {
		o.addPending(serial, "position unknown")
		return nil
	}
	chargers := o.modules.ReadyOfType(pairing.ModuleCharger)
	if len(chargers) == 0 {
		o.addPending(serial, "no ready charger")
		return nil
	}
	var target string
	best := math.Inf(1)
	for _, c := range chargers {
		if c.OrderID != "" {
			continue
		}
		if p := o.nav.Path(start, c.SerialNumber, serial); p != nil && p.Distance < best {
			best = p.Distance
			target = c.SerialNumber
		}
	}
	if target == "" {
		o.addPending(serial, "no reachable charger")
		return nil
	}

	orderID := uuid.New().String()
	order, path, err := o.nav.Order(navigation.OrderRequest{
		Start:    start,
		Target:   target,
		OrderID:  orderID,
		Vehicle:  serial,
		ActionID: uuid.New().String(),
		Dock:     &protocol.ActionMetadata{Charge: true},
	})
	if err != nil {
		o.addPending(serial, err.Error())
		return nil
	}

	prevState, prevOrder := rec.Available, rec.OrderID
	o.fts.UpdateAvailability(serial, pairing.FtsUpdate{State: pairing.Busy, OrderID: pairing.Bind(orderID)})
	o.modules.UpdateAvailability(target, pairing.Busy, pairing.Bind(orderID))
	o.nav.BlockPath(serial, path.Nodes)

	if err := o.cmd.SendFtsOrder(order); err != nil {
		o.fts.UpdateAvailability(serial, pairing.FtsUpdate{State: prevState, OrderID: pairing.Bind(prevOrder)})
		o.modules.UpdateAvailability(target, pairing.Ready, pairing.Bind(""))
		o.nav.ReleaseAllExcept(serial, start)
		o.addPending(serial, "send failed")
		return fmt.Errorf("send charge order to %s: %w", serial, err)
	}
	o.removePending(serial)
	o.untracked[orderID] = untrackedOrder{kind: kindCharge, serial: serial, charger: target}
	log.Printf("charging: %s sent to charger %s (order %s, distance %.1f)", serial, target, orderID, best)
	return nil
}

// RetriggerChargeOrders replays every queued vehicle. Only operator requests
// bypass a disabled orchestrator.
func (o *Orchestrator) RetriggerChargeOrders() {
	for _, serial := range o.PendingSerials() {
		if err := o.TriggerChargeOrderForFts(serial, o.forced[serial]); err != nil {
			log.Printf("charging: retrigger %s: %v", serial, err)
		}
	}
}

// FreeBlockedChargers moves an idle vehicle off the first ready charger it
// occupies, when some vehicle is waiting to charge or force is set.
func (o *Orchestrator) FreeBlockedChargers(force bool) error {
	if len(o.pending) == 0 && !force {
		return nil
	}
	for _, c := range o.modules.ReadyOfType(pairing.ModuleCharger) {
		occupant := o.fts.FtsAt(c.SerialNumber)
		if occupant == nil || occupant.Charging || !o.fts.IsReadyForOrder(occupant.SerialNumber, "") {
			continue
		}
		return o.vacate(occupant, c.SerialNumber)
	}
	return nil
}

func (o *Orchestrator) vacate(rec *pairing.FtsRecord, charger string) error {
	serial := rec.SerialNumber
	var target string
	best := math.Inf(1)
	for _, n := range o.nav.Graph().ModuleNodes("") {
		if n.ModuleType == pairing.ModuleCharger || n.ID == charger {
			continue
		}
		if other := o.fts.FtsAt(n.ID); other != nil {
			continue
		}
		if p := o.nav.Path(charger, n.ID, serial); p != nil && p.Distance < best {
			best = p.Distance
			target = n.ID
		}
	}
	if target == "" {
		return &pairing.NotReadyError{Serial: serial, Reason: "no free docking position to vacate to"}
	}
	orderID := uuid.New().String()
	order, path, err := o.nav.Order(navigation.OrderRequest{
		Start:    charger,
		Target:   target,
		OrderID:  orderID,
		Vehicle:  serial,
		ActionID: uuid.New().String(),
	})
	if err != nil {
		return err
	}
	prevState := rec.Available
	o.fts.UpdateAvailability(serial, pairing.FtsUpdate{State: pairing.Busy, OrderID: pairing.Bind(orderID)})
	o.nav.BlockPath(serial, path.Nodes)
	if err := o.cmd.SendFtsOrder(order); err != nil {
		o.fts.UpdateAvailability(serial, pairing.FtsUpdate{State: prevState, OrderID: pairing.Bind("")})
		o.nav.ReleaseAllExcept(serial, charger)
		return fmt.Errorf("send vacate order to %s: %w", serial, err)
	}
	o.untracked[orderID] = untrackedOrder{kind: kindVacate, serial: serial, charger: charger}
	log.Printf("charging: %s vacating charger %s to %s", serial, charger, target)
	return nil
}

// ResetBusyChargersThatAreEmpty marks BUSY chargers ready again when no vehicle
// stands on them or is on its way there.
func (o *Orchestrator) ResetBusyChargersThatAreEmpty() {
	for _, c := range o.modules.OfType(pairing.ModuleCharger) {
		if c.Available != pairing.Busy {
			continue
		}
		if o.fts.FtsAt(c.SerialNumber) != nil {
			continue
		}
		if o.nav.IsBlocked(c.SerialNumber, "") {
			continue
		}
		log.Printf("charging: charger %s is empty, marking ready", c.SerialNumber)
		o.modules.UpdateAvailability(c.SerialNumber, pairing.Ready, pairing.Bind(""))
	}
}

// IsUntracked reports whether orderID is a charge or vacate order.
func (o *Orchestrator) IsUntracked(orderID string) bool {
	_, ok := o.untracked[orderID]
	return ok
}

// FinishUntracked handles a vehicle reporting a charge or vacate order done.
// A vacating vehicle is unbound; an arriving vehicle is told to start charging
// and stays bound until charging stops.
func (o *Orchestrator) FinishUntracked(orderID string) {
	u, ok := o.untracked[orderID]
	if !ok {
		return
	}
	delete(o.untracked, orderID)
	switch u.kind {
	case kindVacate:
		o.fts.ClearOrder(u.serial, orderID)
	case kindCharge:
		err := o.cmd.SendFtsInstantAction(u.serial, protocol.InstantAction{
			ActionType: protocol.InstantStartCharging,
			ActionID:   uuid.New().String(),
		})
		if err != nil {
			log.Printf("charging: start charging %s: %v", u.serial, err)
		}
	}
}

// StopCharging tells a vehicle to stop charging.
func (o *Orchestrator) StopCharging(serial string) error {
	if o.fts.Fts(serial) == nil {
		return fmt.Errorf("%w: %s", pairing.ErrUnknownDevice, serial)
	}
	o.removePending(serial)
	return o.cmd.SendFtsInstantAction(serial, protocol.InstantAction{
		ActionType: protocol.InstantStopCharging,
		ActionID:   uuid.New().String(),
	})
}

// Reset forgets queued vehicles and outstanding untracked orders.
func (o *Orchestrator) Reset() {
	o.pending = nil
	o.forced = make(map[string]bool)
	o.untracked = make(map[string]untrackedOrder)
}
