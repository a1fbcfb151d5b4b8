package engine

import (
	"time"

	"ffcentral/loadingbay"
	"ffcentral/orders"
	"ffcentral/pairing"
	"ffcentral/protocol"
)

var _ protocol.MessageHandler = (*Engine)(nil)

func at(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts
}

// ftsAvailability derives the availability of a vehicle from its state report.
func ftsAvailability(p *protocol.FtsState) pairing.AvailableState {
	switch {
	case len(p.Errors) > 0:
		return pairing.Blocked
	case p.Driving, p.Paused, p.RunningOrder(), p.Charging():
		return pairing.Busy
	}
	return pairing.Ready
}

// moduleAvailability derives the availability of a module from its state report.
func moduleAvailability(p *protocol.ModuleState) pairing.AvailableState {
	switch {
	case len(p.Errors) > 0:
		return pairing.Blocked
	case p.Running():
		return pairing.Busy
	}
	return pairing.Ready
}

func finalActionState(state string) bool {
	return state == protocol.ActionFinished || state == protocol.ActionFailed
}

func (e *Engine) HandleFtsState(serial string, p *protocol.FtsState) {
	wasReady := e.fts.IsReady(serial)
	e.fts.Touch(serial, at(p.Timestamp))

	state := ftsAvailability(p)
	e.fts.UpdateAvailability(serial, pairing.FtsUpdate{
		State:        state,
		NodeID:       p.LastNodeID,
		ModuleSerial: p.LastModuleSerialNumber,
		LoadPosition: loadingbay.Bay(p.LastLoadPosition),
	})
	e.charging.HandleChargingUpdate(serial, p)

	rec := e.fts.Fts(serial)
	if state == pairing.Ready && rec.OrderID == "" {
		if pos := rec.Position(); pos != "" {
			e.nav.ReleaseAllExcept(serial, pos)
		}
	}

	for _, a := range p.ActionStates {
		if a.Type != protocol.NodeActionDock || !finalActionState(a.State) {
			continue
		}
		if e.charging.IsUntracked(p.OrderID) {
			if a.State == protocol.ActionFinished {
				e.charging.FinishUntracked(p.OrderID)
			} else {
				e.logFn("engine: charge order %s of %s failed", p.OrderID, serial)
				e.fts.ClearOrder(serial, p.OrderID)
			}
			continue
		}
		if err := e.orders.HandleActionUpdate(p.OrderID, a.ID, a.State, a.Result); err != nil {
			e.logFn("engine: action %s of %s: %v", a.ID, serial, err)
		}
	}

	if state != pairing.Ready {
		return
	}
	if rec.OrderID == "" && e.charging.IsBatteryLow(p) && !p.Charging() {
		if err := e.charging.TriggerChargeOrderForFts(serial, false); err != nil {
			e.logFn("engine: charge %s: %v", serial, err)
		}
	}
	if !wasReady {
		e.orders.RetriggerFTSSteps()
		e.charging.RetriggerChargeOrders()
	}
}

func (e *Engine) HandleFtsConnection(serial string, p *protocol.Connection) {
	online := e.fts.UpdateConnection(serial, p.Online(), at(p.Timestamp), p.IP, p.Version)
	e.PairingChanged()
	if online {
		e.orders.RetriggerFTSSteps()
	}
}

func (e *Engine) HandleModuleState(serial string, p *protocol.ModuleState) {
	wasReady := e.modules.IsReady(serial)
	e.modules.Touch(serial, at(p.Timestamp))

	state := moduleAvailability(p)
	e.modules.UpdateAvailability(serial, state, nil)

	if a := p.ActionState; a != nil && p.OrderID != "" && finalActionState(a.State) {
		if err := e.orders.HandleActionUpdate(p.OrderID, a.ID, a.State, a.Result); err != nil {
			e.logFn("engine: action %s of %s: %v", a.ID, serial, err)
		}
	}

	if state == pairing.Ready && !wasReady {
		e.orders.RetriggerModuleSteps()
	}
}

func (e *Engine) HandleModuleConnection(serial string, p *protocol.Connection) {
	online := e.modules.UpdateConnection(serial, p.Online(), at(p.Timestamp), p.IP, p.Version)
	e.PairingChanged()
	if online {
		e.orders.RetriggerModuleSteps()
	}
}

func (e *Engine) HandleOrderRequest(p *protocol.OrderRequest) {
	if _, err := e.requestOrder(orders.OrderType(p.OrderType), p.Type, p.WorkpieceID); err != nil {
		e.logFn("engine: order request %s %s: %v", p.OrderType, p.Type, err)
	}
}

func (e *Engine) HandleOrderCancel(p *protocol.OrderCancel) {
	e.orders.CancelOrders(p.OrderIDs)
}

func (e *Engine) HandleReset(p *protocol.ResetRequest) {
	e.factoryReset(p.WithStorage, "mqtt")
}

func (e *Engine) HandleCharge(p *protocol.ChargeRequest) {
	if err := e.charge(p.SerialNumber, p.Charge); err != nil {
		e.logFn("engine: charge request for %s: %v", p.SerialNumber, err)
	}
}

func (e *Engine) HandleLayout(p *protocol.Layout) {
	if err := e.applyLayout(p); err != nil {
		e.logFn("engine: layout update: %v", err)
	}
}

func (e *Engine) HandlePairFts(p *protocol.PairFts) {
	e.pairFts(p.SerialNumber, p.ModuleSerialNumber, p.NodeID)
}
