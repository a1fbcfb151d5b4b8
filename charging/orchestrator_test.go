package charging

import (
	"errors"
	"math"
	"testing"
	"time"

	"ffcentral/loadingbay"
	"ffcentral/navigation"
	"ffcentral/pairing"
	"ffcentral/protocol"
)

type mockCommander struct {
	orders  []*protocol.FtsOrder
	actions []protocol.InstantAction
	fail    error
}

func (m *mockCommander) SendFtsOrder(order *protocol.FtsOrder) error {
	if m.fail != nil {
		return m.fail
	}
	m.orders = append(m.orders, order)
	return nil
}

func (m *mockCommander) SendFtsInstantAction(serial string, actions ...protocol.InstantAction) error {
	if m.fail != nil {
		return m.fail
	}
	m.actions = append(m.actions, actions...)
	return nil
}

type fixture struct {
	orch    *Orchestrator
	fts     *pairing.FtsPairing
	modules *pairing.ModulePairing
	nav     *navigation.Navigator
	cmd     *mockCommander
}

// A single intersection A with the charger west of it and two docking modules.
func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	layout := &protocol.Layout{
		Nodes: []protocol.LayoutNode{
			{ID: "A", Type: protocol.NodeIntersection},
			{ID: "CHRG1", Type: protocol.NodeModule, ModuleType: pairing.ModuleCharger},
			{ID: "HBW1", Type: protocol.NodeModule, ModuleType: pairing.ModuleHBW},
			{ID: "DPS1", Type: protocol.NodeModule, ModuleType: pairing.ModuleDPS},
		},
		Edges: []protocol.LayoutEdge{
			{From: "A", To: "CHRG1", Length: 1, Direction: protocol.West, Bidirectional: true},
			{From: "A", To: "HBW1", Length: 1, Direction: protocol.North, Bidirectional: true},
			{From: "A", To: "DPS1", Length: 2, Direction: protocol.South, Bidirectional: true},
		},
	}
	g, err := navigation.NewFactoryGraph(layout)
	if err != nil {
		t.Fatalf("NewFactoryGraph: %v", err)
	}
	nav := navigation.NewNavigator(g)
	fts := pairing.NewFtsPairing(loadingbay.New(), nav, nil, nil)
	modules := pairing.NewModulePairing(nil, nil)
	modules.Declare("CHRG1", pairing.ModuleCharger)
	modules.Declare("HBW1", pairing.ModuleHBW)
	modules.Declare("DPS1", pairing.ModuleDPS)
	cmd := &mockCommander{}
	return &fixture{orch: New(cfg, fts, modules, nav, cmd), fts: fts, modules: modules, nav: nav, cmd: cmd}
}

func (f *fixture) readyAt(serial, node string) {
	f.fts.UpdateConnection(serial, true, time.Now(), "", "")
	f.fts.UpdateAvailability(serial, pairing.FtsUpdate{State: pairing.Ready, NodeID: node, ModuleSerial: node})
}

func stateWithBattery(pct float64, charging bool) *protocol.FtsState {
	return &protocol.FtsState{BatteryState: &protocol.BatteryState{Percentage: &pct, Charging: charging}}
}

func TestIsBatteryLow(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	prev := true
	for _, pct := range []float64{0, 10, 15, 15.1, 50, 100} {
		low := f.orch.IsBatteryLow(stateWithBattery(pct, false))
		if low && !prev {
			t.Errorf("not monotonic at %v", pct)
		}
		prev = low
		if want := pct <= 15; low != want {
			t.Errorf("IsBatteryLow(%v) = %v, want %v", pct, low, want)
		}
	}
	if f.orch.IsBatteryLow(stateWithBattery(math.NaN(), false)) {
		t.Error("NaN should not count as low")
	}
	if f.orch.IsBatteryLow(&protocol.FtsState{}) {
		t.Error("missing battery state should not count as low")
	}
	if f.orch.IsBatteryLow(&protocol.FtsState{BatteryState: &protocol.BatteryState{}}) {
		t.Error("missing percentage should not count as low")
	}
}

func TestTriggerChargeOrderDispatches(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	f.readyAt("FTS1", "HBW1")

	if !f.orch.IsBatteryLow(stateWithBattery(10, false)) {
		t.Fatal("10% should be low")
	}
	if err := f.orch.TriggerChargeOrderForFts("FTS1", false); err != nil {
		t.Fatalf("TriggerChargeOrderForFts: %v", err)
	}
	if len(f.cmd.orders) != 1 {
		t.Fatalf("orders sent = %d, want 1", len(f.cmd.orders))
	}
	order := f.cmd.orders[0]
	last := order.Nodes[len(order.Nodes)-1]
	if last.ID != "CHRG1" || last.Action.Type != protocol.NodeActionDock || !last.Action.Metadata.Charge {
		t.Errorf("final node = %+v, want charging DOCK at CHRG1", last)
	}
	rec := f.fts.Fts("FTS1")
	if rec.Available != pairing.Busy || rec.OrderID != order.OrderID {
		t.Errorf("vehicle = %s bound to %q, want BUSY bound to %q", rec.Available, rec.OrderID, order.OrderID)
	}
	if f.modules.Module("CHRG1").Available != pairing.Busy {
		t.Error("charger should be BUSY")
	}
	if len(f.orch.PendingSerials()) != 0 {
		t.Errorf("pending = %v, want empty", f.orch.PendingSerials())
	}
	if !f.orch.IsUntracked(order.OrderID) {
		t.Error("charge order should be tracked as untracked order")
	}
	if !f.nav.IsBlocked("CHRG1", "FTS2") {
		t.Error("route should be reserved")
	}
}

func TestTriggerChargeOrderVehicleNotReady(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	f.readyAt("FTS1", "HBW1")
	f.fts.UpdateAvailability("FTS1", pairing.FtsUpdate{State: pairing.Busy})

	if err := f.orch.TriggerChargeOrderForFts("FTS1", false); err != nil {
		t.Fatalf("TriggerChargeOrderForFts: %v", err)
	}
	if len(f.cmd.orders) != 0 {
		t.Errorf("orders sent = %d, want 0", len(f.cmd.orders))
	}
	if p := f.orch.PendingSerials(); len(p) != 1 || p[0] != "FTS1" {
		t.Errorf("pending = %v, want [FTS1]", p)
	}

	// becomes ready: the retrigger pass dispatches it
	f.fts.UpdateAvailability("FTS1", pairing.FtsUpdate{State: pairing.Ready})
	f.orch.RetriggerChargeOrders()
	if len(f.cmd.orders) != 1 {
		t.Errorf("orders sent after retrigger = %d, want 1", len(f.cmd.orders))
	}
	if len(f.orch.PendingSerials()) != 0 {
		t.Errorf("pending = %v, want empty", f.orch.PendingSerials())
	}
}

func TestTriggerChargeOrderDisabled(t *testing.T) {
	f := newFixture(t, Config{Enabled: false, ThresholdPercent: 15})
	f.readyAt("FTS1", "HBW1")
	f.orch.TriggerChargeOrderForFts("FTS1", false)
	if len(f.cmd.orders) != 0 || len(f.orch.PendingSerials()) != 0 {
		t.Error("disabled orchestrator should do nothing")
	}
	f.orch.TriggerChargeOrderForFts("FTS1", true)
	if len(f.cmd.orders) != 1 {
		t.Error("forced trigger should dispatch")
	}
}

func TestRetriggerHonoursDisabledCharging(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	f.readyAt("FTS1", "HBW1")
	f.readyAt("FTS2", "DPS1")
	f.fts.UpdateAvailability("FTS1", pairing.FtsUpdate{State: pairing.Busy})
	f.fts.UpdateAvailability("FTS2", pairing.FtsUpdate{State: pairing.Busy})
	f.orch.TriggerChargeOrderForFts("FTS1", false)
	f.orch.TriggerChargeOrderForFts("FTS2", true)
	if len(f.orch.PendingSerials()) != 2 {
		t.Fatalf("pending = %v, want both vehicles", f.orch.PendingSerials())
	}

	f.orch.cfg.Enabled = false
	f.fts.UpdateAvailability("FTS1", pairing.FtsUpdate{State: pairing.Ready})
	f.fts.UpdateAvailability("FTS2", pairing.FtsUpdate{State: pairing.Ready})
	f.orch.RetriggerChargeOrders()

	if len(f.cmd.orders) != 1 || f.cmd.orders[0].SerialNumber != "FTS2" {
		t.Fatalf("expected only the requested FTS2 to be sent, got %d orders", len(f.cmd.orders))
	}
	if p := f.orch.PendingSerials(); len(p) != 1 || p[0] != "FTS1" {
		t.Errorf("pending = %v, want [FTS1]", p)
	}
}

func TestTriggerChargeOrderNoCharger(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	f.readyAt("FTS1", "HBW1")
	f.modules.UpdateAvailability("CHRG1", pairing.Blocked, nil)
	f.orch.TriggerChargeOrderForFts("FTS1", false)
	if len(f.cmd.orders) != 0 {
		t.Error("no ready charger: nothing should be sent")
	}
	if len(f.orch.PendingSerials()) != 1 {
		t.Error("vehicle should wait for a charger")
	}
}

func TestTriggerChargeOrderSendFailureReverts(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	f.readyAt("FTS1", "HBW1")
	f.cmd.fail = errors.New("broker down")

	if err := f.orch.TriggerChargeOrderForFts("FTS1", false); err == nil {
		t.Fatal("expected send error")
	}
	rec := f.fts.Fts("FTS1")
	if rec.Available != pairing.Ready || rec.OrderID != "" {
		t.Errorf("vehicle = %s bound to %q, want READY unbound", rec.Available, rec.OrderID)
	}
	if f.modules.Module("CHRG1").Available != pairing.Ready {
		t.Error("charger should be READY again")
	}
	if f.nav.IsBlocked("CHRG1", "FTS2") || f.nav.IsBlocked("A", "FTS2") {
		t.Error("route reservation should be released")
	}
	if !f.nav.IsBlocked("HBW1", "FTS2") {
		t.Error("vehicle position should stay reserved")
	}
	if len(f.orch.PendingSerials()) != 1 {
		t.Error("vehicle should be queued for retry")
	}
}

func TestHandleChargingUpdateClearsBinding(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	f.readyAt("FTS1", "HBW1")
	f.orch.TriggerChargeOrderForFts("FTS1", false)
	orderID := f.cmd.orders[0].OrderID

	f.fts.UpdateAvailability("FTS1", pairing.FtsUpdate{State: pairing.Busy, NodeID: "CHRG1", ModuleSerial: "CHRG1"})
	f.orch.FinishUntracked(orderID)
	if len(f.cmd.actions) != 1 || f.cmd.actions[0].ActionType != protocol.InstantStartCharging {
		t.Fatalf("actions = %+v, want startCharging", f.cmd.actions)
	}

	f.orch.HandleChargingUpdate("FTS1", stateWithBattery(20, true))
	if f.fts.Fts("FTS1").OrderID != orderID {
		t.Error("binding should stay while charging")
	}
	f.orch.HandleChargingUpdate("FTS1", stateWithBattery(95, false))
	if f.fts.Fts("FTS1").OrderID != "" {
		t.Error("binding should be cleared after charging stops")
	}
	if f.modules.Module("CHRG1").Available != pairing.Ready {
		t.Error("charger should be READY after charging stops")
	}
}

func TestFreeBlockedChargersEvictsIdleVehicle(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	f.readyAt("FTS1", "CHRG1")
	f.readyAt("FTS2", "DPS1")

	// FTS2 cannot reach the charger because FTS1 stands on it
	f.orch.TriggerChargeOrderForFts("FTS2", false)
	if len(f.cmd.orders) != 0 {
		t.Fatalf("orders sent = %d, want 0", len(f.cmd.orders))
	}

	if err := f.orch.FreeBlockedChargers(false); err != nil {
		t.Fatalf("FreeBlockedChargers: %v", err)
	}
	if len(f.cmd.orders) != 1 {
		t.Fatalf("orders sent = %d, want 1 vacate order", len(f.cmd.orders))
	}
	vacate := f.cmd.orders[0]
	if vacate.SerialNumber != "FTS1" {
		t.Errorf("vacate order for %s, want FTS1", vacate.SerialNumber)
	}
	if last := vacate.Nodes[len(vacate.Nodes)-1].ID; last != "HBW1" {
		t.Errorf("vacate target = %s, want HBW1", last)
	}

	// FTS1 arrives at HBW1 and is unbound
	f.fts.UpdateAvailability("FTS1", pairing.FtsUpdate{State: pairing.Ready, NodeID: "A"})
	f.fts.UpdateAvailability("FTS1", pairing.FtsUpdate{State: pairing.Ready, NodeID: "HBW1", ModuleSerial: "HBW1"})
	f.orch.FinishUntracked(vacate.OrderID)
	if f.fts.Fts("FTS1").OrderID != "" {
		t.Error("vacating vehicle should be unbound on arrival")
	}
	f.nav.ReleaseAllExcept("FTS1", "HBW1")

	f.orch.RetriggerChargeOrders()
	if len(f.cmd.orders) != 2 || f.cmd.orders[1].SerialNumber != "FTS2" {
		t.Errorf("FTS2 should now be sent to the charger, orders = %d", len(f.cmd.orders))
	}
}

func TestFreeBlockedChargersIdleWithoutDemand(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	f.readyAt("FTS1", "CHRG1")
	f.orch.FreeBlockedChargers(false)
	if len(f.cmd.orders) != 0 {
		t.Error("no vehicle waiting: nothing should be evicted")
	}
	f.orch.FreeBlockedChargers(true)
	if len(f.cmd.orders) != 1 {
		t.Error("forced eviction should send a vacate order")
	}
}

func TestResetBusyChargersThatAreEmpty(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	f.modules.UpdateAvailability("CHRG1", pairing.Busy, pairing.Bind("x"))
	f.orch.ResetBusyChargersThatAreEmpty()
	if f.modules.Module("CHRG1").Available != pairing.Ready {
		t.Error("empty charger should be READY")
	}

	f.readyAt("FTS1", "CHRG1")
	f.modules.UpdateAvailability("CHRG1", pairing.Busy, nil)
	f.orch.ResetBusyChargersThatAreEmpty()
	if f.modules.Module("CHRG1").Available != pairing.Busy {
		t.Error("occupied charger should stay BUSY")
	}
}

func TestResetClearsPending(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, ThresholdPercent: 15})
	f.orch.TriggerChargeOrderForFts("FTS9", false)
	if len(f.orch.PendingSerials()) != 1 {
		t.Fatal("unknown vehicle should be queued")
	}
	f.orch.Reset()
	if len(f.orch.PendingSerials()) != 0 {
		t.Error("reset should clear the retry set")
	}
}
