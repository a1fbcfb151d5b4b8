package engine

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ffcentral/config"
	"ffcentral/orders"
	"ffcentral/pairing"
	"ffcentral/protocol"
	"ffcentral/store"
)

type sent struct {
	topic   string
	payload []byte
	retain  bool
}

type mockBus struct {
	mu        sync.Mutex
	sent      []sent
	fail      error
	connected bool
}

func (m *mockBus) Publish(topic string, payload []byte, qos byte, retain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sent{topic: topic, payload: payload, retain: retain})
	return nil
}

func (m *mockBus) PublishJSON(topic string, v any, qos byte, retain bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.Publish(topic, data, qos, retain)
}

func (m *mockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// last decodes the most recent payload published on topic into v.
func (m *mockBus) last(t *testing.T, topic string, v any) bool {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].topic != topic {
			continue
		}
		if err := json.Unmarshal(m.sent[i].payload, v); err != nil {
			t.Fatalf("decode %s: %v", topic, err)
		}
		return true
	}
	return false
}

func (m *mockBus) count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.topic == topic {
			n++
		}
	}
	return n
}

func testLayout() *protocol.Layout {
	return &protocol.Layout{
		Nodes: []protocol.LayoutNode{
			{ID: "A", Type: protocol.NodeIntersection},
			{ID: "HBW1", Type: protocol.NodeModule, ModuleType: pairing.ModuleHBW},
			{ID: "DRILL1", Type: protocol.NodeModule, ModuleType: pairing.ModuleDrill},
			{ID: "AIQS1", Type: protocol.NodeModule, ModuleType: pairing.ModuleAIQS},
			{ID: "DPS1", Type: protocol.NodeModule, ModuleType: pairing.ModuleDPS},
		},
		Edges: []protocol.LayoutEdge{
			{From: "A", To: "HBW1", Length: 1, Direction: protocol.North, Bidirectional: true},
			{From: "A", To: "DRILL1", Length: 1, Direction: protocol.East, Bidirectional: true},
			{From: "A", To: "AIQS1", Length: 1, Direction: protocol.West, Bidirectional: true},
			{From: "A", To: "DPS1", Length: 2, Direction: protocol.South, Bidirectional: true},
		},
	}
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testEngine builds an engine without starting its goroutines. Handlers are
// called directly, which is what the loop would do.
func testEngine(t *testing.T) (*Engine, *mockBus) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Layout.Path = filepath.Join(t.TempDir(), "layout.yaml")
	cfg.Production = map[string][]string{
		"BLUE":  {pairing.ModuleDrill, pairing.ModuleAIQS},
		"WHITE": {pairing.ModuleAIQS},
	}
	cfg.Stock.Locations = []string{"A1", "A2"}
	bus := &mockBus{connected: true}
	db := testDB(t)
	e, err := New(Config{
		AppConfig: cfg,
		DB:        db,
		MsgClient: bus,
		Layout:    testLayout(),
		LogFunc:   t.Logf,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.wireEventHandlers()
	if err := db.SeedLocations(cfg.Stock.Locations); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return e, bus
}

func online() *protocol.Connection {
	return &protocol.Connection{ConnectionState: protocol.ConnectionOnline, Timestamp: time.Now()}
}

func (e *Engine) vehicleAt(serial, node string) {
	e.HandleFtsConnection(serial, online())
	e.HandleFtsState(serial, &protocol.FtsState{LastNodeID: node, LastModuleSerialNumber: node})
}

func (e *Engine) moduleReady(serial string) {
	e.HandleModuleConnection(serial, online())
	e.HandleModuleState(serial, &protocol.ModuleState{})
}

func TestFtsAvailability(t *testing.T) {
	pct := 50.0
	tests := []struct {
		name  string
		state protocol.FtsState
		want  pairing.AvailableState
	}{
		{"idle", protocol.FtsState{}, pairing.Ready},
		{"error", protocol.FtsState{Errors: []protocol.DeviceError{{ErrorType: "x"}}, Driving: true}, pairing.Blocked},
		{"driving", protocol.FtsState{Driving: true}, pairing.Busy},
		{"paused", protocol.FtsState{Paused: true}, pairing.Busy},
		{"running order", protocol.FtsState{OrderID: "o", ActionStates: []protocol.ActionState{{State: protocol.ActionRunning}}}, pairing.Busy},
		{"finished order", protocol.FtsState{OrderID: "o", ActionStates: []protocol.ActionState{{State: protocol.ActionFinished}}}, pairing.Ready},
		{"charging", protocol.FtsState{BatteryState: &protocol.BatteryState{Charging: true, Percentage: &pct}}, pairing.Busy},
	}
	for _, tt := range tests {
		if got := ftsAvailability(&tt.state); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestModuleAvailability(t *testing.T) {
	if got := moduleAvailability(&protocol.ModuleState{}); got != pairing.Ready {
		t.Errorf("idle: %s", got)
	}
	running := &protocol.ModuleState{ActionState: &protocol.ActionState{State: protocol.ActionRunning}}
	if got := moduleAvailability(running); got != pairing.Busy {
		t.Errorf("running: %s", got)
	}
	failed := &protocol.ModuleState{Errors: []protocol.DeviceError{{ErrorType: "jam"}}}
	if got := moduleAvailability(failed); got != pairing.Blocked {
		t.Errorf("error: %s", got)
	}
}

func TestStorageOrderOverMessages(t *testing.T) {
	e, bus := testEngine(t)
	for _, m := range []string{"DPS1", "HBW1"} {
		e.moduleReady(m)
	}
	e.vehicleAt("FTS1", "DPS1")

	e.HandleOrderRequest(&protocol.OrderRequest{OrderType: string(orders.Storage), Type: "BLUE"})

	var resp protocol.OrderResponse
	if !bus.last(t, protocol.TopicOrderResponse, &resp) || resp.OrderID == "" {
		t.Fatalf("no order response published")
	}
	orderID := resp.OrderID

	// vehicle already waits at DPS1, so the DROP is sent straight away
	var drop protocol.ModuleOrder
	if !bus.last(t, protocol.ModuleOrderTopic("DPS1"), &drop) {
		t.Fatal("no module order for DPS1")
	}
	if drop.Action.Command != protocol.CommandDrop || drop.OrderID != orderID || drop.Action.Metadata.FtsSerial != "FTS1" {
		t.Fatalf("DPS1 order = %+v", drop)
	}

	e.HandleModuleState("DPS1", &protocol.ModuleState{
		OrderID:     orderID,
		ActionState: &protocol.ActionState{ID: drop.Action.ID, Command: protocol.CommandDrop, State: protocol.ActionFinished},
	})

	var nav protocol.FtsOrder
	if !bus.last(t, protocol.FtsOrderTopic("FTS1"), &nav) {
		t.Fatal("no navigation order for FTS1")
	}
	final := nav.Nodes[len(nav.Nodes)-1]
	if final.ID != "HBW1" || final.Action == nil || final.Action.Type != protocol.NodeActionDock {
		t.Fatalf("final node = %+v", final)
	}

	e.HandleFtsState("FTS1", &protocol.FtsState{
		OrderID:                orderID,
		LastNodeID:             "HBW1",
		LastModuleSerialNumber: "HBW1",
		ActionStates: []protocol.ActionState{
			{ID: final.Action.ID, Type: protocol.NodeActionDock, State: protocol.ActionFinished},
		},
	})

	var pick protocol.ModuleOrder
	if !bus.last(t, protocol.ModuleOrderTopic("HBW1"), &pick) || pick.Action.Command != protocol.CommandPick {
		t.Fatalf("HBW1 order = %+v", pick)
	}

	e.HandleModuleState("HBW1", &protocol.ModuleState{
		OrderID:     orderID,
		ActionState: &protocol.ActionState{ID: pick.Action.ID, Command: protocol.CommandPick, State: protocol.ActionFinished},
	})

	o := e.orders.Order(orderID)
	if o == nil || o.State != orders.Finished {
		t.Fatalf("order = %+v", o)
	}
	stock, err := e.db.ListStock()
	if err != nil {
		t.Fatalf("ListStock: %v", err)
	}
	stored := 0
	for _, l := range stock {
		if l.WorkpieceType == "BLUE" {
			stored++
		}
		if l.ReservedBy != "" {
			t.Errorf("location %s still reserved by %s", l.Location, l.ReservedBy)
		}
	}
	if stored != 1 {
		t.Errorf("stored BLUE workpieces = %d, want 1", stored)
	}
	if rec := e.fts.Fts("FTS1"); rec.OrderID != "" {
		t.Errorf("vehicle still bound to %s", rec.OrderID)
	}

	var completed []*orders.Order
	if !bus.last(t, protocol.TopicOrderCompleted, &completed) || len(completed) != 1 {
		t.Errorf("completed snapshot = %+v", completed)
	}
	audit, err := e.db.ListAuditFor("order", orderID)
	if err != nil {
		t.Fatalf("ListAuditFor: %v", err)
	}
	if len(audit) < 3 {
		t.Errorf("audit entries = %d, want received, started and completed", len(audit))
	}
}

func TestOrderRequestRejectsUnknownType(t *testing.T) {
	e, bus := testEngine(t)
	if _, err := e.requestOrder("REPAIR", "BLUE", ""); err == nil {
		t.Fatal("expected error for unknown order type")
	}
	if _, err := e.requestOrder(orders.Production, "", ""); err == nil {
		t.Fatal("expected error for missing workpiece type")
	}
	if n := bus.count(protocol.TopicOrderResponse); n != 0 {
		t.Errorf("responses published = %d", n)
	}
}

func TestFactoryReset(t *testing.T) {
	e, bus := testEngine(t)
	e.moduleReady("HBW1")
	e.vehicleAt("FTS1", "DPS1")
	if err := e.db.SetStock("A1", "RED", "wp-1"); err != nil {
		t.Fatalf("SetStock: %v", err)
	}

	// no WHITE in stock, so the order waits in the queue
	o, err := e.requestOrder(orders.Production, "WHITE", "")
	if err != nil {
		t.Fatalf("requestOrder: %v", err)
	}
	if q, _, _ := e.orders.Counts(); q != 1 {
		t.Fatalf("queued = %d", q)
	}

	e.factoryReset(true, "test")

	if got := e.orders.Order(o.OrderID); got.State != orders.Cancelled {
		t.Errorf("order state = %s", got.State)
	}
	if bus.count(protocol.FtsInstantActionTopic("FTS1")) == 0 {
		t.Error("no reset sent to FTS1")
	}
	if bus.count(protocol.ModuleInstantActionTopic("HBW1")) == 0 {
		t.Error("no reset sent to HBW1")
	}
	if bus.count(protocol.ModuleInstantActionTopic("DRILL1")) != 0 {
		t.Error("reset sent to offline module")
	}
	stock, _ := e.db.ListStock()
	for _, l := range stock {
		if l.WorkpieceType != "" {
			t.Errorf("location %s still holds %s", l.Location, l.WorkpieceType)
		}
	}
	blocks := e.nav.Blocks()
	if len(blocks) != 1 || blocks[0].VehicleID != "FTS1" || blocks[0].NodeID != "DPS1" {
		t.Errorf("blocks after reset = %+v", blocks)
	}
	entries, _ := e.db.ListAuditFor("factory", "factory")
	if len(entries) != 1 || entries[0].Actor != "test" {
		t.Errorf("reset audit = %+v", entries)
	}
}

func TestApplyLayoutDeclaresModulesAndSaves(t *testing.T) {
	e, _ := testEngine(t)
	layout := testLayout()
	layout.Nodes = append(layout.Nodes, protocol.LayoutNode{ID: "CHRG1", Type: protocol.NodeModule, ModuleType: pairing.ModuleCharger})
	layout.Edges = append(layout.Edges, protocol.LayoutEdge{From: "A", To: "CHRG1", Length: 3, Direction: protocol.North})

	if err := e.applyLayout(layout); err != nil {
		t.Fatalf("applyLayout: %v", err)
	}
	if !e.modules.IsReady("CHRG1") {
		t.Error("charger not ready after layout update")
	}
	if _, err := os.Stat(e.cfg.Layout.Path); err != nil {
		t.Errorf("layout not saved: %v", err)
	}

	bad := &protocol.Layout{Edges: []protocol.LayoutEdge{{From: "X", To: "Y"}}}
	if err := e.applyLayout(bad); err == nil {
		t.Error("expected error for invalid layout")
	}
	if !e.nav.Graph().HasNode("CHRG1") {
		t.Error("invalid layout replaced the graph")
	}
}

func TestChargeUnknownVehicle(t *testing.T) {
	e, _ := testEngine(t)
	if err := e.charge("nope", true); !errors.Is(err, pairing.ErrUnknownDevice) {
		t.Errorf("err = %v, want ErrUnknownDevice", err)
	}
}

func TestPairFtsReservesNode(t *testing.T) {
	e, _ := testEngine(t)
	e.HandleFtsConnection("FTS2", online())
	e.HandlePairFts(&protocol.PairFts{SerialNumber: "FTS2", ModuleSerialNumber: "AIQS1"})

	rec := e.fts.Fts("FTS2")
	if rec.Position() != "AIQS1" {
		t.Fatalf("position = %q", rec.Position())
	}
	if !e.nav.IsBlocked("AIQS1", "other") {
		t.Error("AIQS1 not reserved for FTS2")
	}
}

func TestFlushPairingPublishesAndMirrors(t *testing.T) {
	e, bus := testEngine(t)
	e.vehicleAt("FTS1", "HBW1")
	e.flushPairing()

	var snap pairing.Snapshot
	if !bus.last(t, protocol.TopicPairingState, &snap) {
		t.Fatal("no pairing snapshot published")
	}
	if len(snap.Fts) != 1 || snap.Fts[0].SerialNumber != "FTS1" {
		t.Errorf("snapshot fts = %+v", snap.Fts)
	}
	if got := e.nodeState.Fts(); len(got) != 1 {
		t.Errorf("mirrored fts = %+v", got)
	}
	if e.pairingDirty {
		t.Error("pairing still dirty after flush")
	}
}

func TestSnapshotsQueuedWhenBusDown(t *testing.T) {
	e, bus := testEngine(t)
	bus.fail = errors.New("broker down")
	e.orders.Publish()

	pending, err := e.db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("ListPendingOutbox: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want active and completed snapshots", len(pending))
	}
	for _, m := range pending {
		if !m.Retain {
			t.Errorf("%s not retained", m.Topic)
		}
	}
}

func TestStartDoStop(t *testing.T) {
	cfg := config.Defaults()
	cfg.Layout.Path = ""
	cfg.Stock.Locations = []string{"A1"}
	bus := &mockBus{connected: true}
	e, err := New(Config{AppConfig: cfg, DB: testDB(t), MsgClient: bus, Layout: testLayout(), LogFunc: t.Logf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	o, err := e.RequestOrder(orders.Storage, "WHITE", "")
	if err != nil {
		t.Fatalf("RequestOrder: %v", err)
	}
	active, _ := e.OrderLists()
	if len(active) != 1 || active[0].OrderID != o.OrderID {
		t.Errorf("active = %+v", active)
	}
	if h := e.Health(); h.Nodes != 5 || h.Active+h.Queued != 1 {
		t.Errorf("health = %+v", h)
	}

	e.Stop()
	if _, err := e.RequestOrder(orders.Storage, "WHITE", ""); !errors.Is(err, ErrStopped) {
		t.Errorf("after stop err = %v, want ErrStopped", err)
	}
}

func TestEventBusDispatchesByType(t *testing.T) {
	bus := NewEventBus()
	var got []EventType
	bus.SubscribeTypes(func(evt Event) { got = append(got, evt.Type) }, EventOrderStarted, EventOrderCompleted)

	bus.Emit(Event{Type: EventOrderReceived})
	bus.Emit(Event{Type: EventOrderStarted})
	bus.Emit(Event{Type: EventOrderCompleted})

	if len(got) != 2 || got[0] != EventOrderStarted || got[1] != EventOrderCompleted {
		t.Errorf("got %v, want started then completed", got)
	}
}
