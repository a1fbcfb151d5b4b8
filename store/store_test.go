package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ffcentral/config"
	"ffcentral/orders"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(&config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRebind(t *testing.T) {
	got := Rebind(`SELECT * FROM t WHERE a=? AND b=?`)
	if want := `SELECT * FROM t WHERE a=$1 AND b=$2`; got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}
}

// --- Order tests ---

func TestSaveAndGetOrder(t *testing.T) {
	db := testDB(t)
	steps, err := orders.BuildSteps(orders.Storage, nil)
	if err != nil {
		t.Fatalf("BuildSteps: %v", err)
	}
	received := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	o := &orders.Order{
		OrderID:    "o-1",
		OrderType:  orders.Storage,
		Type:       "WHITE",
		State:      orders.Enqueued,
		ReceivedAt: received,
		Steps:      steps,
	}
	if err := db.SaveOrder(o); err != nil {
		t.Fatalf("save: %v", err)
	}

	started := received.Add(time.Minute)
	o.State = orders.InProgress
	o.StartedAt = &started
	o.StockLocation = "B1"
	o.OrderUpdateID = 2
	o.Steps[0].State = orders.InProgress
	o.Steps[0].VehicleSerial = "FTS1"
	if err := db.SaveOrder(o); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := db.GetOrder("o-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != orders.InProgress || got.StockLocation != "B1" || got.OrderUpdateID != 2 {
		t.Errorf("got state=%s location=%s update=%d", got.State, got.StockLocation, got.OrderUpdateID)
	}
	if !got.ReceivedAt.Equal(received) {
		t.Errorf("ReceivedAt = %v, want %v", got.ReceivedAt, received)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.StoppedAt != nil {
		t.Errorf("StoppedAt = %v, want nil", got.StoppedAt)
	}
	if len(got.Steps) != 4 || got.Steps[0].VehicleSerial != "FTS1" || got.Steps[1].DependentActionID != steps[0].ID {
		t.Errorf("steps not round-tripped: %+v", got.Steps[0])
	}

	if _, err := db.GetOrder("missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing order err = %v, want sql.ErrNoRows", err)
	}
}

func TestListOpenOrders(t *testing.T) {
	db := testDB(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, st := range []orders.State{orders.Finished, orders.InProgress, orders.Enqueued, orders.Cancelled} {
		o := &orders.Order{
			OrderID:    string(rune('a' + i)),
			OrderType:  orders.Production,
			Type:       "BLUE",
			State:      st,
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.SaveOrder(o); err != nil {
			t.Fatalf("save %s: %v", o.OrderID, err)
		}
	}
	open, err := db.ListOpenOrders()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 2 || open[0].OrderID != "b" || open[1].OrderID != "c" {
		t.Fatalf("open orders = %d", len(open))
	}
	all, _ := db.ListOrders()
	if len(all) != 4 {
		t.Errorf("all orders = %d, want 4", len(all))
	}
	if err := db.DeleteOrder("a"); err != nil {
		t.Errorf("delete: %v", err)
	}
	if err := db.DeleteOrder("a"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second delete err = %v", err)
	}
}

// --- Stock tests ---

func TestStockReservations(t *testing.T) {
	db := testDB(t)
	if err := db.SeedLocations([]string{"A1", "A2", "A3"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.SetStock("A2", "BLUE", "wp-1"); err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if err := db.SetStock("Z9", "BLUE", ""); err == nil {
		t.Error("expected error for unknown location")
	}

	loc, err := db.ReserveWorkpiece("o1", "BLUE")
	if err != nil || loc != "A2" {
		t.Fatalf("ReserveWorkpiece = %q, %v; want A2", loc, err)
	}
	if again, _ := db.ReserveWorkpiece("o1", "BLUE"); again != "A2" {
		t.Errorf("repeat reservation = %q, want A2", again)
	}
	if none, _ := db.ReserveWorkpiece("o2", "BLUE"); none != "" {
		t.Errorf("second order got %q, want none", none)
	}
	if none, _ := db.ReserveWorkpiece("o3", "RED"); none != "" {
		t.Errorf("RED reservation = %q, want none", none)
	}

	empty, err := db.ReserveEmptyBay("o4", "WHITE")
	if err != nil || empty != "A1" {
		t.Fatalf("ReserveEmptyBay = %q, %v; want A1", empty, err)
	}

	if err := db.CompleteRemoval("o1"); err != nil {
		t.Fatalf("complete removal: %v", err)
	}
	if err := db.CompleteStorage("o4", "WHITE", "wp-9"); err != nil {
		t.Fatalf("complete storage: %v", err)
	}
	stock, _ := db.ListStock()
	byLoc := map[string]*StockLocation{}
	for _, s := range stock {
		byLoc[s.Location] = s
	}
	if s := byLoc["A1"]; s.WorkpieceType != "WHITE" || s.WorkpieceID != "wp-9" || s.ReservedBy != "" {
		t.Errorf("A1 = %+v", s)
	}
	if s := byLoc["A2"]; s.WorkpieceType != "" || s.ReservedBy != "" {
		t.Errorf("A2 = %+v", s)
	}

	// reseeding keeps contents
	if err := db.SeedLocations([]string{"A1", "A4"}); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	stock, _ = db.ListStock()
	if len(stock) != 4 || stock[0].WorkpieceType != "WHITE" {
		t.Errorf("after reseed: %d locations, A1 type %q", len(stock), stock[0].WorkpieceType)
	}
}

func TestClearStock(t *testing.T) {
	db := testDB(t)
	db.SeedLocations([]string{"A1", "A2"})
	db.SetStock("A1", "RED", "")
	db.ReserveWorkpiece("o1", "RED")
	db.ReserveEmptyBay("o2", "RED")

	if err := db.ClearReservations(); err != nil {
		t.Fatalf("clear reservations: %v", err)
	}
	stock, _ := db.ListStock()
	for _, s := range stock {
		if s.ReservedBy != "" {
			t.Errorf("%s still reserved by %s", s.Location, s.ReservedBy)
		}
	}
	if stock[0].WorkpieceType != "RED" {
		t.Error("clearing reservations must keep contents")
	}

	db.ReserveWorkpiece("o3", "RED")
	if err := db.RemoveReservation("o3"); err != nil {
		t.Fatalf("remove reservation: %v", err)
	}
	if err := db.ClearStock(); err != nil {
		t.Fatalf("clear stock: %v", err)
	}
	stock, _ = db.ListStock()
	for _, s := range stock {
		if s.WorkpieceType != "" || s.ReservedBy != "" {
			t.Errorf("%s not empty: %+v", s.Location, s)
		}
	}
}

// --- Outbox tests ---

func TestOutbox(t *testing.T) {
	db := testDB(t)
	if err := db.EnqueueOutbox("ccu/order/active", []byte(`[]`), 2, true); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := db.EnqueueOutbox("ccu/pairing/state", []byte(`{}`), 1, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msgs, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("pending = %d, want 2", len(msgs))
	}
	if m := msgs[0]; m.Topic != "ccu/order/active" || m.QoS != 2 || !m.Retain || string(m.Payload) != "[]" {
		t.Errorf("first message = %+v", m)
	}
	if msgs[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	if err := db.IncrementOutboxRetries(msgs[1].ID); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := db.AckOutbox(msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	msgs, _ = db.ListPendingOutbox(10)
	if len(msgs) != 1 || msgs[0].Retries != 1 {
		t.Fatalf("after ack: %d pending", len(msgs))
	}

	if err := db.SupersedeOutbox("ccu/pairing/state"); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if msgs, _ = db.ListPendingOutbox(10); len(msgs) != 0 {
		t.Errorf("pending after supersede = %d", len(msgs))
	}
	n, err := db.PurgeSentOutbox(time.Now().Add(time.Hour))
	if err != nil || n != 2 {
		t.Errorf("purged %d, %v; want 2", n, err)
	}
}

// --- Admin user and audit tests ---

func TestAdminUsers(t *testing.T) {
	db := testDB(t)
	exists, err := db.AdminUserExists()
	if err != nil || exists {
		t.Fatalf("exists = %v, %v", exists, err)
	}
	if err := db.CreateAdminUser("admin", "hash-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.CreateAdminUser("admin", "hash-2"); err == nil {
		t.Error("duplicate username should fail")
	}
	if err := db.UpdateAdminPassword("admin", "hash-3"); err != nil {
		t.Fatalf("update: %v", err)
	}
	u, err := db.GetAdminUser("admin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.PasswordHash != "hash-3" || u.CreatedAt.IsZero() {
		t.Errorf("user = %+v", u)
	}
	if exists, _ := db.AdminUserExists(); !exists {
		t.Error("admin should exist")
	}
}

func TestAuditLog(t *testing.T) {
	db := testDB(t)
	db.AppendAudit("order", "o1", "received", "STORAGE WHITE", "mqtt")
	db.AppendAudit("order", "o1", "finished", "", "system")
	db.AppendAudit("factory", "", "reset", "withStorage=true", "admin")

	all, err := db.ListAuditLog(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Action != "reset" {
		t.Fatalf("audit entries = %d", len(all))
	}
	o1, _ := db.ListAuditFor("order", "o1")
	if len(o1) != 2 || o1[0].Action != "received" || o1[1].Actor != "system" {
		t.Errorf("order audit = %+v", o1)
	}
}
