package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Orders.MaxActive != 3 {
		t.Errorf("max_active = %d, want 3", cfg.Orders.MaxActive)
	}
	if cfg.Messaging.Backend != "mqtt" {
		t.Errorf("backend = %q, want %q", cfg.Messaging.Backend, "mqtt")
	}
	if len(cfg.Production["BLUE"]) != 3 {
		t.Errorf("BLUE plan = %v, want 3 modules", cfg.Production["BLUE"])
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ffcentral.yaml")
	data := []byte(`
charging:
  enabled: false
  threshold_percent: 25
orders:
  retrigger_interval: 2s
messaging:
  backend: kafka
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Charging.Enabled {
		t.Error("charging should be disabled")
	}
	if cfg.Charging.ThresholdPercent != 25 {
		t.Errorf("threshold = %v, want 25", cfg.Charging.ThresholdPercent)
	}
	if cfg.Orders.RetriggerInterval != 2*time.Second {
		t.Errorf("retrigger = %v, want 2s", cfg.Orders.RetriggerInterval)
	}
	if cfg.Orders.MaxActive != 3 {
		t.Errorf("max_active = %d, want default 3", cfg.Orders.MaxActive)
	}
	if cfg.Messaging.Backend != "kafka" {
		t.Errorf("backend = %q, want kafka", cfg.Messaging.Backend)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ffcentral.yaml")
	cfg := Defaults()
	cfg.Web.Port = 9000
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Web.Port != 9000 {
		t.Errorf("port = %d, want 9000", loaded.Web.Port)
	}
}
