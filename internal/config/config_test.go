package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/floorboard/internal/kvstore"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %s", cfg.HTTPAddress)
	}
	if cfg.StorageDriver != kvstore.DriverSQLite {
		t.Fatalf("unexpected storage driver %s", cfg.StorageDriver)
	}
	if cfg.StorageKey != "yakiniku-tables" {
		t.Fatalf("unexpected storage key %s", cfg.StorageKey)
	}
	if cfg.ServiceWindow != 90*time.Minute {
		t.Fatalf("expected 90 minute service window, got %s", cfg.ServiceWindow)
	}
	if cfg.TickInterval != time.Second {
		t.Fatalf("expected 1s tick, got %s", cfg.TickInterval)
	}
	if cfg.AuthEnabled() {
		t.Fatalf("expected auth to be disabled without a signing secret")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("FLOORBOARD_STORAGE_DRIVER", "badger")
	t.Setenv("FLOORBOARD_BADGER_DIR", "/var/lib/floorboard")
	t.Setenv("FLOORBOARD_FLOOR_SERVICE_WINDOW_MINUTES", "120")
	t.Setenv("FLOORBOARD_AUTH_SIGNING_SECRET", "kitchen-secret")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StorageDriver != kvstore.DriverBadger {
		t.Fatalf("expected badger driver, got %s", cfg.StorageDriver)
	}
	if cfg.BadgerDir != "/var/lib/floorboard" {
		t.Fatalf("unexpected badger dir %s", cfg.BadgerDir)
	}
	if cfg.ServiceWindow != 2*time.Hour {
		t.Fatalf("expected 120 minute window, got %s", cfg.ServiceWindow)
	}
	if !cfg.AuthEnabled() {
		t.Fatalf("expected auth to be enabled")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown driver", key: "FLOORBOARD_STORAGE_DRIVER", value: "redis"},
		{name: "zero window", key: "FLOORBOARD_FLOOR_SERVICE_WINDOW_MINUTES", value: "0"},
		{name: "zero tick", key: "FLOORBOARD_TICK_INTERVAL", value: "0s"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(NewViper()); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored: %v", err)
	}
}

func TestLoadDotEnvPopulatesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floor.env")
	if err := os.WriteFile(path, []byte("FLOORBOARD_STORAGE_KEY=test-floor\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("FLOORBOARD_STORAGE_KEY", "")
	os.Unsetenv("FLOORBOARD_STORAGE_KEY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StorageKey != "test-floor" {
		t.Fatalf("expected storage key from env file, got %s", cfg.StorageKey)
	}
}
