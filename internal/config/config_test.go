package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "covalent.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `db_path = "./data/covalent.db"
rpc_uri = "0.0.0.0:7070"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != 1 {
		t.Fatalf("expected default chain_id 1, got %d", cfg.ChainID)
	}
	if cfg.CyclesLimit != 10_000_000 {
		t.Fatalf("expected default cycles_limit, got %d", cfg.CyclesLimit)
	}
	if cfg.SettleIntervalMs != 3000 {
		t.Fatalf("expected default settle_interval_ms 3000, got %d", cfg.SettleIntervalMs)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log_level info, got %q", cfg.LogLevel)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `db_path = "./data/covalent.db"
rpc_uri = "0.0.0.0:7070"
chain_id = 99
settle_interval_ms = 1500
log_level = "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != 99 {
		t.Fatalf("expected overridden chain_id 99, got %d", cfg.ChainID)
	}
	if cfg.SettleIntervalMs != 1500 {
		t.Fatalf("expected overridden settle_interval_ms 1500, got %d", cfg.SettleIntervalMs)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected overridden log_level debug, got %q", cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
