package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("Listen = %q, want %q", cfg.Listen, DefaultListen)
	}
	if cfg.DBPath != DefaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, DefaultDBPath)
	}
	if cfg.Simulation.TickInterval != time.Second || cfg.Simulation.HistorySize != 120 {
		t.Errorf("Unexpected simulation defaults: %+v", cfg.Simulation)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bioreactor.yaml")
	content := `listen: 0.0.0.0:9000
log_level: debug
simulation:
  tick_interval: 250ms
  seed: 7
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	t.Setenv("BIOREACTOR_LOG_LEVEL", "trace")
	t.Setenv("BIOREACTOR_HISTORY_SIZE", "30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Listen = %q, want file value", cfg.Listen)
	}
	if cfg.LogLevel != "trace" {
		t.Errorf("LogLevel = %q, env should override file", cfg.LogLevel)
	}
	if cfg.Simulation.TickInterval != 250*time.Millisecond {
		t.Errorf("TickInterval = %v, want 250ms", cfg.Simulation.TickInterval)
	}
	if cfg.Simulation.Seed != 7 {
		t.Errorf("Seed = %d, want 7", cfg.Simulation.Seed)
	}
	if cfg.Simulation.HistorySize != 30 {
		t.Errorf("HistorySize = %d, want 30 from env", cfg.Simulation.HistorySize)
	}
	if cfg.DBPath != DefaultDBPath {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("listen: [unclosed"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Expected error for malformed YAML")
	}

	t.Setenv("BIOREACTOR_TICK_INTERVAL", "0s")
	if _, err := Load(""); err == nil {
		t.Error("Expected validation error for zero tick interval")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Listen = " "
	cfg.Simulation.HistorySize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error")
	}
}
