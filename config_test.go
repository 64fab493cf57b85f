package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadConfigWritesDefaultsOnFirstRun verifies that a missing config
// file is created with defaults and loads cleanly afterwards.
func TestLoadConfigWritesDefaultsOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := loadConfig(path, filepath.Join(dir, "secrets.toml"))
	if cfg.StatusAddr != defaultStatusAddr {
		t.Fatalf("StatusAddr = %q, want default %q", cfg.StatusAddr, defaultStatusAddr)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file was not written: %v", err)
	}

	again := loadConfig(path, filepath.Join(dir, "secrets.toml"))
	if again.ScheduleGroup != cfg.ScheduleGroup {
		t.Fatalf("reload mismatch: %q vs %q", again.ScheduleGroup, cfg.ScheduleGroup)
	}
}

// TestLoadConfigOverlays verifies that file values override defaults,
// absent keys keep defaults, and secrets fill the sensitive fields.
func TestLoadConfigOverlays(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	secretsPath := filepath.Join(dir, "secrets.toml")

	configBody := `
status_listen = ":8080"
schedule_group = "3.2"
schedule_evening_hour = 21
probe_interval_seconds = 5
on_threshold = 2

[[probe_targets]]
name = "router"
kind = "tcp"
addr = "10.0.0.1:80"
`
	if err := os.WriteFile(configPath, []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(secretsPath, []byte("api_token = \"hunter2\"\n"), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}

	cfg := loadConfig(configPath, secretsPath)
	if cfg.StatusAddr != ":8080" {
		t.Fatalf("StatusAddr = %q", cfg.StatusAddr)
	}
	if cfg.ScheduleGroup != "3.2" || cfg.ScheduleEveningHour != 21 {
		t.Fatalf("schedule overlay not applied: %q %d", cfg.ScheduleGroup, cfg.ScheduleEveningHour)
	}
	if cfg.ProbeInterval != 5*time.Second || cfg.OnThreshold != 2 {
		t.Fatalf("probe overlay not applied: %s %d", cfg.ProbeInterval, cfg.OnThreshold)
	}
	// Absent keys keep their defaults.
	if cfg.OffThreshold != defaultOffThreshold {
		t.Fatalf("OffThreshold = %d, want default %d", cfg.OffThreshold, defaultOffThreshold)
	}
	if cfg.APIToken != "hunter2" {
		t.Fatalf("APIToken = %q", cfg.APIToken)
	}
	if len(cfg.ProbeTargets) != 1 || cfg.ProbeTargets[0].Addr != "10.0.0.1:80" {
		t.Fatalf("probe targets = %+v", cfg.ProbeTargets)
	}
}

// TestValidateConfig verifies the mode-specific required fields.
func TestValidateConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.APIToken = "tok"
	if err := validateConfig(cfg, false); err != nil {
		t.Fatalf("server config should validate: %v", err)
	}

	cfg.APIToken = ""
	if err := validateConfig(cfg, false); err == nil {
		t.Fatalf("server config without api_token should fail")
	}

	wd := defaultConfig()
	wd.APIToken = "tok"
	wd.ReportURL = "http://example.com/power-status"
	wd.ProbeTargets = []probeTarget{{Name: "r", Kind: probeKindTCP, Addr: "10.0.0.1:80"}}
	if err := validateConfig(wd, true); err != nil {
		t.Fatalf("watchdog config should validate: %v", err)
	}

	wd.ProbeTargets[0].Kind = "icmp"
	if err := validateConfig(wd, true); err == nil {
		t.Fatalf("unknown probe kind should fail validation")
	}

	wd.ProbeTargets[0].Kind = probeKindTCP
	wd.CombinePolicyName = "quorum"
	if err := validateConfig(wd, true); err == nil {
		t.Fatalf("unknown combine policy should fail validation")
	}

	bad := defaultConfig()
	bad.APIToken = "tok"
	bad.ScheduleEveningHour = 24
	if err := validateConfig(bad, false); err == nil {
		t.Fatalf("out-of-range evening hour should fail validation")
	}
}
