package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := defaults().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero per-page time", func(c *Config) { c.Scheduler.PerPageTime = 0 }},
		{"color multiplier below one", func(c *Config) { c.Scheduler.ColorMultiplier = 0.5 }},
		{"negative retry budget", func(c *Config) { c.Scheduler.FaultRetryBudget = -1 }},
		{"zero scan interval", func(c *Config) { c.Alerts.ScanInterval = 0 }},
		{"paper ratio above one", func(c *Config) { c.Alerts.LowPaperRatio = 1.5 }},
		{"critical ink above low ink", func(c *Config) { c.Alerts.CriticalInkPct = 50 }},
		{"sla critical below grace", func(c *Config) {
			c.Alerts.SLAGrace = 5 * time.Minute
			c.Alerts.SLACritical = time.Minute
		}},
		{"zero webhook workers", func(c *Config) { c.Webhooks.WorkerCount = 0 }},
		{"telemetry without broker", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Broker = ""
		}},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("server:\n  port: 9090\nscheduler:\n  fault_retry_budget: 3\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Scheduler.FaultRetryBudget != 3 {
		t.Errorf("retry budget = %d, want 3", cfg.Scheduler.FaultRetryBudget)
	}
	if cfg.Scheduler.ColorMultiplier != 1.5 {
		t.Errorf("color multiplier = %v, want default 1.5", cfg.Scheduler.ColorMultiplier)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
}
