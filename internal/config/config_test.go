package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 7272 {
		t.Errorf("expected default port 7272, got %d", cfg.Server.Port)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("expected default store memory, got %s", cfg.Store.Type)
	}
	if cfg.Agent.Mode != ModeLoop {
		t.Errorf("expected default mode %s, got %s", ModeLoop, cfg.Agent.Mode)
	}
	if cfg.Agent.HistoryWindow != 5 {
		t.Errorf("expected default history window 5, got %d", cfg.Agent.HistoryWindow)
	}
	if cfg.Gateway.Model != "gpt-4o-mini" {
		t.Errorf("expected default model gpt-4o-mini, got %s", cfg.Gateway.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9000
agent:
  mode: direct
store:
  type: bolt
  dataDir: /tmp/pharmabot-test
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Agent.Mode != ModeDirect {
		t.Errorf("expected mode direct, got %s", cfg.Agent.Mode)
	}
	if cfg.Store.Type != "bolt" {
		t.Errorf("expected store bolt, got %s", cfg.Store.Type)
	}
	// Untouched fields keep their defaults.
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host, got %s", cfg.Server.Host)
	}
	if cfg.Agent.HistoryWindow != 5 {
		t.Errorf("expected default history window, got %d", cfg.Agent.HistoryWindow)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.Mode = "react"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unknown mode")
	}

	cfg = DefaultConfig()
	cfg.Store.Type = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unknown store type")
	}

	cfg = DefaultConfig()
	cfg.Agent.HistoryWindow = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a non-positive history window")
	}
}

func TestServerAddress(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ServerAddress(); got != "127.0.0.1:7272" {
		t.Errorf("unexpected address: %q", got)
	}
}

func TestDBPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.DataDir = "/var/lib/pharmabot"
	if got := cfg.DBPath(); got != "/var/lib/pharmabot/pharmabot.db" {
		t.Errorf("unexpected db path: %q", got)
	}
}
