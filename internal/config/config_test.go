package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load with defaults failed: %v", err)
	}

	if cfg.Backend.URL != "ws://localhost:8765/ws" {
		t.Errorf("unexpected backend url: %s", cfg.Backend.URL)
	}
	if cfg.Backend.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.Backend.MaxRetries)
	}
	if cfg.State.LatencyCapacity != 100 || cfg.State.LogCapacity != 500 {
		t.Errorf("unexpected capacities: %+v", cfg.State)
	}
	if cfg.Monitoring.UpdateInterval != 2*time.Second {
		t.Errorf("unexpected update interval: %v", cfg.Monitoring.UpdateInterval)
	}
	if cfg.History.Enabled {
		t.Error("history must be disabled by default")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Backend: Backend{URL: "ws://localhost:8765/ws", MaxRetries: 5},
			State:   State{LatencyCapacity: 100, LogCapacity: 500},
			Web:     Web{Host: "localhost", Port: 8090},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"wss accepted", func(c *Config) { c.Backend.URL = "wss://backend:443/ws" }, false},
		{"empty url", func(c *Config) { c.Backend.URL = "" }, true},
		{"http url", func(c *Config) { c.Backend.URL = "http://localhost/ws" }, true},
		{"zero retries", func(c *Config) { c.Backend.MaxRetries = 0 }, true},
		{"zero latency capacity", func(c *Config) { c.State.LatencyCapacity = 0 }, true},
		{"zero log capacity", func(c *Config) { c.State.LogCapacity = 0 }, true},
		{"bad port", func(c *Config) { c.Web.Port = 70000 }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
