package bridge

import (
	"testing"

	"github.com/rmxlab/flashdash/internal/state"
	"github.com/rmxlab/flashdash/pkg/models"
)

func handle(s *state.Store, msgType string, data map[string]any) {
	New(s).Handle(models.WSMessage{Type: msgType, Data: data, Timestamp: 1})
}

func TestStatusEvent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want models.Status
	}{
		{"flashing", "flashing", models.StatusFlashing},
		{"relay", "relay_running", models.StatusRelayRunning},
		{"error", "error", models.StatusError},
		{"unknown falls back to idle", "bogus", models.StatusIdle},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := state.New(state.Options{})
			handle(s, "status", map[string]any{"status": tc.in})
			if got := s.Snapshot().Status; got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDeviceEvent(t *testing.T) {
	s := state.New(state.Options{})
	handle(s, "device", map[string]any{
		"port":        "/dev/ttyUSB0",
		"chip_type":   "ESP32",
		"mac_address": "AA:BB:CC:DD:EE:FF",
		"flash_size":  float64(4194304),
		"connected":   true,
	})

	dev := s.Snapshot().Device
	if dev.Port != "/dev/ttyUSB0" || dev.ChipType != "ESP32" {
		t.Errorf("unexpected device: %+v", dev)
	}
	if dev.FlashSize != 4194304 {
		t.Errorf("expected flash size 4194304, got %d", dev.FlashSize)
	}
	if !dev.Connected {
		t.Error("expected connected device")
	}
}

func TestRelayStatusEvent(t *testing.T) {
	s := state.New(state.Options{})
	handle(s, "relay_status", map[string]any{
		"running": true, "sent": float64(7), "received": float64(6), "errors": float64(1),
	})
	handle(s, "relay_status", map[string]any{
		"running": true, "sent": float64(3), "received": float64(3), "errors": float64(0),
	})

	snap := s.Snapshot()
	if !snap.RelayRunning || snap.RelaySent != 10 || snap.RelayReceived != 9 || snap.RelayErrors != 1 {
		t.Errorf("unexpected relay state: %+v", snap)
	}
}

func TestFlashProgressEvent(t *testing.T) {
	s := state.New(state.Options{})
	handle(s, "flash_progress", map[string]any{
		"current_step":     "Writing partition",
		"progress":         42.5,
		"total_steps":      float64(4),
		"current_step_num": float64(2),
		"eta_seconds":      12.0,
	})

	fp := s.Snapshot().Flash
	if fp.CurrentStep != "Writing partition" || fp.Progress != 42.5 {
		t.Errorf("unexpected progress: %+v", fp)
	}
	if fp.TotalSteps != 4 || fp.CurrentStepNum != 2 {
		t.Errorf("unexpected step counters: %+v", fp)
	}
}

func TestLatencyEvent(t *testing.T) {
	s := state.New(state.Options{})
	handle(s, "latency", map[string]any{"latency_ms": 18.3})

	lat := s.Snapshot().Latency
	if len(lat) != 1 || lat[0].LatencyMs != 18.3 {
		t.Errorf("unexpected latency buffer: %+v", lat)
	}
}

func TestLogEvent(t *testing.T) {
	s := state.New(state.Options{})
	handle(s, "log", map[string]any{
		"level": "error", "message": "relay timeout", "component": "relay",
	})
	handle(s, "log", map[string]any{"message": "no level given"})

	logs := s.Snapshot().Logs
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
	if logs[0].Level != "error" || logs[0].Component != "relay" {
		t.Errorf("unexpected entry: %+v", logs[0])
	}
	if logs[1].Level != "info" {
		t.Errorf("missing level must default to info, got %q", logs[1].Level)
	}
}

func TestMetricsEvent(t *testing.T) {
	s := state.New(state.Options{})
	handle(s, "metrics", map[string]any{"cpu": 55.5, "memory": 71.2})

	snap := s.Snapshot()
	if snap.CPUUsage != 55.5 || snap.MemoryUsage != 71.2 {
		t.Errorf("unexpected metrics: cpu=%v mem=%v", snap.CPUUsage, snap.MemoryUsage)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	s := state.New(state.Options{})

	notified := 0
	s.AddListener(state.TopicAll, "spy", func(state.Event) { notified++ })

	handle(s, "telemetry_v2", map[string]any{"x": 1})
	if notified != 0 {
		t.Errorf("unknown event must not mutate state, got %d notifications", notified)
	}
}
