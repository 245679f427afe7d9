package models

import "time"

// Status is the high-level mode of the flashing/relay workflow.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusFlashing     Status = "flashing"
	StatusRelayRunning Status = "relay_running"
	StatusError        Status = "error"
	StatusConnecting   Status = "connecting"
)

// DeviceInfo describes the last-known attached microcontroller.
type DeviceInfo struct {
	Port       string `json:"port"`
	ChipType   string `json:"chip_type"`
	MACAddress string `json:"mac_address"`
	FlashSize  int64  `json:"flash_size"`
	Connected  bool   `json:"connected"`
}

// FlashProgress is a snapshot of an in-flight flash operation.
type FlashProgress struct {
	CurrentStep    string  `json:"current_step"`
	Progress       float64 `json:"progress"`
	TotalSteps     int     `json:"total_steps"`
	CurrentStepNum int     `json:"current_step_num"`
	ETASeconds     float64 `json:"eta_seconds"`
}

// LatencyPoint is a single relay round-trip sample.
type LatencyPoint struct {
	Timestamp time.Time `json:"timestamp"`
	LatencyMs float64   `json:"latency_ms"`
}

// LogEntry is a structured dashboard log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Component string    `json:"component"`
}

// AppState is the root of all UI-visible state. The store hands out value
// copies, so a snapshot held by a caller never changes underneath it.
type AppState struct {
	Status        Status         `json:"status"`
	Device        DeviceInfo     `json:"device"`
	RelayRunning  bool           `json:"relay_running"`
	RelaySent     int64          `json:"relay_packets_sent"`
	RelayReceived int64          `json:"relay_packets_received"`
	RelayErrors   int64          `json:"relay_errors"`
	Flash         FlashProgress  `json:"flash_progress"`
	Latency       []LatencyPoint `json:"latency_data"`
	Logs          []LogEntry     `json:"logs"`
	DarkTheme     bool           `json:"dark_theme"`
	WSConnected   bool           `json:"websocket_connected"`
	CPUUsage      float64        `json:"cpu_usage"`
	MemoryUsage   float64        `json:"memory_usage"`
}

// WSMessage is one inbound backend event. Constructed per frame and handed
// to subscribers; never retained by the connection layer.
type WSMessage struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp float64        `json:"timestamp"`
}

// Command is one outbound backend command frame.
type Command struct {
	Cmd  string         `json:"cmd"`
	Data map[string]any `json:"data"`
}

// Recognized command names. The connection layer does not enforce these;
// they are the vocabulary shared with the backend.
const (
	CmdFlash      = "flash"
	CmdRelayStart = "relay_start"
	CmdRelayStop  = "relay_stop"
	CmdDeviceScan = "device_scan"
)
