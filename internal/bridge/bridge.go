// Package bridge translates inbound backend events into state store
// mutations. It is the only consumer wiring the connection layer to the
// store; UI code observes the store, never the connection.
package bridge

import (
	"github.com/rmxlab/flashdash/internal/state"
	"github.com/rmxlab/flashdash/internal/ws"
	"github.com/rmxlab/flashdash/pkg/models"
	"github.com/rs/zerolog/log"
)

// SubscriberName identifies the bridge on the connection's subscriber list.
const SubscriberName = "bridge"

// Bridge routes backend events to the store.
type Bridge struct {
	store *state.Store
}

// New creates a bridge feeding store.
func New(store *state.Store) *Bridge {
	return &Bridge{store: store}
}

// Attach subscribes the bridge to the client's inbound events.
func (b *Bridge) Attach(c *ws.Client) {
	c.Subscribe(SubscriberName, b.Handle)
}

// Handle processes one inbound backend event. Unknown event types are
// logged at debug level and ignored.
func (b *Bridge) Handle(msg models.WSMessage) {
	switch msg.Type {
	case "status":
		b.store.UpdateStatus(parseStatus(str(msg.Data, "status")))

	case "device":
		b.store.UpdateDevice(models.DeviceInfo{
			Port:       str(msg.Data, "port"),
			ChipType:   str(msg.Data, "chip_type"),
			MACAddress: str(msg.Data, "mac_address"),
			FlashSize:  int64(num(msg.Data, "flash_size")),
			Connected:  boolean(msg.Data, "connected"),
		})

	case "relay_status":
		b.store.UpdateRelayStatus(
			boolean(msg.Data, "running"),
			int64(num(msg.Data, "sent")),
			int64(num(msg.Data, "received")),
			int64(num(msg.Data, "errors")),
		)

	case "flash_progress":
		b.store.UpdateFlashProgress(models.FlashProgress{
			CurrentStep:    str(msg.Data, "current_step"),
			Progress:       num(msg.Data, "progress"),
			TotalSteps:     int(num(msg.Data, "total_steps")),
			CurrentStepNum: int(num(msg.Data, "current_step_num")),
			ETASeconds:     num(msg.Data, "eta_seconds"),
		})

	case "latency":
		b.store.AddLatencyPoint(num(msg.Data, "latency_ms"))

	case "log":
		level := str(msg.Data, "level")
		if level == "" {
			level = "info"
		}
		b.store.AddLog(level, str(msg.Data, "message"), str(msg.Data, "component"))

	case "metrics":
		b.store.UpdateMetrics(num(msg.Data, "cpu"), num(msg.Data, "memory"))

	default:
		log.Debug().Str("type", msg.Type).Msg("Unhandled backend event")
	}
}

func parseStatus(s string) models.Status {
	switch models.Status(s) {
	case models.StatusIdle, models.StatusFlashing, models.StatusRelayRunning,
		models.StatusError, models.StatusConnecting:
		return models.Status(s)
	default:
		return models.StatusIdle
	}
}

// JSON numbers decode as float64; these helpers tolerate missing or
// mistyped fields by returning zero values.

func str(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func num(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func boolean(data map[string]any, key string) bool {
	v, _ := data[key].(bool)
	return v
}
