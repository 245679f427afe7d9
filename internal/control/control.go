// Package control is the outbound command surface: it builds backend
// command frames for the UI layer and hosts the progress delegate consumed
// by the external flashing collaborator.
package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/rmxlab/flashdash/internal/state"
	"github.com/rmxlab/flashdash/internal/ws"
	"github.com/rmxlab/flashdash/pkg/models"
)

// Controller forwards user-issued commands to the backend and records the
// outcome in the store's log buffer.
type Controller struct {
	client *ws.Client
	store  *state.Store
}

// New creates a controller sending through client and logging into store.
func New(client *ws.Client, store *state.Store) *Controller {
	return &Controller{client: client, store: store}
}

// Flash requests flashing the named firmware image onto the given port.
func (c *Controller) Flash(firmware, port string) error {
	return c.send(models.Command{
		Cmd:  models.CmdFlash,
		Data: map[string]any{"firmware": firmware, "port": port},
	})
}

// StartRelay requests starting the NFC relay.
func (c *Controller) StartRelay() error {
	return c.send(models.Command{Cmd: models.CmdRelayStart, Data: map[string]any{}})
}

// StopRelay requests stopping the NFC relay.
func (c *Controller) StopRelay() error {
	return c.send(models.Command{Cmd: models.CmdRelayStop, Data: map[string]any{}})
}

// ScanDevices requests a scan for attached devices.
func (c *Controller) ScanDevices() error {
	return c.send(models.Command{Cmd: models.CmdDeviceScan, Data: map[string]any{}})
}

func (c *Controller) send(cmd models.Command) error {
	if err := c.client.Send(cmd); err != nil {
		c.store.AddLog("warning", fmt.Sprintf("Command %s failed: %v", cmd.Cmd, err), "control")
		return err
	}
	c.store.AddLog("info", fmt.Sprintf("Command %s sent", cmd.Cmd), "control")
	return nil
}

// ProgressSink is the delegate interface reported into by the flashing
// collaborator.
type ProgressSink interface {
	OnStart(totalSize int64, label string)
	OnChunk(chunkSize int64, cumulative int64)
	OnEnd(success bool, message string)
}

// StoreSink feeds flash progress into the state store. It derives percent
// complete and a remaining-time estimate from the chunk stream.
type StoreSink struct {
	store *state.Store

	mu      sync.Mutex
	total   int64
	label   string
	started time.Time
	now     func() time.Time
}

// NewStoreSink creates a sink writing into store.
func NewStoreSink(store *state.Store) *StoreSink {
	return &StoreSink{store: store, now: time.Now}
}

// OnStart marks the beginning of a flash operation.
func (s *StoreSink) OnStart(totalSize int64, label string) {
	s.mu.Lock()
	s.total = totalSize
	s.label = label
	s.started = s.now()
	s.mu.Unlock()

	s.store.UpdateStatus(models.StatusFlashing)
	s.store.UpdateFlashProgress(models.FlashProgress{CurrentStep: label})
	s.store.AddLog("info", fmt.Sprintf("Flash started: %s (%d bytes)", label, totalSize), "flasher")
}

// OnChunk records one written chunk and updates the progress snapshot.
func (s *StoreSink) OnChunk(chunkSize, cumulative int64) {
	s.mu.Lock()
	total := s.total
	label := s.label
	elapsed := s.now().Sub(s.started).Seconds()
	s.mu.Unlock()

	progress := 0.0
	eta := 0.0
	if total > 0 && cumulative > 0 {
		progress = float64(cumulative) / float64(total) * 100.0
		if progress > 100 {
			progress = 100
		}
		eta = elapsed * float64(total-cumulative) / float64(cumulative)
	}

	s.store.UpdateFlashProgress(models.FlashProgress{
		CurrentStep: label,
		Progress:    progress,
		ETASeconds:  eta,
	})
}

// OnEnd records the outcome and returns the workflow to Idle or Error.
func (s *StoreSink) OnEnd(success bool, message string) {
	if success {
		s.store.UpdateStatus(models.StatusIdle)
		s.store.AddLog("info", fmt.Sprintf("Flash finished: %s", message), "flasher")
	} else {
		s.store.UpdateStatus(models.StatusError)
		s.store.AddLog("error", fmt.Sprintf("Flash failed: %s", message), "flasher")
	}
	s.store.UpdateFlashProgress(models.FlashProgress{})
}
