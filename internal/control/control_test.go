package control

import (
	"testing"
	"time"

	"github.com/rmxlab/flashdash/internal/state"
	"github.com/rmxlab/flashdash/internal/ws"
	"github.com/rmxlab/flashdash/pkg/models"
)

func TestCommandsFailWhenOffline(t *testing.T) {
	store := state.New(state.Options{})
	client := ws.New("ws://localhost:1/ws", ws.Options{})
	ctrl := New(client, store)

	if err := ctrl.StartRelay(); err == nil {
		t.Fatal("expected failure while disconnected")
	}

	logs := store.Snapshot().Logs
	if len(logs) != 1 || logs[0].Level != "warning" {
		t.Errorf("expected a warning log entry, got %+v", logs)
	}
}

func TestStoreSinkLifecycle(t *testing.T) {
	store := state.New(state.Options{})
	sink := NewStoreSink(store)

	base := time.Now()
	clock := base
	sink.now = func() time.Time { return clock }

	sink.OnStart(1000, "Writing firmware")

	snap := store.Snapshot()
	if snap.Status != models.StatusFlashing {
		t.Errorf("expected flashing status, got %s", snap.Status)
	}
	if snap.Flash.CurrentStep != "Writing firmware" {
		t.Errorf("unexpected step: %q", snap.Flash.CurrentStep)
	}

	// Half done after 10 seconds: 50% progress, ~10s remaining
	clock = base.Add(10 * time.Second)
	sink.OnChunk(500, 500)

	fp := store.Snapshot().Flash
	if fp.Progress != 50 {
		t.Errorf("expected 50%% progress, got %v", fp.Progress)
	}
	if fp.ETASeconds < 9.9 || fp.ETASeconds > 10.1 {
		t.Errorf("expected ~10s remaining, got %v", fp.ETASeconds)
	}

	sink.OnEnd(true, "verified CRC")

	snap = store.Snapshot()
	if snap.Status != models.StatusIdle {
		t.Errorf("expected idle after success, got %s", snap.Status)
	}
	if snap.Flash != (models.FlashProgress{}) {
		t.Errorf("expected cleared progress, got %+v", snap.Flash)
	}
}

func TestStoreSinkFailure(t *testing.T) {
	store := state.New(state.Options{})
	sink := NewStoreSink(store)

	sink.OnStart(100, "Writing firmware")
	sink.OnEnd(false, "CRC mismatch")

	snap := store.Snapshot()
	if snap.Status != models.StatusError {
		t.Errorf("expected error status, got %s", snap.Status)
	}

	logs := snap.Logs
	last := logs[len(logs)-1]
	if last.Level != "error" {
		t.Errorf("expected error log entry, got %+v", last)
	}
}

func TestStoreSinkProgressClamped(t *testing.T) {
	store := state.New(state.Options{})
	sink := NewStoreSink(store)

	sink.OnStart(100, "Writing firmware")
	sink.OnChunk(150, 150) // collaborator overshoots

	if got := store.Snapshot().Flash.Progress; got != 100 {
		t.Errorf("expected progress clamped to 100, got %v", got)
	}
}
