// Package monitor samples host CPU and memory usage and feeds the state
// store's metrics fields.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rmxlab/flashdash/internal/state"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Service periodically collects host metrics.
type Service struct {
	store           *state.Store
	updateInterval  time.Duration
	smoothingWindow int

	mu          sync.Mutex
	cpuReadings []float64
}

// New creates a monitoring service writing into store.
func New(store *state.Store, updateInterval time.Duration, smoothingWindow int) *Service {
	if updateInterval <= 0 {
		updateInterval = 2 * time.Second
	}
	if smoothingWindow <= 0 {
		smoothingWindow = 3
	}
	return &Service{
		store:           store,
		updateInterval:  updateInterval,
		smoothingWindow: smoothingWindow,
		cpuReadings:     make([]float64, 0, smoothingWindow),
	}
}

// Start begins sampling until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.updateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cpuPct, memPct := s.collect()
				s.store.UpdateMetrics(cpuPct, memPct)
			}
		}
	}()
}

func (s *Service) collect() (cpuPct, memPct float64) {
	// CPU with smoothing over the last N readings
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.mu.Lock()
		s.cpuReadings = append(s.cpuReadings, percents[0])
		if len(s.cpuReadings) > s.smoothingWindow {
			s.cpuReadings = s.cpuReadings[1:]
		}
		var sum float64
		for _, v := range s.cpuReadings {
			sum += v
		}
		cpuPct = sum / float64(len(s.cpuReadings))
		s.mu.Unlock()
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		memPct = memInfo.UsedPercent
	}

	return cpuPct, memPct
}
