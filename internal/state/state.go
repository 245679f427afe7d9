// Package state owns the dashboard's single source of truth and fans out
// change notifications to topic-keyed listeners.
package state

import (
	"sync"
	"time"

	"github.com/rmxlab/flashdash/pkg/models"
	"github.com/rs/zerolog/log"
)

// Topic names a category of state change used to filter notification.
type Topic string

const (
	TopicStatus    Topic = "status"
	TopicDevice    Topic = "device"
	TopicRelay     Topic = "relay"
	TopicFlash     Topic = "flash"
	TopicLatency   Topic = "latency"
	TopicLogs      Topic = "logs"
	TopicTheme     Topic = "theme"
	TopicWebsocket Topic = "websocket"
	TopicMetrics   Topic = "metrics"

	// TopicAll receives every notification regardless of the mutating
	// operation's specific topic.
	TopicAll Topic = "all"
)

// Event is delivered to listeners on every mutation. State is a value copy
// taken at notification time.
type Event struct {
	Topic Topic
	State models.AppState
}

// Listener receives state change events. A listener that panics is logged
// and skipped; it never aborts delivery to the remaining listeners.
type Listener func(Event)

type registration struct {
	name string
	fn   Listener
}

const (
	DefaultLatencyCapacity = 100
	DefaultLogCapacity     = 500
)

// Options configures buffer capacities. Zero values use the defaults.
type Options struct {
	LatencyCapacity int
	LogCapacity     int
}

// Store holds the application state and its listeners. All mutation
// operations are mutually exclusive; dispatch happens under the same lock,
// so listeners observe mutations in order.
type Store struct {
	mu         sync.Mutex
	app        models.AppState
	latencyCap int
	logCap     int
	listeners  map[Topic][]registration
}

// New creates a store in the Idle state.
func New(opts Options) *Store {
	if opts.LatencyCapacity <= 0 {
		opts.LatencyCapacity = DefaultLatencyCapacity
	}
	if opts.LogCapacity <= 0 {
		opts.LogCapacity = DefaultLogCapacity
	}
	s := &Store{
		latencyCap: opts.LatencyCapacity,
		logCap:     opts.LogCapacity,
		listeners:  make(map[Topic][]registration),
	}
	s.app.Status = models.StatusIdle
	return s
}

// Snapshot returns a value copy of the current state. Slices are copied, so
// the result is safe to read without synchronization.
func (s *Store) Snapshot() models.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() models.AppState {
	snap := s.app
	snap.Latency = append([]models.LatencyPoint(nil), s.app.Latency...)
	snap.Logs = append([]models.LogEntry(nil), s.app.Logs...)
	return snap
}

// AddListener registers fn under topic, keyed by name. Re-registering an
// existing name replaces the callback in place, so duplicate registration
// never causes duplicate invocation.
func (s *Store) AddListener(topic Topic, name string, fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := s.listeners[topic]
	for i := range regs {
		if regs[i].name == name {
			regs[i].fn = fn
			return
		}
	}
	s.listeners[topic] = append(regs, registration{name: name, fn: fn})
}

// RemoveListener deregisters the named listener from topic. Unknown names
// are ignored.
func (s *Store) RemoveListener(topic Topic, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := s.listeners[topic]
	for i := range regs {
		if regs[i].name == name {
			s.listeners[topic] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// notifyLocked delivers the event to the topic's listeners and then to the
// "all" listeners, in registration order.
func (s *Store) notifyLocked(topic Topic) {
	ev := Event{Topic: topic, State: s.snapshotLocked()}
	for _, reg := range s.listeners[topic] {
		invoke(reg, ev)
	}
	if topic != TopicAll {
		for _, reg := range s.listeners[TopicAll] {
			invoke(reg, ev)
		}
	}
}

func invoke(reg registration, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("listener", reg.name).
				Str("topic", string(ev.Topic)).
				Interface("panic", r).
				Msg("State listener panicked")
		}
	}()
	reg.fn(ev)
}

// UpdateStatus replaces the workflow status. Unchanged values are a no-op
// and produce no notification.
func (s *Store) UpdateStatus(status models.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.app.Status == status {
		return
	}
	s.app.Status = status
	s.notifyLocked(TopicStatus)
}

// UpdateDevice replaces the attached-device descriptor.
func (s *Store) UpdateDevice(dev models.DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app.Device = dev
	s.notifyLocked(TopicDevice)
}

// UpdateRelayStatus sets the relay running flag and accumulates packet
// counter deltas.
func (s *Store) UpdateRelayStatus(running bool, sent, received, errors int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app.RelayRunning = running
	s.app.RelaySent += sent
	s.app.RelayReceived += received
	s.app.RelayErrors += errors
	s.notifyLocked(TopicRelay)
}

// UpdateFlashProgress replaces the flash progress snapshot.
func (s *Store) UpdateFlashProgress(p models.FlashProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app.Flash = p
	s.notifyLocked(TopicFlash)
}

// UpdateMetrics replaces the host CPU and memory usage percentages.
func (s *Store) UpdateMetrics(cpu, mem float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app.CPUUsage = cpu
	s.app.MemoryUsage = mem
	s.notifyLocked(TopicMetrics)
}

// AddLatencyPoint appends a timestamped latency sample, evicting the oldest
// sample beyond capacity.
func (s *Store) AddLatencyPoint(ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app.Latency = append(s.app.Latency, models.LatencyPoint{
		Timestamp: time.Now(),
		LatencyMs: ms,
	})
	if len(s.app.Latency) > s.latencyCap {
		s.app.Latency = s.app.Latency[1:]
	}
	s.notifyLocked(TopicLatency)
}

// AddLog appends a structured log entry, evicting the oldest entry beyond
// capacity. This is the only structured-logging surface exposed to
// collaborators.
func (s *Store) AddLog(level, message, component string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLogLocked(level, message, component)
	s.notifyLocked(TopicLogs)
}

func (s *Store) appendLogLocked(level, message, component string) {
	s.app.Logs = append(s.app.Logs, models.LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Component: component,
	})
	if len(s.app.Logs) > s.logCap {
		s.app.Logs = s.app.Logs[1:]
	}
}

// ToggleTheme flips the dark theme flag.
func (s *Store) ToggleTheme() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app.DarkTheme = !s.app.DarkTheme
	s.notifyLocked(TopicTheme)
}

// UpdateWebsocketStatus records backend connectivity. Unchanged values are a
// no-op. A transition appends one log entry (info when connected, warning
// when not) as a side effect and emits exactly one notification, on the
// websocket topic.
func (s *Store) UpdateWebsocketStatus(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.app.WSConnected == connected {
		return
	}
	s.app.WSConnected = connected
	if connected {
		s.appendLogLocked("info", "Backend connection established", "websocket")
	} else {
		s.appendLogLocked("warning", "Backend connection lost", "websocket")
	}
	s.notifyLocked(TopicWebsocket)
}
