// Package ws maintains the persistent WebSocket connection to the flashing
// backend: send, broadcast subscription for inbound events, and automatic
// reconnection with bounded exponential backoff.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rmxlab/flashdash/pkg/models"
	"github.com/rs/zerolog/log"
)

// ConnState is the connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateFailed       ConnState = "failed"
)

// ErrNotConnected is returned by Send when no connection is established.
var ErrNotConnected = errors.New("not connected")

const (
	DefaultMaxRetries = 5
	maxBackoff        = 16 * time.Second
)

// DefaultBackoff returns the delay before reconnect attempt n (1-based):
// 1s, 2s, 4s, 8s, then capped at 16s.
func DefaultBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt >= 5 {
		return maxBackoff
	}
	return time.Duration(1<<uint(attempt-1)) * time.Second
}

// Subscriber receives every inbound backend event. A subscriber that panics
// is logged and skipped for that event.
type Subscriber func(models.WSMessage)

type subscription struct {
	name string
	fn   Subscriber
}

// Options configures a Client. Zero values use the defaults.
type Options struct {
	MaxRetries int
	Backoff    func(attempt int) time.Duration
	Dialer     *websocket.Dialer

	// OnConnectionChange is invoked after connectivity transitions. It may
	// fire redundantly for repeated disconnect signals; consumers are
	// expected to deduplicate.
	OnConnectionChange func(connected bool)
}

// Client manages a single logical connection to one backend endpoint. At
// most one listen goroutine and one reconnect goroutine run at any time.
type Client struct {
	url      string
	dialer   *websocket.Dialer
	backoff  func(int) time.Duration
	onChange func(bool)

	maxRetries int

	// connectMu serializes dials so concurrent Connect calls cannot
	// install two connections and leak a listen goroutine.
	connectMu sync.Mutex

	mu              sync.Mutex
	state           ConnState
	conn            *websocket.Conn
	retryCount      int
	reconnecting    bool
	listenCancel    context.CancelFunc
	reconnectCancel context.CancelFunc
	subscribers     []subscription
	wg              sync.WaitGroup

	writeMu sync.Mutex
}

// New creates a disconnected client targeting url for its lifetime.
func New(url string, opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		url:        url,
		dialer:     opts.Dialer,
		backoff:    opts.Backoff,
		onChange:   opts.OnConnectionChange,
		maxRetries: opts.MaxRetries,
		state:      StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetryCount returns the current reconnect attempt counter.
func (c *Client) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// Subscribe registers fn under name. Duplicate names replace the callback
// in place, so subscribing twice never causes duplicate delivery.
func (c *Client) Subscribe(name string, fn Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.subscribers {
		if c.subscribers[i].name == name {
			c.subscribers[i].fn = fn
			return
		}
	}
	c.subscribers = append(c.subscribers, subscription{name: name, fn: fn})
}

// Unsubscribe removes the named subscriber. Unknown names are ignored.
func (c *Client) Unsubscribe(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.subscribers {
		if c.subscribers[i].name == name {
			c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
			return
		}
	}
}

// Connect establishes the connection and starts the listen goroutine.
// Idempotent while connected. An explicit Connect on a Failed client
// re-arms the retry counter. Dial failures are recoverable: the client
// returns to Disconnected and the error is a signal, not a fatal condition.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateFailed {
		c.retryCount = 0
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if err != nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		log.Warn().Str("url", c.url).Err(err).Msg("WebSocket connect failed")
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	// Disconnect may have raced the dial; do not revive a client that was
	// explicitly taken down.
	if c.state != StateConnecting {
		st := c.state
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("connect aborted: client is %s", st)
	}

	c.conn = conn
	c.state = StateConnected
	c.retryCount = 0

	lctx, cancel := context.WithCancel(context.Background())
	c.listenCancel = cancel
	c.wg.Add(1)
	go c.listen(lctx, conn)
	c.mu.Unlock()

	log.Info().Str("url", c.url).Msg("WebSocket connected")
	if c.onChange != nil {
		c.onChange(true)
	}
	return nil
}

// Disconnect cancels the listen and reconnect goroutines, closes the
// transport and leaves the client Disconnected. Safe to call from any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.listenCancel != nil {
		c.listenCancel()
		c.listenCancel = nil
	}
	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectCancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(false)
	}
}

// Send serializes msg and transmits it. Returns ErrNotConnected without any
// transport call when no connection is established. A transport error
// triggers the disconnect-handling path.
func (c *Client) Send(msg models.Command) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		log.Warn().Str("cmd", msg.Cmd).Err(err).Msg("WebSocket send failed")
		c.handleDisconnect()
		return fmt.Errorf("send %s: %w", msg.Cmd, err)
	}
	return nil
}

// listen reads inbound frames until the connection drops or Disconnect
// cancels it. Malformed frames are logged and skipped; well-formed frames
// are dispatched synchronously to every current subscriber.
func (c *Client) listen(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return // deliberate disconnect
			}
			log.Warn().Err(err).Msg("WebSocket read failed")
			c.handleDisconnect()
			return
		}

		msg, err := decodeEvent(data)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		c.dispatch(msg)
	}
}

// decodeEvent parses an inbound event frame, applying the protocol
// defaults: missing type becomes "unknown", missing data an empty map,
// missing timestamp the current local time.
func decodeEvent(data []byte) (models.WSMessage, error) {
	var raw struct {
		Type      string         `json:"type"`
		Data      map[string]any `json:"data"`
		Timestamp *float64       `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.WSMessage{}, fmt.Errorf("decode frame: %w", err)
	}

	msg := models.WSMessage{Type: raw.Type, Data: raw.Data}
	if msg.Type == "" {
		msg.Type = "unknown"
	}
	if msg.Data == nil {
		msg.Data = map[string]any{}
	}
	if raw.Timestamp != nil {
		msg.Timestamp = *raw.Timestamp
	} else {
		msg.Timestamp = float64(time.Now().UnixNano()) / 1e9
	}
	return msg, nil
}

func (c *Client) dispatch(msg models.WSMessage) {
	c.mu.Lock()
	subs := append([]subscription(nil), c.subscribers...)
	c.mu.Unlock()

	for _, sub := range subs {
		deliver(sub, msg)
	}
}

func deliver(sub subscription, msg models.WSMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("subscriber", sub.name).
				Str("type", msg.Type).
				Interface("panic", r).
				Msg("Subscriber panicked")
		}
	}()
	sub.fn(msg)
}

// handleDisconnect reacts to an unexpected connection loss. Duplicate
// signals are ignored; only a Connected client transitions. Schedules one
// auto-reconnect goroutine, guarded by the in-flight marker.
func (c *Client) handleDisconnect() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.listenCancel != nil {
		c.listenCancel()
		c.listenCancel = nil
	}

	var rctx context.Context
	start := !c.reconnecting
	if start {
		c.reconnecting = true
		rctx, c.reconnectCancel = context.WithCancel(context.Background())
		c.wg.Add(1)
	}
	c.mu.Unlock()

	log.Warn().Str("url", c.url).Msg("Connection lost")
	if c.onChange != nil {
		c.onChange(false)
	}
	if start {
		go c.autoReconnect(rctx)
	}
}

// Reconnect performs one reconnect attempt: with retries exhausted it
// transitions to Failed and returns immediately without touching the
// transport; otherwise it backs off min(2^(n-1), 16) seconds and dials.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.retryCount >= c.maxRetries {
		c.state = StateFailed
		c.mu.Unlock()
		log.Error().Int("attempts", c.maxRetries).Msg("Reconnect retries exhausted")
		return fmt.Errorf("retries exhausted after %d attempts", c.maxRetries)
	}
	c.state = StateReconnecting
	c.retryCount++
	attempt := c.retryCount
	delay := c.backoff(attempt)
	c.mu.Unlock()

	log.Info().
		Int("attempt", attempt).
		Dur("backoff", delay).
		Msg("Reconnecting...")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	return c.Connect(ctx)
}

// autoReconnect repeatedly invokes Reconnect until connected, retries are
// exhausted, or the context is cancelled.
func (c *Client) autoReconnect(ctx context.Context) {
	defer c.wg.Done()
	defer c.finishReconnect(ctx)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.Reconnect(ctx); err == nil {
			log.Info().Str("url", c.url).Msg("Reconnected")
			return
		}
		c.mu.Lock()
		failed := c.state == StateFailed
		c.mu.Unlock()
		if failed {
			return
		}
	}
}

// finishReconnect clears the in-flight marker when a reconnect task exits.
// A drop that lands while the task is on its way out finds the marker still
// set and schedules nothing, so a client left Disconnected here gets a
// replacement task instead of being stranded.
func (c *Client) finishReconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reconnecting = false
	c.reconnectCancel = nil

	if ctx.Err() == nil && c.state == StateDisconnected {
		c.reconnecting = true
		var rctx context.Context
		rctx, c.reconnectCancel = context.WithCancel(context.Background())
		c.wg.Add(1)
		go c.autoReconnect(rctx)
	}
}
