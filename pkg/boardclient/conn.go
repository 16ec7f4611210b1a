// Package boardclient is the Go client for the board sync gateway: one
// WebSocket connection, a scene reconciler that keeps the local document
// converged with the room, bounded undo history, and the debounced
// persistence writer.
package boardclient

import (
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whiteboard-backend/pkg/protocol"
)

const (
	reconnectBase     = time.Second
	reconnectCap      = 5 * time.Second
	reconnectAttempts = 20
)

var ErrNotConnected = errors.New("boardclient: not connected")

// Handler consumes one event payload. Handlers run on the read goroutine,
// so long work must be handed off.
type Handler func(data json.RawMessage)

// Transport is the slice of Conn the sync components depend on.
type Transport interface {
	Emit(event string, payload any) error
	On(event string, h Handler)
}

// Options configure the WebSocket session.
type Options struct {
	// URL is the gateway endpoint, e.g. ws://localhost:8080/ws/board.
	URL string

	// Token authenticates a registered user. When empty, the guest pair is
	// sent instead.
	Token     string
	GuestID   string
	GuestName string

	HandshakeTimeout time.Duration
}

// Conn manages the WebSocket session: dial, envelope fan-out to per-event
// handlers, and auto-reconnect with exponential backoff. Every component
// that needs transport gets a Conn injected; there is no package-level
// connection.
type Conn struct {
	opts   Options
	dialer *websocket.Dialer

	writeMu sync.Mutex
	ws      *websocket.Conn

	handlerMu   sync.RWMutex
	handlers    map[string][]Handler
	onReconnect []func()
	onDown      []func()

	stateMu sync.Mutex
	closed  bool
}

// NewConn creates an unconnected session manager.
func NewConn(opts Options) *Conn {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Conn{
		opts:     opts,
		dialer:   &websocket.Dialer{HandshakeTimeout: timeout},
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for an event. Multiple handlers per event run in
// registration order. Register everything before Dial.
func (c *Conn) On(event string, h Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// OnReconnect registers a callback that runs after a successful re-dial.
// The server keeps no session state across connections, so callers use this
// to re-join their board and presence.
func (c *Conn) OnReconnect(f func()) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onReconnect = append(c.onReconnect, f)
}

// OnDown registers a callback that runs when the connection drops, before
// any reconnect attempt.
func (c *Conn) OnDown(f func()) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onDown = append(c.onDown, f)
}

// Dial opens the connection and starts the read loop.
func (c *Conn) Dial() error {
	ws, err := c.dial()
	if err != nil {
		return err
	}
	c.setWS(ws)
	go c.readLoop(ws)
	return nil
}

func (c *Conn) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	if c.opts.Token != "" {
		q.Set("token", c.opts.Token)
	} else {
		q.Set("guestId", c.opts.GuestID)
		q.Set("guestName", c.opts.GuestName)
	}
	u.RawQuery = q.Encode()

	ws, _, err := c.dialer.Dial(u.String(), nil)
	return ws, err
}

// Emit sends one event envelope. Safe for concurrent use.
func (c *Conn) Emit(event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close shuts the connection down for good; no reconnect follows.
func (c *Conn) Close() error {
	c.stateMu.Lock()
	c.closed = true
	c.stateMu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return nil
	}
	err := c.ws.Close()
	c.ws = nil
	return err
}

func (c *Conn) setWS(ws *websocket.Conn) {
	c.writeMu.Lock()
	c.ws = ws
	c.writeMu.Unlock()
}

func (c *Conn) isClosed() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.closed
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			log.Printf("[BoardClient] Connection lost: %v", err)
			c.notifyDown()
			c.reconnect()
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			log.Printf("[BoardClient] Malformed envelope: %v", err)
			continue
		}
		c.dispatch(env.Event, env.Data)
	}
}

func (c *Conn) dispatch(event string, data json.RawMessage) {
	c.handlerMu.RLock()
	hs := c.handlers[event]
	c.handlerMu.RUnlock()
	for _, h := range hs {
		h(data)
	}
}

func (c *Conn) notifyDown() {
	c.handlerMu.RLock()
	fs := c.onDown
	c.handlerMu.RUnlock()
	for _, f := range fs {
		f()
	}
}

// reconnect re-dials with exponential backoff, 1s doubling up to a 5s cap,
// and gives up after 20 attempts.
func (c *Conn) reconnect() {
	delay := reconnectBase
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		time.Sleep(delay)
		if c.isClosed() {
			return
		}

		ws, err := c.dial()
		if err == nil {
			log.Printf("[BoardClient] Reconnected (attempt %d)", attempt)
			c.setWS(ws)
			go c.readLoop(ws)

			c.handlerMu.RLock()
			fs := c.onReconnect
			c.handlerMu.RUnlock()
			for _, f := range fs {
				f()
			}
			return
		}

		log.Printf("[BoardClient] Reconnect attempt %d/%d failed: %v", attempt, reconnectAttempts, err)
		delay *= 2
		if delay > reconnectCap {
			delay = reconnectCap
		}
	}
	log.Printf("[BoardClient] Giving up after %d reconnect attempts", reconnectAttempts)
}
