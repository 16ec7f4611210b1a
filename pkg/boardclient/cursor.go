package boardclient

import (
	"encoding/json"
	"sync"
	"time"

	"whiteboard-backend/pkg/protocol"
)

// CursorEmitter throttles pointer broadcasts to roughly 12 per second.
// Positions inside the throttle window are dropped, not queued; cursor
// traffic is ephemeral and only the latest position matters.
type CursorEmitter struct {
	conn    Transport
	boardID string

	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	userName string
	color    string

	now func() time.Time
}

// NewCursorEmitter creates a throttled emitter for one board.
func NewCursorEmitter(conn Transport, boardID string, interval time.Duration) *CursorEmitter {
	if interval <= 0 {
		interval = 80 * time.Millisecond
	}
	return &CursorEmitter{
		conn:     conn,
		boardID:  boardID,
		interval: interval,
		now:      time.Now,
	}
}

// SetIdentity sets the label and color stamped on emitted positions. The
// color arrives with the my-presence event after joining.
func (e *CursorEmitter) SetIdentity(userName, color string) {
	e.mu.Lock()
	e.userName = userName
	e.color = color
	e.mu.Unlock()
}

// Move emits the position unless one was sent within the throttle window.
func (e *CursorEmitter) Move(x, y float64) {
	e.mu.Lock()
	now := e.now()
	if now.Sub(e.last) < e.interval {
		e.mu.Unlock()
		return
	}
	e.last = now
	userName, color := e.userName, e.color
	e.mu.Unlock()

	e.conn.Emit(protocol.EventCursorMove, protocol.CursorMove{
		BoardID:  e.boardID,
		X:        x,
		Y:        y,
		UserName: userName,
		Color:    color,
	})
}

// CursorTracker keeps the latest known position per remote session. Its own
// user's echoes are ignored.
type CursorTracker struct {
	mu      sync.RWMutex
	selfID  string
	cursors map[string]protocol.CursorUpdated

	onUpdate func(protocol.CursorUpdated)
}

// NewCursorTracker registers the tracker on the connection. onUpdate may be
// nil; it fires for every accepted position.
func NewCursorTracker(conn Transport, selfID string, onUpdate func(protocol.CursorUpdated)) *CursorTracker {
	t := &CursorTracker{
		selfID:   selfID,
		cursors:  make(map[string]protocol.CursorUpdated),
		onUpdate: onUpdate,
	}
	conn.On(protocol.EventCursorUpdated, t.handleCursorUpdated)
	conn.On(protocol.EventUserLeft, t.handleUserLeft)
	return t
}

func (t *CursorTracker) handleCursorUpdated(data json.RawMessage) {
	var msg protocol.CursorUpdated
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.UserID == t.selfID {
		return
	}

	t.mu.Lock()
	t.cursors[msg.SocketID] = msg
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(msg)
	}
}

func (t *CursorTracker) handleUserLeft(data json.RawMessage) {
	var msg protocol.RoomEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	t.mu.Lock()
	delete(t.cursors, msg.SocketID)
	t.mu.Unlock()
}

// Cursors returns a snapshot of all known remote positions.
func (t *CursorTracker) Cursors() map[string]protocol.CursorUpdated {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]protocol.CursorUpdated, len(t.cursors))
	for k, v := range t.cursors {
		out[k] = v
	}
	return out
}

// Reset drops all tracked positions, e.g. on board switch.
func (t *CursorTracker) Reset() {
	t.mu.Lock()
	t.cursors = make(map[string]protocol.CursorUpdated)
	t.mu.Unlock()
}
