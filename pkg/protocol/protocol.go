// Package protocol defines the wire catalogue shared by the sync relay and
// the board client. Messages are JSON envelopes sent as WebSocket text frames.
package protocol

import "encoding/json"

// Client -> server events
const (
	EventJoinBoard    = "join-board"
	EventLeaveBoard   = "leave-board"
	EventJoinPresence = "join-presence"
	EventCursorMove   = "cursor-move"
)

// Canvas mutation events flow both directions: the client sends the Board*
// payload, the relay strips the board id and rebroadcasts the Remote* payload
// annotated with the sender's user id.
const (
	EventElementAdded    = "element-added"
	EventElementModified = "element-modified"
	EventElementRemoved  = "element-removed"
	EventCanvasUpdate    = "canvas-update"
	EventCanvasCleared   = "canvas-cleared"
)

// Server -> client events
const (
	EventJoinAck       = "join-ack"
	EventActiveUsers   = "active-users"
	EventMyPresence    = "my-presence"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventCursorUpdated = "cursor-updated"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an envelope around the given payload.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// JoinBoard asks the relay to subscribe the session to a board room.
type JoinBoard struct {
	BoardID string `json:"boardId"`
}

// JoinAck is the relay's answer to a join-board request. Raw WebSockets have
// no per-message callback, so the socket.io-style ack travels as its own event.
type JoinAck struct {
	BoardID string `json:"boardId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// JoinPresence announces the user's display identity for a board.
type JoinPresence struct {
	BoardID string       `json:"boardId"`
	User    PresenceUser `json:"user"`
}

// PresenceUser is the client-supplied part of a presence entry.
type PresenceUser struct {
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// PresenceEntry is one row of a board's roster as broadcast to clients.
type PresenceEntry struct {
	UserID    string `json:"userId"`
	SocketID  string `json:"socketId"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Color     string `json:"color"`
	JoinedAt  int64  `json:"joinedAt"`
}

// CursorMove carries a pointer position. Clients throttle before sending;
// the relay forwards without buffering.
type CursorMove struct {
	BoardID  string  `json:"boardId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	UserName string  `json:"userName"`
	Color    string  `json:"color"`
}

// CursorUpdated is the rebroadcast form of a cursor move.
type CursorUpdated struct {
	UserID   string  `json:"userId"`
	SocketID string  `json:"socketId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	UserName string  `json:"userName"`
	Color    string  `json:"color"`
}

// BoardElement carries one element payload from a client. The element is
// opaque to the relay; only the reconciler on each peer interprets it.
type BoardElement struct {
	BoardID string          `json:"boardId"`
	Element json.RawMessage `json:"element"`
}

// RemoteElement is the rebroadcast form of an element add/modify.
type RemoteElement struct {
	Element json.RawMessage `json:"element"`
	UserID  string          `json:"userId"`
}

// BoardElementRemoved identifies an element to delete.
type BoardElementRemoved struct {
	BoardID   string `json:"boardId"`
	ElementID string `json:"elementId"`
}

// RemoteElementRemoved is the rebroadcast form of a removal.
type RemoteElementRemoved struct {
	ElementID string `json:"elementId"`
	UserID    string `json:"userId"`
}

// BoardCanvas carries a full serialized scene document. Sent explicitly for
// undo/redo propagation and periodically as the drift-correction backstop.
type BoardCanvas struct {
	BoardID    string          `json:"boardId"`
	CanvasData json.RawMessage `json:"canvasData"`
}

// RemoteCanvas is the rebroadcast form of a full-document update.
type RemoteCanvas struct {
	CanvasData json.RawMessage `json:"canvasData"`
	UserID     string          `json:"userId"`
}

// BoardCleared asks the relay to broadcast a full-clear signal.
type BoardCleared struct {
	BoardID string `json:"boardId"`
}

// RemoteCleared is the rebroadcast form of a clear.
type RemoteCleared struct {
	UserID string `json:"userId"`
}

// RoomEvent announces membership changes to the rest of a room.
type RoomEvent struct {
	UserID   string `json:"userId"`
	SocketID string `json:"socketId"`
}

// IsMutation reports whether an event modifies canvas content. Used by the
// relay when read-only enforcement is enabled.
func IsMutation(event string) bool {
	switch event {
	case EventElementAdded, EventElementModified, EventElementRemoved,
		EventCanvasUpdate, EventCanvasCleared:
		return true
	}
	return false
}
