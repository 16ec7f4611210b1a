// Package relay implements the server-side fan-out layer: the room registry
// mapping boards to connected sessions and the broadcast relay that forwards
// mutation events to every other session in a room. The relay never
// interprets element payloads; it is a dumb pipe, not a merge authority.
package relay

import (
	"log"
	"sync"

	"whiteboard-backend/pkg/protocol"
)

// Sender is the transport half of a session the relay needs: a stable socket
// id and a thread-safe send. *handler.SocketSession implements it in
// production; tests supply an in-memory sink.
type Sender interface {
	SocketID() string
	Send(data []byte) error
}

// Session is one connected client registered with the hub.
type Session struct {
	Sender
	UserID   string
	ReadOnly bool
}

// Hub is the room registry. All state is in-memory and rebuilt from join
// events; nothing here survives a restart. Mutations are serialized by the
// mutex since each connection reads on its own goroutine.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Session // boardID -> socketID -> session

	// When set, mutating events from read-only sessions are not
	// rebroadcast. Off by default: historically permission is enforced
	// only at the persistence boundary.
	enforcePermissions bool
}

// NewHub creates an empty room registry.
func NewHub(enforcePermissions bool) *Hub {
	return &Hub{
		rooms:              make(map[string]map[string]*Session),
		enforcePermissions: enforcePermissions,
	}
}

// Join registers the session in the board's room, creating the room lazily.
// A session belongs to at most one room: joining implicitly leaves the
// previous board first.
func (h *Hub) Join(boardID string, s *Session) {
	h.mu.Lock()
	if prev := h.roomOfLocked(s.SocketID()); prev != "" && prev != boardID {
		h.leaveLocked(prev, s.SocketID())
	}
	room, ok := h.rooms[boardID]
	if !ok {
		room = make(map[string]*Session)
		h.rooms[boardID] = room
		log.Printf("[Hub] Created room: %s", boardID)
	}
	room[s.SocketID()] = s
	total := len(room)
	h.mu.Unlock()

	log.Printf("[Hub] Socket %s (user %s) joined board %s (total: %d)", s.SocketID(), s.UserID, boardID, total)
}

// Leave removes the session from the board's room. Empty rooms are deleted;
// there is no explicit teardown beyond absence.
func (h *Hub) Leave(boardID, socketID string) {
	h.mu.Lock()
	h.leaveLocked(boardID, socketID)
	h.mu.Unlock()
}

// LeaveAll removes the session from whichever room holds it and returns the
// board id it was in, if any. Used on disconnect.
func (h *Hub) LeaveAll(socketID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	boardID := h.roomOfLocked(socketID)
	if boardID != "" {
		h.leaveLocked(boardID, socketID)
	}
	return boardID
}

func (h *Hub) roomOfLocked(socketID string) string {
	for boardID, room := range h.rooms {
		if _, ok := room[socketID]; ok {
			return boardID
		}
	}
	return ""
}

func (h *Hub) leaveLocked(boardID, socketID string) {
	room, ok := h.rooms[boardID]
	if !ok {
		return
	}
	if _, ok := room[socketID]; !ok {
		return
	}
	delete(room, socketID)
	if len(room) == 0 {
		delete(h.rooms, boardID)
		log.Printf("[Hub] Room %s closed (empty)", boardID)
	} else {
		log.Printf("[Hub] Socket %s left board %s (remaining: %d)", socketID, boardID, len(room))
	}
}

// Member returns the session in the given room for socketID, or nil.
func (h *Hub) Member(boardID, socketID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[boardID]
	if !ok {
		return nil
	}
	return room[socketID]
}

// RoomSize returns the number of sessions in a board's room.
func (h *Hub) RoomSize(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[boardID])
}

// BroadcastToOthers relays an already-encoded event to every session in the
// room except the sender. Delivery is best-effort: a failed write is logged
// and the remaining members still receive the event.
func (h *Hub) BroadcastToOthers(boardID, senderSocketID string, data []byte) {
	for _, s := range h.othersSnapshot(boardID, senderSocketID) {
		if err := s.Send(data); err != nil {
			log.Printf("[Hub] Send to socket %s in board %s failed: %v", s.SocketID(), boardID, err)
		}
	}
}

// BroadcastToAll relays to every session in the room, sender included. Used
// for roster updates where the sender also needs the full list.
func (h *Hub) BroadcastToAll(boardID string, data []byte) {
	for _, s := range h.othersSnapshot(boardID, "") {
		if err := s.Send(data); err != nil {
			log.Printf("[Hub] Send to socket %s in board %s failed: %v", s.SocketID(), boardID, err)
		}
	}
}

func (h *Hub) othersSnapshot(boardID, excludeSocketID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[boardID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(room))
	for id, s := range room {
		if id == excludeSocketID {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Relay rebroadcasts one canvas event from sender to the rest of the room.
// A missing board id or unknown membership drops the event silently (logged,
// never surfaced); retries belong to the transport's reconnect logic plus
// the periodic full-document sync.
func (h *Hub) Relay(event, boardID, senderSocketID string, payload any) {
	if boardID == "" {
		log.Printf("[Hub] Dropping %s: empty board id (socket %s)", event, senderSocketID)
		return
	}
	sender := h.Member(boardID, senderSocketID)
	if sender == nil {
		log.Printf("[Hub] Dropping %s: socket %s not in board %s", event, senderSocketID, boardID)
		return
	}
	if h.enforcePermissions && sender.ReadOnly && protocol.IsMutation(event) {
		log.Printf("[Hub] Dropping %s: socket %s is read-only on board %s", event, senderSocketID, boardID)
		return
	}

	data, err := protocol.Encode(event, payload)
	if err != nil {
		log.Printf("[Hub] Failed to encode %s for board %s: %v", event, boardID, err)
		return
	}
	h.BroadcastToOthers(boardID, senderSocketID, data)
}
