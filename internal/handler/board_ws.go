package handler

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/relay"
	"whiteboard-backend/pkg/protocol"
)

// SocketSession is one live WebSocket connection. Writes are serialized by
// the mutex since the hub broadcasts from other sessions' read goroutines.
type SocketSession struct {
	id           string
	identity     auth.Identity
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

// SocketID returns the connection identifier.
func (s *SocketSession) SocketID() string {
	return s.id
}

// Send writes one text frame. Safe for concurrent use.
func (s *SocketSession) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *SocketSession) sendEvent(event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		log.Printf("[BoardWS] Failed to encode %s: %v", event, err)
		return
	}
	if err := s.Send(data); err != nil {
		log.Printf("[BoardWS] Send %s to socket %s failed: %v", event, s.id, err)
	}
}

// BoardWSHandler routes board sync traffic between connected sessions.
type BoardWSHandler struct {
	db       *gorm.DB
	hub      *relay.Hub
	presence *presence.Table
	cfg      *config.Config
}

// NewBoardWSHandler creates the handler.
func NewBoardWSHandler(db *gorm.DB, hub *relay.Hub, table *presence.Table, cfg *config.Config) *BoardWSHandler {
	return &BoardWSHandler{db: db, hub: hub, presence: table, cfg: cfg}
}

// HandleConnection runs the read loop for one authenticated socket. Identity
// was resolved at handshake time by the upgrade middleware; unauthenticated
// connections never reach this point.
func (h *BoardWSHandler) HandleConnection(c *websocket.Conn) {
	identity, ok := c.Locals("identity").(auth.Identity)
	if !ok {
		c.WriteMessage(websocket.TextMessage, []byte(`{"event":"error","data":{"error":"invalid session"}}`))
		c.Close()
		return
	}

	session := &SocketSession{
		id:           uuid.New().String(),
		identity:     identity,
		conn:         c,
		writeTimeout: h.cfg.WebSocket.WriteTimeout,
	}

	log.Printf("[BoardWS] Connected: user %s (socket %s, guest: %v)", identity.ID, session.id, identity.IsGuest)

	defer func() {
		h.dropSession(session)
		c.Close()
		log.Printf("[BoardWS] Disconnected: user %s (socket %s)", identity.ID, session.id)
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var env protocol.Envelope
		if err := json.Unmarshal(msgBytes, &env); err != nil {
			log.Printf("[BoardWS] Malformed envelope from socket %s: %v", session.id, err)
			continue
		}

		h.dispatch(session, &env)
	}
}

// dispatch routes one inbound event. Payload errors are per-event: logged,
// dropped, and the connection stays up.
func (h *BoardWSHandler) dispatch(s *SocketSession, env *protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoinBoard:
		h.handleJoinBoard(s, env.Data)
	case protocol.EventLeaveBoard:
		h.handleLeaveBoard(s, env.Data)
	case protocol.EventJoinPresence:
		h.handleJoinPresence(s, env.Data)
	case protocol.EventCursorMove:
		h.handleCursorMove(s, env.Data)
	case protocol.EventElementAdded, protocol.EventElementModified:
		h.handleElement(s, env.Event, env.Data)
	case protocol.EventElementRemoved:
		h.handleElementRemoved(s, env.Data)
	case protocol.EventCanvasUpdate:
		h.handleCanvasUpdate(s, env.Data)
	case protocol.EventCanvasCleared:
		h.handleCanvasCleared(s, env.Data)
	default:
		log.Printf("[BoardWS] Unknown event %q from socket %s", env.Event, s.id)
	}
}

func (h *BoardWSHandler) handleJoinBoard(s *SocketSession, data json.RawMessage) {
	var req protocol.JoinBoard
	if err := json.Unmarshal(data, &req); err != nil || req.BoardID == "" {
		s.sendEvent(protocol.EventJoinAck, protocol.JoinAck{Success: false, Error: "no boardId"})
		return
	}

	role, err := auth.BoardRole(h.db, req.BoardID, s.identity.AccountID)
	if err != nil {
		log.Printf("[BoardWS] join-board rejected for user %s on board %s: %v", s.identity.ID, req.BoardID, err)
		s.sendEvent(protocol.EventJoinAck, protocol.JoinAck{BoardID: req.BoardID, Success: false, Error: "no access to this board"})
		return
	}

	h.hub.Join(req.BoardID, &relay.Session{
		Sender:   s,
		UserID:   s.identity.ID,
		ReadOnly: !role.CanEdit(),
	})

	s.sendEvent(protocol.EventJoinAck, protocol.JoinAck{BoardID: req.BoardID, Success: true})

	// best-effort announce; members that drop mid-broadcast just miss it
	h.hub.Relay(protocol.EventUserJoined, req.BoardID, s.id, protocol.RoomEvent{
		UserID:   s.identity.ID,
		SocketID: s.id,
	})
}

func (h *BoardWSHandler) handleLeaveBoard(s *SocketSession, data json.RawMessage) {
	var req protocol.JoinBoard
	if err := json.Unmarshal(data, &req); err != nil || req.BoardID == "" {
		return
	}

	h.hub.Relay(protocol.EventUserLeft, req.BoardID, s.id, protocol.RoomEvent{
		UserID:   s.identity.ID,
		SocketID: s.id,
	})
	h.hub.Leave(req.BoardID, s.id)
	h.pruneFromPresence(req.BoardID, s.id)
}

func (h *BoardWSHandler) handleJoinPresence(s *SocketSession, data json.RawMessage) {
	var req protocol.JoinPresence
	if err := json.Unmarshal(data, &req); err != nil || req.BoardID == "" {
		log.Printf("[BoardWS] Dropping join-presence from socket %s: bad payload", s.id)
		return
	}
	if req.User.FullName == "" {
		req.User.FullName = s.identity.Name
	}

	entry, _ := h.presence.Join(req.BoardID, s.identity.ID, s.id, req.User)

	// full roster to everyone, deduplicated by user; own color back to joiner
	h.broadcastActiveUsers(req.BoardID)
	s.sendEvent(protocol.EventMyPresence, entry)
}

func (h *BoardWSHandler) handleCursorMove(s *SocketSession, data json.RawMessage) {
	var req protocol.CursorMove
	if err := json.Unmarshal(data, &req); err != nil || req.BoardID == "" {
		return
	}

	h.hub.Relay(protocol.EventCursorUpdated, req.BoardID, s.id, protocol.CursorUpdated{
		UserID:   s.identity.ID,
		SocketID: s.id,
		X:        req.X,
		Y:        req.Y,
		UserName: req.UserName,
		Color:    req.Color,
	})
}

func (h *BoardWSHandler) handleElement(s *SocketSession, event string, data json.RawMessage) {
	var req protocol.BoardElement
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[BoardWS] Malformed %s from socket %s: %v", event, s.id, err)
		return
	}
	if req.BoardID == "" {
		log.Printf("[BoardWS] Dropping %s from socket %s: empty board id", event, s.id)
		return
	}

	// element stays opaque; the relay never validates its schema
	h.hub.Relay(event, req.BoardID, s.id, protocol.RemoteElement{
		Element: req.Element,
		UserID:  s.identity.ID,
	})
}

func (h *BoardWSHandler) handleElementRemoved(s *SocketSession, data json.RawMessage) {
	var req protocol.BoardElementRemoved
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[BoardWS] Malformed element-removed from socket %s: %v", s.id, err)
		return
	}

	h.hub.Relay(protocol.EventElementRemoved, req.BoardID, s.id, protocol.RemoteElementRemoved{
		ElementID: req.ElementID,
		UserID:    s.identity.ID,
	})
}

func (h *BoardWSHandler) handleCanvasUpdate(s *SocketSession, data json.RawMessage) {
	var req protocol.BoardCanvas
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[BoardWS] Malformed canvas-update from socket %s: %v", s.id, err)
		return
	}

	h.hub.Relay(protocol.EventCanvasUpdate, req.BoardID, s.id, protocol.RemoteCanvas{
		CanvasData: req.CanvasData,
		UserID:     s.identity.ID,
	})
}

func (h *BoardWSHandler) handleCanvasCleared(s *SocketSession, data json.RawMessage) {
	var req protocol.BoardCleared
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	h.hub.Relay(protocol.EventCanvasCleared, req.BoardID, s.id, protocol.RemoteCleared{
		UserID: s.identity.ID,
	})
}

// dropSession cleans up after a disconnect: room membership, presence entry,
// and the departure announcements. Server-side collaboration state is
// ephemeral, so a reconnecting client re-joins from scratch.
func (h *BoardWSHandler) dropSession(s *SocketSession) {
	boardID := h.hub.LeaveAll(s.id)
	if boardID == "" {
		return
	}

	h.broadcastToBoard(boardID, protocol.EventUserLeft, protocol.RoomEvent{
		UserID:   s.identity.ID,
		SocketID: s.id,
	})
	h.pruneFromPresence(boardID, s.id)
}

func (h *BoardWSHandler) pruneFromPresence(boardID, socketID string) {
	if _, changed := h.presence.Leave(boardID, socketID); changed {
		h.broadcastActiveUsers(boardID)
	}
}

func (h *BoardWSHandler) broadcastActiveUsers(boardID string) {
	h.broadcastToBoard(boardID, protocol.EventActiveUsers, h.presence.ActiveUsers(boardID))
}

func (h *BoardWSHandler) broadcastToBoard(boardID, event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		log.Printf("[BoardWS] Failed to encode %s for board %s: %v", event, boardID, err)
		return
	}
	h.hub.BroadcastToAll(boardID, data)
}
