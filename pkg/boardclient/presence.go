package boardclient

import (
	"encoding/json"
	"sync"

	"whiteboard-backend/pkg/protocol"
)

// PresenceWatcher mirrors the server's roster for one board: the active-users
// broadcast and the my-presence entry carrying this session's assigned color.
type PresenceWatcher struct {
	conn Transport

	mu     sync.RWMutex
	self   protocol.PresenceEntry
	roster []protocol.PresenceEntry

	onRoster func([]protocol.PresenceEntry)
	onSelf   func(protocol.PresenceEntry)
}

// NewPresenceWatcher registers the watcher on the connection. Callbacks may
// be nil.
func NewPresenceWatcher(conn Transport, onRoster func([]protocol.PresenceEntry), onSelf func(protocol.PresenceEntry)) *PresenceWatcher {
	w := &PresenceWatcher{
		conn:     conn,
		onRoster: onRoster,
		onSelf:   onSelf,
	}
	conn.On(protocol.EventActiveUsers, w.handleActiveUsers)
	conn.On(protocol.EventMyPresence, w.handleMyPresence)
	return w
}

// Join announces this session's display identity for a board.
func (w *PresenceWatcher) Join(boardID string, user protocol.PresenceUser) error {
	return w.conn.Emit(protocol.EventJoinPresence, protocol.JoinPresence{
		BoardID: boardID,
		User:    user,
	})
}

func (w *PresenceWatcher) handleActiveUsers(data json.RawMessage) {
	var roster []protocol.PresenceEntry
	if err := json.Unmarshal(data, &roster); err != nil {
		return
	}

	w.mu.Lock()
	w.roster = roster
	w.mu.Unlock()

	if w.onRoster != nil {
		w.onRoster(roster)
	}
}

func (w *PresenceWatcher) handleMyPresence(data json.RawMessage) {
	var entry protocol.PresenceEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return
	}

	w.mu.Lock()
	w.self = entry
	w.mu.Unlock()

	if w.onSelf != nil {
		w.onSelf(entry)
	}
}

// Self returns this session's presence entry as last assigned by the server.
func (w *PresenceWatcher) Self() protocol.PresenceEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.self
}

// Roster returns the last broadcast roster, deduplicated by user server-side.
func (w *PresenceWatcher) Roster() []protocol.PresenceEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]protocol.PresenceEntry, len(w.roster))
	copy(out, w.roster)
	return out
}
