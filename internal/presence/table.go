// Package presence tracks who is currently on each board. The roster is
// ephemeral collaboration metadata: in-memory only, keyed by socket id so a
// user with several tabs is tracked per connection, rebuilt from join events
// and lost on restart.
package presence

import (
	"sync"
	"time"

	"whiteboard-backend/pkg/protocol"
)

// Palette of cursor/avatar colors assigned on join. Assignment is best-effort
// distinct: the least-used color wins, but simultaneous users can still share
// one. Not a uniqueness contract.
var Palette = []string{
	"#3B82F6", // blue
	"#10B981", // green
	"#F59E0B", // amber
	"#EC4899", // pink
	"#8B5CF6", // violet
	"#6366F1", // indigo
	"#EF4444", // red
	"#14B8A6", // teal
}

// Table is the per-board roster store.
type Table struct {
	mu     sync.Mutex
	boards map[string][]protocol.PresenceEntry

	now func() time.Time
}

// NewTable creates an empty presence table.
func NewTable() *Table {
	return &Table{
		boards: make(map[string][]protocol.PresenceEntry),
		now:    time.Now,
	}
}

// Join records a session on a board and returns the entry (with its assigned
// color) plus the full roster. A rejoin by the same socket replaces its old
// entry; other sessions of the same user are left alone.
func (t *Table) Join(boardID, userID, socketID string, user protocol.PresenceUser) (protocol.PresenceEntry, []protocol.PresenceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	roster := t.boards[boardID]
	filtered := roster[:0]
	for _, e := range roster {
		if e.SocketID != socketID {
			filtered = append(filtered, e)
		}
	}

	entry := protocol.PresenceEntry{
		UserID:    userID,
		SocketID:  socketID,
		FullName:  user.FullName,
		AvatarURL: user.AvatarURL,
		Color:     leastUsedColor(filtered),
		JoinedAt:  t.now().UnixMilli(),
	}
	filtered = append(filtered, entry)
	t.boards[boardID] = filtered

	return entry, snapshot(filtered)
}

// Leave removes the session's entry and returns the remaining roster plus
// whether anything changed. Empty rosters are dropped from the table.
func (t *Table) Leave(boardID, socketID string) ([]protocol.PresenceEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	roster, ok := t.boards[boardID]
	if !ok {
		return nil, false
	}
	filtered := roster[:0]
	removed := false
	for _, e := range roster {
		if e.SocketID == socketID {
			removed = true
			continue
		}
		filtered = append(filtered, e)
	}
	if !removed {
		return snapshot(roster), false
	}
	if len(filtered) == 0 {
		delete(t.boards, boardID)
		return nil, true
	}
	t.boards[boardID] = filtered
	return snapshot(filtered), true
}

// Roster returns the current entries for a board.
func (t *Table) Roster(boardID string) []protocol.PresenceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.boards[boardID])
}

// ActiveUsers deduplicates the roster by user id, in join order. A user stays
// listed until their last session leaves.
func (t *Table) ActiveUsers(boardID string) []protocol.PresenceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]bool)
	out := []protocol.PresenceEntry{}
	for _, e := range t.boards[boardID] {
		if seen[e.UserID] {
			continue
		}
		seen[e.UserID] = true
		out = append(out, e)
	}
	return out
}

func leastUsedColor(roster []protocol.PresenceEntry) string {
	counts := make(map[string]int, len(Palette))
	for _, e := range roster {
		counts[e.Color]++
	}
	best := Palette[0]
	for _, c := range Palette {
		if counts[c] < counts[best] {
			best = c
		}
	}
	return best
}

func snapshot(roster []protocol.PresenceEntry) []protocol.PresenceEntry {
	if roster == nil {
		return nil
	}
	out := make([]protocol.PresenceEntry, len(roster))
	copy(out, roster)
	return out
}
