package boardclient

import "sync"

// History is a bounded stack of full-document snapshots. Undo and redo
// restore snapshots byte-exactly; no diffing. The stack always holds the
// current state on top, so undo needs at least two entries: the current one
// and the one to return to.
type History struct {
	mu    sync.Mutex
	limit int
	undo  [][]byte
	redo  [][]byte
}

// NewHistory creates a history with the given snapshot cap.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 50
	}
	return &History{limit: limit}
}

// Record pushes a new snapshot. Any redo entries are discarded: a fresh
// action forks the timeline. The oldest entry is dropped past the cap.
func (h *History) Record(snapshot []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = append(h.undo, snapshot)
	if len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	h.redo = h.redo[:0]
}

// Undo moves the current snapshot to the redo stack and returns the previous
// one. Returns false when there is nothing to go back to.
func (h *History) Undo() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undo) < 2 {
		return nil, false
	}
	current := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, current)
	return h.undo[len(h.undo)-1], true
}

// Redo replays the most recently undone snapshot.
func (h *History) Redo() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redo) == 0 {
		return nil, false
	}
	snapshot := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, snapshot)
	return snapshot, true
}

// CanUndo reports whether Undo would succeed.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) >= 2
}

// CanRedo reports whether Redo would succeed.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// Reset drops everything, e.g. on board switch.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = h.undo[:0]
	h.redo = h.redo[:0]
}
