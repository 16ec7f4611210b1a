package boardclient

import (
	"bytes"
	"fmt"
	"testing"
)

func TestUndoNeedsTwoEntries(t *testing.T) {
	h := NewHistory(50)

	if _, ok := h.Undo(); ok {
		t.Fatal("empty history must not undo")
	}

	h.Record([]byte(`{"v":1}`))
	if _, ok := h.Undo(); ok {
		t.Fatal("a single snapshot is the current state, nothing to go back to")
	}

	h.Record([]byte(`{"v":2}`))
	snap, ok := h.Undo()
	if !ok {
		t.Fatal("undo should succeed with two entries")
	}
	if !bytes.Equal(snap, []byte(`{"v":1}`)) {
		t.Fatalf("expected first snapshot back, got %s", snap)
	}
}

func TestUndoRedoRoundTripByteExact(t *testing.T) {
	h := NewHistory(50)
	first := []byte(`{"objects":[{"id":"a"}]}`)
	second := []byte(`{"objects":[{"id":"a"},{"id":"b"}]}`)

	h.Record(first)
	h.Record(second)

	undone, ok := h.Undo()
	if !ok || !bytes.Equal(undone, first) {
		t.Fatalf("undo returned %s", undone)
	}

	redone, ok := h.Redo()
	if !ok || !bytes.Equal(redone, second) {
		t.Fatalf("redo must restore the exact bytes, got %s", redone)
	}

	if _, ok := h.Redo(); ok {
		t.Fatal("redo stack should be exhausted")
	}
}

func TestRecordClearsRedo(t *testing.T) {
	h := NewHistory(50)
	h.Record([]byte(`1`))
	h.Record([]byte(`2`))
	h.Undo()

	if !h.CanRedo() {
		t.Fatal("redo should be available after undo")
	}

	h.Record([]byte(`3`))
	if h.CanRedo() {
		t.Fatal("a new action forks the timeline and discards redo")
	}
}

func TestHistoryCapDropsOldest(t *testing.T) {
	h := NewHistory(5)
	for i := 0; i < 10; i++ {
		h.Record([]byte(fmt.Sprintf(`{"v":%d}`, i)))
	}

	// unwind everything; the oldest reachable snapshot is v=5
	var last []byte
	for {
		snap, ok := h.Undo()
		if !ok {
			break
		}
		last = snap
	}
	if !bytes.Equal(last, []byte(`{"v":5}`)) {
		t.Fatalf("expected oldest retained snapshot v=5, got %s", last)
	}
}
