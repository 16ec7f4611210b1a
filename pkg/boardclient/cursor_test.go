package boardclient

import (
	"encoding/json"
	"testing"
	"time"

	"whiteboard-backend/pkg/protocol"
)

func TestCursorEmitterThrottles(t *testing.T) {
	ft := newFakeTransport()
	e := NewCursorEmitter(ft, "b1", 80*time.Millisecond)

	now := time.Unix(0, 0)
	e.now = func() time.Time { return now }

	// a dense pointer stream inside one window
	for i := 0; i < 20; i++ {
		e.Move(float64(i), float64(i))
		now = now.Add(10 * time.Millisecond)
	}

	// 200ms of movement through an 80ms throttle allows at most 3 emits
	if got := ft.count(protocol.EventCursorMove); got != 3 {
		t.Fatalf("expected 3 throttled emits, got %d", got)
	}
}

func TestCursorEmitterCarriesIdentity(t *testing.T) {
	ft := newFakeTransport()
	e := NewCursorEmitter(ft, "b1", time.Millisecond)
	e.SetIdentity("Ana", "#3B82F6")

	e.Move(10, 20)

	sent := ft.sent(protocol.EventCursorMove)
	if len(sent) != 1 {
		t.Fatalf("expected one emit, got %d", len(sent))
	}
	var msg protocol.CursorMove
	if err := json.Unmarshal(sent[0].Data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.BoardID != "b1" || msg.UserName != "Ana" || msg.Color != "#3B82F6" || msg.X != 10 {
		t.Fatalf("unexpected payload %+v", msg)
	}
}

func TestCursorTrackerKeepsLatestPerSession(t *testing.T) {
	ft := newFakeTransport()
	tr := NewCursorTracker(ft, "self", nil)

	ft.inject(t, protocol.EventCursorUpdated, protocol.CursorUpdated{UserID: "peer", SocketID: "s1", X: 1, Y: 1})
	ft.inject(t, protocol.EventCursorUpdated, protocol.CursorUpdated{UserID: "peer", SocketID: "s1", X: 9, Y: 9})
	ft.inject(t, protocol.EventCursorUpdated, protocol.CursorUpdated{UserID: "other", SocketID: "s2", X: 5, Y: 5})

	cursors := tr.Cursors()
	if len(cursors) != 2 {
		t.Fatalf("expected 2 tracked sessions, got %d", len(cursors))
	}
	if cursors["s1"].X != 9 {
		t.Fatalf("tracker must keep the latest position, got %v", cursors["s1"].X)
	}
}

func TestCursorTrackerIgnoresOwnEcho(t *testing.T) {
	ft := newFakeTransport()
	tr := NewCursorTracker(ft, "self", nil)

	ft.inject(t, protocol.EventCursorUpdated, protocol.CursorUpdated{UserID: "self", SocketID: "s0", X: 1})

	if len(tr.Cursors()) != 0 {
		t.Fatal("own cursor echoes must be ignored")
	}
}

func TestCursorTrackerForgetsDepartedSessions(t *testing.T) {
	ft := newFakeTransport()
	tr := NewCursorTracker(ft, "self", nil)

	ft.inject(t, protocol.EventCursorUpdated, protocol.CursorUpdated{UserID: "peer", SocketID: "s1", X: 1})
	ft.inject(t, protocol.EventUserLeft, protocol.RoomEvent{UserID: "peer", SocketID: "s1"})

	if len(tr.Cursors()) != 0 {
		t.Fatal("departed sessions should not leave stale cursors")
	}
}
