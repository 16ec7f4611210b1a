package boardclient

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"whiteboard-backend/pkg/protocol"
	"whiteboard-backend/pkg/scene"
)

func newTestReconciler(t *testing.T) (*Reconciler, *fakeTransport, *countingSink) {
	t.Helper()
	ft := newFakeTransport()
	sink := &countingSink{}
	saver := NewSaver(10*time.Millisecond, sink.save, nil)
	r := NewReconciler(ft, "b1", "self", NewHistory(50), saver, 20*time.Millisecond)
	return r, ft, sink
}

func mustRect(t *testing.T, id string) *scene.Element {
	t.Helper()
	return &scene.Element{ID: id, Type: scene.TypeRect, Left: 1, Top: 2, Width: 3, Height: 4}
}

func decodeElement(t *testing.T, env protocol.Envelope) *scene.Element {
	t.Helper()
	var msg protocol.BoardElement
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatal(err)
	}
	el, err := scene.DecodeElement(msg.Element)
	if err != nil {
		t.Fatal(err)
	}
	return el
}

func TestLocalAddAssignsIDAndBroadcasts(t *testing.T) {
	r, ft, _ := newTestReconciler(t)

	el := &scene.Element{Type: scene.TypeRect, Left: 1, Top: 2}
	if err := r.OnLocalAdd(el); err != nil {
		t.Fatal(err)
	}
	if el.ID == "" {
		t.Fatal("local add must assign an id visible to the caller")
	}

	sent := ft.sent(protocol.EventElementAdded)
	if len(sent) != 1 {
		t.Fatalf("expected one element-added, got %d", len(sent))
	}
	if got := decodeElement(t, sent[0]); got.ID != el.ID {
		t.Fatalf("wire payload id %q does not match canvas id %q", got.ID, el.ID)
	}

	if r.Document().Find(el.ID) == nil {
		t.Fatal("element missing from local document")
	}
}

func TestRemoteAddApplied(t *testing.T) {
	r, ft, _ := newTestReconciler(t)

	raw, _ := json.Marshal(mustRect(t, "from-peer"))
	ft.inject(t, protocol.EventElementAdded, protocol.RemoteElement{Element: raw, UserID: "peer"})

	if r.Document().Find("from-peer") == nil {
		t.Fatal("remote element should be applied")
	}
	// remote applies never rebroadcast
	if ft.count(protocol.EventElementAdded) != 0 {
		t.Fatal("remote apply must not emit")
	}
}

func TestOwnEchoSuppressed(t *testing.T) {
	r, ft, _ := newTestReconciler(t)

	el := mustRect(t, "mine")
	if err := r.OnLocalAdd(el); err != nil {
		t.Fatal(err)
	}

	// the relay normally excludes the sender; if an echo slips through
	// anyway it must not re-apply
	moved := mustRect(t, "mine")
	moved.Left = 999
	raw, _ := json.Marshal(moved)
	ft.inject(t, protocol.EventElementModified, protocol.RemoteElement{Element: raw, UserID: "self"})

	if got := r.Document().Find("mine"); got.Left != 1 {
		t.Fatalf("own echo was applied, left=%v", got.Left)
	}
}

func TestModifyBeforeAddDropped(t *testing.T) {
	r, ft, _ := newTestReconciler(t)

	raw, _ := json.Marshal(mustRect(t, "never-added"))
	ft.inject(t, protocol.EventElementModified, protocol.RemoteElement{Element: raw, UserID: "peer"})

	if r.Document().Find("never-added") != nil {
		t.Fatal("a modify for an unknown element must not create it")
	}
}

func TestRemoteRemoveIdempotent(t *testing.T) {
	r, ft, _ := newTestReconciler(t)
	r.OnLocalAdd(mustRect(t, "a"))

	ft.inject(t, protocol.EventElementRemoved, protocol.RemoteElementRemoved{ElementID: "a", UserID: "peer"})
	ft.inject(t, protocol.EventElementRemoved, protocol.RemoteElementRemoved{ElementID: "a", UserID: "peer"})

	if r.Document().Len() != 0 {
		t.Fatal("element should be removed")
	}
}

func TestUnknownRemoteElementTypeDropped(t *testing.T) {
	r, ft, _ := newTestReconciler(t)

	ft.inject(t, protocol.EventElementAdded, protocol.RemoteElement{
		Element: json.RawMessage(`{"id":"x","type":"hologram"}`),
		UserID:  "peer",
	})

	if r.Document().Len() != 0 {
		t.Fatal("unknown element kinds must be rejected at the boundary")
	}
}

func TestGroupModificationIsAtomic(t *testing.T) {
	r, ft, _ := newTestReconciler(t)

	group := &scene.Element{
		ID:   "g1",
		Type: scene.TypeStickyNote,
		Objects: []*scene.Element{
			{ID: "note-bg", Type: scene.TypeRect, Fill: "#ff0"},
			{ID: "note-text", Type: scene.TypeTextbox, Text: "old"},
		},
	}
	if err := r.OnLocalAdd(group); err != nil {
		t.Fatal(err)
	}

	edited := &scene.Element{ID: "note-text", Type: scene.TypeTextbox, Text: "new"}
	if err := r.OnLocalModify(edited); err != nil {
		t.Fatal(err)
	}

	sent := ft.sent(protocol.EventElementModified)
	if len(sent) != 1 {
		t.Fatalf("expected one element-modified, got %d", len(sent))
	}
	payload := decodeElement(t, sent[0])
	if payload.ID != "g1" {
		t.Fatalf("editing a nested child must broadcast the whole group, got %q", payload.ID)
	}
	var text string
	for _, child := range payload.Objects {
		if child.ID == "note-text" {
			text = child.Text
		}
	}
	if text != "new" {
		t.Fatalf("broadcast group carries stale child, text=%q", text)
	}

	// local document converged too
	local := r.Document().Find("g1")
	if local.Objects[1].Text != "new" {
		t.Fatalf("local group not updated, text=%q", local.Objects[1].Text)
	}
}

func TestDriftCorrectionIsNoopWhenConverged(t *testing.T) {
	r, ft, _ := newTestReconciler(t)
	r.OnLocalAdd(mustRect(t, "a"))
	r.OnLocalAdd(mustRect(t, "b"))

	before, err := r.Document().Encode()
	if err != nil {
		t.Fatal(err)
	}

	ft.inject(t, protocol.EventCanvasUpdate, protocol.RemoteCanvas{
		CanvasData: before,
		UserID:     "peer",
	})

	after, err := r.Document().Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("full sync of identical state changed the document:\n%s\n%s", before, after)
	}
}

func TestRemoteCanvasReplacesState(t *testing.T) {
	r, ft, _ := newTestReconciler(t)
	r.OnLocalAdd(mustRect(t, "stale"))

	peerDoc := scene.NewDocument()
	peerDoc.Upsert(mustRect(t, "fresh"))
	data, _ := peerDoc.Encode()

	ft.inject(t, protocol.EventCanvasUpdate, protocol.RemoteCanvas{CanvasData: data, UserID: "peer"})

	doc := r.Document()
	if doc.Find("stale") != nil || doc.Find("fresh") == nil {
		t.Fatalf("full update must replace wholesale, got %d elements", doc.Len())
	}
}

func TestRemoteClearWipesDocument(t *testing.T) {
	r, ft, _ := newTestReconciler(t)
	r.OnLocalAdd(mustRect(t, "a"))

	ft.inject(t, protocol.EventCanvasCleared, protocol.RemoteCleared{UserID: "peer"})

	if r.Document().Len() != 0 {
		t.Fatal("remote clear should wipe the document")
	}
}

func TestLocalObserverNoopDuringRemoteApply(t *testing.T) {
	r, ft, _ := newTestReconciler(t)

	// the redraw callback loops back into the local path, the way canvas
	// object events do
	r.OnChange(func() {
		r.OnLocalAdd(mustRect(t, "feedback"))
	})

	raw, _ := json.Marshal(mustRect(t, "from-peer"))
	ft.inject(t, protocol.EventElementAdded, protocol.RemoteElement{Element: raw, UserID: "peer"})

	if ft.count(protocol.EventElementAdded) != 0 {
		t.Fatal("observer feedback during a remote apply must not rebroadcast")
	}
	if r.Document().Find("feedback") != nil {
		t.Fatal("observer feedback must not mutate the document")
	}
}

func TestPanickingObserverDoesNotWedgeLocalEditing(t *testing.T) {
	r, ft, _ := newTestReconciler(t)

	r.OnChange(func() {
		panic("redraw failed")
	})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("observer panic should surface to the caller")
			}
		}()
		raw, _ := json.Marshal(mustRect(t, "from-peer"))
		ft.inject(t, protocol.EventElementAdded, protocol.RemoteElement{Element: raw, UserID: "peer"})
	}()

	// the remote apply must have released its lock and cleared its guard
	r.OnChange(nil)
	if err := r.OnLocalAdd(mustRect(t, "after-panic")); err != nil {
		t.Fatal(err)
	}
	if ft.count(protocol.EventElementAdded) != 1 {
		t.Fatal("local editing should work after an observer panic")
	}
	if r.Document().Find("after-panic") == nil {
		t.Fatal("local add after an observer panic should land in the document")
	}
}

func TestBurstTriggersSingleFullSync(t *testing.T) {
	r, ft, _ := newTestReconciler(t)

	for i := 0; i < 10; i++ {
		if err := r.OnLocalAdd(&scene.Element{Type: scene.TypeRect}); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	if got := ft.count(protocol.EventCanvasUpdate); got != 1 {
		t.Fatalf("a burst of edits must coalesce into one full sync, got %d", got)
	}
}

func TestUndoRestoresAndBroadcasts(t *testing.T) {
	r, ft, _ := newTestReconciler(t)
	r.OnLocalAdd(mustRect(t, "a"))
	r.OnLocalAdd(mustRect(t, "b"))

	if !r.Undo() {
		t.Fatal("undo should succeed")
	}
	doc := r.Document()
	if doc.Find("b") != nil || doc.Find("a") == nil {
		t.Fatalf("undo should remove the last element, len=%d", doc.Len())
	}

	sent := ft.sent(protocol.EventCanvasUpdate)
	if len(sent) == 0 {
		t.Fatal("undo must propagate as a full canvas update")
	}
	var msg protocol.BoardCanvas
	if err := json.Unmarshal(sent[len(sent)-1].Data, &msg); err != nil {
		t.Fatal(err)
	}
	restored, err := scene.Decode(msg.CanvasData)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Find("b") != nil {
		t.Fatal("broadcast snapshot still contains the undone element")
	}

	if !r.Redo() {
		t.Fatal("redo should succeed")
	}
	if r.Document().Find("b") == nil {
		t.Fatal("redo should restore the element")
	}
	if r.Redo() {
		t.Fatal("redo stack should be exhausted")
	}
}

func TestBootstrapSeedsHistoryBaseline(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	seed := scene.NewDocument()
	seed.Upsert(mustRect(t, "persisted"))
	data, _ := seed.Encode()

	if err := r.Bootstrap(data); err != nil {
		t.Fatal(err)
	}
	if r.Document().Find("persisted") == nil {
		t.Fatal("bootstrap should load the persisted document")
	}

	// one local change, then undo lands back on the baseline
	r.OnLocalAdd(mustRect(t, "extra"))
	if !r.Undo() {
		t.Fatal("undo to baseline should succeed")
	}
	doc := r.Document()
	if doc.Find("extra") != nil || doc.Find("persisted") == nil {
		t.Fatal("undo should restore the bootstrap baseline")
	}
}

func TestLocalMutationsScheduleSave(t *testing.T) {
	r, _, sink := newTestReconciler(t)

	r.OnLocalAdd(mustRect(t, "a"))
	r.OnLocalRemove("a")

	time.Sleep(100 * time.Millisecond)

	calls, last := sink.snapshot()
	if calls != 1 {
		t.Fatalf("expected one coalesced save, got %d", calls)
	}
	saved, err := scene.Decode(last)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Len() != 0 {
		t.Fatalf("save must carry the latest state, got %d elements", saved.Len())
	}
}
