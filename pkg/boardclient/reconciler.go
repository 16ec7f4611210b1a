package boardclient

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"

	"whiteboard-backend/pkg/protocol"
	"whiteboard-backend/pkg/scene"
)

// Reconciler owns the local scene document and keeps it converged with the
// rest of the room. Local mutations go out as minimal element payloads;
// remote ones are applied under the applyingRemote flag so observers fired
// by the apply do not rebroadcast. A debounced full canvas-update acts as
// the drift-correction backstop.
type Reconciler struct {
	mu             sync.Mutex
	doc            *scene.Document
	applyingRemote bool

	conn    Transport
	boardID string
	selfID  string

	history  *History
	saver    *Saver
	fullSync func(func())

	// onChange fires after any remote apply so the embedding canvas can
	// redraw. It runs while applyingRemote is set.
	onChange func()
}

// NewReconciler wires a reconciler to a connection and registers its remote
// handlers. selfID is the identity the gateway stamps on rebroadcasts; it is
// how the reconciler recognizes its own echoes.
func NewReconciler(conn Transport, boardID, selfID string, history *History, saver *Saver, fullSyncDebounce time.Duration) *Reconciler {
	if fullSyncDebounce <= 0 {
		fullSyncDebounce = 1500 * time.Millisecond
	}
	r := &Reconciler{
		doc:      scene.NewDocument(),
		conn:     conn,
		boardID:  boardID,
		selfID:   selfID,
		history:  history,
		saver:    saver,
		fullSync: debounce.New(fullSyncDebounce),
	}

	conn.On(protocol.EventElementAdded, r.handleRemoteUpsert)
	conn.On(protocol.EventElementModified, r.handleRemoteModify)
	conn.On(protocol.EventElementRemoved, r.handleRemoteRemove)
	conn.On(protocol.EventCanvasUpdate, r.handleRemoteCanvas)
	conn.On(protocol.EventCanvasCleared, r.handleRemoteCleared)

	return r
}

// OnChange registers the redraw callback. Local mutation observers that
// fire during it must call back into OnLocal*, which no-ops while a remote
// apply is in flight.
func (r *Reconciler) OnChange(f func()) {
	r.mu.Lock()
	r.onChange = f
	r.mu.Unlock()
}

// Bootstrap loads the initial document, usually the HTTP canvas payload,
// and records it as the undo baseline.
func (r *Reconciler) Bootstrap(data []byte) error {
	doc, err := scene.Decode(data)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.doc.Replace(doc)
	snapshot, err := r.doc.Encode()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	r.history.Reset()
	r.history.Record(snapshot)
	return nil
}

// Document returns a deep copy of the current scene.
func (r *Reconciler) Document() *scene.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Clone()
}

// OnLocalAdd records a locally created element and broadcasts it. Elements
// without an id get one assigned, and the assignment is visible to the
// caller so the canvas object and the wire payload agree.
func (r *Reconciler) OnLocalAdd(el *scene.Element) error {
	r.mu.Lock()
	if r.applyingRemote {
		r.mu.Unlock()
		return nil
	}
	if el.ID == "" {
		el.ID = uuid.New().String()
	}
	r.doc.Upsert(el.Clone())
	snapshot, err := r.doc.Encode()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := r.emitElement(protocol.EventElementAdded, el); err != nil {
		return err
	}
	r.afterLocalMutation(snapshot)
	return nil
}

// OnLocalModify records a local edit and broadcasts it. Editing an element
// nested inside a group broadcasts the whole group so peers never see a
// half-updated composite.
func (r *Reconciler) OnLocalModify(el *scene.Element) error {
	r.mu.Lock()
	if r.applyingRemote {
		r.mu.Unlock()
		return nil
	}
	if el.ID == "" {
		r.mu.Unlock()
		return nil
	}

	outgoing := el
	if parent := r.doc.FindParentGroup(el.ID); parent != nil {
		replaceNested(parent, el)
		outgoing = parent
	} else {
		r.doc.Upsert(el.Clone())
	}
	outgoing = outgoing.Clone()
	snapshot, err := r.doc.Encode()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := r.emitElement(protocol.EventElementModified, outgoing); err != nil {
		return err
	}
	r.afterLocalMutation(snapshot)
	return nil
}

// OnLocalRemove records a local deletion and broadcasts it.
func (r *Reconciler) OnLocalRemove(elementID string) error {
	r.mu.Lock()
	if r.applyingRemote {
		r.mu.Unlock()
		return nil
	}
	removed := r.doc.Remove(elementID)
	snapshot, err := r.doc.Encode()
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	if err := r.conn.Emit(protocol.EventElementRemoved, protocol.BoardElementRemoved{
		BoardID:   r.boardID,
		ElementID: elementID,
	}); err != nil {
		return err
	}
	r.afterLocalMutation(snapshot)
	return nil
}

// OnLocalClear wipes the document and broadcasts the clear.
func (r *Reconciler) OnLocalClear() error {
	r.mu.Lock()
	if r.applyingRemote {
		r.mu.Unlock()
		return nil
	}
	r.doc.Clear()
	snapshot, err := r.doc.Encode()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := r.conn.Emit(protocol.EventCanvasCleared, protocol.BoardCleared{BoardID: r.boardID}); err != nil {
		return err
	}
	r.afterLocalMutation(snapshot)
	return nil
}

// Undo restores the previous snapshot and propagates it as a full
// canvas-update, since element-level deltas cannot express a rollback.
func (r *Reconciler) Undo() bool {
	snapshot, ok := r.history.Undo()
	if !ok {
		return false
	}
	return r.restore(snapshot)
}

// Redo replays the most recently undone snapshot.
func (r *Reconciler) Redo() bool {
	snapshot, ok := r.history.Redo()
	if !ok {
		return false
	}
	return r.restore(snapshot)
}

func (r *Reconciler) restore(snapshot []byte) bool {
	doc, err := scene.Decode(snapshot)
	if err != nil {
		log.Printf("[BoardClient] Corrupt history snapshot: %v", err)
		return false
	}

	r.mu.Lock()
	r.doc.Replace(doc)
	r.mu.Unlock()

	if err := r.conn.Emit(protocol.EventCanvasUpdate, protocol.BoardCanvas{
		BoardID:    r.boardID,
		CanvasData: json.RawMessage(snapshot),
	}); err != nil {
		log.Printf("[BoardClient] Failed to broadcast history restore: %v", err)
	}
	r.saver.Schedule(snapshot)
	return true
}

func (r *Reconciler) emitElement(event string, el *scene.Element) error {
	raw, err := json.Marshal(el)
	if err != nil {
		return err
	}
	return r.conn.Emit(event, protocol.BoardElement{
		BoardID: r.boardID,
		Element: raw,
	})
}

// afterLocalMutation runs the shared tail of every local op: history entry,
// debounced save, and the debounced full-document broadcast that corrects
// any peer that missed a delta.
func (r *Reconciler) afterLocalMutation(snapshot []byte) {
	r.history.Record(snapshot)
	r.saver.Schedule(snapshot)
	r.fullSync(r.broadcastFullCanvas)
}

func (r *Reconciler) broadcastFullCanvas() {
	r.mu.Lock()
	data, err := r.doc.Encode()
	r.mu.Unlock()
	if err != nil {
		return
	}
	if err := r.conn.Emit(protocol.EventCanvasUpdate, protocol.BoardCanvas{
		BoardID:    r.boardID,
		CanvasData: json.RawMessage(data),
	}); err != nil {
		log.Printf("[BoardClient] Full sync broadcast failed: %v", err)
	}
}

func (r *Reconciler) handleRemoteUpsert(data json.RawMessage) {
	var msg protocol.RemoteElement
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[BoardClient] Malformed remote element: %v", err)
		return
	}
	if msg.UserID == r.selfID {
		return
	}

	el, err := scene.DecodeElement(msg.Element)
	if err != nil {
		log.Printf("[BoardClient] Dropping remote element: %v", err)
		return
	}
	r.applyRemote(func(doc *scene.Document) {
		doc.Upsert(el)
	})
}

func (r *Reconciler) handleRemoteModify(data json.RawMessage) {
	var msg protocol.RemoteElement
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[BoardClient] Malformed remote element: %v", err)
		return
	}
	if msg.UserID == r.selfID {
		return
	}

	el, err := scene.DecodeElement(msg.Element)
	if err != nil {
		log.Printf("[BoardClient] Dropping remote element: %v", err)
		return
	}

	// A modify for an element we never saw means the add was lost in
	// transit. Drop it; the next full canvas-update converges us.
	r.mu.Lock()
	known := r.doc.Find(el.ID) != nil
	r.mu.Unlock()
	if !known {
		log.Printf("[BoardClient] Ignoring modify for unknown element %s", el.ID)
		return
	}

	r.applyRemote(func(doc *scene.Document) {
		doc.Upsert(el)
	})
}

func (r *Reconciler) handleRemoteRemove(data json.RawMessage) {
	var msg protocol.RemoteElementRemoved
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.UserID == r.selfID || msg.ElementID == "" {
		return
	}
	r.applyRemote(func(doc *scene.Document) {
		doc.Remove(msg.ElementID)
	})
}

func (r *Reconciler) handleRemoteCanvas(data json.RawMessage) {
	var msg protocol.RemoteCanvas
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.UserID == r.selfID {
		return
	}

	doc, err := scene.Decode(msg.CanvasData)
	if err != nil {
		log.Printf("[BoardClient] Dropping remote canvas: %v", err)
		return
	}
	r.applyRemote(func(local *scene.Document) {
		local.Replace(doc)
	})
}

func (r *Reconciler) handleRemoteCleared(data json.RawMessage) {
	var msg protocol.RemoteCleared
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.UserID == r.selfID {
		return
	}
	r.applyRemote(func(doc *scene.Document) {
		doc.Clear()
	})
}

// applyRemote mutates the document with the applyingRemote flag held
// through the redraw callback. The flag clears on every path, panics
// included, so a bad callback cannot wedge local editing.
func (r *Reconciler) applyRemote(mutate func(*scene.Document)) {
	r.mu.Lock()
	r.applyingRemote = true
	defer func() {
		r.mu.Lock()
		r.applyingRemote = false
		r.mu.Unlock()
	}()

	onChange := r.onChange
	func() {
		defer r.mu.Unlock()
		mutate(r.doc)
	}()

	if onChange != nil {
		onChange()
	}
}

// replaceNested swaps the child with the matching id anywhere inside the
// group subtree. Returns false when the id is not found.
func replaceNested(group *scene.Element, child *scene.Element) bool {
	for i, obj := range group.Objects {
		if obj.ID == child.ID {
			group.Objects[i] = child.Clone()
			return true
		}
		if len(obj.Objects) > 0 && replaceNested(obj, child) {
			return true
		}
	}
	return false
}
