// Package scene holds the canvas document model: an ordered collection of
// drawable elements, the unit of persistence and of full-state sync.
package scene

import (
	"encoding/json"
	"errors"
)

// Element kinds form a closed set. Composite kinds (sticky notes, groups)
// nest child elements.
const (
	TypePath       = "path"
	TypeRect       = "rect"
	TypeEllipse    = "ellipse"
	TypeLine       = "line"
	TypeTextbox    = "textbox"
	TypeStickyNote = "sticky-note"
	TypeGroup      = "group"
)

var ErrUnknownType = errors.New("scene: unknown element type")

// KnownType reports whether t belongs to the closed element kind set.
func KnownType(t string) bool {
	switch t {
	case TypePath, TypeRect, TypeEllipse, TypeLine, TypeTextbox, TypeStickyNote, TypeGroup:
		return true
	}
	return false
}

// Element is one drawable object. Field names follow the serialized canvas
// format so documents round-trip against the web client unchanged. Only the
// minimal field subset travels over the wire, never framework internals.
type Element struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// Geometry
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	ScaleX float64 `json:"scaleX,omitempty"`
	ScaleY float64 `json:"scaleY,omitempty"`
	Angle  float64 `json:"angle,omitempty"`

	// Kind-specific shape parameters
	Path   [][]any     `json:"path,omitempty"`   // freehand stroke segments
	Points []Point     `json:"points,omitempty"` // polyline points
	Rx     float64     `json:"rx,omitempty"`
	Ry     float64     `json:"ry,omitempty"`
	Text   string      `json:"text,omitempty"`

	// Style
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Fill        string  `json:"fill,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	FontSize    float64 `json:"fontSize,omitempty"`
	FontFamily  string  `json:"fontFamily,omitempty"`

	// Children of composite kinds. The parent is the atomic unit of
	// modification: children are never synced individually.
	Objects []*Element `json:"objects,omitempty"`
}

// Point is a single vertex of a polyline element.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clone returns a deep copy of the element.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Path != nil {
		cp.Path = make([][]any, len(e.Path))
		for i, seg := range e.Path {
			cp.Path[i] = append([]any(nil), seg...)
		}
	}
	if e.Points != nil {
		cp.Points = append([]Point(nil), e.Points...)
	}
	if e.Objects != nil {
		cp.Objects = make([]*Element, len(e.Objects))
		for i, child := range e.Objects {
			cp.Objects[i] = child.Clone()
		}
	}
	return &cp
}

// Document is one board's canvas state: an ordered element sequence with no
// version counter. Convergence relies on idempotent element replacement.
type Document struct {
	Version string     `json:"version"`
	Objects []*Element `json:"objects"`
}

const documentVersion = "1.0"

// NewDocument returns an empty scene document.
func NewDocument() *Document {
	return &Document{Version: documentVersion, Objects: []*Element{}}
}

// Decode parses a serialized scene document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Version == "" {
		doc.Version = documentVersion
	}
	if doc.Objects == nil {
		doc.Objects = []*Element{}
	}
	return &doc, nil
}

// DecodeElement parses a single wire element and rejects unknown kinds.
func DecodeElement(data []byte) (*Element, error) {
	var el Element
	if err := json.Unmarshal(data, &el); err != nil {
		return nil, err
	}
	if !KnownType(el.Type) {
		return nil, ErrUnknownType
	}
	return &el, nil
}

// Encode serializes the document.
func (d *Document) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// Len returns the element count.
func (d *Document) Len() int {
	return len(d.Objects)
}

// Find returns the element with the given id, or nil.
func (d *Document) Find(id string) *Element {
	for _, el := range d.Objects {
		if el.ID == id {
			return el
		}
	}
	return nil
}

// FindParentGroup returns the top-level element containing childID as a
// nested child, or nil when childID is not nested. The whole group is the
// payload whenever a nested child changes.
func (d *Document) FindParentGroup(childID string) *Element {
	for _, el := range d.Objects {
		if len(el.Objects) == 0 {
			continue
		}
		if containsChild(el, childID) {
			return el
		}
	}
	return nil
}

func containsChild(el *Element, id string) bool {
	for _, child := range el.Objects {
		if child.ID == id {
			return true
		}
		if containsChild(child, id) {
			return true
		}
	}
	return false
}

// Upsert inserts the element or replaces the existing one with the same id.
// Replacement is idempotent: applying the same element twice leaves the
// document unchanged.
func (d *Document) Upsert(el *Element) {
	for i, existing := range d.Objects {
		if existing.ID == el.ID {
			d.Objects[i] = el
			return
		}
	}
	d.Objects = append(d.Objects, el)
}

// Remove deletes the element with the given id. Removing an absent id is a
// no-op, so duplicate relay deliveries are harmless.
func (d *Document) Remove(id string) bool {
	for i, el := range d.Objects {
		if el.ID == id {
			d.Objects = append(d.Objects[:i], d.Objects[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every element.
func (d *Document) Clear() {
	d.Objects = d.Objects[:0]
}

// Replace swaps in the full state of another document (drift correction,
// undo/redo propagation).
func (d *Document) Replace(other *Document) {
	d.Version = other.Version
	d.Objects = make([]*Element, len(other.Objects))
	copy(d.Objects, other.Objects)
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	cp := &Document{Version: d.Version, Objects: make([]*Element, len(d.Objects))}
	for i, el := range d.Objects {
		cp.Objects[i] = el.Clone()
	}
	return cp
}
