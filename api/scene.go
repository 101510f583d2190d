package api

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeKind discriminates scene graph nodes.
type NodeKind uint8

const (
	KindLayer NodeKind = iota + 1
	KindGroup
	KindFixture
	KindTruss
	KindSceneObject
	KindFocusPoint
	KindSupport
	KindVideoScreen
	KindProjector
)

var nodeKindNames = map[NodeKind]string{
	KindLayer:       "Layer",
	KindGroup:       "GroupObject",
	KindFixture:     "Fixture",
	KindTruss:       "Truss",
	KindSceneObject: "SceneObject",
	KindFocusPoint:  "FocusPoint",
	KindSupport:     "Support",
	KindVideoScreen: "VideoScreen",
	KindProjector:   "Projector",
}

// String returns the MVR element name for the kind.
func (k NodeKind) String() string {
	if s, ok := nodeKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("NodeKind(%d)", k)
}

// KindFromElement maps an MVR element name to a node kind.
func KindFromElement(name string) (NodeKind, bool) {
	for k, s := range nodeKindNames {
		if s == name {
			return k, true
		}
	}
	return 0, false
}

// CarriesFixture reports whether nodes of this kind can hold DMX patch data.
// MVR allows GDTF references on trusses, supports, screens and projectors too.
func (k NodeKind) CarriesFixture() bool {
	switch k {
	case KindFixture, KindTruss, KindSupport, KindVideoScreen, KindProjector, KindSceneObject:
		return true
	}
	return false
}

// GeometryKind discriminates geometry references.
type GeometryKind uint8

const (
	// GeometryFile references a mesh file inside the container (Geometry3D).
	GeometryFile GeometryKind = iota + 1
	// GeometrySymbol instantiates a symbol definition (Symbol).
	GeometrySymbol
	// GeometryModel references a GDTF model (file or primitive).
	GeometryModel
)

func (k GeometryKind) String() string {
	switch k {
	case GeometryFile:
		return "Geometry3D"
	case GeometrySymbol:
		return "Symbol"
	case GeometryModel:
		return "Model"
	}
	return "unknown"
}

// GeometryRef points at a geometry payload. It is a reference only; payload
// bytes are decoded lazily by the geometry loader.
type GeometryRef struct {
	Kind      GeometryKind
	ID        uuid.UUID // Symbol instance GUID, if any
	Source    string    // container the entry lives in
	File      string    // archive entry name
	Symdef    uuid.UUID // GeometrySymbol only
	Primitive string    // GeometryModel with no file
	Transform Matrix
}

// Node is one element of the normalized scene graph.
type Node struct {
	ID         uuid.UUID
	Kind       NodeKind
	Name       string
	ParentID   uuid.UUID // zero for roots; lookup only
	Children   []uuid.UUID
	Transform  Matrix // local, translation in meters
	Class      uuid.UUID
	Geometries []GeometryRef
	Fixture    *FixtureInfo
	Line       int // descriptor line the node was declared on
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.ParentID == uuid.Nil }

// Address is one DMX patch point.
type Address struct {
	Break    int
	Universe int // 1-based
	Channel  int // 1-based within the universe
}

// Absolute returns the 1-based absolute address for the given universe size.
func (a Address) Absolute(universeSize int) int {
	return (a.Universe-1)*universeSize + a.Channel
}

func (a Address) String() string {
	return fmt.Sprintf("%d.%03d", a.Universe, a.Channel)
}

// FixtureRef identifies the fixture type a node needs.
type FixtureRef struct {
	Spec string    // GDTF file name, with or without .gdtf
	ID   uuid.UUID // FixtureTypeID when known
}

// Key is the resolver cache key for the reference.
func (r FixtureRef) Key() string {
	if r.ID != uuid.Nil {
		return "id:" + r.ID.String()
	}
	return "spec:" + NormalizeSpec(r.Spec)
}

// IsZero reports whether the reference names nothing.
func (r FixtureRef) IsZero() bool { return r.Spec == "" && r.ID == uuid.Nil }

// FixtureInfo is the fixture-specific part of a node.
type FixtureInfo struct {
	Spec             string
	Mode             string // requested mode, "" for the type's first mode
	Type             *FixtureType
	ModeResolved     string // mode actually used
	Addresses        []Address
	FixtureID        string
	FixtureIDNumeric int
	UnitNumber       int
	CustomID         int
	CustomIDType     int
	Focus            uuid.UUID
	Position         uuid.UUID
	Color            *CIEColor
	CustomCommands   []string
	CustomAttributes map[string]string
}

// Ref returns the fixture-type reference for resolution.
func (f *FixtureInfo) Ref() FixtureRef { return FixtureRef{Spec: f.Spec} }

// Resolved reports whether the fixture points at a real (non-placeholder) type.
func (f *FixtureInfo) Resolved() bool {
	return f.Type != nil && !f.Type.IsPlaceholder()
}
