// Package mvr parses and writes the GeneralSceneDescription.xml descriptor of
// "My Virtual Rig" scene archives.
package mvr

import (
	"github.com/google/uuid"

	"github.com/agentic-research/rigkit/api"
)

// RootElement is the expected descriptor root.
const RootElement = "GeneralSceneDescription"

// Document is a parsed scene descriptor.
type Document struct {
	Path            string // descriptor entry name
	Source          string // container name, stamped on geometry references
	Version         api.Version
	Namespace       string
	Provider        string
	ProviderVersion string

	Classes            []Class
	Symdefs            []*Symdef
	Positions          []Position
	MappingDefinitions []MappingDefinition

	// Roots are the surviving top-level objects, normally layers.
	Roots []*Object
	// Objects lists every surviving object in document order.
	Objects []*Object
	// Elements counts the object elements encountered, parseable or not.
	Elements int

	Diagnostics api.Diagnostics
}

// Symdef looks up a symbol definition by GUID.
func (d *Document) Symdef(id uuid.UUID) (*Symdef, bool) {
	for _, s := range d.Symdefs {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// FixtureRefs returns the distinct fixture-type references in document order.
func (d *Document) FixtureRefs() []api.FixtureRef {
	seen := map[string]bool{}
	var refs []api.FixtureRef
	for _, o := range d.Objects {
		if o.Fixture == nil || o.Fixture.Spec == "" {
			continue
		}
		ref := o.Fixture.Ref()
		if seen[ref.Key()] {
			continue
		}
		seen[ref.Key()] = true
		refs = append(refs, ref)
	}
	return refs
}

// Object is one scene element. Parent is the nearest surviving ancestor;
// DeclaredParent is the GUID of the enclosing element as written, which
// differs from Parent when the enclosing element was skipped.
type Object struct {
	ID             uuid.UUID
	Kind           api.NodeKind
	Name           string
	Parent         *Object
	DeclaredParent uuid.UUID
	Children       []*Object
	Transform      api.Matrix
	Class          uuid.UUID
	Geometries     []api.GeometryRef
	Fixture        *api.FixtureInfo
	Line           int
}

// Class is an AUXData class.
type Class struct {
	ID   uuid.UUID
	Name string
}

// Position is an AUXData position.
type Position struct {
	ID   uuid.UUID
	Name string
}

// MappingDefinition describes a video mapping source.
type MappingDefinition struct {
	ID            uuid.UUID
	Name          string
	SizeX         int
	SizeY         int
	Source        string
	ScaleHandling string
}

// Symdef is a reusable geometry definition instantiated by Symbol references.
type Symdef struct {
	ID         uuid.UUID
	Name       string
	Geometries []api.GeometryRef
}
