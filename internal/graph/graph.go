// Package graph builds and serves the normalized scene graph of an MVR
// document: layers, groups and fixture-bearing objects linked by GUID, with
// resolved fixture types, DMX patch validation and lazily loaded geometry.
package graph

import (
	"fmt"
	"io"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archive"
	"github.com/agentic-research/rigkit/internal/geometry"
	"github.com/agentic-research/rigkit/internal/mvr"
)

// Graph is the read interface shared by SceneGraph and HotSwapGraph.
type Graph interface {
	GetNode(id uuid.UUID) (*api.Node, error)
	ListChildren(id uuid.UUID) ([]uuid.UUID, error)
	Roots() []uuid.UUID
	Nodes() []*api.Node
	Diagnostics() api.Diagnostics
}

// SceneGraph is the built scene. Nodes are owned by the graph; parents are
// referenced by GUID only.
type SceneGraph struct {
	mu    sync.RWMutex
	nodes map[uuid.UUID]*api.Node
	order []uuid.UUID // document order
	roots []uuid.UUID

	// Roaring bitmap indexes: class GUID / node kind → internal node IDs.
	classToNodes map[uuid.UUID]*roaring.Bitmap
	kindToNodes  map[api.NodeKind]*roaring.Bitmap
	nodeIntID    map[uuid.UUID]uint32
	intToNodeID  []uuid.UUID

	// resolved holds the loadable geometry of each node: symbols expanded,
	// fixture models appended, transforms relative to the node.
	resolved map[uuid.UUID][]api.GeometryRef
	types    []*api.FixtureType
	patch    *Patch
	diags    api.Diagnostics

	geomReported map[string]bool

	doc        *mvr.Document
	containers map[string]*archive.Container
	loader     *geometry.Loader
	closers    []io.Closer
	closed     bool
}

func newSceneGraph(doc *mvr.Document, loader *geometry.Loader, universeSize int) *SceneGraph {
	return &SceneGraph{
		nodes:        make(map[uuid.UUID]*api.Node),
		classToNodes: make(map[uuid.UUID]*roaring.Bitmap),
		kindToNodes:  make(map[api.NodeKind]*roaring.Bitmap),
		nodeIntID:    make(map[uuid.UUID]uint32),
		resolved:     make(map[uuid.UUID][]api.GeometryRef),
		patch:        NewPatch(universeSize),
		geomReported: make(map[string]bool),
		containers:   make(map[string]*archive.Container),
		doc:          doc,
		loader:       loader,
	}
}

// addRoot registers a top-level node.
func (g *SceneGraph) addRoot(n *api.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.insert(n)
	g.roots = append(g.roots, n.ID)
}

// addNode registers n and appends it to its parent's children.
func (g *SceneGraph) addNode(n *api.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.insert(n)
	if p, ok := g.nodes[n.ParentID]; ok {
		p.Children = append(p.Children, n.ID)
	}
}

// insert must be called with g.mu held.
func (g *SceneGraph) insert(n *api.Node) {
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)

	intID := uint32(len(g.intToNodeID))
	g.nodeIntID[n.ID] = intID
	g.intToNodeID = append(g.intToNodeID, n.ID)
	bitmapFor(g.kindToNodes, n.Kind).Add(intID)
	if n.Class != uuid.Nil {
		bitmapFor(g.classToNodes, n.Class).Add(intID)
	}
}

func bitmapFor[K comparable](m map[K]*roaring.Bitmap, k K) *roaring.Bitmap {
	bm, ok := m[k]
	if !ok {
		bm = roaring.New()
		m[k] = bm
	}
	return bm
}

// GetNode implements Graph.
func (g *SceneGraph) GetNode(id uuid.UUID) (*api.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, &api.Error{Kind: api.ErrNotFound, Op: "get node", Node: id, Err: fmt.Errorf("node %s", id)}
	}
	return n, nil
}

// ListChildren implements Graph.
func (g *SceneGraph) ListChildren(id uuid.UUID) ([]uuid.UUID, error) {
	n, err := g.GetNode(id)
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]uuid.UUID(nil), n.Children...), nil
}

// WorldTransform returns the node's transform composed with every ancestor's,
// root first.
func (g *SceneGraph) WorldTransform(id uuid.UUID) (api.Matrix, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return api.Matrix{}, &api.Error{Kind: api.ErrNotFound, Op: "world transform", Node: id, Err: fmt.Errorf("node %s", id)}
	}
	m := n.Transform
	for p := n.ParentID; p != uuid.Nil; {
		parent, ok := g.nodes[p]
		if !ok {
			break
		}
		m = parent.Transform.Mul(m)
		p = parent.ParentID
	}
	return m, nil
}

// Roots returns the top-level node GUIDs in document order.
func (g *SceneGraph) Roots() []uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]uuid.UUID(nil), g.roots...)
}

// Nodes returns every node in document order.
func (g *SceneGraph) Nodes() []*api.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*api.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *SceneGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Fixtures returns the nodes carrying fixture data, in document order.
func (g *SceneGraph) Fixtures() []*api.Node {
	var out []*api.Node
	for _, n := range g.Nodes() {
		if n.Fixture != nil {
			out = append(out, n)
		}
	}
	return out
}

// NodesOfKind returns the nodes of kind k in document order.
func (g *SceneGraph) NodesOfKind(k api.NodeKind) []*api.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fromBitmap(g.kindToNodes[k])
}

// NodesInClass returns the nodes assigned to class, in document order.
func (g *SceneGraph) NodesInClass(class uuid.UUID) []*api.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fromBitmap(g.classToNodes[class])
}

// fromBitmap must be called with g.mu held. Internal IDs are assigned in
// document order, so bitmap order is document order.
func (g *SceneGraph) fromBitmap(bm *roaring.Bitmap) []*api.Node {
	if bm == nil {
		return nil
	}
	out := make([]*api.Node, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, g.nodes[g.intToNodeID[it.Next()]])
	}
	return out
}

// FixtureTypes returns the distinct fixture types in order of first use.
// Placeholders for unresolved references are included.
func (g *SceneGraph) FixtureTypes() []*api.FixtureType {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*api.FixtureType(nil), g.types...)
}

// Geometry returns the loadable geometry references of node id.
func (g *SceneGraph) Geometry(id uuid.UUID) []api.GeometryRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolved[id]
}

// Patch returns the DMX patch index.
func (g *SceneGraph) Patch() *Patch { return g.patch }

// Diagnostics returns a snapshot of everything reported so far, including
// parse diagnostics and geometry failures seen during walks.
func (g *SceneGraph) Diagnostics() api.Diagnostics {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append(api.Diagnostics(nil), g.diags...)
}

// Source returns the parsed document the graph was built from.
func (g *SceneGraph) Source() *mvr.Document { return g.doc }

// LoadGeometry decodes ref through the session's payload cache. A failure
// returns an empty payload and a geometry error; the owning node stays valid.
func (g *SceneGraph) LoadGeometry(ref api.GeometryRef) (*geometry.Payload, error) {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		err := &api.Error{Kind: api.ErrGeometry, Op: "load geometry", Path: ref.File, Err: fmt.Errorf("scene graph closed")}
		return &geometry.Payload{Err: err}, err
	}
	return g.loader.Load(ref)
}

// Close purges the payload cache and releases the containers the graph
// owns. Nodes stay readable; geometry no longer loads.
func (g *SceneGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.loader.Purge()
	var err error
	for i := len(g.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, g.closers[i].Close())
	}
	g.closers = nil
	return err
}
