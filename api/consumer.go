package api

import "context"

// Mesh is decoded triangle geometry in meters.
type Mesh struct {
	Name      string
	Positions [][3]float32
	Indices   []uint32
	// Transform places the mesh relative to its owning node.
	Transform Matrix
}

// Triangles returns the number of indexed triangles.
func (m *Mesh) Triangles() int { return len(m.Indices) / 3 }

// Consumer maps scene graph nodes onto a host application's objects.
// Parents are always created before their children.
type Consumer interface {
	CreateLayer(ctx context.Context, layer *Node) error
	CreateGroup(ctx context.Context, group, parent *Node) error
	CreateFixture(ctx context.Context, fixture, parent *Node) error
	CreateMesh(ctx context.Context, owner *Node, ref GeometryRef, mesh *Mesh) error
}

// BaseConsumer implements Consumer with no-ops; embed it to override a subset.
type BaseConsumer struct{}

func (BaseConsumer) CreateLayer(context.Context, *Node) error        { return nil }
func (BaseConsumer) CreateGroup(context.Context, *Node, *Node) error { return nil }
func (BaseConsumer) CreateFixture(context.Context, *Node, *Node) error {
	return nil
}
func (BaseConsumer) CreateMesh(context.Context, *Node, GeometryRef, *Mesh) error {
	return nil
}
