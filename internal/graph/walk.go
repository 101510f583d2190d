package graph

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/geometry"
)

// Walk replays the graph onto c depth-first in document order, parents
// before children. Layers map to CreateLayer, nodes carrying fixture data to
// CreateFixture and every other object to CreateGroup. Each decoded mesh is
// passed to CreateMesh with its transform relative to the node. Geometry
// failures are recorded as diagnostics and do not stop the walk; a consumer
// error or context cancellation does.
func (g *SceneGraph) Walk(ctx context.Context, c api.Consumer) error {
	for _, id := range g.Roots() {
		if err := g.walk(ctx, c, id, nil); err != nil {
			return err
		}
	}
	return nil
}

func (g *SceneGraph) walk(ctx context.Context, c api.Consumer, id uuid.UUID, parent *api.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := g.GetNode(id)
	if err != nil {
		return err
	}
	switch {
	case n.Kind == api.KindLayer && parent == nil:
		err = c.CreateLayer(ctx, n)
	case n.Fixture != nil:
		err = c.CreateFixture(ctx, n, parent)
	default:
		err = c.CreateGroup(ctx, n, parent)
	}
	if err != nil {
		return err
	}
	for _, ref := range g.Geometry(id) {
		p, err := g.LoadGeometry(ref)
		if err != nil {
			g.reportGeometry(n, ref, err)
			continue
		}
		for i := range p.Meshes {
			m := p.Meshes[i]
			m.Transform = ref.Transform.Mul(m.Transform)
			if err := c.CreateMesh(ctx, n, ref, &m); err != nil {
				return err
			}
		}
	}
	children, err := g.ListChildren(id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := g.walk(ctx, c, child, n); err != nil {
			return err
		}
	}
	return nil
}

// reportGeometry records a load failure once per node and payload.
func (g *SceneGraph) reportGeometry(n *api.Node, ref api.GeometryRef, err error) {
	key := n.ID.String() + "|" + geometry.KeyOf(ref).String()
	e, ok := err.(*api.Error)
	if !ok {
		e = api.NewError(api.ErrGeometry, "load geometry", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.geomReported[key] {
		return
	}
	g.geomReported[key] = true
	g.diags.Warn(e.For(n.ID))
}

// Preload decodes every geometry reference of the graph with up to workers
// concurrent loads. Failures are recorded as diagnostics.
func (g *SceneGraph) Preload(ctx context.Context, workers int) error {
	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for _, n := range g.Nodes() {
		for _, ref := range g.Geometry(n.ID) {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, err := g.LoadGeometry(ref); err != nil {
					g.reportGeometry(n, ref, err)
				}
				return nil
			})
		}
	}
	return eg.Wait()
}
