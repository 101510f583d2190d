// Package export renders a built scene into query and storage formats: a
// JSON document tree for JSONPath queries and a SQLite scene index.
package export

import (
	"github.com/google/uuid"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/graph"
)

// Tree converts the scene into plain maps and slices. Integers are int64 and
// reals float64 so JSONPath filters compare them without conversion.
//
// Top-level keys: scene, layers (nested), fixtures (flat, document order),
// fixture_types, classes and diagnostics.
func Tree(g *graph.SceneGraph) map[string]any {
	t := treeBuilder{g: g, size: g.Patch().UniverseSize()}

	layers := make([]any, 0, len(g.Roots()))
	for _, id := range g.Roots() {
		if n, err := g.GetNode(id); err == nil {
			layers = append(layers, t.node(n, api.Identity()))
		}
	}

	fixtures := make([]any, 0)
	for _, n := range g.Fixtures() {
		m := t.base(n)
		if world, err := g.WorldTransform(n.ID); err == nil {
			m["world_position"] = vec(world.Translate())
		}
		t.addFixture(m, n.Fixture)
		fixtures = append(fixtures, m)
	}

	root := map[string]any{
		"scene":         t.scene(),
		"layers":        layers,
		"fixtures":      fixtures,
		"fixture_types": t.fixtureTypes(),
		"classes":       t.classes(),
		"diagnostics":   Diagnostics(g.Diagnostics()),
	}
	return root
}

type treeBuilder struct {
	g    *graph.SceneGraph
	size int
}

func (t treeBuilder) scene() map[string]any {
	m := map[string]any{
		"universe_size": int64(t.size),
		"nodes":         int64(t.g.Len()),
	}
	if doc := t.g.Source(); doc != nil {
		m["source"] = doc.Source
		m["version"] = doc.Version.String()
		m["provider"] = doc.Provider
		m["provider_version"] = doc.ProviderVersion
	}
	return m
}

func (t treeBuilder) base(n *api.Node) map[string]any {
	m := map[string]any{
		"id":       n.ID.String(),
		"kind":     n.Kind.String(),
		"name":     n.Name,
		"position": vec(n.Transform.Translate()),
		"line":     int64(n.Line),
	}
	if n.ParentID != uuid.Nil {
		m["parent"] = n.ParentID.String()
	}
	if n.Class != uuid.Nil {
		m["class"] = n.Class.String()
	}
	return m
}

func (t treeBuilder) node(n *api.Node, parent api.Matrix) map[string]any {
	world := parent.Mul(n.Transform)
	m := t.base(n)
	m["world_position"] = vec(world.Translate())

	if geoms := t.g.Geometry(n.ID); len(geoms) > 0 {
		refs := make([]any, 0, len(geoms))
		for _, ref := range geoms {
			refs = append(refs, geometryRef(ref))
		}
		m["geometries"] = refs
	}
	if n.Fixture != nil {
		t.addFixture(m, n.Fixture)
	}

	children := make([]any, 0, len(n.Children))
	for _, id := range n.Children {
		if c, err := t.g.GetNode(id); err == nil {
			children = append(children, t.node(c, world))
		}
	}
	m["children"] = children
	return m
}

func (t treeBuilder) addFixture(m map[string]any, f *api.FixtureInfo) {
	if f == nil {
		return
	}
	addrs := make([]any, 0, len(f.Addresses))
	for _, a := range f.Addresses {
		addrs = append(addrs, map[string]any{
			"break":    int64(a.Break),
			"universe": int64(a.Universe),
			"channel":  int64(a.Channel),
			"absolute": int64(a.Absolute(t.size)),
			"text":     a.String(),
		})
	}
	m["spec"] = f.Spec
	m["mode"] = f.ModeResolved
	m["requested_mode"] = f.Mode
	m["fixture_id"] = f.FixtureID
	m["unit_number"] = int64(f.UnitNumber)
	m["addresses"] = addrs
	m["resolved"] = f.Resolved()
	if f.Type != nil {
		m["fixture_type"] = f.Type.Name
	}
	if f.Focus != uuid.Nil {
		m["focus"] = f.Focus.String()
	}
	if f.Position != uuid.Nil {
		m["position_ref"] = f.Position.String()
	}
	if f.Color != nil {
		m["color"] = f.Color.String()
	}
}

func (t treeBuilder) fixtureTypes() []any {
	types := t.g.FixtureTypes()
	out := make([]any, 0, len(types))
	for _, ft := range types {
		modes := make([]any, 0, len(ft.Modes))
		for _, mode := range ft.Modes {
			modes = append(modes, map[string]any{
				"name":      mode.Name,
				"footprint": int64(mode.Footprint(1)),
				"channels":  int64(len(mode.Channels)),
			})
		}
		m := map[string]any{
			"name":         ft.Name,
			"manufacturer": ft.Manufacturer,
			"source":       ft.Source,
			"placeholder":  ft.IsPlaceholder(),
			"modes":        modes,
		}
		if ft.ID != uuid.Nil {
			m["id"] = ft.ID.String()
		}
		if !ft.DataVersion.IsZero() {
			m["data_version"] = ft.DataVersion.String()
		}
		out = append(out, m)
	}
	return out
}

func (t treeBuilder) classes() []any {
	out := make([]any, 0)
	doc := t.g.Source()
	if doc == nil {
		return out
	}
	for _, c := range doc.Classes {
		out = append(out, map[string]any{"id": c.ID.String(), "name": c.Name})
	}
	return out
}

// Diagnostics converts diagnostics into query form.
func Diagnostics(diags api.Diagnostics) []any {
	out := make([]any, 0, len(diags))
	for _, d := range diags {
		m := map[string]any{
			"severity": d.Severity.String(),
			"kind":     api.KindName(d.Kind),
			"path":     d.Path,
			"line":     int64(d.Line),
			"message":  d.Message,
		}
		if d.Node != uuid.Nil {
			m["node"] = d.Node.String()
		}
		out = append(out, m)
	}
	return out
}

func geometryRef(ref api.GeometryRef) map[string]any {
	m := map[string]any{
		"kind":     ref.Kind.String(),
		"position": vec(ref.Transform.Translate()),
	}
	if ref.File != "" {
		m["file"] = ref.File
		m["source"] = ref.Source
	}
	if ref.Primitive != "" {
		m["primitive"] = ref.Primitive
	}
	if ref.Symdef != uuid.Nil {
		m["symdef"] = ref.Symdef.String()
	}
	return m
}

func vec(v [3]float64) []any {
	return []any{v[0], v[1], v[2]}
}
