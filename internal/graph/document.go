package graph

import (
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archive"
	"github.com/agentic-research/rigkit/internal/mvr"
)

// Document rebuilds a scene descriptor from the graph: AUX data and header
// come from the parsed source, objects from the surviving nodes.
func (g *SceneGraph) Document() *mvr.Document {
	g.mu.RLock()
	defer g.mu.RUnlock()
	src := g.doc
	doc := &mvr.Document{
		Path:               archive.MVRDescriptor,
		Source:             src.Source,
		Version:            src.Version,
		Namespace:          src.Namespace,
		Provider:           src.Provider,
		ProviderVersion:    src.ProviderVersion,
		Classes:            src.Classes,
		Symdefs:            src.Symdefs,
		Positions:          src.Positions,
		MappingDefinitions: src.MappingDefinitions,
	}
	objs := make(map[uuid.UUID]*mvr.Object, len(g.nodes))
	for _, id := range g.order {
		n := g.nodes[id]
		o := &mvr.Object{
			ID:         n.ID,
			Kind:       n.Kind,
			Name:       n.Name,
			Transform:  n.Transform,
			Class:      n.Class,
			Geometries: n.Geometries,
			Fixture:    n.Fixture,
			Line:       n.Line,
		}
		if p, ok := objs[n.ParentID]; ok {
			o.Parent = p
			o.DeclaredParent = p.ID
			p.Children = append(p.Children, o)
		} else {
			doc.Roots = append(doc.Roots, o)
		}
		objs[id] = o
		doc.Objects = append(doc.Objects, o)
	}
	doc.Elements = len(doc.Objects)
	return doc
}

// Assets collects the archive entries a written scene needs: mesh files
// referenced by Geometry3D nodes and symdefs, and one .gdtf archive per
// resolved fixture type, named after the fixtures' GDTFSpec. Entries that
// cannot be read are skipped and returned as a combined error.
func (g *SceneGraph) Assets(r Resolver) (map[string][]byte, error) {
	out := map[string][]byte{}
	var errs []error

	files := map[string]bool{}
	collect := func(refs []api.GeometryRef) {
		for _, ref := range refs {
			if ref.Kind == api.GeometryFile && ref.Source == g.doc.Source {
				files[ref.File] = true
			}
		}
	}
	for _, n := range g.Nodes() {
		collect(n.Geometries)
	}
	for _, sd := range g.doc.Symdefs {
		collect(sd.Geometries)
	}
	names := make([]string, 0, len(files))
	for f := range files {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		data, err := g.readSceneEntry(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[f] = data
	}

	if r == nil {
		return out, errors.Join(errs...)
	}
	for _, n := range g.Fixtures() {
		fi := n.Fixture
		if !fi.Resolved() {
			continue
		}
		name := api.NormalizeSpec(fi.Spec) + ".gdtf"
		if _, done := out[name]; done {
			continue
		}
		c, ok := r.Container(fi.Type.Source)
		if !ok {
			continue
		}
		data, err := c.Raw()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[name] = data
	}
	return out, errors.Join(errs...)
}

func (g *SceneGraph) readSceneEntry(name string) ([]byte, error) {
	g.mu.RLock()
	src, ok := g.containers[g.doc.Source]
	g.mu.RUnlock()
	if !ok {
		return nil, api.Errorf(api.ErrNotFound, "collect assets", "scene container %q not available", g.doc.Source)
	}
	return src.ReadEntry(name)
}
