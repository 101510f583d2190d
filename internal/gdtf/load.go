package gdtf

import (
	"fmt"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archive"
)

// Load reads and parses the descriptor of an open GDTF container. Model
// entries are narrowed to the files actually present in the archive.
func Load(c *archive.Container, opts Options) (*api.FixtureType, error) {
	name, err := c.DescriptorFor(archive.FormatGDTF)
	if err != nil {
		return nil, err
	}
	buf, err := c.ReadEntry(name)
	if err != nil {
		return nil, err
	}
	if opts.Source == "" {
		opts.Source = c.Name()
	}
	if opts.Path == "" {
		opts.Path = c.Name() + "/" + name
	}
	ft, err := Parse(buf, opts)
	if err != nil {
		return nil, err
	}
	for _, m := range ft.Models {
		if !m.HasFile() {
			continue
		}
		var present []string
		for _, e := range m.Entries {
			if stored, ok := c.Lookup(e); ok {
				present = append(present, stored)
			}
		}
		if len(present) == 0 {
			ft.Diagnostics.Warn(&api.Error{Kind: api.ErrNotFound, Op: "find model file", Path: opts.Path,
				Err: fmt.Errorf("model %q: none of %v in archive", m.Name, m.Entries)})
		}
		m.Entries = present
	}
	return ft, nil
}

// maxReferenceDepth bounds GeometryReference expansion.
const maxReferenceDepth = 16

// ModelRefs flattens the geometry tree used by mode into geometry references
// placed relative to the fixture. An empty or unknown mode geometry expands
// every root. Models without a file become primitive references scaled to
// the model's box.
func ModelRefs(ft *api.FixtureType, mode *api.DMXMode) []api.GeometryRef {
	roots := ft.Geometries
	if mode != nil && mode.Geometry != "" {
		if g, ok := ft.Geometry(mode.Geometry); ok {
			roots = []*api.Geometry{g}
		}
	}
	var refs []api.GeometryRef
	for _, g := range roots {
		refs = appendRefs(refs, ft, g, api.Identity(), 0)
	}
	return refs
}

func appendRefs(refs []api.GeometryRef, ft *api.FixtureType, g *api.Geometry, parent api.Matrix, depth int) []api.GeometryRef {
	if depth > maxReferenceDepth {
		return refs
	}
	world := parent.Mul(g.Position)
	if g.Type == "GeometryReference" {
		if target, ok := ft.Geometry(g.Reference); ok {
			// The referenced subtree replaces the target's own placement.
			local := *target
			local.Position = api.Identity()
			return appendRefs(refs, ft, &local, world, depth+1)
		}
		return refs
	}
	if m, ok := ft.Models[g.Model]; ok {
		refs = append(refs, ModelRef(ft, m, world))
	}
	for _, c := range g.Children {
		refs = appendRefs(refs, ft, c, world, depth)
	}
	return refs
}

// ModelRef returns the geometry reference for one model at transform. A
// model that names a file always yields a file reference; when no candidate
// entry is present the first candidate is used so loading reports the miss.
func ModelRef(ft *api.FixtureType, m *api.Model, transform api.Matrix) api.GeometryRef {
	if m.HasFile() {
		file := ModelEntries(m.File)[0]
		if len(m.Entries) > 0 {
			file = m.Entries[0]
		}
		return api.GeometryRef{Kind: api.GeometryFile, Source: ft.Source, File: file, Transform: transform}
	}
	box := api.Identity()
	box[0][0], box[1][1], box[2][2] = m.Length, m.Width, m.Height
	return api.GeometryRef{Kind: api.GeometryModel, Source: ft.Source, Primitive: m.PrimitiveType,
		Transform: transform.Mul(box)}
}
