package geometry

import (
	"bytes"
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/agentic-research/rigkit/api"
)

// yUpToZUp rotates glTF's Y-up frame into the Z-up frame used by scenes.
var yUpToZUp = api.Matrix{
	{1, 0, 0, 0},
	{0, 0, -1, 0},
	{0, 1, 0, 0},
	{0, 0, 0, 1},
}

// DecodeGLTF decodes a binary (.glb) or self-contained JSON (.gltf) asset.
// Each triangle primitive becomes one mesh whose Transform carries the node
// hierarchy and the axis conversion.
func DecodeGLTF(data []byte) ([]api.Mesh, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode gltf: %w", err)
	}
	var out []api.Mesh
	visit := func(meshIdx int, name string, world api.Matrix) error {
		if meshIdx < 0 || meshIdx >= len(doc.Meshes) {
			return fmt.Errorf("mesh index %d out of range", meshIdx)
		}
		m := doc.Meshes[meshIdx]
		if name == "" {
			name = m.Name
		}
		for i, prim := range m.Primitives {
			mesh, ok, err := readPrimitive(doc, prim)
			if err != nil {
				return fmt.Errorf("mesh %q primitive %d: %w", m.Name, i, err)
			}
			if !ok {
				continue
			}
			mesh.Name = name
			mesh.Transform = yUpToZUp.Mul(world)
			out = append(out, mesh)
		}
		return nil
	}

	roots := sceneRoots(doc)
	if len(roots) == 0 {
		for i := range doc.Meshes {
			if err := visit(i, "", api.Identity()); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	var walk func(idx int, parent api.Matrix, depth int) error
	walk = func(idx int, parent api.Matrix, depth int) error {
		if idx < 0 || idx >= len(doc.Nodes) || depth > len(doc.Nodes) {
			return fmt.Errorf("node index %d invalid", idx)
		}
		n := doc.Nodes[idx]
		world := parent.Mul(nodeMatrix(n))
		if n.Mesh != nil {
			if err := visit(*n.Mesh, n.Name, world); err != nil {
				return err
			}
		}
		for _, c := range n.Children {
			if err := walk(c, world, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := walk(r, api.Identity(), 0); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func sceneRoots(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		s := 0
		if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
			s = *doc.Scene
		}
		return doc.Scenes[s].Nodes
	}
	// No scenes: every node that is nobody's child is a root.
	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func readPrimitive(doc *gltf.Document, prim *gltf.Primitive) (api.Mesh, bool, error) {
	if prim.Mode != gltf.PrimitiveTriangles {
		return api.Mesh{}, false, nil
	}
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return api.Mesh{}, false, nil
	}
	if posIdx < 0 || posIdx >= len(doc.Accessors) {
		return api.Mesh{}, false, fmt.Errorf("position accessor %d out of range", posIdx)
	}
	pos, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return api.Mesh{}, false, fmt.Errorf("read positions: %w", err)
	}
	mesh := api.Mesh{Positions: pos}
	if prim.Indices != nil {
		if *prim.Indices < 0 || *prim.Indices >= len(doc.Accessors) {
			return api.Mesh{}, false, fmt.Errorf("index accessor %d out of range", *prim.Indices)
		}
		mesh.Indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return api.Mesh{}, false, fmt.Errorf("read indices: %w", err)
		}
	} else {
		mesh.Indices = make([]uint32, len(pos))
		for i := range mesh.Indices {
			mesh.Indices[i] = uint32(i)
		}
	}
	return mesh, true, nil
}

var identity16 = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// nodeMatrix returns a node's local transform. An explicit matrix is column
// major; otherwise translation, rotation and scale are composed as T*R*S.
func nodeMatrix(n *gltf.Node) api.Matrix {
	if n.Matrix != identity16 && n.Matrix != [16]float64{} {
		var m api.Matrix
		for c := 0; c < 4; c++ {
			for r := 0; r < 4; r++ {
				m[r][c] = n.Matrix[c*4+r]
			}
		}
		return m
	}
	s := n.Scale
	if s == [3]float64{} {
		s = [3]float64{1, 1, 1}
	}
	q := n.Rotation
	if q == [4]float64{} {
		q = [4]float64{0, 0, 0, 1}
	}
	x, y, z, w := q[0], q[1], q[2], q[3]
	rot := api.Matrix{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w), 0},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w), 0},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y), 0},
		{0, 0, 0, 1},
	}
	scale := api.Identity()
	scale[0][0], scale[1][1], scale[2][2] = s[0], s[1], s[2]
	t := n.Translation
	return api.Translation(t[0], t[1], t[2]).Mul(rot).Mul(scale)
}
