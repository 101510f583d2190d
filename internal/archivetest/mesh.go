package archivetest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
)

// Triangle is a single triangle in the XY plane, one unit on a side.
var Triangle = [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}

// TDS encodes one named object as a minimal 3D Studio file.
func TDS(name string, positions [][3]float32, faces [][3]uint16) []byte {
	var verts bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&verts, le, uint16(len(positions)))
	for _, p := range positions {
		for _, c := range p {
			_ = binary.Write(&verts, le, math.Float32bits(c))
		}
	}
	var fl bytes.Buffer
	_ = binary.Write(&fl, le, uint16(len(faces)))
	for _, f := range faces {
		_ = binary.Write(&fl, le, [4]uint16{f[0], f[1], f[2], 0})
	}
	mesh := chunk(0x4100, chunk(0x4110, verts.Bytes()), chunk(0x4120, fl.Bytes()))
	obj := chunk(0x4000, append([]byte(name), 0), mesh)
	return chunk(0x4D4D, chunk(0x0002, []byte{3, 0, 0, 0}), chunk(0x3D3D, obj))
}

func chunk(id uint16, parts ...[]byte) []byte {
	n := 6
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 6, n)
	binary.LittleEndian.PutUint16(out, id)
	binary.LittleEndian.PutUint32(out[2:], uint32(n))
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// GLB encodes one mesh as a binary glTF placed by a node translation.
func GLB(name string, positions [][3]float32, indices []uint32, translation [3]float64) []byte {
	var bin bytes.Buffer
	le := binary.LittleEndian
	for _, p := range positions {
		_ = binary.Write(&bin, le, p)
	}
	posLen := bin.Len()
	for _, i := range indices {
		_ = binary.Write(&bin, le, i)
	}
	minP, maxP := bounds(positions)
	doc := map[string]any{
		"asset":   map[string]any{"version": "2.0"},
		"buffers": []any{map[string]any{"byteLength": bin.Len()}},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": posLen},
			map[string]any{"buffer": 0, "byteOffset": posLen, "byteLength": bin.Len() - posLen},
		},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": 5126, "count": len(positions), "type": "VEC3", "min": minP, "max": maxP},
			map[string]any{"bufferView": 1, "componentType": 5125, "count": len(indices), "type": "SCALAR"},
		},
		"meshes": []any{map[string]any{
			"name":       name,
			"primitives": []any{map[string]any{"attributes": map[string]any{"POSITION": 0}, "indices": 1}},
		}},
		"nodes":  []any{map[string]any{"name": name, "mesh": 0, "translation": translation}},
		"scenes": []any{map[string]any{"nodes": []int{0}}},
		"scene":  0,
	}
	js, _ := json.Marshal(doc)
	for len(js)%4 != 0 {
		js = append(js, ' ')
	}
	payload := bin.Bytes()
	for len(payload)%4 != 0 {
		payload = append(payload, 0)
	}

	var out bytes.Buffer
	total := 12 + 8 + len(js) + 8 + len(payload)
	out.WriteString("glTF")
	_ = binary.Write(&out, le, uint32(2))
	_ = binary.Write(&out, le, uint32(total))
	_ = binary.Write(&out, le, uint32(len(js)))
	_ = binary.Write(&out, le, uint32(0x4E4F534A))
	out.Write(js)
	_ = binary.Write(&out, le, uint32(len(payload)))
	_ = binary.Write(&out, le, uint32(0x004E4942))
	out.Write(payload)
	return out.Bytes()
}

func bounds(ps [][3]float32) (lo, hi [3]float32) {
	for i, p := range ps {
		for k := 0; k < 3; k++ {
			if i == 0 || p[k] < lo[k] {
				lo[k] = p[k]
			}
			if i == 0 || p[k] > hi[k] {
				hi[k] = p[k]
			}
		}
	}
	return lo, hi
}
