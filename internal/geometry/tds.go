package geometry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/agentic-research/rigkit/api"
)

// 3DS chunk identifiers.
const (
	chunkMain      = 0x4D4D
	chunkEditor    = 0x3D3D
	chunkObject    = 0x4000
	chunkTriMesh   = 0x4100
	chunkVertices  = 0x4110
	chunkFaces     = 0x4120
	chunkLocalAxes = 0x4160
)

// MetersPerUnit3DS scales 3DS coordinates, stored in millimeters.
const MetersPerUnit3DS = 0.001

// Decode3DS extracts the triangle meshes of a 3D Studio file.
func Decode3DS(data []byte) ([]api.Mesh, error) {
	id, body, _, err := readChunk(data)
	if err != nil {
		return nil, err
	}
	if id != chunkMain {
		return nil, fmt.Errorf("3ds: main chunk 0x%04X, want 0x%04X", id, chunkMain)
	}
	var meshes []api.Mesh
	err = eachChunk(body, func(id uint16, b []byte) error {
		if id != chunkEditor {
			return nil
		}
		return eachChunk(b, func(id uint16, b []byte) error {
			if id != chunkObject {
				return nil
			}
			name, rest, err := cString(b)
			if err != nil {
				return err
			}
			return eachChunk(rest, func(id uint16, b []byte) error {
				if id != chunkTriMesh {
					return nil
				}
				m, err := triMesh(b)
				if err != nil {
					return fmt.Errorf("object %q: %w", name, err)
				}
				m.Name = name
				meshes = append(meshes, m)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return meshes, nil
}

func readChunk(b []byte) (id uint16, body, rest []byte, err error) {
	if len(b) < 6 {
		return 0, nil, nil, fmt.Errorf("3ds: truncated chunk header")
	}
	id = binary.LittleEndian.Uint16(b)
	n := binary.LittleEndian.Uint32(b[2:])
	if n < 6 || uint64(n) > uint64(len(b)) {
		return 0, nil, nil, fmt.Errorf("3ds: chunk 0x%04X length %d exceeds %d bytes", id, n, len(b))
	}
	return id, b[6:n], b[n:], nil
}

func eachChunk(b []byte, fn func(id uint16, body []byte) error) error {
	for len(b) > 0 {
		id, body, rest, err := readChunk(b)
		if err != nil {
			return err
		}
		if err := fn(id, body); err != nil {
			return err
		}
		b = rest
	}
	return nil
}

func cString(b []byte) (string, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, fmt.Errorf("3ds: unterminated object name")
	}
	return string(b[:i]), b[i+1:], nil
}

func triMesh(b []byte) (api.Mesh, error) {
	m := api.Mesh{Transform: api.Scale(MetersPerUnit3DS)}
	err := eachChunk(b, func(id uint16, b []byte) error {
		switch id {
		case chunkVertices:
			if len(b) < 2 {
				return fmt.Errorf("3ds: truncated vertex list")
			}
			n := int(binary.LittleEndian.Uint16(b))
			if len(b) < 2+n*12 {
				return fmt.Errorf("3ds: vertex list wants %d vertices, have %d bytes", n, len(b)-2)
			}
			m.Positions = make([][3]float32, n)
			for i := 0; i < n; i++ {
				off := 2 + i*12
				for k := 0; k < 3; k++ {
					m.Positions[i][k] = math.Float32frombits(binary.LittleEndian.Uint32(b[off+k*4:]))
				}
			}
		case chunkFaces:
			if len(b) < 2 {
				return fmt.Errorf("3ds: truncated face list")
			}
			n := int(binary.LittleEndian.Uint16(b))
			if len(b) < 2+n*8 {
				return fmt.Errorf("3ds: face list wants %d faces, have %d bytes", n, len(b)-2)
			}
			m.Indices = make([]uint32, 0, n*3)
			for i := 0; i < n; i++ {
				off := 2 + i*8
				for k := 0; k < 3; k++ {
					m.Indices = append(m.Indices, uint32(binary.LittleEndian.Uint16(b[off+k*2:])))
				}
			}
		case chunkLocalAxes:
			// Vertices are stored in world space; the local frame is informational.
		}
		return nil
	})
	if err != nil {
		return api.Mesh{}, err
	}
	for _, idx := range m.Indices {
		if int(idx) >= len(m.Positions) {
			return api.Mesh{}, fmt.Errorf("3ds: face index %d exceeds %d vertices", idx, len(m.Positions))
		}
	}
	return m, nil
}
