package geometry

import (
	"math"

	"github.com/agentic-research/rigkit/api"
)

// Primitive returns a unit-sized mesh centered on the origin for a GDTF
// primitive type. Callers scale it to the model's box. Types without a
// dedicated shape (Base, Yoke, Head, Conventional, Pigtail, ...) are boxes.
func Primitive(kind string) api.Mesh {
	var m api.Mesh
	switch kind {
	case "Plane":
		m = plane()
	case "Cylinder":
		m = cylinder(16)
	case "Sphere":
		m = sphere(8, 16)
	default:
		m = box()
	}
	m.Name = kind
	m.Transform = api.Identity()
	return m
}

func box() api.Mesh {
	var m api.Mesh
	for i := 0; i < 8; i++ {
		m.Positions = append(m.Positions, [3]float32{
			float32(i&1) - 0.5,
			float32(i>>1&1) - 0.5,
			float32(i>>2&1) - 0.5,
		})
	}
	faces := [6][4]uint32{
		{0, 2, 3, 1}, {4, 5, 7, 6}, // -z, +z
		{0, 1, 5, 4}, {2, 6, 7, 3}, // -y, +y
		{0, 4, 6, 2}, {1, 3, 7, 5}, // -x, +x
	}
	for _, f := range faces {
		m.Indices = append(m.Indices, f[0], f[1], f[2], f[0], f[2], f[3])
	}
	return m
}

func plane() api.Mesh {
	return api.Mesh{
		Positions: [][3]float32{{-0.5, -0.5, 0}, {0.5, -0.5, 0}, {0.5, 0.5, 0}, {-0.5, 0.5, 0}},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	}
}

// cylinder has radius 0.5 and height 1 along z.
func cylinder(segments int) api.Mesh {
	var m api.Mesh
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		x, y := float32(0.5*math.Cos(a)), float32(0.5*math.Sin(a))
		m.Positions = append(m.Positions, [3]float32{x, y, -0.5}, [3]float32{x, y, 0.5})
	}
	bottom, top := uint32(len(m.Positions)), uint32(len(m.Positions)+1)
	m.Positions = append(m.Positions, [3]float32{0, 0, -0.5}, [3]float32{0, 0, 0.5})
	for i := 0; i < segments; i++ {
		j := (i + 1) % segments
		b0, t0, b1, t1 := uint32(2*i), uint32(2*i+1), uint32(2*j), uint32(2*j+1)
		m.Indices = append(m.Indices, b0, b1, t1, b0, t1, t0, bottom, b1, b0, top, t0, t1)
	}
	return m
}

// sphere has radius 0.5.
func sphere(rings, segments int) api.Mesh {
	var m api.Mesh
	for r := 0; r <= rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s < segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			m.Positions = append(m.Positions, [3]float32{
				float32(0.5 * math.Sin(phi) * math.Cos(theta)),
				float32(0.5 * math.Sin(phi) * math.Sin(theta)),
				float32(0.5 * math.Cos(phi)),
			})
		}
	}
	for r := 0; r < rings; r++ {
		for s := 0; s < segments; s++ {
			a := uint32(r*segments + s)
			b := uint32(r*segments + (s+1)%segments)
			c := a + uint32(segments)
			d := b + uint32(segments)
			m.Indices = append(m.Indices, a, c, d, a, d, b)
		}
	}
	return m
}
