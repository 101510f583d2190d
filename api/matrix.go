package api

import "math"

// Matrix is a 4x4 affine transform stored row-major: M[row][col].
// The rotation/scale basis occupies the upper-left 3x3 block, the translation
// is in column 3 and is expressed in meters.
type Matrix [4][4]float64

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Translation returns a pure translation transform (meters).
func Translation(x, y, z float64) Matrix {
	m := Identity()
	m[0][3], m[1][3], m[2][3] = x, y, z
	return m
}

// Scale returns a uniform scale transform.
func Scale(s float64) Matrix {
	m := Identity()
	m[0][0], m[1][1], m[2][2] = s, s, s
	return m
}

// IsIdentity reports whether m equals the identity within a small tolerance.
func (m Matrix) IsIdentity() bool {
	return m.ApproxEqual(Identity(), 1e-9)
}

// ApproxEqual compares two matrices component-wise.
func (m Matrix) ApproxEqual(o Matrix, eps float64) bool {
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if math.Abs(m[r][c]-o[r][c]) > eps {
				return false
			}
		}
	}
	return true
}

// Mul returns m × o.
func (m Matrix) Mul(o Matrix) Matrix {
	var out Matrix
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[r][k] * o[k][c]
			}
			out[r][c] = sum
		}
	}
	return out
}

// Translate returns the translation component in meters.
func (m Matrix) Translate() [3]float64 {
	return [3]float64{m[0][3], m[1][3], m[2][3]}
}

// Column returns basis column c (0..2) of the rotation/scale block.
func (m Matrix) Column(c int) [3]float64 {
	return [3]float64{m[0][c], m[1][c], m[2][c]}
}

// ScaleFactors returns the length of each basis column.
func (m Matrix) ScaleFactors() [3]float64 {
	var s [3]float64
	for c := 0; c < 3; c++ {
		col := m.Column(c)
		s[c] = math.Sqrt(col[0]*col[0] + col[1]*col[1] + col[2]*col[2])
	}
	return s
}

// Apply transforms point p.
func (m Matrix) Apply(p [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*p[0] + m[0][1]*p[1] + m[0][2]*p[2] + m[0][3],
		m[1][0]*p[0] + m[1][1]*p[1] + m[1][2]*p[2] + m[1][3],
		m[2][0]*p[0] + m[2][1]*p[1] + m[2][2]*p[2] + m[2][3],
	}
}
