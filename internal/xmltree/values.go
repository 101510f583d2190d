package xmltree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/agentic-research/rigkit/api"
)

// ParseFloat parses a decimal literal, tolerating surrounding whitespace.
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ParseInt parses a base-10 integer literal.
func ParseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// ParseGUID parses a GUID attribute. Empty values are errors.
func ParseGUID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, fmt.Errorf("empty GUID")
	}
	return uuid.Parse(s)
}

// braceGroups splits "{a,b}{c,d}" into [["a","b"],["c","d"]].
func braceGroups(s string) ([][]string, error) {
	s = strings.TrimSpace(s)
	var groups [][]string
	for len(s) > 0 {
		if s[0] != '{' {
			return nil, fmt.Errorf("expected '{' at %q", s)
		}
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated group in %q", s)
		}
		groups = append(groups, strings.Split(s[1:end], ","))
		s = strings.TrimSpace(s[end+1:])
	}
	return groups, nil
}

func parseGroups(s string, rows, cols int) ([][]float64, error) {
	groups, err := braceGroups(s)
	if err != nil {
		return nil, err
	}
	if len(groups) != rows {
		return nil, fmt.Errorf("want %d groups, got %d", rows, len(groups))
	}
	out := make([][]float64, rows)
	for i, g := range groups {
		if len(g) != cols {
			return nil, fmt.Errorf("group %d: want %d values, got %d", i, cols, len(g))
		}
		out[i] = make([]float64, cols)
		for j, v := range g {
			f, err := ParseFloat(v)
			if err != nil {
				return nil, fmt.Errorf("group %d value %d: %w", i, j, err)
			}
			out[i][j] = f
		}
	}
	return out, nil
}

// MillimetersPerMeter converts MVR offsets to meters.
const MillimetersPerMeter = 1000.0

// ParseMVRMatrix parses "{u}{v}{w}{o}": u, v and w are the basis columns and
// o the offset in millimeters. The result has its translation in meters.
func ParseMVRMatrix(s string) (api.Matrix, error) {
	g, err := parseGroups(s, 4, 3)
	if err != nil {
		return api.Matrix{}, err
	}
	m := api.Identity()
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			m[r][c] = g[c][r]
		}
	}
	for r := 0; r < 3; r++ {
		m[r][3] = g[3][r] / MillimetersPerMeter
	}
	return m, nil
}

// FormatMVRMatrix is the inverse of ParseMVRMatrix.
func FormatMVRMatrix(m api.Matrix) string {
	var b strings.Builder
	for c := 0; c < 4; c++ {
		scale := 1.0
		if c == 3 {
			scale = MillimetersPerMeter
		}
		fmt.Fprintf(&b, "{%s,%s,%s}",
			formatFloat(m[0][c]*scale), formatFloat(m[1][c]*scale), formatFloat(m[2][c]*scale))
	}
	return b.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseGDTFMatrix parses "{r0}{r1}{r2}{r3}", four rows of four values with
// translation in meters.
func ParseGDTFMatrix(s string) (api.Matrix, error) {
	g, err := parseGroups(s, 4, 4)
	if err != nil {
		return api.Matrix{}, err
	}
	var m api.Matrix
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m[r][c] = g[r][c]
		}
	}
	return m, nil
}

// ParseDMXValue parses "value/bytes". A bare number is one byte wide.
func ParseDMXValue(s string) (api.DMXValue, error) {
	s = strings.TrimSpace(s)
	val, width, found := strings.Cut(s, "/")
	v, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil {
		return api.DMXValue{}, err
	}
	bytes := 1
	if found {
		// Legacy files append "s" for byte-mirrored values.
		width = strings.TrimSuffix(strings.TrimSpace(width), "s")
		bytes, err = strconv.Atoi(width)
		if err != nil {
			return api.DMXValue{}, err
		}
		if bytes < 1 || bytes > 4 {
			return api.DMXValue{}, fmt.Errorf("byte count %d out of range", bytes)
		}
	}
	return api.DMXValue{Value: v, Bytes: bytes}, nil
}

// ParseOffset parses a DMX channel offset list "1,2". "None" and empty mean a
// virtual channel and yield nil.
func ParseOffset(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := ParseInt(p)
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, fmt.Errorf("offset %d must be positive", n)
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseCIE parses a CIE xyY color "x,y,Y".
func ParseCIE(s string) (api.CIEColor, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return api.CIEColor{}, fmt.Errorf("want 3 components, got %d", len(parts))
	}
	var v [3]float64
	for i, p := range parts {
		f, err := ParseFloat(p)
		if err != nil {
			return api.CIEColor{}, err
		}
		v[i] = f
	}
	return api.CIEColor{X: v[0], Y: v[1], Luminance: v[2]}, nil
}

// ParseAddress parses an MVR address, either "universe.channel" or an
// absolute 1-based address split by universeSize. The channel is not range
// checked; clamping is the scene builder's job.
func ParseAddress(s string, universeSize int) (api.Address, error) {
	s = strings.TrimSpace(s)
	if u, ch, ok := strings.Cut(s, "."); ok {
		universe, err := ParseInt(u)
		if err != nil {
			return api.Address{}, err
		}
		channel, err := ParseInt(ch)
		if err != nil {
			return api.Address{}, err
		}
		if universe < 1 {
			return api.Address{}, fmt.Errorf("universe %d must be positive", universe)
		}
		return api.Address{Universe: universe, Channel: channel}, nil
	}
	abs, err := ParseInt(s)
	if err != nil {
		return api.Address{}, err
	}
	if abs < 1 {
		return api.Address{Universe: 1, Channel: abs}, nil
	}
	return api.Address{
		Universe: (abs-1)/universeSize + 1,
		Channel:  (abs-1)%universeSize + 1,
	}, nil
}

// FormatAddress renders an address in absolute form for universeSize.
func FormatAddress(a api.Address, universeSize int) string {
	return strconv.Itoa(a.Absolute(universeSize))
}
