package geometry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archivetest"
)

type mapReader struct {
	entries map[string][]byte
	reads   atomic.Int64
}

func (m *mapReader) ReadEntry(name string) ([]byte, error) {
	m.reads.Add(1)
	b, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, api.ErrNotFound)
	}
	return b, nil
}

func fileRef(source, file string) api.GeometryRef {
	return api.GeometryRef{Kind: api.GeometryFile, Source: source, File: file, Transform: api.Identity()}
}

func TestDecode3DS_ScalesToMeters(t *testing.T) {
	data := archivetest.TDS("truss", [][3]float32{{0, 0, 0}, {1000, 0, 0}, {0, 2000, 0}}, [][3]uint16{{0, 1, 2}})
	meshes, err := Decode3DS(data)
	require.NoError(t, err)
	require.Len(t, meshes, 1)

	m := meshes[0]
	assert.Equal(t, "truss", m.Name)
	assert.Equal(t, 1, m.Triangles())
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices)
	p := m.Transform.Apply([3]float64{float64(m.Positions[2][0]), float64(m.Positions[2][1]), float64(m.Positions[2][2])})
	assert.InDelta(t, 2.0, p[1], 1e-9)
}

func TestDecode3DS_Rejects(t *testing.T) {
	_, err := Decode3DS([]byte("not a 3ds"))
	assert.Error(t, err)

	good := archivetest.TDS("x", archivetest.Triangle, [][3]uint16{{0, 1, 2}})
	_, err = Decode3DS(good[:len(good)-4])
	assert.Error(t, err, "truncated chunk")

	bad := archivetest.TDS("x", archivetest.Triangle, [][3]uint16{{0, 1, 7}})
	_, err = Decode3DS(bad)
	assert.ErrorContains(t, err, "face index 7")
}

func TestDecodeGLTF_Binary(t *testing.T) {
	data := archivetest.GLB("lens", archivetest.Triangle, []uint32{0, 1, 2}, [3]float64{0, 2, 0})
	meshes, err := DecodeGLTF(data)
	require.NoError(t, err)
	require.Len(t, meshes, 1)

	m := meshes[0]
	assert.Equal(t, "lens", m.Name)
	assert.Len(t, m.Positions, 3)
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices)
	// Y-up translation of 2 lands on +Z.
	off := m.Transform.Translate()
	assert.InDelta(t, 0, off[1], 1e-9)
	assert.InDelta(t, 2, off[2], 1e-9)
}

func TestDecodeGLTF_Garbage(t *testing.T) {
	_, err := DecodeGLTF([]byte("{broken"))
	assert.Error(t, err)
}

func TestPrimitive_Shapes(t *testing.T) {
	b := Primitive("Cube")
	assert.Equal(t, 12, b.Triangles())
	assert.Len(t, b.Positions, 8)
	for _, p := range b.Positions {
		for _, c := range p {
			assert.InDelta(t, 0.5, abs(c), 1e-6)
		}
	}
	plane, cyl, sphere := Primitive("Plane"), Primitive("Cylinder"), Primitive("Sphere")
	assert.Equal(t, 2, plane.Triangles())
	assert.Equal(t, 64, cyl.Triangles())
	assert.Equal(t, 256, sphere.Triangles())
	assert.Equal(t, "Base", Primitive("Base").Name)
	assert.True(t, Primitive("Base").Transform.IsIdentity())
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func TestLoader_CachesPayload(t *testing.T) {
	src := &mapReader{entries: map[string][]byte{
		"a.3ds": archivetest.TDS("a", archivetest.Triangle, [][3]uint16{{0, 1, 2}}),
	}}
	l := NewLoader()
	l.Register("scene.mvr", src)

	p1, err := l.Load(fileRef("scene.mvr", "a.3ds"))
	require.NoError(t, err)
	assert.Equal(t, Format3DS, p1.Format)
	assert.Equal(t, 1, p1.Triangles())

	p2, err := l.Load(fileRef("scene.mvr", "a.3ds"))
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.EqualValues(t, 1, src.reads.Load())

	st := l.Stats()
	assert.EqualValues(t, 1, st.Decodes)
	assert.EqualValues(t, 1, st.Hits)
	assert.Equal(t, 1, st.Cached)
}

func TestLoader_ConcurrentFirstLoadDecodesOnce(t *testing.T) {
	src := &mapReader{entries: map[string][]byte{
		"m.glb": archivetest.GLB("m", archivetest.Triangle, []uint32{0, 1, 2}, [3]float64{}),
	}}
	l := NewLoader()
	l.Register("f.gdtf", src)

	var wg sync.WaitGroup
	payloads := make([]*Payload, 16)
	for i := range payloads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := l.Load(fileRef("f.gdtf", "m.glb"))
			assert.NoError(t, err)
			payloads[i] = p
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, l.Stats().Decodes)
	assert.EqualValues(t, 1, src.reads.Load())
	for _, p := range payloads {
		assert.Same(t, payloads[0], p)
	}
}

func TestLoader_FailureIsEmptyAndCached(t *testing.T) {
	src := &mapReader{entries: map[string][]byte{"bad.glb": []byte("nope")}}
	l := NewLoader()
	l.Register("s", src)

	for _, file := range []string{"bad.glb", "missing.3ds", "mesh.obj"} {
		p, err := l.Load(fileRef("s", file))
		require.Error(t, err, file)
		assert.True(t, errors.Is(err, api.ErrGeometry), file)
		require.NotNil(t, p)
		assert.True(t, p.Empty())
	}
	_, err := l.Load(fileRef("s", "missing.3ds"))
	assert.True(t, errors.Is(err, api.ErrNotFound))
	assert.EqualValues(t, 3, l.Stats().Failures)

	_, err = l.Load(fileRef("unregistered", "a.3ds"))
	assert.True(t, errors.Is(err, api.ErrGeometry))
}

func TestLoader_SymbolIsNotLoadable(t *testing.T) {
	p, err := NewLoader().Load(api.GeometryRef{Kind: api.GeometrySymbol})
	assert.True(t, errors.Is(err, api.ErrGeometry))
	assert.True(t, p.Empty())
}

func TestLoader_PrimitiveSharedAcrossSources(t *testing.T) {
	l := NewLoader()
	a, err := l.Load(api.GeometryRef{Kind: api.GeometryModel, Source: "a.gdtf", Primitive: "Cube"})
	require.NoError(t, err)
	b, err := l.Load(api.GeometryRef{Kind: api.GeometryModel, Source: "b.gdtf", Primitive: "Cube"})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, FormatPrimitive, a.Format)
}

func TestLoader_ReleaseAndPurge(t *testing.T) {
	src := &mapReader{entries: map[string][]byte{
		"a.3ds": archivetest.TDS("a", archivetest.Triangle, [][3]uint16{{0, 1, 2}}),
	}}
	l := NewLoader()
	l.Register("s", src)
	ref := fileRef("s", "a.3ds")

	_, err := l.Load(ref)
	require.NoError(t, err)
	l.Release(ref)
	assert.Equal(t, 0, l.Stats().Cached)
	_, err = l.Load(ref)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.reads.Load())

	l.Purge()
	_, err = l.Load(ref)
	assert.Error(t, err, "sources are dropped with the cache")
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatGLB, FormatOf("models/gltf/Head.GLB"))
	assert.Equal(t, FormatGLTF, FormatOf("x.gltf"))
	assert.Equal(t, Format3DS, FormatOf("models/3ds/Base.3ds"))
	assert.Equal(t, FormatUnknown, FormatOf("Base"))
}
