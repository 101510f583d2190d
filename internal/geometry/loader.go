// Package geometry decodes mesh payloads referenced by scene nodes and
// fixture types. Decoding is lazy and cached: the first Load of a reference
// decodes it, concurrent first loads share one decode, later loads are map
// lookups.
package geometry

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/agentic-research/rigkit/api"
)

// EntryReader reads archive entries. *archive.Container satisfies it.
type EntryReader interface {
	ReadEntry(name string) ([]byte, error)
}

// Format names a payload encoding.
type Format string

const (
	FormatGLB       Format = "glb"
	FormatGLTF      Format = "gltf"
	Format3DS       Format = "3ds"
	FormatPrimitive Format = "primitive"
	FormatUnknown   Format = ""
)

// FormatOf infers the format from an entry name.
func FormatOf(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".glb":
		return FormatGLB
	case ".gltf":
		return FormatGLTF
	case ".3ds":
		return Format3DS
	}
	return FormatUnknown
}

// Key identifies a payload independent of where it is placed.
type Key struct {
	Source    string
	File      string
	Primitive string
}

// KeyOf returns the cache key for ref.
func KeyOf(ref api.GeometryRef) Key {
	if ref.Kind == api.GeometryModel && ref.File == "" {
		return Key{Primitive: ref.Primitive}
	}
	return Key{Source: ref.Source, File: ref.File}
}

func (k Key) String() string {
	if k.Primitive != "" {
		return "primitive:" + k.Primitive
	}
	return k.Source + "!" + k.File
}

// Payload is a decoded geometry. A failed decode yields an empty payload
// whose Err records the cause.
type Payload struct {
	Key    Key
	Format Format
	Size   int // raw byte size
	Meshes []api.Mesh
	Err    error
}

// Empty reports whether the payload carries no meshes.
func (p *Payload) Empty() bool { return len(p.Meshes) == 0 }

// Triangles sums triangle counts over all meshes.
func (p *Payload) Triangles() int {
	n := 0
	for i := range p.Meshes {
		n += p.Meshes[i].Triangles()
	}
	return n
}

// Stats counts loader work.
type Stats struct {
	Decodes  int64
	Hits     int64
	Failures int64
	Cached   int
}

// Loader owns the payload cache for a session.
type Loader struct {
	logger *zap.Logger

	mu      sync.Mutex
	sources map[string]EntryReader
	cache   map[Key]*Payload
	flight  singleflight.Group

	decodes, hits, failures atomic.Int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// NewLoader returns an empty loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		logger:  zap.NewNop(),
		sources: map[string]EntryReader{},
		cache:   map[Key]*Payload{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Register makes entries of r loadable under source.
func (l *Loader) Register(source string, r EntryReader) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[source] = r
}

// Load returns the payload for ref. On failure the returned payload is
// empty (never nil) and the error is a geometry error; the failure is
// cached like a success.
func (l *Loader) Load(ref api.GeometryRef) (*Payload, error) {
	if ref.Kind == api.GeometrySymbol {
		p := &Payload{Err: &api.Error{Kind: api.ErrGeometry, Op: "load geometry",
			Err: fmt.Errorf("symbol %s must be expanded to its definition", ref.Symdef)}}
		return p, p.Err
	}
	key := KeyOf(ref)
	l.mu.Lock()
	if p, ok := l.cache[key]; ok {
		l.mu.Unlock()
		l.hits.Add(1)
		return p, p.Err
	}
	l.mu.Unlock()

	v, _, _ := l.flight.Do(key.String(), func() (any, error) {
		l.mu.Lock()
		if p, ok := l.cache[key]; ok {
			l.mu.Unlock()
			return p, nil
		}
		src := l.sources[key.Source]
		l.mu.Unlock()

		p := l.decode(key, src)
		l.mu.Lock()
		l.cache[key] = p
		l.mu.Unlock()
		return p, nil
	})
	p := v.(*Payload)
	return p, p.Err
}

func (l *Loader) decode(key Key, src EntryReader) *Payload {
	l.decodes.Add(1)
	p := &Payload{Key: key}
	fail := func(err error) *Payload {
		l.failures.Add(1)
		p.Meshes = nil
		p.Err = &api.Error{Kind: api.ErrGeometry, Op: "decode geometry", Path: key.String(), Err: err}
		l.logger.Debug("geometry decode failed", zap.Stringer("key", key), zap.Error(err))
		return p
	}
	if key.Primitive != "" {
		p.Format = FormatPrimitive
		p.Meshes = []api.Mesh{Primitive(key.Primitive)}
		return p
	}
	if src == nil {
		return fail(fmt.Errorf("unknown source %q", key.Source))
	}
	data, err := src.ReadEntry(key.File)
	if err != nil {
		return fail(err)
	}
	p.Size = len(data)
	p.Format = FormatOf(key.File)
	switch p.Format {
	case FormatGLB, FormatGLTF:
		p.Meshes, err = DecodeGLTF(data)
	case Format3DS:
		p.Meshes, err = Decode3DS(data)
	default:
		err = fmt.Errorf("unsupported geometry format %q", path.Ext(key.File))
	}
	if err != nil {
		return fail(err)
	}
	l.logger.Debug("geometry decoded", zap.Stringer("key", key), zap.Int("meshes", len(p.Meshes)))
	return p
}

// Release drops the cached payload for ref.
func (l *Loader) Release(ref api.GeometryRef) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, KeyOf(ref))
}

// Purge drops every cached payload and registered source.
func (l *Loader) Purge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = map[Key]*Payload{}
	l.sources = map[string]EntryReader{}
}

// Stats returns a snapshot of the counters.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	n := len(l.cache)
	l.mu.Unlock()
	return Stats{
		Decodes:  l.decodes.Load(),
		Hits:     l.hits.Load(),
		Failures: l.failures.Load(),
		Cached:   n,
	}
}
