// Package ingest opens MVR and GDTF archives and drives them through the
// parse, resolve and build pipeline. A Result owns everything opened for it
// and releases it on Close.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archive"
	"github.com/agentic-research/rigkit/internal/gdtf"
	"github.com/agentic-research/rigkit/internal/geometry"
	"github.com/agentic-research/rigkit/internal/graph"
	"github.com/agentic-research/rigkit/internal/mvr"
	"github.com/agentic-research/rigkit/internal/resolver"
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	UniverseSize   int
	Workers        int
	MVRMaxVersion  api.Version
	GDTFMaxVersion api.Version
	// SearchPaths are directories of external .gdtf files, consulted after
	// the scene's embedded fixture types.
	SearchPaths []string
	// SearchFS resolves SearchPaths; nil means the local filesystem.
	SearchFS billy.Filesystem
	// Sources are in-memory external .gdtf archives keyed by file name.
	Sources       map[string][]byte
	EagerGeometry bool
	Logger        *zap.Logger
}

// Engine drives the ingestion process.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

func NewEngine(opts Options) *Engine {
	if opts.UniverseSize <= 0 {
		opts.UniverseSize = mvr.DefaultUniverseSize
	}
	if opts.Workers <= 0 {
		opts.Workers = resolver.DefaultWorkers
	}
	if opts.MVRMaxVersion.IsZero() {
		opts.MVRMaxVersion = api.DefaultMVRMaxVersion
	}
	if opts.GDTFMaxVersion.IsZero() {
		opts.GDTFMaxVersion = api.DefaultGDTFMaxVersion
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger}
}

// Result is one opened archive: a scene graph for MVR, a fixture type for
// GDTF.
type Result struct {
	Path   string
	Format archive.Format
	Scene  *graph.SceneGraph
	Type   *api.FixtureType
	// Resolver is the scene's fixture-type resolver (MVR only).
	Resolver *resolver.Resolver

	container *archive.Container
	loader    *geometry.Loader
}

// Diagnostics returns the problems found while opening the archive.
func (r *Result) Diagnostics() api.Diagnostics {
	if r.Scene != nil {
		return r.Scene.Diagnostics()
	}
	return r.Type.Diagnostics
}

// LoadGeometry decodes a geometry reference of the scene or fixture type.
func (r *Result) LoadGeometry(ref api.GeometryRef) (*geometry.Payload, error) {
	if r.Scene != nil {
		return r.Scene.LoadGeometry(ref)
	}
	return r.loader.Load(ref)
}

// Close releases the archive and every derived cache.
func (r *Result) Close() error {
	if r.Scene != nil {
		return r.Scene.Close()
	}
	r.loader.Purge()
	return r.container.Close()
}

// Open opens an archive on the local filesystem. The file is memory-mapped
// where the platform allows.
func (e *Engine) Open(ctx context.Context, path string) (*Result, error) {
	c, err := archive.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return e.load(ctx, path, c)
}

// OpenFS opens an archive through a billy filesystem.
func (e *Engine) OpenFS(ctx context.Context, fsys billy.Filesystem, name string) (*Result, error) {
	c, err := archive.Open(fsys, name)
	if err != nil {
		return nil, err
	}
	return e.load(ctx, name, c)
}

// OpenBytes opens an in-memory archive; name labels it in diagnostics.
func (e *Engine) OpenBytes(ctx context.Context, name string, data []byte) (*Result, error) {
	c, err := archive.OpenBytes(name, data)
	if err != nil {
		return nil, err
	}
	return e.load(ctx, name, c)
}

// Ingest opens path, or every .mvr and .gdtf file below it when it is a
// directory, and hands each result to fn. fn owns the result and must close
// it. In directory mode, archives that fail to open are logged and skipped.
func (e *Engine) Ingest(ctx context.Context, path string, fn func(*Result) error) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		res, err := e.Open(ctx, path)
		if err != nil {
			return err
		}
		return fn(res)
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isArchive(p) {
			return nil
		}
		res, err := e.Open(ctx, p)
		if err != nil {
			e.logger.Warn("skipping archive", zap.String("path", p), zap.Error(err))
			return nil
		}
		return fn(res)
	})
}

func isArchive(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".mvr", ".gdtf":
		return true
	}
	return false
}

func (e *Engine) load(ctx context.Context, path string, c *archive.Container) (*Result, error) {
	format, desc, err := c.Descriptor()
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	var res *Result
	switch format {
	case archive.FormatMVR:
		res, err = e.loadScene(ctx, c, desc)
	case archive.FormatGDTF:
		res, err = e.loadFixtureType(c)
	default:
		err = fmt.Errorf("unsupported archive format %s", format)
	}
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	res.Path = path
	res.Format = format
	diags := res.Diagnostics()
	e.logger.Info("archive loaded",
		zap.String("path", path),
		zap.Stringer("format", format),
		zap.Int("diagnostics", len(diags)),
		zap.Bool("errors", diags.HasErrors()))
	return res, nil
}

func (e *Engine) loadScene(ctx context.Context, c *archive.Container, desc string) (*Result, error) {
	buf, err := c.ReadEntry(desc)
	if err != nil {
		return nil, err
	}
	doc, err := mvr.Parse(buf, mvr.Options{
		Path:         desc,
		Source:       c.Name(),
		MaxVersion:   e.opts.MVRMaxVersion,
		UniverseSize: e.opts.UniverseSize,
	})
	if err != nil {
		return nil, err
	}

	r := resolver.New(c, e.resolverOptions()...)
	opts := []graph.Option{
		graph.WithLogger(e.logger),
		graph.WithUniverseSize(e.opts.UniverseSize),
		graph.WithContainer(c),
		graph.WithCloser(r),
	}
	if e.opts.EagerGeometry {
		opts = append(opts, graph.WithEagerGeometry(e.opts.Workers))
	}
	g, err := graph.NewBuilder(r, opts...).Build(ctx, doc)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return &Result{Scene: g, Resolver: r, container: c}, nil
}

func (e *Engine) resolverOptions() []resolver.Option {
	opts := []resolver.Option{
		resolver.WithLogger(e.logger),
		resolver.WithMaxVersion(e.opts.GDTFMaxVersion),
		resolver.WithWorkers(e.opts.Workers),
	}
	for _, p := range e.opts.SearchPaths {
		if e.opts.SearchFS != nil {
			opts = append(opts, resolver.WithSearchPath(e.opts.SearchFS, p))
			continue
		}
		opts = append(opts, resolver.WithSearchPath(osfs.New(p), "."))
	}
	names := make([]string, 0, len(e.opts.Sources))
	for name := range e.opts.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, resolver.WithSource(name, e.opts.Sources[name]))
	}
	return opts
}

func (e *Engine) loadFixtureType(c *archive.Container) (*Result, error) {
	ft, err := gdtf.Load(c, gdtf.Options{MaxVersion: e.opts.GDTFMaxVersion})
	if err != nil {
		return nil, err
	}
	loader := geometry.NewLoader(geometry.WithLogger(e.logger))
	loader.Register(c.Name(), c)
	return &Result{Type: ft, container: c, loader: loader}, nil
}
