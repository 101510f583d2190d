// Package resolver finds and caches the GDTF fixture types referenced by a
// scene. Lookup tries the scene's own container first, then any external
// sources supplied by the caller; every source is parsed at most once per
// session no matter how many fixtures or goroutines ask for it.
package resolver

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archive"
	"github.com/agentic-research/rigkit/internal/gdtf"
)

// DefaultWorkers bounds concurrent prefetch.
const DefaultWorkers = 4

// Stats counts resolver work for the session.
type Stats struct {
	Parses     int64 // GDTF archives parsed
	Hits       int64 // Resolve calls answered from cache
	Deduped    int64 // sources whose bytes matched an already parsed archive
	Unresolved int64 // references that fell back to a placeholder
}

// source is one GDTF archive the resolver may open.
type source struct {
	key  string // unique, also the container name
	name string // file name used for spec matching
	read func() ([]byte, error)
}

// Resolver resolves fixture references for one session. It is safe for
// concurrent use.
type Resolver struct {
	embedded   *archive.Container
	logger     *zap.Logger
	maxVersion api.Version
	workers    int

	buffers []source
	dirs    []searchDir

	flight singleflight.Group

	mu         sync.Mutex
	byRef      map[string]*api.FixtureType
	bySource   map[string]*api.FixtureType
	byHash     map[uint64]*api.FixtureType
	containers map[string]*archive.Container

	externalOnce sync.Once
	external     []source

	parses, hits, deduped, unresolved atomic.Int64
}

type searchDir struct {
	fs  billy.Filesystem
	dir string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMaxVersion sets the newest GDTF DataVersion parsed without a warning.
func WithMaxVersion(v api.Version) Option {
	return func(r *Resolver) { r.maxVersion = v }
}

// WithWorkers bounds Prefetch concurrency.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithSearchPath adds a directory of .gdtf files as an external source.
func WithSearchPath(fsys billy.Filesystem, dir string) Option {
	return func(r *Resolver) { r.dirs = append(r.dirs, searchDir{fs: fsys, dir: dir}) }
}

// WithSource adds an in-memory GDTF archive as an external source. name is
// matched against fixture spec references like a file name.
func WithSource(name string, data []byte) Option {
	return func(r *Resolver) {
		r.buffers = append(r.buffers, source{
			key:  "buffer:" + name,
			name: name,
			read: func() ([]byte, error) { return data, nil },
		})
	}
}

// New returns a resolver for the scene in embedded, which may be nil when
// only external sources should be consulted.
func New(embedded *archive.Container, opts ...Option) *Resolver {
	r := &Resolver{
		embedded:   embedded,
		logger:     zap.NewNop(),
		maxVersion: api.DefaultGDTFMaxVersion,
		workers:    DefaultWorkers,
		byRef:      map[string]*api.FixtureType{},
		bySource:   map[string]*api.FixtureType{},
		byHash:     map[uint64]*api.FixtureType{},
		containers: map[string]*archive.Container{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the fixture type for ref. It never returns nil: when no
// source matches, a placeholder type is returned together with a reference
// error. Results, placeholders included, are cached for the session.
func (r *Resolver) Resolve(ref api.FixtureRef) (*api.FixtureType, error) {
	key := ref.Key()
	r.mu.Lock()
	if ft, ok := r.byRef[key]; ok {
		r.mu.Unlock()
		r.hits.Add(1)
		return ft, unresolvedErr(ft, ref, nil)
	}
	r.mu.Unlock()

	v, _, _ := r.flight.Do("ref:"+key, func() (any, error) {
		r.mu.Lock()
		if ft, ok := r.byRef[key]; ok {
			r.mu.Unlock()
			return result{ft: ft}, nil
		}
		r.mu.Unlock()

		ft, cause := r.lookup(ref)
		if ft == nil {
			ft = api.Placeholder(ref)
			r.unresolved.Add(1)
			r.logger.Warn("fixture type unresolved", zap.String("ref", key), zap.Error(cause))
		}
		r.mu.Lock()
		r.byRef[key] = ft
		r.mu.Unlock()
		return result{ft: ft, cause: cause}, nil
	})
	res := v.(result)
	return res.ft, unresolvedErr(res.ft, ref, res.cause)
}

type result struct {
	ft    *api.FixtureType
	cause error
}

func unresolvedErr(ft *api.FixtureType, ref api.FixtureRef, cause error) error {
	if !ft.IsPlaceholder() {
		return nil
	}
	msg := fmt.Errorf("no fixture type for %q", ref.Spec)
	if ref.ID != uuid.Nil {
		msg = fmt.Errorf("no fixture type for %q (%s)", ref.Spec, ref.ID)
	}
	return &api.Error{Kind: api.ErrReference, Op: "resolve fixture type", Path: ref.Spec,
		Err: multierr.Append(msg, cause)}
}

// lookup walks the resolution order. cause collects load failures of
// candidate sources so an unresolved reference explains itself.
func (r *Resolver) lookup(ref api.FixtureRef) (*api.FixtureType, error) {
	id := ref.ID
	if id == uuid.Nil {
		// Some writers put the FixtureTypeID in GDTFSpec.
		if parsed, err := uuid.Parse(api.NormalizeSpec(ref.Spec)); err == nil {
			id = parsed
		}
	}
	var cause error
	for _, scope := range [][]source{r.embeddedSources(), r.externalSources()} {
		if ref.Spec != "" {
			want := api.NormalizeSpec(ref.Spec)
			for _, s := range scope {
				if api.NormalizeSpec(s.name) != want {
					continue
				}
				ft, err := r.load(s)
				if err == nil {
					return ft, nil
				}
				cause = multierr.Append(cause, err)
			}
		}
		if id == uuid.Nil {
			continue
		}
		for _, s := range scope {
			ft, err := r.load(s)
			if err != nil {
				cause = multierr.Append(cause, err)
				continue
			}
			if ft.ID == id {
				return ft, nil
			}
		}
	}
	return nil, cause
}

func isGDTF(name string) bool {
	return strings.EqualFold(path.Ext(name), ".gdtf")
}

func (r *Resolver) embeddedSources() []source {
	if r.embedded == nil {
		return nil
	}
	var out []source
	for _, e := range r.embedded.Entries() {
		if !isGDTF(e) {
			continue
		}
		entry := e
		out = append(out, source{
			key:  entry,
			name: entry,
			read: func() ([]byte, error) { return r.embedded.ReadEntry(entry) },
		})
	}
	return out
}

func (r *Resolver) externalSources() []source {
	r.externalOnce.Do(func() {
		r.external = append(r.external, r.buffers...)
		for _, d := range r.dirs {
			infos, err := d.fs.ReadDir(d.dir)
			if err != nil {
				r.logger.Warn("gdtf search path unreadable", zap.String("dir", d.dir), zap.Error(err))
				continue
			}
			for _, fi := range infos {
				if fi.IsDir() || !isGDTF(fi.Name()) {
					continue
				}
				fsys, p := d.fs, d.fs.Join(d.dir, fi.Name())
				r.external = append(r.external, source{
					key:  "file:" + p,
					name: fi.Name(),
					read: func() ([]byte, error) { return readFile(fsys, p) },
				})
			}
		}
	})
	return r.external
}

// load parses a source once. Archives with identical bytes share one parse.
func (r *Resolver) load(s source) (*api.FixtureType, error) {
	r.mu.Lock()
	if ft, ok := r.bySource[s.key]; ok {
		r.mu.Unlock()
		return ft, nil
	}
	r.mu.Unlock()

	v, err, _ := r.flight.Do("src:"+s.key, func() (any, error) {
		r.mu.Lock()
		if ft, ok := r.bySource[s.key]; ok {
			r.mu.Unlock()
			return ft, nil
		}
		r.mu.Unlock()

		data, err := s.read()
		if err != nil {
			return nil, err
		}
		sum := xxhash.Sum64(data)
		r.mu.Lock()
		if ft, ok := r.byHash[sum]; ok {
			r.bySource[s.key] = ft
			r.mu.Unlock()
			r.deduped.Add(1)
			return ft, nil
		}
		r.mu.Unlock()

		c, err := archive.OpenBytes(s.key, data)
		if err != nil {
			return nil, err
		}
		ft, err := gdtf.Load(c, gdtf.Options{MaxVersion: r.maxVersion})
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		r.parses.Add(1)
		r.logger.Debug("parsed fixture type",
			zap.String("source", s.key),
			zap.String("name", ft.Name),
			zap.Stringer("id", ft.ID),
			zap.Int("modes", len(ft.Modes)))

		r.mu.Lock()
		r.bySource[s.key] = ft
		r.byHash[sum] = ft
		r.containers[s.key] = c
		r.mu.Unlock()
		return ft, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*api.FixtureType), nil
}

// Prefetch resolves refs concurrently. Unresolved references are not
// errors; only context cancellation is returned.
func (r *Resolver) Prefetch(ctx context.Context, refs []api.FixtureRef) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, ref := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, _ = r.Resolve(ref)
			return nil
		})
	}
	return g.Wait()
}

// Container returns the open archive a fixture type was parsed from, for
// lazy geometry reads.
func (r *Resolver) Container(source string) (*archive.Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[source]
	return c, ok
}

// Types returns every distinct parsed fixture type.
func (r *Resolver) Types() []*api.FixtureType {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[*api.FixtureType]bool{}
	var out []*api.FixtureType
	for _, ft := range r.bySource {
		if !seen[ft] {
			seen[ft] = true
			out = append(out, ft)
		}
	}
	return out
}

// Stats returns a snapshot of the counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Parses:     r.parses.Load(),
		Hits:       r.hits.Load(),
		Deduped:    r.deduped.Load(),
		Unresolved: r.unresolved.Load(),
	}
}

// Close releases every GDTF archive opened by the resolver and drops the
// caches.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	for _, c := range r.containers {
		err = multierr.Append(err, c.Close())
	}
	r.containers = map[string]*archive.Container{}
	r.byRef = map[string]*api.FixtureType{}
	r.bySource = map[string]*api.FixtureType{}
	r.byHash = map[uint64]*api.FixtureType{}
	return err
}
