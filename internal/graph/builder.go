package graph

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archive"
	"github.com/agentic-research/rigkit/internal/gdtf"
	"github.com/agentic-research/rigkit/internal/geometry"
	"github.com/agentic-research/rigkit/internal/mvr"
)

// DefaultUniverseSize is the DMX universe size used when none is configured.
const DefaultUniverseSize = mvr.DefaultUniverseSize

// maxSymbolDepth bounds nested Symbol expansion.
const maxSymbolDepth = 8

// Resolver supplies fixture types. *resolver.Resolver satisfies it.
type Resolver interface {
	Resolve(ref api.FixtureRef) (*api.FixtureType, error)
	Prefetch(ctx context.Context, refs []api.FixtureRef) error
	Container(source string) (*archive.Container, bool)
}

// Builder turns parsed documents into scene graphs.
type Builder struct {
	resolver     Resolver
	logger       *zap.Logger
	universeSize int
	loader       *geometry.Loader
	containers   []*archive.Container
	closers      []io.Closer
	eager        bool
	workers      int
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithUniverseSize sets the DMX universe size addresses are validated against.
func WithUniverseSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.universeSize = n
		}
	}
}

// WithLoader shares a geometry loader instead of creating one per graph.
func WithLoader(l *geometry.Loader) Option {
	return func(b *Builder) { b.loader = l }
}

// WithContainer makes the scene archive's entries loadable as geometry and
// hands its ownership to the graph.
func WithContainer(c *archive.Container) Option {
	return func(b *Builder) {
		b.containers = append(b.containers, c)
		b.closers = append(b.closers, c)
	}
}

// WithCloser hands a resource to the graph, released by SceneGraph.Close.
func WithCloser(c io.Closer) Option {
	return func(b *Builder) { b.closers = append(b.closers, c) }
}

// WithEagerGeometry decodes every geometry reference during Build using up
// to workers goroutines.
func WithEagerGeometry(workers int) Option {
	return func(b *Builder) {
		b.eager = true
		b.workers = workers
	}
}

// NewBuilder returns a builder resolving fixture types through r. A nil r
// leaves every fixture with a placeholder type.
func NewBuilder(r Resolver, opts ...Option) *Builder {
	b := &Builder{
		resolver:     r,
		logger:       zap.NewNop(),
		universeSize: DefaultUniverseSize,
		workers:      4,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build links doc into a scene graph in a single top-down traversal. Only
// context cancellation fails a build; everything else is reported in the
// graph's diagnostics.
func (b *Builder) Build(ctx context.Context, doc *mvr.Document) (*SceneGraph, error) {
	loader := b.loader
	if loader == nil {
		loader = geometry.NewLoader(geometry.WithLogger(b.logger))
	}
	g := newSceneGraph(doc, loader, b.universeSize)
	g.closers = append(g.closers, b.closers...)
	for _, c := range b.containers {
		loader.Register(c.Name(), c)
		g.containers[c.Name()] = c
	}
	g.diags.Append(doc.Diagnostics)

	if b.resolver != nil {
		if err := b.resolver.Prefetch(ctx, doc.FixtureRefs()); err != nil {
			return nil, fmt.Errorf("prefetch fixture types: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &buildState{
		Builder:   b,
		doc:       doc,
		g:         g,
		first:     make(map[uuid.UUID]int),
		typeSeen:  make(map[*api.FixtureType]bool),
		classes:   make(map[uuid.UUID]bool),
		positions: make(map[uuid.UUID]bool),
	}
	for _, c := range doc.Classes {
		s.classes[c.ID] = true
	}
	for _, p := range doc.Positions {
		s.positions[p.ID] = true
	}
	for _, root := range doc.Roots {
		s.visit(root, uuid.Nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.checkFixtureLinks()

	b.logger.Debug("scene graph built",
		zap.String("path", doc.Path),
		zap.Int("nodes", g.Len()),
		zap.Int("elements", doc.Elements),
		zap.Int("fixture_types", len(g.types)),
		zap.Int("diagnostics", len(g.diags)))
	if n := len(g.diags); n > 0 {
		b.logger.Warn("scene graph has diagnostics", zap.String("path", doc.Path), zap.Int("count", n),
			zap.Int("errors", len(g.diags)-countWarnings(g.diags)))
	}

	if b.eager {
		if err := g.Preload(ctx, b.workers); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func countWarnings(d api.Diagnostics) int {
	n := 0
	for _, x := range d {
		if x.Severity == api.SeverityWarning {
			n++
		}
	}
	return n
}

type buildState struct {
	*Builder
	doc *mvr.Document
	g   *SceneGraph

	first     map[uuid.UUID]int // GUID → line of first occurrence
	typeSeen  map[*api.FixtureType]bool
	classes   map[uuid.UUID]bool
	positions map[uuid.UUID]bool
}

func (s *buildState) warn(err *api.Error, obj *mvr.Object) {
	s.g.diags.Warn(err.At(s.doc.Path, obj.Line).For(obj.ID))
}

// visit adds obj under parent and recurses into its children.
func (s *buildState) visit(obj *mvr.Object, parent uuid.UUID) {
	if line, dup := s.first[obj.ID]; dup {
		s.warn(api.Errorf(api.ErrReference, "build node",
			"duplicate GUID %s (first declared on line %d); %s %q dropped", obj.ID, line, obj.Kind, obj.Name), obj)
		for _, c := range obj.Children {
			s.visit(c, parent)
		}
		return
	}
	s.first[obj.ID] = obj.Line

	if obj.DeclaredParent != uuid.Nil && obj.DeclaredParent != parent {
		reason := "was not constructed"
		if _, ok := s.first[obj.DeclaredParent]; ok {
			reason = "was dropped as a duplicate"
		}
		s.warn(api.Errorf(api.ErrReference, "link parent",
			"declared parent %s %s; attached to %s", obj.DeclaredParent, reason, describeParent(parent)), obj)
	}

	n := &api.Node{
		ID:        obj.ID,
		Kind:      obj.Kind,
		Name:      obj.Name,
		ParentID:  parent,
		Transform: obj.Transform,
		Class:     obj.Class,
		Line:      obj.Line,
	}
	if len(obj.Geometries) > 0 {
		n.Geometries = append([]api.GeometryRef(nil), obj.Geometries...)
	}
	if obj.Fixture != nil {
		fi := *obj.Fixture
		fi.Addresses = append([]api.Address(nil), obj.Fixture.Addresses...)
		n.Fixture = &fi
	}
	if n.Class != uuid.Nil && !s.classes[n.Class] {
		s.warn(api.Errorf(api.ErrReference, "link class", "class %s not defined in AUXData", n.Class), obj)
	}

	refs := s.expand(obj, n.Geometries, api.Identity(), 0)
	if n.Fixture != nil {
		refs = append(refs, s.fixture(obj, n)...)
	}

	if parent == uuid.Nil {
		s.g.addRoot(n)
	} else {
		s.g.addNode(n)
	}
	if len(refs) > 0 {
		s.g.resolved[n.ID] = refs
	}
	for _, c := range obj.Children {
		s.visit(c, n.ID)
	}
}

func describeParent(id uuid.UUID) string {
	if id == uuid.Nil {
		return "the scene root"
	}
	return id.String()
}

// expand replaces Symbol instances by their definitions' geometry, placed by
// the instance transform.
func (s *buildState) expand(obj *mvr.Object, refs []api.GeometryRef, parent api.Matrix, depth int) []api.GeometryRef {
	var out []api.GeometryRef
	for _, ref := range refs {
		placed := ref
		placed.Transform = parent.Mul(ref.Transform)
		if ref.Kind != api.GeometrySymbol {
			out = append(out, placed)
			continue
		}
		sd, ok := s.doc.Symdef(ref.Symdef)
		if !ok {
			s.warn(api.Errorf(api.ErrReference, "expand symbol", "symdef %s not defined", ref.Symdef), obj)
			continue
		}
		if depth >= maxSymbolDepth {
			s.warn(api.Errorf(api.ErrReference, "expand symbol",
				"symdef %s nested deeper than %d", ref.Symdef, maxSymbolDepth), obj)
			continue
		}
		out = append(out, s.expand(obj, sd.Geometries, placed.Transform, depth+1)...)
	}
	return out
}

// fixture resolves the node's fixture type and mode, validates and patches
// its DMX addresses, and returns the type's model geometry.
func (s *buildState) fixture(obj *mvr.Object, n *api.Node) []api.GeometryRef {
	fi := n.Fixture
	ref := fi.Ref()
	var ft *api.FixtureType
	switch {
	case ref.IsZero():
		ft = api.Placeholder(ref)
		s.warn(api.Errorf(api.ErrReference, "resolve fixture type", "%s %q has no GDTFSpec", n.Kind, n.Name), obj)
	case s.resolver == nil:
		ft = api.Placeholder(ref)
		s.warn(api.Errorf(api.ErrReference, "resolve fixture type", "no resolver for %q", ref.Spec), obj)
	default:
		var err error
		ft, err = s.resolver.Resolve(ref)
		if err != nil {
			var e *api.Error
			if !errors.As(err, &e) {
				e = api.NewError(api.ErrReference, "resolve fixture type", err)
			}
			s.warn(e, obj)
		}
	}
	fi.Type = ft
	s.useType(ft)

	var mode *api.DMXMode
	if !ft.IsPlaceholder() {
		var fallback bool
		mode, fallback = ft.ModeOrFirst(fi.Mode)
		switch {
		case mode == nil:
			s.warn(api.Errorf(api.ErrReference, "select mode", "fixture type %q defines no DMX modes", ft.Name), obj)
		case fallback:
			s.warn(api.Errorf(api.ErrReference, "select mode",
				"mode %q not defined by %q; using %q", fi.Mode, ft.Name, mode.Name), obj)
		}
	}
	if mode != nil {
		fi.ModeResolved = mode.Name
	} else {
		fi.ModeResolved = fi.Mode
	}

	for i := range fi.Addresses {
		s.patch(obj, n, &fi.Addresses[i], mode)
	}

	if ft.IsPlaceholder() {
		return nil
	}
	if c, ok := s.resolver.Container(ft.Source); ok {
		s.g.loader.Register(ft.Source, c)
	}
	return gdtf.ModelRefs(ft, mode)
}

func (s *buildState) useType(ft *api.FixtureType) {
	if s.typeSeen[ft] {
		return
	}
	s.typeSeen[ft] = true
	s.g.types = append(s.g.types, ft)
	s.g.diags.Append(ft.Diagnostics)
}

// patch clamps addr into the universe and records its occupancy.
func (s *buildState) patch(obj *mvr.Object, n *api.Node, addr *api.Address, mode *api.DMXMode) {
	size := s.universeSize
	if addr.Channel < 1 || addr.Channel > size {
		clamped := min(max(addr.Channel, 1), size)
		s.warn(api.Errorf(api.ErrValue, "validate address",
			"address %d.%d outside 1..%d; clamped to %d", addr.Universe, addr.Channel, size, clamped), obj)
		addr.Channel = clamped
	}
	footprint := 1
	if mode != nil {
		// MVR breaks count from 0, GDTF DMX breaks from 1.
		if fp := mode.Footprint(addr.Break + 1); fp > 0 {
			footprint = fp
		}
	}
	e, clashes := s.g.patch.Add(n.ID, *addr, footprint)
	if e.Overflow > 0 {
		s.warn(api.Errorf(api.ErrValue, "validate address",
			"footprint %d at %s crosses the end of universe %d by %d channels",
			footprint, addr, addr.Universe, e.Overflow), obj)
	}
	for _, other := range clashes {
		s.warn(api.Errorf(api.ErrValue, "validate address",
			"patch at %s (%d channels) overlaps fixture %s", addr, footprint, other), obj)
	}
}

// checkFixtureLinks validates Focus and Position references once every node
// is known.
func (s *buildState) checkFixtureLinks() {
	for _, n := range s.g.Nodes() {
		fi := n.Fixture
		if fi == nil {
			continue
		}
		if fi.Focus != uuid.Nil {
			target, err := s.g.GetNode(fi.Focus)
			switch {
			case err != nil:
				s.g.diags.Warn(api.Errorf(api.ErrReference, "link focus", "focus point %s not found", fi.Focus).
					At(s.doc.Path, n.Line).For(n.ID))
			case target.Kind != api.KindFocusPoint:
				s.g.diags.Warn(api.Errorf(api.ErrReference, "link focus", "focus %s is a %s, not a FocusPoint",
					fi.Focus, target.Kind).At(s.doc.Path, n.Line).For(n.ID))
			}
		}
		if fi.Position != uuid.Nil && !s.positions[fi.Position] {
			s.g.diags.Warn(api.Errorf(api.ErrReference, "link position", "position %s not defined in AUXData",
				fi.Position).At(s.doc.Path, n.Line).For(n.ID))
		}
	}
}
