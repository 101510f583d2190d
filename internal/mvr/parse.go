package mvr

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/xmltree"
)

// DefaultUniverseSize is the number of slots in a DMX universe.
const DefaultUniverseSize = 512

// Options tune descriptor parsing.
type Options struct {
	Path         string // descriptor entry name used in diagnostics
	Source       string // container name stamped on geometry references
	MaxVersion   api.Version
	UniverseSize int
}

func (o *Options) defaults() {
	if o.Path == "" {
		o.Path = "GeneralSceneDescription.xml"
	}
	if o.MaxVersion.IsZero() {
		o.MaxVersion = api.DefaultMVRMaxVersion
	}
	if o.UniverseSize <= 0 {
		o.UniverseSize = DefaultUniverseSize
	}
}

// Parse decodes a scene descriptor. Only a malformed document or a root
// element mismatch is returned as an error; every other problem is recorded
// in Document.Diagnostics and the offending node is skipped.
func Parse(buf []byte, opts Options) (*Document, error) {
	opts.defaults()
	root, err := xmltree.Parse(bytes.NewReader(buf))
	if err != nil {
		return nil, &api.Error{Kind: api.ErrSchema, Op: "parse descriptor", Path: opts.Path, Err: err}
	}
	if root.Name != RootElement {
		return nil, &api.Error{Kind: api.ErrSchema, Op: "check root", Path: opts.Path, Line: root.Line,
			Err: fmt.Errorf("root element %q, want %q", root.Name, RootElement)}
	}
	if root.Space != "" {
		return nil, &api.Error{Kind: api.ErrSchema, Op: "check namespace", Path: opts.Path, Line: root.Line,
			Err: fmt.Errorf("unexpected namespace %q", root.Space)}
	}

	p := &parser{opts: opts, doc: &Document{
		Path:            opts.Path,
		Source:          opts.Source,
		Namespace:       root.Space,
		Provider:        root.AttrOr("provider", ""),
		ProviderVersion: root.AttrOr("providerVersion", ""),
	}}
	p.version(root)

	scene := root.Child("Scene")
	if scene == nil {
		p.warn(api.ErrNotFound, "find scene", root.Line, uuid.Nil, fmt.Errorf("no Scene element"))
		return p.doc, nil
	}
	if aux := scene.Child("AUXData"); aux != nil {
		p.aux(aux)
	}
	if layers := scene.Child("Layers"); layers != nil {
		for _, el := range layers.Children {
			if el.Name != "Layer" {
				p.doc.Elements++
				p.fail(api.ErrValue, "parse layers", el.Line, uuid.Nil, fmt.Errorf("unexpected element %s in Layers", el.Name))
				continue
			}
			p.object(el, api.KindLayer, nil, uuid.Nil)
		}
	}
	return p.doc, nil
}

type parser struct {
	opts Options
	doc  *Document
}

func (p *parser) diag(sev api.Severity, kind error, op string, line int, node uuid.UUID, err error) {
	p.doc.Diagnostics.Add(sev, &api.Error{Kind: kind, Op: op, Path: p.opts.Path, Line: line, Node: node, Err: err})
}

func (p *parser) warn(kind error, op string, line int, node uuid.UUID, err error) {
	p.diag(api.SeverityWarning, kind, op, line, node, err)
}

func (p *parser) fail(kind error, op string, line int, node uuid.UUID, err error) {
	p.diag(api.SeverityError, kind, op, line, node, err)
}

func (p *parser) version(root *xmltree.Element) {
	major, okMajor := root.Attr("verMajor")
	minor, okMinor := root.Attr("verMinor")
	if !okMajor {
		p.warn(api.ErrValue, "read version", root.Line, uuid.Nil, fmt.Errorf("verMajor missing, assuming supported"))
		return
	}
	s := major
	if okMinor {
		s = major + "." + minor
	}
	v, err := api.ParseVersion(s)
	if err != nil {
		p.warn(api.ErrValue, "read version", root.Line, uuid.Nil, err)
		return
	}
	p.doc.Version = v
	if v.Newer(p.opts.MaxVersion) {
		p.warn(api.ErrVersion, "check version", root.Line, uuid.Nil,
			fmt.Errorf("MVR %s is newer than supported %s, continuing best-effort", v, p.opts.MaxVersion))
	}
}

func (p *parser) aux(aux *xmltree.Element) {
	for _, el := range aux.Children {
		id, err := xmltree.ParseGUID(el.AttrOr("uuid", ""))
		if err != nil {
			p.fail(api.ErrValue, "parse "+el.Name, el.Line, uuid.Nil, err)
			continue
		}
		name := el.AttrOr("name", "")
		switch el.Name {
		case "Class":
			p.doc.Classes = append(p.doc.Classes, Class{ID: id, Name: name})
		case "Position":
			p.doc.Positions = append(p.doc.Positions, Position{ID: id, Name: name})
		case "Symdef":
			sd := &Symdef{ID: id, Name: name}
			if cl := el.Child("ChildList"); cl != nil {
				refs, err := p.geometries(cl)
				if err != nil {
					p.fail(api.ErrValue, "parse symdef", el.Line, id, err)
					continue
				}
				sd.Geometries = refs
			}
			p.doc.Symdefs = append(p.doc.Symdefs, sd)
		case "MappingDefinition":
			md := MappingDefinition{ID: id, Name: name, Source: el.AttrOr("Source", ""),
				ScaleHandling: el.AttrOr("ScaleHandling", "")}
			if s, ok := el.ChildText("Source"); ok {
				md.Source = s
			}
			if s, ok := el.ChildText("ScaleHandling"); ok {
				md.ScaleHandling = s
			}
			var err error
			if md.SizeX, err = optInt(el, "SizeX"); err == nil {
				md.SizeY, err = optInt(el, "SizeY")
			}
			if err != nil {
				p.fail(api.ErrValue, "parse mapping definition", el.Line, id, err)
				continue
			}
			p.doc.MappingDefinitions = append(p.doc.MappingDefinitions, md)
		}
	}
}

func optInt(el *xmltree.Element, child string) (int, error) {
	s, ok := el.ChildText(child)
	if !ok || s == "" {
		return 0, nil
	}
	n, err := xmltree.ParseInt(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", child, err)
	}
	return n, nil
}

func optGUID(el *xmltree.Element, child string) (uuid.UUID, error) {
	s, ok := el.ChildText(child)
	if !ok || s == "" {
		return uuid.Nil, nil
	}
	id, err := xmltree.ParseGUID(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", child, err)
	}
	return id, nil
}

// geometries parses Geometry3D and Symbol children of a Geometries or
// Symdef ChildList element.
func (p *parser) geometries(el *xmltree.Element) ([]api.GeometryRef, error) {
	var refs []api.GeometryRef
	for _, g := range el.Children {
		m := api.Identity()
		if s, ok := g.ChildText("Matrix"); ok && s != "" {
			var err error
			if m, err = xmltree.ParseMVRMatrix(s); err != nil {
				return nil, fmt.Errorf("%s matrix: %w", g.Name, err)
			}
		}
		switch g.Name {
		case "Geometry3D":
			refs = append(refs, api.GeometryRef{Kind: api.GeometryFile, Source: p.opts.Source,
				File: g.AttrOr("fileName", ""), Transform: m})
		case "Symbol":
			sd, err := xmltree.ParseGUID(g.AttrOr("symdef", ""))
			if err != nil {
				return nil, fmt.Errorf("symbol symdef: %w", err)
			}
			// The instance GUID is informational; tolerate its absence.
			id, _ := xmltree.ParseGUID(g.AttrOr("uuid", ""))
			refs = append(refs, api.GeometryRef{Kind: api.GeometrySymbol, Source: p.opts.Source,
				ID: id, Symdef: sd, Transform: m})
		}
	}
	return refs, nil
}

// object parses one scene element. On failure the element is skipped and
// its children attach to parent, keeping the written parent as declared.
func (p *parser) object(el *xmltree.Element, kind api.NodeKind, parent *Object, declared uuid.UUID) {
	p.doc.Elements++
	obj, err := p.decode(el, kind)
	if err != nil {
		node := uuid.Nil
		if obj != nil {
			node = obj.ID
		}
		p.fail(api.ErrValue, "parse "+el.Name, el.Line, node, err)
		p.children(el, parent, node)
		return
	}
	obj.Parent = parent
	obj.DeclaredParent = declared
	if parent != nil {
		parent.Children = append(parent.Children, obj)
	} else {
		p.doc.Roots = append(p.doc.Roots, obj)
	}
	p.doc.Objects = append(p.doc.Objects, obj)
	p.children(el, obj, obj.ID)
}

func (p *parser) children(el *xmltree.Element, parent *Object, declared uuid.UUID) {
	cl := el.Child("ChildList")
	if cl == nil {
		return
	}
	for _, c := range cl.Children {
		kind, ok := api.KindFromElement(c.Name)
		if !ok || kind == api.KindLayer {
			p.doc.Elements++
			p.fail(api.ErrValue, "parse child list", c.Line, uuid.Nil,
				fmt.Errorf("unsupported object %s", c.Name))
			continue
		}
		p.object(c, kind, parent, declared)
	}
}

// Fixture child elements that are not carried in CustomAttributes.
var knownFields = map[string]bool{
	"Matrix": true, "Classing": true, "Geometries": true, "ChildList": true,
	"GDTFSpec": true, "GDTFMode": true, "Focus": true, "Position": true,
	"FixtureID": true, "FixtureIDNumeric": true, "UnitNumber": true,
	"Addresses": true, "Color": true, "CustomId": true, "CustomIdType": true,
	"CustomCommands": true, "Alignments": true, "Overwrites": true,
	"Connections": true, "Mappings": true, "Protocols": true, "UserData": true,
}

// decode returns the object and the first malformed field, if any. The
// object is returned with its GUID whenever that much could be parsed.
func (p *parser) decode(el *xmltree.Element, kind api.NodeKind) (*Object, error) {
	id, err := xmltree.ParseGUID(el.AttrOr("uuid", ""))
	if err != nil {
		return nil, fmt.Errorf("uuid: %w", err)
	}
	obj := &Object{ID: id, Kind: kind, Name: el.AttrOr("name", ""), Transform: api.Identity(), Line: el.Line}

	if s, ok := el.ChildText("Matrix"); ok && s != "" {
		if obj.Transform, err = xmltree.ParseMVRMatrix(s); err != nil {
			return obj, fmt.Errorf("matrix: %w", err)
		}
	}
	if obj.Class, err = optGUID(el, "Classing"); err != nil {
		return obj, err
	}
	if g := el.Child("Geometries"); g != nil {
		if obj.Geometries, err = p.geometries(g); err != nil {
			return obj, err
		}
	}
	if kind == api.KindFixture || (kind.CarriesFixture() && el.Child("GDTFSpec") != nil) {
		if obj.Fixture, err = p.fixture(el); err != nil {
			return obj, err
		}
	}
	return obj, nil
}

func (p *parser) fixture(el *xmltree.Element) (*api.FixtureInfo, error) {
	f := &api.FixtureInfo{}
	f.Spec, _ = el.ChildText("GDTFSpec")
	f.Mode, _ = el.ChildText("GDTFMode")
	f.FixtureID, _ = el.ChildText("FixtureID")

	var err error
	if f.Focus, err = optGUID(el, "Focus"); err != nil {
		return nil, err
	}
	if f.Position, err = optGUID(el, "Position"); err != nil {
		return nil, err
	}
	if f.FixtureIDNumeric, err = optInt(el, "FixtureIDNumeric"); err != nil {
		return nil, err
	}
	if f.UnitNumber, err = optInt(el, "UnitNumber"); err != nil {
		return nil, err
	}
	if f.CustomID, err = optInt(el, "CustomId"); err != nil {
		return nil, err
	}
	if f.CustomIDType, err = optInt(el, "CustomIdType"); err != nil {
		return nil, err
	}
	if s, ok := el.ChildText("Color"); ok && s != "" {
		c, err := xmltree.ParseCIE(s)
		if err != nil {
			return nil, fmt.Errorf("Color: %w", err)
		}
		f.Color = &c
	}
	if addrs := el.Child("Addresses"); addrs != nil {
		for _, a := range addrs.ChildrenNamed("Address") {
			addr, err := xmltree.ParseAddress(a.Text, p.opts.UniverseSize)
			if err != nil {
				return nil, fmt.Errorf("Address: %w", err)
			}
			if b, ok := a.Attr("break"); ok {
				if addr.Break, err = xmltree.ParseInt(b); err != nil {
					return nil, fmt.Errorf("Address break: %w", err)
				}
			}
			f.Addresses = append(f.Addresses, addr)
		}
	}
	if cc := el.Child("CustomCommands"); cc != nil {
		for _, c := range cc.ChildrenNamed("CustomCommand") {
			f.CustomCommands = append(f.CustomCommands, c.Text)
		}
	}
	for _, c := range el.Children {
		if knownFields[c.Name] || len(c.Children) > 0 {
			continue
		}
		if f.CustomAttributes == nil {
			f.CustomAttributes = map[string]string{}
		}
		f.CustomAttributes[c.Name] = strings.TrimSpace(c.Text)
	}
	return f, nil
}
