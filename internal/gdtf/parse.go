// Package gdtf parses General Device Type Format descriptors into
// api.FixtureType values.
package gdtf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/xmltree"
)

// RootElement is the expected descriptor root.
const RootElement = "GDTF"

// Options tune descriptor parsing.
type Options struct {
	Path       string // descriptor path used in diagnostics
	Source     string // container name recorded on the type
	MaxVersion api.Version
}

func (o *Options) defaults() {
	if o.Path == "" {
		o.Path = "description.xml"
	}
	if o.MaxVersion.IsZero() {
		o.MaxVersion = api.DefaultGDTFMaxVersion
	}
}

// Parse decodes a description.xml. A malformed document, a root mismatch or
// a missing FixtureType element is fatal; other problems are recorded on
// the returned type's Diagnostics.
func Parse(buf []byte, opts Options) (*api.FixtureType, error) {
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
	ftEl := root.Child("FixtureType")
	if ftEl == nil {
		return nil, &api.Error{Kind: api.ErrSchema, Op: "find fixture type", Path: opts.Path, Line: root.Line,
			Err: fmt.Errorf("no FixtureType element")}
	}

	p := &parser{opts: opts, ft: &api.FixtureType{
		Name:          ftEl.AttrOr("Name", ""),
		ShortName:     ftEl.AttrOr("ShortName", ""),
		LongName:      ftEl.AttrOr("LongName", ""),
		Manufacturer:  ftEl.AttrOr("Manufacturer", ""),
		Description:   ftEl.AttrOr("Description", ""),
		Thumbnail:     ftEl.AttrOr("Thumbnail", ""),
		Source:        opts.Source,
		Attributes:    map[string]*api.AttributeDef{},
		Channels:      map[string]*api.ChannelBehavior{},
		Models:        map[string]*api.Model{},
		GeometryIndex: map[string]*api.Geometry{},
	}}
	p.version(root)
	p.identity(ftEl)
	if el := ftEl.Path("AttributeDefinitions", "Attributes"); el != nil {
		p.attributes(el)
	}
	if el := ftEl.Child("Wheels"); el != nil {
		p.wheels(el)
	}
	if el := ftEl.Child("Models"); el != nil {
		p.models(el)
	}
	if el := ftEl.Child("Geometries"); el != nil {
		p.ft.Geometries = p.geometries(el, nil)
	}
	if el := ftEl.Child("DMXModes"); el != nil {
		p.modes(el)
	}
	if el := ftEl.Child("Revisions"); el != nil {
		p.revisions(el)
	}
	p.link()
	return p.ft, nil
}

type parser struct {
	opts Options
	ft   *api.FixtureType
}

func (p *parser) report(sev api.Severity, kind error, op string, line int, err error) {
	p.ft.Diagnostics.Add(sev, &api.Error{Kind: kind, Op: op, Path: p.opts.Path, Line: line, Err: err})
}

func (p *parser) warn(kind error, op string, line int, err error) {
	p.report(api.SeverityWarning, kind, op, line, err)
}

func (p *parser) fail(kind error, op string, line int, err error) {
	p.report(api.SeverityError, kind, op, line, err)
}

func (p *parser) version(root *xmltree.Element) {
	s, ok := root.Attr("DataVersion")
	if !ok {
		p.warn(api.ErrValue, "read version", root.Line, fmt.Errorf("DataVersion missing, assuming supported"))
		return
	}
	v, err := api.ParseVersion(s)
	if err != nil {
		p.warn(api.ErrValue, "read version", root.Line, err)
		return
	}
	p.ft.DataVersion = v
	if v.Newer(p.opts.MaxVersion) {
		p.warn(api.ErrVersion, "check version", root.Line,
			fmt.Errorf("GDTF %s is newer than supported %s, continuing best-effort", v, p.opts.MaxVersion))
	}
}

func (p *parser) identity(el *xmltree.Element) {
	if s, ok := el.Attr("FixtureTypeID"); ok {
		id, err := xmltree.ParseGUID(s)
		if err != nil {
			p.fail(api.ErrValue, "parse FixtureTypeID", el.Line, err)
		}
		p.ft.ID = id
	} else {
		p.warn(api.ErrValue, "parse FixtureTypeID", el.Line, fmt.Errorf("FixtureTypeID missing"))
	}
	if s, ok := el.Attr("RefFT"); ok && s != "" {
		if id, err := xmltree.ParseGUID(s); err == nil {
			p.ft.RefFT = id
		} else {
			p.warn(api.ErrValue, "parse RefFT", el.Line, err)
		}
	}
}

func (p *parser) attributes(el *xmltree.Element) {
	for _, a := range el.ChildrenNamed("Attribute") {
		name := a.AttrOr("Name", "")
		if name == "" {
			p.fail(api.ErrValue, "parse attribute", a.Line, fmt.Errorf("attribute without Name"))
			continue
		}
		if _, dup := p.ft.Attributes[name]; dup {
			p.warn(api.ErrValue, "parse attribute", a.Line, fmt.Errorf("duplicate attribute %q", name))
			continue
		}
		p.ft.Attributes[name] = &api.AttributeDef{
			Name:            name,
			Pretty:          a.AttrOr("Pretty", ""),
			Feature:         a.AttrOr("Feature", ""),
			ActivationGroup: a.AttrOr("ActivationGroup", ""),
			MainAttribute:   a.AttrOr("MainAttribute", ""),
			PhysicalUnit:    a.AttrOr("PhysicalUnit", "None"),
		}
		p.ft.AttributeOrder = append(p.ft.AttributeOrder, name)
	}
}

func (p *parser) wheels(el *xmltree.Element) {
	for _, w := range el.ChildrenNamed("Wheel") {
		wheel := &api.Wheel{Name: w.AttrOr("Name", "")}
		for _, s := range w.ChildrenNamed("Slot") {
			slot := api.WheelSlot{Name: s.AttrOr("Name", ""), MediaFileName: s.AttrOr("MediaFileName", "")}
			if c, ok := s.Attr("Color"); ok && c != "" {
				col, err := xmltree.ParseCIE(c)
				if err != nil {
					p.fail(api.ErrValue, "parse slot color", s.Line, err)
				} else {
					slot.Color = &col
				}
			}
			wheel.Slots = append(wheel.Slots, slot)
		}
		p.ft.Wheels = append(p.ft.Wheels, wheel)
	}
}

// NormalizePrimitive strips the "1_1" suffix of GDTF 1.1 primitive names
// (Base1_1, Yoke1_1, ...).
func NormalizePrimitive(s string) string {
	return strings.TrimSuffix(s, "1_1")
}

// ModelEntries returns the candidate archive paths for a model file, glTF
// before 3DS.
func ModelEntries(file string) []string {
	if file == "" {
		return nil
	}
	return []string{
		"models/gltf/" + file + ".glb",
		"models/gltf/" + file + ".gltf",
		"models/3ds/" + file + ".3ds",
	}
}

func floatAttr(el *xmltree.Element, name string) (float64, error) {
	s, ok := el.Attr(name)
	if !ok || s == "" {
		return 0, nil
	}
	f, err := xmltree.ParseFloat(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

func (p *parser) models(el *xmltree.Element) {
	for _, m := range el.ChildrenNamed("Model") {
		model := &api.Model{
			Name:          m.AttrOr("Name", ""),
			PrimitiveType: NormalizePrimitive(m.AttrOr("PrimitiveType", "Undefined")),
			File:          m.AttrOr("File", ""),
		}
		var err error
		if model.Length, err = floatAttr(m, "Length"); err == nil {
			if model.Width, err = floatAttr(m, "Width"); err == nil {
				model.Height, err = floatAttr(m, "Height")
			}
		}
		if err != nil {
			p.fail(api.ErrValue, "parse model "+model.Name, m.Line, err)
			continue
		}
		model.Entries = ModelEntries(model.File)
		if _, dup := p.ft.Models[model.Name]; dup {
			p.warn(api.ErrValue, "parse model", m.Line, fmt.Errorf("duplicate model %q", model.Name))
			continue
		}
		p.ft.Models[model.Name] = model
	}
}

// Elements inside a geometry that are not geometries themselves.
var geometryData = map[string]bool{
	"Break": true, "PinPatch": true, "WiringObject_PinPatch": true,
}

// geometries parses the children of el. A geometry with a malformed
// position is skipped; its children are kept under the nearest parent.
func (p *parser) geometries(el *xmltree.Element, parent *api.Geometry) []*api.Geometry {
	var out []*api.Geometry
	for _, g := range el.Children {
		if geometryData[g.Name] {
			continue
		}
		geo := &api.Geometry{
			Name:     g.AttrOr("Name", ""),
			Type:     g.Name,
			Model:    g.AttrOr("Model", ""),
			Position: api.Identity(),
			Line:     g.Line,
		}
		if s, ok := g.Attr("Position"); ok && s != "" {
			m, err := xmltree.ParseGDTFMatrix(s)
			if err != nil {
				p.fail(api.ErrValue, "parse geometry "+geo.Name, g.Line, err)
				out = append(out, p.geometries(g, parent)...)
				continue
			}
			geo.Position = m
		}
		if g.Name == "GeometryReference" {
			geo.Reference = g.AttrOr("Geometry", "")
			for _, b := range g.ChildrenNamed("Break") {
				brk, err1 := xmltree.ParseInt(b.AttrOr("DMXBreak", "1"))
				off, err2 := xmltree.ParseInt(b.AttrOr("DMXOffset", "1"))
				if err1 != nil || err2 != nil {
					p.fail(api.ErrValue, "parse break", b.Line, fmt.Errorf("bad DMXBreak/DMXOffset on %s", geo.Name))
					continue
				}
				geo.Breaks = append(geo.Breaks, api.GeometryBreak{DMXBreak: brk, DMXOffset: off})
			}
		}
		switch g.Name {
		case "Beam":
			geo.Beam = p.beam(g)
		case "Laser":
			geo.Laser = p.laser(g)
		}
		if _, dup := p.ft.GeometryIndex[geo.Name]; dup {
			p.warn(api.ErrValue, "index geometry", g.Line, fmt.Errorf("duplicate geometry name %q", geo.Name))
		} else {
			p.ft.GeometryIndex[geo.Name] = geo
		}
		geo.Children = p.geometries(g, geo)
		out = append(out, geo)
	}
	return out
}

// beam reads the emitter attributes of a Beam geometry. Malformed values
// are reported and fall back to their defaults.
func (p *parser) beam(el *xmltree.Element) *api.Beam {
	b := api.DefaultBeam()
	b.LampType = el.AttrOr("LampType", b.LampType)
	b.BeamType = el.AttrOr("BeamType", b.BeamType)
	b.EmitterSpectrum = el.AttrOr("EmitterSpectrum", b.EmitterSpectrum)
	p.floats(el, map[string]*float64{
		"PowerConsumption": &b.PowerConsumption,
		"LuminousFlux":     &b.LuminousFlux,
		"ColorTemperature": &b.ColorTemperature,
		"BeamAngle":        &b.BeamAngle,
		"FieldAngle":       &b.FieldAngle,
		"ThrowRatio":       &b.ThrowRatio,
		"RectangleRatio":   &b.RectangleRatio,
		"BeamRadius":       &b.BeamRadius,
	})
	if s, ok := el.Attr("ColorRenderingIndex"); ok && s != "" {
		if n, err := xmltree.ParseInt(s); err != nil {
			p.warn(api.ErrValue, "parse beam "+el.AttrOr("Name", ""), el.Line, fmt.Errorf("ColorRenderingIndex: %w", err))
		} else {
			b.ColorRenderingIndex = n
		}
	}
	return &b
}

func (p *parser) laser(el *xmltree.Element) *api.Laser {
	l := &api.Laser{
		ColorType: el.AttrOr("ColorType", "RGB"),
		Emitter:   el.AttrOr("Emitter", ""),
	}
	p.floats(el, map[string]*float64{
		"Color":             &l.Color,
		"OutputStrength":    &l.OutputStrength,
		"BeamDiameter":      &l.BeamDiameter,
		"BeamDivergenceMin": &l.BeamDivergenceMin,
		"BeamDivergenceMax": &l.BeamDivergenceMax,
		"ScanAnglePan":      &l.ScanAnglePan,
		"ScanAngleTilt":     &l.ScanAngleTilt,
		"ScanSpeed":         &l.ScanSpeed,
	})
	return l
}

// floats sets each present attribute, leaving the target untouched when the
// attribute is absent or malformed.
func (p *parser) floats(el *xmltree.Element, dst map[string]*float64) {
	for name, v := range dst {
		s, ok := el.Attr(name)
		if !ok || s == "" {
			continue
		}
		f, err := xmltree.ParseFloat(s)
		if err != nil {
			p.warn(api.ErrValue, "parse "+el.Name+" "+el.AttrOr("Name", ""), el.Line, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*v = f
	}
}

func (p *parser) modes(el *xmltree.Element) {
	for _, m := range el.ChildrenNamed("DMXMode") {
		mode := &api.DMXMode{
			Name:        m.AttrOr("Name", ""),
			Description: m.AttrOr("Description", ""),
			Geometry:    m.AttrOr("Geometry", ""),
		}
		if chs := m.Child("DMXChannels"); chs != nil {
			for _, c := range chs.ChildrenNamed("DMXChannel") {
				ch, err := p.channel(c)
				if err != nil {
					p.fail(api.ErrValue, "parse channel in mode "+mode.Name, c.Line, err)
					continue
				}
				mode.Channels = append(mode.Channels, ch)
			}
		}
		p.ft.Modes = append(p.ft.Modes, mode)
	}
}

func dmxAttr(el *xmltree.Element, name string) (api.DMXValue, bool, error) {
	s, ok := el.Attr(name)
	if !ok || s == "" || s == "None" {
		return api.DMXValue{}, false, nil
	}
	v, err := xmltree.ParseDMXValue(s)
	if err != nil {
		return api.DMXValue{}, false, fmt.Errorf("%s: %w", name, err)
	}
	return v, true, nil
}

func (p *parser) channel(c *xmltree.Element) (*api.DMXChannel, error) {
	ch := &api.DMXChannel{
		Break:           1,
		Geometry:        c.AttrOr("Geometry", ""),
		InitialFunction: c.AttrOr("InitialFunction", ""),
		Line:            c.Line,
	}
	if s, ok := c.Attr("DMXBreak"); ok {
		if s == "Overwrite" {
			ch.Break = 0
		} else {
			b, err := xmltree.ParseInt(s)
			if err != nil {
				return nil, fmt.Errorf("DMXBreak: %w", err)
			}
			ch.Break = b
		}
	}
	var err error
	if ch.Offset, err = xmltree.ParseOffset(c.AttrOr("Offset", "")); err != nil {
		return nil, fmt.Errorf("Offset: %w", err)
	}
	def, hasDefault, err := dmxAttr(c, "Default")
	if err != nil {
		return nil, err
	}
	if hl, ok, err := dmxAttr(c, "Highlight"); err != nil {
		return nil, err
	} else if ok {
		ch.Highlight = &hl
	}
	for _, l := range c.ChildrenNamed("LogicalChannel") {
		lc := &api.LogicalChannel{
			Attribute: l.AttrOr("Attribute", ""),
			Snap:      l.AttrOr("Snap", "No"),
			Master:    l.AttrOr("Master", "None"),
		}
		for _, f := range l.ChildrenNamed("ChannelFunction") {
			fn, err := p.function(f)
			if err != nil {
				return nil, err
			}
			lc.Functions = append(lc.Functions, fn)
		}
		ch.LogicalChannels = append(ch.LogicalChannels, lc)
	}
	// GDTF 1.0 carries the default on the channel, later versions on the
	// initial channel function.
	if hasDefault {
		ch.Default = def
	} else if fn := initialFunction(ch); fn != nil {
		ch.Default = fn.Default
	}
	return ch, nil
}

func (p *parser) function(f *xmltree.Element) (*api.ChannelFunction, error) {
	fn := &api.ChannelFunction{
		Name:              f.AttrOr("Name", ""),
		Attribute:         f.AttrOr("Attribute", "NoFeature"),
		OriginalAttribute: f.AttrOr("OriginalAttribute", ""),
		Wheel:             f.AttrOr("Wheel", ""),
	}
	var err error
	if fn.DMXFrom, _, err = dmxAttr(f, "DMXFrom"); err != nil {
		return nil, err
	}
	if fn.Default, _, err = dmxAttr(f, "Default"); err != nil {
		return nil, err
	}
	if fn.PhysicalFrom, err = floatAttr(f, "PhysicalFrom"); err != nil {
		return nil, err
	}
	if fn.PhysicalTo, err = floatAttr(f, "PhysicalTo"); err != nil {
		return nil, err
	}
	for _, s := range f.ChildrenNamed("ChannelSet") {
		set := &api.ChannelSet{Name: s.AttrOr("Name", "")}
		if set.DMXFrom, _, err = dmxAttr(s, "DMXFrom"); err != nil {
			return nil, err
		}
		if set.PhysicalFrom, err = floatAttr(s, "PhysicalFrom"); err != nil {
			return nil, err
		}
		if set.PhysicalTo, err = floatAttr(s, "PhysicalTo"); err != nil {
			return nil, err
		}
		if w, ok := s.Attr("WheelSlotIndex"); ok && w != "" {
			if set.WheelSlot, err = xmltree.ParseInt(w); err != nil {
				return nil, fmt.Errorf("WheelSlotIndex: %w", err)
			}
		}
		fn.Sets = append(fn.Sets, set)
	}
	return fn, nil
}

func (p *parser) revisions(el *xmltree.Element) {
	for _, r := range el.ChildrenNamed("Revision") {
		rev := api.Revision{
			Text:       r.AttrOr("Text", ""),
			Date:       r.AttrOr("Date", ""),
			ModifiedBy: r.AttrOr("ModifiedBy", ""),
		}
		if s, ok := r.Attr("UserID"); ok && s != "" {
			if id, err := xmltree.ParseInt(s); err == nil {
				rev.UserID = id
			}
		}
		p.ft.Revisions = append(p.ft.Revisions, rev)
	}
}

// link validates cross references and builds the attribute → behavior map.
func (p *parser) link() {
	for _, root := range p.ft.Geometries {
		root.Walk(func(g *api.Geometry) bool {
			if g.Model != "" {
				if _, ok := p.ft.Models[g.Model]; !ok {
					p.warn(api.ErrReference, "resolve model", g.Line,
						fmt.Errorf("geometry %q references unknown model %q", g.Name, g.Model))
				}
			}
			if g.Type == "GeometryReference" {
				if _, ok := p.ft.GeometryIndex[g.Reference]; !ok {
					p.warn(api.ErrReference, "resolve geometry reference", g.Line,
						fmt.Errorf("geometry reference %q points at unknown geometry %q", g.Name, g.Reference))
				}
			}
			return true
		})
	}
	for _, m := range p.ft.Modes {
		if m.Geometry != "" {
			if _, ok := p.ft.GeometryIndex[m.Geometry]; !ok {
				p.warn(api.ErrReference, "resolve mode geometry", 0,
					fmt.Errorf("mode %q root geometry %q not found", m.Name, m.Geometry))
			}
		}
		for _, ch := range m.Channels {
			for _, lc := range ch.LogicalChannels {
				for _, fn := range lc.Functions {
					p.behavior(m, ch, fn)
				}
			}
		}
	}
}

func (p *parser) behavior(m *api.DMXMode, ch *api.DMXChannel, fn *api.ChannelFunction) {
	attr := fn.Attribute
	if attr == "" || attr == "NoFeature" {
		return
	}
	b, ok := p.ft.Channels[attr]
	if !ok {
		b = &api.ChannelBehavior{
			Attribute:    attr,
			PhysicalFrom: fn.PhysicalFrom,
			PhysicalTo:   fn.PhysicalTo,
			Default:      ch.Default,
			Geometry:     ch.Geometry,
		}
		if def, ok := p.ft.Attributes[attr]; ok {
			b.Feature = def.Feature
			b.PhysicalUnit = def.PhysicalUnit
		} else {
			p.warn(api.ErrReference, "resolve attribute", ch.Line,
				fmt.Errorf("channel function %q uses undefined attribute %q", fn.Name, attr))
		}
		p.ft.Channels[attr] = b
	}
	if n := len(b.Modes); n == 0 || b.Modes[n-1] != m.Name {
		b.Modes = append(b.Modes, m.Name)
	}
}

// initialFunction finds the function named by the channel's InitialFunction
// node path (Channel.LogicalChannel.Function), defaulting to the first one.
func initialFunction(ch *api.DMXChannel) *api.ChannelFunction {
	var first *api.ChannelFunction
	want := ch.InitialFunction
	if i := strings.LastIndexByte(want, '.'); i >= 0 {
		want = want[i+1:]
	}
	for _, lc := range ch.LogicalChannels {
		for _, fn := range lc.Functions {
			if first == nil {
				first = fn
			}
			if want != "" && fn.Name == want {
				return fn
			}
		}
	}
	return first
}
