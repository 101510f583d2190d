package api

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// NormalizeSpec reduces a GDTF file reference to its base name without the
// .gdtf extension, so "gdtf/Robe@Robin.gdtf" and "Robe@Robin" compare equal.
func NormalizeSpec(spec string) string {
	s := strings.TrimSpace(strings.ReplaceAll(spec, `\`, "/"))
	s = path.Base(s)
	if len(s) >= 5 && strings.EqualFold(s[len(s)-5:], ".gdtf") {
		s = s[:len(s)-5]
	}
	if s == "." || s == "/" {
		return ""
	}
	return s
}

// CIEColor is a CIE 1931 xyY color.
type CIEColor struct {
	X, Y      float64
	Luminance float64
}

func (c CIEColor) String() string {
	return fmt.Sprintf("%g,%g,%g", c.X, c.Y, c.Luminance)
}

// DMXValue is a GDTF "value/bytes" literal.
type DMXValue struct {
	Value int64
	Bytes int
}

// Resize rescales the value to n bytes of resolution by byte shifting.
func (v DMXValue) Resize(n int) int64 {
	if v.Bytes == 0 || n == v.Bytes {
		return v.Value
	}
	if n > v.Bytes {
		return v.Value << (8 * uint(n-v.Bytes))
	}
	return v.Value >> (8 * uint(v.Bytes-n))
}

func (v DMXValue) String() string {
	return fmt.Sprintf("%d/%d", v.Value, v.Bytes)
}

// FixtureType is a parsed GDTF device description. Instances are shared by
// pointer between every fixture that references them.
type FixtureType struct {
	ID           uuid.UUID
	Name         string
	ShortName    string
	LongName     string
	Manufacturer string
	Description  string
	Thumbnail    string
	RefFT        uuid.UUID
	DataVersion  Version
	Source       string // container name the type was parsed from

	Attributes     map[string]*AttributeDef
	AttributeOrder []string
	// Channels maps attribute name to how the type drives it.
	Channels      map[string]*ChannelBehavior
	Wheels        []*Wheel
	Models        map[string]*Model
	Geometries    []*Geometry
	GeometryIndex map[string]*Geometry
	Modes         []*DMXMode
	Revisions     []Revision

	Diagnostics Diagnostics

	placeholder bool
}

// Placeholder returns the sentinel type used for unresolved references.
func Placeholder(ref FixtureRef) *FixtureType {
	name := NormalizeSpec(ref.Spec)
	if name == "" && ref.ID != uuid.Nil {
		name = ref.ID.String()
	}
	return &FixtureType{
		ID:            ref.ID,
		Name:          name,
		Attributes:    map[string]*AttributeDef{},
		Channels:      map[string]*ChannelBehavior{},
		Models:        map[string]*Model{},
		GeometryIndex: map[string]*Geometry{},
		placeholder:   true,
	}
}

// IsPlaceholder reports whether t stands in for an unresolved reference.
func (t *FixtureType) IsPlaceholder() bool { return t == nil || t.placeholder }

// Mode returns the named DMX mode.
func (t *FixtureType) Mode(name string) (*DMXMode, bool) {
	for _, m := range t.Modes {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// ModeOrFirst returns the named mode, or the first mode when name is empty or
// unknown. fallback reports that the first mode was substituted for a
// non-empty name.
func (t *FixtureType) ModeOrFirst(name string) (mode *DMXMode, fallback bool) {
	if m, ok := t.Mode(name); ok {
		return m, false
	}
	if len(t.Modes) == 0 {
		return nil, name != ""
	}
	return t.Modes[0], name != ""
}

// Geometry looks up a geometry by name.
func (t *FixtureType) Geometry(name string) (*Geometry, bool) {
	g, ok := t.GeometryIndex[name]
	return g, ok
}

// AttributeDef is a GDTF attribute definition.
type AttributeDef struct {
	Name            string
	Pretty          string
	Feature         string
	ActivationGroup string
	MainAttribute   string
	PhysicalUnit    string
}

// ChannelBehavior summarizes how a fixture type drives one attribute.
type ChannelBehavior struct {
	Attribute    string
	Feature      string
	PhysicalUnit string
	PhysicalFrom float64
	PhysicalTo   float64
	Default      DMXValue
	Geometry     string
	Modes        []string // modes exposing the attribute, in mode order
}

// Wheel is a color, gobo or prism wheel.
type Wheel struct {
	Name  string
	Slots []WheelSlot
}

// WheelSlot is one position on a wheel.
type WheelSlot struct {
	Name          string
	Color         *CIEColor
	MediaFileName string
}

// Model is a GDTF model: a mesh file or a primitive scaled to its box.
type Model struct {
	Name          string
	Length        float64
	Width         float64
	Height        float64
	PrimitiveType string
	File          string
	// Entries are the candidate archive paths of the mesh file, in lookup order.
	Entries []string
}

// HasFile reports whether the model references a mesh file.
func (m *Model) HasFile() bool { return m.File != "" }

// Geometry is a node of the GDTF geometry tree.
type Geometry struct {
	Name      string
	Type      string // element name: Geometry, Axis, Beam, GeometryReference, ...
	Model     string
	Position  Matrix
	Reference string // GeometryReference target
	Breaks    []GeometryBreak
	Beam      *Beam  // Beam geometries only
	Laser     *Laser // Laser geometries only
	Children  []*Geometry
	Line      int
}

// IsCamera reports whether g is a media server camera view.
func (g *Geometry) IsCamera() bool { return g.Type == "MediaServerCamera" }

// Beam is the light source data of a Beam geometry. Angles are in degrees,
// BeamRadius in meters.
type Beam struct {
	LampType            string
	PowerConsumption    float64 // W
	LuminousFlux        float64 // lm
	ColorTemperature    float64 // K
	BeamAngle           float64
	FieldAngle          float64
	ThrowRatio          float64
	RectangleRatio      float64
	BeamRadius          float64
	BeamType            string // Wash, Spot, None, Rectangle, PC, Fresnel, Glow
	ColorRenderingIndex int
	EmitterSpectrum     string
}

// DefaultBeam returns the values GDTF assumes for absent Beam attributes.
func DefaultBeam() Beam {
	return Beam{
		LampType:            "Discharge",
		PowerConsumption:    1000,
		LuminousFlux:        10000,
		ColorTemperature:    6000,
		BeamAngle:           25,
		FieldAngle:          25,
		ThrowRatio:          1,
		RectangleRatio:      1.7777,
		BeamRadius:          0.05,
		BeamType:            "Wash",
		ColorRenderingIndex: 100,
	}
}

// Emits reports whether the beam produces a visible cone.
func (b *Beam) Emits() bool { return b.BeamType != "None" && b.BeamType != "Glow" }

// Laser is the emitter data of a Laser geometry. BeamDiameter is in meters,
// divergence and scan angles in milliradians and degrees as declared.
type Laser struct {
	ColorType         string // RGB or SingleWaveLength
	Color             float64
	OutputStrength    float64
	Emitter           string
	BeamDiameter      float64
	BeamDivergenceMin float64
	BeamDivergenceMax float64
	ScanAnglePan      float64
	ScanAngleTilt     float64
	ScanSpeed         float64
}

// GeometryBreak is a DMX break offset on a GeometryReference.
type GeometryBreak struct {
	DMXBreak  int
	DMXOffset int
}

// Walk visits g and its descendants depth-first in document order.
func (g *Geometry) Walk(fn func(*Geometry) bool) {
	if !fn(g) {
		return
	}
	for _, c := range g.Children {
		c.Walk(fn)
	}
}

// DMXMode is an ordered list of channel definitions.
type DMXMode struct {
	Name        string
	Description string
	Geometry    string
	Channels    []*DMXChannel
}

// Footprint returns the number of DMX slots the mode occupies in break brk.
func (m *DMXMode) Footprint(brk int) int {
	n := 0
	for _, ch := range m.Channels {
		if ch.Break != brk {
			continue
		}
		for _, o := range ch.Offset {
			if o > n {
				n = o
			}
		}
	}
	return n
}

// Breaks returns the distinct DMX breaks the mode uses, in channel order.
func (m *DMXMode) Breaks() []int {
	var out []int
	seen := map[int]bool{}
	for _, ch := range m.Channels {
		if ch.Offset == nil || seen[ch.Break] {
			continue
		}
		seen[ch.Break] = true
		out = append(out, ch.Break)
	}
	return out
}

// DMXChannel is one channel of a mode. Offset is nil for virtual channels.
type DMXChannel struct {
	Break           int
	Offset          []int
	Default         DMXValue
	Highlight       *DMXValue
	Geometry        string
	InitialFunction string
	LogicalChannels []*LogicalChannel
	Line            int
}

// Attribute returns the attribute of the first logical channel.
func (c *DMXChannel) Attribute() string {
	if len(c.LogicalChannels) == 0 {
		return ""
	}
	return c.LogicalChannels[0].Attribute
}

// Name is the conventional channel name Geometry_Attribute.
func (c *DMXChannel) Name() string {
	return c.Geometry + "_" + c.Attribute()
}

// LogicalChannel groups channel functions driving one attribute.
type LogicalChannel struct {
	Attribute string
	Snap      string
	Master    string
	Functions []*ChannelFunction
}

// ChannelFunction is a DMX range with a physical meaning.
type ChannelFunction struct {
	Name              string
	Attribute         string
	OriginalAttribute string
	DMXFrom           DMXValue
	Default           DMXValue
	PhysicalFrom      float64
	PhysicalTo        float64
	Wheel             string
	Sets              []*ChannelSet
}

// ChannelSet is a named sub-range of a channel function.
type ChannelSet struct {
	Name         string
	DMXFrom      DMXValue
	PhysicalFrom float64
	PhysicalTo   float64
	WheelSlot    int
}

// Revision is a change-log entry.
type Revision struct {
	Text       string
	Date       string
	UserID     int
	ModifiedBy string
}
