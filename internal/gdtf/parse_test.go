package gdtf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archive"
	"github.com/agentic-research/rigkit/internal/archivetest"
	"github.com/agentic-research/rigkit/internal/geometry"
)

func TestParse_SimpleFixtureType(t *testing.T) {
	src := archivetest.SimpleFixtureType("Spot")
	ft, err := Parse(src.DescriptionXML(), Options{Source: "Acme@Spot.gdtf"})
	require.NoError(t, err)
	assert.Empty(t, ft.Diagnostics)

	assert.Equal(t, src.ID, ft.ID)
	assert.Equal(t, "Spot", ft.Name)
	assert.Equal(t, "Acme", ft.Manufacturer)
	assert.Equal(t, api.Version{Major: 1, Minor: 1}, ft.DataVersion)
	assert.False(t, ft.IsPlaceholder())
	assert.Equal(t, []string{"Dimmer", "Pan", "Tilt"}, ft.AttributeOrder)

	require.Len(t, ft.Modes, 2)
	basic, ok := ft.Mode("Basic")
	require.True(t, ok)
	assert.Equal(t, 1, basic.Footprint(1))
	ext, _ := ft.Mode("Extended")
	require.Len(t, ext.Channels, 3)
	assert.Equal(t, "Base_Pan", ext.Channels[1].Name())
	assert.Equal(t, []int{2}, ext.Channels[1].Offset)
	require.NotNil(t, ext.Channels[1].Highlight)
	assert.Equal(t, int64(255), ext.Channels[1].Highlight.Value)

	dim := ft.Channels["Dimmer"]
	require.NotNil(t, dim)
	assert.Equal(t, []string{"Basic", "Extended"}, dim.Modes)
	assert.Equal(t, "Dimmer.Dimmer", dim.Feature)
	assert.Equal(t, []string{"Extended"}, ft.Channels["Pan"].Modes)

	require.Len(t, ft.Wheels, 1)
	require.Len(t, ft.Wheels[0].Slots, 2)
	assert.InDelta(t, 0.64, ft.Wheels[0].Slots[1].Color.X, 1e-9)

	require.Len(t, ft.Geometries, 1)
	head, ok := ft.Geometry("Head")
	require.True(t, ok)
	assert.Equal(t, "Beam", head.Type)
	assert.Equal(t, [3]float64{0, 0, 0.2}, head.Position.Translate())

	assert.Equal(t, "Cube", ft.Models["Base"].PrimitiveType)
	assert.Equal(t, []string{"models/gltf/head.glb", "models/gltf/head.gltf", "models/3ds/head.3ds"}, ft.Models["Head"].Entries)
	require.Len(t, ft.Revisions, 1)
}

func TestParse_RootErrors(t *testing.T) {
	_, err := Parse([]byte(`<GeneralSceneDescription/>`), Options{})
	assert.True(t, errors.Is(err, api.ErrSchema))
	_, err = Parse([]byte(`<GDTF DataVersion="1.1"/>`), Options{})
	assert.True(t, errors.Is(err, api.ErrSchema))
	_, err = Parse([]byte(`not xml`), Options{})
	assert.True(t, errors.Is(err, api.ErrSchema))
}

func TestParse_VersionNewerIsRecoverable(t *testing.T) {
	src := archivetest.SimpleFixtureType("Spot")
	src.DataVersion = "9.0"
	ft, err := Parse(src.DescriptionXML(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, ft.Diagnostics.Count(api.ErrVersion))
	assert.Len(t, ft.Modes, 2)
}

const partial = `<GDTF DataVersion="1.2">
<FixtureType Name="Odd" FixtureTypeID="not-a-guid">
  <Models>
    <Model Name="Body" Length="0.2" Width="x" Height="0.1" PrimitiveType="Base1_1"/>
    <Model Name="Lens" Length="0.1" Width="0.1" Height="0.1" PrimitiveType="Cylinder"/>
  </Models>
  <Geometries>
    <Geometry Name="Root" Model="Body" Position="{1,0,0,0}{0,1,0,0}{0,0,1,nope}{0,0,0,1}">
      <Beam Name="Lens" Model="Lens"/>
    </Geometry>
    <GeometryReference Name="Ref" Geometry="Missing"><Break DMXBreak="2" DMXOffset="5"/></GeometryReference>
  </Geometries>
  <DMXModes>
    <DMXMode Name="M" Geometry="Root">
      <DMXChannels>
        <DMXChannel DMXBreak="1" Offset="1" Default="0/1" Geometry="Lens"><LogicalChannel Attribute="Dimmer"><ChannelFunction Attribute="Dimmer" DMXFrom="0/1"/></LogicalChannel></DMXChannel>
        <DMXChannel DMXBreak="1" Offset="x" Geometry="Lens"/>
        <DMXChannel DMXBreak="Overwrite" Offset="None" Geometry="Lens"/>
      </DMXChannels>
    </DMXMode>
  </DMXModes>
</FixtureType>
</GDTF>`

func TestParse_PartialSuccess(t *testing.T) {
	ft, err := Parse([]byte(partial), Options{})
	require.NoError(t, err)

	// Bad FixtureTypeID, bad model width, bad geometry position, bad offset.
	assert.Equal(t, 4, ft.Diagnostics.Count(api.ErrValue))
	// Missing reference target, mode root geometry skipped, Dimmer
	// attribute undefined.
	assert.Equal(t, 3, ft.Diagnostics.Count(api.ErrReference))

	_, ok := ft.Models["Body"]
	assert.False(t, ok)
	_, ok = ft.Geometry("Root")
	assert.False(t, ok)
	lens, ok := ft.Geometry("Lens")
	require.True(t, ok, "children of a skipped geometry survive")
	assert.Equal(t, "Lens", lens.Model)

	ref, ok := ft.Geometry("Ref")
	require.True(t, ok)
	assert.Equal(t, []api.GeometryBreak{{DMXBreak: 2, DMXOffset: 5}}, ref.Breaks)

	m := ft.Modes[0]
	require.Len(t, m.Channels, 2)
	assert.Equal(t, 0, m.Channels[1].Break)
	assert.Nil(t, m.Channels[1].Offset)
	assert.Equal(t, 1, m.Footprint(1))
}

const emitters = `<GDTF DataVersion="1.2">
<FixtureType Name="FX" FixtureTypeID="9A1E5B3C-0000-4000-8000-00000000ABCD">
  <Geometries>
    <Geometry Name="Body">
      <Beam Name="Lens" LampType="LED" PowerConsumption="450" LuminousFlux="22000" BeamAngle="12.5" FieldAngle="18"
            BeamRadius="0.08" BeamType="Spot" ColorRenderingIndex="92" ThrowRatio="bad"/>
      <Beam Name="Glow" BeamType="Glow"/>
      <Laser Name="Emitter" ColorType="SingleWaveLength" Color="532" BeamDiameter="0.004" ScanAnglePan="30"/>
      <MediaServerCamera Name="View"/>
    </Geometry>
  </Geometries>
</FixtureType>
</GDTF>`

func TestParse_EmitterGeometries(t *testing.T) {
	ft, err := Parse([]byte(emitters), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, ft.Diagnostics.Count(api.ErrValue), "malformed ThrowRatio")

	lens, ok := ft.Geometry("Lens")
	require.True(t, ok)
	require.NotNil(t, lens.Beam)
	assert.Nil(t, lens.Laser)
	assert.Equal(t, "LED", lens.Beam.LampType)
	assert.Equal(t, 450.0, lens.Beam.PowerConsumption)
	assert.Equal(t, 22000.0, lens.Beam.LuminousFlux)
	assert.Equal(t, 12.5, lens.Beam.BeamAngle)
	assert.Equal(t, 18.0, lens.Beam.FieldAngle)
	assert.Equal(t, 0.08, lens.Beam.BeamRadius)
	assert.Equal(t, "Spot", lens.Beam.BeamType)
	assert.Equal(t, 92, lens.Beam.ColorRenderingIndex)
	assert.Equal(t, 1.0, lens.Beam.ThrowRatio, "malformed value keeps the default")
	assert.Equal(t, 6000.0, lens.Beam.ColorTemperature)
	assert.True(t, lens.Beam.Emits())

	glow, _ := ft.Geometry("Glow")
	require.NotNil(t, glow.Beam)
	assert.False(t, glow.Beam.Emits())
	assert.Equal(t, api.DefaultBeam().BeamAngle, glow.Beam.BeamAngle)

	laser, _ := ft.Geometry("Emitter")
	require.NotNil(t, laser.Laser)
	assert.Equal(t, "SingleWaveLength", laser.Laser.ColorType)
	assert.Equal(t, 532.0, laser.Laser.Color)
	assert.Equal(t, 0.004, laser.Laser.BeamDiameter)
	assert.Equal(t, 30.0, laser.Laser.ScanAnglePan)

	view, _ := ft.Geometry("View")
	assert.True(t, view.IsCamera())
	assert.Nil(t, view.Beam)
	body, _ := ft.Geometry("Body")
	assert.False(t, body.IsCamera())
}

func TestNormalizePrimitive(t *testing.T) {
	assert.Equal(t, "Base", NormalizePrimitive("Base1_1"))
	assert.Equal(t, "Cube", NormalizePrimitive("Cube"))
}

func TestLoad_NarrowsModelEntries(t *testing.T) {
	src := archivetest.SimpleFixtureType("Spot")
	data := src.GDTF(t, archivetest.Entry{Name: "models/3ds/head.3ds", Data: []byte("x")})
	c, err := archive.OpenBytes("Acme@Spot.gdtf", data)
	require.NoError(t, err)

	ft, err := Load(c, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Acme@Spot.gdtf", ft.Source)
	assert.Equal(t, []string{"models/3ds/head.3ds"}, ft.Models["Head"].Entries)
	assert.Equal(t, 1, c.ReadCount("description.xml"))
}

func TestLoad_MissingModelFileReported(t *testing.T) {
	c, err := archive.OpenBytes("Acme@Spot.gdtf", archivetest.SimpleFixtureType("Spot").GDTF(t))
	require.NoError(t, err)
	ft, err := Load(c, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, ft.Diagnostics.Count(api.ErrNotFound))
	assert.Empty(t, ft.Models["Head"].Entries)
}

func TestModelRefs(t *testing.T) {
	c, err := archive.OpenBytes("Acme@Spot.gdtf", archivetest.SimpleFixtureType("Spot").GDTF(t,
		archivetest.Entry{Name: "models/gltf/head.glb", Data: []byte("x")}))
	require.NoError(t, err)
	ft, err := Load(c, Options{})
	require.NoError(t, err)

	mode, _ := ft.Mode("Basic")
	refs := ModelRefs(ft, mode)
	require.Len(t, refs, 3, "Base, Yoke and Head")

	assert.Equal(t, api.GeometryModel, refs[0].Kind)
	assert.Equal(t, "Cube", refs[0].Primitive)
	assert.Equal(t, [3]float64{0.3, 0.3, 0.1}, refs[0].Transform.ScaleFactors())

	head := refs[2]
	assert.Equal(t, api.GeometryFile, head.Kind)
	assert.Equal(t, "models/gltf/head.glb", head.File)
	assert.Equal(t, "Acme@Spot.gdtf", head.Source)
	pos := head.Transform.Translate()
	assert.InDeltaSlice(t, []float64{0, 0, 0.3}, pos[:], 1e-9)
}

func TestModelRefs_MissingFileKeepsFileReference(t *testing.T) {
	c, err := archive.OpenBytes("Acme@Spot.gdtf", archivetest.SimpleFixtureType("Spot").GDTF(t))
	require.NoError(t, err)
	ft, err := Load(c, Options{})
	require.NoError(t, err)

	mode, _ := ft.Mode("Basic")
	refs := ModelRefs(ft, mode)
	require.Len(t, refs, 3)
	head := refs[2]
	assert.Equal(t, api.GeometryFile, head.Kind)
	assert.Equal(t, "models/gltf/head.glb", head.File)
	assert.Empty(t, head.Primitive)

	l := geometry.NewLoader()
	l.Register(c.Name(), c)
	p, err := l.Load(head)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrGeometry))
	assert.True(t, p.Empty())
}

func TestModelRefs_GeometryReference(t *testing.T) {
	ft := &api.FixtureType{
		Models:        map[string]*api.Model{"Cell": {Name: "Cell", Length: 1, Width: 1, Height: 1, PrimitiveType: "Cube"}},
		GeometryIndex: map[string]*api.Geometry{},
	}
	cell := &api.Geometry{Name: "Cell", Type: "Geometry", Model: "Cell", Position: api.Translation(5, 5, 5)}
	ref1 := &api.Geometry{Name: "R1", Type: "GeometryReference", Reference: "Cell", Position: api.Translation(1, 0, 0)}
	ref2 := &api.Geometry{Name: "R2", Type: "GeometryReference", Reference: "Cell", Position: api.Translation(2, 0, 0)}
	body := &api.Geometry{Name: "Body", Type: "Geometry", Position: api.Identity(), Children: []*api.Geometry{ref1, ref2}}
	ft.Geometries = []*api.Geometry{body, cell}
	for _, g := range []*api.Geometry{cell, ref1, ref2, body} {
		ft.GeometryIndex[g.Name] = g
	}

	refs := ModelRefs(ft, &api.DMXMode{Geometry: "Body"})
	require.Len(t, refs, 2)
	assert.Equal(t, [3]float64{1, 0, 0}, refs[0].Transform.Translate())
	assert.Equal(t, [3]float64{2, 0, 0}, refs[1].Transform.Translate())
}
