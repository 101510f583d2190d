// Package archivetest builds small MVR and GDTF archives for tests.
package archivetest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// Entry is one file to place in a test archive.
type Entry struct {
	Name string
	Data []byte
}

// Zip writes entries in order into a ZIP archive. Duplicate names are kept.
func Zip(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// FixtureType describes a minimal GDTF fixture type.
type FixtureType struct {
	ID           uuid.UUID
	Name         string
	Manufacturer string
	DataVersion  string
	// Modes maps mode name to its channel attributes in offset order.
	Modes []Mode
}

// Mode is a DMX mode with one single-byte channel per attribute.
type Mode struct {
	Name       string
	Attributes []string
}

// DescriptionXML renders the fixture type as a GDTF description.xml.
func (ft FixtureType) DescriptionXML() []byte {
	version := ft.DataVersion
	if version == "" {
		version = "1.1"
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<GDTF DataVersion="%s">
  <FixtureType Name="%s" ShortName="%s" LongName="%s %s" Manufacturer="%s" FixtureTypeID="%s" Thumbnail="thumb">
    <AttributeDefinitions>
      <Attributes>
        <Attribute Name="Dimmer" Pretty="Dim" Feature="Dimmer.Dimmer" PhysicalUnit="LuminousIntensity"/>
        <Attribute Name="Pan" Pretty="P" Feature="Position.PanTilt" PhysicalUnit="Angle"/>
        <Attribute Name="Tilt" Pretty="T" Feature="Position.PanTilt" PhysicalUnit="Angle"/>
      </Attributes>
    </AttributeDefinitions>
    <Wheels>
      <Wheel Name="Color1">
        <Slot Name="Open" Color="0.3127,0.3290,100.000000"/>
        <Slot Name="Red" Color="0.64,0.33,21.26"/>
      </Wheel>
    </Wheels>
    <Models>
      <Model Name="Base" Length="0.3" Width="0.3" Height="0.1" PrimitiveType="Cube"/>
      <Model Name="Head" Length="0.2" Width="0.2" Height="0.25" PrimitiveType="Undefined" File="head"/>
    </Models>
    <Geometries>
      <Geometry Name="Base" Model="Base" Position="{1,0,0,0}{0,1,0,0}{0,0,1,0}{0,0,0,1}">
        <Axis Name="Yoke" Model="Base" Position="{1,0,0,0}{0,1,0,0}{0,0,1,0.1}{0,0,0,1}">
          <Beam Name="Head" Model="Head" Position="{1,0,0,0}{0,1,0,0}{0,0,1,0.2}{0,0,0,1}"/>
        </Axis>
      </Geometry>
    </Geometries>
    <DMXModes>
`, version, ft.Name, ft.Name, ft.Manufacturer, ft.Name, ft.Manufacturer, ft.ID)
	for _, m := range ft.Modes {
		fmt.Fprintf(&b, "      <DMXMode Name=%q Geometry=\"Base\">\n        <DMXChannels>\n", m.Name)
		for i, attr := range m.Attributes {
			fmt.Fprintf(&b, `          <DMXChannel DMXBreak="1" Offset="%d" Default="0/1" Highlight="255/1" Geometry="Base">
            <LogicalChannel Attribute="%s" Snap="No" Master="None">
              <ChannelFunction Name="%s 1" Attribute="%s" OriginalAttribute="" DMXFrom="0/1" Default="0/1" PhysicalFrom="0" PhysicalTo="1">
                <ChannelSet Name="Closed" DMXFrom="0/1"/>
              </ChannelFunction>
            </LogicalChannel>
          </DMXChannel>
`, i+1, attr, attr, attr)
		}
		b.WriteString("        </DMXChannels>\n      </DMXMode>\n")
	}
	b.WriteString(`    </DMXModes>
    <Revisions>
      <Revision Text="initial" Date="2024-01-01T00:00:00" UserID="0"/>
    </Revisions>
  </FixtureType>
</GDTF>
`)
	return []byte(b.String())
}

// GDTF builds a .gdtf archive for ft.
func (ft FixtureType) GDTF(t testing.TB, extra ...Entry) []byte {
	t.Helper()
	entries := append([]Entry{{Name: "description.xml", Data: ft.DescriptionXML()}}, extra...)
	return Zip(t, entries...)
}

// SimpleFixtureType returns a two-mode type: "Basic" has Dimmer only,
// "Extended" has Dimmer, Pan and Tilt.
func SimpleFixtureType(name string) FixtureType {
	return FixtureType{
		ID:           uuid.NewSHA1(uuid.NameSpaceURL, []byte("rigkit/test/"+name)),
		Name:         name,
		Manufacturer: "Acme",
		Modes: []Mode{
			{Name: "Basic", Attributes: []string{"Dimmer"}},
			{Name: "Extended", Attributes: []string{"Dimmer", "Pan", "Tilt"}},
		},
	}
}

// SceneXML wraps layers in a GeneralSceneDescription root with AUXData.
func SceneXML(version, aux, layers string) []byte {
	major, minor := "1", "6"
	if version != "" {
		if i := strings.IndexByte(version, '.'); i > 0 {
			major, minor = version[:i], version[i+1:]
		}
	}
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="no" ?>
<GeneralSceneDescription verMajor="%s" verMinor="%s" provider="rigkit-test" providerVersion="0.1">
  <UserData/>
  <Scene>
    <AUXData>%s</AUXData>
    <Layers>%s</Layers>
  </Scene>
</GeneralSceneDescription>
`, major, minor, aux, layers))
}

// MVR builds a .mvr archive with the given scene descriptor and extra entries.
func MVR(t testing.TB, scene []byte, extra ...Entry) []byte {
	t.Helper()
	entries := append([]Entry{{Name: "GeneralSceneDescription.xml", Data: scene}}, extra...)
	return Zip(t, entries...)
}

// FixtureXML renders a Fixture element.
func FixtureXML(id uuid.UUID, name, spec, mode, matrix, address string) string {
	var m string
	if matrix != "" {
		m = "<Matrix>" + matrix + "</Matrix>"
	}
	var a string
	if address != "" {
		a = `<Addresses><Address break="0">` + address + `</Address></Addresses>`
	}
	return fmt.Sprintf(`<Fixture uuid="%s" name="%s">%s<GDTFSpec>%s</GDTFSpec><GDTFMode>%s</GDTFMode>%s<FixtureID>1</FixtureID><UnitNumber>0</UnitNumber></Fixture>`,
		id, name, m, spec, mode, a)
}

// LayerXML renders a Layer element around children.
func LayerXML(id uuid.UUID, name, children string) string {
	return fmt.Sprintf(`<Layer uuid="%s" name="%s"><ChildList>%s</ChildList></Layer>`, id, name, children)
}

// HeadModel is the one-triangle mesh file for the "Head" model of
// SimpleFixtureType. Without it the model's file is missing.
func HeadModel() Entry {
	return Entry{Name: "models/gltf/head.glb", Data: GLB("head", Triangle, []uint32{0, 1, 2}, [3]float64{})}
}
