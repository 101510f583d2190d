package mvr

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/xmltree"
)

// WriteVersion is stamped on descriptors whose source version is unknown.
var WriteVersion = api.Version{Major: 1, Minor: 6}

// Encode renders doc as a GeneralSceneDescription.xml descriptor. Offsets
// are written back in millimeters.
func Encode(doc *Document, universeSize int) ([]byte, error) {
	if universeSize <= 0 {
		universeSize = DefaultUniverseSize
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	w := &writer{enc: xml.NewEncoder(&buf), universeSize: universeSize}
	w.enc.Indent("", "  ")

	v := doc.Version
	if v.IsZero() || v.Minor == api.AnyMinor {
		v = WriteVersion
	}
	provider := doc.Provider
	if provider == "" {
		provider = "rigkit"
	}
	w.start("GeneralSceneDescription",
		"verMajor", strconv.Itoa(v.Major), "verMinor", strconv.Itoa(v.Minor),
		"provider", provider, "providerVersion", doc.ProviderVersion)
	w.empty("UserData")
	w.start("Scene")
	w.start("AUXData")
	for _, c := range doc.Classes {
		w.empty("Class", "uuid", guid(c.ID), "name", c.Name)
	}
	for _, s := range doc.Symdefs {
		w.start("Symdef", "uuid", guid(s.ID), "name", s.Name)
		w.start("ChildList")
		w.geometries(s.Geometries)
		w.end("ChildList")
		w.end("Symdef")
	}
	for _, p := range doc.Positions {
		w.empty("Position", "uuid", guid(p.ID), "name", p.Name)
	}
	for _, m := range doc.MappingDefinitions {
		w.start("MappingDefinition", "uuid", guid(m.ID), "name", m.Name)
		w.text("SizeX", strconv.Itoa(m.SizeX))
		w.text("SizeY", strconv.Itoa(m.SizeY))
		w.text("Source", m.Source)
		if m.ScaleHandling != "" {
			w.text("ScaleHandling", m.ScaleHandling)
		}
		w.end("MappingDefinition")
	}
	w.end("AUXData")
	w.start("Layers")
	for _, o := range doc.Roots {
		w.object(o)
	}
	w.end("Layers")
	w.end("Scene")
	w.end("GeneralSceneDescription")
	if err := w.enc.Flush(); err != nil {
		return nil, err
	}
	if w.err != nil {
		return nil, w.err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteArchive writes a complete .mvr archive: the descriptor followed by
// assets (GDTF files, meshes) in name order.
func WriteArchive(out io.Writer, doc *Document, assets map[string][]byte, universeSize int) error {
	desc, err := Encode(doc, universeSize)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	zw := zip.NewWriter(out)
	f, err := zw.Create(RootElement + ".xml")
	if err != nil {
		return err
	}
	if _, err := f.Write(desc); err != nil {
		return err
	}
	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		// Payloads are already compressed formats; store them as-is.
		f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			return err
		}
		if _, err := f.Write(assets[name]); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return zw.Close()
}

type writer struct {
	enc          *xml.Encoder
	universeSize int
	err          error
}

func guid(id uuid.UUID) string {
	return id.String()
}

func attrs(kv []string) []xml.Attr {
	out := make([]xml.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, xml.Attr{Name: xml.Name{Local: kv[i]}, Value: kv[i+1]})
	}
	return out
}

func (w *writer) token(t xml.Token) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(t)
}

func (w *writer) start(name string, kv ...string) {
	w.token(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs(kv)})
}

func (w *writer) end(name string) {
	w.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (w *writer) empty(name string, kv ...string) {
	w.start(name, kv...)
	w.end(name)
}

func (w *writer) text(name, value string, kv ...string) {
	w.start(name, kv...)
	w.token(xml.CharData(value))
	w.end(name)
}

func (w *writer) geometries(refs []api.GeometryRef) {
	for _, g := range refs {
		switch g.Kind {
		case api.GeometryFile:
			w.start("Geometry3D", "fileName", g.File)
		case api.GeometrySymbol:
			id := g.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			w.start("Symbol", "uuid", guid(id), "symdef", guid(g.Symdef))
		default:
			continue
		}
		if !g.Transform.IsIdentity() {
			w.text("Matrix", xmltree.FormatMVRMatrix(g.Transform))
		}
		if g.Kind == api.GeometryFile {
			w.end("Geometry3D")
		} else {
			w.end("Symbol")
		}
	}
}

func (w *writer) object(o *Object) {
	name := o.Kind.String()
	w.start(name, "uuid", guid(o.ID), "name", o.Name)
	if !o.Transform.IsIdentity() {
		w.text("Matrix", xmltree.FormatMVRMatrix(o.Transform))
	}
	if o.Class != uuid.Nil {
		w.text("Classing", guid(o.Class))
	}
	if len(o.Geometries) > 0 {
		w.start("Geometries")
		w.geometries(o.Geometries)
		w.end("Geometries")
	}
	if f := o.Fixture; f != nil {
		w.fixture(f)
	}
	if len(o.Children) > 0 {
		w.start("ChildList")
		for _, c := range o.Children {
			w.object(c)
		}
		w.end("ChildList")
	}
	w.end(name)
}

func (w *writer) fixture(f *api.FixtureInfo) {
	w.text("GDTFSpec", f.Spec)
	w.text("GDTFMode", f.Mode)
	if f.Focus != uuid.Nil {
		w.text("Focus", guid(f.Focus))
	}
	if f.Position != uuid.Nil {
		w.text("Position", guid(f.Position))
	}
	w.text("FixtureID", f.FixtureID)
	if f.FixtureIDNumeric != 0 {
		w.text("FixtureIDNumeric", strconv.Itoa(f.FixtureIDNumeric))
	}
	w.text("UnitNumber", strconv.Itoa(f.UnitNumber))
	if len(f.Addresses) > 0 {
		w.start("Addresses")
		for _, a := range f.Addresses {
			w.text("Address", xmltree.FormatAddress(a, w.universeSize), "break", strconv.Itoa(a.Break))
		}
		w.end("Addresses")
	}
	if f.CustomID != 0 {
		w.text("CustomId", strconv.Itoa(f.CustomID))
		w.text("CustomIdType", strconv.Itoa(f.CustomIDType))
	}
	if f.Color != nil {
		w.text("Color", f.Color.String())
	}
	if len(f.CustomCommands) > 0 {
		w.start("CustomCommands")
		for _, c := range f.CustomCommands {
			w.text("CustomCommand", c)
		}
		w.end("CustomCommands")
	}
	keys := make([]string, 0, len(f.CustomAttributes))
	for k := range f.CustomAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.text(k, f.CustomAttributes[k])
	}
}
