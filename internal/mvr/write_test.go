package mvr

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archivetest"
)

func TestEncode_RoundTrip(t *testing.T) {
	obj := fmt.Sprintf(`<GroupObject uuid="%s" name="Truss A"><Matrix>{0,1,0}{-1,0,0}{0,0,1}{1500,-250,6000}</Matrix>
		<ChildList>%s</ChildList></GroupObject>`, groupID,
		archivetest.FixtureXML(fixAID, "Spot", "Acme@Spot.gdtf", "Basic", "", "1.513"))
	aux := fmt.Sprintf(`<Class uuid="%s" name="Lighting"/><Symdef uuid="%s" name="Chair"><ChildList><Geometry3D fileName="chair.3ds"/></ChildList></Symdef>`,
		classID, symdefID)
	src, err := Parse(archivetest.SceneXML("1.6", aux, archivetest.LayerXML(layerID, "Stage", obj)), Options{})
	require.NoError(t, err)
	src.Objects[2].Fixture.CustomAttributes = map[string]string{"CastShadow": "false"}

	out, err := Encode(src, 512)
	require.NoError(t, err)

	doc, err := Parse(out, Options{})
	require.NoError(t, err)
	assert.Empty(t, doc.Diagnostics)
	require.Len(t, doc.Objects, len(src.Objects))
	for i := range src.Objects {
		a, b := src.Objects[i], doc.Objects[i]
		assert.Equal(t, a.ID, b.ID)
		assert.Equal(t, a.Kind, b.Kind)
		assert.Equal(t, a.Name, b.Name)
		assert.True(t, a.Transform.ApproxEqual(b.Transform, 1e-9), "transform of %s", a.Name)
	}
	f := doc.Objects[2].Fixture
	require.NotNil(t, f)
	assert.Equal(t, "Acme@Spot.gdtf", f.Spec)
	// 1.513 is written in absolute form and reads back as 2.1.
	assert.Equal(t, []api.Address{{Universe: 2, Channel: 1}}, f.Addresses)
	assert.Equal(t, "false", f.CustomAttributes["CastShadow"])
	assert.Len(t, doc.Symdefs, 1)
	assert.Len(t, doc.Classes, 1)
}

func TestEncode_DefaultsVersion(t *testing.T) {
	out, err := Encode(&Document{}, 0)
	require.NoError(t, err)
	doc, err := Parse(out, Options{})
	require.NoError(t, err)
	assert.Equal(t, WriteVersion, doc.Version)
	assert.Equal(t, "rigkit", doc.Provider)
}

func TestWriteArchive(t *testing.T) {
	doc := &Document{Roots: []*Object{{ID: uuid.New(), Kind: api.KindLayer, Name: "L", Transform: api.Identity()}}}
	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, doc, map[string][]byte{
		"b.gdtf": []byte("gdtf"),
		"a.3ds":  []byte("mesh"),
	}, 512))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"GeneralSceneDescription.xml", "a.3ds", "b.gdtf"}, names)
}
