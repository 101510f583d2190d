package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archive"
	"github.com/agentic-research/rigkit/internal/archivetest"
)

var (
	layerID = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	fixID   = uuid.MustParse("22222222-2222-4222-8222-222222222222")
)

func sceneBytes(t *testing.T, embed bool) []byte {
	scene := archivetest.SceneXML("1.6", "", archivetest.LayerXML(layerID, "Stage",
		archivetest.FixtureXML(fixID, "Spot 1", "Acme@Spot.gdtf", "Basic", "", "1.001")))
	if !embed {
		return archivetest.MVR(t, scene)
	}
	return archivetest.MVR(t, scene, archivetest.Entry{Name: "Acme@Spot.gdtf", Data: spotGDTF(t)})
}

func spotGDTF(t *testing.T) []byte {
	return archivetest.SimpleFixtureType("Spot").GDTF(t, archivetest.HeadModel())
}

func TestEngine_OpenScene(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show.mvr")
	require.NoError(t, os.WriteFile(path, sceneBytes(t, true), 0o644))

	res, err := NewEngine(Options{}).Open(context.Background(), path)
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, archive.FormatMVR, res.Format)
	assert.Equal(t, path, res.Path)
	require.NotNil(t, res.Scene)
	assert.Equal(t, 2, res.Scene.Len())
	fixtures := res.Scene.Fixtures()
	require.Len(t, fixtures, 1)
	assert.True(t, fixtures[0].Fixture.Resolved())
	assert.EqualValues(t, 1, res.Resolver.Stats().Parses)
}

func TestEngine_OpenFixtureType(t *testing.T) {
	res, err := NewEngine(Options{}).OpenBytes(context.Background(), "Acme@Spot.gdtf", spotGDTF(t))
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, archive.FormatGDTF, res.Format)
	require.NotNil(t, res.Type)
	assert.Equal(t, "Spot", res.Type.Name)
	assert.Nil(t, res.Scene)
	assert.Equal(t, res.Type.Diagnostics, res.Diagnostics())

	p, err := res.LoadGeometry(api.GeometryRef{Kind: api.GeometryModel, Primitive: "Cube"})
	require.NoError(t, err)
	assert.Equal(t, 12, p.Triangles())
}

func TestEngine_ExternalSearchPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Acme@Spot.gdtf"), spotGDTF(t), 0o644))

	res, err := NewEngine(Options{SearchPaths: []string{dir}}).OpenBytes(context.Background(), "show.mvr", sceneBytes(t, false))
	require.NoError(t, err)
	defer res.Close()

	assert.True(t, res.Scene.Fixtures()[0].Fixture.Resolved())
}

func TestEngine_ExternalSources(t *testing.T) {
	e := NewEngine(Options{Sources: map[string][]byte{"Acme@Spot.gdtf": spotGDTF(t)}})
	res, err := e.OpenBytes(context.Background(), "show.mvr", sceneBytes(t, false))
	require.NoError(t, err)
	defer res.Close()

	assert.True(t, res.Scene.Fixtures()[0].Fixture.Resolved())
}

func TestEngine_UnresolvedIsNotFatal(t *testing.T) {
	res, err := NewEngine(Options{}).OpenBytes(context.Background(), "show.mvr", sceneBytes(t, false))
	require.NoError(t, err)
	defer res.Close()

	assert.False(t, res.Scene.Fixtures()[0].Fixture.Resolved())
	assert.Equal(t, 1, res.Diagnostics().Count(api.ErrReference))
}

func TestEngine_OpenFS(t *testing.T) {
	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "shows/show.mvr", sceneBytes(t, true), 0o644))

	res, err := NewEngine(Options{}).OpenFS(context.Background(), fsys, "shows/show.mvr")
	require.NoError(t, err)
	defer res.Close()
	assert.Equal(t, 2, res.Scene.Len())
}

func TestEngine_FatalErrors(t *testing.T) {
	e := NewEngine(Options{})
	ctx := context.Background()

	_, err := e.OpenBytes(ctx, "junk", []byte("not a zip"))
	assert.True(t, errors.Is(err, api.ErrFormat))

	_, err = e.OpenBytes(ctx, "empty.mvr", archivetest.Zip(t, archivetest.Entry{Name: "readme.txt", Data: []byte("hi")}))
	assert.True(t, errors.Is(err, api.ErrNotFound))

	_, err = e.OpenBytes(ctx, "wrong.mvr", archivetest.MVR(t, []byte(`<NotAScene/>`)))
	assert.True(t, errors.Is(err, api.ErrSchema))

	_, err = e.Open(ctx, filepath.Join(t.TempDir(), "missing.mvr"))
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestEngine_IngestDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "show.mvr"), sceneBytes(t, true), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "Acme@Spot.gdtf"), spotGDTF(t), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.mvr"), []byte("nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	var seen []string
	err := NewEngine(Options{}).Ingest(context.Background(), dir, func(r *Result) error {
		defer r.Close()
		seen = append(seen, filepath.Base(r.Path)+":"+r.Format.String())
		return nil
	})
	require.NoError(t, err)
	sort.Strings(seen)
	assert.Equal(t, []string{"Acme@Spot.gdtf:gdtf", "show.mvr:mvr"}, seen)
}

func TestEngine_EagerGeometry(t *testing.T) {
	res, err := NewEngine(Options{EagerGeometry: true}).OpenBytes(context.Background(), "show.mvr", sceneBytes(t, true))
	require.NoError(t, err)
	defer res.Close()
	assert.Empty(t, res.Diagnostics().Filter(api.ErrGeometry))
}
