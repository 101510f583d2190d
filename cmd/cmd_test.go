package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/rigkit/internal/archivetest"
	"github.com/agentic-research/rigkit/internal/ingest"
)

var (
	layerID = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	spot1ID = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	spot2ID = uuid.MustParse("33333333-3333-4333-8333-333333333333")
	trussID = uuid.MustParse("44444444-4444-4444-8444-444444444444")
	washID  = uuid.MustParse("99999999-9999-4999-8999-999999999999")
)

// isolate keeps config discovery away from the developer's home.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("RIGKIT_GDTF_PATH", "")
	t.Setenv("RIGKIT_LOG_LEVEL", "")
	t.Chdir(dir)
	return dir
}

func writeShow(t *testing.T, dir string) string {
	t.Helper()
	truss := fmt.Sprintf(`<GroupObject uuid="%s" name="Truss"><Matrix>{1,0,0}{0,1,0}{0,0,1}{1000,0,0}</Matrix><ChildList>%s</ChildList></GroupObject>`,
		trussID, archivetest.FixtureXML(spot1ID, "Spot 1", "Acme@Spot.gdtf", "Basic", "", "1.001"))
	layer := archivetest.LayerXML(layerID, "Stage", truss+
		archivetest.FixtureXML(spot2ID, "Spot 2", "Acme@Spot.gdtf", "Extended", "", "1.010")+
		archivetest.FixtureXML(washID, "Wash", "Missing@Wash.gdtf", "", "", "2.001"))
	data := archivetest.MVR(t, archivetest.SceneXML("1.6", "", layer),
		archivetest.Entry{Name: "Acme@Spot.gdtf", Data: archivetest.SimpleFixtureType("Spot").GDTF(t)})
	path := filepath.Join(dir, "show.mvr")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInspect_Scene(t *testing.T) {
	show := writeShow(t, isolate(t))

	out, err := run(t, "inspect", show)
	require.NoError(t, err)
	assert.Contains(t, out, "fixtures:")
	assert.Contains(t, out, "Diagnostics:")
	assert.Contains(t, out, "Missing@Wash")

	out, err = run(t, "-o", "json", "inspect", show)
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "mvr", summary["format"])
	assert.EqualValues(t, 3, summary["fixtures"])
	assert.EqualValues(t, 1, summary["unresolved"])
}

func TestInspect_FixtureTypeYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "Acme@Spot.gdtf")
	require.NoError(t, os.WriteFile(path, archivetest.SimpleFixtureType("Spot").GDTF(t), 0o644))

	out, err := run(t, "-o", "yaml", "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "format: gdtf")
	assert.Contains(t, out, "name: Extended")
}

func TestFixtures_TableAndFilters(t *testing.T) {
	show := writeShow(t, isolate(t))

	out, err := run(t, "fixtures", show)
	require.NoError(t, err)
	assert.Contains(t, out, "Spot 1")
	assert.Contains(t, out, "1.001")
	assert.Contains(t, out, "unresolved")

	out, err = run(t, "-o", "json", "fixtures", "--unresolved", show)
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Wash", rows[0]["name"])

	out, err = run(t, "-o", "json", "fixtures", "--universe", "1", show)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "3", rows[1]["footprint"])
	assert.Equal(t, "Extended", rows[1]["mode"])
}

func TestFixtures_RejectsFixtureType(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "Acme@Spot.gdtf")
	require.NoError(t, os.WriteFile(path, archivetest.SimpleFixtureType("Spot").GDTF(t), 0o644))

	_, err := run(t, "fixtures", path)
	assert.ErrorContains(t, err, "not an MVR scene")
}

func TestTree(t *testing.T) {
	show := writeShow(t, isolate(t))

	out, err := run(t, "tree", show)
	require.NoError(t, err)
	assert.Contains(t, out, `Layer "Stage"`)
	assert.Contains(t, out, `GroupObject "Truss"`)
	assert.Contains(t, out, `Fixture "Spot 1" [Spot Basic 1.001]`)

	out, err = run(t, "tree", "--depth", "1", show)
	require.NoError(t, err)
	assert.NotContains(t, out, "Truss")
}

func TestQuery(t *testing.T) {
	show := writeShow(t, isolate(t))

	out, err := run(t, "query", show, "$.fixtures[*].name")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Equal(t, []string{"Spot 1", "Spot 2", "Wash"}, names)

	_, err = run(t, "query", show, "$.x[")
	assert.Error(t, err)
}

func TestIndex(t *testing.T) {
	dir := isolate(t)
	show := writeShow(t, dir)
	db := filepath.Join(dir, "show.db")

	out, err := run(t, "index", show, db)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 5 nodes")

	count := func(table string) int {
		conn, err := sql.Open("sqlite", db)
		require.NoError(t, err)
		defer conn.Close()
		var n int
		require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
		return n
	}
	assert.Equal(t, 3, count("fixtures"))

	// Re-indexing replaces the database rather than appending to it.
	_, err = run(t, "index", show, db)
	require.NoError(t, err)
	assert.Equal(t, 3, count("addresses"))
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := isolate(t)
	show := writeShow(t, dir)
	copyPath := filepath.Join(dir, "copy.mvr")

	out, err := run(t, "write", show, copyPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	res, err := ingest.NewEngine(ingest.Options{}).Open(context.Background(), copyPath)
	require.NoError(t, err)
	defer res.Close()
	assert.Equal(t, 5, res.Scene.Len())
	fixtures := res.Scene.Fixtures()
	require.Len(t, fixtures, 3)
	assert.True(t, fixtures[0].Fixture.Resolved(), "embedded fixture type copied")
	assert.False(t, fixtures[2].Fixture.Resolved())
}

func TestGeometry_FixtureType(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "Acme@Spot.gdtf")
	require.NoError(t, os.WriteFile(path, archivetest.SimpleFixtureType("Spot").GDTF(t), 0o644))

	out, err := run(t, "-o", "json", "geometry", path)
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "primitive:Cube", rows[0]["payload"])
	assert.Equal(t, "12", rows[0]["triangles"])
	assert.Equal(t, "ok", rows[0]["status"])
	assert.Equal(t, "models/gltf/head.glb", rows[2]["payload"])
	assert.NotEqual(t, "ok", rows[2]["status"])

	_, err = run(t, "geometry", "--mode", "Turbo", path)
	assert.Error(t, err)
}

func TestUniverseSizeFlagOverridesConfig(t *testing.T) {
	show := writeShow(t, isolate(t))

	out, err := run(t, "--universe-size", "8", "-o", "json", "fixtures", show)
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "1.008", rows[1]["address"], "channel 10 clamped to the 8-channel universe")

	_, err = run(t, "--universe-size", "0", "fixtures", show)
	assert.Error(t, err)
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "rigkit.hcl")

	out, err := run(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = run(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}
