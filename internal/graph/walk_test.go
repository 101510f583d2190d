package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archivetest"
)

type recorder struct {
	api.BaseConsumer
	mu     sync.Mutex
	calls  []string
	meshes map[uuid.UUID]int
	fail   error
}

func (r *recorder) record(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
	return r.fail
}

func (r *recorder) CreateLayer(_ context.Context, l *api.Node) error {
	return r.record("layer " + l.Name)
}

func (r *recorder) CreateGroup(_ context.Context, n, parent *api.Node) error {
	return r.record(fmt.Sprintf("%s %s < %s", n.Kind, n.Name, parent.Name))
}

func (r *recorder) CreateFixture(_ context.Context, n, parent *api.Node) error {
	return r.record(fmt.Sprintf("fixture %s < %s", n.Name, parent.Name))
}

func (r *recorder) CreateMesh(_ context.Context, owner *api.Node, _ api.GeometryRef, m *api.Mesh) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meshes == nil {
		r.meshes = map[uuid.UUID]int{}
	}
	r.meshes[owner.ID] += m.Triangles()
	return nil
}

func walkScene(t *testing.T) scene {
	floor := fmt.Sprintf(`<SceneObject uuid="%s" name="Floor"><Geometries>
		<Geometry3D fileName="floor.3ds"/><Geometry3D fileName="missing.glb"/></Geometries></SceneObject>`, groupID)
	group := fmt.Sprintf(`<GroupObject uuid="%s" name="Pipe"><ChildList>%s</ChildList></GroupObject>`,
		fixCID, fixture(fixBID, "Spot 2", "Basic", "1.002"))
	return build(t, "", archivetest.LayerXML(layerID, "Stage", fixture(fixAID, "Spot 1", "Basic", "1.001")+floor+group),
		archivetest.Entry{Name: "floor.3ds", Data: archivetest.TDS("floor", archivetest.Triangle, [][3]uint16{{0, 1, 2}})})
}

func TestWalk_ParentsBeforeChildrenInDocumentOrder(t *testing.T) {
	s := walkScene(t)
	r := &recorder{}
	require.NoError(t, s.graph.Walk(context.Background(), r))

	assert.Equal(t, []string{
		"layer Stage",
		"fixture Spot 1 < Stage",
		"SceneObject Floor < Stage",
		"GroupObject Pipe < Stage",
		"fixture Spot 2 < Pipe",
	}, r.calls)

	// Base and Yoke boxes (12 triangles each) plus the one-triangle Head mesh.
	assert.Equal(t, 25, r.meshes[fixAID])
	assert.Equal(t, 1, r.meshes[groupID])
}

func TestWalk_GeometryFailureIsReportedOnce(t *testing.T) {
	s := walkScene(t)
	for i := 0; i < 2; i++ {
		require.NoError(t, s.graph.Walk(context.Background(), &recorder{}))
	}
	failed := s.graph.Diagnostics().ForNode(groupID).Filter(api.ErrGeometry)
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed[0].Err, api.ErrNotFound))

	n, err := s.graph.GetNode(groupID)
	require.NoError(t, err, "node stays valid without its payload")
	assert.Equal(t, "Floor", n.Name)
}

func TestWalk_MissingModelFileIsGeometryError(t *testing.T) {
	s := buildWith(t, headlessSpot(t), "", archivetest.LayerXML(layerID, "Stage", fixture(fixAID, "Spot 1", "Basic", "1.001")))
	r := &recorder{}
	require.NoError(t, s.graph.Walk(context.Background(), r))

	// The Head model names a file, so it is not replaced by a primitive box.
	assert.Equal(t, 24, r.meshes[fixAID])
	failed := s.graph.Diagnostics().ForNode(fixAID).Filter(api.ErrGeometry)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Message, "models/gltf/head.glb")
}

func TestWalk_LoadsEachPayloadOnce(t *testing.T) {
	s := walkScene(t)
	require.NoError(t, s.graph.Walk(context.Background(), &recorder{}))
	require.NoError(t, s.graph.Walk(context.Background(), &recorder{}))
	assert.Equal(t, 1, s.archive.ReadCount("floor.3ds"))
}

func TestWalk_StopsOnConsumerError(t *testing.T) {
	s := walkScene(t)
	boom := errors.New("host refused")
	r := &recorder{fail: boom}
	err := s.graph.Walk(context.Background(), r)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, r.calls, 1)
}

func TestWalk_HonorsCancellation(t *testing.T) {
	s := walkScene(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.graph.Walk(ctx, &recorder{}), context.Canceled)
}

func TestPreload_DecodesEverything(t *testing.T) {
	s := walkScene(t)
	require.NoError(t, s.graph.Preload(context.Background(), 4))
	assert.Equal(t, 1, s.archive.ReadCount("floor.3ds"))
	assert.Len(t, s.graph.Diagnostics().Filter(api.ErrGeometry), 1)
}

func TestClose_ReleasesContainers(t *testing.T) {
	s := walkScene(t)
	require.NoError(t, s.graph.Close())
	require.NoError(t, s.graph.Close(), "idempotent")

	_, err := s.archive.ReadEntry("floor.3ds")
	assert.Error(t, err)
	p, err := s.graph.LoadGeometry(s.graph.Geometry(groupID)[0])
	assert.True(t, errors.Is(err, api.ErrGeometry))
	assert.True(t, p.Empty())

	// Nodes stay readable after Close.
	assert.Equal(t, 5, s.graph.Len())
}
