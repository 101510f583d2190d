package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/rigkit/internal/mvr"
)

func TestDocument_RoundTripsThroughWriter(t *testing.T) {
	s := walkScene(t)
	doc := s.graph.Document()
	require.Len(t, doc.Roots, 1)
	assert.Equal(t, 5, doc.Elements)

	buf, err := mvr.Encode(doc, DefaultUniverseSize)
	require.NoError(t, err)
	back, err := mvr.Parse(buf, mvr.Options{Source: "scene.mvr"})
	require.NoError(t, err)
	assert.Empty(t, back.Diagnostics)

	g, err := NewBuilder(nil).Build(context.Background(), back)
	require.NoError(t, err)
	assert.Equal(t, s.graph.Len(), g.Len())
	for _, n := range s.graph.Nodes() {
		m, err := g.GetNode(n.ID)
		require.NoError(t, err)
		assert.Equal(t, n.ParentID, m.ParentID)
		assert.Equal(t, n.Name, m.Name)
	}
}

func TestAssets_CollectsMeshesAndFixtureTypes(t *testing.T) {
	s := walkScene(t)
	assets, err := s.graph.Assets(s.resolver)
	assert.Error(t, err, "missing.glb cannot be read")
	assert.Contains(t, assets, "floor.3ds")
	assert.NotContains(t, assets, "missing.glb")

	gdtf, ok := assets[spotSpec]
	require.True(t, ok)
	orig, err := s.archive.ReadEntry(spotSpec)
	require.NoError(t, err)
	assert.Equal(t, orig, gdtf)
}
