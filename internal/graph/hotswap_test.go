package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/rigkit/internal/archivetest"
)

func TestHotSwapGraph_SwapClosesOld(t *testing.T) {
	old := walkScene(t)
	next := build(t, "", archivetest.LayerXML(layerID, "Other", ""))

	h := NewHotSwapGraph(old.graph)
	assert.Len(t, h.Nodes(), 5)

	require.NoError(t, h.Swap(next.graph))
	assert.Len(t, h.Nodes(), 1)
	assert.Equal(t, next.graph.Roots(), h.Roots())

	_, err := old.archive.ReadEntry("floor.3ds")
	assert.Error(t, err, "old graph released its containers")

	n, err := h.GetNode(layerID)
	require.NoError(t, err)
	assert.Equal(t, "Other", n.Name)
}

func TestHotSwapGraph_CloseReleasesCurrent(t *testing.T) {
	s := walkScene(t)
	h := NewHotSwapGraph(s.graph)
	require.NoError(t, h.Close())

	_, err := s.archive.ReadEntry("floor.3ds")
	assert.Error(t, err)
	assert.NoError(t, h.Close(), "closing twice is harmless")
}
