package graph

import (
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/agentic-research/rigkit/api"
)

// HotSwapGraph is a thread-safe wrapper that allows swapping the underlying
// graph, e.g. when a served scene file is reloaded.
type HotSwapGraph struct {
	mu      sync.RWMutex
	current Graph
}

func NewHotSwapGraph(initial Graph) *HotSwapGraph {
	return &HotSwapGraph{current: initial}
}

// Swap replaces the current graph and closes the old one if it is an
// io.Closer.
func (h *HotSwapGraph) Swap(next Graph) error {
	h.mu.Lock()
	old := h.current
	h.current = next
	h.mu.Unlock()
	if c, ok := old.(io.Closer); ok && old != next {
		return c.Close()
	}
	return nil
}

// Current returns the graph in use.
func (h *HotSwapGraph) Current() Graph {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// GetNode delegates to current graph.
func (h *HotSwapGraph) GetNode(id uuid.UUID) (*api.Node, error) {
	return h.Current().GetNode(id)
}

// ListChildren delegates to current graph.
func (h *HotSwapGraph) ListChildren(id uuid.UUID) ([]uuid.UUID, error) {
	return h.Current().ListChildren(id)
}

// Roots delegates to current graph.
func (h *HotSwapGraph) Roots() []uuid.UUID { return h.Current().Roots() }

// Nodes delegates to current graph.
func (h *HotSwapGraph) Nodes() []*api.Node { return h.Current().Nodes() }

// Diagnostics delegates to current graph.
func (h *HotSwapGraph) Diagnostics() api.Diagnostics { return h.Current().Diagnostics() }

// Close closes the current graph if it is an io.Closer.
func (h *HotSwapGraph) Close() error {
	if c, ok := h.Current().(io.Closer); ok {
		return c.Close()
	}
	return nil
}
