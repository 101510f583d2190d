package graph

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/rigkit/api"
)

func TestPatch_Add(t *testing.T) {
	p := NewPatch(512)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	_, clashes := p.Add(a, api.Address{Universe: 1, Channel: 1}, 10)
	assert.Empty(t, clashes)
	_, clashes = p.Add(b, api.Address{Universe: 1, Channel: 11}, 10)
	assert.Empty(t, clashes, "adjacent, not overlapping")
	_, clashes = p.Add(c, api.Address{Universe: 1, Channel: 10}, 2)
	assert.Equal(t, []uuid.UUID{a, b}, clashes)

	// A fixture's second break never clashes with itself.
	_, clashes = p.Add(a, api.Address{Universe: 1, Channel: 5}, 1)
	assert.Empty(t, clashes)
	assert.Equal(t, []uuid.UUID{a, a}, p.At(1, 5))

	assert.Equal(t, 20, p.Used(1))
	assert.Equal(t, 0, p.Used(2))
}

func TestPatch_Overflow(t *testing.T) {
	p := NewPatch(512)
	e, _ := p.Add(uuid.New(), api.Address{Universe: 3, Channel: 510}, 6)
	assert.Equal(t, 3, e.Overflow)
	assert.Equal(t, 3, p.Used(3))
	assert.Equal(t, []int{3}, p.Universes())
}

func TestPatch_FirstFree(t *testing.T) {
	p := NewPatch(16)
	p.Add(uuid.New(), api.Address{Universe: 1, Channel: 1}, 4)
	p.Add(uuid.New(), api.Address{Universe: 1, Channel: 7}, 2)

	ch, ok := p.FirstFree(1, 2)
	require.True(t, ok)
	assert.Equal(t, 5, ch)
	ch, ok = p.FirstFree(1, 5)
	require.True(t, ok)
	assert.Equal(t, 9, ch)
	_, ok = p.FirstFree(1, 9)
	assert.False(t, ok)
	ch, _ = p.FirstFree(2, 16)
	assert.Equal(t, 1, ch)
}
