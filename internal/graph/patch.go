package graph

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"

	"github.com/agentic-research/rigkit/api"
)

// PatchEntry is one patched DMX break of a fixture.
type PatchEntry struct {
	Node      uuid.UUID
	Address   api.Address
	Footprint int
	// Overflow counts the channels cut off at the end of the universe.
	Overflow int
	slots    *roaring.Bitmap
}

// Patch tracks DMX occupancy with one roaring bitmap of channels per
// universe.
type Patch struct {
	mu           sync.RWMutex
	universeSize int
	universes    map[int]*roaring.Bitmap
	entries      []*PatchEntry
}

// NewPatch returns an empty patch for universes of size channels.
func NewPatch(size int) *Patch {
	return &Patch{universeSize: size, universes: make(map[int]*roaring.Bitmap)}
}

// UniverseSize returns the channel count of one universe.
func (p *Patch) UniverseSize() int { return p.universeSize }

// Add occupies footprint channels starting at addr and returns the other
// fixtures already occupying any of them. Channels past the universe end are
// not occupied; Overflow on the returned entry counts them.
func (p *Patch) Add(node uuid.UUID, addr api.Address, footprint int) (*PatchEntry, []uuid.UUID) {
	if footprint < 1 {
		footprint = 1
	}
	end := addr.Channel + footprint // exclusive
	e := &PatchEntry{Node: node, Address: addr, Footprint: footprint, slots: roaring.New()}
	if limit := p.universeSize + 1; end > limit {
		e.Overflow = end - limit
		end = limit
	}
	e.slots.AddRange(uint64(addr.Channel), uint64(end))

	p.mu.Lock()
	defer p.mu.Unlock()
	used := bitmapFor(p.universes, addr.Universe)
	var clashes []uuid.UUID
	if used.Intersects(e.slots) {
		seen := map[uuid.UUID]bool{node: true}
		for _, o := range p.entries {
			if o.Address.Universe != addr.Universe || seen[o.Node] {
				continue
			}
			if o.slots.Intersects(e.slots) {
				seen[o.Node] = true
				clashes = append(clashes, o.Node)
			}
		}
	}
	used.Or(e.slots)
	p.entries = append(p.entries, e)
	return e, clashes
}

// Entries returns the patch entries in insertion order.
func (p *Patch) Entries() []*PatchEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*PatchEntry(nil), p.entries...)
}

// Universes returns the universes with at least one patched channel, sorted.
func (p *Patch) Universes() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]int, 0, len(p.universes))
	for u, bm := range p.universes {
		if !bm.IsEmpty() {
			out = append(out, u)
		}
	}
	sort.Ints(out)
	return out
}

// Used returns the number of occupied channels in universe.
func (p *Patch) Used(universe int) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if bm, ok := p.universes[universe]; ok {
		return int(bm.GetCardinality())
	}
	return 0
}

// At returns the fixtures occupying channel of universe.
func (p *Patch) At(universe, channel int) []uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []uuid.UUID
	for _, e := range p.entries {
		if e.Address.Universe == universe && e.slots.Contains(uint32(channel)) {
			out = append(out, e.Node)
		}
	}
	return out
}

// FirstFree returns the lowest channel of universe starting a run of
// footprint unoccupied channels.
func (p *Patch) FirstFree(universe, footprint int) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	used := p.universes[universe]
	run := 0
	for ch := 1; ch <= p.universeSize; ch++ {
		if used != nil && used.Contains(uint32(ch)) {
			run = 0
			continue
		}
		run++
		if run == footprint {
			return ch - footprint + 1, true
		}
	}
	return 0, false
}
