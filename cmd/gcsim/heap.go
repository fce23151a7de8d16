package main

import (
	heuristics "github.com/hashbeam/go-gcheuristics"
)

// simHeap models a single-generation region heap. Allocation fills one
// region at a time; of every byte allocated, liveRatio survives and the rest
// dies in place as garbage. Evacuated live data is compacted into a tenured
// tally that only a full collection revisits.
type simHeap struct {
	capacity   uint64
	regionSize uint64
	liveRatio  float64

	gen  *simGeneration
	cset *simCSet

	regions   []*simRegion // filled regions, eligible for collection
	current   *simRegion   // region being allocated into
	tenured   uint64       // compacted survivor bytes
	nextIndex int
}

func newSimHeap(capacity, regionSize uint64, liveRatio float64) *simHeap {
	h := &simHeap{
		capacity:   capacity,
		regionSize: regionSize,
		liveRatio:  liveRatio,
		cset:       newSimCSet(),
	}
	h.gen = &simGeneration{heap: h}
	return h
}

func (h *simHeap) used() uint64 {
	n := h.tenured
	for _, r := range h.regions {
		n += r.Used()
	}
	if h.current != nil {
		n += h.current.Used()
	}
	return n
}

func (h *simHeap) available() uint64 {
	if u := h.used(); u < h.capacity {
		return h.capacity - u
	}
	return 0
}

// allocate places n bytes, filling regions as it goes. Returns false when
// the heap cannot hold them.
func (h *simHeap) allocate(n uint64) bool {
	if n > h.available() {
		return false
	}
	h.gen.allocated += n
	for n > 0 {
		if h.current == nil {
			h.current = &simRegion{index: h.nextIndex}
			h.nextIndex++
		}
		room := h.regionSize - h.current.Used()
		take := min(n, room)
		live := uint64(float64(take) * h.liveRatio)
		h.current.live += live
		h.current.garbage += take - live
		n -= take
		if h.current.Used() == h.regionSize {
			h.regions = append(h.regions, h.current)
			h.current = nil
		}
	}
	return true
}

// collectibleRegions returns the filled regions as selector input.
func (h *simHeap) collectibleRegions() []heuristics.Region {
	out := make([]heuristics.Region, len(h.regions))
	for i, r := range h.regions {
		out[i] = r
	}
	return out
}

// evacuate frees every region in the collection set, compacting its live
// data into the tenured tally. Returns the garbage reclaimed and the live
// bytes moved.
func (h *simHeap) evacuate(cset *simCSet) (garbage, live uint64) {
	chosen := make(map[int]bool, len(cset.regions))
	for _, r := range cset.regions {
		chosen[r.Index()] = true
		garbage += r.Garbage()
		live += r.LiveData()
	}
	kept := h.regions[:0]
	for _, r := range h.regions {
		if !chosen[r.index] {
			kept = append(kept, r)
		}
	}
	h.regions = kept
	h.tenured += live
	return garbage, live
}

// collectAll is the stop-the-world fallback: every region's garbage goes,
// all live data tenures, and the tenured tally is cut down as if long-lived
// structures were finally walked and pruned.
func (h *simHeap) collectAll() {
	for _, r := range h.regions {
		h.tenured += r.live
	}
	h.regions = h.regions[:0]
	if h.current != nil {
		h.tenured += h.current.live
		h.current = nil
	}
	h.tenured /= 2
	h.gen.allocated = 0
}

var _ heuristics.Heap = (*simHeap)(nil)

func (h *simHeap) IsGenerational() bool              { return false }
func (h *simHeap) MaxCapacity() uint64               { return h.capacity }
func (h *simHeap) Capacity() uint64                  { return h.capacity }
func (h *simHeap) RegionSizeBytes() uint64           { return h.regionSize }
func (h *simHeap) YoungGeneration() heuristics.Generation { return h.gen }
func (h *simHeap) OldGeneration() heuristics.Generation   { return nil }
func (h *simHeap) FreeSetAvailable() uint64          { return h.available() }
func (h *simHeap) CollectionSet() heuristics.CollectionSet { return h.cset }
func (h *simHeap) YoungEvacReserve() uint64          { return 0 }
func (h *simHeap) OldEvacReserve() uint64            { return 0 }
func (h *simHeap) PromotionPotential() uint64        { return 0 }
func (h *simHeap) PromotionInPlacePotential() uint64 { return 0 }
func (h *simHeap) OldHeuristics() heuristics.OldHeuristics { return noOldWork{} }

type noOldWork struct{}

func (noOldWork) UnprocessedOldCollectionCandidates() uint64 { return 0 }

type simGeneration struct {
	heap      *simHeap
	allocated uint64
}

var _ heuristics.Generation = (*simGeneration)(nil)

func (g *simGeneration) Name() string            { return "Global" }
func (g *simGeneration) IsYoung() bool           { return true }
func (g *simGeneration) IsOld() bool             { return false }
func (g *simGeneration) IsGlobal() bool          { return true }
func (g *simGeneration) MaxCapacity() uint64     { return g.heap.capacity }
func (g *simGeneration) SoftMaxCapacity() uint64 { return g.heap.capacity }
func (g *simGeneration) Available() uint64       { return g.heap.available() }
func (g *simGeneration) SoftAvailable() uint64   { return g.heap.available() }
func (g *simGeneration) Used() uint64            { return g.heap.used() }

func (g *simGeneration) BytesAllocatedSinceGCStart() uint64 { return g.allocated }

type simRegion struct {
	index   int
	garbage uint64
	live    uint64
}

var _ heuristics.Region = (*simRegion)(nil)

func (r *simRegion) Index() int       { return r.index }
func (r *simRegion) IsYoung() bool    { return true }
func (r *simRegion) IsOld() bool      { return false }
func (r *simRegion) Age() int         { return 0 }
func (r *simRegion) Garbage() uint64  { return r.garbage }
func (r *simRegion) LiveData() uint64 { return r.live }
func (r *simRegion) Used() uint64     { return r.garbage + r.live }

// simCSet is an ordered append-only collection set with no preselection.
type simCSet struct {
	regions []heuristics.Region
}

var _ heuristics.CollectionSet = (*simCSet)(nil)

func newSimCSet() *simCSet {
	return &simCSet{}
}

func (c *simCSet) IsPreselected(index int) bool { return false }
func (c *simCSet) AddRegion(r heuristics.Region) {
	c.regions = append(c.regions, r)
}

func (c *simCSet) YoungBytesReservedForEvacuation() uint64 {
	var n uint64
	for _, r := range c.regions {
		n += r.LiveData()
	}
	return n
}

func (c *simCSet) OldBytesReservedForEvacuation() uint64 { return 0 }
func (c *simCSet) YoungBytesToBePromoted() uint64        { return 0 }
func (c *simCSet) YoungAvailableBytesCollected() uint64  { return 0 }
