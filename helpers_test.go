package heuristics

import (
	"testing"

	"github.com/benbjohnson/clock"
)

const (
	kib = uint64(1) << 10
	mib = uint64(1) << 20
	gib = uint64(1) << 30
)

// mockClock installs a mock clock for the duration of the test.
func mockClock(t *testing.T) *clock.Mock {
	t.Helper()
	old := Clock
	mock := clock.NewMock()
	Clock = mock
	t.Cleanup(func() { Clock = old })
	return mock
}

type fakeRegion struct {
	index   int
	old     bool
	age     int
	garbage uint64
	live    uint64
}

var _ Region = (*fakeRegion)(nil)

func (r *fakeRegion) Index() int        { return r.index }
func (r *fakeRegion) IsYoung() bool     { return !r.old }
func (r *fakeRegion) IsOld() bool       { return r.old }
func (r *fakeRegion) Age() int          { return r.age }
func (r *fakeRegion) Garbage() uint64   { return r.garbage }
func (r *fakeRegion) LiveData() uint64  { return r.live }
func (r *fakeRegion) Used() uint64      { return r.garbage + r.live }

type fakeGeneration struct {
	name            string
	young           bool
	old             bool
	global          bool
	maxCapacity     uint64
	softMaxCapacity uint64
	available       uint64
	softAvailable   uint64
	used            uint64
	allocated       uint64
}

var _ Generation = (*fakeGeneration)(nil)

func (g *fakeGeneration) Name() string                       { return g.name }
func (g *fakeGeneration) IsYoung() bool                      { return g.young }
func (g *fakeGeneration) IsOld() bool                        { return g.old }
func (g *fakeGeneration) IsGlobal() bool                     { return g.global }
func (g *fakeGeneration) MaxCapacity() uint64                { return g.maxCapacity }
func (g *fakeGeneration) SoftMaxCapacity() uint64            { return g.softMaxCapacity }
func (g *fakeGeneration) Available() uint64                  { return g.available }
func (g *fakeGeneration) SoftAvailable() uint64              { return g.softAvailable }
func (g *fakeGeneration) Used() uint64                       { return g.used }
func (g *fakeGeneration) BytesAllocatedSinceGCStart() uint64 { return g.allocated }

type fakeOldHeuristics struct {
	mixedCandidates uint64
}

func (o *fakeOldHeuristics) UnprocessedOldCollectionCandidates() uint64 { return o.mixedCandidates }

// fakeCSet is an ordered, append-only collection-set builder. Byte tallies
// follow the collector's accounting: a preselected (tenure-age) young region
// counts as promotion, everything else against its side's evacuation
// reserve.
type fakeCSet struct {
	preselected map[int]bool
	tenureAge   int
	regions     []Region

	youngAvailableCollected uint64
}

var _ CollectionSet = (*fakeCSet)(nil)

func newFakeCSet(tenureAge int, preselected ...int) *fakeCSet {
	m := make(map[int]bool, len(preselected))
	for _, idx := range preselected {
		m[idx] = true
	}
	return &fakeCSet{preselected: m, tenureAge: tenureAge}
}

func (c *fakeCSet) IsPreselected(index int) bool { return c.preselected[index] }
func (c *fakeCSet) AddRegion(r Region)           { c.regions = append(c.regions, r) }

func (c *fakeCSet) YoungBytesReservedForEvacuation() uint64 {
	var n uint64
	for _, r := range c.regions {
		if r.IsYoung() && r.Age() < c.tenureAge {
			n += r.LiveData()
		}
	}
	return n
}

func (c *fakeCSet) OldBytesReservedForEvacuation() uint64 {
	var n uint64
	for _, r := range c.regions {
		if r.IsOld() {
			n += r.LiveData()
		}
	}
	return n
}

func (c *fakeCSet) YoungBytesToBePromoted() uint64 {
	var n uint64
	for _, r := range c.regions {
		if r.IsYoung() && r.Age() >= c.tenureAge {
			n += r.LiveData()
		}
	}
	return n
}

func (c *fakeCSet) YoungAvailableBytesCollected() uint64 { return c.youngAvailableCollected }

type fakeHeap struct {
	generational bool
	maxCapacity  uint64
	capacity     uint64
	regionSize   uint64

	young *fakeGeneration
	oldG  *fakeGeneration

	freeSetAvailable uint64
	cset             CollectionSet

	youngEvacReserve uint64
	oldEvacReserve   uint64
	promoPotential   uint64
	promoInPlace     uint64

	oldHeuristics *fakeOldHeuristics
}

var _ Heap = (*fakeHeap)(nil)

func (h *fakeHeap) IsGenerational() bool             { return h.generational }
func (h *fakeHeap) MaxCapacity() uint64              { return h.maxCapacity }
func (h *fakeHeap) Capacity() uint64                 { return h.capacity }
func (h *fakeHeap) RegionSizeBytes() uint64          { return h.regionSize }
func (h *fakeHeap) YoungGeneration() Generation      { return h.young }
func (h *fakeHeap) OldGeneration() Generation        { return h.oldG }
func (h *fakeHeap) FreeSetAvailable() uint64         { return h.freeSetAvailable }
func (h *fakeHeap) CollectionSet() CollectionSet     { return h.cset }
func (h *fakeHeap) YoungEvacReserve() uint64         { return h.youngEvacReserve }
func (h *fakeHeap) OldEvacReserve() uint64           { return h.oldEvacReserve }
func (h *fakeHeap) PromotionPotential() uint64       { return h.promoPotential }
func (h *fakeHeap) PromotionInPlacePotential() uint64 { return h.promoInPlace }

func (h *fakeHeap) OldHeuristics() OldHeuristics {
	if h.oldHeuristics == nil {
		return &fakeOldHeuristics{}
	}
	return h.oldHeuristics
}
