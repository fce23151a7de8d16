package heuristics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticTrigger(t *testing.T) {
	mockClock(t)

	gen := newYoungGeneration(1024*mib, 80*mib)
	heap := &fakeHeap{regionSize: 32 * mib}
	s := NewStatic(heap, gen, nil)

	// 80 MiB is below the 10% floor.
	require.True(t, s.ShouldStartGC())

	gen.available = 200 * mib
	cfg := DefaultConfig()
	cfg.GuaranteedGCInterval = NoGuaranteedGCInterval
	s = NewStatic(heap, gen, cfg)
	require.False(t, s.ShouldStartGC())
}

func TestStaticTriggerDiscountsSoftTail(t *testing.T) {
	mockClock(t)

	// 512 MiB of the max capacity is soft tail; available must clear the
	// threshold without it.
	gen := &fakeGeneration{
		name:            "Young",
		young:           true,
		maxCapacity:     1024 * mib,
		softMaxCapacity: 512 * mib,
		available:       540 * mib, // 28 MiB once the tail is discounted
	}
	heap := &fakeHeap{regionSize: 32 * mib}
	s := NewStatic(heap, gen, nil)

	// Threshold is 51.2 MiB of the soft capacity.
	require.True(t, s.ShouldStartGC())
}

func TestStaticSelection(t *testing.T) {
	mockClock(t)

	gen := newYoungGeneration(1024*mib, 500*mib)
	heap := &fakeHeap{regionSize: 32 * mib}
	s := NewStatic(heap, gen, nil)
	cset := newFakeCSet(7)

	data := []Region{
		&fakeRegion{index: 0, garbage: 5 * mib, live: 1 * mib},
		&fakeRegion{index: 1, garbage: 20 * mib, live: 30 * mib},
		&fakeRegion{index: 2, garbage: 9 * mib, live: 2 * mib},
	}

	// Everything over the garbage threshold is taken; there is no budget.
	s.ChooseCollectionSetFromRegionData(cset, data, 500*mib)
	require.Equal(t, []int{1, 2}, indexes(cset.regions))
}

func TestAggressive(t *testing.T) {
	mockClock(t)

	gen := newYoungGeneration(1024*mib, 1024*mib)
	heap := &fakeHeap{regionSize: 32 * mib}
	a := NewAggressive(heap, gen, nil)

	require.True(t, a.ShouldStartGC())

	cset := newFakeCSet(7)
	data := []Region{
		&fakeRegion{index: 0, garbage: 1, live: 10 * mib},
		&fakeRegion{index: 1, garbage: 0, live: 10 * mib},
	}
	a.ChooseCollectionSetFromRegionData(cset, data, 1024*mib)
	require.Equal(t, []int{0}, indexes(cset.regions))
}

func TestPenaltyAccounting(t *testing.T) {
	mockClock(t)

	gen := newYoungGeneration(1024*mib, 400*mib)
	gen.available = 400 * mib
	heap := &fakeHeap{freeSetAvailable: 400 * mib, regionSize: 32 * mib}
	a := NewAdaptive(heap, gen, nil)

	a.RecordSuccessFull()
	require.Equal(t, 20, a.gcTimePenalties)
	a.RecordSuccessDegenerated()
	require.Equal(t, 30, a.gcTimePenalties)

	// Concurrent cycles pay the debt back down, one point at a time, and
	// the counter saturates at zero.
	for i := 0; i < 40; i++ {
		a.RecordSuccessConcurrent(false)
	}
	require.Equal(t, 0, a.gcTimePenalties)

	// And it saturates at 100.
	for i := 0; i < 10; i++ {
		a.RecordSuccessFull()
	}
	require.Equal(t, 100, a.gcTimePenalties)
}

func TestIgnoreShortCycles(t *testing.T) {
	mockClock(t)

	cfg := DefaultConfig()
	cfg.IgnoreShortCycles = true
	gen := newYoungGeneration(1024*mib, 400*mib)
	heap := &fakeHeap{freeSetAvailable: 400 * mib, regionSize: 32 * mib}
	a := NewAdaptive(heap, gen, cfg)

	a.RecordSuccessConcurrent(true)
	require.Zero(t, a.cycleTimeHistory.Num())

	a.RecordSuccessConcurrent(false)
	require.EqualValues(t, 1, a.cycleTimeHistory.Num())
}

func TestConfigDefaults(t *testing.T) {
	cfg := (&Config{MinFreeThreshold: 20}).withDefaults()
	require.EqualValues(t, 20, cfg.MinFreeThreshold)
	require.EqualValues(t, 25, cfg.GarbageThreshold)
	require.Equal(t, 1.2, cfg.EvacWaste)

	require.Equal(t, DefaultConfig(), (*Config)(nil).withDefaults())

	cfg = (&Config{GuaranteedGCInterval: NoGuaranteedGCInterval}).withDefaults()
	require.Zero(t, cfg.GuaranteedGCInterval)
}
