package heuristics

import "sort"

// Static triggers on a fixed free threshold and selects every region over
// the garbage threshold. It learns nothing and never adjusts itself; useful
// as a predictable baseline and for workloads the adaptive feedback loop
// handles poorly.
type Static struct {
	core
}

var _ Heuristic = (*Static)(nil)

// NewStatic creates the static heuristic for one generation. A nil cfg means
// all defaults.
func NewStatic(heap Heap, gen Generation, cfg *Config) *Static {
	return &Static{core: newCore(heap, gen, cfg.withDefaults())}
}

func (s *Static) ShouldStartGC() bool {
	maxCapacity := s.gen.MaxCapacity()
	capacity := s.gen.SoftMaxCapacity()
	available := s.gen.Available()

	// Treat available without the soft tail.
	softTail := maxCapacity - capacity
	if available > softTail {
		available -= softTail
	} else {
		available = 0
	}

	if threshold := capacity / 100 * s.cfg.MinFreeThreshold; available < threshold {
		Logger.Infof("Trigger (%s): Free (%s) is below minimum threshold (%s)",
			s.gen.Name(), fmtBytes(available), fmtBytes(threshold))
		return true
	}
	return s.core.shouldStartGC()
}

func (s *Static) ChooseCollectionSetFromRegionData(cset CollectionSet, data []Region, actualFree uint64) {
	threshold := s.heap.RegionSizeBytes() * s.cfg.GarbageThreshold / 100

	sort.SliceStable(data, func(i, j int) bool {
		return data[i].Garbage() > data[j].Garbage()
	})
	for _, r := range data {
		if r.Garbage() > threshold {
			cset.AddRegion(r)
		}
	}
}

func (s *Static) RecordSuccessConcurrent(abbreviated bool) {
	s.core.recordSuccessConcurrent(abbreviated)
}

func (s *Static) RecordSuccessDegenerated() {
	s.core.recordSuccessDegenerated()
}

func (s *Static) RecordSuccessFull() {
	s.core.recordSuccessFull()
}
