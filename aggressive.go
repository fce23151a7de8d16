package heuristics

import "sort"

// Aggressive runs back-to-back cycles and evacuates every region with any
// garbage at all. It exists to shake out collector bugs, not for production
// use.
type Aggressive struct {
	core
}

var _ Heuristic = (*Aggressive)(nil)

// NewAggressive creates the aggressive heuristic for one generation. A nil
// cfg means all defaults.
func NewAggressive(heap Heap, gen Generation, cfg *Config) *Aggressive {
	return &Aggressive{core: newCore(heap, gen, cfg.withDefaults())}
}

func (a *Aggressive) ShouldStartGC() bool {
	Logger.Infof("Trigger (%s): Start next cycle immediately", a.gen.Name())
	return true
}

func (a *Aggressive) ChooseCollectionSetFromRegionData(cset CollectionSet, data []Region, actualFree uint64) {
	sort.SliceStable(data, func(i, j int) bool {
		return data[i].Garbage() > data[j].Garbage()
	})
	for _, r := range data {
		if r.Garbage() > 0 {
			cset.AddRegion(r)
		}
	}
}

func (a *Aggressive) RecordSuccessConcurrent(abbreviated bool) {
	a.core.recordSuccessConcurrent(abbreviated)
}

func (a *Aggressive) RecordSuccessDegenerated() {
	a.core.recordSuccessDegenerated()
}

func (a *Aggressive) RecordSuccessFull() {
	a.core.recordSuccessFull()
}
