package heuristics

import "sort"

// ChooseCollectionSetFromRegionData picks the regions to evacuate from data
// and appends them to cset. data is reordered in place, descending by
// garbage; actualFree is the number of bytes currently free in the heap.
//
// The selection balances two failure modes:
//
//  1. A collection set larger than the evacuation budget guarantees OOM
//     during evacuation, and thus a full GC; the budget also leaves the
//     application room to allocate. In a non-overloaded heap the budget
//     holds every plausible candidate over the garbage threshold.
//  2. A collection set too small leaves the free threshold unmet right after
//     the cycle, producing back-to-back cycles on a fragmented heap. The
//     min-garbage floor admits the best candidates unconditionally until
//     enough reclaim is queued; after that the garbage threshold gates out
//     regions that are nearly all live.
//
// In generational mode the ignore threshold is a hard cutoff that even
// min-garbage pressure cannot override. Single-generation selection does not
// apply the ignore threshold: under min-garbage pressure it admits regions of
// any garbage size.
func (a *Adaptive) ChooseCollectionSetFromRegionData(cset CollectionSet, data []Region, actualFree uint64) {
	regionSize := a.heap.RegionSizeBytes()
	garbageThreshold := regionSize * a.cfg.GarbageThreshold / 100
	ignoreThreshold := regionSize * a.cfg.IgnoreGarbageThreshold / 100

	// Under generational mode the caller has already mixed old candidates
	// and tenure-age regions into data, so the incoming order is not
	// strictly descending by garbage; the stable sort keys on garbage alone
	// and preserves the caller's relative placement of equal entries.
	sort.SliceStable(data, func(i, j int) bool {
		return data[i].Garbage() > data[j].Garbage()
	})

	if a.heap.IsGenerational() {
		a.chooseGenerational(cset, data, actualFree, garbageThreshold, ignoreThreshold)
	} else {
		a.chooseSingleGeneration(cset, data, actualFree, garbageThreshold)
	}

	collectedOld := cset.OldBytesReservedForEvacuation()
	collectedPromoted := cset.YoungBytesToBePromoted()
	collectedYoung := cset.YoungBytesReservedForEvacuation()
	Logger.Infof("Chosen CSet evacuates young: %s (of which at least: %s are to be promoted), old: %s",
		fmtBytes(collectedYoung), fmtBytes(collectedPromoted), fmtBytes(collectedOld))
}

func (a *Adaptive) chooseGenerational(cset CollectionSet, data []Region, actualFree, garbageThreshold, ignoreThreshold uint64) {
	tenureAge := a.cfg.InitialTenuringThreshold
	capacity := a.heap.YoungGeneration().MaxCapacity()

	// curYoungGarbage is the memory queued for reclamation from young-gen.
	// A preselected region is promoted out of young-gen as a whole, so its
	// garbage is counted here up front; counting it reduces the need to
	// reclaim highly utilized young regions just to satisfy min_garbage.
	var curYoungGarbage uint64
	for _, r := range data {
		if cset.IsPreselected(r.Index()) {
			assertf(r.Age() >= tenureAge, "preselected region %d has age %d below tenure age %d", r.Index(), r.Age(), tenureAge)
			curYoungGarbage += r.Garbage()
			cset.AddRegion(r)
		}
	}

	if a.gen.IsGlobal() {
		maxYoungCset := uint64(float64(a.heap.YoungEvacReserve()) / a.cfg.EvacWaste)
		maxOldCset := uint64(float64(a.heap.OldEvacReserve()) / a.cfg.OldEvacWaste)
		freeTarget := capacity*a.cfg.MinFreeThreshold/100 + maxYoungCset
		var minGarbage uint64
		if freeTarget > actualFree {
			minGarbage = freeTarget - actualFree
		}

		Logger.Infof("Adaptive CSet Selection for GLOBAL. Max Young Evacuation: %s, Max Old Evacuation: %s, Actual Free: %s.",
			fmtBytes(maxYoungCset), fmtBytes(maxOldCset), fmtBytes(actualFree))

		var youngCurCset, oldCurCset uint64
		for _, r := range data {
			if cset.IsPreselected(r.Index()) {
				continue
			}
			addRegion := false
			if r.IsOld() {
				newCset := oldCurCset + r.LiveData()
				if newCset <= maxOldCset && r.Garbage() > garbageThreshold {
					addRegion = true
					oldCurCset = newCset
				}
			} else if r.Age() < tenureAge {
				newCset := youngCurCset + r.LiveData()
				regionGarbage := r.Garbage()
				newGarbage := curYoungGarbage + regionGarbage
				addRegardless := regionGarbage > ignoreThreshold && newGarbage < minGarbage
				if newCset <= maxYoungCset && (addRegardless || regionGarbage > garbageThreshold) {
					addRegion = true
					youngCurCset = newCset
					curYoungGarbage = newGarbage
				}
			}
			// Aged regions that were not preselected are never added: they
			// were not preselected because old-gen lacks the room to hold
			// their to-be-promoted live objects.

			if addRegion {
				cset.AddRegion(r)
			}
		}
		return
	}

	// Young-gen collection or a mixed evacuation; for the latter, the
	// old-gen candidate regions have already been added by the caller.
	maxCset := uint64(float64(a.heap.YoungEvacReserve()) / a.cfg.EvacWaste)
	freeTarget := capacity*a.cfg.MinFreeThreshold/100 + maxCset
	var minGarbage uint64
	if freeTarget > actualFree {
		minGarbage = freeTarget - actualFree
	}

	Logger.Infof("Adaptive CSet Selection for YOUNG. Max Evacuation: %s, Actual Free: %s.",
		fmtBytes(maxCset), fmtBytes(actualFree))

	var curCset uint64
	for _, r := range data {
		if cset.IsPreselected(r.Index()) {
			continue
		}
		if r.Age() >= tenureAge {
			// Not preselected, so either old-gen lacks promotion room or
			// the region is to be promoted in place.
			continue
		}
		assertf(r.IsYoung(), "region %d: only young candidates expected in the data array", r.Index())
		newCset := curCset + r.LiveData()
		regionGarbage := r.Garbage()
		newGarbage := curYoungGarbage + regionGarbage
		addRegardless := regionGarbage > ignoreThreshold && newGarbage < minGarbage
		if newCset <= maxCset && (addRegardless || regionGarbage > garbageThreshold) {
			curCset = newCset
			curYoungGarbage = newGarbage
			cset.AddRegion(r)
		}
	}
}

func (a *Adaptive) chooseSingleGeneration(cset CollectionSet, data []Region, actualFree, garbageThreshold uint64) {
	capacity := a.heap.MaxCapacity()
	maxCset := uint64(1.0 * float64(capacity) / 100 * float64(a.cfg.EvacReserve) / a.cfg.EvacWaste)
	freeTarget := capacity*a.cfg.MinFreeThreshold/100 + maxCset
	var minGarbage uint64
	if freeTarget > actualFree {
		minGarbage = freeTarget - actualFree
	}

	Logger.Infof("Adaptive CSet Selection. Target Free: %s, Actual Free: %s, Max Evacuation: %s, Min Garbage: %s",
		fmtBytes(freeTarget), fmtBytes(actualFree), fmtBytes(maxCset), fmtBytes(minGarbage))

	var curCset, curGarbage uint64
	for _, r := range data {
		assertf(r.IsYoung(), "region %d: single-generation candidates are all young", r.Index())

		newCset := curCset + r.LiveData()
		newGarbage := curGarbage + r.Garbage()

		// The sort is descending by garbage: once a region busts the
		// evacuation budget, every later region is a worse trade.
		if newCset > maxCset {
			break
		}

		if newGarbage < minGarbage || r.Garbage() > garbageThreshold {
			cset.AddRegion(r)
			curCset = newCset
			curGarbage = newGarbage
		}
	}
}
