package heuristics

// The heuristics never own the collector structures they consult. The
// controller guarantees that a Region slice handed to a selector, and the
// CollectionSet it fills, are not mutated concurrently for the duration of
// the call.

// Region is a fixed-size slice of the heap, the unit of allocation and
// reclamation. Descriptors are immutable for the duration of a selection.
type Region interface {
	Index() int
	IsYoung() bool
	IsOld() bool
	// Age is the number of cycles the region's live objects have survived.
	Age() int
	Garbage() uint64
	LiveData() uint64
	// Used is Garbage() + LiveData().
	Used() uint64
}

// Generation exposes the telemetry of one GC generation.
type Generation interface {
	Name() string
	IsYoung() bool
	IsOld() bool
	IsGlobal() bool
	MaxCapacity() uint64
	SoftMaxCapacity() uint64
	Available() uint64
	SoftAvailable() uint64
	Used() uint64
	// BytesAllocatedSinceGCStart reads a counter updated by mutator threads
	// with relaxed atomics; a stale or non-monotonic read is tolerated.
	BytesAllocatedSinceGCStart() uint64
}

// CollectionSet is the ordered, append-only set of regions chosen for
// evacuation. It is built by the selector and read back by the trigger's
// runway computation.
type CollectionSet interface {
	// IsPreselected reports whether the region was marked in advance for
	// whole-region promotion. Preselected regions are added first and
	// accounted against the promotion reserve, not the evacuation reserves.
	IsPreselected(index int) bool
	AddRegion(r Region)

	YoungBytesReservedForEvacuation() uint64
	OldBytesReservedForEvacuation() uint64
	YoungBytesToBePromoted() uint64
	YoungAvailableBytesCollected() uint64
}

// OldHeuristics is the slice of the old-generation heuristic consulted by the
// young heuristic for mixed-evacuation signals. The young heuristic reaches
// it through the Heap, never by direct ownership.
type OldHeuristics interface {
	UnprocessedOldCollectionCandidates() uint64
}

// Heap exposes the collector-wide state the heuristics consult.
type Heap interface {
	IsGenerational() bool
	MaxCapacity() uint64
	Capacity() uint64
	RegionSizeBytes() uint64

	YoungGeneration() Generation
	OldGeneration() Generation
	OldHeuristics() OldHeuristics

	// FreeSetAvailable is the mutator-usable slice of free memory; the
	// collector reserve may eat into what a generation reports as available.
	FreeSetAvailable() uint64
	CollectionSet() CollectionSet

	YoungEvacReserve() uint64
	OldEvacReserve() uint64
	PromotionPotential() uint64
	PromotionInPlacePotential() uint64
}
