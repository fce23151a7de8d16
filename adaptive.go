package heuristics

import "github.com/hashbeam/go-gcheuristics/stats"

// Confidence interval bounds for the trigger parameters, in standard
// deviations. At the minimum there is a 25% chance that the true value of an
// estimate (average cycle time or allocation rate) is more than that many
// standard deviations away; at the maximum, one in a thousand. Adjustments
// applied at the outcome of a cycle saturate against these.
const (
	MinimumConfidence = 0.319 // 75%
	MaximumConfidence = 3.291 // 99.9%
)

// Penalties applied to the trigger parameters when a cycle degenerates or
// falls back to a full stop-the-world collection, in standard deviations.
const (
	fullPenaltySD       = 0.2
	degeneratePenaltySD = 0.1
)

// A successful concurrent cycle only adjusts the trigger parameters when the
// end-of-cycle availability lands outside this band of z-scores.
const (
	lowestExpectedAvailableAtEnd  = -0.5
	highestExpectedAvailableAtEnd = 0.5
)

// Adaptive decides when to start a concurrent cycle and what to evacuate,
// and re-tunes its own confidence parameters from cycle outcomes. One
// instance serves one generation.
type Adaptive struct {
	core

	// Trigger confidence, in standard deviations. A larger margin of error
	// widens the estimates the rate trigger compares, making it fire
	// earlier; a lower spike threshold makes spike detection more sensitive.
	marginOfErrorSD  float64
	spikeThresholdSD float64

	// Remembers which trigger fired last, so the post-cycle feedback knows
	// which parameter to adjust.
	lastTrigger Trigger

	// End-of-cycle free memory.
	available *stats.DecayingAverage

	allocationRate *allocationRate
}

var _ Heuristic = (*Adaptive)(nil)

// NewAdaptive creates the adaptive heuristic for one generation. A nil cfg
// means all defaults.
func NewAdaptive(heap Heap, gen Generation, cfg *Config) *Adaptive {
	cfg = cfg.withDefaults()
	return &Adaptive{
		core:             newCore(heap, gen, cfg),
		marginOfErrorSD:  cfg.InitialConfidence,
		spikeThresholdSD: cfg.InitialSpikeThreshold,
		lastTrigger:      TriggerOther,
		available:        stats.NewDecayingAverage(cfg.MovingAverageSamples, cfg.DecayFactor),
		allocationRate:   newAllocationRate(cfg),
	}
}

// LastTrigger returns the cause of the most recent trigger decision.
func (a *Adaptive) LastTrigger() Trigger {
	return a.lastTrigger
}

// MarginOfErrorSD returns the current rate-trigger confidence parameter.
func (a *Adaptive) MarginOfErrorSD() float64 {
	return a.marginOfErrorSD
}

// SpikeThresholdSD returns the current spike-trigger confidence parameter.
func (a *Adaptive) SpikeThresholdSD() float64 {
	return a.spikeThresholdSD
}

// RecordCycleStart resets the allocation sampler alongside the shared cycle
// bookkeeping; the bytes-allocated counter restarts from zero with the
// cycle.
func (a *Adaptive) RecordCycleStart() {
	a.core.RecordCycleStart()
	a.allocationRate.allocationCounterReset()
}

// ShouldStartGC reports whether a concurrent cycle should begin now.
func (a *Adaptive) ShouldStartGC() bool {
	capacity := a.gen.SoftMaxCapacity()
	available := a.gen.SoftAvailable()
	allocated := a.gen.BytesAllocatedSinceGCStart()

	Logger.Debugf("should_start_gc (%s)? available: %d, soft_max_capacity: %d, allocated: %d",
		a.gen.Name(), available, capacity, allocated)

	// The collector reserve may eat into what the mutator is allowed to use.
	// Look at what is available to the mutator when deciding.
	if usable := a.heap.FreeSetAvailable(); usable < available {
		Logger.Debugf("Usable (%s) is less than available (%s)", fmtBytes(usable), fmtBytes(available))
		available = usable
	}

	// Track the allocation rate even if we decide to start a cycle for other
	// reasons.
	rate := a.allocationRate.sample(allocated)
	a.lastTrigger = TriggerOther

	// The old generation is maintained to be as small as possible;
	// depletion-of-free-pool triggers do not apply to it.
	if a.gen.IsOld() {
		return a.core.shouldStartGC()
	}

	minThreshold := a.minFreeThreshold()
	if available < minThreshold {
		Logger.Infof("Trigger (%s): Free (%s) is below minimum threshold (%s)",
			a.gen.Name(), fmtBytes(available), fmtBytes(minThreshold))
		return true
	}

	// While we are still learning the application, trigger from a more
	// conservative initial floor.
	if maxLearn := a.cfg.LearningSteps; a.gcTimesLearned < maxLearn {
		initThreshold := capacity / 100 * a.cfg.InitFreeThreshold
		if available < initThreshold {
			Logger.Infof("Trigger (%s): Learning %d of %d. Free (%s) is below initial threshold (%s)",
				a.gen.Name(), a.gcTimesLearned+1, maxLearn, fmtBytes(available), fmtBytes(initThreshold))
			return true
		}
	}

	// Allocation headroom: free memory less the spike buffer and the
	// penalties accumulated from degenerated and full cycles, saturating at
	// zero.
	allocationHeadroom := available
	spikeHeadroom := capacity / 100 * a.cfg.AllocSpikeFactor
	penalties := capacity / 100 * uint64(a.gcTimePenalties)
	allocationHeadroom -= min(allocationHeadroom, penalties)
	allocationHeadroom -= min(allocationHeadroom, spikeHeadroom)

	avgCycleTime := a.cycleTimeHistory.Davg() + a.marginOfErrorSD*a.cycleTimeHistory.Dsd()
	avgAllocRate := a.allocationRate.upperBound(a.marginOfErrorSD)
	Logger.Debugf("%s: average GC time: %.2f ms, allocation rate: %s/s",
		a.gen.Name(), avgCycleTime*1000, fmtBytes(uint64(avgAllocRate)))

	// A zero rate makes the quotient +Inf and the comparison false, which is
	// the intended "cannot deplete, no trigger" outcome.
	if avgCycleTime > float64(allocationHeadroom)/avgAllocRate {
		Logger.Infof("Trigger (%s): Average GC time (%.2f ms) is above the time for average allocation rate (%s/s)"+
			" to deplete free headroom (%s) (margin of error = %.2f)",
			a.gen.Name(), avgCycleTime*1000, fmtBytes(uint64(avgAllocRate)), fmtBytes(allocationHeadroom), a.marginOfErrorSD)
		Logger.Infof("Free headroom: %s (free) - %s (spike) - %s (penalties) = %s",
			fmtBytes(available), fmtBytes(spikeHeadroom), fmtBytes(penalties), fmtBytes(allocationHeadroom))
		a.lastTrigger = TriggerRate
		return true
	}

	if a.allocationRate.isSpiking(rate, a.spikeThresholdSD) && avgCycleTime > float64(allocationHeadroom)/rate {
		Logger.Infof("Trigger (%s): Average GC time (%.2f ms) is above the time for instantaneous allocation rate (%s/s)"+
			" to deplete free headroom (%s) (spike threshold = %.2f)",
			a.gen.Name(), avgCycleTime*1000, fmtBytes(uint64(rate)), fmtBytes(allocationHeadroom), a.spikeThresholdSD)
		a.lastTrigger = TriggerSpike
		return true
	}

	if a.heap.IsGenerational() {
		// Get through promotions and mixed evacuations as quickly as
		// possible: old-gen and young-gen activities are not truly
		// concurrent, so when there is old-gen work pending, start the
		// young-gen threads early and let them take some of it. Promotion
		// gets priority over old-gen marking.
		promoPotential := a.heap.PromotionPotential()
		promoInPlacePotential := a.heap.PromotionInPlacePotential()
		mixedCandidates := a.heap.OldHeuristics().UnprocessedOldCollectionCandidates()
		switch {
		case promoPotential > 0:
			assertf(promoPotential < a.heap.Capacity(), "promotion potential %d exceeds heap capacity %d", promoPotential, a.heap.Capacity())
			Logger.Infof("Trigger (%s): expedite promotion of %s", a.gen.Name(), fmtBytes(promoPotential))
			return true
		case promoInPlacePotential > 0:
			assertf(promoInPlacePotential < a.heap.Capacity(), "promotion-in-place potential %d exceeds heap capacity %d", promoInPlacePotential, a.heap.Capacity())
			Logger.Infof("Trigger (%s): expedite promotion in place of %s", a.gen.Name(), fmtBytes(promoInPlacePotential))
			return true
		case mixedCandidates > 0:
			// Young GC opens up free regions so mixed evacuations can finish.
			Logger.Infof("Trigger (%s): expedite mixed evacuation of %d regions", a.gen.Name(), mixedCandidates)
			return true
		}
	}

	return a.core.shouldStartGC()
}

// RecordSuccessConcurrent folds the end-of-cycle availability into the
// feedback loop. A cycle that finishes with unusually little free memory
// strengthens whichever trigger fired last; an above-average outcome relaxes
// it.
func (a *Adaptive) RecordSuccessConcurrent(abbreviated bool) {
	a.core.recordSuccessConcurrent(abbreviated)

	available := min(a.gen.Available(), a.heap.FreeSetAvailable())

	zScore := 0.0
	if sd := a.available.Sd(); sd > 0 {
		avg := a.available.Avg()
		zScore = (float64(available) - avg) / sd
		Logger.Debugf("%s Available: %s, z-score=%.3f. Average available: %s +/- %s.",
			a.gen.Name(), fmtBytes(available), zScore, fmtBytes(uint64(avg)), fmtBytes(uint64(sd)))
	}

	a.available.Add(float64(available))

	// The z-score is in no way statistically related to the trigger
	// parameters, but worse z-scores for available memory map to larger
	// adjustments, and a stable application converges to no adjustments at
	// all. Within the expected band, leave the parameters alone.
	if zScore < lowestExpectedAvailableAtEnd || zScore > highestExpectedAvailableAtEnd {
		// The sign is flipped: a negative z-score means below-average free
		// memory, which must make the triggers more likely to fire. The 100
		// attenuates these adjustments to an order of magnitude below the
		// degenerated/full penalties.
		a.adjustLastTriggerParameters(zScore / -100)
	}
}

// RecordSuccessDegenerated penalizes both triggers; either should have fired
// earlier to avoid the degenerated cycle.
func (a *Adaptive) RecordSuccessDegenerated() {
	a.core.recordSuccessDegenerated()
	a.adjustMarginOfError(degeneratePenaltySD)
	a.adjustSpikeThreshold(degeneratePenaltySD)
}

// RecordSuccessFull penalizes both triggers; a full stop-the-world collection
// is the worst outcome this heuristic tries to avoid.
func (a *Adaptive) RecordSuccessFull() {
	a.core.recordSuccessFull()
	a.adjustMarginOfError(fullPenaltySD)
	a.adjustSpikeThreshold(fullPenaltySD)
}

func (a *Adaptive) adjustLastTriggerParameters(amount float64) {
	switch a.lastTrigger {
	case TriggerRate:
		a.adjustMarginOfError(amount)
	case TriggerSpike:
		a.adjustSpikeThreshold(amount)
	case TriggerOther:
		// nothing to adjust here.
	}
}

func (a *Adaptive) adjustMarginOfError(amount float64) {
	a.marginOfErrorSD = saturate(a.marginOfErrorSD+amount, MinimumConfidence, MaximumConfidence)
	Logger.Debugf("Margin of error now %.2f", a.marginOfErrorSD)
}

// adjustSpikeThreshold subtracts: a positive amount lowers the threshold,
// making spike detection more sensitive.
func (a *Adaptive) adjustSpikeThreshold(amount float64) {
	a.spikeThresholdSD = saturate(a.spikeThresholdSD-amount, MinimumConfidence, MaximumConfidence)
	Logger.Debugf("Spike threshold now: %.2f", a.spikeThresholdSD)
}

func saturate(value, lo, hi float64) float64 {
	return max(min(value, hi), lo)
}

// BytesOfAllocationRunwayBeforeGCTrigger returns a conservative estimate of
// how many bytes the mutator may still allocate before a trigger fires. The
// estimate accounts for memory currently available in the young generation,
// the memory the in-flight cycle will return to it (youngRegionsToBeReclaimed
// regions, less the young free space the collection set is consuming), and
// the anticipated duration of a GC. Only meaningful for the young-generation
// heuristic.
func (a *Adaptive) BytesOfAllocationRunwayBeforeGCTrigger(youngRegionsToBeReclaimed uint64) uint64 {
	assertf(a.gen.IsYoung(), "allocation runway queried for %s", a.gen.Name())

	capacity := a.gen.SoftMaxCapacity()
	usage := a.gen.Used()
	var available uint64
	if capacity > usage {
		available = capacity - usage
	}
	allocated := a.gen.BytesAllocatedSinceGCStart()

	availableYoungCollected := a.heap.CollectionSet().YoungAvailableBytesCollected()
	anticipatedAvailable := available + youngRegionsToBeReclaimed*a.heap.RegionSizeBytes()
	anticipatedAvailable -= min(anticipatedAvailable, availableYoungCollected)
	spikeHeadroom := capacity / 100 * a.cfg.AllocSpikeFactor
	penalties := capacity / 100 * uint64(a.gcTimePenalties)

	rate := a.allocationRate.sample(allocated)

	avgCycleTime := a.cycleTimeHistory.Davg() + a.marginOfErrorSD*a.cycleTimeHistory.Dsd()
	avgAllocRate := a.allocationRate.upperBound(a.marginOfErrorSD)

	// The rate trigger fires when allocation_headroom < avg_cycle_time *
	// avg_alloc_rate, where allocation_headroom is anticipated_available
	// less penalties and the spike buffer. evac_slack_avg is how far we are
	// from that point; zero means it is already time to trigger.
	var evacSlackAvg uint64
	if budget := avgCycleTime*avgAllocRate + float64(penalties+spikeHeadroom); float64(anticipatedAvailable) > budget {
		evacSlackAvg = anticipatedAvailable - uint64(budget)
	}

	evacSlackSpiking := evacSlackAvg
	if a.allocationRate.isSpiking(rate, a.spikeThresholdSD) {
		evacSlackSpiking = 0
		if budget := avgCycleTime*rate + float64(penalties+spikeHeadroom); float64(anticipatedAvailable) > budget {
			evacSlackSpiking = anticipatedAvailable - uint64(budget)
		}
	}

	var evacMinThreshold uint64
	if threshold := a.minFreeThreshold(); anticipatedAvailable > threshold {
		evacMinThreshold = anticipatedAvailable - threshold
	}
	return min(evacSlackSpiking, evacSlackAvg, evacMinThreshold)
}
