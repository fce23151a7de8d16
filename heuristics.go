// Package heuristics implements the adaptive policy layer of a region-based
// concurrent garbage collector: deciding when a concurrent cycle should
// begin, and which regions it should evacuate.
//
// The package produces advice only. It never performs evacuation, never
// blocks, and is consulted by a single controller thread per generation.
package heuristics

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hashbeam/go-gcheuristics/stats"
)

// Clock can be swapped for a mock clock in tests. All time reads in this
// package go through it.
var Clock = clock.New()

// Trigger identifies which test fired the last GC trigger.
type Trigger int

const (
	// TriggerOther covers depletion floors, learning floors, generational
	// expedite triggers and the guaranteed-interval fallback.
	TriggerOther Trigger = iota
	// TriggerRate is the average-allocation-rate trigger.
	TriggerRate
	// TriggerSpike is the instantaneous-allocation-spike trigger.
	TriggerSpike
)

func (t Trigger) String() string {
	switch t {
	case TriggerRate:
		return "rate"
	case TriggerSpike:
		return "spike"
	default:
		return "other"
	}
}

// Heuristic is the capability set shared by all heuristic kinds. One instance
// serves one generation; instances are created at collector startup and
// consulted only by that generation's controller thread, in the order
// RecordCycleStart, ShouldStartGC (zero or more), ChooseCollectionSet-
// FromRegionData once per cycle, then exactly one RecordSuccess hook.
type Heuristic interface {
	RecordCycleStart()
	RecordCycleEnd()

	// ShouldStartGC is advisory; the controller may discard the result.
	ShouldStartGC() bool

	// ChooseCollectionSetFromRegionData orders data in place by descending
	// garbage and appends the chosen subset to cset. actualFree is the
	// number of bytes currently free in the heap.
	ChooseCollectionSetFromRegionData(cset CollectionSet, data []Region, actualFree uint64)

	RecordSuccessConcurrent(abbreviated bool)
	RecordSuccessDegenerated()
	RecordSuccessFull()
}

// GC time penalties, in percent of capacity withheld from the allocation
// headroom. Concurrent cycles slowly pay accumulated penalties back down.
const (
	concurrentAdjust   = -1
	degeneratedPenalty = 10
	fullPenalty        = 20
	maxPenalty         = 100
)

// core carries the bookkeeping shared by all heuristic kinds: the learned
// cycle-time history, the GC time penalty counter, the learning counter and
// the guaranteed-interval fallback trigger.
type core struct {
	heap Heap
	gen  Generation
	cfg  *Config

	cycleTimeHistory *stats.DecayingAverage
	gcTimePenalties  int
	gcTimesLearned   int

	cycleStart   time.Time
	lastCycleEnd time.Time
}

func newCore(heap Heap, gen Generation, cfg *Config) core {
	now := Clock.Now()
	return core{
		heap:             heap,
		gen:              gen,
		cfg:              cfg,
		cycleTimeHistory: stats.NewDecayingAverage(cfg.MovingAverageSamples, cfg.DecayFactor),
		cycleStart:       now,
		lastCycleEnd:     now,
	}
}

func (c *core) RecordCycleStart() {
	c.cycleStart = Clock.Now()
}

func (c *core) RecordCycleEnd() {
	c.lastCycleEnd = Clock.Now()
}

func (c *core) elapsedCycleTime() float64 {
	return Clock.Now().Sub(c.cycleStart).Seconds()
}

func (c *core) recordSuccessConcurrent(abbreviated bool) {
	c.gcTimesLearned++
	c.adjustPenalty(concurrentAdjust)
	if abbreviated && c.cfg.IgnoreShortCycles {
		return
	}
	c.cycleTimeHistory.Add(c.elapsedCycleTime())
}

func (c *core) recordSuccessDegenerated() {
	c.adjustPenalty(degeneratedPenalty)
}

func (c *core) recordSuccessFull() {
	c.adjustPenalty(fullPenalty)
}

func (c *core) adjustPenalty(step int) {
	p := c.gcTimePenalties + step
	if p < 0 {
		p = 0
	}
	if p > maxPenalty {
		p = maxPenalty
	}
	c.gcTimePenalties = p
}

// minFreeThreshold is the unconditional depletion floor, in bytes.
func (c *core) minFreeThreshold() uint64 {
	return c.gen.SoftMaxCapacity() / 100 * c.cfg.MinFreeThreshold
}

// shouldStartGC is the fallback decision shared by all kinds: force a cycle
// when none has run for the guaranteed interval.
func (c *core) shouldStartGC() bool {
	if c.cfg.GuaranteedGCInterval > 0 {
		if since := Clock.Now().Sub(c.lastCycleEnd); since > c.cfg.GuaranteedGCInterval {
			Logger.Infof("Trigger (%s): Time since last GC (%s) is past the guaranteed interval (%s)",
				c.gen.Name(), since, c.cfg.GuaranteedGCInterval)
			return true
		}
	}
	return false
}
