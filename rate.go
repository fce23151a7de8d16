package heuristics

import (
	"time"

	"github.com/hashbeam/go-gcheuristics/stats"
)

// allocationRate estimates how fast the mutator allocates, from periodic
// samples of the generation's cumulative bytes-allocated-since-GC-start
// counter. Two levels of smoothing are kept: the raw rate series, and a
// series of that series' windowed averages.
type allocationRate struct {
	lastSampleTime  time.Time
	lastSampleValue uint64
	interval        time.Duration

	rate    *stats.DecayingAverage
	rateAvg *stats.DecayingAverage
}

func newAllocationRate(cfg *Config) *allocationRate {
	n := int(cfg.SampleSizeSeconds * cfg.SampleFrequencyHz)
	return &allocationRate{
		lastSampleTime: Clock.Now(),
		interval:       time.Duration(float64(time.Second) / cfg.SampleFrequencyHz),
		rate:           stats.NewDecayingAverage(n, cfg.DecayFactor),
		rateAvg:        stats.NewDecayingAverage(n, cfg.DecayFactor),
	}
}

// sample records one observation of the cumulative allocation counter and
// returns the instantaneous rate, in bytes per second. Sampling is
// rate-limited: within the configured interval of the previous sample it
// returns 0 without touching any state. A counter that moved backwards
// (reset across a cycle boundary) refreshes the sample point but produces no
// rate sample.
func (a *allocationRate) sample(allocated uint64) float64 {
	now := Clock.Now()
	var rate float64
	if now.Sub(a.lastSampleTime) > a.interval {
		if allocated >= a.lastSampleValue {
			rate = a.instantaneousRate(now, allocated)
			a.rate.Add(rate)
			a.rateAvg.Add(a.rate.Avg())
		}

		a.lastSampleTime = now
		a.lastSampleValue = allocated
	}
	return rate
}

// upperBound returns a one-sided statistical upper bound on the allocation
// rate, sds standard deviations out. The standard deviation is taken from
// the averaged series rather than the raw samples; it is a much more stable
// value and is tied to the statistic actually in use.
func (a *allocationRate) upperBound(sds float64) float64 {
	return a.rate.Davg() + sds*a.rateAvg.Dsd()
}

// allocationCounterReset forgets the previous sample point. Called at cycle
// start, because the underlying counter is reset by the collector.
func (a *allocationRate) allocationCounterReset() {
	a.lastSampleTime = Clock.Now()
	a.lastSampleValue = 0
}

// isSpiking reports whether rate is an outlier beyond threshold standard
// deviations above the sampled average.
func (a *allocationRate) isSpiking(rate, threshold float64) bool {
	if rate <= 0.0 {
		return false
	}

	sd := a.rate.Sd()
	if sd > 0 {
		// There is a small chance the rate has already been sampled, but it
		// seems not to matter in practice.
		zScore := (rate - a.rate.Avg()) / sd
		if zScore > threshold {
			return true
		}
	}
	return false
}

func (a *allocationRate) instantaneousRate(now time.Time, allocated uint64) float64 {
	var delta uint64
	if allocated > a.lastSampleValue {
		delta = allocated - a.lastSampleValue
	}
	elapsed := now.Sub(a.lastSampleTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(delta) / elapsed
}
