// gcsim drives the GC heuristics against a synthetic allocation workload on
// a simulated region heap, and reports how the triggers and the collection
// set selection behaved. Simulated time runs on a mock clock, so a multi-
// minute workload replays in milliseconds.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/c2h5oh/datasize"
	"github.com/op/go-logging"
	"github.com/urfave/cli/v2"

	heuristics "github.com/hashbeam/go-gcheuristics"
)

const defaultLogFormat = "%{time:2006/01/02 15:04:05} %{color}%{level:-8s}%{color:reset} %{shortpkg}: %{message}"

var (
	capacityFlag = cli.StringFlag{
		Name:  "capacity",
		Usage: "heap capacity (e.g. \"2GiB\"); defaults to the cgroup limit or total system memory",
	}
	regionSizeFlag = cli.StringFlag{
		Name:  "region-size",
		Usage: "region size",
		Value: "32MiB",
	}
	allocRateFlag = cli.StringFlag{
		Name:  "alloc-rate",
		Usage: "steady allocation rate, bytes per second",
		Value: "512MiB",
	}
	spikeRateFlag = cli.StringFlag{
		Name:  "spike-rate",
		Usage: "allocation rate during spikes, bytes per second",
		Value: "4GiB",
	}
	spikeEveryFlag = cli.DurationFlag{
		Name:  "spike-every",
		Usage: "interval between allocation spikes; 0 disables spikes",
		Value: 30 * time.Second,
	}
	spikeDurationFlag = cli.DurationFlag{
		Name:  "spike-duration",
		Usage: "length of each allocation spike",
		Value: 2 * time.Second,
	}
	liveRatioFlag = cli.Float64Flag{
		Name:  "live-ratio",
		Usage: "fraction of allocated bytes that stays live",
		Value: 0.3,
	}
	durationFlag = cli.DurationFlag{
		Name:  "duration",
		Usage: "simulated wall time to run for",
		Value: 2 * time.Minute,
	}
	tickFlag = cli.DurationFlag{
		Name:  "tick",
		Usage: "simulated time step",
		Value: 100 * time.Millisecond,
	}
	cycleTimeFlag = cli.DurationFlag{
		Name:  "cycle-time",
		Usage: "simulated duration of a concurrent GC cycle",
		Value: 250 * time.Millisecond,
	}
	logLevelFlag = cli.StringFlag{
		Name:    "log",
		Aliases: []string{"l"},
		Usage:   "log level (\"critical\", \"error\", \"warning\", \"info\", \"debug\")",
		Value:   "info",
	}
)

func main() {
	app := &cli.App{
		Name:  "gcsim",
		Usage: "simulate the adaptive GC heuristics against a synthetic workload",
		Flags: []cli.Flag{
			&capacityFlag, &regionSizeFlag, &allocRateFlag, &spikeRateFlag,
			&spikeEveryFlag, &spikeDurationFlag, &liveRatioFlag,
			&durationFlag, &tickFlag, &cycleTimeFlag, &logLevelFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// goLogger adapts an op/go-logging logger to the heuristics logging
// contract.
type goLogger struct {
	log *logging.Logger
}

func (l *goLogger) Debugf(template string, args ...interface{}) { l.log.Debugf(template, args...) }
func (l *goLogger) Infof(template string, args ...interface{})  { l.log.Infof(template, args...) }
func (l *goLogger) Warnf(template string, args ...interface{})  { l.log.Warningf(template, args...) }
func (l *goLogger) Errorf(template string, args ...interface{}) { l.log.Errorf(template, args...) }

func newLogger(level string) *logging.Logger {
	backend := logging.NewLogBackend(os.Stdout, "", 0)
	fm := logging.MustStringFormatter(defaultLogFormat)
	fmtBackend := logging.NewBackendFormatter(backend, fm)

	lvl, err := logging.LogLevel(strings.ToUpper(level))
	if err != nil {
		lvl = logging.INFO
	}
	leveled := logging.AddModuleLevel(fmtBackend)
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)

	return logging.MustGetLogger("gcsim")
}

func parseSize(ctx *cli.Context, flag string) (uint64, error) {
	var v datasize.ByteSize
	if err := v.UnmarshalText([]byte(ctx.String(flag))); err != nil {
		return 0, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return v.Bytes(), nil
}

func run(ctx *cli.Context) error {
	log := newLogger(ctx.String(logLevelFlag.Name))
	heuristics.Logger = &goLogger{log: log}

	capacity := uint64(0)
	if ctx.IsSet(capacityFlag.Name) {
		c, err := parseSize(ctx, capacityFlag.Name)
		if err != nil {
			return err
		}
		capacity = c
	} else {
		capacity = heuristics.ProcessMemoryLimit()
		if capacity == 0 {
			c, err := heuristics.TotalSystemMemory()
			if err != nil {
				return fmt.Errorf("failed to size the heap: %w", err)
			}
			capacity = c
		}
		log.Noticef("sizing heap from the environment: %s", datasize.ByteSize(capacity).HumanReadable())
	}

	regionSize, err := parseSize(ctx, regionSizeFlag.Name)
	if err != nil {
		return err
	}
	allocRate, err := parseSize(ctx, allocRateFlag.Name)
	if err != nil {
		return err
	}
	spikeRate, err := parseSize(ctx, spikeRateFlag.Name)
	if err != nil {
		return err
	}
	if capacity < 4*regionSize {
		return fmt.Errorf("capacity %s holds fewer than 4 regions of %s",
			datasize.ByteSize(capacity).HumanReadable(), datasize.ByteSize(regionSize).HumanReadable())
	}

	sim := &simulation{
		log:           log,
		capacity:      capacity,
		regionSize:    regionSize,
		allocRate:     allocRate,
		spikeRate:     spikeRate,
		spikeEvery:    ctx.Duration(spikeEveryFlag.Name),
		spikeDuration: ctx.Duration(spikeDurationFlag.Name),
		liveRatio:     ctx.Float64(liveRatioFlag.Name),
		duration:      ctx.Duration(durationFlag.Name),
		tick:          ctx.Duration(tickFlag.Name),
		cycleTime:     ctx.Duration(cycleTimeFlag.Name),
	}
	return sim.run()
}

type simulation struct {
	log *logging.Logger

	capacity      uint64
	regionSize    uint64
	allocRate     uint64
	spikeRate     uint64
	spikeEvery    time.Duration
	spikeDuration time.Duration
	liveRatio     float64
	duration      time.Duration
	tick          time.Duration
	cycleTime     time.Duration

	heap *simHeap
	heur *heuristics.Adaptive

	cycles       int
	fullGCs      int
	triggers     map[heuristics.Trigger]int
	reclaimed    uint64
	evacuated    uint64
	peakUsage    uint64
	shortCycles  int
}

func (s *simulation) run() error {
	mock := clock.NewMock()
	heuristics.Clock = mock

	s.heap = newSimHeap(s.capacity, s.regionSize, s.liveRatio)
	s.heur = heuristics.NewAdaptive(s.heap, s.heap.gen, nil)
	s.triggers = make(map[heuristics.Trigger]int)

	for elapsed := time.Duration(0); elapsed < s.duration; elapsed += s.tick {
		mock.Add(s.tick)

		rate := s.allocRate
		if s.spikeEvery > 0 && elapsed%s.spikeEvery < s.spikeDuration {
			rate = s.spikeRate
		}
		toAllocate := uint64(float64(rate) * s.tick.Seconds())

		if !s.heap.allocate(toAllocate) {
			// Allocation failure: the heuristic triggered too late. Model
			// the stop-the-world fallback.
			s.log.Warningf("allocation failure at %s used; falling back to full GC", fmtBytes(s.heap.used()))
			s.heur.RecordCycleStart()
			s.heap.collectAll()
			s.heur.RecordCycleEnd()
			s.heur.RecordSuccessFull()
			s.fullGCs++
			continue
		}
		if s.heap.used() > s.peakUsage {
			s.peakUsage = s.heap.used()
		}

		if !s.heur.ShouldStartGC() {
			continue
		}
		s.triggers[s.heur.LastTrigger()]++
		s.runCycle(mock, rate)
	}

	s.report()
	return nil
}

func (s *simulation) runCycle(mock *clock.Mock, rate uint64) {
	s.heur.RecordCycleStart()
	s.heap.gen.allocated = 0

	// The mutator keeps allocating while the concurrent cycle runs.
	mock.Add(s.cycleTime)
	s.heap.allocate(uint64(float64(rate) * s.cycleTime.Seconds()))

	cset := newSimCSet()
	data := s.heap.collectibleRegions()
	s.heur.ChooseCollectionSetFromRegionData(cset, data, s.heap.available())

	garbage, live := s.heap.evacuate(cset)
	s.reclaimed += garbage
	s.evacuated += live

	s.heur.RecordCycleEnd()
	abbreviated := len(cset.regions) == 0
	if abbreviated {
		s.shortCycles++
	}
	s.heur.RecordSuccessConcurrent(abbreviated)
	s.cycles++
}

func (s *simulation) report() {
	s.log.Noticef("simulated %s: %d concurrent cycles (%d abbreviated), %d full GCs", s.duration, s.cycles, s.shortCycles, s.fullGCs)
	s.log.Noticef("triggers: rate=%d spike=%d other=%d",
		s.triggers[heuristics.TriggerRate], s.triggers[heuristics.TriggerSpike], s.triggers[heuristics.TriggerOther])
	s.log.Noticef("reclaimed %s of garbage, evacuated %s of live data, peak usage %s/%s",
		fmtBytes(s.reclaimed), fmtBytes(s.evacuated), fmtBytes(s.peakUsage), fmtBytes(s.capacity))
	s.log.Noticef("final margin of error: %.2f sd, spike threshold: %.2f sd",
		s.heur.MarginOfErrorSD(), s.heur.SpikeThresholdSD())
}

func fmtBytes(n uint64) string {
	return datasize.ByteSize(n).HumanReadable()
}
