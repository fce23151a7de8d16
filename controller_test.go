package heuristics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// scriptedHeuristic records the order of heuristic calls and answers
// ShouldStartGC from a script (false once exhausted).
type scriptedHeuristic struct {
	mu      sync.Mutex
	script  []bool
	calls   []string
	outcome []CycleOutcome
}

var _ Heuristic = (*scriptedHeuristic)(nil)

func (s *scriptedHeuristic) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *scriptedHeuristic) ShouldStartGC() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "ShouldStartGC")
	if len(s.script) == 0 {
		return false
	}
	next := s.script[0]
	s.script = s.script[1:]
	return next
}

func (s *scriptedHeuristic) RecordCycleStart() { s.record("RecordCycleStart") }
func (s *scriptedHeuristic) RecordCycleEnd()   { s.record("RecordCycleEnd") }

func (s *scriptedHeuristic) ChooseCollectionSetFromRegionData(cset CollectionSet, data []Region, actualFree uint64) {
	s.record("ChooseCollectionSet")
}

func (s *scriptedHeuristic) RecordSuccessConcurrent(abbreviated bool) {
	if abbreviated {
		s.record("RecordSuccessConcurrent(abbreviated)")
	} else {
		s.record("RecordSuccessConcurrent")
	}
}

func (s *scriptedHeuristic) RecordSuccessDegenerated() { s.record("RecordSuccessDegenerated") }
func (s *scriptedHeuristic) RecordSuccessFull()        { s.record("RecordSuccessFull") }

func (s *scriptedHeuristic) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func TestControllerOrdering(t *testing.T) {
	defer goleak.VerifyNone(t)
	clk := mockClock(t)

	heur := &scriptedHeuristic{script: []bool{false, true}}
	var outcomes []CycleOutcome
	var outcomesMu sync.Mutex

	ctrl, err := NewController(heur, 5*time.Second, func() CycleOutcome {
		heur.record("RunCycle")
		return CycleConcurrent
	})
	require.NoError(t, err)

	unregister := ctrl.RegisterNotifee(func(o CycleOutcome) {
		outcomesMu.Lock()
		outcomes = append(outcomes, o)
		outcomesMu.Unlock()
	})
	defer unregister()

	require.NoError(t, ctrl.Start())
	require.ErrorIs(t, ctrl.Start(), ErrAlreadyStarted)
	defer ctrl.Stop()

	time.Sleep(100 * time.Millisecond) // let the poller install its timer.

	// First tick: no trigger.
	clk.Add(5 * time.Second)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, []string{"ShouldStartGC"}, heur.snapshot())

	// Second tick: trigger, cycle, outcome bookkeeping.
	clk.Add(5 * time.Second)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, []string{
		"ShouldStartGC",
		"ShouldStartGC",
		"RecordCycleStart",
		"RunCycle",
		"RecordCycleEnd",
		"RecordSuccessConcurrent",
	}, heur.snapshot())

	outcomesMu.Lock()
	require.Equal(t, []CycleOutcome{CycleConcurrent}, outcomes)
	outcomesMu.Unlock()

	ctrl.Stop() // idempotent with the deferred Stop.
}

func TestControllerOutcomeDispatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	clk := mockClock(t)

	for _, tc := range []struct {
		outcome CycleOutcome
		call    string
	}{
		{CycleConcurrent, "RecordSuccessConcurrent"},
		{CycleAbbreviated, "RecordSuccessConcurrent(abbreviated)"},
		{CycleDegenerated, "RecordSuccessDegenerated"},
		{CycleFull, "RecordSuccessFull"},
	} {
		heur := &scriptedHeuristic{script: []bool{true}}
		ctrl, err := NewController(heur, time.Second, func() CycleOutcome { return tc.outcome })
		require.NoError(t, err)
		require.NoError(t, ctrl.Start())

		time.Sleep(50 * time.Millisecond)
		clk.Add(time.Second)
		time.Sleep(100 * time.Millisecond)
		ctrl.Stop()

		calls := heur.snapshot()
		require.Equal(t, tc.call, calls[len(calls)-1])
	}
}

func TestControllerValidation(t *testing.T) {
	_, err := NewController(nil, time.Second, func() CycleOutcome { return CycleConcurrent })
	require.Error(t, err)

	_, err = NewController(&scriptedHeuristic{}, 0, func() CycleOutcome { return CycleConcurrent })
	require.Error(t, err)

	_, err = NewController(&scriptedHeuristic{}, time.Second, nil)
	require.Error(t, err)
}

func TestControllerUnregisterNotifee(t *testing.T) {
	defer goleak.VerifyNone(t)
	clk := mockClock(t)

	heur := &scriptedHeuristic{script: []bool{true, true}}
	ctrl, err := NewController(heur, time.Second, func() CycleOutcome { return CycleConcurrent })
	require.NoError(t, err)

	var notified int
	var mu sync.Mutex
	unregister := ctrl.RegisterNotifee(func(CycleOutcome) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	require.NoError(t, ctrl.Start())
	time.Sleep(50 * time.Millisecond)
	clk.Add(time.Second)
	time.Sleep(100 * time.Millisecond)

	unregister()

	clk.Add(time.Second)
	time.Sleep(100 * time.Millisecond)
	ctrl.Stop()

	mu.Lock()
	require.Equal(t, 1, notified)
	mu.Unlock()
}
