package vector

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcle-sim/hcle/sim"
	"github.com/hcle-sim/hcle/sim/trace"
)

func TestPipeline_StepWait_ReturnsIndexAlignedResults(t *testing.T) {
	for _, n := range []int{1, 2, 5, 8} {
		// GIVEN a reset pipeline of n units
		p, _, err := newTestPipeline(n, fakeOptions{})
		require.NoError(t, err)

		actions := make([]int, n)
		for i := range actions {
			actions[i] = (i * 3) % 4
		}

		// WHEN a batch is dispatched and collected
		require.NoError(t, p.StepAsync(actions))
		res, err := p.StepWait()
		require.NoError(t, err)

		// THEN exactly n results come back, slot i holding unit i's answer to action i
		require.Equal(t, n, res.Len())
		require.Len(t, res.Dones, n)
		require.Len(t, res.Truncated, n)
		for i := 0; i < n; i++ {
			obs := res.Observation(i)
			assert.Equal(t, uint8(actions[i]), obs[0], "n=%d slot %d action", n, i)
			assert.Equal(t, uint8(i), obs[1], "n=%d slot %d unit index", n, i)
			assert.Equal(t, float32(actions[i]), res.Rewards[i])
			assert.False(t, res.Truncated[i])
		}
		assert.Empty(t, res.Info)
		require.NoError(t, p.Close())
	}
}

func TestPipeline_OutOfOrderCompletion_PreservesIndexOrder(t *testing.T) {
	// GIVEN units where higher indices finish first
	n := 4
	p, _, err := newTestPipeline(n, fakeOptions{
		delay: func(i int) time.Duration { return time.Duration(n-i) * 5 * time.Millisecond },
	})
	require.NoError(t, err)
	defer p.Close()

	// WHEN a batch is stepped
	res, err := p.Step([]int{3, 2, 1, 0})
	require.NoError(t, err)

	// THEN results are still ordered by unit index
	for i := 0; i < n; i++ {
		assert.Equal(t, uint8(i), res.Observation(i)[1])
		assert.Equal(t, uint8(3-i), res.Observation(i)[0])
	}
}

func TestPipeline_FourUnitScenario(t *testing.T) {
	// GIVEN 4 deterministic units with (H, W, C) = (4, 3, 1)
	_, factory := newFakeFleet(fakeOptions{})
	p, err := New(testConfig(4), factory)
	require.NoError(t, err)
	defer p.Close()

	// WHEN reset
	obs, info, err := p.Reset(nil)
	require.NoError(t, err)

	// THEN 4 identical initial observations come back
	assert.Empty(t, info)
	assert.Equal(t, []int{4, 4, 3, 1}, obs.Shape)
	for i := 1; i < 4; i++ {
		assert.Equal(t, obs.Observation(0), obs.Observation(i))
	}

	// WHEN stepping [0,1,2,3]
	require.NoError(t, p.StepAsync([]int{0, 1, 2, 3}))
	res, err := p.StepWait()
	require.NoError(t, err)

	// THEN 4 rewards, no dones, batch shape (4, H, W, C)
	assert.Len(t, res.Rewards, 4)
	assert.Equal(t, []bool{false, false, false, false}, res.Dones)
	assert.Equal(t, []int{4, 4, 3, 1}, res.Shape)
	assert.Len(t, res.Observations, 4*4*3*1)
}

func TestPipeline_StepAsyncTwice_ReturnsBusy(t *testing.T) {
	// GIVEN a pipeline with a batch in flight
	p, fleet, err := newTestPipeline(2, fakeOptions{})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.StepAsync([]int{1, 1}))

	// WHEN StepAsync is called again
	err = p.StepAsync([]int{2, 2})

	// THEN it fails with a busy error and the first batch is untouched
	assert.ErrorIs(t, err, sim.ErrPipelineBusy)
	assert.Equal(t, sim.KindUsage, sim.KindOf(err))
	res, err := p.StepWait()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), res.Observation(0)[0], "second batch must not overwrite the first")
	assert.Equal(t, 1, fleet.unit(0).stepCalls, "second batch must not be queued")
}

func TestPipeline_StepWaitWithoutPending_ReturnsNoPending(t *testing.T) {
	p, _, err := newTestPipeline(2, fakeOptions{})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.StepWait()
	assert.ErrorIs(t, err, sim.ErrNoPendingBatch)

	// AND a consumed batch cannot be collected twice
	require.NoError(t, p.StepAsync([]int{0, 0}))
	_, err = p.StepWait()
	require.NoError(t, err)
	_, err = p.StepWait()
	assert.ErrorIs(t, err, sim.ErrNoPendingBatch)
}

func TestPipeline_StepAsync_WrongLength_ReturnsShapeError(t *testing.T) {
	p, fleet, err := newTestPipeline(3, fakeOptions{})
	require.NoError(t, err)
	defer p.Close()

	for _, actions := range [][]int{nil, {0, 0}, {0, 0, 0, 0}} {
		err := p.StepAsync(actions)
		assert.ErrorIs(t, err, sim.ErrShape, "len=%d", len(actions))
	}
	// THEN nothing was dispatched
	assert.False(t, p.Pending())
	assert.Equal(t, 0, fleet.unit(0).stepCalls)
}

func TestPipeline_StepAsync_ActionOutOfRange_ReturnsUsageError(t *testing.T) {
	p, _, err := newTestPipeline(2, fakeOptions{actions: 3})
	require.NoError(t, err)
	defer p.Close()

	err = p.StepAsync([]int{0, 3})
	assert.ErrorIs(t, err, sim.ErrInvalidAction)
	assert.Equal(t, sim.KindUsage, sim.KindOf(err))
	assert.False(t, p.Pending())
}

func TestPipeline_StepBeforeReset_ReturnsNotReset(t *testing.T) {
	_, factory := newFakeFleet(fakeOptions{})
	p, err := New(testConfig(2), factory)
	require.NoError(t, err)
	defer p.Close()

	assert.ErrorIs(t, p.StepAsync([]int{0, 0}), sim.ErrNotReset)
}

func TestPipeline_ReturnedBatchesAreIndependentCopies(t *testing.T) {
	// GIVEN a pipeline and a reset snapshot
	p, _, err := newTestPipeline(2, fakeOptions{})
	require.NoError(t, err)
	defer p.Close()
	first, err := p.Step([]int{1, 2})
	require.NoError(t, err)
	saved := append([]uint8(nil), first.Observations...)

	// WHEN the caller mutates the returned batch
	for i := range first.Observations {
		first.Observations[i] = 0xFF
	}
	first.Rewards[0] = -100
	first.Dones[1] = true

	// THEN the next call is unaffected
	second, err := p.Step([]int{1, 2})
	require.NoError(t, err)
	assert.NotEqual(t, uint8(0xFF), second.Observations[2])
	assert.Equal(t, float32(1), second.Rewards[0])
	assert.False(t, second.Dones[1])

	// AND a later step does not rewrite an earlier snapshot
	third, err := p.Step([]int{3, 3})
	require.NoError(t, err)
	assert.Equal(t, uint8(3), third.Observation(0)[0])
	assert.Equal(t, uint8(1), second.Observation(0)[0])
	assert.Equal(t, saved[0], uint8(1))
}

func TestPipeline_AfterClose_CallsFailAndCloseIsIdempotent(t *testing.T) {
	p, fleet, err := newTestPipeline(3, fakeOptions{})
	require.NoError(t, err)

	// WHEN closed twice
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	// THEN every unit is closed and stepping operations fail with ErrClosed
	for i := 0; i < 3; i++ {
		assert.True(t, fleet.unit(i).closed, "unit %d", i)
	}
	assert.ErrorIs(t, p.StepAsync([]int{0, 0, 0}), sim.ErrClosed)
	_, err = p.StepWait()
	assert.ErrorIs(t, err, sim.ErrClosed)
	_, _, err = p.Reset(nil)
	assert.ErrorIs(t, err, sim.ErrClosed)
	_, err = p.Step([]int{0, 0, 0})
	assert.ErrorIs(t, err, sim.ErrClosed)
	assert.ErrorIs(t, p.SaveState(0), sim.ErrClosed)
	assert.Equal(t, sim.KindUsage, sim.KindOf(err))
}

func TestPipeline_CloseWithInFlightBatch_WaitsForWorkers(t *testing.T) {
	// GIVEN slow units with a batch in flight
	p, fleet, err := newTestPipeline(3, fakeOptions{
		delay: func(int) time.Duration { return 20 * time.Millisecond },
	})
	require.NoError(t, err)
	require.NoError(t, p.StepAsync([]int{1, 1, 1}))

	// WHEN closed immediately
	require.NoError(t, p.Close())

	// THEN each unit finished its step before being closed
	for i := 0; i < 3; i++ {
		u := fleet.unit(i)
		assert.Equal(t, 1, u.steps, "unit %d must complete its in-flight step", i)
		assert.True(t, u.closed)
	}
	assert.False(t, p.Pending())
}

func TestPipeline_TerminalUnit_NoAutoReset(t *testing.T) {
	// GIVEN unit 1 terminates on its second step while siblings continue
	p, fleet, err := newTestPipeline(3, fakeOptions{doneAfter: map[int]int{1: 2}})
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Step([]int{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, res.Dones)

	res, err = p.Step([]int{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, res.Dones)

	// WHEN stepping again without reset
	res, err = p.Step([]int{2, 2, 2})
	require.NoError(t, err)

	// THEN the terminal unit still received the action and was not reset
	assert.True(t, res.Dones[1])
	assert.Equal(t, 3, fleet.unit(1).stepCalls)
	assert.Equal(t, 1, fleet.unit(1).resets)
	assert.Equal(t, uint8(2), res.Observation(1)[0])

	// WHEN explicitly reset
	_, _, err = p.Reset(nil)
	require.NoError(t, err)

	// THEN every unit restarts, never only a subset
	for i := 0; i < 3; i++ {
		assert.Equal(t, 2, fleet.unit(i).resets, "unit %d", i)
	}
	res, err = p.Step([]int{0, 0, 0})
	require.NoError(t, err)
	assert.False(t, res.Dones[1])
}

func TestPipeline_BackendFault_ReportsWorkerIndexAndConsumesBatch(t *testing.T) {
	// GIVEN units 1 and 2 fail on their first step
	p, fleet, err := newTestPipeline(4, fakeOptions{failStepAt: map[int]int{1: 1, 2: 1}})
	require.NoError(t, err)
	defer p.Close()

	// WHEN the batch is collected
	require.NoError(t, p.StepAsync([]int{0, 0, 0, 0}))
	_, err = p.StepWait()

	// THEN the whole call fails with the lowest failing index
	var be *sim.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Worker)
	assert.Equal(t, "step", be.Op)
	assert.ErrorIs(t, err, errFakeStep)
	assert.Equal(t, sim.KindBackend, sim.KindOf(err))

	// AND every worker was collected, so the pipeline accepts a new batch
	for i := 0; i < 4; i++ {
		assert.Equal(t, 1, fleet.unit(i).stepCalls)
	}
	assert.False(t, p.Pending())
	_, err = p.StepWait()
	assert.ErrorIs(t, err, sim.ErrNoPendingBatch)
	_, err = p.Step([]int{0, 0, 0, 0})
	assert.NoError(t, err)
}

func TestPipeline_UnitPanic_IsBackendFault(t *testing.T) {
	p, _, err := newTestPipeline(2, fakeOptions{panicStep: map[int]bool{0: true}})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Step([]int{0, 0})
	var be *sim.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 0, be.Worker)
	assert.Contains(t, err.Error(), "panicked")
}

func TestPipeline_WrongSizedObservation_IsBackendFault(t *testing.T) {
	p, _, err := newTestPipeline(3, fakeOptions{badObs: map[int]bool{2: true}})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Step([]int{0, 0, 0})
	var be *sim.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 2, be.Worker)
}

func TestNew_ConstructionFailure_IsResourceErrorAndClosesBuiltUnits(t *testing.T) {
	// GIVEN a factory that fails for unit 2
	fleet, factory := newFakeFleet(fakeOptions{failBuild: map[int]bool{2: true}})

	// WHEN the pipeline is constructed
	p, err := New(testConfig(4), factory)

	// THEN construction fails as a resource error and no pipeline exists
	assert.Nil(t, p)
	var re *sim.ResourceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Worker)
	assert.Equal(t, sim.KindResource, sim.KindOf(err))
	assert.ErrorIs(t, err, sim.ErrAssetNotFound)

	// AND every unit that was built has been closed
	assert.Equal(t, 3, fleet.built())
	for _, i := range []int{0, 1, 3} {
		assert.True(t, fleet.unit(i).closed, "unit %d", i)
	}
}

func TestNew_MismatchedObservationSpace_IsResourceError(t *testing.T) {
	fleet, factory := newFakeFleet(fakeOptions{shapeFor: map[int][]int{1: {2, 2, 1}}})

	p, err := New(testConfig(3), factory)

	assert.Nil(t, p)
	var re *sim.ResourceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.Worker)
	for i := 0; i < 3; i++ {
		assert.True(t, fleet.unit(i).closed)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, factory := newFakeFleet(fakeOptions{})

	_, err := New(Config{NumUnits: 0, Unit: sim.DefaultUnitConfig("fake")}, factory)
	assert.Error(t, err)

	cfg := testConfig(2)
	cfg.Unit.FrameSkip = 0
	_, err = New(cfg, factory)
	assert.Error(t, err)

	_, err = New(testConfig(2), nil)
	assert.Equal(t, sim.KindResource, sim.KindOf(err))
}

func TestPipeline_Spaces(t *testing.T) {
	p, _, err := newTestPipeline(5, fakeOptions{actions: 6})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, sim.Box(0, 255, []int{4, 3, 1}, sim.DTypeUint8), p.SingleObservationSpace())
	assert.True(t, p.ObservationSpace().Equal(sim.Box(0, 255, []int{5, 4, 3, 1}, sim.DTypeUint8)))
	assert.Equal(t, sim.Discrete(6), p.SingleActionSpace())
	assert.True(t, p.ActionSpace().Equal(sim.Box(0, 5, []int{5}, sim.DTypeInt64)))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, p.ActionSet())
	assert.Equal(t, 5, p.NumUnits())
}

func TestPipeline_ResetSeed_DerivesPerUnitSeeds(t *testing.T) {
	// GIVEN two pipelines reset with the same seed
	p1, fleet1, err := newTestPipeline(3, fakeOptions{})
	require.NoError(t, err)
	defer p1.Close()
	p2, fleet2, err := newTestPipeline(3, fakeOptions{})
	require.NoError(t, err)
	defer p2.Close()

	_, _, err = p1.Reset(int64Ptr(7))
	require.NoError(t, err)
	_, _, err = p2.Reset(int64Ptr(7))
	require.NoError(t, err)

	// THEN unit i receives the same seed in both, and units receive distinct seeds
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(7))
	seen := map[int64]bool{}
	for i := 0; i < 3; i++ {
		assert.True(t, fleet1.unit(i).seeded)
		assert.Equal(t, fleet1.unit(i).seed, fleet2.unit(i).seed)
		assert.Equal(t, rng.UnitSeed(i), fleet1.unit(i).seed)
		seen[fleet1.unit(i).seed] = true
	}
	assert.Len(t, seen, 3)
}

func TestPipeline_ResetWithInFlightBatch_DiscardsIt(t *testing.T) {
	p, fleet, err := newTestPipeline(2, fakeOptions{})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.StepAsync([]int{1, 1}))

	obs, _, err := p.Reset(nil)
	require.NoError(t, err)

	assert.False(t, p.Pending())
	assert.Equal(t, 1, fleet.unit(0).stepCalls)
	assert.Equal(t, uint8(0), obs.Observation(0)[0])
	_, err = p.StepWait()
	assert.ErrorIs(t, err, sim.ErrNoPendingBatch)
}

func TestPipeline_SaveLoadState(t *testing.T) {
	// GIVEN units stepped twice and saved in slot 1
	p, fleet, err := newTestPipeline(2, fakeOptions{})
	require.NoError(t, err)
	defer p.Close()
	_, err = p.Step([]int{1, 1})
	require.NoError(t, err)
	_, err = p.Step([]int{1, 1})
	require.NoError(t, err)
	require.NoError(t, p.SaveState(1))

	// WHEN stepped further and then restored
	_, err = p.Step([]int{1, 1})
	require.NoError(t, err)
	require.NoError(t, p.LoadState(1))

	// THEN unit state is back at the save point
	for i := 0; i < 2; i++ {
		assert.Equal(t, 2, fleet.unit(i).steps)
	}
	res, err := p.Step([]int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, uint8(3), res.Observation(0)[2])
}

func TestPipeline_LoadState_InvalidSlot_IsBackendError(t *testing.T) {
	p, _, err := newTestPipeline(2, fakeOptions{})
	require.NoError(t, err)
	defer p.Close()

	err = p.LoadState(2) // never saved
	assert.ErrorIs(t, err, sim.ErrInvalidSlot)
	assert.Equal(t, sim.KindBackend, sim.KindOf(err))

	err = p.SaveState(9) // out of range for the fake
	assert.ErrorIs(t, err, sim.ErrInvalidSlot)

	// AND state operations are refused while a batch is in flight
	require.NoError(t, p.StepAsync([]int{0, 0}))
	assert.ErrorIs(t, p.SaveState(0), sim.ErrPipelineBusy)
	_, err = p.StepWait()
	require.NoError(t, err)
}

func TestPipeline_Trace_RecordsResetsAndSteps(t *testing.T) {
	pt := trace.NewPipelineTrace(trace.TraceConfig{Level: trace.TraceLevelCalls})
	_, factory := newFakeFleet(fakeOptions{doneAfter: map[int]int{0: 1}})
	cfg := testConfig(2)
	cfg.Trace = pt
	p, err := New(cfg, factory)
	require.NoError(t, err)
	defer p.Close()

	_, _, err = p.Reset(nil)
	require.NoError(t, err)
	_, err = p.Step([]int{2, 3})
	require.NoError(t, err)

	require.Len(t, pt.Records, 2)
	assert.Equal(t, trace.CallReset, pt.Records[0].Kind)
	assert.Equal(t, trace.CallStep, pt.Records[1].Kind)
	assert.InDelta(t, 5.0, pt.Records[1].RewardSum, 1e-9)
	assert.Equal(t, 1, pt.Records[1].Dones)
}

// TestPipeline_PipelinedSteps_OverlapCallerWork checks that dispatching before
// doing caller work hides simulation time behind it.
func TestPipeline_PipelinedSteps_OverlapCallerWork(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	const (
		steps     = 8
		simTime   = 10 * time.Millisecond
		agentTime = 10 * time.Millisecond
	)
	p, _, err := newTestPipeline(4, fakeOptions{
		delay: func(int) time.Duration { return simTime },
	})
	require.NoError(t, err)
	defer p.Close()
	actions := []int{0, 1, 2, 3}

	// Synchronous: wait for the simulation, then think.
	start := time.Now()
	for i := 0; i < steps; i++ {
		_, err := p.Step(actions)
		require.NoError(t, err)
		time.Sleep(agentTime)
	}
	syncDur := time.Since(start)

	// Pipelined: think while the previous batch simulates.
	_, _, err = p.Reset(nil)
	require.NoError(t, err)
	require.NoError(t, p.StepAsync(actions))
	start = time.Now()
	for i := 0; i < steps; i++ {
		time.Sleep(agentTime)
		_, err := p.StepWait()
		require.NoError(t, err)
		require.NoError(t, p.StepAsync(actions))
	}
	asyncDur := time.Since(start)
	_, err = p.StepWait()
	require.NoError(t, err)

	t.Logf("sync=%v async=%v", syncDur, asyncDur)
	assert.LessOrEqual(t, asyncDur, syncDur)
}
