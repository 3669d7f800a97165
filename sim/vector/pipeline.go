// Package vector batches N independent simulation Units behind an
// asynchronous stepping protocol.
//
// A Pipeline owns N Workers, one per Unit, and a fixed set of Buffers. The
// protocol is Reset, then any number of StepAsync/StepWait pairs, then Close.
// At most one batch is in flight, so the caller can run its own computation
// between StepAsync and StepWait while every Unit steps concurrently.
package vector

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hcle-sim/hcle/sim"
	"github.com/hcle-sim/hcle/sim/trace"
)

// Info is reserved for per-call metadata. Always empty at this layer.
type Info map[string]any

// StepResult is the value returned by StepWait and Step.
// Truncated is always all-false: no time-limit truncation happens here.
type StepResult struct {
	Batch
	Truncated []bool
	Info      Info
}

// Config describes a Pipeline. NumUnits must be >= 1.
type Config struct {
	NumUnits int
	Unit     sim.UnitConfig
	Trace    *trace.PipelineTrace // optional
}

// Validate checks the pipeline and unit configuration.
func (c Config) Validate() error {
	if c.NumUnits < 1 {
		return fmt.Errorf("number of units must be >= 1, got %d", c.NumUnits)
	}
	if err := c.Unit.Validate(); err != nil {
		return fmt.Errorf("unit config: %w", err)
	}
	return nil
}

// Pipeline is the Vector Pipeline.
//
// Thread-safety: NOT thread-safe. Exactly one goroutine may drive Reset,
// StepAsync, StepWait, Step, SaveState, LoadState and Close. Callers needing
// multi-goroutine access must serialize externally.
type Pipeline struct {
	workers   []*Worker
	buffers   *Buffers
	obsSpace  sim.Space
	actionSet []int
	trace     *trace.PipelineTrace

	pending  bool
	hasReset bool
	closed   bool
}

// New constructs cfg.NumUnits Units concurrently through factory and starts a
// Worker for each. Any construction failure is returned as a
// *sim.ResourceError; Units already built are closed and no Pipeline is
// returned. Every Unit must report the same observation space and action set.
func New(cfg Config, factory sim.UnitFactory) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if factory == nil {
		return nil, &sim.ResourceError{Worker: -1, Err: fmt.Errorf("nil unit factory")}
	}

	units := make([]sim.Unit, cfg.NumUnits)
	var g errgroup.Group
	for i := range units {
		i := i
		g.Go(func() error {
			u, err := factory(i, cfg.Unit)
			if err != nil {
				return &sim.ResourceError{Worker: i, Err: err}
			}
			if u == nil {
				return &sim.ResourceError{Worker: i, Err: fmt.Errorf("factory returned nil unit")}
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeUnits(units)
		return nil, err
	}

	obsSpace, actionSet, err := checkUnits(units)
	if err != nil {
		closeUnits(units)
		return nil, err
	}

	p := &Pipeline{
		workers:   make([]*Worker, len(units)),
		buffers:   NewBuffers(len(units), obsSpace.Shape),
		obsSpace:  obsSpace,
		actionSet: actionSet,
		trace:     cfg.Trace,
	}
	for i, u := range units {
		p.workers[i] = NewWorker(i, u)
	}
	logrus.Debugf("vector pipeline: started %d units of %q, observation %v, %d actions",
		len(units), cfg.Unit.Title, obsSpace, len(actionSet))
	return p, nil
}

// checkUnits validates unit 0's spaces and requires every other unit to match.
func checkUnits(units []sim.Unit) (sim.Space, []int, error) {
	obsSpace := units[0].ObservationSpace()
	if err := obsSpace.Validate(); err != nil {
		return sim.Space{}, nil, &sim.ResourceError{Worker: 0, Err: fmt.Errorf("observation space: %w", err)}
	}
	if obsSpace.Kind != sim.KindBox || obsSpace.DType != sim.DTypeUint8 {
		return sim.Space{}, nil, &sim.ResourceError{Worker: 0, Err: fmt.Errorf("observation space must be a uint8 box, got %v", obsSpace)}
	}
	actionSet := append([]int(nil), units[0].ActionSet()...)
	if len(actionSet) == 0 {
		return sim.Space{}, nil, &sim.ResourceError{Worker: 0, Err: fmt.Errorf("empty action set")}
	}
	for i := 1; i < len(units); i++ {
		if s := units[i].ObservationSpace(); !s.Equal(obsSpace) {
			return sim.Space{}, nil, &sim.ResourceError{Worker: i, Err: fmt.Errorf("observation space %v differs from unit 0 (%v)", s, obsSpace)}
		}
		if a := units[i].ActionSet(); !equalInts(a, actionSet) {
			return sim.Space{}, nil, &sim.ResourceError{Worker: i, Err: fmt.Errorf("action set %v differs from unit 0 (%v)", a, actionSet)}
		}
	}
	return obsSpace, actionSet, nil
}

func closeUnits(units []sim.Unit) {
	for i, u := range units {
		if u == nil {
			continue
		}
		if err := u.Close(); err != nil {
			logrus.Warnf("vector pipeline: closing unit %d after failed construction: %v", i, err)
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NumUnits returns N.
func (p *Pipeline) NumUnits() int { return len(p.workers) }

// Pending reports whether a batch has been dispatched but not collected.
func (p *Pipeline) Pending() bool { return p.pending }

// ActionSet returns a copy of the shared action set.
func (p *Pipeline) ActionSet() []int { return append([]int(nil), p.actionSet...) }

// SingleObservationSpace describes one unit's observation.
func (p *Pipeline) SingleObservationSpace() sim.Space { return p.obsSpace }

// SingleActionSpace describes one unit's action: Discrete(len(ActionSet())).
func (p *Pipeline) SingleActionSpace() sim.Space { return sim.Discrete(len(p.actionSet)) }

// ObservationSpace describes a batch of N observations.
func (p *Pipeline) ObservationSpace() sim.Space {
	s, err := sim.BatchSpace(p.obsSpace, len(p.workers))
	if err != nil {
		// obsSpace was validated in New.
		panic(err)
	}
	return s
}

// ActionSpace describes a batch of N actions.
func (p *Pipeline) ActionSpace() sim.Space {
	s, err := sim.BatchSpace(p.SingleActionSpace(), len(p.workers))
	if err != nil {
		panic(err)
	}
	return s
}

// Reset restarts every Unit and returns their initial observations.
// Blocks until all N resets complete. If seed is non-nil, each Unit that
// implements sim.Seeder receives a per-index seed derived from it.
//
// A batch still in flight is waited for and discarded first. After a failed
// Reset the pipeline must be reset again before stepping.
func (p *Pipeline) Reset(seed *int64) (Batch, Info, error) {
	if p.closed {
		return Batch{}, nil, sim.ErrClosed
	}
	if p.pending {
		logrus.Warnf("vector pipeline: reset with a batch in flight; discarding it")
		p.collectAll()
		p.pending = false
	}

	var rng *sim.PartitionedRNG
	if seed != nil {
		rng = sim.NewPartitionedRNG(sim.NewSimulationKey(*seed))
	}
	for i, w := range p.workers {
		var unitSeed *int64
		if rng != nil {
			s := rng.UnitSeed(i)
			unitSeed = &s
		}
		p.mustSubmit(w, w.SubmitReset(unitSeed))
	}

	start := time.Now()
	results := p.collectAll()
	wait := time.Since(start)

	if err := firstFault(results, "reset", p.buffers.ObservationSize()); err != nil {
		p.hasReset = false
		p.trace.Record(trace.StepRecord{Kind: trace.CallReset, Wait: wait, Failed: true})
		logrus.Warnf("vector pipeline: %v", err)
		return Batch{}, nil, err
	}
	for i, r := range results {
		p.buffers.WriteSlot(i, r.Observation, 0, false)
	}
	p.hasReset = true
	p.trace.Record(trace.StepRecord{Kind: trace.CallReset, Wait: wait})
	logrus.Debugf("vector pipeline: reset %d units in %v", len(p.workers), wait)
	return p.buffers.Snapshot(), Info{}, nil
}

// StepAsync dispatches actions[i] to unit i and returns without waiting.
//
// Errors (all usage errors, nothing is dispatched):
//   - sim.ErrClosed after Close
//   - sim.ErrNotReset before the first successful Reset
//   - sim.ErrPipelineBusy if the previous batch has not been collected
//   - sim.ErrShape if len(actions) != NumUnits()
//   - sim.ErrInvalidAction if an action is outside the action set
func (p *Pipeline) StepAsync(actions []int) error {
	if p.closed {
		return sim.ErrClosed
	}
	if !p.hasReset {
		return sim.ErrNotReset
	}
	if p.pending {
		return sim.ErrPipelineBusy
	}
	if len(actions) != len(p.workers) {
		return fmt.Errorf("%w: got %d actions for %d units", sim.ErrShape, len(actions), len(p.workers))
	}
	for i, a := range actions {
		if a < 0 || a >= len(p.actionSet) {
			return fmt.Errorf("%w: action %d for unit %d, valid range [0, %d)", sim.ErrInvalidAction, a, i, len(p.actionSet))
		}
	}

	for i, w := range p.workers {
		p.mustSubmit(w, w.Submit(actions[i]))
	}
	p.pending = true
	return nil
}

// StepWait blocks until every unit finishes the batch dispatched by the last
// StepAsync and returns a copy of the results, index-aligned with the actions.
//
// If any unit faulted, all N results are still collected, the batch is
// consumed, and a *sim.BackendError naming the lowest failing index is returned.
func (p *Pipeline) StepWait() (StepResult, error) {
	if p.closed {
		return StepResult{}, sim.ErrClosed
	}
	if !p.pending {
		return StepResult{}, sim.ErrNoPendingBatch
	}

	start := time.Now()
	results := p.collectAll()
	wait := time.Since(start)
	p.pending = false

	if err := firstFault(results, "step", p.buffers.ObservationSize()); err != nil {
		p.trace.Record(trace.StepRecord{Kind: trace.CallStep, Wait: wait, Failed: true})
		logrus.Warnf("vector pipeline: %v", err)
		return StepResult{}, err
	}

	rewardSum := 0.0
	dones := 0
	for i, r := range results {
		p.buffers.WriteSlot(i, r.Observation, r.Reward, r.Done)
		rewardSum += float64(r.Reward)
		if r.Done {
			dones++
		}
	}
	p.trace.Record(trace.StepRecord{Kind: trace.CallStep, Wait: wait, RewardSum: rewardSum, Dones: dones})

	return StepResult{
		Batch:     p.buffers.Snapshot(),
		Truncated: make([]bool, len(p.workers)),
		Info:      Info{},
	}, nil
}

// Step is StepAsync immediately followed by StepWait.
func (p *Pipeline) Step(actions []int) (StepResult, error) {
	if err := p.StepAsync(actions); err != nil {
		return StepResult{}, err
	}
	return p.StepWait()
}

// SaveState snapshots every unit into slot. A rejected slot surfaces as a
// *sim.BackendError wrapping the unit's error (typically sim.ErrInvalidSlot).
func (p *Pipeline) SaveState(slot int) error {
	if err := p.idle(); err != nil {
		return err
	}
	_, err := p.control("save_state", func(u sim.Unit) ([]uint8, error) {
		return nil, u.SaveState(slot)
	})
	return err
}

// LoadState restores every unit from slot. Units implementing sim.Observer
// refresh their buffered observation so the next snapshot reflects the
// restored state.
func (p *Pipeline) LoadState(slot int) error {
	if err := p.idle(); err != nil {
		return err
	}
	results, err := p.control("load_state", func(u sim.Unit) ([]uint8, error) {
		if err := u.LoadState(slot); err != nil {
			return nil, err
		}
		if o, ok := u.(sim.Observer); ok {
			return o.Observation(), nil
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	for i, r := range results {
		if len(r.Observation) == p.buffers.ObservationSize() {
			p.buffers.WriteObservation(i, r.Observation)
		}
	}
	return nil
}

// Close waits for any in-flight batch, then stops every Worker and closes
// every Unit. Calling Close again is a no-op and returns nil.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	if p.pending {
		logrus.Debugf("vector pipeline: close waiting for in-flight batch")
		p.collectAll()
		p.pending = false
	}
	p.closed = true

	var errs []error
	for _, w := range p.workers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	logrus.Debugf("vector pipeline: closed %d units", len(p.workers))
	return errors.Join(errs...)
}

func (p *Pipeline) idle() error {
	if p.closed {
		return sim.ErrClosed
	}
	if p.pending {
		return sim.ErrPipelineBusy
	}
	return nil
}

// control runs fn on every unit concurrently and waits for all of them.
func (p *Pipeline) control(op string, fn func(sim.Unit) ([]uint8, error)) ([]Result, error) {
	for _, w := range p.workers {
		p.mustSubmit(w, w.SubmitControl(fn))
	}
	results := p.collectAll()
	if err := firstFault(results, op, 0); err != nil {
		logrus.Warnf("vector pipeline: %v", err)
		return nil, err
	}
	return results, nil
}

// collectAll gathers one result per worker in index order. Completion order
// does not matter: slot i always holds worker i's result.
func (p *Pipeline) collectAll() []Result {
	results := make([]Result, len(p.workers))
	for i, w := range p.workers {
		results[i] = w.Collect()
	}
	return results
}

// mustSubmit panics on a submit failure: the pipeline only submits to idle,
// open workers, so an error here is a broken invariant.
func (p *Pipeline) mustSubmit(w *Worker, err error) {
	if err != nil {
		panic(fmt.Sprintf("vector pipeline: submit to worker %d: %v", w.Index(), err))
	}
}

// firstFault returns a BackendError for the lowest-indexed failed result.
// When obsSize > 0, a result with a wrongly sized observation is a fault too.
func firstFault(results []Result, op string, obsSize int) error {
	for i, r := range results {
		if r.Err != nil {
			return &sim.BackendError{Worker: i, Op: op, Err: r.Err}
		}
		if obsSize > 0 && len(r.Observation) != obsSize {
			return &sim.BackendError{Worker: i, Op: op,
				Err: fmt.Errorf("observation has %d elements, want %d", len(r.Observation), obsSize)}
		}
	}
	return nil
}
