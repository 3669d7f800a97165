package vector

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hcle-sim/hcle/sim"
)

var errFakeStep = errors.New("fake unit step failure")

// fakeOptions configures a fleet of fakeUnits. Zero values mean "never".
type fakeOptions struct {
	shape      []int                         // observation shape (default 4×3×1)
	actions    int                           // action set size (default 4)
	delay      func(index int) time.Duration // per-step sleep
	doneAfter  map[int]int                   // unit index → step count at which done becomes true
	failStepAt map[int]int                   // unit index → step count whose Step returns errFakeStep
	panicStep  map[int]bool                  // unit index → Step panics
	failBuild  map[int]bool                  // unit index → factory fails
	shapeFor   map[int][]int                 // unit index → observation shape override
	badObs     map[int]bool                  // unit index → Step returns a short observation
}

// fakeUnit is a deterministic Unit. Its observation encodes
// [last action, unit index, step count, seed low byte, 0, ...].
type fakeUnit struct {
	index     int
	opts      fakeOptions
	shape     []int
	obs       []uint8
	steps     int
	seed      int64
	seeded    bool
	resets    int
	stepCalls int
	closed    bool
	slots     map[int]int
}

func (u *fakeUnit) size() int {
	n := 1
	for _, d := range u.shape {
		n *= d
	}
	return n
}

func (u *fakeUnit) render(action int) []uint8 {
	for i := range u.obs {
		u.obs[i] = 0
	}
	if u.steps > 0 {
		u.obs[0] = uint8(action)
		u.obs[1] = uint8(u.index)
		u.obs[2] = uint8(u.steps)
	}
	if u.seeded {
		u.obs[3] = uint8(u.seed)
	}
	// Deliberately return the internal buffer: the Worker must stage a copy.
	return u.obs
}

func (u *fakeUnit) Reset() ([]uint8, error) {
	u.resets++
	u.steps = 0
	return u.render(0), nil
}

func (u *fakeUnit) Step(action int) ([]uint8, float32, bool, error) {
	u.stepCalls++
	if u.opts.delay != nil {
		time.Sleep(u.opts.delay(u.index))
	}
	if u.opts.panicStep[u.index] {
		panic("fake unit exploded")
	}
	u.steps++
	if at, ok := u.opts.failStepAt[u.index]; ok && u.steps == at {
		return nil, 0, false, errFakeStep
	}
	if u.opts.badObs[u.index] {
		return []uint8{1}, 0, false, nil
	}
	done := false
	if at, ok := u.opts.doneAfter[u.index]; ok && u.steps >= at {
		done = true
	}
	return u.render(action), float32(action), done, nil
}

func (u *fakeUnit) ActionSet() []int {
	set := make([]int, u.opts.actions)
	for i := range set {
		set[i] = i
	}
	return set
}

func (u *fakeUnit) SaveState(slot int) error {
	if slot < 0 || slot > 3 {
		return fmt.Errorf("slot %d: %w", slot, sim.ErrInvalidSlot)
	}
	u.slots[slot] = u.steps
	return nil
}

func (u *fakeUnit) LoadState(slot int) error {
	steps, ok := u.slots[slot]
	if !ok {
		return fmt.Errorf("slot %d: %w", slot, sim.ErrInvalidSlot)
	}
	u.steps = steps
	return nil
}

func (u *fakeUnit) Observation() []uint8 { return u.render(int(u.obs[0])) }

func (u *fakeUnit) Seed(seed int64) {
	u.seed = seed
	u.seeded = true
}

func (u *fakeUnit) ObservationSpace() sim.Space {
	return sim.Box(0, 255, u.shape, sim.DTypeUint8)
}

func (u *fakeUnit) Close() error {
	u.closed = true
	return nil
}

// fakeFleet records every unit its factory builds.
type fakeFleet struct {
	mu    sync.Mutex
	units map[int]*fakeUnit
}

func (f *fakeFleet) unit(i int) *fakeUnit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units[i]
}

func (f *fakeFleet) built() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.units)
}

func newFakeFleet(opts fakeOptions) (*fakeFleet, sim.UnitFactory) {
	if opts.shape == nil {
		opts.shape = []int{4, 3, 1}
	}
	if opts.actions == 0 {
		opts.actions = 4
	}
	fleet := &fakeFleet{units: make(map[int]*fakeUnit)}
	factory := func(index int, cfg sim.UnitConfig) (sim.Unit, error) {
		if opts.failBuild[index] {
			return nil, fmt.Errorf("%w: fake asset for unit %d", sim.ErrAssetNotFound, index)
		}
		shape := opts.shape
		if s, ok := opts.shapeFor[index]; ok {
			shape = s
		}
		u := &fakeUnit{index: index, opts: opts, shape: shape, slots: make(map[int]int)}
		u.obs = make([]uint8, u.size())
		fleet.mu.Lock()
		fleet.units[index] = u
		fleet.mu.Unlock()
		return u, nil
	}
	return fleet, factory
}

func testConfig(n int) Config {
	return Config{NumUnits: n, Unit: sim.DefaultUnitConfig("fake")}
}

// newTestPipeline builds and resets a pipeline over fake units.
func newTestPipeline(n int, opts fakeOptions) (*Pipeline, *fakeFleet, error) {
	fleet, factory := newFakeFleet(opts)
	p, err := New(testConfig(n), factory)
	if err != nil {
		return nil, fleet, err
	}
	if _, _, err := p.Reset(nil); err != nil {
		return nil, fleet, err
	}
	return p, fleet, nil
}

func int64Ptr(v int64) *int64 { return &v }
