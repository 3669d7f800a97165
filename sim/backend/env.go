package backend

import (
	"fmt"

	"github.com/hcle-sim/hcle/sim"
)

// NumSlots is the number of save-state slots per Env; valid slots are 0..NumSlots-1.
const NumSlots = 10

// savedState is an in-memory snapshot of an Env.
type savedState struct {
	game     game
	stack    []uint8
	stackIdx int
	raw      [2][]uint8
	done     bool
}

// Env is one console running one game behind the preprocessing chain.
// It implements sim.Unit, sim.Seeder and sim.Observer.
//
// After the game reports done the Env stays terminal: further steps return
// the final observation, zero reward and done=true until Reset.
type Env struct {
	cfg     sim.UnitConfig
	cart    Cartridge
	game    game
	pre     *preprocessor
	actions []uint8
	seed    uint64
	done    bool
	closed  bool
	slots   [NumSlots]*savedState
}

// NewEnv builds an Env for cart. The game is reset with seed 0.
func NewEnv(cfg sim.UnitConfig, cart Cartridge) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cart.Validate(); err != nil {
		return nil, err
	}
	g := newGame(cart)
	e := &Env{
		cfg:     cfg,
		cart:    cart,
		game:    g,
		pre:     newPreprocessor(cfg),
		actions: g.inputs(),
	}
	e.restart()
	return e, nil
}

// Seed sets the seed applied by the next Reset.
func (e *Env) Seed(seed int64) { e.seed = uint64(seed) }

// Reset restarts the game and returns the first observation.
func (e *Env) Reset() ([]uint8, error) {
	if e.closed {
		return nil, sim.ErrClosed
	}
	e.restart()
	return e.pre.observation(), nil
}

func (e *Env) restart() {
	e.game.reset(e.seed)
	e.done = false
	e.pre.clear()
	e.renderFrame()
	e.pre.push()
}

// renderFrame shifts the raw frame pair and draws the current screen as the newest.
func (e *Env) renderFrame() {
	e.pre.raw[0], e.pre.raw[1] = e.pre.raw[1], e.pre.raw[0]
	e.game.render(e.pre.rawFrame(1))
}

// Step repeats the chosen input for FrameSkip frames, accumulating reward.
func (e *Env) Step(action int) ([]uint8, float32, bool, error) {
	if e.closed {
		return nil, 0, false, sim.ErrClosed
	}
	if action < 0 || action >= len(e.actions) {
		return nil, 0, false, fmt.Errorf("%w: %d not in [0, %d)", sim.ErrInvalidAction, action, len(e.actions))
	}
	if e.done {
		return e.pre.observation(), 0, true, nil
	}
	input := e.actions[action]
	var reward float32
	for f := 0; f < e.cfg.FrameSkip; f++ {
		reward += e.game.frame(input)
		over := e.game.done()
		if f >= e.cfg.FrameSkip-2 || over {
			e.renderFrame()
		}
		if over {
			break
		}
	}
	e.pre.push()
	e.done = e.game.done()
	return e.pre.observation(), reward, e.done, nil
}

// ActionSet returns the controller input behind each action index.
func (e *Env) ActionSet() []int {
	set := make([]int, len(e.actions))
	for i, a := range e.actions {
		set[i] = int(a)
	}
	return set
}

// Observation returns the current stacked observation without stepping.
func (e *Env) Observation() []uint8 { return e.pre.observation() }

// ObservationSpace is a uint8 box of UnitConfig.ObservationShape().
func (e *Env) ObservationSpace() sim.Space {
	return sim.Box(0, 255, e.cfg.ObservationShape(), sim.DTypeUint8)
}

// Cartridge returns the resolved game parameters.
func (e *Env) Cartridge() Cartridge { return e.cart }

// SaveState snapshots the game and frame stack into slot.
func (e *Env) SaveState(slot int) error {
	if slot < 0 || slot >= NumSlots {
		return fmt.Errorf("slot %d not in [0, %d): %w", slot, NumSlots, sim.ErrInvalidSlot)
	}
	stack, idx := e.pre.snapshot()
	e.slots[slot] = &savedState{
		game:     e.game.clone(),
		stack:    stack,
		stackIdx: idx,
		raw:      [2][]uint8{append([]uint8(nil), e.pre.raw[0]...), append([]uint8(nil), e.pre.raw[1]...)},
		done:     e.done,
	}
	return nil
}

// LoadState restores slot. The slot keeps its snapshot and can be loaded again.
func (e *Env) LoadState(slot int) error {
	if slot < 0 || slot >= NumSlots {
		return fmt.Errorf("slot %d not in [0, %d): %w", slot, NumSlots, sim.ErrInvalidSlot)
	}
	s := e.slots[slot]
	if s == nil {
		return fmt.Errorf("slot %d is empty: %w", slot, sim.ErrInvalidSlot)
	}
	e.game = s.game.clone()
	e.pre.restore(s.stack, s.stackIdx)
	copy(e.pre.raw[0], s.raw[0])
	copy(e.pre.raw[1], s.raw[1])
	e.done = s.done
	return nil
}

// Close drops saved states. Later calls fail with sim.ErrClosed.
func (e *Env) Close() error {
	e.closed = true
	e.slots = [NumSlots]*savedState{}
	return nil
}
