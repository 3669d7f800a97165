package sim

// Unit is one independently steppable simulation instance.
//
// A Unit is owned by exactly one Worker and is only ever called from that
// Worker's goroutine, so implementations need no internal locking.
//
// Actions are indices into ActionSet(). Step on a Unit that has reported
// done is still dispatched; whether it restarts or stays terminal is the
// backend's business, the pipeline never resets on its own.
type Unit interface {
	// Reset restarts the simulation and returns the first observation.
	Reset() ([]uint8, error)
	// Step advances the simulation by one action.
	Step(action int) (obs []uint8, reward float32, done bool, err error)
	// ActionSet lists the legal actions, in index order.
	ActionSet() []int
	// SaveState snapshots the simulation into slot.
	SaveState(slot int) error
	// LoadState restores the snapshot in slot. Returns an error wrapping
	// ErrInvalidSlot if slot is unrecognized or empty.
	LoadState(slot int) error
	// ObservationSpace describes a single observation.
	ObservationSpace() Space
	// Close releases the Unit's resources.
	Close() error
}

// Seeder is implemented by Units that accept a deterministic seed.
// Seed is applied before the next Reset.
type Seeder interface {
	Seed(seed int64)
}

// Observer is implemented by Units that can report their current observation
// without stepping. Used to refresh buffers after LoadState.
type Observer interface {
	Observation() []uint8
}

// UnitFactory builds the Unit driven by worker index.
type UnitFactory func(index int, cfg UnitConfig) (Unit, error)
