package vector

import "fmt"

// Batch is an independent copy of the pipeline's buffers.
// Callers may mutate it freely; the pipeline never writes to a returned Batch.
type Batch struct {
	Observations []uint8   // N × observation size, row-major
	Shape        []int     // (N, observation shape...)
	Rewards      []float32 // N rewards
	Dones        []bool    // N terminal flags
}

// Len returns the number of units in the batch.
func (b Batch) Len() int {
	return len(b.Rewards)
}

// Observation returns a view (not a copy) of unit i's observation.
func (b Batch) Observation(i int) []uint8 {
	size := len(b.Observations) / len(b.Rewards)
	return b.Observations[i*size : (i+1)*size]
}

// Buffers is the pre-allocated backing storage for N observations, rewards and
// done flags. Its shape is fixed at construction.
//
// Thread-safety: NOT thread-safe. Only the pipeline's coordinator writes to it.
type Buffers struct {
	n            int
	obsShape     []int
	obsSize      int
	observations []uint8
	rewards      []float32
	dones        []bool
}

// NewBuffers allocates storage for n observations of obsShape.
// Panics if n or any dimension is not positive.
func NewBuffers(n int, obsShape []int) *Buffers {
	if n < 1 {
		panic(fmt.Sprintf("NewBuffers: n must be >= 1, got %d", n))
	}
	size := 1
	for _, d := range obsShape {
		if d < 1 {
			panic(fmt.Sprintf("NewBuffers: invalid observation shape %v", obsShape))
		}
		size *= d
	}
	return &Buffers{
		n:            n,
		obsShape:     append([]int(nil), obsShape...),
		obsSize:      size,
		observations: make([]uint8, n*size),
		rewards:      make([]float32, n),
		dones:        make([]bool, n),
	}
}

// Len returns N.
func (b *Buffers) Len() int { return b.n }

// ObservationSize returns the element count of one observation.
func (b *Buffers) ObservationSize() int { return b.obsSize }

// WriteSlot copies one unit's result into slot i. Only slot i is touched.
// Panics on an out-of-range index or a wrongly sized observation.
func (b *Buffers) WriteSlot(i int, obs []uint8, reward float32, done bool) {
	b.WriteObservation(i, obs)
	b.rewards[i] = reward
	b.dones[i] = done
}

// WriteObservation copies obs into slot i, leaving reward and done untouched.
func (b *Buffers) WriteObservation(i int, obs []uint8) {
	if i < 0 || i >= b.n {
		panic(fmt.Sprintf("WriteSlot: index %d out of range [0, %d)", i, b.n))
	}
	if len(obs) != b.obsSize {
		panic(fmt.Sprintf("WriteSlot: slot %d observation has %d elements, want %d", i, len(obs), b.obsSize))
	}
	copy(b.observations[i*b.obsSize:(i+1)*b.obsSize], obs)
}

// Snapshot returns a deep copy of the buffers.
func (b *Buffers) Snapshot() Batch {
	shape := make([]int, 0, len(b.obsShape)+1)
	shape = append(shape, b.n)
	shape = append(shape, b.obsShape...)
	return Batch{
		Observations: append([]uint8(nil), b.observations...),
		Shape:        shape,
		Rewards:      append([]float32(nil), b.rewards...),
		Dones:        append([]bool(nil), b.dones...),
	}
}
