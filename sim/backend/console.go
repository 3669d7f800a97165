// Package backend is an in-process Simulation Backend for the vector pipeline.
//
// It runs a deterministic toy console that renders 240×256 RGB frames and
// feeds them through the standard Atari-style preprocessing chain (frame skip,
// max-pool, grayscale, area resize, frame stack). Two games are built in:
// "corridor" (side-scrolling progress with jumps) and "catch" (paddle and
// falling ball). Titles are bound to games explicitly with Register.
package backend

// Raw screen geometry of the console.
const (
	ScreenHeight = 240
	ScreenWidth  = 256
	screenBytes  = ScreenHeight * ScreenWidth * 3
)

// Controller inputs, one bit per button.
const (
	InputNone   uint8 = 0x00
	InputRight  uint8 = 0x01
	InputLeft   uint8 = 0x02
	InputDown   uint8 = 0x04
	InputUp     uint8 = 0x08
	InputStart  uint8 = 0x10
	InputSelect uint8 = 0x20
	InputB      uint8 = 0x40
	InputA      uint8 = 0x80
)

// game is the per-title logic driven one frame at a time.
// Implementations hold only value state so clone is a cheap copy.
type game interface {
	reset(seed uint64)
	// frame advances one console frame under input and returns its reward.
	frame(input uint8) float32
	done() bool
	render(screen []uint8)
	inputs() []uint8
	clone() game
}

// xorshift is a 64-bit xorshift generator small enough to live inside
// copyable game state.
type xorshift uint64

func newXorshift(seed uint64) xorshift {
	// splitmix64 scramble so seed 0 and nearby seeds diverge.
	z := seed + 0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	if z == 0 {
		z = 1
	}
	return xorshift(z)
}

func (r *xorshift) next() uint64 {
	x := uint64(*r)
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*r = xorshift(x)
	return x
}

// intn returns a value in [0, n). n must be positive.
func (r *xorshift) intn(n int) int {
	return int(r.next() % uint64(n))
}

type rgb struct{ r, g, b uint8 }

func fill(screen []uint8, c rgb) {
	for i := 0; i < len(screen); i += 3 {
		screen[i], screen[i+1], screen[i+2] = c.r, c.g, c.b
	}
}

// fillRect paints [x0, x1) × [y0, y1), clipped to the screen.
func fillRect(screen []uint8, x0, y0, x1, y1 int, c rgb) {
	x0, x1 = max(x0, 0), min(x1, ScreenWidth)
	y0, y1 = max(y0, 0), min(y1, ScreenHeight)
	for y := y0; y < y1; y++ {
		row := y * ScreenWidth * 3
		for x := x0; x < x1; x++ {
			i := row + x*3
			screen[i], screen[i+1], screen[i+2] = c.r, c.g, c.b
		}
	}
}
