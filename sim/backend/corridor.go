package backend

const (
	corridorGroundY   = 200
	corridorPlayerX   = 64 // player's fixed screen column
	corridorSize      = 16
	corridorJumpLen   = 28
	corridorSpeed     = 2
	corridorSpacing   = 192
	corridorDeathCost = 15
	corridorMaxHurdle = 64
)

var (
	corridorSky    = rgb{92, 148, 252}
	corridorGround = rgb{200, 76, 12}
	corridorSeam   = rgb{120, 40, 0}
	corridorHurdle = rgb{0, 168, 0}
	corridorPlayer = rgb{228, 0, 88}
	corridorFlag   = rgb{252, 252, 252}
)

// corridor rewards rightward progress along a track of hurdles. A runs a jump;
// touching a hurdle on the ground costs a life and sends the player back.
type corridor struct {
	goal      int
	lives     int
	maxFrames int

	rng       xorshift
	x         int
	jump      int // frames left in the current jump, 0 when grounded
	livesLeft int
	frames    int
	hurdles   [corridorMaxHurdle]int
	numHurdle int
}

func newCorridor(c Cartridge) *corridor {
	return &corridor{goal: c.Goal, lives: c.Lives, maxFrames: c.MaxFrames}
}

func (g *corridor) reset(seed uint64) {
	g.rng = newXorshift(seed)
	g.x = 0
	g.jump = 0
	g.livesLeft = g.lives
	g.frames = 0
	g.numHurdle = 0
	for pos := corridorSpacing; pos < g.goal-corridorSize && g.numHurdle < corridorMaxHurdle; pos += corridorSpacing {
		g.hurdles[g.numHurdle] = pos + g.rng.intn(corridorSpacing/2)
		g.numHurdle++
	}
}

func (g *corridor) frame(input uint8) float32 {
	if g.done() {
		return 0
	}
	g.frames++
	before := g.x
	switch {
	case input&InputRight != 0:
		g.x = min(g.x+corridorSpeed, g.goal)
	case input&InputLeft != 0:
		g.x = max(g.x-corridorSpeed, 0)
	}
	if g.jump > 0 {
		g.jump--
	} else if input&InputA != 0 {
		g.jump = corridorJumpLen
	}
	reward := float32(g.x - before)
	if g.jump == 0 {
		if h, hit := g.hurdleAt(g.x); hit {
			g.livesLeft--
			g.x = max(h-corridorSpacing/2, 0)
			reward -= corridorDeathCost
		}
	}
	return reward
}

func (g *corridor) hurdleAt(x int) (int, bool) {
	for i := 0; i < g.numHurdle; i++ {
		h := g.hurdles[i]
		if x+corridorSize > h && x < h+corridorSize {
			return h, true
		}
	}
	return 0, false
}

func (g *corridor) done() bool {
	return g.livesLeft <= 0 || g.x >= g.goal || g.frames >= g.maxFrames
}

// height is the player's jump elevation in pixels, a parabola over the jump.
func (g *corridor) height() int {
	if g.jump == 0 {
		return 0
	}
	t := corridorJumpLen - g.jump
	return t * (corridorJumpLen - t) / 4
}

func (g *corridor) render(screen []uint8) {
	fill(screen, corridorSky)
	fillRect(screen, 0, corridorGroundY, ScreenWidth, ScreenHeight, corridorGround)
	camera := g.x - corridorPlayerX
	// Ground seams scroll with the camera.
	for sx := -(camera % 32) - 32; sx < ScreenWidth; sx += 32 {
		fillRect(screen, sx, corridorGroundY, sx+2, ScreenHeight, corridorSeam)
	}
	for i := 0; i < g.numHurdle; i++ {
		sx := g.hurdles[i] - camera
		fillRect(screen, sx, corridorGroundY-corridorSize, sx+corridorSize, corridorGroundY, corridorHurdle)
	}
	if fx := g.goal - camera; fx < ScreenWidth {
		fillRect(screen, fx, corridorGroundY-96, fx+4, corridorGroundY, corridorFlag)
	}
	py := corridorGroundY - corridorSize - g.height()
	fillRect(screen, corridorPlayerX, py, corridorPlayerX+corridorSize, py+corridorSize, corridorPlayer)
	for i := 0; i < g.livesLeft; i++ {
		fillRect(screen, 8+i*12, 8, 16+i*12, 16, corridorPlayer)
	}
}

func (g *corridor) inputs() []uint8 {
	return []uint8{InputNone, InputRight, InputLeft, InputA, InputRight | InputA}
}

func (g *corridor) clone() game {
	c := *g
	return &c
}
