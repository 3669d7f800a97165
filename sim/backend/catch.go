package backend

const (
	catchPaddleY     = 224
	catchPaddleW     = 32
	catchPaddleH     = 8
	catchPaddleSpeed = 4
	catchBall        = 8
	catchFallSpeed   = 3
)

var (
	catchBackground = rgb{0, 0, 0}
	catchPaddleRGB  = rgb{252, 252, 252}
	catchBallRGB    = rgb{248, 216, 0}
)

// catch scores +1 for every ball the paddle catches and -1 for every miss.
// A miss costs a life; the episode ends after Goal catches.
type catch struct {
	goal      int
	lives     int
	maxFrames int

	rng       xorshift
	paddle    int
	ballX     int
	ballY     int
	caught    int
	livesLeft int
	frames    int
}

func newCatch(c Cartridge) *catch {
	return &catch{goal: c.Goal, lives: c.Lives, maxFrames: c.MaxFrames}
}

func (g *catch) reset(seed uint64) {
	g.rng = newXorshift(seed)
	g.paddle = (ScreenWidth - catchPaddleW) / 2
	g.caught = 0
	g.livesLeft = g.lives
	g.frames = 0
	g.spawn()
}

func (g *catch) spawn() {
	g.ballX = g.rng.intn(ScreenWidth - catchBall)
	g.ballY = 0
}

func (g *catch) frame(input uint8) float32 {
	if g.done() {
		return 0
	}
	g.frames++
	switch {
	case input&InputLeft != 0:
		g.paddle = max(g.paddle-catchPaddleSpeed, 0)
	case input&InputRight != 0:
		g.paddle = min(g.paddle+catchPaddleSpeed, ScreenWidth-catchPaddleW)
	}
	g.ballY += catchFallSpeed
	if g.ballY+catchBall < catchPaddleY {
		return 0
	}
	defer g.spawn()
	if g.ballX+catchBall > g.paddle && g.ballX < g.paddle+catchPaddleW {
		g.caught++
		return 1
	}
	g.livesLeft--
	return -1
}

func (g *catch) done() bool {
	return g.livesLeft <= 0 || g.caught >= g.goal || g.frames >= g.maxFrames
}

func (g *catch) render(screen []uint8) {
	fill(screen, catchBackground)
	fillRect(screen, g.paddle, catchPaddleY, g.paddle+catchPaddleW, catchPaddleY+catchPaddleH, catchPaddleRGB)
	fillRect(screen, g.ballX, g.ballY, g.ballX+catchBall, g.ballY+catchBall, catchBallRGB)
}

func (g *catch) inputs() []uint8 {
	return []uint8{InputNone, InputLeft, InputRight}
}

func (g *catch) clone() game {
	c := *g
	return &c
}
