package backend

import "github.com/hcle-sim/hcle/sim"

// preprocessor turns raw RGB screens into stacked, downscaled observations.
//
// Per step: the last two raw frames of the frame-skip window are max-pooled,
// optionally converted to luminance, area-resized to ObsHeight×ObsWidth and
// written into a circular stack of StackNum frames. The observation lists the
// stacked frames oldest to newest along the channel axis.
type preprocessor struct {
	height, width int
	colors        int
	stackNum      int
	maxPool       bool
	channelsFirst bool

	raw       [2][]uint8 // last two raw RGB screens
	pooled    []uint8    // raw-resolution frame after pooling and color conversion
	frameSize int        // height*width*colors
	stack     []uint8    // stackNum frames, circular
	stackIdx  int        // slot the next frame is written to; also the oldest frame
	out       []uint8
}

func newPreprocessor(cfg sim.UnitConfig) *preprocessor {
	colors := 3
	if cfg.Grayscale {
		colors = 1
	}
	frameSize := cfg.ObsHeight * cfg.ObsWidth * colors
	return &preprocessor{
		height:        cfg.ObsHeight,
		width:         cfg.ObsWidth,
		colors:        colors,
		stackNum:      cfg.StackNum,
		maxPool:       cfg.MaxPool,
		channelsFirst: cfg.ChannelsFirst,
		raw:           [2][]uint8{make([]uint8, screenBytes), make([]uint8, screenBytes)},
		pooled:        make([]uint8, ScreenHeight*ScreenWidth*colors),
		frameSize:     frameSize,
		stack:         make([]uint8, cfg.StackNum*frameSize),
		out:           make([]uint8, cfg.StackNum*frameSize),
	}
}

// clear empties the frame stack.
func (p *preprocessor) clear() {
	clear(p.stack)
	clear(p.raw[0])
	clear(p.raw[1])
	p.stackIdx = 0
}

// rawFrame returns the buffer for frame k of the last two (0 older, 1 newer).
func (p *preprocessor) rawFrame(k int) []uint8 { return p.raw[k] }

// push processes the buffered raw frames into the next stack slot.
func (p *preprocessor) push() {
	src := p.raw[1]
	if p.maxPool {
		for i := range p.raw[0] {
			p.raw[0][i] = max(p.raw[0][i], p.raw[1][i])
		}
		src = p.raw[0]
	}
	if p.colors == 1 {
		for i, j := 0, 0; i < len(src); i, j = i+3, j+1 {
			p.pooled[j] = luminance(src[i], src[i+1], src[i+2])
		}
	} else {
		copy(p.pooled, src)
	}
	dst := p.stack[p.stackIdx*p.frameSize : (p.stackIdx+1)*p.frameSize]
	areaResize(dst, p.pooled, ScreenHeight, ScreenWidth, p.height, p.width, p.colors)
	p.stackIdx = (p.stackIdx + 1) % p.stackNum
}

// observation lays the stack out oldest to newest, channel-last (H, W, C·S)
// or channel-first (C·S, H, W). The returned slice is reused.
func (p *preprocessor) observation() []uint8 {
	hw := p.height * p.width
	channels := p.colors * p.stackNum
	for s := 0; s < p.stackNum; s++ {
		frame := p.stack[((p.stackIdx+s)%p.stackNum)*p.frameSize:]
		for px := 0; px < hw; px++ {
			for c := 0; c < p.colors; c++ {
				v := frame[px*p.colors+c]
				ch := s*p.colors + c
				if p.channelsFirst {
					p.out[ch*hw+px] = v
				} else {
					p.out[px*channels+ch] = v
				}
			}
		}
	}
	return p.out
}

// snapshot copies the stack state for save/load.
func (p *preprocessor) snapshot() ([]uint8, int) {
	return append([]uint8(nil), p.stack...), p.stackIdx
}

func (p *preprocessor) restore(stack []uint8, idx int) {
	copy(p.stack, stack)
	p.stackIdx = idx
}

// luminance uses ITU-R BT.601 weights.
func luminance(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

// areaResize downsamples src (sh×sw×colors) into dst (dh×dw×colors) by
// averaging every source pixel whose box overlaps the destination pixel,
// weighted by overlap.
func areaResize(dst, src []uint8, sh, sw, dh, dw, colors int) {
	// Coordinates are scaled by dh*dw so box edges stay integral.
	for oy := 0; oy < dh; oy++ {
		y0, y1 := oy*sh, (oy+1)*sh // in units of 1/dh source rows
		for ox := 0; ox < dw; ox++ {
			x0, x1 := ox*sw, (ox+1)*sw // in units of 1/dw source columns
			for c := 0; c < colors; c++ {
				var sum, weight uint64
				for sy := y0 / dh; sy*dh < y1 && sy < sh; sy++ {
					wy := overlap(sy*dh, (sy+1)*dh, y0, y1)
					for sx := x0 / dw; sx*dw < x1 && sx < sw; sx++ {
						w := wy * overlap(sx*dw, (sx+1)*dw, x0, x1)
						sum += w * uint64(src[(sy*sw+sx)*colors+c])
						weight += w
					}
				}
				dst[(oy*dw+ox)*colors+c] = uint8((sum + weight/2) / weight)
			}
		}
	}
}

func overlap(a0, a1, b0, b1 int) uint64 {
	lo, hi := max(a0, b0), min(a1, b1)
	if hi <= lo {
		return 0
	}
	return uint64(hi - lo)
}
