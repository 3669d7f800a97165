package sim

import "fmt"

// UnitConfig enumerates every construction option passed to a Simulation
// Backend. The pipeline validates it once and forwards it unchanged; only the
// backend interprets the fields.
type UnitConfig struct {
	AssetPath     string // cartridge/asset file (optional for bundled titles)
	Title         string // registered title identifier
	ObsHeight     int    // output image height (default 84)
	ObsWidth      int    // output image width (default 84)
	FrameSkip     int    // emulator frames per action (default 4)
	MaxPool       bool   // max-pool the last two raw frames (default true)
	Grayscale     bool   // single luminance channel instead of RGB (default true)
	StackNum      int    // frame-stack depth (default 4)
	ChannelsFirst bool   // (C, H, W) layout instead of (H, W, C) (default false)
}

// DefaultUnitConfig returns the defaults used by the bundled titles.
func DefaultUnitConfig(title string) UnitConfig {
	return UnitConfig{
		Title:     title,
		ObsHeight: 84,
		ObsWidth:  84,
		FrameSkip: 4,
		MaxPool:   true,
		Grayscale: true,
		StackNum:  4,
	}
}

// Validate checks ranges; it does not check that Title is registered.
func (c UnitConfig) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("title must be set")
	}
	if c.ObsHeight < 1 || c.ObsHeight > 255 {
		return fmt.Errorf("obs height must be in [1, 255], got %d", c.ObsHeight)
	}
	if c.ObsWidth < 1 || c.ObsWidth > 255 {
		return fmt.Errorf("obs width must be in [1, 255], got %d", c.ObsWidth)
	}
	if c.FrameSkip < 1 {
		return fmt.Errorf("frame skip must be >= 1, got %d", c.FrameSkip)
	}
	if c.StackNum < 1 {
		return fmt.Errorf("stack num must be >= 1, got %d", c.StackNum)
	}
	return nil
}

// Channels returns the per-observation channel count (frames × colors).
func (c UnitConfig) Channels() int {
	colors := 3
	if c.Grayscale {
		colors = 1
	}
	return colors * c.StackNum
}

// ObservationShape returns the single-instance observation shape implied by
// the layout options.
func (c UnitConfig) ObservationShape() []int {
	if c.ChannelsFirst {
		return []int{c.Channels(), c.ObsHeight, c.ObsWidth}
	}
	return []int{c.ObsHeight, c.ObsWidth, c.Channels()}
}
