package backend

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hcle-sim/hcle/sim"
)

// Cartridge holds the per-title parameters of a game. An asset file is a YAML
// document with these fields; zero values keep the game's defaults.
type Cartridge struct {
	Game      string `yaml:"game"`
	MaxFrames int    `yaml:"max_frames"`
	Goal      int    `yaml:"goal"`
	Lives     int    `yaml:"lives"`
}

// defaultCartridges are the built-in parameters of each game.
var defaultCartridges = map[string]Cartridge{
	"corridor": {Game: "corridor", MaxFrames: 4500, Goal: 3072, Lives: 3},
	"catch":    {Game: "catch", MaxFrames: 3600, Goal: 20, Lives: 3},
}

// Validate checks ranges.
func (c Cartridge) Validate() error {
	if _, ok := defaultCartridges[c.Game]; !ok {
		return fmt.Errorf("unknown game %q", c.Game)
	}
	if c.MaxFrames < 1 {
		return fmt.Errorf("max_frames must be >= 1, got %d", c.MaxFrames)
	}
	if c.Goal < 1 {
		return fmt.Errorf("goal must be >= 1, got %d", c.Goal)
	}
	if c.Lives < 1 {
		return fmt.Errorf("lives must be >= 1, got %d", c.Lives)
	}
	return nil
}

// merge overlays the non-zero fields of o onto c.
func (c Cartridge) merge(o Cartridge) Cartridge {
	if o.MaxFrames != 0 {
		c.MaxFrames = o.MaxFrames
	}
	if o.Goal != 0 {
		c.Goal = o.Goal
	}
	if o.Lives != 0 {
		c.Lives = o.Lives
	}
	return c
}

// LoadCartridge reads an asset file with strict field checking. A missing
// file wraps sim.ErrAssetNotFound.
func LoadCartridge(path string) (Cartridge, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Cartridge{}, fmt.Errorf("%w: %s", sim.ErrAssetNotFound, path)
	}
	if err != nil {
		return Cartridge{}, fmt.Errorf("reading asset %s: %w", path, err)
	}
	var c Cartridge
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return Cartridge{}, fmt.Errorf("parsing asset %s: %w", path, err)
	}
	return c, nil
}

// resolveCartridge builds the cartridge for game, applying the asset file at
// path when one is given. The asset must name the same game, or none.
func resolveCartridge(game, path string) (Cartridge, error) {
	base, ok := defaultCartridges[game]
	if !ok {
		return Cartridge{}, fmt.Errorf("%w: game %q", sim.ErrUnknownTitle, game)
	}
	if path == "" {
		return base, nil
	}
	asset, err := LoadCartridge(path)
	if err != nil {
		return Cartridge{}, err
	}
	if asset.Game != "" && asset.Game != game {
		return Cartridge{}, fmt.Errorf("asset %s is for game %q, not %q", path, asset.Game, game)
	}
	c := base.merge(asset)
	if err := c.Validate(); err != nil {
		return Cartridge{}, fmt.Errorf("asset %s: %w", path, err)
	}
	return c, nil
}

func newGame(c Cartridge) game {
	switch c.Game {
	case "catch":
		return newCatch(c)
	default:
		return newCorridor(c)
	}
}
