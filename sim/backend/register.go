package backend

import (
	"fmt"
	"sort"

	"github.com/hcle-sim/hcle/sim"
)

// Games returns the built-in game names, sorted.
func Games() []string {
	names := make([]string, 0, len(defaultCartridges))
	for name := range defaultCartridges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Factory returns a sim.UnitFactory building Envs of game. The asset path is
// UnitConfig.AssetPath when set, otherwise defaultAsset; an empty path uses
// the game's built-in cartridge.
func Factory(game, defaultAsset string) (sim.UnitFactory, error) {
	if _, ok := defaultCartridges[game]; !ok {
		return nil, fmt.Errorf("%w: game %q; built-in games: %v", sim.ErrUnknownTitle, game, Games())
	}
	return func(index int, cfg sim.UnitConfig) (sim.Unit, error) {
		path := cfg.AssetPath
		if path == "" {
			path = defaultAsset
		}
		cart, err := resolveCartridge(game, path)
		if err != nil {
			return nil, err
		}
		env, err := NewEnv(cfg, cart)
		if err != nil {
			return nil, err
		}
		return env, nil
	}, nil
}

// Register binds title to game in reg.
func Register(reg *sim.Registry, title, game, defaultAsset string) error {
	f, err := Factory(game, defaultAsset)
	if err != nil {
		return fmt.Errorf("registering %q: %w", title, err)
	}
	return reg.Register(title, f)
}

// RegisterBuiltins registers every built-in game under its own name.
func RegisterBuiltins(reg *sim.Registry) error {
	for _, g := range Games() {
		if err := Register(reg, g, g, ""); err != nil {
			return err
		}
	}
	return nil
}
