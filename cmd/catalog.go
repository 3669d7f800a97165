package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/hcle-sim/hcle/sim"
	"github.com/hcle-sim/hcle/sim/backend"
)

// TitleEntry binds a title to a built-in game and an optional asset file.
type TitleEntry struct {
	Game        string `yaml:"game"`
	Asset       string `yaml:"asset"` // relative to the catalog file
	Description string `yaml:"description"`
}

// Catalog represents the full titles.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Catalog struct {
	Version string                `yaml:"version"`
	Titles  map[string]TitleEntry `yaml:"titles"`

	dir string // directory asset paths are resolved against
}

// loadCatalog parses a titles.yaml file with strict field checking.
func loadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var c Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	c.dir = filepath.Dir(path)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return &c, nil
}

// bundledCatalog lists every built-in game under its own name.
func bundledCatalog() *Catalog {
	c := &Catalog{Version: "1", Titles: make(map[string]TitleEntry)}
	for _, g := range backend.Games() {
		c.Titles[g] = TitleEntry{Game: g, Description: "built-in " + g}
	}
	return c
}

// Validate checks every entry names a built-in game.
func (c *Catalog) Validate() error {
	if len(c.Titles) == 0 {
		return fmt.Errorf("no titles defined")
	}
	games := make(map[string]bool)
	for _, g := range backend.Games() {
		games[g] = true
	}
	for _, name := range c.Names() {
		if e := c.Titles[name]; !games[e.Game] {
			return fmt.Errorf("title %q: unknown game %q (built-in: %v)", name, e.Game, backend.Games())
		}
	}
	return nil
}

// Names returns title names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Titles))
	for name := range c.Titles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// assetPath resolves an entry's asset against the catalog directory.
func (c *Catalog) assetPath(e TitleEntry) string {
	if e.Asset == "" || filepath.IsAbs(e.Asset) || c.dir == "" {
		return e.Asset
	}
	return filepath.Join(c.dir, e.Asset)
}

// BuildRegistry registers every catalog title in a fresh registry.
func (c *Catalog) BuildRegistry() (*sim.Registry, error) {
	reg := sim.NewRegistry()
	for _, name := range c.Names() {
		e := c.Titles[name]
		if err := backend.Register(reg, name, e.Game, c.assetPath(e)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// resolveCatalog loads the catalog at path, falling back to the bundled
// titles when the file does not exist.
func resolveCatalog(path string) (*Catalog, error) {
	c, err := loadCatalog(path)
	if errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("catalog %s not found; using built-in titles %v", path, backend.Games())
		return bundledCatalog(), nil
	}
	return c, err
}
