package sim

import (
	"fmt"
	"sort"
)

// Registry maps title identifiers to the factories that build their Units.
// It is constructed and populated explicitly by the application.
//
// Thread-safety: NOT thread-safe. Populate before sharing.
type Registry struct {
	factories map[string]UnitFactory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]UnitFactory)}
}

// Register adds a title. Empty titles, nil factories and duplicates are rejected.
func (r *Registry) Register(title string, factory UnitFactory) error {
	if title == "" {
		return fmt.Errorf("title must be non-empty")
	}
	if factory == nil {
		return fmt.Errorf("title %q: factory must be non-nil", title)
	}
	if _, ok := r.factories[title]; ok {
		return fmt.Errorf("title %q already registered", title)
	}
	r.factories[title] = factory
	return nil
}

// Factory returns the factory for title, or an error wrapping ErrUnknownTitle.
func (r *Registry) Factory(title string) (UnitFactory, error) {
	f, ok := r.factories[title]
	if !ok {
		return nil, fmt.Errorf("%w %q; registered: %v", ErrUnknownTitle, title, r.Titles())
	}
	return f, nil
}

// Titles returns the registered titles in sorted order.
func (r *Registry) Titles() []string {
	titles := make([]string, 0, len(r.factories))
	for t := range r.factories {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}
