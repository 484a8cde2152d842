// Package lib holds the helper libraries modules load by name through
// their capabilities object.
package lib

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrLibraryNotFound is returned when no library is registered under a name.
var ErrLibraryNotFound = errors.New("library not found")

// Factory creates a fresh library instance for the requesting module.
type Factory func() any

// Registry maps library names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the bundled libraries.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(HTMLLibrary, func() any { return NewHTMLInspector() })
	r.Register(URLsLibrary, func() any { return NewURLClassifier() })
	return r
}

// Register adds or replaces a library.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Require returns a new instance of the named library.
func (r *Registry) Require(name string) (any, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
	}
	return f(), nil
}

// Names lists the registered libraries in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
