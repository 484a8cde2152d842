// Package modules defines the instrumentation module contract and the
// registry that discovers, selects and activates modules for a run.
//
// A module only ever sees its Capabilities: it subscribes to events,
// writes metrics and notices, logs, and talks to the page through the
// narrow proxies exposed there.
package modules

import "errors"

// ErrModuleNotFound is returned when a selected module is not in the catalog.
var ErrModuleNotFound = errors.New("module not found")

// Module is a unit of instrumentation.
type Module interface {
	// Name is the unique module name used for selection.
	Name() string

	// Version is an informational version, empty when unversioned.
	Version() string

	// Skip reports that the module must not be activated.
	Skip() bool

	// Activate registers the module's handlers. A returned error discards
	// the module: every subscription it made is removed.
	Activate(c *Capabilities) error
}

// Func adapts a plain activation function into a Module.
type Func struct {
	ModuleName    string
	ModuleVersion string
	Skipped       bool
	Init          func(c *Capabilities) error
}

var _ Module = (*Func)(nil)

func (f *Func) Name() string    { return f.ModuleName }
func (f *Func) Version() string { return f.ModuleVersion }
func (f *Func) Skip() bool      { return f.Skipped }

func (f *Func) Activate(c *Capabilities) error {
	if f.Init == nil {
		return nil
	}
	return f.Init(c)
}
