// Package metrics holds the per-run metrics store and the report built from it.
//
// The store is a named-value map that preserves insertion order plus a list
// of free-text notices. Modules write to it through their capabilities object
// until the report event has been dispatched; after that the store is frozen
// and a Report snapshot is handed to the renderers.
package metrics
