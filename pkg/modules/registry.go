package modules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/entrhq/phantomas/pkg/logging"
)

// Registry is the catalog of modules available to a run.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
}

type entry struct {
	module Module
	source string
	core   bool
}

// NewRegistry creates an empty catalog.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*entry)}
}

// RegisterCore adds a core module. Core modules are activated first, in
// registration order, on every run and cannot be skipped.
func (r *Registry) RegisterCore(m Module) error {
	return r.add(m, true, "core")
}

// Register adds an optional module to the catalog.
func (r *Registry) Register(m Module) error {
	return r.add(m, false, "builtin")
}

func (r *Registry) add(m Module, core bool, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if name == "" {
		return fmt.Errorf("module name cannot be empty")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}

	e := &entry{module: m, source: source, core: core}
	r.entries = append(r.entries, e)
	r.byName[name] = e
	return nil
}

// Discover scans dir for manifest modules laid out as <dir>/<name>/<name>.yaml
// and adds them in directory order. A missing directory is not an error.
// Invalid manifests are reported through log and skipped.
func (r *Registry) Discover(dir string, log *logging.Logger) (int, error) {
	if log == nil {
		log = logging.Nop()
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read modules directory: %w", err)
	}

	found := 0
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}

		name := de.Name()
		path := filepath.Join(dir, name, name+".yaml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		manifest, err := LoadManifest(path)
		if err != nil {
			log.Log("Unable to load module %q: %v", name, err)
			continue
		}
		if manifest.Name != name {
			log.Log("Unable to load module %q: manifest declares name %q", name, manifest.Name)
			continue
		}

		r.mu.Lock()
		_, exists := r.byName[name]
		if !exists {
			e := &entry{module: NewScripted(manifest, filepath.Join(dir, name)), source: path}
			r.entries = append(r.entries, e)
			r.byName[name] = e
			found++
		}
		r.mu.Unlock()

		if exists {
			log.Log("Module %s from %s ignored: name already taken", name, path)
		}
	}

	return found, nil
}

// Get returns the named module.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.module, true
}

// Names lists every module in catalog order, core modules included.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.module.Name())
	}
	return names
}

// Count returns the number of catalogued modules
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Selection is the outcome of resolving configured module names.
type Selection struct {
	Core    []Module
	Modules []Module
	Missing []string
}

// Select resolves the configured names. An empty list selects every
// optional module in catalog order. Names may be glob patterns, expanded
// in catalog order. Core modules are always part of the selection and are
// never repeated among the optional ones.
func (r *Registry) Select(names []string) (*Selection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sel := &Selection{}
	var optional []*entry
	for _, e := range r.entries {
		if e.core {
			sel.Core = append(sel.Core, e.module)
		} else {
			optional = append(optional, e)
		}
	}

	if len(names) == 0 {
		for _, e := range optional {
			sel.Modules = append(sel.Modules, e.module)
		}
		return sel, nil
	}

	seen := make(map[string]bool)
	for _, name := range names {
		if !isPattern(name) {
			e, ok := r.byName[name]
			switch {
			case !ok:
				sel.Missing = append(sel.Missing, name)
			case e.core || seen[name]:
			default:
				seen[name] = true
				sel.Modules = append(sel.Modules, e.module)
			}
			continue
		}

		g, err := glob.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("invalid module pattern %q: %w", name, err)
		}
		matched := false
		for _, e := range optional {
			n := e.module.Name()
			if !g.Match(n) {
				continue
			}
			matched = true
			if !seen[n] {
				seen[n] = true
				sel.Modules = append(sel.Modules, e.module)
			}
		}
		if !matched {
			sel.Missing = append(sel.Missing, name)
		}
	}

	return sel, nil
}

func isPattern(name string) bool {
	return strings.ContainsAny(name, "*?[{")
}

// Activate activates the selection: core modules first, then the optional
// modules in order. Failures are logged and never abort the run. It returns
// the names of the activated modules.
func Activate(sel *Selection, env Env) []string {
	log := env.Log
	if log == nil {
		log = logging.Nop()
	}

	for _, name := range sel.Missing {
		log.Log("Unable to load module %q!", name)
	}

	var active []string
	for _, m := range sel.Core {
		if activate(m, env, log) {
			log.Log("Core module %s initialized", describe(m))
			active = append(active, m.Name())
		}
	}

	for _, m := range sel.Modules {
		if m.Skip() {
			log.Log("Module %s skipped!", m.Name())
			continue
		}
		if activate(m, env, log) {
			log.Log("Module %s initialized", describe(m))
			active = append(active, m.Name())
		}
	}

	return active
}

// activate runs m.Activate and rolls back its subscriptions on failure.
func activate(m Module, env Env, log *logging.Logger) (ok bool) {
	caps := NewCapabilities(m.Name(), env)

	defer func() {
		if r := recover(); r != nil {
			caps.rollback()
			log.Log("Unable to load module %q: %v", m.Name(), r)
			ok = false
		}
	}()

	if err := m.Activate(caps); err != nil {
		caps.rollback()
		log.Log("Unable to load module %q: %v", m.Name(), err)
		return false
	}
	return true
}

func describe(m Module) string {
	if v := m.Version(); v != "" {
		return m.Name() + " v" + v
	}
	return m.Name()
}
