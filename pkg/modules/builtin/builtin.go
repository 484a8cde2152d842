// Package builtin contains the modules shipped with phantomas.
package builtin

import (
	"fmt"

	"github.com/entrhq/phantomas/pkg/modules"
)

// RequestsMonitorName is the name of the core network module.
const RequestsMonitorName = "requestsMonitor"

// base implements the metadata part of modules.Module.
type base struct {
	name    string
	version string
}

func (b base) Name() string    { return b.name }
func (b base) Version() string { return b.version }
func (b base) Skip() bool      { return false }

// Register adds the core module and every bundled module to r, in the
// order they are activated when no module list is configured.
func Register(r *modules.Registry) error {
	if err := r.RegisterCore(NewRequestsMonitor()); err != nil {
		return fmt.Errorf("register core module: %w", err)
	}

	for _, m := range Bundled() {
		if err := r.Register(m); err != nil {
			return fmt.Errorf("register module: %w", err)
		}
	}
	return nil
}

// Bundled returns the optional built-in modules.
func Bundled() []modules.Module {
	return []modules.Module{
		NewAssetsTypes(),
		NewHeaders(),
		NewThirdParty(),
		NewDOMComplexity(),
		NewWindowPerformance(),
		NewCookies(),
		NewAlerts(),
		NewConsole(),
	}
}
