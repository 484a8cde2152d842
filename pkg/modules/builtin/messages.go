package builtin

import (
	"github.com/entrhq/phantomas/pkg/modules"
	"github.com/entrhq/phantomas/pkg/types"
)

// Alerts records JavaScript alerts as metrics and notices.
type Alerts struct {
	base
}

// NewAlerts creates the alerts module.
func NewAlerts() *Alerts {
	return &Alerts{base: base{name: "alerts", version: "0.1"}}
}

func (m *Alerts) Activate(c *modules.Capabilities) error {
	c.InitMetric("windowAlerts")

	c.On(types.EventAlert, func(ev types.Event) error {
		c.IncrMetric("windowAlerts")
		c.AddNotice("alert() called with: " + ev.Message)
		return nil
	})
	return nil
}

// Console counts console messages written by the page.
type Console struct {
	base
}

// NewConsole creates the console module.
func NewConsole() *Console {
	return &Console{base: base{name: "console", version: "0.1"}}
}

func (m *Console) Activate(c *modules.Capabilities) error {
	c.InitMetric("consoleMessages")

	c.On(types.EventConsoleLog, func(ev types.Event) error {
		c.IncrMetric("consoleMessages")
		c.Log("console: %s", ev.Message)
		return nil
	})
	return nil
}
