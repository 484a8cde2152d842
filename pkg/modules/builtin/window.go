package builtin

import (
	"github.com/entrhq/phantomas/pkg/modules"
	"github.com/entrhq/phantomas/pkg/types"
)

// navigation timing milestones, relative to navigationStart
var timingMetrics = []struct {
	name   string
	script string
}{
	{"domInteractive", "performance.timing.domInteractive - performance.timing.navigationStart"},
	{"domContentLoaded", "performance.timing.domContentLoadedEventStart - performance.timing.navigationStart"},
	{"domComplete", "performance.timing.domComplete - performance.timing.navigationStart"},
	{"timeToFirstByte", "performance.timing.responseStart - performance.timing.navigationStart"},
}

// WindowPerformance reads the Navigation Timing API once the page loaded.
type WindowPerformance struct {
	base
}

// NewWindowPerformance creates the windowPerformance module.
func NewWindowPerformance() *WindowPerformance {
	return &WindowPerformance{base: base{name: "windowPerformance", version: "0.1"}}
}

func (m *WindowPerformance) Activate(c *modules.Capabilities) error {
	c.On(types.EventLoadFinished, func(types.Event) error {
		for _, tm := range timingMetrics {
			if err := c.SetMetricEvaluate(tm.name, tm.script); err != nil {
				c.Log("%v", err)
			}
		}
		return nil
	})
	return nil
}

// Cookies counts the cookies visible to page scripts.
type Cookies struct {
	base
}

// NewCookies creates the cookies module.
func NewCookies() *Cookies {
	return &Cookies{base: base{name: "cookies", version: "0.1"}}
}

func (m *Cookies) Activate(c *modules.Capabilities) error {
	c.InitMetric("cookiesRecv")
	c.InitMetric("documentCookiesLength")
	c.InitMetric("documentCookiesCount")

	c.On(types.EventRecv, func(ev types.Event) error {
		if ev.Resource != nil && ev.Resource.Header("Set-Cookie") != "" {
			c.IncrMetric("cookiesRecv")
		}
		return nil
	})

	c.On(types.EventReport, func(types.Event) error {
		if err := c.SetMetricEvaluate("documentCookiesLength", "document.cookie.length"); err != nil {
			c.Log("%v", err)
		}
		if err := c.SetMetricEvaluate("documentCookiesCount", "document.cookie.split(';').filter(function(c) { return c.trim() !== ''; }).length"); err != nil {
			c.Log("%v", err)
		}
		return nil
	})
	return nil
}
