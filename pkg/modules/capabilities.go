package modules

import (
	"fmt"

	"github.com/entrhq/phantomas/pkg/config"
	"github.com/entrhq/phantomas/pkg/events"
	"github.com/entrhq/phantomas/pkg/logging"
	"github.com/entrhq/phantomas/pkg/metrics"
	"github.com/entrhq/phantomas/pkg/modules/lib"
	"github.com/entrhq/phantomas/pkg/types"
)

// Page is the part of the browser engine modules may reach.
type Page interface {
	Evaluate(script string) (any, error)
	InjectScript(path string) error
	Content() (string, error)
}

// Env holds the run services capabilities are built from.
type Env struct {
	Config    *config.RunConfig
	Bus       *events.Bus
	Store     *metrics.Store
	Log       *logging.Logger
	Page      Page
	Libraries *lib.Registry
}

// Capabilities is the only object a module receives.
type Capabilities struct {
	env  Env
	name string
	log  *logging.Logger
	subs []events.SubscriptionID
}

// NewCapabilities creates the capabilities of module name.
func NewCapabilities(name string, env Env) *Capabilities {
	if env.Log == nil {
		env.Log = logging.Nop()
	}
	if env.Libraries == nil {
		env.Libraries = lib.DefaultRegistry()
	}
	return &Capabilities{
		env:  env,
		name: name,
		log:  env.Log.Named(name),
	}
}

// Module returns the name of the module holding these capabilities.
func (c *Capabilities) Module() string {
	return c.name
}

// URL returns the analyzed URL.
func (c *Capabilities) URL() string {
	return c.env.Config.URL
}

// Config returns a copy of the run configuration.
func (c *Capabilities) Config() config.RunConfig {
	return c.env.Config.Clone()
}

// On subscribes h to every event of type t.
func (c *Capabilities) On(t types.EventType, h events.Handler) {
	c.subs = append(c.subs, c.env.Bus.Subscribe(t, h))
}

// Once subscribes h to the next event of type t.
func (c *Capabilities) Once(t types.EventType, h events.Handler) {
	c.subs = append(c.subs, c.env.Bus.SubscribeOnce(t, h))
}

// Emit publishes a module-defined event. Handler failures propagate.
func (c *Capabilities) Emit(t types.EventType, args ...any) error {
	return c.env.Bus.Publish(types.NewCustomEvent(t, args...))
}

// Publish publishes a fully built event. Handler failures propagate.
func (c *Capabilities) Publish(ev types.Event) error {
	return c.env.Bus.Publish(ev)
}

// SetMetric stores value under name.
func (c *Capabilities) SetMetric(name string, value any) {
	c.report(name, c.env.Store.Set(name, value))
}

// InitMetric stores 0 under name.
func (c *Capabilities) InitMetric(name string) {
	c.report(name, c.env.Store.SetDefault(name))
}

// SetMetricEvaluate stores the result of evaluating script in the page.
func (c *Capabilities) SetMetricEvaluate(name, script string) error {
	v, err := c.Evaluate(script)
	if err != nil {
		return fmt.Errorf("evaluate metric %s: %w", name, err)
	}
	c.SetMetric(name, v)
	return nil
}

// IncrMetric adds 1 to name.
func (c *Capabilities) IncrMetric(name string) {
	c.report(name, c.env.Store.Incr(name))
}

// IncrMetricBy adds delta to name.
func (c *Capabilities) IncrMetricBy(name string, delta float64) {
	c.report(name, c.env.Store.IncrBy(name, delta))
}

// Metric returns the current value of name.
func (c *Capabilities) Metric(name string) (any, bool) {
	return c.env.Store.Get(name)
}

// AddNotice records a free-text notice.
func (c *Capabilities) AddNotice(msg string) {
	if err := c.env.Store.AddNotice(msg); err != nil {
		c.log.Log("Notice dropped: %v", err)
	}
}

// Log writes a diagnostic line (shown in verbose mode).
func (c *Capabilities) Log(format string, v ...interface{}) {
	c.log.Log(format, v...)
}

// Echo writes to the output unless silent mode is on.
func (c *Capabilities) Echo(msg string) {
	c.log.Echo(msg)
}

// Evaluate runs script in the page.
func (c *Capabilities) Evaluate(script string) (any, error) {
	return c.env.Page.Evaluate(script)
}

// InjectJS adds the script at path to the page.
func (c *Capabilities) InjectJS(path string) error {
	return c.env.Page.InjectScript(path)
}

// PageContent returns the serialized DOM of the page.
func (c *Capabilities) PageContent() (string, error) {
	return c.env.Page.Content()
}

// Require loads a shared helper library.
func (c *Capabilities) Require(name string) (any, error) {
	return c.env.Libraries.Require(name)
}

// rollback removes every subscription made through these capabilities.
func (c *Capabilities) rollback() {
	for _, id := range c.subs {
		c.env.Bus.Unsubscribe(id)
	}
	c.subs = nil
}

func (c *Capabilities) report(metric string, err error) {
	if err != nil {
		c.log.Log("Metric %s dropped: %v", metric, err)
	}
}
