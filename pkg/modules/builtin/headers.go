package builtin

import (
	"github.com/entrhq/phantomas/pkg/modules"
	"github.com/entrhq/phantomas/pkg/types"
)

// Headers measures request and response headers.
type Headers struct {
	base
}

// NewHeaders creates the headers module.
func NewHeaders() *Headers {
	return &Headers{base: base{name: "headers", version: "0.1"}}
}

func (m *Headers) Activate(c *modules.Capabilities) error {
	for _, name := range []string{
		"headersCount", "headersSentCount", "headersRecvCount",
		"headersSize", "headersSentSize", "headersRecvSize",
	} {
		c.InitMetric(name)
	}

	c.On(types.EventSend, func(ev types.Event) error {
		if ev.Resource == nil {
			return nil
		}
		count, size := float64(len(ev.Resource.Headers)), float64(ev.Resource.HeadersSize())
		c.IncrMetricBy("headersCount", count)
		c.IncrMetricBy("headersSentCount", count)
		c.IncrMetricBy("headersSize", size)
		c.IncrMetricBy("headersSentSize", size)
		return nil
	})

	c.On(types.EventRecv, func(ev types.Event) error {
		if ev.Resource == nil {
			return nil
		}
		count, size := float64(len(ev.Resource.Headers)), float64(ev.Resource.HeadersSize())
		c.IncrMetricBy("headersCount", count)
		c.IncrMetricBy("headersRecvCount", count)
		c.IncrMetricBy("headersSize", size)
		c.IncrMetricBy("headersRecvSize", size)
		return nil
	})

	return nil
}
