package builtin

import (
	"time"

	"github.com/entrhq/phantomas/pkg/modules"
	"github.com/entrhq/phantomas/pkg/types"
)

// RequestsMonitor turns raw engine notifications into send and recv events
// and keeps the basic request metrics.
type RequestsMonitor struct {
	base
	requests map[int]*types.Resource
	first    time.Time
}

var _ modules.Module = (*RequestsMonitor)(nil)

// NewRequestsMonitor creates the core network module.
func NewRequestsMonitor() *RequestsMonitor {
	return &RequestsMonitor{base: base{name: RequestsMonitorName, version: "0.3"}}
}

func (m *RequestsMonitor) Activate(c *modules.Capabilities) error {
	m.requests = make(map[int]*types.Resource)
	m.first = time.Time{}

	for _, name := range []string{"requests", "bodySize", "notFound", "redirects", "failedRequests", "httpTrafficCompleted"} {
		c.InitMetric(name)
	}

	c.On(types.EventResourceRequested, func(ev types.Event) error {
		res := ev.Resource
		if res == nil {
			return nil
		}
		if m.first.IsZero() {
			m.first = res.Time
		}
		m.requests[res.ID] = res
		return c.Publish(types.NewResourceEvent(types.EventSend, res))
	})

	c.On(types.EventResourceReceived, func(ev types.Event) error {
		res := ev.Resource
		if res == nil || res.Stage != types.StageEnd {
			return nil
		}

		req, ok := m.requests[res.ID]
		if !ok {
			// a response without a request would unbalance the counters
			return nil
		}
		delete(m.requests, res.ID)

		entry := *res
		if entry.Method == "" {
			entry.Method = req.Method
		}

		c.IncrMetric("requests")
		switch {
		case entry.Failed:
			c.IncrMetric("failedRequests")
		case entry.Status == 404:
			c.IncrMetric("notFound")
		case entry.IsRedirect():
			c.IncrMetric("redirects")
		}
		if entry.BodySize > 0 {
			c.IncrMetricBy("bodySize", float64(entry.BodySize))
		}
		if !m.first.IsZero() && !entry.Time.IsZero() {
			c.SetMetric("httpTrafficCompleted", entry.Time.Sub(m.first).Milliseconds())
		}

		return c.Publish(types.NewResourceEvent(types.EventRecv, &entry))
	})

	return nil
}
