package report

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/entrhq/phantomas/pkg/metrics"
)

// MetricPrefix is prepended to every exported gauge name.
const MetricPrefix = "phantomas_"

type openMetricsRenderer struct{}

// reportCollector exposes the numeric metrics of a report as constant gauges.
type reportCollector struct {
	report *metrics.Report
	descs  map[string]*prometheus.Desc
	names  []string
}

func newReportCollector(r *metrics.Report) *reportCollector {
	c := &reportCollector{report: r, descs: make(map[string]*prometheus.Desc)}
	for _, name := range r.Names() {
		if _, ok := r.Numeric(name); !ok {
			continue
		}
		fq := MetricPrefix + SnakeCase(name)
		if _, dup := c.descs[fq]; dup {
			continue
		}
		c.descs[fq] = prometheus.NewDesc(fq, "phantomas metric "+name, []string{"url"}, nil)
		c.names = append(c.names, name)
	}
	c.descs[MetricPrefix+"notices"] = prometheus.NewDesc(MetricPrefix+"notices", "Number of notices", []string{"url"}, nil)
	c.descs[MetricPrefix+"timed_out"] = prometheus.NewDesc(MetricPrefix+"timed_out", "1 if the run hit its timeout", []string{"url"}, nil)
	return c
}

func (c *reportCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *reportCollector) Collect(ch chan<- prometheus.Metric) {
	url := c.report.URL
	for _, name := range c.names {
		v, _ := c.report.Numeric(name)
		ch <- prometheus.MustNewConstMetric(c.descs[MetricPrefix+SnakeCase(name)], prometheus.GaugeValue, v, url)
	}
	ch <- prometheus.MustNewConstMetric(c.descs[MetricPrefix+"notices"], prometheus.GaugeValue, float64(len(c.report.Notices)), url)

	var timedOut float64
	if c.report.TimedOut() {
		timedOut = 1
	}
	ch <- prometheus.MustNewConstMetric(c.descs[MetricPrefix+"timed_out"], prometheus.GaugeValue, timedOut, url)
}

func (openMetricsRenderer) Render(r *metrics.Report) (string, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(newReportCollector(r)); err != nil {
		return "", fmt.Errorf("failed to register metrics: %w", err)
	}

	families, err := gather(reg)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func gather(g prometheus.Gatherer) ([]*dto.MetricFamily, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}
	return families, nil
}

// SnakeCase converts a camelCase metric name to a Prometheus-safe
// snake_case one. Runs of capitals stay together: DOMelementsCount
// becomes domelements_count.
func SnakeCase(name string) string {
	var b strings.Builder
	var prev rune
	for i, r := range name {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		prev = r
	}
	return b.String()
}
