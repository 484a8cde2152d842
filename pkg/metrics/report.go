package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Completion tells how a run reached its report.
type Completion string

const (
	CompletionSettled Completion = "settled" // CompletionSettled means the network went quiet after load.
	CompletionTimeout Completion = "timeout" // CompletionTimeout means the hard run timeout fired first.
)

// Report is the frozen outcome of a run.
type Report struct {
	// Metrics maps metric names to values.
	Metrics map[string]any `json:"metrics" yaml:"metrics"`

	// MetricNames lists metric names in the order they were first written.
	MetricNames []string `json:"-" yaml:"-"`

	// Notices holds free-text observations in insertion order.
	Notices []string `json:"notices" yaml:"notices"`

	// URL is the analyzed page.
	URL string `json:"url" yaml:"url"`

	// Completion is "timeout" when the results may be partial.
	Completion Completion `json:"completion,omitempty" yaml:"completion,omitempty"`

	// Duration is the wall time from start to report.
	Duration time.Duration `json:"-" yaml:"-"`
}

// Names returns metric names in insertion order. Reports built by hand
// without MetricNames list the remaining names alphabetically.
func (r *Report) Names() []string {
	if len(r.MetricNames) == len(r.Metrics) {
		return r.MetricNames
	}
	names := make([]string, 0, len(r.Metrics))
	seen := make(map[string]bool, len(r.Metrics))
	for _, n := range r.MetricNames {
		if _, ok := r.Metrics[n]; ok && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	rest := make([]string, 0, len(r.Metrics)-len(names))
	for n := range r.Metrics {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Numeric returns the metric as a float64 when it holds a number.
func (r *Report) Numeric(name string) (float64, bool) {
	v, ok := r.Metrics[name].(float64)
	return v, ok
}

// TimedOut reports whether the run was cut short by the hard timeout.
func (r *Report) TimedOut() bool {
	return r.Completion == CompletionTimeout
}

// FormatValue renders a metric value for text output. Whole numbers are
// printed without a fractional part.
func FormatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	default:
		return fmt.Sprint(v)
	}
}
