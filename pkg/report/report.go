// Package report renders a frozen metrics.Report in the configured output
// format.
package report

import (
	"errors"
	"fmt"
	"sort"

	"github.com/entrhq/phantomas/pkg/metrics"
)

// ErrUnknownFormat is returned by New for unsupported formats.
var ErrUnknownFormat = errors.New("unknown output format")

// Renderer turns a report into the text echoed at the end of a run.
type Renderer interface {
	Render(r *metrics.Report) (string, error)
}

// Options tune the renderers that support them.
type Options struct {
	// Color enables terminal colors for json and table output.
	Color bool
}

type constructor func(Options) Renderer

var formats = map[string]constructor{
	"plain":       func(Options) Renderer { return plainRenderer{} },
	"json":        func(o Options) Renderer { return jsonRenderer{color: o.Color} },
	"csv":         func(Options) Renderer { return csvRenderer{} },
	"yaml":        func(Options) Renderer { return yamlRenderer{} },
	"table":       func(o Options) Renderer { return tableRenderer{color: o.Color} },
	"openmetrics": func(Options) Renderer { return openMetricsRenderer{} },
}

// New returns the renderer for format.
func New(format string, opts Options) (Renderer, error) {
	c, ok := formats[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnknownFormat, format, Formats())
	}
	return c(opts), nil
}

// Formats lists the supported format names.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supported reports whether format has a renderer.
func Supported(format string) bool {
	_, ok := formats[format]
	return ok
}
