package report

import (
	"strings"

	"github.com/entrhq/phantomas/pkg/metrics"
)

type plainRenderer struct{}

func (plainRenderer) Render(r *metrics.Report) (string, error) {
	var b strings.Builder

	b.WriteString("phantomas metrics for <" + r.URL + ">:\n\n")
	for _, name := range r.Names() {
		b.WriteString(" * " + name + ": " + metrics.FormatValue(r.Metrics[name]) + "\n")
	}

	if len(r.Notices) > 0 {
		b.WriteString("\nphantomas notices:\n\n")
		for _, n := range r.Notices {
			b.WriteString(" * " + n + "\n")
		}
	}

	if r.TimedOut() {
		b.WriteString("\nRun timed out, results may be incomplete\n")
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
