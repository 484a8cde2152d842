package report

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/entrhq/phantomas/pkg/metrics"
)

type csvRenderer struct{}

// Render writes a header row of metric names followed by one row of values.
func (csvRenderer) Render(r *metrics.Report) (string, error) {
	names := r.Names()
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = metrics.FormatValue(r.Metrics[name])
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.WriteAll([][]string{names, values}); err != nil {
		return "", fmt.Errorf("failed to write CSV: %w", err)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
