package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/alecthomas/chroma/v2/quick"

	"github.com/entrhq/phantomas/pkg/metrics"
)

type jsonRenderer struct {
	color bool
}

// Render writes metrics in insertion order, which encoding/json does not
// keep for maps.
func (j jsonRenderer) Render(r *metrics.Report) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`{"url":`)
	if err := writeJSON(&buf, r.URL); err != nil {
		return "", err
	}

	buf.WriteString(`,"metrics":{`)
	for i, name := range r.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, name); err != nil {
			return "", err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, r.Metrics[name]); err != nil {
			return "", fmt.Errorf("metric %s: %w", name, err)
		}
	}
	buf.WriteString(`},"notices":`)

	notices := r.Notices
	if notices == nil {
		notices = []string{}
	}
	if err := writeJSON(&buf, notices); err != nil {
		return "", err
	}

	if r.Completion != "" {
		buf.WriteString(`,"completion":`)
		if err := writeJSON(&buf, r.Completion); err != nil {
			return "", err
		}
	}
	buf.WriteByte('}')

	if !j.color {
		return buf.String(), nil
	}

	var out bytes.Buffer
	if err := quick.Highlight(&out, buf.String(), "json", "terminal256", "monokai"); err != nil {
		return "", fmt.Errorf("failed to highlight JSON: %w", err)
	}
	return out.String(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	buf.Write(data)
	return nil
}
