package report

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/phantomas/pkg/metrics"
)

type yamlRenderer struct{}

// Render builds the document node by node so metrics keep their order.
func (yamlRenderer) Render(r *metrics.Report) (string, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	addScalar(doc, "url", r.URL)

	ms := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range r.Names() {
		v := &yaml.Node{}
		if err := v.Encode(r.Metrics[name]); err != nil {
			return "", fmt.Errorf("metric %s: %w", name, err)
		}
		ms.Content = append(ms.Content, key(name), v)
	}
	doc.Content = append(doc.Content, key("metrics"), ms)

	ns := &yaml.Node{Kind: yaml.SequenceNode}
	for _, n := range r.Notices {
		ns.Content = append(ns.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n})
	}
	doc.Content = append(doc.Content, key("notices"), ns)

	if r.Completion != "" {
		addScalar(doc, "completion", string(r.Completion))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode YAML: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func key(name string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
}

func addScalar(m *yaml.Node, name, value string) {
	m.Content = append(m.Content, key(name), &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value})
}
