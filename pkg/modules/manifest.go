package modules

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/phantomas/pkg/types"
)

// Manifest declares a module without Go code.
type Manifest struct {
	Name        string       `yaml:"name"`        // Module name (matches directory name)
	Version     string       `yaml:"version"`     // Informational version
	Description string       `yaml:"description"` // What the module measures
	Skip        bool         `yaml:"skip"`        // Never activate when true
	Inject      []string     `yaml:"inject"`      // Scripts injected on init, relative to the module directory
	Metrics     []MetricRule `yaml:"metrics"`     // Metric updates bound to events
	Notices     []NoticeRule `yaml:"notices"`     // Notices bound to events
}

// MetricRule updates one metric whenever an event fires. Exactly one of
// Evaluate, Increment and Value must be set.
type MetricRule struct {
	Name      string          `yaml:"name"`      // Metric name
	On        types.EventType `yaml:"on"`        // Triggering event
	URL       string          `yaml:"url"`       // Optional glob matched against the resource URL
	Evaluate  string          `yaml:"evaluate"`  // JavaScript evaluated in the page
	Increment *float64        `yaml:"increment"` // Delta added to the metric
	Value     any             `yaml:"value"`     // Constant stored in the metric
}

// NoticeRule adds a notice whenever an event fires. An empty Text uses the
// event message.
type NoticeRule struct {
	On   types.EventType `yaml:"on"`
	Text string          `yaml:"text"`
}

// Validate checks if the manifest is valid
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("module name cannot be empty")
	}

	for i, rule := range m.Metrics {
		if rule.Name == "" {
			return fmt.Errorf("metric %d: name cannot be empty", i)
		}
		if rule.On == "" {
			return fmt.Errorf("metric %s: event cannot be empty", rule.Name)
		}

		actions := 0
		if rule.Evaluate != "" {
			actions++
		}
		if rule.Increment != nil {
			actions++
		}
		if rule.Value != nil {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("metric %s: exactly one of evaluate, increment or value is required", rule.Name)
		}

		if rule.URL != "" {
			if _, err := glob.Compile(rule.URL); err != nil {
				return fmt.Errorf("metric %s: invalid url pattern: %w", rule.Name, err)
			}
		}
	}

	for i, rule := range m.Notices {
		if rule.On == "" {
			return fmt.Errorf("notice %d: event cannot be empty", i)
		}
	}

	return nil
}

// LoadManifest reads and parses a module manifest
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &manifest, nil
}

// Scripted is a module backed by a manifest.
type Scripted struct {
	manifest *Manifest
	dir      string
}

var _ Module = (*Scripted)(nil)

// NewScripted creates a module from a validated manifest. dir is the module
// directory injected scripts are resolved against.
func NewScripted(m *Manifest, dir string) *Scripted {
	return &Scripted{manifest: m, dir: dir}
}

func (s *Scripted) Name() string    { return s.manifest.Name }
func (s *Scripted) Version() string { return s.manifest.Version }
func (s *Scripted) Skip() bool      { return s.manifest.Skip }

// Activate binds every rule of the manifest.
func (s *Scripted) Activate(c *Capabilities) error {
	if len(s.manifest.Inject) > 0 {
		scripts := make([]string, 0, len(s.manifest.Inject))
		for _, p := range s.manifest.Inject {
			if !filepath.IsAbs(p) {
				p = filepath.Join(s.dir, p)
			}
			if _, err := os.Stat(p); err != nil {
				return fmt.Errorf("script %s: %w", p, err)
			}
			scripts = append(scripts, p)
		}

		c.On(types.EventInit, func(types.Event) error {
			for _, p := range scripts {
				if err := c.InjectJS(p); err != nil {
					c.Log("Injecting %s failed: %v", p, err)
				}
			}
			return nil
		})
	}

	for _, rule := range s.manifest.Metrics {
		handler, err := s.metricHandler(c, rule)
		if err != nil {
			return err
		}
		if rule.Increment != nil {
			c.InitMetric(rule.Name)
		}
		c.On(rule.On, handler)
	}

	for _, rule := range s.manifest.Notices {
		text := rule.Text
		c.On(rule.On, func(ev types.Event) error {
			if text != "" {
				c.AddNotice(text)
			} else {
				c.AddNotice(ev.Message)
			}
			return nil
		})
	}

	return nil
}

func (s *Scripted) metricHandler(c *Capabilities, rule MetricRule) (func(types.Event) error, error) {
	var match glob.Glob
	if rule.URL != "" {
		g, err := glob.Compile(rule.URL)
		if err != nil {
			return nil, fmt.Errorf("metric %s: invalid url pattern: %w", rule.Name, err)
		}
		match = g
	}

	return func(ev types.Event) error {
		if match != nil && (ev.Resource == nil || !match.Match(ev.Resource.URL)) {
			return nil
		}

		switch {
		case rule.Evaluate != "":
			if err := c.SetMetricEvaluate(rule.Name, rule.Evaluate); err != nil {
				c.Log("%v", err)
			}
		case rule.Increment != nil:
			c.IncrMetricBy(rule.Name, *rule.Increment)
		default:
			c.SetMetric(rule.Name, rule.Value)
		}
		return nil
	}, nil
}
