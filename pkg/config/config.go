// Package config defines the options of a single analysis run and the
// helpers that parse and validate them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFormat         = "plain"
	DefaultViewport       = "1280x1024"
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 1024
	DefaultTimeout        = 15 // seconds
	DefaultEngine         = EnginePlaywright
	DefaultModulesDir     = "modules"
)

const (
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
)

// ErrMissingURL is returned when no URL was given.
var ErrMissingURL = errors.New("url is required")

// RunConfig holds the options of one run.
type RunConfig struct {
	// Page to analyze
	URL string `yaml:"url" json:"url"`

	// Output format passed to the report renderer
	Format string `yaml:"format" json:"format"`

	// Viewport as "WIDTHxHEIGHT"
	Viewport string `yaml:"viewport" json:"viewport"`

	// Diagnostics and output
	Verbose bool `yaml:"verbose" json:"verbose"`
	Silent  bool `yaml:"silent" json:"silent"`
	Color   bool `yaml:"color" json:"color"`

	// Hard run timeout in seconds
	Timeout int `yaml:"timeout" json:"timeout"`

	// Modules to activate, in order. Glob patterns are allowed.
	// Empty means every discovered module.
	Modules []string `yaml:"modules" json:"modules"`

	// Directory scanned for manifest modules
	ModulesDir string `yaml:"modules_dir" json:"modules_dir"`

	// Browser engine: playwright or rod
	Engine    string `yaml:"engine" json:"engine"`
	Headless  bool   `yaml:"headless" json:"headless"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// Script injected into the page when it is initialized
	HelperScript string `yaml:"helper_script" json:"helper_script"`

	// Keep dispatching events when a module handler fails
	Lenient bool `yaml:"lenient" json:"lenient"`

	// Optional rotating log file
	LogFile string `yaml:"log_file" json:"log_file"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *RunConfig {
	return &RunConfig{
		Format:     DefaultFormat,
		Viewport:   DefaultViewport,
		Timeout:    DefaultTimeout,
		Engine:     DefaultEngine,
		Headless:   true,
		ModulesDir: DefaultModulesDir,
	}
}

// Validate checks the configuration and fills in defaults for empty or
// out-of-range values.
func (c *RunConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return ErrMissingURL
	}

	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.Viewport == "" {
		c.Viewport = DefaultViewport
	}
	c.Timeout = NormalizeTimeout(c.Timeout)

	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if c.Engine != EnginePlaywright && c.Engine != EngineRod {
		return fmt.Errorf("invalid engine: %s (must be '%s' or '%s')", c.Engine, EnginePlaywright, EngineRod)
	}

	return nil
}

// ViewportSize returns the parsed viewport.
func (c *RunConfig) ViewportSize() (width, height int) {
	return ParseViewport(c.Viewport)
}

// Clone returns a deep copy so modules cannot mutate the run configuration.
func (c *RunConfig) Clone() RunConfig {
	cp := *c
	cp.Modules = append([]string(nil), c.Modules...)
	return cp
}

// ParseViewport parses "WIDTHxHEIGHT". Each dimension that is missing or not
// a positive integer falls back to its default independently.
func ParseViewport(s string) (width, height int) {
	width, height = DefaultViewportWidth, DefaultViewportHeight

	parts := strings.SplitN(strings.TrimSpace(s), "x", 2)
	if w, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil && w > 0 {
		width = w
	}
	if len(parts) == 2 {
		if h, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && h > 0 {
			height = h
		}
	}
	return width, height
}

// NormalizeTimeout returns seconds when positive and the default otherwise.
func NormalizeTimeout(seconds int) int {
	if seconds > 0 {
		return seconds
	}
	return DefaultTimeout
}

// ParseModules splits a comma-separated module list, dropping empty entries.
func ParseModules(s string) []string {
	var modules []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			modules = append(modules, m)
		}
	}
	return modules
}

// LoadFile reads a YAML configuration file on top of the defaults.
func LoadFile(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
