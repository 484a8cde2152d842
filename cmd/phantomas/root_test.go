package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/phantomas/pkg/config"
	"github.com/entrhq/phantomas/pkg/harness"
)

// execute runs the root command and returns the configuration it built.
func execute(t *testing.T, args ...string) (*config.RunConfig, string, error) {
	t.Helper()

	var got *config.RunConfig
	cmd := newRootCmd(func(_ context.Context, _ *cobra.Command, cfg *config.RunConfig) error {
		got = cfg
		return cfg.Validate()
	})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return got, out.String(), err
}

func TestFlagsDefaults(t *testing.T) {
	cfg, _, err := execute(t, "--url=http://example.com")
	require.NoError(t, err)

	assert.Equal(t, "http://example.com", cfg.URL)
	assert.Equal(t, config.DefaultFormat, cfg.Format)
	assert.Equal(t, config.DefaultViewport, cfg.Viewport)
	assert.Equal(t, config.DefaultTimeout, cfg.Timeout)
	assert.Equal(t, config.EnginePlaywright, cfg.Engine)
	assert.True(t, cfg.Headless)
	assert.Empty(t, cfg.Modules)
}

func TestFlagsOverride(t *testing.T) {
	cfg, _, err := execute(t,
		"--url=http://example.com",
		"--format=json",
		"--viewport=800x600",
		"--timeout=1",
		"--modules=headers, assetsTypes,,thirdParty",
		"--engine=rod",
		"--verbose",
		"--silent",
		"--color",
		"--lenient",
		"--headful",
		"--helper-script=helper.js",
	)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "800x600", cfg.Viewport)
	assert.Equal(t, 1, cfg.Timeout)
	assert.Equal(t, []string{"headers", "assetsTypes", "thirdParty"}, cfg.Modules)
	assert.Equal(t, config.EngineRod, cfg.Engine)
	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.Silent)
	assert.True(t, cfg.Color)
	assert.True(t, cfg.Lenient)
	assert.False(t, cfg.Headless)
	assert.Equal(t, "helper.js", cfg.HelperScript)
}

func TestFlagsInvalidTimeout(t *testing.T) {
	cfg, _, err := execute(t, "--url=http://example.com", "--timeout=-3")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultTimeout, cfg.Timeout)
}

func TestFlagsMissingURL(t *testing.T) {
	_, _, err := execute(t)
	assert.ErrorIs(t, err, config.ErrMissingURL)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phantomas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`url: http://from-file.example
format: yaml
timeout: 30
modules:
  - headers
verbose: true
`), 0o644))

	cfg, _, err := execute(t, "--config", path, "--format=csv")
	require.NoError(t, err)

	assert.Equal(t, "http://from-file.example", cfg.URL)
	assert.Equal(t, "csv", cfg.Format)
	assert.Equal(t, 30, cfg.Timeout)
	assert.Equal(t, []string{"headers"}, cfg.Modules)
	assert.True(t, cfg.Verbose)
}

func TestConfigFileMissing(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestVersion(t *testing.T) {
	_, out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, harness.Version)
}

func TestAnalyzeUnknownEngine(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.URL = "http://example.com"
	cfg.Engine = "netscape"

	err := analyze(context.Background(), &cobra.Command{}, cfg)
	assert.ErrorContains(t, err, "invalid engine")
}
