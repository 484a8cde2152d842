package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/entrhq/phantomas/pkg/config"
	"github.com/entrhq/phantomas/pkg/engine"
	"github.com/entrhq/phantomas/pkg/engine/playwright"
	"github.com/entrhq/phantomas/pkg/engine/rod"
	"github.com/entrhq/phantomas/pkg/harness"
	"github.com/entrhq/phantomas/pkg/logging"
	"github.com/entrhq/phantomas/pkg/report"
)

var engines = map[string]engine.Factory{
	config.EnginePlaywright: playwright.New,
	config.EngineRod:        rod.New,
}

// runFunc performs the analysis for a fully built configuration.
type runFunc func(ctx context.Context, cmd *cobra.Command, cfg *config.RunConfig) error

// flags mirrors the command line. Only flags the user set override the
// configuration file.
type flags struct {
	configPath   string
	url          string
	format       string
	viewport     string
	modules      string
	modulesDir   string
	engine       string
	userAgent    string
	helperScript string
	logFile      string
	timeout      int
	verbose      bool
	silent       bool
	color        bool
	lenient      bool
	headful      bool
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd(analyze).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(run runFunc) *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:     "phantomas --url=<page>",
		Short:   "Web performance metrics collector",
		Long:    "phantomas opens a page in a headless browser, records what it loads and prints performance metrics once the network goes quiet.",
		Version: harness.Version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, cfg)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fl.StringVar(&f.url, "url", "", "page to analyze (required)")
	fl.StringVar(&f.format, "format", config.DefaultFormat, fmt.Sprintf("output format %v", report.Formats()))
	fl.StringVar(&f.viewport, "viewport", config.DefaultViewport, "viewport as WIDTHxHEIGHT")
	fl.StringVar(&f.modules, "modules", "", "comma-separated modules to run (default: all)")
	fl.StringVar(&f.modulesDir, "modules-dir", config.DefaultModulesDir, "directory with manifest modules")
	fl.StringVar(&f.engine, "engine", config.DefaultEngine, "browser engine: playwright or rod")
	fl.StringVar(&f.userAgent, "user-agent", "", "override the browser user agent")
	fl.StringVar(&f.helperScript, "helper-script", "", "script injected into the page when it is created")
	fl.StringVar(&f.logFile, "log-file", "", "write a detailed log to this file")
	fl.IntVar(&f.timeout, "timeout", config.DefaultTimeout, "run timeout in seconds")
	fl.BoolVar(&f.verbose, "verbose", false, "print diagnostics")
	fl.BoolVar(&f.silent, "silent", false, "do not print the results")
	fl.BoolVar(&f.color, "color", false, "colorize json and table output")
	fl.BoolVar(&f.lenient, "lenient", false, "keep going when a module handler fails")
	fl.BoolVar(&f.headful, "headful", false, "show the browser window")

	return cmd
}

// config loads the configuration file, if any, and applies the flags the
// user set on top of it.
func (f *flags) config(cmd *cobra.Command) (*config.RunConfig, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		loaded, err := config.LoadFile(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	setString := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	setBool := func(name string, dst *bool, v bool) {
		if changed(name) {
			*dst = v
		}
	}

	setString("url", &cfg.URL, f.url)
	setString("format", &cfg.Format, f.format)
	setString("viewport", &cfg.Viewport, f.viewport)
	setString("modules-dir", &cfg.ModulesDir, f.modulesDir)
	setString("engine", &cfg.Engine, f.engine)
	setString("user-agent", &cfg.UserAgent, f.userAgent)
	setString("helper-script", &cfg.HelperScript, f.helperScript)
	setString("log-file", &cfg.LogFile, f.logFile)
	setBool("verbose", &cfg.Verbose, f.verbose)
	setBool("silent", &cfg.Silent, f.silent)
	setBool("color", &cfg.Color, f.color)
	setBool("lenient", &cfg.Lenient, f.lenient)

	if changed("modules") {
		cfg.Modules = config.ParseModules(f.modules)
	}
	if changed("timeout") {
		cfg.Timeout = config.NormalizeTimeout(f.timeout)
	}
	if changed("headful") {
		cfg.Headless = !f.headful
	}
	return cfg, nil
}

// analyze runs the harness with the configured engine.
func analyze(ctx context.Context, cmd *cobra.Command, cfg *config.RunConfig) error {
	factory, ok := engines[cfg.Engine]
	if !ok {
		return fmt.Errorf("invalid engine: %s", cfg.Engine)
	}

	log := logging.New("phantomas", logging.Options{
		Out:     cmd.OutOrStdout(),
		File:    cfg.LogFile,
		Verbose: cfg.Verbose,
		Silent:  cfg.Silent,
	})
	defer log.Close()

	h := harness.New(cfg,
		harness.WithEngineFactory(factory),
		harness.WithLogger(log),
	)
	if _, err := h.Run(ctx); err != nil {
		return err
	}
	return nil
}
