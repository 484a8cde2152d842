// Package harness drives one analysis run: it opens the page through a
// browser engine, feeds engine notifications to the modules over the event
// bus, decides when the page has settled and hands the frozen metrics to the
// report renderer.
//
// Everything that touches run state happens on a single loop owned by Run.
// Engine callbacks and timers only post tasks to that loop.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/entrhq/phantomas/pkg/clock"
	"github.com/entrhq/phantomas/pkg/config"
	"github.com/entrhq/phantomas/pkg/engine"
	"github.com/entrhq/phantomas/pkg/events"
	"github.com/entrhq/phantomas/pkg/logging"
	"github.com/entrhq/phantomas/pkg/metrics"
	"github.com/entrhq/phantomas/pkg/modules"
	"github.com/entrhq/phantomas/pkg/modules/builtin"
	"github.com/entrhq/phantomas/pkg/modules/lib"
	"github.com/entrhq/phantomas/pkg/report"
	"github.com/entrhq/phantomas/pkg/tracker"
	"github.com/entrhq/phantomas/pkg/types"
)

// Version is reported in verbose output and by the CLI.
const Version = "0.3"

var (
	// ErrHandlerFailed wraps the error of a module handler that aborted the run.
	ErrHandlerFailed = errors.New("event handler failed")

	// ErrAlreadyRan is returned when Run is called a second time.
	ErrAlreadyRan = errors.New("harness already ran")
)

// Option configures a Harness.
type Option func(*Harness)

// WithClock replaces the real clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(h *Harness) {
		h.clock = c
	}
}

// WithEngineFactory sets how the browser engine is created.
func WithEngineFactory(f engine.Factory) Option {
	return func(h *Harness) {
		h.factory = f
	}
}

// WithRegistry replaces the default module registry (built-in modules plus
// manifest modules found in the modules directory).
func WithRegistry(r *modules.Registry) Option {
	return func(h *Harness) {
		h.registry = r
	}
}

// WithLibraries replaces the helper libraries modules can require.
func WithLibraries(r *lib.Registry) Option {
	return func(h *Harness) {
		h.libraries = r
	}
}

// WithLogger sets the logger used for diagnostics and for the echoed report.
func WithLogger(l *logging.Logger) Option {
	return func(h *Harness) {
		h.log = l
	}
}

// WithOnDone registers the completion callback. It receives the report once
// the browser is released.
func WithOnDone(fn func(*metrics.Report)) Option {
	return func(h *Harness) {
		h.onDone = fn
	}
}

// WithExit registers a process exit function, called with the exit code
// when no completion callback is set.
func WithExit(fn func(code int)) Option {
	return func(h *Harness) {
		h.exit = fn
	}
}

// WithStateHook observes every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(h *Harness) {
		h.onState = fn
	}
}

// Harness runs a single analysis.
type Harness struct {
	cfg       *config.RunConfig
	log       *logging.Logger
	clock     clock.Clock
	factory   engine.Factory
	registry  *modules.Registry
	libraries *lib.Registry
	onDone    func(*metrics.Report)
	exit      func(code int)
	onState   func(from, to State)
	ownsLog   bool
	ran       atomic.Bool

	// Run state, owned by the loop
	state     State
	mailbox   *mailbox
	bus       *events.Bus
	store     *metrics.Store
	tracker   *tracker.Tracker
	engine    engine.Engine
	renderer  report.Renderer
	hardLimit clock.Timer
	start     time.Time
	reported  bool
	loadSeen  bool
	result    *metrics.Report
	err       error
}

// New creates a harness for cfg.
func New(cfg *config.RunConfig, opts ...Option) *Harness {
	h := &Harness{
		cfg:   cfg,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.log == nil {
		h.log = logging.New("phantomas", logging.Options{
			Out:     os.Stdout,
			File:    cfg.LogFile,
			Verbose: cfg.Verbose,
			Silent:  cfg.Silent,
		})
		h.ownsLog = true
	}
	if h.libraries == nil {
		h.libraries = lib.DefaultRegistry()
	}
	return h
}

// Run analyzes the configured URL and returns the report. It returns once
// the browser session is released. A missing URL fails before any browser
// interaction. Cancelling ctx ends the run like the hard timeout does.
func (h *Harness) Run(ctx context.Context) (*metrics.Report, error) {
	if !h.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRan
	}

	// Defaults are filled into a private copy; the caller's config is left
	// as it was passed.
	cfg := h.cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	h.cfg = &cfg
	renderer, err := report.New(h.cfg.Format, report.Options{Color: h.cfg.Color})
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	h.renderer = renderer

	if h.factory == nil {
		return nil, errors.New("no browser engine configured")
	}

	h.log.Log("phantomas v%s", Version)

	registry, err := h.moduleRegistry()
	if err != nil {
		return nil, err
	}
	sel, err := registry.Select(h.cfg.Modules)
	if err != nil {
		return nil, fmt.Errorf("failed to select modules: %w", err)
	}

	width, height := h.cfg.ViewportSize()
	eng, err := h.factory(ctx, engine.Options{
		Logger:    h.log.Named("engine"),
		UserAgent: h.cfg.UserAgent,
		Viewport:  engine.Viewport{Width: width, Height: height},
		Timeout:   time.Duration(h.cfg.Timeout) * time.Second,
		Headless:  h.cfg.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start browser engine: %w", err)
	}
	h.engine = eng
	h.mailbox = newMailbox()
	h.store = metrics.NewStore()
	h.bus = events.NewBus(h.busOptions()...)
	h.tracker = tracker.New(h.clock, h.onSettled, tracker.WithScheduler(h.mailbox.post))

	modules.Activate(sel, modules.Env{
		Config:    h.cfg,
		Bus:       h.bus,
		Store:     h.store,
		Log:       h.log,
		Page:      eng,
		Libraries: h.libraries,
	})

	h.bus.Subscribe(types.EventSend, func(types.Event) error {
		h.tracker.Sent()
		return nil
	})
	h.bus.Subscribe(types.EventRecv, func(types.Event) error {
		h.tracker.Received()
		return nil
	})

	h.open(ctx)
	h.loop(ctx)

	return h.result, h.err
}

func (h *Harness) moduleRegistry() (*modules.Registry, error) {
	if h.registry != nil {
		return h.registry, nil
	}

	r := modules.NewRegistry()
	if err := builtin.Register(r); err != nil {
		return nil, err
	}
	if len(h.cfg.Modules) == 0 {
		h.log.Log("Getting the list of all modules...")
	}
	if _, err := r.Discover(h.cfg.ModulesDir, h.log); err != nil {
		return nil, fmt.Errorf("failed to discover modules: %w", err)
	}
	return r, nil
}

func (h *Harness) busOptions() []events.Option {
	opts := []events.Option{
		events.WithObserver(func(ev types.Event) {
			h.log.Log("Event %s emitted", ev.Type)
		}),
	}
	if h.cfg.Lenient {
		opts = append(opts, events.WithLenient(func(ev types.Event, err error) {
			h.log.Log("Handler for %s failed: %v", ev.Type, err)
			h.log.Errorf("handler for %s failed: %v", ev.Type, err)
		}))
	}
	return opts
}

// loop runs posted tasks until teardown.
func (h *Harness) loop(ctx context.Context) {
	done := ctx.Done()
	for h.state != StateTornDown {
		select {
		case <-h.mailbox.wake:
			for _, task := range h.mailbox.drain() {
				if h.state == StateTornDown {
					break
				}
				task()
			}
		case <-done:
			done = nil
			h.log.Log("Run cancelled: %v", ctx.Err())
			h.finish(metrics.CompletionTimeout)
		}
	}
}

func (h *Harness) transition(to State) {
	from := h.state
	if to <= from {
		return
	}
	h.state = to
	h.log.Debugf("state %s -> %s", from, to)
	if h.onState != nil {
		h.onState(from, to)
	}
}

// emit publishes ev and aborts the run when a handler fails. It reports
// whether the run can go on.
func (h *Harness) emit(ev types.Event) bool {
	if h.state == StateTornDown {
		return false
	}
	if err := h.bus.Publish(ev); err != nil {
		h.abort(err)
		return false
	}
	return true
}

// abort tears the run down after a fatal handler error. No report is made:
// the completion callback receives nil, or the process exits with 1.
func (h *Harness) abort(err error) {
	h.log.Log("Run aborted: %v", err)
	h.log.Errorf("run aborted: %v", err)
	h.err = fmt.Errorf("%w: %w", ErrHandlerFailed, err)
	h.result = nil
	h.teardown()
	h.complete()
}

// teardown releases the browser session. It runs once, on every exit path.
func (h *Harness) teardown() {
	if h.state == StateTornDown {
		return
	}
	h.transition(StateTornDown)

	h.tracker.Stop()
	if h.hardLimit != nil {
		h.hardLimit.Stop()
	}
	if err := h.engine.Release(); err != nil {
		h.log.Log("Unable to release the browser: %v", err)
		h.log.Warnf("release failed: %v", err)
	}
	h.mailbox.close()

	if h.ownsLog {
		if err := h.log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "phantomas: closing log file: %v\n", err)
		}
	}
}
