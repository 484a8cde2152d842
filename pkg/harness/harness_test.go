package harness

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrhq/phantomas/pkg/clock"
	"github.com/entrhq/phantomas/pkg/config"
	"github.com/entrhq/phantomas/pkg/engine"
	"github.com/entrhq/phantomas/pkg/engine/enginetest"
	"github.com/entrhq/phantomas/pkg/logging"
	"github.com/entrhq/phantomas/pkg/metrics"
	"github.com/entrhq/phantomas/pkg/modules"
	"github.com/entrhq/phantomas/pkg/modules/builtin"
	"github.com/entrhq/phantomas/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// lumberjack starts a file maintenance goroutine that Close does not stop.
		goleak.IgnoreAnyFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	)
}

type outcome struct {
	report *metrics.Report
	err    error
}

type fixture struct {
	h       *Harness
	cfg     *config.RunConfig
	fake    *enginetest.Fake
	clock   *clock.FakeClock
	out     *bytes.Buffer
	done    chan outcome
	reports int
	states  []string
}

func newFixture(t *testing.T, mods []modules.Module, opts ...Option) *fixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.URL = "http://example.com"

	reg := modules.NewRegistry()
	require.NoError(t, reg.RegisterCore(builtin.NewRequestsMonitor()))
	for _, m := range mods {
		require.NoError(t, reg.Register(m))
	}

	f := &fixture{
		cfg:   cfg,
		fake:  enginetest.New(),
		clock: clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		out:   &bytes.Buffer{},
		done:  make(chan outcome, 1),
	}

	base := []Option{
		WithClock(f.clock),
		WithEngineFactory(enginetest.Factory(f.fake)),
		WithRegistry(reg),
		WithLogger(logging.New("phantomas", logging.Options{Out: f.out, Verbose: true})),
		WithOnDone(func(*metrics.Report) { f.reports++ }),
		WithStateHook(func(from, to State) {
			f.states = append(f.states, from.String()+" -> "+to.String())
		}),
	}
	f.h = New(cfg, append(base, opts...)...)
	return f
}

// start runs the harness in the background and waits until the engine is
// bound, so callbacks fired by the test reach the loop.
func (f *fixture) start(t *testing.T, ctx context.Context) {
	t.Helper()
	go func() {
		rep, err := f.h.Run(ctx)
		f.done <- outcome{rep, err}
	}()

	select {
	case <-f.fake.Bound():
	case <-time.After(5 * time.Second):
		t.Fatal("engine was never bound")
	}
}

// idle waits until the loop has handled every task posted so far, or the
// run has ended.
func (f *fixture) idle(t *testing.T) {
	t.Helper()
	ch := make(chan struct{})
	f.h.mailbox.post(func() { close(ch) })

	select {
	case <-ch:
	case o := <-f.done:
		f.done <- o
	case <-time.After(5 * time.Second):
		t.Fatal("loop is stuck")
	}
}

func (f *fixture) wait(t *testing.T) outcome {
	t.Helper()
	select {
	case o := <-f.done:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return outcome{}
	}
}

func (f *fixture) finished() bool {
	select {
	case o := <-f.done:
		f.done <- o
		return true
	default:
		return false
	}
}

func TestRunSettles(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t, context.Background())

	f.fake.Initialize()
	f.fake.StartLoad()
	f.fake.Fetch("http://example.com/", 200, "text/html", 100)
	id := f.fake.RequestOnly("http://example.com/app.js")
	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)

	// one request still in flight: only the hard timeout is scheduled
	assert.Equal(t, 1, f.clock.Pending())

	f.fake.Complete(id, "http://example.com/app.js", 200, "application/javascript", 50)
	f.idle(t)
	assert.Equal(t, 2, f.clock.Pending())
	assert.False(t, f.finished())

	f.clock.Advance(time.Second)
	o := f.wait(t)

	require.NoError(t, o.err)
	require.NotNil(t, o.report)
	assert.Equal(t, metrics.CompletionSettled, o.report.Completion)
	assert.Equal(t, time.Second, o.report.Duration)
	assert.Equal(t, float64(2), o.report.Metrics["requests"])
	assert.Equal(t, float64(150), o.report.Metrics["bodySize"])
	assert.Equal(t, "http://example.com", o.report.URL)

	assert.Equal(t, 1, f.reports)
	assert.Equal(t, 1, f.fake.Releases())
	assert.Equal(t, []string{"bind", "open http://example.com", "viewport 1280x1024", "release"}, f.fake.Calls())
	assert.Equal(t, []string{
		"idle -> opening",
		"opening -> loading",
		"loading -> settling",
		"settling -> reporting",
		"reporting -> torn down",
	}, f.states)

	log := f.out.String()
	for _, line := range []string{
		"> phantomas v" + Version,
		"> Opening <http://example.com>...",
		"> Using FakeBrowser/1.0",
		"> Viewport set to 1280x1024",
		"> Run timeout set to 15 s",
		"> Event pageBeforeOpen emitted",
		"> Page object initialized",
		"> Page loading started",
		`> Page loading finished ("success")`,
		"> phantomas work done in 1000 ms",
		"> Formatting results (plain) with 6 metric(s)...",
		"phantomas metrics for <http://example.com>:",
		" * requests: 2",
	} {
		assert.Contains(t, log, line+"\n")
	}
	assert.Less(t, strings.Index(log, "Event report emitted"), strings.Index(log, "Event results emitted"))
	assert.Less(t, strings.Index(log, "Event results emitted"), strings.Index(log, "phantomas metrics for"))
}

func TestRunDebounceRestarts(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t, context.Background())

	f.fake.StartLoad()
	f.fake.Fetch("http://example.com/", 200, "text/html", 100)
	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)

	f.clock.Advance(900 * time.Millisecond)
	f.fake.Fetch("http://example.com/late.js", 200, "application/javascript", 10)
	f.idle(t)

	// the restarted timer is due 1s after the last completion
	f.clock.Advance(900 * time.Millisecond)
	f.idle(t)
	assert.False(t, f.finished())

	f.clock.Advance(100 * time.Millisecond)
	o := f.wait(t)

	require.NoError(t, o.err)
	assert.Equal(t, metrics.CompletionSettled, o.report.Completion)
	assert.Equal(t, float64(2), o.report.Metrics["requests"])
	assert.Equal(t, 1900*time.Millisecond, o.report.Duration)
}

func TestRunHardTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.Timeout = 1
	f.start(t, context.Background())

	f.fake.StartLoad()
	f.fake.RequestOnly("http://example.com/")
	f.idle(t)

	f.clock.Advance(time.Second)
	o := f.wait(t)

	require.NoError(t, o.err)
	assert.Equal(t, metrics.CompletionTimeout, o.report.Completion)
	assert.True(t, o.report.TimedOut())
	assert.Equal(t, float64(0), o.report.Metrics["requests"])
	assert.Contains(t, f.out.String(), "> Timeout of 1 s was reached!\n")
	assert.Contains(t, f.out.String(), "Run timed out, results may be incomplete")
	assert.Equal(t, 1, f.fake.Releases())
	assert.Equal(t, []string{
		"idle -> opening",
		"opening -> loading",
		"loading -> reporting",
		"reporting -> torn down",
	}, f.states)
}

func TestRunReportsOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.Timeout = 1
	f.start(t, context.Background())

	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)

	// debounce and hard timeout are both due, the debounce wins
	f.clock.Advance(time.Second)
	o := f.wait(t)
	require.NoError(t, o.err)
	assert.Equal(t, metrics.CompletionSettled, o.report.Completion)

	// late engine callbacks and timers are ignored
	f.fake.FinishLoad(engine.StatusSuccess)
	f.fake.Fetch("http://example.com/x", 200, "text/html", 1)
	f.clock.Advance(10 * time.Second)

	assert.Equal(t, 1, f.reports)
	assert.Equal(t, 1, f.fake.Releases())
	assert.Equal(t, 1, strings.Count(f.out.String(), "Event report emitted"))
}

func TestRunSettleWinsSimultaneousTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.Timeout = 1
	f.start(t, context.Background())

	f.fake.StartLoad()
	f.fake.Fetch("http://example.com/", 200, "text/html", 100)
	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)

	f.clock.Advance(time.Second)
	o := f.wait(t)

	require.NoError(t, o.err)
	assert.Equal(t, metrics.CompletionSettled, o.report.Completion)
	assert.Empty(t, o.report.Notices)
	assert.Equal(t, float64(1), o.report.Metrics["requests"])
	assert.NotContains(t, f.out.String(), "Timeout of 1 s was reached!")
}

func TestRunSendWithinDebounceWindow(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t, context.Background())

	f.fake.StartLoad()
	f.fake.Fetch("http://example.com/", 200, "text/html", 100)
	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)

	f.clock.Advance(500 * time.Millisecond)
	id := f.fake.RequestOnly("http://example.com/slow.css")
	f.idle(t)

	// the debounce armed by the document would have fired by now
	f.clock.Advance(600 * time.Millisecond)
	f.idle(t)
	assert.False(t, f.finished())

	f.fake.Complete(id, "http://example.com/slow.css", 200, "text/css", 40)
	f.idle(t)
	f.clock.Advance(999 * time.Millisecond)
	f.idle(t)
	assert.False(t, f.finished())

	f.clock.Advance(time.Millisecond)
	o := f.wait(t)

	require.NoError(t, o.err)
	assert.Equal(t, metrics.CompletionSettled, o.report.Completion)
	assert.Equal(t, float64(2), o.report.Metrics["requests"])
	assert.Equal(t, float64(140), o.report.Metrics["bodySize"])
	assert.Equal(t, 2100*time.Millisecond, o.report.Duration)
}

func TestRunLeavesConfigUntouched(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.Format = ""
	f.cfg.Viewport = ""
	f.cfg.Timeout = 0
	f.cfg.Engine = ""
	f.cfg.Modules = []string{builtin.RequestsMonitorName}
	f.start(t, context.Background())

	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)
	f.clock.Advance(time.Second)
	o := f.wait(t)
	require.NoError(t, o.err)

	assert.Empty(t, f.cfg.Format)
	assert.Empty(t, f.cfg.Viewport)
	assert.Zero(t, f.cfg.Timeout)
	assert.Empty(t, f.cfg.Engine)
	assert.Equal(t, []string{builtin.RequestsMonitorName}, f.cfg.Modules)

	log := f.out.String()
	assert.Contains(t, log, "> Run timeout set to 15 s\n")
	assert.Contains(t, log, "> Viewport set to 1280x1024\n")
	assert.Contains(t, log, "> Formatting results (plain)")
}

func TestRunClosesOwnLogFile(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	path := filepath.Join(dir, "run.log")

	f := newFixture(t, nil)
	f.cfg.LogFile = path
	f.cfg.Silent = true
	f.h = New(f.cfg,
		WithClock(f.clock),
		WithEngineFactory(enginetest.Factory(f.fake)),
		WithRegistry(f.h.registry),
	)
	require.True(t, f.h.ownsLog)
	f.start(t, context.Background())

	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)
	f.clock.Advance(time.Second)
	o := f.wait(t)
	require.NoError(t, o.err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Page loading finished")
	assert.False(t, fileOpen(t, path), "log file still open after the run")
}

func TestRunKeepsCallerLogger(t *testing.T) {
	f := newFixture(t, nil)
	assert.False(t, f.h.ownsLog)
}

// fileOpen reports whether this process holds a descriptor for path.
func fileOpen(t *testing.T, path string) bool {
	t.Helper()
	fds, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("descriptor listing not available:", err)
	}
	for _, fd := range fds {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", fd.Name()))
		if err == nil && target == path {
			return true
		}
	}
	return false
}

func TestRunMissingURL(t *testing.T) {
	f := newFixture(t, nil, WithEngineFactory(func(context.Context, engine.Options) (engine.Engine, error) {
		t.Fatal("engine must not be created")
		return nil, nil
	}))
	f.cfg.URL = ""

	rep, err := f.h.Run(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingURL)
	assert.Nil(t, rep)
	assert.Zero(t, f.reports)
}

func TestRunUnknownFormat(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.Format = "xml"

	_, err := f.h.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
	assert.Empty(t, f.fake.Calls())
}

func TestRunEngineFailure(t *testing.T) {
	boom := errors.New("no browser")
	f := newFixture(t, nil, WithEngineFactory(enginetest.FailingFactory(boom)))

	_, err := f.h.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunAlreadyRan(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.URL = ""

	_, err := f.h.Run(context.Background())
	require.ErrorIs(t, err, config.ErrMissingURL)

	_, err = f.h.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRan)
}

func failingModule(name string, on types.EventType, err error) *modules.Func {
	return &modules.Func{
		ModuleName: name,
		Init: func(c *modules.Capabilities) error {
			c.On(on, func(types.Event) error { return err })
			return nil
		},
	}
}

func TestRunFatalHandlerError(t *testing.T) {
	boom := errors.New("boom")
	exitCode := -1
	after := 0
	mods := []modules.Module{
		failingModule("broken", types.EventLoadFinished, boom),
		&modules.Func{
			ModuleName: "after",
			Init: func(c *modules.Capabilities) error {
				c.On(types.EventLoadFinished, func(types.Event) error {
					after++
					return nil
				})
				return nil
			},
		},
	}
	f := newFixture(t, mods, WithOnDone(nil), WithExit(func(code int) { exitCode = code }))
	f.start(t, context.Background())

	f.fake.FinishLoad(engine.StatusSuccess)
	o := f.wait(t)

	assert.ErrorIs(t, o.err, ErrHandlerFailed)
	assert.ErrorIs(t, o.err, boom)
	assert.Nil(t, o.report)
	assert.Zero(t, after)
	assert.Equal(t, 1, exitCode)
	assert.Equal(t, 1, f.fake.Releases())
	assert.Zero(t, f.clock.Pending())
}

func TestRunFatalReportHandler(t *testing.T) {
	boom := errors.New("boom")
	var delivered []*metrics.Report
	f := newFixture(t, []modules.Module{failingModule("broken", types.EventReport, boom)},
		WithOnDone(func(rep *metrics.Report) { delivered = append(delivered, rep) }),
		WithExit(func(int) { t.Error("exit must not be called when a completion callback is set") }),
	)
	f.start(t, context.Background())

	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)
	f.clock.Advance(time.Second)
	o := f.wait(t)

	assert.ErrorIs(t, o.err, boom)
	assert.Nil(t, o.report)
	require.Len(t, delivered, 1)
	assert.Nil(t, delivered[0])
	assert.Equal(t, 1, f.fake.Releases())
	assert.NotContains(t, f.out.String(), "phantomas metrics for")
}

func TestRunLenient(t *testing.T) {
	boom := errors.New("boom")
	f := newFixture(t, []modules.Module{failingModule("broken", types.EventLoadFinished, boom)})
	f.cfg.Lenient = true
	f.start(t, context.Background())

	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)
	f.clock.Advance(time.Second)
	o := f.wait(t)

	require.NoError(t, o.err)
	assert.Equal(t, metrics.CompletionSettled, o.report.Completion)
	assert.Contains(t, f.out.String(), "> Handler for loadFinished failed: boom\n")
}

func TestRunLoadFailure(t *testing.T) {
	var got []string
	mod := &modules.Func{
		ModuleName: "watcher",
		Init: func(c *modules.Capabilities) error {
			c.On(types.EventLoadFinished, func(ev types.Event) error {
				got = append(got, "finished "+ev.Status)
				return nil
			})
			c.On(types.EventLoadFailed, func(ev types.Event) error {
				got = append(got, "failed "+ev.Status)
				return nil
			})
			return nil
		},
	}
	f := newFixture(t, []modules.Module{mod})
	f.start(t, context.Background())

	f.fake.FinishLoad(engine.StatusFail)
	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)
	f.clock.Advance(time.Second)
	o := f.wait(t)

	require.NoError(t, o.err)
	assert.Equal(t, []string{"failed fail"}, got)
	assert.Equal(t, []string{`Page loading failed ("fail")`}, o.report.Notices)
	assert.Equal(t, metrics.CompletionSettled, o.report.Completion)
}

func TestRunOpenError(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.OpenErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	f.start(t, context.Background())

	f.idle(t)
	f.clock.Advance(time.Second)
	o := f.wait(t)

	require.NoError(t, o.err)
	assert.Equal(t, []string{`Page loading failed ("fail")`}, o.report.Notices)
	assert.Contains(t, f.out.String(), "Unable to open <http://example.com>: net::ERR_NAME_NOT_RESOLVED")
}

func TestRunContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, nil)
	f.start(t, ctx)

	f.fake.StartLoad()
	f.fake.RequestOnly("http://example.com/")
	f.idle(t)
	cancel()
	o := f.wait(t)

	require.NoError(t, o.err)
	assert.Equal(t, metrics.CompletionTimeout, o.report.Completion)
	assert.Equal(t, 1, f.fake.Releases())
	assert.Contains(t, f.out.String(), "> Run cancelled: context canceled\n")
}

func TestRunHelperScriptAndViewport(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.HelperScript = "helper.js"
	f.cfg.Viewport = "800x"
	f.start(t, context.Background())

	f.fake.Initialize()
	f.fake.StartLoad()
	f.fake.StartLoad()
	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)
	f.clock.Advance(time.Second)
	f.wait(t)

	calls := f.fake.Calls()
	assert.Contains(t, calls, "inject helper.js")
	assert.Contains(t, calls, "viewport 800x1024")
	assert.Equal(t, 1, strings.Count(strings.Join(calls, "\n"), "viewport"))
	assert.Equal(t, 2, strings.Count(f.out.String(), "Event loadStarted emitted"))
}

func TestRunReportWritesBeforeFreeze(t *testing.T) {
	mod := &modules.Func{
		ModuleName: "late",
		Init: func(c *modules.Capabilities) error {
			c.On(types.EventReport, func(types.Event) error {
				c.SetMetric("onReport", 1)
				return nil
			})
			c.On(types.EventResults, func(ev types.Event) error {
				assert.Equal(t, float64(1), ev.Report.Metrics["onReport"])
				c.SetMetric("onResults", 1)
				return nil
			})
			return nil
		},
	}
	f := newFixture(t, []modules.Module{mod})
	f.start(t, context.Background())

	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)
	f.clock.Advance(time.Second)
	o := f.wait(t)

	require.NoError(t, o.err)
	assert.Equal(t, float64(1), o.report.Metrics["onReport"])
	assert.NotContains(t, o.report.Metrics, "onResults")
	assert.Contains(t, f.out.String(), "Metric onResults dropped")
}

func TestRunAlertsAndConsole(t *testing.T) {
	f := newFixture(t, []modules.Module{builtin.NewAlerts(), builtin.NewConsole()})
	f.start(t, context.Background())

	f.fake.Alert("hi")
	f.fake.Console("debug line")
	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)
	f.clock.Advance(time.Second)
	o := f.wait(t)

	require.NoError(t, o.err)
	assert.Equal(t, float64(1), o.report.Metrics["windowAlerts"])
	assert.Equal(t, float64(1), o.report.Metrics["consoleMessages"])
	assert.Contains(t, o.report.Notices, "alert() called with: hi")
	assert.Contains(t, f.out.String(), "> Alert: hi\n")
	assert.Contains(t, f.out.String(), "> console.log: debug line\n")
}

func TestRunExit(t *testing.T) {
	code := -1
	f := newFixture(t, nil, WithOnDone(nil), WithExit(func(c int) { code = c }))
	f.cfg.Format = "json"
	f.start(t, context.Background())

	f.fake.FinishLoad(engine.StatusSuccess)
	f.idle(t)
	f.clock.Advance(time.Second)
	f.wait(t)

	assert.Equal(t, 0, code)
	assert.Contains(t, f.out.String(), `{"url":"http://example.com","metrics":{"requests":0,`)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateOpening, "opening"},
		{StateLoading, "loading"},
		{StateSettling, "settling"},
		{StateReporting, "reporting"},
		{StateTornDown, "torn down"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}
