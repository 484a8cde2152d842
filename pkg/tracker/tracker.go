// Package tracker decides when a page has stopped generating network
// activity.
//
// The tracker counts requests in flight. A new request cancels any pending
// debounce timer. Every completed request and the first load-finished signal
// run a settle check: any pending debounce timer is cancelled and, when
// nothing is in flight, a new one is started. When a debounce timer fires
// without being superseded the settle callback runs.
package tracker

import (
	"time"

	"github.com/entrhq/phantomas/pkg/clock"
)

// DefaultDebounce is how long the network must stay quiet before settling.
const DefaultDebounce = time.Second

// Option configures a Tracker.
type Option func(*Tracker)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(t *Tracker) {
		t.debounce = d
	}
}

// WithScheduler makes timer callbacks run through post instead of on the
// timer's goroutine. The harness uses it to keep every state change on its
// event loop.
func WithScheduler(post func(func())) Option {
	return func(t *Tracker) {
		t.post = post
	}
}

// Tracker counts pending requests and detects settling. Its methods must be
// called from a single goroutine.
type Tracker struct {
	clock      clock.Clock
	timer      clock.Timer
	onSettle   func()
	post       func(func())
	debounce   time.Duration
	deadline   time.Time
	pending    int
	generation uint64
	loaded     bool
	stopped    bool
}

// New creates a tracker that calls onSettle when a debounce timer fires.
func New(clk clock.Clock, onSettle func(), opts ...Option) *Tracker {
	t := &Tracker{
		clock:    clk,
		onSettle: onSettle,
		debounce: DefaultDebounce,
		post:     func(f func()) { f() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Sent records an outbound request and cancels the debounce timer. The
// next completion that leaves nothing in flight starts a new one.
func (t *Tracker) Sent() {
	t.pending++
	if !t.stopped {
		t.cancel()
	}
}

// Received records a completed request and runs the settle check.
// The pending count never drops below zero.
func (t *Tracker) Received() {
	if t.pending > 0 {
		t.pending--
	}
	t.maybeSettle()
}

// LoadFinished runs the settle check the first time it is called; later
// calls do nothing. It reports whether this call was the first.
func (t *Tracker) LoadFinished() bool {
	if t.loaded {
		return false
	}
	t.loaded = true
	t.maybeSettle()
	return true
}

// Pending returns the number of requests in flight.
func (t *Tracker) Pending() int {
	return t.pending
}

// Armed reports whether a debounce timer is waiting to fire.
func (t *Tracker) Armed() bool {
	return t.timer != nil
}

// Due reports whether a debounce timer is armed and its deadline has been
// reached, even if its callback has not run yet.
func (t *Tracker) Due() bool {
	return t.timer != nil && !t.clock.Now().Before(t.deadline)
}

// Stop cancels the debounce timer and ignores every later signal.
func (t *Tracker) Stop() {
	t.stopped = true
	t.cancel()
}

func (t *Tracker) maybeSettle() {
	if t.stopped {
		return
	}
	t.cancel()

	if t.pending >= 1 {
		return
	}

	gen := t.generation
	t.deadline = t.clock.Now().Add(t.debounce)
	t.timer = t.clock.AfterFunc(t.debounce, func() {
		t.post(func() { t.fire(gen) })
	})
}

func (t *Tracker) cancel() {
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// fire runs on the scheduler. A timer superseded after it fired but before
// its callback was scheduled carries a stale generation and is dropped.
func (t *Tracker) fire(gen uint64) {
	if t.stopped || gen != t.generation {
		return
	}
	t.timer = nil
	t.onSettle()
}
