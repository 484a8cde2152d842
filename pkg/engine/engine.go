// Package engine defines the boundary between the harness and the headless
// browser that loads the page.
//
// An Engine reports page activity through the Callbacks bound to it and
// executes the commands the harness and modules issue. Callbacks may be
// invoked from any goroutine; implementations must never block waiting for
// a callback to return something.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/entrhq/phantomas/pkg/logging"
	"github.com/entrhq/phantomas/pkg/types"
)

const (
	// StatusSuccess is the load status of a page that loaded.
	StatusSuccess = "success"
	// StatusFail is the load status of a page that did not load.
	StatusFail = "fail"
)

// ErrReleased is returned by commands issued after Release.
var ErrReleased = errors.New("browser session released")

// Callbacks receive page activity. Nil callbacks are skipped.
type Callbacks struct {
	OnInitialized       func()
	OnLoadStarted       func()
	OnLoadFinished      func(status string)
	OnResourceRequested func(res *types.Resource)
	OnResourceReceived  func(res *types.Resource)
	OnAlert             func(msg string)
	OnConsoleMessage    func(msg string)
}

// Engine is a headless browser session dedicated to a single run.
type Engine interface {
	// Bind installs the callbacks. It must be called before Open.
	Bind(cb Callbacks)

	// Open starts navigating to url and returns without waiting for the page
	// to load. Completion is reported through OnLoadFinished.
	Open(ctx context.Context, url string) error

	SetViewport(width, height int) error
	Evaluate(script string) (any, error)
	InjectScript(path string) error
	Content() (string, error)
	UserAgent() string

	// Release frees the browser session. Later commands return ErrReleased.
	Release() error
}

// Options configures an engine.
type Options struct {
	Logger    *logging.Logger
	UserAgent string
	Viewport  Viewport
	Timeout   time.Duration
	Headless  bool
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Factory creates an engine.
type Factory func(ctx context.Context, opts Options) (Engine, error)

// Fire helpers skip nil callbacks.

func (cb Callbacks) Initialized() {
	if cb.OnInitialized != nil {
		cb.OnInitialized()
	}
}

func (cb Callbacks) LoadStarted() {
	if cb.OnLoadStarted != nil {
		cb.OnLoadStarted()
	}
}

func (cb Callbacks) LoadFinished(status string) {
	if cb.OnLoadFinished != nil {
		cb.OnLoadFinished(status)
	}
}

func (cb Callbacks) ResourceRequested(res *types.Resource) {
	if cb.OnResourceRequested != nil {
		cb.OnResourceRequested(res)
	}
}

func (cb Callbacks) ResourceReceived(res *types.Resource) {
	if cb.OnResourceReceived != nil {
		cb.OnResourceReceived(res)
	}
}

func (cb Callbacks) Alert(msg string) {
	if cb.OnAlert != nil {
		cb.OnAlert(msg)
	}
}

func (cb Callbacks) ConsoleMessage(msg string) {
	if cb.OnConsoleMessage != nil {
		cb.OnConsoleMessage(msg)
	}
}
