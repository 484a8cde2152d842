// Package enginetest provides a scriptable engine.Engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/phantomas/pkg/engine"
	"github.com/entrhq/phantomas/pkg/types"
)

// Fake records every command and lets tests fire engine callbacks.
type Fake struct {
	// EvaluateFunc answers Evaluate. Defaults to returning nil.
	EvaluateFunc func(script string) (any, error)

	// OnOpen runs in a goroutine after Open, like a real navigation.
	OnOpen func(f *Fake)

	// OpenErr is returned by Open.
	OpenErr error

	// InjectErr is returned by InjectScript.
	InjectErr error

	// HTML is returned by Content.
	HTML string

	// Agent is returned by UserAgent.
	Agent string

	cb       engine.Callbacks
	bound    chan struct{}
	calls    []string
	mu       sync.Mutex
	releases int
	nextID   int
	wg       sync.WaitGroup
}

var _ engine.Engine = (*Fake)(nil)

// New creates a fake engine.
func New() *Fake {
	return &Fake{
		Agent: "FakeBrowser/1.0",
		bound: make(chan struct{}),
	}
}

// Factory returns an engine.Factory handing out f.
func Factory(f *Fake) engine.Factory {
	return func(context.Context, engine.Options) (engine.Engine, error) {
		return f, nil
	}
}

// FailingFactory returns an engine.Factory that fails with err.
func FailingFactory(err error) engine.Factory {
	return func(context.Context, engine.Options) (engine.Engine, error) {
		return nil, err
	}
}

func (f *Fake) Bind(cb engine.Callbacks) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()

	f.record("bind")
	close(f.bound)
}

func (f *Fake) Open(_ context.Context, url string) error {
	f.record("open " + url)
	if f.OpenErr != nil {
		return f.OpenErr
	}

	if f.OnOpen != nil {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.OnOpen(f)
		}()
	}
	return nil
}

func (f *Fake) SetViewport(width, height int) error {
	f.record(fmt.Sprintf("viewport %dx%d", width, height))
	return nil
}

func (f *Fake) Evaluate(script string) (any, error) {
	f.record("evaluate " + script)
	if f.EvaluateFunc != nil {
		return f.EvaluateFunc(script)
	}
	return nil, nil
}

func (f *Fake) InjectScript(path string) error {
	f.record("inject " + path)
	return f.InjectErr
}

func (f *Fake) Content() (string, error) {
	f.record("content")
	return f.HTML, nil
}

func (f *Fake) UserAgent() string {
	return f.Agent
}

func (f *Fake) Release() error {
	f.mu.Lock()
	f.releases++
	f.mu.Unlock()

	f.record("release")
	return nil
}

// Calls returns the recorded commands in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Releases returns how many times Release was called.
func (f *Fake) Releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

// Bound is closed once Bind was called.
func (f *Fake) Bound() <-chan struct{} {
	return f.bound
}

// Wait blocks until OnOpen returned.
func (f *Fake) Wait() {
	f.wg.Wait()
}

func (f *Fake) callbacks() engine.Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *Fake) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

// The methods below play the browser side.

func (f *Fake) Initialize()                 { f.callbacks().Initialized() }
func (f *Fake) StartLoad()                  { f.callbacks().LoadStarted() }
func (f *Fake) FinishLoad(status string)    { f.callbacks().LoadFinished(status) }
func (f *Fake) Alert(msg string)            { f.callbacks().Alert(msg) }
func (f *Fake) Console(msg string)          { f.callbacks().ConsoleMessage(msg) }
func (f *Fake) Request(res *types.Resource) { f.callbacks().ResourceRequested(res) }
func (f *Fake) Receive(res *types.Resource) { f.callbacks().ResourceReceived(res) }

// Fetch simulates a complete request to url: requested, then received at
// the start and end stages. It returns the request ID.
func (f *Fake) Fetch(url string, status int, contentType string, size int64) int {
	id := f.RequestOnly(url)
	f.Complete(id, url, status, contentType, size)
	return id
}

// RequestOnly fires a requested notification and returns its ID.
func (f *Fake) RequestOnly(url string) int {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	f.Request(&types.Resource{ID: id, URL: url, Method: "GET"})
	return id
}

// Complete fires the received notifications for a request.
func (f *Fake) Complete(id int, url string, status int, contentType string, size int64) {
	headers := []types.Header{{Name: "Content-Type", Value: contentType}}
	f.Receive(&types.Resource{ID: id, URL: url, Method: "GET", Stage: types.StageStart, Status: status, ContentType: contentType, BodySize: size, Headers: headers})
	f.Receive(&types.Resource{ID: id, URL: url, Method: "GET", Stage: types.StageEnd, Status: status, ContentType: contentType, BodySize: size, Headers: headers})
}
