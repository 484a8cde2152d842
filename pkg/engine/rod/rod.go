// Package rod implements engine.Engine on top of go-rod and the Chrome
// DevTools Protocol.
package rod

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/entrhq/phantomas/pkg/engine"
	"github.com/entrhq/phantomas/pkg/logging"
	"github.com/entrhq/phantomas/pkg/types"
)

// DefaultNavigationTimeout bounds a single navigation.
const DefaultNavigationTimeout = 30 * time.Second

var _ engine.Engine = (*Session)(nil)

// Session drives one Chrome page over CDP.
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	log      *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	cb        engine.Callbacks
	userAgent string
	timeout   time.Duration

	mu       sync.Mutex
	requests map[proto.NetworkRequestID]*types.Resource
	nextID   int
	released bool
}

// New launches Chrome and opens a blank page.
func New(ctx context.Context, opts engine.Options) (engine.Engine, error) {
	return Start(ctx, opts)
}

// Start is New returning the concrete type.
func Start(ctx context.Context, opts engine.Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	l := launcher.New().Headless(opts.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	browser := rod.New().ControlURL(controlURL).Context(sctx)
	if err := browser.Connect(); err != nil {
		cancel()
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		cancel()
		l.Kill()
		return nil, fmt.Errorf("create page: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultNavigationTimeout
	}

	s := &Session{
		launcher: l,
		browser:  browser,
		page:     page,
		log:      log,
		ctx:      sctx,
		cancel:   cancel,
		timeout:  timeout,
		requests: make(map[proto.NetworkRequestID]*types.Resource),
	}

	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		if err := s.SetViewport(opts.Viewport.Width, opts.Viewport.Height); err != nil {
			log.Warnf("failed to set viewport: %v", err)
		}
	}

	s.userAgent = opts.UserAgent
	if s.userAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{UserAgent: s.userAgent}).Call(page); err != nil {
			log.Warnf("failed to override user agent: %v", err)
		}
	} else if v, err := (proto.BrowserGetVersion{}).Call(browser); err == nil {
		s.userAgent = v.UserAgent
	}

	return s, nil
}

// Bind installs the callbacks and starts listening for CDP events.
func (s *Session) Bind(cb engine.Callbacks) {
	s.cb = cb

	wait := s.page.Context(s.ctx).EachEvent(
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame != nil && ev.Frame.ParentID == "" {
				s.cb.Initialized()
			}
		},
		func(ev *proto.NetworkRequestWillBeSent) {
			s.onRequestWillBeSent(ev)
		},
		func(ev *proto.NetworkResponseReceived) {
			s.onResponseReceived(ev)
		},
		func(ev *proto.NetworkLoadingFinished) {
			s.onLoadingDone(ev.RequestID, int64(ev.EncodedDataLength), "")
		},
		func(ev *proto.NetworkLoadingFailed) {
			s.onLoadingDone(ev.RequestID, -1, ev.ErrorText)
		},
		func(ev *proto.RuntimeConsoleAPICalled) {
			s.cb.ConsoleMessage(stringifyConsoleArgs(ev.Args))
		},
		func(ev *proto.PageJavascriptDialogOpening) {
			s.cb.Alert(ev.Message)
			go func() {
				if err := (proto.PageHandleJavaScriptDialog{Accept: false}).Call(s.page); err != nil {
					s.log.Debugf("failed to dismiss dialog: %v", err)
				}
			}()
		},
	)
	go wait()
}

// Open navigates in the background and reports the load outcome.
func (s *Session) Open(ctx context.Context, url string) error {
	if s.isReleased() {
		return engine.ErrReleased
	}

	s.cb.LoadStarted()

	go func() {
		page := s.page.Context(ctx).Timeout(s.timeout)
		err := page.Navigate(url)
		if err == nil {
			err = page.WaitLoad()
		}
		if ctx.Err() != nil || s.isReleased() {
			return
		}
		if err != nil {
			s.log.Warnf("navigation to %s failed: %v", url, err)
			s.cb.LoadFinished(engine.StatusFail)
			return
		}
		s.cb.LoadFinished(engine.StatusSuccess)
	}()

	return nil
}

// SetViewport overrides the device metrics of the page.
func (s *Session) SetViewport(width, height int) error {
	if s.isReleased() {
		return engine.ErrReleased
	}
	return (proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(s.page)
}

// Evaluate runs script in the page and returns its value.
func (s *Session) Evaluate(script string) (any, error) {
	if s.isReleased() {
		return nil, engine.ErrReleased
	}
	obj, err := s.page.Eval(script)
	if err != nil {
		return nil, fmt.Errorf("JavaScript execution failed: %w", err)
	}
	return obj.Value.Val(), nil
}

// InjectScript adds a script tag with the contents of path.
func (s *Session) InjectScript(path string) error {
	if s.isReleased() {
		return engine.ErrReleased
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := s.page.AddScriptTag("", string(content)); err != nil {
		return fmt.Errorf("failed to inject %s: %w", path, err)
	}
	return nil
}

// Content returns the serialized DOM.
func (s *Session) Content() (string, error) {
	if s.isReleased() {
		return "", engine.ErrReleased
	}
	return s.page.HTML()
}

// UserAgent returns the browser's user agent string.
func (s *Session) UserAgent() string {
	return s.userAgent
}

// Release closes the browser and kills the Chrome process.
// Safe to call multiple times.
func (s *Session) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	s.cancel()
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (s *Session) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *Session) onRequestWillBeSent(ev *proto.NetworkRequestWillBeSent) {
	// A redirect reuses the request ID; the previous hop ends here.
	if ev.RedirectResponse != nil {
		s.mu.Lock()
		prev := s.requests[ev.RequestID]
		delete(s.requests, ev.RequestID)
		s.mu.Unlock()

		if prev != nil {
			fillResponse(prev, ev.RedirectResponse)
			prev.Stage = types.StageEnd
			s.cb.ResourceReceived(prev)
		}
	}

	s.mu.Lock()
	s.nextID++
	res := &types.Resource{
		ID:       s.nextID,
		URL:      ev.Request.URL,
		Method:   ev.Request.Method,
		Headers:  convertHeaders(ev.Request.Headers),
		BodySize: -1,
		Time:     time.Now(),
	}
	s.requests[ev.RequestID] = res
	s.mu.Unlock()

	cp := *res
	s.cb.ResourceRequested(&cp)
}

func (s *Session) onResponseReceived(ev *proto.NetworkResponseReceived) {
	s.mu.Lock()
	res := s.requests[ev.RequestID]
	s.mu.Unlock()

	if res == nil || ev.Response == nil {
		return
	}

	fillResponse(res, ev.Response)
	cp := *res
	cp.Stage = types.StageStart
	s.cb.ResourceReceived(&cp)
}

func (s *Session) onLoadingDone(id proto.NetworkRequestID, size int64, errText string) {
	s.mu.Lock()
	res := s.requests[id]
	delete(s.requests, id)
	s.mu.Unlock()

	if res == nil {
		return
	}

	res.Stage = types.StageEnd
	res.Time = time.Now()
	if size >= 0 {
		res.BodySize = size
	}
	if errText != "" {
		res.Failed = true
		res.StatusText = errText
	}
	s.cb.ResourceReceived(res)
}

func fillResponse(res *types.Resource, resp *proto.NetworkResponse) {
	res.URL = resp.URL
	res.Status = resp.Status
	res.StatusText = resp.StatusText
	res.Headers = convertHeaders(resp.Headers)
	res.Time = time.Now()
	engine.FillResponse(res)
	if resp.MIMEType != "" {
		res.ContentType = resp.MIMEType
	}
}

func convertHeaders(h proto.NetworkHeaders) []types.Header {
	m := make(map[string]string, len(h))
	for k, v := range h {
		m[k] = v.Str()
	}
	return engine.HeadersFromMap(m)
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
