package playwright

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/phantomas/pkg/engine"
	"github.com/entrhq/phantomas/pkg/types"
)

var _ engine.Engine = (*Session)(nil)

// Bind installs the callbacks and subscribes to page events.
func (s *Session) Bind(cb engine.Callbacks) {
	s.cb = cb

	s.page.OnRequest(s.onRequest)
	s.page.OnResponse(s.onResponse)
	s.page.OnRequestFinished(func(req playwright.Request) { s.onRequestDone(req, false) })
	s.page.OnRequestFailed(func(req playwright.Request) { s.onRequestDone(req, true) })

	s.page.OnFrameNavigated(func(frame playwright.Frame) {
		if frame == s.page.MainFrame() {
			s.cb.Initialized()
		}
	})

	s.page.OnDialog(func(dialog playwright.Dialog) {
		s.cb.Alert(dialog.Message())
		// Dismiss from a separate goroutine; the event dispatcher must not block
		go func() {
			if err := dialog.Dismiss(); err != nil {
				s.log.Debugf("failed to dismiss dialog: %v", err)
			}
		}()
	})

	s.page.OnConsole(func(msg playwright.ConsoleMessage) {
		s.cb.ConsoleMessage(msg.Text())
	})
}

// Open starts the navigation in the background.
func (s *Session) Open(ctx context.Context, url string) error {
	if s.isReleased() {
		return engine.ErrReleased
	}

	s.cb.LoadStarted()

	go func() {
		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateLoad,
			Timeout:   playwright.Float(s.timeout),
		})
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

// SetViewport resizes the page viewport.
func (s *Session) SetViewport(width, height int) error {
	if s.isReleased() {
		return engine.ErrReleased
	}
	if err := s.page.SetViewportSize(width, height); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}
	return nil
}

// Evaluate runs script in the page and returns its JSON-compatible result.
func (s *Session) Evaluate(script string) (any, error) {
	if s.isReleased() {
		return nil, engine.ErrReleased
	}
	result, err := s.page.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("JavaScript execution failed: %w", err)
	}
	return result, nil
}

// InjectScript adds a script tag with the contents of path.
func (s *Session) InjectScript(path string) error {
	if s.isReleased() {
		return engine.ErrReleased
	}
	if _, err := s.page.AddScriptTag(playwright.PageAddScriptTagOptions{
		Path: playwright.String(path),
	}); err != nil {
		return fmt.Errorf("failed to inject %s: %w", path, err)
	}
	return nil
}

// Content returns the serialized DOM.
func (s *Session) Content() (string, error) {
	if s.isReleased() {
		return "", engine.ErrReleased
	}
	html, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

// UserAgent returns the browser's user agent string.
func (s *Session) UserAgent() string {
	return s.userAgent
}

func (s *Session) onRequest(req playwright.Request) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.requests[req] = id
	s.mu.Unlock()

	s.cb.ResourceRequested(&types.Resource{
		ID:      id,
		URL:     req.URL(),
		Method:  req.Method(),
		Headers: engine.HeadersFromMap(req.Headers()),
		Time:    time.Now(),
	})
}

func (s *Session) onResponse(resp playwright.Response) {
	req := resp.Request()

	s.mu.Lock()
	id := s.requests[req]
	s.responses[req] = resp
	s.mu.Unlock()

	res := responseResource(id, resp)
	res.Stage = types.StageStart
	s.cb.ResourceReceived(res)
}

// onRequestDone reports the end stage. Response details come from the
// response seen at the start stage; fetching them again would need a
// round trip from inside the event dispatcher.
func (s *Session) onRequestDone(req playwright.Request, failed bool) {
	s.mu.Lock()
	id := s.requests[req]
	resp := s.responses[req]
	delete(s.requests, req)
	delete(s.responses, req)
	s.mu.Unlock()

	var res *types.Resource
	if resp != nil {
		res = responseResource(id, resp)
	} else {
		res = &types.Resource{ID: id, URL: req.URL(), Method: req.Method(), BodySize: -1, Time: time.Now()}
	}
	res.Stage = types.StageEnd

	if failed {
		res.Failed = true
		if ferr := req.Failure(); ferr != nil {
			res.StatusText = ferr.Error()
		}
	}
	s.cb.ResourceReceived(res)
}

func responseResource(id int, resp playwright.Response) *types.Resource {
	req := resp.Request()
	res := &types.Resource{
		ID:         id,
		URL:        resp.URL(),
		Method:     req.Method(),
		Status:     resp.Status(),
		StatusText: resp.StatusText(),
		Headers:    engine.HeadersFromMap(resp.Headers()),
		BodySize:   -1,
		Time:       time.Now(),
	}
	engine.FillResponse(res)
	return res
}
