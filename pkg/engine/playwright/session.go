package playwright

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/phantomas/pkg/engine"
	"github.com/entrhq/phantomas/pkg/logging"
)

const (
	// DefaultTimeout is the default timeout for page operations in milliseconds
	DefaultTimeout = 30000.0
)

// Session owns the Playwright resources of a single run.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	log     *logging.Logger

	cb        engine.Callbacks
	userAgent string
	timeout   float64

	mu        sync.Mutex
	requests  map[playwright.Request]int
	responses map[playwright.Request]playwright.Response
	nextID    int
	released  bool
}

// New installs Playwright if needed and launches a browser session.
func New(ctx context.Context, opts engine.Options) (engine.Engine, error) {
	return Start(ctx, opts)
}

// Start is New returning the concrete type.
func Start(ctx context.Context, opts engine.Options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	// Keep Playwright's driver output away from the report sink
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	viewport := opts.Viewport
	if viewport.Width <= 0 || viewport.Height <= 0 {
		viewport = engine.Viewport{Width: 1280, Height: 1024}
	}
	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  viewport.Width,
			Height: viewport.Height,
		},
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	timeout := DefaultTimeout
	if opts.Timeout > 0 {
		timeout = float64(opts.Timeout / time.Millisecond)
	}
	page.SetDefaultTimeout(timeout)

	s := &Session{
		pw:        pw,
		browser:   browser,
		context:   bctx,
		page:      page,
		log:       log,
		timeout:   timeout,
		requests:  make(map[playwright.Request]int),
		responses: make(map[playwright.Request]playwright.Response),
	}

	s.userAgent = opts.UserAgent
	if s.userAgent == "" {
		if ua, err := page.Evaluate("() => navigator.userAgent"); err == nil {
			s.userAgent, _ = ua.(string)
		}
	}

	log.Debugf("chromium %s launched", browser.Version())
	return s, nil
}

// Release closes the page, the context, the browser and Playwright itself.
// Safe to call multiple times.
func (s *Session) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	_ = s.page.Close()    // Ignore errors, continue cleanup
	_ = s.context.Close() // Ignore errors, continue cleanup
	if err := s.browser.Close(); err != nil {
		s.log.Warnf("failed to close browser: %v", err)
	}

	if err := s.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

func (s *Session) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
