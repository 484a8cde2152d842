package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/phantomas/pkg/engine"
	"github.com/entrhq/phantomas/pkg/metrics"
	"github.com/entrhq/phantomas/pkg/types"
)

// open binds the engine, starts the hard timeout and requests navigation.
func (h *Harness) open(ctx context.Context) {
	h.start = h.clock.Now()
	h.transition(StateOpening)

	width, height := h.cfg.ViewportSize()
	h.log.Log("Opening <%s>...", h.cfg.URL)
	h.log.Log("Using %s", h.engine.UserAgent())
	h.log.Log("Viewport set to %dx%d", width, height)

	h.engine.Bind(h.callbacks())

	timeout := time.Duration(h.cfg.Timeout) * time.Second
	h.hardLimit = h.clock.AfterFunc(timeout, func() {
		h.mailbox.post(h.onTimeout)
	})

	if !h.emit(types.NewEvent(types.EventPageBeforeOpen)) {
		return
	}

	if err := h.engine.Open(ctx, h.cfg.URL); err != nil {
		h.log.Log("Unable to open <%s>: %v", h.cfg.URL, err)
		h.onLoadFinished(engine.StatusFail)
	}

	if !h.emit(types.NewEvent(types.EventPageOpen)) {
		return
	}
	h.log.Log("Run timeout set to %d s", h.cfg.Timeout)
}

// callbacks translate engine notifications into loop tasks.
func (h *Harness) callbacks() engine.Callbacks {
	post := h.mailbox.post
	return engine.Callbacks{
		OnInitialized: func() { post(h.onInitialized) },
		OnLoadStarted: func() { post(h.onLoadStarted) },
		OnLoadFinished: func(status string) {
			post(func() { h.onLoadFinished(status) })
		},
		OnResourceRequested: func(res *types.Resource) {
			post(func() { h.emit(types.NewResourceEvent(types.EventResourceRequested, res)) })
		},
		OnResourceReceived: func(res *types.Resource) {
			post(func() { h.emit(types.NewResourceEvent(types.EventResourceReceived, res)) })
		},
		OnAlert: func(msg string) {
			post(func() {
				h.log.Log("Alert: %s", msg)
				h.emit(types.NewMessageEvent(types.EventAlert, msg))
			})
		},
		OnConsoleMessage: func(msg string) {
			post(func() {
				h.log.Log("console.log: %s", msg)
				h.emit(types.NewMessageEvent(types.EventConsoleLog, msg))
			})
		},
	}
}

func (h *Harness) onInitialized() {
	if h.state >= StateReporting {
		return
	}
	if script := h.cfg.HelperScript; script != "" {
		if err := h.engine.InjectScript(script); err != nil {
			h.log.Log("Unable to inject %s: %v", script, err)
		}
	}
	h.log.Log("Page object initialized")
	h.emit(types.NewEvent(types.EventInit))
}

func (h *Harness) onLoadStarted() {
	if h.state >= StateReporting {
		return
	}
	if h.state == StateOpening {
		h.transition(StateLoading)

		width, height := h.cfg.ViewportSize()
		if err := h.engine.SetViewport(width, height); err != nil {
			h.log.Log("Unable to set viewport to %dx%d: %v", width, height, err)
		}
	}
	h.log.Log("Page loading started")
	h.emit(types.NewEvent(types.EventLoadStarted))
}

// onLoadFinished is processed once per run, whatever the engine sends.
func (h *Harness) onLoadFinished(status string) {
	if h.loadSeen || h.state >= StateReporting {
		return
	}
	h.loadSeen = true
	h.transition(StateSettling)

	h.log.Log("Page loading finished (%q)", status)
	if status == engine.StatusSuccess {
		if !h.emit(types.NewStatusEvent(types.EventLoadFinished, status)) {
			return
		}
	} else {
		if err := h.store.AddNotice(fmt.Sprintf("Page loading failed (%q)", status)); err != nil {
			h.log.Log("Notice dropped: %v", err)
		}
		if !h.emit(types.NewStatusEvent(types.EventLoadFailed, status)) {
			return
		}
	}

	h.tracker.LoadFinished()
}

func (h *Harness) onSettled() {
	h.finish(metrics.CompletionSettled)
}

func (h *Harness) onTimeout() {
	if h.reported {
		return
	}
	// A debounce due at the same instant has settled the page already.
	if h.tracker.Due() {
		h.finish(metrics.CompletionSettled)
		return
	}
	h.log.Log("Timeout of %d s was reached!", h.cfg.Timeout)
	h.finish(metrics.CompletionTimeout)
}

// finish reports the run. Only the first trigger is honored.
func (h *Harness) finish(completion metrics.Completion) {
	if h.reported || h.state == StateTornDown {
		return
	}
	h.reported = true
	h.transition(StateReporting)
	h.tracker.Stop()

	if !h.emit(types.NewEvent(types.EventReport)) {
		return
	}
	h.store.Freeze()

	elapsed := h.clock.Since(h.start)
	h.log.Log("phantomas work done in %d ms", elapsed.Milliseconds())

	rep := h.store.Snapshot(h.cfg.URL)
	rep.Completion = completion
	rep.Duration = elapsed

	if !h.emit(types.NewResultsEvent(rep)) {
		return
	}

	h.log.Log("Formatting results (%s) with %d metric(s)...", h.cfg.Format, len(rep.Metrics))
	out, err := h.renderer.Render(rep)
	if err != nil {
		h.err = fmt.Errorf("failed to render results: %w", err)
		h.log.Errorf("render failed: %v", err)
	} else {
		h.log.Echo(out)
	}

	h.result = rep
	h.teardown()
	h.complete()
}

func (h *Harness) complete() {
	switch {
	case h.onDone != nil:
		h.onDone(h.result)
	case h.exit != nil:
		code := 0
		if h.err != nil {
			code = 1
		}
		h.exit(code)
	}
}
