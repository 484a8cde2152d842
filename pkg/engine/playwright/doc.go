// Package playwright implements engine.Engine on top of Playwright.
//
// A session launches its own Chromium instance with one context and one
// page. Page events are translated into engine callbacks:
//
//   - request              -> OnResourceRequested
//   - response             -> OnResourceReceived (stage "start")
//   - requestfinished      -> OnResourceReceived (stage "end")
//   - requestfailed        -> OnResourceReceived (stage "end", failed)
//   - main frame navigated -> OnInitialized
//   - dialog               -> OnAlert (the dialog is dismissed)
//   - console              -> OnConsoleMessage
//
// Navigation runs in the background; its outcome is reported through
// OnLoadFinished with "success" or "fail".
package playwright
