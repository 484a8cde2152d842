package types

import "github.com/entrhq/phantomas/pkg/metrics"

// EventType names an event published on the run's event bus.
// Modules may publish their own types; the constants below are the ones the
// harness itself emits.
type EventType string

const (
	EventPageBeforeOpen    EventType = "pageBeforeOpen"      // EventPageBeforeOpen is emitted right before the engine is asked to open the URL.
	EventPageOpen          EventType = "pageOpen"            // EventPageOpen is emitted once the open command was issued.
	EventInit              EventType = "init"                // EventInit indicates the page object was created and helper scripts can be injected.
	EventLoadStarted       EventType = "loadStarted"         // EventLoadStarted indicates the engine started loading the page.
	EventLoadFinished      EventType = "loadFinished"        // EventLoadFinished indicates the engine finished loading the page successfully.
	EventLoadFailed        EventType = "loadFailed"          // EventLoadFailed indicates the engine reported a load failure.
	EventResourceRequested EventType = "onResourceRequested" // EventResourceRequested carries a raw request notification from the engine.
	EventResourceReceived  EventType = "onResourceReceived"  // EventResourceReceived carries a raw response notification (start or end stage).
	EventSend              EventType = "send"                // EventSend is the normalized "request sent" event.
	EventRecv              EventType = "recv"                // EventRecv is the normalized "response fully received" event.
	EventAlert             EventType = "alert"               // EventAlert carries the text of a JavaScript alert.
	EventConsoleLog        EventType = "consoleLog"          // EventConsoleLog carries a console message from the page.
	EventReport            EventType = "report"              // EventReport is the last chance for modules to record metrics.
	EventResults           EventType = "results"             // EventResults carries the frozen report before it is rendered.
)

// Event is a single notification dispatched through the event bus.
// Which fields are populated depends on Type.
type Event struct {
	// Resource describes the request or response (onResourceRequested,
	// onResourceReceived, send, recv).
	Resource *Resource

	// Report is the frozen run report (results).
	Report *metrics.Report

	// Args holds arbitrary payload for module-defined events.
	Args []any

	// Type indicates the kind of event.
	Type EventType

	// Status is the load status reported by the engine (loadFinished, loadFailed).
	Status string

	// Message holds text content (alert, consoleLog).
	Message string
}

// NewEvent creates an event with no payload.
func NewEvent(t EventType) Event {
	return Event{Type: t}
}

// NewResourceEvent creates an event that carries a resource descriptor.
func NewResourceEvent(t EventType, res *Resource) Event {
	return Event{Type: t, Resource: res}
}

// NewStatusEvent creates a load status event.
func NewStatusEvent(t EventType, status string) Event {
	return Event{Type: t, Status: status}
}

// NewMessageEvent creates an event carrying page text (alert, console message).
func NewMessageEvent(t EventType, msg string) Event {
	return Event{Type: t, Message: msg}
}

// NewResultsEvent creates the results event.
func NewResultsEvent(report *metrics.Report) Event {
	return Event{Type: EventResults, Report: report}
}

// NewCustomEvent creates a module-defined event with positional arguments.
func NewCustomEvent(t EventType, args ...any) Event {
	return Event{Type: t, Args: args}
}

// Arg returns the i-th positional argument or nil when absent.
func (e Event) Arg(i int) any {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}
