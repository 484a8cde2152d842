package types

import (
	"strings"
	"time"
)

// ResourceStage marks which part of a response a notification describes.
type ResourceStage string

const (
	StageStart ResourceStage = "start" // StageStart is emitted when response headers arrive.
	StageEnd   ResourceStage = "end"   // StageEnd is emitted when the body was fully received (or the request failed).
)

// Header is a single HTTP header as reported by the engine.
type Header struct {
	Name  string
	Value string
}

// Resource describes one network request and, once received, its response.
type Resource struct {
	// Time is when the engine reported this notification.
	Time time.Time

	// Headers holds request headers on requested events and response headers on received ones.
	Headers []Header

	// URL of the request.
	URL string

	// Method is the HTTP method of the request.
	Method string

	// Stage is set on received events only.
	Stage ResourceStage

	// StatusText is the HTTP reason phrase or, for failed requests, the engine error text.
	StatusText string

	// ContentType is the response MIME type without parameters.
	ContentType string

	// RedirectURL is set for 3xx responses carrying a Location header.
	RedirectURL string

	// ID identifies the request across its requested and received notifications.
	ID int

	// Status is the HTTP status code, 0 when unknown or failed.
	Status int

	// BodySize is the number of bytes received, -1 when unknown.
	BodySize int64

	// Failed reports that the request did not complete.
	Failed bool
}

// Header returns the first header value matching name case-insensitively.
func (r *Resource) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeadersSize approximates the on-the-wire size of the headers ("Name: Value\r\n").
func (r *Resource) HeadersSize() int {
	size := 0
	for _, h := range r.Headers {
		size += len(h.Name) + len(h.Value) + 4
	}
	return size
}

// IsRedirect reports whether the response is an HTTP redirect.
func (r *Resource) IsRedirect() bool {
	return r.Status >= 300 && r.Status < 400 && r.Status != 304
}
