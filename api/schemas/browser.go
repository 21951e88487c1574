package schemas

import (
	"net/http"
	"strings"
	"time"
)

// -- Browser Observation Schemas --

// ElementSnapshot is a serializable, point-in-time view of a DOM element. It
// never holds a live handle; Locator is used to resolve the element again.
type ElementSnapshot struct {
	Locator    string            `json:"locator"`
	Tag        string            `json:"tag"`
	Attributes map[string]string `json:"attributes"`
	Text       string            `json:"text"`
	// URL is the resolved href for anchors, empty otherwise.
	URL     string   `json:"url,omitempty"`
	Enabled bool     `json:"enabled"`
	Visible bool     `json:"visible"`
	Options []string `json:"options,omitempty"` // Option values, select elements only.
}

// Attr returns the attribute value or "" when absent.
func (e ElementSnapshot) Attr(name string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[name]
}

// InputType returns the lowercase type attribute, defaulting to "text" for inputs.
func (e ElementSnapshot) InputType() string {
	t := strings.ToLower(strings.TrimSpace(e.Attr("type")))
	switch e.Tag {
	case "textarea":
		return "textarea"
	case "select":
		return "select"
	case "input":
		if t == "" {
			return "text"
		}
	}
	return t
}

// NavigationResponse describes the main document response of the most recent navigation.
type NavigationResponse struct {
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code"`
	Protocol   string      `json:"protocol,omitempty"`
	Headers    http.Header `json:"headers"`
}

// Header returns a header value using case-insensitive lookup.
func (r *NavigationResponse) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// Cookie is a browser cookie as reported by the automation driver.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"-"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
	SameSite string  `json:"same_site,omitempty"`
}

// EventKind distinguishes buffered page events.
type EventKind string

const (
	EventConsoleError  EventKind = "console_error"
	EventRequestFailed EventKind = "request_failed"
)

// PageEvent is one console or network event captured during a session.
type PageEvent struct {
	Kind      EventKind `json:"kind"`
	Message   string    `json:"message"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventBatch is the drained content of a session's bounded event buffer.
type EventBatch struct {
	ConsoleErrors  []PageEvent `json:"console_errors"`
	FailedRequests []PageEvent `json:"failed_requests"`
	Dropped        int         `json:"dropped_events"`
}
