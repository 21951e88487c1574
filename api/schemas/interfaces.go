package schemas

import (
	"context"
	"time"
)

// -- Page Interface --

// Page is the contract the interaction engine and the audits consume from the
// browser automation layer. Implementations must be safe for sequential use by
// a single page run; they are not required to support concurrent callers.
type Page interface {
	// Navigate loads url and waits for the load event, bounded by the
	// implementation's navigation timeout.
	Navigate(ctx context.Context, url string) (*NavigationResponse, error)
	// Response returns the main document response of the latest navigation, or nil.
	Response() *NavigationResponse
	CurrentURL(ctx context.Context) (string, error)

	// QueryVisible returns snapshots of visible elements matching selector.
	QueryVisible(ctx context.Context, selector string) ([]ElementSnapshot, error)
	// QueryWithin is QueryVisible scoped to the element identified by scope.
	QueryWithin(ctx context.Context, scope, selector string) ([]ElementSnapshot, error)
	// FindByText returns the first visible element matching selector whose
	// visible text or aria-label equals text. It returns nil when none matches.
	FindByText(ctx context.Context, selector, text string) (*ElementSnapshot, error)

	Fill(ctx context.Context, locator, value string) error
	Check(ctx context.Context, locator string) error
	SelectOption(ctx context.Context, locator, value string) error
	Click(ctx context.Context, locator string) error

	// WaitNetworkIdle blocks until no requests are in flight for a quiet period
	// or the timeout elapses. A timeout returns context.DeadlineExceeded.
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error

	Cookies(ctx context.Context) ([]Cookie, error)
	// Evaluate runs a read-only expression against the live document and
	// decodes the JSON result into out. Promises are awaited.
	Evaluate(ctx context.Context, script string, out interface{}) error
	// InjectScript loads an external script by URL and waits for it to execute.
	InjectScript(ctx context.Context, src string) error
	// Content returns the serialized document HTML.
	Content(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string) error

	// DrainEvents returns and clears the buffered console and network events.
	DrainEvents() EventBatch
}

// -- Browser Interfaces --

// PageSession is a Page owned by a single target run.
type PageSession interface {
	Page
	ID() string
	// Close releases the session's tab. It is idempotent.
	Close()
}

// BrowserManager hands out isolated page sessions from one browser process.
type BrowserManager interface {
	NewPage(ctx context.Context) (PageSession, error)
	Shutdown(ctx context.Context) error
}

// -- Store Interface --

// Store persists page reports so they can be retrieved after a run.
type Store interface {
	PersistReport(ctx context.Context, report *PageReport) error
	GetReportsByRunID(ctx context.Context, runID string) ([]PageReport, error)
}
