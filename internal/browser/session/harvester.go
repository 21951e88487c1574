// internal/browser/session/harvester.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

const networkIdleCheckFrequency = 100 * time.Millisecond

// Harvester listens to CDP events for one tab. It tracks in-flight requests
// for idle detection, captures the main document response and buffers console
// errors and failed requests.
type Harvester struct {
	logger *zap.Logger

	sessionCtx     context.Context
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	mu        sync.RWMutex
	inflight  map[network.RequestID]string
	mainFrame cdp.FrameID
	// documentReq is the request id of the latest main frame navigation.
	documentReq network.RequestID
	response    *schemas.NavigationResponse

	events    *eventBuffer
	isStarted bool
}

// NewHarvester creates a harvester for the tab carried by sessionCtx.
func NewHarvester(sessionCtx context.Context, logger *zap.Logger, bufferSize int) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		sessionCtx: sessionCtx,
		logger:     logger.Named("harvester"),
		inflight:   make(map[network.RequestID]string),
		events:     newEventBuffer(bufferSize),
	}
}

// Start registers the event listener and enables the CDP domains it needs.
func (h *Harvester) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.isStarted {
		h.mu.Unlock()
		return nil
	}
	h.listenerCtx, h.cancelListener = context.WithCancel(h.sessionCtx)
	h.mu.Unlock()

	chromedp.ListenTarget(h.listenerCtx, h.dispatch)

	runCtx, cancel := CombineContext(h.sessionCtx, ctx)
	defer cancel()

	var frameID cdp.FrameID
	err := chromedp.Run(runCtx,
		network.Enable(),
		runtime.Enable(),
		log.Enable(),
		chromedp.ActionFunc(func(c context.Context) error {
			tree, err := page.GetFrameTree().Do(c)
			if err != nil {
				return err
			}
			if tree != nil && tree.Frame != nil {
				frameID = tree.Frame.ID
			}
			return nil
		}),
	)
	if err != nil {
		h.cancelListener()
		return fmt.Errorf("enabling event domains: %w", err)
	}

	h.mu.Lock()
	h.mainFrame = frameID
	h.isStarted = true
	h.mu.Unlock()
	h.logger.Debug("Harvester started and listening for events.", zap.String("main_frame", string(frameID)))
	return nil
}

// Stop removes the event listener. Buffered events remain drainable.
func (h *Harvester) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelListener != nil {
		h.cancelListener()
		h.cancelListener = nil
	}
	h.isStarted = false
}

func (h *Harvester) dispatch(ev interface{}) {
	switch e := ev.(type) {
	// -- Network Events --
	case *network.EventRequestWillBeSent:
		h.handleRequestWillBeSent(e)
	case *network.EventResponseReceived:
		h.handleResponseReceived(e)
	case *network.EventLoadingFinished:
		h.handleLoadingFinished(e)
	case *network.EventLoadingFailed:
		h.handleLoadingFailed(e)

	// -- Console and Runtime Events --
	case *runtime.EventConsoleAPICalled:
		h.handleConsoleAPICalled(e)
	case *runtime.EventExceptionThrown:
		h.handleExceptionThrown(e)
	case *log.EventEntryAdded:
		h.handleLogEntryAdded(e)
	}
}

// ResetResponse forgets the captured main document response before a navigation.
func (h *Harvester) ResetResponse() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.response = nil
	h.documentReq = ""
}

// Response returns a copy of the latest main document response, or nil.
func (h *Harvester) Response() *schemas.NavigationResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.response == nil {
		return nil
	}
	cp := *h.response
	cp.Headers = h.response.Headers.Clone()
	return &cp
}

// Inflight returns the number of requests that have neither finished nor failed.
func (h *Harvester) Inflight() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.inflight)
}

// Drain empties the event buffer.
func (h *Harvester) Drain() schemas.EventBatch {
	return h.events.drain()
}

// WaitNetworkIdle blocks until no request has been in flight for quietPeriod,
// or ctx is done.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	ticker := time.NewTicker(networkIdleCheckFrequency)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := h.Inflight(); n > 0 {
				lastActivity = time.Now()
				continue
			}
			if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

// -- Event Handlers --

func (h *Harvester) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	url := ""
	if e.Request != nil {
		url = e.Request.URL
	}
	h.inflight[e.RequestID] = url

	if e.Type == network.ResourceTypeDocument && h.isMainFrame(e.FrameID) {
		h.documentReq = e.RequestID
	}
}

func (h *Harvester) handleResponseReceived(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	isDocument := e.Type == network.ResourceTypeDocument && h.isMainFrame(e.FrameID)
	if e.RequestID != h.documentReq && !(h.documentReq == "" && isDocument) {
		return
	}
	h.response = &schemas.NavigationResponse{
		URL:        e.Response.URL,
		StatusCode: int(e.Response.Status),
		Protocol:   e.Response.Protocol,
		Headers:    toHTTPHeader(e.Response.Headers),
	}
}

func (h *Harvester) handleLoadingFinished(e *network.EventLoadingFinished) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inflight, e.RequestID)
}

func (h *Harvester) handleLoadingFailed(e *network.EventLoadingFailed) {
	h.mu.Lock()
	url := h.inflight[e.RequestID]
	delete(h.inflight, e.RequestID)
	h.mu.Unlock()

	// Aborted requests are the normal side effect of navigating away.
	if e.Canceled {
		return
	}
	h.events.add(schemas.PageEvent{
		Kind:      schemas.EventRequestFailed,
		Message:   e.ErrorText,
		URL:       url,
		Timestamp: time.Now(),
	})
}

// isMainFrame must be called with h.mu held.
func (h *Harvester) isMainFrame(id cdp.FrameID) bool {
	return h.mainFrame == "" || id == h.mainFrame
}

// -- Console and Log Handlers --

func (h *Harvester) handleConsoleAPICalled(e *runtime.EventConsoleAPICalled) {
	if e.Type != runtime.APITypeError {
		return
	}
	var text strings.Builder
	for i, arg := range e.Args {
		if i > 0 {
			text.WriteString(" ")
		}
		var val interface{}
		if arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil {
			text.WriteString(fmt.Sprintf("%v", val))
		} else if arg.Description != "" {
			text.WriteString(arg.Description)
		} else {
			text.WriteString(fmt.Sprintf("[%s]", arg.Type))
		}
	}
	ts := time.Now()
	if e.Timestamp != nil {
		ts = e.Timestamp.Time()
	}
	h.events.add(schemas.PageEvent{Kind: schemas.EventConsoleError, Message: text.String(), Timestamp: ts})
}

func (h *Harvester) handleExceptionThrown(e *runtime.EventExceptionThrown) {
	if e.ExceptionDetails == nil {
		return
	}
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}
	ts := time.Now()
	if e.Timestamp != nil {
		ts = e.Timestamp.Time()
	}
	h.events.add(schemas.PageEvent{
		Kind:      schemas.EventConsoleError,
		Message:   text,
		URL:       e.ExceptionDetails.URL,
		Timestamp: ts,
	})
}

func (h *Harvester) handleLogEntryAdded(e *log.EventEntryAdded) {
	if e.Entry == nil || e.Entry.Level != log.LevelError {
		return
	}
	ts := time.Now()
	if e.Entry.Timestamp != nil {
		ts = e.Entry.Timestamp.Time()
	}
	h.events.add(schemas.PageEvent{
		Kind:      schemas.EventConsoleError,
		Message:   e.Entry.Text,
		URL:       e.Entry.URL,
		Timestamp: ts,
	})
}

// -- Helpers --

// toHTTPHeader converts CDP headers. Chrome joins repeated headers with newlines.
func toHTTPHeader(headers network.Headers) http.Header {
	out := make(http.Header, len(headers))
	for name, raw := range headers {
		value := fmt.Sprint(raw)
		for _, v := range strings.Split(value, "\n") {
			out.Add(name, v)
		}
	}
	return out
}
