// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// ErrElementNotFound is returned when a locator no longer resolves to an element.
var ErrElementNotFound = schemas.ErrElementNotFound

// ErrElementDisabled is returned when an action targets a disabled or read-only element.
var ErrElementDisabled = errors.New("element is disabled")

// Options tunes a single tab.
type Options struct {
	NavigationTimeout time.Duration
	// IdleTimeout bounds WaitNetworkIdle when the caller passes no timeout.
	IdleTimeout time.Duration
	QuietPeriod time.Duration
	// PostLoadWait bounds the network idle wait that follows each navigation.
	PostLoadWait    time.Duration
	Headers         map[string]string
	UserAgent       string
	ViewportWidth   int
	ViewportHeight  int
	EventBufferSize int
}

func (o Options) withDefaults() Options {
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 10 * time.Second
	}
	if o.QuietPeriod <= 0 {
		o.QuietPeriod = 500 * time.Millisecond
	}
	return o
}

// Session is one browser tab driven over CDP. It implements schemas.Page.
type Session struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
	opts      Options
	harvester *Harvester

	mu           sync.Mutex
	lastResponse *schemas.NavigationResponse
	isClosed     bool
	onClose      func()
}

var _ schemas.Page = (*Session)(nil)

// New opens a tab in the browser carried by browserCtx and starts listening
// for its events. onClose may be nil.
func New(ctx, browserCtx context.Context, logger *zap.Logger, opts Options, onClose func()) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	sessionID := uuid.New().String()
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	s := &Session{
		id:      sessionID,
		ctx:     tabCtx,
		cancel:  cancel,
		logger:  logger.With(zap.String("session_id", sessionID)),
		opts:    opts,
		onClose: onClose,
	}
	s.harvester = NewHarvester(tabCtx, s.logger, opts.EventBufferSize)

	if err := s.initialize(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.logger.Debug("Browser session initialized.")
	return s, nil
}

func (s *Session) initialize(ctx context.Context) error {
	// Running the first action creates the target.
	if err := s.harvester.Start(ctx); err != nil {
		return fmt.Errorf("starting event harvester: %w", err)
	}

	var actions []chromedp.Action
	if len(s.opts.Headers) > 0 {
		headers := make(network.Headers, len(s.opts.Headers))
		for k, v := range s.opts.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if s.opts.ViewportWidth > 0 && s.opts.ViewportHeight > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(int64(s.opts.ViewportWidth), int64(s.opts.ViewportHeight), 1, false))
	}
	if s.opts.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(s.opts.UserAgent))
	}
	if len(actions) == 0 {
		return nil
	}
	if err := s.runActions(ctx, actions...); err != nil {
		return fmt.Errorf("applying session settings: %w", err)
	}
	return nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Close stops event collection and closes the tab. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	if s.harvester != nil {
		s.harvester.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
}

// runActions executes chromedp actions bounded by both the session lifetime
// and the caller's context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// -- Navigation --

// Navigate loads url, waits for the load event and then for a short network
// idle window. An HTTP error status is not a navigation error.
func (s *Session) Navigate(ctx context.Context, url string) (*schemas.NavigationResponse, error) {
	s.harvester.ResetResponse()

	navCtx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()
	if err := s.runActions(navCtx, chromedp.Navigate(url)); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", url, err)
	}

	if s.opts.PostLoadWait > 0 {
		idleCtx, cancelIdle := context.WithTimeout(ctx, s.opts.PostLoadWait)
		if err := s.harvester.WaitNetworkIdle(idleCtx, s.opts.QuietPeriod); err != nil && ctx.Err() == nil {
			s.logger.Debug("Network did not settle after load.", zap.String("url", url), zap.Int("inflight", s.harvester.Inflight()))
		}
		cancelIdle()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := s.harvester.Response()
	if resp == nil {
		// Pages served from cache or about: URLs carry no network response.
		current, err := s.CurrentURL(ctx)
		if err != nil {
			current = url
		}
		resp = &schemas.NavigationResponse{URL: current}
	}

	s.mu.Lock()
	s.lastResponse = resp
	s.mu.Unlock()
	return resp, nil
}

// Response returns the latest main document response.
func (s *Session) Response() *schemas.NavigationResponse {
	if resp := s.harvester.Response(); resp != nil {
		return resp
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponse
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.runActions(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("reading current url: %w", err)
	}
	return location, nil
}

// -- Element Queries --

type queryResult struct {
	Found bool                      `json:"found"`
	Items []schemas.ElementSnapshot `json:"items"`
}

type findResult struct {
	Found bool                    `json:"found"`
	Item  schemas.ElementSnapshot `json:"item"`
}

func (s *Session) QueryVisible(ctx context.Context, selector string) ([]schemas.ElementSnapshot, error) {
	return s.query(ctx, "", selector)
}

func (s *Session) QueryWithin(ctx context.Context, scope, selector string) ([]schemas.ElementSnapshot, error) {
	return s.query(ctx, scope, selector)
}

func (s *Session) query(ctx context.Context, scope, selector string) ([]schemas.ElementSnapshot, error) {
	var res queryResult
	if err := s.runActions(ctx, chromedp.Evaluate(jsQuery(scope, selector), &res)); err != nil {
		return nil, fmt.Errorf("querying %q: %w", selector, err)
	}
	if !res.Found {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, scope)
	}
	return res.Items, nil
}

func (s *Session) FindByText(ctx context.Context, selector, text string) (*schemas.ElementSnapshot, error) {
	var res findResult
	if err := s.runActions(ctx, chromedp.Evaluate(jsFindByText(selector, text), &res)); err != nil {
		return nil, fmt.Errorf("finding %q by text: %w", selector, err)
	}
	if !res.Found {
		return nil, nil
	}
	return &res.Item, nil
}

// -- Element Actions --

func (s *Session) Fill(ctx context.Context, locator, value string) error {
	return s.runStatusScript(ctx, locator, jsFill(locator, value))
}

func (s *Session) Check(ctx context.Context, locator string) error {
	return s.runStatusScript(ctx, locator, jsCheck(locator))
}

func (s *Session) SelectOption(ctx context.Context, locator, value string) error {
	return s.runStatusScript(ctx, locator, jsSelect(locator, value))
}

// Click scrolls the element into view and dispatches a real mouse click at
// its center.
func (s *Session) Click(ctx context.Context, locator string) error {
	if err := s.runStatusScript(ctx, locator, jsPrepareClick(locator)); err != nil {
		return err
	}
	if err := s.runActions(ctx, chromedp.Click(locator, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clicking %s: %w", locator, err)
	}
	return nil
}

// runStatusScript evaluates an action script that reports its outcome as a
// short status string.
func (s *Session) runStatusScript(ctx context.Context, locator, script string) error {
	var status string
	if err := s.runActions(ctx, chromedp.Evaluate(script, &status)); err != nil {
		return fmt.Errorf("acting on %s: %w", locator, err)
	}
	return statusError(locator, status)
}

func statusError(locator, status string) error {
	switch status {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("%w: %s", ErrElementNotFound, locator)
	case "disabled":
		return fmt.Errorf("%w: %s", ErrElementDisabled, locator)
	case "no-option":
		return fmt.Errorf("option not available on %s", locator)
	default:
		return fmt.Errorf("unexpected status %q for %s", status, locator)
	}
}

// -- Waiting --

// WaitNetworkIdle waits for the quiet period with no requests in flight. A
// non-positive timeout falls back to the configured idle timeout.
func (s *Session) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.opts.IdleTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.harvester.WaitNetworkIdle(waitCtx, s.opts.QuietPeriod)
}

// -- Inspection --

func (s *Session) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	var cookies []*network.Cookie
	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	return convertCookies(cookies), nil
}

func convertCookies(in []*network.Cookie) []schemas.Cookie {
	out := make([]schemas.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

// Evaluate runs script in the page and decodes its JSON result into out,
// which may be nil. Promises are awaited.
func (s *Session) Evaluate(ctx context.Context, script string, out interface{}) error {
	err := s.runActions(ctx, chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}
	return nil
}

// InjectScript loads src with a script tag and waits for it to execute.
// Anything that is not an http(s) URL is evaluated as inline source.
func (s *Session) InjectScript(ctx context.Context, src string) error {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return s.Evaluate(ctx, src, nil)
	}
	var loaded bool
	if err := s.Evaluate(ctx, jsLoadScript(src), &loaded); err != nil {
		return fmt.Errorf("injecting %s: %w", src, err)
	}
	return nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading document content: %w", err)
	}
	return html, nil
}

// Screenshot captures the full page as PNG and writes it to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.runActions(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("capturing screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("writing screenshot: %w", err)
	}
	return nil
}

func (s *Session) DrainEvents() schemas.EventBatch {
	return s.harvester.Drain()
}
