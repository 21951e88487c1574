package interaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// -- Fake Page --

// fakeElement is a node in the fake DOM. selectors lists the selector
// constants the node matches; scope is the locator of its enclosing form.
type fakeElement struct {
	snap      schemas.ElementSnapshot
	selectors map[string]bool
	scope     string
	onClick   func(p *fakePage)
}

// fakePage is an in-memory schemas.Page. It records every mutating call.
type fakePage struct {
	mu         sync.Mutex
	url        string
	elements   []*fakeElement
	calls      []string
	values     map[string]string
	clickErr   map[string]error
	fillErr    map[string]error
	queryErr   error
	goneScopes map[string]bool
	navigateFn func(p *fakePage, url string)
	idleWaits  int
}

func newFakePage(url string) *fakePage {
	return &fakePage{
		url:      url,
		values:   make(map[string]string),
		clickErr: make(map[string]error),
		fillErr:  make(map[string]error),
	}
}

func (p *fakePage) add(el *fakeElement) *fakeElement {
	p.elements = append(p.elements, el)
	return el
}

func (p *fakePage) addForm(locator, id string) *fakeElement {
	attrs := map[string]string{}
	if id != "" {
		attrs["id"] = id
	}
	return p.add(&fakeElement{
		snap:      schemas.ElementSnapshot{Locator: locator, Tag: "form", Attributes: attrs, Enabled: true, Visible: true},
		selectors: map[string]bool{FormSelector: true},
	})
}

func (p *fakePage) addField(scope, locator, tag string, attrs map[string]string) *fakeElement {
	sel := map[string]bool{FieldSelector: true}
	if attrs["type"] != "hidden" {
		sel[InputSelector] = true
	}
	if tag == "input" && attrs["type"] == "submit" {
		sel[SubmitSelector] = true
		sel[ButtonSelector] = true
	}
	return p.add(&fakeElement{
		snap:      schemas.ElementSnapshot{Locator: locator, Tag: tag, Attributes: attrs, Enabled: true, Visible: true},
		selectors: sel,
		scope:     scope,
	})
}

func (p *fakePage) addSubmitButton(scope, locator, text string) *fakeElement {
	return p.add(&fakeElement{
		snap: schemas.ElementSnapshot{
			Locator: locator, Tag: "button", Text: text, Enabled: true, Visible: true,
			Attributes: map[string]string{"type": "submit"},
		},
		selectors: map[string]bool{ButtonSelector: true, SubmitSelector: true},
		scope:     scope,
	})
}

func (p *fakePage) addLink(locator, href, resolved, text string) *fakeElement {
	return p.add(&fakeElement{
		snap: schemas.ElementSnapshot{
			Locator: locator, Tag: "a", Text: text, URL: resolved, Enabled: true, Visible: true,
			Attributes: map[string]string{"href": href},
		},
		selectors: map[string]bool{LinkSelector: true},
	})
}

func (p *fakePage) addButton(locator, text string, enabled bool) *fakeElement {
	return p.add(&fakeElement{
		snap: schemas.ElementSnapshot{
			Locator: locator, Tag: "button", Text: text, Enabled: enabled, Visible: true,
			Attributes: map[string]string{"type": "button"},
		},
		selectors: map[string]bool{ButtonSelector: true},
	})
}

func (p *fakePage) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) countCalls(prefix string) int {
	n := 0
	for _, c := range p.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (p *fakePage) find(locator string) *fakeElement {
	for _, el := range p.elements {
		if el.snap.Locator == locator {
			return el
		}
	}
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) (*schemas.NavigationResponse, error) {
	p.mu.Lock()
	p.record("navigate %s", url)
	p.url = url
	fn := p.navigateFn
	p.mu.Unlock()
	if fn != nil {
		fn(p, url)
	}
	return &schemas.NavigationResponse{URL: url, StatusCode: 200}, nil
}

func (p *fakePage) Response() *schemas.NavigationResponse { return nil }

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) QueryVisible(ctx context.Context, selector string) ([]schemas.ElementSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	var out []schemas.ElementSnapshot
	for _, el := range p.elements {
		if el.selectors[selector] && el.snap.Visible {
			out = append(out, el.snap)
		}
	}
	return out, nil
}

func (p *fakePage) QueryWithin(ctx context.Context, scope, selector string) ([]schemas.ElementSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.goneScopes[scope] {
		return nil, fmt.Errorf("%w: %s", schemas.ErrElementNotFound, scope)
	}
	var out []schemas.ElementSnapshot
	for _, el := range p.elements {
		if el.scope == scope && el.selectors[selector] && el.snap.Visible {
			out = append(out, el.snap)
		}
	}
	return out, nil
}

func (p *fakePage) FindByText(ctx context.Context, selector, text string) (*schemas.ElementSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range p.elements {
		if el.selectors[selector] && el.snap.Visible && (el.snap.Text == text || el.snap.Attr("aria-label") == text) {
			snap := el.snap
			return &snap, nil
		}
	}
	return nil, nil
}

func (p *fakePage) Fill(ctx context.Context, locator, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fillErr[locator]; err != nil {
		return err
	}
	p.record("fill %s=%s", locator, value)
	p.values[locator] = value
	return nil
}

func (p *fakePage) Check(ctx context.Context, locator string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("check %s", locator)
	p.values[locator] = "checked"
	return nil
}

func (p *fakePage) SelectOption(ctx context.Context, locator, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("select %s=%s", locator, value)
	p.values[locator] = value
	return nil
}

func (p *fakePage) Click(ctx context.Context, locator string) error {
	p.mu.Lock()
	if err := p.clickErr[locator]; err != nil {
		p.mu.Unlock()
		return err
	}
	p.record("click %s", locator)
	el := p.find(locator)
	p.mu.Unlock()
	if el != nil && el.onClick != nil {
		el.onClick(p)
	}
	return nil
}

func (p *fakePage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idleWaits++
	return context.DeadlineExceeded
}

func (p *fakePage) Cookies(ctx context.Context) ([]schemas.Cookie, error)              { return nil, nil }
func (p *fakePage) Evaluate(ctx context.Context, script string, out interface{}) error { return nil }
func (p *fakePage) InjectScript(ctx context.Context, src string) error                 { return nil }
func (p *fakePage) Content(ctx context.Context) (string, error)                        { return "", nil }
func (p *fakePage) Screenshot(ctx context.Context, path string) error                  { return nil }
func (p *fakePage) DrainEvents() schemas.EventBatch                                    { return schemas.EventBatch{} }

var _ schemas.Page = (*fakePage)(nil)

// noSleep makes every engine delay instantaneous.
func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }
