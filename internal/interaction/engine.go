// internal/interaction/engine.go
package interaction

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// -- Structs and Types --

// Phase is a state of the interaction state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDiscovering Phase = "discovering"
	PhaseForms       Phase = "interacting_forms"
	PhaseLinks       Phase = "interacting_links"
	PhaseButtons     Phase = "interacting_buttons"
	PhaseDone        Phase = "done"
)

// Settle delays applied after DOM changing actions.
const (
	DefaultFormSettle   = 1000 * time.Millisecond
	DefaultButtonSettle = 500 * time.Millisecond
	// maxLinkIdleWait caps how long a link click waits for network quiescence.
	maxLinkIdleWait = 5 * time.Second
)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine explores a page in a fixed phase order (forms, links, buttons) under a
// global interaction budget. An Engine holds no per-run state and can be
// shared; each Run gets its own caller-owned State.
type Engine struct {
	logger       *zap.Logger
	opts         schemas.EngineOptions
	sleep        SleepFunc
	formSettle   time.Duration
	buttonSettle time.Duration
	onPhase      func(Phase)
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleeper replaces the context-aware sleep used for all delays.
func WithSleeper(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithSettleDelays overrides the post-submit and post-click settle delays.
func WithSettleDelays(form, button time.Duration) Option {
	return func(e *Engine) {
		e.formSettle = form
		e.buttonSettle = button
	}
}

// WithPhaseObserver registers a callback invoked on every state transition.
func WithPhaseObserver(fn func(Phase)) Option {
	return func(e *Engine) { e.onPhase = fn }
}

// NewEngine validates the options and builds an Engine.
func NewEngine(opts schemas.EngineOptions, logger *zap.Logger, options ...Option) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid interaction options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:       logger.Named("interaction"),
		opts:         opts,
		sleep:        hesitate,
		formSettle:   DefaultFormSettle,
		buttonSettle: DefaultButtonSettle,
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// run carries the state of a single Run invocation.
type run struct {
	e        *Engine
	page     schemas.Page
	state    *State
	log      *zap.Logger
	startURL string
	elements Elements
}

// -- Orchestration Logic --

// Run resets state, discovers the page, and interacts with forms, links and
// buttons in that order until the budget is exhausted or the candidates run out.
//
// Per-element failures are recorded in state.Errors and never abort the run.
// Discovery failures and failures to return to the start page are fatal and
// returned. If ctx is cancelled the run stops at the next checkpoint and the
// context error is returned together with the partial summary.
func (e *Engine) Run(ctx context.Context, page schemas.Page, state *State) (*schemas.InteractionSummary, error) {
	if state == nil {
		return nil, errors.New("interaction state must not be nil")
	}
	state.Reset()
	e.transition(PhaseIdle)

	r := &run{e: e, page: page, state: state, log: e.logger}

	e.transition(PhaseDiscovering)
	startURL, err := page.CurrentURL(ctx)
	if err != nil {
		return state.Summary(), fmt.Errorf("%w: reading current url: %v", ErrDiscovery, err)
	}
	r.startURL = startURL
	r.log = e.logger.With(zap.String("start_url", startURL))

	if r.elements, err = Discover(ctx, page); err != nil {
		return state.Summary(), err
	}
	r.log.Debug("Discovered interactive elements.",
		zap.Int("forms", len(r.elements.Forms)),
		zap.Int("links", len(r.elements.Links)),
		zap.Int("buttons", len(r.elements.Buttons)),
		zap.Int("inputs", len(r.elements.Inputs)),
	)

	phases := []struct {
		phase Phase
		share func(remaining int) int
		fn    func(ctx context.Context, limit int) error
	}{
		{PhaseForms, half, r.formsPhase},
		{PhaseLinks, half, r.linksPhase},
		{PhaseButtons, all, r.buttonsPhase},
	}

	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			e.transition(PhaseDone)
			return state.Summary(), err
		}
		remaining := r.remaining()
		if remaining <= 0 {
			r.log.Debug("Interaction budget exhausted.", zap.Int("max_interactions", e.opts.MaxInteractions))
			break
		}
		e.transition(p.phase)
		if err := p.fn(ctx, p.share(remaining)); err != nil {
			e.transition(PhaseDone)
			return state.Summary(), err
		}
	}

	e.transition(PhaseDone)
	summary := state.Summary()
	r.log.Info("Interaction run complete.",
		zap.Int("interactions", summary.InteractionsPerformed),
		zap.Int("forms", summary.FormsTested),
		zap.Int("links", summary.LinksVisited),
		zap.Int("buttons", summary.ButtonsClicked),
		zap.Int("errors", len(summary.Errors)),
	)
	return summary, ctx.Err()
}

func (e *Engine) transition(p Phase) {
	e.logger.Debug("Interaction phase.", zap.String("phase", string(p)))
	if e.onPhase != nil {
		e.onPhase(p)
	}
}

func half(remaining int) int { return (remaining + 1) / 2 }
func all(remaining int) int  { return remaining }

func (r *run) remaining() int {
	return r.e.opts.MaxInteractions - r.state.attempts
}

// checkpoint reports whether another element may be attempted in a phase with
// the given sub-budget.
func (r *run) checkpoint(ctx context.Context, used, limit int) bool {
	return ctx.Err() == nil && used < limit && r.remaining() > 0
}

// attempt charges one budget unit and runs fn under the per-interaction
// timeout. Failures are recorded, not returned, unless the parent context
// was cancelled.
func (r *run) attempt(ctx context.Context, kind schemas.InteractionType, target string, fn func(ctx context.Context) error) (ok bool) {
	r.state.attempts++
	opCtx, cancel := context.WithTimeout(ctx, r.e.opts.TimeoutDuration())
	err := fn(opCtx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		r.log.Warn("Interaction failed.",
			zap.String("type", string(kind)),
			zap.String("target", target),
			zap.Error(err))
		r.state.recordError(kind, target, err)
		return false
	}
	r.state.succeeded++
	return true
}

// refresh returns to the start page if an interaction navigated away and
// takes a fresh discovery pass. Both failures are fatal for the run.
func (r *run) refresh(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	current, err := r.page.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading current url: %v", schemas.ErrPageUnreachable, err)
	}
	if !SameDocument(current, r.startURL) {
		r.log.Debug("Navigated away, returning to start page.", zap.String("current_url", current))
		if _, err := r.page.Navigate(ctx, r.startURL); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: returning to %s: %v", schemas.ErrPageUnreachable, r.startURL, err)
		}
	}
	elements, err := Discover(ctx, r.page)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("rediscovering %s: %w", r.startURL, err)
	}
	r.elements = elements
	return nil
}

func (r *run) pause(ctx context.Context, d time.Duration) {
	if err := r.e.sleep(ctx, d); err != nil {
		r.log.Debug("Pause interrupted.", zap.Error(err))
	}
}

// nextCandidate returns the first element not yet interacted with and not skipped in this phase.
func (r *run) nextCandidate(list []schemas.DiscoveredElement, skipped map[string]bool) (schemas.DiscoveredElement, bool) {
	for _, el := range list {
		if r.state.InteractedElements[el.LocatorKey] || skipped[el.LocatorKey] {
			continue
		}
		return el, true
	}
	return schemas.DiscoveredElement{}, false
}

// -- Forms --

func (r *run) formsPhase(ctx context.Context, limit int) error {
	used := 0
	for r.checkpoint(ctx, used, limit) {
		form, ok := r.nextCandidate(r.elements.Forms, nil)
		if !ok {
			return nil
		}
		r.state.markInteracted(form.LocatorKey)
		used++

		submitted := false
		r.attempt(ctx, schemas.InteractionForm, form.LocatorKey, func(opCtx context.Context) error {
			var err error
			submitted, err = r.interactForm(opCtx, form)
			return err
		})
		r.pause(ctx, r.e.opts.Delay())

		if submitted {
			if err := r.refresh(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// interactForm fills every fillable field, then submits if an enabled submit
// control exists. The form is always recorded once its fields were resolved.
func (r *run) interactForm(ctx context.Context, form schemas.DiscoveredElement) (bool, error) {
	fields, err := r.page.QueryWithin(ctx, form.LocatorKey, FieldSelector)
	if err != nil {
		return false, fmt.Errorf("resolving fields of form %s: %w", form.FormID, err)
	}
	fillable := FillableFields(fields)

	for _, field := range fillable {
		if err := r.fillField(ctx, field); err != nil {
			// Disabled or hidden fields are expected; the form continues.
			r.log.Debug("Field fill failed.",
				zap.String("form", form.FormID),
				zap.String("field", field.Locator),
				zap.Error(err))
		}
	}

	submitted, submitErr := r.submitForm(ctx, form)
	r.state.FormsFilled = append(r.state.FormsFilled, schemas.FormRecord{
		ID:        form.FormID,
		Fields:    len(fillable),
		Submitted: submitted,
	})
	if submitErr != nil {
		return submitted, fmt.Errorf("submitting form %s: %w", form.FormID, submitErr)
	}
	return submitted, nil
}

func (r *run) fillField(ctx context.Context, field schemas.ElementSnapshot) error {
	if !field.Enabled {
		return fmt.Errorf("field %s is disabled", field.Locator)
	}
	typ := field.InputType()
	value := GenerateValue(typ, field.Attr("placeholder"), field.Attr("name"))

	switch {
	case typ == "checkbox" || typ == "radio" || value.Check:
		return r.page.Check(ctx, field.Locator)
	case field.Tag == "select":
		option := firstOption(field.Options)
		if option == "" {
			return fmt.Errorf("select %s has no selectable option", field.Locator)
		}
		return r.page.SelectOption(ctx, field.Locator, option)
	default:
		return r.page.Fill(ctx, field.Locator, value.Text)
	}
}

func (r *run) submitForm(ctx context.Context, form schemas.DiscoveredElement) (bool, error) {
	submits, err := r.page.QueryWithin(ctx, form.LocatorKey, SubmitSelector)
	if err != nil {
		return false, err
	}
	if len(submits) == 0 || !submits[0].Enabled {
		return false, nil
	}
	control := submits[0]
	if err := r.page.Click(ctx, control.Locator); err != nil {
		return false, err
	}
	r.state.markInteracted(control.Locator)
	r.pause(ctx, r.e.formSettle)
	return true, nil
}

func firstOption(options []string) string {
	for _, o := range options {
		if strings.TrimSpace(o) != "" {
			return o
		}
	}
	return ""
}

// -- Links --

func (r *run) linksPhase(ctx context.Context, limit int) error {
	used := 0
	skipped := make(map[string]bool)
	for r.checkpoint(ctx, used, limit) {
		link, ok := r.nextCandidate(r.elements.Links, skipped)
		if !ok {
			return nil
		}

		if reason := skipLinkReason(link.Href); reason != "" {
			skipped[link.LocatorKey] = true
			r.log.Debug("Skipping link.", zap.String("href", link.Href), zap.String("reason", reason))
			continue
		}
		key := VisitKey(link)
		if r.state.VisitedURLs[key] {
			skipped[link.LocatorKey] = true
			r.log.Debug("Skipping already visited link.", zap.String("url", key))
			continue
		}

		r.state.markInteracted(link.LocatorKey)
		r.state.VisitedURLs[key] = true
		used++

		r.attempt(ctx, schemas.InteractionLink, link.LocatorKey, func(opCtx context.Context) error {
			return r.followLink(opCtx, link)
		})
		r.pause(ctx, r.e.opts.Delay())

		if err := r.refresh(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) followLink(ctx context.Context, link schemas.DiscoveredElement) error {
	if err := r.page.Click(ctx, link.LocatorKey); err != nil {
		return err
	}
	r.state.LinksClicked = append(r.state.LinksClicked, schemas.LinkRecord{Text: link.Text, Href: link.Href})

	wait := r.e.opts.TimeoutDuration()
	if wait > maxLinkIdleWait {
		wait = maxLinkIdleWait
	}
	if err := r.page.WaitNetworkIdle(ctx, wait); err != nil {
		// A busy network after a click is not a failed interaction.
		r.log.Debug("Network did not go idle after link click.", zap.String("href", link.Href), zap.Error(err))
	}
	return nil
}

// skipLinkReason returns why a link must not be followed, or "" to follow it.
func skipLinkReason(href string) string {
	h := strings.ToLower(strings.TrimSpace(href))
	switch {
	case h == "":
		return "empty href"
	case strings.HasPrefix(h, "#"):
		return "fragment"
	case strings.HasPrefix(h, "javascript:"):
		return "script url"
	case strings.HasPrefix(h, "mailto:"), strings.HasPrefix(h, "tel:"):
		return "non-navigational scheme"
	}
	return ""
}

// VisitKey is the identity used for visited-URL tracking: the resolved URL
// without its fragment, falling back to the raw href.
func VisitKey(link schemas.DiscoveredElement) string {
	raw := link.URL
	if raw == "" {
		raw = link.Href
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// SameDocument compares two URLs ignoring fragments.
func SameDocument(a, b string) bool {
	return VisitKey(schemas.DiscoveredElement{URL: a}) == VisitKey(schemas.DiscoveredElement{URL: b})
}

// -- Buttons --

func (r *run) buttonsPhase(ctx context.Context, limit int) error {
	used := 0
	skipped := make(map[string]bool)
	for r.checkpoint(ctx, used, limit) {
		button, ok := r.nextCandidate(r.elements.Buttons, skipped)
		if !ok {
			return nil
		}
		label := button.Label()
		if label == "" {
			skipped[button.LocatorKey] = true
			r.log.Debug("Skipping button without a label.", zap.String("locator", button.LocatorKey))
			continue
		}

		// Re-resolve by text; the discovered locator may be stale by now.
		resolved, err := r.resolveButton(ctx, button, label)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.state.markInteracted(button.LocatorKey)
			r.state.attempts++
			used++
			r.log.Warn("Interaction failed.", zap.String("type", string(schemas.InteractionButton)),
				zap.String("target", label), zap.Error(err))
			r.state.recordError(schemas.InteractionButton, label, err)
			continue
		}
		if resolved == nil || !resolved.Enabled || r.state.InteractedElements[resolved.Locator] {
			skipped[button.LocatorKey] = true
			r.log.Debug("Skipping button that is gone, disabled, or already used.", zap.String("text", label))
			continue
		}

		r.state.markInteracted(button.LocatorKey)
		r.state.markInteracted(resolved.Locator)
		used++

		clicked := r.attempt(ctx, schemas.InteractionButton, label, func(opCtx context.Context) error {
			if err := r.page.Click(opCtx, resolved.Locator); err != nil {
				return err
			}
			r.state.ButtonsClicked = append(r.state.ButtonsClicked, schemas.ButtonRecord{Text: label})
			return nil
		})
		if clicked {
			r.pause(ctx, r.e.buttonSettle)
		}
		r.pause(ctx, r.e.opts.Delay())

		if clicked {
			if err := r.refresh(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveButton finds the live node for a discovered button by its label.
// Several buttons can share a label, so when the first match is not the
// discovered node the discovered node is preferred, then any same-label node
// not yet used in this run.
func (r *run) resolveButton(ctx context.Context, button schemas.DiscoveredElement, label string) (*schemas.ElementSnapshot, error) {
	first, err := r.page.FindByText(ctx, ButtonSelector, label)
	if err != nil || first == nil || first.Locator == button.LocatorKey {
		return first, err
	}
	visible, err := r.page.QueryVisible(ctx, ButtonSelector)
	if err != nil {
		return nil, err
	}
	var fallback *schemas.ElementSnapshot
	if !r.state.InteractedElements[first.Locator] {
		fallback = first
	}
	for _, snap := range visible {
		if classifyButton(snap).Label() != label {
			continue
		}
		if snap.Locator == button.LocatorKey {
			return &snap, nil
		}
		if fallback == nil && !r.state.InteractedElements[snap.Locator] {
			fallback = &snap
		}
	}
	return fallback, nil
}

// hesitate pauses for the given duration, respecting context cancellation.
func hesitate(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
