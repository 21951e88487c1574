// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/accessibility"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/performance"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/security"
	"github.com/xkilldash9x/comet-monkey/internal/config"
	"github.com/xkilldash9x/comet-monkey/internal/interaction"
	"github.com/xkilldash9x/comet-monkey/internal/observability"
)

// Interactor drives the automated exploration of a loaded page.
type Interactor interface {
	Run(ctx context.Context, page schemas.Page, state *interaction.State) (*schemas.InteractionSummary, error)
}

// Orchestrator runs the navigate, screenshot, interact and audit pipeline for
// each target, one isolated page session per target.
type Orchestrator struct {
	cfg        config.Interface
	logger     *zap.Logger
	browser    schemas.BrowserManager
	interactor Interactor
	auditors   []core.Auditor
	store      schemas.Store
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithAuditors replaces the audits enabled in config.
func WithAuditors(auditors ...core.Auditor) Option {
	return func(o *Orchestrator) { o.auditors = append([]core.Auditor{}, auditors...) }
}

// WithStore persists every page report as it completes.
func WithStore(store schemas.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

func WithInteractor(i Interactor) Option {
	return func(o *Orchestrator) { o.interactor = i }
}

// WithClock is used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New wires an orchestrator. Unless overridden, the interaction engine and the
// audits are built from cfg.
func New(cfg config.Interface, logger *zap.Logger, browser schemas.BrowserManager, opts ...Option) (*Orchestrator, error) {
	if cfg == nil || logger == nil || browser == nil {
		return nil, errors.New("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger.Named("orchestrator"),
		browser: browser,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.interactor == nil {
		engine, err := interaction.NewEngine(cfg.Interaction(), logger.Named("interaction"))
		if err != nil {
			return nil, fmt.Errorf("building interaction engine: %w", err)
		}
		o.interactor = engine
	}
	if o.auditors == nil {
		o.auditors = DefaultAuditors(cfg.Audits(), logger)
	}

	launchRate := cfg.Browser().LaunchRate
	if launchRate <= 0 {
		o.limiter = rate.NewLimiter(rate.Inf, 1)
	} else {
		o.limiter = rate.NewLimiter(rate.Limit(launchRate), 1)
	}
	return o, nil
}

// DefaultAuditors returns the enabled audits in report order.
func DefaultAuditors(cfg config.AuditsConfig, logger *zap.Logger) []core.Auditor {
	var auditors []core.Auditor
	if cfg.Accessibility.Enabled {
		auditors = append(auditors, accessibility.NewAuditor(cfg.Accessibility, logger.Named("accessibility")))
	}
	if cfg.Performance.Enabled {
		auditors = append(auditors, performance.NewAuditor(cfg.Performance, logger.Named("performance")))
	}
	if cfg.Security.Enabled {
		auditors = append(auditors, security.NewAuditor(cfg.Security, logger.Named("security")))
	}
	return auditors
}

// -- Run --

// Run processes every target and returns one report per target, in target
// order. Failures of individual pages are recorded in their report; only
// context cancellation aborts the run.
func (o *Orchestrator) Run(ctx context.Context, targets []string, runID string) ([]*schemas.PageReport, error) {
	if len(targets) == 0 {
		return nil, errors.New("no targets to scan")
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	log := o.logger.With(zap.String("run_id", runID))
	log.Info("Starting run.", zap.Strings("targets", targets))

	reports := make([]*schemas.PageReport, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	concurrency := o.cfg.Browser().Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	g.SetLimit(concurrency)

	for i, target := range targets {
		g.Go(func() error {
			if err := o.limiter.Wait(gctx); err != nil {
				return err
			}
			report := o.RunPage(gctx, target, runID)
			reports[i] = report
			o.persist(gctx, report)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn("Run interrupted.", zap.Error(err))
		return compact(reports), err
	}

	for _, r := range reports {
		o.logSummary(log, r)
	}
	log.Info("Run complete.", zap.Int("pages", len(reports)))
	return reports, nil
}

// RunPage executes the full pipeline against one target. It never returns
// nil; fatal page failures are recorded in the report's Error field.
func (o *Orchestrator) RunPage(ctx context.Context, target, runID string) *schemas.PageReport {
	report := &schemas.PageReport{
		RunID:          runID,
		URL:            target,
		StartedAt:      o.now(),
		Audits:         make(map[string]*schemas.AuditResult),
		ConsoleErrors:  []schemas.PageEvent{},
		FailedRequests: []schemas.PageEvent{},
	}
	log := observability.ForTarget(o.logger, runID, target)
	defer func() { report.Duration = o.now().Sub(report.StartedAt) }()

	session, err := o.browser.NewPage(ctx)
	if err != nil {
		report.Error = fmt.Sprintf("opening page session: %v", err)
		log.Error("Could not open page session.", zap.Error(err))
		return report
	}
	defer session.Close()
	page := newEventLedger(session)
	defer func() {
		events := page.All()
		report.ConsoleErrors = events.ConsoleErrors
		report.FailedRequests = events.FailedRequests
		report.DroppedEvents = events.Dropped
	}()
	log = log.With(zap.String("session_id", session.ID()))

	resp, err := page.Navigate(ctx, target)
	if err != nil {
		err = fmt.Errorf("%w: navigating to %s: %v", schemas.ErrPageUnreachable, target, err)
		report.Error = err.Error()
		log.Error("Navigation failed.", zap.Error(err))
		return report
	}
	if resp != nil {
		report.StatusCode = resp.StatusCode
		report.FinalURL = resp.URL
	}
	if current, err := page.CurrentURL(ctx); err == nil && current != "" {
		report.FinalURL = current
	}

	if rc := o.cfg.Report(); rc.Screenshots {
		path := screenshotPath(rc.OutputDir, target, runID)
		if err := page.Screenshot(ctx, path); err != nil {
			log.Warn("Screenshot failed.", zap.String("path", path), zap.Error(err))
		} else {
			report.Screenshot = path
		}
	}

	summary, err := o.interactor.Run(ctx, page, interaction.NewState())
	report.Interactions = summary
	switch {
	case ctx.Err() != nil:
		report.Error = ctx.Err().Error()
		return report
	case errors.Is(err, schemas.ErrPageUnreachable), errors.Is(err, interaction.ErrDiscovery):
		report.Error = err.Error()
		log.Error("Lost the target page during interaction, skipping audits.", zap.Error(err))
		return report
	case err != nil:
		log.Warn("Interaction run ended early.", zap.Error(err))
	}

	for _, a := range o.auditors {
		if ctx.Err() != nil {
			report.Error = ctx.Err().Error()
			return report
		}
		report.Audits[a.Name()] = o.audit(ctx, log, a, page)
	}
	return report
}

// audit runs one auditor. A failed audit is reported with a zero score and
// its error text instead of being dropped.
func (o *Orchestrator) audit(ctx context.Context, log *zap.Logger, a core.Auditor, page schemas.Page) *schemas.AuditResult {
	start := o.now()
	result, err := a.Audit(ctx, page)
	if err != nil || result == nil {
		if err == nil {
			err = errors.New("audit returned no result")
		}
		log.Warn("Audit failed.", zap.String("audit", a.Name()), zap.Error(err))
		failed := schemas.NewAuditResult(a.Name())
		failed.Score = 0
		failed.Grade = core.GradeFor(0)
		failed.Error = err.Error()
		return failed
	}
	log.Debug("Audit finished.",
		zap.String("audit", a.Name()),
		zap.Int("score", result.Score),
		zap.Duration("took", o.now().Sub(start)))
	return result
}

func (o *Orchestrator) persist(ctx context.Context, report *schemas.PageReport) {
	if o.store == nil || report == nil {
		return
	}
	if err := o.store.PersistReport(ctx, report); err != nil {
		o.logger.Error("Failed to persist page report.",
			zap.String("run_id", report.RunID),
			zap.String("url", report.URL),
			zap.Error(err))
	}
}

func (o *Orchestrator) logSummary(log *zap.Logger, r *schemas.PageReport) {
	fields := []zap.Field{
		zap.String("url", r.URL),
		zap.Int("status", r.StatusCode),
		zap.Duration("duration", r.Duration),
	}
	for _, name := range r.AuditNames() {
		res := r.Audits[name]
		fields = append(fields, zap.String(name, fmt.Sprintf("%d (%s)", res.Score, res.Grade)))
	}
	if r.Error != "" {
		fields = append(fields, zap.String("error", r.Error))
	}
	log.Info("Page summary.", fields...)
}

func compact(reports []*schemas.PageReport) []*schemas.PageReport {
	out := make([]*schemas.PageReport, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
