// internal/analysis/accessibility/auditor.go
package accessibility

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
	"github.com/xkilldash9x/comet-monkey/internal/config"
)

const defaultAxeTimeout = 15 * time.Second

var errNoDocument = errors.New("document content unavailable")

// axeEquivalents maps custom check ids to the axe rule ids that cover the same
// ground. A trailing "*" matches by prefix.
var axeEquivalents = map[string][]string{
	CheckPageLanguage:  {"html-has-lang", "html-lang-valid"},
	CheckImageAlt:      {"image-alt"},
	CheckFormLabels:    {"label"},
	CheckHeadings:      {"heading-order"},
	CheckColorContrast: {"color-contrast"},
	CheckARIA:          {"aria-*"},
}

// Auditor checks WCAG 2.1 A/AA conformance. axe-core is the primary engine;
// a custom battery covers the common rules when axe cannot be loaded and
// supplements it otherwise.
type Auditor struct {
	*core.BaseAuditor
	axeSource  string
	axeTimeout time.Duration
}

var _ core.Auditor = (*Auditor)(nil)

func NewAuditor(cfg config.AccessibilityConfig, logger *zap.Logger) *Auditor {
	a := &Auditor{
		BaseAuditor: core.NewBaseAuditor(schemas.AuditAccessibility, "WCAG 2.1 A/AA compliance", logger),
		axeSource:   cfg.AxeSource,
		axeTimeout:  cfg.AxeTimeout,
	}
	if a.axeSource == "" {
		a.axeSource = DefaultAxeSource
	}
	if a.axeTimeout <= 0 {
		a.axeTimeout = defaultAxeTimeout
	}
	return a
}

func (a *Auditor) Audit(ctx context.Context, page schemas.Page) (*schemas.AuditResult, error) {
	result := schemas.NewAuditResult(schemas.AuditAccessibility)

	axeCtx, cancel := context.WithTimeout(ctx, a.axeTimeout)
	axe, axeErr := runAxe(axeCtx, page, a.axeSource)
	cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if axeErr != nil {
		a.Logger.Warn("axe-core unavailable, using custom checks only.", zap.Error(axeErr))
	}

	custom := core.RunChecks(ctx, a.Logger, a.customChecks(ctx, page))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if axe == nil {
		result.Findings = custom
	} else {
		result.Findings = combine(axe, custom)
	}
	core.Finalize(result, core.AccessibilityPenalties)

	a.Logger.Debug("Accessibility audit complete.",
		zap.Bool("axe", axe != nil),
		zap.Int("violations", len(result.Findings.Violations)),
		zap.Int("warnings", len(result.Findings.Warnings)),
		zap.Int("score", result.Score))
	return result, nil
}

// customChecks builds the fallback battery. The HTML shape checks share one
// parsed snapshot of the document.
func (a *Auditor) customChecks(ctx context.Context, page schemas.Page) []core.Check {
	doc, err := loadDocument(ctx, page)
	if err != nil {
		a.Logger.Warn("Could not read page content for accessibility checks.", zap.Error(err))
	}
	docCheck := func(fn func(*goquery.Document) []schemas.Finding) core.CheckFunc {
		return func(context.Context) ([]schemas.Finding, error) {
			if doc == nil {
				return nil, errNoDocument
			}
			return fn(doc), nil
		}
	}
	pageCheck := func(fn func(context.Context, schemas.Page) ([]schemas.Finding, error)) core.CheckFunc {
		return func(ctx context.Context) ([]schemas.Finding, error) {
			return fn(ctx, page)
		}
	}
	return []core.Check{
		{ID: CheckImageAlt, Run: docCheck(checkImageAlt)},
		{ID: CheckFormLabels, Run: docCheck(checkFormLabels)},
		{ID: CheckHeadings, Run: docCheck(checkHeadings)},
		{ID: CheckColorContrast, Run: pageCheck(checkColorContrast)},
		{ID: CheckARIA, Run: docCheck(checkARIA)},
		{ID: CheckFocusStyles, Run: pageCheck(checkFocusStyles)},
		{ID: CheckPageLanguage, Run: docCheck(checkPageLanguage)},
	}
}

func loadDocument(ctx context.Context, page schemas.Page) (*goquery.Document, error) {
	html, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return doc, nil
}

// combine treats axe as authoritative for violations and passes. Custom
// warnings and incomplete findings are appended when axe has no rule for the
// same concern.
func combine(axe *axeResults, custom schemas.Findings) schemas.Findings {
	out := axe.findings()
	seen := axe.ids()
	for _, bucket := range [][]schemas.Finding{custom.Warnings, custom.Incomplete} {
		for _, f := range bucket {
			if coveredByAxe(f.ID, seen) {
				continue
			}
			_ = out.Add(f)
		}
	}
	return out
}

func coveredByAxe(checkID string, axeIDs map[string]bool) bool {
	if axeIDs[checkID] {
		return true
	}
	for _, rule := range axeEquivalents[checkID] {
		if prefix, ok := strings.CutSuffix(rule, "*"); ok {
			for id := range axeIDs {
				if strings.HasPrefix(id, prefix) {
					return true
				}
			}
			continue
		}
		if axeIDs[rule] {
			return true
		}
	}
	return false
}
