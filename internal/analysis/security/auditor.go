// internal/analysis/security/auditor.go
package security

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
	"github.com/xkilldash9x/comet-monkey/internal/config"
)

// CheckDocument is reported when the page HTML cannot be read.
const CheckDocument = "document-unavailable"

var errNoDocument = errors.New("document content unavailable")

// Auditor checks response headers, transport, forms, inline scripts and
// cookies against a fixed rule table.
type Auditor struct {
	*core.BaseAuditor
}

var _ core.Auditor = (*Auditor)(nil)

func NewAuditor(_ config.SecurityConfig, logger *zap.Logger) *Auditor {
	return &Auditor{
		BaseAuditor: core.NewBaseAuditor(schemas.AuditSecurity, "OWASP-oriented headers, transport and sink checks", logger),
	}
}

func (a *Auditor) Audit(ctx context.Context, page schemas.Page) (*schemas.AuditResult, error) {
	result := schemas.NewAuditResult(schemas.AuditSecurity)

	resp := page.Response()
	pageURL := a.pageURL(ctx, page, resp)

	html, err := page.Content(ctx)
	var doc *goquery.Document
	if err == nil {
		doc, err = goquery.NewDocumentFromReader(strings.NewReader(html))
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		a.Logger.Warn("Could not read page content for security checks.", zap.Error(err))
		result.Error = err.Error()
		_ = result.Findings.Add(core.Warning(CheckDocument, schemas.SeverityLow, "Page content could not be inspected").
			WithDetails(err.Error(), "Form and script checks were skipped"))
	}

	docCheck := func(fn func(*goquery.Document) []schemas.Finding) core.CheckFunc {
		return func(context.Context) ([]schemas.Finding, error) {
			if doc == nil {
				return nil, errNoDocument
			}
			return fn(doc), nil
		}
	}
	checks := []core.Check{
		{ID: "headers", Run: func(context.Context) ([]schemas.Finding, error) {
			return checkHeaders(resp), nil
		}},
		{ID: CheckHTTPS, Run: func(context.Context) ([]schemas.Finding, error) {
			return checkHTTPS(pageURL), nil
		}},
		{ID: CheckCSRF, Run: docCheck(checkCSRF)},
		{ID: CheckPasswordTransport, Run: docCheck(func(d *goquery.Document) []schemas.Finding {
			return checkPasswordTransport(d, pageURL)
		})},
		{ID: CheckInlineScripts, Run: docCheck(checkInlineScripts)},
		{ID: "script-sinks", Run: func(ctx context.Context) ([]schemas.Finding, error) {
			if doc == nil {
				return nil, errNoDocument
			}
			return checkScriptSinks(ctx, a.Logger, doc)
		}},
		{ID: CheckCookies, Run: func(ctx context.Context) ([]schemas.Finding, error) {
			cookies, err := page.Cookies(ctx)
			if err != nil {
				return nil, fmt.Errorf("listing cookies: %w", err)
			}
			return checkCookies(cookies, pageURL), nil
		}},
	}

	core.Merge(&result.Findings, core.RunChecks(ctx, a.Logger, checks))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	core.Finalize(result, core.SecurityPenalties)

	a.Logger.Debug("Security audit complete.",
		zap.String("url", pageURL.String()),
		zap.Int("violations", len(result.Findings.Violations)),
		zap.Int("warnings", len(result.Findings.Warnings)),
		zap.Int("score", result.Score))
	return result, nil
}

// pageURL prefers the live location and falls back to the captured response.
func (a *Auditor) pageURL(ctx context.Context, page schemas.Page, resp *schemas.NavigationResponse) *url.URL {
	raw, err := page.CurrentURL(ctx)
	if err != nil || raw == "" {
		if resp != nil {
			raw = resp.URL
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		a.Logger.Debug("Unparsable page URL.", zap.String("url", raw), zap.Error(err))
		return &url.URL{}
	}
	return u
}
