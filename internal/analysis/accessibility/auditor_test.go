// internal/analysis/accessibility/auditor_test.go
package accessibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/config"
	"github.com/xkilldash9x/comet-monkey/internal/mocks"
)

const fixtureHTML = `<html><body>
	<h1>Title</h1><h3>Skipped</h3>
	<img src="hero.png">
	<label for="q">Search</label><input id="q" type="search">
</body></html>`

func newTestAuditor() *Auditor {
	return NewAuditor(config.AccessibilityConfig{Enabled: true, AxeSource: "https://cdn.test/axe.js", AxeTimeout: time.Second}, zap.NewNop())
}

// stylePage wires the two style probes to clean results.
func stylePage(page *mocks.MockPage) {
	page.On("Evaluate", mock.Anything, contrastScript, mock.Anything).Run(mocks.DecodeResult(`[]`)).Return(nil)
	page.On("Evaluate", mock.Anything, focusScript, mock.Anything).Run(mocks.DecodeResult(`{"interactive":1,"hasFocusRule":true}`)).Return(nil)
}

func ids(fs []schemas.Finding) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.ID)
	}
	return out
}

func TestNewAuditor_Defaults(t *testing.T) {
	a := NewAuditor(config.AccessibilityConfig{}, nil)
	assert.Equal(t, DefaultAxeSource, a.axeSource)
	assert.Equal(t, defaultAxeTimeout, a.axeTimeout)
	assert.Equal(t, schemas.AuditAccessibility, a.Name())
}

func TestAudit_FallsBackToCustomChecksWhenAxeFails(t *testing.T) {
	page := mocks.NewMockPage()
	page.On("InjectScript", mock.Anything, "https://cdn.test/axe.js").Return(errors.New("blocked by CSP"))
	page.On("Content", mock.Anything).Return(fixtureHTML, nil)
	stylePage(page)

	result, err := newTestAuditor().Audit(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, []string{CheckImageAlt}, ids(result.Findings.Violations))
	assert.ElementsMatch(t, []string{CheckHeadings, CheckPageLanguage}, ids(result.Findings.Warnings))
	assert.ElementsMatch(t, []string{CheckFormLabels, CheckColorContrast, CheckARIA, CheckFocusStyles}, ids(result.Findings.Passed))
	// 100 - 10 - 2*5
	assert.Equal(t, 80, result.Score)
	assert.Equal(t, schemas.GradeGood, result.Grade)
	page.AssertNotCalled(t, "Evaluate", mock.Anything, axeRunScript, mock.Anything)
}

func TestAudit_AxeIsAuthoritativeAndDeduplicates(t *testing.T) {
	page := mocks.NewMockPage()
	page.On("InjectScript", mock.Anything, "https://cdn.test/axe.js").Return(nil)
	page.On("Evaluate", mock.Anything, axeRunScript, mock.Anything).Run(mocks.DecodeResult(`{
		"violations": [
			{"id":"html-has-lang","impact":"serious","help":"<html> element must have a lang attribute","helpUrl":"https://dequeuniversity.com/rules/axe/4.7/html-has-lang",
			 "nodes":[{"target":"html","html":"<html>","failureSummary":"Fix any of the following"}]},
			{"id":"image-alt","impact":"critical","help":"Images must have alternate text","nodes":[]}
		],
		"incomplete": [
			{"id":"aria-allowed-role","impact":null,"help":"ARIA role should be appropriate","nodes":[]}
		],
		"passes": [
			{"id":"label","impact":null,"help":"Form elements must have labels","nodes":[]}
		]
	}`)).Return(nil)
	page.On("Content", mock.Anything).Return(fixtureHTML, nil)
	page.On("Evaluate", mock.Anything, contrastScript, mock.Anything).Run(mocks.DecodeResult(`[]`)).Return(nil)
	page.On("Evaluate", mock.Anything, focusScript, mock.Anything).Run(mocks.DecodeResult(`{"interactive":3,"hasFocusRule":false}`)).Return(nil)

	result, err := newTestAuditor().Audit(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, []string{"html-has-lang", "image-alt"}, ids(result.Findings.Violations))
	assert.Equal(t, schemas.SeverityHigh, result.Findings.Violations[0].Severity)
	assert.Equal(t, "See https://dequeuniversity.com/rules/axe/4.7/html-has-lang", result.Findings.Violations[0].Recommendation)
	require.Len(t, result.Findings.Violations[0].Nodes, 1)

	// page-language is covered by html-has-lang; heading-hierarchy has no axe
	// counterpart in the results and is kept.
	assert.Equal(t, []string{"aria-allowed-role", CheckHeadings}, ids(result.Findings.Warnings))
	assert.Equal(t, schemas.SeverityMedium, result.Findings.Warnings[0].Severity, "missing impact maps to medium")
	assert.False(t, result.Findings.Has(CheckPageLanguage))
	assert.False(t, result.Findings.Has(CheckImageAlt), "custom violations never join axe results")

	assert.Equal(t, []string{"label"}, ids(result.Findings.Passed))
	assert.Equal(t, []string{CheckFocusStyles}, ids(result.Findings.Incomplete))

	// 100 - 2*10 - 2*5
	assert.Equal(t, 70, result.Score)
	assert.Equal(t, schemas.GradeFair, result.Grade)
}

func TestAudit_ContentFailureOmitsDocumentChecks(t *testing.T) {
	page := mocks.NewMockPage()
	page.On("InjectScript", mock.Anything, mock.Anything).Return(errors.New("offline"))
	page.On("Content", mock.Anything).Return("", errors.New("target closed"))
	stylePage(page)

	result, err := newTestAuditor().Audit(context.Background(), page)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{CheckColorContrast, CheckFocusStyles}, ids(result.Findings.Passed))
	assert.Empty(t, result.Findings.Violations)
	assert.Equal(t, 100, result.Score)
}

func TestAudit_CancelledContext(t *testing.T) {
	page := mocks.NewMockPage()
	page.On("InjectScript", mock.Anything, mock.Anything).Return(context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestAuditor().Audit(ctx, page)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoveredByAxe(t *testing.T) {
	axeIDs := map[string]bool{"html-has-lang": true, "aria-valid-attr": true, "heading-order": true}
	assert.True(t, coveredByAxe(CheckPageLanguage, axeIDs))
	assert.True(t, coveredByAxe(CheckARIA, axeIDs), "prefix match")
	assert.True(t, coveredByAxe(CheckHeadings, axeIDs))
	assert.False(t, coveredByAxe(CheckFocusStyles, axeIDs))
	assert.False(t, coveredByAxe(CheckImageAlt, axeIDs))
	assert.True(t, coveredByAxe("color-contrast", map[string]bool{"color-contrast": true}), "same id")
}

func TestImpactSeverity(t *testing.T) {
	assert.Equal(t, schemas.SeverityCritical, ImpactSeverity("critical"))
	assert.Equal(t, schemas.SeverityHigh, ImpactSeverity("serious"))
	assert.Equal(t, schemas.SeverityMedium, ImpactSeverity("moderate"))
	assert.Equal(t, schemas.SeverityLow, ImpactSeverity("Minor"))
	assert.Equal(t, schemas.SeverityMedium, ImpactSeverity(""))
}
