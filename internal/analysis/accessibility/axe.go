// internal/analysis/accessibility/axe.go
package accessibility

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
)

// DefaultAxeSource is the axe-core build injected when none is configured.
const DefaultAxeSource = "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.7.2/axe.min.js"

// AxeTags are the rule tags axe runs with.
var AxeTags = []string{"wcag2a", "wcag2aa", "wcag21a", "wcag21aa"}

const maxAxeNodes = 10

// axeRunScript runs axe against the document and returns a trimmed copy of
// the three result buckets.
var axeRunScript = fmt.Sprintf(`(async () => {
	if (typeof axe === 'undefined') throw new Error('axe-core not loaded');
	const results = await axe.run(document, {
		runOnly: { type: 'tag', values: %s },
		resultTypes: ['violations', 'incomplete', 'passes'],
	});
	const target = (t) => (t || []).map(s => Array.isArray(s) ? s.join(' ') : String(s)).join(' ');
	const slim = (list) => (list || []).map(r => ({
		id: r.id,
		impact: r.impact || '',
		description: r.description || '',
		help: r.help || '',
		helpUrl: r.helpUrl || '',
		nodes: (r.nodes || []).slice(0, %d).map(n => ({
			target: target(n.target),
			html: (n.html || '').slice(0, %d),
			failureSummary: n.failureSummary || '',
		})),
	}));
	return { violations: slim(results.violations), incomplete: slim(results.incomplete), passes: slim(results.passes) };
})()`, jsStringArray(AxeTags), maxAxeNodes, core.SnippetLength)

type axeResults struct {
	Violations []axeRule `json:"violations"`
	Incomplete []axeRule `json:"incomplete"`
	Passes     []axeRule `json:"passes"`
}

type axeRule struct {
	ID          string    `json:"id"`
	Impact      string    `json:"impact"`
	Description string    `json:"description"`
	Help        string    `json:"help"`
	HelpURL     string    `json:"helpUrl"`
	Nodes       []axeNode `json:"nodes"`
}

type axeNode struct {
	Target         string `json:"target"`
	HTML           string `json:"html"`
	FailureSummary string `json:"failureSummary"`
}

// runAxe injects axe-core from source and runs it.
func runAxe(ctx context.Context, page schemas.Page, source string) (*axeResults, error) {
	if err := page.InjectScript(ctx, source); err != nil {
		return nil, fmt.Errorf("injecting axe-core: %w", err)
	}
	var res axeResults
	if err := page.Evaluate(ctx, axeRunScript, &res); err != nil {
		return nil, fmt.Errorf("running axe-core: %w", err)
	}
	return &res, nil
}

// ids returns every rule id present in any bucket.
func (r *axeResults) ids() map[string]bool {
	out := make(map[string]bool)
	for _, bucket := range [][]axeRule{r.Violations, r.Incomplete, r.Passes} {
		for _, rule := range bucket {
			out[rule.ID] = true
		}
	}
	return out
}

// findings maps violations, incomplete and passes to violation, warning and
// passed findings.
func (r *axeResults) findings() schemas.Findings {
	var fs schemas.Findings
	for _, rule := range r.Violations {
		_ = fs.Add(rule.finding(schemas.CategoryViolation))
	}
	for _, rule := range r.Incomplete {
		_ = fs.Add(rule.finding(schemas.CategoryWarning))
	}
	for _, rule := range r.Passes {
		_ = fs.Add(rule.finding(schemas.CategoryPassed))
	}
	return fs
}

func (rule axeRule) finding(category schemas.Category) schemas.Finding {
	var severity schemas.Severity
	if category.RequiresSeverity() {
		severity = ImpactSeverity(rule.Impact)
	}
	message := rule.Help
	if message == "" {
		message = rule.Description
	}
	if message == "" {
		message = rule.ID
	}
	f := schemas.Finding{
		ID:          rule.ID,
		Category:    category,
		Severity:    severity,
		Message:     message,
		Description: rule.Description,
		Nodes:       make([]schemas.Node, 0, len(rule.Nodes)),
	}
	if rule.HelpURL != "" {
		f.Recommendation = "See " + rule.HelpURL
	}
	for _, n := range rule.Nodes {
		f.Nodes = append(f.Nodes, schemas.Node{Target: n.Target, HTML: n.HTML, Message: n.FailureSummary})
	}
	return f
}

// ImpactSeverity maps an axe impact to a severity. Unknown or missing impacts
// are treated as medium.
func ImpactSeverity(impact string) schemas.Severity {
	switch strings.ToLower(impact) {
	case "critical":
		return schemas.SeverityCritical
	case "serious":
		return schemas.SeverityHigh
	case "moderate":
		return schemas.SeverityMedium
	case "minor":
		return schemas.SeverityLow
	}
	return schemas.SeverityMedium
}

func jsStringArray(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
