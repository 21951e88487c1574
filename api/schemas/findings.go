package schemas

import (
	"encoding/json"
	"errors"
	"fmt"
)

// -- Finding Schemas --

// ErrInvalidFinding is returned when a finding is constructed with a category
// and severity combination that is not allowed.
var ErrInvalidFinding = errors.New("invalid finding")

// Severity represents the ordinal severity of a violation or warning.
// The values are lowercase to align with database ENUMs.
type Severity string

// Constants defining the standard severity levels for findings.
const (
	SeverityCritical Severity = "critical" // Must be fixed before release.
	SeverityHigh     Severity = "high"     // Significant impact on users or security.
	SeverityMedium   Severity = "medium"   // Noticeable but contained impact.
	SeverityLow      Severity = "low"      // Minor issue or hardening opportunity.
)

// Valid reports whether s is one of the known severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders severities from low (1) to critical (4). Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Category classifies a finding into exactly one result bucket.
type Category string

const (
	CategoryViolation  Category = "violation"  // A failed check.
	CategoryWarning    Category = "warning"    // A probable problem that needs review.
	CategoryPassed     Category = "passed"     // A confirmed-good condition.
	CategoryIncomplete Category = "incomplete" // The check could not decide.
)

// Categories lists every category in report order.
var Categories = []Category{CategoryViolation, CategoryWarning, CategoryPassed, CategoryIncomplete}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryViolation, CategoryWarning, CategoryPassed, CategoryIncomplete:
		return true
	}
	return false
}

// RequiresSeverity reports whether findings in this category must carry a severity.
func (c Category) RequiresSeverity() bool {
	return c == CategoryViolation || c == CategoryWarning
}

// Node describes one DOM location implicated by a finding.
type Node struct {
	Target  string `json:"target"`            // CSS selector or locator key.
	HTML    string `json:"html,omitempty"`    // Truncated outer HTML snippet.
	Message string `json:"message,omitempty"` // Node specific detail.
}

// Finding is a single categorized observation about page state. Use NewFinding
// to construct one so the category/severity invariant holds.
type Finding struct {
	ID             string   `json:"id"`
	Category       Category `json:"category"`
	Severity       Severity `json:"severity,omitempty"`
	Message        string   `json:"message"`
	Description    string   `json:"description,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	Nodes          []Node   `json:"nodes"`
}

// NewFinding builds and validates a finding. Severity must be set for
// violations and warnings and must be empty otherwise.
func NewFinding(id string, category Category, severity Severity, message string) (Finding, error) {
	f := Finding{
		ID:       id,
		Category: category,
		Severity: severity,
		Message:  message,
		Nodes:    []Node{},
	}
	if err := f.Validate(); err != nil {
		return Finding{}, err
	}
	return f, nil
}

// Validate checks the finding invariants.
func (f Finding) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidFinding)
	}
	if !f.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q for %s", ErrInvalidFinding, f.Category, f.ID)
	}
	if f.Category.RequiresSeverity() {
		if !f.Severity.Valid() {
			return fmt.Errorf("%w: %s finding %s requires a severity, got %q", ErrInvalidFinding, f.Category, f.ID, f.Severity)
		}
		return nil
	}
	if f.Severity != "" {
		return fmt.Errorf("%w: %s finding %s must not carry a severity", ErrInvalidFinding, f.Category, f.ID)
	}
	return nil
}

// WithDetails returns a copy with the description and recommendation set.
func (f Finding) WithDetails(description, recommendation string) Finding {
	f.Description = description
	f.Recommendation = recommendation
	return f
}

// WithNodes returns a copy carrying the given nodes.
func (f Finding) WithNodes(nodes ...Node) Finding {
	f.Nodes = append(append([]Node{}, f.Nodes...), nodes...)
	return f
}

// -- Audit Result Schemas --

// Findings groups findings by category. Insertion order within each bucket is preserved.
type Findings struct {
	Violations []Finding `json:"violations"`
	Warnings   []Finding `json:"warnings"`
	Passed     []Finding `json:"passed"`
	Incomplete []Finding `json:"incomplete"`
}

// Add appends f to the bucket that matches its category after validating it.
func (fs *Findings) Add(f Finding) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Nodes == nil {
		f.Nodes = []Node{}
	}
	switch f.Category {
	case CategoryViolation:
		fs.Violations = append(fs.Violations, f)
	case CategoryWarning:
		fs.Warnings = append(fs.Warnings, f)
	case CategoryPassed:
		fs.Passed = append(fs.Passed, f)
	case CategoryIncomplete:
		fs.Incomplete = append(fs.Incomplete, f)
	}
	return nil
}

// Bucket returns the findings for one category.
func (fs Findings) Bucket(c Category) []Finding {
	switch c {
	case CategoryViolation:
		return fs.Violations
	case CategoryWarning:
		return fs.Warnings
	case CategoryPassed:
		return fs.Passed
	case CategoryIncomplete:
		return fs.Incomplete
	}
	return nil
}

// All returns every finding in report order.
func (fs Findings) All() []Finding {
	out := make([]Finding, 0, fs.Len())
	for _, c := range Categories {
		out = append(out, fs.Bucket(c)...)
	}
	return out
}

// Len is the total number of findings across all categories.
func (fs Findings) Len() int {
	return len(fs.Violations) + len(fs.Warnings) + len(fs.Passed) + len(fs.Incomplete)
}

// Has reports whether a finding with the given id exists in any category.
func (fs Findings) Has(id string) bool {
	for _, c := range Categories {
		for _, f := range fs.Bucket(c) {
			if f.ID == id {
				return true
			}
		}
	}
	return false
}

// MarshalJSON always emits the four category keys as arrays.
func (fs Findings) MarshalJSON() ([]byte, error) {
	type plain Findings
	out := plain{
		Violations: nonNil(fs.Violations),
		Warnings:   nonNil(fs.Warnings),
		Passed:     nonNil(fs.Passed),
		Incomplete: nonNil(fs.Incomplete),
	}
	return json.Marshal(out)
}

func nonNil(in []Finding) []Finding {
	if in == nil {
		return []Finding{}
	}
	return in
}

// Grade is the qualitative band for a score.
type Grade string

const (
	GradeExcellent Grade = "Excellent"
	GradeGood      Grade = "Good"
	GradeFair      Grade = "Fair"
	GradePoor      Grade = "Poor"
)

// AuditResult is the output of one audit subsystem for one page snapshot.
// It is never merged across pages.
type AuditResult struct {
	Audit    string              `json:"audit"`
	Findings Findings            `json:"findings"`
	Score    int                 `json:"score"`
	Grade    Grade               `json:"grade"`
	Metrics  *PerformanceMetrics `json:"metrics,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// NewAuditResult returns an empty result for the named audit.
func NewAuditResult(audit string) *AuditResult {
	return &AuditResult{
		Audit: audit,
		Findings: Findings{
			Violations: []Finding{},
			Warnings:   []Finding{},
			Passed:     []Finding{},
			Incomplete: []Finding{},
		},
		Score: 100,
		Grade: GradeExcellent,
	}
}
