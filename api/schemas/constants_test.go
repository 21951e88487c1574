package schemas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// TestConstants pins values that end up in reports and database rows.
func TestConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		constant string
		expected string
	}{
		// Severities
		{"SeverityCritical", string(schemas.SeverityCritical), "critical"},
		{"SeverityHigh", string(schemas.SeverityHigh), "high"},
		{"SeverityMedium", string(schemas.SeverityMedium), "medium"},
		{"SeverityLow", string(schemas.SeverityLow), "low"},

		// Categories
		{"CategoryViolation", string(schemas.CategoryViolation), "violation"},
		{"CategoryWarning", string(schemas.CategoryWarning), "warning"},
		{"CategoryPassed", string(schemas.CategoryPassed), "passed"},
		{"CategoryIncomplete", string(schemas.CategoryIncomplete), "incomplete"},

		// Grades
		{"GradeExcellent", string(schemas.GradeExcellent), "Excellent"},
		{"GradeGood", string(schemas.GradeGood), "Good"},
		{"GradeFair", string(schemas.GradeFair), "Fair"},
		{"GradePoor", string(schemas.GradePoor), "Poor"},

		// Audits
		{"AuditAccessibility", schemas.AuditAccessibility, "accessibility"},
		{"AuditPerformance", schemas.AuditPerformance, "performance"},
		{"AuditSecurity", schemas.AuditSecurity, "security"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, tc.constant)
		})
	}
}
