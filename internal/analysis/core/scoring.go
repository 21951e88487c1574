package core

import (
	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

const maxScore = 100

// Grade cutpoints, inclusive lower bounds.
const (
	ExcellentCutpoint = 90
	GoodCutpoint      = 80
	FairCutpoint      = 60
)

// PenaltyTable maps a violation or warning to the points it costs. Passed and
// incomplete findings are never charged. Implementations must be pure.
type PenaltyTable interface {
	Penalty(f schemas.Finding) int
}

// CategoryPenalties charges a flat amount per category, ignoring severity.
type CategoryPenalties struct {
	Violation int
	Warning   int
}

func (p CategoryPenalties) Penalty(f schemas.Finding) int {
	switch f.Category {
	case schemas.CategoryViolation:
		return p.Violation
	case schemas.CategoryWarning:
		return p.Warning
	}
	return 0
}

// SeverityPenalties charges by severity, with separate tables for violations and warnings.
type SeverityPenalties struct {
	Violation map[schemas.Severity]int
	Warning   map[schemas.Severity]int
}

func (p SeverityPenalties) Penalty(f schemas.Finding) int {
	switch f.Category {
	case schemas.CategoryViolation:
		return p.Violation[f.Severity]
	case schemas.CategoryWarning:
		return p.Warning[f.Severity]
	}
	return 0
}

// AccessibilityPenalties is the accessibility weight table.
var AccessibilityPenalties = CategoryPenalties{Violation: 10, Warning: 5}

// SecurityPenalties is the security weight table. Warnings cost roughly half of
// the equivalent violation.
var SecurityPenalties = SeverityPenalties{
	Violation: map[schemas.Severity]int{
		schemas.SeverityCritical: 25,
		schemas.SeverityHigh:     15,
		schemas.SeverityMedium:   10,
		schemas.SeverityLow:      5,
	},
	Warning: map[schemas.Severity]int{
		schemas.SeverityCritical: 12,
		schemas.SeverityHigh:     7,
		schemas.SeverityMedium:   5,
		schemas.SeverityLow:      2,
	},
}

// Score computes max(0, 100 - sum of penalties) over violations and warnings.
// Negative penalties are treated as zero so the score can only fall as
// findings are added.
func Score(fs schemas.Findings, table PenaltyTable) int {
	total := 0
	for _, bucket := range [][]schemas.Finding{fs.Violations, fs.Warnings} {
		for _, f := range bucket {
			if p := table.Penalty(f); p > 0 {
				total += p
			}
		}
	}
	return Clamp(maxScore - total)
}

// Clamp bounds a raw score to [0, 100].
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// GradeFor maps a score to its qualitative band.
func GradeFor(score int) schemas.Grade {
	switch {
	case score >= ExcellentCutpoint:
		return schemas.GradeExcellent
	case score >= GoodCutpoint:
		return schemas.GradeGood
	case score >= FairCutpoint:
		return schemas.GradeFair
	default:
		return schemas.GradePoor
	}
}

// Finalize scores the result with the given table and sets its grade.
func Finalize(result *schemas.AuditResult, table PenaltyTable) {
	result.Score = Score(result.Findings, table)
	result.Grade = GradeFor(result.Score)
}
