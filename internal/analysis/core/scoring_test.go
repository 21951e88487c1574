package core

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

var severities = []schemas.Severity{
	schemas.SeverityCritical, schemas.SeverityHigh, schemas.SeverityMedium, schemas.SeverityLow,
}

func randomFinding(rng *rand.Rand, i int) schemas.Finding {
	cat := schemas.Categories[rng.Intn(len(schemas.Categories))]
	var sev schemas.Severity
	if cat.RequiresSeverity() {
		sev = severities[rng.Intn(len(severities))]
	}
	f, err := schemas.NewFinding("check-"+string(rune('a'+i%26)), cat, sev, "generated")
	if err != nil {
		panic(err)
	}
	return f
}

func TestScore_EmptyIsPerfect(t *testing.T) {
	assert.Equal(t, 100, Score(schemas.Findings{}, AccessibilityPenalties))
	assert.Equal(t, 100, Score(schemas.Findings{}, SecurityPenalties))
}

func TestScore_PassedAndIncompleteAreFree(t *testing.T) {
	var fs schemas.Findings
	require.NoError(t, fs.Add(Passed("lang", "ok")))
	require.NoError(t, fs.Add(Incomplete("focus", "unknown")))
	assert.Equal(t, 100, Score(fs, AccessibilityPenalties))
	assert.Equal(t, 100, Score(fs, SecurityPenalties))
}

func TestScore_AccessibilityWeights(t *testing.T) {
	var fs schemas.Findings
	require.NoError(t, fs.Add(Violation("image-alt-text", schemas.SeverityCritical, "")))
	require.NoError(t, fs.Add(Violation("form-labels", schemas.SeverityLow, "")))
	require.NoError(t, fs.Add(Warning("page-language", schemas.SeverityMedium, "")))
	assert.Equal(t, 100-10-10-5, Score(fs, AccessibilityPenalties))
}

func TestScore_SecurityWeightsBySeverity(t *testing.T) {
	var fs schemas.Findings
	require.NoError(t, fs.Add(Violation("https", schemas.SeverityCritical, "")))
	require.NoError(t, fs.Add(Violation("x-content-type-options", schemas.SeverityMedium, "")))
	require.NoError(t, fs.Add(Warning("inline-scripts", schemas.SeverityMedium, "")))
	assert.Equal(t, 100-25-10-5, Score(fs, SecurityPenalties))
}

func TestScore_ClampsAtZero(t *testing.T) {
	var fs schemas.Findings
	for i := 0; i < 20; i++ {
		require.NoError(t, fs.Add(Violation("cookie", schemas.SeverityCritical, "")))
	}
	assert.Equal(t, 0, Score(fs, SecurityPenalties))
	assert.Equal(t, 0, Score(fs, AccessibilityPenalties))
}

func TestScore_BoundedAndMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tables := map[string]PenaltyTable{
		"accessibility": AccessibilityPenalties,
		"security":      SecurityPenalties,
	}

	for name, table := range tables {
		t.Run(name, func(t *testing.T) {
			for trial := 0; trial < 50; trial++ {
				var fs schemas.Findings
				prev := Score(fs, table)
				for i := 0; i < 30; i++ {
					require.NoError(t, fs.Add(randomFinding(rng, i)))
					cur := Score(fs, table)
					assert.GreaterOrEqual(t, cur, 0)
					assert.LessOrEqual(t, cur, 100)
					assert.LessOrEqual(t, cur, prev, "score must not increase when a finding is added")
					prev = cur
				}
			}
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var fs schemas.Findings
	for i := 0; i < 15; i++ {
		require.NoError(t, fs.Add(randomFinding(rng, i)))
	}
	first := Score(fs, SecurityPenalties)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(fs, SecurityPenalties))
	}
}

func TestScore_NegativePenaltyIgnored(t *testing.T) {
	var fs schemas.Findings
	require.NoError(t, fs.Add(Violation("x", schemas.SeverityLow, "")))
	assert.Equal(t, 100, Score(fs, CategoryPenalties{Violation: -20}))
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score int
		want  schemas.Grade
	}{
		{100, schemas.GradeExcellent},
		{90, schemas.GradeExcellent},
		{89, schemas.GradeGood},
		{80, schemas.GradeGood},
		{79, schemas.GradeFair},
		{60, schemas.GradeFair},
		{59, schemas.GradePoor},
		{0, schemas.GradePoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GradeFor(tt.score), "score %d", tt.score)
	}
}

func TestFinalize(t *testing.T) {
	res := schemas.NewAuditResult(schemas.AuditAccessibility)
	require.NoError(t, res.Findings.Add(Violation("a", schemas.SeverityHigh, "")))
	require.NoError(t, res.Findings.Add(Violation("b", schemas.SeverityHigh, "")))
	require.NoError(t, res.Findings.Add(Warning("c", schemas.SeverityHigh, "")))

	Finalize(res, AccessibilityPenalties)
	assert.Equal(t, 75, res.Score)
	assert.Equal(t, schemas.GradeFair, res.Grade)
}
