// internal/analysis/performance/scoring.go
package performance

import (
	"fmt"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
)

// Threshold is a good/poor cutpoint pair with the penalty charged above each.
type Threshold struct {
	Good        float64
	Poor        float64
	GoodPenalty int // charged when value > Good
	PoorPenalty int // charged when value > Poor
}

// penalty returns the points charged for value.
func (t Threshold) penalty(value float64) int {
	switch {
	case value > t.Poor:
		return t.PoorPenalty
	case value > t.Good:
		return t.GoodPenalty
	}
	return 0
}

// Core Web Vitals and load time cutpoints. LCP, FID and load time are in
// milliseconds, CLS is unitless.
var (
	LCPThreshold      = Threshold{Good: 2500, Poor: 4000, GoodPenalty: 15, PoorPenalty: 35}
	FIDThreshold      = Threshold{Good: 100, Poor: 300, GoodPenalty: 10, PoorPenalty: 25}
	CLSThreshold      = Threshold{Good: 0.1, Poor: 0.25, GoodPenalty: 10, PoorPenalty: 25}
	LoadTimeThreshold = Threshold{Good: 3000, Poor: 5000, GoodPenalty: 5, PoorPenalty: 15}
)

// ScoreMetrics computes the performance score from observed metrics. Missing
// vitals cost nothing. The result is clamped to 0-100.
func ScoreMetrics(m *schemas.PerformanceMetrics) int {
	score := 100
	if m == nil {
		return score
	}
	if m.LCP != nil {
		score -= LCPThreshold.penalty(*m.LCP)
	}
	if m.FID != nil {
		score -= FIDThreshold.penalty(*m.FID)
	}
	if m.CLS != nil {
		score -= CLSThreshold.penalty(*m.CLS)
	}
	if m.Navigation.TotalTime > 0 {
		score -= LoadTimeThreshold.penalty(m.Navigation.TotalTime)
	}
	return core.Clamp(score)
}

// metricSpec describes how one metric becomes a finding.
type metricSpec struct {
	id        string
	name      string
	threshold Threshold
	format    func(float64) string
	advice    string
}

func millis(v float64) string { return fmt.Sprintf("%.0fms", v) }
func ratio(v float64) string  { return fmt.Sprintf("%.3f", v) }

var (
	lcpSpec = metricSpec{
		id: "lcp", name: "Largest Contentful Paint", threshold: LCPThreshold, format: millis,
		advice: "Optimize images and lazy load below-the-fold content",
	}
	fidSpec = metricSpec{
		id: "fid", name: "First Input Delay", threshold: FIDThreshold, format: millis,
		advice: "Reduce JavaScript execution time and break up long tasks",
	}
	clsSpec = metricSpec{
		id: "cls", name: "Cumulative Layout Shift", threshold: CLSThreshold, format: ratio,
		advice: "Avoid layout shifts by setting explicit dimensions on media and embeds",
	}
	loadTimeSpec = metricSpec{
		id: "load-time", name: "Total load time", threshold: LoadTimeThreshold, format: millis,
		advice: "Enable compression, minify code and reduce blocking resources",
	}
)

// finding classifies one observed value. A nil value is incomplete.
func (s metricSpec) finding(value *float64) schemas.Finding {
	if value == nil {
		return core.Incomplete(s.id, s.name+" was not observed")
	}
	v := *value
	observed := fmt.Sprintf("%s is %s", s.name, s.format(v))
	switch {
	case v > s.threshold.Poor:
		return core.Violation(s.id, schemas.SeverityHigh, observed).
			WithDetails(fmt.Sprintf("Above the poor threshold of %s", s.format(s.threshold.Poor)), s.advice)
	case v > s.threshold.Good:
		return core.Warning(s.id, schemas.SeverityMedium, observed).
			WithDetails(fmt.Sprintf("Above the good threshold of %s", s.format(s.threshold.Good)), s.advice)
	}
	return core.Passed(s.id, observed)
}

// metricFindings returns one finding per scored metric.
func metricFindings(m *schemas.PerformanceMetrics) []schemas.Finding {
	var loadTime *float64
	if m.Navigation.TotalTime > 0 {
		t := m.Navigation.TotalTime
		loadTime = &t
	}
	return []schemas.Finding{
		lcpSpec.finding(m.LCP),
		fidSpec.finding(m.FID),
		clsSpec.finding(m.CLS),
		loadTimeSpec.finding(loadTime),
	}
}
