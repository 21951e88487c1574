// internal/analysis/performance/auditor.go
package performance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
	"github.com/xkilldash9x/comet-monkey/internal/config"
)

// Finding ids emitted besides the per-metric ones.
const (
	CheckLargeResource     = "large-resource"
	CheckRequestCount      = "request-count"
	CheckFailedRequests    = "failed-requests"
	CheckMetricsCollection = "metrics-collection"
)

const (
	DefaultWindow = 3 * time.Second

	// LargeResourceBytes is the transfer size above which a resource is flagged.
	LargeResourceBytes = 500 * 1024
	// MaxRequests is the resource count above which the page is flagged.
	MaxRequests = 50

	// collectMargin bounds the evaluation beyond the observation window.
	collectMargin = 10 * time.Second
)

// Auditor measures Core Web Vitals, navigation timing and resource weight.
type Auditor struct {
	*core.BaseAuditor
	window time.Duration
}

var _ core.Auditor = (*Auditor)(nil)

func NewAuditor(cfg config.PerformanceConfig, logger *zap.Logger) *Auditor {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Auditor{
		BaseAuditor: core.NewBaseAuditor(schemas.AuditPerformance, "Core Web Vitals and load timing", logger),
		window:      window,
	}
}

// Audit collects metrics and classifies them. Collection failures are
// reported as a finding on a partial result; only cancellation is returned.
func (a *Auditor) Audit(ctx context.Context, page schemas.Page) (*schemas.AuditResult, error) {
	result := schemas.NewAuditResult(schemas.AuditPerformance)

	metrics, err := a.collect(ctx, page)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		a.Logger.Warn("Failed to collect performance metrics.", zap.Error(err))
		result.Error = err.Error()
		_ = result.Findings.Add(core.Warning(CheckMetricsCollection, schemas.SeverityMedium,
			"Performance metrics could not be collected").
			WithDetails(err.Error(), "Check that the page finished loading and allows script evaluation"))
		metrics = &schemas.PerformanceMetrics{Resources: summarizeResources(nil)}
	} else {
		for _, f := range metricFindings(metrics) {
			_ = result.Findings.Add(f)
		}
		for _, f := range resourceFindings(metrics.Resources) {
			_ = result.Findings.Add(f)
		}
	}

	if f, ok := failedRequestsFinding(page.DrainEvents()); ok {
		_ = result.Findings.Add(f)
	}

	result.Metrics = metrics
	result.Score = ScoreMetrics(metrics)
	result.Grade = core.GradeFor(result.Score)

	a.Logger.Debug("Performance audit complete.",
		zap.Any("lcp_ms", metrics.LCP),
		zap.Any("cls", metrics.CLS),
		zap.Float64("total_time_ms", metrics.Navigation.TotalTime),
		zap.Int("resources", metrics.Resources.Count),
		zap.Int("score", result.Score))
	return result, nil
}

func (a *Auditor) collect(ctx context.Context, page schemas.Page) (*schemas.PerformanceMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, a.window+collectMargin)
	defer cancel()

	var raw rawMetrics
	if err := page.Evaluate(ctx, buildCollectScript(a.window), &raw); err != nil {
		return nil, fmt.Errorf("evaluating metrics script: %w", err)
	}
	return raw.toMetrics(), nil
}

func resourceFindings(summary schemas.ResourceSummary) []schemas.Finding {
	var out []schemas.Finding
	if len(summary.Largest) > 0 && summary.Largest[0].Size > LargeResourceBytes {
		var nodes []schemas.Node
		for _, r := range summary.Largest {
			if r.Size <= LargeResourceBytes {
				break
			}
			nodes = append(nodes, schemas.Node{Target: r.Name, Message: fmt.Sprintf("%s, %dKB", r.Type, r.Size/1024)})
		}
		out = append(out, core.Warning(CheckLargeResource, schemas.SeverityLow,
			fmt.Sprintf("%d resource(s) larger than %dKB", len(nodes), LargeResourceBytes/1024)).
			WithDetails("", "Compress images and split large bundles").
			WithNodes(nodes...))
	}
	if summary.Count > MaxRequests {
		out = append(out, core.Warning(CheckRequestCount, schemas.SeverityLow,
			fmt.Sprintf("Page made %d requests", summary.Count)).
			WithDetails(fmt.Sprintf("More than %d requests were recorded", MaxRequests),
				"Bundle assets and remove unused third-party resources"))
	}
	return out
}

func failedRequestsFinding(batch schemas.EventBatch) (schemas.Finding, bool) {
	if len(batch.FailedRequests) == 0 {
		return schemas.Finding{}, false
	}
	nodes := make([]schemas.Node, 0, len(batch.FailedRequests))
	for _, ev := range batch.FailedRequests {
		nodes = append(nodes, schemas.Node{Target: ev.URL, Message: ev.Message})
	}
	return core.Warning(CheckFailedRequests, schemas.SeverityLow,
		fmt.Sprintf("%d request(s) failed", len(nodes))).
		WithDetails("", "Fix or remove references to resources that fail to load").
		WithNodes(nodes...), true
}
