package schemas

import "time"

// -- Report Schemas --

// Audit names used as keys in PageReport.Audits.
const (
	AuditAccessibility = "accessibility"
	AuditPerformance   = "performance"
	AuditSecurity      = "security"
)

// PageReport is the complete, serializable outcome of one target page run.
type PageReport struct {
	RunID          string                  `json:"run_id"`
	URL            string                  `json:"url"`
	FinalURL       string                  `json:"final_url"`
	StatusCode     int                     `json:"status_code"`
	StartedAt      time.Time               `json:"started_at"`
	Duration       time.Duration           `json:"duration"`
	Screenshot     string                  `json:"screenshot,omitempty"`
	Interactions   *InteractionSummary     `json:"interactions,omitempty"`
	Audits         map[string]*AuditResult `json:"audits"`
	ConsoleErrors  []PageEvent             `json:"console_errors"`
	FailedRequests []PageEvent             `json:"failed_requests"`
	DroppedEvents  int                     `json:"dropped_events"`
	Error          string                  `json:"error,omitempty"`
}

// AuditNames returns the audit keys present in the report in a stable order.
func (r *PageReport) AuditNames() []string {
	var names []string
	for _, n := range []string{AuditAccessibility, AuditPerformance, AuditSecurity} {
		if _, ok := r.Audits[n]; ok {
			names = append(names, n)
		}
	}
	return names
}
