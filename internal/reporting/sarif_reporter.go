// internal/reporting/sarif_reporter.go
package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/reporting/sarif"
)

const (
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	rulePrefix   = "COMET-"
)

// ruleIDSanitizer keeps alphanumerics, underscore and dot. Everything else
// collapses to a single hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// RuleFingerprint identifies a rule definition by its content.
type RuleFingerprint string

// calculateFingerprint hashes the fields that define a rule. Two findings
// with the same check id but different guidance get separate rules.
func calculateFingerprint(audit string, f schemas.Finding) RuleFingerprint {
	data := struct {
		Audit          string
		ID             string
		Description    string
		Recommendation string
	}{audit, f.ID, f.Description, f.Recommendation}

	h := sha1.New()
	_ = json.NewEncoder(h).Encode(data)
	return RuleFingerprint(hex.EncodeToString(h.Sum(nil)))
}

// SARIFReporter implements Reporter for SARIF 2.1.0. Violations and warnings
// become results; passed and incomplete findings are omitted. It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the maps.
	mu                 sync.Mutex
	rulesByFingerprint map[RuleFingerprint]string
	ruleIDUsage        map[string]int
	closed             bool
}

// NewSARIFReporter creates a reporter that writes SARIF output on Close.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string, logger *zap.Logger) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						Rules:          []*sarif.ReportingDescriptor{},
					},
				},
				Invocations: []*sarif.Invocation{{ExecutionSuccessful: true}},
				Results:     []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer:             writer,
		logger:             logger.Named("sarif_reporter"),
		log:                log,
		rulesByFingerprint: make(map[RuleFingerprint]string),
		ruleIDUsage:        make(map[string]int),
	}
}

// Write converts the violations and warnings of every audit in the page
// report into SARIF results. A page-level error becomes a tool execution
// notification.
func (r *SARIFReporter) Write(report *schemas.PageReport) error {
	if report == nil {
		return errors.New("cannot write a nil page report")
	}
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("reporter is closed")
	}

	run := r.log.Runs[0]
	uri := report.FinalURL
	if uri == "" {
		uri = report.URL
	}

	if report.Error != "" {
		inv := run.Invocations[0]
		inv.ToolExecutionNotifications = append(inv.ToolExecutionNotifications, &sarif.Notification{
			Message:   &sarif.Message{Text: pString(report.Error)},
			Level:     sarif.LevelError,
			Locations: []*sarif.Location{pageLocation(uri)},
		})
	}

	count := 0
	for _, audit := range report.AuditNames() {
		res := report.Audits[audit]
		if res.Error != "" {
			inv := run.Invocations[0]
			inv.ToolExecutionNotifications = append(inv.ToolExecutionNotifications, &sarif.Notification{
				Message:   &sarif.Message{Text: pString(fmt.Sprintf("%s audit: %s", audit, res.Error))},
				Level:     sarif.LevelWarning,
				Locations: []*sarif.Location{pageLocation(uri)},
			})
		}
		for _, f := range res.Findings.Violations {
			run.Results = append(run.Results, r.result(audit, uri, f, violationLevel(f.Severity)))
			count++
		}
		for _, f := range res.Findings.Warnings {
			run.Results = append(run.Results, r.result(audit, uri, f, warningLevel(f.Severity)))
			count++
		}
	}

	if count > 0 {
		r.logger.Debug("Wrote findings to SARIF buffer.",
			zap.String("url", uri),
			zap.Int("findings_count", count),
			zap.Duration("duration", time.Since(startTime)),
		)
	}
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	run := r.log.Runs[0]
	r.logger.Info("Finalizing SARIF report.",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON.", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer.", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

func (r *SARIFReporter) result(audit, uri string, f schemas.Finding, level sarif.Level) *sarif.Result {
	return &sarif.Result{
		RuleID:    r.ensureRule(audit, f),
		Message:   &sarif.Message{Text: pString(f.Message)},
		Level:     level,
		Locations: createLocations(uri, f),
		Properties: &sarif.PropertyBag{
			"audit":    audit,
			"category": string(f.Category),
			"severity": string(f.Severity),
		},
	}
}

// sanitizeRuleName creates a standardized base name for the rule ID.
func sanitizeRuleName(name string) string {
	sanitized := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(name), "-"), "-")
	if sanitized == "" {
		return "UNNAMED-CHECK"
	}
	return sanitized
}

// ensureRule returns the rule id for the finding, registering a new rule the
// first time a definition is seen. Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(audit string, f schemas.Finding) string {
	fingerprint := calculateFingerprint(audit, f)
	if ruleID, exists := r.rulesByFingerprint[fingerprint]; exists {
		return ruleID
	}

	baseRuleID := rulePrefix + sanitizeRuleName(audit) + "." + sanitizeRuleName(f.ID)
	usage := r.ruleIDUsage[baseRuleID]
	r.ruleIDUsage[baseRuleID] = usage + 1

	ruleID := baseRuleID
	if usage > 0 {
		ruleID = fmt.Sprintf("%s-%d", baseRuleID, usage)
		r.logger.Debug("Rule ID collision detected, generated new ID with suffix.",
			zap.String("base_id", baseRuleID),
			zap.String("final_id", ruleID),
		)
	}

	description := f.Description
	if description == "" {
		description = f.Message
	}
	markdownHelp := fmt.Sprintf("**Check:** %s (%s)\n\n**Description:**\n%s\n\n**Recommendation:**\n%s",
		f.ID, audit, description, f.Recommendation)

	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               ruleID,
		Name:             pString(f.ID),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(f.ID)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(description)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(f.Recommendation),
			Markdown: pString(markdownHelp),
		},
		Properties: &sarif.PropertyBag{
			"tags": []string{audit, ToolName},
		},
	})
	r.rulesByFingerprint[fingerprint] = ruleID
	return ruleID
}

// createLocations returns one location per DOM node, or the page itself when
// the finding has no nodes.
func createLocations(uri string, f schemas.Finding) []*sarif.Location {
	if len(f.Nodes) == 0 {
		return []*sarif.Location{pageLocation(uri)}
	}
	locations := make([]*sarif.Location, 0, len(f.Nodes))
	for _, n := range f.Nodes {
		loc := pageLocation(uri)
		if n.HTML != "" {
			loc.PhysicalLocation.Region = &sarif.Region{Snippet: &sarif.ArtifactContent{Text: pString(n.HTML)}}
		}
		if n.Target != "" {
			loc.LogicalLocations = []*sarif.LogicalLocation{{
				FullyQualifiedName: pString(n.Target),
				Kind:               pString("element"),
			}}
		}
		if n.Message != "" {
			loc.Message = &sarif.Message{Text: pString(n.Message)}
		}
		locations = append(locations, loc)
	}
	return locations
}

func pageLocation(uri string) *sarif.Location {
	return &sarif.Location{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(uri)},
		},
	}
}

// violationLevel maps a violation's severity to a SARIF level.
func violationLevel(severity schemas.Severity) sarif.Level {
	switch severity {
	case schemas.SeverityCritical, schemas.SeverityHigh:
		return sarif.LevelError
	case schemas.SeverityMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// warningLevel maps a warning one step below violationLevel.
func warningLevel(severity schemas.Severity) sarif.Level {
	switch severity {
	case schemas.SeverityCritical, schemas.SeverityHigh:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
