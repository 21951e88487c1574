// internal/analysis/security/headers.go
package security

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
)

// Finding ids for header checks other than the required header table.
const (
	CheckPermissionsPolicy = "permissions-policy"
	CheckHeadersAvailable  = "headers-check-failed"
	CheckHSTSMaxAge        = "hsts-max-age"
	CheckCSPUnsafeInline   = "csp-unsafe-inline"
	CheckDisclosure        = "information-disclosure"
)

// MinHSTSMaxAge is the shortest HSTS max-age considered effective (6 months).
const MinHSTSMaxAge = 15552000

var regexMaxAge = regexp.MustCompile(`(?i)max-age=(\d+)`)

// requiredHeader is one row of the required header table.
type requiredHeader struct {
	name        string // Lowercase; also the finding id.
	label       string
	severity    schemas.Severity
	description string
}

// requiredHeaders lists the headers every document response must carry.
var requiredHeaders = []requiredHeader{
	{"strict-transport-security", "HSTS", schemas.SeverityHigh, "Enforce HTTPS"},
	{"content-security-policy", "CSP", schemas.SeverityHigh, "Prevent inline scripts and XSS"},
	{"x-content-type-options", "X-Content-Type-Options", schemas.SeverityMedium, "Prevent MIME sniffing"},
	{"x-frame-options", "X-Frame-Options", schemas.SeverityHigh, "Prevent clickjacking"},
	{"x-xss-protection", "X-XSS-Protection", schemas.SeverityLow, "Legacy XSS protection"},
	{"referrer-policy", "Referrer-Policy", schemas.SeverityMedium, "Control referrer information"},
}

var disclosureHeaders = []string{"server", "x-powered-by", "x-aspnet-version"}

// checkHeaders evaluates the main document response headers. A nil response
// yields a single warning.
func checkHeaders(resp *schemas.NavigationResponse) []schemas.Finding {
	if resp == nil || resp.Headers == nil {
		return []schemas.Finding{
			core.Warning(CheckHeadersAvailable, schemas.SeverityMedium, "Could not retrieve response headers").
				WithDetails("No main document response was captured for this page", ""),
		}
	}

	var out []schemas.Finding
	for _, h := range requiredHeaders {
		if present(resp, h) {
			out = append(out, core.Passed(h.name, h.label+" header is set"))
			continue
		}
		out = append(out, core.Violation(h.name, h.severity, "Missing security header: "+h.label).
			WithDetails(h.description, fmt.Sprintf("Add the %s header to the server configuration", h.label)))
	}

	if resp.Header("Permissions-Policy") == "" && resp.Header("Feature-Policy") == "" {
		out = append(out, core.Warning(CheckPermissionsPolicy, schemas.SeverityLow, "Permissions-Policy header not set").
			WithDetails("Browser features are not restricted for this document", "Add a Permissions-Policy header"))
	}
	if f, ok := checkHSTS(resp.Header("Strict-Transport-Security")); ok {
		out = append(out, f)
	}
	if f, ok := checkCSP(resp.Header("Content-Security-Policy")); ok {
		out = append(out, f)
	}
	if f, ok := checkDisclosure(resp); ok {
		out = append(out, f)
	}
	return out
}

func present(resp *schemas.NavigationResponse, h requiredHeader) bool {
	if strings.TrimSpace(resp.Header(h.name)) != "" {
		return true
	}
	// CSP frame-ancestors supersedes X-Frame-Options.
	if h.name == "x-frame-options" {
		return hasDirective(resp.Header("Content-Security-Policy"), "frame-ancestors")
	}
	return false
}

// hasDirective reports whether a CSP policy declares the named directive.
func hasDirective(policy, directive string) bool {
	for _, part := range strings.Split(policy, ";") {
		fields := strings.Fields(part)
		if len(fields) > 0 && strings.EqualFold(fields[0], directive) {
			return true
		}
	}
	return false
}

// checkHSTS flags a present but ineffective HSTS policy.
func checkHSTS(value string) (schemas.Finding, bool) {
	if value == "" {
		return schemas.Finding{}, false
	}
	matches := regexMaxAge.FindStringSubmatch(value)
	if len(matches) < 2 {
		return core.Warning(CheckHSTSMaxAge, schemas.SeverityLow, "HSTS header is missing max-age").
			WithDetails("HSTS value: "+value, "Include a max-age directive with a non-zero value"), true
	}
	maxAge, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		// Only overflow gets past the regex, and that is long enough.
		return schemas.Finding{}, false
	}
	switch {
	case maxAge == 0:
		return core.Warning(CheckHSTSMaxAge, schemas.SeverityMedium, "HSTS max-age is zero").
			WithDetails("A zero max-age tells browsers to drop the policy", "Set max-age to at least 31536000 (one year)"), true
	case maxAge < MinHSTSMaxAge:
		return core.Warning(CheckHSTSMaxAge, schemas.SeverityLow, fmt.Sprintf("HSTS max-age of %d seconds is too short", maxAge)).
			WithDetails(fmt.Sprintf("max-age should be at least %d seconds", MinHSTSMaxAge),
				fmt.Sprintf("Increase max-age to at least %d", MinHSTSMaxAge)), true
	}
	return schemas.Finding{}, false
}

// checkCSP flags 'unsafe-inline' without a nonce or hash.
func checkCSP(policy string) (schemas.Finding, bool) {
	lower := strings.ToLower(policy)
	if !strings.Contains(lower, "'unsafe-inline'") {
		return schemas.Finding{}, false
	}
	if strings.Contains(lower, "'nonce-") || strings.Contains(lower, "'sha") {
		return schemas.Finding{}, false
	}
	return core.Warning(CheckCSPUnsafeInline, schemas.SeverityMedium, "Content-Security-Policy allows 'unsafe-inline'").
		WithDetails("Inline scripts can execute without a nonce or hash", "Use nonces or hashes for inline scripts"), true
}

// checkDisclosure reports headers that reveal the server stack.
func checkDisclosure(resp *schemas.NavigationResponse) (schemas.Finding, bool) {
	var nodes []schemas.Node
	for _, name := range disclosureHeaders {
		if v := resp.Header(name); v != "" {
			nodes = append(nodes, schemas.Node{Target: name, Message: name + ": " + v})
		}
	}
	if len(nodes) == 0 {
		return schemas.Finding{}, false
	}
	return core.Warning(CheckDisclosure, schemas.SeverityLow, fmt.Sprintf("%d header(s) disclose server technology", len(nodes))).
		WithDetails("Version banners help attackers find known vulnerabilities", "Suppress or genericize these headers").
		WithNodes(nodes...), true
}
