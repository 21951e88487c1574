// internal/analysis/security/forms.go
package security

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
)

const (
	CheckHTTPS             = "https"
	CheckCSRF              = "csrf-protection"
	CheckPasswordTransport = "password-transport"
)

// csrfMarkers are substrings of field names that look like anti-CSRF tokens.
var csrfMarkers = []string{"csrf", "xsrf", "token", "authenticity"}

// checkHTTPS classifies the transport of the page URL. Non-http schemes
// (about:, data:) produce nothing.
func checkHTTPS(pageURL *url.URL) []schemas.Finding {
	switch pageURL.Scheme {
	case "https":
		return []schemas.Finding{core.Passed(CheckHTTPS, "Site uses HTTPS")}
	case "http":
		return []schemas.Finding{
			core.Violation(CheckHTTPS, schemas.SeverityCritical, "Site uses unencrypted HTTP").
				WithDetails("All traffic is sent in plain text", "Serve the site over HTTPS"),
		}
	}
	return nil
}

// checkCSRF looks for a token-shaped field in every POST form.
func checkCSRF(doc *goquery.Document) []schemas.Finding {
	forms := doc.Find("form")
	if forms.Length() == 0 {
		return []schemas.Finding{core.Warning(CheckCSRF, schemas.SeverityLow, "No forms found to test for CSRF protection")}
	}

	var nodes []schemas.Node
	protected := 0
	forms.Each(func(_ int, form *goquery.Selection) {
		if hasCSRFToken(form) {
			protected++
			return
		}
		if strings.EqualFold(strings.TrimSpace(form.AttrOr("method", "get")), "post") {
			nodes = append(nodes, core.NodeFor(form, "POST form without a CSRF token"))
		}
	})

	if len(nodes) > 0 {
		return []schemas.Finding{
			core.Violation(CheckCSRF, schemas.SeverityHigh, fmt.Sprintf("%d POST form(s) without CSRF token", len(nodes))).
				WithDetails("Forms may be vulnerable to Cross-Site Request Forgery", "Add CSRF tokens to all POST forms").
				WithNodes(nodes...),
		}
	}
	return []schemas.Finding{
		core.Passed(CheckCSRF, fmt.Sprintf("%d/%d forms are CSRF-protected", protected, forms.Length())),
	}
}

func hasCSRFToken(form *goquery.Selection) bool {
	found := false
	form.Find("input[name], meta[name]").EachWithBreak(func(_ int, field *goquery.Selection) bool {
		name := strings.ToLower(field.AttrOr("name", ""))
		for _, marker := range csrfMarkers {
			if strings.Contains(name, marker) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// checkPasswordTransport flags password forms served over, or submitting to,
// a non-HTTPS URL.
func checkPasswordTransport(doc *goquery.Document, pageURL *url.URL) []schemas.Finding {
	var nodes []schemas.Node
	total := 0
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		if !hasPasswordField(form) {
			return
		}
		total++
		target := formTarget(form, pageURL)
		switch {
		case pageURL.Scheme == "http":
			nodes = append(nodes, core.NodeFor(form, "Password form served over HTTP"))
		case target.Scheme == "http":
			nodes = append(nodes, core.NodeFor(form, "Password form submits to "+target.String()))
		}
	})

	if total == 0 {
		return []schemas.Finding{core.Passed(CheckPasswordTransport, "No password forms found")}
	}
	if len(nodes) > 0 {
		return []schemas.Finding{
			core.Violation(CheckPasswordTransport, schemas.SeverityCritical,
				fmt.Sprintf("%d password form(s) transmit over non-HTTPS", len(nodes))).
				WithDetails("Passwords transmitted over HTTP can be intercepted", "Serve and submit password forms over HTTPS").
				WithNodes(nodes...),
		}
	}
	return []schemas.Finding{core.Passed(CheckPasswordTransport, "All password forms transmit securely")}
}

func hasPasswordField(form *goquery.Selection) bool {
	return form.Find("input[type]").FilterFunction(func(_ int, in *goquery.Selection) bool {
		return strings.EqualFold(strings.TrimSpace(in.AttrOr("type", "")), "password")
	}).Length() > 0
}

// formTarget resolves the form action against the page URL. An empty or
// unparsable action submits to the page itself.
func formTarget(form *goquery.Selection, pageURL *url.URL) *url.URL {
	action := strings.TrimSpace(form.AttrOr("action", ""))
	if action == "" {
		return pageURL
	}
	ref, err := url.Parse(action)
	if err != nil {
		return pageURL
	}
	return pageURL.ResolveReference(ref)
}
