// internal/analysis/accessibility/checks.go
package accessibility

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
)

// Check ids of the custom battery.
const (
	CheckImageAlt      = "image-alt-text"
	CheckFormLabels    = "form-labels"
	CheckHeadings      = "heading-hierarchy"
	CheckColorContrast = "color-contrast"
	CheckARIA          = "aria-attributes"
	CheckFocusStyles   = "focus-styles"
	CheckPageLanguage  = "page-language"
)

// labelledInputs are the fields that need an accessible name.
const labelledInputs = `input:not([type]), input[type="text"], input[type="email"], input[type="password"], ` +
	`input[type="search"], input[type="tel"], input[type="url"], input[type="number"], textarea, select`

// -- HTML Shape Checks --

func checkImageAlt(doc *goquery.Document) []schemas.Finding {
	var nodes []schemas.Node
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		alt, ok := img.Attr("alt")
		if ok && strings.TrimSpace(alt) != "" {
			return
		}
		// alt="" is correct for images marked decorative.
		if ok && isDecorative(img) {
			return
		}
		nodes = append(nodes, core.NodeFor(img, "Image missing alt text"))
	})
	if len(nodes) == 0 {
		return []schemas.Finding{core.Passed(CheckImageAlt, "All images have alt text")}
	}
	f := core.Violation(CheckImageAlt, schemas.SeverityCritical, fmt.Sprintf("%d image(s) missing alt text", len(nodes))).
		WithDetails("Images must have alt text", "Every image must have descriptive alt text for screen readers").
		WithNodes(nodes...)
	return []schemas.Finding{f}
}

func isDecorative(s *goquery.Selection) bool {
	role := strings.ToLower(strings.TrimSpace(s.AttrOr("role", "")))
	return role == "presentation" || role == "none" || s.AttrOr("aria-hidden", "") == "true"
}

func checkFormLabels(doc *goquery.Document) []schemas.Finding {
	var nodes []schemas.Node
	doc.Find(labelledInputs).Each(func(_ int, field *goquery.Selection) {
		if hasAccessibleName(doc, field) {
			return
		}
		nodes = append(nodes, core.NodeFor(field, "Form field missing label"))
	})
	if len(nodes) == 0 {
		return []schemas.Finding{core.Passed(CheckFormLabels, "All form fields have labels")}
	}
	f := core.Violation(CheckFormLabels, schemas.SeverityHigh, fmt.Sprintf("%d form field(s) missing a label", len(nodes))).
		WithDetails("Form fields must have labels", "All input fields must be associated with a label").
		WithNodes(nodes...)
	return []schemas.Finding{f}
}

func hasAccessibleName(doc *goquery.Document, field *goquery.Selection) bool {
	for _, attr := range []string{"aria-label", "aria-labelledby", "title"} {
		if strings.TrimSpace(field.AttrOr(attr, "")) != "" {
			return true
		}
	}
	if field.Closest("label").Length() > 0 {
		return true
	}
	id := strings.TrimSpace(field.AttrOr("id", ""))
	if id == "" {
		return false
	}
	return doc.Find("label[for]").FilterFunction(func(_ int, l *goquery.Selection) bool {
		return l.AttrOr("for", "") == id
	}).Length() > 0
}

// checkHeadings reports every skipped heading level in a single warning.
func checkHeadings(doc *goquery.Document) []schemas.Finding {
	var (
		nodes []schemas.Node
		skips []string
		last  int
	)
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, h *goquery.Selection) {
		level, err := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(h), "h"))
		if err != nil {
			return
		}
		if last > 0 && level > last+1 {
			skip := fmt.Sprintf("H%d → H%d", last, level)
			skips = append(skips, skip)
			nodes = append(nodes, core.NodeFor(h, "Heading hierarchy broken: "+skip))
		}
		last = level
	})
	if len(skips) == 0 {
		return []schemas.Finding{core.Passed(CheckHeadings, "Heading hierarchy is correct")}
	}
	f := core.Warning(CheckHeadings, schemas.SeverityMedium, "Heading levels skipped: "+strings.Join(skips, ", ")).
		WithDetails("Heading hierarchy is broken", "Headings should go H1 → H2 → H3, not skip levels").
		WithNodes(nodes...)
	return []schemas.Finding{f}
}

func checkARIA(doc *goquery.Document) []schemas.Finding {
	ids := make(map[string]bool)
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		ids[s.AttrOr("id", "")] = true
	})

	var nodes []schemas.Node
	doc.Find("[aria-label]").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.AttrOr("aria-label", "")) == "" {
			nodes = append(nodes, core.NodeFor(s, "aria-label is empty"))
		}
	})
	doc.Find("[aria-labelledby], [aria-describedby]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"aria-labelledby", "aria-describedby"} {
			value, ok := s.Attr(attr)
			if !ok {
				continue
			}
			refs := strings.Fields(value)
			if len(refs) == 0 {
				nodes = append(nodes, core.NodeFor(s, attr+" is empty"))
				continue
			}
			for _, ref := range refs {
				if !ids[ref] {
					nodes = append(nodes, core.NodeFor(s, fmt.Sprintf("%s references missing id %q", attr, ref)))
				}
			}
		}
	})
	if len(nodes) == 0 {
		return []schemas.Finding{core.Passed(CheckARIA, "ARIA attributes are correct")}
	}
	f := core.Warning(CheckARIA, schemas.SeverityMedium, fmt.Sprintf("%d ARIA attribute problem(s)", len(nodes))).
		WithDetails("ARIA attributes may be incorrect", "Ensure ARIA labels are non-empty and ARIA references point to existing ids").
		WithNodes(nodes...)
	return []schemas.Finding{f}
}

func checkPageLanguage(doc *goquery.Document) []schemas.Finding {
	if strings.TrimSpace(doc.Find("html").AttrOr("lang", "")) != "" {
		return []schemas.Finding{core.Passed(CheckPageLanguage, "Page language is specified")}
	}
	f := core.Warning(CheckPageLanguage, schemas.SeverityMedium, "Page language not specified").
		WithDetails("The html element has no lang attribute", "Add a lang attribute to the html element")
	return []schemas.Finding{f}
}
