// internal/analysis/accessibility/contrast.go
package accessibility

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
)

// WCAG 2.1 minimum contrast ratios.
const (
	MinContrastNormal = 4.5
	MinContrastLarge  = 3.0
)

const maxContrastSamples = 200

// textSample is one text element as seen by the contrast script.
type textSample struct {
	Target     string  `json:"target"`
	HTML       string  `json:"html"`
	Color      string  `json:"color"`
	Background string  `json:"background"`
	FontSize   float64 `json:"fontSize"`
	FontWeight int     `json:"fontWeight"`
}

// contrastScript collects computed colors for visible elements that own text.
// The background is the first non-transparent one walking up the tree, white
// when none is found.
var contrastScript = fmt.Sprintf(`(() => {
	const transparent = (c) => !c || c === 'transparent' || /rgba\([^)]*,\s*0\)$/.test(c);
	const backgroundOf = (el) => {
		for (let n = el; n && n.nodeType === 1; n = n.parentElement) {
			const bg = window.getComputedStyle(n).backgroundColor;
			if (!transparent(bg)) return bg;
		}
		return 'rgb(255, 255, 255)';
	};
	const out = [];
	for (const el of document.querySelectorAll('p, span, a, label, button, li, td, th, h1, h2, h3, h4, h5, h6')) {
		if (out.length >= %d) break;
		const ownsText = Array.from(el.childNodes).some(n => n.nodeType === 3 && n.textContent.trim() !== '');
		if (!ownsText) continue;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || el.getClientRects().length === 0) continue;
		out.push({
			target: el.tagName.toLowerCase() + (el.id ? '#' + el.id : ''),
			html: el.outerHTML.slice(0, %d),
			color: style.color,
			background: backgroundOf(el),
			fontSize: parseFloat(style.fontSize) || 0,
			fontWeight: parseInt(style.fontWeight, 10) || 400,
		});
	}
	return out;
})()`, maxContrastSamples, core.SnippetLength)

// focusScript reports whether any readable stylesheet has a :focus rule.
const focusScript = `(() => {
	const interactive = document.querySelectorAll('a[href], button, input, select, textarea, [tabindex]').length;
	const scan = (rules) => {
		for (const r of rules) {
			if (r.selectorText && r.selectorText.includes(':focus')) return true;
			if (r.cssRules && scan(r.cssRules)) return true;
		}
		return false;
	};
	let hasFocusRule = false;
	let unreadable = 0;
	for (const sheet of document.styleSheets) {
		try {
			if (scan(sheet.cssRules)) { hasFocusRule = true; break; }
		} catch (e) {
			unreadable++;
		}
	}
	return { interactive: interactive, hasFocusRule: hasFocusRule, unreadable: unreadable };
})()`

type focusReport struct {
	Interactive  int  `json:"interactive"`
	HasFocusRule bool `json:"hasFocusRule"`
	Unreadable   int  `json:"unreadable"`
}

// -- Style Checks --

func checkColorContrast(ctx context.Context, page schemas.Page) ([]schemas.Finding, error) {
	var samples []textSample
	if err := page.Evaluate(ctx, contrastScript, &samples); err != nil {
		return nil, fmt.Errorf("collecting text colors: %w", err)
	}

	var nodes []schemas.Node
	for _, s := range samples {
		fg, ok := parseColor(s.Color)
		if !ok {
			continue
		}
		bg, ok := parseColor(s.Background)
		if !ok {
			continue
		}
		bg = bg.over(white)
		ratio := contrastRatio(fg.over(bg), bg)
		required := MinContrastNormal
		if isLargeText(s.FontSize, s.FontWeight) {
			required = MinContrastLarge
		}
		if ratio < required {
			nodes = append(nodes, schemas.Node{
				Target:  s.Target,
				HTML:    s.HTML,
				Message: fmt.Sprintf("Contrast ratio %.2f:1 is below %.1f:1", ratio, required),
			})
		}
	}
	if len(nodes) == 0 {
		return []schemas.Finding{core.Passed(CheckColorContrast, "Color contrast is sufficient")}, nil
	}
	f := core.Violation(CheckColorContrast, schemas.SeverityHigh, fmt.Sprintf("%d element(s) with insufficient color contrast", len(nodes))).
		WithDetails("Text color contrast is insufficient", "Text must have sufficient contrast (4.5:1 for normal text, 3:1 for large text)").
		WithNodes(nodes...)
	return []schemas.Finding{f}, nil
}

func checkFocusStyles(ctx context.Context, page schemas.Page) ([]schemas.Finding, error) {
	var report focusReport
	if err := page.Evaluate(ctx, focusScript, &report); err != nil {
		return nil, fmt.Errorf("inspecting stylesheets: %w", err)
	}
	if report.HasFocusRule || report.Interactive == 0 {
		return []schemas.Finding{core.Passed(CheckFocusStyles, "Focus styles are defined")}, nil
	}
	msg := "No visible focus styles defined"
	if report.Unreadable > 0 {
		msg = fmt.Sprintf("No focus styles found (%d cross-origin stylesheet(s) could not be read)", report.Unreadable)
	}
	f := core.Incomplete(CheckFocusStyles, msg).
		WithDetails("Keyboard focus visibility needs manual testing", "Test with the Tab key to ensure every interactive element shows a visible focus indicator")
	return []schemas.Finding{f}, nil
}

// isLargeText applies the WCAG definition: at least 18pt, or 14pt bold.
func isLargeText(sizePx float64, weight int) bool {
	return sizePx >= 24 || (sizePx >= 18.66 && weight >= 700)
}

// -- Color Math --

type rgba struct {
	r, g, b float64 // 0-255
	a       float64 // 0-1
}

var white = rgba{r: 255, g: 255, b: 255, a: 1}

// over composites c onto an opaque background.
func (c rgba) over(bg rgba) rgba {
	if c.a >= 1 {
		return c
	}
	return rgba{
		r: c.r*c.a + bg.r*(1-c.a),
		g: c.g*c.a + bg.g*(1-c.a),
		b: c.b*c.a + bg.b*(1-c.a),
		a: 1,
	}
}

// parseColor reads the rgb()/rgba() strings produced by getComputedStyle.
func parseColor(s string) (rgba, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	var body string
	switch {
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		body = s[5 : len(s)-1]
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		body = s[4 : len(s)-1]
	default:
		return rgba{}, false
	}
	// Both "r, g, b, a" and the space separated "r g b / a" forms.
	body = strings.NewReplacer(",", " ", "/", " ").Replace(body)
	fields := strings.Fields(body)
	if len(fields) != 3 && len(fields) != 4 {
		return rgba{}, false
	}
	var c rgba
	channels := []*float64{&c.r, &c.g, &c.b}
	for i, ch := range channels {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return rgba{}, false
		}
		*ch = math.Max(0, math.Min(255, v))
	}
	c.a = 1
	if len(fields) == 4 {
		raw := fields[3]
		pct := strings.HasSuffix(raw, "%")
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
		if err != nil {
			return rgba{}, false
		}
		if pct {
			v /= 100
		}
		c.a = math.Max(0, math.Min(1, v))
	}
	return c, true
}

// relativeLuminance is the WCAG relative luminance of an opaque color.
func relativeLuminance(c rgba) float64 {
	linear := func(v float64) float64 {
		v /= 255
		if v <= 0.03928 {
			return v / 12.92
		}
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return 0.2126*linear(c.r) + 0.7152*linear(c.g) + 0.0722*linear(c.b)
}

// contrastRatio returns the WCAG contrast ratio between two opaque colors, 1 to 21.
func contrastRatio(a, b rgba) float64 {
	la, lb := relativeLuminance(a), relativeLuminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}
