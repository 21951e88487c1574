// internal/interaction/discovery.go
package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// ErrDiscovery wraps failures of the underlying page query mechanism.
var ErrDiscovery = errors.New("element discovery failed")

// Selectors used to classify the interactive surface of a page.
const (
	FormSelector   = "form"
	LinkSelector   = "a[href]"
	ButtonSelector = `button, [role="button"], input[type="button"], input[type="submit"]`
	InputSelector  = `input:not([type="hidden"]), textarea, select`

	// FieldSelector resolves the input-like descendants of a form.
	FieldSelector = "input, textarea, select"
	// SubmitSelector resolves the submit controls of a form.
	SubmitSelector = `button[type="submit"], input[type="submit"], button:not([type])`
)

// nonFillableTypes are input types that never receive a generated value.
var nonFillableTypes = map[string]bool{
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
	"hidden": true,
	"file":   true,
}

// Elements is the result of one discovery pass, partitioned by kind.
type Elements struct {
	Forms   []schemas.DiscoveredElement
	Links   []schemas.DiscoveredElement
	Buttons []schemas.DiscoveredElement
	Inputs  []schemas.DiscoveredElement
}

// Total counts every discovered element.
func (e Elements) Total() int {
	return len(e.Forms) + len(e.Links) + len(e.Buttons) + len(e.Inputs)
}

// Discover queries the visible interactive elements of the page. It has no
// side effects on the page. A form that vanishes between queries is skipped;
// any other query failure is returned wrapped in ErrDiscovery.
func Discover(ctx context.Context, page schemas.Page) (Elements, error) {
	var out Elements

	forms, err := page.QueryVisible(ctx, FormSelector)
	if err != nil {
		return out, fmt.Errorf("%w: forms: %v", ErrDiscovery, err)
	}
	for idx, snap := range forms {
		fields, err := page.QueryWithin(ctx, snap.Locator, FieldSelector)
		if errors.Is(err, schemas.ErrElementNotFound) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("%w: fields of %s: %v", ErrDiscovery, snap.Locator, err)
		}
		out.Forms = append(out.Forms, classifyForm(idx, snap, len(FillableFields(fields))))
	}

	links, err := page.QueryVisible(ctx, LinkSelector)
	if err != nil {
		return out, fmt.Errorf("%w: links: %v", ErrDiscovery, err)
	}
	for _, snap := range links {
		out.Links = append(out.Links, classifyLink(snap))
	}

	buttons, err := page.QueryVisible(ctx, ButtonSelector)
	if err != nil {
		return out, fmt.Errorf("%w: buttons: %v", ErrDiscovery, err)
	}
	for _, snap := range buttons {
		out.Buttons = append(out.Buttons, classifyButton(snap))
	}

	inputs, err := page.QueryVisible(ctx, InputSelector)
	if err != nil {
		return out, fmt.Errorf("%w: inputs: %v", ErrDiscovery, err)
	}
	for _, snap := range inputs {
		out.Inputs = append(out.Inputs, classifyInput(snap))
	}

	return out, nil
}

// FillableFields drops controls that should not receive a generated value.
func FillableFields(fields []schemas.ElementSnapshot) []schemas.ElementSnapshot {
	out := make([]schemas.ElementSnapshot, 0, len(fields))
	for _, f := range fields {
		if f.Tag == "input" && nonFillableTypes[f.InputType()] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func classifyForm(idx int, snap schemas.ElementSnapshot, fieldCount int) schemas.DiscoveredElement {
	id := snap.Attr("id")
	if id == "" {
		id = fmt.Sprintf("form-%d", idx)
	}
	return schemas.DiscoveredElement{
		Kind:       schemas.KindForm,
		LocatorKey: snap.Locator,
		FormID:     id,
		FieldCount: fieldCount,
	}
}

func classifyLink(snap schemas.ElementSnapshot) schemas.DiscoveredElement {
	return schemas.DiscoveredElement{
		Kind:       schemas.KindLink,
		LocatorKey: snap.Locator,
		Href:       snap.Attr("href"),
		URL:        snap.URL,
		Text:       normalizeText(snap.Text),
		AriaLabel:  snap.Attr("aria-label"),
	}
}

func classifyButton(snap schemas.ElementSnapshot) schemas.DiscoveredElement {
	label := normalizeText(snap.Text)
	if label == "" && snap.Tag == "input" {
		label = snap.Attr("value")
	}
	return schemas.DiscoveredElement{
		Kind:       schemas.KindButton,
		LocatorKey: snap.Locator,
		Text:       label,
		AriaLabel:  snap.Attr("aria-label"),
	}
}

func classifyInput(snap schemas.ElementSnapshot) schemas.DiscoveredElement {
	return schemas.DiscoveredElement{
		Kind:        schemas.KindInput,
		LocatorKey:  snap.Locator,
		InputType:   snap.InputType(),
		Name:        snap.Attr("name"),
		Placeholder: snap.Attr("placeholder"),
	}
}

// normalizeText collapses whitespace runs, matching how visible text is compared at click time.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
