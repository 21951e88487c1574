// internal/interaction/values.go
package interaction

import "strings"

// FieldValue is what the engine should do with a form field. Check means the
// field is activated (checked) instead of receiving text.
type FieldValue struct {
	Text  string
	Check bool
}

// Canned values. They are realistic enough to pass common client-side
// validation and harmless if a form is actually submitted.
const (
	ValueEmail      = "test@example.com"
	ValuePassword   = "SecurePass123!@#"
	ValuePhone      = "+1 (555) 123-4567"
	ValueDate       = "01/01/2024"
	ValueDateISO    = "2024-01-01"
	ValueURL        = "https://example.com"
	ValueCreditCard = "4111111111111111"
	ValueNumber     = "42"
	ValueCheckbox   = "on"
	ValueDefault    = "Test Value"
)

type valueRule struct {
	keywords []string
	value    func(inputType string) FieldValue
}

func text(v string) func(string) FieldValue {
	return func(string) FieldValue { return FieldValue{Text: v} }
}

// valueRules are evaluated in order; the first match wins. Field naming is
// checked before the raw input type.
var valueRules = []valueRule{
	{keywords: []string{"email", "mail"}, value: text(ValueEmail)},
	{keywords: []string{"password", "pass"}, value: text(ValuePassword)},
	{keywords: []string{"phone", "tel"}, value: text(ValuePhone)},
	{keywords: []string{"date", "birthday"}, value: func(inputType string) FieldValue {
		// Native date inputs only accept ISO values.
		if inputType == "date" {
			return FieldValue{Text: ValueDateISO}
		}
		return FieldValue{Text: ValueDate}
	}},
	{keywords: []string{"url", "website"}, value: text(ValueURL)},
	{keywords: []string{"card", "credit"}, value: text(ValueCreditCard)},
}

// GenerateValue infers a plausible value for a form field from its type,
// placeholder and name hints. Matching is a case-insensitive substring search
// over the three hints combined. The function is pure.
func GenerateValue(inputType, placeholder, name string) FieldValue {
	typ := strings.ToLower(strings.TrimSpace(inputType))
	hints := strings.ToLower(strings.Join([]string{inputType, placeholder, name}, " "))

	for _, rule := range valueRules {
		for _, kw := range rule.keywords {
			if strings.Contains(hints, kw) {
				return rule.value(typ)
			}
		}
	}

	switch typ {
	case "number":
		return FieldValue{Text: ValueNumber}
	case "checkbox":
		return FieldValue{Text: ValueCheckbox, Check: true}
	}
	return FieldValue{Text: ValueDefault}
}
