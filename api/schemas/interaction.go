package schemas

// -- Interaction Schemas --

// ElementKind classifies a discovered element.
type ElementKind string

const (
	KindForm   ElementKind = "form"
	KindLink   ElementKind = "link"
	KindButton ElementKind = "button"
	KindInput  ElementKind = "input"
)

// DiscoveredElement is a classified, re-resolvable candidate for interaction.
// Only the fields relevant to Kind are populated.
type DiscoveredElement struct {
	Kind       ElementKind `json:"kind"`
	LocatorKey string      `json:"locator_key"`

	// Forms.
	FormID     string `json:"form_id,omitempty"`
	FieldCount int    `json:"field_count,omitempty"`

	// Links.
	Href string `json:"href,omitempty"`
	URL  string `json:"url,omitempty"`

	// Links and buttons.
	Text      string `json:"text,omitempty"`
	AriaLabel string `json:"aria_label,omitempty"`

	// Inputs.
	InputType   string `json:"input_type,omitempty"`
	Name        string `json:"name,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Label is the text used to re-resolve a button at click time.
func (e DiscoveredElement) Label() string {
	if e.Text != "" {
		return e.Text
	}
	return e.AriaLabel
}

// FormRecord logs one filled form.
type FormRecord struct {
	ID        string `json:"id"`
	Fields    int    `json:"fields"`
	Submitted bool   `json:"submitted"`
}

// LinkRecord logs one followed link.
type LinkRecord struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// ButtonRecord logs one clicked button.
type ButtonRecord struct {
	Text string `json:"text"`
}

// InteractionType names the phase an interaction error happened in.
type InteractionType string

const (
	InteractionForm   InteractionType = "form_interaction"
	InteractionLink   InteractionType = "link_interaction"
	InteractionButton InteractionType = "button_interaction"
)

// InteractionError records a recovered per-element failure.
type InteractionError struct {
	Type    InteractionType `json:"type"`
	Target  string          `json:"target,omitempty"`
	Message string          `json:"message"`
}

// InteractionSummary is the serializable outcome of one interaction run.
type InteractionSummary struct {
	InteractionsPerformed int                `json:"interactions_performed"`
	FormsTested           int                `json:"forms_tested"`
	LinksVisited          int                `json:"links_visited"`
	ButtonsClicked        int                `json:"buttons_clicked"`
	Errors                []InteractionError `json:"errors"`
	FormsFilled           []FormRecord       `json:"forms_filled"`
	LinksClicked          []LinkRecord       `json:"links_clicked"`
	ButtonClicks          []ButtonRecord     `json:"button_clicks"`
}
