// internal/interaction/state.go
package interaction

import (
	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// State tracks what one page run has already done. It is owned by the caller
// and must not be shared between concurrent page runs. Engine.Run resets it.
type State struct {
	VisitedURLs        map[string]bool
	InteractedElements map[string]bool

	FormsFilled    []schemas.FormRecord
	LinksClicked   []schemas.LinkRecord
	ButtonsClicked []schemas.ButtonRecord
	Errors         []schemas.InteractionError

	// attempts counts interactions charged against the budget.
	attempts int
	// succeeded counts interactions that completed without error.
	succeeded int
}

// NewState returns an empty, ready to use State.
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset clears all tracking so a new run starts from a clean state.
func (s *State) Reset() {
	s.VisitedURLs = make(map[string]bool)
	s.InteractedElements = make(map[string]bool)
	s.FormsFilled = nil
	s.LinksClicked = nil
	s.ButtonsClicked = nil
	s.Errors = nil
	s.attempts = 0
	s.succeeded = 0
}

// Attempts returns the number of budget units consumed in the current run.
func (s *State) Attempts() int {
	return s.attempts
}

func (s *State) markInteracted(locator string) {
	s.InteractedElements[locator] = true
}

func (s *State) recordError(kind schemas.InteractionType, target string, err error) {
	s.Errors = append(s.Errors, schemas.InteractionError{
		Type:    kind,
		Target:  target,
		Message: err.Error(),
	})
}

// Summary builds the serializable report for the current run.
func (s *State) Summary() *schemas.InteractionSummary {
	return &schemas.InteractionSummary{
		InteractionsPerformed: s.succeeded,
		FormsTested:           len(s.FormsFilled),
		LinksVisited:          len(s.LinksClicked),
		ButtonsClicked:        len(s.ButtonsClicked),
		Errors:                append([]schemas.InteractionError{}, s.Errors...),
		FormsFilled:           append([]schemas.FormRecord{}, s.FormsFilled...),
		LinksClicked:          append([]schemas.LinkRecord{}, s.LinksClicked...),
		ButtonClicks:          append([]schemas.ButtonRecord{}, s.ButtonsClicked...),
	}
}
