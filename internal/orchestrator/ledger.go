// internal/orchestrator/ledger.go
package orchestrator

import (
	"sync"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// eventLedger wraps a page so every drain of its event buffer is also kept
// for the page report. Audits that drain events see only what is new; the
// report sees everything.
type eventLedger struct {
	schemas.PageSession

	mu    sync.Mutex
	total schemas.EventBatch
}

func newEventLedger(page schemas.PageSession) *eventLedger {
	return &eventLedger{
		PageSession: page,
		total: schemas.EventBatch{
			ConsoleErrors:  []schemas.PageEvent{},
			FailedRequests: []schemas.PageEvent{},
		},
	}
}

func (l *eventLedger) DrainEvents() schemas.EventBatch {
	batch := l.PageSession.DrainEvents()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total.ConsoleErrors = append(l.total.ConsoleErrors, batch.ConsoleErrors...)
	l.total.FailedRequests = append(l.total.FailedRequests, batch.FailedRequests...)
	l.total.Dropped += batch.Dropped
	return batch
}

// All drains anything still buffered and returns every event seen so far.
func (l *eventLedger) All() schemas.EventBatch {
	l.DrainEvents()
	l.mu.Lock()
	defer l.mu.Unlock()
	return schemas.EventBatch{
		ConsoleErrors:  append([]schemas.PageEvent{}, l.total.ConsoleErrors...),
		FailedRequests: append([]schemas.PageEvent{}, l.total.FailedRequests...),
		Dropped:        l.total.Dropped,
	}
}
