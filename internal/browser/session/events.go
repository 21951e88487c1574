// internal/browser/session/events.go
package session

import (
	"sync"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// DefaultEventBufferSize is used when a non-positive size is requested.
const DefaultEventBufferSize = 200

// eventBuffer is a fixed-size ring of page events. When full, the oldest event
// is overwritten and counted as dropped. Safe for concurrent use.
type eventBuffer struct {
	mu      sync.Mutex
	items   []schemas.PageEvent
	start   int
	count   int
	dropped int
}

func newEventBuffer(size int) *eventBuffer {
	if size <= 0 {
		size = DefaultEventBufferSize
	}
	return &eventBuffer{items: make([]schemas.PageEvent, size)}
}

func (b *eventBuffer) add(ev schemas.PageEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.items)
	if b.count < size {
		b.items[(b.start+b.count)%size] = ev
		b.count++
		return
	}
	b.items[b.start] = ev
	b.start = (b.start + 1) % size
	b.dropped++
}

// drain returns the buffered events oldest first, split by kind, and empties
// the buffer.
func (b *eventBuffer) drain() schemas.EventBatch {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := schemas.EventBatch{
		ConsoleErrors:  []schemas.PageEvent{},
		FailedRequests: []schemas.PageEvent{},
		Dropped:        b.dropped,
	}
	size := len(b.items)
	for i := 0; i < b.count; i++ {
		ev := b.items[(b.start+i)%size]
		switch ev.Kind {
		case schemas.EventRequestFailed:
			batch.FailedRequests = append(batch.FailedRequests, ev)
		default:
			batch.ConsoleErrors = append(batch.ConsoleErrors, ev)
		}
		b.items[(b.start+i)%size] = schemas.PageEvent{}
	}
	b.start, b.count, b.dropped = 0, 0, 0
	return batch
}

func (b *eventBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
