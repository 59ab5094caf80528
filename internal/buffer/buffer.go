package buffer

import (
	"log"
	"sync"

	"github.com/john/gmodrelay/internal/message"
)

// Buffer holds chat events awaiting the next poll from the game server.
// Appends and drains are safe for concurrent use; every appended event is
// returned by exactly one drain.
type Buffer struct {
	mu     sync.Mutex
	events []message.Event
	cap    int
}

// New creates a buffer. cap bounds the number of buffered events; when the
// buffer is full the oldest event is evicted on append. cap <= 0 means
// unbounded.
func New(cap int) *Buffer {
	return &Buffer{cap: cap}
}

// Append adds an event to the end of the buffer.
func (b *Buffer) Append(ev message.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cap > 0 && len(b.events) >= b.cap {
		// The game server has not polled in a while; drop the oldest
		// event rather than grow without bound.
		log.Printf("Message buffer full (%d), dropping oldest event from %s", b.cap, b.events[0].Username)
		b.events = b.events[1:]
	}
	b.events = append(b.events, ev)
}

// DrainAll returns all buffered events in arrival order and empties the
// buffer in the same step.
func (b *Buffer) DrainAll() []message.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.events
	b.events = nil
	return drained
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
