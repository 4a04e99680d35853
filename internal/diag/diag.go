// Package diag keeps a bounded in-memory ring of recent subprocess and
// archive failures for the operator-facing debug endpoints. It replaces a
// single last-error slot: writes never block, reads get a snapshot, and old
// entries fall off the back instead of growing without bound.
package diag

import (
	"sync"
	"time"
)

// DefaultCapacity is the ring size used by NewRing when callers pass <= 0.
const DefaultCapacity = 32

// Event is one captured failure. Command and Stderr are raw operator data and
// are only ever exposed through the diagnostic endpoints.
type Event struct {
	Time    time.Time `json:"time"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	Command string    `json:"command,omitempty"`
	Stderr  string    `json:"stderr,omitempty"`
}

// Ring is a fixed-capacity, concurrency-safe event buffer.
type Ring struct {
	mu     sync.Mutex
	events []Event
	next   int
	filled bool
}

// NewRing returns a ring holding at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{events: make([]Event, capacity)}
}

// Append records an event, stamping it with the current time if unset.
// The oldest event is overwritten once the ring is full.
func (r *Ring) Append(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.next] = e
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.filled = true
	}
}

// Last returns the most recent event, or false if none has been recorded.
func (r *Ring) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next == 0 && !r.filled {
		return Event{}, false
	}
	idx := r.next - 1
	if idx < 0 {
		idx = len(r.events) - 1
	}
	return r.events[idx], true
}

// Snapshot returns a copy of all recorded events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.filled {
		out := make([]Event, r.next)
		copy(out, r.events[:r.next])
		return out
	}
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	out = append(out, r.events[:r.next]...)
	return out
}
