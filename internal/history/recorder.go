package history

import (
	"context"
	"sync"
	"time"
)

// Recorder appends events to the activity feed. Implementations must be safe
// for concurrent use.
type Recorder interface {
	Append(ctx context.Context, event Event) error
}

// InMemory collects events in a slice. It backs tests and local development.
type InMemory struct {
	mu     sync.Mutex
	events []Event
}

// NewInMemory constructs an empty in-memory recorder.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (r *InMemory) Append(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *InMemory) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// BySubject returns recorded events for one subject, oldest first.
func (r *InMemory) BySubject(subject string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, event := range r.events {
		if event.SubjectID.String() == subject {
			out = append(out, event)
		}
	}
	return out
}
