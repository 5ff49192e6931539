package engine

import (
	"context"
	"sync"
)

// TraceKind classifies a recorded runtime event.
type TraceKind string

const (
	// TraceTransition is a lifecycle state change. Subject is the new
	// state, Detail the old one.
	TraceTransition TraceKind = "transition"
	// TraceFired is a reaction body starting. Subject is the reaction.
	TraceFired TraceKind = "fired"
	// TraceDropped is a stack discarded by an overflow policy. Subject is
	// the input, Detail the policy.
	TraceDropped TraceKind = "dropped"
	// TraceRejected is a THROW-policy refusal.
	TraceRejected TraceKind = "rejected"
	// TraceException is an error routed to an exception handler. Detail is
	// the error text.
	TraceException TraceKind = "exception"
)

// TraceEvent is one diagnostic record. Message payloads are never part of
// it.
type TraceEvent struct {
	Seq       int64     `json:"seq"`
	Kind      TraceKind `json:"kind"`
	ReactorID string    `json:"reactor_id"`
	Reactor   string    `json:"reactor"`
	Subject   string    `json:"subject,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Recorder receives trace events. Record is called on whatever goroutine
// produced the event and must be safe for concurrent use. Errors are
// logged and otherwise ignored.
type Recorder interface {
	Record(ctx context.Context, ev TraceEvent) error
}

// MemoryRecorder keeps events in memory, in the order they were recorded.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record implements Recorder.
func (m *MemoryRecorder) Record(_ context.Context, ev TraceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemoryRecorder) Events() []TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TraceEvent(nil), m.events...)
}

// Kinds returns the events of the given kind.
func (m *MemoryRecorder) Kinds(kind TraceKind) []TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TraceEvent
	for _, ev := range m.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
