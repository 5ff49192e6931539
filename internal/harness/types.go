package harness

import (
	"fmt"

	"github.com/roach88/cascade/internal/engine"
)

// Result is the outcome of running a scenario.
type Result struct {
	Scenario string `json:"scenario"`
	Mode     Mode   `json:"mode"`

	// Pass is true when the run finished cleanly and every expectation
	// held.
	Pass bool `json:"pass"`

	// Steps counts crank passes that fired something. Pumped runs do not
	// count steps.
	Steps int `json:"steps"`

	Trace    []engine.TraceEvent `json:"trace"`
	Sinks    []SinkContents      `json:"sinks"`
	Warnings []string            `json:"warnings,omitempty"`
	Errors   []string            `json:"errors,omitempty"`
}

// SinkContents lists the stacks left on a sink input, oldest first, in
// operand.Stack.String form.
type SinkContents struct {
	Input  string   `json:"input"`
	Stacks []string `json:"stacks"`
}

func newResult(sc *Scenario, mode Mode) *Result {
	return &Result{
		Scenario: sc.Name,
		Mode:     mode,
		Pass:     true,
		Trace:    []engine.TraceEvent{},
		Sinks:    []SinkContents{},
	}
}

// AddError records a failure.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Sink returns the contents recorded for input, or nil.
func (r *Result) Sink(input string) []string {
	for _, s := range r.Sinks {
		if s.Input == input {
			return s.Stacks
		}
	}
	return nil
}

// Count returns how many trace events of kind name reactor and subject.
func (r *Result) Count(kind engine.TraceKind, reactor, subject string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Kind == kind && ev.Reactor == reactor && ev.Subject == subject {
			n++
		}
	}
	return n
}

// Exceptions returns the exception events in the trace.
func (r *Result) Exceptions() []engine.TraceEvent {
	var out []engine.TraceEvent
	for _, ev := range r.Trace {
		if ev.Kind == engine.TraceException {
			out = append(out, ev)
		}
	}
	return out
}
