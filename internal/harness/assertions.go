package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/cascade/internal/engine"
)

// AssertionError describes one expectation that did not hold.
type AssertionError struct {
	Type     string // sinks, fired, dropped, rejected or exceptions
	Subject  string // endpoint or reaction the expectation is about
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "expectation failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " %s", e.Subject)
	}
	fmt.Fprintf(&buf, "\n  expected: %s\n  actual:   %s", e.Expected, e.Actual)
	return buf.String()
}

// evaluate checks every expectation and returns the failures in a stable
// order.
func evaluate(r *Result, exp *Expect) []string {
	var failures []string
	fail := func(err error) {
		if err != nil {
			failures = append(failures, err.Error())
		}
	}

	for _, ref := range sortedKeys(exp.Sinks) {
		fail(assertSink(r, ref, exp.Sinks[ref]))
	}
	for _, ref := range sortedKeys(exp.Fired) {
		fail(assertCount(r, "fired", engine.TraceFired, ref, exp.Fired[ref]))
	}
	for _, ref := range sortedKeys(exp.Dropped) {
		fail(assertCount(r, "dropped", engine.TraceDropped, ref, exp.Dropped[ref]))
	}
	for _, ref := range sortedKeys(exp.Rejected) {
		fail(assertCount(r, "rejected", engine.TraceRejected, ref, exp.Rejected[ref]))
	}
	if exp.Exceptions != nil {
		fail(assertExceptions(r, *exp.Exceptions))
	}
	return failures
}

func assertSink(r *Result, ref string, want []string) error {
	got := r.Sink(ref)
	if got == nil {
		got = []string{}
	}
	if want == nil {
		want = []string{}
	}
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     "sinks",
		Subject:  ref,
		Expected: formatStacks(want),
		Actual:   formatStacks(got),
	}
}

func assertCount(r *Result, typ string, kind engine.TraceKind, ref string, want int) error {
	reactor, subject, _ := splitEndpoint(ref)
	got := r.Count(kind, reactor, subject)
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Subject:  ref,
		Expected: fmt.Sprintf("%d events", want),
		Actual:   fmt.Sprintf("%d events", got),
	}
}

func assertExceptions(r *Result, want int) error {
	got := r.Exceptions()
	if len(got) == want {
		return nil
	}
	details := make([]string, len(got))
	for i, ev := range got {
		details[i] = ev.Reactor + ": " + ev.Detail
	}
	actual := fmt.Sprintf("%d", len(got))
	if len(details) > 0 {
		actual += " (" + strings.Join(details, "; ") + ")"
	}
	return &AssertionError{
		Type:     "exceptions",
		Expected: fmt.Sprintf("%d", want),
		Actual:   actual,
	}
}

func formatStacks(stacks []string) string {
	if len(stacks) == 0 {
		return "(empty)"
	}
	return strings.Join(stacks, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
