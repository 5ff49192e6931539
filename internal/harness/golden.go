package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cascade/internal/engine"
)

// Render formats a result as the plain-text snapshot golden files hold.
// Sequence numbers and reactor ids are left out; order carries the same
// information.
func Render(r *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", r.Scenario)
	fmt.Fprintf(&b, "mode: %s\n", r.Mode)
	fmt.Fprintf(&b, "steps: %d\n", r.Steps)

	b.WriteString("trace:\n")
	for _, ev := range r.Trace {
		fmt.Fprintf(&b, "  %s\n", formatEvent(ev))
	}

	b.WriteString("sinks:\n")
	for _, s := range r.Sinks {
		if len(s.Stacks) == 0 {
			fmt.Fprintf(&b, "  %s: (empty)\n", s.Input)
		}
		for _, st := range s.Stacks {
			fmt.Fprintf(&b, "  %s: %s\n", s.Input, st)
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("warnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}
	if len(r.Errors) > 0 {
		b.WriteString("errors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  %s\n", strings.ReplaceAll(e, "\n", "\n  "))
		}
	}
	return []byte(b.String())
}

func formatEvent(ev engine.TraceEvent) string {
	switch ev.Kind {
	case engine.TraceTransition:
		return fmt.Sprintf("%s transition %s -> %s", ev.Reactor, ev.Detail, ev.Subject)
	case engine.TraceFired:
		return fmt.Sprintf("%s fired %s", ev.Reactor, ev.Subject)
	case engine.TraceDropped, engine.TraceRejected:
		return fmt.Sprintf("%s %s %s %s", ev.Reactor, ev.Kind, ev.Subject, ev.Detail)
	default:
		return fmt.Sprintf("%s %s: %s", ev.Reactor, ev.Kind, ev.Detail)
	}
}

// RunWithGolden runs sc deterministically and compares the snapshot with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(context.Background(), sc)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, sc.Name, result)
	return result, nil
}

// AssertGolden compares a result's snapshot with the named golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Render(result))
}
