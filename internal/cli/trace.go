package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cascade/internal/engine"
	"github.com/roach88/cascade/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Runs     bool   // list runs instead of events
	Summary  bool   // per-reactor counts instead of events
	Reactor  string // optional - filter to one reactor
	Kind     string // optional - filter to one event kind
}

// TraceEvent is one event of the timeline.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Kind      string `json:"kind"`
	ReactorID string `json:"reactor_id"`
	Reactor   string `json:"reactor"`
	Subject   string `json:"subject,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// RunEntry is one line of the run listing.
type RunEntry struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Events int    `json:"events"`
}

// ReactorStats counts one reactor's events by kind.
type ReactorStats struct {
	Reactor     string `json:"reactor"`
	Transitions int    `json:"transitions"`
	Fired       int    `json:"fired"`
	Dropped     int    `json:"dropped"`
	Rejected    int    `json:"rejected"`
	Exceptions  int    `json:"exceptions"`
}

// TraceResult holds the trace output of one run.
type TraceResult struct {
	RunID    string         `json:"run_id"`
	Label    string         `json:"label"`
	Timeline []TraceEvent   `json:"timeline,omitempty"`
	Reactors []ReactorStats `json:"reactors,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run]",
		Short: "Inspect recorded runs",
		Long: `Inspect the trace events recorded by "cascade run --db".

The run is named by its id or any unique prefix of it; without one the
latest run is shown.

Examples:
  cascade trace --db trace.db --runs
  cascade trace --db trace.db
  cascade trace --db trace.db 0192f3 --reactor sink --kind dropped
  cascade trace --db trace.db --summary --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			return runTrace(opts, ref, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Runs, "runs", false, "list recorded runs")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "count events per reactor")
	cmd.Flags().StringVar(&opts.Reactor, "reactor", "", "only events of this reactor")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only events of this kind (transition|fired|dropped|rejected|exception)")

	return cmd
}

func runTrace(opts *TraceOptions, ref string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Opening creates missing databases; a typo should not.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	kind, err := parseKind(opts.Kind)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --kind", err)
	}

	st, err := trace.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeTrace, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Runs {
		return listRuns(ctx, st, formatter)
	}

	info, err := st.ResolveRun(ctx, ref)
	if err != nil {
		_ = formatter.Error(ErrCodeTrace, err.Error(), nil)
		if errors.Is(err, trace.ErrRunNotFound) {
			return WrapExitError(ExitFailure, "run not found", err)
		}
		return WrapExitError(ExitCommandError, "resolve run", err)
	}
	result := TraceResult{RunID: info.ID, Label: info.Label}

	if opts.Summary {
		summary, err := st.Summary(ctx, info.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "summarize run", err)
		}
		for _, s := range summary {
			result.Reactors = append(result.Reactors, ReactorStats(s))
		}
		return formatter.Success(result, func(w io.Writer) { writeSummary(w, result) })
	}

	events, err := st.Events(ctx, info.ID, trace.Filter{Reactor: opts.Reactor, Kind: kind})
	if err != nil {
		return WrapExitError(ExitCommandError, "read events", err)
	}
	result.Timeline = buildTimeline(events)
	return formatter.Success(result, func(w io.Writer) { writeTimeline(w, result) })
}

func parseKind(name string) (engine.TraceKind, error) {
	switch k := engine.TraceKind(name); k {
	case "", engine.TraceTransition, engine.TraceFired, engine.TraceDropped, engine.TraceRejected, engine.TraceException:
		return k, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", name)
	}
}

func listRuns(ctx context.Context, st *trace.Store, formatter *OutputFormatter) error {
	runs, err := st.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list runs", err)
	}
	entries := make([]RunEntry, len(runs))
	for i, r := range runs {
		entries[i] = RunEntry{ID: r.ID, Label: r.Label, Events: r.Events}
	}
	return formatter.Success(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%s  %-24s %6d events\n", e.ID, e.Label, e.Events)
		}
	})
}

// buildTimeline converts stored events to timeline entries.
func buildTimeline(events []engine.TraceEvent) []TraceEvent {
	timeline := make([]TraceEvent, len(events))
	for i, ev := range events {
		timeline[i] = TraceEvent{
			Seq:       ev.Seq,
			Kind:      string(ev.Kind),
			ReactorID: ev.ReactorID,
			Reactor:   ev.Reactor,
			Subject:   ev.Subject,
			Detail:    ev.Detail,
		}
	}
	return timeline
}

func writeTimeline(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Run: %s (%s)\n", result.RunID, result.Label)
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	fmt.Fprintln(w)
	for _, ev := range result.Timeline {
		line := fmt.Sprintf("[%d] %-10s %s", ev.Seq, ev.Kind, ev.Reactor)
		switch engine.TraceKind(ev.Kind) {
		case engine.TraceTransition:
			line += fmt.Sprintf(" %s -> %s", ev.Detail, ev.Subject)
		case engine.TraceException:
			line += ": " + ev.Detail
		default:
			if ev.Subject != "" {
				line += " " + ev.Subject
			}
			if ev.Detail != "" {
				line += " " + ev.Detail
			}
		}
		fmt.Fprintln(w, line)
	}
}

func writeSummary(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Run: %s (%s)\n\n", result.RunID, result.Label)
	fmt.Fprintf(w, "%-24s %11s %6s %8s %9s %11s\n", "REACTOR", "TRANSITIONS", "FIRED", "DROPPED", "REJECTED", "EXCEPTIONS")
	for _, r := range result.Reactors {
		fmt.Fprintf(w, "%-24s %11d %6d %8d %9d %11d\n", r.Reactor, r.Transitions, r.Fired, r.Dropped, r.Rejected, r.Exceptions)
	}
}
