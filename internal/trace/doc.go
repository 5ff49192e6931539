// Package trace stores engine trace events in SQLite.
//
// A database holds any number of runs. Each run is one engine lifetime
// and receives its events through a *Run, which implements
// engine.Recorder:
//
//	st, err := trace.Open("trace.db")
//	run, err := st.BeginRun(ctx, "pipeline", "")
//	e := engine.New(engine.WithRecorder(run))
//
// Events are keyed by (run, seq), where seq comes from the engine's
// logical clock. Every query orders by seq, so reads are identical
// however the events were interleaved on the way in. Writes are
// idempotent: recording the same seq twice keeps the first event.
//
// Only diagnostic metadata is stored. Message payloads never are.
//
// # Database Configuration
//
//   - WAL mode: readers (the trace command) do not block the writer
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON: events must belong to a known run
package trace
