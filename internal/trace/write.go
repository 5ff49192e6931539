package trace

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/cascade/internal/engine"
)

// Run records the events of one engine lifetime. It implements
// engine.Recorder and is safe for concurrent use.
type Run struct {
	store *Store
	id    string
}

// ID returns the run's identifier.
func (r *Run) ID() string { return r.id }

// BeginRun registers a new run. label names it in listings; config is
// an optional rendering of the configuration it ran with.
func (s *Store) BeginRun(ctx context.Context, label, config string) (*Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return s.beginRun(ctx, id.String(), label, config)
}

func (s *Store) beginRun(ctx context.Context, id, label, config string) (*Run, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, config)
		VALUES (?, ?, ?)
	`, id, label, config)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return &Run{store: s, id: id}, nil
}

// Record implements engine.Recorder. A second event with an already
// recorded seq is ignored.
func (r *Run) Record(ctx context.Context, ev engine.TraceEvent) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, kind, reactor_id, reactor, subject, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		r.id,
		ev.Seq,
		string(ev.Kind),
		ev.ReactorID,
		ev.Reactor,
		ev.Subject,
		ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("record %s event %d: %w", ev.Kind, ev.Seq, err)
	}
	return nil
}

var _ engine.Recorder = (*Run)(nil)
