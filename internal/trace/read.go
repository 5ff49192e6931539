package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/cascade/internal/engine"
)

// ErrRunNotFound is returned when a run id matches nothing.
var ErrRunNotFound = errors.New("trace: run not found")

// RunInfo describes a recorded run.
type RunInfo struct {
	ID     string
	Label  string
	Config string
	Events int
}

// Filter narrows an event listing. Zero fields match everything.
type Filter struct {
	Reactor string
	Kind    engine.TraceKind
}

// ReactorSummary counts one reactor's events by kind.
type ReactorSummary struct {
	Reactor     string
	Transitions int
	Fired       int
	Dropped     int
	Rejected    int
	Exceptions  int
}

// Runs lists every run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.label, r.config, COUNT(e.seq)
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.id
		GROUP BY r.ord
		ORDER BY r.ord ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		var ri RunInfo
		if err := rows.Scan(&ri.ID, &ri.Label, &ri.Config, &ri.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, ri)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ResolveRun finds a run by id or by a unique id prefix. An empty ref
// selects the most recent run.
func (s *Store) ResolveRun(ctx context.Context, ref string) (RunInfo, error) {
	runs, err := s.Runs(ctx)
	if err != nil {
		return RunInfo{}, err
	}
	if ref == "" {
		if len(runs) == 0 {
			return RunInfo{}, ErrRunNotFound
		}
		return runs[len(runs)-1], nil
	}
	var found []RunInfo
	for _, ri := range runs {
		if ri.ID == ref {
			return ri, nil
		}
		if strings.HasPrefix(ri.ID, ref) {
			found = append(found, ri)
		}
	}
	switch len(found) {
	case 0:
		return RunInfo{}, fmt.Errorf("%w: %q", ErrRunNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return RunInfo{}, fmt.Errorf("trace: run prefix %q is ambiguous (%d runs)", ref, len(found))
	}
}

// Events lists a run's events in seq order.
func (s *Store) Events(ctx context.Context, runID string, f Filter) ([]engine.TraceEvent, error) {
	query := `
		SELECT seq, kind, reactor_id, reactor, subject, detail
		FROM events
		WHERE run_id = ?`
	args := []any{runID}
	if f.Reactor != "" {
		query += " AND reactor = ?"
		args = append(args, f.Reactor)
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(f.Kind))
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []engine.TraceEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (engine.TraceEvent, error) {
	var ev engine.TraceEvent
	var kind string
	if err := rows.Scan(&ev.Seq, &kind, &ev.ReactorID, &ev.Reactor, &ev.Subject, &ev.Detail); err != nil {
		return engine.TraceEvent{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = engine.TraceKind(kind)
	return ev, nil
}

// Summary counts a run's events per reactor, ordered by reactor name.
func (s *Store) Summary(ctx context.Context, runID string) ([]ReactorSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reactor,
			SUM(kind = 'transition'),
			SUM(kind = 'fired'),
			SUM(kind = 'dropped'),
			SUM(kind = 'rejected'),
			SUM(kind = 'exception')
		FROM events
		WHERE run_id = ?
		GROUP BY reactor
		ORDER BY reactor COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	out := []ReactorSummary{}
	for rows.Next() {
		var rs ReactorSummary
		if err := rows.Scan(&rs.Reactor, &rs.Transitions, &rs.Fired, &rs.Dropped, &rs.Rejected, &rs.Exceptions); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return out, nil
}
