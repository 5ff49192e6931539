package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/roach88/cascade/internal/logging"
)

// State is a reactor's lifecycle state. Reactors move through the states in
// order and never skip one.
type State int32

const (
	Unstarted State = iota
	Starting
	Started
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "UNSTARTED"
	case Starting:
		return "STARTING"
	case Started:
		return "STARTED"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Phase identifies the lifecycle callback being delivered.
type Phase int

const (
	// PhaseSetup runs while the reactor is STARTING.
	PhaseSetup Phase = iota
	// PhaseStart runs once every reactor started together is STARTED.
	PhaseStart
	// PhaseStop runs on entering STOPPING.
	PhaseStop
	// PhaseDestroy runs once every stopping reactor reports destroyable.
	PhaseDestroy
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseStart:
		return "start"
	case PhaseStop:
		return "stop"
	case PhaseDestroy:
		return "destroy"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// LifecycleFunc receives every lifecycle phase of one reactor. Errors and
// panics go to the reactor's exception handler; they do not stop the
// transition.
type LifecycleFunc func(ctx context.Context, r *Reactor, phase Phase) error

// ExceptionHandler receives errors and recovered panics from reaction
// bodies and lifecycle callbacks.
type ExceptionHandler func(r *Reactor, err error)

// PanicError wraps a value recovered from a reaction body or lifecycle
// callback.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Unwrap exposes a panicked error value to errors.Is and errors.As.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// guarded runs f, converting a panic into a *PanicError.
func guarded(f func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return f()
}

// transition moves r from one state to the next, failing with ILLEGAL_STATE
// if r is not in from.
func (r *Reactor) transition(from, to State) error {
	if !r.state.CompareAndSwap(int32(from), int32(to)) {
		return newIllegalStateError(r, fmt.Sprintf("transition %s -> %s", from, to), r.State())
	}
	r.logger.Log(logging.Debug, "reactor {} {} -> {}", r.Name(), from, to)
	r.engine.record(TraceTransition, r, to.String(), from.String())
	return nil
}

// deliver runs the lifecycle callback for phase, if any.
func (r *Reactor) deliver(ctx context.Context, phase Phase) {
	if r.lifecycle == nil {
		return
	}
	err := guarded(func() error { return r.lifecycle(ctx, r, phase) })
	if err != nil {
		r.raise(fmt.Errorf("%s: %w", phase, err))
	}
}

// raise hands err to the exception handler. A panicking handler is logged
// and otherwise ignored.
func (r *Reactor) raise(err error) {
	r.engine.record(TraceException, r, "", err.Error())
	herr := guarded(func() error {
		r.onException(r, err)
		return nil
	})
	if herr != nil {
		r.logger.Log(logging.Error, "exception handler of {} failed: {}", r.Name(), herr)
	}
}

func defaultExceptionHandler(r *Reactor, err error) {
	r.logger.Log(logging.Error, "reactor {} raised: {}", r.Name(), err)
}

// setup moves UNSTARTED -> STARTING and delivers PhaseSetup.
func (r *Reactor) setup(ctx context.Context) error {
	if err := r.transition(Unstarted, Starting); err != nil {
		return err
	}
	r.Build()
	r.deliver(ctx, PhaseSetup)
	return nil
}

// start moves STARTING -> STARTED and delivers PhaseStart.
func (r *Reactor) start(ctx context.Context) error {
	if err := r.transition(Starting, Started); err != nil {
		return err
	}
	r.deliver(ctx, PhaseStart)
	return nil
}

// stop moves STARTED -> STOPPING and delivers PhaseStop.
func (r *Reactor) stop(ctx context.Context) error {
	if err := r.transition(Started, Stopping); err != nil {
		return err
	}
	r.deliver(ctx, PhaseStop)
	return nil
}

// isDestroyable polls the destroyable callback. A failing callback counts
// as ready so a broken reactor cannot hold up shutdown.
func (r *Reactor) isDestroyable() bool {
	if r.destroyable == nil {
		return true
	}
	ready := true
	if err := guarded(func() error {
		ready = r.destroyable()
		return nil
	}); err != nil {
		r.raise(fmt.Errorf("destroyable: %w", err))
		return true
	}
	return ready
}

// destroy delivers PhaseDestroy, releases anything still queued and moves
// STOPPING -> STOPPED.
func (r *Reactor) destroy(ctx context.Context) error {
	r.crankMu.Lock()
	defer r.crankMu.Unlock()
	r.deliver(ctx, PhaseDestroy)
	for _, in := range r.inputs {
		if n := in.Clear(); n > 0 {
			r.logger.Log(logging.Debug, "reactor {} discarded {} messages on {}", r.Name(), n, in.Name())
		}
	}
	return r.transition(Stopping, Stopped)
}
