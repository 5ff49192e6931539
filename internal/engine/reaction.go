package engine

import (
	"context"
	"sync/atomic"
)

// ReactionFunc is a reaction body. It typically polls its required inputs
// and sends results through the reactor's outputs. A returned error or a
// panic is routed to the reactor's exception handler.
type ReactionFunc func(ctx context.Context) error

// Reaction is a guarded body: it is ready when every required input holds
// at least one message.
type Reaction struct {
	reactor  *Reactor
	name     string
	required []*Input
	body     ReactionFunc
	fired    atomic.Int64
}

// Name returns the reaction's name.
func (rx *Reaction) Name() string { return rx.name }

// Reactor returns the owning reactor.
func (rx *Reaction) Reactor() *Reactor { return rx.reactor }

// Required returns the guard's inputs in declaration order.
func (rx *Reaction) Required() []*Input {
	return append([]*Input(nil), rx.required...)
}

// IsReady reports whether every required input is non-empty. A reaction
// with no required inputs is always ready.
func (rx *Reaction) IsReady() bool {
	for _, in := range rx.required {
		if in.IsEmpty() {
			return false
		}
	}
	return true
}

// Fired returns how many times the body has run.
func (rx *Reaction) Fired() int64 { return rx.fired.Load() }
