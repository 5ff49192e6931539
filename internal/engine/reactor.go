package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/petermattis/goid"

	"github.com/roach88/cascade/internal/ident"
	"github.com/roach88/cascade/internal/logging"
)

// Reactor owns named inputs, outputs and reactions, and runs its reactions
// one at a time when cranked.
//
// Configuration (NewInput, NewOutput, NewReaction, the Set* methods) is
// single-threaded and ends with Build. After Build only queue contents and
// connections change.
type Reactor struct {
	engine *Engine
	id     uuid.UUID
	name   atomic.Pointer[string]
	logger logging.Logger
	state  atomic.Int32
	built  atomic.Bool

	inputs    []*Input
	outputs   []*Output
	reactions []*Reaction

	lifecycle   LifecycleFunc
	destroyable func() bool
	onException ExceptionHandler
	crankPolicy CrankPolicy

	crankMu  sync.Mutex
	reacting atomic.Int64 // goroutine id running a body, 0 when idle
	sendMu   sync.Mutex
}

// ReactorOption configures a reactor at creation.
type ReactorOption func(*Reactor)

// WithName names the reactor. The name must parse as an ident.Name.
func WithName(name string) ReactorOption {
	return func(r *Reactor) {
		if _, err := ident.Parse(name); err != nil {
			violate("reactor name: %v", err)
		}
		r.name.Store(&name)
	}
}

// WithLifecycle installs the lifecycle callback.
func WithLifecycle(f LifecycleFunc) ReactorOption {
	return func(r *Reactor) { r.lifecycle = f }
}

// WithDestroyable installs the readiness poll consulted while stopping.
// Without one a reactor is destroyable as soon as it is STOPPING.
func WithDestroyable(f func() bool) ReactorOption {
	return func(r *Reactor) { r.destroyable = f }
}

// WithExceptionHandler replaces the default handler, which logs at ERROR.
func WithExceptionHandler(h ExceptionHandler) ReactorOption {
	return func(r *Reactor) {
		if h == nil {
			violate("nil exception handler")
		}
		r.onException = h
	}
}

// WithReactorCrankPolicy overrides the engine's crank policy for one
// reactor.
func WithReactorCrankPolicy(p CrankPolicy) ReactorOption {
	return func(r *Reactor) { r.crankPolicy = p }
}

func newReactor(e *Engine, opts ...ReactorOption) *Reactor {
	r := &Reactor{
		engine:      e,
		id:          e.ids.NewID(),
		onException: defaultExceptionHandler,
		crankPolicy: e.crankPolicy,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.name.Load() == nil {
		name := r.id.String()
		r.name.Store(&name)
	}
	r.logger = e.logger.With("reactor", r.Name())
	return r
}

// ID returns the reactor's immutable identity.
func (r *Reactor) ID() uuid.UUID { return r.id }

// Name returns the reactor's name; by default the ID's string form.
func (r *Reactor) Name() string { return *r.name.Load() }

// SetName renames the reactor. Names can change until the reactor is
// STARTED.
func (r *Reactor) SetName(name string) error {
	if st := r.State(); st >= Started {
		return newIllegalStateError(r, "rename", st)
	}
	if _, err := ident.Parse(name); err != nil {
		return err
	}
	r.name.Store(&name)
	r.logger = r.engine.logger.With("reactor", name)
	return nil
}

// Engine returns the engine the reactor belongs to.
func (r *Reactor) Engine() *Engine { return r.engine }

// Logger returns the reactor's logger, tagged with its name.
func (r *Reactor) Logger() logging.Logger { return r.logger }

// State returns the current lifecycle state.
func (r *Reactor) State() State { return State(r.state.Load()) }

func (r *Reactor) String() string { return r.Name() }

func (r *Reactor) checkConfigurable(what string) {
	if r.built.Load() {
		violate("%s: reactor %s is already built", what, r.Name())
	}
}

// Build ends configuration. It is idempotent; Engine.Start builds any
// reactor that has not been built.
func (r *Reactor) Build() {
	r.built.Store(true)
}

// IsBuilt reports whether Build has run.
func (r *Reactor) IsBuilt() bool { return r.built.Load() }

// NewInput adds an input whose queue starts from the engine's defaults.
func (r *Reactor) NewInput(name string, opts ...InputOption) *Input {
	r.checkConfigurable("add input " + name)
	checkEndpointName("input", name)
	if r.Input(name) != nil {
		violate("reactor %s already has an input named %s", r.Name(), name)
	}
	cfg := r.engine.queueDefaults
	for _, opt := range opts {
		opt(&cfg)
	}
	in := newInput(r, name, cfg)
	r.inputs = append(r.inputs, in)
	return in
}

// NewOutput adds an output.
func (r *Reactor) NewOutput(name string) *Output {
	r.checkConfigurable("add output " + name)
	checkEndpointName("output", name)
	if r.Output(name) != nil {
		violate("reactor %s already has an output named %s", r.Name(), name)
	}
	out := &Output{reactor: r, name: name}
	r.outputs = append(r.outputs, out)
	return out
}

// NewReaction adds a reaction guarded by the given inputs, which must
// belong to r. Reactions are evaluated in the order they were added.
func (r *Reactor) NewReaction(name string, body ReactionFunc, required ...*Input) *Reaction {
	r.checkConfigurable("add reaction " + name)
	if body == nil {
		violate("reaction %s has a nil body", name)
	}
	for _, in := range required {
		if in == nil {
			violate("reaction %s requires a nil input", name)
		}
		if in.reactor != r {
			violate("reaction %s requires input %s of another reactor", name, in)
		}
	}
	rx := &Reaction{
		reactor:  r,
		name:     name,
		required: append([]*Input(nil), required...),
		body:     body,
	}
	r.reactions = append(r.reactions, rx)
	return rx
}

func (r *Reactor) renameInput(in *Input, name string) {
	if other := r.Input(name); other != nil && other != in {
		violate("reactor %s already has an input named %s", r.Name(), name)
	}
	in.name = name
}

func (r *Reactor) renameOutput(out *Output, name string) {
	if other := r.Output(name); other != nil && other != out {
		violate("reactor %s already has an output named %s", r.Name(), name)
	}
	out.name = name
}

// Input looks up an input by name.
func (r *Reactor) Input(name string) *Input {
	for _, in := range r.inputs {
		if in.name == name {
			return in
		}
	}
	return nil
}

// Output looks up an output by name.
func (r *Reactor) Output(name string) *Output {
	for _, out := range r.outputs {
		if out.name == name {
			return out
		}
	}
	return nil
}

// Inputs returns the inputs in creation order.
func (r *Reactor) Inputs() []*Input { return append([]*Input(nil), r.inputs...) }

// Outputs returns the outputs in creation order.
func (r *Reactor) Outputs() []*Output { return append([]*Output(nil), r.outputs...) }

// Reactions returns the reactions in evaluation order.
func (r *Reactor) Reactions() []*Reaction { return append([]*Reaction(nil), r.reactions...) }

// HasReady reports whether any reaction is ready.
func (r *Reactor) HasReady() bool {
	for _, rx := range r.reactions {
		if rx.IsReady() {
			return true
		}
	}
	return false
}

// Crank evaluates the reactions in order and fires the first ready one, or
// every ready one under AllReady. It reports whether anything fired.
// Concurrent cranks of one reactor run one after another, never together.
func (r *Reactor) Crank(ctx context.Context) bool {
	r.Build()
	r.crankMu.Lock()
	defer r.crankMu.Unlock()

	fired := false
	for _, rx := range r.reactions {
		if !rx.IsReady() {
			continue
		}
		r.fire(ctx, rx)
		fired = true
		if r.crankPolicy == FirstReady {
			break
		}
	}
	return fired
}

func (r *Reactor) fire(ctx context.Context, rx *Reaction) {
	r.reacting.Store(goid.Get())
	defer r.reacting.Store(0)

	rx.fired.Add(1)
	r.engine.record(TraceFired, r, rx.name, "")
	if err := guarded(func() error { return rx.body(ctx) }); err != nil {
		r.raise(fmt.Errorf("reaction %s: %w", rx.name, err))
	}
}

// IsReacting reports whether the calling goroutine is running one of r's
// reaction bodies.
func (r *Reactor) IsReacting() bool {
	g := r.reacting.Load()
	return g != 0 && g == goid.Get()
}

// wake tells the scheduler r may have work.
func (r *Reactor) wake() {
	r.engine.schedule(r)
}
