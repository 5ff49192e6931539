package harness

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roach88/cascade/internal/config"
	"github.com/roach88/cascade/internal/engine"
	"github.com/roach88/cascade/internal/logging"
	"github.com/roach88/cascade/internal/operand"
	"github.com/roach88/cascade/internal/testutil"
)

// Mode selects how a scenario is executed.
type Mode int

const (
	// Deterministic cranks every reactor from the calling goroutine.
	Deterministic Mode = iota
	// Pumped runs the topology on the engine's worker pool.
	Pumped
)

func (m Mode) String() string {
	if m == Pumped {
		return "pumped"
	}
	return "deterministic"
}

// MarshalText renders the mode name in JSON output.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ErrBackpressure is raised by a deterministic reaction whose result does
// not fit every connected output. The result is discarded.
var ErrBackpressure = errors.New("harness: an output queue is full")

// StepsExceededError ends a deterministic run that is still busy after
// the scenario's step limit.
type StepsExceededError struct {
	Scenario string
	Steps    int
	Limit    int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("scenario %q still busy after %d crank passes (limit %d)", e.Scenario, e.Steps, e.Limit)
}

// quiescePoll is how often a pumped run checks for quiescence.
const quiescePoll = 10 * time.Millisecond

// Option configures Run.
type Option func(*options)

type options struct {
	mode     Mode
	cfg      *config.Config
	logger   logging.Logger
	recorder engine.Recorder
}

// WithMode selects the execution mode. The default is Deterministic.
func WithMode(m Mode) Option { return func(o *options) { o.mode = m } }

// WithConfig replaces the scenario's own config block.
func WithConfig(c config.Config) Option { return func(o *options) { o.cfg = &c } }

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l logging.Logger) Option { return func(o *options) { o.logger = l } }

// WithRecorder also sends every trace event to r.
func WithRecorder(r engine.Recorder) Option { return func(o *options) { o.recorder = r } }

// teeRecorder fans events out to several recorders.
type teeRecorder []engine.Recorder

func (t teeRecorder) Record(ctx context.Context, ev engine.TraceEvent) error {
	var errs []error
	for _, r := range t {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// run is the state of one scenario execution.
type run struct {
	sc       *Scenario
	mode     Mode
	engine   *engine.Engine
	reactors map[string]*engine.Reactor
	steps    int
	aborted  atomic.Bool
}

// Run executes a scenario and evaluates its expectations. The returned
// error reports setup failures; problems found while running end up in
// Result.Errors.
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if errs := Validate(sc); len(errs) > 0 {
		return nil, &InvalidScenarioError{Scenario: sc.Name, Errors: errs}
	}

	cfg := o.cfg
	if cfg == nil {
		c, err := sc.RuntimeConfig()
		if err != nil {
			return nil, err
		}
		cfg = &c
	}
	engineOpts, err := cfg.EngineOptions()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	mem := engine.NewMemoryRecorder()
	recorders := teeRecorder{mem}
	if o.recorder != nil {
		recorders = append(recorders, o.recorder)
	}
	engineOpts = append(engineOpts,
		engine.WithLogger(o.logger),
		engine.WithRecorder(recorders),
	)
	if o.mode == Deterministic {
		engineOpts = append(engineOpts,
			engine.WithThreads(0, 0),
			engine.WithClock(testutil.NewDeterministicClock()),
			engine.WithIDGenerator(testutil.NewSeededGenerator(sc.Name)),
		)
	}

	h := &run{
		sc:       sc,
		mode:     o.mode,
		engine:   engine.New(engineOpts...),
		reactors: map[string]*engine.Reactor{},
	}
	if err := h.build(); err != nil {
		return nil, err
	}

	result := newResult(sc, o.mode)
	for _, w := range AnalyzeCycles(sc) {
		result.Warnings = append(result.Warnings, w.Message)
	}

	if err := h.engine.Start(ctx); err != nil {
		result.AddError("start: %v", err)
	}
	if err := h.seed(ctx); err != nil {
		result.AddError("%v", err)
	}
	if err := h.settle(ctx); err != nil {
		result.AddError("%v", err)
	}
	result.Steps = h.steps
	result.Sinks = h.sinks()

	if err := h.engine.Stop(ctx); err != nil {
		result.AddError("stop: %v", err)
	}
	if used := h.engine.Allocator().Stats().Used(); used != 0 {
		result.AddError("%d cells still in use after stop", used)
	}

	result.Trace = mem.Events()
	if sc.Expect != nil {
		for _, msg := range evaluate(result, sc.Expect) {
			result.AddError("%s", msg)
		}
	}
	return result, nil
}

// build creates and connects the reactors.
func (h *run) build() error {
	e := h.engine
	for _, rs := range h.sc.Reactors {
		ropts := []engine.ReactorOption{engine.WithName(rs.Name)}
		if rs.Cranking == "all-ready" {
			ropts = append(ropts, engine.WithReactorCrankPolicy(engine.AllReady))
		} else if rs.Cranking == "first-ready" {
			ropts = append(ropts, engine.WithReactorCrankPolicy(engine.FirstReady))
		}
		// Stop cranks a reactor until nothing is ready; whatever is left
		// on its inputs is released by destroy.
		var r *engine.Reactor
		ropts = append(ropts, engine.WithDestroyable(func() bool {
			return h.aborted.Load() || !r.HasReady()
		}))
		r = e.NewReactor(ropts...)
		h.reactors[rs.Name] = r

		for _, is := range rs.Inputs {
			iopts, err := inputOptions(is)
			if err != nil {
				return fmt.Errorf("reactor %s: %w", rs.Name, err)
			}
			r.NewInput(is.Name, iopts...)
		}
		for _, name := range rs.Outputs {
			r.NewOutput(name)
		}

		for _, rx := range rs.Reactions {
			ins := make([]*engine.Input, len(rx.Requires))
			for i, name := range rx.Requires {
				ins[i] = r.Input(name)
			}
			r.NewReaction(rx.Name, h.body(r, rx, ins), ins...)
		}
	}

	for _, c := range h.sc.Connections {
		out, in := h.output(c.From), h.input(c.To)
		if err := out.Connect(in); err != nil {
			return fmt.Errorf("connect %s -> %s: %w", c.From, c.To, err)
		}
	}
	return nil
}

func inputOptions(is InputSpec) ([]engine.InputOption, error) {
	var opts []engine.InputOption
	if is.Capacity > 0 {
		opts = append(opts, engine.WithCapacity(is.Capacity))
	}
	if is.Overflow != "" {
		p, err := engine.ParseOverflowPolicy(is.Overflow)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithOverflowPolicy(p))
	}
	if is.Kind != "" {
		k, err := engine.ParseQueueKind(is.Kind)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithQueueKind(k))
	}
	return opts, nil
}

func (h *run) input(ref string) *engine.Input {
	reactor, name, _ := splitEndpoint(ref)
	return h.reactors[reactor].Input(name)
}

func (h *run) output(ref string) *engine.Output {
	reactor, name, _ := splitEndpoint(ref)
	return h.reactors[reactor].Output(name)
}

// body builds the reaction body described by spec.
func (h *run) body(r *engine.Reactor, spec ReactionSpec, ins []*engine.Input) engine.ReactionFunc {
	return func(ctx context.Context) error {
		s, err := h.gather(ins)
		if err != nil {
			return err
		}
		for _, v := range spec.Push {
			next, err := v.push(s)
			_ = s.Release()
			if err != nil {
				return err
			}
			s = next
		}
		for _, op := range spec.Ops {
			next, err := s.Apply(op)
			if err != nil {
				_ = s.Release()
				return err
			}
			s = next
		}
		return h.emit(ctx, r, s)
	}
}

// gather polls one stack from each input and folds the tops of the later
// ones onto the first.
func (h *run) gather(ins []*engine.Input) (*operand.Stack, error) {
	s := h.engine.NewStack()
	for i, in := range ins {
		next, ok := in.Poll()
		if !ok {
			_ = s.Release()
			return nil, fmt.Errorf("input %s is empty", in)
		}
		if i == 0 {
			s = next
			continue
		}
		merged, err := pushTop(s, next)
		_ = next.Release()
		_ = s.Release()
		if err != nil {
			return nil, err
		}
		s = merged
	}
	return s, nil
}

func pushTop(dst, src *operand.Stack) (*operand.Stack, error) {
	top, err := src.Top()
	if err != nil {
		return nil, err
	}
	data, err := top.Bytes()
	if err != nil {
		return nil, err
	}
	return dst.PushEncoded(top.Type(), data)
}

// emit sends s on every connected output.
func (h *run) emit(ctx context.Context, r *engine.Reactor, s *operand.Stack) error {
	if h.mode == Pumped {
		if err := r.Send(ctx, s); err != nil {
			_ = s.Release()
			return err
		}
		return nil
	}
	if !r.Async(s) {
		_ = s.Release()
		return ErrBackpressure
	}
	return nil
}

// seed delivers the scenario's sends. A send refused by a THROW input is
// dropped; the trace records the rejection.
func (h *run) seed(ctx context.Context) error {
	for _, snd := range h.sc.Sends {
		in := h.input(snd.To)
		for i := 0; i < max(1, snd.Repeat); i++ {
			s, err := buildStack(h.engine.NewStack(), snd.Push)
			if err != nil {
				return fmt.Errorf("send to %s: %w", snd.To, err)
			}
			if err := in.Send(s); err != nil {
				_ = s.Release()
				if !engine.IsOverflow(err) {
					return fmt.Errorf("send to %s: %w", snd.To, err)
				}
			}
		}
		if snd.Drain {
			if err := h.settle(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// settle runs the topology until nothing is ready.
func (h *run) settle(ctx context.Context) error {
	if h.mode == Pumped {
		return h.quiesce(ctx)
	}
	limit := h.sc.maxSteps()
	if h.steps < limit {
		h.steps += h.engine.Drain(ctx, limit-h.steps)
	}
	if h.steps >= limit && h.busy() {
		h.aborted.Store(true)
		return &StepsExceededError{Scenario: h.sc.Name, Steps: h.steps, Limit: limit}
	}
	return ctx.Err()
}

// quiesce waits until two consecutive polls see no ready reaction and no
// new firing.
func (h *run) quiesce(ctx context.Context) error {
	ticker := time.NewTicker(quiescePoll)
	defer ticker.Stop()
	last, stable := int64(-1), 0
	for {
		fired := h.fired()
		if fired == last && !h.busy() {
			stable++
			if stable == 2 {
				return nil
			}
		} else {
			stable = 0
		}
		last = fired
		select {
		case <-ticker.C:
		case <-ctx.Done():
			h.aborted.Store(true)
			return fmt.Errorf("waiting for quiescence: %w", ctx.Err())
		}
	}
}

func (h *run) busy() bool {
	for _, r := range h.engine.Reactors() {
		if r.HasReady() {
			return true
		}
	}
	return false
}

func (h *run) fired() int64 {
	var n int64
	for _, r := range h.engine.Reactors() {
		for _, rx := range r.Reactions() {
			n += rx.Fired()
		}
	}
	return n
}

func (h *run) sinks() []SinkContents {
	out := make([]SinkContents, 0, len(h.sc.Sinks))
	for _, ref := range h.sc.Sinks {
		stacks := []string{}
		for _, s := range h.input(ref).Snapshot() {
			stacks = append(stacks, s.String())
		}
		out = append(out, SinkContents{Input: ref, Stacks: stacks})
	}
	return out
}
