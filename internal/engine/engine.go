package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/cascade/internal/cell"
	"github.com/roach88/cascade/internal/logging"
	"github.com/roach88/cascade/internal/operand"
)

const (
	// DefaultIdleTimeout is how long an extra pump worker waits for work
	// before exiting.
	DefaultIdleTimeout = time.Second

	// DefaultPollInterval is how often Stop polls reactors for destroyable
	// readiness.
	DefaultPollInterval = 10 * time.Millisecond
)

// Engine owns a set of reactors, the scheduler that tracks which of them
// have work, and the pump that cranks them.
//
// Thread-safety model:
//   - NewReactor, Start, Stop: safe from any goroutine, but reactor
//     configuration itself is single-threaded and must finish before Start.
//   - Sends, connects and cranks: safe from any goroutine.
//
// An engine built WithThreads(0, 0) has no pump. Nothing is cranked unless
// the caller does it, with Reactor.Crank or Engine.CrankAll; this is how
// the harness runs topologies deterministically.
type Engine struct {
	alloc         cell.Allocator
	logger        logging.Logger
	recorder      Recorder
	clock         Sequencer
	ids           IDGenerator
	queueDefaults QueueConfig
	crankPolicy   CrankPolicy

	minThreads   int
	maxThreads   int
	idleTimeout  time.Duration
	pollInterval time.Duration

	mu       sync.Mutex
	reactors []*Reactor

	sched *Scheduler[*Reactor]
	pump  atomic.Pointer[Pump]

	stopping atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures an engine.
type Option func(*Engine)

// WithAllocator sets the cell allocator stacks are built from.
func WithAllocator(a cell.Allocator) Option {
	return func(e *Engine) {
		if a == nil {
			violate("nil allocator")
		}
		e.alloc = a
	}
}

// WithLogger sets the logger every reactor logs through.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l == nil {
			violate("nil logger")
		}
		e.logger = l
	}
}

// WithRecorder installs a trace recorder. Without one nothing is recorded.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock replaces the logical clock that stamps queue entries and trace
// events.
func WithClock(c Sequencer) Option {
	return func(e *Engine) {
		if c == nil {
			violate("nil clock")
		}
		e.clock = c
	}
}

// WithIDGenerator replaces the reactor id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		if g == nil {
			violate("nil id generator")
		}
		e.ids = g
	}
}

// WithQueueDefaults sets the queue configuration new inputs start from.
func WithQueueDefaults(cfg QueueConfig) Option {
	return func(e *Engine) { e.queueDefaults = cfg.withDefaults() }
}

// WithThreads sizes the pump. min workers always run; up to max run while
// work is pending. WithThreads(0, 0) disables the pump.
func WithThreads(min, max int) Option {
	return func(e *Engine) {
		if min < 0 || max < min {
			violate("invalid thread bounds min=%d max=%d", min, max)
		}
		e.minThreads, e.maxThreads = min, max
	}
}

// WithIdleTimeout sets how long extra workers linger without work.
func WithIdleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d <= 0 {
			violate("non-positive idle timeout %s", d)
		}
		e.idleTimeout = d
	}
}

// WithCrankPolicy sets the default crank policy of new reactors.
func WithCrankPolicy(p CrankPolicy) Option {
	return func(e *Engine) { e.crankPolicy = p }
}

// WithPollInterval sets how often Stop polls for destroyable readiness.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d <= 0 {
			violate("non-positive poll interval %s", d)
		}
		e.pollInterval = d
	}
}

// New creates an engine. Defaults: a fixed heap of 4096 cells of 64 bytes,
// the default slog logger, unbounded array queues under THROW, and a pump
// of 1 to runtime.NumCPU() workers.
func New(opts ...Option) *Engine {
	e := &Engine{
		alloc:         cell.NewFixed(4096, 64),
		logger:        logging.New(nil),
		clock:         NewClock(),
		ids:           UUIDv7Generator{},
		queueDefaults: QueueConfig{}.withDefaults(),
		crankPolicy:   FirstReady,
		minThreads:    1,
		maxThreads:    max(1, runtime.NumCPU()),
		idleTimeout:   DefaultIdleTimeout,
		pollInterval:  DefaultPollInterval,
		sched:         NewScheduler[*Reactor](),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Allocator returns the engine's cell allocator.
func (e *Engine) Allocator() cell.Allocator { return e.alloc }

// Logger returns the engine's logger.
func (e *Engine) Logger() logging.Logger { return e.logger }

// NewStack returns an empty operand stack over the engine's allocator.
func (e *Engine) NewStack() *operand.Stack { return operand.New(e.alloc) }

// NewReactor creates an UNSTARTED reactor. Names must be unique within the
// engine.
func (e *Engine) NewReactor(opts ...ReactorOption) *Reactor {
	if e.IsStopping() {
		violate("new reactor on a stopping engine")
	}
	r := newReactor(e, opts...)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, other := range e.reactors {
		if other.Name() == r.Name() {
			violate("duplicate reactor name %s", r.Name())
		}
	}
	e.reactors = append(e.reactors, r)
	return r
}

// Reactors returns every reactor in creation order.
func (e *Engine) Reactors() []*Reactor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Reactor(nil), e.reactors...)
}

// Reactor looks up a reactor by name.
func (e *Engine) Reactor(name string) *Reactor {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.reactors {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

func (e *Engine) withState(st State) []*Reactor {
	var out []*Reactor
	for _, r := range e.Reactors() {
		if r.State() == st {
			out = append(out, r)
		}
	}
	return out
}

// Start starts every UNSTARTED reactor. All of them are set up before any
// of them reaches STARTED, then the pump is started if it is not already
// running. Reactors added after Start are started by the next call.
func (e *Engine) Start(ctx context.Context) error {
	if e.IsStopping() {
		return &RuntimeError{Code: ErrCodeIllegalState, Message: "start on a stopping engine"}
	}
	batch := e.withState(Unstarted)

	var errs []error
	for _, r := range batch {
		if err := r.setup(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range batch {
		if r.State() != Starting {
			continue
		}
		if err := r.start(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if e.maxThreads > 0 && e.pump.Load() == nil {
		p := newPump(e.sched, e.logger, e.minThreads, e.maxThreads, e.idleTimeout)
		if e.pump.CompareAndSwap(nil, p) {
			p.Start(context.WithoutCancel(ctx))
		}
	}
	// Messages that arrived before STARTED did not schedule anything.
	for _, r := range batch {
		if r.HasReady() {
			e.schedule(r)
		}
	}
	e.logger.Log(logging.Info, "engine started {} reactors", len(batch))
	return errors.Join(errs...)
}

// Stop shuts the engine down. Blocked sends are released with
// SEND_FAILURE, every STARTED reactor moves to STOPPING, and once all of
// them report destroyable they are destroyed and moved to STOPPED. While
// waiting, the pump keeps cranking stopping reactors so they can drain; an
// engine without a pump cranks them itself.
//
// If ctx ends before every reactor is destroyable the rest are destroyed
// anyway and ctx's error is returned. Stop is final.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() {
		e.stopping.Store(true)
		close(e.stopCh)
	})

	var errs []error
	for _, r := range e.withState(Started) {
		if err := r.stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	stopping := e.withState(Stopping)
	if err := e.awaitDestroyable(ctx, stopping); err != nil {
		errs = append(errs, err)
	}

	if p := e.pump.Load(); p != nil {
		p.Stop()
	}
	e.sched.Close()

	for _, r := range stopping {
		if err := r.destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.logger.Log(logging.Info, "engine stopped {} reactors", len(stopping))
	return errors.Join(errs...)
}

func (e *Engine) awaitDestroyable(ctx context.Context, rs []*Reactor) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		waiting := 0
		for _, r := range rs {
			if !r.isDestroyable() {
				waiting++
			}
		}
		if waiting == 0 {
			return nil
		}
		if e.pump.Load() == nil {
			for _, r := range rs {
				r.Crank(ctx)
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			e.logger.Log(logging.Warning, "stop: {} reactors not destroyable, destroying anyway", waiting)
			return fmt.Errorf("await destroyable: %w", ctx.Err())
		}
	}
}

// Run starts the engine, blocks until ctx ends and then stops it.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return e.Stop(context.WithoutCancel(ctx))
}

// IsStopping reports whether Stop has been called.
func (e *Engine) IsStopping() bool { return e.stopping.Load() }

// CrankAll cranks every STARTED or STOPPING reactor once, in creation
// order, and returns how many fired.
func (e *Engine) CrankAll(ctx context.Context) int {
	fired := 0
	for _, r := range e.Reactors() {
		switch r.State() {
		case Started, Stopping:
			if r.Crank(ctx) {
				fired++
			}
		}
	}
	return fired
}

// Drain repeats CrankAll until a pass fires nothing or limit passes have
// run, and returns the number of passes that fired. A limit of zero or
// less means no limit.
func (e *Engine) Drain(ctx context.Context, limit int) int {
	passes := 0
	for limit <= 0 || passes < limit {
		if ctx.Err() != nil || e.CrankAll(ctx) == 0 {
			break
		}
		passes++
	}
	return passes
}

// schedule hands r to the pump if it can be cranked.
func (e *Engine) schedule(r *Reactor) {
	p := e.pump.Load()
	if p == nil {
		return
	}
	switch r.State() {
	case Started, Stopping:
	default:
		return
	}
	e.sched.AddTask(r)
	p.grow()
}

// record stamps and forwards a trace event. Recorder failures are logged
// and never reach the caller.
func (e *Engine) record(kind TraceKind, r *Reactor, subject, detail string) {
	if e.recorder == nil {
		return
	}
	ev := TraceEvent{
		Seq:       e.clock.Next(),
		Kind:      kind,
		ReactorID: r.ID().String(),
		Reactor:   r.Name(),
		Subject:   subject,
		Detail:    detail,
	}
	if err := e.recorder.Record(context.Background(), ev); err != nil {
		e.logger.Log(logging.Warning, "trace {} of {} not recorded: {}", kind, r.Name(), err)
	}
}
