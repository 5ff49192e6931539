package engine

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/cascade/internal/ident"
	"github.com/roach88/cascade/internal/logging"
	"github.com/roach88/cascade/internal/operand"
)

// wiring serializes every connect and disconnect so both sides of a link
// always change together. Readers load the atomic pointers without it.
var wiring sync.Mutex

// Input is the receiving end of a connection. It owns the queue that holds
// stacks waiting for its reactor.
type Input struct {
	reactor *Reactor
	name    string
	cfg     QueueConfig
	queue   *Queue[*operand.Stack]
	conn    atomic.Pointer[Output]
}

// InputOption configures an input at creation.
type InputOption func(*QueueConfig)

// WithCapacity bounds the input's queue.
func WithCapacity(n int) InputOption {
	return func(c *QueueConfig) { c.Capacity = n }
}

// WithOverflowPolicy sets what a full queue does with new arrivals.
func WithOverflowPolicy(p OverflowPolicy) InputOption {
	return func(c *QueueConfig) { c.Policy = p }
}

// WithQueueKind selects the queue backing store.
func WithQueueKind(k QueueKind) InputOption {
	return func(c *QueueConfig) { c.Kind = k }
}

// WithBacklog sets how many slots an array queue preallocates.
func WithBacklog(n int) InputOption {
	return func(c *QueueConfig) { c.Backlog = n }
}

func checkEndpointName(kind, name string) {
	if _, err := ident.NewToken(name); err != nil {
		violate("invalid %s name %q: %v", kind, name, err)
	}
}

func newInput(r *Reactor, name string, cfg QueueConfig) *Input {
	in := &Input{reactor: r, name: name}
	in.configure(cfg)
	return in
}

func (in *Input) configure(cfg QueueConfig) {
	if in.queue != nil && !in.queue.IsEmpty() {
		violate("cannot reconfigure input %s while it holds messages", in.name)
	}
	in.cfg = cfg.withDefaults()
	in.queue = NewQueue(in.cfg, in.reactor.engine.clock, in.dropped)
}

// dropped releases a stack the overflow policy discarded.
func (in *Input) dropped(s *operand.Stack) {
	e := in.reactor.engine
	if err := s.Release(); err != nil {
		in.reactor.logger.LogError(logging.Error, err)
	}
	e.record(TraceDropped, in.reactor, in.name, in.cfg.Policy.String())
}

// Name returns the input's name, unique within its reactor.
func (in *Input) Name() string { return in.name }

// Reactor returns the owning reactor.
func (in *Input) Reactor() *Reactor { return in.reactor }

// SetName renames the input. Only legal before Build.
func (in *Input) SetName(name string) {
	in.reactor.checkConfigurable("rename input " + in.name)
	checkEndpointName("input", name)
	in.reactor.renameInput(in, name)
}

// SetCapacity bounds the queue. Only legal before Build, on an empty queue.
func (in *Input) SetCapacity(n int) {
	in.reactor.checkConfigurable("set capacity of input " + in.name)
	cfg := in.cfg
	cfg.Capacity = n
	in.configure(cfg)
}

// SetOverflowPolicy changes the overflow policy. Only legal before Build.
func (in *Input) SetOverflowPolicy(p OverflowPolicy) {
	in.reactor.checkConfigurable("set overflow policy of input " + in.name)
	cfg := in.cfg
	cfg.Policy = p
	in.configure(cfg)
}

// Connect links in and out. Connecting an already linked pair is a no-op;
// if either side is linked elsewhere it fails with ALREADY_CONNECTED.
func (in *Input) Connect(out *Output) error {
	return connect(in, out)
}

// Disconnect clears the link on both sides. It is a no-op when unlinked.
func (in *Input) Disconnect() {
	wiring.Lock()
	defer wiring.Unlock()
	if out := in.conn.Load(); out != nil {
		out.conn.Store(nil)
		in.conn.Store(nil)
	}
}

// Connection returns the linked output, or nil.
func (in *Input) Connection() *Output { return in.conn.Load() }

// IsConnected reports whether an output is linked.
func (in *Input) IsConnected() bool { return in.conn.Load() != nil }

// Send enqueues s, transferring the caller's reference to the queue. Under
// THROW a full queue returns an OVERFLOW error and the caller keeps s.
func (in *Input) Send(s *operand.Stack) error {
	if s == nil {
		violate("nil stack sent to input %s", in.name)
	}
	stored, err := in.queue.Offer(s)
	if err != nil {
		in.reactor.engine.record(TraceRejected, in.reactor, in.name, in.cfg.Policy.String())
		return newOverflowError(in)
	}
	if stored {
		in.reactor.wake()
	}
	return nil
}

// Poll removes the oldest stack. The caller takes over its reference.
func (in *Input) Poll() (*operand.Stack, bool) { return in.queue.Poll() }

// PollEntry is Poll with the entry's sequence number.
func (in *Input) PollEntry() (Entry[*operand.Stack], bool) { return in.queue.PollEntry() }

// Peek returns the oldest stack without removing it. The queue keeps the
// reference; Retain it to hold on past the next Poll.
func (in *Input) Peek() (*operand.Stack, bool) { return in.queue.Peek() }

// Snapshot lists the queued stacks oldest first, without references.
func (in *Input) Snapshot() []*operand.Stack { return in.queue.Snapshot() }

// Clear releases every queued stack. Cleared stacks are not overflow drops
// and leave no trace event.
func (in *Input) Clear() int {
	stacks := in.queue.TakeAll()
	for _, s := range stacks {
		if err := s.Release(); err != nil {
			in.reactor.logger.LogError(logging.Error, err)
		}
	}
	return len(stacks)
}

func (in *Input) Len() int               { return in.queue.Len() }
func (in *Input) Capacity() int          { return in.queue.Capacity() }
func (in *Input) Policy() OverflowPolicy { return in.queue.Policy() }
func (in *Input) Kind() QueueKind        { return in.cfg.Kind }
func (in *Input) IsEmpty() bool          { return in.queue.IsEmpty() }
func (in *Input) IsFull() bool           { return in.queue.IsFull() }
func (in *Input) String() string         { return in.reactor.Name() + "." + in.name }

// Output is the sending end of a connection.
type Output struct {
	reactor *Reactor
	name    string
	conn    atomic.Pointer[Input]
}

// Name returns the output's name, unique within its reactor.
func (o *Output) Name() string { return o.name }

// Reactor returns the owning reactor.
func (o *Output) Reactor() *Reactor { return o.reactor }

// SetName renames the output. Only legal before Build.
func (o *Output) SetName(name string) {
	o.reactor.checkConfigurable("rename output " + o.name)
	checkEndpointName("output", name)
	o.reactor.renameOutput(o, name)
}

// Connect is Input.Connect seen from the other side; both produce the same
// link.
func (o *Output) Connect(in *Input) error {
	return connect(in, o)
}

// Disconnect clears the link on both sides. It is a no-op when unlinked.
func (o *Output) Disconnect() {
	wiring.Lock()
	defer wiring.Unlock()
	if in := o.conn.Load(); in != nil {
		in.conn.Store(nil)
		o.conn.Store(nil)
	}
}

// Connection returns the linked input, or nil.
func (o *Output) Connection() *Input { return o.conn.Load() }

// IsConnected reports whether an input is linked.
func (o *Output) IsConnected() bool { return o.conn.Load() != nil }

// IsFull reports the linked input's fullness; an unlinked output is never
// full.
func (o *Output) IsFull() bool {
	in := o.conn.Load()
	return in != nil && in.IsFull()
}

// Send forwards s to the linked input. Sending on an unlinked output
// releases s and succeeds.
func (o *Output) Send(s *operand.Stack) error {
	if s == nil {
		violate("nil stack sent on output %s", o.name)
	}
	in := o.conn.Load()
	if in == nil {
		return s.Release()
	}
	return in.Send(s)
}

func (o *Output) String() string { return o.reactor.Name() + "." + o.name }

func connect(in *Input, out *Output) error {
	if in == nil || out == nil {
		violate("connect with nil endpoint")
	}
	wiring.Lock()
	defer wiring.Unlock()

	cur := in.conn.Load()
	if cur == out {
		return nil
	}
	if cur != nil || out.conn.Load() != nil {
		return newAlreadyConnectedError(in, out)
	}
	in.conn.Store(out)
	out.conn.Store(in)
	in.reactor.engine.logger.Log(logging.Debug, "connected {} -> {}", out, in)
	return nil
}
