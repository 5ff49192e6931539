package engine

import (
	"errors"
	"math"
	"slices"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the capacity of a queue configured without one. It is
// large enough to count as unbounded.
const DefaultCapacity = math.MaxInt32

// DefaultBacklog is the number of slots an array queue preallocates.
const DefaultBacklog = 1024

// errQueueFull is returned by Offer under the Throw policy. Input converts it
// into an overflow RuntimeError that names the endpoint.
var errQueueFull = errors.New("queue full")

// QueueConfig describes a queue. Zero fields take the defaults.
type QueueConfig struct {
	Kind     QueueKind
	Capacity int
	Backlog  int
	Policy   OverflowPolicy
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Capacity < 0 {
		violate("negative queue capacity %d", c.Capacity)
	}
	if c.Backlog < 0 {
		violate("negative queue backlog %d", c.Backlog)
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Backlog == 0 {
		c.Backlog = DefaultBacklog
	}
	return c
}

// Entry is a queued value stamped with its event identity.
type Entry[E any] struct {
	Seq   int64
	Value E
}

var queueIDs atomic.Uint64

// Queue is a bounded FIFO guarded by a single lock. When an item arrives at
// a full queue the overflow policy is resolved under that lock, so size never
// exceeds capacity once Offer returns.
//
// Values the queue discards are handed to the drop callback after the lock
// is released.
type Queue[E any] struct {
	mu       sync.Mutex
	id       uint64
	items    store[Entry[E]]
	capacity int
	policy   OverflowPolicy
	clock    Sequencer
	onDrop   func(E)

	// space is closed and cleared whenever items leave the queue. Blocked
	// senders wait on it.
	space chan struct{}
}

// NewQueue creates a queue. A nil clock gets a private one; a nil onDrop
// discards silently.
func NewQueue[E any](cfg QueueConfig, clock Sequencer, onDrop func(E)) *Queue[E] {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = NewClock()
	}
	return &Queue[E]{
		id:       queueIDs.Add(1),
		items:    newStore[Entry[E]](cfg.Kind, cfg.Capacity, cfg.Backlog),
		capacity: cfg.Capacity,
		policy:   cfg.Policy,
		clock:    clock,
		onDrop:   onDrop,
	}
}

func (q *Queue[E]) pushLocked(v E) {
	q.items.pushBack(Entry[E]{Seq: q.clock.Next(), Value: v})
}

func (q *Queue[E]) signalSpaceLocked() {
	if q.space != nil {
		close(q.space)
		q.space = nil
	}
}

// spaceLocked returns a channel closed the next time an item leaves q.
func (q *Queue[E]) spaceLocked() <-chan struct{} {
	if q.space == nil {
		q.space = make(chan struct{})
	}
	return q.space
}

func (q *Queue[E]) drop(vs []E) {
	if q.onDrop == nil {
		return
	}
	for _, v := range vs {
		q.onDrop(v)
	}
}

// Offer enqueues v, applying the overflow policy if the queue is full. It
// reports whether v was stored. Under Throw a full queue returns an error
// and v is neither stored nor dropped; the caller still owns it. Under every
// other policy v belongs to the queue once Offer returns.
func (q *Queue[E]) Offer(v E) (bool, error) {
	q.mu.Lock()
	if q.items.len() < q.capacity {
		q.pushLocked(v)
		q.mu.Unlock()
		return true, nil
	}

	var dropped []E
	stored := true
	switch q.policy {
	case Throw:
		q.mu.Unlock()
		return false, errQueueFull
	case DropIncoming:
		dropped = append(dropped, v)
		stored = false
	case DropOldest:
		dropped = append(dropped, q.items.popFront().Value)
		q.pushLocked(v)
	case DropNewest:
		dropped = append(dropped, q.items.popBack().Value)
		q.pushLocked(v)
	case DropPending:
		dropped = q.drainLocked()
		q.pushLocked(v)
	case DropAll:
		dropped = append(q.drainLocked(), v)
		stored = false
	}
	if q.items.len() < q.capacity {
		q.signalSpaceLocked()
	}
	q.mu.Unlock()

	q.drop(dropped)
	return stored, nil
}

// TryOffer enqueues v only if there is room, without consulting the
// overflow policy.
func (q *Queue[E]) TryOffer(v E) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.len() >= q.capacity {
		return false
	}
	q.pushLocked(v)
	return true
}

func (q *Queue[E]) drainLocked() []E {
	out := make([]E, 0, q.items.len())
	for q.items.len() > 0 {
		out = append(out, q.items.popFront().Value)
	}
	return out
}

// Poll removes and returns the head.
func (q *Queue[E]) Poll() (E, bool) {
	e, ok := q.PollEntry()
	return e.Value, ok
}

// PollEntry removes and returns the head with its sequence number.
func (q *Queue[E]) PollEntry() (Entry[E], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.len() == 0 {
		return Entry[E]{}, false
	}
	e := q.items.popFront()
	q.signalSpaceLocked()
	return e, true
}

// Peek returns the head without removing it.
func (q *Queue[E]) Peek() (E, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.len() == 0 {
		var zero E
		return zero, false
	}
	return q.items.front().Value, true
}

// Clear drops every queued item and returns how many there were.
func (q *Queue[E]) Clear() int {
	dropped := q.TakeAll()
	q.drop(dropped)
	return len(dropped)
}

// TakeAll removes every queued item and returns them in FIFO order. The
// drop callback is not called; the caller owns the items.
func (q *Queue[E]) TakeAll() []E {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.drainLocked()
	if len(items) > 0 {
		q.signalSpaceLocked()
	}
	return items
}

// Snapshot returns the queued values in FIFO order without removing them.
func (q *Queue[E]) Snapshot() []E {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]E, 0, q.items.len())
	q.items.each(func(e Entry[E]) { out = append(out, e.Value) })
	return out
}

// Len returns the number of queued items.
func (q *Queue[E]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.len()
}

// Capacity returns the maximum number of queued items.
func (q *Queue[E]) Capacity() int {
	return q.capacity
}

// Policy returns the overflow policy.
func (q *Queue[E]) Policy() OverflowPolicy {
	return q.policy
}

// IsEmpty reports whether nothing is queued.
func (q *Queue[E]) IsEmpty() bool {
	return q.Len() == 0
}

// IsFull reports whether Len equals Capacity.
func (q *Queue[E]) IsFull() bool {
	return q.Len() >= q.capacity
}

// offerAll enqueues vs[i] into qs[i] for every i, or nothing at all. The
// queues are locked in id order so concurrent calls over overlapping sets
// cannot deadlock. On failure it returns a channel that closes when the
// first full queue loses an item. The queues must be distinct.
func offerAll[E any](qs []*Queue[E], vs []E) (<-chan struct{}, bool) {
	order := make([]*Queue[E], len(qs))
	copy(order, qs)
	slices.SortFunc(order, func(a, b *Queue[E]) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
	for _, q := range order {
		q.mu.Lock()
	}
	defer func() {
		for _, q := range order {
			q.mu.Unlock()
		}
	}()

	for _, q := range qs {
		if q.items.len() >= q.capacity {
			return q.spaceLocked(), false
		}
	}
	for i, q := range qs {
		q.pushLocked(vs[i])
	}
	return nil, true
}
