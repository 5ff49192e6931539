package engine

import (
	"context"
	"sync"
	"time"
)

// Scheduler hands task streams with pending work to worker goroutines.
//
// A stream is polled locked: until its holder calls Release no other
// worker can poll it, which is what keeps one reactor from being cranked
// on two goroutines at once. Streams with pending work wait in a FIFO
// ready list; a stream that gains work while locked rejoins the tail when
// released, so every pending stream is reached in turn.
//
// Waiting uses a 1-buffered signal channel. A worker that takes a stream
// while others remain re-signals, so one wakeup per stream is never lost.
type Scheduler[K comparable] struct {
	mu      sync.Mutex
	streams map[K]*TaskStream[K]
	ready   []*TaskStream[K]
	signal  chan struct{}
	done    chan struct{}
	closed  bool
}

// TaskStream is the scheduling unit for one key.
type TaskStream[K comparable] struct {
	s       *Scheduler[K]
	key     K
	pending bool
	locked  bool
	queued  bool
	removed bool
}

// NewScheduler creates an empty scheduler.
func NewScheduler[K comparable]() *Scheduler[K] {
	return &Scheduler[K]{
		streams: make(map[K]*TaskStream[K]),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Key returns the stream's key.
func (ts *TaskStream[K]) Key() K { return ts.key }

// AddTask marks key's stream as having pending work.
func (s *Scheduler[K]) AddTask(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	ts, ok := s.streams[key]
	if !ok {
		ts = &TaskStream[K]{s: s, key: key}
		s.streams[key] = ts
	}
	ts.pending = true
	ts.removed = false
	if !ts.locked && !ts.queued {
		s.enqueueLocked(ts)
	}
}

func (s *Scheduler[K]) enqueueLocked(ts *TaskStream[K]) {
	ts.queued = true
	s.ready = append(s.ready, ts)
	s.notifyLocked()
}

func (s *Scheduler[K]) notifyLocked() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// PollTask waits up to timeout for a stream with pending work and returns
// it locked. A timeout of zero or less only checks once. It returns false
// on timeout, when ctx ends, or once the scheduler is closed.
func (s *Scheduler[K]) PollTask(ctx context.Context, timeout time.Duration) (*TaskStream[K], bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		if ts, ok := s.tryPoll(); ok {
			return ts, true
		}
		if timeout <= 0 {
			return nil, false
		}
		select {
		case <-s.signal:
		case <-s.done:
			return nil, false
		case <-ctx.Done():
			return nil, false
		case <-expired:
			return nil, false
		}
	}
}

func (s *Scheduler[K]) tryPoll() (*TaskStream[K], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.ready) == 0 {
		return nil, false
	}
	ts := s.ready[0]
	s.ready[0] = nil
	s.ready = s.ready[1:]
	ts.queued = false
	ts.locked = true
	ts.pending = false
	if len(s.ready) > 0 {
		s.notifyLocked()
	}
	return ts, true
}

// Release unlocks a polled stream. If work arrived while it was held it
// goes back on the ready list.
func (ts *TaskStream[K]) Release() {
	s := ts.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ts.locked {
		violate("release of a task stream that is not locked")
	}
	ts.locked = false
	if ts.removed {
		delete(s.streams, ts.key)
		return
	}
	if ts.pending && !ts.queued && !s.closed {
		s.enqueueLocked(ts)
	}
}

// Remove forgets key's stream. A locked stream is forgotten once released.
func (s *Scheduler[K]) Remove(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.streams[key]
	if !ok {
		return
	}
	ts.pending = false
	if ts.locked {
		ts.removed = true
		return
	}
	delete(s.streams, key)
	if ts.queued {
		for i, q := range s.ready {
			if q == ts {
				s.ready = append(s.ready[:i], s.ready[i+1:]...)
				break
			}
		}
		ts.queued = false
	}
}

// Pending returns the number of streams waiting to be polled.
func (s *Scheduler[K]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready)
}

// Close wakes every waiter; later polls return false.
func (s *Scheduler[K]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.ready = nil
	close(s.done)
}

// IsClosed reports whether Close has run.
func (s *Scheduler[K]) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
