package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/cascade/internal/operand"
)

// sendRetryInterval bounds each Sync attempt made by Send, so a stopping
// engine is noticed promptly even when no queue ever drains.
const sendRetryInterval = 100 * time.Millisecond

// The multi-output sends below address every connected output of the
// reactor at once and are serialized per reactor, so messages leave in
// program order. Unconnected outputs are skipped; a reactor with no
// connected outputs succeeds trivially.
//
// Ownership: a successful Async, Sync or Send consumes the caller's
// reference, one reference per receiving queue being created with Retain.
// A failed one leaves the caller owning the stack. Broadcast always
// consumes.

func retain(s *operand.Stack, n int) {
	for i := 0; i < n; i++ {
		if err := s.Retain(); err != nil {
			violate("send of a released stack: %v", err)
		}
	}
}

func release(s *operand.Stack, n int) {
	for i := 0; i < n; i++ {
		_ = s.Release()
	}
}

// tryAll is one all-or-nothing attempt. On failure it returns a channel
// that closes when the blocking queue loses an item.
func (r *Reactor) tryAll(s *operand.Stack) (<-chan struct{}, bool) {
	var ins []*Input
	for _, out := range r.outputs {
		if in := out.conn.Load(); in != nil {
			ins = append(ins, in)
		}
	}
	if len(ins) == 0 {
		_ = s.Release()
		return nil, true
	}

	qs := make([]*Queue[*operand.Stack], len(ins))
	vs := make([]*operand.Stack, len(ins))
	for i, in := range ins {
		qs[i] = in.queue
		vs[i] = s
	}
	retain(s, len(ins)-1)
	space, ok := offerAll(qs, vs)
	if !ok {
		release(s, len(ins)-1)
		return space, false
	}
	for _, in := range ins {
		in.reactor.wake()
	}
	return nil, true
}

// Async delivers s to every connected output or to none, without waiting.
func (r *Reactor) Async(s *operand.Stack) bool {
	if s == nil {
		violate("nil stack sent by reactor %s", r.Name())
	}
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	_, ok := r.tryAll(s)
	return ok
}

// Sync is Async that waits up to timeout for every queue to have room. It
// gives up early if ctx ends or the engine starts stopping.
func (r *Reactor) Sync(ctx context.Context, s *operand.Stack, timeout time.Duration) bool {
	if s == nil {
		violate("nil stack sent by reactor %s", r.Name())
	}
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	return r.syncLocked(ctx, s, timeout)
}

func (r *Reactor) syncLocked(ctx context.Context, s *operand.Stack, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if r.engine.IsStopping() {
			return false
		}
		space, ok := r.tryAll(s)
		if ok {
			return true
		}
		select {
		case <-space:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		case <-r.engine.stopCh:
			return false
		}
	}
}

// Send retries Sync until s is delivered. Once the engine starts stopping
// it fails with SEND_FAILURE naming this reactor; if ctx ends first it
// returns ctx's error. The caller keeps s on failure.
func (r *Reactor) Send(ctx context.Context, s *operand.Stack) error {
	if s == nil {
		violate("nil stack sent by reactor %s", r.Name())
	}
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	for {
		if r.engine.IsStopping() {
			return NewSendFailure(r.Name())
		}
		if r.syncLocked(ctx, s, sendRetryInterval) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("send from %s: %w", r.Name(), err)
		}
	}
}

// Broadcast delivers s to each connected output that has room and returns
// how many accepted it. It never applies overflow policies and never waits.
func (r *Reactor) Broadcast(s *operand.Stack) int {
	if s == nil {
		violate("nil stack sent by reactor %s", r.Name())
	}
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	accepted := 0
	for _, out := range r.outputs {
		in := out.conn.Load()
		if in == nil {
			continue
		}
		retain(s, 1)
		if in.queue.TryOffer(s) {
			accepted++
			in.reactor.wake()
		} else {
			release(s, 1)
		}
	}
	_ = s.Release()
	return accepted
}
