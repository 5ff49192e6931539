package engine

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/cascade/internal/logging"
)

// Pump is the worker pool that cranks scheduled reactors.
//
// min core workers run for the pump's whole life. When work is pending and
// no worker is idle, extra workers are spawned up to max; an extra worker
// exits once it has waited idleTimeout without finding work.
type Pump struct {
	sched       *Scheduler[*Reactor]
	logger      logging.Logger
	min, max    int
	idleTimeout time.Duration

	mu      sync.Mutex
	workers int
	idle    int
	running bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func newPump(sched *Scheduler[*Reactor], logger logging.Logger, min, max int, idleTimeout time.Duration) *Pump {
	return &Pump{
		sched:       sched,
		logger:      logger,
		min:         min,
		max:         max,
		idleTimeout: idleTimeout,
	}
}

// Start launches the core workers. Workers run until Stop or until ctx
// ends.
func (p *Pump) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	for i := 0; i < p.min; i++ {
		p.spawnLocked(true)
	}
	p.logger.Log(logging.Debug, "pump started with {} core workers (max {})", p.min, p.max)
}

func (p *Pump) spawnLocked(core bool) {
	p.workers++
	p.wg.Add(1)
	go p.work(core)
}

// grow adds an extra worker if work is waiting and nobody is free to take
// it.
func (p *Pump) grow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.idle > 0 || p.workers >= p.max {
		return
	}
	if p.sched.Pending() == 0 {
		return
	}
	p.spawnLocked(false)
}

func (p *Pump) work(core bool) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		p.idle++
		p.mu.Unlock()

		ts, ok := p.sched.PollTask(p.ctx, p.idleTimeout)
		if !ok {
			if p.retire(core) {
				return
			}
			continue
		}
		p.mu.Lock()
		p.idle--
		p.mu.Unlock()
		p.run(ts)
	}
}

// retire reports whether a worker whose poll came back empty exits. It
// holds mu like grow does: a task added while an extra worker is leaving
// either keeps that worker or sees it gone and spawns another.
func (p *Pump) retire(core bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle--
	if p.ctx.Err() == nil && !p.sched.IsClosed() && (core || p.sched.Pending() > 0) {
		return false
	}
	p.workers--
	return true
}

// run cranks the polled reactor once. If more reactions are ready the
// stream is marked pending again, which puts it behind the other waiting
// streams when released.
func (p *Pump) run(ts *TaskStream[*Reactor]) {
	defer ts.Release()
	r := ts.Key()
	switch r.State() {
	case Started, Stopping:
	default:
		return
	}
	r.Crank(p.ctx)
	if r.HasReady() {
		p.sched.AddTask(r)
	}
}

// Workers returns the number of running workers.
func (p *Pump) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Stop cancels the workers and waits for them to exit. A worker finishes
// the crank it is running first.
func (p *Pump) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Log(logging.Debug, "pump stopped")
}
