package config

import (
	"fmt"
	"time"

	"github.com/roach88/cascade/internal/cell"
	"github.com/roach88/cascade/internal/engine"
)

// NewAllocator builds the configured cell allocator.
func (c Config) NewAllocator() (cell.Allocator, error) {
	p := c.Pool
	switch p.Kind {
	case "fixed":
		return cell.NewFixed(p.Capacity, p.CellCapacity), nil
	case "dynamic":
		return cell.NewDynamic(p.MinimumSize, p.MaximumSize, p.CellCapacity), nil
	case "composite":
		heaps := make([]*cell.Heap, len(p.Heaps))
		for i, h := range p.Heaps {
			heaps[i] = cell.NewFixed(h.Cells, h.CellCapacity)
		}
		return cell.NewComposite(heaps...), nil
	default:
		return nil, &Error{Field: "pool.kind", Message: fmt.Sprintf("unknown pool kind %q", p.Kind)}
	}
}

// QueueConfig returns the queue defaults for new inputs.
func (c Config) QueueConfig() (engine.QueueConfig, error) {
	kind, err := engine.ParseQueueKind(c.Queue.Kind)
	if err != nil {
		return engine.QueueConfig{}, &Error{Field: "queue.kind", Message: err.Error()}
	}
	policy, err := engine.ParseOverflowPolicy(c.Queue.Overflow)
	if err != nil {
		return engine.QueueConfig{}, &Error{Field: "queue.overflow", Message: err.Error()}
	}
	return engine.QueueConfig{
		Kind:     kind,
		Capacity: c.Queue.QueueCapacity,
		Backlog:  c.Queue.BacklogCapacity,
		Policy:   policy,
	}, nil
}

// CrankPolicy returns the configured crank policy.
func (c Config) CrankPolicy() engine.CrankPolicy {
	if c.Cranking == "all-ready" {
		return engine.AllReady
	}
	return engine.FirstReady
}

// EngineOptions turns the configuration into engine options, allocator
// included. Options appended by the caller override these.
func (c Config) EngineOptions() ([]engine.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	alloc, err := c.NewAllocator()
	if err != nil {
		return nil, err
	}
	queue, err := c.QueueConfig()
	if err != nil {
		return nil, err
	}
	// Validate has already parsed both durations.
	idle, _ := time.ParseDuration(c.Threads.IdleTimeout)
	poll, _ := time.ParseDuration(c.Threads.PollInterval)

	return []engine.Option{
		engine.WithAllocator(alloc),
		engine.WithQueueDefaults(queue),
		engine.WithCrankPolicy(c.CrankPolicy()),
		engine.WithThreads(c.Threads.MinimumThreads, c.Threads.MaxThreads()),
		engine.WithIdleTimeout(idle),
		engine.WithPollInterval(poll),
	}, nil
}
