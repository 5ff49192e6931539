package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/cascade/internal/cell"
	"github.com/roach88/cascade/internal/engine"
	"github.com/roach88/cascade/internal/logging"
)

// LeakCheckedHeap returns a fixed heap that fails the test at cleanup if
// any cell is still in use.
func LeakCheckedHeap(t testing.TB, cells, cellCapacity int) *cell.Heap {
	t.Helper()
	h := cell.NewFixed(cells, cellCapacity)
	t.Cleanup(func() {
		assert.Zero(t, h.Stats().Used(), "cells still in use at end of test")
	})
	return h
}

// NewEngine returns a pumpless engine with a deterministic clock, seeded
// reactor ids, a silent logger and a leak-checked heap, plus the memory
// recorder it traces into. opts are applied last.
func NewEngine(t testing.TB, opts ...engine.Option) (*engine.Engine, *engine.MemoryRecorder) {
	t.Helper()
	rec := engine.NewMemoryRecorder()
	base := []engine.Option{
		engine.WithThreads(0, 0),
		engine.WithClock(NewDeterministicClock()),
		engine.WithIDGenerator(NewSeededGenerator(t.Name())),
		engine.WithLogger(logging.Discard()),
		engine.WithAllocator(LeakCheckedHeap(t, 1024, 32)),
		engine.WithRecorder(rec),
	}
	return engine.New(append(base, opts...)...), rec
}
