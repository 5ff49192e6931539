package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cascade/internal/cell"
	"github.com/roach88/cascade/internal/logging"
	"github.com/roach88/cascade/internal/operand"
)

// newTestEngine returns a pumpless engine with sequential reactor ids, a
// small private heap and a silent logger. Options given override these.
func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithThreads(0, 0),
		WithIDGenerator(&SequentialGenerator{}),
		WithLogger(logging.Discard()),
		WithAllocator(cell.NewFixed(1024, 16)),
	}
	return New(append(base, opts...)...)
}

func pushString(t *testing.T, e *Engine, v string) *operand.Stack {
	t.Helper()
	s, err := e.NewStack().PushString(v)
	require.NoError(t, err)
	return s
}

func pushInt(t *testing.T, e *Engine, v int32) *operand.Stack {
	t.Helper()
	s, err := e.NewStack().PushInt(v)
	require.NoError(t, err)
	return s
}

func usedCells(e *Engine) int {
	return e.Allocator().Stats().Used()
}

// queuedStrings lists the top operand of every stack queued on in.
func queuedStrings(t *testing.T, in *Input) []string {
	t.Helper()
	out := []string{}
	for _, s := range in.Snapshot() {
		v, err := s.AsString()
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

// drain polls and releases everything queued on in.
func drain(t *testing.T, in *Input) int {
	t.Helper()
	n := 0
	for {
		s, ok := in.Poll()
		if !ok {
			return n
		}
		require.NoError(t, s.Release())
		n++
	}
}
