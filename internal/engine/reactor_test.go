package engine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cascade/internal/logging"
)

func TestReaction_GuardReadiness(t *testing.T) {
	e := newTestEngine(t)
	r := e.NewReactor(WithName("join"))
	x := r.NewInput("x")
	y := r.NewInput("y")
	var got []string
	rx := r.NewReaction("pair", func(context.Context) error {
		for _, in := range []*Input{x, y} {
			s, _ := in.Poll()
			v, err := s.AsString()
			if err != nil {
				return err
			}
			got = append(got, v)
			if err := s.Release(); err != nil {
				return err
			}
		}
		return nil
	}, x, y)

	ctx := context.Background()
	assert.False(t, rx.IsReady())
	assert.False(t, r.Crank(ctx))

	require.NoError(t, x.Send(pushString(t, e, "left")))
	assert.False(t, rx.IsReady())
	assert.False(t, r.Crank(ctx), "only one of two guards satisfied")
	assert.Equal(t, int64(0), rx.Fired())

	require.NoError(t, y.Send(pushString(t, e, "right")))
	assert.True(t, rx.IsReady())
	assert.True(t, r.Crank(ctx))
	assert.Equal(t, int64(1), rx.Fired())
	assert.Equal(t, []string{"left", "right"}, got)
	assert.False(t, r.Crank(ctx))
	assert.Equal(t, 0, usedCells(e))
	assert.Equal(t, []*Input{x, y}, rx.Required())
}

func TestReactor_CrankPolicies(t *testing.T) {
	tests := []struct {
		policy CrankPolicy
		want   []string
	}{
		{FirstReady, []string{"first"}},
		{AllReady, []string{"first", "second"}},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			e := newTestEngine(t)
			r := e.NewReactor(WithName("ticker"), WithReactorCrankPolicy(tt.policy))
			in := r.NewInput("in")
			var fired []string
			r.NewReaction("idle", func(context.Context) error {
				fired = append(fired, "idle")
				return nil
			}, in)
			for _, name := range []string{"first", "second"} {
				r.NewReaction(name, func(context.Context) error {
					fired = append(fired, name)
					return nil
				})
			}

			assert.True(t, r.Crank(context.Background()))
			assert.Equal(t, tt.want, fired)
		})
	}
}

func TestReactor_IsReacting(t *testing.T) {
	e := newTestEngine(t)
	r := e.NewReactor(WithName("self"))
	var inside, elsewhere bool
	r.NewReaction("probe", func(context.Context) error {
		inside = r.IsReacting()
		done := make(chan struct{})
		go func() {
			elsewhere = r.IsReacting()
			close(done)
		}()
		<-done
		return nil
	})

	assert.False(t, r.IsReacting())
	require.True(t, r.Crank(context.Background()))
	assert.True(t, inside)
	assert.False(t, elsewhere, "only the cranking goroutine is reacting")
	assert.False(t, r.IsReacting())
}

func TestReactor_NoConcurrentReactions(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}
	e := newTestEngine(t)
	r := e.NewReactor(WithName("contended"))
	var active atomic.Bool
	var overlaps, notReacting atomic.Int64
	rx := r.NewReaction("body", func(context.Context) error {
		if active.Swap(true) {
			overlaps.Add(1)
		}
		if !r.IsReacting() {
			notReacting.Add(1)
		}
		active.Store(false)
		return nil
	})

	const goroutines, cranks = 8, 500
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < cranks; j++ {
				r.Crank(context.Background())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), overlaps.Load())
	assert.Equal(t, int64(0), notReacting.Load())
	assert.Equal(t, int64(goroutines*cranks), rx.Fired())
}

func TestReactor_ExceptionsGoToHandler(t *testing.T) {
	rec := NewMemoryRecorder()
	e := newTestEngine(t, WithRecorder(rec))
	var caught []error
	r := e.NewReactor(WithName("faulty"), WithExceptionHandler(func(_ *Reactor, err error) {
		caught = append(caught, err)
	}))
	in := r.NewInput("in")
	kaput := errors.New("kaput")
	calls := 0
	r.NewReaction("boom", func(context.Context) error {
		calls++
		if calls == 1 {
			return kaput
		}
		panic("worse")
	}, in)
	healthy := r.NewReaction("healthy", func(context.Context) error { return nil })

	ctx := context.Background()
	require.NoError(t, in.Send(pushString(t, e, "x")))
	assert.True(t, r.Crank(ctx))
	assert.True(t, r.Crank(ctx))

	require.Len(t, caught, 2)
	assert.ErrorIs(t, caught[0], kaput)
	assert.Equal(t, "reaction boom: kaput", caught[0].Error())
	var pe *PanicError
	require.ErrorAs(t, caught[1], &pe)
	assert.Equal(t, "worse", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	// The failing body never consumed its message; the other reaction is
	// still reachable once the guard stops matching.
	drain(t, in)
	assert.True(t, r.Crank(ctx))
	assert.Equal(t, int64(1), healthy.Fired())
	assert.Len(t, rec.Kinds(TraceException), 2)
}

func TestReactor_DefaultHandlerLogs(t *testing.T) {
	var buf bytes.Buffer
	e := newTestEngine(t, WithLogger(logging.NewText(&buf, logging.Trace)))
	r := e.NewReactor(WithName("noisy"))
	r.NewReaction("fail", func(context.Context) error { return errors.New("bad input") })

	require.True(t, r.Crank(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "reaction fail: bad input")
	assert.Contains(t, out, "reactor=noisy")
}

func TestReactor_PanickingHandlerIsContained(t *testing.T) {
	e := newTestEngine(t)
	r := e.NewReactor(WithName("fragile"), WithExceptionHandler(func(*Reactor, error) {
		panic("handler broke")
	}))
	r.NewReaction("fail", func(context.Context) error { return errors.New("x") })
	assert.NotPanics(t, func() { r.Crank(context.Background()) })
}

func TestReactor_Naming(t *testing.T) {
	e := newTestEngine(t)
	anon := e.NewReactor()
	assert.Equal(t, "00000000-0000-7000-8000-000000000001", anon.Name())
	assert.Equal(t, anon.ID().String(), anon.Name())

	named := e.NewReactor(WithName("pipeline.stage1"))
	assert.Same(t, named, e.Reactor("pipeline.stage1"))
	require.NoError(t, named.SetName("pipeline.stage2"))
	assert.Equal(t, "pipeline.stage2", named.String())
	assert.Error(t, named.SetName("bad..name"))

	assert.Panics(t, func() { e.NewReactor(WithName("pipeline.stage2")) }, "duplicate name")
	assert.Panics(t, func() { e.NewReactor(WithName("")) })

	require.NoError(t, e.Start(context.Background()))
	err := named.SetName("pipeline.stage3")
	assert.True(t, IsIllegalState(err))
}

func TestReactor_ReactionContracts(t *testing.T) {
	e := newTestEngine(t)
	r := e.NewReactor(WithName("a"))
	other := e.NewReactor(WithName("b")).NewInput("in")
	assert.Panics(t, func() { r.NewReaction("nil", nil) })
	assert.Panics(t, func() {
		r.NewReaction("foreign", func(context.Context) error { return nil }, other)
	})
	assert.Panics(t, func() {
		r.NewReaction("missing", func(context.Context) error { return nil }, nil)
	})
}
