package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_PollLocksStream(t *testing.T) {
	s := NewScheduler[string]()
	ctx := context.Background()

	_, ok := s.PollTask(ctx, 0)
	assert.False(t, ok, "nothing pending")

	s.AddTask("a")
	ts, ok := s.PollTask(ctx, 0)
	require.True(t, ok)
	assert.Equal(t, "a", ts.Key())

	// Work for a locked stream waits for Release.
	s.AddTask("a")
	_, ok = s.PollTask(ctx, 0)
	assert.False(t, ok)

	ts.Release()
	again, ok := s.PollTask(ctx, 0)
	require.True(t, ok)
	assert.Same(t, ts, again)
	again.Release()

	_, ok = s.PollTask(ctx, 0)
	assert.False(t, ok, "the pending mark was consumed")
	assert.Panics(t, func() { again.Release() })
}

func TestScheduler_FIFOFairness(t *testing.T) {
	s := NewScheduler[string]()
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		s.AddTask(k)
	}
	s.AddTask("a") // already queued: no duplicate
	assert.Equal(t, 3, s.Pending())

	var order []string
	for i := 0; i < 6; i++ {
		ts, ok := s.PollTask(ctx, 0)
		require.True(t, ok)
		order = append(order, ts.Key())
		// a and b keep producing work; c finishes.
		if ts.Key() != "c" {
			s.AddTask(ts.Key())
		}
		ts.Release()
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "a"}, order)
}

func TestScheduler_PollWaitsForWork(t *testing.T) {
	s := NewScheduler[int]()
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.AddTask(7)
	}()
	ts, ok := s.PollTask(context.Background(), 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, 7, ts.Key())
	ts.Release()

	start := time.Now()
	_, ok = s.PollTask(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestScheduler_CloseWakesPollers(t *testing.T) {
	s := NewScheduler[int]()
	done := make(chan bool)
	go func() {
		_, ok := s.PollTask(context.Background(), time.Minute)
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("poller not woken by Close")
	}
	assert.True(t, s.IsClosed())
	s.AddTask(1)
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_Remove(t *testing.T) {
	s := NewScheduler[string]()
	ctx := context.Background()
	s.AddTask("a")
	s.AddTask("b")
	s.Remove("a")
	assert.Equal(t, 1, s.Pending())

	ts, ok := s.PollTask(ctx, 0)
	require.True(t, ok)
	assert.Equal(t, "b", ts.Key())

	// Removing a held stream takes effect on release; re-adding revives it.
	s.AddTask("b")
	s.Remove("b")
	ts.Release()
	_, ok = s.PollTask(ctx, 0)
	assert.False(t, ok)
	s.AddTask("b")
	_, ok = s.PollTask(ctx, 0)
	assert.True(t, ok)
}

func TestScheduler_OneHolderPerStream(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}
	s := NewScheduler[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const keys, rounds = 4, 2000
	var holders [keys]atomic.Int32
	var overlaps, served atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				ts, ok := s.PollTask(ctx, 10*time.Millisecond)
				if !ok {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				k := ts.Key()
				if holders[k].Add(1) > 1 {
					overlaps.Add(1)
				}
				served.Add(1)
				holders[k].Add(-1)
				ts.Release()
			}
		}()
	}
	for i := 0; i < rounds; i++ {
		s.AddTask(i % keys)
	}
	require.Eventually(t, func() bool { return s.Pending() == 0 }, 5*time.Second, time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, int64(0), overlaps.Load())
	assert.Positive(t, served.Load())
}
