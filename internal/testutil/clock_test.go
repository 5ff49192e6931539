package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/cascade/internal/engine"
)

func TestDeterministicClock_NextAndReset(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next())
	assert.Equal(t, int64(2), clock.Next())
	assert.Equal(t, int64(2), clock.Current())

	clock.Reset()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next())
}

func TestDeterministicClock_ConcurrentNextIsUnique(t *testing.T) {
	clock := NewDeterministicClock()
	const workers, calls = 20, 250

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				v := clock.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*calls)
}

func TestDeterministicClock_StampsQueueEntries(t *testing.T) {
	clock := NewDeterministicClock()
	run := func() []int64 {
		clock.Reset()
		q := engine.NewQueue[string](engine.QueueConfig{Capacity: 2, Policy: engine.DropOldest}, clock, nil)
		for _, v := range []string{"a", "b", "c"} {
			_, err := q.Offer(v)
			assert.NoError(t, err)
		}
		var seqs []int64
		for {
			e, ok := q.PollEntry()
			if !ok {
				return seqs
			}
			seqs = append(seqs, e.Seq)
		}
	}
	first := run()
	assert.Equal(t, []int64{2, 3}, first)
	assert.Equal(t, first, run(), "reset replays identical sequence numbers")
}
