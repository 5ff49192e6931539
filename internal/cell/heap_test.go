package cell

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func TestHeap_RoundTrip(t *testing.T) {
	h := NewFixed(16, 8)

	// Every length from empty up to the whole heap must survive bit for bit.
	for n := 0; n <= 16*8; n++ {
		data := pattern(n)
		p, err := h.Alloc(data, Nil)
		require.NoError(t, err, "alloc %d bytes", n)

		got, err := Bytes(h, p)
		require.NoError(t, err)
		assert.Equal(t, data, got, "payload of %d bytes", n)

		require.NoError(t, h.Decrement(p))
	}

	assert.Equal(t, 16, h.Stats().Free, "all cells returned to the free list")
}

func TestHeap_CellCapacityRoundsToWords(t *testing.T) {
	h := NewFixed(4, 5)
	assert.Equal(t, 8, h.CellCapacity())
}

func TestHeap_ChainsAcrossCells(t *testing.T) {
	h := NewFixed(8, 4)

	p, err := h.Alloc(pattern(10), Nil)
	require.NoError(t, err)

	assert.Equal(t, 3, h.Stats().Used(), "10 bytes over 4-byte cells take 3 cells")

	size, err := h.Size(p)
	require.NoError(t, err)
	assert.Equal(t, 10, size)
}

func TestHeap_ReadWindow(t *testing.T) {
	h := NewFixed(8, 4)
	data := []byte("abcdefghij")
	p, err := h.Alloc(data, Nil)
	require.NoError(t, err)

	out := make([]byte, 6)
	total, err := h.Read(p, out, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, total, "read reports the payload size")
	assert.Equal(t, []byte{0, 0, 'a', 'b', 'c', 0}, out)

	// A window larger than the buffer is clipped to the buffer.
	short := make([]byte, 4)
	total, err = h.Read(p, short, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Equal(t, []byte("abcd"), short)
}

func TestHeap_RefCountLifecycle(t *testing.T) {
	h := NewFixed(4, 8)

	p, err := h.Alloc([]byte("payload"), Nil)
	require.NoError(t, err)

	require.NoError(t, h.Increment(p))
	count, err := h.RefCount(p)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, h.Decrement(p))
	require.NoError(t, h.Decrement(p))

	buf := make([]byte, 8)
	_, err = h.Read(p, buf, 0, 8)
	assert.True(t, IsInvalidPointer(err), "read after free: %v", err)
	assert.True(t, IsInvalidPointer(h.Increment(p)), "increment after free")
	assert.True(t, IsInvalidPointer(h.Decrement(p)), "decrement after free")
}

func TestHeap_StalePointerAfterReuse(t *testing.T) {
	h := NewFixed(1, 8)

	old, err := h.Alloc([]byte("first"), Nil)
	require.NoError(t, err)
	require.NoError(t, h.Decrement(old))

	fresh, err := h.Alloc([]byte("second"), Nil)
	require.NoError(t, err)
	require.Equal(t, old.Index(), fresh.Index(), "single cell is reused")
	require.NotEqual(t, old.Lifetime(), fresh.Lifetime())

	_, err = h.Size(old)
	assert.True(t, IsInvalidPointer(err), "stale pointer must not alias the new payload")

	got, err := Bytes(h, fresh)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestHeap_OutOfMemoryLeavesStateIntact(t *testing.T) {
	h := NewFixed(3, 4)

	p, err := h.Alloc(pattern(8), Nil)
	require.NoError(t, err)

	_, err = h.Alloc(pattern(8), Nil)
	require.Error(t, err)
	assert.True(t, IsOutOfMemory(err))

	stats := h.Stats()
	assert.Equal(t, 1, stats.Free, "failed alloc must not consume cells")
	assert.Equal(t, uint64(1), stats.Allocs)

	q, err := h.Alloc(pattern(4), Nil)
	require.NoError(t, err, "remaining cell is still usable")

	require.NoError(t, h.Decrement(p))
	require.NoError(t, h.Decrement(q))
	assert.Equal(t, 3, h.Stats().Free)
}

func TestHeap_BelowLinkCascades(t *testing.T) {
	h := NewFixed(8, 8)

	base, err := h.Alloc([]byte("base"), Nil)
	require.NoError(t, err)
	top, err := h.Alloc([]byte("top"), base)
	require.NoError(t, err)

	count, err := h.RefCount(base)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "link holds a reference on base")

	below, err := h.Below(top)
	require.NoError(t, err)
	assert.Equal(t, base, below)

	// Dropping the caller's own reference keeps base alive through the link.
	require.NoError(t, h.Decrement(base))
	_, err = h.Size(base)
	require.NoError(t, err)

	// Freeing top releases the last reference on base.
	require.NoError(t, h.Decrement(top))
	_, err = h.Size(base)
	assert.True(t, IsInvalidPointer(err))
	assert.Equal(t, 8, h.Stats().Free)
}

func TestHeap_AllocWithStaleBelowFails(t *testing.T) {
	h := NewFixed(4, 8)

	base, err := h.Alloc([]byte("x"), Nil)
	require.NoError(t, err)
	require.NoError(t, h.Decrement(base))

	_, err = h.Alloc([]byte("y"), base)
	assert.True(t, IsInvalidPointer(err))
	assert.Equal(t, 4, h.Stats().Free)
}

func TestHeap_NilPointer(t *testing.T) {
	h := NewFixed(1, 4)
	_, err := h.Size(Nil)
	assert.True(t, IsInvalidPointer(err))
}

func TestHeap_ForeignIndexPanics(t *testing.T) {
	h := NewFixed(2, 4)
	assert.PanicsWithError(t, "cell: contract violation: pointer 1:99 addresses cell 99 of 2", func() {
		_, _ = h.Size(makePointer(1, 99))
	})
}

func TestHeap_InvalidConstruction(t *testing.T) {
	assert.Panics(t, func() { NewFixed(0, 8) })
	assert.Panics(t, func() { NewFixed(4, 0) })
	assert.Panics(t, func() { NewDynamic(8, 4, 8) })
}

func TestDynamic_GrowsToMaximum(t *testing.T) {
	h := NewDynamic(2, 5, 4)
	assert.Equal(t, 2, h.Stats().Cells)

	var ptrs []Pointer
	for i := 0; i < 5; i++ {
		p, err := h.Alloc([]byte{byte(i)}, Nil)
		require.NoError(t, err, "alloc %d", i)
		ptrs = append(ptrs, p)
	}
	assert.Equal(t, 5, h.Stats().Cells, "grows by doubling, capped at the maximum")

	_, err := h.Alloc([]byte{9}, Nil)
	assert.True(t, IsOutOfMemory(err))

	for i, p := range ptrs {
		got, err := Bytes(h, p)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, got, "growth must not disturb existing payloads")
	}
}

func TestHeap_ConcurrentAllocFree(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}
	h := NewFixed(64, 16)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			data := pattern(20 + g)
			for i := 0; i < 500; i++ {
				p, err := h.Alloc(data, Nil)
				if err != nil {
					continue
				}
				got, err := Bytes(h, p)
				assert.NoError(t, err)
				assert.Equal(t, data, got)
				assert.NoError(t, h.Decrement(p))
			}
		}(g)
	}
	wg.Wait()

	stats := h.Stats()
	assert.Equal(t, 64, stats.Free, "no cell leaked or double-freed")
	assert.Equal(t, stats.Allocs, stats.Frees)
}
