package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposite_BestMatch(t *testing.T) {
	small := NewFixed(8, 4)
	large := NewFixed(8, 32)
	c := NewComposite(large, small)

	tests := []struct {
		name      string
		size      int
		wantSmall int // cells used in the small heap
		wantLarge int
	}{
		{"tiny payload fits a small cell exactly", 4, 1, 0},
		{"full large cell", 32, 0, 1},
		{"odd size prefers least waste", 30, 0, 1},
		{"empty payload", 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := c.Alloc(pattern(tt.size), Nil)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSmall, small.Stats().Used())
			assert.Equal(t, tt.wantLarge, large.Stats().Used())

			got, err := Bytes(c, p)
			require.NoError(t, err)
			assert.Equal(t, pattern(tt.size), got)

			require.NoError(t, c.Decrement(p))
		})
	}
}

func TestComposite_FallsBackWhenBestHeapIsFull(t *testing.T) {
	small := NewFixed(1, 4)
	large := NewFixed(4, 16)
	c := NewComposite(small, large)

	first, err := c.Alloc([]byte("abcd"), Nil)
	require.NoError(t, err)
	second, err := c.Alloc([]byte("efgh"), Nil)
	require.NoError(t, err)

	assert.Equal(t, 1, small.Stats().Used())
	assert.Equal(t, 1, large.Stats().Used(), "second payload overflowed into the large heap")

	got, err := Bytes(c, second)
	require.NoError(t, err)
	assert.Equal(t, []byte("efgh"), got)

	require.NoError(t, c.Decrement(first))
	require.NoError(t, c.Decrement(second))
	assert.Equal(t, 0, c.Stats().Used())
}

func TestComposite_BelowLinksCrossHeaps(t *testing.T) {
	small := NewFixed(4, 4)
	large := NewFixed(4, 64)
	c := NewComposite(small, large)

	base, err := c.Alloc(pattern(60), Nil)
	require.NoError(t, err)
	top, err := c.Alloc([]byte{1}, base)
	require.NoError(t, err)

	require.NoError(t, c.Decrement(base))
	_, err = c.Size(base)
	require.NoError(t, err, "base kept alive by the link from the other heap")

	require.NoError(t, c.Decrement(top))
	_, err = c.Size(base)
	assert.True(t, IsInvalidPointer(err))
	assert.Equal(t, 0, c.Stats().Used())
}

func TestComposite_OutOfMemory(t *testing.T) {
	c := NewComposite(NewFixed(1, 4), NewFixed(1, 8))

	_, err := c.Alloc(pattern(64), Nil)
	assert.True(t, IsOutOfMemory(err))
	assert.Equal(t, 0, c.Stats().Used())
	assert.Equal(t, 8, c.CellCapacity())
}
