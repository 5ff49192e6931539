package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 500; i++ {
		id := gen.NewID()
		assert.Equal(t, uuid.Version(7), id.Version())
		assert.False(t, seen[id], "id %s generated twice", id)
		seen[id] = true
	}
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator(
		"00000000-0000-7000-8000-00000000000a",
		"00000000-0000-7000-8000-00000000000b",
	)
	assert.Equal(t, "00000000-0000-7000-8000-00000000000a", gen.NewID().String())
	assert.Equal(t, "00000000-0000-7000-8000-00000000000b", gen.NewID().String())
	assert.PanicsWithValue(t, "FixedGenerator: all 2 ids exhausted", func() { gen.NewID() })
}

func TestSequentialGenerator(t *testing.T) {
	var gen SequentialGenerator
	assert.Equal(t, "00000000-0000-7000-8000-000000000001", gen.NewID().String())
	assert.Equal(t, "00000000-0000-7000-8000-000000000002", gen.NewID().String())
}
