package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator assigns reactor identities.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	NewID() uuid.UUID
}

// UUIDv7Generator generates time-sortable UUIDv7 reactor ids, so reactors
// created later sort later in traces.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID panics if the system entropy source fails.
func (UUIDv7Generator) NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// FixedGenerator returns predetermined ids in order, for deterministic
// tests and golden traces.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []uuid.UUID
	idx int
}

// NewFixedGenerator parses each id with uuid.MustParse.
//
//	gen := NewFixedGenerator("00000000-0000-7000-8000-000000000001")
//	gen.NewID() // 00000000-0000-7000-8000-000000000001
//	gen.NewID() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	parsed := make([]uuid.UUID, len(ids))
	for i, s := range ids {
		parsed[i] = uuid.MustParse(s)
	}
	return &FixedGenerator{ids: parsed}
}

// NewID returns the next id. It panics once every id has been used, which
// catches tests that create more reactors than they declared.
func (g *FixedGenerator) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedGenerator: all %d ids exhausted", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequentialGenerator numbers ids from 1 in the low bits of a version 7
// layout: 00000000-0000-7000-8000-000000000001, ...000002, and so on.
type SequentialGenerator struct {
	mu   sync.Mutex
	next uint64
}

// NewID never runs out.
func (g *SequentialGenerator) NewID() uuid.UUID {
	g.mu.Lock()
	g.next++
	n := g.next
	g.mu.Unlock()
	return uuid.MustParse(fmt.Sprintf("00000000-0000-7000-8000-%012x", n))
}
