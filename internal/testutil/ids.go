package testutil

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SeededGenerator derives reactor ids from a seed: the nth id is the
// name-based (SHA-1) UUID of "seed/n". Two generators with the same seed
// produce the same ids, so traces recorded from a scenario are
// byte-identical across runs.
//
// Thread-safety: SeededGenerator is safe for concurrent use.
type SeededGenerator struct {
	mu   sync.Mutex
	seed string
	n    int
}

// NewSeededGenerator creates a generator. An empty seed means "default".
func NewSeededGenerator(seed string) *SeededGenerator {
	if seed == "" {
		seed = "default"
	}
	return &SeededGenerator{seed: seed}
}

// NewID implements engine.IDGenerator.
func (g *SeededGenerator) NewID() uuid.UUID {
	g.mu.Lock()
	g.n++
	n := g.n
	g.mu.Unlock()
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", g.seed, n)))
}
