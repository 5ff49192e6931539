package cell

import "sort"

const (
	heapShift = 24
	localMask = 1<<heapShift - 1
	maxHeaps  = 1 << (32 - heapShift)
)

// Composite spreads allocations over several heaps with different cell
// capacities. Each payload goes to the heap that wastes the fewest bytes for
// its size (best match); if that heap is exhausted the next best is tried.
//
// Composite pointers carry the heap selector in the top byte of the index,
// so below links may cross heaps.
type Composite struct {
	heaps []*Heap
}

// NewComposite builds a composite allocator over heaps. Heaps are kept in
// ascending cell-capacity order.
func NewComposite(heaps ...*Heap) *Composite {
	if len(heaps) == 0 {
		violate("composite needs at least one heap")
	}
	if len(heaps) > maxHeaps {
		violate("composite supports at most %d heaps, got %d", maxHeaps, len(heaps))
	}
	sorted := make([]*Heap, len(heaps))
	copy(sorted, heaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].capacity < sorted[j].capacity
	})
	return &Composite{heaps: sorted}
}

func (c *Composite) encode(heap int, local Pointer) Pointer {
	return makePointer(local.Lifetime(), uint32(heap)<<heapShift|local.Index())
}

func (c *Composite) decode(p Pointer) (*Heap, Pointer, error) {
	if p.IsNil() {
		return nil, Nil, invalid(p)
	}
	heap := int(p.Index() >> heapShift)
	if heap >= len(c.heaps) {
		violate("pointer %s selects heap %d of %d", p, heap, len(c.heaps))
	}
	return c.heaps[heap], makePointer(p.Lifetime(), p.Index()&localMask), nil
}

// order returns heap indices sorted by waste for an n-byte payload.
func (c *Composite) order(n int) []int {
	idx := make([]int, len(c.heaps))
	for i := range idx {
		idx[i] = i
	}
	waste := func(i int) int {
		h := c.heaps[i]
		return h.cellsFor(n)*h.capacity - n
	}
	sort.SliceStable(idx, func(a, b int) bool {
		wa, wb := waste(idx[a]), waste(idx[b])
		if wa != wb {
			return wa < wb
		}
		return c.heaps[idx[a]].cellsFor(n) < c.heaps[idx[b]].cellsFor(n)
	})
	return idx
}

// Alloc implements Allocator.
func (c *Composite) Alloc(data []byte, below Pointer) (Pointer, error) {
	if !below.IsNil() {
		if err := c.Increment(below); err != nil {
			return Nil, err
		}
	}
	var lastErr error
	for _, i := range c.order(len(data)) {
		local, err := c.heaps[i].allocRaw(data, below)
		if err == nil {
			return c.encode(i, local), nil
		}
		lastErr = err
	}
	if !below.IsNil() {
		_ = c.Decrement(below)
	}
	return Nil, lastErr
}

// Read implements Allocator.
func (c *Composite) Read(p Pointer, out []byte, offset, limit int) (int, error) {
	h, local, err := c.decode(p)
	if err != nil {
		return 0, err
	}
	n, err := h.Read(local, out, offset, limit)
	if err != nil {
		return 0, invalid(p)
	}
	return n, nil
}

// Size implements Allocator.
func (c *Composite) Size(p Pointer) (int, error) {
	h, local, err := c.decode(p)
	if err != nil {
		return 0, err
	}
	n, err := h.Size(local)
	if err != nil {
		return 0, invalid(p)
	}
	return n, nil
}

// Below implements Allocator.
func (c *Composite) Below(p Pointer) (Pointer, error) {
	h, local, err := c.decode(p)
	if err != nil {
		return Nil, err
	}
	below, err := h.Below(local)
	if err != nil {
		return Nil, invalid(p)
	}
	return below, nil
}

// RefCount implements Allocator.
func (c *Composite) RefCount(p Pointer) (int, error) {
	h, local, err := c.decode(p)
	if err != nil {
		return 0, err
	}
	n, err := h.RefCount(local)
	if err != nil {
		return 0, invalid(p)
	}
	return n, nil
}

// Increment implements Allocator.
func (c *Composite) Increment(p Pointer) error {
	h, local, err := c.decode(p)
	if err != nil {
		return err
	}
	if err := h.Increment(local); err != nil {
		return invalid(p)
	}
	return nil
}

// Decrement implements Allocator.
func (c *Composite) Decrement(p Pointer) error {
	for !p.IsNil() {
		h, local, err := c.decode(p)
		if err != nil {
			return err
		}
		below, freed, err := h.decrementOne(local)
		if err != nil {
			return invalid(p)
		}
		if !freed {
			return nil
		}
		p = below
	}
	return nil
}

// CellCapacity returns the largest cell capacity among the heaps.
func (c *Composite) CellCapacity() int {
	return c.heaps[len(c.heaps)-1].capacity
}

// Stats sums the stats of every heap.
func (c *Composite) Stats() Stats {
	var s Stats
	for _, h := range c.heaps {
		hs := h.Stats()
		s.Cells += hs.Cells
		s.Free += hs.Free
		s.Allocs += hs.Allocs
		s.Frees += hs.Frees
	}
	return s
}
