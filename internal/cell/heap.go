package cell

import (
	"encoding/binary"
	"sync"
)

// Allocator is the contract every cell heap satisfies.
type Allocator interface {
	// Alloc copies data into a fresh chain of cells and returns a pointer
	// holding the chain's first reference. A non-Nil below is linked from
	// the head cell and gains one reference, released again when the new
	// chain is freed.
	Alloc(data []byte, below Pointer) (Pointer, error)

	// Read copies up to limit payload bytes into out[offset:] and returns
	// the payload's total size.
	Read(p Pointer, out []byte, offset, limit int) (int, error)

	// Size returns the payload size of the chain at p.
	Size(p Pointer) (int, error)

	// Below returns the below link recorded at allocation time.
	Below(p Pointer) (Pointer, error)

	// RefCount returns the current reference count of the chain at p.
	RefCount(p Pointer) (int, error)

	// Increment adds one reference to the chain at p.
	Increment(p Pointer) error

	// Decrement drops one reference; at zero the chain is freed and its
	// below link decremented.
	Decrement(p Pointer) error

	// CellCapacity returns the payload bytes a single cell holds.
	CellCapacity() int

	// Stats returns a snapshot of usage counters.
	Stats() Stats
}

// Stats is a point-in-time view of an allocator's usage.
type Stats struct {
	Cells  int    // cells currently backing the heap
	Free   int    // cells on the free list
	Allocs uint64 // chains allocated since creation
	Frees  uint64 // chains freed since creation
}

// Used returns the number of cells holding live payload.
func (s Stats) Used() int {
	return s.Cells - s.Free
}

const noCell = -1

// maxHeapCells bounds a single heap so composite pointers can carry a heap
// selector in the top byte of the index.
const maxHeapCells = 1 << 24

// Heap is a cell allocator over struct-of-arrays cell storage.
//
// A fixed heap never grows. A dynamic heap starts with its minimum number of
// cells and doubles (bounded by its maximum) whenever an allocation would
// otherwise fail.
type Heap struct {
	mu sync.Mutex

	capacity int // payload bytes per cell
	words    int // 32-bit words per cell
	maximum  int // cell count ceiling

	lifetime []uint32
	refs     []int32
	used     []int32 // payload bytes stored in this cell
	length   []int32 // chain payload length, head cells only
	next     []int32
	below    []Pointer
	data     []uint32

	free   int32
	nfree  int
	allocs uint64
	frees  uint64
}

// NewFixed creates a heap of exactly cells cells holding cellCapacity bytes
// each. cellCapacity is rounded up to a multiple of four.
func NewFixed(cells, cellCapacity int) *Heap {
	return newHeap(cells, cells, cellCapacity)
}

// NewDynamic creates a heap that starts with minimum cells and grows up to
// maximum cells on demand.
func NewDynamic(minimum, maximum, cellCapacity int) *Heap {
	if maximum < minimum {
		violate("maximum %d below minimum %d", maximum, minimum)
	}
	return newHeap(minimum, maximum, cellCapacity)
}

func newHeap(initial, maximum, cellCapacity int) *Heap {
	if initial <= 0 {
		violate("cell count must be positive, got %d", initial)
	}
	if maximum > maxHeapCells {
		violate("cell count %d exceeds %d", maximum, maxHeapCells)
	}
	if cellCapacity <= 0 {
		violate("cell capacity must be positive, got %d", cellCapacity)
	}
	words := (cellCapacity + 3) / 4
	h := &Heap{
		capacity: words * 4,
		words:    words,
		maximum:  maximum,
		free:     noCell,
	}
	h.grow(initial)
	return h
}

// grow appends n cells and threads them onto the free list.
// Caller must hold mu (or own h exclusively).
func (h *Heap) grow(n int) {
	start := len(h.lifetime)
	for i := 0; i < n; i++ {
		h.lifetime = append(h.lifetime, 1)
		h.refs = append(h.refs, 0)
		h.used = append(h.used, 0)
		h.length = append(h.length, 0)
		h.next = append(h.next, noCell)
		h.below = append(h.below, Nil)
	}
	h.data = append(h.data, make([]uint32, n*h.words)...)
	// Push in reverse so low indices are handed out first.
	for i := start + n - 1; i >= start; i-- {
		h.next[i] = h.free
		h.free = int32(i)
	}
	h.nfree += n
}

// CellCapacity returns the payload bytes a single cell holds.
func (h *Heap) CellCapacity() int {
	return h.capacity
}

// cellsFor returns the number of cells a payload of n bytes occupies.
// Empty payloads still take one cell so they have an identity.
func (h *Heap) cellsFor(n int) int {
	if n == 0 {
		return 1
	}
	return (n + h.capacity - 1) / h.capacity
}

// Alloc implements Allocator.
func (h *Heap) Alloc(data []byte, below Pointer) (Pointer, error) {
	if !below.IsNil() {
		if err := h.Increment(below); err != nil {
			return Nil, err
		}
	}
	p, err := h.allocRaw(data, below)
	if err != nil && !below.IsNil() {
		_ = h.Decrement(below)
	}
	return p, err
}

// allocRaw writes data into a new chain and records below without touching
// its reference count.
func (h *Heap) allocRaw(data []byte, below Pointer) (Pointer, error) {
	need := h.cellsFor(len(data))

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.nfree < need {
		h.expand(need)
	}
	if h.nfree < need {
		return Nil, outOfMemory(need, h.nfree)
	}

	head := h.free
	prev := int32(noCell)
	rest := data
	for i := 0; i < need; i++ {
		idx := h.free
		h.free = h.next[idx]
		h.nfree--

		n := len(rest)
		if n > h.capacity {
			n = h.capacity
		}
		h.pack(idx, rest[:n])
		rest = rest[n:]

		h.used[idx] = int32(n)
		h.next[idx] = noCell
		if prev != noCell {
			h.next[prev] = idx
		}
		prev = idx
	}

	h.refs[head] = 1
	h.length[head] = int32(len(data))
	h.below[head] = below
	h.allocs++
	return makePointer(h.lifetime[head], uint32(head)), nil
}

// expand grows a dynamic heap until need cells are free or the maximum is
// reached. Caller must hold mu.
func (h *Heap) expand(need int) {
	for h.nfree < need && len(h.lifetime) < h.maximum {
		n := len(h.lifetime)
		if n > h.maximum-len(h.lifetime) {
			n = h.maximum - len(h.lifetime)
		}
		h.grow(n)
	}
}

// pack stores b into cell idx, four bytes per big-endian word.
func (h *Heap) pack(idx int32, b []byte) {
	base := int(idx) * h.words
	var word [4]byte
	for w := 0; len(b) > 0; w++ {
		if len(b) >= 4 {
			h.data[base+w] = binary.BigEndian.Uint32(b)
			b = b[4:]
			continue
		}
		word = [4]byte{}
		copy(word[:], b)
		h.data[base+w] = binary.BigEndian.Uint32(word[:])
		b = nil
	}
}

// unpack copies n bytes of cell idx, starting at byte from, into out.
func (h *Heap) unpack(idx int32, from, n int, out []byte) {
	base := int(idx) * h.words
	var word [4]byte
	for i := 0; i < n; {
		pos := from + i
		binary.BigEndian.PutUint32(word[:], h.data[base+pos/4])
		c := copy(out[i:n], word[pos%4:])
		i += c
	}
}

// check validates p and returns its head index. Caller must hold mu.
func (h *Heap) check(p Pointer) (int32, error) {
	if p.IsNil() {
		return 0, invalid(p)
	}
	idx := p.Index()
	if int(idx) >= len(h.lifetime) {
		violate("pointer %s addresses cell %d of %d", p, idx, len(h.lifetime))
	}
	if h.lifetime[idx] != p.Lifetime() || h.refs[idx] <= 0 {
		return 0, invalid(p)
	}
	return int32(idx), nil
}

// Read implements Allocator.
func (h *Heap) Read(p Pointer, out []byte, offset, limit int) (int, error) {
	if offset < 0 || limit < 0 {
		violate("negative read window offset=%d limit=%d", offset, limit)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	head, err := h.check(p)
	if err != nil {
		return 0, err
	}
	total := int(h.length[head])

	want := limit
	if want > total {
		want = total
	}
	if room := len(out) - offset; want > room {
		want = room
	}
	if want <= 0 {
		return total, nil
	}

	dst := out[offset : offset+want]
	for idx := head; idx != noCell && len(dst) > 0; idx = h.next[idx] {
		n := int(h.used[idx])
		if n > len(dst) {
			n = len(dst)
		}
		h.unpack(idx, 0, n, dst)
		dst = dst[n:]
	}
	return total, nil
}

// Size implements Allocator.
func (h *Heap) Size(p Pointer) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	head, err := h.check(p)
	if err != nil {
		return 0, err
	}
	return int(h.length[head]), nil
}

// Below implements Allocator.
func (h *Heap) Below(p Pointer) (Pointer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	head, err := h.check(p)
	if err != nil {
		return Nil, err
	}
	return h.below[head], nil
}

// RefCount implements Allocator.
func (h *Heap) RefCount(p Pointer) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	head, err := h.check(p)
	if err != nil {
		return 0, err
	}
	return int(h.refs[head]), nil
}

// Increment implements Allocator.
func (h *Heap) Increment(p Pointer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	head, err := h.check(p)
	if err != nil {
		return err
	}
	h.refs[head]++
	return nil
}

// Decrement implements Allocator. Freeing cascades down below links for as
// long as each link's count also reaches zero.
func (h *Heap) Decrement(p Pointer) error {
	for !p.IsNil() {
		below, freed, err := h.decrementOne(p)
		if err != nil {
			return err
		}
		if !freed {
			return nil
		}
		p = below
	}
	return nil
}

// decrementOne drops one reference from p and reports whether the chain was
// freed, returning its below link if so.
func (h *Heap) decrementOne(p Pointer) (Pointer, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	head, err := h.check(p)
	if err != nil {
		return Nil, false, err
	}
	h.refs[head]--
	if h.refs[head] > 0 {
		return Nil, false, nil
	}

	below := h.below[head]
	h.below[head] = Nil
	h.length[head] = 0
	for idx := head; idx != noCell; {
		nxt := h.next[idx]
		h.refs[idx] = 0
		h.used[idx] = 0
		h.lifetime[idx]++
		if h.lifetime[idx] == 0 {
			h.lifetime[idx] = 1
		}
		h.next[idx] = h.free
		h.free = idx
		h.nfree++
		idx = nxt
	}
	h.frees++
	return below, true, nil
}

// Stats implements Allocator.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Cells:  len(h.lifetime),
		Free:   h.nfree,
		Allocs: h.allocs,
		Frees:  h.frees,
	}
}

// Bytes reads the whole payload at p into a new slice.
func Bytes(a Allocator, p Pointer) ([]byte, error) {
	n, err := a.Size(p)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := a.Read(p, buf, 0, n); err != nil {
		return nil, err
	}
	return buf, nil
}
