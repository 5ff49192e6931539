package cell

import "fmt"

// Pointer is a generation-checked handle to a chain of cells.
//
// The upper 32 bits hold the lifetime of the head cell at allocation time,
// the lower 32 bits hold its index. Lifetimes start at 1, so the zero value
// is never valid and doubles as Nil.
type Pointer uint64

// Nil is the pointer that refers to nothing.
const Nil Pointer = 0

func makePointer(lifetime uint32, index uint32) Pointer {
	return Pointer(uint64(lifetime)<<32 | uint64(index))
}

// Lifetime returns the lifetime the pointer was issued under.
func (p Pointer) Lifetime() uint32 {
	return uint32(p >> 32)
}

// Index returns the head cell index.
func (p Pointer) Index() uint32 {
	return uint32(p)
}

// IsNil reports whether p is the Nil pointer.
func (p Pointer) IsNil() bool {
	return p == Nil
}

// String renders the pointer as lifetime:index.
func (p Pointer) String() string {
	if p.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%d:%d", p.Lifetime(), p.Index())
}
