package cell

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when no free cells remain for an allocation.
	// The heap is left untouched; later allocations may succeed once cells
	// are freed.
	ErrOutOfMemory = errors.New("cell: out of memory")

	// ErrInvalidPointer is returned when a pointer is Nil or its lifetime no
	// longer matches the cell it addresses.
	ErrInvalidPointer = errors.New("cell: invalid pointer")
)

// ContractViolation is the panic value raised when a caller breaks the
// allocator's contract (bad construction parameters, a pointer index that no
// heap could have issued). These indicate bugs in the embedding program.
type ContractViolation struct {
	Message string
}

func (c *ContractViolation) Error() string {
	return "cell: contract violation: " + c.Message
}

func violate(format string, args ...any) {
	panic(&ContractViolation{Message: fmt.Sprintf(format, args...)})
}

func invalid(p Pointer) error {
	return fmt.Errorf("%w: %s", ErrInvalidPointer, p)
}

func outOfMemory(need, free int) error {
	return fmt.Errorf("%w: need %d cells, %d free", ErrOutOfMemory, need, free)
}

// IsOutOfMemory reports whether err is (or wraps) ErrOutOfMemory.
func IsOutOfMemory(err error) bool {
	return errors.Is(err, ErrOutOfMemory)
}

// IsInvalidPointer reports whether err is (or wraps) ErrInvalidPointer.
func IsInvalidPointer(err error) bool {
	return errors.Is(err, ErrInvalidPointer)
}
