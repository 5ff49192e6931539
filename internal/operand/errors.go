package operand

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyStack is returned by operations that need a top operand.
	ErrEmptyStack = errors.New("operand: empty stack")

	// ErrIndexOutOfRange is returned by Peek for a depth past the bottom.
	ErrIndexOutOfRange = errors.New("operand: index out of range")

	// ErrWrongSize is returned when a payload's byte length does not fit the
	// requested type.
	ErrWrongSize = errors.New("operand: wrong size")

	// ErrInvalidConversion is returned when a payload cannot be read as the
	// requested type at all (object operands, malformed UTF-8).
	ErrInvalidConversion = errors.New("operand: invalid conversion")

	// ErrTypeMismatch is returned by arithmetic and conversion ops when an
	// operand's declared type is not the one the op expects.
	ErrTypeMismatch = errors.New("operand: type mismatch")

	// ErrDivideByZero is returned by integer division and remainder.
	ErrDivideByZero = errors.New("operand: divide by zero")
)

func wrongSize(t Type, got int) error {
	return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrWrongSize, t, t.Size(), got)
}

func wrongMultiple(t Type, got int) error {
	return fmt.Errorf("%w: %s needs a multiple of %d bytes, got %d", ErrWrongSize, t, t.Elem().Size(), got)
}

func mismatch(op string, want, got Type) error {
	return fmt.Errorf("%w: %s expects %s, got %s", ErrTypeMismatch, op, want, got)
}

func outOfRange(depth, size int) error {
	return fmt.Errorf("%w: depth %d, size %d", ErrIndexOutOfRange, depth, size)
}
