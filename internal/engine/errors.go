package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/cascade/internal/cell"
	"github.com/roach88/cascade/internal/operand"
)

// RuntimeError is an operational failure reported by the engine.
//
// Runtime errors are recoverable results: a full queue under THROW, a
// connection that is already taken, a send abandoned because the engine is
// stopping, or a lifecycle call made in the wrong state.
type RuntimeError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Reactor names the reactor the error concerns, if any.
	Reactor string

	// Endpoint names the input or output involved, if any.
	Endpoint string
}

// ErrorCode categorizes errors across the runtime.
type ErrorCode string

const (
	ErrCodeOverflow         ErrorCode = "OVERFLOW"
	ErrCodeAlreadyConnected ErrorCode = "ALREADY_CONNECTED"
	ErrCodeSendFailure      ErrorCode = "SEND_FAILURE"
	ErrCodeIllegalState     ErrorCode = "ILLEGAL_STATE"

	// Codes reported by CodeOf for errors from the cell and operand packages.
	ErrCodeOutOfMemory       ErrorCode = "OUT_OF_MEMORY"
	ErrCodeInvalidPointer    ErrorCode = "INVALID_POINTER"
	ErrCodeEmptyStack        ErrorCode = "EMPTY_STACK"
	ErrCodeIndexOutOfRange   ErrorCode = "INDEX_OUT_OF_RANGE"
	ErrCodeWrongSize         ErrorCode = "WRONG_SIZE"
	ErrCodeInvalidConversion ErrorCode = "INVALID_CONVERSION"
	ErrCodeTypeMismatch      ErrorCode = "TYPE_MISMATCH"
	ErrCodeDivideByZero      ErrorCode = "DIVIDE_BY_ZERO"
	ErrCodeUnknown           ErrorCode = "UNKNOWN"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.Reactor != "" && e.Endpoint != "":
		return fmt.Sprintf("%s: %s (reactor=%s, endpoint=%s)", e.Code, e.Message, e.Reactor, e.Endpoint)
	case e.Reactor != "":
		return fmt.Sprintf("%s: %s (reactor=%s)", e.Code, e.Message, e.Reactor)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func hasCode(err error, code ErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsOverflow reports whether err is a THROW-policy rejection.
func IsOverflow(err error) bool { return hasCode(err, ErrCodeOverflow) }

// IsAlreadyConnected reports whether err is a refused connect.
func IsAlreadyConnected(err error) bool { return hasCode(err, ErrCodeAlreadyConnected) }

// IsSendFailure reports whether err is a send abandoned at shutdown.
func IsSendFailure(err error) bool { return hasCode(err, ErrCodeSendFailure) }

// IsIllegalState reports whether err is a lifecycle call in the wrong state.
func IsIllegalState(err error) bool { return hasCode(err, ErrCodeIllegalState) }

// CodeOf classifies any error produced by the runtime, including the
// sentinel errors of the cell and operand packages.
func CodeOf(err error) ErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	switch {
	case errors.Is(err, cell.ErrOutOfMemory):
		return ErrCodeOutOfMemory
	case errors.Is(err, cell.ErrInvalidPointer):
		return ErrCodeInvalidPointer
	case errors.Is(err, operand.ErrEmptyStack):
		return ErrCodeEmptyStack
	case errors.Is(err, operand.ErrIndexOutOfRange):
		return ErrCodeIndexOutOfRange
	case errors.Is(err, operand.ErrWrongSize):
		return ErrCodeWrongSize
	case errors.Is(err, operand.ErrInvalidConversion):
		return ErrCodeInvalidConversion
	case errors.Is(err, operand.ErrTypeMismatch):
		return ErrCodeTypeMismatch
	case errors.Is(err, operand.ErrDivideByZero):
		return ErrCodeDivideByZero
	default:
		return ErrCodeUnknown
	}
}

func newOverflowError(in *Input) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeOverflow,
		Message:  fmt.Sprintf("queue full (capacity %d)", in.Capacity()),
		Reactor:  in.reactor.Name(),
		Endpoint: in.Name(),
	}
}

func newAlreadyConnectedError(in *Input, out *Output) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeAlreadyConnected,
		Message:  fmt.Sprintf("cannot connect output %s to input %s: already connected elsewhere", out.Name(), in.Name()),
		Reactor:  in.reactor.Name(),
		Endpoint: in.Name(),
	}
}

// NewSendFailure reports a send that gave up because the engine began
// stopping.
func NewSendFailure(reactor string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSendFailure,
		Message: "engine is stopping; message not delivered",
		Reactor: reactor,
	}
}

func newIllegalStateError(r *Reactor, op string, state State) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeIllegalState,
		Message: fmt.Sprintf("%s not allowed in state %s", op, state),
		Reactor: r.Name(),
	}
}

// ContractViolation is the panic value for misuse that indicates a bug in
// the embedding program: nil arguments, negative capacities, configuration
// after Build.
type ContractViolation struct {
	Message string
}

func (c *ContractViolation) Error() string {
	return "engine: contract violation: " + c.Message
}

func violate(format string, args ...any) {
	panic(&ContractViolation{Message: fmt.Sprintf(format, args...)})
}
