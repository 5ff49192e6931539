package operand

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"

	"github.com/roach88/cascade/internal/cell"
)

// Stack is an immutable node of a persistent operand stack. See the package
// documentation for the ownership rules.
//
// Each node counts its holders: external owners plus the node directly above
// it. A node keeps one reference on its payload chain; when its own count
// reaches zero it drops that reference and releases the node below.
type Stack struct {
	alloc cell.Allocator
	top   Operand
	below *Stack
	size  int
	hash  uint64
	refs  atomic.Int32
}

// New returns an empty stack whose pushes allocate from a.
func New(a cell.Allocator) *Stack {
	if a == nil {
		panic("operand: nil allocator")
	}
	return &Stack{alloc: a, hash: emptyHash}
}

const emptyHash uint64 = 14695981039346656037 // FNV-1a offset basis

// Allocator returns the allocator backing this stack.
func (s *Stack) Allocator() cell.Allocator {
	return s.alloc
}

// Size returns the number of operands. O(1).
func (s *Stack) Size() int {
	return s.size
}

// IsEmpty reports whether the stack holds no operands.
func (s *Stack) IsEmpty() bool {
	return s.size == 0
}

// Below returns the stack under the top operand without touching reference
// counts, or nil for the empty stack.
func (s *Stack) Below() *Stack {
	return s.below
}

// Hash returns the incremental hash of the stack's contents.
func (s *Stack) Hash() uint64 {
	return s.hash
}

func (s *Stack) pointer() cell.Pointer {
	return s.top.ptr
}

// Retain adds a reference for an additional holder. Retaining a node whose
// last reference is already gone fails with cell.ErrInvalidPointer.
func (s *Stack) Retain() error {
	if s.size == 0 {
		return nil
	}
	for {
		n := s.refs.Load()
		if n <= 0 {
			return fmt.Errorf("%w: stack node already released", cell.ErrInvalidPointer)
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops one reference. Releasing the last reference frees the top
// payload and, transitively, any nodes below no longer held elsewhere.
func (s *Stack) Release() error {
	for n := s; n != nil && n.size > 0; n = n.below {
		left := n.refs.Add(-1)
		if left > 0 {
			return nil
		}
		if left < 0 {
			panic("operand: stack released more times than retained")
		}
		if err := n.alloc.Decrement(n.pointer()); err != nil {
			return err
		}
	}
	return nil
}

// RefCount returns the number of holders of this node.
func (s *Stack) RefCount() int {
	return int(s.refs.Load())
}

// node builds a stack node over an operand it already holds a payload
// reference for, taking a reference on below.
func (s *Stack) node(top Operand, below *Stack, hash uint64) (*Stack, error) {
	if err := below.Retain(); err != nil {
		return nil, err
	}
	n := &Stack{
		alloc: s.alloc,
		top:   top,
		below: below,
		size:  below.size + 1,
		hash:  hash,
	}
	n.refs.Store(1)
	return n, nil
}

// share builds a node over an existing operand, adding a payload reference.
func (s *Stack) share(top Operand, below *Stack, data []byte) (*Stack, error) {
	if err := s.alloc.Increment(top.ptr); err != nil {
		return nil, err
	}
	n, err := s.node(top, below, chainHash(below.hash, top.typ, data))
	if err != nil {
		_ = s.alloc.Decrement(top.ptr)
		return nil, err
	}
	return n, nil
}

// push allocates a node holding data on top of s.
func (s *Stack) push(t Type, data []byte, obj any) (*Stack, error) {
	// The payload chain links to the chain below, mirroring the stack in the
	// cell heap.
	ptr, err := s.alloc.Alloc(data, s.pointer())
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", t, err)
	}
	top := Operand{typ: t, alloc: s.alloc, ptr: ptr, obj: obj}
	n, err := s.node(top, s, chainHash(s.hash, t, data))
	if err != nil {
		_ = s.alloc.Decrement(ptr)
		return nil, err
	}
	return n, nil
}

// chainHash folds one node's type and payload into the hash of the stack
// below it.
func chainHash(below uint64, t Type, data []byte) uint64 {
	h := fnv.New64a()
	var prefix [9]byte
	binary.BigEndian.PutUint64(prefix[:8], below)
	prefix[8] = byte(t)
	h.Write(prefix[:])
	h.Write(data)
	return h.Sum64()
}

func pushScalar[T any](s *Stack, c scalar[T], v T) (*Stack, error) {
	return s.push(c.typ, c.encode(v), nil)
}

func pushArray[T any](s *Stack, c scalar[T], vs []T) (*Stack, error) {
	return s.push(ArrayOf(c.typ), encodeArray(c, vs), nil)
}

func (s *Stack) PushBoolean(v bool) (*Stack, error)   { return pushScalar(s, booleanCodec, v) }
func (s *Stack) PushByte(v byte) (*Stack, error)      { return pushScalar(s, byteCodec, v) }
func (s *Stack) PushShort(v int16) (*Stack, error)    { return pushScalar(s, shortCodec, v) }
func (s *Stack) PushInt(v int32) (*Stack, error)      { return pushScalar(s, intCodec, v) }
func (s *Stack) PushLong(v int64) (*Stack, error)     { return pushScalar(s, longCodec, v) }
func (s *Stack) PushFloat(v float32) (*Stack, error)  { return pushScalar(s, floatCodec, v) }
func (s *Stack) PushDouble(v float64) (*Stack, error) { return pushScalar(s, doubleCodec, v) }
func (s *Stack) PushString(v string) (*Stack, error)  { return s.push(String, []byte(v), nil) }
func (s *Stack) PushBytes(v []byte) (*Stack, error)   { return s.push(ByteArray, v, nil) }

func (s *Stack) PushBooleans(v []bool) (*Stack, error)   { return pushArray(s, booleanCodec, v) }
func (s *Stack) PushShorts(v []int16) (*Stack, error)    { return pushArray(s, shortCodec, v) }
func (s *Stack) PushInts(v []int32) (*Stack, error)      { return pushArray(s, intCodec, v) }
func (s *Stack) PushLongs(v []int64) (*Stack, error)     { return pushArray(s, longCodec, v) }
func (s *Stack) PushFloats(v []float32) (*Stack, error)  { return pushArray(s, floatCodec, v) }
func (s *Stack) PushDoubles(v []float64) (*Stack, error) { return pushArray(s, doubleCodec, v) }

func (s *Stack) PushStrings(v []string) (*Stack, error) {
	return s.push(StringArray, EncodeStrings(v), nil)
}

// PushObject pushes an in-process Go value without encoding it.
func (s *Stack) PushObject(v any) (*Stack, error) {
	return s.push(Object, nil, v)
}

// PushEncoded pushes an already encoded payload under the given type. The
// payload is checked against the type's fixed size.
func (s *Stack) PushEncoded(t Type, data []byte) (*Stack, error) {
	switch {
	case t == Invalid || t == Object:
		return nil, fmt.Errorf("%w: cannot push encoded %s", ErrInvalidConversion, t)
	case t.Size() > 0 && len(data) != t.Size():
		return nil, wrongSize(t, len(data))
	case t.IsArray() && t != StringArray && t != ByteArray && len(data)%t.Elem().Size() != 0:
		return nil, wrongMultiple(t, len(data))
	case t == StringArray:
		if _, err := DecodeStrings(data); err != nil {
			return nil, err
		}
	}
	return s.push(t, data, nil)
}

// Push pushes a Go value, choosing the operand type from its Go type.
// Plain int maps to Long and unsupported types are pushed as objects.
func (s *Stack) Push(v any) (*Stack, error) {
	switch x := v.(type) {
	case bool:
		return s.PushBoolean(x)
	case byte:
		return s.PushByte(x)
	case int16:
		return s.PushShort(x)
	case int32:
		return s.PushInt(x)
	case int64:
		return s.PushLong(x)
	case int:
		return s.PushLong(int64(x))
	case float32:
		return s.PushFloat(x)
	case float64:
		return s.PushDouble(x)
	case string:
		return s.PushString(x)
	case []byte:
		return s.PushBytes(x)
	case []bool:
		return s.PushBooleans(x)
	case []int16:
		return s.PushShorts(x)
	case []int32:
		return s.PushInts(x)
	case []int64:
		return s.PushLongs(x)
	case []float32:
		return s.PushFloats(x)
	case []float64:
		return s.PushDoubles(x)
	case []string:
		return s.PushStrings(x)
	default:
		return s.PushObject(v)
	}
}

// Pop returns the stack below the top, consuming the receiver's reference.
func (s *Stack) Pop() (*Stack, error) {
	if s.size == 0 {
		return nil, ErrEmptyStack
	}
	if err := s.below.Retain(); err != nil {
		return nil, err
	}
	if err := s.Release(); err != nil {
		_ = s.below.Release()
		return nil, err
	}
	return s.below, nil
}

// Peek returns the operand depth nodes below the top.
func (s *Stack) Peek(depth int) (Operand, error) {
	if depth < 0 || depth >= s.size {
		return Operand{}, outOfRange(depth, s.size)
	}
	n := s
	for i := 0; i < depth; i++ {
		n = n.below
	}
	return n.top, nil
}

// Top returns the top operand.
func (s *Stack) Top() (Operand, error) {
	if s.size == 0 {
		return Operand{}, ErrEmptyStack
	}
	return s.top, nil
}

// Dup returns a stack with the top operand repeated. The new node shares the
// top's cells; no payload bytes are copied.
func (s *Stack) Dup() (*Stack, error) {
	if s.size == 0 {
		return nil, ErrEmptyStack
	}
	data, err := s.topBytes()
	if err != nil {
		return nil, err
	}
	return s.share(s.top, s, data)
}

// Swap exchanges the top two operands, consuming the receiver. Both new
// nodes share the original payload cells.
func (s *Stack) Swap() (*Stack, error) {
	if s.size < 2 {
		return nil, fmt.Errorf("%w: swap needs 2 operands, have %d", ErrEmptyStack, s.size)
	}
	a, b, rest := s, s.below, s.below.below

	aData, err := a.topBytes()
	if err != nil {
		return nil, err
	}
	bData, err := b.topBytes()
	if err != nil {
		return nil, err
	}

	under, err := s.share(a.top, rest, aData)
	if err != nil {
		return nil, err
	}
	over, err := s.share(b.top, under, bData)
	// over holds under now; drop the construction reference either way.
	_ = under.Release()
	if err != nil {
		return nil, err
	}
	if err := s.Release(); err != nil {
		_ = over.Release()
		return nil, err
	}
	return over, nil
}

// topBytes returns the top payload, or nil for objects.
func (s *Stack) topBytes() ([]byte, error) {
	if s.top.typ == Object {
		if _, err := s.alloc.Size(s.pointer()); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s.top.Bytes()
}

// Equal reports whether s and o hold equal operands in the same order.
// Shared suffixes and differing hashes short-circuit the comparison.
func (s *Stack) Equal(o *Stack) bool {
	if s == nil || o == nil {
		return s == o
	}
	for a, b := s, o; ; a, b = a.below, b.below {
		if a == b {
			return true
		}
		if a.size != b.size || a.hash != b.hash {
			return false
		}
		if a.size == 0 {
			return true
		}
		if !a.top.Equal(b.top) {
			return false
		}
	}
}

// Operands returns the operands from top to bottom.
func (s *Stack) Operands() []Operand {
	out := make([]Operand, 0, s.size)
	for n := s; n.size > 0; n = n.below {
		out = append(out, n.top)
	}
	return out
}

// String renders the stack top first, e.g. [int:3 string:"a"].
func (s *Stack) String() string {
	parts := make([]string, 0, s.size)
	for _, op := range s.Operands() {
		parts = append(parts, op.String())
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (s *Stack) AsBoolean() (bool, error)      { return topAs(s, Operand.AsBoolean) }
func (s *Stack) AsByte() (byte, error)         { return topAs(s, Operand.AsByte) }
func (s *Stack) AsShort() (int16, error)       { return topAs(s, Operand.AsShort) }
func (s *Stack) AsInt() (int32, error)         { return topAs(s, Operand.AsInt) }
func (s *Stack) AsLong() (int64, error)        { return topAs(s, Operand.AsLong) }
func (s *Stack) AsFloat() (float32, error)     { return topAs(s, Operand.AsFloat) }
func (s *Stack) AsDouble() (float64, error)    { return topAs(s, Operand.AsDouble) }
func (s *Stack) AsString() (string, error)     { return topAs(s, Operand.AsString) }
func (s *Stack) AsBytes() ([]byte, error)      { return topAs(s, Operand.Bytes) }
func (s *Stack) AsStrings() ([]string, error)  { return topAs(s, Operand.AsStrings) }
func (s *Stack) AsInts() ([]int32, error)      { return topAs(s, Operand.AsInts) }
func (s *Stack) AsLongs() ([]int64, error)     { return topAs(s, Operand.AsLongs) }
func (s *Stack) AsDoubles() ([]float64, error) { return topAs(s, Operand.AsDoubles) }
func (s *Stack) AsObject() (any, error)        { return topAs(s, Operand.AsObject) }

func topAs[T any](s *Stack, get func(Operand) (T, error)) (T, error) {
	var zero T
	if s.size == 0 {
		return zero, ErrEmptyStack
	}
	return get(s.top)
}
