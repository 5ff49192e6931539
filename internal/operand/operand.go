package operand

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/roach88/cascade/internal/cell"
)

// Operand is one typed value on a stack. Its bytes live in the allocator's
// cells; Operand itself is a small view and is freely copyable. It stays
// readable only while the stack node that holds it is referenced.
type Operand struct {
	typ   Type
	alloc cell.Allocator
	ptr   cell.Pointer
	obj   any
}

// Type returns the operand's declared type.
func (o Operand) Type() Type {
	return o.typ
}

// Pointer returns the head of the operand's cell chain.
func (o Operand) Pointer() cell.Pointer {
	return o.ptr
}

// Bytes returns a copy of the encoded payload.
func (o Operand) Bytes() ([]byte, error) {
	if o.typ == Object {
		return nil, fmt.Errorf("%w: object operands have no byte encoding", ErrInvalidConversion)
	}
	return cell.Bytes(o.alloc, o.ptr)
}

// Size returns the encoded payload length in bytes.
func (o Operand) Size() (int, error) {
	return o.alloc.Size(o.ptr)
}

// AsObject returns the Go value carried by an object operand.
func (o Operand) AsObject() (any, error) {
	if o.typ != Object {
		return nil, fmt.Errorf("%w: %s is not an object", ErrInvalidConversion, o.typ)
	}
	if _, err := o.alloc.Size(o.ptr); err != nil {
		return nil, err
	}
	return o.obj, nil
}

func readScalar[T any](o Operand, c scalar[T]) (T, error) {
	var zero T
	b, err := o.Bytes()
	if err != nil {
		return zero, err
	}
	return c.read(b)
}

func readArray[T any](o Operand, c scalar[T]) ([]T, error) {
	b, err := o.Bytes()
	if err != nil {
		return nil, err
	}
	return decodeArray(c, b)
}

// AsBoolean reads the payload as a 1-byte boolean.
func (o Operand) AsBoolean() (bool, error) { return readScalar(o, booleanCodec) }

// AsByte reads the payload as a single byte.
func (o Operand) AsByte() (byte, error) { return readScalar(o, byteCodec) }

// AsShort reads the payload as a 2-byte big-endian integer.
func (o Operand) AsShort() (int16, error) { return readScalar(o, shortCodec) }

// AsInt reads the payload as a 4-byte big-endian integer.
func (o Operand) AsInt() (int32, error) { return readScalar(o, intCodec) }

// AsLong reads the payload as an 8-byte big-endian integer.
func (o Operand) AsLong() (int64, error) { return readScalar(o, longCodec) }

// AsFloat reads the payload as a 4-byte IEEE 754 value.
func (o Operand) AsFloat() (float32, error) { return readScalar(o, floatCodec) }

// AsDouble reads the payload as an 8-byte IEEE 754 value.
func (o Operand) AsDouble() (float64, error) { return readScalar(o, doubleCodec) }

// AsString reads the payload as UTF-8 text.
func (o Operand) AsString() (string, error) {
	b, err := o.Bytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: payload is not UTF-8", ErrInvalidConversion)
	}
	return string(b), nil
}

func (o Operand) AsBooleans() ([]bool, error)   { return readArray(o, booleanCodec) }
func (o Operand) AsShorts() ([]int16, error)    { return readArray(o, shortCodec) }
func (o Operand) AsInts() ([]int32, error)      { return readArray(o, intCodec) }
func (o Operand) AsLongs() ([]int64, error)     { return readArray(o, longCodec) }
func (o Operand) AsFloats() ([]float32, error)  { return readArray(o, floatCodec) }
func (o Operand) AsDoubles() ([]float64, error) { return readArray(o, doubleCodec) }

// AsStrings reads the payload as a length-prefixed string array.
func (o Operand) AsStrings() ([]string, error) {
	b, err := o.Bytes()
	if err != nil {
		return nil, err
	}
	return DecodeStrings(b)
}

// Equal reports whether o and p have the same declared type and payload.
// Object operands compare their Go values with reflect.DeepEqual.
func (o Operand) Equal(p Operand) bool {
	if o.typ != p.typ {
		return false
	}
	if o.typ == Object {
		return reflect.DeepEqual(o.obj, p.obj)
	}
	if o.alloc == p.alloc && o.ptr == p.ptr {
		return true
	}
	a, err := o.Bytes()
	if err != nil {
		return false
	}
	b, err := p.Bytes()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Value decodes the operand into the natural Go value for its type.
func (o Operand) Value() (any, error) {
	switch o.typ {
	case Boolean:
		return o.AsBoolean()
	case Byte:
		return o.AsByte()
	case Short:
		return o.AsShort()
	case Int:
		return o.AsInt()
	case Long:
		return o.AsLong()
	case Float:
		return o.AsFloat()
	case Double:
		return o.AsDouble()
	case String:
		return o.AsString()
	case BooleanArray:
		return o.AsBooleans()
	case ByteArray:
		return o.Bytes()
	case ShortArray:
		return o.AsShorts()
	case IntArray:
		return o.AsInts()
	case LongArray:
		return o.AsLongs()
	case FloatArray:
		return o.AsFloats()
	case DoubleArray:
		return o.AsDoubles()
	case StringArray:
		return o.AsStrings()
	case Object:
		return o.AsObject()
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidConversion, o.typ)
	}
}

// String renders the operand as type:value for logs and traces.
func (o Operand) String() string {
	v, err := o.Value()
	if err != nil {
		return o.typ.String() + ":<" + err.Error() + ">"
	}
	return o.typ.String() + ":" + formatValue(v)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case []string:
		quoted := make([]string, len(x))
		for i, s := range x {
			quoted[i] = strconv.Quote(s)
		}
		return "[" + strings.Join(quoted, " ") + "]"
	default:
		return fmt.Sprint(v)
	}
}
