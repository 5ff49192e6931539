package operand

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// scalar couples a Go type with its operand tag and big-endian encoding.
type scalar[T any] struct {
	typ    Type
	encode func(T) []byte
	decode func([]byte) T
}

// read decodes b after checking it has exactly the type's size.
func (c scalar[T]) read(b []byte) (T, error) {
	var zero T
	if len(b) != c.typ.Size() {
		return zero, wrongSize(c.typ, len(b))
	}
	return c.decode(b), nil
}

var (
	booleanCodec = scalar[bool]{
		typ: Boolean,
		encode: func(v bool) []byte {
			if v {
				return []byte{1}
			}
			return []byte{0}
		},
		decode: func(b []byte) bool { return b[0] != 0 },
	}
	byteCodec = scalar[byte]{
		typ:    Byte,
		encode: func(v byte) []byte { return []byte{v} },
		decode: func(b []byte) byte { return b[0] },
	}
	shortCodec = scalar[int16]{
		typ:    Short,
		encode: func(v int16) []byte { return binary.BigEndian.AppendUint16(nil, uint16(v)) },
		decode: func(b []byte) int16 { return int16(binary.BigEndian.Uint16(b)) },
	}
	intCodec = scalar[int32]{
		typ:    Int,
		encode: func(v int32) []byte { return binary.BigEndian.AppendUint32(nil, uint32(v)) },
		decode: func(b []byte) int32 { return int32(binary.BigEndian.Uint32(b)) },
	}
	longCodec = scalar[int64]{
		typ:    Long,
		encode: func(v int64) []byte { return binary.BigEndian.AppendUint64(nil, uint64(v)) },
		decode: func(b []byte) int64 { return int64(binary.BigEndian.Uint64(b)) },
	}
	floatCodec = scalar[float32]{
		typ:    Float,
		encode: func(v float32) []byte { return binary.BigEndian.AppendUint32(nil, math.Float32bits(v)) },
		decode: func(b []byte) float32 { return math.Float32frombits(binary.BigEndian.Uint32(b)) },
	}
	doubleCodec = scalar[float64]{
		typ:    Double,
		encode: func(v float64) []byte { return binary.BigEndian.AppendUint64(nil, math.Float64bits(v)) },
		decode: func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) },
	}
)

// encodeArray concatenates the fixed-size encodings of vs.
func encodeArray[T any](c scalar[T], vs []T) []byte {
	out := make([]byte, 0, len(vs)*c.typ.Size())
	for _, v := range vs {
		out = append(out, c.encode(v)...)
	}
	return out
}

// decodeArray splits b into fixed-size elements.
func decodeArray[T any](c scalar[T], b []byte) ([]T, error) {
	size := c.typ.Size()
	if len(b)%size != 0 {
		return nil, wrongMultiple(ArrayOf(c.typ), len(b))
	}
	out := make([]T, len(b)/size)
	for i := range out {
		out[i] = c.decode(b[i*size : (i+1)*size])
	}
	return out, nil
}

// EncodeStrings produces the length-prefixed string array encoding.
func EncodeStrings(vs []string) []byte {
	n := 4
	for _, v := range vs {
		n += 4 + len(v)
	}
	out := make([]byte, 0, n)
	out = binary.BigEndian.AppendUint32(out, uint32(len(vs)))
	for _, v := range vs {
		out = binary.BigEndian.AppendUint32(out, uint32(len(v)))
		out = append(out, v...)
	}
	return out
}

// DecodeStrings parses the length-prefixed string array encoding.
func DecodeStrings(b []byte) ([]string, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: string[] header needs 4 bytes, got %d", ErrWrongSize, len(b))
	}
	count := binary.BigEndian.Uint32(b)
	b = b[4:]
	// Each element needs at least its 4-byte length.
	if uint64(count)*4 > uint64(len(b)) {
		return nil, fmt.Errorf("%w: string[] count %d exceeds payload", ErrWrongSize, count)
	}
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: string[] element %d truncated", ErrWrongSize, i)
		}
		n := binary.BigEndian.Uint32(b)
		b = b[4:]
		if uint64(n) > uint64(len(b)) {
			return nil, fmt.Errorf("%w: string[] element %d truncated", ErrWrongSize, i)
		}
		s := b[:n]
		if !utf8.Valid(s) {
			return nil, fmt.Errorf("%w: string[] element %d is not UTF-8", ErrInvalidConversion, i)
		}
		out = append(out, string(s))
		b = b[n:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after string[]", ErrWrongSize, len(b))
	}
	return out, nil
}
