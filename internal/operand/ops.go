package operand

import (
	"fmt"
	"math"
	"strconv"
)

// Arithmetic and conversion ops follow pop-pop-push: they read their
// operands from the top of the receiver, push the result onto what remains
// below them, and consume the receiver. The second operand from the top is
// the left-hand side, so pushing x then y and calling SubI yields x-y.

type number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// typed reads the top operand as c's type after checking its declared type.
func typed[T any](s *Stack, op string, c scalar[T]) (T, error) {
	var zero T
	if s.size == 0 {
		return zero, fmt.Errorf("%s: %w", op, ErrEmptyStack)
	}
	if s.top.typ != c.typ {
		return zero, mismatch(op, c.typ, s.top.typ)
	}
	return readScalar(s.top, c)
}

// replace pushes the result onto rest and consumes s.
func replace(s, rest *Stack, push func(*Stack) (*Stack, error)) (*Stack, error) {
	out, err := push(rest)
	if err != nil {
		return nil, err
	}
	if err := s.Release(); err != nil {
		_ = out.Release()
		return nil, err
	}
	return out, nil
}

func binaryOp[T any](s *Stack, op string, c scalar[T], f func(x, y T) (T, error)) (*Stack, error) {
	if s.size < 2 {
		return nil, fmt.Errorf("%s: %w: need 2 operands, have %d", op, ErrEmptyStack, s.size)
	}
	y, err := typed(s, op, c)
	if err != nil {
		return nil, err
	}
	x, err := typed(s.below, op, c)
	if err != nil {
		return nil, err
	}
	r, err := f(x, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return replace(s, s.below.below, func(rest *Stack) (*Stack, error) {
		return pushScalar(rest, c, r)
	})
}

func unaryOp[T, R any](s *Stack, op string, from scalar[T], to scalar[R], f func(T) R) (*Stack, error) {
	v, err := typed(s, op, from)
	if err != nil {
		return nil, err
	}
	return replace(s, s.below, func(rest *Stack) (*Stack, error) {
		return pushScalar(rest, to, f(v))
	})
}

func add[T number](x, y T) (T, error) { return x + y, nil }
func sub[T number](x, y T) (T, error) { return x - y, nil }
func mul[T number](x, y T) (T, error) { return x * y, nil }

func div[T number](x, y T) (T, error) { return x / y, nil }

func intDiv[T ~int32 | ~int64](x, y T) (T, error) {
	if y == 0 {
		return 0, ErrDivideByZero
	}
	return x / y, nil
}

func intRem[T ~int32 | ~int64](x, y T) (T, error) {
	if y == 0 {
		return 0, ErrDivideByZero
	}
	return x % y, nil
}

func neg[T number](v T) T { return -v }

func (s *Stack) AddI() (*Stack, error) { return binaryOp(s, "addI", intCodec, add[int32]) }
func (s *Stack) SubI() (*Stack, error) { return binaryOp(s, "subI", intCodec, sub[int32]) }
func (s *Stack) MulI() (*Stack, error) { return binaryOp(s, "mulI", intCodec, mul[int32]) }
func (s *Stack) DivI() (*Stack, error) { return binaryOp(s, "divI", intCodec, intDiv[int32]) }
func (s *Stack) RemI() (*Stack, error) { return binaryOp(s, "remI", intCodec, intRem[int32]) }
func (s *Stack) NegI() (*Stack, error) {
	return unaryOp(s, "negI", intCodec, intCodec, neg[int32])
}

func (s *Stack) AddL() (*Stack, error) { return binaryOp(s, "addL", longCodec, add[int64]) }
func (s *Stack) SubL() (*Stack, error) { return binaryOp(s, "subL", longCodec, sub[int64]) }
func (s *Stack) MulL() (*Stack, error) { return binaryOp(s, "mulL", longCodec, mul[int64]) }
func (s *Stack) DivL() (*Stack, error) { return binaryOp(s, "divL", longCodec, intDiv[int64]) }
func (s *Stack) RemL() (*Stack, error) { return binaryOp(s, "remL", longCodec, intRem[int64]) }
func (s *Stack) NegL() (*Stack, error) {
	return unaryOp(s, "negL", longCodec, longCodec, neg[int64])
}

func (s *Stack) AddF() (*Stack, error) { return binaryOp(s, "addF", floatCodec, add[float32]) }
func (s *Stack) SubF() (*Stack, error) { return binaryOp(s, "subF", floatCodec, sub[float32]) }
func (s *Stack) MulF() (*Stack, error) { return binaryOp(s, "mulF", floatCodec, mul[float32]) }
func (s *Stack) DivF() (*Stack, error) { return binaryOp(s, "divF", floatCodec, div[float32]) }
func (s *Stack) NegF() (*Stack, error) {
	return unaryOp(s, "negF", floatCodec, floatCodec, neg[float32])
}

func (s *Stack) AddD() (*Stack, error) { return binaryOp(s, "addD", doubleCodec, add[float64]) }
func (s *Stack) SubD() (*Stack, error) { return binaryOp(s, "subD", doubleCodec, sub[float64]) }
func (s *Stack) MulD() (*Stack, error) { return binaryOp(s, "mulD", doubleCodec, mul[float64]) }
func (s *Stack) DivD() (*Stack, error) { return binaryOp(s, "divD", doubleCodec, div[float64]) }
func (s *Stack) NegD() (*Stack, error) {
	return unaryOp(s, "negD", doubleCodec, doubleCodec, neg[float64])
}

// And, Or and Not operate on booleans.
func (s *Stack) And() (*Stack, error) {
	return binaryOp(s, "and", booleanCodec, func(x, y bool) (bool, error) { return x && y, nil })
}

func (s *Stack) Or() (*Stack, error) {
	return binaryOp(s, "or", booleanCodec, func(x, y bool) (bool, error) { return x || y, nil })
}

func (s *Stack) Not() (*Stack, error) {
	return unaryOp(s, "not", booleanCodec, booleanCodec, func(v bool) bool { return !v })
}

// Concat joins the top two strings, second-from-top first.
func (s *Stack) Concat() (*Stack, error) {
	const op = "concat"
	if s.size < 2 {
		return nil, fmt.Errorf("%s: %w: need 2 operands, have %d", op, ErrEmptyStack, s.size)
	}
	if s.top.typ != String {
		return nil, mismatch(op, String, s.top.typ)
	}
	if s.below.top.typ != String {
		return nil, mismatch(op, String, s.below.top.typ)
	}
	y, err := s.top.AsString()
	if err != nil {
		return nil, err
	}
	x, err := s.below.top.AsString()
	if err != nil {
		return nil, err
	}
	return replace(s, s.below.below, func(rest *Stack) (*Stack, error) {
		return rest.PushString(x + y)
	})
}

// ToString replaces the top scalar with its decimal string form.
func (s *Stack) ToString() (*Stack, error) {
	const op = "toString"
	if s.size == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyStack)
	}
	var text string
	switch s.top.typ {
	case Boolean:
		v, err := s.top.AsBoolean()
		if err != nil {
			return nil, err
		}
		text = strconv.FormatBool(v)
	case Byte, Short, Int, Long:
		v, err := s.top.Value()
		if err != nil {
			return nil, err
		}
		text = fmt.Sprint(v)
	case Float:
		v, err := s.top.AsFloat()
		if err != nil {
			return nil, err
		}
		text = strconv.FormatFloat(float64(v), 'g', -1, 32)
	case Double:
		v, err := s.top.AsDouble()
		if err != nil {
			return nil, err
		}
		text = strconv.FormatFloat(v, 'g', -1, 64)
	case String:
		return s, nil
	default:
		return nil, mismatch(op, Double, s.top.typ)
	}
	return replace(s, s.below, func(rest *Stack) (*Stack, error) {
		return rest.PushString(text)
	})
}

// saturate converts a float to an integer type, clamping out-of-range values
// and mapping NaN to zero.
func saturate[F ~float32 | ~float64, I ~int32 | ~int64](v F, lo, hi I) I {
	switch {
	case v != v:
		return 0
	case float64(v) <= float64(lo):
		return lo
	case float64(v) >= float64(hi):
		return hi
	default:
		return I(v)
	}
}

func (s *Stack) ConvertI2L() (*Stack, error) {
	return unaryOp(s, "convertI2L", intCodec, longCodec, func(v int32) int64 { return int64(v) })
}

func (s *Stack) ConvertI2F() (*Stack, error) {
	return unaryOp(s, "convertI2F", intCodec, floatCodec, func(v int32) float32 { return float32(v) })
}

func (s *Stack) ConvertI2D() (*Stack, error) {
	return unaryOp(s, "convertI2D", intCodec, doubleCodec, func(v int32) float64 { return float64(v) })
}

func (s *Stack) ConvertL2I() (*Stack, error) {
	return unaryOp(s, "convertL2I", longCodec, intCodec, func(v int64) int32 { return int32(v) })
}

func (s *Stack) ConvertL2F() (*Stack, error) {
	return unaryOp(s, "convertL2F", longCodec, floatCodec, func(v int64) float32 { return float32(v) })
}

func (s *Stack) ConvertL2D() (*Stack, error) {
	return unaryOp(s, "convertL2D", longCodec, doubleCodec, func(v int64) float64 { return float64(v) })
}

func (s *Stack) ConvertF2I() (*Stack, error) {
	return unaryOp(s, "convertF2I", floatCodec, intCodec, func(v float32) int32 {
		return saturate[float32, int32](v, math.MinInt32, math.MaxInt32)
	})
}

func (s *Stack) ConvertF2L() (*Stack, error) {
	return unaryOp(s, "convertF2L", floatCodec, longCodec, func(v float32) int64 {
		return saturate[float32, int64](v, math.MinInt64, math.MaxInt64)
	})
}

func (s *Stack) ConvertF2D() (*Stack, error) {
	return unaryOp(s, "convertF2D", floatCodec, doubleCodec, func(v float32) float64 { return float64(v) })
}

func (s *Stack) ConvertD2I() (*Stack, error) {
	return unaryOp(s, "convertD2I", doubleCodec, intCodec, func(v float64) int32 {
		return saturate[float64, int32](v, math.MinInt32, math.MaxInt32)
	})
}

func (s *Stack) ConvertD2L() (*Stack, error) {
	return unaryOp(s, "convertD2L", doubleCodec, longCodec, func(v float64) int64 {
		return saturate[float64, int64](v, math.MinInt64, math.MaxInt64)
	})
}

func (s *Stack) ConvertD2F() (*Stack, error) {
	return unaryOp(s, "convertD2F", doubleCodec, floatCodec, func(v float64) float32 { return float32(v) })
}

// Apply runs the named op, as used by harness scenarios and the CLI. Every
// named op consumes the receiver, dup included.
func (s *Stack) Apply(name string) (*Stack, error) {
	f, ok := ops[name]
	if !ok {
		return nil, fmt.Errorf("operand: unknown op %q", name)
	}
	return f(s)
}

// HasOp reports whether name is an op Apply understands.
func HasOp(name string) bool {
	_, ok := ops[name]
	return ok
}

var ops = map[string]func(*Stack) (*Stack, error){
	"addI": (*Stack).AddI, "subI": (*Stack).SubI, "mulI": (*Stack).MulI,
	"divI": (*Stack).DivI, "remI": (*Stack).RemI, "negI": (*Stack).NegI,
	"addL": (*Stack).AddL, "subL": (*Stack).SubL, "mulL": (*Stack).MulL,
	"divL": (*Stack).DivL, "remL": (*Stack).RemL, "negL": (*Stack).NegL,
	"addF": (*Stack).AddF, "subF": (*Stack).SubF, "mulF": (*Stack).MulF,
	"divF": (*Stack).DivF, "negF": (*Stack).NegF,
	"addD": (*Stack).AddD, "subD": (*Stack).SubD, "mulD": (*Stack).MulD,
	"divD": (*Stack).DivD, "negD": (*Stack).NegD,
	"and": (*Stack).And, "or": (*Stack).Or, "not": (*Stack).Not,
	"concat": (*Stack).Concat, "toString": (*Stack).ToString,
	"dup": dupConsume, "swap": (*Stack).Swap, "pop": (*Stack).Pop,
	"convertI2L": (*Stack).ConvertI2L, "convertI2F": (*Stack).ConvertI2F,
	"convertI2D": (*Stack).ConvertI2D, "convertL2I": (*Stack).ConvertL2I,
	"convertL2F": (*Stack).ConvertL2F, "convertL2D": (*Stack).ConvertL2D,
	"convertF2I": (*Stack).ConvertF2I, "convertF2L": (*Stack).ConvertF2L,
	"convertF2D": (*Stack).ConvertF2D, "convertD2I": (*Stack).ConvertD2I,
	"convertD2L": (*Stack).ConvertD2L, "convertD2F": (*Stack).ConvertD2F,
}

func dupConsume(s *Stack) (*Stack, error) {
	return replace(s, s, (*Stack).Dup)
}
