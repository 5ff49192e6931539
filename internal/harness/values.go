package harness

import (
	"fmt"
	"math"

	"github.com/roach88/cascade/internal/operand"
)

// Value is one typed operand written as a single-key map, for example
// {int: 3}, {string: "a"} or {doubles: [1.5, 2]}.
type Value map[string]any

func (v Value) entry() (string, any, error) {
	if len(v) != 1 {
		return "", nil, fmt.Errorf("value needs exactly one type key, got %d", len(v))
	}
	for k, raw := range v {
		return k, raw, nil
	}
	panic("unreachable")
}

func (v Value) check() error {
	s, err := v.push(nil)
	if s != nil {
		_ = s.Release()
	}
	return err
}

// push pushes v onto s. With a nil s it only decodes.
func (v Value) push(s *operand.Stack) (*operand.Stack, error) {
	typ, raw, err := v.entry()
	if err != nil {
		return nil, err
	}
	var x any
	switch typ {
	case "boolean":
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("boolean: not a bool: %v", raw)
		}
		x = b
	case "byte":
		var n int64
		n, err = intIn(raw, 0, math.MaxUint8)
		x = byte(n)
	case "short":
		var n int64
		n, err = intIn(raw, math.MinInt16, math.MaxInt16)
		x = int16(n)
	case "int":
		var n int64
		n, err = intIn(raw, math.MinInt32, math.MaxInt32)
		x = int32(n)
	case "long":
		x, err = intIn(raw, math.MinInt64, math.MaxInt64)
	case "float":
		var f float64
		f, err = toFloat(raw)
		x = float32(f)
	case "double":
		x, err = toFloat(raw)
	case "string":
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("string: not a string: %v", raw)
		}
		x = str
	case "strings":
		x, err = listOf(raw, func(e any) (string, error) {
			str, ok := e.(string)
			if !ok {
				return "", fmt.Errorf("not a string: %v", e)
			}
			return str, nil
		})
	case "ints":
		x, err = listOf(raw, func(e any) (int32, error) {
			n, err := intIn(e, math.MinInt32, math.MaxInt32)
			return int32(n), err
		})
	case "longs":
		x, err = listOf(raw, func(e any) (int64, error) {
			return intIn(e, math.MinInt64, math.MaxInt64)
		})
	case "doubles":
		x, err = listOf(raw, toFloat)
	default:
		return nil, fmt.Errorf("unknown value type %q", typ)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typ, err)
	}
	if s == nil {
		return nil, nil
	}
	return s.Push(x)
}

func intIn(raw any, lo, hi int64) (int64, error) {
	var n int64
	switch x := raw.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%d out of range", x)
		}
		n = int64(x)
	default:
		return 0, fmt.Errorf("not an integer: %v", raw)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func toFloat(raw any) (float64, error) {
	switch x := raw.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("not a number: %v", raw)
	}
}

func listOf[T any](raw any, conv func(any) (T, error)) ([]T, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("not a list: %v", raw)
	}
	out := make([]T, len(items))
	for i, e := range items {
		v, err := conv(e)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// buildStack pushes vals, bottom first, onto empty. The result is owned
// by the caller.
func buildStack(empty *operand.Stack, vals []Value) (*operand.Stack, error) {
	s := empty
	owned := false
	for _, v := range vals {
		next, err := v.push(s)
		if err != nil {
			if owned {
				_ = s.Release()
			}
			return nil, err
		}
		if owned {
			_ = s.Release()
		}
		s, owned = next, true
	}
	if !owned {
		return nil, fmt.Errorf("no values to push")
	}
	return s, nil
}
