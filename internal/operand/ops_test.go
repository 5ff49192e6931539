package operand

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOps_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		in   []any
		op   string
		want string
	}{
		{"addI", []any{int32(2), int32(3)}, "addI", "[int:5]"},
		{"subI takes second-from-top first", []any{int32(10), int32(3)}, "subI", "[int:7]"},
		{"mulI wraps", []any{int32(math.MaxInt32), int32(2)}, "mulI", "[int:-2]"},
		{"divI truncates", []any{int32(-7), int32(2)}, "divI", "[int:-3]"},
		{"remI", []any{int32(7), int32(3)}, "remI", "[int:1]"},
		{"negI", []any{int32(4)}, "negI", "[int:-4]"},
		{"addL", []any{int64(1 << 40), int64(1)}, "addL", "[long:1099511627777]"},
		{"divL", []any{int64(9), int64(3)}, "divL", "[long:3]"},
		{"mulF", []any{float32(1.5), float32(2)}, "mulF", "[float:3]"},
		{"divF by zero is infinite", []any{float32(1), float32(0)}, "divF", "[float:+Inf]"},
		{"subD", []any{2.5, 0.5}, "subD", "[double:2]"},
		{"negD", []any{1.25}, "negD", "[double:-1.25]"},
		{"and", []any{true, false}, "and", "[boolean:false]"},
		{"or", []any{true, false}, "or", "[boolean:true]"},
		{"not", []any{false}, "not", "[boolean:true]"},
		{"concat", []any{"foo", "bar"}, "concat", `[string:"foobar"]`},
		{"rest of stack untouched", []any{"keep", int32(1), int32(2)}, "addI", `[int:3 string:"keep"]`},
		{"dup", []any{int32(1)}, "dup", "[int:1 int:1]"},
		{"swap", []any{int32(1), int32(2)}, "swap", "[int:1 int:2]"},
		{"pop", []any{int32(1), int32(2)}, "pop", "[int:1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHeap(t)
			s := stackOf(t, h, tt.in...)

			out, err := s.Apply(tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())

			require.NoError(t, out.Release())
			assert.Equal(t, 0, h.Stats().Used(), "op consumed its receiver")
		})
	}
}

func TestOps_Conversions(t *testing.T) {
	tests := []struct {
		name string
		in   any
		op   string
		want string
	}{
		{"I2L", int32(-5), "convertI2L", "[long:-5]"},
		{"I2F", int32(3), "convertI2F", "[float:3]"},
		{"I2D", int32(3), "convertI2D", "[double:3]"},
		{"L2I truncates", int64(1<<32 + 7), "convertL2I", "[int:7]"},
		{"L2F", int64(2), "convertL2F", "[float:2]"},
		{"L2D", int64(2), "convertL2D", "[double:2]"},
		{"F2I rounds toward zero", float32(-2.9), "convertF2I", "[int:-2]"},
		{"F2I saturates high", float32(1e20), "convertF2I", "[int:2147483647]"},
		{"F2L saturates low", float32(-1e30), "convertF2L", "[long:-9223372036854775808]"},
		{"F2D", float32(0.5), "convertF2D", "[double:0.5]"},
		{"D2I NaN is zero", math.NaN(), "convertD2I", "[int:0]"},
		{"D2I saturates low", -1e12, "convertD2I", "[int:-2147483648]"},
		{"D2L saturates high", math.Inf(1), "convertD2L", "[long:9223372036854775807]"},
		{"D2F", 0.25, "convertD2F", "[float:0.25]"},
		{"int toString", int32(42), "toString", `[string:"42"]`},
		{"double toString", 0.1, "toString", `[string:"0.1"]`},
		{"boolean toString", true, "toString", `[string:"true"]`},
		{"string toString is identity", "s", "toString", `[string:"s"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHeap(t)
			s := stackOf(t, h, tt.in)

			out, err := s.Apply(tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())

			require.NoError(t, out.Release())
			assert.Equal(t, 0, h.Stats().Used())
		})
	}
}

func TestOps_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      []any
		op      string
		wantErr error
	}{
		{"divI by zero", []any{int32(1), int32(0)}, "divI", ErrDivideByZero},
		{"remL by zero", []any{int64(1), int64(0)}, "remL", ErrDivideByZero},
		{"addI on longs", []any{int64(1), int64(2)}, "addI", ErrTypeMismatch},
		{"addI mixed", []any{int64(1), int32(2)}, "addI", ErrTypeMismatch},
		{"concat on ints", []any{int32(1), int32(2)}, "concat", ErrTypeMismatch},
		{"addI underflow", []any{int32(1)}, "addI", ErrEmptyStack},
		{"negI on empty", nil, "negI", ErrEmptyStack},
		{"convert wrong type", []any{"x"}, "convertI2L", ErrTypeMismatch},
		{"toString on array", []any{[]int32{1}}, "toString", ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := stackOf(t, newHeap(t), tt.in...)
			before := s.String()

			_, err := s.Apply(tt.op)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, s.String(), "failed op leaves the stack intact")
			if s.Size() > 0 {
				assert.Equal(t, 1, s.RefCount(), "failed op consumes nothing")
			}
		})
	}
}

func TestOps_UnknownOp(t *testing.T) {
	s := New(newHeap(t))
	_, err := s.Apply("frobnicate")
	assert.ErrorContains(t, err, `unknown op "frobnicate"`)

	assert.True(t, HasOp("addI"))
	assert.False(t, HasOp("frobnicate"))
}

func TestOps_ResultSharesRemainder(t *testing.T) {
	h := newHeap(t)
	base := stackOf(t, h, "base")
	x := mustPush(t, base, int32(2))
	y := mustPush(t, x, int32(3))
	require.NoError(t, x.Release())

	sum, err := y.AddI()
	require.NoError(t, err)
	assert.Same(t, base, sum.Below())

	require.NoError(t, base.Release())
	require.NoError(t, sum.Release())
	assert.Equal(t, 0, h.Stats().Used())
}
