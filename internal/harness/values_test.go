package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cascade/internal/cell"
	"github.com/roach88/cascade/internal/operand"
)

func decodeValues(t *testing.T, doc string) []Value {
	t.Helper()
	var vals []Value
	require.NoError(t, yaml.Unmarshal([]byte(doc), &vals))
	return vals
}

func TestBuildStack(t *testing.T) {
	heap := cell.NewFixed(64, 64)
	vals := decodeValues(t, `
- {boolean: true}
- {byte: 255}
- {short: -3}
- {long: 9000000000}
- {float: 1.5}
- {double: 2}
- {strings: [a, b]}
- {ints: [1, 2]}
- {longs: [3]}
- {doubles: [0.5]}
- {string: top}
`)
	s, err := buildStack(operand.New(heap), vals)
	require.NoError(t, err)
	assert.Equal(t, `[string:"top" double[]:[0.5] long[]:[3] int[]:[1 2] string[]:["a" "b"] double:2 float:1.5 long:9000000000 short:-3 byte:255 boolean:true]`, s.String())
	require.NoError(t, s.Release())
	assert.Equal(t, 0, heap.Stats().Used())
}

func TestBuildStack_Errors(t *testing.T) {
	heap := cell.NewFixed(64, 64)
	tests := []struct {
		doc  string
		want string
	}{
		{"[]", "no values to push"},
		{"[{int: 1}, {int: 2147483648}]", "int: 2147483648 out of range"},
		{"[{short: x}]", "short: not an integer: x"},
		{"[{boolean: 1}]", "boolean: not a bool: 1"},
		{"[{string: 3}]", "string: not a string: 3"},
		{"[{ints: [1, x]}]", "ints: [1]: not an integer: x"},
		{"[{doubles: 1}]", "doubles: not a list: 1"},
		{"[{decimal: 1}]", `unknown value type "decimal"`},
		{"[{int: 1, long: 1}]", "value needs exactly one type key, got 2"},
	}
	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			_, err := buildStack(operand.New(heap), decodeValues(t, tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, 0, heap.Stats().Used(), "partial stacks are released")
		})
	}
}
