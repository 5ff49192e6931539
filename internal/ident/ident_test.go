package ident

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		tokens  int
		wantErr bool
	}{
		{"single token", "adder", "adder", 1, false},
		{"path", "pipeline.stage-1.sum", "pipeline.stage-1.sum", 3, false},
		{"uuid form", "0190a5b2-7c3e-7def-8123-456789abcdef", "0190a5b2-7c3e-7def-8123-456789abcdef", 1, false},
		{"fullwidth folds to ascii", "ｓｕｍ", "sum", 1, false},
		{"empty", "", "", 0, true},
		{"empty token", "a..b", "", 0, true},
		{"trailing dot", "a.", "", 0, true},
		{"space", "a b", "", 0, true},
		{"non ascii", "café", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Parse(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.String())
			assert.Equal(t, tt.tokens, n.Len())
		})
	}
}

func TestToken_HashIdentity(t *testing.T) {
	a, err := NewToken("alpha")
	require.NoError(t, err)
	b, err := NewToken("alpha")
	require.NoError(t, err)
	c, err := NewToken("beta")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.HashHex(), 32)
	assert.False(t, a.Equal(c))
	assert.Equal(t, 0, a.Compare(b))
	assert.Equal(t, -c.Compare(a), a.Compare(c))
}

func TestName_Ordering(t *testing.T) {
	names := []Name{
		MustParse("a.b.c"),
		MustParse("a"),
		MustParse("a.b"),
		MustParse("z"),
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Compare(names[j]) < 0 })

	for i := 1; i < len(names); i++ {
		assert.Negative(t, names[i-1].Compare(names[i]))
	}
	// A proper prefix always sorts before its extensions.
	assert.Negative(t, MustParse("a").Compare(MustParse("a.b")))
	assert.Negative(t, MustParse("a.b").Compare(MustParse("a.b.c")))
}

func TestName_Navigation(t *testing.T) {
	n := MustParse("sys.io")

	child, err := n.Child("reader")
	require.NoError(t, err)
	assert.Equal(t, "sys.io.reader", child.String())
	assert.Equal(t, "sys.io", n.String(), "Child does not mutate the parent")

	assert.True(t, child.HasPrefix(n))
	assert.False(t, n.HasPrefix(child))
	assert.True(t, child.Parent().Equal(n))
	assert.Equal(t, "reader", child.Last().String())
	assert.True(t, MustParse("x").Parent().IsZero())

	_, err = n.Child("bad token")
	assert.ErrorIs(t, err, ErrInvalidName)

	assert.True(t, SameHash(MustParse("a.b"), MustParse("a.b")))
	assert.False(t, SameHash(MustParse("a.b"), MustParse("b.a")))
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("..") })
}
