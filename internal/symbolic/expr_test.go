package symbolic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"integer", "42", "42"},
		{"float", "2.5", "2.5"},
		{"symbol", "N", "N"},
		{"addition", "M + 1", "M + 1"},
		{"precedence", "a + b * c", "a + b * c"},
		{"grouped right", "a - (b - c)", "a - (b - c)"},
		{"redundant parens", "(a + b) * c", "(a + b) * c"},
		{"dropped parens", "(a * b) + c", "a * b + c"},
		{"subscript", "A_row[0]", "A_row[0]"},
		{"slice", "x[0:N]", "x[0:N]"},
		{"multi-dim", "A[i, j + 1]", "A[i, j + 1]"},
		{"dotted", "desc.shape", "desc.shape"},
		{"call", "floor(N / 2)", "floor(N / 2)"},
		{"power", "2 ** n ** 2", "2 ** (n ** 2)"},
		{"unary minus", "-x + 1", "-x + 1"},
		{"boolean", "i < N and not done", "i < N and not done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"", "a +", "x[", "(a", "1 2", "f(a,", "and b"} {
		_, err := Parse(src)
		assert.Error(t, err, "source %q", src)
	}
}

func TestParseOrOpaque(t *testing.T) {
	e := ParseOrOpaque("@not-an-expression@")
	op, ok := e.(*Opaque)
	require.True(t, ok)
	assert.Equal(t, "@not-an-expression@", op.String())

	// Opaque text is inert under substitution.
	assert.Same(t, e, Subs(e, map[string]Expr{"not": NewInt(1)}))
}

func TestFreeSymbols(t *testing.T) {
	e := MustParse("a.b.c + x[i] * f(y)")
	free := FreeSymbols(e)

	// Dotted chains contribute every prefix.
	for _, name := range []string{"a", "a.b", "a.b.c", "x", "i", "y"} {
		assert.Contains(t, free, name)
	}
	assert.NotContains(t, free, "f")
}

func TestSubsSimultaneous(t *testing.T) {
	e := MustParse("a + b")
	got := Subs(e, map[string]Expr{
		"a": NewSym("b"),
		"b": NewSym("a"),
	})
	// A swap must not chain one replacement into the other.
	assert.Equal(t, "b + a", got.String())
}

func TestSubsIdentity(t *testing.T) {
	e := MustParse("x + y")
	got := Subs(e, map[string]Expr{"unrelated": NewInt(0)})
	assert.Same(t, e, got)
}

func TestSubsDottedPrefix(t *testing.T) {
	e := MustParse("s.field + 1")
	got := Subs(e, map[string]Expr{"s": NewSym("t")})
	assert.Equal(t, "t.field + 1", got.String())

	// Exact dotted name wins over the prefix.
	got = Subs(e, map[string]Expr{"s.field": NewInt(7), "s": NewSym("t")})
	assert.Equal(t, "7 + 1", got.String())
}

func TestSubsInsideSubscript(t *testing.T) {
	e := MustParse("A[i + 1, 0:N]")
	got := Subs(e, map[string]Expr{"i": NewInt(2), "N": NewSym("M")})
	assert.Equal(t, "A[2 + 1, 0:M]", got.String())
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2", "3"},
		{"2 * 3 + 1", "7"},
		{"x + 0", "x"},
		{"0 + x", "x"},
		{"x - 0", "x"},
		{"x - x", "0"},
		{"x * 1", "x"},
		{"x * 0", "0"},
		{"x / 1", "x"},
		{"7 // 2", "3"},
		{"-7 // 2", "-4"},
		{"7 % 3", "1"},
		{"floor(3.5)", "3"},
		{"(N + 1) - 1", "N"},
		{"N - 1 + 3", "N + 2"},
		{"(a * b) - (a * b)", "0"},
	}
	for _, tt := range tests {
		got := Simplify(MustParse(tt.src))
		assert.Equal(t, tt.want, got.String(), "source %q", tt.src)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(MustParse("N + 1"), MustParse("N + 1")))
	assert.True(t, Equal(MustParse("2 + 2"), MustParse("4")))
	assert.False(t, Equal(MustParse("N"), MustParse("M")))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(MustParse("N"), nil))
}

func TestEval(t *testing.T) {
	env := Env{
		Scalars: map[string]float64{"i": 1, "N": 4},
		Vectors: map[string][]float64{"v": {10, 20, 30}},
	}

	got, err := Eval(MustParse("v[i + 1] * 2"), env)
	require.NoError(t, err)
	assert.Equal(t, 60.0, got)

	got, err = Eval(MustParse("i < N and N <= 4"), env)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	_, err = Eval(MustParse("missing"), env)
	assert.Error(t, err)

	_, err = Eval(MustParse("v[99]"), env)
	assert.Error(t, err)
}
