package value

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromInt64(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected Value
	}{
		{name: "zero", input: 0, expected: Int(0)},
		{name: "max safe", input: MaxSafeInt, expected: Int(MaxSafeInt)},
		{name: "min safe", input: MinSafeInt, expected: Int(MinSafeInt)},
		{name: "above max safe", input: MaxSafeInt + 1, expected: String("9007199254740992")},
		{name: "below min safe", input: MinSafeInt - 1, expected: String("-9007199254740992")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, FromInt64(tt.input))
		})
	}
}

func TestFromUint64(t *testing.T) {
	require.Equal(t, Int(42), FromUint64(42))
	require.Equal(t, String("18446744073709551615"), FromUint64(^uint64(0)))
}

func TestFromBig(t *testing.T) {
	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	require.Equal(t, Null{}, FromBig(nil))
	require.Equal(t, Int(1500), FromBig(big.NewInt(1500)))
	require.Equal(t, Int(-7), FromBig(big.NewInt(-7)))
	require.Equal(t, String(huge.String()), FromBig(huge))
}

func TestMap_Get(t *testing.T) {
	m := Map{
		{Name: "mentor", Value: String("0xabc")},
		{Name: "score", Value: Int(5)},
	}

	v, ok := m.Get("score")
	require.True(t, ok)
	require.Equal(t, Int(5), v)

	_, ok = m.Get("missing")
	require.False(t, ok)

	require.Equal(t, []string{"mentor", "score"}, m.Names())
}

func TestEqual(t *testing.T) {
	a := Map{
		{Name: "ids", Value: Seq{Int(1), Int(2)}},
		{Name: "ok", Value: Bool(true)},
	}
	b := Map{
		{Name: "ids", Value: Seq{Int(1), Int(2)}},
		{Name: "ok", Value: Bool(true)},
	}
	reordered := Map{
		{Name: "ok", Value: Bool(true)},
		{Name: "ids", Value: Seq{Int(1), Int(2)}},
	}

	require.True(t, Equal(a, b))
	require.False(t, Equal(a, reordered))
	require.False(t, Equal(Int(1), String("1")))
	require.True(t, Equal(nil, Null{}))
}

func TestWalk(t *testing.T) {
	v := Map{
		{Name: "a", Value: String("x")},
		{Name: "b", Value: Seq{String("y"), Map{{Name: "c", Value: String("z")}}}},
	}

	var strings []string
	Walk(v, func(v Value) {
		if s, ok := v.(String); ok {
			strings = append(strings, string(s))
		}
	})

	require.Equal(t, []string{"x", "y", "z"}, strings)
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "map", KindMap.String())
	require.Equal(t, "kind(42)", Kind(42).String())
}
