package props

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_Object(t *testing.T) {
	obj := Object{
		"z": Int(1),
		"a": Array{Bool(true), Null{}, String("s")},
		"m": Object{"y": Float(1.5), "b": Int(-7)},
	}
	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null,"s"],"m":{"b":-7,"y":1.5},"z":1}`, string(data))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical(String("<a&b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(data))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to a single code point.
	decomposed, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	composed, err := MarshalCanonical(String("\u00e9"))
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_LineSeparatorsStayLiteral(t *testing.T) {
	data, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(data))

	// A literal backslash followed by the text u2028 remains escaped.
	data, err = MarshalCanonical(String(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(data))
}

func TestMarshalCanonical_ControlCharsEscaped(t *testing.T) {
	data, err := MarshalCanonical(String("a\nb\"c\\"))
	require.NoError(t, err)
	assert.Equal(t, `"a\nb\"c\\"`, string(data))
}

func TestMarshalCanonical_Floats(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1.5, "1.5"},
		{-0.25, "-0.25"},
		{100, "100"},
		{1e21, "1e+21"},
		{1.5e-7, "1.5e-7"},
		{123456789012, "123456789012"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			data, err := MarshalCanonical(Float(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(Object{"x": Float(math.Inf(1))})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "x"), "error should name the key: %v", err)
}

func TestMarshalCanonical_Deterministic(t *testing.T) {
	build := func() Object {
		return Object{"c": Int(3), "a": Int(1), "b": Object{"y": Int(2), "x": Int(1)}}
	}
	first, err := MarshalCanonical(build())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalCanonical(build())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
