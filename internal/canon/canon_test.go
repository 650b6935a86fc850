package canon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"null", nil, `null`},
		{"true", true, `true`},
		{"false", false, `false`},
		{"int", 42, `42`},
		{"negative int64", int64(-7), `-7`},
		{"uint8", uint8(255), `255`},
		{"float with fraction", 2.5, `2.5`},
		{"whole float keeps fraction", 2.0, `2.0`},
		{"large float uses exponent", 1e21, `1e+21`},
		{"float32", float32(0.5), `0.5`},
		{"string", "hello", `"hello"`},
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"escapes quote and backslash", `a"b\c`, `"a\"b\\c"`},
		{"short escapes", "a\nb\tc", `"a\nb\tc"`},
		{"control char", "\x01", `"\u0001"`},
		{"line separator stays literal", "a\u2028b", "\"a\u2028b\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshal_NFCNormalization(t *testing.T) {
	decomposed := "e\u0301"
	got, err := Marshal(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshal_ObjectKeyOrder(t *testing.T) {
	obj := map[string]any{
		"value":  1,
		"column": "age",
		"type":   "query",
		"op":     "Is",
	}
	got, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"column":"age","op":"Is","type":"query","value":1}`, string(got))
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before
	// U+FF61 in UTF-16 but after it in UTF-8.
	m := map[string]any{"｡": 1, "\U0001F600": 2}
	assert.Equal(t, []string{"\U0001F600", "｡"}, SortedKeys(m))
}

func TestMarshal_Nested(t *testing.T) {
	v := map[string]any{
		"queries": []any{
			map[string]any{"b": []string{"x", "y"}, "a": nil},
		},
	}
	got, err := Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"queries":[{"a":null,"b":["x","y"]}]}`, string(got))
}

func TestMarshal_Errors(t *testing.T) {
	_, err := Marshal(math.NaN())
	assert.ErrorContains(t, err, "non-finite")

	_, err = Marshal(map[string]any{"k": []any{struct{}{}}})
	assert.ErrorContains(t, err, `object["k"]: array[0]: unsupported type`)
}

func TestDecode_NumbersKeepTheirKind(t *testing.T) {
	v, err := Decode([]byte(`{"i":18,"f":2.0,"e":1e3,"l":[1,2.5],"s":"x","n":null,"b":true}`))
	require.NoError(t, err)

	obj := v.(map[string]any)
	assert.Equal(t, int64(18), obj["i"])
	assert.Equal(t, 2.0, obj["f"])
	assert.Equal(t, 1000.0, obj["e"])
	assert.Equal(t, []any{int64(1), 2.5}, obj["l"])
	assert.Equal(t, "x", obj["s"])
	assert.Nil(t, obj["n"])
	assert.Equal(t, true, obj["b"])
}

func TestDecode_RoundTrip(t *testing.T) {
	in := map[string]any{
		"a": []any{int64(1), 2.0, "three", nil, false},
		"b": map[string]any{"c": -0.25},
	}
	data, err := Marshal(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"a":`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{} {}`))
	assert.ErrorContains(t, err, "trailing data")

	_, err = Decode([]byte(`99999999999999999999`))
	assert.ErrorContains(t, err, "out of range")

	_, err = DecodeObject([]byte(`[1]`))
	assert.ErrorContains(t, err, "expected object")
}

func TestIndent(t *testing.T) {
	got, err := Indent([]byte(`{"a":[2.0]}`))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": [\n    2.0\n  ]\n}", string(got))
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(DomainQuery, map[string]any{"x": 1, "y": "z"})
	require.NoError(t, err)
	b, err := Fingerprint(DomainQuery, map[string]any{"y": "z", "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Fingerprint(DomainSelection, map[string]any{"x": 1, "y": "z"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "domains must separate otherwise identical payloads")

	_, err = Fingerprint(DomainQuery, math.Inf(1))
	assert.Error(t, err)
}
