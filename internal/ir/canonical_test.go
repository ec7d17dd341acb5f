package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	got, err := MarshalCanonical(IRObject{
		"b": IRInt(1),
		"a": IRString("x"),
		"c": IRArray{IRBool(true), IRInt(-2)},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":[true,-2]}`, string(got))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes to surrogates 0xD83D..., which sort before U+FF21 in
	// UTF-16 but after it in UTF-8.
	got, err := MarshalCanonical(IRObject{
		"\uFF21":     IRInt(1),
		"\U0001F600": IRInt(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFF21\":1}", string(got))
}

func TestMarshalCanonical_StringEscaping(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"html not escaped", "<a>&", `"<a>&"`},
		{"quote and backslash", `say "hi" \o/`, `"say \"hi\" \\o/"`},
		{"newline and tab", "a\nb\tc", `"a\nb\tc"`},
		{"other control", "\x01", `"\u0001"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"nfc normalized", "e\u0301", "\"\u00e9\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(IRString(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_PlainGoValues(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"n":    int64(7),
		"list": []any{"a", 1, false},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"list":["a",1,false],"n":7}`, string(got))
}

func TestMarshalCanonical_RejectsFloatsAndNull(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": nil})
	assert.Error(t, err)

	_, err = MarshalCanonical(IRArray{nil})
	assert.Error(t, err)
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(json.Number("42"))
	require.NoError(t, err)
	assert.Equal(t, IRInt(42), v)

	_, err = FromGo(json.Number("4.2"))
	assert.Error(t, err)

	_, err = FromGo(uint64(1 << 63))
	assert.Error(t, err)

	_, err = FromGo(struct{}{})
	assert.Error(t, err)

	v, err = FromGo(IRString("kept"))
	require.NoError(t, err)
	assert.Equal(t, IRString("kept"), v)
}
