package props

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Variants(t *testing.T) {
	v, err := Decode([]byte(`{"s":"a","i":42,"f":1.5,"b":true,"n":null,"arr":[1,"x"],"obj":{"k":false}}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok, "expected Object, got %T", v)

	assert.Equal(t, String("a"), obj["s"])
	assert.Equal(t, Int(42), obj["i"])
	assert.Equal(t, Float(1.5), obj["f"])
	assert.Equal(t, Bool(true), obj["b"])
	assert.Equal(t, Null{}, obj["n"])
	assert.Equal(t, Array{Int(1), String("x")}, obj["arr"])
	assert.Equal(t, Object{"k": Bool(false)}, obj["obj"])
}

func TestDecode_LargeIntegerKeepsPrecision(t *testing.T) {
	v, err := Decode([]byte(`9007199254740993`))
	require.NoError(t, err)
	assert.Equal(t, Int(9007199254740993), v)
}

func TestDecode_ExponentIsFloat(t *testing.T) {
	v, err := Decode([]byte(`1e3`))
	require.NoError(t, err)
	assert.Equal(t, Float(1000), v)
}

func TestDecode_RejectsTrailingData(t *testing.T) {
	_, err := Decode([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestDecodeObject_Empty(t *testing.T) {
	obj, err := DecodeObject(nil)
	require.NoError(t, err)
	assert.Empty(t, obj)

	_, err = DecodeObject([]byte(`[1]`))
	require.Error(t, err)
}

func TestObject_UnmarshalJSON(t *testing.T) {
	var doc struct {
		Body Object `json:"body"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"body":{"x":1,"y":[true]}}`), &doc))
	assert.Equal(t, Object{"x": Int(1), "y": Array{Bool(true)}}, doc.Body)
}

func TestObject_MarshalJSONSortedKeys(t *testing.T) {
	obj := NewObject(P("b", Int(2)), P("a", String("<x>")), P("c", Null{}))
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x>","b":2,"c":null}`, string(data))
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before U+FB01
	// in UTF-16 although the UTF-8 bytes sort after.
	obj := Object{"\ufb01": Int(1), "\U0001F600": Int(2), "a": Int(3)}
	assert.Equal(t, []string{"a", "\U0001F600", "\ufb01"}, obj.SortedKeys())
}

func TestClone_IsDeep(t *testing.T) {
	orig := Object{"nested": Object{"x": Int(1)}, "list": Array{Int(1)}}
	cp := orig.Clone()

	cp["nested"].(Object)["x"] = Int(2)
	cp["list"].(Array)[0] = Int(9)

	assert.Equal(t, Int(1), orig["nested"].(Object)["x"])
	assert.Equal(t, Int(1), orig["list"].(Array)[0])
}

func TestWithout(t *testing.T) {
	obj := Object{"_id": String("doc"), "_rev": String("1-a"), "x": Int(1)}
	assert.Equal(t, Object{"x": Int(1)}, obj.Without("_id", "_rev"))
	assert.Len(t, obj, 3, "original must be untouched")
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same ints", Int(1), Int(1), true},
		{"int vs float", Int(1), Float(1), false},
		{"nulls", Null{}, Null{}, true},
		{"arrays", Array{Int(1), String("a")}, Array{Int(1), String("a")}, true},
		{"array length", Array{Int(1)}, Array{Int(1), Int(2)}, false},
		{"objects", Object{"a": Int(1)}, Object{"a": Int(1)}, true},
		{"object missing key", Object{"a": Int(1)}, Object{"b": Int(1)}, false},
		{"nil vs null", nil, Null{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"count":  3,
		"ratio":  0.25,
		"whole":  2.0,
		"labels": []any{"a", "b"},
		"none":   nil,
	})
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, Int(3), obj["count"])
	assert.Equal(t, Float(0.25), obj["ratio"])
	assert.Equal(t, Int(2), obj["whole"])
	assert.Equal(t, Array{String("a"), String("b")}, obj["labels"])
	assert.Equal(t, Null{}, obj["none"])

	_, err = FromGo(struct{}{})
	require.Error(t, err)
}

func TestToGo_RoundTrip(t *testing.T) {
	obj := Object{"x": Int(1), "tags": Array{String("a")}, "ok": Bool(true)}
	got := ToGo(obj).(map[string]any)

	assert.Equal(t, int64(1), got["x"])
	assert.Equal(t, []any{"a"}, got["tags"])
	assert.Equal(t, true, got["ok"])
}
