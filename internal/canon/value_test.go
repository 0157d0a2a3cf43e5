package canon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGo_Primitives(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"string", "hello", String("hello")},
		{"int", 42, Int(42)},
		{"int64", int64(42), Int(42)},
		{"bool", true, Bool(true)},
		{"float", 0.5, Float(0.5)},
		{"nil", nil, Null{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGo_Nested(t *testing.T) {
	got, err := FromGo(map[string]any{
		"cohort": "A",
		"counts": []any{1, 2, 3},
	})
	require.NoError(t, err)

	obj, ok := got.(Object)
	require.True(t, ok)
	assert.Equal(t, String("A"), obj["cohort"])
	assert.Equal(t, Array{Int(1), Int(2), Int(3)}, obj["counts"])
}

func TestFromGo_RejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := FromGo(f)
		require.Error(t, err)
		assert.True(t, IsNonDeterministic(err), "expected NonDeterministicError for %v", f)
	}
}

func TestFromGo_RejectsUnsupportedType(t *testing.T) {
	_, err := FromGo(make(chan int))
	require.Error(t, err)
	assert.True(t, IsNonDeterministic(err))
}

func TestMarshalValue_NegativeZeroNormalized(t *testing.T) {
	neg, err := MarshalValue(Float(math.Copysign(0, -1)))
	require.NoError(t, err)
	pos, err := MarshalValue(Float(0))
	require.NoError(t, err)
	assert.Equal(t, string(pos), string(neg))
	assert.Equal(t, "0.0", string(neg))
}

func TestMarshalValue_AllowsNull(t *testing.T) {
	got, err := MarshalValue(Object{"x": Null{}})
	require.NoError(t, err)
	assert.Equal(t, `{"x":null}`, string(got))
}

func TestValueRoundTrip(t *testing.T) {
	orig := Object{
		"name":   String("Cohort"),
		"rows":   Int(50),
		"mean":   Float(12.25),
		"strict": Bool(false),
		"cells":  Array{Int(1), Null{}, Float(3.5)},
	}

	data, err := MarshalValue(orig)
	require.NoError(t, err)

	back, err := UnmarshalValue(data)
	require.NoError(t, err)
	assert.Equal(t, orig, back)
}

func TestUnmarshalValue_LargeIntPrecision(t *testing.T) {
	// 2^53+1 loses precision through float64; json.Number must preserve it.
	back, err := UnmarshalValue([]byte("9007199254740993"))
	require.NoError(t, err)
	assert.Equal(t, Int(9007199254740993), back)
}

func TestUnmarshalObject_Empty(t *testing.T) {
	obj, err := UnmarshalObject(nil)
	require.NoError(t, err)
	assert.Empty(t, obj)

	obj, err = UnmarshalObject([]byte("{}"))
	require.NoError(t, err)
	assert.Empty(t, obj)
}

func TestSortedKeys_Stable(t *testing.T) {
	obj := Object{"b": Int(1), "a": Int(2), "c": Int(3)}
	assert.Equal(t, []string{"a", "b", "c"}, obj.SortedKeys())
}
