package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pascal/interpreter-go/pkg/runtime"
)

func TestImplicitConversionFollowsPrecedence(t *testing.T) {
	conv, ok := ImplicitConversion(Byte, Integer)
	require.True(t, ok)
	out, err := conv(runtime.IntegerValue{Val: 200})
	require.NoError(t, err)
	assert.Equal(t, runtime.IntegerValue{Val: 200}, out)

	conv, ok = ImplicitConversion(Integer, Real)
	require.True(t, ok)
	out, err = conv(runtime.IntegerValue{Val: 3})
	require.NoError(t, err)
	assert.Equal(t, runtime.RealValue{Val: 3}, out)

	conv, ok = ImplicitConversion(Char, String)
	require.True(t, ok)
	out, err = conv(runtime.CharValue{Val: 'x'})
	require.NoError(t, err)
	assert.Equal(t, runtime.StringValue{Val: "x"}, out)

	_, ok = ImplicitConversion(Real, Integer)
	assert.False(t, ok, "real must not narrow implicitly")
	_, ok = ImplicitConversion(Int64, Integer)
	assert.False(t, ok)
	_, ok = ImplicitConversion(String, Char)
	assert.False(t, ok)
	_, ok = ImplicitConversion(Boolean, Integer)
	assert.False(t, ok)
}

func TestExplicitConversionRoundTripsOrdinals(t *testing.T) {
	toChar, ok := ExplicitConversion(Integer, Char)
	require.True(t, ok)
	toInt, ok := ExplicitConversion(Char, Integer)
	require.True(t, ok)

	for _, code := range []int64{0, 65, 255, 1000, 0xFFFF} {
		c, err := toChar(runtime.IntegerValue{Val: code})
		require.NoError(t, err)
		back, err := toInt(c)
		require.NoError(t, err)
		assert.Equal(t, runtime.IntegerValue{Val: code}, back)
	}
}

func TestExplicitRealTruncates(t *testing.T) {
	conv, ok := ExplicitConversion(Real, Integer)
	require.True(t, ok)
	out, err := conv(runtime.RealValue{Val: -3.9})
	require.NoError(t, err)
	assert.Equal(t, runtime.IntegerValue{Val: -3}, out)
}

func TestExplicitEnumChecksRange(t *testing.T) {
	color := &Enum{TypeName: "Color", Members: []string{"Red", "Green"}}
	conv, ok := ExplicitConversion(Integer, color)
	require.True(t, ok)
	out, err := conv(runtime.IntegerValue{Val: 1})
	require.NoError(t, err)
	assert.Equal(t, "Green", out.(runtime.EnumValue).Name())

	_, err = conv(runtime.IntegerValue{Val: 5})
	var rv *RangeViolation
	assert.ErrorAs(t, err, &rv)
}

func TestSubrangeAssignmentIsRangeChecked(t *testing.T) {
	digit := &Subrange{Base: Integer, Low: 0, High: 9}
	conv, ok := ImplicitConversion(Integer, digit)
	require.True(t, ok)
	_, err := conv(runtime.IntegerValue{Val: 7})
	require.NoError(t, err)
	_, err = conv(runtime.IntegerValue{Val: 10})
	assert.Error(t, err)
	assert.Equal(t, int64(0), digit.Initialize().(runtime.IntegerValue).Val)
}

func TestIntegerWrap(t *testing.T) {
	assert.Equal(t, int64(-2147483648), Integer.Wrap(2147483648))
	assert.Equal(t, int64(0), Byte.Wrap(256))
	assert.Equal(t, int64(-1), ShortInt.Wrap(255))
	assert.Equal(t, int64(1<<40), Int64.Wrap(1<<40))
}

func TestConstantFits(t *testing.T) {
	assert.True(t, ConstantFits(255, Byte))
	assert.False(t, ConstantFits(256, Byte))
	assert.False(t, ConstantFits(1, Real))
}

func TestDerivedTypes(t *testing.T) {
	arr := &Array{Element: Real, Index: Integer, Low: 1, High: 3}
	el, ok := ElementType(arr)
	require.True(t, ok)
	assert.True(t, el.Equals(Real))

	el, ok = ElementType(String)
	require.True(t, ok)
	assert.True(t, el.Equals(Char))

	_, ok = ElementType(Integer)
	assert.False(t, ok)

	init := arr.Initialize().(*runtime.ArrayValue)
	assert.Len(t, init.Elements, 3)
	assert.Equal(t, int64(1), init.Low)

	rec := &Record{TypeName: "TPoint", Fields: []Field{{Name: "X", Type: Integer}, {Name: "Y", Type: Real}}}
	ft, idx, ok := FieldType(rec, "y")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.True(t, ft.Equals(Real))
	_, _, ok = FieldType(rec, "z")
	assert.False(t, ok)
}

func TestCommonType(t *testing.T) {
	c, ok := Common(Byte, Int64)
	require.True(t, ok)
	assert.Equal(t, Int64, c)
	c, ok = Common(Integer, Real)
	require.True(t, ok)
	assert.Equal(t, Real, c)
	c, ok = Common(Char, String)
	require.True(t, ok)
	assert.Equal(t, String, c)
	_, ok = Common(Boolean, Integer)
	assert.False(t, ok)
}

func TestByNameIsCaseInsensitive(t *testing.T) {
	typ, ok := ByName("LongInt")
	require.True(t, ok)
	assert.Equal(t, Integer, typ)
	_, ok = ByName("TFoo")
	assert.False(t, ok)
}
