package services

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertValue_Pointer(t *testing.T) {
	v, err := convertValue(int64(5), reflect.TypeOf((*int64)(nil)))
	require.NoError(t, err)
	p, ok := v.Interface().(*int64)
	require.True(t, ok)
	require.NotNil(t, p)
	assert.Equal(t, int64(5), *p)
}

func TestConvertValue_NilIsZero(t *testing.T) {
	v, err := convertValue(nil, reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, "", v.Interface())

	v, err = convertValue(nil, reflect.TypeOf((*author)(nil)))
	require.NoError(t, err)
	assert.Nil(t, v.Interface().(*author))
}

func TestConvertValue_Time(t *testing.T) {
	want := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	v, err := convertValue(want, timeType)
	require.NoError(t, err)
	assert.True(t, want.Equal(v.Interface().(time.Time)))

	// Drivers commonly return timestamps as text.
	v, err = convertValue("2026-03-14T09:30:00Z", timeType)
	require.NoError(t, err)
	assert.True(t, want.Equal(v.Interface().(time.Time)))

	v, err = convertValue("2026-03-14 09:30:00", timeType)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC).Equal(v.Interface().(time.Time)))

	_, err = convertValue("not a timestamp", timeType)
	require.Error(t, err)
}

func TestConvertValue_NumericWidening(t *testing.T) {
	v, err := convertValue(int64(5), reflect.TypeOf(int(0)))
	require.NoError(t, err)
	assert.Equal(t, 5, v.Interface())

	v, err = convertValue(int64(1), reflect.TypeOf(false))
	require.NoError(t, err)
	assert.Equal(t, true, v.Interface())

	v, err = convertValue("3.5", reflect.TypeOf(float64(0)))
	require.NoError(t, err)
	assert.Equal(t, 3.5, v.Interface())
}

func TestConvertValue_Bytes(t *testing.T) {
	v, err := convertValue("payload", reflect.TypeOf([]byte(nil)))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), v.Interface())
}

func TestConvertValue_Unconvertible(t *testing.T) {
	_, err := convertValue([]string{"x"}, reflect.TypeOf(int64(0)))
	require.Error(t, err)
}

func TestConvertStorage(t *testing.T) {
	v, err := convertStorage([]byte("hi"), "string")
	require.NoError(t, err)
	assert.Equal(t, "hi", v)

	v, err = convertStorage("42", "int")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = convertStorage(int64(0), "bool")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	// An undeclared shape defaults to string.
	v, err = convertStorage("plain", "")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)

	v, err = convertStorage(nil, "int")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = convertStorage("x", "decimal")
	require.Error(t, err)
}
