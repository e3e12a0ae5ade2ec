package jsonx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderRoundTrip(t *testing.T) {
	b := NewBuilder()
	node, err := b.Object().
		Key("eta").Value("hello").
		Key("alpha").Array().
		Value(true).
		Value(2).
		Value("three").
		Value(4).
		Object().Key("delta").Value(5).End().
		End().
		Key("rho").Array().
		Object().
		Key("sigma").Array().
		Object().
		Key("tau").Array().
		Object().Key("upsilon").Array().Value("abcde").End().End().
		End().
		End().
		End().
		End().
		End().
		Build()
	require.NoError(t, err)

	assert.Equal(t, "hello", node.Field("eta").AsString(""))
	assert.Equal(t, true, node.Field("alpha").Index(0).AsBool(false))
	assert.Equal(t, 5, node.Field("alpha").Index(4).Field("delta").AsInt(0))
	assert.Equal(t, 1, node.Field("rho").Index(0).Field("sigma").Index(0).Field("tau").Index(0).Field("upsilon").Len())

	// Serialize, parse, serialize again: both renderings must match,
	// the property spec §8 calls out directly.
	first := node.String()
	reparsed, err := Parse([]byte(first))
	require.NoError(t, err)
	second := reparsed.String()

	var a, bVal interface{}
	require.NoError(t, json.Unmarshal([]byte(first), &a))
	require.NoError(t, json.Unmarshal([]byte(second), &bVal))
	assert.Equal(t, a, bVal)
}

func TestFieldOnMissingKeyIsAbsentNotPanic(t *testing.T) {
	node, err := Parse([]byte(`{"known": 1}`))
	require.NoError(t, err)

	missing := node.Field("unknown")
	assert.False(t, missing.Present())
	assert.Equal(t, "fallback", missing.AsString("fallback"))
}

func TestIndexOutOfRangeIsAbsent(t *testing.T) {
	node, err := Parse([]byte(`[1,2,3]`))
	require.NoError(t, err)
	assert.False(t, node.Index(99).Present())
	assert.Equal(t, 3, node.Len())
}

func TestBuilderRejectsUnclosedContainer(t *testing.T) {
	_, err := NewBuilder().Object().Key("x").Value(1).Build()
	assert.Error(t, err)
}
