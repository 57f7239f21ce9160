package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	a, err := Parse("100.5")
	require.NoError(t, err)
	assert.Equal(t, "100.50000000", a.String())
}

func TestAddSub(t *testing.T) {
	a := FromInt(100)
	b, err := Parse("25.00000001")
	require.NoError(t, err)

	assert.Equal(t, "125.00000001", a.Add(b).String())
	assert.Equal(t, "74.99999999", a.Sub(b).String())
}

func TestComparisons(t *testing.T) {
	a := FromInt(10)
	b := FromInt(20)

	assert.True(t, a.LessThan(b))
	assert.False(t, b.LessThan(a))
	assert.True(t, a.GreaterThanOrEqual(a))
	assert.True(t, b.GreaterThanOrEqual(a))
	assert.False(t, a.GreaterThanOrEqual(b))
}

func TestZeroAndSign(t *testing.T) {
	assert.True(t, Zero.IsZero())
	assert.False(t, Zero.IsPositive())
	assert.False(t, Zero.IsNegative())

	assert.True(t, FromInt(5).IsPositive())
}

func TestJSONRoundTrip(t *testing.T) {
	a, err := Parse("42.1")
	require.NoError(t, err)

	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"42.10000000"`, string(b))

	var out Amount
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, a.String(), out.String())
}

func TestUnmarshalJSONAcceptsBareNumber(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`7`), &a))
	assert.Equal(t, "7.00000000", a.String())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-number")
	assert.Error(t, err)
}
