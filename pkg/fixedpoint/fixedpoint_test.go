package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndFormat(t *testing.T) {
	v, err := Parse("1234.5")
	require.NoError(t, err)
	assert.Equal(t, "1234500000000000000000", v.String())
	assert.Equal(t, "1234.50", Format(v, 2))

	_, err = Parse("abc")
	assert.Error(t, err)
}

func TestScaleExpo(t *testing.T) {
	// Pyth ETH/USD: price=345678000000, expo=-8 -> 3456.78
	wei := ScaleExpo(big.NewInt(345678000000), -8)
	assert.Equal(t, MustParse("3456.78").String(), wei.String())

	// expo below -18 divides
	assert.Equal(t, "12", ScaleExpo(big.NewInt(1200), -20).String())
}

func TestToDecimalNil(t *testing.T) {
	assert.True(t, ToDecimal(nil).IsZero())
	assert.Equal(t, int64(0), OrZero(nil).Int64())
	assert.Equal(t, "5", Abs(big.NewInt(-5)).String())
}
