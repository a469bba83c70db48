package funding

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
)

func TestEstimateExample(t *testing.T) {
	est := Default().EstimateWei(fixedpoint.MustParse("1000"), fixedpoint.MustParse("900"))

	assert.Equal(t, "0.1111", est.PremiumIndex.StringFixed(4))
	assert.Equal(t, "0.1106", est.Rate.StringFixed(4))
}

func TestEstimateWithinClamp(t *testing.T) {
	est := Default().Estimate(decimal.RequireFromString("100.001"), decimal.NewFromInt(100))
	// premium 0.00001，diff 0.00009 未触及上下限
	assert.Equal(t, "0.0001", est.Rate.String())
}

func TestEstimateZeroIndex(t *testing.T) {
	est := Default().EstimateWei(big.NewInt(1000), new(big.Int))
	assert.True(t, est.PremiumIndex.IsZero())
	assert.Equal(t, "0.0001", est.Rate.String())
}

func TestRateWithinPremiumBand(t *testing.T) {
	e := Default()
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		mark := decimal.NewFromInt(rng.Int63n(10_000) + 1)
		index := decimal.NewFromInt(rng.Int63n(10_000) + 1)
		est := e.Estimate(mark, index)

		lo := est.PremiumIndex.Sub(DefaultClamp)
		hi := est.PremiumIndex.Add(DefaultClamp)
		assert.True(t, est.Rate.GreaterThanOrEqual(lo))
		assert.True(t, est.Rate.LessThanOrEqual(hi))
	}
}
