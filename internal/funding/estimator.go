// Package funding 由标记价格和指数价格估算下一期资金费率
package funding

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
)

var (
	DefaultInterestRate = decimal.RequireFromString("0.0001")
	DefaultClamp        = decimal.RequireFromString("0.0005")
)

// Estimate 资金费率估算值，只用于展示，不落库
type Estimate struct {
	PremiumIndex decimal.Decimal `json:"premium_index"`
	Rate         decimal.Decimal `json:"rate"`
}

type Estimator struct {
	interest decimal.Decimal
	clamp    decimal.Decimal
}

func NewEstimator(interest, clamp decimal.Decimal) Estimator {
	return Estimator{interest: interest, clamp: clamp.Abs()}
}

// Default 利率 0.0001，钳制 0.0005
func Default() Estimator {
	return NewEstimator(DefaultInterestRate, DefaultClamp)
}

// Estimate premium = (mark-index)/index，rate = premium + clamp(interest-premium, ±clamp)。index 为 0 时 premium 取 0
func (e Estimator) Estimate(mark, index decimal.Decimal) Estimate {
	premium := decimal.Zero
	if !index.IsZero() {
		premium = mark.Sub(index).Div(index)
	}

	diff := e.interest.Sub(premium)
	if diff.GreaterThan(e.clamp) {
		diff = e.clamp
	} else if diff.LessThan(e.clamp.Neg()) {
		diff = e.clamp.Neg()
	}

	return Estimate{PremiumIndex: premium, Rate: premium.Add(diff)}
}

// EstimateWei 入参为 18 位精度的链上价格
func (e Estimator) EstimateWei(mark, index *big.Int) Estimate {
	return e.Estimate(fixedpoint.ToDecimal(mark), fixedpoint.ToDecimal(index))
}
