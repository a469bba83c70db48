package risk

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
)

// DefaultMMR 默认维持保证金率 0.5%
var DefaultMMR = decimal.RequireFromString("0.005")

var (
	hundred      = decimal.NewFromInt(100)
	bpsDenom     = decimal.NewFromInt(10000)
	criticalLine = decimal.NewFromInt(2)
	warningLine  = decimal.NewFromInt(5)
)

// Health 按保证金率划分的健康度
type Health string

const (
	Healthy  Health = "healthy"
	Warning  Health = "warning"
	Critical Health = "critical"
)

// ClassifyHealth 保证金率（百分比）低于 2 为 critical，低于 5 为 warning
func ClassifyHealth(ratioPct decimal.Decimal) Health {
	switch {
	case ratioPct.LessThan(criticalLine):
		return Critical
	case ratioPct.LessThan(warningLine):
		return Warning
	default:
		return Healthy
	}
}

// LiquidationPrice 强平价（人类单位）。
// 多头 max(0, (E*S - M) / (S*(1-mmr)))，空头 (M + E*S) / (S*(1+mmr))，空仓返回 0。
// M 为可用保证金，E 为开仓价，S 为仓位绝对值
func LiquidationPrice(entry, size, margin *big.Int, mmr decimal.Decimal) decimal.Decimal {
	sign := fixedpoint.OrZero(size).Sign()
	if sign == 0 {
		return decimal.Zero
	}

	e := fixedpoint.ToDecimal(entry)
	s := fixedpoint.ToDecimal(size).Abs()
	m := fixedpoint.ToDecimal(margin)
	notional := e.Mul(s)

	if sign > 0 {
		liq := notional.Sub(m).Div(s.Mul(decimal.NewFromInt(1).Sub(mmr)))
		if liq.IsNegative() {
			return decimal.Zero
		}
		return liq
	}
	return m.Add(notional).Div(s.Mul(decimal.NewFromInt(1).Add(mmr)))
}

// UnrealizedPnl 未实现盈亏 (mark - entry) * size，size 有符号
func UnrealizedPnl(entry, size, mark *big.Int) decimal.Decimal {
	e := fixedpoint.ToDecimal(entry)
	return fixedpoint.ToDecimal(mark).Sub(e).Mul(fixedpoint.ToDecimal(size))
}

// MarginRatio (可用保证金 + 未实现盈亏) / (mark * |size|) * 100，仓位价值为 0 时返回 100
func MarginRatio(freeMargin *big.Int, upnl decimal.Decimal, mark, size *big.Int) decimal.Decimal {
	value := fixedpoint.ToDecimal(mark).Mul(fixedpoint.ToDecimal(size).Abs())
	if value.IsZero() {
		return hundred
	}
	return fixedpoint.ToDecimal(freeMargin).Add(upnl).Div(value).Mul(hundred)
}

// ROE 未实现盈亏 / 初始保证金 * 100，初始保证金 = entry * |size| * bps / 10000
func ROE(upnl decimal.Decimal, entry, size *big.Int, initialMarginBps uint16) decimal.Decimal {
	im := fixedpoint.ToDecimal(entry).
		Mul(fixedpoint.ToDecimal(size).Abs()).
		Mul(decimal.NewFromInt(int64(initialMarginBps))).
		Div(bpsDenom)
	if !im.IsPositive() {
		return decimal.Zero
	}
	return upnl.Div(im).Mul(hundred)
}

// Snapshot 仓位风险快照
type Snapshot struct {
	Trader           string          `json:"trader"`
	Side             string          `json:"side"`
	Size             decimal.Decimal `json:"size"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	MarkPrice        decimal.Decimal `json:"mark_price"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	UnrealizedPnl    decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnl      decimal.Decimal `json:"realized_pnl"`
	ROE              decimal.Decimal `json:"roe"`
	MarginRatio      decimal.Decimal `json:"margin_ratio"`
	FreeMargin       decimal.Decimal `json:"free_margin"`
	Health           Health          `json:"health"`
}

// Calculator 持有维持保证金率的风险计算器
type Calculator struct {
	mmr decimal.Decimal
}

// NewCalculator mmr 不在 (0,1) 内时使用 DefaultMMR
func NewCalculator(mmr decimal.Decimal) *Calculator {
	if !mmr.IsPositive() || mmr.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		mmr = DefaultMMR
	}
	return &Calculator{mmr: mmr}
}

func (c *Calculator) MMR() decimal.Decimal {
	return c.mmr
}

// ApplyFill 见包级 ApplyFill
func (c *Calculator) ApplyFill(prev Position, f Fill) (Position, FillKind) {
	return ApplyFill(prev, f)
}

// Snapshot 用可用保证金和标记价格计算仓位风险。标记价格缺失时按开仓价计算
func (c *Calculator) Snapshot(pos Position, freeMargin, mark *big.Int, initialMarginBps uint16) Snapshot {
	size := fixedpoint.OrZero(pos.Size)
	entry := fixedpoint.OrZero(pos.EntryPrice)
	if mark == nil || mark.Sign() == 0 {
		mark = entry
	}

	upnl := UnrealizedPnl(entry, size, mark)
	ratio := MarginRatio(freeMargin, upnl, mark, size)

	side := "flat"
	switch size.Sign() {
	case 1:
		side = "long"
	case -1:
		side = "short"
	}

	return Snapshot{
		Trader:           pos.Trader,
		Side:             side,
		Size:             fixedpoint.ToDecimal(size).Abs(),
		EntryPrice:       fixedpoint.ToDecimal(entry),
		MarkPrice:        fixedpoint.ToDecimal(mark),
		LiquidationPrice: LiquidationPrice(entry, size, freeMargin, c.mmr),
		UnrealizedPnl:    upnl,
		RealizedPnl:      fixedpoint.ToDecimal(pos.RealizedPnl),
		ROE:              ROE(upnl, entry, size, initialMarginBps),
		MarginRatio:      ratio,
		FreeMargin:       fixedpoint.ToDecimal(freeMargin),
		Health:           ClassifyHealth(ratio),
	}
}
