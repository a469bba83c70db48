// Package risk 维护单个交易者仓位的加权开仓价，并计算强平价、保证金率和收益率
package risk

import (
	"math/big"

	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
)

// Position 交易者仓位。Size 有符号（多头为正），EntryPrice 为 0 当且仅当 Size 为 0
type Position struct {
	Trader      string
	Size        *big.Int
	EntryPrice  *big.Int
	RealizedPnl *big.Int // 有符号，平仓部分的已实现盈亏累计
}

// Flat 空仓
func Flat(trader string) Position {
	return Position{Trader: trader, Size: new(big.Int), EntryPrice: new(big.Int), RealizedPnl: new(big.Int)}
}

func (p Position) IsFlat() bool {
	return p.Size == nil || p.Size.Sign() == 0
}

// Fill 一笔成交，从该交易者的视角看买或卖
type Fill struct {
	IsBuy  bool
	Amount *big.Int
	Price  *big.Int
}

// FillKind 成交对仓位的影响
type FillKind int

const (
	Increasing FillKind = iota // 开仓或同向加仓
	Reducing                   // 同向减仓，未平完
	Flattening                 // 恰好平仓
	Flipping                   // 穿过 0 反向开仓
	NoOp                       // 零数量成交，仓位不变
)

func (k FillKind) String() string {
	switch k {
	case Increasing:
		return "increasing"
	case Reducing:
		return "reducing"
	case Flattening:
		return "flattening"
	case Flipping:
		return "flipping"
	default:
		return "noop"
	}
}

// Classify 根据原仓位和带符号的成交量判断成交类型
func Classify(prevSize, delta *big.Int) FillKind {
	prev := prevSize.Sign()
	if prev == 0 || prev == delta.Sign() {
		return Increasing
	}

	next := new(big.Int).Add(prevSize, delta).Sign()
	switch {
	case next == 0:
		return Flattening
	case next != prev:
		return Flipping
	default:
		return Reducing
	}
}

// ApplyFill 计算成交后的新仓位。
// 加仓用成交量加权平均价，平仓开仓价归零，反手以成交价作为新开仓价，减仓开仓价不变。
// 被平掉那部分的已实现盈亏在同一次转换中计入 RealizedPnl
func ApplyFill(prev Position, f Fill) (Position, FillKind) {
	prevSize := fixedpoint.OrZero(prev.Size)
	prevEntry := fixedpoint.OrZero(prev.EntryPrice)

	// 零数量成交不改变仓位
	if f.Amount == nil || f.Amount.Sign() == 0 {
		return Position{
			Trader:      prev.Trader,
			Size:        new(big.Int).Set(prevSize),
			EntryPrice:  new(big.Int).Set(prevEntry),
			RealizedPnl: new(big.Int).Set(fixedpoint.OrZero(prev.RealizedPnl)),
		}, NoOp
	}

	delta := new(big.Int).Set(f.Amount)
	if !f.IsBuy {
		delta.Neg(delta)
	}
	newSize := new(big.Int).Add(prevSize, delta)
	kind := Classify(prevSize, delta)

	next := Position{
		Trader:      prev.Trader,
		Size:        newSize,
		RealizedPnl: new(big.Int).Set(fixedpoint.OrZero(prev.RealizedPnl)),
	}

	switch kind {
	case Increasing:
		absPrev := fixedpoint.Abs(prevSize)
		totalAbs := new(big.Int).Add(absPrev, f.Amount)
		if totalAbs.Sign() == 0 {
			next.EntryPrice = new(big.Int).Set(f.Price)
			break
		}
		cost := new(big.Int).Mul(absPrev, prevEntry)
		cost.Add(cost, new(big.Int).Mul(f.Amount, f.Price))
		next.EntryPrice = cost.Quo(cost, totalAbs)
	case Flattening:
		next.EntryPrice = new(big.Int)
	case Flipping:
		next.EntryPrice = new(big.Int).Set(f.Price)
	default:
		next.EntryPrice = new(big.Int).Set(prevEntry)
	}

	if kind != Increasing {
		closed := fixedpoint.Abs(prevSize)
		if f.Amount.Cmp(closed) < 0 {
			closed = new(big.Int).Set(f.Amount)
		}
		next.RealizedPnl.Add(next.RealizedPnl, realized(prevSize.Sign(), prevEntry, f.Price, closed))
	}

	return next, kind
}

// realized 平掉 closed 数量的已实现盈亏：多头 (price-entry)*closed，空头 (entry-price)*closed，再除以 1e18
func realized(sign int, entry, price, closed *big.Int) *big.Int {
	diff := new(big.Int).Sub(price, entry)
	if sign < 0 {
		diff.Neg(diff)
	}
	pnl := diff.Mul(diff, closed)
	return pnl.Quo(pnl, fixedpoint.One())
}
