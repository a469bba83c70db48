package manager

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utrading/utrading-perp-core/internal/funding"
	"github.com/utrading/utrading-perp-core/internal/orderbook"
	"github.com/utrading/utrading-perp-core/internal/risk"
	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
)

// Level 订单簿档位的展示形式（人类单位）
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Total decimal.Decimal `json:"total"`
	Depth int             `json:"depth"`
	Count int             `json:"count"`
}

// Snapshot 一轮刷新的结果，只在内存中保留最新一份
type Snapshot struct {
	Market           string            `json:"market"`
	Symbol           string            `json:"symbol"`
	CycleID          string            `json:"cycle_id"`
	UpdatedAt        time.Time         `json:"updated_at"`
	MarkPrice        decimal.Decimal   `json:"mark_price"`
	IndexPrice       decimal.Decimal   `json:"index_price"`
	BestBuyID        uint64            `json:"best_buy_id"`
	BestSellID       uint64            `json:"best_sell_id"`
	InitialMarginBps uint16            `json:"initial_margin_bps"`
	Bids             []Level           `json:"bids"`
	Asks             []Level           `json:"asks"`
	BestBid          *decimal.Decimal  `json:"best_bid,omitempty"`
	BestAsk          *decimal.Decimal  `json:"best_ask,omitempty"`
	Spread           *decimal.Decimal  `json:"spread,omitempty"`
	Funding          *funding.Estimate `json:"funding,omitempty"`
	Positions        []risk.Snapshot   `json:"positions,omitempty"`
	Violations       []string          `json:"violations,omitempty"`
	Errors           []string          `json:"errors,omitempty"`

	decimals int32
}

func (s *Snapshot) setBook(b orderbook.Book) {
	s.Bids = s.levels(b.Bids)
	s.Asks = s.levels(b.Asks)
	s.BestBid = s.price(b.BestBid)
	s.BestAsk = s.price(b.BestAsk)
	s.Spread = s.price(b.Spread)
}

func (s *Snapshot) levels(in []orderbook.Level) []Level {
	out := make([]Level, 0, len(in))
	for _, l := range in {
		out = append(out, Level{
			Price: fixedpoint.ToDecimal(l.Price).Round(s.decimals),
			Size:  fixedpoint.ToDecimal(l.Size),
			Total: fixedpoint.ToDecimal(l.Total),
			Depth: l.Depth,
			Count: l.Count,
		})
	}
	return out
}

// price 缺失的一侧为 nil
func (s *Snapshot) price(v *big.Int) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := fixedpoint.ToDecimal(v).Round(s.decimals)
	return &d
}
