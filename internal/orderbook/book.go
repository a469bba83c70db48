package orderbook

import (
	"math/big"
	"sort"

	"github.com/utrading/utrading-perp-core/internal/exchange"
)

// Level 聚合后的价格档位，不落库，每次刷新重新计算
type Level struct {
	Price *big.Int
	Size  *big.Int
	Total *big.Int // 从最优价累加到本档的数量
	Depth int      // Total 相对最深档位的百分比，0..100
	Count int      // 本档订单数
}

// Book 双边订单簿
type Book struct {
	Bids       []Level
	Asks       []Level
	BestBid    *big.Int
	BestAsk    *big.Int
	Spread     *big.Int
	Violations []error
	Err        error
}

func (b *Book) fillTop() {
	if len(b.Bids) > 0 {
		b.BestBid = b.Bids[0].Price
	}
	if len(b.Asks) > 0 {
		b.BestAsk = b.Asks[0].Price
	}
	if b.BestBid != nil && b.BestAsk != nil {
		b.Spread = new(big.Int).Sub(b.BestAsk, b.BestBid)
	}
}

// Aggregate 按价格精确分组求和，买盘降序、卖盘升序，再计算累计数量和深度百分比
func Aggregate(side Side, orders []exchange.Order) []Level {
	byPrice := make(map[string]*Level)
	for _, o := range orders {
		key := o.Price.String()
		lvl, ok := byPrice[key]
		if !ok {
			lvl = &Level{Price: new(big.Int).Set(o.Price), Size: new(big.Int)}
			byPrice[key] = lvl
		}
		lvl.Size.Add(lvl.Size, o.Amount)
		lvl.Count++
	}

	levels := make([]Level, 0, len(byPrice))
	for _, lvl := range byPrice {
		levels = append(levels, *lvl)
	}
	sort.Slice(levels, func(i, j int) bool {
		c := levels[i].Price.Cmp(levels[j].Price)
		if side == Bid {
			return c > 0
		}
		return c < 0
	})

	running := new(big.Int)
	for i := range levels {
		running.Add(running, levels[i].Size)
		levels[i].Total = new(big.Int).Set(running)
	}

	maxTotal := running
	for i := range levels {
		levels[i].Depth = depthPct(levels[i].Total, maxTotal)
	}
	return levels
}

var (
	hundred = big.NewInt(100)
	two     = big.NewInt(2)
)

// depthPct round(min(100, total/maxTotal*100))，maxTotal 为 0 时返回 0
func depthPct(total, maxTotal *big.Int) int {
	if maxTotal.Sign() <= 0 {
		return 0
	}
	// (2*total*100 + maxTotal) / (2*maxTotal) 即四舍五入
	num := new(big.Int).Mul(total, hundred)
	num.Mul(num, two).Add(num, maxTotal)
	den := new(big.Int).Mul(maxTotal, two)
	pct := new(big.Int).Quo(num, den)
	if pct.Cmp(hundred) > 0 {
		return 100
	}
	return int(pct.Int64())
}
