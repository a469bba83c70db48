package orderbook

import (
	"context"
	"errors"
	"fmt"

	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

const (
	// MaxHops 单侧链表遍历的最大跳数
	MaxHops = 128
	// DefaultScanLimit 对账扫描的默认 id 上限
	DefaultScanLimit = 20
)

var (
	// ErrChainCycle 链表中出现已访问过的 id
	ErrChainCycle = errors.New("order chain cycle")
	// ErrHopLimit 遍历达到 MaxHops 仍未结束
	ErrHopLimit = errors.New("order chain hop limit reached")
)

// OrderReader 按 id 随机读取订单，exchange.Client 和 Store 都实现了它
type OrderReader interface {
	Order(ctx context.Context, id uint64) (exchange.Order, error)
}

// Side 买卖方向
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

func (s Side) isBuy() bool { return s == Bid }

// Traversal 单侧链表遍历结果
type Traversal struct {
	Orders    []exchange.Order
	Hops      int
	Violation error // ErrChainCycle / ErrHopLimit，遍历正常结束时为 nil
	Err       error // 读取失败，Orders 为失败前已读到的部分
}

// Reconstructor 由链表遍历和对账扫描重建订单簿
type Reconstructor struct {
	reader    OrderReader
	scanLimit uint64
}

func NewReconstructor(reader OrderReader, scanLimit uint64) *Reconstructor {
	if scanLimit == 0 {
		scanLimit = DefaultScanLimit
	}
	return &Reconstructor{reader: reader, scanLimit: scanLimit}
}

// Traverse 从 head 沿 next 遍历。next 为 0、遇到 id 为 0 的订单、id 重复或达到跳数上限时停止
func (r *Reconstructor) Traverse(ctx context.Context, head uint64) Traversal {
	var t Traversal
	visited := make(map[uint64]struct{})

	for id := head; id != 0; {
		if _, seen := visited[id]; seen {
			t.Violation = fmt.Errorf("%w: order %d revisited", ErrChainCycle, id)
			break
		}
		if t.Hops >= MaxHops {
			t.Violation = fmt.Errorf("%w: stopped before order %d", ErrHopLimit, id)
			break
		}
		visited[id] = struct{}{}
		t.Hops++

		o, err := r.reader.Order(ctx, id)
		if err != nil {
			t.Err = fmt.Errorf("read order %d: %w", id, err)
			break
		}
		if o.ID == 0 {
			break
		}

		t.Orders = append(t.Orders, o)
		id = o.Next
	}

	return t
}

// Scan 直接读取 id 1..scanLimit，找回链表遍历漏掉的订单。
// 第一次读取失败即视为已到达已分配 id 的末尾
func (r *Reconstructor) Scan(ctx context.Context) []exchange.Order {
	var out []exchange.Order
	for id := uint64(1); id <= r.scanLimit; id++ {
		o, err := r.reader.Order(ctx, id)
		if err != nil {
			break
		}
		if o.ID != 0 {
			out = append(out, o)
		}
	}
	return out
}

// BuildSide 合并遍历结果和扫描结果，过滤并聚合出一侧的价格档位
func (r *Reconstructor) BuildSide(side Side, chain []exchange.Order, scanned []exchange.Order) []Level {
	merged := make(map[uint64]exchange.Order, len(chain)+len(scanned))
	for _, o := range chain {
		merged[o.ID] = o
	}
	for _, o := range scanned {
		merged[o.ID] = o
	}

	live := make([]exchange.Order, 0, len(merged))
	for _, o := range merged {
		if o.Live() && o.IsBuy == side.isBuy() {
			live = append(live, o)
		}
	}

	return Aggregate(side, live)
}

// Build 重建双边订单簿。一侧读取失败时保留该侧已读到的部分，错误记录在 Book.Err，另一侧不受影响
func (r *Reconstructor) Build(ctx context.Context, bestBuyID, bestSellID uint64) Book {
	bids := r.Traverse(ctx, bestBuyID)
	asks := r.Traverse(ctx, bestSellID)
	scanned := r.Scan(ctx)

	book := Book{
		Bids: r.BuildSide(Bid, bids.Orders, scanned),
		Asks: r.BuildSide(Ask, asks.Orders, scanned),
	}

	for _, t := range []struct {
		side Side
		tr   Traversal
	}{{Bid, bids}, {Ask, asks}} {
		if t.tr.Violation != nil {
			logger.Warn().Err(t.tr.Violation).
				Str("side", t.side.String()).
				Int("hops", t.tr.Hops).
				Msg("order chain traversal halted")
			book.Violations = append(book.Violations, t.tr.Violation)
		}
		if t.tr.Err != nil {
			book.Err = errors.Join(book.Err, fmt.Errorf("%s side: %w", t.side, t.tr.Err))
		}
	}

	book.fillTop()
	return book
}
