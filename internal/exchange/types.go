package exchange

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Order 合约 orders(id) 返回的订单快照
type Order struct {
	ID            uint64
	Trader        common.Address
	IsBuy         bool
	Price         *big.Int
	Amount        *big.Int
	InitialAmount *big.Int
	Timestamp     uint64
	Next          uint64
}

// Live 订单仍在簿上（amount > 0）
func (o Order) Live() bool {
	return o.ID != 0 && o.Amount != nil && o.Amount.Sign() > 0
}

// Filled 累计成交量 initialAmount - amount
func (o Order) Filled() *big.Int {
	if o.InitialAmount == nil || o.Amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Sub(o.InitialAmount, o.Amount)
}

// Reader 交易所合约只读接口
type Reader interface {
	Margin(ctx context.Context, trader common.Address) (*big.Int, error)
	MarkPrice(ctx context.Context) (*big.Int, error)
	IndexPrice(ctx context.Context) (*big.Int, error)
	BestBuyID(ctx context.Context) (uint64, error)
	BestSellID(ctx context.Context) (uint64, error)
	InitialMarginBps(ctx context.Context) (uint16, error)
	Order(ctx context.Context, id uint64) (Order, error)
	LastFundingTime(ctx context.Context) (uint64, error)
	FundingInterval(ctx context.Context) (uint64, error)
}

// Writer 交易所合约写接口，每个调用都会等待 receipt
type Writer interface {
	Deposit(ctx context.Context, value *big.Int) (*types.Receipt, error)
	Withdraw(ctx context.Context, amount *big.Int) (*types.Receipt, error)
	PlaceOrder(ctx context.Context, isBuy bool, price, amount *big.Int, hintID uint64) (*types.Receipt, error)
	CancelOrder(ctx context.Context, id uint64) (*types.Receipt, error)
	SettleFunding(ctx context.Context) (*types.Receipt, error)
	UpdateIndexPrice(ctx context.Context, priceWei *big.Int) (*types.Receipt, error)
}

// Event 一条已解码的合约日志
type Event struct {
	MarketID  string
	Block     uint64
	Index     uint
	TxHash    common.Hash
	Timestamp uint64
	Payload   Payload
}

// ID 事件唯一 id：txHash-logIndex
func (e Event) ID() string {
	return fmt.Sprintf("%s-%d", strings.ToLower(e.TxHash.Hex()), e.Index)
}

// Before 按 (block, logIndex) 排序
func (e Event) Before(o Event) bool {
	if e.Block != o.Block {
		return e.Block < o.Block
	}
	return e.Index < o.Index
}

// Payload 事件负载，只有本包内的事件类型实现
type Payload interface {
	EventName() string
}

type MarginDeposited struct {
	Trader common.Address
	Amount *big.Int
}

type MarginWithdrawn struct {
	Trader common.Address
	Amount *big.Int
}

type OrderPlaced struct {
	ID     uint64
	Trader common.Address
	IsBuy  bool
	Price  *big.Int
	Amount *big.Int
}

type OrderRemoved struct {
	ID uint64
}

type TradeExecuted struct {
	BuyOrderID  uint64
	SellOrderID uint64
	Price       *big.Int
	Amount      *big.Int
	Buyer       common.Address
	Seller      common.Address
}

type FundingSettled struct {
	Rate      *big.Int // 有符号，18 位精度
	Timestamp uint64
}

type Liquidated struct {
	Trader     common.Address
	Liquidator common.Address
	Amount     *big.Int
	Price      *big.Int
}

func (MarginDeposited) EventName() string { return "MarginDeposited" }
func (MarginWithdrawn) EventName() string { return "MarginWithdrawn" }
func (OrderPlaced) EventName() string     { return "OrderPlaced" }
func (OrderRemoved) EventName() string    { return "OrderRemoved" }
func (TradeExecuted) EventName() string   { return "TradeExecuted" }
func (FundingSettled) EventName() string  { return "FundingSettled" }
func (Liquidated) EventName() string      { return "Liquidated" }

// Hex 地址统一转为小写 hex，作为存储和查询的 key
func Hex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
