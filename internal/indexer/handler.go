package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/utrading/utrading-perp-core/internal/cache"
	"github.com/utrading/utrading-perp-core/internal/candle"
	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/models"
	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/internal/nats"
	"github.com/utrading/utrading-perp-core/internal/processor"
	"github.com/utrading/utrading-perp-core/internal/risk"
	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// RowWriter 接收同一事件产生的一组行，组内的行在同一次刷新中提交
type RowWriter interface {
	Add(ctx context.Context, items ...processor.BatchItem) error
}

// TradeLookup 去重缓存未命中时回查数据库
type TradeLookup interface {
	Exists(marketID, eventID string) (bool, error)
}

// Handler 顺序处理单个消息队列中的事件，是索引器状态的唯一写者
type Handler struct {
	state  *State
	agg    *candle.Aggregator
	calc   *risk.Calculator
	dedup  *cache.DedupCache
	writer RowWriter
	sink   nats.Sink
	trades TradeLookup
}

func NewHandler(state *State, agg *candle.Aggregator, calc *risk.Calculator, dedup *cache.DedupCache,
	writer RowWriter, sink nats.Sink, trades TradeLookup) *Handler {
	if sink == nil {
		sink = nats.Noop{}
	}
	return &Handler{
		state:  state,
		agg:    agg,
		calc:   calc,
		dedup:  dedup,
		writer: writer,
		sink:   sink,
		trades: trades,
	}
}

// HandleMessage 实现 processor.MessageHandler
func (h *Handler) HandleMessage(msg processor.Message) error {
	switch m := msg.(type) {
	case processor.EventMessage:
		return h.HandleEvent(m.Event)
	case processor.CursorMessage:
		return h.handleCursor(m)
	default:
		return fmt.Errorf("unexpected message type %s", msg.Type())
	}
}

func (h *Handler) handleCursor(m processor.CursorMessage) error {
	err := h.writer.Add(context.Background(), processor.CursorRow(&models.IndexerCursor{
		MarketID:  m.MarketID,
		Block:     m.Block,
		BlockDone: true,
	}))
	if err != nil {
		return fmt.Errorf("persist cursor %s@%d: %w", m.MarketID, m.Block, err)
	}
	monitor.SetIndexerBlock(m.MarketID, m.Block, m.Head)
	return nil
}

// update 处理结果里待推送的增量
type update struct {
	kind    nats.Kind
	payload any
}

// HandleEvent 处理一条事件。重复投递的事件不产生任何写入
func (h *Handler) HandleEvent(ev exchange.Event) error {
	id := ev.ID()
	name := ev.Payload.EventName()

	if h.seen(ev, id) {
		monitor.IncEventDeduped(ev.MarketID)
		return nil
	}

	var (
		rows    []processor.BatchItem
		updates []update
		err     error
	)
	switch p := ev.Payload.(type) {
	case exchange.MarginDeposited:
		rows = h.onMargin(ev, id, exchange.Hex(p.Trader), p.Amount, models.MarginDeposit)
	case exchange.MarginWithdrawn:
		rows = h.onMargin(ev, id, exchange.Hex(p.Trader), p.Amount, models.MarginWithdraw)
	case exchange.OrderPlaced:
		rows = h.onOrderPlaced(ev, p)
	case exchange.OrderRemoved:
		rows = h.onOrderRemoved(ev, p)
	case exchange.TradeExecuted:
		rows, updates, err = h.onTrade(ev, id, p)
	case exchange.FundingSettled:
		rows, updates = h.onFunding(ev, id, p)
	case exchange.Liquidated:
		rows = h.onLiquidated(ev, id, p)
	default:
		err = fmt.Errorf("%w: %s", exchange.ErrUnknownEvent, name)
	}
	if err != nil {
		monitor.IncHandlerError(name)
		return fmt.Errorf("handle %s %s: %w", name, id, err)
	}

	rows = append(rows, processor.CursorRow(&models.IndexerCursor{
		MarketID: ev.MarketID,
		Block:    ev.Block,
		LogIndex: ev.Index,
	}))
	if err = h.writer.Add(context.Background(), rows...); err != nil {
		monitor.IncHandlerError(name)
		return fmt.Errorf("persist %s %s: %w", name, id, err)
	}

	h.dedup.Mark(ev.MarketID, id)
	monitor.IncEventProcessed(ev.MarketID, name)

	for _, u := range updates {
		if err := h.sink.PublishUpdate(ev.MarketID, u.kind, u.payload); err != nil {
			logger.Warn().Err(err).
				Str("market", ev.MarketID).
				Str("kind", string(u.kind)).
				Msg("publish update failed")
		}
	}
	return nil
}

// seen 只有成交需要回查数据库，其它事件的写入都是幂等覆盖
func (h *Handler) seen(ev exchange.Event, id string) bool {
	if h.dedup.IsSeen(ev.MarketID, id) {
		return true
	}
	if _, ok := ev.Payload.(exchange.TradeExecuted); !ok || h.trades == nil {
		return false
	}
	exists, err := h.trades.Exists(ev.MarketID, id)
	if err != nil {
		logger.Warn().Err(err).Str("market", ev.MarketID).Str("id", id).Msg("trade lookup failed")
		return false
	}
	if exists {
		h.dedup.Mark(ev.MarketID, id)
	}
	return exists
}

func (h *Handler) onMargin(ev exchange.Event, id, trader string, amount *big.Int, kind string) []processor.BatchItem {
	return []processor.BatchItem{processor.MarginEventRow(&models.MarginEvent{
		MarketID:  ev.MarketID,
		EventID:   id,
		Trader:    trader,
		Amount:    models.NewBigInt(amount),
		EventType: kind,
		Timestamp: int64(ev.Timestamp),
		TxHash:    txHash(ev),
	})}
}

func (h *Handler) onOrderPlaced(ev exchange.Event, p exchange.OrderPlaced) []processor.BatchItem {
	o := models.Order{
		MarketID:      ev.MarketID,
		OrderID:       p.ID,
		Trader:        exchange.Hex(p.Trader),
		IsBuy:         p.IsBuy,
		Price:         models.NewBigInt(p.Price),
		Amount:        models.NewBigInt(p.Amount),
		InitialAmount: models.NewBigInt(p.Amount),
		Status:        models.OrderOpen,
		Timestamp:     int64(ev.Timestamp),
		TxHash:        txHash(ev),
	}
	h.state.PutOrder(o)
	return []processor.BatchItem{processor.OrderRow(&o)}
}

// onOrderRemoved 剩余为 0 记为 FILLED，否则 CANCELLED。内存中没有的订单已关闭，忽略
func (h *Handler) onOrderRemoved(ev exchange.Event, p exchange.OrderRemoved) []processor.BatchItem {
	o, ok := h.state.Order(ev.MarketID, p.ID)
	if !ok {
		logger.Debug().Str("market", ev.MarketID).Uint64("order", p.ID).Msg("removed order not tracked")
		return nil
	}

	if o.Amount.Big().Sign() == 0 {
		o.Status = models.OrderFilled
	} else {
		o.Status = models.OrderCancelled
	}
	o.Amount = models.NewBigInt(new(big.Int))
	o.Timestamp = int64(ev.Timestamp)

	h.state.DeleteOrder(ev.MarketID, p.ID)
	return []processor.BatchItem{processor.OrderRow(&o)}
}

func (h *Handler) onTrade(ev exchange.Event, id string, p exchange.TradeExecuted) ([]processor.BatchItem, []update, error) {
	buyer, seller := exchange.Hex(p.Buyer), exchange.Hex(p.Seller)
	ts := int64(ev.Timestamp)

	trade := &models.Trade{
		MarketID:    ev.MarketID,
		EventID:     id,
		BuyOrderID:  p.BuyOrderID,
		SellOrderID: p.SellOrderID,
		Buyer:       buyer,
		Seller:      seller,
		Price:       models.NewBigInt(p.Price),
		Amount:      models.NewBigInt(p.Amount),
		Timestamp:   ts,
		BlockNumber: ev.Block,
		LogIndex:    ev.Index,
		TxHash:      txHash(ev),
	}
	rows := []processor.BatchItem{processor.TradeRow(trade)}
	updates := []update{{kind: nats.KindTrade, payload: trade}}

	for _, orderID := range []uint64{p.BuyOrderID, p.SellOrderID} {
		if row := h.fillOrder(ev.MarketID, orderID, p.Amount, ts); row != nil {
			rows = append(rows, row)
		}
	}

	c, err := h.agg.Apply(candle.Trade{
		ID:        id,
		MarketID:  ev.MarketID,
		Price:     p.Price,
		Amount:    p.Amount,
		Timestamp: ts,
	})
	switch {
	case err == nil:
		rows = append(rows,
			processor.CandleRow(candleModel(c)),
			processor.LatestCandleRow(&models.LatestCandle{
				MarketID:  ev.MarketID,
				Price:     models.NewBigInt(p.Price),
				Timestamp: ts,
			}),
		)
		updates = append(updates, update{kind: nats.KindCandle, payload: candleModel(c)})
	case errors.Is(err, candle.ErrLateTrade), errors.Is(err, candle.ErrDuplicateTrade):
		// 成交本身仍然入库，只是不再改动已定型的 K 线
		logger.Warn().Err(err).Str("market", ev.MarketID).Str("id", id).Msg("trade skipped by candle aggregator")
	default:
		return nil, nil, err
	}

	for _, side := range []struct {
		trader string
		isBuy  bool
	}{{buyer, true}, {seller, false}} {
		prev := h.state.Position(ev.MarketID, side.trader)
		next, _ := h.calc.ApplyFill(prev, risk.Fill{IsBuy: side.isBuy, Amount: p.Amount, Price: p.Price})
		h.state.PutPosition(ev.MarketID, next)

		pm := positionModel(ev.MarketID, next, ts)
		rows = append(rows, processor.PositionRow(pm))
		updates = append(updates, update{kind: nats.KindPosition, payload: pm})
	}
	monitor.SetOpenInterest(ev.MarketID, fixedpoint.ToDecimal(h.state.OpenInterest(ev.MarketID)).InexactFloat64())

	return rows, updates, nil
}

// fillOrder 扣减订单剩余数量（不低于 0）。完全成交的订单移出内存
func (h *Handler) fillOrder(marketID string, orderID uint64, amount *big.Int, ts int64) processor.BatchItem {
	o, ok := h.state.Order(marketID, orderID)
	if !ok {
		return nil
	}

	remaining := new(big.Int).Sub(o.Amount.Big(), amount)
	if remaining.Sign() <= 0 {
		remaining.SetInt64(0)
		o.Status = models.OrderFilled
	} else {
		o.Status = models.OrderPartial
	}
	o.Amount = models.NewBigInt(remaining)
	o.Timestamp = ts

	if o.Closed() {
		h.state.DeleteOrder(marketID, orderID)
	} else {
		h.state.PutOrder(o)
	}
	return processor.OrderRow(&o)
}

func (h *Handler) onFunding(ev exchange.Event, id string, p exchange.FundingSettled) ([]processor.BatchItem, []update) {
	ts := int64(p.Timestamp)
	if ts == 0 {
		ts = int64(ev.Timestamp)
	}
	fe := &models.FundingEvent{
		MarketID:  ev.MarketID,
		EventID:   id,
		Rate:      models.NewBigInt(p.Rate),
		Timestamp: ts,
		TxHash:    txHash(ev),
	}
	return []processor.BatchItem{processor.FundingEventRow(fe)}, []update{{kind: nats.KindFunding, payload: fe}}
}

func (h *Handler) onLiquidated(ev exchange.Event, id string, p exchange.Liquidated) []processor.BatchItem {
	return []processor.BatchItem{processor.LiquidationRow(&models.Liquidation{
		MarketID:   ev.MarketID,
		EventID:    id,
		Trader:     exchange.Hex(p.Trader),
		Liquidator: exchange.Hex(p.Liquidator),
		Amount:     models.NewBigInt(p.Amount),
		Price:      models.NewBigInt(p.Price),
		Timestamp:  int64(ev.Timestamp),
		TxHash:     txHash(ev),
	})}
}
