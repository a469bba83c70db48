// Package manager 定时刷新每个市场的派生状态：订单簿、资金费率估算和关注交易者的风险快照
package manager

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/internal/cache"
	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/funding"
	"github.com/utrading/utrading-perp-core/internal/models"
	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/internal/nats"
	"github.com/utrading/utrading-perp-core/internal/orderbook"
	"github.com/utrading/utrading-perp-core/internal/risk"
	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// ErrCycleInFlight 上一轮刷新尚未结束，本轮跳过
var ErrCycleInFlight = errors.New("refresh cycle already in flight")

// PriceCache 中的字段名
const (
	fieldMark       = "mark"
	fieldIndex      = "index"
	fieldBestBuy    = "best_buy"
	fieldBestSell   = "best_sell"
	fieldMarginBps  = "initial_margin_bps"
	fieldMarginPref = "margin:"
)

// PositionSource 索引器落库的仓位，不存在时返回 nil, nil
type PositionSource interface {
	Get(marketID, trader string) (*models.Position, error)
}

// Options 单个市场的刷新参数
type Options struct {
	ReadTimeout time.Duration
	ScanLimit   uint64
	Traders     []string // 固定关注的交易者，不会被 UnwatchTrader 移除
}

// MarketManager 持有一个市场的派生状态。Refresh 同一时刻只允许一轮在执行
type MarketManager struct {
	market    config.Market
	reader    exchange.Reader
	store     *orderbook.Store
	recon     *orderbook.Reconstructor
	calc      *risk.Calculator
	estimator funding.Estimator
	prices    *cache.PriceCache
	positions PositionSource
	sink      nats.Sink
	pool      *ants.Pool
	opts      Options

	tradersMu sync.RWMutex
	pinned    map[string]bool
	watched   map[string]bool

	running atomic.Bool
	skipped atomic.Int64
	cycles  atomic.Int64
	latest  atomic.Pointer[Snapshot]
}

func NewMarketManager(market config.Market, reader exchange.Reader, pool *ants.Pool, calc *risk.Calculator,
	prices *cache.PriceCache, positions PositionSource, sink nats.Sink, opts Options) *MarketManager {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if sink == nil {
		sink = nats.Noop{}
	}
	pinned := make(map[string]bool, len(opts.Traders))
	watched := make(map[string]bool, len(opts.Traders))
	for _, t := range opts.Traders {
		pinned[strings.ToLower(t)] = true
		watched[strings.ToLower(t)] = true
	}

	store := orderbook.NewStore()
	m := &MarketManager{
		market:    market,
		reader:    reader,
		store:     store,
		calc:      calc,
		estimator: funding.Default(),
		prices:    prices,
		positions: positions,
		sink:      sink,
		pool:      pool,
		opts:      opts,
		pinned:    pinned,
		watched:   watched,
	}
	m.recon = orderbook.NewReconstructor(&recordingReader{reader: reader, store: store, timeout: opts.ReadTimeout}, opts.ScanLimit)
	return m
}

func (m *MarketManager) MarketID() string {
	return m.market.ID
}

// WatchTrader 从下一轮刷新开始输出该交易者的风险快照
func (m *MarketManager) WatchTrader(addr string) {
	m.tradersMu.Lock()
	m.watched[strings.ToLower(addr)] = true
	m.tradersMu.Unlock()
}

func (m *MarketManager) UnwatchTrader(addr string) {
	addr = strings.ToLower(addr)
	m.tradersMu.Lock()
	if !m.pinned[addr] {
		delete(m.watched, addr)
	}
	m.tradersMu.Unlock()
}

// Traders 当前关注的交易者，按地址排序
func (m *MarketManager) Traders() []string {
	m.tradersMu.RLock()
	out := make([]string, 0, len(m.watched))
	for t := range m.watched {
		out = append(out, t)
	}
	m.tradersMu.RUnlock()
	sort.Strings(out)
	return out
}

// Snapshot 最近一次成功完成的刷新结果
func (m *MarketManager) Snapshot() (*Snapshot, bool) {
	s := m.latest.Load()
	return s, s != nil
}

// Skipped 因上一轮未结束而跳过的次数
func (m *MarketManager) Skipped() int64 {
	return m.skipped.Load()
}

// Refresh 执行一轮刷新。已有一轮在执行时直接返回 ErrCycleInFlight
func (m *MarketManager) Refresh(ctx context.Context) (*Snapshot, error) {
	if !m.running.CompareAndSwap(false, true) {
		m.skipped.Add(1)
		monitor.IncRefreshCycle(m.market.ID, "skipped")
		return nil, ErrCycleInFlight
	}
	defer m.running.Store(false)

	start := time.Now()
	cycleID := uuid.NewString()
	log := logger.With("manager").With().Str("market", m.market.ID).Str("cycle", cycleID).Logger()

	traders := m.Traders()
	r := m.readAll(ctx, traders)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Market:    m.market.ID,
		Symbol:    m.market.Symbol,
		CycleID:   cycleID,
		UpdatedAt: start,
		decimals:  m.market.Decimals,
	}

	mark := m.prices.Resolve(m.market.ID, fieldMark, r.mark.v, r.mark.err)
	index := m.prices.Resolve(m.market.ID, fieldIndex, r.index.v, r.index.err)
	bestBuy := m.prices.Resolve(m.market.ID, fieldBestBuy, r.bestBuy.v, r.bestBuy.err)
	bestSell := m.prices.Resolve(m.market.ID, fieldBestSell, r.bestSell.v, r.bestSell.err)
	bps := m.prices.Resolve(m.market.ID, fieldMarginBps, r.marginBps.v, r.marginBps.err)

	for _, f := range []struct {
		name string
		res  readResult
	}{
		{fieldMark, r.mark}, {fieldIndex, r.index}, {fieldBestBuy, r.bestBuy},
		{fieldBestSell, r.bestSell}, {fieldMarginBps, r.marginBps},
	} {
		if f.res.err != nil {
			snap.Errors = append(snap.Errors, fmt.Sprintf("%s: %v", f.name, f.res.err))
		}
	}

	snap.MarkPrice = fixedpoint.ToDecimal(mark)
	snap.IndexPrice = fixedpoint.ToDecimal(index)
	snap.BestBuyID = uint64OrZero(bestBuy)
	snap.BestSellID = uint64OrZero(bestSell)
	snap.InitialMarginBps = uint16(uint64OrZero(bps))

	m.store.SetHeads(snap.BestBuyID, snap.BestSellID)
	book := m.recon.Build(ctx, snap.BestBuyID, snap.BestSellID)
	snap.setBook(book)
	for _, v := range book.Violations {
		monitor.IncChainViolation(m.market.ID)
		snap.Violations = append(snap.Violations, v.Error())
	}
	if book.Err != nil {
		monitor.IncReadFailure(m.market.ID, "order")
		snap.Errors = append(snap.Errors, book.Err.Error())
	}

	if mark != nil && index != nil {
		est := m.estimator.EstimateWei(mark, index)
		snap.Funding = &est
	}

	for _, trader := range traders {
		res := r.margins[trader]
		margin := m.prices.Resolve(m.market.ID, fieldMarginPref+trader, res.v, res.err)
		if res.err != nil {
			snap.Errors = append(snap.Errors, fmt.Sprintf("margin %s: %v", trader, res.err))
		}
		snap.Positions = append(snap.Positions, m.traderSnapshot(trader, margin, mark, snap.InitialMarginBps))
	}

	m.latest.Store(snap)
	m.cycles.Add(1)
	m.report(snap)

	result := "ok"
	if len(snap.Errors) > 0 {
		result = "partial"
	}
	monitor.IncRefreshCycle(m.market.ID, result)
	monitor.ObserveRefreshDuration(m.market.ID, time.Since(start).Seconds())

	log.Debug().
		Int("bids", len(snap.Bids)).
		Int("asks", len(snap.Asks)).
		Int("errors", len(snap.Errors)).
		Dur("took", time.Since(start)).
		Msg("market refreshed")

	return snap, nil
}

func (m *MarketManager) traderSnapshot(trader string, margin, mark *big.Int, bps uint16) risk.Snapshot {
	pos := risk.Flat(trader)
	if m.positions != nil {
		p, err := m.positions.Get(m.market.ID, trader)
		if err != nil {
			logger.Warn().Err(err).Str("market", m.market.ID).Str("trader", trader).Msg("load position failed")
		} else if p != nil {
			pos = risk.Position{
				Trader:      trader,
				Size:        p.Size.Big(),
				EntryPrice:  p.EntryPrice.Big(),
				RealizedPnl: p.RealizedPnl.Big(),
			}
		}
	}
	return m.calc.Snapshot(pos, fixedpoint.OrZero(margin), mark, bps)
}

func (m *MarketManager) report(s *Snapshot) {
	var rate float64
	if s.Funding != nil {
		rate = s.Funding.Rate.InexactFloat64()
	}
	var spread float64
	if s.Spread != nil {
		spread = s.Spread.InexactFloat64()
	}
	monitor.SetMarketGauges(m.market.ID, s.MarkPrice.InexactFloat64(), s.IndexPrice.InexactFloat64(),
		rate, spread, len(s.Bids), len(s.Asks))

	if err := m.sink.PublishUpdate(m.market.ID, nats.KindBook, s); err != nil {
		logger.Warn().Err(err).Str("market", m.market.ID).Msg("publish book failed")
	}
}

type readResult struct {
	v   *big.Int
	err error
}

type reads struct {
	mark, index, bestBuy, bestSell, marginBps readResult
	margins                                   map[string]readResult
}

// readAll 并发发起本轮所有互不依赖的读取，每个读取有独立超时
func (m *MarketManager) readAll(ctx context.Context, traders []string) reads {
	r := reads{margins: make(map[string]readResult, len(traders))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	submit := func(name string, fn func(ctx context.Context) (*big.Int, error), set func(readResult)) {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, m.opts.ReadTimeout)
			defer cancel()

			v, err := fn(rctx)
			if err != nil {
				monitor.IncReadFailure(m.market.ID, name)
				logger.Warn().Err(err).Str("market", m.market.ID).Str("read", name).Msg("contract read failed, keeping last value")
			}
			mu.Lock()
			set(readResult{v: v, err: err})
			mu.Unlock()
		}
		if m.pool == nil {
			go task()
			return
		}
		if err := m.pool.Submit(task); err != nil {
			// 协程池已关闭或过载
			wg.Done()
			mu.Lock()
			set(readResult{err: err})
			mu.Unlock()
		}
	}

	submit(fieldMark, m.reader.MarkPrice, func(res readResult) { r.mark = res })
	submit(fieldIndex, m.reader.IndexPrice, func(res readResult) { r.index = res })
	submit(fieldBestBuy, bigU64(m.reader.BestBuyID), func(res readResult) { r.bestBuy = res })
	submit(fieldBestSell, bigU64(m.reader.BestSellID), func(res readResult) { r.bestSell = res })
	submit(fieldMarginBps, func(ctx context.Context) (*big.Int, error) {
		v, err := m.reader.InitialMarginBps(ctx)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetUint64(uint64(v)), nil
	}, func(res readResult) { r.marginBps = res })

	for _, trader := range traders {
		addr := common.HexToAddress(trader)
		submit("margin", func(ctx context.Context) (*big.Int, error) {
			return m.reader.Margin(ctx, addr)
		}, func(res readResult) { r.margins[trader] = res })
	}

	wg.Wait()
	return r
}

func bigU64(fn func(ctx context.Context) (uint64, error)) func(ctx context.Context) (*big.Int, error) {
	return func(ctx context.Context) (*big.Int, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetUint64(v), nil
	}
}

func uint64OrZero(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

// recordingReader 带超时读取链上订单，并把读到的快照记入 orderbook.Store
type recordingReader struct {
	reader  exchange.Reader
	store   *orderbook.Store
	timeout time.Duration
}

func (r *recordingReader) Order(ctx context.Context, id uint64) (exchange.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	o, err := r.reader.Order(ctx, id)
	if err != nil {
		return o, err
	}
	if o.ID != 0 {
		r.store.Put(o)
	}
	return o, nil
}

func (m *MarketManager) Status() map[string]any {
	s, ok := m.Snapshot()
	bestBuy, bestSell := m.store.Heads()
	status := map[string]any{
		"best_buy_id":   bestBuy,
		"best_sell_id":  bestSell,
		"cycles":        m.cycles.Load(),
		"skipped":       m.skipped.Load(),
		"orders_seen":   m.store.Len(),
		"traders":       len(m.Traders()),
		"refresh_error": nil,
	}
	if ok {
		status["updated_at"] = s.UpdatedAt
		status["mark_price"] = s.MarkPrice.StringFixed(m.market.Decimals)
		if len(s.Errors) > 0 {
			status["refresh_error"] = s.Errors
		}
	}
	return status
}
