package manager

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/internal/cache"
	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/models"
	"github.com/utrading/utrading-perp-core/internal/nats"
	"github.com/utrading/utrading-perp-core/internal/orderbook"
	"github.com/utrading/utrading-perp-core/internal/risk"
	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
)

const trader = "0x00000000000000000000000000000000000000B1"

var errRPC = errors.New("rpc timeout")

// fakeReader 订单来自 orderbook.Store，其余读取可单独注入错误
type fakeReader struct {
	*orderbook.Store

	mu       sync.Mutex
	mark     *big.Int
	index    *big.Int
	markErr  error
	block    chan struct{} // 非空时 MarkPrice 阻塞直到关闭
	entered  chan struct{}
	margin   *big.Int
	bestBuy  uint64
	bestSell uint64
}

func (f *fakeReader) Margin(context.Context, common.Address) (*big.Int, error) { return f.margin, nil }

func (f *fakeReader) MarkPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	block, entered, v, err := f.block, f.entered, f.mark, f.markErr
	f.mu.Unlock()

	if block != nil {
		close(entered)
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return v, err
}

func (f *fakeReader) IndexPrice(context.Context) (*big.Int, error)     { return f.index, nil }
func (f *fakeReader) BestBuyID(context.Context) (uint64, error)        { return f.bestBuy, nil }
func (f *fakeReader) BestSellID(context.Context) (uint64, error)       { return f.bestSell, nil }
func (f *fakeReader) InitialMarginBps(context.Context) (uint16, error) { return 1000, nil }
func (f *fakeReader) LastFundingTime(context.Context) (uint64, error)  { return 0, nil }
func (f *fakeReader) FundingInterval(context.Context) (uint64, error)  { return 3600, nil }

func (f *fakeReader) setMark(v *big.Int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mark, f.markErr = v, err
}

type fakePositions map[string]*models.Position

func (f fakePositions) Get(marketID, trader string) (*models.Position, error) {
	return f[marketID+":"+trader], nil
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []nats.Kind
}

func (s *recordingSink) PublishUpdate(_ string, kind nats.Kind, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	return nil
}

func wei(s string) *big.Int {
	return fixedpoint.MustParse(s)
}

func order(id uint64, isBuy bool, price, amount string, next uint64) exchange.Order {
	return exchange.Order{
		ID: id, IsBuy: isBuy,
		Price: wei(price), Amount: wei(amount), InitialAmount: wei(amount),
		Next: next,
	}
}

func newFakeReader() *fakeReader {
	store := orderbook.NewStore()
	store.Put(order(1, true, "100", "1", 2))
	store.Put(order(2, true, "99.5", "2", 0))
	store.Put(order(3, false, "101", "1.5", 0))
	return &fakeReader{
		Store:    store,
		mark:     wei("101"),
		index:    wei("100"),
		margin:   wei("20"),
		bestBuy:  1,
		bestSell: 3,
	}
}

func newTestManager(t *testing.T, r *fakeReader, sink nats.Sink) *MarketManager {
	t.Helper()
	pool, err := ants.NewPool(8)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	positions := fakePositions{
		"ETH-USD:0x00000000000000000000000000000000000000b1": {
			MarketID:    "ETH-USD",
			Trader:      "0x00000000000000000000000000000000000000b1",
			Size:        models.NewBigInt(wei("2")),
			EntryPrice:  models.NewBigInt(wei("100")),
			RealizedPnl: models.NewBigInt(nil),
		},
	}
	market := config.Market{ID: "ETH-USD", Symbol: "ETH/USD", Decimals: 2}
	return NewMarketManager(market, r, pool, risk.NewCalculator(risk.DefaultMMR), cache.NewPriceCache(),
		positions, sink, Options{ReadTimeout: time.Second, ScanLimit: 10, Traders: []string{trader}})
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	sink := &recordingSink{}
	m := newTestManager(t, newFakeReader(), sink)

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, snap.CycleID)
	assert.Empty(t, snap.Errors)

	require.Len(t, snap.Bids, 2)
	assert.Equal(t, "100", snap.Bids[0].Price.String())
	assert.Equal(t, "3", snap.Bids[1].Total.String())
	require.Len(t, snap.Asks, 1)
	require.NotNil(t, snap.Spread)
	assert.Equal(t, "1", snap.Spread.String())

	require.NotNil(t, snap.Funding)
	assert.Equal(t, "0.0095", snap.Funding.Rate.String())

	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "long", snap.Positions[0].Side)
	assert.Equal(t, "2", snap.Positions[0].UnrealizedPnl.String())

	assert.Equal(t, []nats.Kind{nats.KindBook}, sink.kinds)
	status := m.Status()
	assert.Equal(t, 3, status["orders_seen"])
	assert.Equal(t, uint64(1), status["best_buy_id"])
	assert.Equal(t, uint64(3), status["best_sell_id"])

	latest, ok := m.Snapshot()
	require.True(t, ok)
	assert.Equal(t, snap.CycleID, latest.CycleID)
}

func TestWatchedTraders(t *testing.T) {
	m := newTestManager(t, newFakeReader(), nil)
	const other = "0x00000000000000000000000000000000000000C2"

	m.WatchTrader(other)
	assert.Equal(t, []string{"0x00000000000000000000000000000000000000b1", "0x00000000000000000000000000000000000000c2"}, m.Traders())

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "flat", snap.Positions[1].Side)

	// 配置中固定的交易者不会被移除
	m.UnwatchTrader(trader)
	m.UnwatchTrader(other)
	assert.Equal(t, []string{"0x00000000000000000000000000000000000000b1"}, m.Traders())
}

func TestRefreshKeepsLastGoodValue(t *testing.T) {
	r := newFakeReader()
	m := newTestManager(t, r, nil)

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	r.setMark(nil, errRPC)
	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "101", snap.MarkPrice.String())
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0], "mark")
	assert.Len(t, snap.Bids, 2, "book still rebuilt")
}

func TestRefreshIsSingleFlight(t *testing.T) {
	r := newFakeReader()
	r.block = make(chan struct{})
	r.entered = make(chan struct{})
	m := newTestManager(t, r, nil)

	done := make(chan error, 1)
	go func() {
		_, err := m.Refresh(context.Background())
		done <- err
	}()
	<-r.entered

	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrCycleInFlight)
	assert.Equal(t, int64(1), m.Skipped())

	close(r.block)
	require.NoError(t, <-done)

	// 上一轮结束后可以再次刷新
	r.mu.Lock()
	r.block = nil
	r.mu.Unlock()
	_, err = m.Refresh(context.Background())
	assert.NoError(t, err)
}

func TestManagerRunsAndServesSnapshots(t *testing.T) {
	mgr := New(20 * time.Millisecond)
	mgr.Add(newTestManager(t, newFakeReader(), nil))

	mgr.Start(context.Background())
	defer mgr.Stop()

	require.Eventually(t, func() bool {
		_, ok := mgr.Snapshot("eth-usd")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := mgr.Snapshot("BTC-USD")
	assert.False(t, ok)
	assert.Contains(t, mgr.Status(), "ETH-USD")
}
