package keeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
)

const feedBTC = "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"

func receipt() *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      common.HexToHash("0x01"),
		BlockNumber: big.NewInt(100),
	}
}

type fakeSettler struct {
	last     uint64
	interval uint64
	err      error
	settled  atomic.Int32
}

func (f *fakeSettler) LastFundingTime(context.Context) (uint64, error) { return f.last, nil }
func (f *fakeSettler) FundingInterval(context.Context) (uint64, error) { return f.interval, nil }
func (f *fakeSettler) SettleFunding(context.Context) (*types.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.settled.Add(1)
	return receipt(), nil
}

func TestFundingKeeper_NotDue(t *testing.T) {
	s := &fakeSettler{last: 1_000, interval: 3_600}
	k := NewFundingKeeper("BTC", s, time.Minute)
	k.now = func() time.Time { return time.Unix(1_000+3_599, 0) }

	settled, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, settled)
	assert.Zero(t, s.settled.Load())
}

func TestFundingKeeper_Due(t *testing.T) {
	s := &fakeSettler{last: 1_000, interval: 3_600}
	k := NewFundingKeeper("BTC", s, time.Minute)
	k.now = func() time.Time { return time.Unix(1_000+3_600, 0) }

	settled, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, settled)
	assert.EqualValues(t, 1, s.settled.Load())
}

func TestFundingKeeper_TxFailed(t *testing.T) {
	s := &fakeSettler{last: 0, interval: 60, err: fmt.Errorf("%w: reverted", exchange.ErrTransactionFailed)}
	k := NewFundingKeeper("BTC", s, time.Minute)

	settled, err := k.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, exchange.ErrTransactionFailed)
	assert.False(t, settled)
}

type staticOracle struct {
	price *big.Int
	err   error
}

func (o staticOracle) Price(context.Context, string) (*big.Int, error) { return o.price, o.err }

type fakeUpdater struct {
	mu     sync.Mutex
	pushed []*big.Int

	block   chan struct{}
	entered chan struct{}
}

func (f *fakeUpdater) UpdateIndexPrice(ctx context.Context, price *big.Int) (*types.Receipt, error) {
	if f.block != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.pushed = append(f.pushed, price)
	f.mu.Unlock()
	return receipt(), nil
}

func (f *fakeUpdater) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

func TestPriceKeeper_RunOnce(t *testing.T) {
	price := fixedpoint.MustParse("65000.5")
	u := &fakeUpdater{}
	k := NewPriceKeeper("BTC", feedBTC, staticOracle{price: price}, u, time.Second)

	got, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, price.String(), got.String())
	require.Equal(t, 1, u.count())
	assert.Equal(t, price.String(), u.pushed[0].String())
}

func TestPriceKeeper_OracleErrors(t *testing.T) {
	u := &fakeUpdater{}

	k := NewPriceKeeper("BTC", feedBTC, staticOracle{err: errors.New("hermes down")}, u, time.Second)
	_, err := k.RunOnce(context.Background())
	require.Error(t, err)

	k = NewPriceKeeper("BTC", feedBTC, staticOracle{price: big.NewInt(0)}, u, time.Second)
	_, err = k.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrBadOracleResponse)

	assert.Zero(t, u.count())
}

func TestRunner_SkipsWhileInFlight(t *testing.T) {
	u := &fakeUpdater{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	k := NewPriceKeeper("BTC", feedBTC, staticOracle{price: big.NewInt(1)}, u, 10*time.Millisecond)

	k.Start(context.Background())
	<-u.entered

	// 第一次调用卡住期间的触发全部被跳过
	require.Eventually(t, func() bool { return k.skipped.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, k.runs.Load())

	close(u.block)
	k.Stop()

	status := k.Status()
	assert.Equal(t, "price", status["keeper"])
	assert.Equal(t, false, status["running"])
	assert.GreaterOrEqual(t, u.count(), 1)
}

func hermes(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/updates/price/latest", r.URL.Path)
		assert.Equal(t, []string{feedBTC}, r.URL.Query()["ids[]"])
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPythOracle_Price(t *testing.T) {
	srv := hermes(t, `{
		"binary": {"encoding": "hex", "data": ["00"]},
		"parsed": [{
			"id": "`+feedBTC+`",
			"price": {"price": "6500050000000", "conf": "3200000", "expo": -8, "publish_time": 1717000000}
		}]
	}`, http.StatusOK)

	price, err := NewPythOracle(srv.URL+"/", time.Second).Price(context.Background(), feedBTC)
	require.NoError(t, err)
	assert.Equal(t, "65000.5", fixedpoint.ToDecimal(price).String())
}

func TestPythOracle_BadResponses(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"status", `{"error":"not found"}`, http.StatusNotFound},
		{"empty parsed", `{"parsed": []}`, http.StatusOK},
		{"not json", `<html>`, http.StatusOK},
		{"bad price", `{"parsed":[{"price":{"price":"abc","expo":-8}}]}`, http.StatusOK},
		{"bad expo", `{"parsed":[{"price":{"price":"1","expo":"x"}}]}`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := hermes(t, tc.body, tc.status)
			_, err := NewPythOracle(srv.URL, time.Second).Price(context.Background(), feedBTC)
			assert.ErrorIs(t, err, ErrBadOracleResponse)
		})
	}
}

type fakeContract struct {
	*fakeSettler
	*fakeUpdater
}

func TestNewSet_SelectsMarkets(t *testing.T) {
	markets := []config.Market{
		{ID: "ETH-USD", PythFeedID: "0xff"},
		{ID: "SOL-USD"},
		{ID: "BTC-USD", PythFeedID: "0xe6"},
	}
	contracts := map[string]Contract{
		"ETH-USD": fakeContract{&fakeSettler{interval: 60}, &fakeUpdater{}},
		"SOL-USD": fakeContract{&fakeSettler{interval: 60}, &fakeUpdater{}},
	}
	oracle := staticOracle{price: big.NewInt(1)}

	all := NewSet(config.Keeper{}, markets, contracts, oracle)
	// BTC 没有合约；SOL 没有 feed 只有资金费
	assert.Equal(t, 3, all.Len())

	some := NewSet(config.Keeper{Markets: []string{"eth-usd"}}, markets, contracts, oracle)
	assert.Equal(t, 2, some.Len())
	st := some.Status()
	assert.Contains(t, st, "funding:ETH-USD")
	assert.Contains(t, st, "price:ETH-USD")
}
