package candle

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(id string, price, amount, ts int64) Trade {
	return Trade{ID: id, MarketID: "ETH", Price: big.NewInt(price), Amount: big.NewInt(amount), Timestamp: ts}
}

func newAggregator(t *testing.T) (*Aggregator, *MemoryStore) {
	store := NewMemoryStore()
	agg, err := NewAggregator(store, "1m")
	require.NoError(t, err)
	return agg, store
}

func TestAggregatorExample(t *testing.T) {
	agg, store := newAggregator(t)

	c, err := agg.Apply(trade("a", 100, 1, 60))
	require.NoError(t, err)
	assert.Equal(t, "1m-60", c.ID)
	assert.Equal(t, "100", c.Open.String())

	c, err = agg.Apply(trade("b", 105, 2, 90))
	require.NoError(t, err)
	assert.Equal(t, "100", c.Open.String())
	assert.Equal(t, "105", c.High.String())
	assert.Equal(t, "100", c.Low.String())
	assert.Equal(t, "105", c.Close.String())
	assert.Equal(t, "3", c.Volume.String())

	// 新时间桶以上一根收盘价开盘
	c, err = agg.Apply(trade("c", 103, 1, 125))
	require.NoError(t, err)
	assert.Equal(t, "1m-120", c.ID)
	assert.Equal(t, "105", c.Open.String())
	assert.Equal(t, "105", c.High.String())
	assert.Equal(t, "103", c.Low.String())
	assert.Equal(t, "103", c.Close.String())
	assert.Equal(t, "1", c.Volume.String())

	lc, ok := store.LatestClose("ETH")
	require.True(t, ok)
	assert.Equal(t, "103", lc.Price.String())
	assert.Len(t, store.Candles("ETH"), 2)
}

func TestAggregatorReplayIsIdempotent(t *testing.T) {
	agg, store := newAggregator(t)

	_, err := agg.Apply(trade("a", 100, 1, 60))
	require.NoError(t, err)
	_, err = agg.Apply(trade("a", 100, 1, 60))
	assert.ErrorIs(t, err, ErrDuplicateTrade)

	c, ok := store.Candle("ETH", "1m-60")
	require.True(t, ok)
	assert.Equal(t, "1", c.Volume.String())
	assert.Equal(t, 1, c.Trades)
}

func TestAggregatorRejectsLateTrade(t *testing.T) {
	agg, store := newAggregator(t)

	_, err := agg.Apply(trade("a", 100, 1, 60))
	require.NoError(t, err)
	_, err = agg.Apply(trade("b", 110, 1, 130))
	require.NoError(t, err)

	_, err = agg.Apply(trade("c", 50, 1, 70))
	assert.ErrorIs(t, err, ErrLateTrade)

	c, _ := store.Candle("ETH", "1m-60")
	assert.Equal(t, "100", c.Low.String())
}

func TestAggregatorMarketsAreIndependent(t *testing.T) {
	agg, store := newAggregator(t)

	_, err := agg.Apply(trade("a", 100, 1, 60))
	require.NoError(t, err)

	sol := trade("a", 20, 3, 60)
	sol.MarketID = "SOL"
	c, err := agg.Apply(sol)
	require.NoError(t, err)
	assert.Equal(t, "20", c.Open.String())

	eth, _ := store.LatestClose("ETH")
	assert.Equal(t, "100", eth.Price.String())
}

func TestCandleBoundsProperty(t *testing.T) {
	agg, store := newAggregator(t)
	rng := rand.New(rand.NewSource(3))

	ts := int64(0)
	for i := 0; i < 500; i++ {
		ts += rng.Int63n(40)
		_, err := agg.Apply(trade(string(rune('a'+i%26))+big.NewInt(int64(i)).String(), rng.Int63n(1000)+1, rng.Int63n(10)+1, ts))
		require.NoError(t, err)
	}

	var prevClose *big.Int
	for _, c := range store.Candles("ETH") {
		assert.True(t, c.Low.Cmp(c.Open) <= 0 && c.Open.Cmp(c.High) <= 0)
		assert.True(t, c.Low.Cmp(c.Close) <= 0 && c.Close.Cmp(c.High) <= 0)
		assert.Equal(t, int64(0), c.BucketStart%60)
		if prevClose != nil {
			assert.Equal(t, prevClose.String(), c.Open.String())
		}
		prevClose = c.Close
	}
}

func TestParseResolution(t *testing.T) {
	d, err := ParseResolution("5m")
	require.NoError(t, err)
	assert.Equal(t, float64(300), d.Seconds())

	_, err = ParseResolution("1d")
	assert.Error(t, err)
	_, err = ParseResolution("500ms")
	assert.Error(t, err)
}
