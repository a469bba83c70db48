package candle

import (
	"errors"
	"math/big"
	"sort"
	"sync"
)

var (
	// ErrDuplicateTrade 同一成交 id 已计入当前时间桶
	ErrDuplicateTrade = errors.New("trade already applied")
	// ErrLateTrade 成交时间早于当前时间桶，历史 K 线不再修改
	ErrLateTrade = errors.New("trade older than current bucket")
)

// Aggregator 事件溯源的 K 线聚合器。调用方需保证同一市场的成交按时间非递减顺序送入
type Aggregator struct {
	store      Store
	resolution string
	width      int64

	mu      sync.Mutex
	applied map[string]map[string]struct{} // market -> 当前时间桶已计入的成交 id
	bucket  map[string]int64               // market -> applied 对应的时间桶
}

func NewAggregator(store Store, resolution string) (*Aggregator, error) {
	width, err := ParseResolution(resolution)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		store:      store,
		resolution: resolution,
		width:      int64(width.Seconds()),
		applied:    make(map[string]map[string]struct{}),
		bucket:     make(map[string]int64),
	}, nil
}

func (a *Aggregator) Resolution() string {
	return a.resolution
}

// BucketStart floor(ts/width)*width
func (a *Aggregator) BucketStart(ts int64) int64 {
	return ts - ts%a.width
}

// Apply 把一笔成交计入对应时间桶并更新 LatestClose
func (a *Aggregator) Apply(t Trade) (Candle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.BucketStart(t.Timestamp)
	latest, hasLatest := a.store.LatestClose(t.MarketID)
	if hasLatest && start < a.BucketStart(latest.Timestamp) {
		return Candle{}, ErrLateTrade
	}

	if a.bucket[t.MarketID] != start || a.applied[t.MarketID] == nil {
		a.bucket[t.MarketID] = start
		a.applied[t.MarketID] = make(map[string]struct{})
	}
	if _, dup := a.applied[t.MarketID][t.ID]; dup {
		return Candle{}, ErrDuplicateTrade
	}

	id := CandleID(a.resolution, start)
	c, exists := a.store.Candle(t.MarketID, id)
	if !exists {
		open := t.Price
		if hasLatest && latest.Price != nil {
			open = latest.Price
		}
		c = Candle{
			MarketID:    t.MarketID,
			ID:          id,
			Resolution:  a.resolution,
			BucketStart: start,
			Open:        new(big.Int).Set(open),
			High:        maxInt(t.Price, open),
			Low:         minInt(t.Price, open),
			Close:       new(big.Int).Set(t.Price),
			Volume:      new(big.Int).Set(t.Amount),
			Trades:      1,
		}
	} else {
		c.High = maxInt(c.High, t.Price)
		c.Low = minInt(c.Low, t.Price)
		c.Close = new(big.Int).Set(t.Price)
		c.Volume = new(big.Int).Add(c.Volume, t.Amount)
		c.Trades++
	}

	a.store.PutCandle(c)
	a.store.PutLatestClose(LatestClose{MarketID: t.MarketID, Price: t.Price, Timestamp: t.Timestamp})
	a.applied[t.MarketID][t.ID] = struct{}{}

	return c, nil
}

func maxInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func sortByBucket(cs []Candle) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].BucketStart < cs[j].BucketStart })
}
