// Package candle 由顺序成交流聚合 OHLCV K 线
package candle

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Candle 单个市场单个时间桶的 K 线
type Candle struct {
	MarketID    string
	ID          string // resolution-bucketStart
	Resolution  string
	BucketStart int64
	Open        *big.Int
	High        *big.Int
	Low         *big.Int
	Close       *big.Int
	Volume      *big.Int
	Trades      int
}

func (c Candle) clone() Candle {
	for _, p := range []**big.Int{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		if *p != nil {
			*p = new(big.Int).Set(*p)
		}
	}
	return c
}

// LatestClose 每个市场一条，为下一个时间桶提供开盘价
type LatestClose struct {
	MarketID  string
	Price     *big.Int
	Timestamp int64
}

// Trade 聚合器关心的成交字段
type Trade struct {
	ID        string // txHash-logIndex
	MarketID  string
	Price     *big.Int
	Amount    *big.Int
	Timestamp int64
}

// CandleID resolution-bucketStart
func CandleID(resolution string, bucketStart int64) string {
	return fmt.Sprintf("%s-%d", resolution, bucketStart)
}

// ParseResolution "1m" / "5m" / "1h" 转为桶宽
func ParseResolution(resolution string) (time.Duration, error) {
	d, err := time.ParseDuration(resolution)
	if err != nil {
		return 0, fmt.Errorf("parse resolution %q: %w", resolution, err)
	}
	if d < time.Second || d%time.Second != 0 {
		return 0, fmt.Errorf("resolution %q must be a whole number of seconds", resolution)
	}
	return d, nil
}

// Store K 线和 LatestClose 的存取
type Store interface {
	Candle(marketID, id string) (Candle, bool)
	PutCandle(c Candle)
	LatestClose(marketID string) (LatestClose, bool)
	PutLatestClose(lc LatestClose)
}

// MemoryStore 并发安全的内存 Store
type MemoryStore struct {
	mu      sync.RWMutex
	candles map[string]map[string]Candle
	latest  map[string]LatestClose
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		candles: make(map[string]map[string]Candle),
		latest:  make(map[string]LatestClose),
	}
}

func (s *MemoryStore) Candle(marketID, id string) (Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candles[marketID][id]
	if !ok {
		return Candle{}, false
	}
	return c.clone(), true
}

func (s *MemoryStore) PutCandle(c Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.candles[c.MarketID]
	if !ok {
		m = make(map[string]Candle)
		s.candles[c.MarketID] = m
	}
	m[c.ID] = c.clone()
}

func (s *MemoryStore) LatestClose(marketID string) (LatestClose, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lc, ok := s.latest[marketID]
	return lc, ok
}

func (s *MemoryStore) PutLatestClose(lc LatestClose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lc.Price = new(big.Int).Set(lc.Price)
	s.latest[lc.MarketID] = lc
}

// Candles 返回某市场全部 K 线，按时间升序
func (s *MemoryStore) Candles(marketID string) []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Candle, 0, len(s.candles[marketID]))
	for _, c := range s.candles[marketID] {
		out = append(out, c.clone())
	}
	sortByBucket(out)
	return out
}
