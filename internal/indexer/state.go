// Package indexer 把交易所合约日志按顺序折叠成可查询的成交、订单、仓位和 K 线
package indexer

import (
	"math/big"
	"sync"

	"github.com/utrading/utrading-perp-core/internal/candle"
	"github.com/utrading/utrading-perp-core/internal/models"
	"github.com/utrading/utrading-perp-core/internal/risk"
	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
)

// State 索引器的内存状态，是处理事件时的权威数据，数据库由 BatchWriter 异步追平
type State struct {
	mu        sync.RWMutex
	orders    map[string]map[uint64]models.Order  // market -> 未关闭订单
	positions map[string]map[string]risk.Position // market -> trader -> 仓位
	candles   *candle.MemoryStore
}

func NewState() *State {
	return &State{
		orders:    make(map[string]map[uint64]models.Order),
		positions: make(map[string]map[string]risk.Position),
		candles:   candle.NewMemoryStore(),
	}
}

// Candles 供 candle.Aggregator 使用的存储
func (s *State) Candles() *candle.MemoryStore {
	return s.candles
}

// Order 返回副本
func (s *State) Order(marketID string, id uint64) (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[marketID][id]
	return o, ok
}

func (s *State) PutOrder(o models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.orders[o.MarketID]
	if !ok {
		m = make(map[uint64]models.Order)
		s.orders[o.MarketID] = m
	}
	m[o.OrderID] = o
}

func (s *State) DeleteOrder(marketID string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders[marketID], id)
}

// Position 不存在时返回空仓
func (s *State) Position(marketID, trader string) risk.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[marketID][trader]
	if !ok {
		return risk.Flat(trader)
	}
	return p
}

func (s *State) PutPosition(marketID string, p risk.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.positions[marketID]
	if !ok {
		m = make(map[string]risk.Position)
		s.positions[marketID] = m
	}
	m[p.Trader] = p
}

// OpenInterest 市场内多头仓位之和
func (s *State) OpenInterest(marketID string) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openInterest(s.positions[marketID])
}

func openInterest(positions map[string]risk.Position) *big.Int {
	oi := new(big.Int)
	for _, p := range positions {
		if p.Size != nil && p.Size.Sign() > 0 {
			oi.Add(oi, p.Size)
		}
	}
	return oi
}

func (s *State) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make(map[string]int, len(s.orders))
	for m, os := range s.orders {
		orders[m] = len(os)
	}
	positions := make(map[string]int, len(s.positions))
	oi := make(map[string]string, len(s.positions))
	for m, ps := range s.positions {
		positions[m] = len(ps)
		oi[m] = fixedpoint.Format(openInterest(ps), 4)
	}
	return map[string]any{
		"open_orders":   orders,
		"positions":     positions,
		"open_interest": oi,
	}
}
