package orderbook

import (
	"context"
	"math/big"
	"sync"

	"github.com/utrading/utrading-perp-core/internal/exchange"
)

// Store 内存中的订单快照表，按订单 id 索引。
// 与链上合约一样：已分配范围内的空槽返回 id 为 0 的订单，超出范围返回 ErrOrderNotFound
type Store struct {
	mu       sync.RWMutex
	orders   map[uint64]exchange.Order
	maxID    uint64
	bestBuy  uint64
	bestSell uint64
}

func NewStore() *Store {
	return &Store{orders: make(map[uint64]exchange.Order)}
}

// Put 写入或替换一个订单快照
func (s *Store) Put(o exchange.Order) {
	if o.ID == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.ID] = clone(o)
	if o.ID > s.maxID {
		s.maxID = o.ID
	}
}

// Order 实现 OrderReader
func (s *Store) Order(_ context.Context, id uint64) (exchange.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == 0 || id > s.maxID {
		return exchange.Order{}, exchange.ErrOrderNotFound
	}
	return clone(s.orders[id]), nil
}

// SetHeads 设置两侧链表头
func (s *Store) SetHeads(bestBuy, bestSell uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestBuy, s.bestSell = bestBuy, bestSell
}

func (s *Store) Heads() (bestBuy, bestSell uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestBuy, s.bestSell
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// clone 深拷贝 big.Int 字段，避免调用方修改 Store 内部数据
func clone(o exchange.Order) exchange.Order {
	cp := func(v *big.Int) *big.Int {
		if v == nil {
			return nil
		}
		return new(big.Int).Set(v)
	}
	o.Price = cp(o.Price)
	o.Amount = cp(o.Amount)
	o.InitialAmount = cp(o.InitialAmount)
	return o
}
