package cache

import (
	"math/big"

	"github.com/utrading/utrading-perp-core/pkg/concurrent"
)

// PriceCache 每个市场最近一次成功读取的链上数值（价格、最优订单 id、保证金等）。
// 读取失败时调用方沿用这里的旧值
type PriceCache struct {
	values concurrent.Map[string, *big.Int] // "ETH-USD/mark" -> 价格
}

func NewPriceCache() *PriceCache {
	return &PriceCache{}
}

func priceKey(marketID, field string) string {
	return marketID + "/" + field
}

// Get 返回副本
func (c *PriceCache) Get(marketID, field string) (*big.Int, bool) {
	v, ok := c.values.Load(priceKey(marketID, field))
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}

// Set nil 值忽略
func (c *PriceCache) Set(marketID, field string, v *big.Int) {
	if v == nil {
		return
	}
	c.values.Store(priceKey(marketID, field), new(big.Int).Set(v))
}

// Resolve 读取成功时写入缓存并返回新值，失败时返回缓存中的旧值（可能为 nil）
func (c *PriceCache) Resolve(marketID, field string, v *big.Int, err error) *big.Int {
	if err == nil && v != nil {
		c.Set(marketID, field, v)
		return new(big.Int).Set(v)
	}
	old, _ := c.Get(marketID, field)
	return old
}

// Stats 获取统计信息
func (c *PriceCache) Stats() map[string]any {
	return map[string]any{
		"value_count": c.values.Len(),
	}
}
