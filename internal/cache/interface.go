package cache

import "math/big"

// DedupCacheInterface 去重缓存接口
type DedupCacheInterface interface {
	IsSeen(marketID, eventID string) bool
	Mark(marketID, eventID string)
	LoadFromDB(loader TradeIDLoader) error
	Stats() map[string]any
}

// PriceCacheInterface 最近读数缓存接口
type PriceCacheInterface interface {
	Get(marketID, field string) (*big.Int, bool)
	Set(marketID, field string, v *big.Int)
	Resolve(marketID, field string, v *big.Int, err error) *big.Int
	Stats() map[string]any
}

var (
	_ DedupCacheInterface = (*DedupCache)(nil)
	_ PriceCacheInterface = (*PriceCache)(nil)
)
