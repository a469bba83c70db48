package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// DedupCache 已处理事件缓存，使用 go-cache 实现 TTL 自动过期
type DedupCache struct {
	cache *cache.Cache // go-cache 内置 TTL 和自动清理
	ttl   time.Duration
}

// NewDedupCache 创建事件去重缓存
// 清理间隔自动设为 2×TTL
func NewDedupCache(ttl time.Duration) *DedupCache {
	return &DedupCache{
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

// IsSeen 检查事件是否已处理
func (c *DedupCache) IsSeen(marketID, eventID string) bool {
	_, exists := c.cache.Get(dedupKey(marketID, eventID))
	if exists {
		monitor.IncCacheHit("dedup")
	} else {
		monitor.IncCacheMiss("dedup")
	}
	return exists
}

// Mark 标记事件为已处理
func (c *DedupCache) Mark(marketID, eventID string) {
	c.cache.Set(dedupKey(marketID, eventID), time.Now(), cache.DefaultExpiration)
}

// dedupKey 格式: "market:txHash-logIndex"
func dedupKey(marketID, eventID string) string {
	return marketID + ":" + eventID
}

// TradeIDLoader 返回 ts 之后的 "market:eventID" 列表
type TradeIDLoader interface {
	IDsSince(ts int64) ([]string, error)
}

// LoadFromDB 启动时用 TTL 窗口内已入库的成交恢复去重状态
func (c *DedupCache) LoadFromDB(loader TradeIDLoader) error {
	if loader == nil {
		return errors.New("loader is nil")
	}

	since := time.Now().Add(-c.ttl).Unix()
	ids, err := loader.IDsSince(since)
	if err != nil {
		return fmt.Errorf("load trade ids: %w", err)
	}

	for _, key := range ids {
		c.cache.Set(key, time.Now(), cache.DefaultExpiration)
	}

	logger.Info().
		Int("count", len(ids)).
		Dur("window", c.ttl).
		Msg("loaded processed trade ids from database")

	return nil
}

// Stats 获取统计信息
func (c *DedupCache) Stats() map[string]any {
	return map[string]any{
		"item_count":  c.cache.ItemCount(),
		"ttl_minutes": c.ttl.Minutes(),
	}
}
