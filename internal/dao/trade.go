package dao

import (
	"errors"

	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/internal/models"
)

const (
	// RecentTradesLimit 最近成交默认条数
	RecentTradesLimit = 50
)

type TradeDAO struct {
	db *gorm.DB
}

var _trade = &TradeDAO{}

// With 在事务 tx 内执行
func (d *TradeDAO) With(tx *gorm.DB) *TradeDAO {
	if tx == nil {
		return d
	}
	return &TradeDAO{db: tx}
}

// Trade 获取 TradeDAO 单例
func Trade() *TradeDAO {
	return _trade
}

// BatchUpsert 成交记录不可变，冲突时只刷新区块号
func (d *TradeDAO) BatchUpsert(trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return upsert(d.db, trades, []string{"market_id", "event_id"}, []string{"block_number", "log_index"})
}

// Exists 成交是否已入库
func (d *TradeDAO) Exists(marketID, eventID string) (bool, error) {
	var t models.Trade
	err := primary(d.db).
		Where("market_id = ? AND event_id = ?", marketID, eventID).
		Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Recent 市场最近成交，按链上顺序（区块号、日志序号）最新在前
func (d *TradeDAO) Recent(marketID string, limit int) ([]*models.Trade, error) {
	if limit <= 0 {
		limit = RecentTradesLimit
	}
	var trades []*models.Trade
	err := d.db.Where("market_id = ?", marketID).
		Order("block_number DESC").Order("log_index DESC").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

// ByTrader 交易者作为买方或卖方的成交
func (d *TradeDAO) ByTrader(marketID, trader string, limit int) ([]*models.Trade, error) {
	if limit <= 0 {
		limit = RecentTradesLimit
	}
	var trades []*models.Trade
	err := d.db.Where("market_id = ? AND (buyer = ? OR seller = ?)", marketID, trader, trader).
		Order("block_number DESC").Order("log_index DESC").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

// IDsSince 给定时间之后的成交 id，用于预热去重缓存
func (d *TradeDAO) IDsSince(ts int64) ([]string, error) {
	var rows []struct {
		MarketID string
		EventID  string
	}
	err := primary(d.db).Model(&models.Trade{}).
		Select("market_id", "event_id").
		Where("timestamp >= ?", ts).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.MarketID+":"+r.EventID)
	}
	return ids, nil
}
