package models

import "time"

// IndexerCursor 每个市场已提交的最后一个事件位置。
// BlockDone 为 true 时 Block 整块已处理完，否则只处理到 LogIndex（含）
type IndexerCursor struct {
	MarketID  string    `gorm:"column:market_id;type:varchar(16);primaryKey" json:"market_id"`
	Block     uint64    `gorm:"column:block;not null" json:"block"`
	LogIndex  uint      `gorm:"column:log_index;not null;default:0" json:"log_index"`
	BlockDone bool      `gorm:"column:block_done;not null;default:false" json:"block_done"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (IndexerCursor) TableName() string {
	return "perp_indexer_cursors"
}

// All 参与迁移和代码生成的全部模型
func All() []any {
	return []any{
		&Trade{},
		&Order{},
		&Position{},
		&Candle{},
		&LatestCandle{},
		&MarginEvent{},
		&FundingEvent{},
		&Liquidation{},
		&IndexerCursor{},
	}
}
