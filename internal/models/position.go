package models

// Position 交易者在单个市场的净仓位，Size 有符号
type Position struct {
	MarketID    string `gorm:"column:market_id;type:varchar(16);primaryKey" json:"market_id"`
	Trader      string `gorm:"column:trader;type:varchar(42);primaryKey" json:"trader"`
	Size        BigInt `gorm:"column:size;type:varchar(80);not null" json:"size"`
	EntryPrice  BigInt `gorm:"column:entry_price;type:varchar(80);not null" json:"entry_price"`
	RealizedPnl BigInt `gorm:"column:realized_pnl;type:varchar(80);not null" json:"realized_pnl"`
	Timestamp   int64  `gorm:"column:timestamp;not null" json:"timestamp"`
}

func (Position) TableName() string {
	return "perp_positions"
}
